package protocol

import (
	"bytes"
	"testing"

	json "github.com/goccy/go-json"

	"github.com/reactivedb/reactivedb/internal/listener"
	"github.com/reactivedb/reactivedb/internal/value"
)

func TestWriteFrameReadFrameRoundTrip(t *testing.T) {
	req := DBRequest{
		Kind: RequestQuery,
		Query: &QueryRequest{
			RequestID: "r-1",
			Query: Query{
				Kind:   QueryFindOne,
				Table:  "t",
				Column: "a",
				Key:    value.Int(7),
			},
		},
	}

	var buf bytes.Buffer
	if err := WriteFrame(&buf, req); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}

	body, closed, err := ReadFrame(&buf)
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	if closed {
		t.Fatalf("expected a real frame, got a close signal")
	}

	var got DBRequest
	if err := json.Unmarshal(body, &got); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if got.Kind != RequestQuery || got.Query.RequestID != "r-1" || got.Query.Query.Key.Integer != 7 {
		t.Fatalf("round trip mismatch: %+v", got)
	}
}

func TestDecodeRequestRoundTrip(t *testing.T) {
	req := DBRequest{
		Kind: RequestStartListen,
		Listen: &ListenRequest{
			TableName: "t",
			Event:     listener.Insert,
		},
	}
	var buf bytes.Buffer
	if err := WriteFrame(&buf, req); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}

	got, closed, err := DecodeRequest(&buf)
	if err != nil {
		t.Fatalf("DecodeRequest: %v", err)
	}
	if closed {
		t.Fatalf("expected a real frame, got a close signal")
	}
	if got.Kind != RequestStartListen || got.Listen.TableName != "t" || got.Listen.Event != listener.Insert {
		t.Fatalf("round trip mismatch: %+v", got)
	}
}

func TestReadFrameReportsClose(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteClose(&buf); err != nil {
		t.Fatalf("WriteClose: %v", err)
	}

	body, closed, err := ReadFrame(&buf)
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	if !closed || body != nil {
		t.Fatalf("expected a close signal, got closed=%v body=%v", closed, body)
	}
}

func TestReadFrameRejectsOversizedLength(t *testing.T) {
	var buf bytes.Buffer
	buf.Write([]byte{0xFF, 0xFF, 0xFF, 0xFF})
	if _, _, err := ReadFrame(&buf); err == nil {
		t.Fatalf("expected an error for a frame length exceeding the limit")
	}
}

func TestResponseBuilders(t *testing.T) {
	one := OneResult(nil)
	if one.Kind != OneResultKind || one.Entry != nil {
		t.Fatalf("OneResult(nil): %+v", one)
	}

	many := ManyResults([]*value.Entry{value.NewEntry()})
	if many.Kind != ManyResultsKind || len(many.Entries) != 1 {
		t.Fatalf("ManyResults: %+v", many)
	}

	no := NoResultOK()
	if no.Kind != NoResultKind || no.Error != "" {
		t.Fatalf("NoResultOK: %+v", no)
	}

	errResp := ErrResponse(OneResultKind, errDummy{})
	if errResp.Kind != OneResultKind || errResp.Error != "boom" {
		t.Fatalf("ErrResponse: %+v", errResp)
	}
}

type errDummy struct{}

func (errDummy) Error() string { return "boom" }
