// Package protocol defines the wire types and length-prefixed JSON
// framing for the TCP request/response server. Every message, in both
// directions, is a 4-byte big-endian length N followed by N bytes of
// JSON; a zero-length message means "close".
package protocol

import (
	"encoding/binary"
	"fmt"
	"io"

	json "github.com/goccy/go-json"

	"github.com/reactivedb/reactivedb/internal/listener"
	"github.com/reactivedb/reactivedb/internal/value"
)

// maxFrameLen guards against a corrupt or hostile length prefix
// forcing an unbounded allocation.
const maxFrameLen = 64 << 20

// QueryKind tags which Query variant a QueryRequest carries.
type QueryKind string

const (
	QueryFindOne     QueryKind = "find_one"
	QueryLessThan    QueryKind = "less_than"
	QueryGreaterThan QueryKind = "greater_than"
	QueryGetAll      QueryKind = "get_all"
	QueryInsertData  QueryKind = "insert_data"
	QueryDeleteData  QueryKind = "delete_data"
)

// Query is a flattened tagged union over the six read/write
// operations a client may request.
type Query struct {
	Kind      QueryKind        `json:"kind"`
	Table     string           `json:"table"`
	Column    string           `json:"column,omitempty"`
	Key       value.EntryValue `json:"key,omitempty"`
	Inclusive bool             `json:"inclusive,omitempty"` // LessThan only
	Entry     *value.Entry     `json:"entry,omitempty"`     // InsertData only
}

// QueryRequest pairs a Query with the request_id a client correlates
// its eventual response by.
type QueryRequest struct {
	RequestID string `json:"request_id"`
	Query     Query  `json:"query"`
}

// ListenRequest registers the sending connection for change events on
// one (table, event) pair.
type ListenRequest struct {
	TableName string         `json:"table_name"`
	Event     listener.Event `json:"event"`
}

// DBRequestKind tags which of the two envelope shapes a DBRequest is.
type DBRequestKind string

const (
	RequestQuery       DBRequestKind = "query"
	RequestStartListen DBRequestKind = "start_listen"
)

// DBRequest is the top-level client -> server envelope:
// DBRequest = Query(QueryRequest) | StartListen(ListenRequest).
type DBRequest struct {
	Kind   DBRequestKind  `json:"kind"`
	Query  *QueryRequest  `json:"query,omitempty"`
	Listen *ListenRequest `json:"listen,omitempty"`
}

// DBResponseKind tags which DBResponse shape is populated.
type DBResponseKind string

const (
	ManyResultsKind DBResponseKind = "many_results"
	OneResultKind   DBResponseKind = "one_result"
	NoResultKind    DBResponseKind = "no_result"
)

// DBResponse is a result-or-error flattened for each of the three
// response shapes. Error non-empty means the operation failed and
// Entries/Entry carry no data.
type DBResponse struct {
	Kind    DBResponseKind `json:"kind"`
	Entries []*value.Entry `json:"entries,omitempty"`
	Entry   *value.Entry   `json:"entry,omitempty"` // OneResult only; nil means None
	Error   string         `json:"error,omitempty"`
}

// ManyResults builds a successful ManyResults response.
func ManyResults(entries []*value.Entry) DBResponse {
	return DBResponse{Kind: ManyResultsKind, Entries: entries}
}

// OneResult builds a successful OneResult response; entry may be nil.
func OneResult(entry *value.Entry) DBResponse {
	return DBResponse{Kind: OneResultKind, Entry: entry}
}

// NoResultOK builds a successful NoResult response.
func NoResultOK() DBResponse {
	return DBResponse{Kind: NoResultKind}
}

// ErrResponse builds a failed response of the given shape, preserving
// which DBResponse variant the request would otherwise have produced.
func ErrResponse(kind DBResponseKind, err error) DBResponse {
	return DBResponse{Kind: kind, Error: err.Error()}
}

// RequestResponse answers one QueryRequest, correlated by request_id.
type RequestResponse struct {
	RequestID string     `json:"request_id"`
	Response  DBResponse `json:"response"`
}

// ListenResponse is one change-event notification pushed to a
// listening connection.
type ListenResponse struct {
	TableName string         `json:"table_name"`
	Event     listener.Event `json:"event"`
	Value     DBResponse     `json:"value"`
}

// ToClientMessageKind tags which ToClientMessage shape is populated.
type ToClientMessageKind string

const (
	MessageRequestResponse ToClientMessageKind = "request_response"
	MessageEvent           ToClientMessageKind = "event"
)

// ToClientMessage is the top-level server -> client envelope:
// ToClientMessage = RequestResponse{...} | Event(ListenResponse).
type ToClientMessage struct {
	Kind            ToClientMessageKind `json:"kind"`
	RequestResponse *RequestResponse    `json:"request_response,omitempty"`
	Event           *ListenResponse     `json:"event,omitempty"`
}

// NewRequestResponseMessage wraps rr for transmission.
func NewRequestResponseMessage(rr RequestResponse) ToClientMessage {
	return ToClientMessage{Kind: MessageRequestResponse, RequestResponse: &rr}
}

// NewEventMessage wraps a change-event notification for transmission.
func NewEventMessage(ev ListenResponse) ToClientMessage {
	return ToClientMessage{Kind: MessageEvent, Event: &ev}
}

// WriteFrame marshals v and writes it as one length-prefixed frame.
func WriteFrame(w io.Writer, v any) error {
	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("protocol: encode frame: %w", err)
	}
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(body)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return fmt.Errorf("protocol: write frame length: %w", err)
	}
	if _, err := w.Write(body); err != nil {
		return fmt.Errorf("protocol: write frame body: %w", err)
	}
	return nil
}

// WriteClose writes the zero-length frame that signals connection
// close.
func WriteClose(w io.Writer) error {
	var lenBuf [4]byte
	_, err := w.Write(lenBuf[:])
	return err
}

// ReadFrame reads one length-prefixed frame. A zero-length frame
// returns (nil, true, nil): the peer asked to close.
func ReadFrame(r io.Reader) (body []byte, closed bool, err error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, false, err
	}
	n := binary.BigEndian.Uint32(lenBuf[:])
	if n == 0 {
		return nil, true, nil
	}
	if n > maxFrameLen {
		return nil, false, fmt.Errorf("protocol: frame of %d bytes exceeds limit", n)
	}
	body = make([]byte, n)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, false, err
	}
	return body, false, nil
}

// DecodeRequest reads and decodes one DBRequest frame.
func DecodeRequest(r io.Reader) (*DBRequest, bool, error) {
	body, closed, err := ReadFrame(r)
	if err != nil || closed {
		return nil, closed, err
	}
	var req DBRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return nil, false, fmt.Errorf("protocol: decode request: %w", err)
	}
	return &req, false, nil
}
