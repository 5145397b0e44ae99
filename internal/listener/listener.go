// Package listener implements the per-table change-event fan-out hook:
// a Hook that never rewrites the edit stream, but on
// PostInsert/PostDelete pushes a change event to every client channel
// subscribed to that table and event kind.
package listener

import (
	"fmt"

	"github.com/reactivedb/reactivedb/internal/hook"
	"github.com/reactivedb/reactivedb/internal/value"
)

// Event distinguishes the two kinds a client may subscribe to.
type Event int

const (
	Insert Event = iota
	Delete
)

// MarshalJSON renders Event the way the wire protocol's ListenRequest
// and ListenResponse expect: a lowercase name rather than the bare
// ordinal.
func (e Event) MarshalJSON() ([]byte, error) {
	switch e {
	case Insert:
		return []byte(`"insert"`), nil
	case Delete:
		return []byte(`"delete"`), nil
	default:
		return nil, fmt.Errorf("listener: unknown event %d", e)
	}
}

// UnmarshalJSON accepts the lowercase names MarshalJSON produces.
func (e *Event) UnmarshalJSON(b []byte) error {
	switch string(b) {
	case `"insert"`:
		*e = Insert
	case `"delete"`:
		*e = Delete
	default:
		return fmt.Errorf("listener: unknown event %s", b)
	}
	return nil
}

// Response is the payload delivered to a subscriber's channel: the
// table and event the subscription matched, plus the rows involved.
type Response struct {
	Table   string
	Event   Event
	Entries []*value.Entry
}

// subscription is one control-channel message registering (or
// re-registering) a subscriber's output channel for an event kind.
type subscription struct {
	event Event
	id    string
	ch    chan<- Response
}

// eventChanCapacity bounds each subscriber's outbound buffer. A full
// channel causes the triggering event to be dropped for that
// subscriber rather than block the dispatching hook.
const eventChanCapacity = 64

// Hook fans out PostInsert/PostDelete events for one table to whatever
// clients have subscribed, draining newly registered subscriptions
// from a control channel before each dispatch.
type Hook struct {
	table string

	register chan subscription

	subscribers map[Event]map[string]chan<- Response
	dropped     map[string]int64
}

// New returns a listener hook for table, ready to accept registrations
// via Register and dispatch via the hook.Hook interface.
func New(table string) *Hook {
	return &Hook{
		table:       table,
		register:    make(chan subscription, 16),
		subscribers: map[Event]map[string]chan<- Response{Insert: {}, Delete: {}},
		dropped:     make(map[string]int64),
	}
}

// Register subscribes id's channel to event on this hook's table. It
// is safe to call from any goroutine; the registration is applied the
// next time the hook drains its control channel.
func (h *Hook) Register(event Event, id string, ch chan<- Response) {
	h.register <- subscription{event: event, id: id, ch: ch}
}

// Unregister removes id from every event kind on this hook's table.
// Delivered as a registration with a nil channel so draining stays on
// one code path.
func (h *Hook) Unregister(id string) {
	h.register <- subscription{event: Insert, id: id, ch: nil}
	h.register <- subscription{event: Delete, id: id, ch: nil}
}

// Dropped reports how many events have been silently dropped for
// subscriber id because its channel was full, for operational
// diagnostics.
func (h *Hook) Dropped(id string) int64 {
	return h.dropped[id]
}

func (h *Hook) drain() {
	for {
		select {
		case s := <-h.register:
			if s.ch == nil {
				delete(h.subscribers[s.event], s.id)
				continue
			}
			h.subscribers[s.event][s.id] = s.ch
		default:
			return
		}
	}
}

// Events implements hook.Hook: a listener only cares about the
// post-commit points, since it observes what actually happened.
func (h *Hook) Events() []hook.Event {
	return []hook.Event{hook.PostInsert, hook.PostDelete}
}

// Invoke never rewrites the edit stream (it always returns nil,nil);
// it only dispatches change events to subscribers. committedEdits
// carries the rows that were actually applied.
func (h *Hook) Invoke(event hook.Event, _ []hook.DBEdit, committedEdits []hook.CommittedEdit, _ hook.Database, _ hook.Workspace) ([]hook.DBEdit, error) {
	h.drain()

	var le Event
	switch event {
	case hook.PostInsert:
		le = Insert
	case hook.PostDelete:
		le = Delete
	default:
		return nil, nil
	}

	subs := h.subscribers[le]
	if len(subs) == 0 {
		return nil, nil
	}

	entries := make([]*value.Entry, 0, len(committedEdits))
	for _, c := range committedEdits {
		entries = append(entries, c.Entry)
	}
	if len(entries) == 0 {
		return nil, nil
	}

	resp := Response{Table: h.table, Event: le, Entries: entries}
	for id, ch := range subs {
		select {
		case ch <- resp:
		default:
			h.dropped[id]++
		}
	}
	return nil, nil
}
