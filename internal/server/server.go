// Package server implements the TCP accept loop and the single DB task
// goroutine that owns the database: one reader and one writer goroutine
// per connection, a shared request channel feeding the DB task, and
// per-connection response channels registered with that task.
package server

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/reactivedb/reactivedb/internal/dbengine"
	"github.com/reactivedb/reactivedb/internal/hook"
	"github.com/reactivedb/reactivedb/internal/listener"
	"github.com/reactivedb/reactivedb/internal/protocol"
	"github.com/reactivedb/reactivedb/internal/value"
)

// clientMessage is one request forwarded from a connection's reader
// task to the DB task, tagged by the client it came from.
type clientMessage struct {
	clientID string
	request  *protocol.DBRequest
}

// registration tells the DB task a new client's outbound channel is
// ready to receive.
type registration struct {
	clientID string
	ch       chan protocol.ToClientMessage
}

// unregistration tells the DB task a client disconnected, so its
// listener subscriptions (if any) can be dropped.
type unregistration struct {
	clientID string
}

// Server runs the accept loop and the single DB task goroutine.
type Server struct {
	db  *dbengine.Database
	log *slog.Logger

	listeners map[string]*listener.Hook // table name -> listener hook, for StartListen dispatch

	requests   chan clientMessage
	registerCh chan registration
	deregister chan unregistration

	activeConns atomic.Int64
}

// New returns a Server ready to Serve, wired to db and to the given
// per-table listener hooks (the same instances registered with db via
// RegisterHook, so StartListen and PostInsert/PostDelete dispatch
// share state).
func New(db *dbengine.Database, listeners map[string]*listener.Hook, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{
		db:         db,
		log:        log,
		listeners:  listeners,
		requests:   make(chan clientMessage, 256),
		registerCh: make(chan registration, 16),
		deregister: make(chan unregistration, 16),
	}
}

// Serve binds to addr and runs the accept loop plus the DB task until
// the listener is closed or an unrecoverable accept error occurs.
func (s *Server) Serve(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("server: listen %s: %w", addr, err)
	}
	defer ln.Close()

	go s.runDBTask()

	s.log.Info("reactivedb server listening", "addr", ln.Addr().String())
	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("server: accept: %w", err)
		}
		go s.handleConn(conn)
	}
}

// handleConn runs one connection's reader task and writer task,
// identified by a fresh v4 UUID.
func (s *Server) handleConn(conn net.Conn) {
	clientID := uuid.NewString()
	s.activeConns.Add(1)
	defer s.activeConns.Add(-1)
	defer conn.Close()

	out := make(chan protocol.ToClientMessage, 64)
	s.registerCh <- registration{clientID: clientID, ch: out}
	defer func() { s.deregister <- unregistration{clientID: clientID} }()

	done := make(chan struct{})
	go s.writerLoop(conn, out, done)

	s.readerLoop(conn, clientID)
	close(out)
	<-done
}

// readerLoop decodes DBRequest frames and forwards each, tagged with
// clientID, to the shared request channel. It returns on any read
// error or client-initiated close.
func (s *Server) readerLoop(conn net.Conn, clientID string) {
	for {
		req, closed, err := protocol.DecodeRequest(conn)
		if closed {
			return
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				s.log.Warn("connection read error", "client", clientID, "error", err)
			}
			return
		}
		s.requests <- clientMessage{clientID: clientID, request: req}
	}
}

// writerLoop encodes and sends every ToClientMessage queued for this
// connection until out is closed, then signals done.
func (s *Server) writerLoop(conn net.Conn, out <-chan protocol.ToClientMessage, done chan<- struct{}) {
	defer close(done)
	for msg := range out {
		if err := protocol.WriteFrame(conn, msg); err != nil {
			return
		}
	}
}

// runDBTask is the single-threaded consumer of the request channel: it
// owns all dispatch against the database and never yields except on
// channel receive, so requests are processed strictly one at a time.
func (s *Server) runDBTask() {
	clients := make(map[string]chan protocol.ToClientMessage)
	bridges := make(map[string][]chan listener.Response)
	for {
		select {
		case reg := <-s.registerCh:
			clients[reg.clientID] = reg.ch
		case dereg := <-s.deregister:
			delete(clients, dereg.clientID)
			for _, h := range s.listeners {
				h.Unregister(dereg.clientID)
			}
			for _, b := range bridges[dereg.clientID] {
				close(b)
			}
			delete(bridges, dereg.clientID)
		case cm := <-s.requests:
			s.dispatch(cm, clients, bridges)
		}
	}
}

// dispatch handles one request, draining any newly registered response
// channels first.
func (s *Server) dispatch(cm clientMessage, clients map[string]chan protocol.ToClientMessage, bridges map[string][]chan listener.Response) {
	s.drainRegistrations(clients)

	req := cm.request
	switch req.Kind {
	case protocol.RequestQuery:
		if req.Query == nil {
			return
		}
		resp := s.runQuery(req.Query.Query)
		s.send(clients, cm.clientID, protocol.NewRequestResponseMessage(protocol.RequestResponse{
			RequestID: req.Query.RequestID,
			Response:  resp,
		}))
	case protocol.RequestStartListen:
		if req.Listen == nil {
			return
		}
		s.startListen(cm.clientID, *req.Listen, clients, bridges)
	}
}

// drainRegistrations folds in any registrations queued since the last
// dispatch without blocking, so a registration racing a request for
// the same client is observed before that request is served.
func (s *Server) drainRegistrations(clients map[string]chan protocol.ToClientMessage) {
	for {
		select {
		case reg := <-s.registerCh:
			clients[reg.clientID] = reg.ch
		default:
			return
		}
	}
}

func (s *Server) send(clients map[string]chan protocol.ToClientMessage, clientID string, msg protocol.ToClientMessage) {
	ch, ok := clients[clientID]
	if !ok {
		return
	}
	select {
	case ch <- msg:
	default:
		s.log.Warn("dropping message to slow client", "client", clientID)
	}
}

// startListen registers clientID's outbound channel with the table's
// listener hook, translating fan-out Responses into Event messages for
// as long as the connection lives.
func (s *Server) startListen(clientID string, req protocol.ListenRequest, clients map[string]chan protocol.ToClientMessage, bridges map[string][]chan listener.Response) {
	h, ok := s.listeners[req.TableName]
	if !ok {
		return
	}
	out, ok := clients[clientID]
	if !ok {
		return
	}

	bridge := make(chan listener.Response, 64)
	h.Register(req.Event, clientID, bridge)
	bridges[clientID] = append(bridges[clientID], bridge)
	go s.bridgeListener(clientID, bridge, out)
}

// bridgeListener forwards listener.Response values onto a client's
// ToClientMessage channel until the DB task closes bridge on client
// disconnect; a listener otherwise lives for the connection's lifetime.
func (s *Server) bridgeListener(clientID string, bridge <-chan listener.Response, out chan<- protocol.ToClientMessage) {
	for resp := range bridge {
		msg := protocol.NewEventMessage(protocol.ListenResponse{
			TableName: resp.Table,
			Event:     resp.Event,
			Value:     protocol.ManyResults(resp.Entries),
		})
		select {
		case out <- msg:
		default:
			s.log.Warn("dropping listener event for slow client", "client", clientID)
		}
	}
}

// runQuery executes one Query against the database and maps the result
// to the DBResponse shape matching that query kind: FindOne yields
// OneResult, the other known kinds ManyResults, and an unknown kind a
// NoResult error.
func (s *Server) runQuery(q protocol.Query) protocol.DBResponse {
	switch q.Kind {
	case protocol.QueryFindOne:
		e, err := s.db.FindOne(q.Table, q.Column, q.Key)
		if err != nil {
			return protocol.ErrResponse(protocol.OneResultKind, err)
		}
		return protocol.OneResult(e)

	case protocol.QueryLessThan:
		entries, err := s.db.LessThan(q.Table, q.Column, q.Key, q.Inclusive)
		if err != nil {
			return protocol.ErrResponse(protocol.ManyResultsKind, err)
		}
		return protocol.ManyResults(entries)

	case protocol.QueryGreaterThan:
		entries, err := s.db.GreaterThan(q.Table, q.Column, q.Key)
		if err != nil {
			return protocol.ErrResponse(protocol.ManyResultsKind, err)
		}
		return protocol.ManyResults(entries)

	case protocol.QueryGetAll:
		entries, err := s.db.GetAll(q.Table, q.Column, q.Key)
		if err != nil {
			return protocol.ErrResponse(protocol.ManyResultsKind, err)
		}
		return protocol.ManyResults(entries)

	case protocol.QueryInsertData:
		committed, err := s.db.Insert(q.Table, q.Entry)
		if err != nil {
			return protocol.ErrResponse(protocol.ManyResultsKind, err)
		}
		return protocol.ManyResults(committedEntries(committed))

	case protocol.QueryDeleteData:
		committed, err := s.db.DeleteAll(q.Table, q.Column, q.Key)
		if err != nil {
			return protocol.ErrResponse(protocol.ManyResultsKind, err)
		}
		return protocol.ManyResults(committedEntries(committed))

	default:
		return protocol.ErrResponse(protocol.NoResultKind, fmt.Errorf("server: unknown query kind %q", q.Kind))
	}
}

func committedEntries(committed []hook.CommittedEdit) []*value.Entry {
	out := make([]*value.Entry, len(committed))
	for i, c := range committed {
		out[i] = c.Entry
	}
	return out
}
