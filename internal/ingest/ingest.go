// Package ingest maintains the live event stream for the active run. It
// normalizes incoming mcp_tool_call events into ToolCall records, hands
// them to the store (which deduplicates them against the snapshot), and
// coalesces every message into at most one pending snapshot refresh.
package ingest

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"

	"agentviz/internal/model"
	"agentviz/internal/store"
)

// DefaultDebounce is the leading-edge coalescing window between a live
// message and the snapshot refresh it schedules.
const DefaultDebounce = 750 * time.Millisecond

// Conn is one streaming connection. ReadMessage blocks until a message or
// a connection error.
type Conn interface {
	ReadMessage() ([]byte, error)
	Close() error
}

// Dialer opens streaming connections. The production implementation is
// WebsocketDialer; tests substitute scripted connections.
type Dialer interface {
	Dial(url string) (Conn, error)
}

// Ingester attaches live streams to runs and feeds the store.
type Ingester struct {
	dial      Dialer
	store     *store.Store
	streamURL func(runID string) string
	debounce  time.Duration

	// Logf receives malformed-event notices. Optional; a TUI host leaves
	// it nil since stray writes would corrupt the screen.
	Logf func(format string, args ...any)

	// OnError is invoked once when a stream's connection fails. The
	// stream is not re-dialed; the caller decides whether to re-attach.
	OnError func(runID string, err error)
}

// New creates an ingester that appends into st and resolves stream
// endpoints through streamURL.
func New(dial Dialer, st *store.Store, streamURL func(runID string) string) *Ingester {
	return &Ingester{
		dial:      dial,
		store:     st,
		streamURL: streamURL,
		debounce:  DefaultDebounce,
	}
}

// SetDebounce overrides the refresh coalescing window. Zero restores the
// default.
func (in *Ingester) SetDebounce(d time.Duration) {
	if d <= 0 {
		d = DefaultDebounce
	}
	in.debounce = d
}

// Subscription is one attached stream. It owns the connection and the
// pending-refresh timer; Close releases both.
type Subscription struct {
	RunID string

	in   *Ingester
	conn Conn

	mu      sync.Mutex
	timer   *time.Timer
	pending bool
	closed  bool
	err     error
}

// Attach opens exactly one streaming connection for the run and starts
// consuming it. The caller must Close the subscription before attaching
// to another run, or live updates would leak into the wrong view.
func (in *Ingester) Attach(runID string) (*Subscription, error) {
	conn, err := in.dial.Dial(in.streamURL(runID))
	if err != nil {
		return nil, err
	}
	sub := &Subscription{RunID: runID, in: in, conn: conn}
	go sub.loop()
	return sub, nil
}

// Close tears down the stream: the connection is closed and any pending
// refresh timer is cancelled so no update fires for a run no longer
// selected.
func (s *Subscription) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.pending = false
	s.mu.Unlock()
	s.conn.Close()
}

// Pending reports whether a debounced refresh is scheduled.
func (s *Subscription) Pending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending
}

// Err returns the connection error that ended the stream, if any.
func (s *Subscription) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *Subscription) loop() {
	for {
		data, err := s.conn.ReadMessage()
		if err != nil {
			s.mu.Lock()
			closed := s.closed
			if !closed {
				s.err = err
			}
			s.mu.Unlock()
			if !closed && s.in.OnError != nil {
				s.in.OnError(s.RunID, err)
			}
			return
		}
		s.handle(data)
	}
}

// handle processes one inbound message. Parse failures are absorbed: the
// line is logged and the stream continues. Every message, parsed or not,
// schedules a refresh — non-tool-call events may still imply graph changes.
func (s *Subscription) handle(data []byte) {
	var ev model.LiveEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		if s.in.Logf != nil {
			s.in.Logf("skipping malformed live event: %v", err)
		}
		s.scheduleRefresh()
		return
	}
	if ev.Type() == model.EventToolCall {
		// AppendLive drops the call silently when its natural key is
		// already present.
		s.in.store.AppendLive(NormalizeToolCall(ev, time.Now().UTC()))
	}
	s.scheduleRefresh()
}

// scheduleRefresh arms the debounce timer unless one is already pending.
// Leading-edge coalescing: later messages inside the window do not reset it.
func (s *Subscription) scheduleRefresh() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.pending {
		return
	}
	s.pending = true
	s.timer = time.AfterFunc(s.in.debounce, func() {
		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			return
		}
		s.pending = false
		s.mu.Unlock()
		s.in.store.Refresh(context.Background())
	})
}

// NormalizeToolCall maps a live event to a ToolCall record. String-typed
// fields are copied, everything else is omitted; args defaults to an empty
// map; a missing or invalid ts becomes now. The id is freshly generated —
// wire-supplied ids are never trusted.
func NormalizeToolCall(ev model.LiveEvent, now time.Time) model.ToolCall {
	return model.ToolCall{
		ID:            uuid.NewString(),
		TS:            model.ParseTime(ev.String("ts"), now),
		AgentID:       ev.String("agent_id"),
		Tool:          ev.String("tool"),
		Target:        ev.String("target"),
		Status:        ev.String("status"),
		Summary:       ev.String("summary"),
		Args:          ev.Args(),
		ResultSummary: ev.String("result_summary"),
	}
}
