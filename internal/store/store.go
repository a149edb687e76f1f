// Package store owns the authoritative view of a single run: the most
// recently fetched snapshot plus the provisional tool calls appended by the
// live stream since that fetch.
//
// The store is a standalone observable object: mutations happen through
// SetRun, Refresh, and AppendLive, and every state change notifies
// subscribers. All other components read derived copies and never mutate
// the underlying collections.
package store

import (
	"context"
	"sync"

	"agentviz/internal/model"
)

// Fetcher retrieves a run snapshot. *api.Client satisfies it.
type Fetcher interface {
	Snapshot(ctx context.Context, runID string) (*model.Snapshot, error)
}

// Store holds the snapshot and tool-call list for the selected run.
type Store struct {
	fetch Fetcher

	mu       sync.Mutex
	runID    string
	gen      int // bumped on SetRun; stamps each fetch so late responses are discarded
	inflight bool
	loading  bool
	errMsg   string
	snap     *model.Snapshot
	calls    []model.ToolCall
	keys     map[model.CallKey]struct{}

	subs    map[int]func()
	nextSub int
}

// New creates an empty store backed by the given fetcher.
func New(fetch Fetcher) *Store {
	return &Store{
		fetch: fetch,
		keys:  map[model.CallKey]struct{}{},
		subs:  map[int]func(){},
	}
}

// Subscribe registers a change callback and returns its cancel func.
// Callbacks run outside the store lock and must not block.
func (s *Store) Subscribe(fn func()) func() {
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
}

func (s *Store) notify() {
	s.mu.Lock()
	fns := make([]func(), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

// SetRun selects the run the store tracks. Any in-flight fetch for the
// previous run is abandoned (its response will be discarded, not merged),
// the displayed error is cleared, and the prior run's data is dropped.
func (s *Store) SetRun(runID string) {
	s.mu.Lock()
	s.runID = runID
	s.gen++
	s.inflight = false
	s.loading = false
	s.errMsg = ""
	s.snap = nil
	s.calls = nil
	s.keys = map[model.CallKey]struct{}{}
	s.mu.Unlock()
	s.notify()
}

// Refresh fetches the current run's snapshot and swaps it in atomically.
// At most one fetch is in flight at a time; a call while one is pending is
// a no-op. On failure the previous snapshot stays visible and only the
// error message changes. A response arriving after SetRun switched runs is
// discarded.
func (s *Store) Refresh(ctx context.Context) {
	s.mu.Lock()
	if s.runID == "" || s.inflight {
		s.mu.Unlock()
		return
	}
	runID := s.runID
	gen := s.gen
	s.inflight = true
	s.loading = true
	s.errMsg = ""
	s.mu.Unlock()
	s.notify()

	snap, err := s.fetch.Snapshot(ctx, runID)

	s.mu.Lock()
	if gen != s.gen {
		// Superseded by a run switch while fetching.
		s.mu.Unlock()
		return
	}
	s.inflight = false
	s.loading = false
	if err != nil {
		s.errMsg = err.Error()
		s.mu.Unlock()
		s.notify()
		return
	}
	if snap.RunID != "" && snap.RunID != runID {
		s.errMsg = "snapshot for wrong run " + snap.RunID
		s.mu.Unlock()
		s.notify()
		return
	}
	s.snap = snap
	s.calls = make([]model.ToolCall, len(snap.ToolCalls))
	copy(s.calls, snap.ToolCalls)
	s.keys = make(map[model.CallKey]struct{}, len(s.calls))
	for _, c := range s.calls {
		s.keys[c.Key()] = struct{}{}
	}
	s.mu.Unlock()
	s.notify()
}

// AppendLive adds a live-sourced tool call unless a call with the same
// natural key is already present. Appends preserve arrival order. Reports
// whether the call was added.
func (s *Store) AppendLive(call model.ToolCall) bool {
	s.mu.Lock()
	key := call.Key()
	if _, dup := s.keys[key]; dup {
		s.mu.Unlock()
		return false
	}
	s.calls = append(s.calls, call)
	s.keys[key] = struct{}{}
	s.mu.Unlock()
	s.notify()
	return true
}

// RunID returns the currently selected run id, or "".
func (s *Store) RunID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runID
}

// Snapshot returns the last successfully fetched snapshot, or nil. The
// snapshot is immutable once published; callers must not modify it.
func (s *Store) Snapshot() *model.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap
}

// Calls returns a copy of the tool-call list: snapshot calls in fetch
// order followed by provisional live calls in arrival order.
func (s *Store) Calls() []model.ToolCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.ToolCall, len(s.calls))
	copy(out, s.calls)
	return out
}

// Loading reports whether a fetch is in flight.
func (s *Store) Loading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loading
}

// Err returns the most recent fetch error message, or "".
func (s *Store) Err() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.errMsg
}

// ClearErr dismisses the displayed error.
func (s *Store) ClearErr() {
	s.mu.Lock()
	s.errMsg = ""
	s.mu.Unlock()
	s.notify()
}
