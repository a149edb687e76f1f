// Package selection coordinates what is highlighted and cross-filtered
// between the graph view and the terminal view. A single selection in
// either view derives the filter state of the other.
package selection

import (
	"sync"

	"agentviz/internal/filter"
	"agentviz/internal/model"
)

// State is the derived cross-view filter state.
type State struct {
	// AgentFilter narrows the terminal log to one agent; filter.All means
	// no restriction.
	AgentFilter string
	// AssetTarget narrows the terminal log to calls touching one asset;
	// "" means no restriction.
	AssetTarget string
	// Highlight is the prefixed node id visually emphasized in the graph,
	// or "" for none. Highlighting is independent of filtering.
	Highlight string
}

// Coordinator owns the selection state machine: one of {agent, asset,
// vulnerability} selected, or nothing.
type Coordinator struct {
	mu    sync.Mutex
	state State

	subs    map[int]func()
	nextSub int
}

// New returns a coordinator in the initial (nothing selected) state.
func New() *Coordinator {
	return &Coordinator{
		state: State{AgentFilter: filter.All},
		subs:  map[int]func(){},
	}
}

// Subscribe registers a change callback and returns its cancel func.
func (c *Coordinator) Subscribe(fn func()) func() {
	c.mu.Lock()
	id := c.nextSub
	c.nextSub++
	c.subs[id] = fn
	c.mu.Unlock()
	return func() {
		c.mu.Lock()
		delete(c.subs, id)
		c.mu.Unlock()
	}
}

func (c *Coordinator) notify() {
	c.mu.Lock()
	fns := make([]func(), 0, len(c.subs))
	for _, fn := range c.subs {
		fns = append(fns, fn)
	}
	c.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

// State returns the current derived filter state.
func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Select applies a graph selection given as a prefixed node id
// ("<kind>:<rawId>"). An empty or malformed reference deselects. The
// snapshot is consulted only to resolve vulnerability back-references and
// may be nil; a reference that does not resolve silently keeps the
// corresponding filter untouched.
func (c *Coordinator) Select(ref string, snap *model.Snapshot) {
	kind, raw, ok := model.SplitNodeID(ref)
	if !ok {
		c.Deselect()
		return
	}

	c.mu.Lock()
	switch kind {
	case model.KindAgent:
		c.state.AgentFilter = raw
		c.state.AssetTarget = ""
		c.state.Highlight = model.NodeID(model.KindAgent, raw)
	case model.KindAsset:
		c.state.AssetTarget = raw
		c.state.Highlight = model.NodeID(model.KindAsset, raw)
	case model.KindVuln:
		if snap != nil {
			if v, found := snap.VulnerabilityByID(raw); found {
				if v.AssetID != "" {
					c.state.AssetTarget = v.AssetID
				}
				if v.AgentID != "" {
					c.state.AgentFilter = v.AgentID
				}
			}
		}
		c.state.Highlight = model.NodeID(model.KindVuln, raw)
	}
	c.mu.Unlock()
	c.notify()
}

// SelectToolCall derives a graph highlight from a terminal row selection:
// the call's target asset when present, else its agent, else no change.
func (c *Coordinator) SelectToolCall(call model.ToolCall) {
	var highlight string
	switch {
	case call.Target != "":
		highlight = model.NodeID(model.KindAsset, call.Target)
	case call.AgentID != "":
		highlight = model.NodeID(model.KindAgent, call.AgentID)
	default:
		return
	}
	c.mu.Lock()
	c.state.Highlight = highlight
	c.mu.Unlock()
	c.notify()
}

// Deselect clears the agent filter, the asset-target filter, and the
// highlight in one transition.
func (c *Coordinator) Deselect() {
	c.mu.Lock()
	c.state = State{AgentFilter: filter.All}
	c.mu.Unlock()
	c.notify()
}

// Reset returns the coordinator to its initial state. Called on run change.
func (c *Coordinator) Reset() {
	c.Deselect()
}
