// Package project maps (entities, filters, selection) into render-ready
// element lists. Projections are pure: they never mutate the snapshot or
// the call list, and the same inputs always yield the same output.
package project

import (
	"time"

	"agentviz/internal/filter"
	"agentviz/internal/model"
)

// GraphNode is one renderable graph element.
type GraphNode struct {
	// ID is the prefixed node identifier "<kind>:<rawId>".
	ID          string
	Kind        model.Kind
	RawID       string
	Label       string
	Severity    string // normalized; vulnerability nodes only
	Highlighted bool
	// Faded marks a node hidden by the active severity filter. The node
	// (and its edges) stays in the projection so filtering never deletes
	// edges, it only fades endpoints.
	Faded bool
}

// GraphEdge is one renderable edge with both endpoints rewritten to
// prefixed node ids.
type GraphEdge struct {
	ID       string
	Source   string
	Target   string
	Relation string
	Label    string
}

// GraphView is the full element list for the graph renderer.
type GraphView struct {
	Nodes []GraphNode
	Edges []GraphEdge
}

// Graph projects a snapshot into graph elements. severity narrows which
// vulnerability nodes are prominent (filter.All shows everything);
// highlight is the prefixed id of the emphasized node, or "". Edges whose
// endpoints resolve to no known agent, vulnerability, or asset are dropped
// from the projection; the snapshot keeps their data.
func Graph(snap *model.Snapshot, severity, highlight string) GraphView {
	if snap == nil {
		return GraphView{}
	}

	var view GraphView
	for _, a := range snap.Agents {
		id := model.NodeID(model.KindAgent, a.ID)
		view.Nodes = append(view.Nodes, GraphNode{
			ID:          id,
			Kind:        model.KindAgent,
			RawID:       a.ID,
			Label:       a.Label,
			Highlighted: id == highlight,
		})
	}
	for _, a := range snap.Assets {
		id := model.NodeID(model.KindAsset, a.ID)
		view.Nodes = append(view.Nodes, GraphNode{
			ID:          id,
			Kind:        model.KindAsset,
			RawID:       a.ID,
			Label:       a.Label,
			Highlighted: id == highlight,
		})
	}
	for _, v := range snap.Vulnerabilities {
		id := model.NodeID(model.KindVuln, v.ID)
		sev := filter.Severity(v.Severity)
		faded := severity != "" && severity != filter.All && filter.Severity(severity) != sev
		view.Nodes = append(view.Nodes, GraphNode{
			ID:          id,
			Kind:        model.KindVuln,
			RawID:       v.ID,
			Label:       v.Category,
			Severity:    sev,
			Highlighted: id == highlight,
			Faded:       faded,
		})
	}

	for _, e := range snap.Edges {
		srcKind, ok := model.ResolveKind(snap, e.Source)
		if !ok {
			continue
		}
		dstKind, ok := model.ResolveKind(snap, e.Target)
		if !ok {
			continue
		}
		view.Edges = append(view.Edges, GraphEdge{
			ID:       e.ID,
			Source:   model.NodeID(srcKind, e.Source),
			Target:   model.NodeID(dstKind, e.Target),
			Relation: e.Relation,
			Label:    e.Label,
		})
	}
	return view
}

// Criteria is the terminal view's filter set, applied in sequence.
type Criteria struct {
	Window      filter.Window
	AgentID     string // filter.All for no restriction
	AssetTarget string // "" for no restriction
	OnlyErrors  bool
	OnlySuccess bool
}

// Row is one renderable terminal line.
type Row struct {
	Call  model.ToolCall
	Class filter.StatusClass
}

// Terminal projects the tool-call list through the filter pipeline into
// terminal rows, preserving the list's order.
func Terminal(calls []model.ToolCall, crit Criteria, now time.Time) []Row {
	out := filter.ByTime(calls, crit.Window, now)
	out = filter.ByAgent(out, crit.AgentID)
	out = filter.ByTarget(out, crit.AssetTarget)
	out = filter.ByStatus(out, crit.OnlyErrors, crit.OnlySuccess)

	rows := make([]Row, len(out))
	for i, c := range out {
		rows[i] = Row{Call: c, Class: filter.ClassifyStatus(c.Status)}
	}
	return rows
}
