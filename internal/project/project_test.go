package project

import (
	"testing"
	"time"

	"agentviz/internal/filter"
	"agentviz/internal/model"
)

func testSnapshot() *model.Snapshot {
	return &model.Snapshot{
		RunID:  "r1",
		Agents: []model.Agent{{ID: "a1", Label: "recon"}},
		Assets: []model.Asset{{ID: "s1", Label: "example.com"}},
		Vulnerabilities: []model.Vulnerability{
			{ID: "v1", Category: "xss", Severity: "HIGH", AgentID: "a1", AssetID: "s1"},
			{ID: "v2", Category: "info leak", Severity: "low"},
		},
		Edges: []model.Edge{
			{ID: "e1", Source: "a1", Target: "s1", Relation: "scans"},
			{ID: "e2", Source: "v1", Target: "s1", Relation: "affects"},
			{ID: "e3", Source: "a1", Target: "ghost", Relation: "scans"},
		},
	}
}

func TestGraphPrefixesNodeIDs(t *testing.T) {
	view := Graph(testSnapshot(), filter.All, "")

	want := map[string]model.Kind{
		"agent:a1": model.KindAgent,
		"asset:s1": model.KindAsset,
		"vuln:v1":  model.KindVuln,
		"vuln:v2":  model.KindVuln,
	}
	if len(view.Nodes) != len(want) {
		t.Fatalf("expected %d nodes, got %d", len(want), len(view.Nodes))
	}
	for _, n := range view.Nodes {
		kind, ok := want[n.ID]
		if !ok {
			t.Errorf("unexpected node id %q", n.ID)
			continue
		}
		if n.Kind != kind {
			t.Errorf("node %q kind = %s", n.ID, n.Kind)
		}
	}
}

func TestGraphEdgeEndpointsRewritten(t *testing.T) {
	view := Graph(testSnapshot(), filter.All, "")

	// e3 points at an id no collection knows; it is dropped.
	if len(view.Edges) != 2 {
		t.Fatalf("expected 2 edges, got %d", len(view.Edges))
	}
	if view.Edges[0].Source != "agent:a1" || view.Edges[0].Target != "asset:s1" {
		t.Errorf("edge e1 endpoints: %s -> %s", view.Edges[0].Source, view.Edges[0].Target)
	}
	if view.Edges[1].Source != "vuln:v1" || view.Edges[1].Target != "asset:s1" {
		t.Errorf("edge e2 endpoints: %s -> %s", view.Edges[1].Source, view.Edges[1].Target)
	}
}

func TestGraphSeverityFadesInsteadOfDeleting(t *testing.T) {
	view := Graph(testSnapshot(), "high", "")

	faded := map[string]bool{}
	for _, n := range view.Nodes {
		faded[n.ID] = n.Faded
	}
	if faded["vuln:v1"] {
		t.Error("matching severity must stay prominent")
	}
	if !faded["vuln:v2"] {
		t.Error("mismatched severity must fade")
	}
	if faded["agent:a1"] || faded["asset:s1"] {
		t.Error("severity filter must not touch non-vulnerability nodes")
	}
	// The full structure survives filtering.
	if len(view.Nodes) != 4 || len(view.Edges) != 2 {
		t.Errorf("filtering must not delete elements: %d nodes, %d edges", len(view.Nodes), len(view.Edges))
	}
}

func TestGraphHighlight(t *testing.T) {
	view := Graph(testSnapshot(), filter.All, "asset:s1")
	for _, n := range view.Nodes {
		if got := n.ID == "asset:s1"; n.Highlighted != got {
			t.Errorf("node %q highlighted = %v", n.ID, n.Highlighted)
		}
	}
}

func TestGraphNormalizesSeverity(t *testing.T) {
	view := Graph(testSnapshot(), filter.All, "")
	for _, n := range view.Nodes {
		if n.ID == "vuln:v1" && n.Severity != "high" {
			t.Errorf("severity not normalized: %q", n.Severity)
		}
	}
}

func TestGraphNilSnapshot(t *testing.T) {
	view := Graph(nil, filter.All, "")
	if len(view.Nodes) != 0 || len(view.Edges) != 0 {
		t.Errorf("nil snapshot should project empty, got %+v", view)
	}
}

func TestTerminalPipeline(t *testing.T) {
	now := time.Now().UTC()
	calls := []model.ToolCall{
		{ID: "c1", TS: now.Add(-time.Minute), AgentID: "a1", Target: "s1", Status: "OK"},
		{ID: "c2", TS: now.Add(-time.Minute), AgentID: "a1", Target: "s1", Status: "FAILED"},
		{ID: "c3", TS: now.Add(-time.Minute), AgentID: "a2", Target: "s1", Status: "FAILED"},
		{ID: "c4", TS: now.Add(-2 * time.Hour), AgentID: "a1", Target: "s1", Status: "FAILED"},
		{ID: "c5", TS: now.Add(-time.Minute), AgentID: "a1", Target: "s9", Status: "FAILED"},
	}

	rows := Terminal(calls, Criteria{
		Window:      filter.Window1h,
		AgentID:     "a1",
		AssetTarget: "s1",
		OnlyErrors:  true,
	}, now)

	if len(rows) != 1 || rows[0].Call.ID != "c2" {
		t.Fatalf("expected only c2, got %+v", rows)
	}
	if rows[0].Class != filter.StatusError {
		t.Errorf("Class = %v", rows[0].Class)
	}
}

func TestTerminalNoCriteria(t *testing.T) {
	now := time.Now().UTC()
	calls := []model.ToolCall{
		{ID: "c1", TS: now.Add(-time.Minute)},
		{ID: "c2", TS: now.Add(-48 * time.Hour)},
	}
	rows := Terminal(calls, Criteria{Window: filter.WindowAll, AgentID: filter.All}, now)
	if len(rows) != 2 {
		t.Fatalf("unfiltered projection should keep everything, got %d", len(rows))
	}
	// Order is preserved.
	if rows[0].Call.ID != "c1" || rows[1].Call.ID != "c2" {
		t.Errorf("order not preserved: %+v", rows)
	}
}

func TestTerminalEmptyInput(t *testing.T) {
	rows := Terminal(nil, Criteria{Window: filter.WindowAll, AgentID: filter.All}, time.Now())
	if len(rows) != 0 {
		t.Errorf("expected no rows, got %d", len(rows))
	}
}
