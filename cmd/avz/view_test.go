package main

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"agentviz/internal/api"
	"agentviz/internal/config"
	"agentviz/internal/filter"
	"agentviz/internal/ingest"
	"agentviz/internal/model"
	"agentviz/internal/selection"
	"agentviz/internal/store"
)

// stubFetcher serves one canned snapshot for every run.
type stubFetcher struct {
	snap *model.Snapshot
}

func (f stubFetcher) Snapshot(ctx context.Context, runID string) (*model.Snapshot, error) {
	if f.snap == nil {
		return nil, errors.New("no snapshot")
	}
	return f.snap, nil
}

// failDialer refuses every stream; render tests never consume one.
type failDialer struct{}

func (failDialer) Dial(url string) (ingest.Conn, error) {
	return nil, errors.New("no stream in tests")
}

func testSnapshot() *model.Snapshot {
	now := time.Now().UTC()
	return &model.Snapshot{
		RunID:  "run-a",
		Agents: []model.Agent{{ID: "recon-1", Label: "recon-1"}},
		Assets: []model.Asset{{ID: "example.com", Label: "example.com"}},
		Vulnerabilities: []model.Vulnerability{
			{ID: "v1", Category: "xss", Severity: "high", AgentID: "recon-1", AssetID: "example.com", TS: now},
			{ID: "v2", Category: "banner", Severity: "info", TS: now},
		},
		Edges: []model.Edge{
			{ID: "e1", Source: "recon-1", Target: "example.com", Relation: "scans"},
		},
		ToolCalls: []model.ToolCall{
			{ID: "t1", TS: now, AgentID: "recon-1", Tool: "httpx", Target: "example.com", Status: "OK", Summary: "probed"},
			{ID: "t2", TS: now, AgentID: "recon-1", Tool: "nuclei", Target: "example.com", Status: "FAILED"},
		},
	}
}

// testModel builds a uiModel around a populated store; no backend or
// stream is involved.
func testModel(t *testing.T) uiModel {
	t.Helper()
	st := store.New(stubFetcher{snap: testSnapshot()})
	st.SetRun("run-a")
	st.Refresh(context.Background())

	coord := selection.New()
	ing := ingest.New(failDialer{}, st, func(string) string { return "" })
	m := newModel(config.Default(), api.New("http://127.0.0.1:0"), st, ing, coord)
	m.activeRun = "run-a"
	m.runs = []model.Run{{ID: "run-a", EventCount: 4}}
	m.width = 100
	m.height = 30
	m.help.Width = 100
	return m
}

func TestParseViewFlag(t *testing.T) {
	tests := []struct {
		input string
		want  viewID
		err   bool
	}{
		{"runs", viewRuns, false},
		{"Runs", viewRuns, false},
		{"r", viewRuns, false},
		{"graph", viewGraph, false},
		{"g", viewGraph, false},
		{"terminal", viewTerminal, false},
		{"t", viewTerminal, false},
		{"vulns", viewVulns, false},
		{"v", viewVulns, false},
		{"bogus", 0, true},
		{"", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := parseViewFlag(tt.input)
			if tt.err {
				if err == nil {
					t.Errorf("parseViewFlag(%q) expected error, got nil", tt.input)
				}
				return
			}
			if err != nil {
				t.Errorf("parseViewFlag(%q) unexpected error: %v", tt.input, err)
			}
			if got != tt.want {
				t.Errorf("parseViewFlag(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestViewIDString(t *testing.T) {
	tests := []struct {
		v    viewID
		want string
	}{
		{viewRuns, "Runs"},
		{viewGraph, "Graph"},
		{viewTerminal, "Terminal"},
		{viewVulns, "Vulns"},
		{viewID(99), "?"},
	}
	for _, tt := range tests {
		if got := tt.v.String(); got != tt.want {
			t.Errorf("viewID(%d).String() = %q, want %q", int(tt.v), got, tt.want)
		}
	}
}

func TestViewLoading(t *testing.T) {
	m := testModel(t)
	m.width = 0

	if out := m.View(); out != "Loading..." {
		t.Errorf("expected 'Loading...' when width=0, got %q", out)
	}
}

func TestRenderRuns(t *testing.T) {
	m := testModel(t)
	out := m.renderRuns()

	if !strings.Contains(out, "run-a") {
		t.Error("runs view should list run-a")
	}
	if !strings.Contains(out, "> ") {
		t.Error("runs view should show the cursor marker")
	}
}

func TestRenderRunsEmpty(t *testing.T) {
	m := testModel(t)
	m.runs = nil

	if out := m.renderRuns(); !strings.Contains(out, "no runs found") {
		t.Error("runs view should show 'no runs found' when empty")
	}
}

func TestRenderGraphSections(t *testing.T) {
	m := testModel(t)
	m.activeView = viewGraph
	out := m.renderGraph()

	for _, want := range []string{"Agents", "Assets", "Vulnerabilities", "recon-1", "example.com", "xss", "Edges"} {
		if !strings.Contains(out, want) {
			t.Errorf("graph view should contain %q", want)
		}
	}
	if !strings.Contains(out, "-[scans]->") {
		t.Error("graph view should render the edge relation")
	}
}

func TestRenderGraphNoRun(t *testing.T) {
	m := testModel(t)
	m.activeRun = ""

	if out := m.renderGraph(); !strings.Contains(out, "no run selected") {
		t.Error("graph view should prompt for a run")
	}
}

func TestRenderGraphSeverityFilterShown(t *testing.T) {
	m := testModel(t)
	m.severity = "high"

	if out := m.renderGraph(); !strings.Contains(out, "severity: high") {
		t.Error("graph view should show the active severity filter")
	}
}

func TestRenderGraphHighlightMarker(t *testing.T) {
	m := testModel(t)
	m.coord.Select("asset:example.com", m.store.Snapshot())

	if out := m.renderGraph(); !strings.Contains(out, "●") {
		t.Error("highlighted node should carry the ● marker")
	}
}

func TestRenderTerminal(t *testing.T) {
	m := testModel(t)
	out := m.renderTerminal()

	for _, want := range []string{"Terminal", "httpx", "nuclei", "OK", "FAILED", "example.com"} {
		if !strings.Contains(out, want) {
			t.Errorf("terminal view should contain %q", want)
		}
	}
}

func TestRenderTerminalFilterChips(t *testing.T) {
	m := testModel(t)
	m.window = filter.Window15m
	m.onlyErrors = true
	m.coord.Select("agent:recon-1", m.store.Snapshot())

	out := m.renderTerminal()
	for _, want := range []string{"last 15m", "agent=recon-1", "errors"} {
		if !strings.Contains(out, want) {
			t.Errorf("terminal view should show active filter %q", want)
		}
	}
}

func TestRenderTerminalNoMatches(t *testing.T) {
	m := testModel(t)
	m.onlyErrors = true
	m.onlySuccess = true

	if out := m.renderTerminal(); !strings.Contains(out, "no tool calls match") {
		t.Error("terminal view should say when filters match nothing")
	}
}

func TestRenderVulns(t *testing.T) {
	m := testModel(t)
	m.reports = []model.VulnReport{
		{ID: "sqli-login", Title: "SQL injection in login", Severity: "critical", File: "agent-1/vulnerabilities/sqli-login.json"},
		{ID: "banner", Title: "Server banner", Severity: "info", File: "agent-1/vulnerabilities/banner.json"},
	}
	out := m.renderVulns()

	if !strings.Contains(out, "SQL injection in login") || !strings.Contains(out, "CRITICAL") {
		t.Error("vulns view should list the report with its badge")
	}

	m.severity = "critical"
	out = m.renderVulns()
	if strings.Contains(out, "Server banner") {
		t.Error("severity filter should hide mismatched reports")
	}
	if !strings.Contains(out, "SQL injection in login") {
		t.Error("severity filter should keep matching reports")
	}
}

func TestRenderStatusBarError(t *testing.T) {
	m := testModel(t)
	m.streamErr = "stream lost: connection reset"

	out := m.renderStatusBar()
	if !strings.Contains(out, "stream lost") || !strings.Contains(out, "dismiss") {
		t.Errorf("status bar should surface the error with a dismiss hint, got %q", out)
	}
}

func TestViewFullRender(t *testing.T) {
	m := testModel(t)
	for v := viewID(0); v < viewCount; v++ {
		m.activeView = v
		out := m.View()
		if out == "" {
			t.Errorf("view %s rendered empty", v)
		}
		if !strings.Contains(out, "agentviz") {
			t.Errorf("view %s missing title bar", v)
		}
	}
}

func TestNextSeverity(t *testing.T) {
	s := filter.All
	seen := map[string]bool{}
	for range severityCycle {
		seen[s] = true
		s = nextSeverity(s)
	}
	if s != filter.All {
		t.Errorf("cycle should wrap to %q, got %q", filter.All, s)
	}
	if len(seen) != len(severityCycle) {
		t.Errorf("expected %d distinct steps, got %d", len(severityCycle), len(seen))
	}
	if nextSeverity("garbage") != filter.All {
		t.Error("unknown value should reset the cycle")
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("short", 10); got != "short" {
		t.Errorf("truncate short = %q", got)
	}
	if got := truncate("a very long string", 10); got != "a very ..." {
		t.Errorf("truncate long = %q", got)
	}
	if got := truncate("abcdef", 2); got != "ab" {
		t.Errorf("truncate tiny = %q", got)
	}
}

func TestShortDuration(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{-time.Second, "0s"},
		{30 * time.Second, "30s"},
		{90 * time.Second, "1m30s"},
		{2*time.Hour + 5*time.Minute, "2h5m"},
	}
	for _, tt := range tests {
		if got := shortDuration(tt.d); got != tt.want {
			t.Errorf("shortDuration(%s) = %q, want %q", tt.d, got, tt.want)
		}
	}
}

func TestPadOrTruncate(t *testing.T) {
	if got := padOrTruncate("ab", 5); got != "ab   " {
		t.Errorf("pad = %q", got)
	}
	if got := padOrTruncate("abcdef", 3); got != "abc" {
		t.Errorf("truncate = %q", got)
	}
}
