package model

import (
	"testing"
	"time"
)

func TestNodeIDRoundTrip(t *testing.T) {
	for _, kind := range []Kind{KindAgent, KindAsset, KindVuln} {
		id := NodeID(kind, "x-1")
		gotKind, raw, ok := SplitNodeID(id)
		if !ok {
			t.Fatalf("SplitNodeID(%q) failed", id)
		}
		if gotKind != kind || raw != "x-1" {
			t.Errorf("SplitNodeID(%q) = (%s, %s)", id, gotKind, raw)
		}
	}
}

func TestSplitNodeIDRejectsMalformed(t *testing.T) {
	for _, bad := range []string{"", "agent", "agent:", "node:x"} {
		if _, _, ok := SplitNodeID(bad); ok {
			t.Errorf("SplitNodeID(%q) should fail", bad)
		}
	}
	// Raw ids may themselves contain colons.
	kind, raw, ok := SplitNodeID("asset:http://example.com")
	if !ok || kind != KindAsset || raw != "http://example.com" {
		t.Errorf("colon-bearing raw id mishandled: %s %s %v", kind, raw, ok)
	}
}

func TestResolveKindPrecedence(t *testing.T) {
	// The same raw id exists in all three collections; agent wins, then
	// vulnerability, then asset.
	snap := &Snapshot{
		Agents:          []Agent{{ID: "dup"}},
		Vulnerabilities: []Vulnerability{{ID: "dup"}, {ID: "v1"}},
		Assets:          []Asset{{ID: "dup"}, {ID: "v1"}, {ID: "s1"}},
	}

	if kind, ok := ResolveKind(snap, "dup"); !ok || kind != KindAgent {
		t.Errorf("dup should resolve as agent, got %s %v", kind, ok)
	}
	if kind, ok := ResolveKind(snap, "v1"); !ok || kind != KindVuln {
		t.Errorf("v1 should resolve as vuln before asset, got %s %v", kind, ok)
	}
	if kind, ok := ResolveKind(snap, "s1"); !ok || kind != KindAsset {
		t.Errorf("s1 should resolve as asset, got %s %v", kind, ok)
	}
	if _, ok := ResolveKind(snap, "ghost"); ok {
		t.Error("unknown id should not resolve")
	}
}

func TestParseTime(t *testing.T) {
	fallback := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	got := ParseTime("2026-08-28T10:30:00Z", fallback)
	if got.Hour() != 10 || got.Minute() != 30 {
		t.Errorf("RFC3339 parse failed: %s", got)
	}

	// Naive timestamps are taken as UTC.
	got = ParseTime("2026-08-28T10:30:00", fallback)
	if got.Hour() != 10 || got.Location() != time.UTC {
		t.Errorf("naive parse failed: %s", got)
	}

	if got := ParseTime("", fallback); !got.Equal(fallback) {
		t.Errorf("missing ts should fall back, got %s", got)
	}
	if got := ParseTime("not a time", fallback); !got.Equal(fallback) {
		t.Errorf("invalid ts should fall back, got %s", got)
	}
}

func TestToolCallKeyIgnoresID(t *testing.T) {
	ts := time.Now().UTC()
	a := ToolCall{ID: "snapshot-1", TS: ts, AgentID: "a1", Tool: "scan", Target: "s1", ResultSummary: "done"}
	b := ToolCall{ID: "live-uuid", TS: ts, AgentID: "a1", Tool: "scan", Target: "s1", ResultSummary: "done"}
	if a.Key() != b.Key() {
		t.Error("keys should match regardless of id")
	}

	c := b
	c.ResultSummary = "other"
	if a.Key() == c.Key() {
		t.Error("differing result summaries must not collide")
	}
}

func TestLiveEventAccessors(t *testing.T) {
	ev := LiveEvent{
		"type":     "mcp_tool_call",
		"agent_id": 42, // wrong type: omitted
		"tool":     "httpx",
		"args":     map[string]any{"url": "s1"},
	}
	if ev.Type() != EventToolCall {
		t.Errorf("Type() = %q", ev.Type())
	}
	if ev.String("agent_id") != "" {
		t.Error("non-string field should read as empty")
	}
	if ev.String("tool") != "httpx" {
		t.Errorf("tool = %q", ev.String("tool"))
	}
	if ev.Args()["url"] != "s1" {
		t.Errorf("args = %v", ev.Args())
	}

	// Missing or mistyped args default to an empty map, never nil.
	if args := (LiveEvent{"args": "nope"}).Args(); args == nil || len(args) != 0 {
		t.Errorf("mistyped args should yield empty map, got %v", args)
	}
}
