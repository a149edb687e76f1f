// Package model defines the domain records shared by the agentviz client
// and server: runs, agents, assets, vulnerabilities, edges, tool calls, and
// the snapshot/live-event shapes of the wire contract.
//
// Records carry no behavior beyond identity helpers. JSON field names match
// the backend contract exactly.
package model

import (
	"strings"
	"time"
)

// Run identifies one monitored agent session. Immutable once listed.
type Run struct {
	ID         string     `json:"id"`
	CreatedAt  *time.Time `json:"created_at"`
	EventCount int        `json:"event_count"`
}

// Agent is one autonomous agent observed in a run.
type Agent struct {
	ID        string    `json:"id"`
	Label     string    `json:"label"`
	FirstSeen time.Time `json:"first_seen"`
	LastSeen  time.Time `json:"last_seen"`
}

// Asset is a target resource an agent has touched.
type Asset struct {
	ID        string    `json:"id"`
	Label     string    `json:"label"`
	URL       string    `json:"url"`
	FirstSeen time.Time `json:"first_seen"`
	LastSeen  time.Time `json:"last_seen"`
}

// Vulnerability is a finding reported during a run. AgentID and AssetID are
// back-references that may dangle if the referenced entity has not
// materialized yet; consumers must resolve them lazily and tolerate misses.
type Vulnerability struct {
	ID          string    `json:"id"`
	AgentID     string    `json:"agent_id,omitempty"`
	AssetID     string    `json:"asset_id,omitempty"`
	Severity    string    `json:"severity,omitempty"`
	Category    string    `json:"category,omitempty"`
	Description string    `json:"description,omitempty"`
	TS          time.Time `json:"ts"`
}

// Edge links two entities by raw (unprefixed) ids. Source and Target are
// untyped until resolved against the snapshot's id sets.
type Edge struct {
	ID       string `json:"id"`
	Source   string `json:"source"`
	Target   string `json:"target"`
	Relation string `json:"relation"`
	Label    string `json:"label,omitempty"`
}

// ToolCall records one agent action. Ordering key is TS. The ID is unique
// but live-sourced calls carry client-generated ids, so equality across
// sources goes through Key, never ID.
type ToolCall struct {
	ID            string         `json:"id"`
	TS            time.Time      `json:"ts"`
	AgentID       string         `json:"agent_id,omitempty"`
	Tool          string         `json:"tool,omitempty"`
	Target        string         `json:"target,omitempty"`
	Status        string         `json:"status,omitempty"`
	Summary       string         `json:"summary,omitempty"`
	Args          map[string]any `json:"args"`
	ResultSummary string         `json:"result_summary,omitempty"`
}

// CallKey is the natural identity of a tool call, used to deduplicate
// live-stream items against snapshot items.
type CallKey struct {
	TS            int64 // unix nanoseconds
	AgentID       string
	Tool          string
	Target        string
	ResultSummary string
}

// Key returns the dedup key for the call.
func (c ToolCall) Key() CallKey {
	return CallKey{
		TS:            c.TS.UnixNano(),
		AgentID:       c.AgentID,
		Tool:          c.Tool,
		Target:        c.Target,
		ResultSummary: c.ResultSummary,
	}
}

// Snapshot is the authoritative backend-computed state of a run at fetch
// time. A new snapshot replaces the previous one wholesale.
type Snapshot struct {
	RunID           string          `json:"run_id"`
	Agents          []Agent         `json:"agents"`
	Assets          []Asset         `json:"assets"`
	Vulnerabilities []Vulnerability `json:"vulnerabilities"`
	Edges           []Edge          `json:"edges"`
	ToolCalls       []ToolCall      `json:"tool_calls"`
	LastEventTS     *time.Time      `json:"last_event_ts"`
}

// VulnerabilityByID finds a vulnerability by raw id.
func (s *Snapshot) VulnerabilityByID(id string) (Vulnerability, bool) {
	for _, v := range s.Vulnerabilities {
		if v.ID == id {
			return v, true
		}
	}
	return Vulnerability{}, false
}

// VulnReport is the secondary vulnerability view served from the run's
// report files, independent of the snapshot's embedded vulnerabilities.
type VulnReport struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Severity  string    `json:"severity"`
	Timestamp time.Time `json:"timestamp"`
	File      string    `json:"file"`
}

// LiveEvent is one raw message from the event stream. Only type
// "mcp_tool_call" is materialized into a ToolCall; every other type is
// opaque but still implies the graph may have changed.
type LiveEvent map[string]any

// EventToolCall is the only live event type the client consumes directly.
const EventToolCall = "mcp_tool_call"

// Type returns the event's type field, or "" when absent or not a string.
func (e LiveEvent) Type() string {
	return e.String("type")
}

// String returns the named field when it is string-typed, else "".
func (e LiveEvent) String(field string) string {
	if s, ok := e[field].(string); ok {
		return s
	}
	return ""
}

// Args returns the event's args field when it is object-typed, else an
// empty map.
func (e LiveEvent) Args() map[string]any {
	if m, ok := e["args"].(map[string]any); ok {
		return m
	}
	return map[string]any{}
}

// ParseTime parses an RFC3339-ish wire timestamp. Missing or invalid
// values fall back to the given time; naive timestamps are taken as UTC.
func ParseTime(raw string, fallback time.Time) time.Time {
	if raw == "" {
		return fallback
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05", "2006-01-02T15:04:05.999999999"} {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC()
		}
	}
	return fallback
}

// Kind classifies a graph node.
type Kind string

const (
	KindAgent Kind = "agent"
	KindAsset Kind = "asset"
	KindVuln  Kind = "vuln"
)

// NodeID builds the prefixed graph node identifier "<kind>:<rawId>".
func NodeID(kind Kind, rawID string) string {
	return string(kind) + ":" + rawID
}

// SplitNodeID splits a prefixed node id back into kind and raw id.
func SplitNodeID(id string) (Kind, string, bool) {
	kind, raw, ok := strings.Cut(id, ":")
	if !ok || raw == "" {
		return "", "", false
	}
	switch Kind(kind) {
	case KindAgent, KindAsset, KindVuln:
		return Kind(kind), raw, true
	}
	return "", "", false
}

// ResolveKind resolves a raw edge endpoint against the snapshot's id sets.
// Precedence is agent, then vulnerability, then asset. Returns false when
// the id belongs to none of the three collections.
func ResolveKind(s *Snapshot, rawID string) (Kind, bool) {
	for _, a := range s.Agents {
		if a.ID == rawID {
			return KindAgent, true
		}
	}
	for _, v := range s.Vulnerabilities {
		if v.ID == rawID {
			return KindVuln, true
		}
	}
	for _, a := range s.Assets {
		if a.ID == rawID {
			return KindAsset, true
		}
	}
	return "", false
}
