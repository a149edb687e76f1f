// Package filter holds the pure predicates that narrow the visible subset
// of a run: time window, agent, severity, status class, and asset target.
// Each function returns a new slice and never mutates its input.
package filter

import (
	"strings"
	"time"

	"agentviz/internal/model"
)

// All is the sentinel meaning "no restriction" for agent and severity
// filters.
const All = "all"

// SeverityUnknown is substituted for a missing vulnerability severity.
const SeverityUnknown = "unknown"

// Window is a relative time-range filter over tool calls.
type Window int

const (
	WindowAll Window = iota
	Window5m
	Window15m
	Window1h
)

func (w Window) String() string {
	switch w {
	case Window5m:
		return "5m"
	case Window15m:
		return "15m"
	case Window1h:
		return "1h"
	}
	return "all"
}

// Duration returns the window length, or 0 for WindowAll.
func (w Window) Duration() time.Duration {
	switch w {
	case Window5m:
		return 5 * time.Minute
	case Window15m:
		return 15 * time.Minute
	case Window1h:
		return time.Hour
	}
	return 0
}

// Next cycles to the following window, wrapping back to "all".
func (w Window) Next() Window {
	switch w {
	case WindowAll:
		return Window5m
	case Window5m:
		return Window15m
	case Window15m:
		return Window1h
	}
	return WindowAll
}

// ByTime keeps calls with ts >= now-window. WindowAll is a no-op, not a
// zero-length window.
func ByTime(calls []model.ToolCall, w Window, now time.Time) []model.ToolCall {
	if w == WindowAll {
		return calls
	}
	cutoff := now.Add(-w.Duration())
	out := make([]model.ToolCall, 0, len(calls))
	for _, c := range calls {
		if !c.TS.Before(cutoff) {
			out = append(out, c)
		}
	}
	return out
}

// ByAgent keeps calls whose agent_id equals agentID. The All sentinel
// matches everything.
func ByAgent(calls []model.ToolCall, agentID string) []model.ToolCall {
	if agentID == All || agentID == "" {
		return calls
	}
	out := make([]model.ToolCall, 0, len(calls))
	for _, c := range calls {
		if c.AgentID == agentID {
			out = append(out, c)
		}
	}
	return out
}

// Severity normalizes a vulnerability severity for comparison: lower case,
// missing mapped to SeverityUnknown.
func Severity(raw string) string {
	s := strings.ToLower(strings.TrimSpace(raw))
	if s == "" {
		return SeverityUnknown
	}
	return s
}

// BySeverity keeps vulnerabilities whose normalized severity equals the
// given value. The All sentinel matches everything.
func BySeverity(vulns []model.Vulnerability, severity string) []model.Vulnerability {
	if severity == All || severity == "" {
		return vulns
	}
	want := Severity(severity)
	out := make([]model.Vulnerability, 0, len(vulns))
	for _, v := range vulns {
		if Severity(v.Severity) == want {
			out = append(out, v)
		}
	}
	return out
}

// StatusClass classifies a tool call outcome.
type StatusClass int

const (
	// StatusNone means the call carries no status at all.
	StatusNone StatusClass = iota
	StatusSuccess
	StatusError
)

// ClassifyStatus maps a raw status string to its class. A non-empty status
// that is not "ok" or "success" (case-insensitive) is an error.
func ClassifyStatus(raw string) StatusClass {
	s := strings.ToLower(strings.TrimSpace(raw))
	switch s {
	case "":
		return StatusNone
	case "ok", "success":
		return StatusSuccess
	}
	return StatusError
}

// ByStatus applies the two independent outcome toggles. Each active toggle
// restricts the result to its class; both active yields the intersection,
// which is empty (a contradictory combination is tolerated, not rejected).
// Calls without a status fail either toggle.
func ByStatus(calls []model.ToolCall, onlyErrors, onlySuccess bool) []model.ToolCall {
	if !onlyErrors && !onlySuccess {
		return calls
	}
	out := make([]model.ToolCall, 0, len(calls))
	for _, c := range calls {
		class := ClassifyStatus(c.Status)
		if onlyErrors && class != StatusError {
			continue
		}
		if onlySuccess && class != StatusSuccess {
			continue
		}
		out = append(out, c)
	}
	return out
}

// ByTarget keeps calls whose target, or whose args.url, equals the given
// asset identifier. An empty id is a no-op. This is the cross-filter that
// narrows the terminal log from a graph asset selection.
func ByTarget(calls []model.ToolCall, assetID string) []model.ToolCall {
	if assetID == "" {
		return calls
	}
	out := make([]model.ToolCall, 0, len(calls))
	for _, c := range calls {
		if c.Target == assetID {
			out = append(out, c)
			continue
		}
		if url, ok := c.Args["url"].(string); ok && url == assetID {
			out = append(out, c)
		}
	}
	return out
}
