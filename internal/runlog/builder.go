package runlog

import (
	"fmt"
	"sort"
	"time"

	"agentviz/internal/model"
)

type edgeKey struct {
	source, target, relation string
}

type nodeAcc struct {
	firstSeen time.Time
	lastSeen  time.Time
}

func (n *nodeAcc) touch(ts time.Time) {
	if ts.Before(n.firstSeen) {
		n.firstSeen = ts
	}
	if ts.After(n.lastSeen) {
		n.lastSeen = ts
	}
}

// Builder folds an event log into a snapshot. Agents and assets are
// materialized lazily from any event that mentions them; edges are
// deduplicated by (source, target, relation).
type Builder struct {
	runID       string
	agents      map[string]*nodeAcc
	assets      map[string]*nodeAcc
	vulns       map[string]model.Vulnerability
	edges       map[edgeKey]model.Edge
	edgeOrder   []edgeKey
	toolCalls   []model.ToolCall
	lastEventTS *time.Time
	toolCounter int
}

// NewBuilder creates an empty builder for a run.
func NewBuilder(runID string) *Builder {
	return &Builder{
		runID:  runID,
		agents: map[string]*nodeAcc{},
		assets: map[string]*nodeAcc{},
		vulns:  map[string]model.Vulnerability{},
		edges:  map[edgeKey]model.Edge{},
	}
}

// Apply folds one event into the builder state.
func (b *Builder) Apply(ev ParsedEvent) {
	ts := ev.TS
	b.lastEventTS = &ts

	eventType := ev.Raw.Type()
	agentID := ev.Raw.String("agent_id")
	target := ev.Raw.String("target")
	b.touchAgent(agentID, ts)
	b.touchAsset(target, ts)

	switch eventType {
	case "agent_step":
		if agentID != "" && target != "" {
			relation := ev.Raw.String("action")
			if relation == "" {
				relation = ev.Raw.String("tool")
			}
			if relation == "" {
				relation = "agent_step"
			}
			b.addEdge(agentID, target, relation, ev.Raw.String("status"))
		}
	case "vuln_found":
		b.applyVuln(agentID, target, ev.Raw, ts)
	case model.EventToolCall:
		b.applyToolCall(agentID, target, ev.Raw, ts)
	default:
		if agentID != "" && target != "" {
			b.addEdge(agentID, target, eventType, ev.Raw.String("action"))
		}
	}
}

func (b *Builder) applyVuln(agentID, target string, raw model.LiveEvent, ts time.Time) {
	vulnID := raw.String("vuln_id")
	if vulnID == "" {
		vulnID = fmt.Sprintf("vuln-%d", len(b.vulns)+1)
	}
	vuln := model.Vulnerability{
		ID:          vulnID,
		AgentID:     agentID,
		AssetID:     target,
		Severity:    raw.String("severity"),
		Category:    raw.String("category"),
		Description: raw.String("description"),
		TS:          ts,
	}
	b.vulns[vulnID] = vuln
	if agentID != "" {
		b.addEdge(agentID, vulnID, "reported", vuln.Severity)
	}
	if target != "" {
		b.touchAsset(target, ts)
		b.addEdge(vulnID, target, "affects", vuln.Category)
	}
}

func (b *Builder) applyToolCall(agentID, target string, raw model.LiveEvent, ts time.Time) {
	b.toolCounter++
	args := raw.Args()
	inferred := target
	if inferred == "" {
		inferred = inferTarget(args)
	}
	if inferred != "" {
		b.touchAsset(inferred, ts)
		if agentID != "" {
			relation := raw.String("tool")
			if relation == "" {
				relation = "tool_call"
			}
			b.addEdge(agentID, inferred, relation, raw.String("status"))
		}
	}

	// A meta object owns the summary outright, even when it carries none;
	// result_summary is only the fallback for events without meta.
	summary := raw.String("result_summary")
	if meta, ok := raw["meta"].(map[string]any); ok {
		summary, _ = meta["summary"].(string)
	}
	b.toolCalls = append(b.toolCalls, model.ToolCall{
		ID:            fmt.Sprintf("tool-%d", b.toolCounter),
		TS:            ts,
		AgentID:       agentID,
		Tool:          raw.String("tool"),
		Target:        inferred,
		Status:        raw.String("status"),
		Summary:       summary,
		Args:          args,
		ResultSummary: raw.String("result_summary"),
	})
}

// inferTarget pulls a target asset out of tool arguments: args.url first,
// then args.target.
func inferTarget(args map[string]any) string {
	if url, ok := args["url"].(string); ok {
		return url
	}
	if target, ok := args["target"].(string); ok {
		return target
	}
	return ""
}

func (b *Builder) touchAgent(id string, ts time.Time) {
	if id == "" {
		return
	}
	acc, ok := b.agents[id]
	if !ok {
		b.agents[id] = &nodeAcc{firstSeen: ts, lastSeen: ts}
		return
	}
	acc.touch(ts)
}

func (b *Builder) touchAsset(id string, ts time.Time) {
	if id == "" {
		return
	}
	acc, ok := b.assets[id]
	if !ok {
		b.assets[id] = &nodeAcc{firstSeen: ts, lastSeen: ts}
		return
	}
	acc.touch(ts)
}

func (b *Builder) addEdge(source, target, relation, label string) {
	key := edgeKey{source, target, relation}
	if _, ok := b.edges[key]; ok {
		return
	}
	b.edges[key] = model.Edge{
		ID:       fmt.Sprintf("edge-%d", len(b.edges)+1),
		Source:   source,
		Target:   target,
		Relation: relation,
		Label:    label,
	}
	b.edgeOrder = append(b.edgeOrder, key)
}

// Build assembles the snapshot: agents and assets sorted by id,
// vulnerabilities by timestamp, edges in first-seen order.
func (b *Builder) Build() *model.Snapshot {
	snap := &model.Snapshot{
		RunID:           b.runID,
		Agents:          []model.Agent{},
		Assets:          []model.Asset{},
		Vulnerabilities: []model.Vulnerability{},
		Edges:           []model.Edge{},
		ToolCalls:       b.toolCalls,
		LastEventTS:     b.lastEventTS,
	}
	if snap.ToolCalls == nil {
		snap.ToolCalls = []model.ToolCall{}
	}

	for id, acc := range b.agents {
		snap.Agents = append(snap.Agents, model.Agent{
			ID:        id,
			Label:     id,
			FirstSeen: acc.firstSeen,
			LastSeen:  acc.lastSeen,
		})
	}
	sort.Slice(snap.Agents, func(i, j int) bool { return snap.Agents[i].ID < snap.Agents[j].ID })

	for id, acc := range b.assets {
		snap.Assets = append(snap.Assets, model.Asset{
			ID:        id,
			Label:     id,
			URL:       id,
			FirstSeen: acc.firstSeen,
			LastSeen:  acc.lastSeen,
		})
	}
	sort.Slice(snap.Assets, func(i, j int) bool { return snap.Assets[i].ID < snap.Assets[j].ID })

	for _, v := range b.vulns {
		snap.Vulnerabilities = append(snap.Vulnerabilities, v)
	}
	sort.Slice(snap.Vulnerabilities, func(i, j int) bool {
		return snap.Vulnerabilities[i].TS.Before(snap.Vulnerabilities[j].TS)
	})

	for _, key := range b.edgeOrder {
		snap.Edges = append(snap.Edges, b.edges[key])
	}
	return snap
}
