package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"

	"agentviz/internal/filter"
	"agentviz/internal/model"
)

// --- Styles ---

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#7C3AED")).
			Background(lipgloss.Color("#1E1E2E")).
			Padding(0, 1)

	tabActiveStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#CDD6F4")).
			Background(lipgloss.Color("#7C3AED")).
			Padding(0, 1)

	tabInactiveStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("#6C7086")).
				Background(lipgloss.Color("#313244")).
				Padding(0, 1)

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#89B4FA"))

	agentStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#A6E3A1"))

	assetStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#89B4FA"))

	vulnStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#F38BA8"))

	okStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("#A6E3A1")).
		Bold(true)

	errStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#F38BA8")).
			Bold(true)

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#6C7086"))

	highlightStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#F9E2AF")).
			Bold(true)

	statusBarStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#CDD6F4")).
			Background(lipgloss.Color("#1E1E2E"))
)

// severityStyles colours vulnerability badges by normalized severity.
var severityStyles = map[string]lipgloss.Style{
	"critical": lipgloss.NewStyle().Foreground(lipgloss.Color("#F38BA8")).Bold(true),
	"high":     lipgloss.NewStyle().Foreground(lipgloss.Color("#FAB387")).Bold(true),
	"medium":   lipgloss.NewStyle().Foreground(lipgloss.Color("#F9E2AF")),
	"low":      lipgloss.NewStyle().Foreground(lipgloss.Color("#89B4FA")),
	"info":     lipgloss.NewStyle().Foreground(lipgloss.Color("#6C7086")),
}

func severityBadge(sev string) string {
	s := filter.Severity(sev)
	if style, ok := severityStyles[s]; ok {
		return style.Render(strings.ToUpper(s))
	}
	return dimStyle.Render(strings.ToUpper(s))
}

// --- View rendering ---

func (m uiModel) View() string {
	if m.width == 0 {
		return "Loading..."
	}

	var b strings.Builder

	b.WriteString(m.renderTitleBar())
	b.WriteRune('\n')
	b.WriteString(m.renderTabBar())
	b.WriteRune('\n')
	b.WriteRune('\n')

	contentHeight := m.height - 5 // title + tabs + status + padding
	if m.showHelp {
		contentHeight -= 3
	}

	var content string

	// Split-pane: Graph + Terminal side by side on wide terminals.
	if m.activeView == viewGraph && m.width >= 120 && m.activeRun != "" {
		leftWidth := m.width/2 - 1
		rightWidth := m.width - leftWidth - 3

		left := m.renderGraph()
		right := m.renderTerminal()
		content = renderSplitPane(left, right, leftWidth, rightWidth, contentHeight)
	} else {
		switch m.activeView {
		case viewRuns:
			content = m.renderRuns()
		case viewGraph:
			content = m.renderGraph()
		case viewTerminal:
			content = m.renderTerminal()
		case viewVulns:
			content = m.renderVulns()
		}

		// Apply scroll using a local variable; View() is a value receiver.
		lines := strings.Split(content, "\n")
		scrollPos := m.scrollPos
		if scrollPos >= len(lines) {
			scrollPos = max(0, len(lines)-1)
		}
		if scrollPos > 0 && scrollPos < len(lines) {
			lines = lines[scrollPos:]
		}
		if len(lines) > contentHeight {
			lines = lines[:contentHeight]
		}
		content = strings.Join(lines, "\n")
	}

	content = truncateLines(content, m.width)
	b.WriteString(content)

	// Pad to fill screen.
	rendered := strings.Count(b.String(), "\n")
	for rendered < m.height-2 {
		b.WriteRune('\n')
		rendered++
	}

	if m.showHelp {
		b.WriteString(m.help.View(keys))
	} else {
		b.WriteString(m.renderStatusBar())
	}

	return b.String()
}

func (m uiModel) renderTitleBar() string {
	title := titleStyle.Render("agentviz")
	info := m.cfg.Client.BaseURL
	if m.activeRun != "" {
		info = fmt.Sprintf("run %s | %s", m.activeRun, info)
	}
	stats := dimStyle.Render(info)
	gap := strings.Repeat(" ", max(0, m.width-lipgloss.Width(title)-lipgloss.Width(stats)-2))
	return title + gap + stats
}

func (m uiModel) renderTabBar() string {
	var tabs []string
	for i := viewID(0); i < viewCount; i++ {
		if i == m.activeView {
			tabs = append(tabs, tabActiveStyle.Render(i.String()))
		} else {
			tabs = append(tabs, tabInactiveStyle.Render(i.String()))
		}
	}
	return strings.Join(tabs, " ")
}

// activeError returns the most recent error to surface, or "".
func (m uiModel) activeError() string {
	switch {
	case m.store.Err() != "":
		return m.store.Err()
	case m.streamErr != "":
		return m.streamErr
	case m.runsErr != "":
		return m.runsErr
	case m.reportsErr != "":
		return m.reportsErr
	}
	return ""
}

func (m uiModel) renderStatusBar() string {
	if errMsg := m.activeError(); errMsg != "" {
		left := " " + errStyle.Render(truncate(errMsg, max(20, m.width-24)))
		right := dimStyle.Render("x: dismiss ")
		gap := strings.Repeat(" ", max(0, m.width-lipgloss.Width(left)-lipgloss.Width(right)))
		return statusBarStyle.Render(left + gap + right)
	}

	left := " " + contextHelp(m.activeView)
	right := fmt.Sprintf("refreshed %s ago ", time.Since(m.lastRefresh).Truncate(time.Second))
	if m.store.Loading() {
		right = m.spin.View() + " " + right
	}
	gap := strings.Repeat(" ", max(0, m.width-lipgloss.Width(left)-lipgloss.Width(right)))
	return statusBarStyle.Render(left + gap + right)
}

// --- Runs view ---

func (m uiModel) renderRuns() string {
	var b strings.Builder
	b.WriteString(headerStyle.Render("Runs"))
	b.WriteRune('\n')

	if len(m.runs) == 0 {
		b.WriteString(dimStyle.Render("  (no runs found)"))
		b.WriteRune('\n')
		return b.String()
	}

	b.WriteString(dimStyle.Render(fmt.Sprintf("  %-28s %-10s %s", "ID", "Events", "Started")))
	b.WriteRune('\n')
	for i, r := range m.runs {
		cursor := "  "
		if i == m.cursor && m.activeView == viewRuns {
			cursor = "> "
		}
		started := "-"
		if r.CreatedAt != nil {
			started = shortDuration(time.Since(*r.CreatedAt)) + " ago"
		}
		line := fmt.Sprintf("%s%-28s %-10d %s", cursor, truncate(r.ID, 28), r.EventCount, started)
		if r.ID == m.activeRun {
			b.WriteString(okStyle.Render(line))
		} else if i == m.cursor {
			b.WriteString(lipgloss.NewStyle().Bold(true).Render(line))
		} else {
			b.WriteString(line)
		}
		b.WriteRune('\n')
	}
	return b.String()
}

// --- Graph view ---

func nodeStyle(kind model.Kind) lipgloss.Style {
	switch kind {
	case model.KindAgent:
		return agentStyle
	case model.KindAsset:
		return assetStyle
	}
	return vulnStyle
}

func (m uiModel) renderGraph() string {
	var b strings.Builder
	view := m.graphView()

	title := "Graph"
	if m.severity != filter.All {
		title += dimStyle.Render(" [severity: "+m.severity+"]")
	}
	b.WriteString(headerStyle.Render(title))
	b.WriteRune('\n')

	if m.activeRun == "" {
		b.WriteString(dimStyle.Render("  (no run selected — pick one in the Runs view)"))
		b.WriteRune('\n')
		return b.String()
	}
	if len(view.Nodes) == 0 {
		b.WriteString(dimStyle.Render("  (no entities yet)"))
		b.WriteRune('\n')
		return b.String()
	}

	var lastKind model.Kind
	for i, n := range view.Nodes {
		if n.Kind != lastKind {
			lastKind = n.Kind
			b.WriteRune('\n')
			b.WriteString(headerStyle.Render("  " + sectionTitle(n.Kind)))
			b.WriteRune('\n')
		}

		cursor := "  "
		if i == m.cursor && m.activeView == viewGraph {
			cursor = "> "
		}
		marker := "  "
		if n.Highlighted {
			marker = highlightStyle.Render("● ")
		}

		label := n.Label
		if label == "" {
			label = n.RawID
		}
		line := fmt.Sprintf("  %s%s%-32s", cursor, marker, truncate(label, 32))
		style := nodeStyle(n.Kind)
		if n.Faded {
			style = dimStyle
		}
		b.WriteString(style.Render(line))
		if n.Kind == model.KindVuln {
			b.WriteString(" ")
			b.WriteString(severityBadge(n.Severity))
		}
		b.WriteRune('\n')
	}

	b.WriteRune('\n')
	b.WriteString(headerStyle.Render("  Edges"))
	b.WriteRune('\n')
	if len(view.Edges) == 0 {
		b.WriteString(dimStyle.Render("    (none)"))
		b.WriteRune('\n')
		return b.String()
	}
	for _, e := range view.Edges {
		line := fmt.Sprintf("    %s -[%s]-> %s", e.Source, e.Relation, e.Target)
		if e.Label != "" {
			line += dimStyle.Render(" (" + e.Label + ")")
		}
		b.WriteString(dimStyle.Render(line))
		b.WriteRune('\n')
	}
	return b.String()
}

func sectionTitle(kind model.Kind) string {
	switch kind {
	case model.KindAgent:
		return "Agents"
	case model.KindAsset:
		return "Assets"
	}
	return "Vulnerabilities"
}

// --- Terminal view ---

func (m uiModel) renderTerminal() string {
	var b strings.Builder

	sel := m.coord.State()
	var active []string
	if m.window != filter.WindowAll {
		active = append(active, "last "+m.window.String())
	}
	if sel.AgentFilter != filter.All {
		active = append(active, "agent="+sel.AgentFilter)
	}
	if sel.AssetTarget != "" {
		active = append(active, "target="+sel.AssetTarget)
	}
	if m.onlyErrors {
		active = append(active, "errors")
	}
	if m.onlySuccess {
		active = append(active, "success")
	}

	b.WriteString(headerStyle.Render("Terminal"))
	if len(active) > 0 {
		b.WriteString(" ")
		b.WriteString(highlightStyle.Render("[" + strings.Join(active, ", ") + "]"))
	}
	b.WriteRune('\n')

	if m.activeRun == "" {
		b.WriteString(dimStyle.Render("  (no run selected)"))
		b.WriteRune('\n')
		return b.String()
	}

	rows := m.terminalRows()
	if len(rows) == 0 {
		b.WriteString(dimStyle.Render("  (no tool calls match)"))
		b.WriteRune('\n')
		return b.String()
	}

	for i, row := range rows {
		cursor := "  "
		if i == m.cursor && m.activeView == viewTerminal {
			cursor = "> "
		}
		c := row.Call
		ts := dimStyle.Render(c.TS.Format("15:04:05"))
		agent := agentStyle.Render(fmt.Sprintf("%-12s", truncate(orDash(c.AgentID), 12)))
		tool := fmt.Sprintf("%-18s", truncate(orDash(c.Tool), 18))

		var status string
		switch row.Class {
		case filter.StatusSuccess:
			status = okStyle.Render(fmt.Sprintf("%-8s", c.Status))
		case filter.StatusError:
			status = errStyle.Render(fmt.Sprintf("%-8s", c.Status))
		default:
			status = dimStyle.Render(fmt.Sprintf("%-8s", "-"))
		}

		detail := c.Summary
		if detail == "" {
			detail = c.ResultSummary
		}
		line := fmt.Sprintf("%s%s %s %s %s %s %s",
			cursor, ts, agent, tool, status,
			assetStyle.Render(truncate(orDash(c.Target), 28)),
			dimStyle.Render(truncate(detail, 60)))
		b.WriteString(line)
		b.WriteRune('\n')
	}
	return b.String()
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// --- Vulns view ---

// renderVulns shows the report-file vulnerability view, narrowed by the
// same severity filter the graph uses.
func (m uiModel) renderVulns() string {
	var b strings.Builder
	title := "Vulnerability Reports"
	if m.severity != filter.All {
		title += dimStyle.Render(" [severity: "+m.severity+"]")
	}
	b.WriteString(headerStyle.Render(title))
	b.WriteRune('\n')

	if m.activeRun == "" {
		b.WriteString(dimStyle.Render("  (no run selected)"))
		b.WriteRune('\n')
		return b.String()
	}

	shown := 0
	for i, r := range m.reports {
		if m.severity != filter.All && filter.Severity(r.Severity) != filter.Severity(m.severity) {
			continue
		}
		cursor := "  "
		if i == m.cursor && m.activeView == viewVulns {
			cursor = "> "
		}
		b.WriteString(fmt.Sprintf("%s%s %-48s %s\n",
			cursor,
			severityBadge(r.Severity),
			truncate(r.Title, 48),
			dimStyle.Render(r.File)))
		shown++
	}
	if shown == 0 {
		b.WriteString(dimStyle.Render("  (no reports)"))
		b.WriteRune('\n')
	}
	return b.String()
}

// --- Split-pane rendering ---

// renderSplitPane renders two content panes side by side with a vertical
// separator.
func renderSplitPane(left, right string, leftWidth, rightWidth, maxHeight int) string {
	leftLines := strings.Split(left, "\n")
	rightLines := strings.Split(right, "\n")

	maxLines := max(len(leftLines), len(rightLines))
	if maxLines > maxHeight {
		maxLines = maxHeight
	}
	for len(leftLines) < maxLines {
		leftLines = append(leftLines, "")
	}
	for len(rightLines) < maxLines {
		rightLines = append(rightLines, "")
	}

	sep := dimStyle.Render("│")
	var b strings.Builder
	for i := 0; i < maxLines; i++ {
		l := padOrTruncate(leftLines[i], leftWidth)
		r := ansi.Truncate(rightLines[i], rightWidth, "")
		b.WriteString(l)
		b.WriteString(" ")
		b.WriteString(sep)
		b.WriteString(" ")
		b.WriteString(r)
		b.WriteRune('\n')
	}
	return b.String()
}

// padOrTruncate pads or truncates a styled line to the target visible width.
func padOrTruncate(styled string, width int) string {
	visWidth := lipgloss.Width(styled)
	if visWidth > width {
		return ansi.Truncate(styled, width, "")
	}
	return styled + strings.Repeat(" ", width-visWidth)
}

// --- Helpers ---

// truncateLines truncates each line in content to at most width visible
// characters, preserving ANSI escape codes.
func truncateLines(content string, width int) string {
	if width <= 0 {
		return content
	}
	lines := strings.Split(content, "\n")
	for i, line := range lines {
		if lipgloss.Width(line) > width {
			lines[i] = ansi.Truncate(line, width, "")
		}
	}
	return strings.Join(lines, "\n")
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	if n <= 3 {
		return s[:n]
	}
	return s[:n-3] + "..."
}

func shortDuration(d time.Duration) string {
	if d < 0 {
		return "0s"
	}
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	return fmt.Sprintf("%dh%dm", int(d.Hours()), int(d.Minutes())%60)
}
