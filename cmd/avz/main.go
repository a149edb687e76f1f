// avz is a live terminal viewer for autonomous-agent runs.
//
// It talks to an agentviz backend, renders the run as an entity graph
// (agents, assets, vulnerabilities) alongside a terminal log of tool
// calls, and keeps both in sync by merging periodic snapshot fetches with
// the run's live event stream.
//
// Usage:
//
//	avz                          # connect to the default backend
//	avz --server http://host:p   # use a specific backend
//	avz --config avz.yaml        # load settings from a YAML file
//	avz --run <id>               # open a run directly
//	avz --view terminal          # start in a specific view
//	avz --version                # print version and exit
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"agentviz/internal/api"
	"agentviz/internal/config"
	"agentviz/internal/filter"
	"agentviz/internal/ingest"
	"agentviz/internal/model"
	"agentviz/internal/project"
	"agentviz/internal/selection"
	"agentviz/internal/store"
)

// Version is set via ldflags at build time (e.g. -X main.Version=v0.1.0).
var Version = "dev"

// parseViewFlag maps a --view flag string to a viewID.
func parseViewFlag(s string) (viewID, error) {
	switch strings.ToLower(s) {
	case "runs", "r":
		return viewRuns, nil
	case "graph", "g":
		return viewGraph, nil
	case "terminal", "t":
		return viewTerminal, nil
	case "vulns", "v":
		return viewVulns, nil
	default:
		return 0, fmt.Errorf("unknown view %q (valid: runs, graph, terminal, vulns)", s)
	}
}

func main() {
	configPath := flag.String("config", "", "path to avz.yaml (default: built-in settings)")
	serverFlag := flag.String("server", "", "backend base URL (overrides config)")
	runFlag := flag.String("run", "", "open a specific run on startup")
	viewFlag := flag.String("view", "", "start in specific view (runs|graph|terminal|vulns)")
	refreshDur := flag.Duration("refresh", 0, "polling fallback interval (overrides config)")
	versionFlag := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *versionFlag {
		fmt.Printf("avz %s\n", Version)
		os.Exit(0)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "avz: %v\n", err)
		os.Exit(1)
	}
	if *serverFlag != "" {
		cfg.Client.BaseURL = *serverFlag
	}
	if *refreshDur > 0 {
		cfg.Client.Refresh = *refreshDur
	}

	client := api.New(cfg.Client.BaseURL)
	st := store.New(client)
	ing := ingest.New(ingest.WebsocketDialer{}, st, client.StreamURL)
	ing.SetDebounce(cfg.Client.Debounce)
	coord := selection.New()

	m := newModel(cfg, client, st, ing, coord)
	if *viewFlag != "" {
		v, err := parseViewFlag(*viewFlag)
		if err != nil {
			fmt.Fprintf(os.Stderr, "avz: %v\n", err)
			os.Exit(1)
		}
		m.activeView = v
	}
	m.startRun = *runFlag

	p := tea.NewProgram(m, tea.WithAltScreen())

	// Bridge background state changes into the TUI event loop.
	unsubStore := st.Subscribe(func() { p.Send(storeChangedMsg{}) })
	defer unsubStore()
	unsubSel := coord.Subscribe(func() { p.Send(selectionChangedMsg{}) })
	defer unsubSel()
	ing.OnError = func(runID string, err error) {
		p.Send(streamLostMsg{runID: runID, err: err})
	}

	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "avz: %v\n", err)
		os.Exit(1)
	}
}

// --- Messages ---

type storeChangedMsg struct{}

type selectionChangedMsg struct{}

type runsLoadedMsg struct {
	runs []model.Run
	err  error
}

type attachedMsg struct {
	runID string
	sub   *ingest.Subscription
	err   error
}

type streamLostMsg struct {
	runID string
	err   error
}

type refreshDoneMsg struct{}

type reportsLoadedMsg struct {
	runID   string
	reports []model.VulnReport
	err     error
}

type tickMsg struct{}

// --- Key bindings ---

type keyMap struct {
	Quit     key.Binding
	Tab      key.Binding
	Refresh  key.Binding
	Up       key.Binding
	Down     key.Binding
	Enter    key.Binding
	Esc      key.Binding
	Window   key.Binding
	Errors   key.Binding
	Success  key.Binding
	Severity key.Binding
	Dismiss  key.Binding
	Help     key.Binding
}

var keys = keyMap{
	Quit:     key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
	Tab:      key.NewBinding(key.WithKeys("tab"), key.WithHelp("tab", "next view")),
	Refresh:  key.NewBinding(key.WithKeys("R"), key.WithHelp("R", "refresh")),
	Up:       key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("k/up", "up")),
	Down:     key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("j/down", "down")),
	Enter:    key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "select")),
	Esc:      key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "deselect")),
	Window:   key.NewBinding(key.WithKeys("w"), key.WithHelp("w", "time window")),
	Errors:   key.NewBinding(key.WithKeys("e"), key.WithHelp("e", "only errors")),
	Success:  key.NewBinding(key.WithKeys("o"), key.WithHelp("o", "only success")),
	Severity: key.NewBinding(key.WithKeys("s"), key.WithHelp("s", "severity")),
	Dismiss:  key.NewBinding(key.WithKeys("x"), key.WithHelp("x", "dismiss error")),
	Help:     key.NewBinding(key.WithKeys("?"), key.WithHelp("?", "help")),
}

// viewKeys maps single keys to views for fast navigation.
var viewKeys = map[string]viewID{
	"r": viewRuns,
	"g": viewGraph,
	"t": viewTerminal,
	"v": viewVulns,
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Tab, k.Enter, k.Refresh, k.Help, k.Quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Tab, k.Up, k.Down, k.Enter, k.Esc},
		{k.Window, k.Errors, k.Success, k.Severity},
		{k.Refresh, k.Dismiss, k.Help, k.Quit},
	}
}

// contextHelp returns help text appropriate for the current view.
func contextHelp(v viewID) string {
	switch v {
	case viewRuns:
		return "j/k: select run | enter: open | r/g/t/v: views | ?: help | q: quit"
	case viewGraph:
		return "j/k: select node | enter: focus | esc: clear | s: severity | r/g/t/v: views | q: quit"
	case viewTerminal:
		return "j/k: select row | enter: highlight | w: window | e/o: outcome | esc: clear | q: quit"
	default:
		return "j/k: scroll | r/g/t/v: views | tab: next | ?: help | q: quit"
	}
}

// --- Views ---

type viewID int

const (
	viewRuns viewID = iota
	viewGraph
	viewTerminal
	viewVulns
	viewCount // sentinel
)

func (v viewID) String() string {
	switch v {
	case viewRuns:
		return "Runs"
	case viewGraph:
		return "Graph"
	case viewTerminal:
		return "Terminal"
	case viewVulns:
		return "Vulns"
	}
	return "?"
}

// severityCycle is the order the s key steps through.
var severityCycle = []string{filter.All, "critical", "high", "medium", "low", "info", filter.SeverityUnknown}

// --- Model ---

type uiModel struct {
	cfg    config.Config
	client *api.Client
	store  *store.Store
	ing    *ingest.Ingester
	coord  *selection.Coordinator

	runs        []model.Run
	runsErr     string
	activeRun   string
	startRun    string // --run flag, opened once the run list arrives
	sub         *ingest.Subscription
	streamErr   string
	reports     []model.VulnReport
	reportsErr  string
	lastRefresh time.Time

	activeView viewID
	width      int
	height     int
	cursor     int // node/row cursor within the active view
	scrollPos  int

	window      filter.Window
	onlyErrors  bool
	onlySuccess bool
	severity    string

	help     help.Model
	spin     spinner.Model
	showHelp bool
}

func newModel(cfg config.Config, client *api.Client, st *store.Store, ing *ingest.Ingester, coord *selection.Coordinator) uiModel {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	return uiModel{
		cfg:         cfg,
		client:      client,
		store:       st,
		ing:         ing,
		coord:       coord,
		severity:    filter.All,
		help:        help.New(),
		spin:        sp,
		lastRefresh: time.Now(),
	}
}

func (m uiModel) Init() tea.Cmd {
	return tea.Batch(m.loadRunsCmd(), m.spin.Tick, tickEvery())
}

func tickEvery() tea.Cmd {
	return tea.Tick(time.Second, func(time.Time) tea.Msg {
		return tickMsg{}
	})
}

// --- Commands ---

func (m uiModel) loadRunsCmd() tea.Cmd {
	client := m.client
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		runs, err := client.Runs(ctx)
		return runsLoadedMsg{runs: runs, err: err}
	}
}

func (m uiModel) refreshCmd() tea.Cmd {
	st := m.store
	return func() tea.Msg {
		st.Refresh(context.Background())
		return refreshDoneMsg{}
	}
}

func (m uiModel) attachCmd(runID string) tea.Cmd {
	ing := m.ing
	return func() tea.Msg {
		sub, err := ing.Attach(runID)
		return attachedMsg{runID: runID, sub: sub, err: err}
	}
}

func (m uiModel) loadReportsCmd(runID string) tea.Cmd {
	client := m.client
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		reports, err := client.Vulnerabilities(ctx, runID)
		return reportsLoadedMsg{runID: runID, reports: reports, err: err}
	}
}

// openRun switches every stateful component to the given run: the old
// stream is detached (closing its connection and pending timer), the store
// is re-seeded, and the coordinator returns to its initial state.
func (m *uiModel) openRun(runID string) tea.Cmd {
	if m.sub != nil {
		m.sub.Close()
		m.sub = nil
	}
	m.activeRun = runID
	m.streamErr = ""
	m.reports = nil
	m.reportsErr = ""
	m.cursor = 0
	m.scrollPos = 0
	m.store.SetRun(runID)
	m.coord.Reset()
	m.activeView = viewGraph
	return tea.Batch(m.refreshCmd(), m.attachCmd(runID), m.loadReportsCmd(runID))
}

func (m uiModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.updateKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width

	case runsLoadedMsg:
		if msg.err != nil {
			m.runsErr = msg.err.Error()
			return m, nil
		}
		m.runsErr = ""
		m.runs = msg.runs
		m.clampCursor()
		// Honor --run once the listing confirms the id exists.
		if m.startRun != "" {
			want := m.startRun
			m.startRun = ""
			for _, r := range m.runs {
				if r.ID == want {
					cmd := m.openRun(want)
					return m, cmd
				}
			}
		}

	case attachedMsg:
		if msg.runID != m.activeRun {
			// Raced a run switch; drop the stale stream.
			if msg.sub != nil {
				msg.sub.Close()
			}
			return m, nil
		}
		if msg.err != nil {
			m.streamErr = "stream: " + msg.err.Error()
			return m, nil
		}
		m.sub = msg.sub

	case streamLostMsg:
		if msg.runID == m.activeRun {
			m.streamErr = "stream lost: " + msg.err.Error()
		}

	case reportsLoadedMsg:
		if msg.runID != m.activeRun {
			return m, nil
		}
		if msg.err != nil {
			m.reportsErr = msg.err.Error()
			return m, nil
		}
		m.reportsErr = ""
		m.reports = msg.reports

	case refreshDoneMsg:
		m.lastRefresh = time.Now()

	case storeChangedMsg, selectionChangedMsg:
		m.clampCursor()

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		return m, cmd

	case tickMsg:
		// Polling fallback: refresh even if the stream stays quiet.
		if m.activeRun != "" && time.Since(m.lastRefresh) >= m.cfg.Client.Refresh && !m.store.Loading() {
			return m, tea.Batch(tickEvery(), m.refreshCmd())
		}
		return m, tickEvery()
	}

	return m, nil
}

func (m uiModel) updateKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if v, ok := viewKeys[msg.String()]; ok {
		m.activeView = v
		m.cursor = 0
		m.scrollPos = 0
		return m, nil
	}

	switch {
	case key.Matches(msg, keys.Quit):
		if m.sub != nil {
			m.sub.Close()
		}
		return m, tea.Quit

	case key.Matches(msg, keys.Tab):
		m.activeView = (m.activeView + 1) % viewCount
		m.cursor = 0
		m.scrollPos = 0

	case key.Matches(msg, keys.Refresh):
		if m.activeView == viewRuns || m.activeRun == "" {
			return m, m.loadRunsCmd()
		}
		return m, m.refreshCmd()

	case key.Matches(msg, keys.Up):
		if m.cursor > 0 {
			m.cursor--
		} else if m.scrollPos > 0 {
			m.scrollPos--
		}

	case key.Matches(msg, keys.Down):
		m.cursor++
		m.clampCursor()

	case key.Matches(msg, keys.Enter):
		return m.selectCurrent()

	case key.Matches(msg, keys.Esc):
		m.coord.Deselect()

	case key.Matches(msg, keys.Window):
		if m.activeView == viewTerminal {
			m.window = m.window.Next()
			m.cursor = 0
		}

	case key.Matches(msg, keys.Errors):
		if m.activeView == viewTerminal {
			m.onlyErrors = !m.onlyErrors
			m.cursor = 0
		}

	case key.Matches(msg, keys.Success):
		if m.activeView == viewTerminal {
			m.onlySuccess = !m.onlySuccess
			m.cursor = 0
		}

	case key.Matches(msg, keys.Severity):
		if m.activeView == viewGraph || m.activeView == viewVulns {
			m.severity = nextSeverity(m.severity)
		}

	case key.Matches(msg, keys.Dismiss):
		m.store.ClearErr()
		m.streamErr = ""
		m.runsErr = ""

	case key.Matches(msg, keys.Help):
		m.showHelp = !m.showHelp
	}

	return m, nil
}

// selectCurrent applies enter in the active view: open a run, focus a
// graph node, or highlight from a terminal row.
func (m uiModel) selectCurrent() (tea.Model, tea.Cmd) {
	switch m.activeView {
	case viewRuns:
		if m.cursor < len(m.runs) {
			cmd := m.openRun(m.runs[m.cursor].ID)
			return m, cmd
		}
	case viewGraph:
		nodes := m.graphView().Nodes
		if m.cursor < len(nodes) {
			m.coord.Select(nodes[m.cursor].ID, m.store.Snapshot())
		}
	case viewTerminal:
		rows := m.terminalRows()
		if m.cursor < len(rows) {
			m.coord.SelectToolCall(rows[m.cursor].Call)
		}
	}
	return m, nil
}

func (m *uiModel) clampCursor() {
	var n int
	switch m.activeView {
	case viewRuns:
		n = len(m.runs)
	case viewGraph:
		n = len(m.graphView().Nodes)
	case viewTerminal:
		n = len(m.terminalRows())
	case viewVulns:
		n = len(m.reports)
	}
	if n == 0 {
		m.cursor = 0
		return
	}
	if m.cursor >= n {
		m.cursor = n - 1
	}
}

func nextSeverity(current string) string {
	for i, s := range severityCycle {
		if s == current {
			return severityCycle[(i+1)%len(severityCycle)]
		}
	}
	return filter.All
}

// graphView projects the current snapshot for rendering.
func (m uiModel) graphView() project.GraphView {
	return project.Graph(m.store.Snapshot(), m.severity, m.coord.State().Highlight)
}

// terminalRows projects the tool-call list through the active filters.
func (m uiModel) terminalRows() []project.Row {
	sel := m.coord.State()
	return project.Terminal(m.store.Calls(), project.Criteria{
		Window:      m.window,
		AgentID:     sel.AgentFilter,
		AssetTarget: sel.AssetTarget,
		OnlyErrors:  m.onlyErrors,
		OnlySuccess: m.onlySuccess,
	}, time.Now().UTC())
}
