// Package server exposes run data over the REST and websocket contract the
// viewer consumes: run listing, snapshots, raw event pages, vulnerability
// reports, and a live event stream per run.
package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gorilla/websocket"

	"agentviz/internal/model"
	"agentviz/internal/runlog"
)

// Server serves one runs directory.
type Server struct {
	runsDir  string
	log      *slog.Logger
	mux      *http.ServeMux
	upgrader websocket.Upgrader
}

// New creates a server over the given runs directory.
func New(runsDir string, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	s := &Server{
		runsDir: runsDir,
		log:     log,
		mux:     http.NewServeMux(),
		upgrader: websocket.Upgrader{
			// The viewer may run anywhere; the data is local and read-only.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
	s.mux.HandleFunc("GET /api/runs", s.handleRuns)
	s.mux.HandleFunc("GET /api/runs/{id}/snapshot", s.handleSnapshot)
	s.mux.HandleFunc("GET /api/runs/{id}/events", s.handleEvents)
	s.mux.HandleFunc("GET /api/runs/{id}/vulnerabilities", s.handleVulnerabilities)
	s.mux.HandleFunc("GET /ws/runs/{id}", s.handleStream)
	return s
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := runlog.ListRuns(s.runsDir)
	if err != nil {
		s.fail(w, err)
		return
	}
	if runs == nil {
		runs = []model.Run{}
	}
	s.writeJSON(w, http.StatusOK, runs)
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	snap, err := runlog.LoadSnapshot(s.runsDir, r.PathValue("id"))
	if err != nil {
		s.fail(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	runID := r.PathValue("id")
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || limit == 0 {
		limit = 200
	}
	events, total, err := runlog.LoadEventsPage(s.runsDir, runID, offset, limit)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"run_id": runID,
		"events": events,
		"offset": offset,
		"limit":  limit,
		"total":  total,
	})
}

func (s *Server) handleVulnerabilities(w http.ResponseWriter, r *http.Request) {
	reports, err := runlog.Vulnerabilities(s.runsDir, r.PathValue("id"))
	if err != nil {
		s.fail(w, err)
		return
	}
	if reports == nil {
		reports = []model.VulnReport{}
	}
	s.writeJSON(w, http.StatusOK, reports)
}

// handleStream upgrades to a websocket and forwards each line appended to
// the run's event log as one text message. No acknowledgement protocol;
// the client must tolerate bursts.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	runID := r.PathValue("id")
	tailer, err := runlog.NewTailer(runlog.EventsPath(s.runsDir, runID))
	if err != nil {
		http.Error(w, "run not found", http.StatusNotFound)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		tailer.Close()
		s.log.Warn("websocket upgrade failed", "run", runID, "err", err)
		return
	}
	defer conn.Close()
	defer tailer.Close()
	s.log.Info("stream attached", "run", runID, "remote", r.RemoteAddr)

	// Read pump: discard inbound frames, detect the client going away.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case line, ok := <-tailer.Lines():
			if !ok {
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, line); err != nil {
				s.log.Info("stream detached", "run", runID, "err", err)
				return
			}
		case <-closed:
			s.log.Info("stream closed by client", "run", runID)
			return
		}
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Warn("encode response", "err", err)
	}
}

func (s *Server) fail(w http.ResponseWriter, err error) {
	if errors.Is(err, runlog.ErrRunNotFound) {
		s.writeJSON(w, http.StatusNotFound, map[string]string{"detail": "run not found"})
		return
	}
	s.log.Error("request failed", "err", err)
	s.writeJSON(w, http.StatusInternalServerError, map[string]string{"detail": err.Error()})
}
