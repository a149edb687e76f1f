// Package runlog reads agent run directories: discovery, the append-only
// events.jsonl log, snapshot derivation, and vulnerability report files.
//
// A runs directory holds one subdirectory per run; a run is any
// subdirectory containing an events.jsonl file.
package runlog

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"agentviz/internal/model"
)

// EventsFileName is the per-run append-only event log.
const EventsFileName = "events.jsonl"

// ErrRunNotFound reports a run id with no event log on disk.
var ErrRunNotFound = errors.New("run not found")

// EventsPath returns the event log path for a run.
func EventsPath(runsDir, runID string) string {
	return filepath.Join(runsDir, runID, EventsFileName)
}

// ListRuns discovers runs under runsDir, newest first by directory mtime.
// A missing runs directory yields an empty list, not an error.
func ListRuns(runsDir string) ([]model.Run, error) {
	entries, err := os.ReadDir(runsDir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read runs dir %s: %w", runsDir, err)
	}

	var runs []model.Run
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		eventsPath := EventsPath(runsDir, entry.Name())
		count, err := countLines(eventsPath)
		if err != nil {
			continue // not a run directory
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		created := info.ModTime().UTC()
		runs = append(runs, model.Run{
			ID:         entry.Name(),
			CreatedAt:  &created,
			EventCount: count,
		})
	}
	sort.Slice(runs, func(i, j int) bool {
		return runs[i].CreatedAt.After(*runs[j].CreatedAt)
	})
	return runs, nil
}

func countLines(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	count := 0
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		count++
	}
	return count, scanner.Err()
}

// ParsedEvent is one event log line with its resolved timestamp.
type ParsedEvent struct {
	Raw model.LiveEvent
	TS  time.Time
}

// ReadEvents parses a run's full event log. Blank and malformed lines are
// skipped with a warning; a missing file is ErrRunNotFound. Events without
// a type get "event"; events without a parseable ts get the current time.
func ReadEvents(path string) ([]ParsedEvent, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%s: %w", path, ErrRunNotFound)
		}
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	var events []ParsedEvent
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var raw model.LiveEvent
		if err := json.Unmarshal([]byte(line), &raw); err != nil {
			slog.Warn("skipping malformed event line", "path", path, "err", err)
			continue
		}
		if raw.Type() == "" {
			raw["type"] = "event"
		}
		events = append(events, ParsedEvent{
			Raw: raw,
			TS:  model.ParseTime(raw.String("ts"), time.Now().UTC()),
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan %s: %w", path, err)
	}
	return events, nil
}

// LoadSnapshot derives the complete current state of a run from its log.
func LoadSnapshot(runsDir, runID string) (*model.Snapshot, error) {
	events, err := ReadEvents(EventsPath(runsDir, runID))
	if err != nil {
		return nil, err
	}
	b := NewBuilder(runID)
	for _, ev := range events {
		b.Apply(ev)
	}
	return b.Build(), nil
}

// LoadEventsPage returns one raw slice of the log plus its total length.
// offset is clamped to [0, total]; limit to [1, 1000].
func LoadEventsPage(runsDir, runID string, offset, limit int) ([]model.LiveEvent, int, error) {
	events, err := ReadEvents(EventsPath(runsDir, runID))
	if err != nil {
		return nil, 0, err
	}
	total := len(events)
	if limit < 1 {
		limit = 1
	}
	if limit > 1000 {
		limit = 1000
	}
	if offset < 0 {
		offset = 0
	}
	if offset > total {
		offset = total
	}
	end := offset + limit
	if end > total {
		end = total
	}
	page := make([]model.LiveEvent, 0, end-offset)
	for _, ev := range events[offset:end] {
		page = append(page, ev.Raw)
	}
	return page, total, nil
}

// Vulnerabilities scans the run directory for vulnerability report files:
// any *.json under a directory named "vulnerabilities". The id is the file
// stem, the timestamp its mtime, and file the run-relative path.
func Vulnerabilities(runsDir, runID string) ([]model.VulnReport, error) {
	runDir := filepath.Join(runsDir, runID)
	if _, err := os.Stat(runDir); err != nil {
		return nil, fmt.Errorf("%s: %w", runDir, ErrRunNotFound)
	}

	var reports []model.VulnReport
	err := filepath.WalkDir(runDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		if filepath.Base(filepath.Dir(path)) != "vulnerabilities" || !strings.HasSuffix(path, ".json") {
			return nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil
		}
		var body struct {
			Title    string `json:"title"`
			Severity string `json:"severity"`
		}
		if err := json.Unmarshal(data, &body); err != nil {
			slog.Warn("skipping malformed vulnerability report", "path", path, "err", err)
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		rel, err := filepath.Rel(runDir, path)
		if err != nil {
			rel = path
		}
		reports = append(reports, model.VulnReport{
			ID:        strings.TrimSuffix(filepath.Base(path), ".json"),
			Title:     body.Title,
			Severity:  body.Severity,
			Timestamp: info.ModTime().UTC(),
			File:      rel,
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", runDir, err)
	}
	sort.Slice(reports, func(i, j int) bool {
		return reports[i].Timestamp.Before(reports[j].Timestamp)
	})
	return reports, nil
}
