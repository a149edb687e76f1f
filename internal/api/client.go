// Package api is the REST client for the agentviz backend.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"agentviz/internal/model"
)

// Client talks to one backend instance.
type Client struct {
	base string
	http *http.Client
}

// New creates a client for the given base URL, e.g. "http://127.0.0.1:8321".
func New(base string) *Client {
	return &Client{
		base: base,
		http: &http.Client{Timeout: 10 * time.Second},
	}
}

// Runs lists the runs known to the backend, newest first.
func (c *Client) Runs(ctx context.Context) ([]model.Run, error) {
	var runs []model.Run
	if err := c.get(ctx, "/api/runs", &runs); err != nil {
		return nil, err
	}
	return runs, nil
}

// Snapshot fetches the complete current state of a run.
func (c *Client) Snapshot(ctx context.Context, runID string) (*model.Snapshot, error) {
	var snap model.Snapshot
	if err := c.get(ctx, "/api/runs/"+url.PathEscape(runID)+"/snapshot", &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

// EventPage is one slice of the raw event log.
type EventPage struct {
	RunID  string            `json:"run_id"`
	Events []model.LiveEvent `json:"events"`
	Offset int               `json:"offset"`
	Limit  int               `json:"limit"`
	Total  int               `json:"total"`
}

// Events fetches a page of raw events from the run's log.
func (c *Client) Events(ctx context.Context, runID string, offset, limit int) (*EventPage, error) {
	path := "/api/runs/" + url.PathEscape(runID) + "/events?offset=" +
		strconv.Itoa(offset) + "&limit=" + strconv.Itoa(limit)
	var page EventPage
	if err := c.get(ctx, path, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// Vulnerabilities fetches the run's report-file vulnerability view.
func (c *Client) Vulnerabilities(ctx context.Context, runID string) ([]model.VulnReport, error) {
	var reports []model.VulnReport
	if err := c.get(ctx, "/api/runs/"+url.PathEscape(runID)+"/vulnerabilities", &reports); err != nil {
		return nil, err
	}
	return reports, nil
}

// StreamURL returns the websocket endpoint for a run's live event stream.
func (c *Client) StreamURL(runID string) string {
	u := c.base
	switch {
	case len(u) > 8 && u[:8] == "https://":
		u = "wss://" + u[8:]
	case len(u) > 7 && u[:7] == "http://":
		u = "ws://" + u[7:]
	}
	return u + "/ws/runs/" + url.PathEscape(runID)
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+path, nil)
	if err != nil {
		return fmt.Errorf("build request %s: %w", path, err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("GET %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("GET %s: %s: %s", path, resp.Status, body)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}
