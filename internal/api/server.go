// Package api provides the HTTP server and handlers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/fruitsalade/mixtape/internal/app"
	"github.com/fruitsalade/mixtape/internal/auth"
	"github.com/fruitsalade/mixtape/internal/events"
	"github.com/fruitsalade/mixtape/internal/explorer"
	"github.com/fruitsalade/mixtape/internal/handle"
	"github.com/fruitsalade/mixtape/internal/ingest"
	"github.com/fruitsalade/mixtape/internal/link"
	"github.com/fruitsalade/mixtape/internal/logging"
	"github.com/fruitsalade/mixtape/internal/metrics"
	"github.com/fruitsalade/mixtape/internal/protocol"
	"github.com/fruitsalade/mixtape/internal/records"
	"github.com/fruitsalade/mixtape/internal/tasks"
	"github.com/fruitsalade/mixtape/internal/worker"
)

// ErrorResponse is the JSON body of failed requests.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  int    `json:"code"`
}

// Entry is one listed item.
type Entry struct {
	Name          string      `json:"name"`
	Kind          handle.Kind `json:"kind"`
	MountStrategy string      `json:"mountStrategy,omitempty"`
}

// Listing is the response of the browse endpoint.
type Listing struct {
	Path    string  `json:"path"`
	Depth   int     `json:"depth"`
	Entries []Entry `json:"entries"`
}

// Server is the HTTP server.
type Server struct {
	app         *app.App
	tracker     *tasks.Tracker
	broadcaster *events.Broadcaster
	auth        *auth.Auth // nil disables authentication
}

// NewServer creates a new server. authHandler may be nil.
func NewServer(a *app.App, tracker *tasks.Tracker, broadcaster *events.Broadcaster, authHandler *auth.Auth) *Server {
	return &Server{
		app:         a,
		tracker:     tracker,
		broadcaster: broadcaster,
		auth:        authHandler,
	}
}

// Run feeds worker events to the task tracker and SSE subscribers until the
// worker's event stream closes or ctx is done.
func (s *Server) Run(ctx context.Context) {
	evs := s.app.Worker.Events()
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-evs:
			if !ok {
				return
			}
			s.tracker.Apply(e)
			s.broadcaster.Publish(e)
		}
	}
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// Public endpoints (no auth required)
	mux.HandleFunc("GET /health", s.handleHealth)

	api := http.NewServeMux()
	api.HandleFunc("GET /api/v1/browse", s.handleBrowse)
	api.HandleFunc("GET /api/v1/content", s.handleContent)
	api.HandleFunc("GET /api/v1/metadata", s.handleMetadata)
	api.HandleFunc("POST /api/v1/ingest", s.handleIngest)
	api.HandleFunc("POST /api/v1/links", s.handleLinks)
	api.HandleFunc("GET /api/v1/tasks", s.handleTasks)
	api.HandleFunc("DELETE /api/v1/tasks/{id}", s.handleDeleteTask)
	api.HandleFunc("GET /api/v1/events", s.handleEvents)
	api.HandleFunc("GET /api/v1/log-level", s.handleGetLogLevel)
	api.HandleFunc("PUT /api/v1/log-level", s.handleSetLogLevel)

	var authed http.Handler = api
	if s.auth != nil {
		authed = s.auth.Middleware(api)
	}
	mux.Handle("/api/v1/", authed)

	// Apply logging and metrics middleware
	return metrics.Middleware(logging.Middleware(mux))
}

// ─── Health ─────────────────────────────────────────────────────────────────

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// LogLevel is the body of the log-level endpoints.
type LogLevel struct {
	Level string `json:"level"`
}

func (s *Server) handleGetLogLevel(w http.ResponseWriter, r *http.Request) {
	s.sendJSON(w, http.StatusOK, LogLevel{Level: logging.Level()})
}

func (s *Server) handleSetLogLevel(w http.ResponseWriter, r *http.Request) {
	var req LogLevel
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := logging.SetLevel(req.Level); err != nil {
		s.sendError(w, http.StatusBadRequest, fmt.Sprintf("invalid log level %q", req.Level))
		return
	}
	logging.Info("log level changed", logging.String("level", req.Level))
	s.sendJSON(w, http.StatusOK, LogLevel{Level: logging.Level()})
}

// ─── Browse ─────────────────────────────────────────────────────────────────

func (s *Server) handleBrowse(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	path := r.URL.Query().Get("path")
	if path == "" {
		path = "/"
	}

	m, err := s.app.Navigate(ctx, path)
	if err != nil {
		s.sendFailure(w, err)
		return
	}
	items, err := m.ListItems(ctx)
	if err != nil {
		s.sendFailure(w, err)
		return
	}

	listing := Listing{Path: path, Depth: m.Depth(), Entries: []Entry{}}
	for _, h := range items {
		if !s.app.Browsable(h) {
			continue
		}
		e := Entry{Name: h.Name(), Kind: h.Kind()}
		if h.Kind() == handle.KindFile {
			if e.MountStrategy, err = m.GetMountStrategy(ctx, h.Name()); err != nil {
				s.sendFailure(w, err)
				return
			}
		}
		listing.Entries = append(listing.Entries, e)
	}
	s.sendJSON(w, http.StatusOK, listing)
}

// ─── Content ────────────────────────────────────────────────────────────────

// handleContent streams a file. A mountable file is mounted first, so a file
// link serves its target.
func (s *Server) handleContent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	path := r.URL.Query().Get("path")
	f, err := s.app.OpenFile(ctx, path)
	if err != nil {
		s.sendFailure(w, err)
		return
	}
	rc, err := f.Open(ctx)
	if err != nil {
		s.sendFailure(w, err)
		return
	}
	defer rc.Close()

	if size, err := f.Size(ctx); err == nil {
		w.Header().Set("Content-Length", strconv.FormatInt(size, 10))
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	if _, err := io.Copy(w, rc); err != nil {
		logging.Warn("content stream interrupted", logging.String("path", path), logging.Err(err))
	}
}

// ─── Metadata ───────────────────────────────────────────────────────────────

func (s *Server) handleMetadata(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	path := r.URL.Query().Get("path")
	if path == "" {
		all, err := s.app.Store.ListAudio(ctx)
		if err != nil {
			s.sendFailure(w, err)
			return
		}
		s.sendJSON(w, http.StatusOK, all)
		return
	}
	m, err := s.app.Store.GetAudio(ctx, records.SourceLocal, ingest.SandboxPath(path))
	if err != nil {
		s.sendFailure(w, err)
		return
	}
	s.sendJSON(w, http.StatusOK, m)
}

// ─── Ingest & links ─────────────────────────────────────────────────────────

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Path  string   `json:"path"`
		Paths []string `json:"paths"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	paths := req.Paths
	if req.Path != "" {
		paths = append([]string{req.Path}, paths...)
	}
	if len(paths) == 0 {
		s.sendError(w, http.StatusBadRequest, "path required")
		return
	}

	ctx := r.Context()
	b, err := s.app.Pick(ctx, paths, true)
	if err != nil {
		s.sendFailure(w, err)
		return
	}
	batch := protocol.NewRequest(b)
	if err := s.app.Worker.Submit(ctx, batch); err != nil {
		s.sendFailure(w, err)
		return
	}
	logging.Info("import queued", logging.String("batch", batch.ID), zap.Strings("paths", paths))
	s.sendJSON(w, http.StatusAccepted, map[string]any{
		"id":          batch.ID,
		"files":       len(batch.Files),
		"directories": len(batch.Directories),
	})
}

func (s *Server) handleLinks(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Paths []string `json:"paths"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.Paths) == 0 {
		s.sendError(w, http.StatusBadRequest, "paths required")
		return
	}

	ctx := r.Context()
	b, err := s.app.Pick(ctx, req.Paths, false)
	if err != nil {
		s.sendFailure(w, err)
		return
	}
	recs, err := s.app.Linker.Link(ctx, b)
	if err != nil {
		s.sendFailure(w, err)
		return
	}

	type created struct {
		records.LinkRecord
		Placeholder string `json:"placeholder"`
	}
	out := make([]created, 0, len(recs))
	for _, rec := range recs {
		out = append(out, created{
			LinkRecord:  rec,
			Placeholder: link.Link{Source: rec.Source, Kind: rec.Kind, DisplayName: rec.Name}.String(),
		})
	}
	s.sendJSON(w, http.StatusCreated, out)
}

// ─── Tasks ──────────────────────────────────────────────────────────────────

func (s *Server) handleTasks(w http.ResponseWriter, r *http.Request) {
	s.sendJSON(w, http.StatusOK, s.tracker.List())
}

func (s *Server) handleDeleteTask(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, ok := s.tracker.Get(id); !ok {
		s.sendError(w, http.StatusNotFound, "task not found")
		return
	}
	s.tracker.Remove(id)
	w.WriteHeader(http.StatusNoContent)
}

// ─── SSE Events ─────────────────────────────────────────────────────────────

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		s.sendError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ch := s.broadcaster.Subscribe()
	defer s.broadcaster.Unsubscribe(ch)

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-ch:
			if !ok {
				return
			}
			data, err := json.Marshal(event)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.Action(), data)
			flusher.Flush()
		}
	}
}

// ─── Helpers ────────────────────────────────────────────────────────────────

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, handle.ErrNotFound), errors.Is(err, records.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, handle.ErrPermissionDenied):
		return http.StatusForbidden
	case errors.Is(err, handle.ErrInvalidName), errors.Is(err, link.ErrMalformedLink):
		return http.StatusBadRequest
	case errors.Is(err, handle.ErrTypeMismatch), errors.Is(err, link.ErrKindMismatch),
		errors.Is(err, explorer.ErrNoMountStrategy), errors.Is(err, app.ErrNotNavigable):
		return http.StatusUnprocessableEntity
	case errors.Is(err, worker.ErrStopped):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func (s *Server) sendFailure(w http.ResponseWriter, err error) {
	code := statusFor(err)
	if code == http.StatusInternalServerError {
		logging.Error("request failed", logging.Err(err))
	}
	s.sendError(w, code, err.Error())
}

func (s *Server) sendJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func (s *Server) sendError(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(ErrorResponse{
		Error: message,
		Code:  code,
	})
}
