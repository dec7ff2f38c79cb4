// Package server exposes ride sessions over HTTP and websockets.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/ridemap/ridemap/internal/config"
	"github.com/ridemap/ridemap/internal/dispatcher"
	"github.com/ridemap/ridemap/internal/geolocation"
	"github.com/ridemap/ridemap/internal/handlers"
	"github.com/ridemap/ridemap/internal/hub"
	"github.com/ridemap/ridemap/internal/observability"
	"github.com/ridemap/ridemap/internal/session"
	"github.com/ridemap/ridemap/pkg/core"
)

const maxBodySize = 64 * 1024

// Dependencies holds all dependencies for the HTTP surface
type Dependencies struct {
	Controller *session.Controller
	Dispatcher *dispatcher.Dispatcher
	Hub        *hub.Hub
	Metrics    *observability.RouteCollector
	Logger     *slog.Logger
}

// Server serves the session API.
type Server struct {
	deps Dependencies
	cfg  config.ServerConfig
	mux  *http.ServeMux
	http *http.Server
}

// CommandRequest is the body of POST /api/sessions/{id}/commands.
type CommandRequest struct {
	Command string   `json:"command"`
	Args    []string `json:"args"`
}

// SessionResponse is returned when a session is created.
type SessionResponse struct {
	ID       string        `json:"id"`
	Snapshot core.Snapshot `json:"snapshot"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// New creates the server and registers its routes.
func New(cfg config.ServerConfig, deps Dependencies) *Server {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	s := &Server{deps: deps, cfg: cfg, mux: http.NewServeMux()}

	s.mux.HandleFunc("GET /healthcheck", s.handleHealthcheck)
	s.mux.HandleFunc("POST /api/sessions", s.handleCreateSession)
	s.mux.HandleFunc("GET /api/sessions/{id}", s.handleGetSession)
	s.mux.HandleFunc("DELETE /api/sessions/{id}", s.handleDeleteSession)
	s.mux.HandleFunc("GET /api/sessions/{id}/features", s.handleFeatures)
	s.mux.HandleFunc("POST /api/sessions/{id}/commands", s.handleCommand)
	s.mux.HandleFunc("GET /api/sessions/{id}/notifications", s.handleNotifications)
	s.mux.HandleFunc("GET /api/sessions/{id}/trips", s.handleTrips)
	if deps.Hub != nil {
		s.mux.HandleFunc("GET /api/sessions/{id}/ws", s.handleWebsocket)
	}
	if deps.Metrics != nil && cfg.MetricsEnabled {
		s.mux.Handle("GET /metrics", deps.Metrics.Handler())
	}

	s.http = &http.Server{
		Addr:              cfg.Listen,
		Handler:           s.mux,
		ReadHeaderTimeout: cfg.ReadTimeout,
	}
	return s
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// ListenAndServe blocks serving HTTP until Shutdown is called.
func (s *Server) ListenAndServe() error {
	s.deps.Logger.Info("HTTP server listening", "addr", s.cfg.Listen)
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// Shutdown stops accepting connections and waits for active requests.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.deps.Hub != nil {
		s.deps.Hub.Close()
	}
	return s.http.Shutdown(ctx)
}

func (s *Server) handleHealthcheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"sessions": s.deps.Controller.Registry().Len(),
	})
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.deps.Controller.NewSession()
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, SessionResponse{ID: sess.ID, Snapshot: sess.Snapshot()})
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, sess.Snapshot())
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.deps.Controller.CloseSession(id); err != nil {
		s.writeError(w, r, err)
		return
	}
	if s.deps.Hub != nil {
		s.deps.Hub.Disconnect(id)
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleFeatures(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	body, err := sess.FeatureCollection()
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/geo+json")
	_, _ = w.Write(body)
}

func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var req CommandRequest
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodySize))
	if err := dec.Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: fmt.Sprintf("invalid command body: %v", err)})
		return
	}
	if req.Command == "" {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "command is required"})
		return
	}

	result, err := s.Dispatch(id, req.Command, req.Args)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"result": result})
}

// Dispatch runs a client command against a session. It backs both the HTTP
// command endpoint and websocket command frames.
func (s *Server) Dispatch(sessionID, command string, args []string) (any, error) {
	return s.deps.Dispatcher.Dispatch(dispatcher.Event{
		SessionID: sessionID,
		Command:   command,
		Args:      args,
		Timestamp: time.Now(),
	})
}

func (s *Server) handleNotifications(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, sess.Notifications().Drain(time.Now()))
}

func (s *Server) handleTrips(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	trips, err := s.deps.Controller.TripHistory(sess)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if trips == nil {
		trips = []core.Trip{}
	}
	writeJSON(w, http.StatusOK, trips)
}

func (s *Server) handleWebsocket(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	if err := s.deps.Hub.Serve(w, r, sess.ID); err != nil {
		s.deps.Logger.Debug("websocket upgrade failed", "sessionId", sess.ID, "error", err)
	}
}

func (s *Server) session(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	sess, err := s.deps.Controller.Session(r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return nil, false
	}
	return sess, true
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := StatusFor(err)
	if status >= http.StatusInternalServerError {
		s.deps.Logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	}
	writeJSON(w, status, ErrorResponse{Error: err.Error()})
}

// StatusFor maps a command or lookup error to its HTTP status.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, session.ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, dispatcher.ErrUnknownCommand), errors.Is(err, handlers.ErrInvalidArgs):
		return http.StatusBadRequest
	case errors.Is(err, session.ErrMissingRideFields),
		errors.Is(err, session.ErrMissingAccountFields),
		errors.Is(err, geolocation.ErrUnsupported),
		errors.Is(err, geolocation.ErrPermissionDenied),
		errors.Is(err, geolocation.ErrPositionUnavailable),
		errors.Is(err, geolocation.ErrTimeout):
		return http.StatusUnprocessableEntity
	case errors.Is(err, dispatcher.ErrQueueFull),
		errors.Is(err, dispatcher.ErrClosed),
		errors.Is(err, session.ErrClosed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// writeJSON encodes v before committing the status, so an unencodable value
// becomes a 500 instead of an empty 200.
func writeJSON(w http.ResponseWriter, status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		status = http.StatusInternalServerError
		body, _ = json.Marshal(ErrorResponse{Error: fmt.Sprintf("failed to encode response: %v", err)})
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(append(body, '\n'))
}
