// Package server is the HTTP surface of parley: the session archive API, the
// interview WebSocket, health probes and metrics.
//
// Routes:
//
//   - GET    /api/sessions              list stored sessions, most recent first
//   - GET    /api/sessions/{id}         one session record
//   - GET    /api/sessions/{id}/export  the record as a file download
//   - DELETE /api/sessions              delete by {"ids": [...]}
//   - GET    /ws/interview              run an interview over the speech bridge
//   - GET    /healthz, /readyz          probes
//   - GET    /metrics                   Prometheus exposition
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/MrWong99/parley/internal/health"
	"github.com/MrWong99/parley/internal/interview"
	"github.com/MrWong99/parley/internal/observe"
	"github.com/MrWong99/parley/internal/speech"
	"github.com/MrWong99/parley/internal/store"
)

// maxDeleteBody bounds the DELETE /api/sessions request body.
const maxDeleteBody = 1 << 20

// Launcher starts interviews for WebSocket connections. The returned
// scheduler is already running; it stops when ctx is cancelled or the
// interview ends.
type Launcher interface {
	Launch(ctx context.Context, req interview.Request, synth speech.Synthesizer, rec speech.Recognizer) (*interview.Scheduler, error)
}

// Config holds the dependencies of a [Server].
type Config struct {
	Store    store.Store
	Launcher Launcher

	// Health serves /healthz and /readyz. Nil leaves the probes unregistered.
	Health *health.Handler

	Metrics *observe.Metrics

	// OriginPatterns lists the hosts allowed to open the interview
	// WebSocket from another origin. Same-origin requests are always
	// accepted.
	OriginPatterns []string

	// MetricsHandler serves /metrics. Nil uses [observe.MetricsHandler].
	MetricsHandler http.Handler
}

// Server routes HTTP requests.
type Server struct {
	cfg    Config
	router *mux.Router
}

// New builds the router.
func New(cfg Config) (*Server, error) {
	if cfg.Store == nil {
		return nil, errors.New("server: Store is required")
	}
	if cfg.Launcher == nil {
		return nil, errors.New("server: Launcher is required")
	}
	if cfg.Metrics == nil {
		cfg.Metrics = observe.DefaultMetrics()
	}
	if cfg.MetricsHandler == nil {
		cfg.MetricsHandler = observe.MetricsHandler()
	}

	s := &Server{cfg: cfg, router: mux.NewRouter()}
	r := s.router
	r.Use(observe.Middleware(cfg.Metrics))

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/sessions", s.listSessions).Methods(http.MethodGet)
	api.HandleFunc("/sessions", s.deleteSessions).Methods(http.MethodDelete)
	api.HandleFunc("/sessions/{id}", s.getSession).Methods(http.MethodGet)
	api.HandleFunc("/sessions/{id}/export", s.exportSession).Methods(http.MethodGet)

	r.HandleFunc("/ws/interview", s.interview).Methods(http.MethodGet)

	if cfg.Health != nil {
		cfg.Health.Register(r)
	}
	r.Handle("/metrics", cfg.MetricsHandler).Methods(http.MethodGet)

	return s, nil
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) listSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := s.cfg.Store.List(r.Context())
	if err != nil {
		s.fail(w, r, "list sessions", err)
		return
	}
	records := make([]store.Record, 0, len(sessions))
	for _, sess := range sessions {
		records = append(records, store.Encode(sess))
	}
	writeJSON(w, http.StatusOK, records)
}

func (s *Server) getSession(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionID(w, r)
	if !ok {
		return
	}
	sess, err := s.cfg.Store.Get(r.Context(), id)
	if err != nil {
		s.fail(w, r, "get session", err)
		return
	}
	writeJSON(w, http.StatusOK, store.Encode(sess))
}

func (s *Server) exportSession(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionID(w, r)
	if !ok {
		return
	}
	sess, err := s.cfg.Store.Get(r.Context(), id)
	if err != nil {
		s.fail(w, r, "export session", err)
		return
	}
	data, err := store.Marshal(sess)
	if err != nil {
		s.fail(w, r, "export session", err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", store.ExportFilename(sess)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

type deleteRequest struct {
	IDs []string `json:"ids"`
}

func (s *Server) deleteSessions(w http.ResponseWriter, r *http.Request) {
	var req deleteRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxDeleteBody))
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	ids := make([]uuid.UUID, 0, len(req.IDs))
	for _, raw := range req.IDs {
		id, err := uuid.Parse(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid session id %q", raw))
			return
		}
		ids = append(ids, id)
	}
	if err := s.cfg.Store.Delete(r.Context(), ids); err != nil {
		s.fail(w, r, "delete sessions", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func sessionID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	raw := mux.Vars(r)["id"]
	id, err := uuid.Parse(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid session id %q", raw))
		return uuid.Nil, false
	}
	return id, true
}

// fail maps a store error to a response.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	observe.Logger(r.Context()).Error("server: "+op, "err", err)
	writeError(w, http.StatusInternalServerError, op+" failed")
}

type errorBody struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorBody{Error: msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("server: write response", "err", err)
	}
}
