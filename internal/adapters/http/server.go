// Package http serves a read-only status API over a work directory:
// run states, the provenance log, Prometheus metrics and a live event stream.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/aretw0/cairn/internal/logging"
	"github.com/aretw0/cairn/internal/presentation/graph"
	"github.com/aretw0/cairn/pkg/domain"
	"github.com/aretw0/cairn/pkg/provenance"
	"github.com/aretw0/cairn/pkg/runstate"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Version is reported by /health.
var Version = "dev"

// Server holds what the handlers read from.
type Server struct {
	states     *runstate.Manager
	provenance string
	gatherer   prometheus.Gatherer
	streams    *StreamManager
	logger     *slog.Logger
}

// Option configures a Server.
type Option func(*Server)

// WithGatherer exposes the given registry on /metrics.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(s *Server) { s.gatherer = g }
}

// WithStreams publishes events from sm on /events.
func WithStreams(sm *StreamManager) Option {
	return func(s *Server) { s.streams = sm }
}

// WithLogger sets the request logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

// NewServer reads run states from states and provenance entries from provenancePath.
func NewServer(states *runstate.Manager, provenancePath string, opts ...Option) *Server {
	s := &Server{
		states:     states,
		provenance: provenancePath,
		gatherer:   prometheus.DefaultGatherer,
		streams:    NewStreamManager(),
		logger:     logging.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the routed API.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(s.logRequests)

	r.Get("/health", s.getHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	r.Get("/runs", s.listRuns)
	r.Get("/runs/{name}", s.getRun)
	r.Get("/runs/{name}/graph", s.getRunGraph)
	r.Get("/provenance", s.getProvenance)
	r.Get("/events", s.subscribeEvents)
	return r
}

// ListenAndServe serves until ctx is done, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	s.logger.Info("status server listening", "addr", addr)

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown status server: %w", err)
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Debug("request", "method", r.Method, "path", r.URL.Path, "duration", time.Since(start))
	})
}

func (s *Server) getHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "version": Version})
}

func (s *Server) listRuns(w http.ResponseWriter, r *http.Request) {
	names, err := s.states.List(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	if names == nil {
		names = []string{}
	}
	s.writeJSON(w, http.StatusOK, names)
}

func (s *Server) loadRun(w http.ResponseWriter, r *http.Request) (*domain.RunState, bool) {
	state, err := s.states.Load(r.Context(), chi.URLParam(r, "name"))
	switch {
	case runstate.IsNotFound(err):
		s.writeError(w, http.StatusNotFound, err)
	case errors.Is(err, domain.ErrIncompatibleRunState):
		s.writeError(w, http.StatusConflict, err)
	case err != nil:
		s.writeError(w, http.StatusInternalServerError, err)
	default:
		return state, true
	}
	return nil, false
}

func (s *Server) getRun(w http.ResponseWriter, r *http.Request) {
	if state, ok := s.loadRun(w, r); ok {
		s.writeJSON(w, http.StatusOK, state)
	}
}

// getRunGraph returns the run state as a Mermaid flowchart.
func (s *Server) getRunGraph(w http.ResponseWriter, r *http.Request) {
	state, ok := s.loadRun(w, r)
	if !ok {
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	io.WriteString(w, graph.GenerateMermaid(state))
}

func (s *Server) getProvenance(w http.ResponseWriter, r *http.Request) {
	entries, err := provenance.Read(s.provenance)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	q := r.URL.Query()
	entries = provenance.Filter(entries, q.Get("run_id"), q.Get("test_case"))
	if entries == nil {
		entries = []provenance.Entry{}
	}
	s.writeJSON(w, http.StatusOK, entries)
}

// subscribeEvents streams lifecycle events as server-sent events.
func (s *Server) subscribeEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	events, unsubscribe := s.streams.Subscribe(r.URL.Query().Get("run_id"))
	defer unsubscribe()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	fmt.Fprint(w, "event: ping\ndata: connected\n\n")
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case msg, ok := <-events:
			if !ok {
				return
			}
			fmt.Fprintf(w, "data: %s\n\n", msg)
			flusher.Flush()
		}
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn("encode response", "err", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, err error) {
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", "err", err)
	}
	s.writeJSON(w, status, map[string]string{"error": err.Error()})
}
