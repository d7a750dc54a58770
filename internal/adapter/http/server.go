package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/couchcryptid/neo-radar-service/internal/adapter/sqlite"
	"github.com/couchcryptid/neo-radar-service/internal/domain"
	"github.com/couchcryptid/neo-radar-service/internal/repository"
	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NEORepository is the part of repository.Repository the HTTP surface uses.
type NEORepository interface {
	sharedobs.ReadinessChecker
	Refresh(ctx context.Context) error
	FetchPictureOfDay(ctx context.Context) (domain.PictureOfDay, error)
	Upcoming(ctx context.Context) ([]domain.NearEarthObject, error)
	ObserveUpcoming(ctx context.Context) *sqlite.Observation
}

// Server exposes health, readiness, metrics and the NEO read/refresh API.
type Server struct {
	httpServer *http.Server
	repo       NEORepository
	logger     *slog.Logger
}

// NewServer creates an HTTP server with /healthz, /readyz, /metrics and the
// /v1 routes.
func NewServer(addr string, repo NEORepository, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	// Cancelled on Shutdown so open streams end.
	baseCtx, cancel := context.WithCancel(context.Background())

	s := &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 30 * time.Second, // POST /v1/refresh is synchronous
			IdleTimeout:  60 * time.Second,
			BaseContext:  func(net.Listener) context.Context { return baseCtx },
		},
		repo:   repo,
		logger: logger,
	}
	s.httpServer.RegisterOnShutdown(cancel)

	mux.HandleFunc("GET /healthz", sharedobs.LivenessHandler())
	mux.HandleFunc("GET /readyz", sharedobs.ReadinessHandler(repo))
	mux.Handle("GET /metrics", promhttp.Handler())

	mux.HandleFunc("GET /v1/neo/upcoming", s.handleUpcoming)
	mux.HandleFunc("GET /v1/neo/stream", s.handleStream)
	mux.HandleFunc("GET /v1/apod", s.handlePictureOfDay)
	mux.HandleFunc("POST /v1/refresh", s.handleRefresh)

	return s
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}

func (s *Server) handleUpcoming(w http.ResponseWriter, r *http.Request) {
	neos, err := s.repo.Upcoming(r.Context())
	if err != nil {
		s.logger.Error("list upcoming neos failed", "error", err)
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if neos == nil {
		neos = []domain.NearEarthObject{}
	}
	sharedobs.WriteJSON(w, http.StatusOK, neos)
}

func (s *Server) handlePictureOfDay(w http.ResponseWriter, r *http.Request) {
	pic, err := s.repo.FetchPictureOfDay(r.Context())
	if err != nil {
		writeError(w, http.StatusBadGateway, err)
		return
	}
	sharedobs.WriteJSON(w, http.StatusOK, pic)
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	err := s.repo.Refresh(r.Context())
	switch {
	case err == nil:
		sharedobs.WriteJSON(w, http.StatusAccepted, map[string]string{"status": "refreshed"})
	case errors.Is(err, repository.ErrRefreshInProgress):
		writeError(w, http.StatusConflict, err)
	default:
		body := map[string]string{"status": "failed", "error": err.Error()}
		var rerr *repository.RefreshError
		if errors.As(err, &rerr) {
			body["stage"] = string(rerr.Stage)
		}
		sharedobs.WriteJSON(w, http.StatusBadGateway, body)
	}
}

// handleStream writes one server-sent event per snapshot until the client
// goes away or the observation ends.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	rc := http.NewResponseController(w)
	if err := rc.SetWriteDeadline(time.Time{}); err != nil && !errors.Is(err, http.ErrNotSupported) {
		s.logger.Warn("clear stream write deadline failed", "error", err)
	}

	obs := s.repo.ObserveUpcoming(r.Context())
	defer obs.Close()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)

	for snapshot := range obs.C() {
		data, err := json.Marshal(snapshot)
		if err != nil {
			s.logger.Error("encode neo snapshot failed", "error", err)
			return
		}
		if _, err := fmt.Fprintf(w, "event: snapshot\ndata: %s\n\n", data); err != nil {
			return
		}
		if err := rc.Flush(); err != nil {
			return
		}
	}
	if err := obs.Err(); err != nil {
		s.logger.Error("neo stream ended", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	sharedobs.WriteJSON(w, status, map[string]string{"error": err.Error()})
}
