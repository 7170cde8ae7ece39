// Package server exposes the HTTP API: video CRUD, processing triggers,
// and SSE progress streaming.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"reel/internal/artifact"
	"reel/internal/config"
	"reel/internal/logging"
	"reel/internal/progress"
	"reel/internal/services"
	"reel/internal/video"
)

// Starter triggers pipeline runs.
type Starter interface {
	Start(ctx context.Context, videoID string) (alreadyRunning bool, err error)
}

// Server owns the HTTP listener and routes.
type Server struct {
	bind      string
	token     string
	store     *video.Store
	artifacts *artifact.Store
	hub       *progress.Hub
	starter   Starter
	logger    *slog.Logger
	keepalive time.Duration

	handler  http.Handler
	listener net.Listener
	server   *http.Server
}

// Options bundles the collaborators for New.
type Options struct {
	Config    *config.Config
	Store     *video.Store
	Artifacts *artifact.Store
	Hub       *progress.Hub
	Starter   Starter
	Logger    *slog.Logger
}

// New builds a server from its collaborators.
func New(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	srv := &Server{
		store:     opts.Store,
		artifacts: opts.Artifacts,
		hub:       opts.Hub,
		starter:   opts.Starter,
		logger:    logger.With(logging.String(logging.FieldComponent, "api-server")),
		keepalive: 30 * time.Second,
	}
	if opts.Config != nil {
		srv.bind = strings.TrimSpace(opts.Config.Paths.APIBind)
		srv.token = strings.TrimSpace(opts.Config.Paths.APIToken)
		if interval := opts.Config.KeepaliveInterval(); interval > 0 {
			srv.keepalive = interval
		}
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", srv.handleHealth)
	mux.HandleFunc("/api/status", srv.handleStatus)
	mux.HandleFunc("/api/videos", srv.handleVideos)
	mux.HandleFunc("/api/videos/", srv.handleVideoSubtree)
	srv.handler = srv.withRequestID(srv.authMiddleware(mux))

	srv.server = &http.Server{
		Handler:           srv.handler,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return srv
}

// Handler returns the routed handler, including auth.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start begins serving on the configured bind address. The listener shuts
// down when ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	if s.bind == "" {
		return errors.New("api server: bind address required")
	}
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	s.listener = listener

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("api server error", logging.Error(err))
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}()

	s.logger.Info("api server listening", logging.String("address", listener.Addr().String()))
	return nil
}

// Addr returns the bound listener address, or "" before Start.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Stop shuts the listener down.
func (s *Server) Stop() {
	if s.server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}
	if s.listener != nil {
		_ = s.listener.Close()
		s.listener = nil
	}
}

// withRequestID tags every request with a correlation identifier, echoed
// back in the X-Request-ID header and threaded through the context so
// dispatched pipeline runs log under the same identifier.
func (s *Server) withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := uuid.NewString()
		w.Header().Set("X-Request-ID", requestID)
		next.ServeHTTP(w, r.WithContext(services.WithRequestID(r.Context(), requestID)))
	})
}

// authMiddleware enforces the bearer token on API routes. Health checks
// and the SSE progress route stay public; EventSource cannot attach
// headers.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.token == "" || publicPath(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}
		header := r.Header.Get("Authorization")
		if !strings.HasPrefix(header, "Bearer ") || strings.TrimPrefix(header, "Bearer ") != s.token {
			s.writeError(w, http.StatusUnauthorized, "missing or invalid authorization header")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func publicPath(path string) bool {
	if path == "/" || path == "/healthz" {
		return true
	}
	return strings.HasSuffix(path, "/progress")
}
