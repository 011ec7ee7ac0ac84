// Package server exposes the keep-alive HTTP endpoint, a health report and
// Prometheus metrics.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/dayuer/tubebot/internal/logging"
)

// AliveText is the body of GET /.
const AliveText = "YouTube Telegram Bot is running!"

const shutdownTimeout = 5 * time.Second

// Status is the body of GET /healthz.
type Status struct {
	Status          string          `json:"status"`
	Bot             string          `json:"bot,omitempty"`
	Uptime          int             `json:"uptime"`
	Channels        map[string]bool `json:"channels,omitempty"`
	PendingSessions int             `json:"pendingSessions"`
	TrendingCount   int             `json:"trendingCount"`
	TrendingAt      *time.Time      `json:"trendingRefreshedAt,omitempty"`
}

// StatusFunc fills in the runtime part of a health report.
type StatusFunc func(*Status)

// Server is the keep-alive HTTP server.
type Server struct {
	addr      string
	status    StatusFunc
	logger    *zap.Logger
	startTime time.Time

	router *chi.Mux
	srv    *http.Server
}

// New creates a server listening on addr. status may be nil.
func New(addr string, status StatusFunc, logger *zap.Logger) *Server {
	s := &Server{
		addr:      addr,
		status:    status,
		logger:    logging.OrNop(logger),
		startTime: time.Now(),
	}

	r := chi.NewRouter()
	r.Use(middleware.CleanPath)
	r.Use(middleware.Recoverer)
	r.Get("/", s.handleAlive)
	r.Head("/", s.handleAlive)
	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())
	s.router = r
	return s
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler { return s.router }

// Start serves until ctx is done, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve is Start on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.srv = &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("http server listening", zap.String("addr", ln.Addr().String()))

	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		<-ctx.Done()
		s.Stop()
	}()

	err := s.srv.Serve(ln)
	if errors.Is(err, http.ErrServerClosed) {
		<-stopped
		return nil
	}
	return err
}

// Stop shuts the server down, waiting up to 5s for open requests.
func (s *Server) Stop() {
	if s.srv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.srv.Shutdown(ctx); err != nil {
		s.logger.Warn("http shutdown", zap.Error(err))
	}
}

func (s *Server) handleAlive(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte(AliveText))
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	st := Status{
		Status: "ok",
		Uptime: int(time.Since(s.startTime).Seconds()),
	}
	if s.status != nil {
		s.status(&st)
	}
	code := http.StatusOK
	if st.Status != "ok" {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, st)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
