// Package web serves the status API and Prometheus metrics over HTTP.
package web

import (
	"context"
	"net/http"
	"time"

	"github.com/julienschmidt/httprouter"
	"go.uber.org/zap"

	"gpumon/internal/history"
	"gpumon/internal/metrics"
	"gpumon/internal/monitor"
)

type route struct {
	name    string
	method  string
	pattern string
	handler http.HandlerFunc
}

// Server exposes the current snapshot, recent availability history, and
// Prometheus metrics. History and metrics routes are mounted only when the
// corresponding component is wired in.
type Server struct {
	store   *monitor.Store
	history *history.DB
	metrics *metrics.Metrics
	log     *zap.Logger

	httpServer *http.Server
}

func NewServer(store *monitor.Store, db *history.DB, m *metrics.Metrics, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{store: store, history: db, metrics: m, log: log}
}

func (s *Server) routes() []route {
	rs := []route{
		{"snapshot", http.MethodGet, "/api/v1/snapshot", s.handleSnapshot},
		{"health", http.MethodGet, "/api/v1/health", s.handleHealth},
	}
	if s.history != nil {
		rs = append(rs, route{"availability-history", http.MethodGet, "/api/v1/history/availability", s.handleAvailabilityHistory})
	}
	if s.metrics != nil {
		rs = append(rs, route{"metrics", http.MethodGet, "/metrics", s.metrics.Handler().ServeHTTP})
	}
	return rs
}

// Handler builds the router for all mounted routes.
func (s *Server) Handler() http.Handler {
	router := httprouter.New()
	for _, r := range s.routes() {
		router.Handler(r.method, r.pattern, s.loggingHandler(r.handler, r.name))
	}
	return router
}

func (s *Server) loggingHandler(inner http.Handler, name string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		inner.ServeHTTP(w, r)
		s.log.Debug("handled request",
			zap.String("route", name),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Duration("elapsed", time.Since(start)))
	})
}

// Start begins serving on addr in a background goroutine.
func (s *Server) Start(addr string) {
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	s.log.Info("status API listening", zap.String("addr", addr))
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.log.Error("status API serving error", zap.Error(err))
		}
	}()
}

// Stop shuts the server down, waiting up to five seconds for in-flight
// requests to finish.
func (s *Server) Stop() error {
	if s.httpServer == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.httpServer.Shutdown(ctx)
}
