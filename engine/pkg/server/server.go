// Package server exposes the vesting operations over HTTP. Caller identity
// arrives in the X-Caller-Key header as a base58 public key; signature
// verification is the upstream gateway's concern.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"github.com/haiolabs/vesting/engine/pkg/engine"
)

// VersionInfo contains build-time version information.
type VersionInfo struct {
	Version string `json:"version"`
	Commit  string `json:"commit"`
	Date    string `json:"date"`
}

type Config struct {
	Logger            *slog.Logger
	Engine            *engine.Engine
	ListenAddr        string
	ReadHeaderTimeout time.Duration
	ShutdownTimeout   time.Duration
	VersionInfo       VersionInfo

	// CrankRate limits POST /v1/crank per client IP; zero applies the
	// default of 60 calls/minute with a burst of 10.
	CrankRate  rate.Limit
	CrankBurst int
}

func (cfg *Config) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.Engine == nil {
		return errors.New("engine is required")
	}
	if cfg.ListenAddr == "" {
		return errors.New("listen addr is required")
	}
	if cfg.ReadHeaderTimeout <= 0 {
		cfg.ReadHeaderTimeout = 10 * time.Second
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}
	if cfg.CrankRate <= 0 {
		cfg.CrankRate = rate.Every(time.Minute / 60)
	}
	if cfg.CrankBurst <= 0 {
		cfg.CrankBurst = 10
	}
	return nil
}

type Server struct {
	log     *slog.Logger
	cfg     Config
	engine  *engine.Engine
	router  *chi.Mux
	httpSrv *http.Server
}

func New(cfg Config) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	s := &Server{
		log:    cfg.Logger,
		cfg:    cfg,
		engine: cfg.Engine,
		router: chi.NewRouter(),
	}

	s.router.Use(middleware.RealIP)
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Caller-Key"},
		MaxAge:         300,
	}))

	crankLimiter := NewRateLimiter(cfg.CrankRate, cfg.CrankBurst)
	s.router.Route("/v1", func(r chi.Router) {
		r.Post("/initialize", s.handleInitialize)
		r.Post("/schedules", s.handleCreateSchedule)
		r.With(RateLimitMiddleware(crankLimiter)).Post("/crank", s.handleCrank)
		r.Post("/collector", s.handleUpdateCollector)
		r.Get("/config", s.handleGetConfig)
		r.Get("/schedules/{id}", s.handleGetSchedule)
		r.Get("/schedules/{id}/record", s.handleGetScheduleRecord)
		r.Delete("/schedules/{id}", s.handleCloseSchedule)
	})

	s.router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("ok\n")); err != nil {
			s.log.Error("failed to write healthz response", "error", err)
		}
	})
	s.router.Get("/readyz", s.readyzHandler)
	s.router.Get("/version", s.versionHandler)
	s.router.Handle("/metrics", promhttp.Handler())

	s.httpSrv = &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           s.router,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20, // 1MB
	}

	return s, nil
}

// Handler returns the routed handler, for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) Run(ctx context.Context) error {
	serveErrCh := make(chan error, 1)
	go func() {
		if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.log.Error("server: http server error", "error", err)
			serveErrCh <- fmt.Errorf("failed to listen and serve: %w", err)
		}
	}()

	s.log.Info("server: http listening", "address", s.cfg.ListenAddr)

	select {
	case <-ctx.Done():
		s.log.Info("server: stopping", "reason", ctx.Err(), "address", s.cfg.ListenAddr)
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer shutdownCancel()
		if err := s.httpSrv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("failed to shutdown server: %w", err)
		}
		s.log.Info("server: http server shutdown complete")
		return nil
	case err := <-serveErrCh:
		s.log.Error("server: http server error causing shutdown", "error", err, "address", s.cfg.ListenAddr)
		return err
	}
}

func (s *Server) readyzHandler(w http.ResponseWriter, r *http.Request) {
	// Ready once the store answers; an uninitialized program is still ready.
	if _, err := s.engine.Config(r.Context()); err != nil && !isExpected(err) {
		s.log.Debug("readyz: store not ready", "error", err)
		w.WriteHeader(http.StatusServiceUnavailable)
		if _, err := w.Write([]byte("store not ready\n")); err != nil {
			s.log.Error("failed to write readyz response", "error", err)
		}
		return
	}

	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte("ok\n")); err != nil {
		s.log.Error("failed to write readyz response", "error", err)
	}
}

func (s *Server) versionHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(s.cfg.VersionInfo); err != nil {
		s.log.Error("failed to write version response", "error", err)
	}
}
