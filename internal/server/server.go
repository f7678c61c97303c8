// Package server exposes the triage service over HTTP.
package server

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/mindlog-lab/mindlog/internal/store"
	"github.com/mindlog-lab/mindlog/internal/triage"
)

// Options configures the HTTP layer. Zero fields take defaults.
type Options struct {
	Port              int
	Token             string
	AllowedOrigins    []string
	RateLimitRequests int
	RateLimitWindow   time.Duration
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
}

type Server struct {
	svc       *triage.Service
	store     store.EventStore
	logger    *zap.Logger
	opts      Options
	token     string
	router    chi.Router
	startTime time.Time
}

func New(svc *triage.Service, st store.EventStore, log *zap.Logger, opts Options) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	if opts.Port == 0 {
		opts.Port = 8080
	}
	if len(opts.AllowedOrigins) == 0 {
		opts.AllowedOrigins = []string{"*"}
	}
	if opts.RateLimitRequests <= 0 {
		opts.RateLimitRequests = 120
	}
	if opts.RateLimitWindow <= 0 {
		opts.RateLimitWindow = time.Minute
	}

	srv := &Server{
		svc:       svc,
		store:     st,
		logger:    log,
		opts:      opts,
		token:     opts.Token,
		router:    chi.NewRouter(),
		startTime: time.Now(),
	}
	if srv.token == "" {
		srv.token = generateToken()
	}

	srv.setupRoutes()
	return srv
}

func (s *Server) setupRoutes() {
	r := s.router

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(requestLogging(s.logger))
	r.Use(chimiddleware.Recoverer)

	// Public endpoints
	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: s.opts.AllowedOrigins,
			AllowedMethods: []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Request-Id"},
			ExposedHeaders: []string{"X-Request-Id"},
			MaxAge:         300,
		}))
		r.Use(rateLimit(s.opts.RateLimitRequests, s.opts.RateLimitWindow))

		r.Post("/sessions", s.handleCreateSession)
		r.Post("/turns", s.handleTurn)
		r.Post("/sessions/{id}/decision", s.handleDecision)

		r.With(s.authMiddleware).Get("/summary", s.handleSummary)
	})

	// Dashboard (protected)
	r.With(s.authMiddleware).Get("/dashboard", s.handleDashboard)
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", s.opts.Port),
		Handler:      s.router,
		ReadTimeout:  s.opts.ReadTimeout,
		WriteTimeout: s.opts.WriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server listening", zap.Int("port", s.opts.Port))
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	return nil
}

func (s *Server) Token() string {
	return s.token
}

func (s *Server) Port() int {
	return s.opts.Port
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func generateToken() string {
	bytes := make([]byte, 8)
	if _, err := rand.Read(bytes); err != nil {
		// Fallback to a simple token if crypto/rand fails
		return "a1b2c3d4e5f60718"
	}
	return hex.EncodeToString(bytes)
}
