// Package httpapi serves the tacticallink REST API over the in-memory store.
package httpapi

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dmitrijs2005/tacticallink/internal/clock"
	"github.com/dmitrijs2005/tacticallink/internal/logging"
	"github.com/dmitrijs2005/tacticallink/internal/server/store"
)

const ServiceName = "TacticalLink Backend"

type Server struct {
	address   string
	store     *store.Store
	logger    logging.Logger
	clk       clock.Clock
	jwtSecret []byte
	tokenTTL  time.Duration
	isAdmin   func(username string) bool
	metrics   *metrics
	gatherer  prometheus.Gatherer
}

type Option func(*Server)

func WithClock(c clock.Clock) Option {
	return func(s *Server) { s.clk = c }
}

// WithAdmins decides which newly registered usernames get admin rights.
func WithAdmins(isAdmin func(username string) bool) Option {
	return func(s *Server) { s.isAdmin = isAdmin }
}

// WithRegistry registers the request metrics on reg and serves it on
// /metrics.
func WithRegistry(reg *prometheus.Registry) Option {
	return func(s *Server) {
		s.metrics = newMetrics(reg)
		s.gatherer = reg
	}
}

func NewServer(address string, st *store.Store, l logging.Logger, secretKey string, tokenTTL time.Duration, opts ...Option) *Server {
	s := &Server{
		address:   address,
		store:     st,
		logger:    l.With("module", "http_server"),
		clk:       clock.Real(),
		jwtSecret: []byte(secretKey),
		tokenTTL:  tokenTTL,
		isAdmin:   func(string) bool { return false },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Router builds the handler tree. It is exported for tests that serve it
// through httptest.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(echoRequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/", s.handleHealth)
	r.Post("/auth/register", s.handleRegister)
	r.Post("/auth/login", s.handleLogin)

	r.Group(func(r chi.Router) {
		r.Use(s.requireToken)

		r.Get("/auth/verify", s.handleVerify)
		s.registerChatRoutes(r)
		s.registerRoomRoutes(r)
		s.registerThreatRoutes(r)
	})

	if s.gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}
	return r
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	listen, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}
	return s.Serve(ctx, listen)
}

func (s *Server) Serve(ctx context.Context, listen net.Listener) error {
	srv := &http.Server{
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(listen)
	}()

	s.logger.Info(ctx, "Starting HTTP server", "address", listen.Addr().String())

	select {
	case <-ctx.Done():
		s.logger.Info(ctx, "Stopping HTTP server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func echoRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id := middleware.GetReqID(r.Context()); id != "" {
			w.Header().Set(middleware.RequestIDHeader, id)
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := s.clk.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := routePattern(r)
		took := s.clk.Now().Sub(start)
		s.metrics.observe(r.Method, route, ww.Status(), took)
		s.logger.Debug(r.Context(), "request",
			"method", r.Method,
			"route", route,
			"status", ww.Status(),
			"took", took,
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

func routePattern(r *http.Request) string {
	if rc := chi.RouteContext(r.Context()); rc != nil {
		if p := rc.RoutePattern(); p != "" {
			return p
		}
	}
	return "unmatched"
}

func bearerToken(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	scheme, token, ok := strings.Cut(h, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
		return "", false
	}
	return strings.TrimSpace(token), true
}
