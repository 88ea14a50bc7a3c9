// Package http implements the REST API of the risk monitor.
package http

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/edupredict/risk-monitor/config"
	"github.com/edupredict/risk-monitor/internal/application/command"
	"github.com/edupredict/risk-monitor/internal/application/eventhandler"
	"github.com/edupredict/risk-monitor/internal/application/query"
	"github.com/edupredict/risk-monitor/internal/application/report"
	"github.com/edupredict/risk-monitor/internal/domain/intervention"
	"github.com/edupredict/risk-monitor/internal/domain/risk"
	"github.com/edupredict/risk-monitor/internal/interface/http/handlers"
	"github.com/edupredict/risk-monitor/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// SERVER CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// Config contains HTTP server configuration.
type Config struct {
	Host string
	Port int

	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration

	MaxHeaderBytes int

	// MaxUploadSize bounds a single attached document. Request bodies are
	// capped slightly above it to leave room for the other form fields.
	MaxUploadSize int64

	AllowedOrigins []string

	// RateLimitPerMinute is per client IP. Zero disables it.
	RateLimitPerMinute int

	APIKeyHeader string
	// APIKeyHash is a bcrypt hash of the staff key. Empty disables auth.
	APIKeyHash string

	Version string
}

// DefaultConfig returns default server configuration.
func DefaultConfig() Config {
	return Config{
		Host:               "0.0.0.0",
		Port:               8080,
		ReadTimeout:        15 * time.Second,
		WriteTimeout:       90 * time.Second,
		IdleTimeout:        60 * time.Second,
		MaxHeaderBytes:     1 << 20,
		MaxUploadSize:      10 << 20,
		AllowedOrigins:     []string{"*"},
		RateLimitPerMinute: 300,
		APIKeyHeader:       "X-API-Key",
		Version:            "v1",
	}
}

// ConfigFrom maps application settings onto the server config.
func ConfigFrom(cfg *config.Config) Config {
	c := DefaultConfig()
	c.Host = cfg.HTTP.Host
	c.Port = cfg.HTTP.Port
	if cfg.HTTP.ReadTimeout > 0 {
		c.ReadTimeout = cfg.HTTP.ReadTimeout
	}
	if cfg.HTTP.WriteTimeout > 0 {
		c.WriteTimeout = cfg.HTTP.WriteTimeout
	}
	if cfg.HTTP.IdleTimeout > 0 {
		c.IdleTimeout = cfg.HTTP.IdleTimeout
	}
	if len(cfg.HTTP.CORSAllowedOrigins) > 0 {
		c.AllowedOrigins = cfg.HTTP.CORSAllowedOrigins
	}
	c.RateLimitPerMinute = cfg.HTTP.RateLimitPerMinute
	if cfg.Storage.MaxUploadSize > 0 {
		c.MaxUploadSize = cfg.Storage.MaxUploadSize
	}
	if cfg.Auth.HeaderName != "" {
		c.APIKeyHeader = cfg.Auth.HeaderName
	}
	c.APIKeyHash = cfg.Auth.APIKeyHash
	c.Version = cfg.App.Version
	return c
}

// Address returns the server address string.
func (c Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// ══════════════════════════════════════════════════════════════════════════════
// DEPENDENCIES
// ══════════════════════════════════════════════════════════════════════════════

// PolicyReader exposes the active risk policy.
type PolicyReader interface {
	Policy() risk.Policy
}

// FeatureChecker reports whether an optional surface is enabled.
type FeatureChecker interface {
	IsEnabled(name string) bool
}

type allFeatures struct{}

func (allFeatures) IsEnabled(string) bool { return true }

// Dependencies contains everything the handlers call into.
type Dependencies struct {
	// Queries
	ListStudents      *query.ListStudentsHandler
	GetStudent        *query.GetStudentHandler
	DrillDown         *query.DrillDownHandler
	ListInterventions *query.ListInterventionsHandler
	Dashboard         *query.DashboardSummaryHandler
	AdminStats        *query.AdminStatsHandler

	// Commands
	AssignIntervention *command.AssignInterventionHandler
	UpdateStatus       *command.UpdateInterventionStatusHandler
	UpdateThresholds   *command.UpdateThresholdsHandler
	RefreshRegistry    *command.RefreshRegistryHandler

	Policies  PolicyReader
	Reports   *report.Coordinator
	Documents intervention.DocumentStore
	// Activity is optional; without it the activity route returns an empty list.
	Activity *eventhandler.ActivityFeed

	Health   *handlers.CompositeHealthChecker
	Features FeatureChecker
	Logger   *logger.Logger
}

// ══════════════════════════════════════════════════════════════════════════════
// SERVER
// ══════════════════════════════════════════════════════════════════════════════

// Server is the API server.
type Server struct {
	config     Config
	deps       Dependencies
	httpServer *http.Server
	router     *http.ServeMux
	handler    http.Handler
	logger     *logger.Logger
	tracer     trace.Tracer

	rateLimiter *rateLimiter

	mu        sync.RWMutex
	running   bool
	startedAt time.Time
}

// NewServer creates a server with all routes registered.
func NewServer(cfg Config, deps Dependencies) *Server {
	if deps.Logger == nil {
		deps.Logger = logger.Nop()
	}
	if deps.Features == nil {
		deps.Features = allFeatures{}
	}
	if deps.Health == nil {
		deps.Health = handlers.NewCompositeHealthChecker(cfg.Version)
	}

	s := &Server{
		config:    cfg,
		deps:      deps,
		router:    http.NewServeMux(),
		logger:    deps.Logger.With(logger.Component("http")),
		tracer:    otel.Tracer("github.com/edupredict/risk-monitor/http"),
		startedAt: time.Now(),
	}
	if cfg.RateLimitPerMinute > 0 {
		s.rateLimiter = newRateLimiter(cfg.RateLimitPerMinute, time.Minute)
	}

	s.setupRoutes()
	s.handler = s.buildMiddlewareChain(s.router)

	s.httpServer = &http.Server{
		Addr:           cfg.Address(),
		Handler:        s.handler,
		ReadTimeout:    cfg.ReadTimeout,
		WriteTimeout:   cfg.WriteTimeout,
		IdleTimeout:    cfg.IdleTimeout,
		MaxHeaderBytes: cfg.MaxHeaderBytes,
	}
	return s
}

// Handler returns the fully wrapped handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// ══════════════════════════════════════════════════════════════════════════════
// ROUTING
// ══════════════════════════════════════════════════════════════════════════════

func (s *Server) setupRoutes() {
	s.router.HandleFunc("GET /health", s.handleHealth)
	s.router.HandleFunc("GET /ready", s.handleReady)
	s.router.HandleFunc("GET /live", s.handleLive)

	auth := handlers.NewAPIKeyAuth(s.config.APIKeyHeader, s.config.APIKeyHash, func(w http.ResponseWriter, r *http.Request, code, message string) {
		writeErrorCode(w, r, http.StatusUnauthorized, code, message, nil)
	})
	protect := func(pattern string, h http.HandlerFunc) {
		s.router.Handle(pattern, handlers.ChainHandler(h, auth.Middleware, handlers.NoCacheMiddleware))
	}

	// Students & risk
	protect("GET /api/v1/students", s.handleListStudents)
	protect("GET /api/v1/students/{id}", s.handleGetStudent)
	protect("GET /api/v1/students/{id}/interventions", s.handleStudentInterventions)
	protect("GET /api/v1/risk/distribution", s.handleDistribution)
	protect("GET /api/v1/risk/drilldown", s.handleDrillDown)
	protect("GET /api/v1/dashboard/summary", s.handleDashboardSummary)
	protect("GET /api/v1/admin/stats", s.handleAdminStats)
	protect("GET /api/v1/activity", s.handleActivity)

	// Settings & registry
	protect("GET /api/v1/settings/thresholds", s.handleGetThresholds)
	protect("PUT /api/v1/settings/thresholds", s.handleUpdateThresholds)
	protect("POST /api/v1/registry/refresh", s.handleRefreshRegistry)

	// Interventions
	protect("GET /api/v1/interventions", s.handleListInterventions)
	protect("POST /api/v1/interventions", s.handleAssignIntervention)
	protect("PUT /api/v1/interventions/{id}", s.handleUpdateIntervention)
	protect("GET /api/v1/uploads/interventions/{handle}", s.handleDownloadDocument)

	// Reports
	protect("POST /api/v1/reports/{kind}", s.handleRequestReport)
	protect("GET /api/v1/reports/{kind}", s.handleReportStatus)
	protect("DELETE /api/v1/reports/{kind}", s.handleCancelReport)
	protect("GET /api/v1/reports/{kind}/download", s.handleDownloadReport)
}

// ══════════════════════════════════════════════════════════════════════════════
// MIDDLEWARE CHAIN
// ══════════════════════════════════════════════════════════════════════════════

// buildMiddlewareChain wraps the router. Recovery is innermost so panics
// are still logged and traced.
func (s *Server) buildMiddlewareChain(handler http.Handler) http.Handler {
	h := s.recoveryMiddleware(handler)
	h = handlers.RequestSizeLimitMiddleware(s.config.MaxUploadSize + 1<<20)(h)
	h = s.loggingMiddleware(h)
	h = s.tracingMiddleware(h)
	if s.rateLimiter != nil {
		h = s.rateLimitMiddleware(h)
	}
	h = s.corsMiddleware(h)
	h = handlers.SecurityHeadersMiddleware(h)
	h = s.requestIDMiddleware(h)
	return h
}

// requestIDMiddleware assigns each request an ID and a request-scoped logger.
func (s *Server) requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := strings.TrimSpace(r.Header.Get("X-Request-ID"))
		if requestID == "" || len(requestID) > 128 {
			requestID = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", requestID)

		ctx := context.WithValue(r.Context(), contextKeyRequestID, requestID)
		ctx = logger.WithContext(ctx, s.logger.WithRequestID(requestID))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) tracingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))
		ctx, span := s.tracer.Start(ctx, r.Method+" "+r.URL.Path,
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(
				attribute.String("http.request.method", r.Method),
				attribute.String("url.path", r.URL.Path),
				attribute.String("request_id", getRequestID(r.Context())),
			),
		)
		defer span.End()

		rw := wrapResponseWriter(w)
		next.ServeHTTP(rw, r.WithContext(ctx))
		span.SetAttributes(attribute.Int("http.response.status_code", rw.statusCode))
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := wrapResponseWriter(w)

		next.ServeHTTP(rw, r)

		fields := []logger.Field{
			logger.String("method", r.Method),
			logger.String("path", r.URL.Path),
			logger.Int("status", rw.statusCode),
			logger.Latency(time.Since(start)),
			logger.String("ip", getClientIP(r)),
		}
		log := logger.FromContext(r.Context())
		switch {
		case rw.statusCode >= 500:
			log.Error("http request", fields...)
		case r.URL.Path == "/health" || r.URL.Path == "/live" || r.URL.Path == "/ready":
			log.Debug("http request", fields...)
		default:
			log.Info("http request", fields...)
		}
	})
}

// recoveryMiddleware turns panics into 500 envelopes.
func (s *Server) recoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				logger.FromContext(r.Context()).Error("panic recovered",
					logger.Any("panic", rec),
					logger.String("stack", string(debug.Stack())),
					logger.String("path", r.URL.Path),
				)
				writeErrorCode(w, r, http.StatusInternalServerError, CodeInternal, "An unexpected error occurred", nil)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" && s.originAllowed(origin) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Vary", "Origin")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, "+s.config.APIKeyHeader+", X-Request-ID")
			w.Header().Set("Access-Control-Expose-Headers", "Content-Disposition, X-Request-ID")
			w.Header().Set("Access-Control-Max-Age", "86400")
		}

		if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) originAllowed(origin string) bool {
	for _, o := range s.config.AllowedOrigins {
		if o == "*" || strings.EqualFold(o, origin) {
			return true
		}
	}
	return false
}

func (s *Server) rateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.rateLimiter.Allow(getClientIP(r)) {
			w.Header().Set("Retry-After", "60")
			writeErrorCode(w, r, http.StatusTooManyRequests, CodeRateLimited, "Too many requests, please try again later", nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// ══════════════════════════════════════════════════════════════════════════════
// SERVER LIFECYCLE
// ══════════════════════════════════════════════════════════════════════════════

// Start serves until Shutdown is called.
func (s *Server) Start() error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("server already running")
	}
	s.running = true
	s.startedAt = time.Now()
	s.mu.Unlock()

	s.logger.Info("starting HTTP server", logger.String("address", s.config.Address()))

	err := s.httpServer.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	s.mu.Unlock()

	if s.rateLimiter != nil {
		s.rateLimiter.Stop()
	}
	s.logger.Info("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) Uptime() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return time.Since(s.startedAt)
}

// ══════════════════════════════════════════════════════════════════════════════
// HELPER TYPES AND FUNCTIONS
// ══════════════════════════════════════════════════════════════════════════════

type contextKey string

const contextKeyRequestID contextKey = "request_id"

// responseWriter captures the status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode  int
	wroteHeader bool
}

func wrapResponseWriter(w http.ResponseWriter) *responseWriter {
	if rw, ok := w.(*responseWriter); ok {
		return rw
	}
	return &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
}

func (rw *responseWriter) WriteHeader(code int) {
	if !rw.wroteHeader {
		rw.statusCode = code
		rw.wroteHeader = true
	}
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	rw.wroteHeader = true
	return rw.ResponseWriter.Write(b)
}

func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

func getClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if first, _, _ := strings.Cut(xff, ","); strings.TrimSpace(first) != "" {
			return strings.TrimSpace(first)
		}
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func getRequestID(ctx context.Context) string {
	if id, ok := ctx.Value(contextKeyRequestID).(string); ok {
		return id
	}
	return ""
}

// ══════════════════════════════════════════════════════════════════════════════
// RATE LIMITER
// ══════════════════════════════════════════════════════════════════════════════

// rateLimiter is a per-key sliding window.
type rateLimiter struct {
	mu       sync.Mutex
	requests map[string][]time.Time
	limit    int
	window   time.Duration
	stop     chan struct{}
	once     sync.Once
}

func newRateLimiter(limit int, window time.Duration) *rateLimiter {
	rl := &rateLimiter{
		requests: make(map[string][]time.Time),
		limit:    limit,
		window:   window,
		stop:     make(chan struct{}),
	}
	go rl.cleanup()
	return rl
}

func (rl *rateLimiter) Allow(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	valid := pruneBefore(rl.requests[key], now.Add(-rl.window))
	if len(valid) >= rl.limit {
		rl.requests[key] = valid
		return false
	}
	rl.requests[key] = append(valid, now)
	return true
}

func (rl *rateLimiter) Stop() {
	rl.once.Do(func() { close(rl.stop) })
}

func (rl *rateLimiter) cleanup() {
	ticker := time.NewTicker(rl.window)
	defer ticker.Stop()

	for {
		select {
		case <-rl.stop:
			return
		case <-ticker.C:
		}

		rl.mu.Lock()
		cutoff := time.Now().Add(-rl.window)
		for key, requests := range rl.requests {
			if valid := pruneBefore(requests, cutoff); len(valid) == 0 {
				delete(rl.requests, key)
			} else {
				rl.requests[key] = valid
			}
		}
		rl.mu.Unlock()
	}
}

func pruneBefore(ts []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(ts) && !ts[i].After(cutoff) {
		i++
	}
	return ts[i:]
}
