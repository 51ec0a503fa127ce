package http

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// Server is the local observation surface. Every endpoint reads state
// that the pipeline and optimizer produce; only /optimize, /experiments
// and /feedback accept writes, and those go through the same guarded
// components the CLI uses.
type Server struct {
	router   *mux.Router
	server   *http.Server
	handlers *Handlers
	limiter  *rate.Limiter
	config   ServerConfig
	log      zerolog.Logger
}

// ServerConfig holds server configuration.
type ServerConfig struct {
	Host           string
	Port           int
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	RequestTimeout time.Duration
	RPS            float64
	Burst          int
}

// DefaultServerConfig returns the local-only defaults. HTTP_PORT
// overrides the port.
func DefaultServerConfig() ServerConfig {
	port := 8080
	if portStr := os.Getenv("HTTP_PORT"); portStr != "" {
		if p, err := strconv.Atoi(portStr); err == nil {
			port = p
		}
	}

	return ServerConfig{
		Host:           "127.0.0.1",
		Port:           port,
		ReadTimeout:    10 * time.Second,
		WriteTimeout:   15 * time.Second,
		IdleTimeout:    60 * time.Second,
		RequestTimeout: 30 * time.Second,
		RPS:            50,
		Burst:          100,
	}
}

// NewServer wires the handler set into a router and verifies the port
// is free before anything else starts depending on it.
func NewServer(config ServerConfig, deps Deps) (*Server, error) {
	addr := fmt.Sprintf("%s:%d", config.Host, config.Port)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("port %d is busy or unavailable: %w", config.Port, err)
	}
	listener.Close()

	server := &Server{
		router:   mux.NewRouter(),
		handlers: NewHandlers(deps),
		limiter:  rate.NewLimiter(rate.Limit(config.RPS), config.Burst),
		config:   config,
		log:      deps.Logger.With().Str("component", "http_server").Logger(),
	}

	server.setupRoutes()

	server.server = &http.Server{
		Addr:         addr,
		Handler:      server.router,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
		IdleTimeout:  config.IdleTimeout,
	}

	return server, nil
}

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() {
	s.router.Use(s.requestIDMiddleware)
	s.router.Use(s.requestLoggingMiddleware)
	s.router.Use(s.corsMiddleware)

	// The stream and metrics endpoints stay outside the API subrouter:
	// one is long-lived, the other serves plain text, and neither
	// tolerates the request timeout or the JSON content type.
	s.router.HandleFunc("/ws/progress", s.handlers.Progress).Methods("GET")
	s.router.Handle("/metrics", s.handlers.Metrics().Handler()).Methods("GET")

	api := s.router.PathPrefix("/").Subrouter()
	api.Use(s.rateLimitMiddleware)
	api.Use(s.timeoutMiddleware)
	api.Use(s.jsonContentTypeMiddleware)

	api.HandleFunc("/health", s.handlers.Health).Methods("GET")
	api.HandleFunc("/optimize", s.handlers.Optimize).Methods("POST")
	api.HandleFunc("/experiments", s.handlers.CreateExperiment).Methods("POST")
	api.HandleFunc("/experiments", s.handlers.ListExperiments).Methods("GET")
	api.HandleFunc("/monitoring/dashboard", s.handlers.Dashboard).Methods("GET")
	api.HandleFunc("/cache/stats", s.handlers.CacheStats).Methods("GET")
	api.HandleFunc("/feedback", s.handlers.Feedback).Methods("POST")
	api.HandleFunc("/audit/report", s.handlers.AuditReport).Methods("GET")

	s.router.NotFoundHandler = http.HandlerFunc(s.handlers.NotFound)
}

type ctxKey int

const requestIDKey ctxKey = iota

// requestIDFrom returns the request ID stamped by the middleware, or
// "unknown" for contexts that never passed through it.
func requestIDFrom(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey).(string); ok {
		return id
	}
	return "unknown"
}

// requestIDMiddleware adds a unique request ID to each request.
func (s *Server) requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := uuid.New().String()[:8]
		ctx := context.WithValue(r.Context(), requestIDKey, requestID)
		w.Header().Set("X-Request-ID", requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requestLoggingMiddleware logs every request with its outcome.
func (s *Server) requestLoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapper := &responseWrapper{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(wrapper, r)

		s.log.Info().
			Str("request_id", requestIDFrom(r.Context())).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", wrapper.statusCode).
			Dur("elapsed", time.Since(start)).
			Str("remote", r.RemoteAddr).
			Msg("request")
	})
}

// timeoutMiddleware enforces the per-request deadline on API routes.
func (s *Server) timeoutMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), s.config.RequestTimeout)
		defer cancel()
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// rateLimitMiddleware sheds load once the shared token bucket drains.
func (s *Server) rateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.limiter.Allow() {
			w.Header().Set("Content-Type", "application/json")
			s.handlers.writeError(w, r, http.StatusTooManyRequests, "rate_limited", "too many requests, slow down")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// corsMiddleware adds CORS headers for local development. Only
// localhost origins are allowed.
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if strings.Contains(origin, "localhost") || strings.Contains(origin, "127.0.0.1") {
			w.Header().Set("Access-Control-Allow-Origin", origin)
		}
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// jsonContentTypeMiddleware sets the JSON content type for API routes.
func (s *Server) jsonContentTypeMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	s.log.Info().
		Str("address", s.GetAddress()).
		Float64("rps", s.config.RPS).
		Msg("starting HTTP server")

	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("shutting down HTTP server")
	return s.server.Shutdown(ctx)
}

// GetAddress returns the server address.
func (s *Server) GetAddress() string {
	return fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
}

// Handlers exposes the handler set so callers can reach the progress
// hub and metrics registry behind the routes.
func (s *Server) Handlers() *Handlers {
	return s.handlers
}

// Router exposes the configured handler tree for in-process tests.
func (s *Server) Router() http.Handler {
	return s.router
}

// responseWrapper captures HTTP status codes for logging.
type responseWrapper struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWrapper) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Hijack delegates to the underlying writer so the WebSocket upgrade
// works through the logging wrapper.
func (rw *responseWrapper) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := rw.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not support hijacking")
	}
	return hj.Hijack()
}
