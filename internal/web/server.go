// Package web provides the HTTP intake for the import pipeline: the object
// storage event hook that drives the file parser and the upload gate that
// hands out presigned upload URLs.
package web

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/JonMunkholm/catalog-import/internal/core"
	"github.com/JonMunkholm/catalog-import/internal/logging"
	webmw "github.com/JonMunkholm/catalog-import/internal/web/middleware"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// EventParser parses one uploaded object. *core.FileParser satisfies it.
type EventParser interface {
	InUploadNamespace(key string) bool
	Parse(ctx context.Context, ref core.ObjectRef) (*core.ParseResult, error)
}

// Presigner issues upload URLs. *objectstore.S3 satisfies it.
type Presigner interface {
	PresignPut(ctx context.Context, bucket, key, contentType string, ttl time.Duration) (string, error)
}

// Options configures the listener, routes and middleware of a Server.
type Options struct {
	Addr string

	Bucket       string
	UploadPrefix string
	PresignTTL   time.Duration

	// RequestTimeout bounds each request. Zero disables the timeout.
	RequestTimeout time.Duration

	// RequestsPerMinute is the per-client rate on the upload gate. Zero
	// disables rate limiting.
	RequestsPerMinute int

	// MaxConcurrentParses and ParseWait bound the event hook. Zero values
	// take the core.ParseLimiter defaults.
	MaxConcurrentParses int
	ParseWait           time.Duration

	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration

	// QueuePing, when set, is checked by /healthz. A failure answers 503.
	QueuePing func(ctx context.Context) error
}

const healthCheckTimeout = 2 * time.Second

// Server is the HTTP server for event intake and the upload gate.
type Server struct {
	parser    EventParser
	presigner Presigner
	limiter   *core.ParseLimiter
	opts      Options
	router    *chi.Mux
	server    *http.Server
}

// NewServer creates a new Server instance.
func NewServer(parser EventParser, presigner Presigner, opts Options) *Server {
	if opts.UploadPrefix == "" {
		opts.UploadPrefix = "uploaded"
	}
	if opts.PresignTTL <= 0 {
		opts.PresignTTL = time.Hour
	}

	s := &Server{
		parser:    parser,
		presigner: presigner,
		limiter:   core.NewParseLimiter(opts.MaxConcurrentParses, opts.ParseWait),
		opts:      opts,
		router:    chi.NewRouter(),
	}
	s.setupMiddleware()
	s.setupRoutes()
	s.server = &http.Server{
		Addr:         opts.Addr,
		Handler:      s.router,
		ReadTimeout:  opts.ReadTimeout,
		WriteTimeout: opts.WriteTimeout,
		IdleTimeout:  opts.IdleTimeout,
	}
	return s
}

// setupMiddleware configures middleware for all routes.
func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(webmw.Logger)
	s.router.Use(middleware.Recoverer)
	if s.opts.RequestTimeout > 0 {
		s.router.Use(middleware.Timeout(s.opts.RequestTimeout))
	}
}

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() {
	s.router.Get("/healthz", s.handleHealth)

	// S3 event notifications
	s.router.Post("/events/s3", s.handleS3Event)

	// Upload gate
	s.router.Group(func(r chi.Router) {
		if s.opts.RequestsPerMinute > 0 {
			limiter := webmw.NewRateLimiter(s.opts.RequestsPerMinute, time.Minute)
			r.Use(limiter.Middleware(s.rateLimited))
		}
		r.Use(cors)
		r.Get("/import", s.handleImport)
		r.Options("/import", s.handleImportPreflight)
	})
}

// Start listens until Shutdown is called, then returns http.ErrServerClosed.
func (s *Server) Start() error {
	slog.Info("http server listening", "addr", s.server.Addr)
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server. It may be called from another
// goroutine while Start is running.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// Router returns the underlying chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := http.StatusOK
	body := map[string]any{
		"status": "ok",
		"parses": s.limiter.Status(),
	}

	if s.opts.QueuePing != nil {
		ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
		defer cancel()
		if err := s.opts.QueuePing(ctx); err != nil {
			logging.FromContext(r.Context()).Warn("queue health check failed", "error", err)
			status = http.StatusServiceUnavailable
			body["status"] = "degraded"
			body["queue"] = "unreachable"
		} else {
			body["queue"] = "ok"
		}
	}

	writeJSON(w, r, status, body)
}

// cors answers the browser upload flow, which requests a URL from another origin.
func cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		next.ServeHTTP(w, r)
	})
}

// writeJSON encodes v as JSON with the given status.
// Encoding errors are only logged since headers are already sent.
func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.FromContext(r.Context()).Error("json encode failed", "error", err)
	}
}
