package http

import (
	"context"
	"html/template"
	"io"
	"io/fs"
	"net/http"
	"sync"
	"time"

	"budsjett/internal/core"
	applog "budsjett/internal/log"
	"budsjett/internal/services"
	appweb "budsjett/web"
)

// DocumentLoader is the part of the loader service the handlers use.
type DocumentLoader interface {
	Load(ctx context.Context, r io.Reader) (core.Raw, error)
	Current() core.Raw
	Ping(ctx context.Context) error
}

var _ DocumentLoader = (*services.LoaderService)(nil)

// Options tunes a Server. Zero values select defaults.
type Options struct {
	Formatter      core.Formatter
	MaxUploadBytes int64
	Logger         *applog.Logger
}

type Server struct {
	http.Server
	templates      *template.Template
	loader         DocumentLoader
	formatter      core.Formatter
	maxUploadBytes int64

	logger      *applog.Logger
	structured  *applog.StructuredLogger
	rateLimiter *rateLimiter
	security    *securityMetrics
	appMetrics  *appMetrics

	shutdownOnce sync.Once
}

// NewServer configures routes and templates, returning a ready-to-run http.Server.
func NewServer(addr string, loader DocumentLoader, opts Options) *Server {
	mux := http.NewServeMux()

	if opts.Logger == nil {
		opts.Logger = applog.New(applog.DefaultConfig())
	}
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = services.DefaultMaxDocumentBytes
	}
	if opts.Formatter.Location == nil {
		opts.Formatter = core.DefaultFormatter()
	}

	s := &Server{
		Server: http.Server{
			Addr:              addr,
			Handler:           applog.Middleware(opts.Logger)(mux),
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       30 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       120 * time.Second,
		},
		loader:         loader,
		formatter:      opts.Formatter,
		maxUploadBytes: opts.MaxUploadBytes,
		logger:         opts.Logger.WithComponent(applog.ComponentHTTP),
		structured:     applog.NewStructuredLogger(opts.Logger),
		rateLimiter:    newRateLimiter(),
		security:       &securityMetrics{},
		appMetrics:     &appMetrics{uptime: time.Now()},
	}

	// Parse embedded templates at startup.
	t, err := template.ParseFS(appweb.TemplatesFS, "templates/*.html")
	if err != nil {
		s.logger.Warn("Failed parsing templates", applog.FieldError, err)
	}
	s.templates = t

	// Static assets (served from embedded FS)
	if sub, err := fs.Sub(appweb.StaticFS, "static"); err == nil {
		static := http.StripPrefix("/static/", http.FileServer(http.FS(sub)))
		mux.Handle("/static/", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Cache-Control", "public, max-age=3600")
			static.ServeHTTP(w, r)
		}))
		mux.HandleFunc("/sw.js", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Cache-Control", "no-cache")
			w.Header().Set("Service-Worker-Allowed", "/")
			http.ServeFileFS(w, r, sub, "sw.js")
		})
	} else {
		s.logger.Warn("Failed to mount embedded static FS", applog.FieldError, err)
	}

	mux.HandleFunc("/", s.withSecurityHeaders(s.handleIndex))
	mux.HandleFunc("/ui/view", s.withSecurityHeaders(s.handleView))
	mux.HandleFunc("/load", s.withSecurityHeaders(s.handleLoad))
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/readyz", s.handleReady)
	mux.HandleFunc("/metrics", s.handleMetrics)

	return s
}

// Shutdown stops the rate limiter and drains the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.rateLimiter.stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}
