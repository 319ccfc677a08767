package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"budsjett/internal/core"
	applog "budsjett/internal/log"
	"budsjett/internal/view"
)

const (
	indexTemplate = "index.html"
	viewTemplate  = "view"

	// LoadFailedMessage is shown when an upload cannot be parsed.
	LoadFailedMessage = "Kunne ikke lese filen. Sjekk at det er en gyldig budget-export.json."

	// multipartOverhead leaves room for boundaries and part headers on top of
	// the document limit.
	multipartOverhead = 64 << 10
)

// appMetrics tracks application counters exposed on /metrics.
type appMetrics struct {
	documentsLoaded int64
	loadFailures    int64
	renderFailures  int64
	uptime          time.Time
}

func (s *Server) currentView() view.View {
	return view.Build(s.loader.Current(), s.formatter)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		MethodNotAllowedError("GET, HEAD").Write(w)
		return
	}

	data := struct {
		View view.View
	}{
		View: s.currentView(),
	}

	body, err := s.render(indexTemplate, data)
	if err != nil {
		s.renderFailed(r.Context(), indexTemplate, err)
		http.Error(w, "template rendering failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(body)
}

// handleView renders the view partial for the current document.
func (s *Server) handleView(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		MethodNotAllowedError("GET").Write(w)
		return
	}

	body, err := s.renderView(s.currentView())
	if err != nil {
		s.renderFailed(r.Context(), viewTemplate, err)
		InternalServerError("Kunne ikke vise oversikten.").Write(w)
		return
	}
	NewHTMXResponse().BodyHTML(string(body)).Write(w)
}

// handleLoad accepts a multipart upload in field "file". A document that
// cannot be parsed leaves the page untouched and raises a notification.
func (s *Server) handleLoad(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		MethodNotAllowedError("POST").Write(w)
		return
	}
	ctx := r.Context()
	logger := applog.FromContext(ctx).WithComponent(applog.ComponentLoader)

	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes+multipartOverhead)
	file, header, err := r.FormFile("file")
	if err != nil {
		atomic.AddInt64(&s.appMetrics.loadFailures, 1)
		logger.WarnContext(ctx, "Upload could not be read",
			applog.FieldOperation, applog.OpLoad,
			applog.FieldError, err)
		loadFailed().Write(w)
		return
	}
	defer file.Close()

	raw, err := s.loader.Load(ctx, file)
	if err != nil {
		atomic.AddInt64(&s.appMetrics.loadFailures, 1)
		var pe *core.ParseError
		if !errors.As(err, &pe) {
			logger.ErrorContext(ctx, "Loading document failed", applog.FieldError, err)
		} else {
			logger.WarnContext(ctx, "Uploaded document rejected",
				applog.FieldOperation, applog.OpParse,
				applog.FieldFilename, header.Filename,
				applog.FieldError, err)
		}
		loadFailed().Write(w)
		return
	}

	v := view.Build(raw, s.formatter)
	atomic.AddInt64(&s.appMetrics.documentsLoaded, 1)
	s.structured.LogDocumentLoaded(ctx, header.Filename, header.Size, v.HasData)

	body, err := s.renderView(v)
	if err != nil {
		s.renderFailed(ctx, viewTemplate, err)
		InternalServerError("Kunne ikke vise oversikten.").Write(w)
		return
	}

	NewHTMXResponse().
		TriggerDocumentLoaded(v.HasData).
		BodyHTML(string(body)).
		Write(w)
}

func loadFailed() *HTMXResponseBuilder {
	return NewHTMXResponse().
		Status(http.StatusUnprocessableEntity).
		NoSwap().
		TriggerErrorNotification(LoadFailedMessage)
}

func (s *Server) renderFailed(ctx context.Context, name string, err error) {
	atomic.AddInt64(&s.appMetrics.renderFailures, 1)
	s.structured.LogError(ctx, "Template execution failed", err, applog.ComponentTemplate, applog.OpRender,
		applog.NewFields().WithTemplate(name))
}

// handleHealth performs basic liveness check
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().Format(time.RFC3339),
		"uptime":    time.Since(s.appMetrics.uptime).Round(time.Second).String(),
	})
}

// handleReady checks templates and the document store.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "ready"
	httpStatus := http.StatusOK
	checks := make(map[string]any)

	if s.templates == nil {
		checks["templates"] = "failed: templates not loaded"
		status = "not_ready"
		httpStatus = http.StatusServiceUnavailable
	} else {
		checks["templates"] = "ok"
	}

	if err := s.loader.Ping(ctx); err != nil {
		checks["store"] = fmt.Sprintf("failed: %v", err)
		status = "not_ready"
		httpStatus = http.StatusServiceUnavailable
	} else {
		checks["store"] = "ok"
	}

	checks["document"] = map[string]any{
		"loaded": s.loader.Current() != nil,
	}
	checks["rate_limiter"] = map[string]any{
		"active_clients": s.rateLimiter.activeClients(),
		"status":         "ok",
	}

	writeJSON(w, httpStatus, map[string]any{
		"status":    status,
		"timestamp": time.Now().Format(time.RFC3339),
		"checks":    checks,
	})
}

// handleMetrics writes counters in the Prometheus text format.
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)

	metric := func(name, kind, help string, value any) {
		fmt.Fprintf(w, "# HELP %s %s\n# TYPE %s %s\n%s %v\n\n", name, help, name, kind, name, value)
	}
	metric("documents_loaded_total", "counter", "Documents accepted by /load",
		atomic.LoadInt64(&s.appMetrics.documentsLoaded))
	metric("document_load_failures_total", "counter", "Uploads rejected by /load",
		atomic.LoadInt64(&s.appMetrics.loadFailures))
	metric("render_failures_total", "counter", "Template executions that failed",
		atomic.LoadInt64(&s.appMetrics.renderFailures))
	metric("rate_limit_hits_total", "counter", "Requests rejected by the rate limiter",
		atomic.LoadInt64(&s.security.rateLimitHits))
	metric("suspicious_requests_total", "counter", "Requests matching suspicious patterns",
		atomic.LoadInt64(&s.security.suspiciousRequests))
	metric("active_rate_limit_clients", "gauge", "Currently tracked rate limit clients",
		s.rateLimiter.activeClients())
	metric("uptime_seconds", "gauge", "Application uptime in seconds",
		fmt.Sprintf("%.0f", time.Since(s.appMetrics.uptime).Seconds()))
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
