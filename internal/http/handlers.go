package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"txadmin/internal/log"
)

// handleHealth performs basic liveness check
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().Format(time.RFC3339),
		"uptime":    time.Since(s.started).Round(time.Second).String(),
	})
}

// handleReady performs readiness check with dependency verification
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

	switch {
	case s.ping == nil:
		checks["sessions"] = "not_configured"
	case ctx.Err() != nil:
		checks["sessions"] = "timeout"
		status = "not_ready"
		httpStatus = http.StatusServiceUnavailable
	default:
		if err := s.ping(ctx); err != nil {
			checks["sessions"] = "failed: " + err.Error()
			status = "not_ready"
			httpStatus = http.StatusServiceUnavailable
		} else {
			checks["sessions"] = "ok"
		}
	}

	checks["view_states"] = map[string]any{
		"entries": s.views.size(),
		"status":  "ok",
	}
	checks["rate_limiter"] = map[string]any{
		"active_clients": s.loginLimiter.ActiveClients(),
		"status":         "ok",
	}

	writeJSON(w, httpStatus, map[string]any{
		"status":    status,
		"timestamp": time.Now().Format(time.RFC3339),
		"checks":    checks,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	s.renderPage(w, r, "dashboard.html", pageData{
		Title:  "Dashboard",
		Active: "/dashboard",
	})
}

// renderPage executes a full page template. Pending flashes are consumed
// and the session saved when there were any.
func (s *Server) renderPage(w http.ResponseWriter, r *http.Request, name string, data pageData) {
	s.renderPageStatus(w, r, http.StatusOK, name, data)
}

func (s *Server) renderPageStatus(w http.ResponseWriter, r *http.Request, status int, name string, data pageData) {
	sess := currentSession(r)
	data.User = sess.User
	if flashes := sess.PopFlashes(); len(flashes) > 0 {
		data.Flashes = append(data.Flashes, flashes...)
		s.saveSession(w, r, sess)
	}

	var buf bytes.Buffer
	if err := s.templates.ExecuteTemplate(&buf, name, data); err != nil {
		s.reqLog(r).ErrorContext(r.Context(), "Template execution failed",
			log.FieldError, err,
			"template", name,
			log.FieldOperation, log.OpRender)
		InternalServerError("Terjadi kesalahan").Write(w)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}

// renderPartial executes a named fragment into an HTMX response. The
// builder carries any triggers the caller wants sent with it.
func (s *Server) renderPartial(w http.ResponseWriter, r *http.Request, resp *HTMXResponseBuilder, name string, data any) {
	var buf bytes.Buffer
	if err := s.templates.ExecuteTemplate(&buf, name, data); err != nil {
		s.reqLog(r).ErrorContext(r.Context(), "Partial execution failed",
			log.FieldError, err,
			"template", name,
			log.FieldOperation, log.OpRender)
		InternalServerError("Terjadi kesalahan").Write(w)
		return
	}
	resp.BodyHTML(buf.Bytes()).Write(w)
}
