package api

import (
	"context"
	"errors"
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nerrad567/sleepgrind/internal/script"
)

// healthCheckTimeout bounds each component check.
const healthCheckTimeout = 2 * time.Second

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/run", s.handleRun)
		r.Get("/ws", s.handleWebSocket)

		r.Get("/scripts", s.handleListScripts)
		r.Get("/scripts/{name}", s.handleGetScript)
	})

	if s.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}

	return r
}

// handleHealth runs every component check and reports 503 if any fails.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	names := make([]string, 0, len(s.checks))
	for name := range s.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	status := "ok"
	results := make(map[string]string, len(names))
	for _, name := range names {
		ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
		err := s.checks[name](ctx)
		cancel()
		if err != nil {
			status = "degraded"
			results[name] = err.Error()
			continue
		}
		results[name] = "ok"
	}

	code := http.StatusOK
	if status != "ok" {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]any{
		"status":  status,
		"version": s.version,
		"checks":  results,
	})
}

// handleRun returns the tracked run and its last step.
func (s *Server) handleRun(w http.ResponseWriter, _ *http.Request) {
	if s.runs == nil {
		writeUnavailable(w, "run tracking is not enabled")
		return
	}
	state, last, ok := s.runs.Snapshot()
	if !ok {
		writeNotFound(w, "no run has started")
		return
	}

	resp := runResponse{State: state}
	if last != nil {
		v := newStepView(*last)
		resp.LastStep = &v
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleListScripts lists catalog entries without their documents.
func (s *Server) handleListScripts(w http.ResponseWriter, r *http.Request) {
	if s.scripts == nil {
		writeUnavailable(w, "script catalog is not available")
		return
	}
	list, err := s.scripts.List(r.Context())
	if err != nil {
		s.logger.Error("listing scripts", "error", err)
		writeInternalError(w, "listing scripts failed")
		return
	}

	out := make([]scriptView, 0, len(list))
	for _, st := range list {
		out = append(out, newScriptView(st, false))
	}
	writeJSON(w, http.StatusOK, map[string]any{"scripts": out, "count": len(out)})
}

// handleGetScript returns one catalog entry including its document.
func (s *Server) handleGetScript(w http.ResponseWriter, r *http.Request) {
	if s.scripts == nil {
		writeUnavailable(w, "script catalog is not available")
		return
	}
	name := chi.URLParam(r, "name")
	st, err := s.scripts.Get(r.Context(), name)
	if errors.Is(err, script.ErrScriptNotFound) {
		writeNotFound(w, "script not found")
		return
	}
	if err != nil {
		s.logger.Error("reading script", "name", name, "error", err)
		writeInternalError(w, "reading script failed")
		return
	}
	writeJSON(w, http.StatusOK, newScriptView(*st, true))
}
