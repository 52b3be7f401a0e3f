package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/hugo-lorenzo-mato/llm-council/internal/core"
	"github.com/hugo-lorenzo-mato/llm-council/internal/diagnostics"
)

const serviceName = "llm-council"

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"service": serviceName,
		"role":    s.role,
		"version": s.version,
		"time":    time.Now().UTC().Format(time.RFC3339),
	})
}

// handleOllamaHealth reports whether the backend answers. It always returns 200;
// the body carries the connection state.
func (s *Server) handleOllamaHealth(w http.ResponseWriter, r *http.Request) {
	if s.backend == nil {
		respondJSON(w, http.StatusOK, map[string]interface{}{
			"status":    "error",
			"connected": false,
			"error":     "no backend configured",
		})
		return
	}

	body := map[string]interface{}{
		"status":     "ok",
		"ollama_url": s.backend.BaseURL(),
		"connected":  true,
	}
	if err := s.backend.Ping(r.Context()); err != nil {
		s.logger.Warn("backend health check failed", "url", s.backend.BaseURL(), "error", err)
		body["status"] = "error"
		body["connected"] = false
		body["error"] = errorMessage(err)
	}
	respondJSON(w, http.StatusOK, body)
}

func (s *Server) handleSystemStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.system.Collect(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "reading system stats: "+err.Error())
		return
	}
	respondJSON(w, http.StatusOK, struct {
		Status string `json:"status"`
		diagnostics.SystemStats
	}{"ok", stats})
}

type installedModel struct {
	Name       string    `json:"name"`
	Size       int64     `json:"size"`
	ModifiedAt time.Time `json:"modified_at"`
}

func (s *Server) handleInstalledModels(w http.ResponseWriter, r *http.Request) {
	if s.backend == nil {
		respondError(w, http.StatusServiceUnavailable, "no backend configured")
		return
	}
	models, err := s.backend.ListModels(r.Context())
	if err != nil {
		respondError(w, http.StatusServiceUnavailable, "failed to list models: "+errorMessage(err))
		return
	}

	out := make([]installedModel, 0, len(models))
	for _, m := range models {
		out = append(out, installedModel{Name: m.Name, Size: m.Size, ModifiedAt: m.ModifiedAt})
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status": "ok",
		"models": out,
		"count":  len(out),
	})
}

// errorMessage returns the human part of err.
func errorMessage(err error) string {
	var domErr *core.DomainError
	if errors.As(err, &domErr) && domErr.Message != "" {
		return domErr.Message
	}
	return err.Error()
}
