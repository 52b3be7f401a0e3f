package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hugo-lorenzo-mato/llm-council/internal/catalog"
	"github.com/hugo-lorenzo-mato/llm-council/internal/core"
	"github.com/hugo-lorenzo-mato/llm-council/internal/service/council"
)

// QueryRequest is the body of POST /api/council/query.
type QueryRequest struct {
	Query          string           `json:"query"`
	SelectedAgents []core.AgentSpec `json:"selected_agents"`
	ChairmanModel  string           `json:"chairman_model,omitempty"`
	Protocol       string           `json:"protocol,omitempty"`
}

func (q QueryRequest) toCouncil() council.QueryRequest {
	return council.QueryRequest{
		Query:         q.Query,
		Agents:        q.SelectedAgents,
		Protocol:      core.ReviewProtocol(q.Protocol),
		ChairmanModel: q.ChairmanModel,
	}
}

// SessionResponse is a session snapshot with its progress counts.
type SessionResponse struct {
	*core.Session
	Progress core.Progress `json:"progress"`
}

func newSessionResponse(s *core.Session) SessionResponse {
	return SessionResponse{Session: s, Progress: s.Progress()}
}

// SessionSummary is one entry of the session list.
type SessionSummary struct {
	ID        core.SessionID `json:"session_id"`
	Query     string         `json:"query"`
	Stage     core.Stage     `json:"stage"`
	Agents    int            `json:"agents"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	Error     string         `json:"error,omitempty"`
}

// handleQuery runs a deliberation. By default it waits for the final session;
// with ?async=true it answers 202 with the pending session right away.
func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	if s.council == nil {
		respondError(w, http.StatusServiceUnavailable, "council is not configured on this node")
		return
	}

	var req QueryRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondDomainError(w, err)
		return
	}
	creq := req.toCouncil()
	if err := creq.Validate(); err != nil {
		respondDomainError(w, err)
		return
	}

	async, _ := strconv.ParseBool(r.URL.Query().Get("async"))
	s.logger.Info("starting council", "agents", len(req.SelectedAgents), "async", async)

	if async {
		sess, err := s.council.Start(r.Context(), creq)
		if err != nil {
			respondDomainError(w, err)
			return
		}
		respondJSON(w, http.StatusAccepted, newSessionResponse(sess))
		return
	}

	sess, err := s.council.Run(r.Context(), creq)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, newSessionResponse(sess))
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		respondError(w, http.StatusServiceUnavailable, "council is not configured on this node")
		return
	}

	id := core.SessionID(chi.URLParam(r, "sessionID"))
	sess, err := s.store.Get(r.Context(), id)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, newSessionResponse(sess))
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		respondError(w, http.StatusServiceUnavailable, "council is not configured on this node")
		return
	}

	sessions, err := s.store.List(r.Context())
	if err != nil {
		respondDomainError(w, err)
		return
	}

	out := make([]SessionSummary, 0, len(sessions))
	for _, sess := range sessions {
		out = append(out, SessionSummary{
			ID:        sess.ID,
			Query:     sess.Query,
			Stage:     sess.Stage,
			Agents:    len(sess.Agents),
			CreatedAt: sess.CreatedAt,
			UpdatedAt: sess.UpdatedAt,
			Error:     sess.Error,
		})
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"sessions": out,
		"count":    len(out),
	})
}

// handleRecommendedModels returns the catalog annotated with what the backend has installed.
func (s *Server) handleRecommendedModels(w http.ResponseWriter, r *http.Request) {
	installed, err := s.installedNames(r.Context())
	if err != nil {
		respondError(w, http.StatusServiceUnavailable, "failed to list models: "+err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"recommended": catalog.Annotate(s.models, installed),
		"installed":   installed,
	})
}

func (s *Server) installedNames(ctx context.Context) ([]string, error) {
	if s.backend == nil {
		return []string{}, nil
	}
	models, err := s.backend.ListModels(ctx)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(models))
	for _, m := range models {
		names = append(names, m.Name)
	}
	return names, nil
}
