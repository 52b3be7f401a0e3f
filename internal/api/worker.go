package api

import (
	"fmt"
	"net/http"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/hugo-lorenzo-mato/llm-council/internal/adapters/worker"
	"github.com/hugo-lorenzo-mato/llm-council/internal/core"
)

// MaxBatchRequests bounds one batch generation call.
const MaxBatchRequests = 5

// BatchRequest is the body of POST /api/generate/batch.
type BatchRequest struct {
	Requests []worker.GenerateRequest `json:"requests"`
}

// BatchError is the entry of a batch item that failed.
type BatchError struct {
	Error string `json:"error"`
	Model string `json:"model"`
}

// BatchResponse holds one result per request, in request order. Each result is
// a worker.GenerateResponse or a BatchError.
type BatchResponse struct {
	Results      []interface{} `json:"results"`
	SuccessCount int           `json:"success_count"`
	ErrorCount   int           `json:"error_count"`
}

func validateGenerate(req worker.GenerateRequest) error {
	if strings.TrimSpace(req.Model) == "" {
		return core.ErrValidation(core.CodeEmptyModel, "model is required")
	}
	if req.Prompt == "" {
		return core.ErrValidation(core.CodeInvalidRequest, "prompt is required")
	}
	return nil
}

// handleGenerate runs one generation on this node's backend.
func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	if s.generator == nil {
		respondError(w, http.StatusServiceUnavailable, "no generator configured on this node")
		return
	}

	var req worker.GenerateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondDomainError(w, err)
		return
	}
	if err := validateGenerate(req); err != nil {
		respondDomainError(w, err)
		return
	}

	res, err := s.generator.Generate(r.Context(), req.ToCore())
	if err != nil {
		s.logger.WithAgent("", req.Model).Error("generation failed", "error", err)
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, worker.NewGenerateResponse(req.Model, res))
}

// handleGenerateBatch runs up to MaxBatchRequests generations in parallel.
// A failed item becomes an error entry; the others are unaffected.
func (s *Server) handleGenerateBatch(w http.ResponseWriter, r *http.Request) {
	if s.generator == nil {
		respondError(w, http.StatusServiceUnavailable, "no generator configured on this node")
		return
	}

	var batch BatchRequest
	if err := decodeJSON(w, r, &batch); err != nil {
		respondDomainError(w, err)
		return
	}
	if n := len(batch.Requests); n < 1 || n > MaxBatchRequests {
		respondDomainError(w, core.ErrValidation(core.CodeInvalidRequest,
			fmt.Sprintf("batch must hold 1 to %d requests, got %d", MaxBatchRequests, n)))
		return
	}
	for i, req := range batch.Requests {
		if err := validateGenerate(req); err != nil {
			respondDomainError(w, fmt.Errorf("request %d: %w", i, err))
			return
		}
	}

	resp := BatchResponse{Results: make([]interface{}, len(batch.Requests))}
	ok := make([]bool, len(batch.Requests))

	g, ctx := errgroup.WithContext(r.Context())
	for i, req := range batch.Requests {
		g.Go(func() error {
			res, err := s.generator.Generate(ctx, req.ToCore())
			if err != nil {
				s.logger.WithAgent("", req.Model).Error("batch generation failed", "error", err)
				resp.Results[i] = BatchError{Error: errorMessage(err), Model: req.Model}
				return nil
			}
			resp.Results[i] = worker.NewGenerateResponse(req.Model, res)
			ok[i] = true
			return nil
		})
	}
	_ = g.Wait()

	for _, success := range ok {
		if success {
			resp.SuccessCount++
		} else {
			resp.ErrorCount++
		}
	}
	respondJSON(w, http.StatusOK, resp)
}
