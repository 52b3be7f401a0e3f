// Package worker is the remote inference gateway. It forwards generation
// requests to a worker node's /api/generate endpoint.
package worker

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/hugo-lorenzo-mato/llm-council/internal/adapters/httpclient"
	"github.com/hugo-lorenzo-mato/llm-council/internal/core"
)

const label = "worker"

// GenerateRequest is the body accepted by a worker's /api/generate.
type GenerateRequest struct {
	Model   string                 `json:"model"`
	Prompt  string                 `json:"prompt"`
	System  string                 `json:"system,omitempty"`
	Format  string                 `json:"format,omitempty"`
	Options map[string]interface{} `json:"options,omitempty"`
}

// GenerateResponse is the body a worker returns from /api/generate.
type GenerateResponse struct {
	Model           string `json:"model"`
	Content         string `json:"content"`
	Done            bool   `json:"done"`
	TotalDuration   int64  `json:"total_duration"`
	PromptEvalCount int    `json:"prompt_eval_count"`
	EvalCount       int    `json:"eval_count"`
}

// NewGenerateRequest converts a core request to the wire form.
func NewGenerateRequest(req core.GenerateRequest) GenerateRequest {
	return GenerateRequest{
		Model:   req.Model,
		Prompt:  req.Prompt,
		System:  req.System,
		Format:  string(req.Format),
		Options: req.Options,
	}
}

// ToCore converts the wire request back to a core request.
func (r GenerateRequest) ToCore() core.GenerateRequest {
	return core.GenerateRequest{
		Model:   r.Model,
		Prompt:  r.Prompt,
		System:  r.System,
		Format:  core.OutputFormat(r.Format),
		Options: r.Options,
	}
}

// NewGenerateResponse converts a core result to the wire form.
func NewGenerateResponse(model string, res *core.GenerateResult) GenerateResponse {
	return GenerateResponse{
		Model:           model,
		Content:         res.Content,
		Done:            res.Done,
		TotalDuration:   res.TotalDurationNS,
		PromptEvalCount: res.PromptTokens,
		EvalCount:       res.CompletionTokens,
	}
}

// Config configures the client.
type Config struct {
	BaseURL        string
	Timeout        time.Duration
	ConnectTimeout time.Duration
}

// Client is the remote Generator.
type Client struct {
	baseURL string
	http    *http.Client
}

// New creates a client for the worker at cfg.BaseURL.
func New(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 120 * time.Second
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 10 * time.Second
	}
	return &Client{
		baseURL: cfg.BaseURL,
		http:    httpclient.New(httpclient.Timeouts{Connect: cfg.ConnectTimeout, Overall: cfg.Timeout}),
	}
}

// BaseURL returns the worker address.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Generate forwards req to the worker.
func (c *Client) Generate(ctx context.Context, req core.GenerateRequest) (*core.GenerateResult, error) {
	if req.Model == "" {
		return nil, core.ErrValidation(core.CodeEmptyModel, "model is required")
	}

	var resp GenerateResponse
	url := httpclient.JoinURL(c.baseURL, "/api/generate")
	if err := httpclient.PostJSON(ctx, c.http, label, url, NewGenerateRequest(req), &resp); err != nil {
		return nil, fmt.Errorf("generating with %s via worker: %w", req.Model, err)
	}

	model := resp.Model
	if model == "" {
		model = req.Model
	}
	return &core.GenerateResult{
		Model:            model,
		Content:          resp.Content,
		PromptTokens:     resp.PromptEvalCount,
		CompletionTokens: resp.EvalCount,
		TotalDurationNS:  resp.TotalDuration,
		Done:             resp.Done,
	}, nil
}

var _ core.Generator = (*Client)(nil)
