// Package ollama is the local inference gateway. It talks directly to an
// Ollama-compatible backend over its HTTP API.
package ollama

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/hugo-lorenzo-mato/llm-council/internal/adapters/httpclient"
	"github.com/hugo-lorenzo-mato/llm-council/internal/core"
)

const label = "ollama"

// Config configures the client.
type Config struct {
	BaseURL        string
	Timeout        time.Duration
	ConnectTimeout time.Duration
	HealthTimeout  time.Duration
}

// DefaultConfig returns the defaults of a local backend.
func DefaultConfig() Config {
	return Config{
		BaseURL:        "http://localhost:11434",
		Timeout:        120 * time.Second,
		ConnectTimeout: 10 * time.Second,
		HealthTimeout:  5 * time.Second,
	}
}

// Client is the local Generator.
type Client struct {
	baseURL      string
	http         *http.Client
	healthClient *http.Client
}

// New creates a client.
func New(cfg Config) *Client {
	def := DefaultConfig()
	if cfg.BaseURL == "" {
		cfg.BaseURL = def.BaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = def.ConnectTimeout
	}
	if cfg.HealthTimeout <= 0 {
		cfg.HealthTimeout = def.HealthTimeout
	}
	return &Client{
		baseURL:      cfg.BaseURL,
		http:         httpclient.New(httpclient.Timeouts{Connect: cfg.ConnectTimeout, Overall: cfg.Timeout}),
		healthClient: httpclient.New(httpclient.Timeouts{Connect: cfg.HealthTimeout, Overall: cfg.HealthTimeout}),
	}
}

// BaseURL returns the backend address.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// generateRequest is the backend's /api/generate body.
type generateRequest struct {
	Model   string                 `json:"model"`
	Prompt  string                 `json:"prompt"`
	Stream  bool                   `json:"stream"`
	System  string                 `json:"system,omitempty"`
	Format  string                 `json:"format,omitempty"`
	Options map[string]interface{} `json:"options,omitempty"`
}

// generateResponse is the backend's non-streaming /api/generate reply.
type generateResponse struct {
	Model           string `json:"model"`
	Response        string `json:"response"`
	Done            bool   `json:"done"`
	TotalDuration   int64  `json:"total_duration"`
	PromptEvalCount int    `json:"prompt_eval_count"`
	EvalCount       int    `json:"eval_count"`
}

// Generate runs one non-streaming generation.
func (c *Client) Generate(ctx context.Context, req core.GenerateRequest) (*core.GenerateResult, error) {
	if req.Model == "" {
		return nil, core.ErrValidation(core.CodeEmptyModel, "model is required")
	}

	body := generateRequest{
		Model:   req.Model,
		Prompt:  req.Prompt,
		Stream:  false,
		System:  req.System,
		Format:  string(req.Format),
		Options: req.Options,
	}

	var resp generateResponse
	if err := httpclient.PostJSON(ctx, c.http, label, httpclient.JoinURL(c.baseURL, "/api/generate"), body, &resp); err != nil {
		return nil, fmt.Errorf("generating with %s: %w", req.Model, err)
	}

	model := resp.Model
	if model == "" {
		model = req.Model
	}
	return &core.GenerateResult{
		Model:            model,
		Content:          resp.Response,
		PromptTokens:     resp.PromptEvalCount,
		CompletionTokens: resp.EvalCount,
		TotalDurationNS:  resp.TotalDuration,
		Done:             resp.Done,
	}, nil
}

// ModelInfo describes an installed model.
type ModelInfo struct {
	Name       string    `json:"name"`
	Size       int64     `json:"size"`
	ModifiedAt time.Time `json:"modified_at"`
	Digest     string    `json:"digest,omitempty"`
}

// ListModels returns the installed models.
func (c *Client) ListModels(ctx context.Context) ([]ModelInfo, error) {
	var resp struct {
		Models []ModelInfo `json:"models"`
	}
	if err := httpclient.GetJSON(ctx, c.http, label, httpclient.JoinURL(c.baseURL, "/api/tags"), &resp); err != nil {
		return nil, fmt.Errorf("listing models: %w", err)
	}
	return resp.Models, nil
}

// ShowModel returns the backend's description of a model.
// A 404 from the backend is reported as a not-found error.
func (c *Client) ShowModel(ctx context.Context, model string) (map[string]interface{}, error) {
	var resp map[string]interface{}
	err := httpclient.PostJSON(ctx, c.http, label, httpclient.JoinURL(c.baseURL, "/api/show"),
		map[string]string{"name": model}, &resp)
	if err != nil {
		if core.StatusCode(err) == http.StatusNotFound {
			return nil, core.ErrNotFound("model", model).WithCause(err)
		}
		return nil, fmt.Errorf("showing model %s: %w", model, err)
	}
	return resp, nil
}

// Ping checks that the backend answers within the health timeout.
func (c *Client) Ping(ctx context.Context) error {
	if err := httpclient.GetJSON(ctx, c.healthClient, label, httpclient.JoinURL(c.baseURL, "/api/tags"), nil); err != nil {
		return fmt.Errorf("ollama health check: %w", err)
	}
	return nil
}

var _ core.Generator = (*Client)(nil)
