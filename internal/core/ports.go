package core

import (
	"context"
)

// =============================================================================
// Inference Gateway Port
// =============================================================================

// Generator is the single text-generation capability every stage depends on.
// Implementations may reach the backend directly or through a worker node.
type Generator interface {
	// Generate runs one non-streaming generation.
	Generate(ctx context.Context, req GenerateRequest) (*GenerateResult, error)
}

// OutputFormat specifies the expected output format.
type OutputFormat string

const (
	OutputFormatText OutputFormat = ""
	OutputFormatJSON OutputFormat = "json"
)

// GenerateRequest is one generation call.
type GenerateRequest struct {
	Model   string                 `json:"model"`
	Prompt  string                 `json:"prompt"`
	System  string                 `json:"system,omitempty"`
	Format  OutputFormat           `json:"format,omitempty"`
	Options map[string]interface{} `json:"options,omitempty"`
}

// GenerateResult is the outcome of a successful generation.
type GenerateResult struct {
	Model            string
	Content          string
	PromptTokens     int
	CompletionTokens int
	TotalDurationNS  int64
	Done             bool
}

// TotalTokens returns prompt plus completion tokens.
func (r *GenerateResult) TotalTokens() int {
	return r.PromptTokens + r.CompletionTokens
}

// GeneratorFunc adapts a function to the Generator interface.
type GeneratorFunc func(ctx context.Context, req GenerateRequest) (*GenerateResult, error)

// Generate calls f.
func (f GeneratorFunc) Generate(ctx context.Context, req GenerateRequest) (*GenerateResult, error) {
	return f(ctx, req)
}

// =============================================================================
// Session Store Port
// =============================================================================

// CreateSessionOptions carries the per-session settings fixed at creation.
type CreateSessionOptions struct {
	Protocol         ReviewProtocol
	SynthesizerModel string
}

// SessionStore is the keyed registry of deliberation sessions.
// Get and List return snapshots: callers may read them freely while the
// orchestrator keeps mutating the stored session through Update.
type SessionStore interface {
	Create(ctx context.Context, query string, agents []Agent, opts CreateSessionOptions) (*Session, error)
	Get(ctx context.Context, id SessionID) (*Session, error)
	Update(ctx context.Context, id SessionID, fn func(*Session) error) (*Session, error)
	List(ctx context.Context) ([]*Session, error)
}
