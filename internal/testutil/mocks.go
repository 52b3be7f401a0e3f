package testutil

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hugo-lorenzo-mato/llm-council/internal/core"
)

// MockResponse is a scripted generation outcome.
type MockResponse struct {
	Content          string
	PromptTokens     int
	CompletionTokens int
	Err              error
}

// MockGenerator implements core.Generator with per-model scripted responses.
// Unscripted models answer with a canned text.
type MockGenerator struct {
	mu        sync.Mutex
	responses map[string]MockResponse
	fn        func(context.Context, core.GenerateRequest) (*core.GenerateResult, error)
	delay     time.Duration
	calls     []MockCall
}

// MockCall records a call to the mock.
type MockCall struct {
	Request   core.GenerateRequest
	Timestamp time.Time
}

// NewMockGenerator creates a new mock generator.
func NewMockGenerator() *MockGenerator {
	return &MockGenerator{
		responses: make(map[string]MockResponse),
		calls:     make([]MockCall, 0),
	}
}

// WithResponse scripts the content returned for model.
func (m *MockGenerator) WithResponse(model, content string) *MockGenerator {
	return m.WithScript(model, MockResponse{Content: content, PromptTokens: 10, CompletionTokens: 5})
}

// WithError scripts a failure for model.
func (m *MockGenerator) WithError(model string, err error) *MockGenerator {
	return m.WithScript(model, MockResponse{Err: err})
}

// WithScript sets the full scripted outcome for model.
func (m *MockGenerator) WithScript(model string, resp MockResponse) *MockGenerator {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses[model] = resp
	return m
}

// WithFunc replaces scripted responses with fn.
func (m *MockGenerator) WithFunc(fn func(context.Context, core.GenerateRequest) (*core.GenerateResult, error)) *MockGenerator {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fn = fn
	return m
}

// WithDelay makes every call wait d or until ctx is done.
func (m *MockGenerator) WithDelay(d time.Duration) *MockGenerator {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delay = d
	return m
}

// Generate records the call and returns the scripted outcome.
func (m *MockGenerator) Generate(ctx context.Context, req core.GenerateRequest) (*core.GenerateResult, error) {
	m.mu.Lock()
	m.calls = append(m.calls, MockCall{Request: req, Timestamp: time.Now()})
	fn := m.fn
	delay := m.delay
	resp, scripted := m.responses[req.Model]
	m.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, core.NewGenerationError(core.ErrCatTimeout, "request timed out", 0, ctx.Err())
		}
	}

	if fn != nil {
		return fn(ctx, req)
	}
	if !scripted {
		resp = MockResponse{
			Content:          fmt.Sprintf("Mock response from %s", req.Model),
			PromptTokens:     10,
			CompletionTokens: 5,
		}
	}
	if resp.Err != nil {
		return nil, resp.Err
	}
	return &core.GenerateResult{
		Model:            req.Model,
		Content:          resp.Content,
		PromptTokens:     resp.PromptTokens,
		CompletionTokens: resp.CompletionTokens,
		TotalDurationNS:  int64(time.Millisecond),
		Done:             true,
	}, nil
}

// Calls returns all recorded calls.
func (m *MockGenerator) Calls() []MockCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]MockCall(nil), m.calls...)
}

// CallCount returns the number of calls made.
func (m *MockGenerator) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

// CallsFor returns the recorded requests for model.
func (m *MockGenerator) CallsFor(model string) []core.GenerateRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []core.GenerateRequest
	for _, c := range m.calls {
		if c.Request.Model == model {
			out = append(out, c.Request)
		}
	}
	return out
}

// Reset clears recorded calls.
func (m *MockGenerator) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = make([]MockCall, 0)
}
