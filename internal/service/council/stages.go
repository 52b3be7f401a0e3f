// Package council runs deliberation sessions: every agent answers the query,
// the agents score each other, and a chairman model merges the answers.
package council

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/hugo-lorenzo-mato/llm-council/internal/core"
	"github.com/hugo-lorenzo-mato/llm-council/internal/logging"
)

// ErrGatewayUnreachable is returned by a stage whose every call failed to reach the backend.
// A single failed call carries CodeBackendUnreachable instead.
var ErrGatewayUnreachable = &core.DomainError{
	Category: core.ErrCatNetwork,
	Code:     core.CodeGatewayUnreachable,
	Message:  "inference gateway unreachable",
}

// Stages runs the three deliberation stages against a generator.
// Stages read the session they are given and return their output; they never
// mutate it.
type Stages struct {
	gateway     core.Generator
	synthesizer core.Generator
	prompts     *PromptRenderer
	logger      *logging.Logger
	concurrency int
}

// StagesOption configures Stages.
type StagesOption func(*Stages)

// WithSynthesizer sets the generator used by the synthesis stage.
// It defaults to the stage gateway.
func WithSynthesizer(g core.Generator) StagesOption {
	return func(s *Stages) {
		s.synthesizer = g
	}
}

// WithConcurrency caps the in-flight calls of one stage. Zero means unlimited.
func WithConcurrency(n int) StagesOption {
	return func(s *Stages) {
		s.concurrency = n
	}
}

// WithStagesLogger sets the logger.
func WithStagesLogger(l *logging.Logger) StagesOption {
	return func(s *Stages) {
		s.logger = l
	}
}

// NewStages creates the stage runner.
func NewStages(gateway core.Generator, prompts *PromptRenderer, opts ...StagesOption) *Stages {
	s := &Stages{
		gateway: gateway,
		prompts: prompts,
		logger:  logging.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.synthesizer == nil {
		s.synthesizer = gateway
	}
	return s
}

func (s *Stages) group() *errgroup.Group {
	g := &errgroup.Group{}
	if s.concurrency > 0 {
		g.SetLimit(s.concurrency)
	}
	return g
}

// allUnreachable reports whether there was at least one call and every call
// failed with a network error.
func allUnreachable(errs []error) bool {
	if len(errs) == 0 {
		return false
	}
	for _, err := range errs {
		if err == nil || !core.IsCategory(err, core.ErrCatNetwork) {
			return false
		}
	}
	return true
}

// errorText returns the human part of a gateway error.
func errorText(err error) string {
	var domErr *core.DomainError
	if errors.As(err, &domErr) && domErr.Message != "" {
		return domErr.Message
	}
	return err.Error()
}

// generate calls the gateway. A panicking generator fails only its own call.
func (s *Stages) generate(ctx context.Context, req core.GenerateRequest) (res *core.GenerateResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			res = nil
			err = core.ErrExecution(core.CodeGenerationFailed, fmt.Sprintf("generator panicked: %v", r))
		}
	}()
	return s.gateway.Generate(ctx, req)
}
