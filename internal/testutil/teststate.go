package testutil

import (
	"time"

	"github.com/hugo-lorenzo-mato/llm-council/internal/core"
)

// NewTestSession creates a pending Session with sensible defaults for tests.
// Use functional options to override specific fields.
func NewTestSession(opts ...func(*core.Session)) *core.Session {
	now := time.Now()
	s := &core.Session{
		ID:               "session-test",
		Query:            "What is the capital of France?",
		Stage:            core.StagePending,
		Protocol:         core.ProtocolPairwise,
		SynthesizerModel: "phi3.5:mini",
		CreatedAt:        now,
		UpdatedAt:        now,
		Agents: core.NewAgents([]core.AgentSpec{
			{Name: "Alpha", Model: "llama3.2:1b"},
			{Name: "Beta", Model: "qwen2.5:0.5b"},
			{Name: "Gamma", Model: "gemma2:2b"},
		}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// WithAgents returns an option that replaces the session's agents.
func WithAgents(specs ...core.AgentSpec) func(*core.Session) {
	return func(s *core.Session) {
		s.Agents = core.NewAgents(specs)
	}
}

// WithOpinions returns an option that sets one opinion per agent with the given contents.
func WithOpinions(contents ...string) func(*core.Session) {
	return func(s *core.Session) {
		s.Opinions = make([]core.Opinion, 0, len(contents))
		for i, c := range contents {
			if i >= len(s.Agents) {
				break
			}
			a := s.Agents[i]
			s.Opinions = append(s.Opinions, core.Opinion{
				AgentID:   a.ID,
				AgentName: a.Name,
				Model:     a.Model,
				Content:   c,
			})
		}
	}
}
