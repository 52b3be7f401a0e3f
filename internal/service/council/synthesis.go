package council

import (
	"context"
	"fmt"
	"time"

	"github.com/hugo-lorenzo-mato/llm-council/internal/core"
	"github.com/hugo-lorenzo-mato/llm-council/internal/telemetry"
)

// TopSources is the number of agents cited by the final answer.
const TopSources = 3

// SynthesisOutput is the final answer plus the token split the answer does not carry.
type SynthesisOutput struct {
	Answer           core.FinalAnswer
	PromptTokens     int
	CompletionTokens int
}

// Synthesize asks the chairman model to merge the opinions given their mean scores.
// Failure of this single call fails the stage.
func (s *Stages) Synthesize(ctx context.Context, sess *core.Session) (*SynthesisOutput, error) {
	model := sess.SynthesizerModel
	if model == "" {
		return nil, core.ErrValidation(core.CodeEmptyModel, "no synthesizer model configured")
	}

	scores := MeanScores(sess.Reviews)
	system, user, err := s.prompts.RenderSynthesis(SynthesisParams{
		Query:    sess.Query,
		Opinions: FormatOpinions(sess.Opinions),
		Rankings: FormatRankings(scores),
	})
	if err != nil {
		return nil, fmt.Errorf("rendering synthesis prompt: %w", err)
	}

	ctx = telemetry.WithStage(ctx, string(core.StageSynthesis))
	start := time.Now()
	res, err := s.synthesizer.Generate(ctx, core.GenerateRequest{
		Model:  model,
		Prompt: user,
		System: system,
	})
	if err != nil {
		return nil, fmt.Errorf("synthesis with %s: %w", model, err)
	}

	return &SynthesisOutput{
		Answer: core.FinalAnswer{
			Content:          res.Content,
			SynthesizerModel: model,
			TokensUsed:       res.TotalTokens(),
			DurationMS:       time.Since(start).Milliseconds(),
			SourcesCited:     TopAgents(scores, sess.Agents, TopSources),
		},
		PromptTokens:     res.PromptTokens,
		CompletionTokens: res.CompletionTokens,
	}, nil
}
