package council

import (
	"context"
	"fmt"
	"time"

	"github.com/hugo-lorenzo-mato/llm-council/internal/core"
	"github.com/hugo-lorenzo-mato/llm-council/internal/telemetry"
)

// CollectOpinions asks every agent for its answer in parallel.
// It returns exactly one opinion per agent, in agent order. A failed call
// yields a placeholder opinion with the error text and zero usage.
func (s *Stages) CollectOpinions(ctx context.Context, sess *core.Session) ([]core.Opinion, error) {
	systems := make([]string, len(sess.Agents))
	for i, a := range sess.Agents {
		system, err := s.prompts.RenderOpinionSystem(OpinionParams{AgentName: a.Name})
		if err != nil {
			return nil, fmt.Errorf("rendering opinion prompt for %s: %w", a.ID, err)
		}
		systems[i] = system
	}

	ctx = telemetry.WithStage(ctx, string(core.StageOpinions))
	opinions := make([]core.Opinion, len(sess.Agents))
	errs := make([]error, len(sess.Agents))

	g := s.group()
	for i, a := range sess.Agents {
		g.Go(func() error {
			opinions[i], errs[i] = s.opinion(ctx, sess, a, systems[i])
			return nil
		})
	}
	_ = g.Wait()

	if allUnreachable(errs) {
		return nil, fmt.Errorf("%w: all %d opinion calls failed: %s", ErrGatewayUnreachable, len(errs), errorText(errs[0]))
	}
	return opinions, nil
}

func (s *Stages) opinion(ctx context.Context, sess *core.Session, a core.Agent, system string) (core.Opinion, error) {
	op := core.Opinion{AgentID: a.ID, AgentName: a.Name, Model: a.Model}

	start := time.Now()
	res, err := s.generate(ctx, core.GenerateRequest{
		Model:  a.Model,
		Prompt: sess.Query,
		System: system,
	})
	if err != nil {
		s.logger.WithSession(string(sess.ID)).WithAgent(a.ID, a.Model).Warn("opinion failed", "error", err)
		op.Content = fmt.Sprintf("[Error: %s]", errorText(err))
		op.Failed = true
		return op, err
	}

	op.Content = res.Content
	op.PromptTokens = res.PromptTokens
	op.CompletionTokens = res.CompletionTokens
	op.TokensUsed = res.TotalTokens()
	op.DurationMS = time.Since(start).Milliseconds()

	s.logger.WithSession(string(sess.ID)).WithAgent(a.ID, a.Model).Debug("opinion received",
		"length", len(res.Content), "tokens", op.TokensUsed, "duration_ms", op.DurationMS)
	return op, nil
}
