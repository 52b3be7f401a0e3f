package council

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/hugo-lorenzo-mato/llm-council/internal/core"
	"github.com/hugo-lorenzo-mato/llm-council/internal/telemetry"
)

// Review runs the peer review with the session's protocol.
// Reviews come back in reviewer order; reviewers without a usable result are omitted.
func (s *Stages) Review(ctx context.Context, sess *core.Session) ([]core.Review, error) {
	if len(sess.Opinions) != len(sess.Agents) {
		return nil, core.ErrState(core.CodeStageFailed,
			fmt.Sprintf("review needs one opinion per agent, have %d for %d agents", len(sess.Opinions), len(sess.Agents)))
	}

	ctx = telemetry.WithStage(ctx, string(core.StageReview))
	if sess.Protocol == core.ProtocolBatched {
		return s.reviewBatched(ctx, sess)
	}
	return s.reviewPairwise(ctx, sess)
}

// pairJob is one (reviewer, target) evaluation.
type pairJob struct {
	reviewer int
	target   int
}

type callResult struct {
	content    string
	prompt     int
	completion int
	durationMS int64
	err        error
}

func (s *Stages) call(ctx context.Context, model, system, user string) callResult {
	start := time.Now()
	res, err := s.generate(ctx, core.GenerateRequest{
		Model:  model,
		Prompt: user,
		System: system,
		Format: core.OutputFormatJSON,
	})
	if err != nil {
		return callResult{err: err}
	}
	return callResult{
		content:    res.Content,
		prompt:     res.PromptTokens,
		completion: res.CompletionTokens,
		durationMS: time.Since(start).Milliseconds(),
	}
}

// reviewPairwise issues n*(n-1) isolated calls, each scoring one target.
// Unparsable replies count as the neutral score; failed calls are dropped.
func (s *Stages) reviewPairwise(ctx context.Context, sess *core.Session) ([]core.Review, error) {
	n := len(sess.Agents)

	systems := make([]string, n)
	users := make([]string, n)
	for i, a := range sess.Agents {
		system, user, err := s.prompts.RenderReview(ReviewParams{
			ReviewerName: a.Name,
			Query:        sess.Query,
			Response:     sess.Opinions[i].Content,
		})
		if err != nil {
			return nil, fmt.Errorf("rendering review prompt: %w", err)
		}
		// The system prompt depends on the reviewer, the user prompt on the target.
		systems[i] = system
		users[i] = user
	}

	jobs := make([]pairJob, 0, n*(n-1))
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			if i != j {
				jobs = append(jobs, pairJob{reviewer: i, target: j})
			}
		}
	}

	results := make([]callResult, len(jobs))
	g := s.group()
	for k, job := range jobs {
		g.Go(func() error {
			results[k] = s.call(ctx, sess.Agents[job.reviewer].Model, systems[job.reviewer], users[job.target])
			return nil
		})
	}
	_ = g.Wait()

	errs := make([]error, len(results))
	byReviewer := make([]*core.Review, n)
	for k, job := range jobs {
		res := results[k]
		errs[k] = res.err
		reviewer := sess.Agents[job.reviewer]
		if res.err != nil {
			s.logger.WithSession(string(sess.ID)).WithAgent(reviewer.ID, reviewer.Model).Warn("pairwise review failed",
				"target", sess.Agents[job.target].ID, "error", res.err)
			continue
		}

		ranking := ParsePairwise(res.content)
		ranking.TargetAgentID = sess.Agents[job.target].ID
		if ranking.Reasoning == ParseErrorReasoning {
			s.logger.WithSession(string(sess.ID)).WithAgent(reviewer.ID, reviewer.Model).Warn("unparsable pairwise review, using neutral score",
				"target", ranking.TargetAgentID)
		}

		r := byReviewer[job.reviewer]
		if r == nil {
			r = &core.Review{ReviewerID: reviewer.ID, ReviewerName: reviewer.Name, Model: reviewer.Model}
			byReviewer[job.reviewer] = r
		}
		r.Rankings = append(r.Rankings, ranking)
		r.PromptTokens += res.prompt
		r.CompletionTokens += res.completion
		r.DurationMS += res.durationMS
	}

	if allUnreachable(errs) {
		return nil, fmt.Errorf("%w: all %d review calls failed: %s", ErrGatewayUnreachable, len(errs), errorText(errs[0]))
	}

	reviews := make([]core.Review, 0, n)
	for _, r := range byReviewer {
		if r != nil {
			reviews = append(reviews, *r)
		}
	}
	return reviews, nil
}

// reviewBatched issues one call per reviewer covering every other agent.
// A reviewer whose reply cannot be parsed contributes nothing.
func (s *Stages) reviewBatched(ctx context.Context, sess *core.Session) ([]core.Review, error) {
	n := len(sess.Agents)
	if n < 2 {
		return []core.Review{}, nil
	}

	systems := make([]string, n)
	users := make([]string, n)
	for i, a := range sess.Agents {
		params := BatchedReviewParams{
			ReviewerName: a.Name,
			ReviewerID:   a.ID,
			Query:        sess.Query,
		}
		for j, op := range sess.Opinions {
			if j == i {
				continue
			}
			params.Responses = append(params.Responses, BatchedResponse{AgentID: op.AgentID, Content: op.Content})
			params.TargetIDs = append(params.TargetIDs, op.AgentID)
		}
		system, user, err := s.prompts.RenderBatchedReview(params)
		if err != nil {
			return nil, fmt.Errorf("rendering batched review prompt: %w", err)
		}
		systems[i] = system
		users[i] = user
	}

	results := make([]callResult, n)
	g := s.group()
	for i, a := range sess.Agents {
		g.Go(func() error {
			results[i] = s.call(ctx, a.Model, systems[i], users[i])
			return nil
		})
	}
	_ = g.Wait()

	errs := make([]error, n)
	for i, res := range results {
		errs[i] = res.err
	}
	if allUnreachable(errs) {
		return nil, fmt.Errorf("%w: all %d review calls failed: %s", ErrGatewayUnreachable, n, errorText(errs[0]))
	}

	known := make(map[string]string, n)
	for _, a := range sess.Agents {
		known[strings.ToLower(a.ID)] = a.ID
	}

	reviews := make([]core.Review, 0, n)
	for i, res := range results {
		reviewer := sess.Agents[i]
		log := s.logger.WithSession(string(sess.ID)).WithAgent(reviewer.ID, reviewer.Model)
		if res.err != nil {
			log.Warn("batched review failed", "error", res.err)
			continue
		}

		parsed, err := ParseBatched(res.content, reviewer.ID)
		if err != nil {
			log.Warn("unparsable batched review, dropping reviewer", "error", err)
			continue
		}

		seen := make(map[string]bool, len(parsed))
		rankings := make([]core.Ranking, 0, len(parsed))
		for _, rk := range parsed {
			id, ok := known[strings.ToLower(rk.TargetAgentID)]
			if !ok || id == reviewer.ID || seen[id] {
				continue
			}
			seen[id] = true
			rk.TargetAgentID = id
			rankings = append(rankings, rk)
		}
		if len(rankings) == 0 {
			log.Warn("batched review ranked no other agent")
			continue
		}

		reviews = append(reviews, core.Review{
			ReviewerID:       reviewer.ID,
			ReviewerName:     reviewer.Name,
			Model:            reviewer.Model,
			Rankings:         rankings,
			PromptTokens:     res.prompt,
			CompletionTokens: res.completion,
			DurationMS:       res.durationMS,
		})
	}
	return reviews, nil
}
