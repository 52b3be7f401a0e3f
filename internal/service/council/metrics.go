package council

import (
	"time"

	"github.com/hugo-lorenzo-mato/llm-council/internal/core"
)

// usageItem is the token and latency contribution of one emitted stage item.
type usageItem struct {
	model      string
	prompt     int
	completion int
	durationMS int64
}

// Aggregator recomputes session metrics after each stage.
type Aggregator struct {
	now func() time.Time
}

// NewAggregator creates an aggregator using the wall clock.
func NewAggregator() *Aggregator {
	return &Aggregator{now: time.Now}
}

// SummarizeOpinions builds the opinion stage usage and latency.
func SummarizeOpinions(opinions []core.Opinion) (*core.StageUsage, *core.LatencyStats) {
	items := make([]usageItem, 0, len(opinions))
	for _, op := range opinions {
		items = append(items, usageItem{op.Model, op.PromptTokens, op.CompletionTokens, op.DurationMS})
	}
	return summarize(core.StageOpinions, items)
}

// SummarizeReviews builds the review stage usage and latency.
func SummarizeReviews(reviews []core.Review) (*core.StageUsage, *core.LatencyStats) {
	items := make([]usageItem, 0, len(reviews))
	for _, r := range reviews {
		items = append(items, usageItem{r.Model, r.PromptTokens, r.CompletionTokens, r.DurationMS})
	}
	return summarize(core.StageReview, items)
}

// SummarizeSynthesis builds the synthesis stage usage and latency from its single call.
func SummarizeSynthesis(model string, promptTokens, completionTokens int, durationMS int64) (*core.StageUsage, *core.LatencyStats) {
	return summarize(core.StageSynthesis, []usageItem{{model, promptTokens, completionTokens, durationMS}})
}

func summarize(stage core.Stage, items []usageItem) (*core.StageUsage, *core.LatencyStats) {
	usage := &core.StageUsage{Stage: stage, ByModel: make(map[string]core.TokenUsage)}
	latency := &core.LatencyStats{Stage: stage, ByModel: make(map[string]int64)}

	for _, it := range items {
		u := core.NewTokenUsage(it.prompt, it.completion)
		usage.Totals = usage.Totals.Add(u)
		usage.ByModel[it.model] = usage.ByModel[it.model].Add(u)

		latency.TotalDurationMS += it.durationMS
		latency.ByModel[it.model] += it.durationMS
	}
	return usage, latency
}

// RecomputeTotals sums the stage totals that are present into the session total.
func RecomputeTotals(m *core.SessionMetrics) {
	var total core.TokenUsage
	for _, u := range []*core.StageUsage{m.Usage.Opinions, m.Usage.Review, m.Usage.Synthesis} {
		if u != nil {
			total = total.Add(u.Totals)
		}
	}
	m.Usage.Total = total
}

// EndToEnd returns the wall-clock time since createdAt, never negative and
// never lower than prev.
func EndToEnd(createdAt, now time.Time, prev int64) int64 {
	ms := now.Sub(createdAt).Milliseconds()
	if ms < 0 {
		ms = 0
	}
	if ms < prev {
		ms = prev
	}
	return ms
}

// ApplyOpinions stores the opinion stage metrics on s.
func (a *Aggregator) ApplyOpinions(s *core.Session) {
	s.Metrics.Usage.Opinions, s.Metrics.Latency.Opinions = SummarizeOpinions(s.Opinions)
	a.finish(s)
}

// ApplyReviews stores the review stage metrics on s.
func (a *Aggregator) ApplyReviews(s *core.Session) {
	s.Metrics.Usage.Review, s.Metrics.Latency.Review = SummarizeReviews(s.Reviews)
	a.finish(s)
}

// ApplySynthesis stores the synthesis stage metrics on s.
func (a *Aggregator) ApplySynthesis(s *core.Session, out *SynthesisOutput) {
	s.Metrics.Usage.Synthesis, s.Metrics.Latency.Synthesis = SummarizeSynthesis(
		out.Answer.SynthesizerModel, out.PromptTokens, out.CompletionTokens, out.Answer.DurationMS)
	a.finish(s)
}

// Touch refreshes the end-to-end latency only.
func (a *Aggregator) Touch(s *core.Session) {
	s.Metrics.Latency.EndToEndMS = EndToEnd(s.CreatedAt, a.now(), s.Metrics.Latency.EndToEndMS)
}

func (a *Aggregator) finish(s *core.Session) {
	RecomputeTotals(&s.Metrics)
	a.Touch(s)
}
