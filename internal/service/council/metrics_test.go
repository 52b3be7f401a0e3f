package council

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hugo-lorenzo-mato/llm-council/internal/core"
)

func TestSummarizeOpinions_GroupsByModel(t *testing.T) {
	usage, latency := SummarizeOpinions([]core.Opinion{
		{Model: "llama3.2:1b", PromptTokens: 10, CompletionTokens: 5, DurationMS: 100},
		{Model: "llama3.2:1b", PromptTokens: 20, CompletionTokens: 5, DurationMS: 50},
		{Model: "gemma2:2b", PromptTokens: 7, CompletionTokens: 3, DurationMS: 80},
		{Model: "gemma2:2b", Failed: true},
	})

	assert.Equal(t, core.StageOpinions, usage.Stage)
	assert.Equal(t, core.NewTokenUsage(37, 13), usage.Totals)
	assert.Equal(t, core.NewTokenUsage(30, 10), usage.ByModel["llama3.2:1b"])
	assert.Equal(t, core.NewTokenUsage(7, 3), usage.ByModel["gemma2:2b"])

	assert.Equal(t, int64(230), latency.TotalDurationMS)
	assert.Equal(t, int64(150), latency.ByModel["llama3.2:1b"])
}

func TestSummarizeReviews_Empty(t *testing.T) {
	usage, latency := SummarizeReviews(nil)
	assert.Equal(t, core.StageReview, usage.Stage)
	assert.Zero(t, usage.Totals.TotalTokens)
	assert.Empty(t, usage.ByModel)
	assert.Zero(t, latency.TotalDurationMS)
}

func TestRecomputeTotals_SumsPresentStages(t *testing.T) {
	var m core.SessionMetrics
	m.Usage.Opinions, _ = SummarizeOpinions([]core.Opinion{{Model: "a", PromptTokens: 10, CompletionTokens: 5}})
	RecomputeTotals(&m)
	assert.Equal(t, 15, m.Usage.Total.TotalTokens)

	m.Usage.Synthesis, _ = SummarizeSynthesis("phi", 100, 20, 10)
	RecomputeTotals(&m)
	assert.Equal(t, core.NewTokenUsage(110, 25), m.Usage.Total)
}

func TestEndToEnd(t *testing.T) {
	created := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	assert.Equal(t, int64(1500), EndToEnd(created, created.Add(1500*time.Millisecond), 0))
	assert.Equal(t, int64(0), EndToEnd(created, created.Add(-time.Second), 0), "clock skew never goes negative")
	assert.Equal(t, int64(2000), EndToEnd(created, created.Add(time.Second), 2000), "never decreases")
}

func TestAggregator_TotalsMatchStages(t *testing.T) {
	created := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	now := created
	agg := &Aggregator{now: func() time.Time { return now }}

	s := &core.Session{CreatedAt: created, SynthesizerModel: "phi"}
	s.Opinions = []core.Opinion{
		{Model: "a", PromptTokens: 10, CompletionTokens: 5},
		{Model: "b", PromptTokens: 12, CompletionTokens: 6},
	}
	now = created.Add(time.Second)
	agg.ApplyOpinions(s)
	assert.Equal(t, 33, s.Metrics.Usage.Total.TotalTokens)
	first := s.Metrics.Latency.EndToEndMS

	s.Reviews = []core.Review{{Model: "a", PromptTokens: 40, CompletionTokens: 8}}
	now = created.Add(2 * time.Second)
	agg.ApplyReviews(s)
	assert.Equal(t, 81, s.Metrics.Usage.Total.TotalTokens)

	agg.ApplySynthesis(s, &SynthesisOutput{
		Answer:           core.FinalAnswer{SynthesizerModel: "phi", DurationMS: 300},
		PromptTokens:     50,
		CompletionTokens: 9,
	})
	require.NotNil(t, s.Metrics.Usage.Synthesis)
	assert.Equal(t, 59, s.Metrics.Usage.Synthesis.ByModel["phi"].TotalTokens)
	assert.Equal(t, int64(300), s.Metrics.Latency.Synthesis.ByModel["phi"])

	sum := s.Metrics.Usage.Opinions.Totals.Add(s.Metrics.Usage.Review.Totals).Add(s.Metrics.Usage.Synthesis.Totals)
	assert.Equal(t, sum, s.Metrics.Usage.Total)
	assert.GreaterOrEqual(t, s.Metrics.Latency.EndToEndMS, first)
	assert.Equal(t, int64(2000), s.Metrics.Latency.EndToEndMS)
}
