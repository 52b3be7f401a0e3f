package council

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hugo-lorenzo-mato/llm-council/internal/core"
)

func TestParsePairwise(t *testing.T) {
	tests := []struct {
		name      string
		raw       string
		score     int
		reasoning string
	}{
		{"valid", `{"score": 8, "reasoning": "accurate"}`, 8, "accurate"},
		{"fenced", "```json\n{\"score\": 7, \"reasoning\": \"ok\"}\n```", 7, "ok"},
		{"fraction truncates", `{"score": 7.9, "reasoning": "x"}`, 7, "x"},
		{"numeric string", `{"score": "9", "reasoning": "x"}`, 9, "x"},
		{"clamped high", `{"score": 42, "reasoning": "x"}`, MaxScore, "x"},
		{"clamped low", `{"score": -3, "reasoning": "x"}`, MinScore, "x"},
		{"missing score", `{"reasoning": "no number"}`, NeutralScore, "no number"},
		{"missing reasoning", `{"score": 6}`, 6, NoReasoning},
		{"not json", "This answer is great, 9/10", NeutralScore, ParseErrorReasoning},
		{"empty", "", NeutralScore, ParseErrorReasoning},
		{"array", `[{"score": 3}]`, NeutralScore, ParseErrorReasoning},
		{"null", `null`, NeutralScore, ParseErrorReasoning},
		{"bad score type", `{"score": true}`, NeutralScore, ParseErrorReasoning},
		{"word score", `{"score": "high"}`, NeutralScore, ParseErrorReasoning},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParsePairwise(tt.raw)
			assert.Equal(t, tt.score, got.Score)
			assert.Equal(t, tt.reasoning, got.Reasoning)
			assert.Empty(t, got.TargetAgentID)
		})
	}
}

func TestParsePairwise_AlwaysInRange(t *testing.T) {
	inputs := []string{
		`{"score": 1e308}`, `{"score": -1e308}`, `{"score": 0}`, `{"score": 10}`,
		`{`, `}`, `"score"`, `123`, `{"score": {"nested": 1}}`,
	}
	for _, raw := range inputs {
		got := ParsePairwise(raw)
		assert.GreaterOrEqual(t, got.Score, MinScore, raw)
		assert.LessOrEqual(t, got.Score, MaxScore, raw)
		assert.NotEmpty(t, got.Reasoning, raw)
	}
}

func TestParseBatched_Array(t *testing.T) {
	raw := `[
		{"agent_id": "agent_2", "score": 8, "reasoning": "clear"},
		{"agent_id": "agent_3", "score": 11}
	]`

	got, err := ParseBatched(raw, "agent_1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, core.Ranking{TargetAgentID: "agent_2", Score: 8, Reasoning: "clear"}, got[0])
	assert.Equal(t, core.Ranking{TargetAgentID: "agent_3", Score: 10, Reasoning: NoReasoning}, got[1])
}

func TestParseBatched_Wrapped(t *testing.T) {
	raw := "```json\n{\"rankings\": [{\"agent_id\": \"agent_1\", \"score\": 4, \"reasoning\": \"thin\"}]}\n```"

	got, err := ParseBatched(raw, "agent_2")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "agent_1", got[0].TargetAgentID)
	assert.Equal(t, 4, got[0].Score)
}

func TestParseBatched_DropsSelfByExactMatch(t *testing.T) {
	raw := `[
		{"agent_id": "AGENT_1", "score": 10, "reasoning": "mine"},
		{"agent_id": "agent_10", "score": 6, "reasoning": "other"}
	]`

	got, err := ParseBatched(raw, "agent_1")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "agent_10", got[0].TargetAgentID)
}

func TestParseBatched_Rejects(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"not json", "I liked agent_2 best"},
		{"object without rankings", `{"score": 5}`},
		{"missing agent id", `[{"score": 5}]`},
		{"bad score", `[{"agent_id": "agent_2", "score": "excellent"}]`},
		{"missing score", `[{"agent_id": "agent_2", "reasoning": "x"}]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseBatched(tt.raw, "agent_1")
			require.Error(t, err)
			assert.Equal(t, core.ErrCatValidation, core.GetCategory(err))
		})
	}
}

func TestParseBatched_EmptyArray(t *testing.T) {
	got, err := ParseBatched("[]", "agent_1")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func reviewOf(reviewer string, scores map[string]int) core.Review {
	r := core.Review{ReviewerID: reviewer}
	for target, score := range scores {
		r.Rankings = append(r.Rankings, core.Ranking{TargetAgentID: target, Score: score})
	}
	return r
}

func TestMeanScores_OrderIndependent(t *testing.T) {
	a := reviewOf("agent_1", map[string]int{"agent_2": 8, "agent_3": 4})
	b := reviewOf("agent_2", map[string]int{"agent_1": 6, "agent_3": 7})
	c := reviewOf("agent_3", map[string]int{"agent_1": 9, "agent_2": 5})

	forward := MeanScores([]core.Review{a, b, c})
	backward := MeanScores([]core.Review{c, b, a})
	assert.Equal(t, forward, backward)

	require.Len(t, forward, 3)
	assert.Equal(t, AgentScore{AgentID: "agent_1", Mean: 7.5, Count: 2}, forward[0])
	assert.Equal(t, AgentScore{AgentID: "agent_2", Mean: 6.5, Count: 2}, forward[1])
	assert.Equal(t, AgentScore{AgentID: "agent_3", Mean: 5.5, Count: 2}, forward[2])
}

func TestMeanScores_Empty(t *testing.T) {
	assert.Empty(t, MeanScores(nil))
}

func TestTopAgents(t *testing.T) {
	agents := core.NewAgents([]core.AgentSpec{
		{Model: "a"}, {Model: "b"}, {Model: "c"}, {Model: "d"},
	})

	t.Run("descending mean", func(t *testing.T) {
		scores := []AgentScore{
			{AgentID: "agent_1", Mean: 4}, {AgentID: "agent_2", Mean: 9},
			{AgentID: "agent_3", Mean: 6}, {AgentID: "agent_4", Mean: 7},
		}
		assert.Equal(t, []string{"agent_2", "agent_4", "agent_3"}, TopAgents(scores, agents, 3))
	})

	t.Run("ties go to the earlier agent", func(t *testing.T) {
		scores := []AgentScore{
			{AgentID: "agent_4", Mean: 7}, {AgentID: "agent_3", Mean: 7},
			{AgentID: "agent_2", Mean: 7}, {AgentID: "agent_1", Mean: 2},
		}
		assert.Equal(t, []string{"agent_2", "agent_3", "agent_4"}, TopAgents(scores, agents, 3))
	})

	t.Run("fewer scores than n", func(t *testing.T) {
		scores := []AgentScore{{AgentID: "agent_1", Mean: 5}}
		assert.Equal(t, []string{"agent_1"}, TopAgents(scores, agents, 3))
	})

	t.Run("no scores", func(t *testing.T) {
		got := TopAgents(nil, agents, 3)
		assert.NotNil(t, got)
		assert.Empty(t, got)
	})
}

func TestFormatRankings(t *testing.T) {
	got := FormatRankings([]AgentScore{
		{AgentID: "agent_1", Mean: 7.5},
		{AgentID: "agent_2", Mean: 6},
	})
	assert.Equal(t, "agent_1: Average score 7.5/10\nagent_2: Average score 6.0/10", got)
	assert.Empty(t, FormatRankings(nil))
}

func TestFormatOpinions(t *testing.T) {
	got := FormatOpinions([]core.Opinion{
		{AgentID: "agent_1", AgentName: "Alpha", Content: "Paris"},
		{AgentID: "agent_2", AgentName: "Beta", Content: "Paris, France"},
	})
	assert.Equal(t, "[Alpha (agent_1)]:\nParis\n\n---\n\n[Beta (agent_2)]:\nParis, France", got)
}
