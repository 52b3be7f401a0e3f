package council

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/hugo-lorenzo-mato/llm-council/internal/core"
)

// Score bounds and the neutral fallback used by the pairwise protocol.
const (
	MinScore     = 1
	MaxScore     = 10
	NeutralScore = 5

	ParseErrorReasoning = "Parse error - defaulting to neutral score"
	NoReasoning         = "No reasoning provided"
)

// ParsePairwise parses a single {"score", "reasoning"} evaluation.
// It is total: malformed input yields the neutral score instead of an error.
// The returned ranking has no target; the caller assigns it.
func ParsePairwise(raw string) core.Ranking {
	var obj map[string]interface{}
	if err := json.Unmarshal([]byte(stripCodeFence(raw)), &obj); err != nil || obj == nil {
		return core.Ranking{Score: NeutralScore, Reasoning: ParseErrorReasoning}
	}

	score := NeutralScore
	if v, ok := obj["score"]; ok {
		s, err := scoreValue(v)
		if err != nil {
			return core.Ranking{Score: NeutralScore, Reasoning: ParseErrorReasoning}
		}
		score = s
	}

	return core.Ranking{Score: clampScore(score), Reasoning: reasoningValue(obj["reasoning"])}
}

// batchedItem is one entry of a batched reviewer's output.
type batchedItem struct {
	AgentID   string      `json:"agent_id"`
	Score     interface{} `json:"score"`
	Reasoning interface{} `json:"reasoning"`
}

// ParseBatched parses a batched reviewer's JSON array of rankings, also
// accepted wrapped as {"rankings": [...]}. Any malformed entry rejects the
// whole turn. Rankings of the reviewer itself are dropped by exact,
// case-insensitive id match.
func ParseBatched(raw, reviewerID string) ([]core.Ranking, error) {
	body := []byte(stripCodeFence(raw))

	var items []batchedItem
	if err := json.Unmarshal(body, &items); err != nil {
		var wrapped struct {
			Rankings *[]batchedItem `json:"rankings"`
		}
		if werr := json.Unmarshal(body, &wrapped); werr != nil || wrapped.Rankings == nil {
			return nil, core.ErrValidation(core.CodeParseFailed, "batched review is not a JSON array of rankings").WithCause(err)
		}
		items = *wrapped.Rankings
	}

	rankings := make([]core.Ranking, 0, len(items))
	for i, item := range items {
		id := strings.TrimSpace(item.AgentID)
		if id == "" {
			return nil, core.ErrValidation(core.CodeParseFailed, fmt.Sprintf("ranking %d has no agent_id", i))
		}
		score, err := scoreValue(item.Score)
		if err != nil {
			return nil, core.ErrValidation(core.CodeParseFailed, fmt.Sprintf("ranking for %s: %v", id, err))
		}
		if strings.EqualFold(id, reviewerID) {
			continue
		}
		rankings = append(rankings, core.Ranking{
			TargetAgentID: id,
			Score:         clampScore(score),
			Reasoning:     reasoningValue(item.Reasoning),
		})
	}
	return rankings, nil
}

// scoreValue converts a decoded JSON value to an integer score, truncating fractions.
func scoreValue(v interface{}) (int, error) {
	switch s := v.(type) {
	case float64:
		if math.IsNaN(s) || math.IsInf(s, 0) {
			return 0, fmt.Errorf("score is not finite")
		}
		return int(math.Max(math.Min(s, math.MaxInt32), math.MinInt32)), nil
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(s))
		if err != nil {
			return 0, fmt.Errorf("score %q is not an integer", s)
		}
		return n, nil
	default:
		return 0, fmt.Errorf("score has type %T", v)
	}
}

func reasoningValue(v interface{}) string {
	switch r := v.(type) {
	case nil:
		return NoReasoning
	case string:
		return r
	default:
		b, err := json.Marshal(r)
		if err != nil {
			return NoReasoning
		}
		return string(b)
	}
}

func clampScore(s int) int {
	if s < MinScore {
		return MinScore
	}
	if s > MaxScore {
		return MaxScore
	}
	return s
}

// stripCodeFence removes a surrounding ``` or ```json fence that small models like to add.
func stripCodeFence(raw string) string {
	s := strings.TrimSpace(raw)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

// AgentScore is the mean score an agent received across all reviewers.
type AgentScore struct {
	AgentID string  `json:"agent_id"`
	Mean    float64 `json:"mean"`
	Count   int     `json:"count"`
}

// MeanScores averages the rankings received per target, sorted by agent id.
// The result does not depend on review order.
func MeanScores(reviews []core.Review) []AgentScore {
	sums := make(map[string]int)
	counts := make(map[string]int)
	for _, r := range reviews {
		for _, rk := range r.Rankings {
			sums[rk.TargetAgentID] += rk.Score
			counts[rk.TargetAgentID]++
		}
	}

	scores := make([]AgentScore, 0, len(sums))
	for id, sum := range sums {
		scores = append(scores, AgentScore{
			AgentID: id,
			Mean:    float64(sum) / float64(counts[id]),
			Count:   counts[id],
		})
	}
	sort.Slice(scores, func(i, j int) bool { return scores[i].AgentID < scores[j].AgentID })
	return scores
}

// TopAgents returns up to n agent ids ordered by descending mean score.
// Ties go to the agent that appears first in agents.
func TopAgents(scores []AgentScore, agents []core.Agent, n int) []string {
	index := make(map[string]int, len(agents))
	for i, a := range agents {
		index[a.ID] = i
	}
	position := func(id string) int {
		if i, ok := index[id]; ok {
			return i
		}
		return len(agents)
	}

	ranked := append([]AgentScore(nil), scores...)
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].Mean != ranked[j].Mean {
			return ranked[i].Mean > ranked[j].Mean
		}
		return position(ranked[i].AgentID) < position(ranked[j].AgentID)
	})

	if len(ranked) > n {
		ranked = ranked[:n]
	}
	ids := make([]string, 0, len(ranked))
	for _, s := range ranked {
		ids = append(ids, s.AgentID)
	}
	return ids
}

// FormatRankings renders mean scores as one "agent_id: Average score X.X/10" line each.
func FormatRankings(scores []AgentScore) string {
	lines := make([]string, 0, len(scores))
	for _, s := range scores {
		lines = append(lines, fmt.Sprintf("%s: Average score %.1f/10", s.AgentID, s.Mean))
	}
	return strings.Join(lines, "\n")
}

// FormatOpinions renders opinions as labeled blocks separated by rules.
func FormatOpinions(opinions []core.Opinion) string {
	parts := make([]string, 0, len(opinions))
	for _, op := range opinions {
		parts = append(parts, fmt.Sprintf("[%s (%s)]:\n%s", op.AgentName, op.AgentID, op.Content))
	}
	return strings.Join(parts, "\n\n---\n\n")
}
