package core

// TokenUsage is the token count of one model or one stage.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// NewTokenUsage builds a TokenUsage with its total filled in.
func NewTokenUsage(prompt, completion int) TokenUsage {
	return TokenUsage{
		PromptTokens:     prompt,
		CompletionTokens: completion,
		TotalTokens:      prompt + completion,
	}
}

// Add returns the sum of u and other.
func (u TokenUsage) Add(other TokenUsage) TokenUsage {
	return NewTokenUsage(u.PromptTokens+other.PromptTokens, u.CompletionTokens+other.CompletionTokens)
}

// StageUsage aggregates token usage of one stage.
type StageUsage struct {
	Stage   Stage                 `json:"stage"`
	Totals  TokenUsage            `json:"totals"`
	ByModel map[string]TokenUsage `json:"by_model"`
}

// LatencyStats aggregates generation time of one stage.
type LatencyStats struct {
	Stage           Stage            `json:"stage"`
	TotalDurationMS int64            `json:"total_duration_ms"`
	ByModel         map[string]int64 `json:"by_model"`
}

// UsageReport holds the per-stage token slots and their grand total.
type UsageReport struct {
	Opinions  *StageUsage `json:"stage1_opinions,omitempty"`
	Review    *StageUsage `json:"stage2_review,omitempty"`
	Synthesis *StageUsage `json:"stage3_synthesis,omitempty"`
	Total     TokenUsage  `json:"total"`
}

// LatencyReport holds the per-stage latency slots and the end-to-end duration.
// EndToEndMS is wall-clock time since session creation, not a sum of stages.
type LatencyReport struct {
	Opinions   *LatencyStats `json:"stage1_opinions,omitempty"`
	Review     *LatencyStats `json:"stage2_review,omitempty"`
	Synthesis  *LatencyStats `json:"stage3_synthesis,omitempty"`
	EndToEndMS int64         `json:"total_duration_ms"`
}

// SessionMetrics is the metrics block of a session.
type SessionMetrics struct {
	Usage   UsageReport   `json:"token_usage"`
	Latency LatencyReport `json:"latency_stats"`
}

// Clone returns a deep copy of the metrics.
func (m SessionMetrics) Clone() SessionMetrics {
	return SessionMetrics{
		Usage: UsageReport{
			Opinions:  m.Usage.Opinions.clone(),
			Review:    m.Usage.Review.clone(),
			Synthesis: m.Usage.Synthesis.clone(),
			Total:     m.Usage.Total,
		},
		Latency: LatencyReport{
			Opinions:   m.Latency.Opinions.clone(),
			Review:     m.Latency.Review.clone(),
			Synthesis:  m.Latency.Synthesis.clone(),
			EndToEndMS: m.Latency.EndToEndMS,
		},
	}
}

func (u *StageUsage) clone() *StageUsage {
	if u == nil {
		return nil
	}
	c := *u
	c.ByModel = make(map[string]TokenUsage, len(u.ByModel))
	for k, v := range u.ByModel {
		c.ByModel[k] = v
	}
	return &c
}

func (l *LatencyStats) clone() *LatencyStats {
	if l == nil {
		return nil
	}
	c := *l
	c.ByModel = make(map[string]int64, len(l.ByModel))
	for k, v := range l.ByModel {
		c.ByModel[k] = v
	}
	return &c
}
