package core

import (
	"fmt"
	"time"
)

// SessionID uniquely identifies a deliberation session.
type SessionID string

// ReviewProtocol selects how the review stage evaluates opinions.
type ReviewProtocol string

const (
	// ProtocolPairwise issues one call per ordered (reviewer, target) pair.
	ProtocolPairwise ReviewProtocol = "pairwise"
	// ProtocolBatched issues one call per reviewer covering every other agent.
	ProtocolBatched ReviewProtocol = "batched"
)

// IsValid reports whether p is a known protocol.
func (p ReviewProtocol) IsValid() bool {
	return p == ProtocolPairwise || p == ProtocolBatched
}

// Agent is one participant of a council.
type Agent struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Model string `json:"model"`
}

// AgentSpec is the caller-supplied description of an agent, before ids are assigned.
type AgentSpec struct {
	Name  string `json:"name"`
	Model string `json:"model"`
}

// AgentID returns the positional id of the agent at index i (0-based).
func AgentID(i int) string {
	return fmt.Sprintf("agent_%d", i+1)
}

// NewAgents assigns positional ids to the given specs.
// Duplicate models are allowed; agents are told apart by id.
func NewAgents(specs []AgentSpec) []Agent {
	agents := make([]Agent, len(specs))
	for i, spec := range specs {
		name := spec.Name
		if name == "" {
			name = fmt.Sprintf("Agent_%d", i+1)
		}
		agents[i] = Agent{ID: AgentID(i), Name: name, Model: spec.Model}
	}
	return agents
}

// Opinion is one agent's first-pass answer.
type Opinion struct {
	AgentID          string `json:"agent_id"`
	AgentName        string `json:"agent_name"`
	Model            string `json:"model"`
	Content          string `json:"content"`
	PromptTokens     int    `json:"prompt_tokens"`
	CompletionTokens int    `json:"completion_tokens"`
	TokensUsed       int    `json:"tokens_used"`
	DurationMS       int64  `json:"duration_ms"`
	Failed           bool   `json:"failed,omitempty"`
}

// Ranking is one reviewer's score of one target.
type Ranking struct {
	TargetAgentID string `json:"agent_id"`
	Score         int    `json:"score"`
	Reasoning     string `json:"reasoning"`
}

// Review is the complete output of one reviewer.
type Review struct {
	ReviewerID       string    `json:"reviewer_id"`
	ReviewerName     string    `json:"reviewer_name"`
	Model            string    `json:"model"`
	Rankings         []Ranking `json:"rankings"`
	PromptTokens     int       `json:"prompt_tokens"`
	CompletionTokens int       `json:"completion_tokens"`
	DurationMS       int64     `json:"duration_ms"`
}

// FinalAnswer is the synthesizer's merged answer.
type FinalAnswer struct {
	Content          string   `json:"content"`
	SynthesizerModel string   `json:"chairman_model"`
	TokensUsed       int      `json:"tokens_used"`
	DurationMS       int64    `json:"duration_ms"`
	SourcesCited     []string `json:"sources_cited"`
}

// Session is the aggregate root of one deliberation.
type Session struct {
	ID               SessionID      `json:"session_id"`
	Query            string         `json:"query"`
	Stage            Stage          `json:"stage"`
	Protocol         ReviewProtocol `json:"protocol"`
	SynthesizerModel string         `json:"chairman_model"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
	Agents           []Agent        `json:"agents"`
	Opinions         []Opinion      `json:"opinions"`
	Reviews          []Review       `json:"reviews"`
	Metrics          SessionMetrics `json:"metrics"`
	FinalAnswer      *FinalAnswer   `json:"final_answer,omitempty"`
	Error            string         `json:"error,omitempty"`
}

// Progress is the compact view the progress channel reports.
type Progress struct {
	Stage          Stage `json:"stage"`
	Agents         int   `json:"agents"`
	Opinions       int   `json:"opinions"`
	Reviews        int   `json:"reviews"`
	HasFinalAnswer bool  `json:"has_final_answer"`
}

// Progress returns the stage-specific counts of the session.
func (s *Session) Progress() Progress {
	return Progress{
		Stage:          s.Stage,
		Agents:         len(s.Agents),
		Opinions:       len(s.Opinions),
		Reviews:        len(s.Reviews),
		HasFinalAnswer: s.FinalAnswer != nil,
	}
}

// Transition moves the session to next, stamping UpdatedAt.
func (s *Session) Transition(next Stage, now time.Time) error {
	if !s.Stage.CanTransitionTo(next) {
		return ErrState(CodeInvalidTransition,
			fmt.Sprintf("cannot move session %s from %s to %s", s.ID, s.Stage, next))
	}
	s.Stage = next
	s.UpdatedAt = now
	return nil
}

// Fail records msg and forces the session into StageError.
// A session that already reached a terminal stage is left untouched.
func (s *Session) Fail(msg string, now time.Time) {
	if s.Stage.IsTerminal() {
		return
	}
	s.Error = msg
	s.Stage = StageError
	s.UpdatedAt = now
}

// Complete stores the final answer and moves the session to StageComplete.
func (s *Session) Complete(answer FinalAnswer, now time.Time) error {
	if err := s.Transition(StageComplete, now); err != nil {
		return err
	}
	s.FinalAnswer = &answer
	return nil
}

// Clone returns a deep copy of the session.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	c := *s
	c.Agents = append([]Agent(nil), s.Agents...)
	if s.Opinions != nil {
		c.Opinions = make([]Opinion, len(s.Opinions))
		copy(c.Opinions, s.Opinions)
	}
	if s.Reviews != nil {
		c.Reviews = make([]Review, len(s.Reviews))
		for i, r := range s.Reviews {
			r.Rankings = append([]Ranking(nil), r.Rankings...)
			c.Reviews[i] = r
		}
	}
	c.Metrics = s.Metrics.Clone()
	if s.FinalAnswer != nil {
		fa := *s.FinalAnswer
		if s.FinalAnswer.SourcesCited != nil {
			fa.SourcesCited = make([]string, len(s.FinalAnswer.SourcesCited))
			copy(fa.SourcesCited, s.FinalAnswer.SourcesCited)
		}
		c.FinalAnswer = &fa
	}
	return &c
}

// AgentIndex returns the position of the agent with the given id, or -1.
func (s *Session) AgentIndex(id string) int {
	for i, a := range s.Agents {
		if a.ID == id {
			return i
		}
	}
	return -1
}
