package events

import "time"

// Event type constants for session events.
const (
	TypeSessionStarted   = "session_started"
	TypeStageStarted     = "stage_started"
	TypeStageCompleted   = "stage_completed"
	TypeSessionCompleted = "session_completed"
	TypeSessionFailed    = "session_failed"
)

// SessionStartedEvent is emitted once when the orchestrator picks up a session.
type SessionStartedEvent struct {
	BaseEvent
	Query  string `json:"query"`
	Agents int    `json:"agents"`
}

// NewSessionStartedEvent creates a new session started event.
func NewSessionStartedEvent(sessionID, query string, agents int) SessionStartedEvent {
	return SessionStartedEvent{
		BaseEvent: NewBaseEvent(TypeSessionStarted, sessionID),
		Query:     query,
		Agents:    agents,
	}
}

// StageStartedEvent is emitted when a session enters a working stage.
type StageStartedEvent struct {
	BaseEvent
	Stage string `json:"stage"`
}

// NewStageStartedEvent creates a new stage started event.
func NewStageStartedEvent(sessionID, stage string) StageStartedEvent {
	return StageStartedEvent{
		BaseEvent: NewBaseEvent(TypeStageStarted, sessionID),
		Stage:     stage,
	}
}

// StageCompletedEvent is emitted when a working stage has stored its results.
type StageCompletedEvent struct {
	BaseEvent
	Stage    string        `json:"stage"`
	Items    int           `json:"items"`
	Tokens   int           `json:"tokens"`
	Duration time.Duration `json:"duration"`
}

// NewStageCompletedEvent creates a new stage completed event.
func NewStageCompletedEvent(sessionID, stage string, items, tokens int, duration time.Duration) StageCompletedEvent {
	return StageCompletedEvent{
		BaseEvent: NewBaseEvent(TypeStageCompleted, sessionID),
		Stage:     stage,
		Items:     items,
		Tokens:    tokens,
		Duration:  duration,
	}
}

// SessionCompletedEvent is emitted once when the final answer is available.
type SessionCompletedEvent struct {
	BaseEvent
	Duration     time.Duration `json:"duration"`
	TotalTokens  int           `json:"total_tokens"`
	SourcesCited []string      `json:"sources_cited"`
}

// NewSessionCompletedEvent creates a new session completed event.
func NewSessionCompletedEvent(sessionID string, duration time.Duration, totalTokens int, sources []string) SessionCompletedEvent {
	return SessionCompletedEvent{
		BaseEvent:    NewBaseEvent(TypeSessionCompleted, sessionID),
		Duration:     duration,
		TotalTokens:  totalTokens,
		SourcesCited: sources,
	}
}

// SessionFailedEvent is emitted once when a session ends in the error stage.
type SessionFailedEvent struct {
	BaseEvent
	Stage string `json:"stage"`
	Error string `json:"error"`
}

// NewSessionFailedEvent creates a new session failed event.
func NewSessionFailedEvent(sessionID, stage string, err error) SessionFailedEvent {
	errStr := ""
	if err != nil {
		errStr = err.Error()
	}
	return SessionFailedEvent{
		BaseEvent: NewBaseEvent(TypeSessionFailed, sessionID),
		Stage:     stage,
		Error:     errStr,
	}
}

// IsTerminal reports whether the event ends a session's stream.
func IsTerminal(e Event) bool {
	t := e.EventType()
	return t == TypeSessionCompleted || t == TypeSessionFailed
}
