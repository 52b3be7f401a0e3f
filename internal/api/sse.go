package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/hugo-lorenzo-mato/llm-council/internal/events"
)

// handleSSE streams bus events as Server-Sent Events. ?session_id= limits the
// stream to one session, which then ends after that session's terminal event.
func (s *Server) handleSSE(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	flusher, ok := w.(http.Flusher)
	if !ok {
		respondError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	ctx := r.Context()
	sessionID := r.URL.Query().Get("session_id")

	var eventCh <-chan events.Event
	if sessionID != "" {
		eventCh = s.eventBus.SubscribeSession(sessionID)
	} else {
		eventCh = s.eventBus.Subscribe()
	}
	defer s.eventBus.Unsubscribe(eventCh)

	s.logger.Info("SSE client connected", "remote_addr", r.RemoteAddr, "session_id", sessionID)

	s.sendSSEEvent(w, flusher, "connected", map[string]string{
		"status": "connected",
	})

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("SSE client disconnected", "remote_addr", r.RemoteAddr)
			return

		case event, ok := <-eventCh:
			if !ok {
				return
			}
			s.sendEventToClient(w, flusher, event)
			if sessionID != "" && events.IsTerminal(event) {
				return
			}
		}
	}
}

func (s *Server) sendSSEEvent(w http.ResponseWriter, flusher http.Flusher, eventType string, data interface{}) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		s.logger.Error("failed to marshal SSE data", "error", err)
		return
	}

	fmt.Fprintf(w, "event: %s\n", eventType)
	fmt.Fprintf(w, "data: %s\n\n", jsonData)
	flusher.Flush()
}

// sendEventToClient converts an Event to its SSE payload and sends it.
func (s *Server) sendEventToClient(w http.ResponseWriter, flusher http.Flusher, event events.Event) {
	var payload interface{}

	switch e := event.(type) {
	case events.SessionStartedEvent:
		payload = map[string]interface{}{
			"session_id": e.SessionID(),
			"query":      e.Query,
			"agents":     e.Agents,
			"timestamp":  e.Timestamp(),
		}

	case events.StageStartedEvent:
		payload = map[string]interface{}{
			"session_id": e.SessionID(),
			"stage":      e.Stage,
			"timestamp":  e.Timestamp(),
		}

	case events.StageCompletedEvent:
		payload = map[string]interface{}{
			"session_id":  e.SessionID(),
			"stage":       e.Stage,
			"items":       e.Items,
			"tokens":      e.Tokens,
			"duration_ms": e.Duration.Milliseconds(),
			"timestamp":   e.Timestamp(),
		}

	case events.SessionCompletedEvent:
		payload = map[string]interface{}{
			"session_id":    e.SessionID(),
			"duration_ms":   e.Duration.Milliseconds(),
			"total_tokens":  e.TotalTokens,
			"sources_cited": e.SourcesCited,
			"timestamp":     e.Timestamp(),
		}

	case events.SessionFailedEvent:
		payload = map[string]interface{}{
			"session_id": e.SessionID(),
			"stage":      e.Stage,
			"error":      e.Error,
			"timestamp":  e.Timestamp(),
		}

	default:
		payload = map[string]interface{}{
			"session_id": event.SessionID(),
			"timestamp":  event.Timestamp(),
		}
	}

	s.sendSSEEvent(w, flusher, event.EventType(), payload)
}
