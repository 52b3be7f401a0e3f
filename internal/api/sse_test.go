package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/hugo-lorenzo-mato/llm-council/internal/events"
	"github.com/hugo-lorenzo-mato/llm-council/internal/logging"
)

// mockFlusher satisfies http.Flusher next to an httptest.ResponseRecorder.
type mockFlusher struct{}

func (mockFlusher) Flush() {}

func newSSEServer(bus *events.EventBus) *Server {
	return &Server{
		logger:   logging.NewNop(),
		eventBus: bus,
	}
}

func parseSSEPayload(t *testing.T, body string) (eventType string, payload map[string]interface{}) {
	t.Helper()
	for _, line := range strings.Split(body, "\n") {
		if strings.HasPrefix(line, "event: ") {
			eventType = strings.TrimPrefix(line, "event: ")
		}
		if strings.HasPrefix(line, "data: ") {
			raw := strings.TrimPrefix(line, "data: ")
			if err := json.Unmarshal([]byte(raw), &payload); err != nil {
				t.Fatalf("failed to unmarshal SSE data: %v", err)
			}
		}
	}
	return
}

func TestSendEventToClient_SessionStarted(t *testing.T) {
	t.Parallel()
	s := newSSEServer(events.New(10))

	rec := httptest.NewRecorder()
	s.sendEventToClient(rec, mockFlusher{}, events.NewSessionStartedEvent("s-1", "why?", 3))

	eventType, payload := parseSSEPayload(t, rec.Body.String())
	if eventType != "session_started" {
		t.Errorf("expected event type 'session_started', got %q", eventType)
	}
	if payload["session_id"] != "s-1" {
		t.Errorf("expected session_id 's-1', got %v", payload["session_id"])
	}
	if payload["query"] != "why?" {
		t.Errorf("expected query 'why?', got %v", payload["query"])
	}
	if payload["agents"] != float64(3) {
		t.Errorf("expected agents 3, got %v", payload["agents"])
	}
	if payload["timestamp"] == nil {
		t.Error("expected timestamp to be present")
	}
}

func TestSendEventToClient_StageCompleted(t *testing.T) {
	t.Parallel()
	s := newSSEServer(events.New(10))

	rec := httptest.NewRecorder()
	s.sendEventToClient(rec, mockFlusher{}, events.NewStageCompletedEvent("s-1", "review", 6, 90, 1500*time.Millisecond))

	eventType, payload := parseSSEPayload(t, rec.Body.String())
	if eventType != "stage_completed" {
		t.Errorf("expected event type 'stage_completed', got %q", eventType)
	}
	if payload["stage"] != "review" {
		t.Errorf("expected stage 'review', got %v", payload["stage"])
	}
	if payload["items"] != float64(6) {
		t.Errorf("expected items 6, got %v", payload["items"])
	}
	if payload["duration_ms"] != float64(1500) {
		t.Errorf("expected duration_ms 1500, got %v", payload["duration_ms"])
	}
}

func TestSendEventToClient_SessionCompleted(t *testing.T) {
	t.Parallel()
	s := newSSEServer(events.New(10))

	rec := httptest.NewRecorder()
	event := events.NewSessionCompletedEvent("s-1", 2*time.Second, 150, []string{"agent_2", "agent_1"})
	s.sendEventToClient(rec, mockFlusher{}, event)

	eventType, payload := parseSSEPayload(t, rec.Body.String())
	if eventType != "session_completed" {
		t.Errorf("expected event type 'session_completed', got %q", eventType)
	}
	if payload["total_tokens"] != float64(150) {
		t.Errorf("expected total_tokens 150, got %v", payload["total_tokens"])
	}
	sources, ok := payload["sources_cited"].([]interface{})
	if !ok || len(sources) != 2 || sources[0] != "agent_2" {
		t.Errorf("unexpected sources_cited %v", payload["sources_cited"])
	}
}

func TestSendEventToClient_SessionFailed(t *testing.T) {
	t.Parallel()
	s := newSSEServer(events.New(10))

	rec := httptest.NewRecorder()
	s.sendEventToClient(rec, mockFlusher{}, events.NewSessionFailedEvent("s-1", "opinions", errors.New("backend unreachable")))

	eventType, payload := parseSSEPayload(t, rec.Body.String())
	if eventType != "session_failed" {
		t.Errorf("expected event type 'session_failed', got %q", eventType)
	}
	if payload["stage"] != "opinions" {
		t.Errorf("expected stage 'opinions', got %v", payload["stage"])
	}
	if payload["error"] != "backend unreachable" {
		t.Errorf("expected error text, got %v", payload["error"])
	}
}

func TestSendEventToClient_UnknownEventFallsBack(t *testing.T) {
	t.Parallel()
	s := newSSEServer(events.New(10))

	rec := httptest.NewRecorder()
	s.sendEventToClient(rec, mockFlusher{}, events.NewBaseEvent("custom", "s-9"))

	eventType, payload := parseSSEPayload(t, rec.Body.String())
	if eventType != "custom" {
		t.Errorf("expected event type 'custom', got %q", eventType)
	}
	if payload["session_id"] != "s-9" {
		t.Errorf("expected session_id 's-9', got %v", payload["session_id"])
	}
}

func TestHandleSSE_SessionStreamEndsOnTerminalEvent(t *testing.T) {
	t.Parallel()
	bus := events.New(10)
	defer bus.Close()
	s := newSSEServer(bus)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req := httptest.NewRequest("GET", "/api/council/events?session_id=s-1", nil).WithContext(ctx)
	rec := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		s.handleSSE(rec, req)
		close(done)
	}()

	// Wait for the handler to subscribe.
	deadline := time.Now().Add(2 * time.Second)
	for bus.SubscriberCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	bus.Publish(events.NewStageStartedEvent("s-2", "opinions"))
	bus.Publish(events.NewStageStartedEvent("s-1", "opinions"))
	bus.Publish(events.NewSessionCompletedEvent("s-1", time.Second, 10, nil))

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("stream did not end after the terminal event")
	}

	body := rec.Body.String()
	if !strings.Contains(body, "event: connected") {
		t.Error("expected connected event")
	}
	if strings.Contains(body, `"session_id":"s-2"`) {
		t.Error("events of other sessions must be filtered out")
	}
	if !strings.Contains(body, "event: session_completed") {
		t.Error("expected session_completed event")
	}
	if got := rec.Header().Get("Content-Type"); got != "text/event-stream" {
		t.Errorf("expected text/event-stream, got %q", got)
	}
}

func TestSSEClient_CloseUnsubscribes(t *testing.T) {
	t.Parallel()
	bus := events.New(10)
	defer bus.Close()

	ch := bus.Subscribe()
	if bus.SubscriberCount() != 1 {
		t.Fatalf("expected 1 subscriber, got %d", bus.SubscriberCount())
	}
	bus.Unsubscribe(ch)
	if bus.SubscriberCount() != 0 {
		t.Errorf("expected 0 subscribers after unsubscribe, got %d", bus.SubscriberCount())
	}
}
