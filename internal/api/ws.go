package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/hugo-lorenzo-mato/llm-council/internal/core"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPingPeriod = 30 * time.Second
	wsReadLimit  = 4096
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(*http.Request) bool {
		return true
	},
}

// handleWebSocket streams the progress of one session. The client may connect
// before the session exists; the handler waits for it up to sessionWait.
//
// Messages: session_started once, stage_update on every stage change, then
// complete (with the full session) or error.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		respondError(w, http.StatusServiceUnavailable, "council is not configured on this node")
		return
	}
	id := core.SessionID(chi.URLParam(r, "sessionID"))

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	log := s.logger.WithSession(string(id))
	stream := &wsStream{conn: conn}

	// Subscribe before the first read so no transition slips between them.
	sub := s.eventBus.SubscribeSession(string(id))
	defer s.eventBus.Unsubscribe(sub)

	gone := make(chan struct{})
	go readUntilClosed(conn, gone)

	sess := s.waitForSession(r, id, gone)
	if sess == nil {
		_ = stream.send(map[string]interface{}{"type": "error", "message": "Session not found"})
		stream.close()
		return
	}

	if err := stream.send(map[string]interface{}{
		"type":       "session_started",
		"session_id": sess.ID,
		"stage":      sess.Stage,
	}); err != nil {
		return
	}
	log.Debug("websocket client attached", "stage", sess.Stage)

	lastStage := sess.Stage
	ping := time.NewTicker(wsPingPeriod)
	defer ping.Stop()
	poll := time.NewTicker(4 * s.pollEvery)
	defer poll.Stop()

	for !sess.Stage.IsTerminal() {
		select {
		case <-gone:
			log.Debug("websocket client disconnected")
			return
		case <-ping.C:
			if err := stream.ping(); err != nil {
				return
			}
			continue
		case _, ok := <-sub:
			if !ok {
				stream.close()
				return
			}
		case <-poll.C:
			// Catches transitions whose events were dropped by the bus.
		}

		latest, err := s.store.Get(r.Context(), id)
		if err != nil {
			_ = stream.send(map[string]interface{}{"type": "error", "message": errorMessage(err)})
			stream.close()
			return
		}
		sess = latest
		if sess.Stage != lastStage {
			p := sess.Progress()
			if err := stream.send(map[string]interface{}{
				"type":             "stage_update",
				"stage":            sess.Stage,
				"opinions_count":   p.Opinions,
				"reviews_count":    p.Reviews,
				"has_final_answer": p.HasFinalAnswer,
			}); err != nil {
				return
			}
			lastStage = sess.Stage
		}
	}

	final := map[string]interface{}{"type": "complete", "session": newSessionResponse(sess)}
	if sess.Stage == core.StageError {
		final["type"] = "error"
		final["message"] = sess.Error
	}
	_ = stream.send(final)
	stream.close()
}

// waitForSession polls the store until the session exists, the wait expires
// or the client leaves.
func (s *Server) waitForSession(r *http.Request, id core.SessionID, gone <-chan struct{}) *core.Session {
	deadline := time.NewTimer(s.sessionWait)
	defer deadline.Stop()
	tick := time.NewTicker(s.pollEvery)
	defer tick.Stop()

	for {
		if sess, err := s.store.Get(r.Context(), id); err == nil {
			return sess
		}
		select {
		case <-gone:
			return nil
		case <-r.Context().Done():
			return nil
		case <-deadline.C:
			return nil
		case <-tick.C:
		}
	}
}

// readUntilClosed drains client frames so control messages are processed,
// and closes gone when the connection ends.
func readUntilClosed(conn *websocket.Conn, gone chan<- struct{}) {
	defer close(gone)
	conn.SetReadLimit(wsReadLimit)
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

// wsStream wraps the write side of a connection. Only the handler goroutine writes.
type wsStream struct {
	conn *websocket.Conn
}

func (w *wsStream) send(v interface{}) error {
	_ = w.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	return w.conn.WriteJSON(v)
}

func (w *wsStream) ping() error {
	_ = w.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	return w.conn.WriteMessage(websocket.PingMessage, nil)
}

func (w *wsStream) close() {
	_ = w.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	_ = w.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}
