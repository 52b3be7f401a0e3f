package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hugo-lorenzo-mato/llm-council/internal/adapters/ollama"
	"github.com/hugo-lorenzo-mato/llm-council/internal/adapters/state"
	"github.com/hugo-lorenzo-mato/llm-council/internal/config"
	"github.com/hugo-lorenzo-mato/llm-council/internal/core"
	"github.com/hugo-lorenzo-mato/llm-council/internal/diagnostics"
	"github.com/hugo-lorenzo-mato/llm-council/internal/events"
	"github.com/hugo-lorenzo-mato/llm-council/internal/service/council"
	"github.com/hugo-lorenzo-mato/llm-council/internal/testutil"
)

// fakeBackend implements Backend.
type fakeBackend struct {
	mu      sync.Mutex
	models  []ollama.ModelInfo
	pingErr error
	listErr error
}

func (f *fakeBackend) BaseURL() string { return "http://ollama.test:11434" }

func (f *fakeBackend) Ping(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pingErr
}

func (f *fakeBackend) ListModels(context.Context) ([]ollama.ModelInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.models, f.listErr
}

// councilReplies answers opinions with text and reviews with a fixed score.
func councilReplies(_ context.Context, req core.GenerateRequest) (*core.GenerateResult, error) {
	content := "answer from " + req.Model
	if req.Format == core.OutputFormatJSON {
		content = `{"score": 8, "reasoning": "solid"}`
	}
	return &core.GenerateResult{Model: req.Model, Content: content, PromptTokens: 10, CompletionTokens: 5, Done: true}, nil
}

type masterFixture struct {
	store   *state.MemoryStore
	gen     *testutil.MockGenerator
	bus     *events.EventBus
	backend *fakeBackend
	server  *Server
}

func newMaster(t *testing.T, gen *testutil.MockGenerator, opts ...ServerOption) *masterFixture {
	t.Helper()
	prompts, err := council.NewPromptRenderer()
	require.NoError(t, err)

	f := &masterFixture{
		store:   state.NewMemoryStore(),
		gen:     gen,
		bus:     events.New(64),
		backend: &fakeBackend{models: []ollama.ModelInfo{{Name: "llama3.2:1b", Size: 1300}, {Name: "gemma2:2b-instruct", Size: 1600}}},
	}
	t.Cleanup(f.bus.Close)

	orch := council.New(f.store, council.NewStages(gen, prompts), council.WithEventPublisher(f.bus))
	base := []ServerOption{
		WithRole(config.RoleMaster),
		WithCouncil(f.store, orch),
		WithEventBus(f.bus),
		WithBackend(f.backend),
		WithSystemCollector(&diagnostics.StaticCollector{Stats: diagnostics.SystemStats{CPUPercent: 12.5, CPUCores: 8, MemoryPercent: 40}}),
		WithVersion("1.2.3"),
	}
	f.server = NewServer(append(base, opts...)...)
	t.Cleanup(orch.Wait)
	return f
}

func doJSON(t *testing.T, h http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if s, ok := body.(string); ok {
			buf.WriteString(s)
		} else {
			require.NoError(t, json.NewEncoder(&buf).Encode(body))
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

var twoAgents = []core.AgentSpec{
	{Name: "Alpha", Model: "llama3.2:1b"},
	{Name: "Beta", Model: "qwen2.5:0.5b"},
}

func TestHealthEndpoint(t *testing.T) {
	f := newMaster(t, testutil.NewMockGenerator())

	rec := doJSON(t, f.server.Handler(), http.MethodGet, "/health/", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "llm-council", body["service"])
	assert.Equal(t, config.RoleMaster, body["role"])
	assert.Equal(t, "1.2.3", body["version"])
}

func TestOllamaHealth(t *testing.T) {
	f := newMaster(t, testutil.NewMockGenerator())

	rec := doJSON(t, f.server.Handler(), http.MethodGet, "/health/ollama", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, true, body["connected"])
	assert.Equal(t, "http://ollama.test:11434", body["ollama_url"])

	f.backend.mu.Lock()
	f.backend.pingErr = errors.New("connection refused")
	f.backend.mu.Unlock()

	rec = doJSON(t, f.server.Handler(), http.MethodGet, "/health/ollama", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body = decodeBody(t, rec)
	assert.Equal(t, false, body["connected"])
	assert.Equal(t, "error", body["status"])
	assert.Equal(t, "connection refused", body["error"])
}

func TestSystemStats(t *testing.T) {
	f := newMaster(t, testutil.NewMockGenerator())

	rec := doJSON(t, f.server.Handler(), http.MethodGet, "/health/system", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, 12.5, body["cpu_percent"])
	assert.Equal(t, 40.0, body["memory_percent"])
}

func TestSystemStats_CollectorError(t *testing.T) {
	f := newMaster(t, testutil.NewMockGenerator(),
		WithSystemCollector(&diagnostics.StaticCollector{Err: errors.New("no procfs")}))

	rec := doJSON(t, f.server.Handler(), http.MethodGet, "/health/system", nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestInstalledModels(t *testing.T) {
	f := newMaster(t, testutil.NewMockGenerator())

	rec := doJSON(t, f.server.Handler(), http.MethodGet, "/health/models", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, float64(2), body["count"])

	f.backend.mu.Lock()
	f.backend.listErr = errors.New("down")
	f.backend.mu.Unlock()
	rec = doJSON(t, f.server.Handler(), http.MethodGet, "/health/models", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestRecommendedModels_AnnotatesInstalled(t *testing.T) {
	f := newMaster(t, testutil.NewMockGenerator())

	rec := doJSON(t, f.server.Handler(), http.MethodGet, "/api/council/models", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Recommended []struct {
			Name      string `json:"name"`
			Installed bool   `json:"installed"`
		} `json:"recommended"`
		Installed []string `json:"installed"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.ElementsMatch(t, []string{"llama3.2:1b", "gemma2:2b-instruct"}, body.Installed)

	installed := map[string]bool{}
	for _, m := range body.Recommended {
		installed[m.Name] = m.Installed
	}
	assert.True(t, installed["llama3.2:1b"])
	assert.False(t, installed["tinyllama"])
}

func TestWorkerRole_HidesCouncilRoutes(t *testing.T) {
	srv := NewServer(WithGenerator(testutil.NewMockGenerator()))

	rec := doJSON(t, srv.Handler(), http.MethodPost, "/api/council/query", QueryRequest{Query: "q", SelectedAgents: twoAgents})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doJSON(t, srv.Handler(), http.MethodGet, "/health/", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, config.RoleWorker, decodeBody(t, rec)["role"])
}

func TestMasterRole_HidesGenerateRoutes(t *testing.T) {
	f := newMaster(t, testutil.NewMockGenerator())

	rec := doJSON(t, f.server.Handler(), http.MethodPost, "/api/generate", map[string]string{"model": "m", "prompt": "p"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestQuery_Sync(t *testing.T) {
	gen := testutil.NewMockGenerator().WithFunc(councilReplies)
	f := newMaster(t, gen)

	rec := doJSON(t, f.server.Handler(), http.MethodPost, "/api/council/query", QueryRequest{
		Query:          "What is Go good at?",
		SelectedAgents: twoAgents,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var sess struct {
		core.Session
		Progress core.Progress `json:"progress"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &sess))
	assert.Equal(t, core.StageComplete, sess.Stage)
	assert.Len(t, sess.Opinions, 2)
	assert.Len(t, sess.Reviews, 2)
	require.NotNil(t, sess.FinalAnswer)
	assert.Equal(t, council.DefaultChairmanModel, sess.FinalAnswer.SynthesizerModel)
	assert.True(t, sess.Progress.HasFinalAnswer)
	// 2 opinions, 2 pairwise reviews, 1 synthesis.
	assert.Equal(t, 5, gen.CallCount())
}

func TestQuery_SyncErrorSessionStillReturned(t *testing.T) {
	unreachable := core.NewGenerationError(core.ErrCatNetwork, "cannot connect", 0, errors.New("refused"))
	gen := testutil.NewMockGenerator().
		WithError("llama3.2:1b", unreachable).
		WithError("qwen2.5:0.5b", unreachable)
	f := newMaster(t, gen)

	rec := doJSON(t, f.server.Handler(), http.MethodPost, "/api/council/query", QueryRequest{
		Query:          "q",
		SelectedAgents: twoAgents,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decodeBody(t, rec)
	assert.Equal(t, string(core.StageError), body["stage"])
	assert.NotEmpty(t, body["error"])
}

func TestQuery_Async(t *testing.T) {
	gen := testutil.NewMockGenerator().WithFunc(councilReplies)
	f := newMaster(t, gen)

	rec := doJSON(t, f.server.Handler(), http.MethodPost, "/api/council/query?async=true", QueryRequest{
		Query:          "q",
		SelectedAgents: twoAgents,
		Protocol:       string(core.ProtocolBatched),
	})
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	id, _ := decodeBody(t, rec)["session_id"].(string)
	require.NotEmpty(t, id)

	require.Eventually(t, func() bool {
		s, err := f.store.Get(context.Background(), core.SessionID(id))
		return err == nil && s.Stage.IsTerminal()
	}, 5*time.Second, 10*time.Millisecond)

	rec = doJSON(t, f.server.Handler(), http.MethodGet, "/api/council/session/"+id, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, string(core.ProtocolBatched), body["protocol"])
	progress, ok := body["progress"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, string(core.StageComplete), progress["stage"])
	assert.Equal(t, true, progress["has_final_answer"])
}

func TestQuery_Validation(t *testing.T) {
	f := newMaster(t, testutil.NewMockGenerator())

	tests := []struct {
		name string
		body interface{}
		code string
	}{
		{"malformed json", `{"query":`, core.CodeInvalidRequest},
		{"empty query", QueryRequest{Query: "  ", SelectedAgents: twoAgents}, core.CodeEmptyQuery},
		{"no agents", QueryRequest{Query: "q"}, core.CodeNoAgents},
		{"empty model", QueryRequest{Query: "q", SelectedAgents: []core.AgentSpec{{Name: "x"}}}, core.CodeEmptyModel},
		{"bad protocol", QueryRequest{Query: "q", SelectedAgents: twoAgents, Protocol: "roundrobin"}, core.CodeInvalidRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doJSON(t, f.server.Handler(), http.MethodPost, "/api/council/query", tt.body)
			assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
			assert.Equal(t, tt.code, decodeBody(t, rec)["code"])
		})
	}
	assert.Equal(t, 0, f.store.Len())
}

func TestGetSession_NotFound(t *testing.T) {
	f := newMaster(t, testutil.NewMockGenerator())

	rec := doJSON(t, f.server.Handler(), http.MethodGet, "/api/council/session/nope", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, core.CodeSessionNotFound, decodeBody(t, rec)["code"])
}

func TestListSessions(t *testing.T) {
	f := newMaster(t, testutil.NewMockGenerator().WithFunc(councilReplies))

	rec := doJSON(t, f.server.Handler(), http.MethodGet, "/api/council/sessions", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(0), decodeBody(t, rec)["count"])

	for _, q := range []string{"first", "second"} {
		rec = doJSON(t, f.server.Handler(), http.MethodPost, "/api/council/query", QueryRequest{Query: q, SelectedAgents: twoAgents})
		require.Equal(t, http.StatusOK, rec.Code)
	}

	rec = doJSON(t, f.server.Handler(), http.MethodGet, "/api/council/sessions", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Sessions []SessionSummary `json:"sessions"`
		Count    int              `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 2, body.Count)
	for _, s := range body.Sessions {
		assert.Equal(t, core.StageComplete, s.Stage)
		assert.Equal(t, 2, s.Agents)
	}
}

func TestGenerate(t *testing.T) {
	gen := testutil.NewMockGenerator().WithResponse("llama3.2:1b", "hello")
	srv := NewServer(WithGenerator(gen))

	rec := doJSON(t, srv.Handler(), http.MethodPost, "/api/generate", map[string]string{
		"model":  "llama3.2:1b",
		"prompt": "say hello",
		"system": "be brief",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decodeBody(t, rec)
	assert.Equal(t, "hello", body["content"])
	assert.Equal(t, float64(5), body["eval_count"])

	calls := gen.CallsFor("llama3.2:1b")
	require.Len(t, calls, 1)
	assert.Equal(t, "be brief", calls[0].System)
}

func TestGenerate_Validation(t *testing.T) {
	srv := NewServer(WithGenerator(testutil.NewMockGenerator()))

	rec := doJSON(t, srv.Handler(), http.MethodPost, "/api/generate", map[string]string{"prompt": "p"})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, core.CodeEmptyModel, decodeBody(t, rec)["code"])

	rec = doJSON(t, srv.Handler(), http.MethodPost, "/api/generate", map[string]string{"model": "m"})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestGenerate_BackendFailure(t *testing.T) {
	gen := testutil.NewMockGenerator().
		WithError("m", core.NewGenerationError(core.ErrCatNetwork, "cannot connect", 0, errors.New("refused")))
	srv := NewServer(WithGenerator(gen))

	rec := doJSON(t, srv.Handler(), http.MethodPost, "/api/generate", map[string]string{"model": "m", "prompt": "p"})
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestGenerateBatch_PerItemErrors(t *testing.T) {
	gen := testutil.NewMockGenerator().
		WithResponse("good", "fine").
		WithError("bad", errors.New("model not found"))
	srv := NewServer(WithGenerator(gen))

	rec := doJSON(t, srv.Handler(), http.MethodPost, "/api/generate/batch", map[string]interface{}{
		"requests": []map[string]string{
			{"model": "good", "prompt": "a"},
			{"model": "bad", "prompt": "b"},
			{"model": "good", "prompt": "c"},
		},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var body struct {
		Results      []map[string]interface{} `json:"results"`
		SuccessCount int                      `json:"success_count"`
		ErrorCount   int                      `json:"error_count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Results, 3)
	assert.Equal(t, 2, body.SuccessCount)
	assert.Equal(t, 1, body.ErrorCount)
	assert.Equal(t, "fine", body.Results[0]["content"])
	assert.Equal(t, "bad", body.Results[1]["model"])
	assert.Equal(t, "model not found", body.Results[1]["error"])
	assert.Equal(t, "fine", body.Results[2]["content"])
}

func TestGenerateBatch_Bounds(t *testing.T) {
	srv := NewServer(WithGenerator(testutil.NewMockGenerator()))

	rec := doJSON(t, srv.Handler(), http.MethodPost, "/api/generate/batch", map[string]interface{}{"requests": []interface{}{}})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	six := make([]map[string]string, MaxBatchRequests+1)
	for i := range six {
		six[i] = map[string]string{"model": "m", "prompt": "p"}
	}
	rec = doJSON(t, srv.Handler(), http.MethodPost, "/api/generate/batch", map[string]interface{}{"requests": six})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = doJSON(t, srv.Handler(), http.MethodPost, "/api/generate/batch", map[string]interface{}{
		"requests": []map[string]string{{"model": "m", "prompt": "p"}, {"model": "", "prompt": "p"}},
	})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func dialSession(t *testing.T, ts *httptest.Server, id string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/council/ws/" + id
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readMessages(t *testing.T, conn *websocket.Conn) []map[string]interface{} {
	t.Helper()
	var out []map[string]interface{}
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	for {
		var msg map[string]interface{}
		if err := conn.ReadJSON(&msg); err != nil {
			return out
		}
		out = append(out, msg)
	}
}

func TestWebSocket_StreamsUntilComplete(t *testing.T) {
	gen := testutil.NewMockGenerator().WithFunc(councilReplies).WithDelay(20 * time.Millisecond)
	f := newMaster(t, gen)
	ts := httptest.NewServer(f.server.Handler())
	defer ts.Close()

	rec := doJSON(t, f.server.Handler(), http.MethodPost, "/api/council/query?async=true", QueryRequest{
		Query:          "q",
		SelectedAgents: twoAgents,
	})
	require.Equal(t, http.StatusAccepted, rec.Code)
	id := decodeBody(t, rec)["session_id"].(string)

	msgs := readMessages(t, dialSession(t, ts, id))
	require.GreaterOrEqual(t, len(msgs), 2)
	assert.Equal(t, "session_started", msgs[0]["type"])
	assert.Equal(t, id, msgs[0]["session_id"])

	last := msgs[len(msgs)-1]
	assert.Equal(t, "complete", last["type"])
	sess, ok := last["session"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, string(core.StageComplete), sess["stage"])

	for _, m := range msgs[1 : len(msgs)-1] {
		assert.Equal(t, "stage_update", m["type"])
	}
}

func TestWebSocket_UnknownSession(t *testing.T) {
	f := newMaster(t, testutil.NewMockGenerator(), WithSessionWait(50*time.Millisecond))
	ts := httptest.NewServer(f.server.Handler())
	defer ts.Close()

	msgs := readMessages(t, dialSession(t, ts, "missing"))
	require.Len(t, msgs, 1)
	assert.Equal(t, "error", msgs[0]["type"])
	assert.Equal(t, "Session not found", msgs[0]["message"])
}

func TestWebSocket_ErrorSession(t *testing.T) {
	unreachable := core.NewGenerationError(core.ErrCatNetwork, "cannot connect", 0, errors.New("refused"))
	gen := testutil.NewMockGenerator().
		WithError("llama3.2:1b", unreachable).
		WithError("qwen2.5:0.5b", unreachable)
	f := newMaster(t, gen)
	ts := httptest.NewServer(f.server.Handler())
	defer ts.Close()

	rec := doJSON(t, f.server.Handler(), http.MethodPost, "/api/council/query", QueryRequest{Query: "q", SelectedAgents: twoAgents})
	require.Equal(t, http.StatusOK, rec.Code)
	id := decodeBody(t, rec)["session_id"].(string)

	msgs := readMessages(t, dialSession(t, ts, id))
	require.Len(t, msgs, 2)
	assert.Equal(t, string(core.StageError), msgs[0]["stage"])
	assert.Equal(t, "error", msgs[1]["type"])
	assert.NotEmpty(t, msgs[1]["message"])
}
