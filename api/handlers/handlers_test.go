package handlers_test

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/council/api"
	"github.com/BaSui01/council/api/handlers"
	"github.com/BaSui01/council/council"
	"github.com/BaSui01/council/intent"
	"github.com/BaSui01/council/store"
)

// fakeDeliberator stands in for the orchestrator. When pause is set it
// emits a clarification request and blocks on the gate like a real run.
type fakeDeliberator struct {
	title  string
	err    error
	pause  bool
	events []council.Event

	gotAnswers []intent.Answer
	gotSkip    bool
}

func (f *fakeDeliberator) Execute(ctx context.Context, userQuery string, history []string, gate council.ClarificationGate, emit council.EventSink) (*council.Run, error) {
	send := func(e council.Event) {
		if emit != nil {
			emit(e)
		}
	}
	send(council.Event{Type: council.EventIntentStart})
	send(council.Event{Type: council.EventIntentComplete})

	if f.pause {
		prompt := council.ClarificationPrompt{
			Draft:     &intent.Draft{PrimaryIntent: userQuery},
			Questions: []intent.Question{{ID: "q1", Text: "Which angle?", Options: []string{"A", "B", intent.OptionOther}}},
		}
		send(council.Event{Type: council.EventClarificationRequest, Data: prompt})
		resp, err := gate.Resolve(ctx, prompt)
		if err != nil {
			return nil, err
		}
		f.gotAnswers = resp.Answers
		f.gotSkip = resp.Skip
	}

	if f.err != nil {
		send(council.Event{Type: council.EventError, Data: map[string]any{"message": f.err.Error()}})
		return nil, f.err
	}

	for _, e := range f.events {
		send(e)
	}
	send(council.Event{Type: council.EventSynthesisComplete, Data: map[string]any{"response": "final answer"}})
	send(council.Event{Type: council.EventComplete})
	return &council.Run{
		ID:            "run-1",
		UserQuery:     userQuery,
		FinalArtifact: "final answer",
		FinalModel:    "m/final",
	}, nil
}

func (f *fakeDeliberator) Title(ctx context.Context, userQuery string) string {
	if f.title == "" {
		return "New Conversation"
	}
	return f.title
}

func newRouter(t *testing.T, orch handlers.Deliberator) (http.Handler, store.Store) {
	t.Helper()
	s := store.NewMemoryStore()
	rt := &handlers.Router{
		Health:        handlers.NewHealthHandler(nil),
		Conversations: handlers.NewConversationHandler(s, nil),
		Deliberation:  handlers.NewDeliberationHandler(orch, s, handlers.NewGateRegistry(), nil, nil),
	}
	return rt.Build(), s
}

func doJSON(t *testing.T, handler http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) handlers.Response {
	t.Helper()
	var env handlers.Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	return env
}

func TestHealthEndpoints(t *testing.T) {
	handler, _ := newRouter(t, &fakeDeliberator{})

	rec := doJSON(t, handler, http.MethodGet, "/", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"service":"council"`)

	rec = doJSON(t, handler, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "uptime_seconds")
}

func TestConversationCRUD(t *testing.T) {
	handler, _ := newRouter(t, &fakeDeliberator{})

	rec := doJSON(t, handler, http.MethodPost, "/api/conversations", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	env := decodeEnvelope(t, rec)
	require.True(t, env.Success)
	data, err := json.Marshal(env.Data)
	require.NoError(t, err)
	var conv store.Conversation
	require.NoError(t, json.Unmarshal(data, &conv))
	require.NotEmpty(t, conv.ID)
	assert.Equal(t, "New Conversation", conv.Title)

	rec = doJSON(t, handler, http.MethodGet, "/api/conversations", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), conv.ID)

	rec = doJSON(t, handler, http.MethodGet, "/api/conversations/"+conv.ID, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, handler, http.MethodDelete, "/api/conversations/"+conv.ID, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, handler, http.MethodGet, "/api/conversations/"+conv.ID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	env = decodeEnvelope(t, rec)
	assert.False(t, env.Success)
	assert.Equal(t, "not_found", env.Error.Code)
}

func sseEventTypes(t *testing.T, body string) []string {
	t.Helper()
	var types []string
	scanner := bufio.NewScanner(strings.NewReader(body))
	scanner.Buffer(make([]byte, 1024*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var ev struct {
			Type string `json:"type"`
		}
		require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &ev))
		types = append(types, ev.Type)
	}
	return types
}

func TestStreamSkipClarification(t *testing.T) {
	orch := &fakeDeliberator{title: "Streamed Title"}
	handler, s := newRouter(t, orch)

	ctx := context.Background()
	_, err := s.Create(ctx, "c1")
	require.NoError(t, err)

	rec := doJSON(t, handler, http.MethodPost, "/api/conversations/c1/message/stream",
		api.SendMessageRequest{Content: "hello", SkipClarification: true})

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))

	types := sseEventTypes(t, rec.Body.String())
	require.NotEmpty(t, types)
	assert.Equal(t, "complete", types[len(types)-1])
	// first message: title precedes the completion event
	assert.Equal(t, "title_complete", types[len(types)-2])

	conv, err := s.Get(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, "Streamed Title", conv.Title)
	require.Len(t, conv.Messages, 2)
	assert.Equal(t, "user", conv.Messages[0].Role)
	assert.Equal(t, "final answer", conv.Messages[1].Content)
	assert.Equal(t, store.StatusComplete, conv.Messages[1].Status)
}

func TestStreamSecondMessageSkipsTitle(t *testing.T) {
	orch := &fakeDeliberator{title: "Ignored"}
	handler, s := newRouter(t, orch)

	ctx := context.Background()
	_, err := s.Create(ctx, "c1")
	require.NoError(t, err)
	require.NoError(t, s.AddUserMessage(ctx, "c1", "earlier message"))

	rec := doJSON(t, handler, http.MethodPost, "/api/conversations/c1/message/stream",
		api.SendMessageRequest{Content: "follow up", SkipClarification: true})

	types := sseEventTypes(t, rec.Body.String())
	assert.NotContains(t, types, "title_complete")

	conv, err := s.Get(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, "New Conversation", conv.Title)
}

func TestStreamUnknownConversation(t *testing.T) {
	handler, _ := newRouter(t, &fakeDeliberator{})

	rec := doJSON(t, handler, http.MethodPost, "/api/conversations/ghost/message/stream",
		api.SendMessageRequest{Content: "hello", SkipClarification: true})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStreamRequiresContent(t *testing.T) {
	handler, s := newRouter(t, &fakeDeliberator{})
	_, err := s.Create(context.Background(), "c1")
	require.NoError(t, err)

	rec := doJSON(t, handler, http.MethodPost, "/api/conversations/c1/message/stream",
		api.SendMessageRequest{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStreamRunFailureEmitsError(t *testing.T) {
	orch := &fakeDeliberator{err: errors.New("synthesis exhausted")}
	handler, s := newRouter(t, orch)
	_, err := s.Create(context.Background(), "c1")
	require.NoError(t, err)

	rec := doJSON(t, handler, http.MethodPost, "/api/conversations/c1/message/stream",
		api.SendMessageRequest{Content: "hello", SkipClarification: true})

	require.Equal(t, http.StatusOK, rec.Code)
	types := sseEventTypes(t, rec.Body.String())
	require.NotEmpty(t, types)
	assert.Equal(t, "error", types[len(types)-1])
	assert.NotContains(t, types, "complete")
}

func TestClarificationWithoutPendingRun(t *testing.T) {
	handler, s := newRouter(t, &fakeDeliberator{})
	_, err := s.Create(context.Background(), "c1")
	require.NoError(t, err)

	rec := doJSON(t, handler, http.MethodPost, "/api/conversations/c1/clarification",
		api.ClarificationRequest{Skip: true})

	assert.Equal(t, http.StatusConflict, rec.Code)
	env := decodeEnvelope(t, rec)
	assert.Equal(t, "no_pending_run", env.Error.Code)
}

func TestClarificationDuplicateSubmitIsRejected(t *testing.T) {
	s := store.NewMemoryStore()
	_, err := s.Create(context.Background(), "c1")
	require.NoError(t, err)

	gates := handlers.NewGateRegistry()
	rt := &handlers.Router{
		Health:        handlers.NewHealthHandler(nil),
		Conversations: handlers.NewConversationHandler(s, nil),
		Deliberation:  handlers.NewDeliberationHandler(&fakeDeliberator{}, s, gates, nil, nil),
	}
	handler := rt.Build()

	// a registered gate with a full response buffer stands in for a
	// paused run that received an answer but has not drained it yet
	gate := gates.Register("c1")
	require.NoError(t, gate.Submit(council.ClarificationResponse{Skip: true}))

	rec := doJSON(t, handler, http.MethodPost, "/api/conversations/c1/clarification",
		api.ClarificationRequest{Skip: true})
	assert.Equal(t, http.StatusConflict, rec.Code)
	env := decodeEnvelope(t, rec)
	assert.Equal(t, "no_pending_run", env.Error.Code)
}

func TestClarificationResumesPausedRun(t *testing.T) {
	orch := &fakeDeliberator{pause: true}
	handler, s := newRouter(t, orch)

	ctx := context.Background()
	_, err := s.Create(ctx, "c1")
	require.NoError(t, err)

	srv := httptest.NewServer(handler)
	defer srv.Close()

	streamDone := make(chan []string, 1)
	go func() {
		body, _ := json.Marshal(api.SendMessageRequest{Content: "hello"})
		resp, err := http.Post(srv.URL+"/api/conversations/c1/message/stream", "application/json", bytes.NewReader(body))
		if err != nil {
			streamDone <- nil
			return
		}
		defer resp.Body.Close()
		var buf bytes.Buffer
		_, _ = buf.ReadFrom(resp.Body)
		streamDone <- sseEventTypes(t, buf.String())
	}()

	// wait for the run to pause at the gate, then answer
	answers := []intent.Answer{{QuestionID: "q1", Selected: []string{"A"}}}
	payload, _ := json.Marshal(api.ClarificationRequest{Answers: answers})
	require.Eventually(t, func() bool {
		resp, err := http.Post(srv.URL+"/api/conversations/c1/clarification", "application/json", bytes.NewReader(payload))
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 20*time.Millisecond)

	select {
	case types := <-streamDone:
		require.NotEmpty(t, types)
		assert.Contains(t, types, "clarification_request")
		assert.Equal(t, "complete", types[len(types)-1])
	case <-time.After(5 * time.Second):
		t.Fatal("stream did not finish after clarification")
	}

	assert.Equal(t, answers, orch.gotAnswers)
	assert.False(t, orch.gotSkip)

	conv, err := s.Get(ctx, "c1")
	require.NoError(t, err)
	require.Len(t, conv.Messages, 2)
	final := conv.Messages[1]
	assert.Equal(t, store.StatusComplete, final.Status)
	// the clarification record survives finalization
	require.Len(t, final.Questions, 1)
	assert.Equal(t, "q1", final.Questions[0].ID)
	assert.Equal(t, answers, final.Answers)
}

func TestClarificationGateIsRemovedAfterRun(t *testing.T) {
	orch := &fakeDeliberator{title: "T"}
	handler, s := newRouter(t, orch)
	_, err := s.Create(context.Background(), "c1")
	require.NoError(t, err)

	// skip-clarification runs never register a gate
	doJSON(t, handler, http.MethodPost, "/api/conversations/c1/message/stream",
		api.SendMessageRequest{Content: "hello", SkipClarification: true})

	rec := doJSON(t, handler, http.MethodPost, "/api/conversations/c1/clarification",
		api.ClarificationRequest{Skip: true})
	assert.Equal(t, http.StatusConflict, rec.Code)
}
