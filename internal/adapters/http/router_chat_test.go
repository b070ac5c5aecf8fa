package httpadapter

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/mkarpenko/grounded-chat/internal/core/domain"
	"github.com/mkarpenko/grounded-chat/internal/core/ports"
)

type fakePipeline struct {
	result *domain.PipelineResult
	err    error

	history      []domain.Turn
	claims       domain.AuthClaims
	shouldStream bool
}

func (f *fakePipeline) Run(
	_ context.Context,
	history []domain.Turn,
	_ domain.Overrides,
	claims domain.AuthClaims,
	shouldStream bool,
) (*domain.PipelineResult, error) {
	f.history = history
	f.claims = claims
	f.shouldStream = shouldStream
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

type fakeSessions struct {
	ensured   []string
	exchanges [][3]string
}

func (f *fakeSessions) EnsureSession(_ context.Context, sessionID string) error {
	f.ensured = append(f.ensured, sessionID)
	return nil
}

func (f *fakeSessions) AppendExchange(_ context.Context, sessionID, question, answer string) error {
	f.exchanges = append(f.exchanges, [3]string{sessionID, question, answer})
	return nil
}

func (f *fakeSessions) ListExchanges(context.Context, string, int) ([]domain.Exchange, error) {
	return nil, nil
}

type fakeTraces struct {
	events []domain.TraceEvent
}

func (f *fakeTraces) PublishTrace(_ context.Context, event domain.TraceEvent) error {
	f.events = append(f.events, event)
	return nil
}

type scriptedStream struct {
	chunks []domain.StreamChunk
}

func (s *scriptedStream) Start(context.Context) (domain.StreamHandle, error) {
	return &scriptedHandle{chunks: s.chunks}, nil
}

type scriptedHandle struct {
	chunks []domain.StreamChunk
}

func (s *scriptedHandle) Recv() (domain.StreamChunk, error) {
	if len(s.chunks) == 0 {
		return domain.StreamChunk{}, io.EOF
	}
	c := s.chunks[0]
	s.chunks = s.chunks[1:]
	return c, nil
}

func (s *scriptedHandle) Close() error { return nil }

func answerResult(content string) *domain.PipelineResult {
	return &domain.PipelineResult{
		DataPoints: domain.DataPoints{Text: []string{"resume_jane.pdf: Jane has five years of Go."}},
		Thoughts: []domain.ThoughtStep{
			{Title: "query generation", Description: "messages"},
			{Title: "search using generated search query", Description: "jane resume"},
			{Title: "search results", Description: []map[string]any{}},
			{Title: "answer generation", Description: "messages"},
		},
		Answer: &domain.ChatAnswer{Content: content, PromptTokens: 100, CompletionTokens: 20},
	}
}

func newChatRouter(pipeline *fakePipeline, sessions *fakeSessions, traces *fakeTraces) http.Handler {
	var sessionStore ports.SessionStore
	if sessions != nil {
		sessionStore = sessions
	}
	var traceSink ports.TraceSink
	if traces != nil {
		traceSink = traces
	}
	return NewRouter(pipeline, sessionStore, traceSink, nil, nil, Config{ServiceName: "api"}).Handler()
}

func postChat(t *testing.T, handler http.Handler, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	return res
}

func TestChatReturnsAnswerWithContext(t *testing.T) {
	pipeline := &fakePipeline{result: answerResult("Jane has five years of experience [resume_jane.pdf].")}
	sessions := &fakeSessions{}
	traces := &fakeTraces{}
	handler := newChatRouter(pipeline, sessions, traces)

	res := postChat(t, handler, "/v1/chat", `{
		"messages": [{"role": "user", "content": "what experience does jane have?"}]
	}`)
	if res.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", res.Code, res.Body.String())
	}

	var resp chatResponse
	if err := json.Unmarshal(res.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Message.Role != domain.RoleAssistant {
		t.Fatalf("role = %q", resp.Message.Role)
	}
	if !strings.Contains(resp.Message.Content, "[resume_jane.pdf]") {
		t.Fatalf("content = %q", resp.Message.Content)
	}
	if len(resp.Context.DataPoints.Text) != 1 {
		t.Fatalf("data points = %v", resp.Context.DataPoints)
	}
	if len(resp.Context.Thoughts) != 4 {
		t.Fatalf("thoughts = %d, want 4", len(resp.Context.Thoughts))
	}
	if resp.SessionState == "" {
		t.Fatal("expected a generated session state")
	}

	if pipeline.shouldStream {
		t.Fatal("non-streaming endpoint requested a stream")
	}
	if len(sessions.exchanges) != 1 {
		t.Fatalf("exchanges = %v", sessions.exchanges)
	}
	if len(traces.events) != 1 || traces.events[0].Question != "what experience does jane have?" {
		t.Fatalf("trace events = %+v", traces.events)
	}
}

func TestChatExtractsFollowupQuestions(t *testing.T) {
	pipeline := &fakePipeline{result: answerResult(
		"Jane has five years [resume_jane.pdf]. <<What about Tom?>> <<Where did Jane work?>>",
	)}
	handler := newChatRouter(pipeline, nil, nil)

	res := postChat(t, handler, "/v1/chat", `{
		"messages": [{"role": "user", "content": "question"}],
		"context": {"overrides": {"suggest_followup_questions": true}}
	}`)
	if res.Code != http.StatusOK {
		t.Fatalf("status = %d", res.Code)
	}

	var resp chatResponse
	if err := json.Unmarshal(res.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if strings.Contains(resp.Message.Content, "<<") {
		t.Fatalf("content still carries markers: %q", resp.Message.Content)
	}
	want := []string{"What about Tom?", "Where did Jane work?"}
	if len(resp.Context.FollowupQuestions) != len(want) {
		t.Fatalf("followups = %v", resp.Context.FollowupQuestions)
	}
	for i := range want {
		if resp.Context.FollowupQuestions[i] != want[i] {
			t.Fatalf("followup %d = %q, want %q", i, resp.Context.FollowupQuestions[i], want[i])
		}
	}
}

func TestChatForwardsAuthClaims(t *testing.T) {
	pipeline := &fakePipeline{result: answerResult("answer")}
	handler := newChatRouter(pipeline, nil, nil)

	req := httptest.NewRequest(http.MethodPost, "/v1/chat",
		strings.NewReader(`{"messages": [{"role": "user", "content": "q"}]}`))
	req.Header.Set("X-Auth-Oid", "user-1")
	req.Header.Set("X-Auth-Groups", "g1, g2")
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusOK {
		t.Fatalf("status = %d", res.Code)
	}
	if pipeline.claims["oid"] != "user-1" {
		t.Fatalf("claims = %v", pipeline.claims)
	}
	groups, _ := pipeline.claims["groups"].([]string)
	if len(groups) != 2 || groups[0] != "g1" || groups[1] != "g2" {
		t.Fatalf("groups = %v", groups)
	}
}

func TestChatMapsErrorKinds(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"invalid input", domain.WrapError(domain.ErrInvalidInput, "run pipeline", io.ErrUnexpectedEOF), http.StatusBadRequest},
		{"temporary", domain.WrapError(domain.ErrTemporary, "retrieve", io.ErrUnexpectedEOF), http.StatusServiceUnavailable},
		{"collaborator", domain.WrapError(domain.ErrCollaborator, "generate", io.ErrUnexpectedEOF), http.StatusBadGateway},
		{"unknown model", domain.WrapError(domain.ErrUnknownModel, "token budget", io.ErrUnexpectedEOF), http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			handler := newChatRouter(&fakePipeline{err: tc.err}, nil, nil)
			res := postChat(t, handler, "/v1/chat", `{"messages": [{"role": "user", "content": "q"}]}`)
			if res.Code != tc.want {
				t.Fatalf("status = %d, want %d", res.Code, tc.want)
			}
		})
	}
}

func TestChatRejectsInvalidJSON(t *testing.T) {
	handler := newChatRouter(&fakePipeline{result: answerResult("a")}, nil, nil)

	res := postChat(t, handler, "/v1/chat", `{not json`)
	if res.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", res.Code)
	}
}

func TestChatRejectsWrongMethod(t *testing.T) {
	handler := newChatRouter(&fakePipeline{result: answerResult("a")}, nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/v1/chat", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d, want 405", res.Code)
	}
}

func TestChatKeepsSessionState(t *testing.T) {
	pipeline := &fakePipeline{result: answerResult("answer")}
	sessions := &fakeSessions{}
	handler := newChatRouter(pipeline, sessions, nil)

	res := postChat(t, handler, "/v1/chat", `{
		"messages": [{"role": "user", "content": "q"}],
		"session_state": "existing-session"
	}`)
	if res.Code != http.StatusOK {
		t.Fatalf("status = %d", res.Code)
	}

	var resp chatResponse
	if err := json.Unmarshal(res.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.SessionState != "existing-session" {
		t.Fatalf("session state = %q", resp.SessionState)
	}
	if len(sessions.ensured) != 1 || sessions.ensured[0] != "existing-session" {
		t.Fatalf("ensured sessions = %v", sessions.ensured)
	}
}

func TestHealthz(t *testing.T) {
	handler := newChatRouter(&fakePipeline{result: answerResult("a")}, nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusOK {
		t.Fatalf("status = %d", res.Code)
	}
	if res.Header().Get(requestIDHeader) == "" {
		t.Fatal("expected a request id header")
	}
}
