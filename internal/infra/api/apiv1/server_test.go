//go:build !integration

package apiv1_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"colleague-chat/internal/config"
	"colleague-chat/internal/domain"
	"colleague-chat/internal/domain/model"
	"colleague-chat/internal/domain/ports/adapter"
	"colleague-chat/internal/infra/api"
	apiv1 "colleague-chat/internal/infra/api/apiv1"
	"colleague-chat/internal/infra/i18n"
	"colleague-chat/internal/infra/security"
	"colleague-chat/internal/usecase"
)

//
// ---------------- usecase fakes ----------------
//

type fakeChat struct {
	SendTurnFunc      func(ctx context.Context, owner, sessionID, text, colleagueID string, emit usecase.Emit) error
	ListSessionsFunc  func(ctx context.Context, owner, colleagueID string) (*usecase.SessionList, error)
	NewSessionFunc    func(ctx context.Context, owner, colleagueID string) (*model.ChatSession, error)
	DeleteSessionFunc func(ctx context.Context, owner, sessionID string) error
}

var _ usecase.ChatUseCase = (*fakeChat)(nil)

func (f *fakeChat) SendTurn(ctx context.Context, owner, sessionID, text, colleagueID string, emit usecase.Emit) error {
	if f.SendTurnFunc != nil {
		return f.SendTurnFunc(ctx, owner, sessionID, text, colleagueID, emit)
	}
	return nil
}
func (f *fakeChat) StartFunnel(ctx context.Context, owner, sessionID, initialText string) (*usecase.FunnelPrompt, error) {
	return &usecase.FunnelPrompt{Active: true, Question: "q1"}, nil
}
func (f *fakeChat) AdvanceFunnel(ctx context.Context, owner, sessionID, answer string) (*usecase.FunnelPrompt, error) {
	return nil, domain.ErrNotFound
}
func (f *fakeChat) ResolveMentions(text, exclude string) []string { return nil }
func (f *fakeChat) SuggestMention(text string, caret int, exclude string) (*usecase.MentionSuggestion, bool) {
	return nil, false
}
func (f *fakeChat) ApplyMention(text string, caret int, colleagueID string) (string, int, error) {
	return text + "@" + colleagueID + " ", len(text) + len(colleagueID) + 2, nil
}
func (f *fakeChat) ListSessions(ctx context.Context, owner, colleagueID string) (*usecase.SessionList, error) {
	if f.ListSessionsFunc != nil {
		return f.ListSessionsFunc(ctx, owner, colleagueID)
	}
	return &usecase.SessionList{Sessions: []*model.ChatSession{}}, nil
}
func (f *fakeChat) NewSession(ctx context.Context, owner, colleagueID string) (*model.ChatSession, error) {
	if f.NewSessionFunc != nil {
		return f.NewSessionFunc(ctx, owner, colleagueID)
	}
	return model.NewChatSession("s-new", colleagueID, time.Now()), nil
}
func (f *fakeChat) SelectSession(ctx context.Context, owner, sessionID string) (*model.ChatSession, error) {
	return model.NewChatSession(sessionID, "", time.Now()), nil
}
func (f *fakeChat) DeleteSession(ctx context.Context, owner, sessionID string) error {
	if f.DeleteSessionFunc != nil {
		return f.DeleteSessionFunc(ctx, owner, sessionID)
	}
	return nil
}
func (f *fakeChat) Colleagues() []model.AssistantProfile {
	return []model.AssistantProfile{{ColleagueID: "claire", DisplayName: "Claire"}}
}

type fakeRelay struct {
	RunStatusFunc func(ctx context.Context, threadID, runID string) (*usecase.RunOutcome, error)
}

func (f *fakeRelay) Stream(ctx context.Context, req usecase.TurnRequest, emit usecase.Emit) (*usecase.TurnResult, error) {
	return &usecase.TurnResult{}, nil
}
func (f *fakeRelay) StartRun(ctx context.Context, req usecase.TurnRequest) (*usecase.StartedRun, error) {
	return &usecase.StartedRun{ThreadID: "thread_1", RunID: "run_1"}, nil
}
func (f *fakeRelay) RunStatus(ctx context.Context, threadID, runID string) (*usecase.RunOutcome, error) {
	if f.RunStatusFunc != nil {
		return f.RunStatusFunc(ctx, threadID, runID)
	}
	return &usecase.RunOutcome{Status: adapter.RunStatusCompleted, Content: "klaar"}, nil
}

//
// ---------------- harness ----------------
//

type harness struct {
	chat  *fakeChat
	relay *fakeRelay
	auth  *security.AuthManager
	mux   *chi.Mux
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	log := zerolog.New(io.Discard)
	tr, err := i18n.NewTranslator(i18n.LocalesFS, "nl")
	if err != nil {
		t.Fatal(err)
	}
	h := &harness{
		chat:  &fakeChat{},
		relay: &fakeRelay{},
		auth:  security.NewAuthManager(config.AuthConfig{JWTSecret: "test-secret", Username: "Demo", Password: "pw", TTL: time.Hour}),
	}
	h.mux = api.NewRouter(&log)
	apiv1.RegisterAPIV1(h.mux, apiv1.NewServer(h.chat, h.relay, h.auth, tr, time.Second, &log))
	return h
}

func (h *harness) token(t *testing.T) string {
	t.Helper()
	tok, _, err := h.auth.Mint("demo")
	if err != nil {
		t.Fatal(err)
	}
	return tok
}

func (h *harness) do(t *testing.T, method, path, body string, auth bool) *httptest.ResponseRecorder {
	t.Helper()
	var rdr io.Reader
	if body != "" {
		rdr = bytes.NewBufferString(body)
	}
	req := httptest.NewRequest(method, path, rdr)
	req.Header.Set("Content-Type", "application/json")
	if auth {
		req.Header.Set("Authorization", "Bearer "+h.token(t))
	}
	rec := httptest.NewRecorder()
	h.mux.ServeHTTP(rec, req)
	return rec
}

func errorCategory(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Error struct {
			Category string `json:"category"`
			Message  string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode error body %q: %v", rec.Body.String(), err)
	}
	if body.Error.Message == "" {
		t.Fatal("error message must be localized, got empty")
	}
	return body.Error.Category
}

//
// ---------------- tests ----------------
//

func TestAuth(t *testing.T) {
	h := newHarness(t)

	t.Run("login normalizes credentials", func(t *testing.T) {
		rec := h.do(t, http.MethodPost, "/api/v1/auth/login", `{"username":"  DEMO ","password":" pw "}`, false)
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d body=%s", rec.Code, rec.Body.String())
		}
		var out struct {
			Token string `json:"token"`
		}
		_ = json.Unmarshal(rec.Body.Bytes(), &out)
		if out.Token == "" {
			t.Fatal("missing token")
		}
	})

	t.Run("bad credentials 401", func(t *testing.T) {
		rec := h.do(t, http.MethodPost, "/api/v1/auth/login", `{"username":"demo","password":"nope"}`, false)
		if rec.Code != http.StatusUnauthorized || errorCategory(t, rec) != "auth" {
			t.Fatalf("status = %d", rec.Code)
		}
	})

	t.Run("malformed body 400", func(t *testing.T) {
		rec := h.do(t, http.MethodPost, "/api/v1/auth/login", `{`, false)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("status = %d", rec.Code)
		}
	})

	t.Run("verify", func(t *testing.T) {
		if rec := h.do(t, http.MethodGet, "/api/v1/auth/verify", "", true); rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"valid":true`) {
			t.Fatalf("valid token: %d %s", rec.Code, rec.Body.String())
		}
		if rec := h.do(t, http.MethodGet, "/api/v1/auth/verify", "", false); rec.Code != http.StatusUnauthorized || !strings.Contains(rec.Body.String(), `"valid":false`) {
			t.Fatalf("no token: %d %s", rec.Code, rec.Body.String())
		}
	})

	t.Run("protected routes need a token", func(t *testing.T) {
		called := false
		h.chat.SendTurnFunc = func(ctx context.Context, owner, sessionID, text, colleagueID string, emit usecase.Emit) error {
			called = true
			return nil
		}
		rec := h.do(t, http.MethodPost, "/api/v1/chat/turns", `{"sessionId":"s1","text":"hoi"}`, false)
		if rec.Code != http.StatusUnauthorized || called {
			t.Fatalf("status = %d called=%v", rec.Code, called)
		}
	})
}

func TestSendTurn_Streams(t *testing.T) {
	h := newHarness(t)
	var gotOwner string
	h.chat.SendTurnFunc = func(ctx context.Context, owner, sessionID, text, colleagueID string, emit usecase.Emit) error {
		gotOwner = owner
		if p, ok := domain.PrincipalFrom(ctx); !ok || p.Subject != "demo" {
			t.Errorf("principal missing from context")
		}
		emit(model.StreamEvent{Type: model.EventThreadAssigned, ThreadID: "t1"})
		emit(model.StreamEvent{Type: model.EventToken, Text: "Hallo"})
		emit(model.StreamEvent{Type: model.EventDone, Content: "Hallo"})
		return nil
	}

	rec := h.do(t, http.MethodPost, "/api/v1/chat/turns", `{"sessionId":"s1","text":"hoi","colleagueId":"claire"}`, true)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("content type = %q", ct)
	}
	body := rec.Body.String()
	for _, want := range []string{"event: thread_assigned\n", "event: token\n", `"text":"Hallo"`, "event: done\n"} {
		if !strings.Contains(body, want) {
			t.Fatalf("body misses %q:\n%s", want, body)
		}
	}
	if strings.Index(body, "thread_assigned") > strings.Index(body, "event: token") {
		t.Fatal("thread_assigned must come first")
	}
	if gotOwner != "demo" {
		t.Fatalf("owner = %q", gotOwner)
	}
}

func TestSendTurn_ErrorMapping(t *testing.T) {
	cases := []struct {
		err    error
		status int
		cat    string
	}{
		{domain.ErrMessageTooLong, http.StatusBadRequest, "validation"},
		{domain.ErrEmptyMessage, http.StatusBadRequest, "validation"},
		{domain.ErrNotFound, http.StatusNotFound, "validation"},
		{domain.ErrTurnInProgress, http.StatusConflict, "validation"},
		{domain.ErrRateLimited, http.StatusTooManyRequests, "rate_limit"},
		{domain.ErrQuotaExceeded, http.StatusPaymentRequired, "quota"},
		{domain.ErrRunTimeout, http.StatusGatewayTimeout, "timeout"},
		{domain.ErrUpstream, http.StatusBadGateway, "upstream"},
	}
	for _, tc := range cases {
		t.Run(tc.err.Error(), func(t *testing.T) {
			h := newHarness(t)
			h.chat.SendTurnFunc = func(ctx context.Context, owner, sessionID, text, colleagueID string, emit usecase.Emit) error {
				return tc.err
			}
			rec := h.do(t, http.MethodPost, "/api/v1/chat/turns", `{"sessionId":"s1","text":"hoi"}`, true)
			if rec.Code != tc.status {
				t.Fatalf("status = %d, want %d", rec.Code, tc.status)
			}
			if got := errorCategory(t, rec); got != tc.cat {
				t.Fatalf("category = %q, want %q", got, tc.cat)
			}
		})
	}
}

func TestSendTurn_ErrorAfterStreamStart(t *testing.T) {
	h := newHarness(t)
	h.chat.SendTurnFunc = func(ctx context.Context, owner, sessionID, text, colleagueID string, emit usecase.Emit) error {
		emit(model.StreamEvent{Type: model.EventBubble, AssistantID: "claire"})
		return domain.ErrQuotaExceeded
	}
	rec := h.do(t, http.MethodPost, "/api/v1/chat/turns", `{"sessionId":"s1","text":"hoi"}`, true)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "event: error\n") || !strings.Contains(body, `"category":"quota"`) {
		t.Fatalf("body = %s", body)
	}
}

func TestSessionsRoutes(t *testing.T) {
	h := newHarness(t)

	rec := h.do(t, http.MethodPost, "/api/v1/sessions", `{"colleagueId":"claire"}`, true)
	if rec.Code != http.StatusCreated || !strings.Contains(rec.Body.String(), `"id":"s-new"`) {
		t.Fatalf("create: %d %s", rec.Code, rec.Body.String())
	}

	var gotColleague string
	h.chat.ListSessionsFunc = func(ctx context.Context, owner, colleagueID string) (*usecase.SessionList, error) {
		gotColleague = colleagueID
		return &usecase.SessionList{Sessions: []*model.ChatSession{}}, nil
	}
	if rec := h.do(t, http.MethodGet, "/api/v1/sessions?colleague=henk", "", true); rec.Code != http.StatusOK || gotColleague != "henk" {
		t.Fatalf("list: %d colleague=%q", rec.Code, gotColleague)
	}

	h.chat.DeleteSessionFunc = func(ctx context.Context, owner, sessionID string) error {
		if sessionID == "gone" {
			return domain.ErrNotFound
		}
		return nil
	}
	if rec := h.do(t, http.MethodDelete, "/api/v1/sessions/s1", "", true); rec.Code != http.StatusNoContent {
		t.Fatalf("delete: %d", rec.Code)
	}
	if rec := h.do(t, http.MethodDelete, "/api/v1/sessions/gone", "", true); rec.Code != http.StatusNotFound {
		t.Fatalf("delete missing: %d", rec.Code)
	}
	if rec := h.do(t, http.MethodPost, "/api/v1/sessions/s1/select", "", true); rec.Code != http.StatusOK {
		t.Fatalf("select: %d", rec.Code)
	}
}

func TestRunsRoutes(t *testing.T) {
	h := newHarness(t)

	rec := h.do(t, http.MethodPost, "/api/v1/chat/runs", `{"text":"vraag","colleagueId":"claire"}`, true)
	if rec.Code != http.StatusAccepted || !strings.Contains(rec.Body.String(), `"runId":"run_1"`) {
		t.Fatalf("start: %d %s", rec.Code, rec.Body.String())
	}

	var gotThread, gotRun string
	h.relay.RunStatusFunc = func(ctx context.Context, threadID, runID string) (*usecase.RunOutcome, error) {
		gotThread, gotRun = threadID, runID
		return nil, domain.ErrRunFailed
	}
	rec = h.do(t, http.MethodGet, "/api/v1/chat/runs/thread_1/run_1", "", true)
	if rec.Code != http.StatusBadGateway || gotThread != "thread_1" || gotRun != "run_1" {
		t.Fatalf("status: %d %s/%s", rec.Code, gotThread, gotRun)
	}
}

func TestFunnelAndMentionRoutes(t *testing.T) {
	h := newHarness(t)

	if rec := h.do(t, http.MethodPost, "/api/v1/funnel/start", `{"sessionId":"s1","text":"Hello"}`, true); rec.Code != http.StatusOK {
		t.Fatalf("start: %d", rec.Code)
	}
	if rec := h.do(t, http.MethodPost, "/api/v1/funnel/advance", `{"sessionId":"s1","text":"x"}`, true); rec.Code != http.StatusNotFound {
		t.Fatalf("advance without funnel: %d", rec.Code)
	}
	if rec := h.do(t, http.MethodPost, "/api/v1/mentions/resolve", `{"text":"hoi"}`, true); rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"ids":[]`) {
		t.Fatalf("resolve: %d %s", rec.Code, rec.Body.String())
	}
	if rec := h.do(t, http.MethodPost, "/api/v1/mentions/suggest", `{"text":"hoi","caret":3}`, true); !strings.Contains(rec.Body.String(), `"active":false`) {
		t.Fatalf("suggest: %s", rec.Body.String())
	}
	if rec := h.do(t, http.MethodPost, "/api/v1/mentions/apply", `{"text":"@","caret":1}`, true); rec.Code != http.StatusBadRequest {
		t.Fatalf("apply without colleague: %d", rec.Code)
	}
	if rec := h.do(t, http.MethodGet, "/api/v1/colleagues", "", true); rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "claire") {
		t.Fatalf("colleagues: %d %s", rec.Code, rec.Body.String())
	}
}

func TestOpsRoutes(t *testing.T) {
	h := newHarness(t)
	if rec := h.do(t, http.MethodGet, "/health", "", false); rec.Code != http.StatusOK || rec.Body.String() != "OK" {
		t.Fatalf("health: %d %q", rec.Code, rec.Body.String())
	}
	if rec := h.do(t, http.MethodGet, "/metrics", "", false); rec.Code != http.StatusOK {
		t.Fatalf("metrics: %d", rec.Code)
	}
	if rec := h.do(t, http.MethodGet, "/health", "", false); rec.Header().Get("X-Request-ID") == "" {
		t.Fatal("trace id header missing")
	}
}
