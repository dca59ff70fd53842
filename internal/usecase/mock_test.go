//go:build !integration

package usecase_test

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"colleague-chat/internal/domain"
	"colleague-chat/internal/domain/model"
	"colleague-chat/internal/domain/ports/adapter"
	"colleague-chat/internal/domain/ports/repository"
	"colleague-chat/internal/infra/i18n"
	"colleague-chat/internal/usecase"
)

// -----------------------------
// Utilities
// -----------------------------

func nopLogger() *zerolog.Logger {
	l := zerolog.New(io.Discard)
	return &l
}

func authCtx() context.Context {
	return domain.WithPrincipal(context.Background(), domain.Principal{Subject: "demo"})
}

func newTranslator(t *testing.T) *i18n.Translator {
	t.Helper()
	tr, err := i18n.NewTranslator(i18n.LocalesFS, "nl")
	if err != nil {
		t.Fatalf("translator: %v", err)
	}
	return tr
}

func testDirectory() *model.AssistantDirectory {
	return model.NewAssistantDirectory(
		model.AssistantProfile{ColleagueID: "claire", ProviderAssistantID: "asst_claire", DocumentSetID: "vs_claire", DisplayName: "Claire"},
		model.AssistantProfile{ColleagueID: "henk", ProviderAssistantID: "asst_henk", DocumentSetID: "vs_henk", DisplayName: "Henk"},
	)
}

// recorder collects emitted events.
type recorder struct {
	mu     sync.Mutex
	events []model.StreamEvent
}

func (r *recorder) emit(ev model.StreamEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) types() []model.StreamEventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]model.StreamEventType, len(r.events))
	for i, ev := range r.events {
		out[i] = ev.Type
	}
	return out
}

func (r *recorder) tokens() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := ""
	for _, ev := range r.events {
		if ev.Type == model.EventToken {
			s += ev.Text
		}
	}
	return s
}

func (r *recorder) last(typ model.StreamEventType) (model.StreamEvent, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.events) - 1; i >= 0; i-- {
		if r.events[i].Type == typ {
			return r.events[i], true
		}
	}
	return model.StreamEvent{}, false
}

func (r *recorder) count(typ model.StreamEventType) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, ev := range r.events {
		if ev.Type == typ {
			n++
		}
	}
	return n
}

// =============================
// Provider
// =============================

type sliceStream struct {
	events []adapter.RunEvent
	i      int
	err    error
	closed bool
}

func newStream(events ...adapter.RunEvent) *sliceStream { return &sliceStream{events: events, i: -1} }

func (s *sliceStream) Next() bool {
	if s.i+1 >= len(s.events) {
		return false
	}
	s.i++
	return true
}
func (s *sliceStream) Event() adapter.RunEvent { return s.events[s.i] }
func (s *sliceStream) Err() error              { return s.err }
func (s *sliceStream) Close() error {
	s.closed = true
	return nil
}

type MockProvider struct {
	mu    sync.Mutex
	calls map[string]int

	CreateThreadFunc       func(ctx context.Context, documentSetID string) (string, error)
	AppendUserTurnFunc     func(ctx context.Context, threadID, text string) error
	StreamRunFunc          func(ctx context.Context, spec adapter.RunSpec) (adapter.RunStream, error)
	CreateRunFunc          func(ctx context.Context, spec adapter.RunSpec) (adapter.Run, error)
	GetRunFunc             func(ctx context.Context, threadID, runID string) (adapter.Run, error)
	FetchLatestMessageFunc func(ctx context.Context, threadID string) (adapter.ThreadMessage, error)
	FetchFileMetadataFunc  func(ctx context.Context, fileID string) (adapter.FileMetadata, error)
}

var _ adapter.AssistantProvider = (*MockProvider)(nil)

func (m *MockProvider) hit(op string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.calls == nil {
		m.calls = map[string]int{}
	}
	m.calls[op]++
}

func (m *MockProvider) Calls(op string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[op]
}

func (m *MockProvider) Total() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.calls {
		n += c
	}
	return n
}

func (m *MockProvider) CreateThread(ctx context.Context, documentSetID string) (string, error) {
	m.hit("CreateThread")
	if m.CreateThreadFunc != nil {
		return m.CreateThreadFunc(ctx, documentSetID)
	}
	return "thread_new", nil
}

func (m *MockProvider) AppendUserTurn(ctx context.Context, threadID, text string) error {
	m.hit("AppendUserTurn")
	if m.AppendUserTurnFunc != nil {
		return m.AppendUserTurnFunc(ctx, threadID, text)
	}
	return nil
}

func (m *MockProvider) StreamRun(ctx context.Context, spec adapter.RunSpec) (adapter.RunStream, error) {
	m.hit("StreamRun")
	if m.StreamRunFunc != nil {
		return m.StreamRunFunc(ctx, spec)
	}
	return newStream(adapter.RunEvent{Kind: adapter.RunCompleted}), nil
}

func (m *MockProvider) CreateRun(ctx context.Context, spec adapter.RunSpec) (adapter.Run, error) {
	m.hit("CreateRun")
	if m.CreateRunFunc != nil {
		return m.CreateRunFunc(ctx, spec)
	}
	return adapter.Run{ID: "run_1", ThreadID: spec.ThreadID, Status: adapter.RunStatusQueued}, nil
}

func (m *MockProvider) GetRun(ctx context.Context, threadID, runID string) (adapter.Run, error) {
	m.hit("GetRun")
	if m.GetRunFunc != nil {
		return m.GetRunFunc(ctx, threadID, runID)
	}
	return adapter.Run{ID: runID, ThreadID: threadID, Status: adapter.RunStatusCompleted}, nil
}

func (m *MockProvider) FetchLatestMessage(ctx context.Context, threadID string) (adapter.ThreadMessage, error) {
	m.hit("FetchLatestMessage")
	if m.FetchLatestMessageFunc != nil {
		return m.FetchLatestMessageFunc(ctx, threadID)
	}
	return adapter.ThreadMessage{}, domain.ErrNotFound
}

func (m *MockProvider) FetchFileMetadata(ctx context.Context, fileID string) (adapter.FileMetadata, error) {
	m.hit("FetchFileMetadata")
	if m.FetchFileMetadataFunc != nil {
		return m.FetchFileMetadataFunc(ctx, fileID)
	}
	return adapter.FileMetadata{ID: fileID}, domain.ErrNotFound
}

// =============================
// Repositories
// =============================

type memCache struct {
	mu      sync.Mutex
	byHash  map[string]*model.CachedResponse
	stores  int
	touches int

	// LookupErr and StoreErr simulate a failing backend.
	LookupErr error
	StoreErr  error
}

var _ repository.ResponseCacheRepository = (*memCache)(nil)

func newMemCache() *memCache { return &memCache{byHash: map[string]*model.CachedResponse{}} }

func (m *memCache) Lookup(ctx context.Context, tx repository.Tx, hash string) (*model.CachedResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.LookupErr != nil {
		return nil, m.LookupErr
	}
	c, ok := m.byHash[hash]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (m *memCache) Store(ctx context.Context, tx repository.Tx, resp *model.CachedResponse) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stores++
	if m.StoreErr != nil {
		return m.StoreErr
	}
	if _, ok := m.byHash[resp.QuestionHash]; ok {
		return nil
	}
	cp := *resp
	if cp.ID == "" {
		cp.ID = "cache_" + cp.QuestionHash[:8]
	}
	m.byHash[resp.QuestionHash] = &cp
	return nil
}

func (m *memCache) Touch(ctx context.Context, tx repository.Tx, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.byHash {
		if c.ID == id {
			c.AccessCount++
			m.touches++
			return nil
		}
	}
	return domain.ErrNotFound
}

func (m *memCache) Stores() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stores
}

func (m *memCache) Touches() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.touches
}

// memBooks keeps JSON copies so callers never share memory with the store.
type memBooks struct {
	mu    sync.Mutex
	docs  map[string][]byte
	saves int
}

var _ repository.SessionBookRepository = (*memBooks)(nil)

func newMemBooks() *memBooks { return &memBooks{docs: map[string][]byte{}} }

func (m *memBooks) Load(ctx context.Context, tx repository.Tx, owner string) (*model.SessionBook, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	raw, ok := m.docs[owner]
	if !ok {
		return nil, domain.ErrNotFound
	}
	var b model.SessionBook
	if err := json.Unmarshal(raw, &b); err != nil {
		return nil, err
	}
	b.Owner = owner
	return &b, nil
}

func (m *memBooks) Save(ctx context.Context, tx repository.Tx, book *model.SessionBook) error {
	raw, err := json.Marshal(book)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.docs[book.Owner] = raw
	m.saves++
	return nil
}

func (m *memBooks) Saves() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves
}

func (m *memBooks) seed(t *testing.T, owner string, sessions ...*model.ChatSession) {
	t.Helper()
	b := model.NewSessionBook(owner)
	for _, s := range sessions {
		b.Add(s)
	}
	if err := m.Save(context.Background(), nil, b); err != nil {
		t.Fatalf("seed: %v", err)
	}
	m.mu.Lock()
	m.saves = 0
	m.mu.Unlock()
}

func (m *memBooks) session(t *testing.T, owner, id string) *model.ChatSession {
	t.Helper()
	b, err := m.Load(context.Background(), nil, owner)
	if err != nil {
		t.Fatalf("load book: %v", err)
	}
	s, err := b.Find(id)
	if err != nil {
		t.Fatalf("find session %s: %v", id, err)
	}
	return s
}

type memFunnels struct {
	mu     sync.Mutex
	states map[string]model.FunnelState
}

var _ repository.FunnelStateRepository = (*memFunnels)(nil)

func newMemFunnels() *memFunnels { return &memFunnels{states: map[string]model.FunnelState{}} }

func (m *memFunnels) Get(ctx context.Context, owner, sessionID string) (*model.FunnelState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.states[owner+"/"+sessionID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &st, nil
}

func (m *memFunnels) Set(ctx context.Context, owner, sessionID string, state *model.FunnelState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.states[owner+"/"+sessionID] = *state
	return nil
}

func (m *memFunnels) Clear(ctx context.Context, owner, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.states, owner+"/"+sessionID)
	return nil
}

// fakeTxManager runs fn without a real transaction.
type fakeTxManager struct{}

func (fakeTxManager) WithTx(ctx context.Context, _ pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error {
	return fn(ctx, nil)
}

// =============================
// Redis guards
// =============================

type MockLocker struct {
	TryLockFunc func(ctx context.Context, key string, ttl time.Duration) (string, error)
	mu          sync.Mutex
	unlocked    []string
}

func (m *MockLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (string, error) {
	if m.TryLockFunc != nil {
		return m.TryLockFunc(ctx, key, ttl)
	}
	return "tok", nil
}

func (m *MockLocker) Unlock(ctx context.Context, key, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.unlocked = append(m.unlocked, key)
	return nil
}

type MockLimiter struct {
	AllowFunc func(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

func (m *MockLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	if m.AllowFunc != nil {
		return m.AllowFunc(ctx, key, limit, window)
	}
	return true, nil
}

// =============================
// Relay
// =============================

type MockRelay struct {
	mu       sync.Mutex
	requests []usecase.TurnRequest

	StreamFunc    func(ctx context.Context, req usecase.TurnRequest, emit usecase.Emit) (*usecase.TurnResult, error)
	StartRunFunc  func(ctx context.Context, req usecase.TurnRequest) (*usecase.StartedRun, error)
	RunStatusFunc func(ctx context.Context, threadID, runID string) (*usecase.RunOutcome, error)
}

var _ usecase.RelayUseCase = (*MockRelay)(nil)

func (m *MockRelay) Stream(ctx context.Context, req usecase.TurnRequest, emit usecase.Emit) (*usecase.TurnResult, error) {
	m.mu.Lock()
	m.requests = append(m.requests, req)
	m.mu.Unlock()
	if m.StreamFunc != nil {
		return m.StreamFunc(ctx, req, emit)
	}
	emit(model.StreamEvent{Type: model.EventToken, Text: "ok"})
	emit(model.StreamEvent{Type: model.EventDone, Content: "ok"})
	return &usecase.TurnResult{Content: "ok"}, nil
}

func (m *MockRelay) StartRun(ctx context.Context, req usecase.TurnRequest) (*usecase.StartedRun, error) {
	if m.StartRunFunc != nil {
		return m.StartRunFunc(ctx, req)
	}
	return &usecase.StartedRun{ThreadID: "thread_1", RunID: "run_1"}, nil
}

func (m *MockRelay) RunStatus(ctx context.Context, threadID, runID string) (*usecase.RunOutcome, error) {
	if m.RunStatusFunc != nil {
		return m.RunStatusFunc(ctx, threadID, runID)
	}
	return &usecase.RunOutcome{Status: adapter.RunStatusCompleted, Content: "ok"}, nil
}

func (m *MockRelay) Requests() []usecase.TurnRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]usecase.TurnRequest, len(m.requests))
	copy(out, m.requests)
	return out
}
