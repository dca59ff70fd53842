package ai

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"colleague-chat/internal/domain"
	"colleague-chat/internal/domain/ports/adapter"
)

var _ adapter.AssistantProvider = (*NoopProvider)(nil)

// NoopProvider implements adapter.AssistantProvider for local/dev runs without an
// API key. It echoes the last user turn back as a streamed answer.
type NoopProvider struct {
	log   *zerolog.Logger
	delay time.Duration

	mu      sync.Mutex
	threads map[string][]string
	runs    map[string]adapter.Run
}

func NewNoopProvider(log *zerolog.Logger) *NoopProvider {
	return &NoopProvider{
		log:     log,
		delay:   100 * time.Millisecond,
		threads: make(map[string][]string),
		runs:    make(map[string]adapter.Run),
	}
}

func (p *NoopProvider) wait(ctx context.Context) error {
	select {
	case <-time.After(p.delay):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *NoopProvider) CreateThread(ctx context.Context, documentSetID string) (string, error) {
	if err := p.wait(ctx); err != nil {
		return "", err
	}
	id := "thread_" + strings.ToLower(ulid.Make().String())
	p.mu.Lock()
	p.threads[id] = nil
	p.mu.Unlock()
	p.log.Debug().Str("thread_id", id).Str("document_set", documentSetID).Msg("[noop-ai] thread created")
	return id, nil
}

func (p *NoopProvider) AppendUserTurn(ctx context.Context, threadID, text string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.threads[threadID]; !ok {
		return fmt.Errorf("thread %s: %w", threadID, domain.ErrNotFound)
	}
	p.threads[threadID] = append(p.threads[threadID], text)
	return nil
}

func (p *NoopProvider) answer(threadID string) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	turns := p.threads[threadID]
	if len(turns) == 0 {
		return ""
	}
	return "Dit is een testantwoord op: " + turns[len(turns)-1]
}

func (p *NoopProvider) StreamRun(ctx context.Context, spec adapter.RunSpec) (adapter.RunStream, error) {
	if err := p.wait(ctx); err != nil {
		return nil, err
	}
	runID := "run_" + strings.ToLower(ulid.Make().String())
	events := []adapter.RunEvent{{Kind: adapter.RunCreated, ThreadID: spec.ThreadID, RunID: runID}}
	for _, w := range strings.SplitAfter(p.answer(spec.ThreadID), " ") {
		events = append(events, adapter.RunEvent{Kind: adapter.RunTextDelta, Text: w})
	}
	events = append(events, adapter.RunEvent{Kind: adapter.RunCompleted, ThreadID: spec.ThreadID, RunID: runID})
	return &sliceStream{ctx: ctx, events: events, idx: -1}, nil
}

func (p *NoopProvider) CreateRun(ctx context.Context, spec adapter.RunSpec) (adapter.Run, error) {
	run := adapter.Run{ID: "run_" + strings.ToLower(ulid.Make().String()), ThreadID: spec.ThreadID, Status: adapter.RunStatusCompleted}
	p.mu.Lock()
	p.runs[run.ID] = run
	p.mu.Unlock()
	return run, nil
}

func (p *NoopProvider) GetRun(ctx context.Context, threadID, runID string) (adapter.Run, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	run, ok := p.runs[runID]
	if !ok || run.ThreadID != threadID {
		return adapter.Run{}, fmt.Errorf("run %s: %w", runID, domain.ErrNotFound)
	}
	return run, nil
}

func (p *NoopProvider) FetchLatestMessage(ctx context.Context, threadID string) (adapter.ThreadMessage, error) {
	return adapter.ThreadMessage{Role: "assistant", Content: p.answer(threadID)}, nil
}

func (p *NoopProvider) FetchFileMetadata(ctx context.Context, fileID string) (adapter.FileMetadata, error) {
	return adapter.FileMetadata{ID: fileID, Filename: fileID + ".pdf"}, nil
}

// sliceStream replays a fixed list of events.
type sliceStream struct {
	ctx    context.Context
	events []adapter.RunEvent
	idx    int
}

func (s *sliceStream) Next() bool {
	if s.ctx.Err() != nil || s.idx+1 >= len(s.events) {
		return false
	}
	s.idx++
	return true
}

func (s *sliceStream) Event() adapter.RunEvent { return s.events[s.idx] }
func (s *sliceStream) Err() error              { return s.ctx.Err() }
func (s *sliceStream) Close() error            { return nil }
