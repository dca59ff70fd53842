package ai

import (
	"context"

	"colleague-chat/internal/domain/ports/adapter"
)

// Compile-time check
var _ adapter.AssistantProvider = (*limitedProvider)(nil)

// limitedProvider bounds the number of concurrent provider calls process-wide.
// A streamed run holds its slot until the stream is closed.
type limitedProvider struct {
	inner adapter.AssistantProvider
	sem   chan struct{}
}

func NewLimitedProvider(inner adapter.AssistantProvider, maxConcurrent int) adapter.AssistantProvider {
	if maxConcurrent <= 0 {
		return inner
	}
	return &limitedProvider{
		inner: inner,
		sem:   make(chan struct{}, maxConcurrent),
	}
}

func (l *limitedProvider) acquire(ctx context.Context) error {
	select {
	case l.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l *limitedProvider) release() { <-l.sem }

func (l *limitedProvider) CreateThread(ctx context.Context, documentSetID string) (string, error) {
	if err := l.acquire(ctx); err != nil {
		return "", err
	}
	defer l.release()
	return l.inner.CreateThread(ctx, documentSetID)
}

func (l *limitedProvider) AppendUserTurn(ctx context.Context, threadID, text string) error {
	if err := l.acquire(ctx); err != nil {
		return err
	}
	defer l.release()
	return l.inner.AppendUserTurn(ctx, threadID, text)
}

func (l *limitedProvider) StreamRun(ctx context.Context, spec adapter.RunSpec) (adapter.RunStream, error) {
	if err := l.acquire(ctx); err != nil {
		return nil, err
	}
	st, err := l.inner.StreamRun(ctx, spec)
	if err != nil {
		l.release()
		return nil, err
	}
	return &limitedStream{RunStream: st, release: l.release}, nil
}

func (l *limitedProvider) CreateRun(ctx context.Context, spec adapter.RunSpec) (adapter.Run, error) {
	if err := l.acquire(ctx); err != nil {
		return adapter.Run{}, err
	}
	defer l.release()
	return l.inner.CreateRun(ctx, spec)
}

func (l *limitedProvider) GetRun(ctx context.Context, threadID, runID string) (adapter.Run, error) {
	if err := l.acquire(ctx); err != nil {
		return adapter.Run{}, err
	}
	defer l.release()
	return l.inner.GetRun(ctx, threadID, runID)
}

func (l *limitedProvider) FetchLatestMessage(ctx context.Context, threadID string) (adapter.ThreadMessage, error) {
	if err := l.acquire(ctx); err != nil {
		return adapter.ThreadMessage{}, err
	}
	defer l.release()
	return l.inner.FetchLatestMessage(ctx, threadID)
}

func (l *limitedProvider) FetchFileMetadata(ctx context.Context, fileID string) (adapter.FileMetadata, error) {
	if err := l.acquire(ctx); err != nil {
		return adapter.FileMetadata{}, err
	}
	defer l.release()
	return l.inner.FetchFileMetadata(ctx, fileID)
}

type limitedStream struct {
	adapter.RunStream
	release func()
	closed  bool
}

func (s *limitedStream) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	defer s.release()
	return s.RunStream.Close()
}
