package usecase

import (
	"context"
	"fmt"
	"time"

	"colleague-chat/internal/domain"
	"colleague-chat/internal/domain/citation"
	"colleague-chat/internal/domain/model"
	"colleague-chat/internal/domain/ports/adapter"
	"colleague-chat/internal/infra/i18n"
	"colleague-chat/internal/infra/logging"
)

// RunPoller waits for a non-streaming run with a bounded number of status checks.
type RunPoller struct {
	provider    adapter.AssistantProvider
	interval    time.Duration
	maxAttempts int
	sleep       func(ctx context.Context, d time.Duration) error
}

func NewRunPoller(provider adapter.AssistantProvider, interval time.Duration, maxAttempts int) *RunPoller {
	if maxAttempts <= 0 {
		maxAttempts = 60
	}
	return &RunPoller{provider: provider, interval: interval, maxAttempts: maxAttempts, sleep: sleepCtx}
}

// Await returns the completed run, ErrRunFailed for provider-side failures and
// ErrRunTimeout once the attempts are used up.
func (p *RunPoller) Await(ctx context.Context, threadID, runID string) (adapter.Run, error) {
	for attempt := 1; attempt <= p.maxAttempts; attempt++ {
		run, err := p.provider.GetRun(ctx, threadID, runID)
		if err != nil {
			return adapter.Run{}, fmt.Errorf("get run: %w", err)
		}
		if err := runError(run); err != nil || run.Status == adapter.RunStatusCompleted {
			return run, err
		}
		if attempt == p.maxAttempts {
			break
		}
		if err := p.sleep(ctx, p.interval); err != nil {
			return run, err
		}
	}
	return adapter.Run{}, fmt.Errorf("run %s not finished after %d checks: %w", runID, p.maxAttempts, domain.ErrRunTimeout)
}

func runError(run adapter.Run) error {
	if !run.Status.Failed() {
		return nil
	}
	reason := run.LastError
	if reason == "" {
		reason = string(run.Status)
	}
	return fmt.Errorf("run %s %s: %s: %w", run.ID, run.Status, reason, domain.ErrRunFailed)
}

// StartedRun identifies a run created in poll mode.
type StartedRun struct {
	ThreadID string `json:"threadId"`
	RunID    string `json:"runId"`
}

// RunOutcome is a single status check of a poll-mode run.
type RunOutcome struct {
	Status     adapter.RunStatus `json:"status"`
	Content    string            `json:"content,omitempty"`
	Citations  []model.Citation  `json:"citations,omitempty"`
	Advisory   bool              `json:"advisory,omitempty"`
	Disclaimer string            `json:"disclaimer,omitempty"`
}

// StartRun validates the request, acquires a thread, appends the turn and creates a run
// without waiting for it.
func (r *relayUC) StartRun(ctx context.Context, req TurnRequest) (*StartedRun, error) {
	profile, err := r.validate(ctx, req)
	if err != nil {
		return nil, err
	}
	threadID, err := r.acquireThread(ctx, req.ThreadID, profile)
	if err != nil {
		return nil, err
	}
	if err := r.provider.AppendUserTurn(ctx, threadID, req.Text); err != nil {
		return nil, fmt.Errorf("append user turn: %w", err)
	}
	run, err := r.provider.CreateRun(ctx, r.runSpec(threadID, profile))
	if err != nil {
		return nil, fmt.Errorf("create run: %w", err)
	}
	logging.With(ctx, r.log).Info().Str("thread_id", threadID).Str("run_id", run.ID).Msg("run started")
	return &StartedRun{ThreadID: threadID, RunID: run.ID}, nil
}

// RunStatus checks a run once. A completed run carries the cleaned answer and its citations.
func (r *relayUC) RunStatus(ctx context.Context, threadID, runID string) (*RunOutcome, error) {
	if _, ok := domain.PrincipalFrom(ctx); !ok {
		return nil, domain.ErrUnauthorized
	}
	if threadID == "" || runID == "" {
		return nil, domain.ErrInvalidArgument
	}
	run, err := r.provider.GetRun(ctx, threadID, runID)
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}
	if err := runError(run); err != nil {
		return nil, err
	}
	if run.Status != adapter.RunStatusCompleted {
		return &RunOutcome{Status: run.Status}, nil
	}
	msg, err := r.provider.FetchLatestMessage(ctx, threadID)
	if err != nil {
		return nil, fmt.Errorf("fetch latest message: %w", err)
	}
	content := citation.CleanAnswer(msg.Content)
	cits, advisory, disclaimer := r.layer(content, r.resolveCitations(ctx, msg.Annotations))
	if content == "" {
		content = r.tr.T(i18n.KeyNoAnswer)
	}
	return &RunOutcome{
		Status:     run.Status,
		Content:    content,
		Citations:  cits,
		Advisory:   advisory,
		Disclaimer: disclaimer,
	}, nil
}
