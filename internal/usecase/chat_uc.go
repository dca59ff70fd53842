// File: internal/usecase/chat_uc.go
package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/jackc/pgx/v4"
	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"colleague-chat/internal/domain"
	"colleague-chat/internal/domain/funnel"
	"colleague-chat/internal/domain/mention"
	"colleague-chat/internal/domain/model"
	"colleague-chat/internal/domain/ports/repository"
	"colleague-chat/internal/infra/i18n"
	"colleague-chat/internal/infra/logging"
	"colleague-chat/internal/infra/metrics"
	red "colleague-chat/internal/infra/redis"
)

// Compile-time check
var _ ChatUseCase = (*chatUC)(nil)

type ChatUseCase interface {
	SendTurn(ctx context.Context, owner, sessionID, text, colleagueID string, emit Emit) error

	StartFunnel(ctx context.Context, owner, sessionID, initialText string) (*FunnelPrompt, error)
	AdvanceFunnel(ctx context.Context, owner, sessionID, answer string) (*FunnelPrompt, error)

	ResolveMentions(text, exclude string) []string
	SuggestMention(text string, caret int, exclude string) (*MentionSuggestion, bool)
	ApplyMention(text string, caret int, colleagueID string) (string, int, error)

	ListSessions(ctx context.Context, owner, colleagueID string) (*SessionList, error)
	NewSession(ctx context.Context, owner, colleagueID string) (*model.ChatSession, error)
	SelectSession(ctx context.Context, owner, sessionID string) (*model.ChatSession, error)
	DeleteSession(ctx context.Context, owner, sessionID string) error
	Colleagues() []model.AssistantProfile
}

// TurnLimiter caps turns per key within a window.
type TurnLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

type ChatConfig struct {
	FunnelEnabled   bool
	FunnelQuestions []model.FunnelQuestion
	TurnsPerMinute  int
	LockTTL         time.Duration
}

// FunnelPrompt is the next intake question, or the compiled query once the funnel is done.
type FunnelPrompt struct {
	Active         bool   `json:"active"`
	Step           int    `json:"step"`
	Question       string `json:"question,omitempty"`
	Placeholder    string `json:"placeholder,omitempty"`
	CompiledPrompt string `json:"compiledPrompt,omitempty"`
}

type MentionSuggestion struct {
	Partial    mention.Partial `json:"partial"`
	Candidates []string        `json:"candidates"`
}

type SessionList struct {
	Sessions   []*model.ChatSession `json:"sessions"`
	LastActive string               `json:"lastActive,omitempty"`
}

type chatUC struct {
	books     repository.SessionBookRepository
	funnels   repository.FunnelStateRepository
	tm        repository.TransactionManager
	relay     RelayUseCase
	directory *model.AssistantDirectory
	locker    red.Locker
	limiter   TurnLimiter
	tr        Localizer
	cfg       ChatConfig
	log       *zerolog.Logger
	now       func() time.Time
	newID     func() string
}

// NewChatUseCase wires the chat orchestrator. locker and limiter may be nil.
func NewChatUseCase(
	books repository.SessionBookRepository,
	funnels repository.FunnelStateRepository,
	tm repository.TransactionManager,
	relay RelayUseCase,
	directory *model.AssistantDirectory,
	locker red.Locker,
	limiter TurnLimiter,
	tr Localizer,
	cfg ChatConfig,
	logger *zerolog.Logger,
) *chatUC {
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 5 * time.Minute
	}
	return &chatUC{
		books:     books,
		funnels:   funnels,
		tm:        tm,
		relay:     relay,
		directory: directory,
		locker:    locker,
		limiter:   limiter,
		tr:        tr,
		cfg:       cfg,
		log:       logger,
		now:       time.Now,
		newID:     func() string { return ulid.Make().String() },
	}
}

// SendTurn runs one user turn: funnel routing, the primary relay turn and the
// sequential mention fan-out.
func (c *chatUC) SendTurn(ctx context.Context, owner, sessionID, text, colleagueID string, emit Emit) error {
	ctx = logging.WithSessID(logging.WithOwner(ctx, owner), sessionID)
	log := logging.With(ctx, c.log)
	defer logging.TraceDuration(log, "ChatUC.SendTurn")()

	if owner == "" {
		return domain.ErrUnauthorized
	}
	if strings.TrimSpace(text) == "" {
		return domain.ErrEmptyMessage
	}
	if n := utf8.RuneCountInString(text); n > model.MaxMessageRune {
		return fmt.Errorf("%d characters: %w", n, domain.ErrMessageTooLong)
	}
	if err := c.allow(ctx, owner); err != nil {
		return err
	}
	if sessionID == "" {
		active, err := c.activeSession(ctx, owner)
		if err != nil {
			return err
		}
		sessionID = active.ID
		ctx = logging.WithSessID(ctx, sessionID)
		log = logging.With(ctx, c.log)
	}
	unlock, err := c.lock(ctx, owner, sessionID)
	if err != nil {
		return err
	}
	defer unlock()

	session, err := c.session(ctx, owner, sessionID)
	if err != nil {
		return err
	}
	profile, err := c.colleague(session, colleagueID)
	if err != nil {
		return err
	}
	ctx = logging.WithColleague(ctx, profile.ColleagueID)

	query, compiled, handled, err := c.routeFunnel(ctx, owner, session, profile, text, emit)
	if err != nil || handled {
		return err
	}
	if !compiled {
		if _, err := c.updateSession(ctx, owner, sessionID, func(s *model.ChatSession) error {
			if s.ColleagueID == "" {
				s.ColleagueID = profile.ColleagueID
			}
			s.AppendUser(text, c.now())
			return nil
		}); err != nil {
			return err
		}
	}

	if err := c.runTurn(ctx, owner, sessionID, profile, query, compiled, false, emit); err != nil {
		return err
	}

	for _, id := range mention.Resolve(text, c.directory.Known(), profile.ColleagueID) {
		mp, ok := c.directory.Lookup(id)
		if !ok {
			continue
		}
		metrics.IncRelayFanout()
		if err := c.runTurn(ctx, owner, sessionID, mp, query, compiled, true, emit); err != nil {
			if ctx.Err() != nil {
				return err
			}
			log.Warn().Err(err).Str("mentioned", id).Msg("fan-out turn failed")
			ev := ErrorEvent(c.tr, err)
			ev.AssistantID = mp.ColleagueID
			emit(ev)
		}
	}
	return nil
}

// routeFunnel opens or advances the intake funnel. handled is true when the turn ended
// with a funnel question; compiled is true when the funnel just finished and query
// is the synthesized prompt.
func (c *chatUC) routeFunnel(ctx context.Context, owner string, session *model.ChatSession, profile model.AssistantProfile, text string, emit Emit) (query string, compiled, handled bool, err error) {
	if !c.cfg.FunnelEnabled || len(c.cfg.FunnelQuestions) == 0 {
		return text, false, false, nil
	}
	state, err := c.funnels.Get(ctx, owner, session.ID)
	switch {
	case err == nil && state.IsActive:
		step, err := funnel.Advance(*state, text)
		if err != nil {
			return "", false, false, err
		}
		if step.Done() {
			if err := c.funnels.Clear(ctx, owner, session.ID); err != nil {
				logging.With(ctx, c.log).Warn().Err(err).Msg("clear funnel state failed")
			}
			if _, err := c.updateSession(ctx, owner, session.ID, func(s *model.ChatSession) error {
				s.AppendUser(text, c.now())
				return nil
			}); err != nil {
				return "", false, false, err
			}
			return step.Prompt, true, false, nil
		}
		if err := c.funnels.Set(ctx, owner, session.ID, step.Next); err != nil {
			return "", false, false, err
		}
		return "", false, true, c.askFunnel(ctx, owner, session.ID, profile, text, step.Prompt, step.Placeholder, emit)

	case err != nil && !errors.Is(err, domain.ErrNotFound):
		logging.With(ctx, c.log).Warn().Err(err).Msg("funnel state unavailable; relaying directly")
		return text, false, false, nil

	case len(session.Messages) == 0:
		st := funnel.Start(text, c.cfg.FunnelQuestions)
		q, ok := funnel.CurrentQuestion(st)
		if !ok {
			return text, false, false, nil
		}
		if err := c.funnels.Set(ctx, owner, session.ID, &st); err != nil {
			return "", false, false, err
		}
		return "", false, true, c.askFunnel(ctx, owner, session.ID, profile, text, q.Question, q.Placeholder, emit)
	}
	return text, false, false, nil
}

func (c *chatUC) askFunnel(ctx context.Context, owner, sessionID string, profile model.AssistantProfile, answer, question, placeholder string, emit Emit) error {
	if _, err := c.updateSession(ctx, owner, sessionID, func(s *model.ChatSession) error {
		if s.ColleagueID == "" {
			s.ColleagueID = profile.ColleagueID
		}
		s.AppendUser(answer, c.now())
		s.AppendAssistant(question, profile.ColleagueID, profile.DisplayName, c.now())
		return nil
	}); err != nil {
		return err
	}
	emit(model.StreamEvent{
		Type:           model.EventFunnel,
		Content:        question,
		Placeholder:    placeholder,
		AssistantID:    profile.ColleagueID,
		AssistantLabel: profile.DisplayName,
	})
	return nil
}

// runTurn relays one query into its own bubble. Only that bubble is removed on failure.
// The bubble event follows thread_assigned, so the thread stays the first relay event.
func (c *chatUC) runTurn(ctx context.Context, owner, sessionID string, p model.AssistantProfile, query string, compiled, fanOut bool, emit Emit) error {
	log := logging.With(ctx, c.log)
	persistCtx := context.WithoutCancel(ctx)

	idx, threadID := -1, ""
	if _, err := c.updateSession(ctx, owner, sessionID, func(s *model.ChatSession) error {
		idx = s.BeginAssistant(p.ColleagueID, p.DisplayName, c.now())
		threadID = s.ThreadFor(p.ColleagueID)
		return nil
	}); err != nil {
		return err
	}

	noAnswer := c.tr.T(i18n.KeyNoAnswer)
	framed := false
	relayEmit := func(ev model.StreamEvent) {
		ev.AssistantID = p.ColleagueID
		if !framed && ev.Type != model.EventThreadAssigned {
			emit(model.StreamEvent{Type: model.EventBubble, AssistantID: p.ColleagueID, AssistantLabel: p.DisplayName})
			framed = true
		}
		switch ev.Type {
		case model.EventThreadAssigned:
			if ev.ThreadID != threadID {
				if _, err := c.updateSession(persistCtx, owner, sessionID, func(s *model.ChatSession) error {
					return s.AssignAssistantThread(p.ColleagueID, ev.ThreadID)
				}); err != nil {
					log.Warn().Err(err).Str("thread_id", ev.ThreadID).Msg("thread binding not persisted")
				}
				threadID = ev.ThreadID
			}
		case model.EventDone:
			if strings.TrimSpace(ev.Content) == "" {
				ev.Content = noAnswer
			}
		}
		emit(ev)
	}

	res, err := c.relay.Stream(ctx, TurnRequest{
		Text:        query,
		ColleagueID: p.ColleagueID,
		ThreadID:    threadID,
		Compiled:    compiled,
		FanOut:      fanOut,
	}, relayEmit)
	if err != nil {
		if _, rmErr := c.updateSession(persistCtx, owner, sessionID, func(s *model.ChatSession) error {
			if idx < len(s.Messages) && s.Messages[idx].InFlight() && s.Messages[idx].AssistantID == p.ColleagueID {
				s.RemoveMessage(idx)
			}
			return nil
		}); rmErr != nil {
			log.Error().Err(rmErr).Msg("pending bubble not removed")
		}
		return domain.NewTurnError(err)
	}

	_, err = c.updateSession(persistCtx, owner, sessionID, func(s *model.ChatSession) error {
		s.FinishAssistant(idx, res.Content, res.Citations, noAnswer, c.now())
		return nil
	})
	return err
}

func (c *chatUC) allow(ctx context.Context, owner string) error {
	if c.limiter == nil || c.cfg.TurnsPerMinute <= 0 {
		return nil
	}
	ok, err := c.limiter.Allow(ctx, red.OwnerTurnKey(owner), c.cfg.TurnsPerMinute, time.Minute)
	if err != nil {
		logging.With(ctx, c.log).Warn().Err(err).Msg("rate limiter unavailable")
		return nil
	}
	if !ok {
		return domain.ErrRateLimited
	}
	return nil
}

func (c *chatUC) lock(ctx context.Context, owner, sessionID string) (func(), error) {
	if c.locker == nil {
		return func() {}, nil
	}
	key := red.SessionLockKey(owner, sessionID)
	token, err := c.locker.TryLock(ctx, key, c.cfg.LockTTL)
	if err != nil {
		return nil, err
	}
	return func() {
		if err := c.locker.Unlock(context.WithoutCancel(ctx), key, token); err != nil {
			logging.With(ctx, c.log).Warn().Err(err).Msg("unlock session failed")
		}
	}, nil
}

func (c *chatUC) colleague(s *model.ChatSession, colleagueID string) (model.AssistantProfile, error) {
	id := colleagueID
	if id == "" {
		id = s.ColleagueID
	}
	if id == "" {
		if ids := c.directory.IDs(); len(ids) > 0 {
			id = ids[0]
		}
	}
	p, ok := c.directory.Lookup(id)
	if !ok || p.ProviderAssistantID == "" {
		return model.AssistantProfile{}, fmt.Errorf("colleague %q: %w", id, domain.ErrNoAssistant)
	}
	return p, nil
}

func (c *chatUC) loadBook(ctx context.Context, tx repository.Tx, owner string) (*model.SessionBook, error) {
	book, err := c.books.Load(ctx, tx, owner)
	if errors.Is(err, domain.ErrNotFound) {
		return model.NewSessionBook(owner), nil
	}
	if err != nil {
		return nil, err
	}
	return book, nil
}

// activeSession resolves the session a turn without an explicit id goes to.
func (c *chatUC) activeSession(ctx context.Context, owner string) (*model.ChatSession, error) {
	book, err := c.loadBook(ctx, nil, owner)
	if err != nil {
		return nil, err
	}
	return book.Active()
}

func (c *chatUC) session(ctx context.Context, owner, sessionID string) (*model.ChatSession, error) {
	book, err := c.loadBook(ctx, nil, owner)
	if err != nil {
		return nil, err
	}
	return book.Find(sessionID)
}

// mutateBook runs fn over a freshly loaded book inside a transaction and saves it.
func (c *chatUC) mutateBook(ctx context.Context, owner string, fn func(b *model.SessionBook) error) error {
	return c.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		book, err := c.loadBook(ctx, tx, owner)
		if err != nil {
			return err
		}
		if err := fn(book); err != nil {
			return err
		}
		return c.books.Save(ctx, tx, book)
	})
}

func (c *chatUC) updateSession(ctx context.Context, owner, sessionID string, fn func(s *model.ChatSession) error) (*model.ChatSession, error) {
	var out *model.ChatSession
	err := c.mutateBook(ctx, owner, func(b *model.SessionBook) error {
		s, err := b.Find(sessionID)
		if err != nil {
			return err
		}
		if err := fn(s); err != nil {
			return err
		}
		out = s
		return nil
	})
	return out, err
}

func (c *chatUC) StartFunnel(ctx context.Context, owner, sessionID, initialText string) (*FunnelPrompt, error) {
	if strings.TrimSpace(initialText) == "" {
		return nil, domain.ErrEmptyMessage
	}
	st := funnel.Start(initialText, c.cfg.FunnelQuestions)
	q, ok := funnel.CurrentQuestion(st)
	if !ok {
		return &FunnelPrompt{}, nil
	}
	if err := c.funnels.Set(ctx, owner, sessionID, &st); err != nil {
		return nil, err
	}
	return &FunnelPrompt{Active: true, Step: st.CurrentStep, Question: q.Question, Placeholder: q.Placeholder}, nil
}

func (c *chatUC) AdvanceFunnel(ctx context.Context, owner, sessionID, answer string) (*FunnelPrompt, error) {
	st, err := c.funnels.Get(ctx, owner, sessionID)
	if err != nil {
		return nil, err
	}
	step, err := funnel.Advance(*st, answer)
	if err != nil {
		return nil, err
	}
	if step.Done() {
		if err := c.funnels.Clear(ctx, owner, sessionID); err != nil {
			return nil, err
		}
		return &FunnelPrompt{CompiledPrompt: step.Prompt}, nil
	}
	if err := c.funnels.Set(ctx, owner, sessionID, step.Next); err != nil {
		return nil, err
	}
	return &FunnelPrompt{Active: true, Step: step.Next.CurrentStep, Question: step.Prompt, Placeholder: step.Placeholder}, nil
}

func (c *chatUC) ResolveMentions(text, exclude string) []string {
	return mention.Resolve(text, c.directory.Known(), strings.ToLower(exclude))
}

func (c *chatUC) SuggestMention(text string, caret int, exclude string) (*MentionSuggestion, bool) {
	p, ok := mention.Suggest(text, caret)
	if !ok {
		return nil, false
	}
	return &MentionSuggestion{
		Partial:    p,
		Candidates: mention.Candidates(p.Query, c.directory.IDs(), strings.ToLower(exclude)),
	}, true
}

// ApplyMention completes the partial token under caret with colleagueID.
func (c *chatUC) ApplyMention(text string, caret int, colleagueID string) (string, int, error) {
	if _, ok := c.directory.Lookup(colleagueID); !ok {
		return "", 0, fmt.Errorf("colleague %q: %w", colleagueID, domain.ErrNoAssistant)
	}
	p, ok := mention.Suggest(text, caret)
	if !ok {
		return "", 0, fmt.Errorf("no mention at caret: %w", domain.ErrInvalidArgument)
	}
	out, pos := mention.Apply(text, p, colleagueID)
	return out, pos, nil
}

func (c *chatUC) ListSessions(ctx context.Context, owner, colleagueID string) (*SessionList, error) {
	book, err := c.loadBook(ctx, nil, owner)
	if err != nil {
		return nil, err
	}
	return &SessionList{Sessions: book.List(strings.ToLower(colleagueID)), LastActive: book.LastActive}, nil
}

func (c *chatUC) NewSession(ctx context.Context, owner, colleagueID string) (*model.ChatSession, error) {
	colleagueID = strings.ToLower(strings.TrimSpace(colleagueID))
	if colleagueID != "" {
		if _, ok := c.directory.Lookup(colleagueID); !ok {
			return nil, fmt.Errorf("colleague %q: %w", colleagueID, domain.ErrNoAssistant)
		}
	}
	s := model.NewChatSession(c.newID(), colleagueID, c.now())
	if err := c.mutateBook(ctx, owner, func(b *model.SessionBook) error {
		b.Add(s)
		return nil
	}); err != nil {
		return nil, err
	}
	logging.With(ctx, c.log).Info().Str("session_id", s.ID).Msg("session created")
	return s, nil
}

func (c *chatUC) SelectSession(ctx context.Context, owner, sessionID string) (*model.ChatSession, error) {
	var out *model.ChatSession
	err := c.mutateBook(ctx, owner, func(b *model.SessionBook) error {
		s, err := b.Select(sessionID)
		out = s
		return err
	})
	return out, err
}

func (c *chatUC) DeleteSession(ctx context.Context, owner, sessionID string) error {
	if err := c.mutateBook(ctx, owner, func(b *model.SessionBook) error {
		return b.Delete(sessionID)
	}); err != nil {
		return err
	}
	if err := c.funnels.Clear(ctx, owner, sessionID); err != nil {
		logging.With(ctx, c.log).Warn().Err(err).Msg("clear funnel state failed")
	}
	return nil
}

func (c *chatUC) Colleagues() []model.AssistantProfile {
	return c.directory.Profiles()
}

// ErrorEvent renders err as the localized error event of the turn stream.
func ErrorEvent(tr Localizer, err error) model.StreamEvent {
	cat := domain.CategoryOf(err)
	var key string
	var args []interface{}
	switch {
	case errors.Is(err, domain.ErrEmptyMessage):
		key = i18n.KeyEmptyMessage
	case errors.Is(err, domain.ErrMessageTooLong):
		key, args = i18n.KeyMessageTooLong, []interface{}{model.MaxMessageRune}
	case errors.Is(err, domain.ErrNoAssistant):
		key = i18n.KeyNoAssistant
	case errors.Is(err, domain.ErrTurnInProgress):
		key = i18n.KeyTurnInProgress
	case cat == domain.CategoryAuth:
		key = i18n.KeyUnauthorized
	case cat == domain.CategoryRateLimit:
		key = i18n.KeyRateLimited
	case cat == domain.CategoryQuota:
		key = i18n.KeyQuotaExceeded
	case cat == domain.CategoryTimeout:
		key = i18n.KeyTimeout
	default:
		key = i18n.KeyGenericError
	}
	return model.StreamEvent{Type: model.EventError, Category: string(cat), Message: tr.T(key, args...)}
}
