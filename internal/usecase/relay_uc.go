// File: internal/usecase/relay_uc.go
package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"colleague-chat/internal/domain"
	"colleague-chat/internal/domain/citation"
	"colleague-chat/internal/domain/model"
	"colleague-chat/internal/domain/ports/adapter"
	"colleague-chat/internal/domain/ports/repository"
	"colleague-chat/internal/infra/i18n"
	"colleague-chat/internal/infra/logging"
	"colleague-chat/internal/infra/metrics"
	"colleague-chat/internal/infra/worker"
)

// Compile-time check
var _ RelayUseCase = (*relayUC)(nil)

// Emit receives the events of one turn in order.
type Emit func(ev model.StreamEvent)

// Localizer resolves user-facing message keys.
type Localizer interface {
	T(key string, args ...interface{}) string
}

// TaskSubmitter runs background work off the request path.
type TaskSubmitter interface {
	Submit(task worker.Task) error
}

// TurnRequest is one query towards one colleague.
type TurnRequest struct {
	Text        string
	ColleagueID string
	// ThreadID is the thread already held for this colleague, "" for none.
	ThreadID string
	// Compiled marks a synthesized funnel prompt; it is exempt from the length limit.
	Compiled bool
	// FanOut marks a turn towards a mentioned colleague. Its cache entry is always
	// scoped to that colleague so it never replays the primary's answer.
	FanOut bool
}

// TurnResult is the finalized outcome of a relayed turn.
type TurnResult struct {
	ThreadID   string
	Content    string
	Citations  []model.Citation
	Advisory   bool
	Disclaimer string
	FromCache  bool
}

type RelayUseCase interface {
	Stream(ctx context.Context, req TurnRequest, emit Emit) (*TurnResult, error)
	StartRun(ctx context.Context, req TurnRequest) (*StartedRun, error)
	RunStatus(ctx context.Context, threadID, runID string) (*RunOutcome, error)
}

type RelayMode string

const (
	RelayModeStream RelayMode = "stream"
	RelayModePoll   RelayMode = "poll"
)

type RelayConfig struct {
	Mode                 RelayMode
	Language             string
	ReplayInterval       time.Duration
	PartitionByAssistant bool
	ProviderName         string
}

type relayUC struct {
	provider  adapter.AssistantProvider
	cache     repository.ResponseCacheRepository
	directory *model.AssistantDirectory
	poller    *RunPoller
	linker    *citation.Linker
	miner     citation.Extractor
	tasks     TaskSubmitter
	tr        Localizer
	tokens    *metrics.TokenEstimator
	cfg       RelayConfig
	log       *zerolog.Logger
	sleep     func(ctx context.Context, d time.Duration) error
}

// NewRelayUseCase builds the relay. miner and tasks may be nil; without tasks the
// cache touch runs inline.
func NewRelayUseCase(
	provider adapter.AssistantProvider,
	cache repository.ResponseCacheRepository,
	directory *model.AssistantDirectory,
	poller *RunPoller,
	linker *citation.Linker,
	miner citation.Extractor,
	tasks TaskSubmitter,
	tr Localizer,
	tokens *metrics.TokenEstimator,
	cfg RelayConfig,
	logger *zerolog.Logger,
) *relayUC {
	if cfg.Mode == "" {
		cfg.Mode = RelayModeStream
	}
	if cfg.ProviderName == "" {
		cfg.ProviderName = "openai"
	}
	if linker == nil {
		linker = citation.NewLinker("", "")
	}
	return &relayUC{
		provider:  provider,
		cache:     cache,
		directory: directory,
		poller:    poller,
		linker:    linker,
		miner:     miner,
		tasks:     tasks,
		tr:        tr,
		tokens:    tokens,
		cfg:       cfg,
		log:       logger,
		sleep:     sleepCtx,
	}
}

func (r *relayUC) Stream(ctx context.Context, req TurnRequest, emit Emit) (*TurnResult, error) {
	log := logging.With(ctx, r.log)
	defer logging.TraceDuration(log, "RelayUC.Stream")()

	profile, err := r.validate(ctx, req)
	if err != nil {
		metrics.IncRelayTurn(string(domain.CategoryOf(err)))
		return nil, err
	}

	hash := QuestionHash(req.Text, r.scope(profile, req.FanOut))
	if hit, ok := r.lookup(ctx, hash); ok {
		res, err := r.replayCached(ctx, hit, emit)
		r.countTurn(err, "cache_hit")
		return res, err
	}

	res, err := r.relay(ctx, req, profile, hash, emit)
	r.countTurn(err, "completed")
	return res, err
}

func (r *relayUC) countTurn(err error, okOutcome string) {
	if err != nil {
		if errors.Is(err, context.Canceled) {
			metrics.IncRelayTurn("cancelled")
			return
		}
		metrics.IncRelayTurn(string(domain.CategoryOf(err)))
		return
	}
	metrics.IncRelayTurn(okOutcome)
}

// validate runs every local check before anything is mutated or sent upstream.
func (r *relayUC) validate(ctx context.Context, req TurnRequest) (model.AssistantProfile, error) {
	if _, ok := domain.PrincipalFrom(ctx); !ok {
		return model.AssistantProfile{}, domain.ErrUnauthorized
	}
	if strings.TrimSpace(req.Text) == "" {
		return model.AssistantProfile{}, domain.ErrEmptyMessage
	}
	if !req.Compiled && utf8.RuneCountInString(req.Text) > model.MaxMessageRune {
		return model.AssistantProfile{}, fmt.Errorf("%d characters: %w", utf8.RuneCountInString(req.Text), domain.ErrMessageTooLong)
	}
	profile, ok := r.directory.Lookup(req.ColleagueID)
	if !ok || profile.ProviderAssistantID == "" {
		return model.AssistantProfile{}, fmt.Errorf("colleague %q: %w", req.ColleagueID, domain.ErrNoAssistant)
	}
	return profile, nil
}

func (r *relayUC) scope(p model.AssistantProfile, fanOut bool) string {
	if !r.cfg.PartitionByAssistant && !fanOut {
		return ""
	}
	return p.ProviderAssistantID + "/" + p.DocumentSetID
}

// lookup treats every cache failure as a miss.
func (r *relayUC) lookup(ctx context.Context, hash string) (*model.CachedResponse, bool) {
	if r.cache == nil {
		return nil, false
	}
	hit, err := r.cache.Lookup(ctx, nil, hash)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			logging.With(ctx, r.log).Warn().Err(err).Msg("response cache lookup failed")
		}
		return nil, false
	}
	return hit, true
}

// replayCached streams a stored answer word by word without touching any thread.
func (r *relayUC) replayCached(ctx context.Context, hit *model.CachedResponse, emit Emit) (*TurnResult, error) {
	for _, w := range wordChunks(hit.AnswerText) {
		if err := r.sleep(ctx, r.cfg.ReplayInterval); err != nil {
			return nil, err
		}
		emit(model.StreamEvent{Type: model.EventToken, Text: w})
	}
	r.touch(ctx, hit.ID)

	cits, advisory, disclaimer := r.layer(hit.AnswerText, hit.Citations)
	emit(model.StreamEvent{Type: model.EventCitations, Citations: cits, Advisory: advisory, Disclaimer: disclaimer})
	emit(model.StreamEvent{Type: model.EventDone, Content: hit.AnswerText, FromCache: true})
	return &TurnResult{
		Content:    hit.AnswerText,
		Citations:  cits,
		Advisory:   advisory,
		Disclaimer: disclaimer,
		FromCache:  true,
	}, nil
}

func (r *relayUC) touch(ctx context.Context, id string) {
	log := logging.With(ctx, r.log)
	task := func(ctx context.Context) error {
		if err := r.cache.Touch(ctx, nil, id); err != nil {
			log.Warn().Err(err).Str("cache_id", id).Msg("response cache touch failed")
			return err
		}
		return nil
	}
	if r.tasks != nil {
		if err := r.tasks.Submit(task); err == nil {
			return
		}
	}
	_ = task(context.WithoutCancel(ctx))
}

func (r *relayUC) relay(ctx context.Context, req TurnRequest, profile model.AssistantProfile, hash string, emit Emit) (*TurnResult, error) {
	log := logging.With(ctx, r.log)

	threadID, err := r.acquireThread(ctx, req.ThreadID, profile)
	if err != nil {
		return nil, err
	}
	emit(model.StreamEvent{Type: model.EventThreadAssigned, ThreadID: threadID})

	if err := r.provider.AppendUserTurn(ctx, threadID, req.Text); err != nil {
		return nil, fmt.Errorf("append user turn: %w", err)
	}

	spec := r.runSpec(threadID, profile)
	st := relayState{ThreadID: threadID}
	if r.cfg.Mode == RelayModePoll && r.poller != nil {
		run, err := r.provider.CreateRun(ctx, spec)
		if err != nil {
			return nil, fmt.Errorf("create run: %w", err)
		}
		if _, err := r.poller.Await(ctx, threadID, run.ID); err != nil {
			return nil, err
		}
		st.RunID = run.ID
		if st, err = r.replayLatest(ctx, st, emit); err != nil {
			return nil, err
		}
	} else {
		if st, err = r.consume(ctx, spec, st, emit); err != nil {
			return nil, err
		}
		if st.Tokens == 0 {
			log.Info().Str("thread_id", threadID).Msg("no streamed content; fetching latest message")
			if st, err = r.replayLatest(ctx, st, emit); err != nil {
				return nil, err
			}
			if st.Tokens == 0 {
				metrics.IncRelayFallback("empty")
			} else {
				metrics.IncRelayFallback("recovered")
			}
		}
	}

	return r.finalize(ctx, req, profile, hash, st, emit), nil
}

// acquireThread reuses the held thread or opens one bound to the colleague's documents.
func (r *relayUC) acquireThread(ctx context.Context, held string, profile model.AssistantProfile) (string, error) {
	if held != "" {
		return held, nil
	}
	id, err := r.provider.CreateThread(ctx, profile.DocumentSetID)
	if err != nil {
		return "", fmt.Errorf("create thread: %w", err)
	}
	if id == "" {
		return "", fmt.Errorf("create thread: empty id: %w", domain.ErrUpstreamFormat)
	}
	return id, nil
}

func (r *relayUC) runSpec(threadID string, profile model.AssistantProfile) adapter.RunSpec {
	return adapter.RunSpec{
		ThreadID:      threadID,
		AssistantID:   profile.ProviderAssistantID,
		DocumentSetID: profile.DocumentSetID,
		Instructions:  r.cfg.Language,
	}
}

// consume forwards the run stream through the reducer until the run completes.
func (r *relayUC) consume(ctx context.Context, spec adapter.RunSpec, st relayState, emit Emit) (relayState, error) {
	stream, err := r.provider.StreamRun(ctx, spec)
	if err != nil {
		return st, fmt.Errorf("stream run: %w", err)
	}
	defer stream.Close()

	for stream.Next() {
		var out []model.StreamEvent
		st, out = reduce(st, stream.Event())
		for _, ev := range out {
			emit(ev)
		}
		if st.Failure != "" {
			return st, fmt.Errorf("run %s: %s: %w", st.RunID, st.Failure, domain.ErrRunFailed)
		}
		if st.Done {
			break
		}
	}
	if err := stream.Err(); err != nil {
		return st, err
	}
	if err := ctx.Err(); err != nil {
		return st, err
	}
	return st, nil
}

// replayLatest reads the newest thread message and replays it as synthetic tokens.
// Only cancellation is returned as an error; any other failure yields no content.
func (r *relayUC) replayLatest(ctx context.Context, st relayState, emit Emit) (relayState, error) {
	msg, err := r.provider.FetchLatestMessage(ctx, st.ThreadID)
	if err != nil {
		if ctx.Err() != nil {
			return st, ctx.Err()
		}
		logging.With(ctx, r.log).Warn().Err(err).Msg("latest message fetch failed")
		return st, nil
	}
	if msg.Role != "" && msg.Role != "assistant" {
		return st, nil
	}
	for _, w := range wordChunks(msg.Content) {
		if err := r.sleep(ctx, r.cfg.ReplayInterval); err != nil {
			return st, err
		}
		var out []model.StreamEvent
		st, out = reduce(st, adapter.RunEvent{Kind: adapter.RunTextDelta, Text: w})
		for _, ev := range out {
			emit(ev)
		}
	}
	st.Annotations = appendAnnotations(st.Annotations, msg.Annotations)
	return st, nil
}

func (r *relayUC) finalize(ctx context.Context, req TurnRequest, profile model.AssistantProfile, hash string, st relayState, emit Emit) *TurnResult {
	log := logging.With(ctx, r.log)

	content := citation.CleanAnswer(st.Text)
	structured := r.resolveCitations(ctx, st.Annotations)
	cits, advisory, disclaimer := r.layer(content, structured)

	if r.tokens != nil && content != "" {
		metrics.AddAnswerTokens(r.cfg.ProviderName, profile.ColleagueID, r.tokens.Count(content))
	}

	if content != "" && ctx.Err() == nil && r.cache != nil {
		rec := &model.CachedResponse{
			QuestionHash: hash,
			QuestionText: req.Text,
			AnswerText:   content,
			Citations:    structured,
		}
		if err := r.cache.Store(ctx, nil, rec); err != nil {
			log.Warn().Err(err).Msg("response cache store failed")
		}
	}

	emit(model.StreamEvent{Type: model.EventCitations, Citations: cits, Advisory: advisory, Disclaimer: disclaimer})
	emit(model.StreamEvent{Type: model.EventDone, ThreadID: st.ThreadID, Content: content})
	return &TurnResult{
		ThreadID:   st.ThreadID,
		Content:    content,
		Citations:  cits,
		Advisory:   advisory,
		Disclaimer: disclaimer,
	}
}

// layer picks the citation layer: structured, mined from the text, or a disclaimer.
func (r *relayUC) layer(content string, structured []model.Citation) ([]model.Citation, bool, string) {
	if len(structured) > 0 {
		metrics.IncRelayCitationLayer("structured")
		return structured, false, ""
	}
	if r.miner != nil && content != "" {
		if mined := r.miner.Extract(content); len(mined) > 0 {
			metrics.IncRelayCitationLayer("text")
			return mined, true, ""
		}
	}
	metrics.IncRelayCitationLayer("disclaimer")
	return []model.Citation{}, false, r.tr.T(i18n.KeyGroundedDisclaim)
}

// resolveCitations dedupes annotations by file id and resolves file names in parallel.
// A failed lookup falls back to the file id.
func (r *relayUC) resolveCitations(ctx context.Context, anns []adapter.Annotation) []model.Citation {
	cits := make([]model.Citation, 0, len(anns))
	for _, a := range anns {
		if a.FileID == "" {
			continue
		}
		cits = append(cits, model.Citation{FileID: a.FileID, Quote: a.Quote})
	}
	cits = citation.Dedupe(cits)
	if len(cits) == 0 {
		return cits
	}

	names := make([]string, len(cits))
	var g errgroup.Group
	g.SetLimit(4)
	for i, c := range cits {
		i, c := i, c
		g.Go(func() error {
			md, err := r.provider.FetchFileMetadata(ctx, c.FileID)
			if err != nil || md.Filename == "" {
				if err != nil {
					logging.With(ctx, r.log).Debug().Err(err).Str("file_id", c.FileID).Msg("file name lookup failed")
				}
				names[i] = c.FileID
				return nil
			}
			names[i] = md.Filename
			return nil
		})
	}
	_ = g.Wait()

	for i := range cits {
		cits[i].Filename = names[i]
	}
	return r.linker.Decorate(cits)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
