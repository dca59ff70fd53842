// File: cmd/app/main.go
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"colleague-chat/internal/config"
	"colleague-chat/internal/domain/citation"
	"colleague-chat/internal/domain/model"
	"colleague-chat/internal/domain/ports/adapter"
	aiAdapters "colleague-chat/internal/infra/adapters/ai"
	"colleague-chat/internal/infra/api"
	"colleague-chat/internal/infra/api/apiv1"
	pg "colleague-chat/internal/infra/db/postgres"
	"colleague-chat/internal/infra/i18n"
	"colleague-chat/internal/infra/logging"
	"colleague-chat/internal/infra/metrics"
	red "colleague-chat/internal/infra/redis"
	"colleague-chat/internal/infra/security"
	"colleague-chat/internal/infra/worker"
	"colleague-chat/internal/usecase"
)

var (
	version = "dev"
	commit  = "none"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ---- CLI flags ----
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	devMode := flag.Bool("dev", false, "enable developer mode (offline provider, console logs)")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, *devMode)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger := logging.New(cfg.Log, cfg.Runtime.Dev)
	if cfg.Runtime.Dev {
		logger.Warn().Msg("[DEV MODE] enabled")
	}

	metrics.MustRegister()
	metrics.SetBuildInfo(version, commit)

	// ---- Postgres ----
	pool, err := pg.NewPgxPool(ctx, cfg.Database)
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres")
	}
	defer pool.Close()
	go pg.ReportPoolStats(ctx, pool, 15*time.Second)
	txManager := pg.NewTxManager(pool)

	// ---- Redis ----
	redisClient, err := red.NewClient(ctx, &cfg.Redis)
	if err != nil {
		logger.Fatal().Err(err).Msg("redis")
	}
	defer redisClient.Close()
	sessionCache := red.NewSessionCache(redisClient, cfg.Redis.TTL)
	funnelRepo := red.NewFunnelStateRepo(redisClient, cfg.Funnel.TTL)
	locker := red.NewLocker(redisClient)
	limiter := red.NewRateLimiter(redisClient)

	// ---- Encryption ----
	encKey := cfg.Security.EncryptionKey
	if len(encKey) != 32 {
		if !cfg.Runtime.Dev {
			logger.Fatal().Msg("security.encryption_key must be 32 bytes")
		}
		logger.Warn().Msg("security.encryption_key not set or not 32 bytes; using dev key (INSECURE)")
		encKey = "0123456789abcdef0123456789abcdef"
	}
	bookCipher, err := security.NewBookCipher(encKey)
	if err != nil {
		logger.Fatal().Err(err).Msg("encryption")
	}

	// ---- Repositories ----
	bookRepo := pg.NewSessionBookRepo(pool, sessionCache, bookCipher)
	cacheRepo := pg.NewResponseCacheDecorator(pg.NewResponseCacheRepo(pool), redisClient, cfg.Cache.HotTTL, logger)

	// ---- Assistant provider ----
	var provider adapter.AssistantProvider
	providerName := "openai"
	switch {
	case cfg.AI.OpenAIKey != "":
		p, err := aiAdapters.NewAssistantsAdapter(cfg.AI.OpenAIKey, cfg.AI.BaseURL, cfg.AI.MaxRetries)
		if err != nil {
			logger.Fatal().Err(err).Msg("assistants adapter")
		}
		provider = p
		logger.Info().Str("base_url", cfg.AI.BaseURL).Str("mode", cfg.AI.Mode).Msg("assistant provider: openai")
	case cfg.Runtime.Dev:
		provider = aiAdapters.NewNoopProvider(logger)
		providerName = "noop"
		logger.Warn().Msg("assistant provider: noop (no ai.openai_key)")
	default:
		logger.Fatal().Msgf("no assistant provider configured: set ai.openai_key in %s", *cfgPath)
	}
	provider = aiAdapters.NewLimitedProvider(provider, cfg.AI.ConcurrentLimit)

	// ---- Background workers ----
	tasks := worker.NewPool(cfg.Limits.Workers, logger)
	tasks.Start(ctx)
	defer tasks.Stop()

	// ---- Use cases ----
	tr, err := i18n.NewTranslator(i18n.LocalesFS, cfg.Locale)
	if err != nil {
		logger.Fatal().Err(err).Msg("i18n")
	}
	directory := newDirectory(cfg.Assistants)
	linker := citation.NewLinker(cfg.Storage.PublicBaseURL, cfg.Storage.Bucket)
	var miner citation.Extractor
	if cfg.Cache.TextMining {
		miner = citation.NewTextMiner(linker)
	}

	poller := usecase.NewRunPoller(provider, cfg.AI.Poll.Interval, cfg.AI.Poll.MaxAttempts)
	relayUC := usecase.NewRelayUseCase(
		provider, cacheRepo, directory, poller, linker, miner, tasks, tr,
		metrics.NewTokenEstimator(cfg.AI.TokenModel),
		usecase.RelayConfig{
			Mode:                 usecase.RelayMode(cfg.AI.Mode),
			Language:             cfg.AI.Language,
			ReplayInterval:       cfg.AI.ReplayInterval,
			PartitionByAssistant: cfg.Cache.PartitionByAssistant,
			ProviderName:         providerName,
		},
		logger,
	)
	chatUC := usecase.NewChatUseCase(
		bookRepo, funnelRepo, txManager, relayUC, directory, locker, limiter, tr,
		usecase.ChatConfig{
			FunnelEnabled:   cfg.Funnel.Enabled,
			FunnelQuestions: funnelQuestions(cfg.Funnel.Questions),
			TurnsPerMinute:  cfg.Limits.TurnsPerMinute,
		},
		logger,
	)

	// ---- HTTP ----
	auth := security.NewAuthManager(cfg.Auth)
	router := api.NewRouter(logger)
	apiv1.RegisterAPIV1(router, apiv1.NewServer(chatUC, relayUC, auth, tr, cfg.Server.RequestTimeout, logger))
	server := api.NewServer(cfg.Server.Port, router, logger)

	errc := make(chan error, 1)
	go func() { errc <- server.Start() }()

	// ---- Graceful shutdown ----
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sigc:
		logger.Info().Msg("shutdown requested")
	case err := <-errc:
		if err != nil {
			logger.Error().Err(err).Msg("http server stopped")
		}
	}

	shutdownCtx, stop := context.WithTimeout(context.Background(), 20*time.Second)
	defer stop()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("http shutdown")
	}
	cancel()
}

func newDirectory(entries []config.AssistantConfig) *model.AssistantDirectory {
	profiles := make([]model.AssistantProfile, 0, len(entries))
	for _, a := range entries {
		profiles = append(profiles, model.AssistantProfile{
			ColleagueID:         a.ColleagueID,
			ProviderAssistantID: a.AssistantID,
			DocumentSetID:       a.DocumentSetID,
			DisplayName:         a.DisplayName,
		})
	}
	return model.NewAssistantDirectory(profiles...)
}

func funnelQuestions(qs []config.FunnelQuestionConfig) []model.FunnelQuestion {
	if len(qs) == 0 {
		return model.DefaultFunnel
	}
	out := make([]model.FunnelQuestion, 0, len(qs))
	for _, q := range qs {
		out = append(out, model.FunnelQuestion{ID: q.ID, Question: q.Question, Placeholder: q.Placeholder})
	}
	return out
}
