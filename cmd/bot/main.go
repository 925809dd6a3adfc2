package main

import (
	"context"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/inhouse-gg/queuebot/internal/config"
	"github.com/inhouse-gg/queuebot/internal/domain/match"
	"github.com/inhouse-gg/queuebot/internal/domain/queue"
	"github.com/inhouse-gg/queuebot/internal/domain/rating"
	discordnotify "github.com/inhouse-gg/queuebot/internal/infrastructure/notification/discord"
	cacherepo "github.com/inhouse-gg/queuebot/internal/infrastructure/repository/cache"
	"github.com/inhouse-gg/queuebot/internal/infrastructure/repository/memory"
	"github.com/inhouse-gg/queuebot/internal/infrastructure/repository/postgres"
	discordcmd "github.com/inhouse-gg/queuebot/internal/interfaces/discord"
	"github.com/inhouse-gg/queuebot/internal/platform/cache"
	"github.com/inhouse-gg/queuebot/internal/platform/logging"
	"github.com/inhouse-gg/queuebot/internal/platform/resilience"
	"github.com/inhouse-gg/queuebot/internal/platform/skill"
	"github.com/inhouse-gg/queuebot/internal/usecase"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Default().Error("load config", "error", err)
		os.Exit(1)
	}

	logger := logging.NewJSON(cfg.LogLevel).With(
		"service", cfg.ServiceName,
		"version", cfg.ServiceVersion,
		"env", cfg.AppEnv,
	)
	logging.SetDefault(logger)
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	queueRepo, matchRepo, ratingRepo, closeStorage, err := buildStorage(cfg)
	if err != nil {
		logger.Error("storage init failed", "driver", cfg.StorageDriver, "error", err)
		os.Exit(1)
	}
	defer closeStorage()

	if cfg.CacheEnabled {
		ratingRepo = cacherepo.NewRatingRepository(ratingRepo, cache.NewStore(cfg.CacheTTL))
	}

	session, err := discordgo.New("Bot " + cfg.DiscordToken)
	if err != nil {
		logger.Error("discord session init failed", "error", err)
		os.Exit(1)
	}
	session.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMessages |
		discordgo.IntentsGuildMessageReactions |
		discordgo.IntentMessageContent

	notifier := discordnotify.NewNotifier(session, resilience.CircuitBreakerConfig{
		Enabled:          cfg.DiscordCircuitEnabled,
		FailureThreshold: cfg.DiscordCircuitFailureCount,
		OpenTimeout:      cfg.DiscordCircuitOpenTimeout,
		HalfOpenMaxReq:   cfg.DiscordCircuitHalfOpenMaxReq,
	}, logger)

	queueSvc := usecase.NewQueueService(queueRepo, matchRepo, logger)
	model := skill.NewModel()
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	composer := usecase.NewComposer(ratingRepo, model, rng, logger)
	matchSvc := usecase.NewMatchService(matchRepo, ratingRepo, queueSvc, model, notifier,
		cfg.ConfirmationThreshold, cfg.ConfirmationTimeout, logger)

	matchmaker, err := usecase.NewMatchmaker(queueSvc, composer, matchSvc, notifier, cfg.MatchmakerWorkers, cfg.ReadyCheckTimeout, logger)
	if err != nil {
		logger.Error("matchmaker init failed", "error", err)
		os.Exit(1)
	}

	handler := discordcmd.NewHandler(session, queueSvc, matchSvc, matchmaker, logger)

	if err := session.Open(); err != nil {
		logger.Error("discord gateway open failed", "error", err)
		os.Exit(1)
	}
	logger.Info("bot is up", "storage", cfg.StorageDriver)

	if err := matchmaker.Resume(ctx); err != nil {
		logger.Error("startup recovery failed", "error", err)
	}

	<-ctx.Done()
	logger.Info("shutting down")

	handler.Shutdown()
	notifier.Shutdown()
	if err := session.Close(); err != nil {
		logger.Warn("discord session close failed", "error", err)
	}
	matchmaker.Close()
}

func buildStorage(cfg config.Config) (queue.Repository, match.Repository, rating.Repository, func(), error) {
	if cfg.StorageDriver == config.StorageMemory {
		return memory.NewQueueRepository(), memory.NewMatchRepository(), memory.NewRatingRepository(), func() {}, nil
	}

	db, err := sqlx.Connect("postgres", cfg.DBURL)
	if err != nil {
		return nil, nil, nil, nil, err
	}
	closer := func() {
		if err := db.Close(); err != nil {
			logging.Default().Warn("db close failed", "error", err)
		}
	}
	return postgres.NewQueueRepository(db), postgres.NewMatchRepository(db), postgres.NewRatingRepository(db), closer, nil
}
