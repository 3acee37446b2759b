// Package main is the entry point for the media concierge bot.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"media-concierge-bot/internal/bot"
	"media-concierge-bot/internal/config"
	"media-concierge-bot/internal/handler"
	"media-concierge-bot/internal/jobs"
	"media-concierge-bot/internal/media"
	"media-concierge-bot/internal/pkg/db"
	"media-concierge-bot/internal/pkg/lock"
	"media-concierge-bot/internal/repository"
	"media-concierge-bot/internal/score"
	"media-concierge-bot/internal/service"
)

func main() {
	// Configure zerolog
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	cfg, err := config.Load("config")
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log.Info().Msg("Configuration loaded successfully")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	dbPool, err := db.NewPool(ctx, &cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer dbPool.Close()

	if err := runMigrations(ctx, dbPool); err != nil {
		log.Fatal().Err(err).Msg("Failed to run database migrations")
	}

	// Repositories
	userRepo := repository.NewUserRepository(dbPool.Pool)
	codeRepo := repository.NewCodeRepository(dbPool.Pool)
	mediaRepo := repository.NewMediaRepository(dbPool.Pool)

	// Media server client
	var mediaClient media.Client = media.NoopClient{}
	if cfg.Media.Enabled {
		mediaClient = media.NewEmbyClient(&cfg.Media)
		log.Info().Str("url", cfg.Media.URL).Msg("Media server client enabled")
	}

	// Core state and services
	tracker := score.NewTracker(cfg.Score.FloodStreak)

	scoreService := service.NewScoreService(userRepo, tracker, cfg.Score.SettleCap)
	checkinService := service.NewCheckinService(
		dbPool.Pool,
		userRepo,
		codeRepo,
		mediaRepo,
		mediaClient,
		cfg.Score.CheckinMin,
		cfg.Score.CheckinMax,
		cfg.Score.CodeExpiryDays,
	)
	accountService := service.NewAccountService(dbPool.Pool, userRepo, codeRepo, mediaRepo, mediaClient)

	userLock := lock.NewUserLock()

	// Bot
	telegramBot, err := bot.New(&bot.Dependencies{
		Config:         cfg,
		CheckinService: checkinService,
		ScoreService:   scoreService,
		AccountService: accountService,
		UserLock:       userLock,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create bot")
	}

	// Scheduler: settlement reports go to the main chat
	scheduler := jobs.NewScheduler(
		scoreService,
		codeRepo,
		mediaRepo,
		mediaClient,
		jobs.Schedules{
			Settle:      cfg.Score.SettleCron,
			CodeCleanup: cfg.Jobs.CodeCleanupCron,
			ExpiryBan:   cfg.Jobs.ExpiryBanCron,
		},
		func(res *service.SettlementResult) {
			telegramBot.NotifyChat(handler.FormatSettlement(res))
		},
	)
	if err := scheduler.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed to start scheduler")
	}

	// Graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log.Info().Msg("Bot is starting...")
		telegramBot.Start()
	}()

	sig := <-sigChan
	log.Info().Str("signal", sig.String()).Msg("Received shutdown signal")

	scheduler.Stop()
	telegramBot.Stop()
	log.Info().Msg("Bot stopped gracefully")
}

// runMigrations executes database migrations.
func runMigrations(ctx context.Context, pool *db.Pool) error {
	log.Info().Msg("Running database migrations...")

	// Migration 1: users table (score records)
	_, err := pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS users (
			id BIGINT PRIMARY KEY,
			score BIGINT NOT NULL DEFAULT 0 CHECK (score >= 0),
			checkin_count INT NOT NULL DEFAULT 0,
			warning_count INT NOT NULL DEFAULT 0,
			last_checkin TIMESTAMPTZ,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_users_score ON users(score DESC);
	`)
	if err != nil {
		return err
	}

	// Migration 2: linked media accounts
	_, err = pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS media_users (
			id BIGSERIAL PRIMARY KEY,
			user_id BIGINT NOT NULL,
			media_id VARCHAR(64) NOT NULL,
			media_name VARCHAR(255) NOT NULL DEFAULT '',
			expires_at TIMESTAMPTZ NOT NULL,
			is_banned BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE UNIQUE INDEX IF NOT EXISTS idx_media_users_user ON media_users(user_id);
		CREATE INDEX IF NOT EXISTS idx_media_users_expiry ON media_users(expires_at) WHERE is_banned = FALSE;
	`)
	if err != nil {
		return err
	}

	// Migration 3: activation codes
	_, err = pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS codes (
			code VARCHAR(64) PRIMARY KEY,
			code_type VARCHAR(16) NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			expires_at TIMESTAMPTZ
		);
		CREATE INDEX IF NOT EXISTS idx_codes_expiry ON codes(expires_at) WHERE expires_at IS NOT NULL;
	`)
	if err != nil {
		return err
	}

	log.Info().Msg("Database migrations completed")
	return nil
}
