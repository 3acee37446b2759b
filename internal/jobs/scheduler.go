// Package jobs runs the scheduled background tasks: periodic score
// settlement, expired code cleanup and media account expiry
// enforcement.
package jobs

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"

	"media-concierge-bot/internal/media"
	"media-concierge-bot/internal/repository"
	"media-concierge-bot/internal/service"
)

// Schedules holds the cron specs for the background jobs.
type Schedules struct {
	Settle      string
	CodeCleanup string
	ExpiryBan   string
}

// Scheduler manages the background cron jobs.
type Scheduler struct {
	cron         *cron.Cron
	scoreService *service.ScoreService
	codeRepo     *repository.CodeRepository
	mediaRepo    *repository.MediaRepository
	media        media.Client
	notify       func(res *service.SettlementResult)
	schedules    Schedules
}

// NewScheduler creates a scheduler. notify is called with every
// non-empty settlement result; rendering and delivery belong to the
// transport layer.
func NewScheduler(
	scoreService *service.ScoreService,
	codeRepo *repository.CodeRepository,
	mediaRepo *repository.MediaRepository,
	mediaClient media.Client,
	schedules Schedules,
	notify func(res *service.SettlementResult),
) *Scheduler {
	return &Scheduler{
		cron:         cron.New(),
		scoreService: scoreService,
		codeRepo:     codeRepo,
		mediaRepo:    mediaRepo,
		media:        mediaClient,
		notify:       notify,
		schedules:    schedules,
	}
}

// Start registers and launches all jobs.
func (s *Scheduler) Start(ctx context.Context) error {
	if _, err := s.cron.AddFunc(s.schedules.Settle, func() { s.runSettlement(ctx) }); err != nil {
		return fmt.Errorf("invalid settlement schedule %q: %w", s.schedules.Settle, err)
	}
	if _, err := s.cron.AddFunc(s.schedules.CodeCleanup, func() { s.runCodeCleanup(ctx) }); err != nil {
		return fmt.Errorf("invalid code cleanup schedule %q: %w", s.schedules.CodeCleanup, err)
	}
	if _, err := s.cron.AddFunc(s.schedules.ExpiryBan, func() { s.runExpiryBan(ctx) }); err != nil {
		return fmt.Errorf("invalid expiry enforcement schedule %q: %w", s.schedules.ExpiryBan, err)
	}

	s.cron.Start()
	log.Info().
		Str("settle_cron", s.schedules.Settle).
		Str("code_cleanup_cron", s.schedules.CodeCleanup).
		Str("expiry_ban_cron", s.schedules.ExpiryBan).
		Msg("Scheduler started")
	return nil
}

// Stop stops the scheduler and waits for running jobs to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	log.Info().Msg("Scheduler stopped")
}

// runSettlement settles tracked activity through the same path the
// manual /settle command uses.
func (s *Scheduler) runSettlement(ctx context.Context) {
	res, err := s.scoreService.SettleAndClear(ctx)
	if err != nil {
		log.Error().Err(err).Msg("Scheduled settlement failed")
		return
	}
	if res == nil {
		log.Debug().Msg("Scheduled settlement: nothing to settle")
		return
	}
	if s.notify != nil {
		s.notify(res)
	}
}

// runCodeCleanup deletes expired activation codes.
func (s *Scheduler) runCodeCleanup(ctx context.Context) {
	deleted, err := s.codeRepo.DeleteExpired(ctx)
	if err != nil {
		log.Error().Err(err).Msg("Code cleanup failed")
		return
	}
	if deleted > 0 {
		log.Info().Int64("deleted", deleted).Msg("Expired codes removed")
	}
}

// runExpiryBan bans media accounts whose expiry has passed, locally
// and on the media server.
func (s *Scheduler) runExpiryBan(ctx context.Context) {
	expired, err := s.mediaRepo.ListExpired(ctx)
	if err != nil {
		log.Error().Err(err).Msg("Expiry enforcement failed")
		return
	}

	for _, mu := range expired {
		if err := s.mediaRepo.SetBanned(ctx, mu.ID, true); err != nil {
			log.Error().Err(err).Int64("media_user_id", mu.ID).Msg("Failed to flag expired account")
			continue
		}
		if err := s.media.BanOrUnban(ctx, mu.MediaID, true); err != nil {
			log.Error().Err(err).Str("media_id", mu.MediaID).Msg("Failed to ban expired account on server")
		}
	}

	if len(expired) > 0 {
		log.Info().Int("banned", len(expired)).Msg("Expired media accounts banned")
	}
}
