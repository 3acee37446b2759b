// Package service provides business logic implementations.
package service

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"

	"media-concierge-bot/internal/model"
	"media-concierge-bot/internal/repository"
	"media-concierge-bot/internal/score"
)

// WarnResult carries the outcome of a flood warning for display.
type WarnResult struct {
	UserID       int64
	WarningCount int
	Score        int64
}

// SettlementResult reports one settlement run: the total score
// settled and the delta applied per user. It is returned for building
// a notification message and is never persisted.
type SettlementResult struct {
	TotalSettled int64
	UserDeltas   map[int64]int64
}

// ScoreService implements flood warnings and activity settlement on
// top of the shared message tracker.
type ScoreService struct {
	userRepo  *repository.UserRepository
	tracker   *score.Tracker
	settleCap int64

	// settleMu serializes settlement runs; scheduled and manual
	// triggers go through the same path.
	settleMu sync.Mutex
}

// NewScoreService creates a new ScoreService instance.
func NewScoreService(userRepo *repository.UserRepository, tracker *score.Tracker, settleCap int64) *ScoreService {
	return &ScoreService{
		userRepo:  userRepo,
		tracker:   tracker,
		settleCap: settleCap,
	}
}

// ProcessMessage records one chat message and applies a flood warning
// if the sender crossed the consecutive-message threshold. Ordinary
// message counting only touches the in-memory tracker; the warning
// mutates the persisted record immediately.
func (s *ScoreService) ProcessMessage(ctx context.Context, userID int64) (*WarnResult, error) {
	if !s.tracker.Observe(userID) {
		return nil, nil
	}

	user, err := s.userRepo.UpdateWarnAndScore(ctx, userID, 1)
	if err != nil {
		return nil, fmt.Errorf("failed to apply flood warning: %w", err)
	}

	log.Info().
		Int64("user_id", userID).
		Int("warning_count", user.WarningCount).
		Int64("score", user.Score).
		Msg("Flood warning applied")

	return &WarnResult{
		UserID:       userID,
		WarningCount: user.WarningCount,
		Score:        user.Score,
	}, nil
}

// WarnUser applies a manual warning with the same escalating cost as
// a flood warning.
func (s *ScoreService) WarnUser(ctx context.Context, userID int64) (*WarnResult, error) {
	user, err := s.userRepo.UpdateWarnAndScore(ctx, userID, 1)
	if err != nil {
		return nil, fmt.Errorf("failed to warn user: %w", err)
	}

	return &WarnResult{
		UserID:       userID,
		WarningCount: user.WarningCount,
		Score:        user.Score,
	}, nil
}

// ChangeScore adjusts a user's score by delta (admin operation) and
// returns the updated record.
func (s *ScoreService) ChangeScore(ctx context.Context, userID int64, delta int64) (*model.User, error) {
	user, err := s.userRepo.UpdateScore(ctx, userID, delta)
	if err != nil {
		return nil, fmt.Errorf("failed to change score: %w", err)
	}
	return user, nil
}

// SettleAndClear converts tracked message counts into persisted score
// deltas, applies them in one batch and clears the tracker. Returns
// nil when there is nothing to settle. Scheduled and manual
// settlement both call this method, so they cannot diverge.
func (s *ScoreService) SettleAndClear(ctx context.Context) (*SettlementResult, error) {
	s.settleMu.Lock()
	defer s.settleMu.Unlock()

	counts := s.tracker.Drain()
	if len(counts) == 0 {
		return nil, nil
	}

	deltas := make(map[int64]int64, len(counts))
	var total int64
	for userID, count := range counts {
		delta := capDelta(int64(count), s.settleCap)
		if delta <= 0 {
			// Counts are always >= 1, so this branch should not be hit.
			log.Debug().Int64("user_id", userID).Int("count", count).Msg("Skipping non-positive settlement delta")
			continue
		}
		deltas[userID] = delta
		total += delta
	}

	if len(deltas) == 0 {
		s.tracker.Restore(counts)
		return nil, nil
	}

	if err := s.userRepo.BatchUpdateScores(ctx, deltas); err != nil {
		// The activity is carried into the next cycle instead of
		// being lost with the failed batch.
		s.tracker.Restore(counts)
		return nil, fmt.Errorf("failed to settle scores: %w", err)
	}

	log.Info().
		Int("users", len(deltas)).
		Int64("total", total).
		Msg("Score settlement completed")

	return &SettlementResult{
		TotalSettled: total,
		UserDeltas:   deltas,
	}, nil
}

// capDelta bounds a single user's settlement contribution. Message
// counting with no ceiling would let one burst of activity dominate
// the settled total; rapid-fire spam is punished separately and in
// real time by the flood detector.
func capDelta(count, cap int64) int64 {
	if count > cap {
		return cap
	}
	return count
}
