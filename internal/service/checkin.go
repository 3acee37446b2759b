package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"media-concierge-bot/internal/media"
	"media-concierge-bot/internal/model"
	"media-concierge-bot/internal/repository"
	"media-concierge-bot/internal/score"
)

// CheckinResult is the outcome of a checkin attempt. A business
// rejection (already checked in today) is a Success=false result, not
// an error; errors are reserved for storage and media-server failures.
type CheckinResult struct {
	Success bool
	Message string
	// PrivateMessage, when non-empty, must be delivered to the user
	// directly rather than posted in the chat (activation codes).
	PrivateMessage string
}

// CheckinService implements daily checkins with the 7th-checkin lucky
// draw.
type CheckinService struct {
	pool      *pgxpool.Pool
	userRepo  *repository.UserRepository
	codeRepo  *repository.CodeRepository
	mediaRepo *repository.MediaRepository
	media     media.Client

	minReward      int
	maxReward      int
	codeExpiryDays int

	rng score.Rand
	now func() time.Time
}

// NewCheckinService creates a new CheckinService instance.
func NewCheckinService(
	pool *pgxpool.Pool,
	userRepo *repository.UserRepository,
	codeRepo *repository.CodeRepository,
	mediaRepo *repository.MediaRepository,
	mediaClient media.Client,
	minReward, maxReward, codeExpiryDays int,
) *CheckinService {
	return &CheckinService{
		pool:           pool,
		userRepo:       userRepo,
		codeRepo:       codeRepo,
		mediaRepo:      mediaRepo,
		media:          mediaClient,
		minReward:      minReward,
		maxReward:      maxReward,
		codeExpiryDays: codeExpiryDays,
		rng:            score.GlobalRand,
		now:            time.Now,
	}
}

// PerformCheckin processes a checkin attempt for userID. Exactly one
// checkin per calendar day is accepted; every accepted checkin either
// grants its drawn reward or falls back to the guaranteed +1.
func (s *CheckinService) PerformCheckin(ctx context.Context, userID int64) (*CheckinResult, error) {
	user, err := s.userRepo.GetOrCreate(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load user for checkin: %w", err)
	}

	if score.CheckedInToday(user.LastCheckin, s.now()) {
		return &CheckinResult{
			Success: false,
			Message: "今天已经签到过了, 请明天再来",
		}, nil
	}

	if !score.IsLuckyCheckin(user.CheckinCount) {
		delta := score.DrawBase(s.rng, s.minReward, s.maxReward)
		updated, err := s.userRepo.UpdateCheckin(ctx, userID, int64(delta))
		if err != nil {
			return nil, fmt.Errorf("failed to record checkin: %w", err)
		}
		return &CheckinResult{
			Success: true,
			Message: fmt.Sprintf("签到成功, 获得 %d 分, 当前积分 %d", delta, updated.Score),
		}, nil
	}

	return s.performLuckyCheckin(ctx, user)
}

// performLuckyCheckin handles the 7th-checkin weighted draw. Every
// branch advances the checkin counter; the code and expiry tiers do
// so with a zero score delta.
func (s *CheckinService) performLuckyCheckin(ctx context.Context, user *model.User) (*CheckinResult, error) {
	outcome := score.DrawLucky(s.rng)

	log.Debug().
		Int64("user_id", user.ID).
		Stringer("outcome", outcome).
		Int("checkin_count", user.CheckinCount).
		Msg("Lucky checkin draw")

	switch outcome {
	case score.LuckyFullCode:
		return s.grantFullCode(ctx, user)

	case score.LuckyHalfCode, score.LuckyWeekCode, score.LuckyDayCode:
		return s.grantExtension(ctx, user, outcome.ExtendDays())

	case score.LuckyDouble:
		delta := score.DrawBase(s.rng, s.minReward, s.maxReward)
		if delta < 0 {
			delta = -delta
		}
		value := int64(delta) * 2
		updated, err := s.userRepo.UpdateCheckin(ctx, user.ID, value)
		if err != nil {
			return nil, fmt.Errorf("failed to record lucky checkin: %w", err)
		}
		return &CheckinResult{
			Success: true,
			Message: fmt.Sprintf("签到成功, 积分翻倍, 获得 %d 分, 当前积分 %d", value, updated.Score),
		}, nil
	}

	// The weight table covers the full probability mass, but an
	// accepted checkin must never silently no-op.
	if _, err := s.userRepo.UpdateCheckin(ctx, user.ID, 1); err != nil {
		return nil, fmt.Errorf("failed to record checkin: %w", err)
	}
	return &CheckinResult{
		Success: true,
		Message: "签到成功, 获得保底 1 分",
	}, nil
}

// grantFullCode issues a signup or renew activation code (50/50) and
// delivers it privately. The code and the checkin commit in one
// transaction, so a failure leaves neither a live code nor a spent
// checkin behind.
func (s *CheckinService) grantFullCode(ctx context.Context, user *model.User) (*CheckinResult, error) {
	codeType := model.CodeTypeSignup
	if s.rng.Intn(2) == 0 {
		codeType = model.CodeTypeRenew
	}

	var code *model.Code
	err := repository.InTx(ctx, s.pool, func(tx pgx.Tx) error {
		var err error
		code, err = s.codeRepo.CreateTx(ctx, tx, codeType, s.codeExpiryDays)
		if err != nil {
			return fmt.Errorf("failed to issue activation code: %w", err)
		}
		if _, err := s.userRepo.UpdateCheckinTx(ctx, tx, user.ID, 0); err != nil {
			return fmt.Errorf("failed to record checkin: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	codeName := "注册码"
	if codeType == model.CodeTypeRenew {
		codeName = "续期码"
	}

	return &CheckinResult{
		Success:        true,
		Message:        fmt.Sprintf("恭喜抽中大奖, %s已通过私信发送", codeName),
		PrivateMessage: fmt.Sprintf("签到大奖! 您的%s为:\n%s", codeName, code.Code),
	}, nil
}

// grantExtension extends the user's linked media account by days, or
// converts the extension into score when no account is linked.
func (s *CheckinService) grantExtension(ctx context.Context, user *model.User, days int) (*CheckinResult, error) {
	mu, err := s.mediaRepo.GetByUserID(ctx, user.ID)
	if err != nil && !errors.Is(err, repository.ErrMediaUserNotFound) {
		return nil, fmt.Errorf("failed to look up media account: %w", err)
	}

	if mu != nil {
		// Extension and checkin commit together; a failure on either
		// leaves the user free to check in again without keeping the
		// extension.
		err := repository.InTx(ctx, s.pool, func(tx pgx.Tx) error {
			if _, err := s.mediaRepo.ExtendExpiryTx(ctx, tx, mu.ID, days); err != nil {
				return fmt.Errorf("failed to extend media account: %w", err)
			}
			if _, err := s.userRepo.UpdateCheckinTx(ctx, tx, user.ID, 0); err != nil {
				return fmt.Errorf("failed to record checkin: %w", err)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
		if mu.IsBanned {
			// The local ban flag is already lifted; a remote failure
			// here is recoverable by an admin and must not void the
			// checkin.
			if err := s.media.BanOrUnban(ctx, mu.MediaID, false); err != nil {
				log.Error().Err(err).Str("media_id", mu.MediaID).Msg("Failed to unban media account on server")
			}
		}
		return &CheckinResult{
			Success: true,
			Message: fmt.Sprintf("恭喜中奖, 媒体账户已延长 %d 天有效期", days),
		}, nil
	}

	// No linked account: convert the extension into score at the
	// current population-derived renew cost. Fetched fresh per draw,
	// the value moves with the whole user population.
	renewScore, err := s.userRepo.GetRenewScore(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get renew score: %w", err)
	}

	value := score.ConvertScore(renewScore, days)
	updated, err := s.userRepo.UpdateCheckin(ctx, user.ID, value)
	if err != nil {
		return nil, fmt.Errorf("failed to record lucky checkin: %w", err)
	}

	return &CheckinResult{
		Success: true,
		Message: fmt.Sprintf("恭喜中奖 %d 天时长, 未绑定媒体账户, 等比折算为 %d 分, 当前积分 %d", days, value, updated.Score),
	}, nil
}
