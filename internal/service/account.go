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
)

// renewCodeDays is the expiry extension granted by one renew code.
const renewCodeDays = 30

// ErrAlreadyLinked is returned when the user already has a linked
// media account.
var ErrAlreadyLinked = errors.New("media account already linked")

// RedeemResult is the outcome of a code redemption attempt. Like
// checkins, business rejections are Success=false results.
type RedeemResult struct {
	Success bool
	Message string
}

// AccountService exposes user profile and ranking queries, media
// account linking and activation code redemption.
type AccountService struct {
	pool      *pgxpool.Pool
	userRepo  *repository.UserRepository
	codeRepo  *repository.CodeRepository
	mediaRepo *repository.MediaRepository
	media     media.Client
}

// NewAccountService creates a new AccountService instance.
func NewAccountService(
	pool *pgxpool.Pool,
	userRepo *repository.UserRepository,
	codeRepo *repository.CodeRepository,
	mediaRepo *repository.MediaRepository,
	mediaClient media.Client,
) *AccountService {
	return &AccountService{
		pool:      pool,
		userRepo:  userRepo,
		codeRepo:  codeRepo,
		mediaRepo: mediaRepo,
		media:     mediaClient,
	}
}

// GetProfile returns a user's score record and their linked media
// account, if any. The score record is created on first use.
func (s *AccountService) GetProfile(ctx context.Context, userID int64) (*model.User, *model.MediaUser, error) {
	user, err := s.userRepo.GetOrCreate(ctx, userID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load profile: %w", err)
	}

	mu, err := s.mediaRepo.GetByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrMediaUserNotFound) {
			return user, nil, nil
		}
		return nil, nil, fmt.Errorf("failed to load media account: %w", err)
	}

	return user, mu, nil
}

// GetTopUsers retrieves the top users by score.
func (s *AccountService) GetTopUsers(ctx context.Context, limit int) ([]*model.User, error) {
	return s.userRepo.GetTopUsers(ctx, limit)
}

// GetRenewScore returns the current population-derived renew cost.
func (s *AccountService) GetRenewScore(ctx context.Context) (int64, error) {
	return s.userRepo.GetRenewScore(ctx)
}

// RedeemCode consumes a renew code for the user's linked media
// account. Eligibility is checked before the code is consumed so an
// ineligible attempt never burns the code.
func (s *AccountService) RedeemCode(ctx context.Context, userID int64, codeStr string) (*RedeemResult, error) {
	code, err := s.codeRepo.GetByCode(ctx, codeStr)
	if err != nil {
		if errors.Is(err, repository.ErrCodeNotFound) {
			return &RedeemResult{Message: "❌ 无效的兑换码"}, nil
		}
		return nil, fmt.Errorf("failed to look up code: %w", err)
	}

	if code.Type != model.CodeTypeRenew {
		// Signup codes are handled by an admin when the media account
		// is provisioned.
		return &RedeemResult{Message: "❌ 注册码无法自助兑换, 请联系管理员开通账户"}, nil
	}

	mu, err := s.mediaRepo.GetByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrMediaUserNotFound) {
			return &RedeemResult{Message: "❌ 尚未绑定媒体账户, 无法续期"}, nil
		}
		return nil, fmt.Errorf("failed to look up media account: %w", err)
	}

	// Consume and extension commit in one transaction: a failed
	// extension rolls the code row back instead of burning it. The
	// Redeem also rejects codes that expired or were raced away since
	// the lookup.
	var extended *model.MediaUser
	err = repository.InTx(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := s.codeRepo.RedeemTx(ctx, tx, codeStr); err != nil {
			return err
		}
		var err error
		extended, err = s.mediaRepo.ExtendExpiryTx(ctx, tx, mu.ID, renewCodeDays)
		if err != nil {
			return fmt.Errorf("failed to extend media account: %w", err)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, repository.ErrCodeNotFound) {
			return &RedeemResult{Message: "❌ 兑换码已过期或已被使用"}, nil
		}
		return nil, err
	}

	if mu.IsBanned {
		if err := s.media.BanOrUnban(ctx, mu.MediaID, false); err != nil {
			log.Error().Err(err).Str("media_id", mu.MediaID).Msg("Failed to unban media account on server")
		}
	}

	log.Info().
		Int64("user_id", userID).
		Str("code", codeStr).
		Time("expires_at", extended.ExpiresAt).
		Msg("Renew code redeemed")

	return &RedeemResult{
		Success: true,
		Message: fmt.Sprintf("✅ 续期成功, 账户有效期至 %s", extended.ExpiresAt.Format("2006-01-02")),
	}, nil
}

// LinkAccount links a media-server account to a Telegram user with an
// initial expiry of days from now. At most one account per user.
func (s *AccountService) LinkAccount(ctx context.Context, userID int64, mediaID, mediaName string, days int) (*model.MediaUser, error) {
	if _, err := s.mediaRepo.GetByUserID(ctx, userID); err == nil {
		return nil, ErrAlreadyLinked
	} else if !errors.Is(err, repository.ErrMediaUserNotFound) {
		return nil, fmt.Errorf("failed to look up media account: %w", err)
	}

	mu, err := s.mediaRepo.Create(ctx, userID, mediaID, mediaName, time.Now().AddDate(0, 0, days))
	if err != nil {
		return nil, fmt.Errorf("failed to link media account: %w", err)
	}

	log.Info().
		Int64("user_id", userID).
		Str("media_id", mediaID).
		Msg("Media account linked")

	return mu, nil
}
