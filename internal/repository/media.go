package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"media-concierge-bot/internal/model"
)

// Common errors for media account operations.
var (
	ErrMediaUserNotFound = errors.New("media account not found")
)

const mediaColumns = "id, user_id, media_id, media_name, expires_at, is_banned, created_at"

// MediaRepository handles linked media account persistence.
type MediaRepository struct {
	pool *pgxpool.Pool
}

// NewMediaRepository creates a new MediaRepository instance.
func NewMediaRepository(pool *pgxpool.Pool) *MediaRepository {
	return &MediaRepository{pool: pool}
}

func scanMediaUser(row pgx.Row) (*model.MediaUser, error) {
	var mu model.MediaUser
	err := row.Scan(
		&mu.ID,
		&mu.UserID,
		&mu.MediaID,
		&mu.MediaName,
		&mu.ExpiresAt,
		&mu.IsBanned,
		&mu.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &mu, nil
}

// Create links a media account to a Telegram user.
func (r *MediaRepository) Create(ctx context.Context, userID int64, mediaID, mediaName string, expiresAt time.Time) (*model.MediaUser, error) {
	const query = `
		INSERT INTO media_users (user_id, media_id, media_name, expires_at, created_at)
		VALUES ($1, $2, $3, $4, NOW())
		RETURNING ` + mediaColumns + `
	`

	mu, err := scanMediaUser(r.pool.QueryRow(ctx, query, userID, mediaID, mediaName, expiresAt))
	if err != nil {
		return nil, fmt.Errorf("failed to create media account: %w", err)
	}

	return mu, nil
}

// GetByUserID retrieves the media account linked to a Telegram user.
// Returns ErrMediaUserNotFound if the user has no linked account.
func (r *MediaRepository) GetByUserID(ctx context.Context, userID int64) (*model.MediaUser, error) {
	const query = `
		SELECT ` + mediaColumns + `
		FROM media_users
		WHERE user_id = $1
	`

	mu, err := scanMediaUser(r.pool.QueryRow(ctx, query, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrMediaUserNotFound
		}
		return nil, fmt.Errorf("failed to get media account: %w", err)
	}

	return mu, nil
}

// ExtendExpiry pushes the account's expiry out by the given number of
// days and lifts any ban in the same statement, so a renewed account
// is never left in a banned state.
func (r *MediaRepository) ExtendExpiry(ctx context.Context, id int64, days int) (*model.MediaUser, error) {
	return r.extendExpiry(ctx, r.pool, id, days)
}

// ExtendExpiryTx is ExtendExpiry running on the caller's transaction,
// for flows that must commit the extension together with whatever
// paid for it.
func (r *MediaRepository) ExtendExpiryTx(ctx context.Context, tx pgx.Tx, id int64, days int) (*model.MediaUser, error) {
	return r.extendExpiry(ctx, tx, id, days)
}

func (r *MediaRepository) extendExpiry(ctx context.Context, q Querier, id int64, days int) (*model.MediaUser, error) {
	const query = `
		UPDATE media_users
		SET expires_at = expires_at + make_interval(days => $2),
			is_banned = FALSE
		WHERE id = $1
		RETURNING ` + mediaColumns + `
	`

	mu, err := scanMediaUser(q.QueryRow(ctx, query, id, days))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrMediaUserNotFound
		}
		return nil, fmt.Errorf("failed to extend expiry: %w", err)
	}

	return mu, nil
}

// SetBanned updates the account's ban flag.
func (r *MediaRepository) SetBanned(ctx context.Context, id int64, banned bool) error {
	const query = `UPDATE media_users SET is_banned = $2 WHERE id = $1`

	tag, err := r.pool.Exec(ctx, query, id, banned)
	if err != nil {
		return fmt.Errorf("failed to set ban flag: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrMediaUserNotFound
	}

	return nil
}

// ListExpired returns accounts whose expiry has passed and that are
// not yet banned.
func (r *MediaRepository) ListExpired(ctx context.Context) ([]*model.MediaUser, error) {
	const query = `
		SELECT ` + mediaColumns + `
		FROM media_users
		WHERE expires_at <= NOW() AND is_banned = FALSE
	`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list expired accounts: %w", err)
	}
	defer rows.Close()

	var accounts []*model.MediaUser
	for rows.Next() {
		mu, err := scanMediaUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan media account: %w", err)
		}
		accounts = append(accounts, mu)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating media accounts: %w", err)
	}

	return accounts, nil
}
