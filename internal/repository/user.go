// Package repository provides data access layer implementations.
package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"media-concierge-bot/internal/model"
)

// Common errors for repository operations.
var (
	ErrUserNotFound = errors.New("user not found")
)

const userColumns = "id, score, checkin_count, warning_count, last_checkin, created_at, updated_at"

// UserRepository handles user score record persistence.
//
// Every mutation is a single upsert statement, so a record is created
// lazily on the user's first interaction and concurrent callers
// cannot observe a partially applied change. Score is clamped at zero
// by every mutation.
type UserRepository struct {
	pool *pgxpool.Pool
}

// NewUserRepository creates a new UserRepository instance.
func NewUserRepository(pool *pgxpool.Pool) *UserRepository {
	return &UserRepository{pool: pool}
}

func scanUser(row pgx.Row) (*model.User, error) {
	var user model.User
	err := row.Scan(
		&user.ID,
		&user.Score,
		&user.CheckinCount,
		&user.WarningCount,
		&user.LastCheckin,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// GetByID retrieves a user by their Telegram ID.
// Returns ErrUserNotFound if the user does not exist.
func (r *UserRepository) GetByID(ctx context.Context, userID int64) (*model.User, error) {
	const query = `
		SELECT ` + userColumns + `
		FROM users
		WHERE id = $1
	`

	user, err := scanUser(r.pool.QueryRow(ctx, query, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	return user, nil
}

// GetOrCreate retrieves a user by Telegram ID, creating an empty
// record if none exists. It never returns a nil user on success.
func (r *UserRepository) GetOrCreate(ctx context.Context, userID int64) (*model.User, error) {
	const query = `
		INSERT INTO users (id, created_at, updated_at)
		VALUES ($1, NOW(), NOW())
		ON CONFLICT (id) DO UPDATE SET id = EXCLUDED.id
		RETURNING ` + userColumns + `
	`

	user, err := scanUser(r.pool.QueryRow(ctx, query, userID))
	if err != nil {
		return nil, fmt.Errorf("failed to get or create user: %w", err)
	}

	return user, nil
}

// UpdateCheckin applies a successful checkin: increments the checkin
// counter, stamps last_checkin and adds delta to the score, clamped
// at zero. The record is created if absent.
func (r *UserRepository) UpdateCheckin(ctx context.Context, userID int64, delta int64) (*model.User, error) {
	return r.updateCheckin(ctx, r.pool, userID, delta)
}

// UpdateCheckinTx is UpdateCheckin running on the caller's
// transaction, for reward flows that must commit the checkin together
// with the reward it granted.
func (r *UserRepository) UpdateCheckinTx(ctx context.Context, tx pgx.Tx, userID int64, delta int64) (*model.User, error) {
	return r.updateCheckin(ctx, tx, userID, delta)
}

func (r *UserRepository) updateCheckin(ctx context.Context, q Querier, userID int64, delta int64) (*model.User, error) {
	const query = `
		INSERT INTO users (id, score, checkin_count, last_checkin, created_at, updated_at)
		VALUES ($1, GREATEST($2, 0), 1, NOW(), NOW(), NOW())
		ON CONFLICT (id) DO UPDATE SET
			checkin_count = users.checkin_count + 1,
			score = GREATEST(users.score + $2, 0),
			last_checkin = NOW(),
			updated_at = NOW()
		RETURNING ` + userColumns + `
	`

	user, err := scanUser(q.QueryRow(ctx, query, userID, delta))
	if err != nil {
		return nil, fmt.Errorf("failed to update checkin: %w", err)
	}

	return user, nil
}

// UpdateWarnAndScore increments the warning counter and deducts the
// NEW warning count from the score, clamped at zero. The escalating
// cost (1st warning costs 1, 2nd costs 2, ...) is intentional. The
// record is created if absent, in which case the score stays at zero.
func (r *UserRepository) UpdateWarnAndScore(ctx context.Context, userID int64, increment int) (*model.User, error) {
	const query = `
		INSERT INTO users (id, warning_count, created_at, updated_at)
		VALUES ($1, GREATEST($2, 0), NOW(), NOW())
		ON CONFLICT (id) DO UPDATE SET
			warning_count = users.warning_count + $2,
			score = GREATEST(users.score - (users.warning_count + $2), 0),
			updated_at = NOW()
		RETURNING ` + userColumns + `
	`

	user, err := scanUser(r.pool.QueryRow(ctx, query, userID, increment))
	if err != nil {
		return nil, fmt.Errorf("failed to update warning: %w", err)
	}

	return user, nil
}

// UpdateScore adds delta to a user's score, clamped at zero. The
// record is created if absent.
func (r *UserRepository) UpdateScore(ctx context.Context, userID int64, delta int64) (*model.User, error) {
	const query = `
		INSERT INTO users (id, score, created_at, updated_at)
		VALUES ($1, GREATEST($2, 0), NOW(), NOW())
		ON CONFLICT (id) DO UPDATE SET
			score = GREATEST(users.score + $2, 0),
			updated_at = NOW()
		RETURNING ` + userColumns + `
	`

	user, err := scanUser(r.pool.QueryRow(ctx, query, userID, delta))
	if err != nil {
		return nil, fmt.Errorf("failed to update score: %w", err)
	}

	return user, nil
}

// BatchUpdateScores applies a map of score deltas in one database
// transaction: existing users get their delta added, unknown users
// get a fresh record holding the delta. All-or-nothing.
func (r *UserRepository) BatchUpdateScores(ctx context.Context, deltas map[int64]int64) error {
	if len(deltas) == 0 {
		return nil
	}

	const query = `
		INSERT INTO users (id, score, created_at, updated_at)
		VALUES ($1, GREATEST($2, 0), NOW(), NOW())
		ON CONFLICT (id) DO UPDATE SET
			score = GREATEST(users.score + $2, 0),
			updated_at = NOW()
	`

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin batch update: %w", err)
	}
	defer tx.Rollback(ctx)

	batch := &pgx.Batch{}
	for userID, delta := range deltas {
		batch.Queue(query, userID, delta)
	}

	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("failed to apply batch update: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit batch update: %w", err)
	}

	return nil
}

// GetRenewScore returns the current renewal cost basis: the average
// score of users holding more than 10 points, floored at 100. The
// floor is a business rule, not error suppression; it keeps the cost
// sane while the population is small.
func (r *UserRepository) GetRenewScore(ctx context.Context) (int64, error) {
	const query = `SELECT COALESCE(AVG(score), 0) FROM users WHERE score > 10`

	var avg float64
	if err := r.pool.QueryRow(ctx, query).Scan(&avg); err != nil {
		return 0, fmt.Errorf("failed to get renew score: %w", err)
	}

	if avg < 100 {
		return 100, nil
	}
	return int64(avg), nil
}

// GetTopUsers retrieves the top N users by score.
func (r *UserRepository) GetTopUsers(ctx context.Context, limit int) ([]*model.User, error) {
	const query = `
		SELECT ` + userColumns + `
		FROM users
		ORDER BY score DESC
		LIMIT $1
	`

	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get top users: %w", err)
	}
	defer rows.Close()

	var users []*model.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, user)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating users: %w", err)
	}

	return users, nil
}
