// Package repository provides data access layer implementations.
// Tests use testcontainers-go to spin up a PostgreSQL container.
package repository

import (
	"context"
	"os/exec"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"media-concierge-bot/internal/model"
)

// checkDockerAvailable checks if Docker is available and running
func checkDockerAvailable() bool {
	cmd := exec.Command("docker", "info")
	err := cmd.Run()
	return err == nil
}

// setupTestDB creates a PostgreSQL container and returns a connection pool
// Skips the test if Docker is not available
func setupTestDB(t *testing.T) (*pgxpool.Pool, func()) {
	if !checkDockerAvailable() {
		t.Skip("Docker is not available, skipping integration test")
	}

	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:15-alpine",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("testuser"),
		postgres.WithPassword("testpass"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err)

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	pool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err)

	err = runTestMigrations(ctx, pool)
	require.NoError(t, err)

	cleanup := func() {
		pool.Close()
		_ = pgContainer.Terminate(ctx)
	}

	return pool, cleanup
}

// runTestMigrations applies the schema used in production.
func runTestMigrations(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS users (
			id BIGINT PRIMARY KEY,
			score BIGINT NOT NULL DEFAULT 0 CHECK (score >= 0),
			checkin_count INT NOT NULL DEFAULT 0,
			warning_count INT NOT NULL DEFAULT 0,
			last_checkin TIMESTAMPTZ,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`)
	if err != nil {
		return err
	}

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
		CREATE UNIQUE INDEX IF NOT EXISTS idx_media_users_user ON media_users(user_id)
	`)
	if err != nil {
		return err
	}

	_, err = pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS codes (
			code VARCHAR(64) PRIMARY KEY,
			code_type VARCHAR(16) NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			expires_at TIMESTAMPTZ
		)
	`)
	return err
}

func TestUserRepository_GetOrCreate(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewUserRepository(pool)
	ctx := context.Background()

	// First call creates a fresh record.
	user, err := repo.GetOrCreate(ctx, 12345)
	require.NoError(t, err)
	assert.Equal(t, int64(12345), user.ID)
	assert.Equal(t, int64(0), user.Score)
	assert.Equal(t, 0, user.CheckinCount)
	assert.Equal(t, 0, user.WarningCount)
	assert.Nil(t, user.LastCheckin)

	// Mutate, then get again: the existing record is returned intact.
	_, err = repo.UpdateScore(ctx, 12345, 50)
	require.NoError(t, err)

	again, err := repo.GetOrCreate(ctx, 12345)
	require.NoError(t, err)
	assert.Equal(t, int64(50), again.Score)
}

func TestUserRepository_GetByID_NotFound(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewUserRepository(pool)

	_, err := repo.GetByID(context.Background(), 99999)
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestUserRepository_UpdateCheckin(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewUserRepository(pool)
	ctx := context.Background()

	// First checkin on a fresh user creates the record.
	user, err := repo.UpdateCheckin(ctx, 100, 5)
	require.NoError(t, err)
	assert.Equal(t, int64(5), user.Score)
	assert.Equal(t, 1, user.CheckinCount)
	require.NotNil(t, user.LastCheckin)

	// A negative delta can push the score down but not below zero.
	user, err = repo.UpdateCheckin(ctx, 100, -2)
	require.NoError(t, err)
	assert.Equal(t, int64(3), user.Score)
	assert.Equal(t, 2, user.CheckinCount)

	user, err = repo.UpdateCheckin(ctx, 100, -100)
	require.NoError(t, err)
	assert.Equal(t, int64(0), user.Score)
	assert.Equal(t, 3, user.CheckinCount)
}

func TestUserRepository_UpdateCheckin_NegativeFirstCheckin(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewUserRepository(pool)

	// A fresh user drawing a negative reward lands on zero.
	user, err := repo.UpdateCheckin(context.Background(), 200, -2)
	require.NoError(t, err)
	assert.Equal(t, int64(0), user.Score)
	assert.Equal(t, 1, user.CheckinCount)
}

func TestUserRepository_UpdateWarnAndScore(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewUserRepository(pool)
	ctx := context.Background()

	_, err := repo.UpdateScore(ctx, 300, 10)
	require.NoError(t, err)

	// Escalating cost: warning n deducts n points.
	user, err := repo.UpdateWarnAndScore(ctx, 300, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, user.WarningCount)
	assert.Equal(t, int64(9), user.Score)

	user, err = repo.UpdateWarnAndScore(ctx, 300, 1)
	require.NoError(t, err)
	assert.Equal(t, 2, user.WarningCount)
	assert.Equal(t, int64(7), user.Score)

	user, err = repo.UpdateWarnAndScore(ctx, 300, 1)
	require.NoError(t, err)
	assert.Equal(t, 3, user.WarningCount)
	assert.Equal(t, int64(4), user.Score)
}

func TestUserRepository_UpdateWarnAndScore_CreatesRecord(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewUserRepository(pool)

	// Warning an unknown user creates their record with the warning
	// on it and the score at zero.
	user, err := repo.UpdateWarnAndScore(context.Background(), 400, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, user.WarningCount)
	assert.Equal(t, int64(0), user.Score)
}

func TestUserRepository_UpdateWarnAndScore_ClampsAtZero(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewUserRepository(pool)
	ctx := context.Background()

	_, err := repo.UpdateScore(ctx, 500, 1)
	require.NoError(t, err)

	user, err := repo.UpdateWarnAndScore(ctx, 500, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(0), user.Score)

	user, err = repo.UpdateWarnAndScore(ctx, 500, 1)
	require.NoError(t, err)
	assert.Equal(t, 2, user.WarningCount)
	assert.Equal(t, int64(0), user.Score)
}

func TestUserRepository_UpdateScore_ClampsAtZero(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewUserRepository(pool)
	ctx := context.Background()

	user, err := repo.UpdateScore(ctx, 600, 30)
	require.NoError(t, err)
	assert.Equal(t, int64(30), user.Score)

	user, err = repo.UpdateScore(ctx, 600, -100)
	require.NoError(t, err)
	assert.Equal(t, int64(0), user.Score)
}

func TestUserRepository_BatchUpdateScores(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewUserRepository(pool)
	ctx := context.Background()

	// One existing user, one unknown: the batch upserts both.
	_, err := repo.UpdateScore(ctx, 700, 10)
	require.NoError(t, err)

	err = repo.BatchUpdateScores(ctx, map[int64]int64{
		700: 5,
		701: 20,
	})
	require.NoError(t, err)

	user, err := repo.GetByID(ctx, 700)
	require.NoError(t, err)
	assert.Equal(t, int64(15), user.Score)

	user, err = repo.GetByID(ctx, 701)
	require.NoError(t, err)
	assert.Equal(t, int64(20), user.Score)
}

func TestUserRepository_BatchUpdateScores_Empty(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewUserRepository(pool)
	assert.NoError(t, repo.BatchUpdateScores(context.Background(), nil))
}

func TestUserRepository_GetRenewScore(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewUserRepository(pool)
	ctx := context.Background()

	// Empty population: the floor applies.
	renew, err := repo.GetRenewScore(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(100), renew)

	// Users at or below 10 points do not count toward the average.
	_, err = repo.UpdateScore(ctx, 800, 10)
	require.NoError(t, err)
	_, err = repo.UpdateScore(ctx, 801, 5)
	require.NoError(t, err)

	renew, err = repo.GetRenewScore(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(100), renew)

	// Average above the floor: (200 + 400) / 2 = 300.
	_, err = repo.UpdateScore(ctx, 802, 200)
	require.NoError(t, err)
	_, err = repo.UpdateScore(ctx, 803, 400)
	require.NoError(t, err)

	renew, err = repo.GetRenewScore(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(300), renew)
}

func TestUserRepository_GetTopUsers(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewUserRepository(pool)
	ctx := context.Background()

	for i, s := range []int64{30, 10, 50, 20} {
		_, err := repo.UpdateScore(ctx, int64(900+i), s)
		require.NoError(t, err)
	}

	users, err := repo.GetTopUsers(ctx, 3)
	require.NoError(t, err)
	require.Len(t, users, 3)
	assert.Equal(t, int64(50), users[0].Score)
	assert.Equal(t, int64(30), users[1].Score)
	assert.Equal(t, int64(20), users[2].Score)
}

func TestCodeRepository_CreateAndRedeem(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewCodeRepository(pool)
	ctx := context.Background()

	code, err := repo.Create(ctx, model.CodeTypeSignup, 30)
	require.NoError(t, err)
	assert.Equal(t, model.CodeTypeSignup, code.Type)
	assert.NotEmpty(t, code.Code)
	require.NotNil(t, code.ExpiresAt)
	assert.True(t, code.ExpiresAt.After(time.Now()))

	// Redeeming consumes the code.
	redeemed, err := repo.Redeem(ctx, code.Code)
	require.NoError(t, err)
	assert.Equal(t, code.Code, redeemed.Code)

	_, err = repo.Redeem(ctx, code.Code)
	assert.ErrorIs(t, err, ErrCodeNotFound)
}

func TestCodeRepository_Create_NoExpiry(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewCodeRepository(pool)

	code, err := repo.Create(context.Background(), model.CodeTypeRenew, 0)
	require.NoError(t, err)
	assert.Nil(t, code.ExpiresAt)
}

func TestCodeRepository_Redeem_Expired(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewCodeRepository(pool)
	ctx := context.Background()

	code, err := repo.Create(ctx, model.CodeTypeRenew, 30)
	require.NoError(t, err)

	// Force the code into the past.
	_, err = pool.Exec(ctx, `UPDATE codes SET expires_at = NOW() - INTERVAL '1 hour' WHERE code = $1`, code.Code)
	require.NoError(t, err)

	_, err = repo.Redeem(ctx, code.Code)
	assert.ErrorIs(t, err, ErrCodeNotFound)
}

func TestCodeRepository_DeleteExpired(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewCodeRepository(pool)
	ctx := context.Background()

	expired, err := repo.Create(ctx, model.CodeTypeSignup, 30)
	require.NoError(t, err)
	_, err = pool.Exec(ctx, `UPDATE codes SET expires_at = NOW() - INTERVAL '1 hour' WHERE code = $1`, expired.Code)
	require.NoError(t, err)

	fresh, err := repo.Create(ctx, model.CodeTypeSignup, 30)
	require.NoError(t, err)
	forever, err := repo.Create(ctx, model.CodeTypeRenew, 0)
	require.NoError(t, err)

	deleted, err := repo.DeleteExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	_, err = repo.GetByCode(ctx, fresh.Code)
	assert.NoError(t, err)
	_, err = repo.GetByCode(ctx, forever.Code)
	assert.NoError(t, err)
}

func TestMediaRepository_CreateAndGet(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewMediaRepository(pool)
	ctx := context.Background()

	expires := time.Now().Add(30 * 24 * time.Hour)
	mu, err := repo.Create(ctx, 12345, "emby-abc", "alice", expires)
	require.NoError(t, err)
	assert.Equal(t, int64(12345), mu.UserID)
	assert.Equal(t, "emby-abc", mu.MediaID)
	assert.False(t, mu.IsBanned)

	got, err := repo.GetByUserID(ctx, 12345)
	require.NoError(t, err)
	assert.Equal(t, mu.ID, got.ID)

	_, err = repo.GetByUserID(ctx, 99999)
	assert.ErrorIs(t, err, ErrMediaUserNotFound)
}

func TestMediaRepository_ExtendExpiry(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewMediaRepository(pool)
	ctx := context.Background()

	expires := time.Now().Add(24 * time.Hour).Truncate(time.Second)
	mu, err := repo.Create(ctx, 100, "emby-100", "bob", expires)
	require.NoError(t, err)

	require.NoError(t, repo.SetBanned(ctx, mu.ID, true))

	// Extending also lifts the ban flag.
	extended, err := repo.ExtendExpiry(ctx, mu.ID, 7)
	require.NoError(t, err)
	assert.False(t, extended.IsBanned)
	assert.WithinDuration(t, expires.Add(7*24*time.Hour), extended.ExpiresAt, time.Second)

	_, err = repo.ExtendExpiry(ctx, 99999, 7)
	assert.ErrorIs(t, err, ErrMediaUserNotFound)
}

func TestMediaRepository_SetBanned_NotFound(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewMediaRepository(pool)
	err := repo.SetBanned(context.Background(), 99999, true)
	assert.ErrorIs(t, err, ErrMediaUserNotFound)
}

func TestMediaRepository_ListExpired(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewMediaRepository(pool)
	ctx := context.Background()

	// Expired and unbanned: should be listed.
	past := time.Now().Add(-time.Hour)
	expired, err := repo.Create(ctx, 100, "emby-100", "a", past)
	require.NoError(t, err)

	// Expired but already banned: already handled.
	banned, err := repo.Create(ctx, 200, "emby-200", "b", past)
	require.NoError(t, err)
	require.NoError(t, repo.SetBanned(ctx, banned.ID, true))

	// Still valid.
	_, err = repo.Create(ctx, 300, "emby-300", "c", time.Now().Add(time.Hour))
	require.NoError(t, err)

	list, err := repo.ListExpired(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, expired.ID, list[0].ID)
}
