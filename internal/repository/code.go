package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"media-concierge-bot/internal/model"
)

// Common errors for code operations.
var (
	ErrCodeNotFound = errors.New("activation code not found")
)

// CodeRepository handles activation code persistence. Codes are
// single-use: redeeming one deletes it.
type CodeRepository struct {
	pool *pgxpool.Pool
}

// NewCodeRepository creates a new CodeRepository instance.
func NewCodeRepository(pool *pgxpool.Pool) *CodeRepository {
	return &CodeRepository{pool: pool}
}

// generateCode produces a random code string in XXXX-XXXX-... groups.
func generateCode() string {
	raw := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))
	parts := make([]string, 0, len(raw)/4)
	for i := 0; i+4 <= len(raw); i += 4 {
		parts = append(parts, raw[i:i+4])
	}
	return strings.Join(parts, "-")
}

// Create generates and stores a new activation code of the given type.
// expiresInDays <= 0 creates a code that never expires.
func (r *CodeRepository) Create(ctx context.Context, codeType string, expiresInDays int) (*model.Code, error) {
	return r.create(ctx, r.pool, codeType, expiresInDays)
}

// CreateTx is Create running on the caller's transaction, so a code
// is never left live when the flow that issued it fails to commit.
func (r *CodeRepository) CreateTx(ctx context.Context, tx pgx.Tx, codeType string, expiresInDays int) (*model.Code, error) {
	return r.create(ctx, tx, codeType, expiresInDays)
}

func (r *CodeRepository) create(ctx context.Context, q Querier, codeType string, expiresInDays int) (*model.Code, error) {
	const query = `
		INSERT INTO codes (code, code_type, created_at, expires_at)
		VALUES ($1, $2, NOW(), CASE WHEN $3 > 0 THEN NOW() + make_interval(days => $3) END)
		RETURNING code, code_type, created_at, expires_at
	`

	var code model.Code
	err := q.QueryRow(ctx, query, generateCode(), codeType, expiresInDays).Scan(
		&code.Code,
		&code.Type,
		&code.CreatedAt,
		&code.ExpiresAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create code: %w", err)
	}

	return &code, nil
}

// GetByCode looks up an activation code.
// Returns ErrCodeNotFound if it does not exist.
func (r *CodeRepository) GetByCode(ctx context.Context, codeStr string) (*model.Code, error) {
	const query = `
		SELECT code, code_type, created_at, expires_at
		FROM codes
		WHERE code = $1
	`

	var code model.Code
	err := r.pool.QueryRow(ctx, query, codeStr).Scan(
		&code.Code,
		&code.Type,
		&code.CreatedAt,
		&code.ExpiresAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrCodeNotFound
		}
		return nil, fmt.Errorf("failed to get code: %w", err)
	}

	return &code, nil
}

// Redeem consumes an unexpired activation code, deleting it and
// returning its record. Returns ErrCodeNotFound if the code does not
// exist or has already expired.
func (r *CodeRepository) Redeem(ctx context.Context, codeStr string) (*model.Code, error) {
	return r.redeem(ctx, r.pool, codeStr)
}

// RedeemTx is Redeem running on the caller's transaction, so the code
// row comes back if the renewal it paid for fails to commit.
func (r *CodeRepository) RedeemTx(ctx context.Context, tx pgx.Tx, codeStr string) (*model.Code, error) {
	return r.redeem(ctx, tx, codeStr)
}

func (r *CodeRepository) redeem(ctx context.Context, q Querier, codeStr string) (*model.Code, error) {
	const query = `
		DELETE FROM codes
		WHERE code = $1 AND (expires_at IS NULL OR expires_at > NOW())
		RETURNING code, code_type, created_at, expires_at
	`

	var code model.Code
	err := q.QueryRow(ctx, query, codeStr).Scan(
		&code.Code,
		&code.Type,
		&code.CreatedAt,
		&code.ExpiresAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrCodeNotFound
		}
		return nil, fmt.Errorf("failed to redeem code: %w", err)
	}

	return &code, nil
}

// DeleteExpired removes all expired codes and returns how many were
// deleted.
func (r *CodeRepository) DeleteExpired(ctx context.Context) (int64, error) {
	const query = `DELETE FROM codes WHERE expires_at IS NOT NULL AND expires_at <= NOW()`

	tag, err := r.pool.Exec(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired codes: %w", err)
	}

	return tag.RowsAffected(), nil
}
