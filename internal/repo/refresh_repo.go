package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/signalix/accounts/internal/model"
)

// RefreshRepo defines the interface for refresh token repository operations
type RefreshRepo interface {
	Rotate(ctx context.Context, accountID uuid.UUID, tokenHash string, expiresAt time.Time) (model.RefreshToken, error)
	FindValidByHash(ctx context.Context, tokenHash string) (model.RefreshToken, error)
	RevokeAllForAccount(ctx context.Context, accountID uuid.UUID) (int64, error)
}

type refreshRepo struct {
	db *sql.DB
}

// NewRefreshRepo creates a new RefreshRepo instance
func NewRefreshRepo(db *sql.DB) RefreshRepo {
	return &refreshRepo{db: db}
}

// Rotate revokes every active refresh token of the account and inserts a new one in a single
// transaction. An advisory lock serializes concurrent rotations for the same account so the
// account always ends with exactly one active token.
func (r *refreshRepo) Rotate(ctx context.Context, accountID uuid.UUID, tokenHash string, expiresAt time.Time) (model.RefreshToken, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return model.RefreshToken{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(2, hashtext($1))`, accountID.String())
	if err != nil {
		return model.RefreshToken{}, fmt.Errorf("advisory lock: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE refresh_tokens
		SET revoked = TRUE
		WHERE account_id = $1 AND revoked = FALSE
	`, accountID)
	if err != nil {
		return model.RefreshToken{}, fmt.Errorf("revoke existing tokens: %w", err)
	}

	t := model.RefreshToken{
		AccountID: accountID,
		TokenHash: tokenHash,
		ExpiresAt: expiresAt,
	}
	err = tx.QueryRowContext(ctx, `
		INSERT INTO refresh_tokens (account_id, token_hash, expires_at)
		VALUES ($1, $2, $3)
		RETURNING id, created_at
	`, accountID, tokenHash, expiresAt).Scan(&t.ID, &t.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return model.RefreshToken{}, fmt.Errorf("insert refresh token: %w", ErrDuplicate)
		}
		return model.RefreshToken{}, fmt.Errorf("insert refresh token: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return model.RefreshToken{}, fmt.Errorf("commit: %w", err)
	}
	return t, nil
}

// FindValidByHash returns the token whose hash matches and whose expiry is still in the future.
// Revoked rows are returned; callers check Revoked. Missing and expired rows both yield ErrNotFound.
func (r *refreshRepo) FindValidByHash(ctx context.Context, tokenHash string) (model.RefreshToken, error) {
	var t model.RefreshToken
	err := r.db.QueryRowContext(ctx, `
		SELECT id, account_id, token_hash, expires_at, revoked, created_at
		FROM refresh_tokens
		WHERE token_hash = $1 AND expires_at > now()
	`, tokenHash).Scan(
		&t.ID,
		&t.AccountID,
		&t.TokenHash,
		&t.ExpiresAt,
		&t.Revoked,
		&t.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.RefreshToken{}, fmt.Errorf("refresh token: %w", ErrNotFound)
		}
		return model.RefreshToken{}, fmt.Errorf("find refresh token: %w", err)
	}
	return t, nil
}

// RevokeAllForAccount revokes all active refresh tokens of an account and returns how many were revoked
func (r *refreshRepo) RevokeAllForAccount(ctx context.Context, accountID uuid.UUID) (int64, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE refresh_tokens SET revoked = TRUE WHERE account_id = $1 AND revoked = FALSE
	`, accountID)
	if err != nil {
		return 0, fmt.Errorf("revoke all tokens for account: %w", err)
	}
	n, _ := result.RowsAffected()
	return n, nil
}
