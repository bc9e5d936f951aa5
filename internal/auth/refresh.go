package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/signalix/accounts/internal/model"
	"github.com/signalix/accounts/internal/repo"
)

const (
	refreshTokenBytes  = 32
	maxIssueCollisions = 3
)

// GenerateRefreshToken returns a random Base64URL token (32 bytes) and its SHA256 hash as hex
func GenerateRefreshToken() (token string, hashHex string, err error) {
	b := make([]byte, refreshTokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", "", err
	}
	token = base64.RawURLEncoding.EncodeToString(b)
	return token, HashRefreshToken(token), nil
}

// HashRefreshToken returns SHA256 hex of the token
func HashRefreshToken(token string) string {
	hash := sha256.Sum256([]byte(token))
	return hex.EncodeToString(hash[:])
}

// RefreshManager issues, validates and rotates refresh tokens. An account has at most one
// active token: issuing a new one revokes every older token of that account.
type RefreshManager struct {
	repo repo.RefreshRepo
	ttl  time.Duration
	now  func() time.Time
}

// NewRefreshManager creates a new refresh token manager
func NewRefreshManager(refreshRepo repo.RefreshRepo, ttl time.Duration) *RefreshManager {
	return &RefreshManager{
		repo: refreshRepo,
		ttl:  ttl,
		now:  time.Now,
	}
}

// Issue revokes all tokens of the account and persists a fresh one. The returned record carries
// the plaintext token value.
func (m *RefreshManager) Issue(ctx context.Context, accountID uuid.UUID) (model.RefreshToken, error) {
	for i := 0; i < maxIssueCollisions; i++ {
		token, hash, err := GenerateRefreshToken()
		if err != nil {
			return model.RefreshToken{}, unexpected("generate refresh token", err)
		}

		rec, err := m.repo.Rotate(ctx, accountID, hash, m.now().Add(m.ttl))
		if errors.Is(err, repo.ErrDuplicate) {
			continue
		}
		if err != nil {
			return model.RefreshToken{}, unexpected("issue refresh token", err)
		}
		rec.Token = token
		return rec, nil
	}
	return model.RefreshToken{}, unexpected("issue refresh token", errors.New("token value collision"))
}

// FindValid looks up an unexpired token by value. Unknown and expired tokens both yield ErrUnauthorized.
func (m *RefreshManager) FindValid(ctx context.Context, tokenValue string) (model.RefreshToken, error) {
	rec, err := m.repo.FindValidByHash(ctx, HashRefreshToken(tokenValue))
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return model.RefreshToken{}, fmt.Errorf("invalid refresh token: %w", ErrUnauthorized)
		}
		return model.RefreshToken{}, unexpected("find refresh token", err)
	}
	return rec, nil
}

// IsValid reports whether a fetched token is unrevoked and unexpired now
func (m *RefreshManager) IsValid(t model.RefreshToken) bool {
	return !t.Revoked && t.ExpiresAt.After(m.now())
}

// RevokeAll revokes every token owned by the account
func (m *RefreshManager) RevokeAll(ctx context.Context, accountID uuid.UUID) error {
	if _, err := m.repo.RevokeAllForAccount(ctx, accountID); err != nil {
		return unexpected("revoke refresh tokens", err)
	}
	return nil
}
