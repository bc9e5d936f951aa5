package model

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Roles carried in access tokens
const (
	RoleUser  = "USER"
	RoleAdmin = "ADMIN"
)

// Account represents an account in the system
type Account struct {
	ID            uuid.UUID
	Email         string
	Name          string
	Roles         []string
	GoogleID      *string
	AvatarURL     *string
	GoogleAccount bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// AccountSummary is the public view of an account returned to clients
type AccountSummary struct {
	ID            string   `json:"id"`
	Name          string   `json:"name"`
	Email         string   `json:"email"`
	Roles         []string `json:"roles"`
	AvatarURL     string   `json:"avatarUrl,omitempty"`
	GoogleAccount bool     `json:"googleAccount"`
}

// Summary returns the public view of the account
func (a Account) Summary() AccountSummary {
	s := AccountSummary{
		ID:            a.ID.String(),
		Name:          a.Name,
		Email:         a.Email,
		Roles:         a.Roles,
		GoogleAccount: a.GoogleAccount,
	}
	if a.AvatarURL != nil {
		s.AvatarURL = *a.AvatarURL
	}
	return s
}

// RefreshToken represents a persisted refresh token.
// Token holds the plaintext value and is only set on the record returned at issue time;
// the store keeps TokenHash.
type RefreshToken struct {
	ID        uuid.UUID
	AccountID uuid.UUID
	Token     string
	TokenHash string
	ExpiresAt time.Time
	Revoked   bool
	CreatedAt time.Time
}

// OtpRecord is the ephemeral OTP state kept per email
type OtpRecord struct {
	Hash     string
	Attempts int
}

// NormalizeEmail trims and lowercases an email address
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// DefaultRoles returns the role set assigned to new accounts
func DefaultRoles() []string {
	return []string{RoleUser}
}

// MaskEmail masks an email for logging (e.g. us**@x.com)
func MaskEmail(email string) string {
	at := strings.LastIndex(email, "@")
	if at < 0 {
		if len(email) <= 4 {
			return "****"
		}
		return email[:2] + strings.Repeat("*", len(email)-2)
	}
	local, domain := email[:at], email[at:]
	if len(local) <= 2 {
		return strings.Repeat("*", len(local)) + domain
	}
	return local[:2] + strings.Repeat("*", len(local)-2) + domain
}
