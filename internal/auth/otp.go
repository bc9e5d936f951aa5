package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/signalix/accounts/internal/model"
	"github.com/signalix/accounts/internal/notify"
	"github.com/signalix/accounts/internal/repo"
)

const (
	otpLength = 6
	otpMin    = 100000
	otpSpan   = 900000
)

// OtpConfig holds the OTP lifecycle settings
type OtpConfig struct {
	TTL         time.Duration
	Cooldown    time.Duration
	MaxAttempts int
	Salt        string
}

// OtpManager issues and verifies email OTPs backed by the ephemeral store
type OtpManager struct {
	store    repo.OtpStore
	accounts repo.AccountRepo
	notifier notify.Sink
	cfg      OtpConfig
	logger   *slog.Logger
}

// NewOtpManager creates a new OTP manager
func NewOtpManager(store repo.OtpStore, accounts repo.AccountRepo, notifier notify.Sink, cfg OtpConfig, logger *slog.Logger) *OtpManager {
	if logger == nil {
		logger = slog.Default()
	}
	return &OtpManager{
		store:    store,
		accounts: accounts,
		notifier: notifier,
		cfg:      cfg,
		logger:   logger,
	}
}

// Issue generates a code for a registered email, stores its hash and dispatches the plaintext out-of-band.
// Fails with ErrNotFound for unknown emails and ErrThrottled while a cooldown marker exists.
func (m *OtpManager) Issue(ctx context.Context, email string) error {
	email = model.NormalizeEmail(email)

	if _, err := m.accounts.GetByEmail(ctx, email); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return fmt.Errorf("user with email %s not found: %w", email, ErrNotFound)
		}
		return unexpected("lookup account", err)
	}

	acquired, err := m.store.AcquireCooldown(ctx, email, m.cfg.Cooldown)
	if err != nil {
		return unexpected("cooldown", err)
	}
	if !acquired {
		return ErrThrottled
	}

	code, err := generateOTPCode()
	if err != nil {
		m.releaseCooldown(ctx, email)
		return unexpected("generate otp", err)
	}

	if err := m.store.Replace(ctx, email, hashOTPHex(email, code, m.cfg.Salt), m.cfg.TTL); err != nil {
		m.releaseCooldown(ctx, email)
		return unexpected("store otp", err)
	}

	// Delivery failure does not roll back issuance; the stored code stays verifiable.
	if err := m.notifier.SendOtp(ctx, email, code); err != nil {
		m.logger.WarnContext(ctx, "otp notification failed", "email", model.MaskEmail(email), "err", err)
	}
	return nil
}

// Verify checks a submitted code. Each OTP record is consumed on success and destroyed once the
// attempt ceiling is reached.
func (m *OtpManager) Verify(ctx context.Context, email, code string) error {
	email = model.NormalizeEmail(email)

	res, err := m.store.Consume(ctx, email, hashOTPHex(email, code, m.cfg.Salt), m.cfg.MaxAttempts)
	if err != nil {
		return unexpected("verify otp", err)
	}

	switch res {
	case repo.ConsumeOK:
		return nil
	case repo.ConsumeMismatch:
		return ErrInvalidCode
	case repo.ConsumeExceeded:
		m.logger.InfoContext(ctx, "otp attempts exhausted", "email", model.MaskEmail(email))
		return ErrAttemptsExceeded
	default:
		return fmt.Errorf("OTP expired or not found: %w", ErrNotFound)
	}
}

func (m *OtpManager) releaseCooldown(ctx context.Context, email string) {
	if err := m.store.ReleaseCooldown(ctx, email); err != nil {
		m.logger.WarnContext(ctx, "release cooldown failed", "email", model.MaskEmail(email), "err", err)
	}
}

// generateOTPCode returns a uniformly random code in [100000, 999999]
func generateOTPCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(otpSpan))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%0*d", otpLength, n.Int64()+otpMin), nil
}

// hashOTPHex returns SHA-256(email:code:salt) as hex for storage
func hashOTPHex(email, code, salt string) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s:%s:%s", email, code, salt)))
	return hex.EncodeToString(sum[:])
}
