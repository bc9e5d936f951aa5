package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"

	"github.com/google/uuid"
	"github.com/signalix/accounts/internal/model"
	"github.com/signalix/accounts/internal/notify"
	"github.com/signalix/accounts/internal/repo"
)

// TokenPair is the credential set returned by every successful login or refresh
type TokenPair struct {
	AccessToken  string
	RefreshToken string
	ExpiresIn    int64
}

// AuthService orchestrates authentication operations
type AuthService struct {
	otpProvider OtpProvider
	signer      *TokenSigner
	refresh     *RefreshManager
	federated   *FederatedExchange
	verifier    IdentityVerifier
	accounts    repo.AccountRepo
	notifier    notify.Sink
	logger      *slog.Logger
}

// NewAuthService creates a new auth service
func NewAuthService(
	otpProvider OtpProvider,
	signer *TokenSigner,
	refresh *RefreshManager,
	federated *FederatedExchange,
	verifier IdentityVerifier,
	accounts repo.AccountRepo,
	notifier notify.Sink,
	logger *slog.Logger,
) *AuthService {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuthService{
		otpProvider: otpProvider,
		signer:      signer,
		refresh:     refresh,
		federated:   federated,
		verifier:    verifier,
		accounts:    accounts,
		notifier:    notifier,
		logger:      logger,
	}
}

// RequestOTP issues an OTP for a registered email
func (s *AuthService) RequestOTP(ctx context.Context, email string) error {
	return s.otpProvider.Issue(ctx, email)
}

// VerifyOTP verifies the code and mints credentials for the account
func (s *AuthService) VerifyOTP(ctx context.Context, email, code string) (TokenPair, model.Account, error) {
	if err := s.otpProvider.Verify(ctx, email, code); err != nil {
		return TokenPair{}, model.Account{}, err
	}

	account, err := s.accounts.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return TokenPair{}, model.Account{}, fmt.Errorf("account: %w", ErrNotFound)
		}
		return TokenPair{}, model.Account{}, unexpected("lookup account", err)
	}

	pair, err := mintPair(ctx, s.signer, s.refresh, account)
	if err != nil {
		return TokenPair{}, model.Account{}, err
	}
	s.logger.InfoContext(ctx, "otp login succeeded", "account_id", account.ID)
	return pair, account, nil
}

// Refresh redeems a refresh token and rotates it. The redeemed value becomes permanently unusable.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (TokenPair, error) {
	rec, err := s.refresh.FindValid(ctx, refreshToken)
	if err != nil {
		return TokenPair{}, err
	}
	if !s.refresh.IsValid(rec) {
		if rec.Revoked {
			s.logger.WarnContext(ctx, "revoked refresh token presented", "account_id", rec.AccountID)
		}
		return TokenPair{}, fmt.Errorf("refresh token expired or invalid: %w", ErrUnauthorized)
	}

	account, err := s.accounts.GetByID(ctx, rec.AccountID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return TokenPair{}, fmt.Errorf("account for refresh token: %w", ErrUnauthorized)
		}
		return TokenPair{}, unexpected("lookup account", err)
	}

	return mintPair(ctx, s.signer, s.refresh, account)
}

// Logout revokes every refresh token of the account
func (s *AuthService) Logout(ctx context.Context, accountID uuid.UUID) error {
	return s.refresh.RevokeAll(ctx, accountID)
}

// LoginWithGoogle verifies a Google ID token and exchanges it for local credentials
func (s *AuthService) LoginWithGoogle(ctx context.Context, idToken string) (FederatedResult, error) {
	if strings.TrimSpace(idToken) == "" {
		return FederatedResult{}, fmt.Errorf("empty id token: %w", ErrInvalidAssertion)
	}
	claims, err := s.verifier.Verify(ctx, idToken)
	if err != nil {
		return FederatedResult{}, err
	}
	return s.federated.Exchange(ctx, claims)
}

// Register creates an account with the default role set and sends the onboarding notification
func (s *AuthService) Register(ctx context.Context, email, name string) (model.Account, error) {
	email = model.NormalizeEmail(email)
	name = strings.TrimSpace(name)
	if _, err := mail.ParseAddress(email); err != nil {
		return model.Account{}, fmt.Errorf("email: %w", ErrInvalidInput)
	}
	if name == "" {
		return model.Account{}, fmt.Errorf("name: %w", ErrInvalidInput)
	}

	account, err := s.accounts.Create(ctx, model.Account{Email: email, Name: name, Roles: model.DefaultRoles()})
	if err != nil {
		if errors.Is(err, repo.ErrDuplicate) {
			return model.Account{}, ErrAlreadyExists
		}
		return model.Account{}, unexpected("create account", err)
	}

	if err := s.notifier.SendOnboarding(ctx, account.Email, account.Name); err != nil {
		s.logger.WarnContext(ctx, "onboarding notification failed", "email", model.MaskEmail(account.Email), "err", err)
	}
	s.logger.InfoContext(ctx, "account created", "account_id", account.ID, "email", model.MaskEmail(account.Email))
	return account, nil
}

// Account returns the account with the given id
func (s *AuthService) Account(ctx context.Context, id uuid.UUID) (model.Account, error) {
	account, err := s.accounts.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return model.Account{}, fmt.Errorf("account: %w", ErrNotFound)
		}
		return model.Account{}, unexpected("lookup account", err)
	}
	return account, nil
}

// mintPair signs an access token and rotates the refresh token of the account
func mintPair(ctx context.Context, signer *TokenSigner, refresh *RefreshManager, account model.Account) (TokenPair, error) {
	accessToken, err := signer.Mint(account.ID, account.Email, account.Name, account.Roles)
	if err != nil {
		return TokenPair{}, err
	}
	rec, err := refresh.Issue(ctx, account.ID)
	if err != nil {
		return TokenPair{}, err
	}
	return TokenPair{
		AccessToken:  accessToken,
		RefreshToken: rec.Token,
		ExpiresIn:    signer.ExpiresIn(),
	}, nil
}
