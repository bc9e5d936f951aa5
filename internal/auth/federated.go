package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/signalix/accounts/internal/model"
	"github.com/signalix/accounts/internal/notify"
	"github.com/signalix/accounts/internal/repo"
)

// FederatedClaims is a trust-established identity assertion from an external provider
type FederatedClaims struct {
	Subject       string
	Email         string
	Name          string
	Picture       string
	EmailVerified bool
}

// IdentityVerifier verifies a raw third-party assertion and returns its claims
type IdentityVerifier interface {
	Verify(ctx context.Context, rawToken string) (FederatedClaims, error)
}

// FederatedResult is the outcome of a federated login
type FederatedResult struct {
	TokenPair
	NewUser bool
	Account model.Account
}

// FederatedExchange turns verified external claims into local credentials, creating the account
// on first login
type FederatedExchange struct {
	accounts repo.AccountRepo
	signer   *TokenSigner
	refresh  *RefreshManager
	notifier notify.Sink
	logger   *slog.Logger
}

// NewFederatedExchange creates a new federated identity exchange
func NewFederatedExchange(accounts repo.AccountRepo, signer *TokenSigner, refresh *RefreshManager, notifier notify.Sink, logger *slog.Logger) *FederatedExchange {
	if logger == nil {
		logger = slog.Default()
	}
	return &FederatedExchange{
		accounts: accounts,
		signer:   signer,
		refresh:  refresh,
		notifier: notifier,
		logger:   logger,
	}
}

// Exchange resolves or creates the account for the claims and mints an access and refresh token.
// If token issuance fails after the account was created, the account is kept; the next login
// treats it as existing.
func (e *FederatedExchange) Exchange(ctx context.Context, claims FederatedClaims) (FederatedResult, error) {
	email := model.NormalizeEmail(claims.Email)
	if email == "" || !strings.Contains(email, "@") {
		return FederatedResult{}, fmt.Errorf("missing email claim: %w", ErrInvalidAssertion)
	}

	account, newUser, err := e.resolveAccount(ctx, email, claims)
	if err != nil {
		return FederatedResult{}, err
	}

	pair, err := mintPair(ctx, e.signer, e.refresh, account)
	if err != nil {
		return FederatedResult{}, err
	}

	if newUser {
		if err := e.notifier.SendOnboarding(ctx, account.Email, account.Name); err != nil {
			e.logger.WarnContext(ctx, "onboarding notification failed", "email", model.MaskEmail(account.Email), "err", err)
		}
	}

	return FederatedResult{TokenPair: pair, NewUser: newUser, Account: account}, nil
}

func (e *FederatedExchange) resolveAccount(ctx context.Context, email string, claims FederatedClaims) (model.Account, bool, error) {
	account, err := e.accounts.GetByEmail(ctx, email)
	if err == nil {
		return account, false, nil
	}
	if !errors.Is(err, repo.ErrNotFound) {
		return model.Account{}, false, unexpected("lookup account", err)
	}

	name := strings.TrimSpace(claims.Name)
	if name == "" {
		name = email[:strings.Index(email, "@")]
	}
	candidate := model.Account{
		Email:         email,
		Name:          name,
		Roles:         model.DefaultRoles(),
		GoogleAccount: true,
	}
	if claims.Subject != "" {
		sub := claims.Subject
		candidate.GoogleID = &sub
	}
	if claims.Picture != "" {
		pic := claims.Picture
		candidate.AvatarURL = &pic
	}

	created, err := e.accounts.Create(ctx, candidate)
	if err == nil {
		e.logger.InfoContext(ctx, "federated account created", "account_id", created.ID, "email", model.MaskEmail(email))
		return created, true, nil
	}
	if !errors.Is(err, repo.ErrDuplicate) {
		return model.Account{}, false, unexpected("create account", err)
	}

	// A concurrent login created the account first.
	account, err = e.accounts.GetByEmail(ctx, email)
	if err != nil {
		return model.Account{}, false, unexpected("lookup account", err)
	}
	return account, false, nil
}
