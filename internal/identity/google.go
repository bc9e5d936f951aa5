// Package identity verifies third-party identity assertions.
package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/api/idtoken"

	"github.com/signalix/accounts/internal/auth"
)

var googleIssuers = map[string]bool{
	"accounts.google.com":         true,
	"https://accounts.google.com": true,
}

type validateFunc func(ctx context.Context, idToken, audience string) (*idtoken.Payload, error)

// GoogleVerifier checks Google ID tokens against the configured OAuth client id
type GoogleVerifier struct {
	clientID string
	validate validateFunc
}

func NewGoogleVerifier(clientID string) *GoogleVerifier {
	return &GoogleVerifier{clientID: clientID, validate: idtoken.Validate}
}

// Verify validates signature, audience and expiry and maps the payload to federated claims.
// Every failure is reported as auth.ErrInvalidAssertion.
func (v *GoogleVerifier) Verify(ctx context.Context, rawToken string) (auth.FederatedClaims, error) {
	if v.clientID == "" {
		return auth.FederatedClaims{}, fmt.Errorf("google client id not configured: %w", auth.ErrInvalidAssertion)
	}
	payload, err := v.validate(ctx, rawToken, v.clientID)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return auth.FederatedClaims{}, fmt.Errorf("validate google id token: %w: %w", auth.ErrUnexpected, err)
		}
		return auth.FederatedClaims{}, fmt.Errorf("validate google id token: %w: %v", auth.ErrInvalidAssertion, err)
	}
	return claimsFromPayload(payload)
}

func claimsFromPayload(p *idtoken.Payload) (auth.FederatedClaims, error) {
	if p == nil {
		return auth.FederatedClaims{}, fmt.Errorf("empty payload: %w", auth.ErrInvalidAssertion)
	}
	if !googleIssuers[p.Issuer] {
		return auth.FederatedClaims{}, fmt.Errorf("unexpected issuer %q: %w", p.Issuer, auth.ErrInvalidAssertion)
	}

	claims := auth.FederatedClaims{
		Subject:       p.Subject,
		Email:         stringClaim(p.Claims, "email"),
		Name:          stringClaim(p.Claims, "name"),
		Picture:       stringClaim(p.Claims, "picture"),
		EmailVerified: boolClaim(p.Claims, "email_verified"),
	}
	if claims.Email == "" {
		return auth.FederatedClaims{}, fmt.Errorf("missing email claim: %w", auth.ErrInvalidAssertion)
	}
	if !claims.EmailVerified {
		return auth.FederatedClaims{}, fmt.Errorf("email not verified: %w", auth.ErrInvalidAssertion)
	}
	return claims, nil
}

func stringClaim(claims map[string]interface{}, key string) string {
	s, _ := claims[key].(string)
	return strings.TrimSpace(s)
}

// Google has sent email_verified both as a JSON bool and as a string
func boolClaim(claims map[string]interface{}, key string) bool {
	switch v := claims[key].(type) {
	case bool:
		return v
	case string:
		return strings.EqualFold(v, "true")
	default:
		return false
	}
}
