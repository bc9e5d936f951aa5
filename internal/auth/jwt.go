package auth

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const minRSAKeyBits = 2048

// TokenConfig holds the access/refresh token settings
type TokenConfig struct {
	PrivateKey string
	Issuer     string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

// AccessClaims represents the access token claims. The subject is the account email.
type AccessClaims struct {
	UserID   string   `json:"userId"`
	Username string   `json:"username"`
	Role     []string `json:"role"`
	jwt.RegisteredClaims
}

// TokenSigner mints and verifies RS256 access tokens
type TokenSigner struct {
	privateKey *rsa.PrivateKey
	issuer     string
	ttl        time.Duration
	now        func() time.Time
}

// NewTokenSigner parses and validates the configured key. Unusable key material yields ErrSigning.
func NewTokenSigner(cfg TokenConfig) (*TokenSigner, error) {
	if cfg.AccessTTL <= 0 {
		return nil, fmt.Errorf("%w: access token TTL must be positive", ErrSigning)
	}
	key, err := parseRSAPrivateKey(cfg.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSigning, err)
	}
	if key.N.BitLen() < minRSAKeyBits {
		return nil, fmt.Errorf("%w: RSA key must be at least %d bits", ErrSigning, minRSAKeyBits)
	}
	return &TokenSigner{
		privateKey: key,
		issuer:     cfg.Issuer,
		ttl:        cfg.AccessTTL,
		now:        time.Now,
	}, nil
}

// Mint creates a signed access token for the account
func (s *TokenSigner) Mint(accountID uuid.UUID, email, name string, roles []string) (string, error) {
	now := s.now()
	claims := &AccessClaims{
		UserID:   accountID.String(),
		Username: name,
		Role:     roles,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   email,
			Issuer:    s.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	tokenString, err := token.SignedString(s.privateKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign access token: %w: %v", ErrSigning, err)
	}
	return tokenString, nil
}

// Verify checks signature, algorithm, issuer and expiry and returns the claims
func (s *TokenSigner) Verify(tokenString string) (*AccessClaims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(s.now),
	}
	if s.issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.issuer))
	}

	token, err := jwt.ParseWithClaims(tokenString, &AccessClaims{}, func(token *jwt.Token) (interface{}, error) {
		return &s.privateKey.PublicKey, nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w: %v", ErrUnauthorized, err)
	}

	claims, ok := token.Claims.(*AccessClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token: %w", ErrUnauthorized)
	}
	return claims, nil
}

// PublicKey returns the verification key for downstream services
func (s *TokenSigner) PublicKey() *rsa.PublicKey {
	return &s.privateKey.PublicKey
}

// ExpiresIn returns the access token lifetime in seconds
func (s *TokenSigner) ExpiresIn() int64 {
	return int64(s.ttl / time.Second)
}

// parseRSAPrivateKey accepts a PEM block (PKCS#1 or PKCS#8) or base64-encoded DER
func parseRSAPrivateKey(raw string) (*rsa.PrivateKey, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, errors.New("private key is empty")
	}
	if strings.Contains(raw, "-----BEGIN") {
		key, err := jwt.ParseRSAPrivateKeyFromPEM([]byte(raw))
		if err != nil {
			return nil, fmt.Errorf("parse PEM private key: %w", err)
		}
		return key, nil
	}

	der, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return nil, fmt.Errorf("decode base64 private key: %w", err)
	}
	if parsed, err := x509.ParsePKCS8PrivateKey(der); err == nil {
		key, ok := parsed.(*rsa.PrivateKey)
		if !ok {
			return nil, errors.New("private key is not RSA")
		}
		return key, nil
	}
	key, err := x509.ParsePKCS1PrivateKey(der)
	if err != nil {
		return nil, fmt.Errorf("parse DER private key: %w", err)
	}
	return key, nil
}
