package auth

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenSigner_MintVerifyRoundTrip(t *testing.T) {
	signer := newTestSigner(t)
	id := uuid.New()

	token, err := signer.Mint(id, "user@x.com", "User", []string{"USER"})
	require.NoError(t, err)
	assert.Equal(t, 2, strings.Count(token, "."))

	claims, err := signer.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "user@x.com", claims.Subject)
	assert.Equal(t, id.String(), claims.UserID)
	assert.Equal(t, "User", claims.Username)
	assert.Equal(t, []string{"USER"}, claims.Role)
	assert.Equal(t, "accounts-test", claims.Issuer)
	assert.Equal(t, time.Hour, claims.ExpiresAt.Sub(claims.IssuedAt.Time))
	assert.Equal(t, int64(3600), signer.ExpiresIn())
}

func TestTokenSigner_VerifyAfterExpiry(t *testing.T) {
	signer := newTestSigner(t)
	base := time.Now()
	signer.now = func() time.Time { return base }

	token, err := signer.Mint(uuid.New(), "user@x.com", "User", []string{"USER"})
	require.NoError(t, err)

	signer.now = func() time.Time { return base.Add(59 * time.Minute) }
	_, err = signer.Verify(token)
	require.NoError(t, err)

	signer.now = func() time.Time { return base.Add(time.Hour + time.Second) }
	_, err = signer.Verify(token)
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestTokenSigner_VerifyRejectsTampering(t *testing.T) {
	signer := newTestSigner(t)
	token, err := signer.Mint(uuid.New(), "user@x.com", "User", []string{"USER"})
	require.NoError(t, err)

	parts := strings.Split(token, ".")
	payload, err := base64.RawURLEncoding.DecodeString(parts[1])
	require.NoError(t, err)
	forged := strings.Replace(string(payload), `"USER"`, `"ADMIN"`, 1)
	parts[1] = base64.RawURLEncoding.EncodeToString([]byte(forged))

	_, err = signer.Verify(strings.Join(parts, "."))
	assert.ErrorIs(t, err, ErrUnauthorized)

	_, err = signer.Verify("not-a-token")
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestTokenSigner_VerifyRejectsOtherAlgorithms(t *testing.T) {
	signer := newTestSigner(t)

	hs := jwt.NewWithClaims(jwt.SigningMethodHS256, &AccessClaims{
		UserID: uuid.NewString(),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user@x.com",
			Issuer:    "accounts-test",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
	signed, err := hs.SignedString([]byte("shared-secret"))
	require.NoError(t, err)

	_, err = signer.Verify(signed)
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestTokenSigner_VerifyRejectsForeignKeyAndIssuer(t *testing.T) {
	signer := newTestSigner(t)

	other, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	foreign := jwt.NewWithClaims(jwt.SigningMethodRS256, &AccessClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user@x.com",
			Issuer:    "accounts-test",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
	signed, err := foreign.SignedString(other)
	require.NoError(t, err)
	_, err = signer.Verify(signed)
	assert.ErrorIs(t, err, ErrUnauthorized)

	wrongIssuer := jwt.NewWithClaims(jwt.SigningMethodRS256, &AccessClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user@x.com",
			Issuer:    "someone-else",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
	signed, err = wrongIssuer.SignedString(testPrivateKey(t))
	require.NoError(t, err)
	_, err = signer.Verify(signed)
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestNewTokenSigner_keyFormats(t *testing.T) {
	key := testPrivateKey(t)

	pkcs8, err := x509.MarshalPKCS8PrivateKey(key)
	require.NoError(t, err)
	pkcs1 := x509.MarshalPKCS1PrivateKey(key)

	cases := map[string]string{
		"pkcs1 pem":  testPrivateKeyPEM(t),
		"pkcs8 pem":  string(pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: pkcs8})),
		"pkcs8 der":  base64.StdEncoding.EncodeToString(pkcs8),
		"pkcs1 der":  base64.StdEncoding.EncodeToString(pkcs1),
		"padded pem": "\n  " + testPrivateKeyPEM(t) + "\n",
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			s, err := NewTokenSigner(TokenConfig{PrivateKey: raw, AccessTTL: time.Minute})
			require.NoError(t, err)
			assert.Equal(t, key.N, s.PublicKey().N)
		})
	}
}

func TestNewTokenSigner_unusableKey(t *testing.T) {
	weak, err := rsa.GenerateKey(rand.Reader, 1024)
	require.NoError(t, err)
	weakDER, err := x509.MarshalPKCS8PrivateKey(weak)
	require.NoError(t, err)

	cases := map[string]TokenConfig{
		"empty":       {PrivateKey: "", AccessTTL: time.Minute},
		"garbage":     {PrivateKey: "%%%not-base64%%%", AccessTTL: time.Minute},
		"not a key":   {PrivateKey: base64.StdEncoding.EncodeToString([]byte("hello")), AccessTTL: time.Minute},
		"short key":   {PrivateKey: base64.StdEncoding.EncodeToString(weakDER), AccessTTL: time.Minute},
		"invalid ttl": {PrivateKey: testPrivateKeyPEM(t), AccessTTL: 0},
	}
	for name, cfg := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := NewTokenSigner(cfg)
			assert.ErrorIs(t, err, ErrSigning)
		})
	}
}
