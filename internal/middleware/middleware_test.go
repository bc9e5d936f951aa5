package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/signalix/accounts/internal/auth"
	"github.com/signalix/accounts/internal/model"
	"github.com/signalix/accounts/internal/repo"
)

type stubVerifier map[string]*auth.AccessClaims

func (s stubVerifier) Verify(token string) (*auth.AccessClaims, error) {
	if c, ok := s[token]; ok {
		return c, nil
	}
	return nil, auth.ErrUnauthorized
}

type stubAccounts struct {
	accounts map[uuid.UUID]model.Account
	err      error
}

func (s stubAccounts) GetByID(_ context.Context, id uuid.UUID) (model.Account, error) {
	if s.err != nil {
		return model.Account{}, s.err
	}
	a, ok := s.accounts[id]
	if !ok {
		return model.Account{}, repo.ErrNotFound
	}
	return a, nil
}

func (s stubAccounts) GetByEmail(context.Context, string) (model.Account, error) {
	return model.Account{}, repo.ErrNotFound
}

func (s stubAccounts) Create(context.Context, model.Account) (model.Account, error) {
	return model.Account{}, errors.New("not supported")
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body["error"]
}

func TestAuthMiddleware(t *testing.T) {
	acct := model.Account{ID: uuid.New(), Email: "user@x.com", Name: "User"}
	ghost := uuid.New()
	verifier := stubVerifier{
		"good":      {UserID: acct.ID.String()},
		"ghost":     {UserID: ghost.String()},
		"malformed": {UserID: "not-a-uuid"},
	}
	accounts := stubAccounts{accounts: map[uuid.UUID]model.Account{acct.ID: acct}}

	var seen *model.Account
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		a, ok := GetAccount(r.Context())
		require.True(t, ok)
		id, ok := GetAccountID(r.Context())
		require.True(t, ok)
		assert.Equal(t, a.ID, id)
		_, ok = GetClaims(r.Context())
		require.True(t, ok)
		seen = a
		w.WriteHeader(http.StatusNoContent)
	})
	h := AuthMiddleware(verifier, accounts)(next)

	cases := []struct {
		name   string
		header string
		status int
		msg    string
	}{
		{"missing header", "", http.StatusUnauthorized, "missing authorization header"},
		{"wrong scheme", "Basic abc", http.StatusUnauthorized, "invalid authorization header format"},
		{"empty token", "Bearer  ", http.StatusUnauthorized, "missing token"},
		{"bad token", "Bearer nope", http.StatusUnauthorized, "invalid or expired token"},
		{"malformed subject", "Bearer malformed", http.StatusUnauthorized, "invalid or expired token"},
		{"deleted account", "Bearer ghost", http.StatusUnauthorized, "account not found"},
		{"valid", "Bearer good", http.StatusNoContent, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			assert.Equal(t, tc.status, rec.Code)
			if tc.msg != "" {
				assert.Equal(t, tc.msg, decodeError(t, rec))
			}
		})
	}
	require.NotNil(t, seen)
	assert.Equal(t, "user@x.com", seen.Email)
}

func TestAuthMiddleware_storeFailure(t *testing.T) {
	id := uuid.New()
	h := AuthMiddleware(stubVerifier{"good": {UserID: id.String()}}, stubAccounts{err: errors.New("db down")})(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { t.Fatal("must not reach handler") }))

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer good")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestRateLimiter_Allow(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	rl := NewRateLimiter(ctx, time.Minute, 2)
	now := time.Now()
	rl.now = func() time.Time { return now }

	assert.True(t, rl.Allow("ip:1"))
	assert.True(t, rl.Allow("ip:1"))
	assert.False(t, rl.Allow("ip:1"))
	assert.True(t, rl.Allow("ip:2"), "keys are independent")

	now = now.Add(time.Minute + time.Second)
	assert.True(t, rl.Allow("ip:1"), "window slid")
}

func TestRateLimiter_cleanup(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	rl := NewRateLimiter(ctx, time.Minute, 5)
	now := time.Now()
	rl.now = func() time.Time { return now }

	rl.Allow("ip:old")
	now = now.Add(2 * time.Minute)
	rl.Allow("ip:new")
	rl.cleanup()

	rl.mu.Lock()
	defer rl.mu.Unlock()
	assert.NotContains(t, rl.requests, "ip:old")
	assert.Contains(t, rl.requests, "ip:new")
}

func TestRateLimitMiddleware(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	rl := NewRateLimiter(ctx, 30*time.Second, 1)
	h := RateLimitMiddleware(rl, GetIPKey)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	send := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/send-otp", nil)
		req.RemoteAddr = "10.0.0.1:5555"
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	assert.Equal(t, http.StatusOK, send().Code)
	rec := send()
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "30", rec.Header().Get("Retry-After"))
	assert.Equal(t, "rate limit exceeded", decodeError(t, rec))
}

func TestGetIPKey(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.7:41000"
	assert.Equal(t, "ip:192.0.2.7", GetIPKey(req))

	req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
	assert.Equal(t, "ip:203.0.113.9", GetIPKey(req))
}
