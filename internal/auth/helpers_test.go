package auth

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/signalix/accounts/internal/model"
	"github.com/signalix/accounts/internal/repo"
	"github.com/stretchr/testify/require"
)

var (
	testKeyOnce sync.Once
	testKey     *rsa.PrivateKey
)

func testPrivateKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	testKeyOnce.Do(func() {
		k, err := rsa.GenerateKey(rand.Reader, 2048)
		if err != nil {
			panic(err)
		}
		testKey = k
	})
	return testKey
}

func testPrivateKeyPEM(t *testing.T) string {
	t.Helper()
	return string(pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(testPrivateKey(t)),
	}))
}

func newTestSigner(t *testing.T) *TokenSigner {
	t.Helper()
	s, err := NewTokenSigner(TokenConfig{
		PrivateKey: testPrivateKeyPEM(t),
		Issuer:     "accounts-test",
		AccessTTL:  time.Hour,
		RefreshTTL: 7 * 24 * time.Hour,
	})
	require.NoError(t, err)
	return s
}

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = rdb.Close()
		mr.Close()
	})
	return mr, rdb
}

// fakeAccountRepo is an in-memory AccountRepo
type fakeAccountRepo struct {
	mu        sync.Mutex
	byID      map[uuid.UUID]model.Account
	createErr error
	getErr    error
}

func newFakeAccountRepo(accounts ...model.Account) *fakeAccountRepo {
	r := &fakeAccountRepo{byID: map[uuid.UUID]model.Account{}}
	for _, a := range accounts {
		if a.ID == uuid.Nil {
			a.ID = uuid.New()
		}
		a.Email = model.NormalizeEmail(a.Email)
		r.byID[a.ID] = a
	}
	return r
}

func (r *fakeAccountRepo) GetByID(_ context.Context, id uuid.UUID) (model.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.getErr != nil {
		return model.Account{}, r.getErr
	}
	a, ok := r.byID[id]
	if !ok {
		return model.Account{}, repo.ErrNotFound
	}
	return a, nil
}

func (r *fakeAccountRepo) GetByEmail(_ context.Context, email string) (model.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.getErr != nil {
		return model.Account{}, r.getErr
	}
	email = model.NormalizeEmail(email)
	for _, a := range r.byID {
		if a.Email == email {
			return a, nil
		}
	}
	return model.Account{}, repo.ErrNotFound
}

func (r *fakeAccountRepo) Create(_ context.Context, a model.Account) (model.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.createErr != nil {
		return model.Account{}, r.createErr
	}
	a.Email = model.NormalizeEmail(a.Email)
	for _, existing := range r.byID {
		if existing.Email == a.Email {
			return model.Account{}, repo.ErrDuplicate
		}
	}
	if len(a.Roles) == 0 {
		a.Roles = model.DefaultRoles()
	}
	a.ID = uuid.New()
	a.CreatedAt = time.Now()
	a.UpdatedAt = a.CreatedAt
	r.byID[a.ID] = a
	return a, nil
}

// fakeRefreshRepo is an in-memory RefreshRepo with the same rotation semantics as the Postgres one
type fakeRefreshRepo struct {
	mu        sync.Mutex
	rows      []model.RefreshToken
	rotateErr error
}

func (r *fakeRefreshRepo) Rotate(_ context.Context, accountID uuid.UUID, tokenHash string, expiresAt time.Time) (model.RefreshToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.rotateErr != nil {
		return model.RefreshToken{}, r.rotateErr
	}
	for _, row := range r.rows {
		if row.TokenHash == tokenHash {
			return model.RefreshToken{}, repo.ErrDuplicate
		}
	}
	for i := range r.rows {
		if r.rows[i].AccountID == accountID {
			r.rows[i].Revoked = true
		}
	}
	t := model.RefreshToken{
		ID:        uuid.New(),
		AccountID: accountID,
		TokenHash: tokenHash,
		ExpiresAt: expiresAt,
		CreatedAt: time.Now(),
	}
	r.rows = append(r.rows, t)
	return t, nil
}

func (r *fakeRefreshRepo) FindValidByHash(_ context.Context, tokenHash string) (model.RefreshToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, row := range r.rows {
		if row.TokenHash == tokenHash && row.ExpiresAt.After(time.Now()) {
			return row, nil
		}
	}
	return model.RefreshToken{}, repo.ErrNotFound
}

func (r *fakeRefreshRepo) RevokeAllForAccount(_ context.Context, accountID uuid.UUID) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for i := range r.rows {
		if r.rows[i].AccountID == accountID && !r.rows[i].Revoked {
			r.rows[i].Revoked = true
			n++
		}
	}
	return n, nil
}

func (r *fakeRefreshRepo) active(accountID uuid.UUID) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, row := range r.rows {
		if row.AccountID == accountID && !row.Revoked && row.ExpiresAt.After(time.Now()) {
			n++
		}
	}
	return n
}

type sentOtp struct {
	email string
	code  string
}

// recordingSink captures notifications synchronously
type recordingSink struct {
	mu         sync.Mutex
	otps       []sentOtp
	onboarding []string
	err        error
}

func (s *recordingSink) SendOtp(_ context.Context, email, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.otps = append(s.otps, sentOtp{email: email, code: code})
	return s.err
}

func (s *recordingSink) SendOnboarding(_ context.Context, email, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onboarding = append(s.onboarding, email)
	return s.err
}

func (s *recordingSink) lastCode() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.otps) == 0 {
		return ""
	}
	return s.otps[len(s.otps)-1].code
}

func testOtpConfig() OtpConfig {
	return OtpConfig{
		TTL:         5 * time.Minute,
		Cooldown:    60 * time.Second,
		MaxAttempts: 3,
		Salt:        "test-otp-salt",
	}
}
