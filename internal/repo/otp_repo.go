package repo

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/signalix/accounts/internal/model"
)

const (
	otpKeyPrefix      = "otp:"
	cooldownKeyPrefix = "cooldown:"

	otpFieldHash     = "hash"
	otpFieldAttempts = "attempts"
)

// ConsumeResult is the outcome of an atomic OTP check
type ConsumeResult int

const (
	// ConsumeMissing means no live record exists (never issued, consumed or expired)
	ConsumeMissing ConsumeResult = iota
	// ConsumeMismatch means the hash did not match and the attempt was recorded
	ConsumeMismatch
	// ConsumeExceeded means the attempt ceiling was reached and the record was deleted
	ConsumeExceeded
	// ConsumeOK means the hash matched and the record was deleted
	ConsumeOK
)

func (r ConsumeResult) String() string {
	switch r {
	case ConsumeMismatch:
		return "mismatch"
	case ConsumeExceeded:
		return "exceeded"
	case ConsumeOK:
		return "ok"
	default:
		return "missing"
	}
}

// consumeOtpLua performs HGET -> compare -> HINCRBY/DEL on an OTP record in one step.
// KEYS[1] = otp record key
// ARGV[1] = hash of the submitted code
// ARGV[2] = max attempts
var consumeOtpLua = redis.NewScript(`
local stored = redis.call('HGET', KEYS[1], 'hash')
if not stored then
  return 'missing'
end
local maxAttempts = tonumber(ARGV[2])
local attempts = tonumber(redis.call('HGET', KEYS[1], 'attempts') or '0') or 0
if attempts >= maxAttempts then
  redis.call('DEL', KEYS[1])
  return 'exceeded'
end
if stored ~= ARGV[1] then
  attempts = redis.call('HINCRBY', KEYS[1], 'attempts', 1)
  if attempts >= maxAttempts then
    redis.call('DEL', KEYS[1])
    return 'exceeded'
  end
  return 'mismatch'
end
redis.call('DEL', KEYS[1])
return 'ok'
`)

// OtpStore defines the ephemeral store operations for OTP records and cooldown markers
type OtpStore interface {
	AcquireCooldown(ctx context.Context, email string, ttl time.Duration) (bool, error)
	ReleaseCooldown(ctx context.Context, email string) error
	Replace(ctx context.Context, email, hash string, ttl time.Duration) error
	Get(ctx context.Context, email string) (model.OtpRecord, error)
	Consume(ctx context.Context, email, hash string, maxAttempts int) (ConsumeResult, error)
}

type otpStore struct {
	rdb redis.UniversalClient
}

// NewOtpStore creates a Redis-backed OtpStore
func NewOtpStore(rdb redis.UniversalClient) OtpStore {
	return &otpStore{rdb: rdb}
}

func otpKey(email string) string      { return otpKeyPrefix + email }
func cooldownKey(email string) string { return cooldownKeyPrefix + email }

// AcquireCooldown sets the cooldown marker if it is absent. It returns false when a marker already
// exists, i.e. issuance is throttled.
func (s *otpStore) AcquireCooldown(ctx context.Context, email string, ttl time.Duration) (bool, error) {
	ok, err := s.rdb.SetNX(ctx, cooldownKey(email), "1", ttl).Result()
	if err != nil {
		return false, fmt.Errorf("set cooldown: %w", err)
	}
	return ok, nil
}

// ReleaseCooldown removes the cooldown marker; used when issuance fails after the marker was set.
func (s *otpStore) ReleaseCooldown(ctx context.Context, email string) error {
	if err := s.rdb.Del(ctx, cooldownKey(email)).Err(); err != nil {
		return fmt.Errorf("delete cooldown: %w", err)
	}
	return nil
}

// Replace atomically drops any existing record for the email and writes a fresh one with
// attempts = 0 and the given TTL.
func (s *otpStore) Replace(ctx context.Context, email, hash string, ttl time.Duration) error {
	key := otpKey(email)
	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		pipe.HSet(ctx, key, otpFieldHash, hash, otpFieldAttempts, 0)
		pipe.PExpire(ctx, key, ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("replace otp record: %w", err)
	}
	return nil
}

// Get returns the live record for the email or ErrNotFound
func (s *otpStore) Get(ctx context.Context, email string) (model.OtpRecord, error) {
	vals, err := s.rdb.HGetAll(ctx, otpKey(email)).Result()
	if err != nil {
		return model.OtpRecord{}, fmt.Errorf("get otp record: %w", err)
	}
	hash, ok := vals[otpFieldHash]
	if !ok {
		return model.OtpRecord{}, fmt.Errorf("otp record: %w", ErrNotFound)
	}
	attempts := 0
	if raw := vals[otpFieldAttempts]; raw != "" {
		attempts, err = strconv.Atoi(raw)
		if err != nil {
			return model.OtpRecord{}, fmt.Errorf("parse attempts: %w", err)
		}
	}
	return model.OtpRecord{Hash: hash, Attempts: attempts}, nil
}

// Consume checks hash against the stored record, recording failed attempts and deleting the record
// on success or when the attempt ceiling is reached.
func (s *otpStore) Consume(ctx context.Context, email, hash string, maxAttempts int) (ConsumeResult, error) {
	res, err := consumeOtpLua.Run(ctx, s.rdb, []string{otpKey(email)}, hash, maxAttempts).Text()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return ConsumeMissing, nil
		}
		return ConsumeMissing, fmt.Errorf("consume otp record: %w", err)
	}
	switch res {
	case "ok":
		return ConsumeOK, nil
	case "mismatch":
		return ConsumeMismatch, nil
	case "exceeded":
		return ConsumeExceeded, nil
	case "missing":
		return ConsumeMissing, nil
	default:
		return ConsumeMissing, fmt.Errorf("consume otp record: unexpected result %q", res)
	}
}
