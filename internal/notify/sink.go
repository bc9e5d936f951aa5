// Package notify delivers out-of-band messages (OTP codes, onboarding) to account holders.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// Sink delivers notifications. Implementations are selected by deployment configuration.
type Sink interface {
	SendOtp(ctx context.Context, email, code string) error
	SendOnboarding(ctx context.Context, email, name string) error
}

// Backends accepted by New
const (
	BackendLog   = "log"
	BackendSMTP  = "smtp"
	BackendRedis = "redis"
)

// Config selects and configures a delivery backend
type Config struct {
	Backend          string
	Timeout          time.Duration
	DevMode          bool
	SMTP             SMTPConfig
	OtpStream        string
	OnboardingStream string
}

// New builds the configured sink wrapped in Async. rdb is only used by the redis backend.
func New(cfg Config, rdb redis.UniversalClient, logger *slog.Logger) (*Async, error) {
	if logger == nil {
		logger = slog.Default()
	}

	var sink Sink
	switch cfg.Backend {
	case BackendLog, "":
		sink = NewLogSink(logger, cfg.DevMode)
	case BackendSMTP:
		s, err := NewSMTPSink(cfg.SMTP)
		if err != nil {
			return nil, fmt.Errorf("smtp sink: %w", err)
		}
		sink = s
	case BackendRedis:
		if rdb == nil {
			return nil, fmt.Errorf("redis sink: no client")
		}
		sink = NewStreamSink(rdb, cfg.OtpStream, cfg.OnboardingStream)
	default:
		return nil, fmt.Errorf("unknown notification backend %q", cfg.Backend)
	}

	logger.Info("notification backend ready", "backend", cfg.Backend)
	return NewAsync(sink, cfg.Timeout, logger), nil
}
