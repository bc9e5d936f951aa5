package notify

import (
	"context"
	"log/slog"

	"github.com/signalix/accounts/internal/model"
)

// LogSink writes notifications to the application log. Codes are only printed in dev mode.
type LogSink struct {
	logger  *slog.Logger
	devMode bool
}

func NewLogSink(logger *slog.Logger, devMode bool) *LogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSink{logger: logger, devMode: devMode}
}

func (s *LogSink) SendOtp(ctx context.Context, email, code string) error {
	if s.devMode {
		s.logger.InfoContext(ctx, "[DEV] otp issued", "email", email, "code", code)
		return nil
	}
	s.logger.InfoContext(ctx, "otp issued", "email", model.MaskEmail(email))
	return nil
}

func (s *LogSink) SendOnboarding(ctx context.Context, email, name string) error {
	s.logger.InfoContext(ctx, "onboarding", "email", model.MaskEmail(email), "name", name)
	return nil
}
