package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	defaultOtpStream        = "notifications:otp"
	defaultOnboardingStream = "notifications:onboarding"
)

// StreamSink publishes notification events to Redis streams for a delivery worker to consume
type StreamSink struct {
	rdb              redis.UniversalClient
	otpStream        string
	onboardingStream string
	now              func() time.Time
}

func NewStreamSink(rdb redis.UniversalClient, otpStream, onboardingStream string) *StreamSink {
	if otpStream == "" {
		otpStream = defaultOtpStream
	}
	if onboardingStream == "" {
		onboardingStream = defaultOnboardingStream
	}
	return &StreamSink{
		rdb:              rdb,
		otpStream:        otpStream,
		onboardingStream: onboardingStream,
		now:              time.Now,
	}
}

func (s *StreamSink) SendOtp(ctx context.Context, email, code string) error {
	return s.publish(ctx, s.otpStream, map[string]any{
		"email": email,
		"code":  code,
	})
}

func (s *StreamSink) SendOnboarding(ctx context.Context, email, name string) error {
	return s.publish(ctx, s.onboardingStream, map[string]any{
		"email": email,
		"name":  name,
	})
}

func (s *StreamSink) publish(ctx context.Context, stream string, values map[string]any) error {
	values["sentAt"] = s.now().UTC().Format(time.RFC3339)
	if err := s.rdb.XAdd(ctx, &redis.XAddArgs{Stream: stream, Values: values}).Err(); err != nil {
		return fmt.Errorf("publish to %s: %w", stream, err)
	}
	return nil
}
