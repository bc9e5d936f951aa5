package notify

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/signalix/accounts/internal/model"
)

const defaultSendTimeout = 10 * time.Second

// Async dispatches to the wrapped sink in the background. Send errors are logged and never
// returned, so a failed delivery cannot fail the caller.
type Async struct {
	sink    Sink
	timeout time.Duration
	logger  *slog.Logger
	wg      sync.WaitGroup
}

func NewAsync(sink Sink, timeout time.Duration, logger *slog.Logger) *Async {
	if timeout <= 0 {
		timeout = defaultSendTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Async{sink: sink, timeout: timeout, logger: logger}
}

func (a *Async) SendOtp(ctx context.Context, email, code string) error {
	a.dispatch(ctx, "otp", email, func(ctx context.Context) error {
		return a.sink.SendOtp(ctx, email, code)
	})
	return nil
}

func (a *Async) SendOnboarding(ctx context.Context, email, name string) error {
	a.dispatch(ctx, "onboarding", email, func(ctx context.Context) error {
		return a.sink.SendOnboarding(ctx, email, name)
	})
	return nil
}

// Wait blocks until in-flight deliveries finish
func (a *Async) Wait() {
	a.wg.Wait()
}

func (a *Async) dispatch(ctx context.Context, kind, email string, send func(context.Context) error) {
	// Detach from the request so the send outlives the response.
	base := context.WithoutCancel(ctx)

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		sendCtx, cancel := context.WithTimeout(base, a.timeout)
		defer cancel()

		if err := send(sendCtx); err != nil {
			a.logger.WarnContext(sendCtx, "notification delivery failed",
				"kind", kind, "email", model.MaskEmail(email), "err", err)
		}
	}()
}
