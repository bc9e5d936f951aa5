package http

import (
	nethttp "net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/signalix/accounts/internal/http/handlers"
	"github.com/signalix/accounts/internal/middleware"
	"github.com/signalix/accounts/internal/repo"
)

// RouterOptions configures request limits
type RouterOptions struct {
	// RequestTimeout bounds every request, including the store calls it makes
	RequestTimeout time.Duration
	// OtpLimiter and VerifyLimiter throttle the OTP endpoints per client IP. Nil disables limiting.
	OtpLimiter    *middleware.RateLimiter
	VerifyLimiter *middleware.RateLimiter
}

// NewRouter creates a new HTTP router with all routes configured
func NewRouter(
	authHandler *handlers.AuthHandler,
	healthHandler *handlers.HealthHandler,
	verifier middleware.TokenVerifier,
	accounts repo.AccountRepo,
	opts RouterOptions,
) *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Logger)
	r.Use(chimw.Recoverer)
	if opts.RequestTimeout > 0 {
		r.Use(chimw.Timeout(opts.RequestTimeout))
	}

	r.Get("/health", healthHandler.ServeHTTP)

	requireAuth := middleware.AuthMiddleware(verifier, accounts)

	r.Route("/api/v1/auth", func(r chi.Router) {
		r.With(limit(opts.OtpLimiter)).Post("/send-otp", authHandler.HandleSendOTP)
		r.With(limit(opts.VerifyLimiter)).Post("/verify-otp", authHandler.HandleVerifyOTP)
		r.Post("/refresh", authHandler.HandleRefresh)
		r.Post("/google", authHandler.HandleGoogleLogin)
		r.Post("/account", authHandler.HandleRegister)

		r.Group(func(r chi.Router) {
			r.Use(requireAuth)
			r.Get("/account/{id}", authHandler.HandleGetAccount)
			r.Post("/logout", authHandler.HandleLogout)
		})
	})

	// Protected routes (require valid access token)
	r.Group(func(r chi.Router) {
		r.Use(requireAuth)
		r.Get("/me", authHandler.HandleMe)
	})

	return r
}

func limit(limiter *middleware.RateLimiter) func(nethttp.Handler) nethttp.Handler {
	if limiter == nil {
		return func(next nethttp.Handler) nethttp.Handler { return next }
	}
	return middleware.RateLimitMiddleware(limiter, middleware.GetIPKey)
}
