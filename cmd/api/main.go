package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/signalix/accounts/internal/auth"
	"github.com/signalix/accounts/internal/config"
	"github.com/signalix/accounts/internal/db"
	httphandler "github.com/signalix/accounts/internal/http"
	"github.com/signalix/accounts/internal/http/handlers"
	"github.com/signalix/accounts/internal/identity"
	"github.com/signalix/accounts/internal/middleware"
	"github.com/signalix/accounts/internal/notify"
	"github.com/signalix/accounts/internal/repo"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	if err := run(logger); err != nil {
		logger.Error("server stopped", "err", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	// Load .env from CWD (env vars override)
	_ = godotenv.Load(".env")

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Key problems are fatal at startup, never per request.
	signer, err := auth.NewTokenSigner(cfg.Tokens())
	if err != nil {
		return err
	}

	database, err := db.Open(ctx, cfg.DatabaseURL, logger)
	if err != nil {
		return err
	}
	defer database.Close()

	if err := db.Migrate(ctx, database); err != nil {
		return err
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:         cfg.RedisAddr,
		Password:     cfg.RedisPassword,
		DB:           cfg.RedisDB,
		DialTimeout:  cfg.StoreTimeout,
		ReadTimeout:  cfg.StoreTimeout,
		WriteTimeout: cfg.StoreTimeout,
	})
	defer rdb.Close()

	pingCtx, cancel := context.WithTimeout(ctx, cfg.StoreTimeout)
	err = rdb.Ping(pingCtx).Err()
	cancel()
	if err != nil {
		return err
	}

	notifier, err := notify.New(cfg.Notify(), rdb, logger)
	if err != nil {
		return err
	}
	defer notifier.Wait()

	accountRepo := repo.NewAccountRepo(database)
	refreshRepo := repo.NewRefreshRepo(database)
	otpStore := repo.NewOtpStore(rdb)

	otpManager := auth.NewOtpManager(otpStore, accountRepo, notifier, cfg.OTP(), logger)
	refreshManager := auth.NewRefreshManager(refreshRepo, cfg.RefreshTokenTTL)
	federated := auth.NewFederatedExchange(accountRepo, signer, refreshManager, notifier, logger)
	authService := auth.NewAuthService(
		otpManager,
		signer,
		refreshManager,
		federated,
		identity.NewGoogleVerifier(cfg.GoogleClientID),
		accountRepo,
		notifier,
		logger,
	)

	authHandler := handlers.NewAuthHandler(authService, logger)
	healthHandler := handlers.NewHealthHandler(cfg.StoreTimeout, map[string]handlers.Pinger{
		"postgres": database.PingContext,
		"redis":    func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
	})

	router := httphandler.NewRouter(authHandler, healthHandler, signer, accountRepo, httphandler.RouterOptions{
		RequestTimeout: 2 * cfg.StoreTimeout,
		OtpLimiter:     middleware.NewRateLimiter(ctx, 10*time.Minute, 10),
		VerifyLimiter:  middleware.NewRateLimiter(ctx, 10*time.Minute, 20),
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10*time.Second + 2*cfg.StoreTimeout,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", "port", cfg.Port, "notify_backend", cfg.NotifyBackend)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}

	logger.Info("server exited")
	return nil
}
