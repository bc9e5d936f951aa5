package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/signalix/accounts/internal/auth"
	"github.com/signalix/accounts/internal/notify"
)

// Config holds the application configuration
type Config struct {
	Port         string        `env:"PORT" envDefault:"8080"`
	DatabaseURL  string        `env:"DATABASE_URL,required,notEmpty"`
	StoreTimeout time.Duration `env:"STORE_TIMEOUT" envDefault:"3s"`
	DevMode      bool          `env:"DEV_MODE" envDefault:"false"`

	RedisAddr     string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`

	JWTPrivateKey   string        `env:"JWT_PRIVATE_KEY,required,notEmpty"`
	JWTIssuer       string        `env:"JWT_ISSUER"`
	AccessTokenTTL  time.Duration `env:"ACCESS_TOKEN_TTL" envDefault:"1h"`
	RefreshTokenTTL time.Duration `env:"REFRESH_TOKEN_TTL" envDefault:"168h"`

	OTPTTL         time.Duration `env:"OTP_TTL" envDefault:"5m"`
	OTPCooldown    time.Duration `env:"OTP_COOLDOWN" envDefault:"60s"`
	OTPMaxAttempts int           `env:"OTP_MAX_ATTEMPTS" envDefault:"3"`
	OTPSalt        string        `env:"OTP_SALT,required,notEmpty"`

	GoogleClientID string `env:"GOOGLE_CLIENT_ID"`

	NotifyBackend          string        `env:"NOTIFY_BACKEND" envDefault:"log"`
	NotifyTimeout          time.Duration `env:"NOTIFY_TIMEOUT" envDefault:"10s"`
	NotifyOtpStream        string        `env:"NOTIFY_OTP_STREAM" envDefault:"notifications:otp"`
	NotifyOnboardingStream string        `env:"NOTIFY_ONBOARDING_STREAM" envDefault:"notifications:onboarding"`

	SMTPHost     string `env:"SMTP_HOST"`
	SMTPPort     int    `env:"SMTP_PORT" envDefault:"587"`
	SMTPUsername string `env:"SMTP_USERNAME"`
	SMTPPassword string `env:"SMTP_PASSWORD"`
	SMTPFrom     string `env:"SMTP_FROM"`
	SMTPTLS      bool   `env:"SMTP_TLS" envDefault:"true"`
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	positive := map[string]time.Duration{
		"STORE_TIMEOUT":     c.StoreTimeout,
		"ACCESS_TOKEN_TTL":  c.AccessTokenTTL,
		"REFRESH_TOKEN_TTL": c.RefreshTokenTTL,
		"OTP_TTL":           c.OTPTTL,
		"OTP_COOLDOWN":      c.OTPCooldown,
		"NOTIFY_TIMEOUT":    c.NotifyTimeout,
	}
	for key, d := range positive {
		if d <= 0 {
			return fmt.Errorf("%s must be positive, got %s", key, d)
		}
	}
	if c.OTPMaxAttempts < 1 {
		return fmt.Errorf("OTP_MAX_ATTEMPTS must be at least 1, got %d", c.OTPMaxAttempts)
	}

	switch c.NotifyBackend {
	case notify.BackendLog, notify.BackendRedis:
	case notify.BackendSMTP:
		if c.SMTPHost == "" || c.SMTPFrom == "" {
			return fmt.Errorf("SMTP_HOST and SMTP_FROM are required when NOTIFY_BACKEND=smtp")
		}
	default:
		return fmt.Errorf("NOTIFY_BACKEND must be one of log, smtp, redis; got %q", c.NotifyBackend)
	}
	return nil
}

// OTP returns the OTP lifecycle settings
func (c *Config) OTP() auth.OtpConfig {
	return auth.OtpConfig{
		TTL:         c.OTPTTL,
		Cooldown:    c.OTPCooldown,
		MaxAttempts: c.OTPMaxAttempts,
		Salt:        c.OTPSalt,
	}
}

// Tokens returns the access and refresh token settings
func (c *Config) Tokens() auth.TokenConfig {
	return auth.TokenConfig{
		PrivateKey: c.JWTPrivateKey,
		Issuer:     c.JWTIssuer,
		AccessTTL:  c.AccessTokenTTL,
		RefreshTTL: c.RefreshTokenTTL,
	}
}

// Notify returns the notification backend settings
func (c *Config) Notify() notify.Config {
	return notify.Config{
		Backend: c.NotifyBackend,
		Timeout: c.NotifyTimeout,
		DevMode: c.DevMode,
		SMTP: notify.SMTPConfig{
			Host:     c.SMTPHost,
			Port:     c.SMTPPort,
			TLS:      c.SMTPTLS,
			Username: c.SMTPUsername,
			Password: c.SMTPPassword,
			From:     c.SMTPFrom,
		},
		OtpStream:        c.NotifyOtpStream,
		OnboardingStream: c.NotifyOnboardingStream,
	}
}
