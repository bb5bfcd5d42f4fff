// Package config loads and validates app config from env and an optional .env file using Viper.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"golang.org/x/crypto/bcrypt"
)

// Config holds application configuration loaded once at process start.
// It is passed by reference into constructors and never mutated afterwards.
type Config struct {
	// HTTPAddr is the address the HTTP server listens on (e.g. :8000).
	HTTPAddr string `mapstructure:"HTTP_ADDR"`
	// DatabaseURL is the Postgres DSN.
	DatabaseURL string `mapstructure:"DATABASE_URL"`

	// SecretKey signs access and refresh tokens (HS256). Required.
	SecretKey string `mapstructure:"SECRET_KEY"`
	// AccessTokenExpireMinutes is the access token lifetime in minutes.
	AccessTokenExpireMinutes int `mapstructure:"ACCESS_TOKEN_EXPIRE_MINUTES"`
	// RefreshTokenExpireDays is the refresh token lifetime in days.
	// Must exceed the access token lifetime.
	RefreshTokenExpireDays int `mapstructure:"REFRESH_TOKEN_EXPIRE_DAYS"`
	// BcryptCost is the bcrypt cost factor (4-31).
	BcryptCost int `mapstructure:"BCRYPT_COST"`

	// RequireVerifiedEmail gates login on a verified email address.
	RequireVerifiedEmail bool `mapstructure:"REQUIRE_VERIFIED_EMAIL"`
	// SendVerificationEmail enables the verification mail on registration.
	SendVerificationEmail bool `mapstructure:"SEND_VERIFICATION_EMAIL"`

	// SMTP settings for the verification mail sink.
	SMTPServer   string `mapstructure:"SMTP_SERVER"`
	SMTPPort     int    `mapstructure:"SMTP_PORT"`
	SMTPUsername string `mapstructure:"SMTP_USERNAME"`
	SMTPPassword string `mapstructure:"SMTP_PASSWORD"`
	FromEmail    string `mapstructure:"FROM_EMAIL"`
	// AppURL is the public base URL used to build verification links.
	AppURL string `mapstructure:"APP_URL"`

	// AllowedOrigins is a comma-separated CORS origin allowlist ("*" permitted).
	AllowedOrigins string `mapstructure:"ALLOWED_ORIGINS"`

	RateLimitPerSec int `mapstructure:"RATE_LIMIT_PER_SEC"`
	RateLimitBurst  int `mapstructure:"RATE_LIMIT_BURST"`
}

// Load reads .env (if present), then builds and validates Config from the
// environment. Missing .env is ignored (e.g. in CI); env vars override .env.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // ignore ErrConfigFileNotFound

	v.AutomaticEnv()

	v.SetDefault("HTTP_ADDR", ":8000")
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("SECRET_KEY", "")
	v.SetDefault("ACCESS_TOKEN_EXPIRE_MINUTES", 30)
	v.SetDefault("REFRESH_TOKEN_EXPIRE_DAYS", 7)
	v.SetDefault("BCRYPT_COST", bcrypt.DefaultCost)
	v.SetDefault("REQUIRE_VERIFIED_EMAIL", true)
	v.SetDefault("SEND_VERIFICATION_EMAIL", false)
	v.SetDefault("SMTP_SERVER", "smtp.gmail.com")
	v.SetDefault("SMTP_PORT", 587)
	v.SetDefault("SMTP_USERNAME", "")
	v.SetDefault("SMTP_PASSWORD", "")
	v.SetDefault("FROM_EMAIL", "")
	v.SetDefault("APP_URL", "http://localhost:8000")
	v.SetDefault("ALLOWED_ORIGINS", "*")
	v.SetDefault("RATE_LIMIT_PER_SEC", 50)
	v.SetDefault("RATE_LIMIT_BURST", 100)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}

	if strings.TrimSpace(cfg.SecretKey) == "" {
		return nil, errors.New("config: SECRET_KEY must be set")
	}
	if cfg.HTTPAddr == "" {
		return nil, errors.New("config: HTTP_ADDR must be set")
	}
	if cfg.AccessTokenExpireMinutes <= 0 {
		return nil, errors.New("config: ACCESS_TOKEN_EXPIRE_MINUTES must be positive")
	}
	if cfg.RefreshTokenExpireDays <= 0 {
		return nil, errors.New("config: REFRESH_TOKEN_EXPIRE_DAYS must be positive")
	}
	if cfg.RefreshTTL() <= cfg.AccessTTL() {
		return nil, errors.New("config: refresh token lifetime must exceed access token lifetime")
	}
	if cfg.BcryptCost < bcrypt.MinCost || cfg.BcryptCost > bcrypt.MaxCost {
		return nil, errors.New("config: BCRYPT_COST out of range")
	}

	return &cfg, nil
}

// AccessTTL returns the access token lifetime.
func (c *Config) AccessTTL() time.Duration {
	return time.Duration(c.AccessTokenExpireMinutes) * time.Minute
}

// RefreshTTL returns the refresh token lifetime.
func (c *Config) RefreshTTL() time.Duration {
	return time.Duration(c.RefreshTokenExpireDays) * 24 * time.Hour
}

// Origins returns the parsed CORS allowlist.
func (c *Config) Origins() []string {
	parts := strings.Split(c.AllowedOrigins, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// MailConfigured reports whether the SMTP sink has enough settings to send.
func (c *Config) MailConfigured() bool {
	return c.SMTPUsername != "" && c.SMTPPassword != "" && c.FromEmail != ""
}
