package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	JWT       JWTConfig
	SMTP      SMTPConfig
	Captcha   CaptchaConfig
	CTFd      CTFdConfig
	RateLimit RateLimitConfig
	Admin     AdminConfig
}

type ServerConfig struct {
	Host           string
	Port           int
	Env            string
	PublicURL      string // base URL used in verification links
	TrustedEnv     bool   // enables the internal-traffic rate limit bypass
	AllowedOrigins []string
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string
	SSLMode  string
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
}

type JWTConfig struct {
	Secret     string
	ExpiryDays int
}

type SMTPConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	From     string
}

type CaptchaConfig struct {
	Secret    string
	VerifyURL string
}

type CTFdConfig struct {
	APIURL        string
	APIToken      string
	WebhookURL    string
	WebhookSecret string
	SyncSpec      string // cron expression for periodic score sync
}

type RateLimitConfig struct {
	AuthRequests      int
	AuthWindowSeconds int
	APIRequests       int
	APIWindowSeconds  int
}

type AdminConfig struct {
	Email    string
	Password string
}

func (d *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode,
	)
}

func (r *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

func (j *JWTConfig) Expiry() time.Duration {
	return time.Duration(j.ExpiryDays) * 24 * time.Hour
}

func (s *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

func (s *ServerConfig) IsDevelopment() bool {
	return s.Env == "development"
}

// Required reports whether registration must pass a CAPTCHA check.
// The gate is presence-driven: configuring a secret turns it on.
func (c *CaptchaConfig) Required() bool {
	return c.Secret != ""
}

func (c *CTFdConfig) Enabled() bool {
	return c.APIURL != "" && c.APIToken != ""
}

func (c *CTFdConfig) WebhookEnabled() bool {
	return c.WebhookURL != "" && c.WebhookSecret != ""
}

func (s *SMTPConfig) Enabled() bool {
	return s.Host != ""
}

func Load() (*Config, error) {
	v := viper.New()

	// Set defaults
	v.SetDefault("SERVER_HOST", "0.0.0.0")
	v.SetDefault("SERVER_PORT", 8080)
	v.SetDefault("SERVER_ENV", "development")
	v.SetDefault("SERVER_PUBLIC_URL", "http://localhost:3000")
	v.SetDefault("SERVER_TRUSTED_ENV", false)
	v.SetDefault("SERVER_ALLOWED_ORIGINS", "http://localhost:3000")
	v.SetDefault("DATABASE_HOST", "localhost")
	v.SetDefault("DATABASE_PORT", 5432)
	v.SetDefault("DATABASE_USER", "acectf")
	v.SetDefault("DATABASE_PASSWORD", "acectf_secret")
	v.SetDefault("DATABASE_NAME", "acectf")
	v.SetDefault("DATABASE_SSLMODE", "disable")
	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("JWT_SECRET", "change-me-in-production")
	v.SetDefault("JWT_EXPIRY_DAYS", 7)
	v.SetDefault("SMTP_HOST", "")
	v.SetDefault("SMTP_PORT", 587)
	v.SetDefault("SMTP_USER", "")
	v.SetDefault("SMTP_PASSWORD", "")
	v.SetDefault("SMTP_FROM", "noreply@ace-ctf.fr")
	v.SetDefault("HCAPTCHA_SECRET", "")
	v.SetDefault("HCAPTCHA_VERIFY_URL", "https://hcaptcha.com/siteverify")
	v.SetDefault("CTFD_API_URL", "")
	v.SetDefault("CTFD_API_TOKEN", "")
	v.SetDefault("CTFD_WEBHOOK_URL", "")
	v.SetDefault("CTFD_WEBHOOK_SECRET", "")
	v.SetDefault("CTFD_SYNC_SPEC", "*/2 * * * *")
	v.SetDefault("RATE_LIMIT_AUTH_REQUESTS", 5)
	v.SetDefault("RATE_LIMIT_AUTH_WINDOW_SECONDS", 600)
	v.SetDefault("RATE_LIMIT_API_REQUESTS", 100)
	v.SetDefault("RATE_LIMIT_API_WINDOW_SECONDS", 900)
	v.SetDefault("ADMIN_EMAIL", "")
	v.SetDefault("ADMIN_PASSWORD", "")

	// Load from .env file if present
	v.SetConfigName(".env")
	v.SetConfigType("env")
	v.AddConfigPath(".")
	v.AddConfigPath("/app")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	// Override with environment variables
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	cfg := &Config{
		Server: ServerConfig{
			Host:           v.GetString("SERVER_HOST"),
			Port:           v.GetInt("SERVER_PORT"),
			Env:            v.GetString("SERVER_ENV"),
			PublicURL:      strings.TrimRight(v.GetString("SERVER_PUBLIC_URL"), "/"),
			TrustedEnv:     v.GetBool("SERVER_TRUSTED_ENV"),
			AllowedOrigins: splitCSV(v.GetString("SERVER_ALLOWED_ORIGINS")),
		},
		Database: DatabaseConfig{
			Host:     v.GetString("DATABASE_HOST"),
			Port:     v.GetInt("DATABASE_PORT"),
			User:     v.GetString("DATABASE_USER"),
			Password: v.GetString("DATABASE_PASSWORD"),
			Name:     v.GetString("DATABASE_NAME"),
			SSLMode:  v.GetString("DATABASE_SSLMODE"),
		},
		Redis: RedisConfig{
			Host:     v.GetString("REDIS_HOST"),
			Port:     v.GetInt("REDIS_PORT"),
			Password: v.GetString("REDIS_PASSWORD"),
		},
		JWT: JWTConfig{
			Secret:     v.GetString("JWT_SECRET"),
			ExpiryDays: v.GetInt("JWT_EXPIRY_DAYS"),
		},
		SMTP: SMTPConfig{
			Host:     v.GetString("SMTP_HOST"),
			Port:     v.GetInt("SMTP_PORT"),
			User:     v.GetString("SMTP_USER"),
			Password: v.GetString("SMTP_PASSWORD"),
			From:     v.GetString("SMTP_FROM"),
		},
		Captcha: CaptchaConfig{
			Secret:    v.GetString("HCAPTCHA_SECRET"),
			VerifyURL: v.GetString("HCAPTCHA_VERIFY_URL"),
		},
		CTFd: CTFdConfig{
			APIURL:        strings.TrimRight(v.GetString("CTFD_API_URL"), "/"),
			APIToken:      v.GetString("CTFD_API_TOKEN"),
			WebhookURL:    v.GetString("CTFD_WEBHOOK_URL"),
			WebhookSecret: v.GetString("CTFD_WEBHOOK_SECRET"),
			SyncSpec:      v.GetString("CTFD_SYNC_SPEC"),
		},
		RateLimit: RateLimitConfig{
			AuthRequests:      v.GetInt("RATE_LIMIT_AUTH_REQUESTS"),
			AuthWindowSeconds: v.GetInt("RATE_LIMIT_AUTH_WINDOW_SECONDS"),
			APIRequests:       v.GetInt("RATE_LIMIT_API_REQUESTS"),
			APIWindowSeconds:  v.GetInt("RATE_LIMIT_API_WINDOW_SECONDS"),
		},
		Admin: AdminConfig{
			Email:    v.GetString("ADMIN_EMAIL"),
			Password: v.GetString("ADMIN_PASSWORD"),
		},
	}

	return cfg, nil
}

func splitCSV(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
