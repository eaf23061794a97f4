// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package config

import (
	"fmt"
	"strings"
	"time"

	altsrc "github.com/urfave/cli-altsrc/v3"
	"github.com/urfave/cli-altsrc/v3/toml"
	"github.com/urfave/cli/v3"
)

var configFile = altsrc.StringSourcer("config.toml")

// DefaultAPIBaseURL is the study backend used when none is configured.
const DefaultAPIBaseURL = "http://localhost:8081"

type Config struct { //nolint:govet // fieldalignment not critical for config structs
	Server    ServerConfig
	Log       LogConfig
	Database  DatabaseConfig
	TLS       TLSConfig
	Session   SessionConfig
	API       APIConfig
	Study     StudyConfig
	SMTP      SMTPConfig
	OTP       OTPConfig
	RateLimit RateLimitConfig
}

type TLSConfig struct {
	Mode     string // auto, acme, selfsigned, manual, off
	CertDir  string // Directory for auto-generated certificates
	Email    string // ACME email for Let's Encrypt
	CertFile string // Path to certificate file (manual mode)
	KeyFile  string // Path to private key file (manual mode)
}

type ServerConfig struct { //nolint:govet // fieldalignment not critical for config structs
	Host        string
	Port        int
	BaseURL     string
	MaxBodySize int // in MB
}

type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // text, json
}

type DatabaseConfig struct {
	DSN string
}

type SessionConfig struct { //nolint:govet // fieldalignment not critical
	CookieName string // Session cookie name
	MaxAge     int    // Server-side session lifetime in seconds
	Persist    bool   // Send Max-Age with the cookie instead of a browser-session cookie
	HashKey    string // 32-byte hex string for HMAC signing
	BlockKey   string // 32-byte hex string for AES encryption (optional)
}

// APIConfig points at the study backend.
type APIConfig struct {
	BaseURL string
	Timeout time.Duration
}

// StudyConfig holds the contact details shown to participants.
type StudyConfig struct {
	Name         string
	SupportEmail string
	SupportPhone string
}

// SMTPConfig configures the support notification mail. An empty host
// disables mail.
type SMTPConfig struct { //nolint:govet // fieldalignment not critical
	Host     string
	Port     int
	Username string
	Password string
	From     string
	FromName string
	TLS      bool
}

// OTPConfig tunes the verification flow.
type OTPConfig struct {
	ResendSeconds int
	IdleTimeout   time.Duration
}

// RateLimitConfig limits OTP send and resend requests per client IP.
type RateLimitConfig struct {
	Rate      float64 // requests per second
	Burst     int
	ExpiresIn time.Duration
}

func NewFromCLI(cmd *cli.Command) *Config {
	cfg := &Config{
		Server: ServerConfig{
			Host:        cmd.String("host"),
			Port:        int(cmd.Int("port")),
			BaseURL:     cmd.String("base-url"),
			MaxBodySize: int(cmd.Int("max-body-size")),
		},
		Log: LogConfig{
			Level:  cmd.String("log-level"),
			Format: cmd.String("log-format"),
		},
		Database: DatabaseConfig{
			DSN: cmd.String("database-dsn"),
		},
		TLS: TLSConfig{
			Mode:     cmd.String("tls-mode"),
			CertDir:  cmd.String("tls-cert-dir"),
			Email:    cmd.String("tls-email"),
			CertFile: cmd.String("tls-cert-file"),
			KeyFile:  cmd.String("tls-key-file"),
		},
		Session: SessionConfig{
			CookieName: cmd.String("session-cookie-name"),
			MaxAge:     int(cmd.Int("session-max-age")),
			Persist:    cmd.Bool("session-persist"),
			HashKey:    cmd.String("session-hash-key"),
			BlockKey:   cmd.String("session-block-key"),
		},
		API: APIConfig{
			BaseURL: cmd.String("api-base-url"),
			Timeout: cmd.Duration("api-timeout"),
		},
		Study: StudyConfig{
			Name:         cmd.String("study-name"),
			SupportEmail: cmd.String("study-support-email"),
			SupportPhone: cmd.String("study-support-phone"),
		},
		SMTP: SMTPConfig{
			Host:     cmd.String("smtp-host"),
			Port:     int(cmd.Int("smtp-port")),
			Username: cmd.String("smtp-username"),
			Password: cmd.String("smtp-password"),
			From:     cmd.String("smtp-from"),
			FromName: cmd.String("smtp-from-name"),
			TLS:      cmd.Bool("smtp-tls"),
		},
		OTP: OTPConfig{
			ResendSeconds: int(cmd.Int("otp-resend-seconds")),
			IdleTimeout:   cmd.Duration("otp-idle-timeout"),
		},
		RateLimit: RateLimitConfig{
			Rate:      cmd.Float("ratelimit-rate"),
			Burst:     int(cmd.Int("ratelimit-burst")),
			ExpiresIn: cmd.Duration("ratelimit-expires-in"),
		},
	}

	if cfg.Server.BaseURL == "" {
		cfg.Server.BaseURL = buildBaseURL(cfg)
	}

	applyAPIDefaults(cfg)

	return cfg
}

// applyAPIDefaults normalizes the backend base URL.
func applyAPIDefaults(cfg *Config) {
	cfg.API.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.API.BaseURL), "/")
	if cfg.API.BaseURL == "" {
		cfg.API.BaseURL = DefaultAPIBaseURL
	}
	if cfg.API.Timeout <= 0 {
		cfg.API.Timeout = 30 * time.Second
	}
	if cfg.OTP.ResendSeconds <= 0 {
		cfg.OTP.ResendSeconds = 60
	}
}

func buildBaseURL(cfg *Config) string {
	host := cfg.Server.Host
	port := cfg.Server.Port
	mode := strings.ToLower(cfg.TLS.Mode)

	useTLS := shouldUseTLS(mode, host)

	scheme := "http"
	if useTLS {
		scheme = "https"
	}

	// ACME mode always uses port 443
	if mode == "acme" {
		return fmt.Sprintf("https://%s", host)
	}

	// Hide default ports in URL
	if (scheme == "http" && port == 80) || (scheme == "https" && port == 443) {
		return fmt.Sprintf("%s://%s", scheme, host)
	}
	return fmt.Sprintf("%s://%s:%d", scheme, host, port)
}

func shouldUseTLS(mode, host string) bool {
	switch mode {
	case "off":
		return false
	case "acme", "selfsigned", "manual":
		return true
	default: // "auto" or empty
		return !IsLocalhost(host)
	}
}

// IsLocalhost checks if the host is a localhost address.
func IsLocalhost(host string) bool {
	switch host {
	case "", "localhost", "127.0.0.1", "::1":
		return true
	}
	return strings.HasSuffix(host, ".localhost")
}

func source(env, key string) cli.ValueSourceChain {
	return cli.NewValueSourceChain(cli.EnvVar(env), toml.TOML(key, configFile))
}

func Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "host",
			Value:   "localhost",
			Usage:   "Host to bind to",
			Sources: source("HOST", "server.host"),
		},
		&cli.IntFlag{
			Name:    "port",
			Value:   8080,
			Usage:   "Port to listen on",
			Sources: source("PORT", "server.port"),
		},
		&cli.StringFlag{
			Name:    "base-url",
			Usage:   "Base URL for the application",
			Sources: source("BASE_URL", "server.base_url"),
		},
		&cli.IntFlag{
			Name:    "max-body-size",
			Value:   5,
			Usage:   "Maximum request body size in MB",
			Sources: source("MAX_BODY_SIZE", "server.max_body_size"),
		},
		&cli.StringFlag{
			Name:    "log-level",
			Value:   "info",
			Usage:   "Log level (debug, info, warn, error)",
			Sources: source("LOG_LEVEL", "log.level"),
		},
		&cli.StringFlag{
			Name:    "log-format",
			Value:   "text",
			Usage:   "Log format (text, json)",
			Sources: source("LOG_FORMAT", "log.format"),
		},
		&cli.StringFlag{
			Name:    "database-dsn",
			Value:   "./data/portal.db",
			Usage:   "Database DSN",
			Sources: source("DATABASE_DSN", "database.dsn"),
		},
		&cli.StringFlag{
			Name:    "tls-mode",
			Value:   "auto",
			Usage:   "TLS mode (auto, acme, selfsigned, manual, off)",
			Sources: source("TLS_MODE", "tls.mode"),
		},
		&cli.StringFlag{
			Name:    "tls-cert-dir",
			Value:   "./data/certs",
			Usage:   "Directory for auto-generated certificates",
			Sources: source("TLS_CERT_DIR", "tls.cert_dir"),
		},
		&cli.StringFlag{
			Name:    "tls-email",
			Usage:   "Email for ACME/Let's Encrypt registration",
			Sources: source("TLS_EMAIL", "tls.email"),
		},
		&cli.StringFlag{
			Name:    "tls-cert-file",
			Usage:   "Path to TLS certificate file (manual mode)",
			Sources: source("TLS_CERT_FILE", "tls.cert_file"),
		},
		&cli.StringFlag{
			Name:    "tls-key-file",
			Usage:   "Path to TLS private key file (manual mode)",
			Sources: source("TLS_KEY_FILE", "tls.key_file"),
		},
		// Session flags
		&cli.StringFlag{
			Name:    "session-cookie-name",
			Value:   "_portal_session",
			Usage:   "Session cookie name",
			Sources: source("SESSION_COOKIE_NAME", "session.cookie_name"),
		},
		&cli.IntFlag{
			Name:    "session-max-age",
			Value:   86400, // 1 day in seconds
			Usage:   "Server-side session lifetime in seconds",
			Sources: source("SESSION_MAX_AGE", "session.max_age"),
		},
		&cli.BoolFlag{
			Name:    "session-persist",
			Usage:   "Keep the session cookie across browser restarts",
			Sources: source("SESSION_PERSIST", "session.persist"),
		},
		&cli.StringFlag{
			Name:    "session-hash-key",
			Usage:   "Session hash key (32-byte hex, auto-generated if empty in dev)",
			Sources: source("SESSION_HASH_KEY", "session.hash_key"),
		},
		&cli.StringFlag{
			Name:    "session-block-key",
			Usage:   "Session block key for encryption (32-byte hex, optional)",
			Sources: source("SESSION_BLOCK_KEY", "session.block_key"),
		},
		// Backend flags
		&cli.StringFlag{
			Name:    "api-base-url",
			Value:   DefaultAPIBaseURL,
			Usage:   "Base URL of the study backend",
			Sources: source("API_BASE_URL", "api.base_url"),
		},
		&cli.DurationFlag{
			Name:    "api-timeout",
			Value:   30 * time.Second,
			Usage:   "Timeout for backend requests",
			Sources: source("API_TIMEOUT", "api.timeout"),
		},
		// Study flags
		&cli.StringFlag{
			Name:    "study-name",
			Value:   "AI Use Study",
			Usage:   "Study name shown in page titles",
			Sources: source("STUDY_NAME", "study.name"),
		},
		&cli.StringFlag{
			Name:    "study-support-email",
			Usage:   "Support email shown on notices",
			Sources: source("STUDY_SUPPORT_EMAIL", "study.support_email"),
		},
		&cli.StringFlag{
			Name:    "study-support-phone",
			Usage:   "Support phone shown on notices",
			Sources: source("STUDY_SUPPORT_PHONE", "study.support_phone"),
		},
		// SMTP flags
		&cli.StringFlag{
			Name:    "smtp-host",
			Usage:   "SMTP host for support notifications (empty disables mail)",
			Sources: source("SMTP_HOST", "smtp.host"),
		},
		&cli.IntFlag{
			Name:    "smtp-port",
			Value:   587,
			Usage:   "SMTP port",
			Sources: source("SMTP_PORT", "smtp.port"),
		},
		&cli.StringFlag{
			Name:    "smtp-username",
			Usage:   "SMTP username",
			Sources: source("SMTP_USERNAME", "smtp.username"),
		},
		&cli.StringFlag{
			Name:    "smtp-password",
			Usage:   "SMTP password",
			Sources: source("SMTP_PASSWORD", "smtp.password"),
		},
		&cli.StringFlag{
			Name:    "smtp-from",
			Usage:   "Sender address",
			Sources: source("SMTP_FROM", "smtp.from"),
		},
		&cli.StringFlag{
			Name:    "smtp-from-name",
			Usage:   "Sender display name",
			Sources: source("SMTP_FROM_NAME", "smtp.from_name"),
		},
		&cli.BoolFlag{
			Name:    "smtp-tls",
			Value:   true,
			Usage:   "Require TLS for SMTP",
			Sources: source("SMTP_TLS", "smtp.tls"),
		},
		// Verification flags
		&cli.IntFlag{
			Name:    "otp-resend-seconds",
			Value:   60,
			Usage:   "Seconds before a code can be resent",
			Sources: source("OTP_RESEND_SECONDS", "otp.resend_seconds"),
		},
		&cli.DurationFlag{
			Name:    "otp-idle-timeout",
			Value:   30 * time.Minute,
			Usage:   "Idle time after which a verification flow is discarded",
			Sources: source("OTP_IDLE_TIMEOUT", "otp.idle_timeout"),
		},
		// Rate limit flags
		&cli.FloatFlag{
			Name:    "ratelimit-rate",
			Value:   0.2,
			Usage:   "Code requests per second per client",
			Sources: source("RATELIMIT_RATE", "ratelimit.rate"),
		},
		&cli.IntFlag{
			Name:    "ratelimit-burst",
			Value:   5,
			Usage:   "Code request burst per client",
			Sources: source("RATELIMIT_BURST", "ratelimit.burst"),
		},
		&cli.DurationFlag{
			Name:    "ratelimit-expires-in",
			Value:   10 * time.Minute,
			Usage:   "How long an idle client limiter is kept",
			Sources: source("RATELIMIT_EXPIRES_IN", "ratelimit.expires_in"),
		},
	}
}
