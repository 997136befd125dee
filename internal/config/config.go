// Package config loads and validates app config from env and an optional .env file using Viper.
package config

import (
	"errors"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	// HTTPAddr is the address the HTTP auth API listens on (e.g. :8081).
	HTTPAddr string `mapstructure:"HTTP_ADDR"`
	// CORSAllowedOrigins is a comma-separated list of browser origins allowed to call the HTTP API. Empty disables CORS.
	CORSAllowedOrigins string `mapstructure:"CORS_ALLOWED_ORIGINS"`
	// GRPCAddr is the address the gRPC server (health + session interceptors) listens on (e.g. :8080).
	GRPCAddr string `mapstructure:"GRPC_ADDR"`
	// DatabaseURL is the Postgres DSN holding accounts, sessions, refresh tokens, and login attempts.
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	// RedisURL is the optional Redis URL for the revocation cache (e.g. redis://localhost:6379/0). Empty disables the cache.
	RedisURL string `mapstructure:"REDIS_URL"`
	// JWTPrivateKey is the PEM-encoded private key (RSA or ECDSA) or path to file; used with JWT_PUBLIC_KEY for RS256/ES256.
	JWTPrivateKey string `mapstructure:"JWT_PRIVATE_KEY"`
	// JWTPublicKey is the PEM-encoded public key or path to file; used with JWT_PRIVATE_KEY.
	JWTPublicKey string `mapstructure:"JWT_PUBLIC_KEY"`
	// JWTIssuer is the iss claim of access tokens.
	JWTIssuer string `mapstructure:"JWT_ISSUER"`
	// JWTAudience is the aud claim of access tokens.
	JWTAudience string `mapstructure:"JWT_AUDIENCE"`
	// JWTAccessTTL is the access token (and session) lifetime (e.g. "24h").
	JWTAccessTTL string `mapstructure:"JWT_ACCESS_TTL"`
	// JWTRefreshTTL is the refresh token lifetime (e.g. "720h").
	JWTRefreshTTL string `mapstructure:"JWT_REFRESH_TTL"`
	// BcryptCost is the bcrypt cost factor (4–31); default 12.
	BcryptCost int `mapstructure:"BCRYPT_COST"`

	// LoginMaxFailures is the number of failed logins inside LoginFailureWindow that blocks an identifier.
	LoginMaxFailures int `mapstructure:"LOGIN_MAX_FAILURES"`
	// LoginFailureWindow is the trailing window used to count failed logins (e.g. "15m").
	LoginFailureWindow string `mapstructure:"LOGIN_FAILURE_WINDOW"`
	// LoginPolicyFile is an optional path to a Rego module replacing the default login policy.
	LoginPolicyFile string `mapstructure:"LOGIN_POLICY_FILE"`

	// SessionRetention is how long expired sessions and refresh tokens are kept for audit before the sweep purges them.
	SessionRetention string `mapstructure:"SESSION_RETENTION"`
	// LoginAttemptRetention is the compliance window for login attempt rows (default three years).
	LoginAttemptRetention string `mapstructure:"LOGIN_ATTEMPT_RETENTION"`
	// SweepInterval is how often the worker runs the retention sweep.
	SweepInterval string `mapstructure:"SWEEP_INTERVAL"`

	// OTelEndpoint is the OTLP gRPC collector endpoint; empty uses no-op providers.
	OTelEndpoint string `mapstructure:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	// OTelInsecure forces a plaintext OTLP connection even for https endpoints.
	OTelInsecure bool `mapstructure:"OTEL_EXPORTER_OTLP_INSECURE"`
	// OTelServiceName is the service.name resource attribute.
	OTelServiceName string `mapstructure:"OTEL_SERVICE_NAME"`

	// Env is the application environment (e.g. "development", "production").
	Env string `mapstructure:"APP_ENV"`
}

// Load reads .env (if present), then builds and validates Config from the environment via Viper.
// Missing .env is ignored (e.g. in CI). Env vars override .env. Returns an error if required fields are invalid.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // ignore ErrConfigFileNotFound

	v.AutomaticEnv()

	v.SetDefault("HTTP_ADDR", ":8081")
	v.SetDefault("CORS_ALLOWED_ORIGINS", "")
	v.SetDefault("GRPC_ADDR", ":8080")
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("REDIS_URL", "")
	v.SetDefault("JWT_ISSUER", "backoffice-auth")
	v.SetDefault("JWT_AUDIENCE", "backoffice-api")
	v.SetDefault("JWT_ACCESS_TTL", "24h")
	v.SetDefault("JWT_REFRESH_TTL", "720h") // 30d
	v.SetDefault("BCRYPT_COST", 12)
	v.SetDefault("LOGIN_MAX_FAILURES", 5)
	v.SetDefault("LOGIN_FAILURE_WINDOW", "15m")
	v.SetDefault("LOGIN_POLICY_FILE", "")
	v.SetDefault("SESSION_RETENTION", "720h")
	v.SetDefault("LOGIN_ATTEMPT_RETENTION", "26280h") // 3y
	v.SetDefault("SWEEP_INTERVAL", "1h")
	v.SetDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	v.SetDefault("OTEL_EXPORTER_OTLP_INSECURE", false)
	v.SetDefault("OTEL_SERVICE_NAME", "backoffice-auth")
	v.SetDefault("APP_ENV", "")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if cfg.HTTPAddr == "" {
		return nil, errors.New("config: HTTP_ADDR must be set")
	}
	if cfg.GRPCAddr == "" {
		return nil, errors.New("config: GRPC_ADDR must be set")
	}

	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = 12
	}
	if cfg.BcryptCost < 4 || cfg.BcryptCost > 31 {
		return nil, errors.New("config: BCRYPT_COST must be between 4 and 31")
	}

	if cfg.LoginMaxFailures <= 0 {
		return nil, errors.New("config: LOGIN_MAX_FAILURES must be positive")
	}

	if cfg.Env == "production" && cfg.BcryptCost < 10 {
		return nil, errors.New("config: BCRYPT_COST below 10 is not allowed when APP_ENV=production")
	}

	return &cfg, nil
}

// AccessTTL parses JWTAccessTTL as a time.Duration. Returns 24h if unset or invalid.
func (c *Config) AccessTTL() time.Duration {
	return parseDuration(c.JWTAccessTTL, 24*time.Hour)
}

// RefreshTTL parses JWTRefreshTTL as a time.Duration. Returns 720h if unset or invalid.
func (c *Config) RefreshTTL() time.Duration {
	return parseDuration(c.JWTRefreshTTL, 720*time.Hour)
}

// FailureWindow parses LoginFailureWindow. Returns 15m if unset or invalid.
func (c *Config) FailureWindow() time.Duration {
	return parseDuration(c.LoginFailureWindow, 15*time.Minute)
}

// SessionRetentionPeriod parses SessionRetention. Returns 720h if unset or invalid.
func (c *Config) SessionRetentionPeriod() time.Duration {
	return parseDuration(c.SessionRetention, 720*time.Hour)
}

// LoginAttemptRetentionPeriod parses LoginAttemptRetention. Returns 26280h if unset or invalid.
func (c *Config) LoginAttemptRetentionPeriod() time.Duration {
	return parseDuration(c.LoginAttemptRetention, 26280*time.Hour)
}

// SweepEvery parses SweepInterval. Returns 1h if unset or invalid.
func (c *Config) SweepEvery() time.Duration {
	return parseDuration(c.SweepInterval, time.Hour)
}

// AllowedOrigins splits CORSAllowedOrigins on commas, dropping blanks.
func (c *Config) AllowedOrigins() []string {
	var out []string
	for _, o := range strings.Split(c.CORSAllowedOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
