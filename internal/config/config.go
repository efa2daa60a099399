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
	// HTTPAddr is the address the HTTP server listens on (e.g. :8080).
	HTTPAddr string `mapstructure:"HTTP_ADDR"`
	// DatabaseURL is the Postgres DSN.
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	// RedisAddr is the Redis address for challenge state and the token
	// denylist; empty falls back to in-memory stores (single node only).
	RedisAddr string `mapstructure:"REDIS_ADDR"`
	// RedisPassword is the optional Redis AUTH password.
	RedisPassword string `mapstructure:"REDIS_PASSWORD"`
	// JWTPrivateKey is the PEM-encoded private key (RSA or ECDSA) or path to file.
	JWTPrivateKey string `mapstructure:"JWT_PRIVATE_KEY"`
	// JWTPublicKey is the PEM-encoded public key or path to file, paired with JWT_PRIVATE_KEY under JWT_KEY_ID.
	JWTPublicKey string `mapstructure:"JWT_PUBLIC_KEY"`
	// JWTKeyID is the kid the active key signs under (e.g. "2026-08").
	JWTKeyID string `mapstructure:"JWT_KEY_ID"`
	// JWTVerifyKeys is a comma-separated list of kid=pem-or-path pairs for
	// retired keys kept verify-only during rotation.
	JWTVerifyKeys string `mapstructure:"JWT_VERIFY_KEYS"`
	// JWTIssuer is the iss claim.
	JWTIssuer string `mapstructure:"JWT_ISSUER"`
	// JWTAudience is the aud claim.
	JWTAudience string `mapstructure:"JWT_AUDIENCE"`
	// JWTAccessTTL is the access token lifetime (e.g. "15m").
	JWTAccessTTL string `mapstructure:"JWT_ACCESS_TTL"`
	// JWTRefreshTTL is the refresh token lifetime and session expiry horizon (e.g. "720h").
	JWTRefreshTTL string `mapstructure:"JWT_REFRESH_TTL"`
	// BcryptCost is the bcrypt cost factor (4 to 31); default 12.
	BcryptCost int `mapstructure:"BCRYPT_COST"`
	// RequireEmailVerification makes registration create users in the
	// unverified state until verification activates them.
	RequireEmailVerification bool `mapstructure:"REQUIRE_EMAIL_VERIFICATION"`
	// MFAChallengeTTL bounds how long an MFA challenge stays verifiable (e.g. "5m").
	MFAChallengeTTL string `mapstructure:"MFA_CHALLENGE_TTL"`
	// MFAMaxAttempts is the per-challenge attempt cap; default 5.
	MFAMaxAttempts int64 `mapstructure:"MFA_MAX_ATTEMPTS"`
	// TenantHeader names the header a trusted gateway may resolve tenants
	// through for unauthenticated endpoints; empty disables header resolution.
	TenantHeader string `mapstructure:"TENANT_HEADER"`
	// TenantHeaderSecret must match X-Gateway-Secret for the tenant header to
	// be trusted. Required when TENANT_HEADER is set.
	TenantHeaderSecret string `mapstructure:"TENANT_HEADER_SECRET"`
	// SMSAPIKey is the API key for the SMS provider delivering MFA codes.
	SMSAPIKey string `mapstructure:"SMS_API_KEY"`
	// SMSSender is the optional sender ID.
	SMSSender string `mapstructure:"SMS_SENDER"`
	// SMSBaseURL is the SMS provider API base URL.
	SMSBaseURL string `mapstructure:"SMS_BASE_URL"`
	// RateLimitRPS is the per-client token bucket refill rate for
	// authentication endpoints; 0 disables rate limiting.
	RateLimitRPS float64 `mapstructure:"RATE_LIMIT_RPS"`
	// RateLimitBurst is the per-client token bucket size.
	RateLimitBurst int `mapstructure:"RATE_LIMIT_BURST"`
	// SweepInterval is how often the sweeper flips expired sessions (e.g. "10m").
	SweepInterval string `mapstructure:"SWEEP_INTERVAL"`
	// Env is the application environment (e.g. "development", "production").
	Env string `mapstructure:"APP_ENV"`

	// KafkaBrokers is a comma-separated list of Kafka broker addresses.
	// When set, security events are emitted to Kafka.
	KafkaBrokers string `mapstructure:"KAFKA_BROKERS"`
	// SecurityEventTopic is the Kafka topic for security events.
	SecurityEventTopic string `mapstructure:"SECURITY_EVENT_TOPIC"`

	// OTLPEndpoint enables OpenTelemetry export when set (e.g. localhost:4317).
	OTLPEndpoint string `mapstructure:"OTLP_ENDPOINT"`
	// ServiceName is the resource service.name reported to the collector.
	ServiceName string `mapstructure:"SERVICE_NAME"`
}

// Load reads .env (if present), then builds and validates Config from the environment via Viper.
// Missing .env is ignored (e.g. in CI). Env vars override .env. Returns an error if required fields are invalid.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // ignore ErrConfigFileNotFound

	v.AutomaticEnv()

	v.SetDefault("HTTP_ADDR", ":8080")
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("REDIS_ADDR", "")
	v.SetDefault("JWT_KEY_ID", "default")
	v.SetDefault("JWT_ISSUER", "janua-auth")
	v.SetDefault("JWT_AUDIENCE", "janua-api")
	v.SetDefault("JWT_ACCESS_TTL", "15m")
	v.SetDefault("JWT_REFRESH_TTL", "720h") // 30d
	v.SetDefault("BCRYPT_COST", 12)
	v.SetDefault("REQUIRE_EMAIL_VERIFICATION", false)
	v.SetDefault("MFA_CHALLENGE_TTL", "5m")
	v.SetDefault("MFA_MAX_ATTEMPTS", 5)
	v.SetDefault("TENANT_HEADER", "")
	v.SetDefault("SMS_BASE_URL", "https://app.smslocal.in/api/smsapi")
	v.SetDefault("RATE_LIMIT_RPS", 5.0)
	v.SetDefault("RATE_LIMIT_BURST", 10)
	v.SetDefault("SWEEP_INTERVAL", "10m")
	v.SetDefault("APP_ENV", "")
	v.SetDefault("KAFKA_BROKERS", "")
	v.SetDefault("SECURITY_EVENT_TOPIC", "janua-security-events")
	v.SetDefault("OTLP_ENDPOINT", "")
	v.SetDefault("SERVICE_NAME", "janua-engine")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if cfg.HTTPAddr == "" {
		return nil, errors.New("config: HTTP_ADDR must be set")
	}
	if cfg.TenantHeader != "" && cfg.TenantHeaderSecret == "" {
		return nil, errors.New("config: TENANT_HEADER_SECRET must be set when TENANT_HEADER is set")
	}

	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = 12
	}
	if cfg.BcryptCost < 4 || cfg.BcryptCost > 31 {
		return nil, errors.New("config: BCRYPT_COST must be between 4 and 31")
	}
	if cfg.MFAMaxAttempts <= 0 {
		cfg.MFAMaxAttempts = 5
	}

	return &cfg, nil
}

// AccessTTL parses JWTAccessTTL as a time.Duration. Returns 15m if unset or invalid.
func (c *Config) AccessTTL() time.Duration {
	d, err := time.ParseDuration(c.JWTAccessTTL)
	if err != nil || d <= 0 {
		return 15 * time.Minute
	}
	return d
}

// RefreshTTL parses JWTRefreshTTL as a time.Duration. Returns 720h if unset or invalid.
func (c *Config) RefreshTTL() time.Duration {
	d, err := time.ParseDuration(c.JWTRefreshTTL)
	if err != nil || d <= 0 {
		return 720 * time.Hour
	}
	return d
}

// ChallengeTTL parses MFAChallengeTTL. Returns 5m if unset or invalid.
func (c *Config) ChallengeTTL() time.Duration {
	d, err := time.ParseDuration(c.MFAChallengeTTL)
	if err != nil || d <= 0 {
		return 5 * time.Minute
	}
	return d
}

// SweepEvery parses SweepInterval. Returns 10m if unset or invalid.
func (c *Config) SweepEvery() time.Duration {
	d, err := time.ParseDuration(c.SweepInterval)
	if err != nil || d <= 0 {
		return 10 * time.Minute
	}
	return d
}

// KafkaBrokersList returns Kafka broker addresses from the comma-separated config.
// A non-empty list enables the Kafka security event emitter.
func (c *Config) KafkaBrokersList() []string {
	if c == nil || c.KafkaBrokers == "" {
		return nil
	}
	parts := strings.Split(c.KafkaBrokers, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// VerifyKeyPairs parses JWT_VERIFY_KEYS into kid → PEM-or-path entries.
// Malformed entries are skipped.
func (c *Config) VerifyKeyPairs() map[string]string {
	if c == nil || c.JWTVerifyKeys == "" {
		return nil
	}
	out := make(map[string]string)
	for _, entry := range strings.Split(c.JWTVerifyKeys, ",") {
		kid, pem, ok := strings.Cut(strings.TrimSpace(entry), "=")
		if !ok || kid == "" || pem == "" {
			continue
		}
		out[kid] = pem
	}
	return out
}
