package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config aggregates runtime configuration for the storage API.
type Config struct {
	Server    ServerConfig
	Postgres  PostgresConfig
	MinIO     MinIOConfig
	Auth      AuthConfig
	Metrics   MetricsConfig
	Naming    NamingConfig
	Transfer  TransferConfig
	Overlay   OverlayConfig
	Usage     UsageConfig
	RateLimit RateLimitConfig
	Presign   PresignConfig
}

// ServerConfig parameterizes the HTTP server.
type ServerConfig struct {
	Host          string
	Port          int
	ReadTimeout   time.Duration
	WriteTimeout  time.Duration
	IdleTimeout   time.Duration
	MaxUploadSize int64
}

// Address returns the listen address in host:port form.
func (s ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// PostgresConfig contains PostgreSQL connection details.
type PostgresConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
	MaxConns int32
}

// DSN returns the PostgreSQL DSN string.
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		p.User, p.Password, p.Host, p.Port, p.Database, p.SSLMode)
}

// MinIOConfig carries object store connection details.
type MinIOConfig struct {
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	UseSSL          bool
	Region          string
	// OpTimeout bounds every gateway call that has no tighter caller deadline.
	OpTimeout time.Duration
}

// AuthConfig groups authentication-related settings.
type AuthConfig struct {
	AccessTokenSecret  string
	RefreshTokenSecret string
	AccessTokenTTL     time.Duration
	RefreshTokenTTL    time.Duration
	BcryptCost         int
}

// MetricsConfig groups observability settings.
type MetricsConfig struct {
	PrometheusPath string
}

// NamingConfig selects how tenant identities are folded into physical names.
type NamingConfig struct {
	Delimiter   string
	ScopeKeys   bool
	ScopeBucket bool
}

// TransferConfig controls move and rename sequencing.
type TransferConfig struct {
	DeleteTimeout time.Duration
	KeyLocking    bool
}

// OverlayConfig controls how stars and shares follow storage mutations.
type OverlayConfig struct {
	Reconcile bool
}

// UsageConfig parameterizes usage accounting.
type UsageConfig struct {
	TotalStorageGB float64
	Timeout        time.Duration
}

// RateLimitConfig configures the per-user request limiter.
type RateLimitConfig struct {
	Enabled        bool
	RequestsPerSec float64
	Burst          int
}

// PresignConfig configures share links.
type PresignConfig struct {
	TTL    time.Duration
	MaxTTL time.Duration
}

// Load reads configuration values from environment variables, applying defaults.
func Load() (Config, error) {
	cfg := Config{
		Server: ServerConfig{
			Host:          getString("CLOUD_API_HOST", "0.0.0.0"),
			Port:          getInt("CLOUD_API_PORT", 8080),
			ReadTimeout:   getDuration("CLOUD_API_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:  getDuration("CLOUD_API_WRITE_TIMEOUT", 15*time.Minute),
			IdleTimeout:   getDuration("CLOUD_API_IDLE_TIMEOUT", 60*time.Second),
			MaxUploadSize: int64(getInt("CLOUD_MAX_UPLOAD_BYTES", 5<<30)),
		},
		Postgres: PostgresConfig{
			Host:     getString("POSTGRES_HOST", "localhost"),
			Port:     getInt("POSTGRES_PORT", 5432),
			User:     getString("POSTGRES_USER", "cloud_app"),
			Password: getString("POSTGRES_PASSWORD", "change-me"),
			Database: getString("POSTGRES_DB", "cloud"),
			SSLMode:  strings.ToLower(getString("POSTGRES_SSL_MODE", "disable")),
			MaxConns: int32(getInt("POSTGRES_MAX_CONNS", 10)),
		},
		MinIO: MinIOConfig{
			Endpoint:        getString("MINIO_ENDPOINT", "localhost:9000"),
			AccessKeyID:     getString("MINIO_ROOT_USER", "cloud"),
			SecretAccessKey: getString("MINIO_ROOT_PASSWORD", "change-me-strong-password"),
			UseSSL:          getBool("MINIO_USE_SSL", false),
			Region:          getString("MINIO_REGION", ""),
			OpTimeout:       getDuration("MINIO_OP_TIMEOUT", 30*time.Second),
		},
		Auth: loadAuthConfig(),
		Metrics: MetricsConfig{
			PrometheusPath: getString("CLOUD_METRICS_PATH", "/metrics"),
		},
		Naming: NamingConfig{
			Delimiter:   getString("CLOUD_NAME_DELIMITER", "-"),
			ScopeKeys:   getBool("CLOUD_SCOPE_KEYS", false),
			ScopeBucket: getBool("CLOUD_SCOPE_BUCKETS", true),
		},
		Transfer: TransferConfig{
			DeleteTimeout: getDuration("CLOUD_TRANSFER_DELETE_TIMEOUT", 10*time.Second),
			KeyLocking:    getBool("CLOUD_TRANSFER_KEY_LOCKING", false),
		},
		Overlay: OverlayConfig{
			Reconcile: getBool("OVERLAY_RECONCILE", false),
		},
		Usage: UsageConfig{
			TotalStorageGB: getFloat("CLOUD_USAGE_TOTAL_GB", 15),
			Timeout:        getDuration("CLOUD_USAGE_TIMEOUT", 3*time.Second),
		},
		RateLimit: RateLimitConfig{
			Enabled:        getBool("CLOUD_RATE_LIMIT_ENABLED", true),
			RequestsPerSec: getFloat("CLOUD_RATE_LIMIT_RPS", 20),
			Burst:          getInt("CLOUD_RATE_LIMIT_BURST", 40),
		},
		Presign: PresignConfig{
			TTL:    getDuration("CLOUD_PRESIGN_TTL", 15*time.Minute),
			MaxTTL: getDuration("CLOUD_PRESIGN_MAX_TTL", 24*time.Hour),
		},
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	switch c.Naming.Delimiter {
	case "-", ".":
	default:
		return fmt.Errorf("CLOUD_NAME_DELIMITER must be %q or %q, got %q", "-", ".", c.Naming.Delimiter)
	}
	if c.Server.MaxUploadSize <= 0 {
		return fmt.Errorf("CLOUD_MAX_UPLOAD_BYTES must be positive")
	}
	if c.Presign.TTL <= 0 || c.Presign.TTL > c.Presign.MaxTTL {
		return fmt.Errorf("CLOUD_PRESIGN_TTL must be within (0, %s]", c.Presign.MaxTTL)
	}
	return nil
}

func getString(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return fallback
}

func getInt(key string, fallback int) int {
	if val, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.Atoi(val); err == nil {
			return parsed
		}
	}
	return fallback
}

func getFloat(key string, fallback float64) float64 {
	if val, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.ParseFloat(strings.TrimSpace(val), 64); err == nil {
			return parsed
		}
	}
	return fallback
}

func getBool(key string, fallback bool) bool {
	if val, ok := os.LookupEnv(key); ok {
		val = strings.ToLower(strings.TrimSpace(val))
		switch val {
		case "1", "true", "t", "yes", "y":
			return true
		case "0", "false", "f", "no", "n":
			return false
		}
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	if val, ok := os.LookupEnv(key); ok {
		if parsed, err := time.ParseDuration(val); err == nil {
			return parsed
		}
	}
	return fallback
}

func loadAuthConfig() AuthConfig {
	cost := getInt("CLOUD_AUTH_BCRYPT_COST", 12)
	if cost < 4 || cost > 31 {
		cost = 12
	}

	return AuthConfig{
		AccessTokenSecret:  getString("CLOUD_JWT_SECRET", "change-me-to-a-32-byte-secret"),
		RefreshTokenSecret: getString("CLOUD_JWT_REFRESH_SECRET", "change-me-to-a-64-byte-secret"),
		AccessTokenTTL:     getDuration("CLOUD_AUTH_ACCESS_TOKEN_TTL", 15*time.Minute),
		RefreshTokenTTL:    getDuration("CLOUD_AUTH_REFRESH_TOKEN_TTL", 720*time.Hour),
		BcryptCost:         cost,
	}
}
