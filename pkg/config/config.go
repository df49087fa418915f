package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/platinummonkey/agora/pkg/audit"
	"github.com/platinummonkey/agora/pkg/database"
	"github.com/platinummonkey/agora/pkg/middleware"
	"github.com/platinummonkey/agora/pkg/observability"
	"github.com/platinummonkey/agora/pkg/session"
	"github.com/platinummonkey/agora/pkg/storage"
)

// EnvPrefix is prepended to every environment variable name
const EnvPrefix = "AGORA_"

// Backend names accepted in AGORA_STORAGE_BACKENDS
const (
	BackendLocal  = "local"
	BackendS3     = "s3"
	BackendWebDAV = "webdav"
)

// Config holds all application configuration
type Config struct {
	Server        ServerConfig               `envPrefix:"SERVER_"`
	Database      database.Config            `envPrefix:"DATABASE_"`
	Redis         RedisConfig                `envPrefix:"REDIS_"`
	Session       session.Config             `envPrefix:"SESSION_"`
	Storage       StorageConfig              `envPrefix:"STORAGE_"`
	Observability ObservabilityConfig        `envPrefix:"OBSERVABILITY_"`
	RateLimit     middleware.RateLimitConfig `envPrefix:"SIGNIN_RATE_LIMIT_"`
	Audit         audit.FileLoggerConfig     `envPrefix:"AUDIT_"`
	Roles         RolesConfig                `envPrefix:"ROLES_"`
	Bootstrap     BootstrapConfig            `envPrefix:"BOOTSTRAP_ADMIN_"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Addr            string        `env:"ADDR" envDefault:":8080"`
	ReadTimeout     time.Duration `env:"READ_TIMEOUT" envDefault:"15s"`
	WriteTimeout    time.Duration `env:"WRITE_TIMEOUT" envDefault:"60s"`
	IdleTimeout     time.Duration `env:"IDLE_TIMEOUT" envDefault:"60s"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"30s"`

	// Health and metrics listen separately for probes and scrapers
	HealthAddr string `env:"HEALTH_ADDR" envDefault:":9090"`

	AllowedOrigins []string `env:"ALLOWED_ORIGINS" envSeparator:","`
	SSLRedirect    bool     `env:"SSL_REDIRECT"`
	Development    bool     `env:"DEVELOPMENT"`
	MaxUploadBytes int64    `env:"MAX_UPLOAD_BYTES" envDefault:"33554432"`

	// Where denied users are sent by page guards
	PageFallback string `env:"PAGE_FALLBACK" envDefault:"/"`
}

// RedisConfig holds the optional Redis connection
type RedisConfig struct {
	URL string `env:"URL"`
}

// Enabled reports whether a Redis URL is configured
func (c RedisConfig) Enabled() bool {
	return c.URL != ""
}

// StorageConfig selects and configures the file gateway backends
type StorageConfig struct {
	Backends  []string             `env:"BACKENDS" envSeparator:"," envDefault:"local"`
	LocalRoot string               `env:"LOCAL_ROOT" envDefault:"./data/files"`
	S3        storage.S3Config     `envPrefix:"S3_"`
	WebDAV    storage.WebDAVConfig `envPrefix:"WEBDAV_"`
}

// Enabled reports whether the named backend is configured
func (c StorageConfig) Enabled(name string) bool {
	for _, b := range c.Backends {
		if b == name {
			return true
		}
	}
	return false
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	LogLevel       observability.LogLevel   `env:"LOG_LEVEL" envDefault:"info"`
	MetricsEnabled bool                     `env:"METRICS_ENABLED" envDefault:"true"`
	OTel           observability.OTelConfig `envPrefix:"OTEL_"`
	// StatsSchedule is the cron spec for refreshing account and pool gauges
	StatsSchedule string `env:"STATS_SCHEDULE" envDefault:"@every 1m"`
}

// RolesConfig controls role seeding
type RolesConfig struct {
	// SeedFile replaces the built-in role definitions when set
	SeedFile string `env:"SEED_FILE"`
	// DefaultRole is assigned to accounts when an administrator approves them
	DefaultRole string `env:"DEFAULT_ROLE" envDefault:"member"`
}

// BootstrapConfig creates an administrator account on start-up when Email is set
type BootstrapConfig struct {
	Email    string `env:"EMAIL"`
	Name     string `env:"NAME" envDefault:"Administrator"`
	Password string `env:"PASSWORD"`
}

// Load reads optional .env files, then parses and validates the process
// environment. With no files, ".env" is tried.
func Load(envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		// existing variables win over .env values
		if err := godotenv.Load(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to load %s: %w", f, err)
		}
	}
	return Parse(nil)
}

// Parse builds the configuration from environment, or from the process
// environment when it is nil
func Parse(environment map[string]string) (*Config, error) {
	var cfg Config
	opts := env.Options{Prefix: EnvPrefix}
	if environment != nil {
		opts.Environment = environment
	}
	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &cfg, nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Addr == "" {
		errs = append(errs, errors.New("server address is required"))
	}
	if c.Server.HealthAddr != "" && c.Server.Addr == c.Server.HealthAddr {
		errs = append(errs, errors.New("server address and health address must be different"))
	}
	if !strings.HasPrefix(c.Server.PageFallback, "/") {
		errs = append(errs, errors.New("page fallback must be a local path"))
	}

	switch c.Database.Driver {
	case database.DriverPostgres, database.DriverSQLite:
	default:
		errs = append(errs, fmt.Errorf("invalid database driver %q (must be %s or %s)", c.Database.Driver, database.DriverPostgres, database.DriverSQLite))
	}
	if c.Database.URL == "" {
		errs = append(errs, errors.New("database URL is required"))
	}

	if len(c.Session.Secret) < session.MinSecretLength {
		errs = append(errs, fmt.Errorf("session secret must be at least %d bytes", session.MinSecretLength))
	}
	switch c.Session.Revocations {
	case "memory":
	case "redis":
		if !c.Redis.Enabled() {
			errs = append(errs, errors.New("redis URL is required for redis session revocations"))
		}
	default:
		errs = append(errs, fmt.Errorf("invalid session revocation store %q (must be memory or redis)", c.Session.Revocations))
	}

	if len(c.Storage.Backends) == 0 {
		errs = append(errs, errors.New("at least one storage backend is required"))
	}
	for _, b := range c.Storage.Backends {
		switch b {
		case BackendLocal:
			if c.Storage.LocalRoot == "" {
				errs = append(errs, errors.New("local root is required for the local backend"))
			}
		case BackendS3:
			if c.Storage.S3.Bucket == "" {
				errs = append(errs, errors.New("S3 bucket is required for the s3 backend"))
			}
		case BackendWebDAV:
			if c.Storage.WebDAV.URL == "" {
				errs = append(errs, errors.New("WebDAV URL is required for the webdav backend"))
			}
		default:
			errs = append(errs, fmt.Errorf("invalid storage backend %q (must be local, s3 or webdav)", b))
		}
	}

	if c.Observability.OTel.Enabled {
		if c.Observability.OTel.Endpoint == "" {
			errs = append(errs, errors.New("OpenTelemetry endpoint is required when OTel is enabled"))
		}
		if r := c.Observability.OTel.SampleRatio; r < 0 || r > 1 {
			errs = append(errs, errors.New("OpenTelemetry sample ratio must be between 0 and 1"))
		}
	}

	if c.RateLimit.RequestsPerWindow <= 0 || c.RateLimit.WindowDuration <= 0 {
		errs = append(errs, errors.New("sign-in rate limit must allow at least one request per positive window"))
	}

	if c.Bootstrap.Email != "" && len(c.Bootstrap.Password) < 12 {
		errs = append(errs, errors.New("bootstrap admin password must be at least 12 characters"))
	}

	return errors.Join(errs...)
}
