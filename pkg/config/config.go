package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/menuboard/menuboard/pkg/access"
	"github.com/menuboard/menuboard/pkg/middleware"
	"github.com/menuboard/menuboard/pkg/observability"
	"github.com/menuboard/menuboard/pkg/scheduler"
	"github.com/menuboard/menuboard/pkg/storage"
)

// Config holds all application configuration
type Config struct {
	// Server configuration
	Server ServerConfig

	// Storage configuration
	Database storage.ConnectionConfig
	Redis    storage.RedisConfig

	// Subscription engine configuration
	Billing   BillingConfig
	Access    access.Config
	Scheduler SchedulerConfig

	// API surface
	Auth      AuthConfig
	RateLimit RateLimitConfig
	Gate      middleware.GateConfig

	// Observability configuration
	Observability ObservabilityConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	MaxBodyBytes    int64

	// Health/metrics server (separate port for k8s probes)
	HealthPort string
}

// BillingConfig holds subscription service settings
type BillingConfig struct {
	// PricingFile is an optional YAML price list; empty means built-in prices
	PricingFile string
	// RenewalLookahead is how far before the end date a period is renewed
	RenewalLookahead time.Duration
}

// SchedulerConfig holds renewal batch settings
type SchedulerConfig struct {
	scheduler.Config
	// Schedule is the cron expression used by the renewal worker
	Schedule string
	// LockPrefix namespaces run locks in Redis
	LockPrefix string
}

// AuthConfig holds the bearer tokens accepted by the API
type AuthConfig struct {
	Tokens []middleware.APIToken
}

// RateLimitConfig holds per-caller rate limit settings
type RateLimitConfig struct {
	middleware.RateLimitConfig
	Enabled bool
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	// Logging
	LogLevel  string
	LogFormat string

	// Metrics
	MetricsEnabled bool

	// OpenTelemetry
	OTel observability.OTelConfig
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	auth, err := loadAuthConfig()
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Server:        loadServerConfig(),
		Database:      loadDatabaseConfig(),
		Redis:         loadRedisConfig(),
		Billing:       loadBillingConfig(),
		Access:        loadAccessConfig(),
		Scheduler:     loadSchedulerConfig(),
		Auth:          auth,
		RateLimit:     loadRateLimitConfig(),
		Gate:          loadGateConfig(),
		Observability: loadObservabilityConfig(),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// loadServerConfig loads server configuration from environment
func loadServerConfig() ServerConfig {
	return ServerConfig{
		Host:            getEnv("MENUBOARD_HOST", "0.0.0.0"),
		Port:            getEnv("MENUBOARD_PORT", "8080"),
		ReadTimeout:     getEnvDuration("MENUBOARD_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:    getEnvDuration("MENUBOARD_WRITE_TIMEOUT", 60*time.Second),
		IdleTimeout:     getEnvDuration("MENUBOARD_IDLE_TIMEOUT", 60*time.Second),
		ShutdownTimeout: getEnvDuration("MENUBOARD_SHUTDOWN_TIMEOUT", 30*time.Second),
		MaxBodyBytes:    getEnvInt64("MENUBOARD_MAX_BODY_BYTES", 1<<20),
		HealthPort:      getEnv("MENUBOARD_HEALTH_PORT", "9090"),
	}
}

// loadDatabaseConfig loads PostgreSQL configuration from environment
func loadDatabaseConfig() storage.ConnectionConfig {
	return storage.ConnectionConfig{
		PrimaryURL:  getEnv("MENUBOARD_POSTGRES_URL", ""),
		ReplicaURLs: storage.ParseReplicaURLs(getEnv("MENUBOARD_POSTGRES_REPLICA_URLS", "")),
		MaxConns:    getEnvInt("MENUBOARD_POSTGRES_MAX_CONNS", 20),
		MinConns:    getEnvInt("MENUBOARD_POSTGRES_MIN_CONNS", 2),
		Timeout:     getEnvDuration("MENUBOARD_POSTGRES_TIMEOUT", 10*time.Second),
		MaxLifetime: getEnvDuration("MENUBOARD_POSTGRES_MAX_LIFETIME", 30*time.Minute),
		MaxIdleTime: getEnvDuration("MENUBOARD_POSTGRES_MAX_IDLE_TIME", 5*time.Minute),
	}
}

// loadRedisConfig loads Redis configuration from environment. An empty URL
// disables Redis.
func loadRedisConfig() storage.RedisConfig {
	return storage.RedisConfig{
		URL:        getEnv("MENUBOARD_REDIS_URL", ""),
		Password:   getEnv("MENUBOARD_REDIS_PASSWORD", ""),
		DB:         getEnvInt("MENUBOARD_REDIS_DB", 0),
		MaxRetries: getEnvInt("MENUBOARD_REDIS_MAX_RETRIES", 3),
		PoolSize:   getEnvInt("MENUBOARD_REDIS_POOL_SIZE", 10),
	}
}

func loadBillingConfig() BillingConfig {
	return BillingConfig{
		PricingFile:      getEnv("MENUBOARD_PRICING_FILE", ""),
		RenewalLookahead: getEnvDuration("MENUBOARD_RENEWAL_LOOKAHEAD", 24*time.Hour),
	}
}

func loadAccessConfig() access.Config {
	defaults := access.DefaultConfig()
	return access.Config{
		ExpiringSoonDays: getEnvInt("MENUBOARD_EXPIRING_SOON_DAYS", defaults.ExpiringSoonDays),
		CacheTTL:         getEnvDuration("MENUBOARD_ACCESS_CACHE_TTL", defaults.CacheTTL),
		CacheSize:        getEnvInt("MENUBOARD_ACCESS_CACHE_SIZE", defaults.CacheSize),
	}
}

func loadSchedulerConfig() SchedulerConfig {
	defaults := scheduler.DefaultConfig()
	return SchedulerConfig{
		Config: scheduler.Config{
			Concurrency:   getEnvInt("MENUBOARD_RENEWAL_CONCURRENCY", defaults.Concurrency),
			TenantTimeout: getEnvDuration("MENUBOARD_TENANT_TIMEOUT", defaults.TenantTimeout),
			LockTTL:       getEnvDuration("MENUBOARD_LOCK_TTL", defaults.LockTTL),
		},
		Schedule:   getEnv("MENUBOARD_RENEWAL_SCHEDULE", "0 2 * * *"),
		LockPrefix: getEnv("MENUBOARD_LOCK_PREFIX", "menuboard:lock"),
	}
}

// loadAuthConfig parses MENUBOARD_API_TOKENS ("name:role:token,...")
func loadAuthConfig() (AuthConfig, error) {
	tokens, err := middleware.ParseAPITokens(getEnv("MENUBOARD_API_TOKENS", ""))
	if err != nil {
		return AuthConfig{}, fmt.Errorf("invalid MENUBOARD_API_TOKENS: %w", err)
	}
	return AuthConfig{Tokens: tokens}, nil
}

func loadRateLimitConfig() RateLimitConfig {
	defaults := middleware.DefaultRateLimitConfig()
	return RateLimitConfig{
		RateLimitConfig: middleware.RateLimitConfig{
			RequestsPerWindow: getEnvInt("MENUBOARD_RATE_LIMIT_REQUESTS", defaults.RequestsPerWindow),
			WindowDuration:    getEnvDuration("MENUBOARD_RATE_LIMIT_WINDOW", defaults.WindowDuration),
			BurstSize:         getEnvInt("MENUBOARD_RATE_LIMIT_BURST", defaults.BurstSize),
		},
		Enabled: getEnvBool("MENUBOARD_RATE_LIMIT_ENABLED", true),
	}
}

func loadGateConfig() middleware.GateConfig {
	return middleware.GateConfig{
		BlockedURL: getEnv("MENUBOARD_BLOCKED_URL", ""),
		TenantVar:  "tenant_id",
	}
}

// loadObservabilityConfig loads observability configuration from environment
func loadObservabilityConfig() ObservabilityConfig {
	return ObservabilityConfig{
		LogLevel:       getEnv("MENUBOARD_LOG_LEVEL", "info"),
		LogFormat:      getEnv("MENUBOARD_LOG_FORMAT", observability.FormatJSON),
		MetricsEnabled: getEnvBool("MENUBOARD_METRICS_ENABLED", true),
		OTel: observability.OTelConfig{
			Enabled:        getEnvBool("MENUBOARD_OTEL_ENABLED", false),
			Endpoint:       getEnv("MENUBOARD_OTEL_ENDPOINT", "localhost:4317"),
			ServiceName:    getEnv("MENUBOARD_OTEL_SERVICE_NAME", "menuboard-billing"),
			ServiceVersion: getEnv("MENUBOARD_OTEL_SERVICE_VERSION", "1.0.0"),
			Insecure:       getEnvBool("MENUBOARD_OTEL_INSECURE", true),
			SampleRatio:    getEnvFloat("MENUBOARD_OTEL_SAMPLE_RATIO", 1.0),
		},
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	// Validate server config
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Server.HealthPort == "" {
		return fmt.Errorf("health port is required")
	}
	if c.Server.Port == c.Server.HealthPort {
		return fmt.Errorf("server port and health port must be different")
	}

	if c.Database.PrimaryURL == "" {
		return fmt.Errorf("postgres URL is required")
	}
	if c.Database.MaxConns < c.Database.MinConns {
		return fmt.Errorf("postgres max conns (%d) must not be below min conns (%d)",
			c.Database.MaxConns, c.Database.MinConns)
	}

	if c.Billing.RenewalLookahead < 0 {
		return fmt.Errorf("renewal lookahead must not be negative")
	}
	if c.Access.ExpiringSoonDays <= 0 {
		return fmt.Errorf("expiring-soon days must be positive")
	}
	if c.Access.CacheTTL < 0 {
		return fmt.Errorf("access cache TTL must not be negative")
	}
	if c.Scheduler.Concurrency <= 0 {
		return fmt.Errorf("renewal concurrency must be positive")
	}
	if c.Scheduler.TenantTimeout <= 0 {
		return fmt.Errorf("tenant timeout must be positive")
	}
	if c.Scheduler.Schedule == "" {
		return fmt.Errorf("renewal schedule is required")
	}

	if c.RateLimit.Enabled {
		if c.RateLimit.RequestsPerWindow <= 0 || c.RateLimit.WindowDuration <= 0 {
			return fmt.Errorf("rate limit requests and window must be positive when enabled")
		}
	}

	if _, err := logrus.ParseLevel(c.Observability.LogLevel); err != nil {
		return fmt.Errorf("invalid log level %q", c.Observability.LogLevel)
	}
	switch c.Observability.LogFormat {
	case observability.FormatJSON, observability.FormatText:
	default:
		return fmt.Errorf("invalid log format %q (must be json or text)", c.Observability.LogFormat)
	}

	// Validate OpenTelemetry config
	if c.Observability.OTel.Enabled {
		if c.Observability.OTel.Endpoint == "" {
			return fmt.Errorf("OpenTelemetry endpoint is required when OTel is enabled")
		}
		if c.Observability.OTel.ServiceName == "" {
			return fmt.Errorf("OpenTelemetry service name is required when OTel is enabled")
		}
		if r := c.Observability.OTel.SampleRatio; r < 0 || r > 1 {
			return fmt.Errorf("OpenTelemetry sample ratio must be between 0 and 1")
		}
	}

	return nil
}

// ValidateAPI checks the settings only the API server needs
func (c *Config) ValidateAPI() error {
	if len(c.Auth.Tokens) == 0 {
		return fmt.Errorf("at least one API token is required (MENUBOARD_API_TOKENS)")
	}
	return nil
}

// getEnv returns an environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvInt64 returns an int64 environment variable or a default
func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvFloat returns a float environment variable or a default
func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
