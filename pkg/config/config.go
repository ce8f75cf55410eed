package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/telesis-app/telesis/pkg/observability"
)

// Config holds all application configuration
type Config struct {
	Server ServerConfig

	Database DatabaseConfig
	Redis    RedisConfig
	Storage  StorageConfig

	Clerk  ClerkConfig
	Stripe StripeConfig

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

	// Health/metrics server (separate port for k8s probes)
	HealthPort string
}

// DatabaseConfig holds PostgreSQL configuration
type DatabaseConfig struct {
	URL         string
	ReplicaURLs string
	MaxConns    int
	MinConns    int
	Timeout     time.Duration
}

// RedisConfig holds Redis configuration. Redis is optional; when URL is
// empty the service falls back to in-memory rate limiting.
type RedisConfig struct {
	URL      string
	Password string
	DB       int
	PoolSize int
}

// StorageConfig holds S3 material blob storage configuration
type StorageConfig struct {
	S3Endpoint     string
	S3Region       string
	S3Bucket       string
	S3AccessKey    string
	S3SecretKey    string
	S3UsePathStyle bool
}

// ClerkConfig holds identity provider configuration
type ClerkConfig struct {
	SecretKey      string
	PublishableKey string
	// IssuerURL is the Clerk instance issuer for JWT verification,
	// e.g. https://clerk.example.com
	IssuerURL string
	// OrganizationsEnabled gates the organization selection requirement
	OrganizationsEnabled bool
}

// StripeConfig holds payment processor configuration
type StripeConfig struct {
	SecretKey     string
	WebhookSecret string
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	LogLevel       observability.LogLevel
	MetricsEnabled bool

	OTelEnabled        bool
	OTelEndpoint       string
	OTelServiceName    string
	OTelServiceVersion string
	OTelInsecure       bool
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Server:        loadServerConfig(),
		Database:      loadDatabaseConfig(),
		Redis:         loadRedisConfig(),
		Storage:       loadStorageConfig(),
		Clerk:         loadClerkConfig(),
		Stripe:        loadStripeConfig(),
		Observability: loadObservabilityConfig(),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

func loadServerConfig() ServerConfig {
	return ServerConfig{
		Host:            getEnv("TELESIS_HOST", "0.0.0.0"),
		Port:            getEnv("TELESIS_PORT", "8080"),
		ReadTimeout:     getEnvDuration("TELESIS_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:    getEnvDuration("TELESIS_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:     getEnvDuration("TELESIS_IDLE_TIMEOUT", 60*time.Second),
		ShutdownTimeout: getEnvDuration("TELESIS_SHUTDOWN_TIMEOUT", 30*time.Second),
		HealthPort:      getEnv("TELESIS_HEALTH_PORT", "9090"),
	}
}

func loadDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		URL:         getEnv("DATABASE_URL", ""),
		ReplicaURLs: getEnv("TELESIS_POSTGRES_REPLICA_URLS", ""),
		MaxConns:    getEnvInt("TELESIS_POSTGRES_MAX_CONNS", 25),
		MinConns:    getEnvInt("TELESIS_POSTGRES_MIN_CONNS", 5),
		Timeout:     getEnvDuration("TELESIS_POSTGRES_TIMEOUT", 5*time.Second),
	}
}

func loadRedisConfig() RedisConfig {
	return RedisConfig{
		URL:      getEnv("TELESIS_REDIS_URL", ""),
		Password: getEnv("TELESIS_REDIS_PASSWORD", ""),
		DB:       getEnvInt("TELESIS_REDIS_DB", 0),
		PoolSize: getEnvInt("TELESIS_REDIS_POOL_SIZE", 10),
	}
}

func loadStorageConfig() StorageConfig {
	return StorageConfig{
		S3Endpoint:     getEnv("TELESIS_S3_ENDPOINT", ""),
		S3Region:       getEnv("TELESIS_S3_REGION", "us-east-1"),
		S3Bucket:       getEnv("TELESIS_S3_BUCKET", "telesis-materials"),
		S3AccessKey:    getEnv("TELESIS_S3_ACCESS_KEY", ""),
		S3SecretKey:    getEnv("TELESIS_S3_SECRET_KEY", ""),
		S3UsePathStyle: getEnvBool("TELESIS_S3_USE_PATH_STYLE", false),
	}
}

func loadClerkConfig() ClerkConfig {
	return ClerkConfig{
		SecretKey:            getEnv("CLERK_SECRET_KEY", ""),
		PublishableKey:       getEnv("CLERK_PUBLISHABLE_KEY", ""),
		IssuerURL:            getEnv("CLERK_ISSUER_URL", ""),
		OrganizationsEnabled: getEnvBool("CLERK_ORGANIZATIONS_ENABLED", true),
	}
}

func loadStripeConfig() StripeConfig {
	return StripeConfig{
		SecretKey:     getEnv("STRIPE_SECRET_KEY", ""),
		WebhookSecret: getEnv("STRIPE_WEBHOOK_SECRET", ""),
	}
}

func loadObservabilityConfig() ObservabilityConfig {
	return ObservabilityConfig{
		LogLevel:           parseLogLevel(getEnv("TELESIS_LOG_LEVEL", "info")),
		MetricsEnabled:     getEnvBool("TELESIS_METRICS_ENABLED", true),
		OTelEnabled:        getEnvBool("TELESIS_OTEL_ENABLED", false),
		OTelEndpoint:       getEnv("TELESIS_OTEL_ENDPOINT", "localhost:4317"),
		OTelServiceName:    getEnv("TELESIS_OTEL_SERVICE_NAME", "telesis"),
		OTelServiceVersion: getEnv("TELESIS_OTEL_SERVICE_VERSION", "1.0.0"),
		OTelInsecure:       getEnvBool("TELESIS_OTEL_INSECURE", true),
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Server.HealthPort == "" {
		return fmt.Errorf("health port is required")
	}
	if c.Server.Port == c.Server.HealthPort {
		return fmt.Errorf("server port and health port must be different")
	}

	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.Clerk.SecretKey == "" {
		return fmt.Errorf("CLERK_SECRET_KEY is required")
	}
	if c.Clerk.IssuerURL == "" {
		return fmt.Errorf("CLERK_ISSUER_URL is required")
	}

	if c.Observability.OTelEnabled {
		if c.Observability.OTelEndpoint == "" {
			return fmt.Errorf("OpenTelemetry endpoint is required when OTel is enabled")
		}
		if c.Observability.OTelServiceName == "" {
			return fmt.Errorf("OpenTelemetry service name is required when OTel is enabled")
		}
	}

	return nil
}

// StripeEnabled reports whether billing integration is configured
func (c *Config) StripeEnabled() bool {
	return c.Stripe.SecretKey != ""
}

// parseLogLevel parses a log level string
func parseLogLevel(level string) observability.LogLevel {
	switch strings.ToLower(level) {
	case "debug":
		return observability.DebugLevel
	case "info":
		return observability.InfoLevel
	case "warn", "warning":
		return observability.WarnLevel
	case "error":
		return observability.ErrorLevel
	default:
		return observability.InfoLevel
	}
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

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
