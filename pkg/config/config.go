package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/karatlane/karat/pkg/identity"
	"github.com/karatlane/karat/pkg/observability"
	"github.com/karatlane/karat/pkg/storage"
)

// Config holds all application configuration
type Config struct {
	// Server configuration
	Server ServerConfig

	// Storage configuration
	Storage storage.Config

	// Identity provider configuration
	Identity IdentityConfig

	// Audit trail configuration
	Audit AuditConfig

	// Observability configuration
	Observability ObservabilityConfig

	// PolicyFile is the optional YAML access policy (hot reloaded)
	PolicyFile string
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

	// SignInURL is where guarded routes redirect unauthenticated users
	SignInURL string
}

// IdentityConfig holds identity provider configuration
type IdentityConfig struct {
	Provider string // "oidc" or "saml"

	// OIDC
	OIDCIssuer       string
	OIDCClientID     string
	OIDCClientSecret string
	OIDCRedirectURL  string

	// SAML
	SAMLSSOURL      string
	SAMLEntityID    string
	SAMLCertificate string // PEM, or path via KARAT_SAML_CERT_FILE
	SAMLPrivateKey  string
	SAMLBaseURL     string

	// Hydration
	HydrateRetries int
	HydrateBackoff time.Duration
	HydrateTimeout time.Duration
}

// AuditConfig holds audit trail configuration
type AuditConfig struct {
	// Sinks
	DBEnabled   bool
	FileEnabled bool
	FilePath    string

	// LogAllRequests logs every request instead of mutations and
	// sensitive reads only
	LogAllRequests bool

	// Retention
	RetentionDays  int
	ArchiveEnabled bool
	ArchivePath    string
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	// Logging
	LogLevel observability.LogLevel

	// Metrics
	MetricsEnabled bool

	// OpenTelemetry
	OTelEnabled        bool
	OTelEndpoint       string
	OTelServiceName    string
	OTelServiceVersion string
	OTelInsecure       bool // Use insecure gRPC connection
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Server:        loadServerConfig(),
		Storage:       loadStorageConfig(),
		Identity:      loadIdentityConfig(),
		Audit:         loadAuditConfig(),
		Observability: loadObservabilityConfig(),
		PolicyFile:    getEnv("KARAT_POLICY_FILE", ""),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// loadServerConfig loads server configuration from environment
func loadServerConfig() ServerConfig {
	return ServerConfig{
		Host:            getEnv("KARAT_HOST", "0.0.0.0"),
		Port:            getEnv("KARAT_PORT", "8080"),
		ReadTimeout:     getEnvDuration("KARAT_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:    getEnvDuration("KARAT_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:     getEnvDuration("KARAT_IDLE_TIMEOUT", 60*time.Second),
		ShutdownTimeout: getEnvDuration("KARAT_SHUTDOWN_TIMEOUT", 30*time.Second),
		HealthPort:      getEnv("KARAT_HEALTH_PORT", "9090"),
		SignInURL:       getEnv("KARAT_SIGNIN_URL", "/signin"),
	}
}

// loadStorageConfig loads storage configuration from environment
func loadStorageConfig() storage.Config {
	cfg := storage.DefaultConfig()

	// PostgreSQL config
	if pgURL := getEnv("KARAT_POSTGRES_URL", ""); pgURL != "" {
		cfg.PostgresURL = pgURL
	}
	if maxConns := getEnvInt("KARAT_POSTGRES_MAX_CONNS", 0); maxConns > 0 {
		cfg.PostgresMaxConns = maxConns
	}
	if minConns := getEnvInt("KARAT_POSTGRES_MIN_CONNS", 0); minConns > 0 {
		cfg.PostgresMinConns = minConns
	}
	if timeout := getEnvDuration("KARAT_POSTGRES_TIMEOUT", 0); timeout > 0 {
		cfg.PostgresTimeout = timeout
	}

	// S3 config
	if s3Endpoint := getEnv("KARAT_S3_ENDPOINT", ""); s3Endpoint != "" {
		cfg.S3Endpoint = s3Endpoint
	}
	if s3Region := getEnv("KARAT_S3_REGION", ""); s3Region != "" {
		cfg.S3Region = s3Region
	}
	if s3Bucket := getEnv("KARAT_S3_BUCKET", ""); s3Bucket != "" {
		cfg.S3Bucket = s3Bucket
	}
	if s3AccessKey := getEnv("KARAT_S3_ACCESS_KEY", ""); s3AccessKey != "" {
		cfg.S3AccessKey = s3AccessKey
	}
	if s3SecretKey := getEnv("KARAT_S3_SECRET_KEY", ""); s3SecretKey != "" {
		cfg.S3SecretKey = s3SecretKey
	}
	if s3UsePathStyle := getEnv("KARAT_S3_USE_PATH_STYLE", ""); s3UsePathStyle != "" {
		cfg.S3UsePathStyle = strings.ToLower(s3UsePathStyle) == "true"
	}

	// Redis config
	if redisURL := getEnv("KARAT_REDIS_URL", ""); redisURL != "" {
		cfg.RedisURL = redisURL
	}
	if redisPassword := getEnv("KARAT_REDIS_PASSWORD", ""); redisPassword != "" {
		cfg.RedisPassword = redisPassword
	}
	if redisDB := getEnvInt("KARAT_REDIS_DB", -1); redisDB >= 0 {
		cfg.RedisDB = redisDB
	}
	if redisMaxRetries := getEnvInt("KARAT_REDIS_MAX_RETRIES", 0); redisMaxRetries > 0 {
		cfg.RedisMaxRetries = redisMaxRetries
	}
	if redisPoolSize := getEnvInt("KARAT_REDIS_POOL_SIZE", 0); redisPoolSize > 0 {
		cfg.RedisPoolSize = redisPoolSize
	}

	// Cache config
	if cacheEnabled := getEnv("KARAT_CACHE_ENABLED", ""); cacheEnabled != "" {
		cfg.CacheEnabled = strings.ToLower(cacheEnabled) == "true"
	}
	if cacheTTL := getEnvDuration("KARAT_CACHE_TTL", 0); cacheTTL > 0 {
		cfg.CacheTTL = cacheTTL
	}

	return cfg
}

// loadIdentityConfig loads identity provider configuration from environment
func loadIdentityConfig() IdentityConfig {
	return IdentityConfig{
		Provider: getEnv("KARAT_IDENTITY_PROVIDER", "oidc"),

		OIDCIssuer:       getEnv("KARAT_OIDC_ISSUER", ""),
		OIDCClientID:     getEnv("KARAT_OIDC_CLIENT_ID", ""),
		OIDCClientSecret: getEnv("KARAT_OIDC_CLIENT_SECRET", ""),
		OIDCRedirectURL:  getEnv("KARAT_OIDC_REDIRECT_URL", ""),

		SAMLSSOURL:      getEnv("KARAT_SAML_SSO_URL", ""),
		SAMLEntityID:    getEnv("KARAT_SAML_ENTITY_ID", ""),
		SAMLCertificate: getEnvOrFile("KARAT_SAML_CERT", "KARAT_SAML_CERT_FILE"),
		SAMLPrivateKey:  getEnvOrFile("KARAT_SAML_KEY", "KARAT_SAML_KEY_FILE"),
		SAMLBaseURL:     getEnv("KARAT_SAML_BASE_URL", ""),

		HydrateRetries: getEnvInt("KARAT_HYDRATE_RETRIES", 2),
		HydrateBackoff: getEnvDuration("KARAT_HYDRATE_BACKOFF", 500*time.Millisecond),
		HydrateTimeout: getEnvDuration("KARAT_HYDRATE_TIMEOUT", 10*time.Second),
	}
}

// ProviderType converts the configured provider name to the identity type.
func (c IdentityConfig) ProviderType() identity.ProviderType {
	if strings.EqualFold(c.Provider, "saml") {
		return identity.ProviderTypeSAML
	}
	return identity.ProviderTypeOIDC
}

// loadAuditConfig loads audit trail configuration from environment
func loadAuditConfig() AuditConfig {
	return AuditConfig{
		DBEnabled:      getEnvBool("KARAT_AUDIT_DB_ENABLED", true),
		FileEnabled:    getEnvBool("KARAT_AUDIT_FILE_ENABLED", false),
		FilePath:       getEnv("KARAT_AUDIT_FILE_PATH", "/var/log/karat/audit"),
		LogAllRequests: getEnvBool("KARAT_AUDIT_LOG_ALL", false),
		RetentionDays:  getEnvInt("KARAT_AUDIT_RETENTION_DAYS", 90),
		ArchiveEnabled: getEnvBool("KARAT_AUDIT_ARCHIVE_ENABLED", true),
		ArchivePath:    getEnv("KARAT_AUDIT_ARCHIVE_PATH", "/var/karat/audit-archive"),
	}
}

// loadObservabilityConfig loads observability configuration from environment
func loadObservabilityConfig() ObservabilityConfig {
	return ObservabilityConfig{
		LogLevel:           observability.ParseLogLevel(getEnv("KARAT_LOG_LEVEL", "info")),
		MetricsEnabled:     getEnvBool("KARAT_METRICS_ENABLED", true),
		OTelEnabled:        getEnvBool("KARAT_OTEL_ENABLED", false),
		OTelEndpoint:       getEnv("KARAT_OTEL_ENDPOINT", "localhost:4317"),
		OTelServiceName:    getEnv("KARAT_OTEL_SERVICE_NAME", "karat-crm"),
		OTelServiceVersion: getEnv("KARAT_OTEL_SERVICE_VERSION", "1.0.0"),
		OTelInsecure:       getEnvBool("KARAT_OTEL_INSECURE", true),
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

	// Validate identity config
	switch strings.ToLower(c.Identity.Provider) {
	case "oidc":
		if c.Identity.OIDCIssuer == "" || c.Identity.OIDCClientID == "" {
			return fmt.Errorf("OIDC issuer and client ID are required for the oidc provider")
		}
	case "saml":
		if c.Identity.SAMLSSOURL == "" || c.Identity.SAMLEntityID == "" || c.Identity.SAMLCertificate == "" {
			return fmt.Errorf("SAML SSO URL, entity ID, and certificate are required for the saml provider")
		}
	default:
		return fmt.Errorf("invalid identity provider: %s (must be oidc or saml)", c.Identity.Provider)
	}

	// Validate audit config
	if c.Audit.FileEnabled && c.Audit.FilePath == "" {
		return fmt.Errorf("audit file path is required when the file sink is enabled")
	}
	if c.Audit.RetentionDays <= 0 {
		return fmt.Errorf("audit retention must be at least one day")
	}

	// Validate OpenTelemetry config
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

// getEnv returns an environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvOrFile returns the variable's value, or the contents of the file
// named by the companion *_FILE variable.
func getEnvOrFile(key, fileKey string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	if path := os.Getenv(fileKey); path != "" {
		if data, err := os.ReadFile(path); err == nil {
			return string(data)
		}
	}
	return ""
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
