package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/platinummonkey/rolesync/pkg/observability"
	"github.com/platinummonkey/rolesync/pkg/rbac"
)

// Config holds all application configuration
type Config struct {
	Authority     AuthorityConfig
	Sync          SyncConfig
	Notify        NotifyConfig
	Observability ObservabilityConfig
}

// AuthorityConfig locates the role authority
type AuthorityConfig struct {
	URL      string
	Token    string
	Timeout  time.Duration
	RetryMax int
}

// SyncConfig controls how the local mirror is loaded and refreshed
type SyncConfig struct {
	PermissionLimit      int
	PermissionActiveOnly bool
	PageSize             int
	RefreshConcurrency   int
	RefreshSchedule      string
	ResolverCacheSize    int
	ResolverCacheTTL     time.Duration
	LabelsFile           string
}

// NotifyConfig holds the broadcast text and the optional Redis relay
type NotifyConfig struct {
	Title        string
	Message      string
	Audience     []rbac.SystemRole
	RedisURL     string
	RedisChannel string
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	// Logging
	LogLevel observability.LogLevel

	// Metrics
	MetricsEnabled bool
	MetricsAddr    string

	// OpenTelemetry
	OTelEnabled        bool
	OTelEndpoint       string
	OTelServiceName    string
	OTelServiceVersion string
	OTelInsecure       bool // Use insecure gRPC connection
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	return LoadConfigWith(nil)
}

// LoadConfigWith loads configuration from environment variables and applies override, if
// not nil, before validating.
func LoadConfigWith(override func(*Config)) (*Config, error) {
	cfg := &Config{
		Authority:     loadAuthorityConfig(),
		Sync:          loadSyncConfig(),
		Notify:        loadNotifyConfig(),
		Observability: loadObservabilityConfig(),
	}
	if override != nil {
		override(cfg)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// LoadEnvFile exports the variables of a dotenv file without overriding ones already set.
// A missing file is not an error.
func LoadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to load env file %s: %w", path, err)
	}
	return nil
}

func loadAuthorityConfig() AuthorityConfig {
	return AuthorityConfig{
		URL:      getEnv("ROLESYNC_AUTHORITY_URL", ""),
		Token:    getEnv("ROLESYNC_AUTHORITY_TOKEN", ""),
		Timeout:  getEnvDuration("ROLESYNC_AUTHORITY_TIMEOUT", 15*time.Second),
		RetryMax: getEnvInt("ROLESYNC_AUTHORITY_RETRY_MAX", 3),
	}
}

func loadSyncConfig() SyncConfig {
	q := rbac.DefaultPermissionQuery()
	return SyncConfig{
		PermissionLimit:      getEnvInt("ROLESYNC_PERMISSION_LIMIT", q.Limit),
		PermissionActiveOnly: getEnvBool("ROLESYNC_PERMISSION_ACTIVE_ONLY", q.ActiveOnly),
		PageSize:             getEnvInt("ROLESYNC_PAGE_SIZE", 10),
		RefreshConcurrency:   getEnvInt("ROLESYNC_REFRESH_CONCURRENCY", rbac.DefaultRefreshConcurrency),
		RefreshSchedule:      getEnv("ROLESYNC_REFRESH_SCHEDULE", rbac.DefaultRefreshSchedule),
		ResolverCacheSize:    getEnvInt("ROLESYNC_RESOLVER_CACHE_SIZE", 1024),
		ResolverCacheTTL:     getEnvDuration("ROLESYNC_RESOLVER_CACHE_TTL", 5*time.Minute),
		LabelsFile:           getEnv("ROLESYNC_LABELS_FILE", ""),
	}
}

func loadNotifyConfig() NotifyConfig {
	defaults := rbac.DefaultNotifierConfig()
	cfg := NotifyConfig{
		Title:        getEnv("ROLESYNC_NOTIFY_TITLE", defaults.Title),
		Message:      getEnv("ROLESYNC_NOTIFY_MESSAGE", defaults.Message),
		Audience:     defaults.Audience,
		RedisURL:     getEnv("ROLESYNC_REDIS_URL", ""),
		RedisChannel: getEnv("ROLESYNC_REDIS_CHANNEL", "rolesync:permissions"),
	}
	if audience := getEnv("ROLESYNC_NOTIFY_AUDIENCE", ""); audience != "" {
		cfg.Audience = parseAudience(audience)
	}
	return cfg
}

// loadObservabilityConfig loads observability configuration from environment
func loadObservabilityConfig() ObservabilityConfig {
	return ObservabilityConfig{
		LogLevel:           observability.ParseLogLevel(getEnv("ROLESYNC_LOG_LEVEL", "info")),
		MetricsEnabled:     getEnvBool("ROLESYNC_METRICS_ENABLED", true),
		MetricsAddr:        getEnv("ROLESYNC_METRICS_ADDR", ":9090"),
		OTelEnabled:        getEnvBool("ROLESYNC_OTEL_ENABLED", false),
		OTelEndpoint:       getEnv("ROLESYNC_OTEL_ENDPOINT", "localhost:4317"),
		OTelServiceName:    getEnv("ROLESYNC_OTEL_SERVICE_NAME", "rolesync"),
		OTelServiceVersion: getEnv("ROLESYNC_OTEL_SERVICE_VERSION", "1.0.0"),
		OTelInsecure:       getEnvBool("ROLESYNC_OTEL_INSECURE", true),
	}
}

func parseAudience(value string) []rbac.SystemRole {
	var out []rbac.SystemRole
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, rbac.SystemRole(strings.ToLower(part)))
		}
	}
	return out
}

// PermissionQuery returns the catalog query described by the sync settings.
func (c *Config) PermissionQuery() rbac.PermissionQuery {
	return rbac.PermissionQuery{ActiveOnly: c.Sync.PermissionActiveOnly, Limit: c.Sync.PermissionLimit}
}

// NotifierConfig returns the broadcast text and audience.
func (c *Config) NotifierConfig() rbac.NotifierConfig {
	return rbac.NotifierConfig{Title: c.Notify.Title, Message: c.Notify.Message, Audience: c.Notify.Audience}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Authority.URL == "" {
		return fmt.Errorf("authority URL is required")
	}
	u, err := url.Parse(c.Authority.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("invalid authority URL: %s", c.Authority.URL)
	}
	if c.Authority.Timeout <= 0 {
		return fmt.Errorf("authority timeout must be positive")
	}

	if c.Sync.PermissionLimit <= 0 {
		return fmt.Errorf("permission limit must be positive")
	}
	if c.Sync.PageSize <= 0 {
		return fmt.Errorf("page size must be positive")
	}
	if c.Sync.RefreshConcurrency <= 0 {
		return fmt.Errorf("refresh concurrency must be positive")
	}

	for _, r := range c.Notify.Audience {
		if !r.Valid() {
			return fmt.Errorf("invalid notify audience role: %s", r)
		}
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
