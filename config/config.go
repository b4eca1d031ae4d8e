package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	json "github.com/goccy/go-json"

	"reputationkit/adapters/redis"
	"reputationkit/adapters/sqlx"
)

// Environment represents the deployment environment
type Environment string

const (
	EnvDevelopment Environment = "development"
	EnvTesting     Environment = "testing"
	EnvStaging     Environment = "staging"
	EnvProduction  Environment = "production"
)

// Config holds the complete application configuration
type Config struct {
	// Environment and profile settings
	Environment Environment `json:"environment" env:"REPUTATION_ENV"`
	Profile     string      `json:"profile" env:"REPUTATION_PROFILE"`

	// Server configuration
	Server ServerConfig `json:"server"`

	// Storage configuration
	Storage StorageConfig `json:"storage"`

	// Logging configuration
	Logging LoggingConfig `json:"logging"`

	// Metrics and monitoring
	Metrics MetricsConfig `json:"metrics"`

	// Security configuration
	Security SecurityConfig `json:"security"`

	// Engine tuning and background jobs
	Engine EngineConfig `json:"engine"`

	// Outbound event delivery
	Webhooks WebhookConfig `json:"webhooks"`
}

// EngineConfig controls the scoring engine and the service around it.
type EngineConfig struct {
	// RulesetPath points at a YAML ruleset; empty means the built-in defaults.
	RulesetPath      string        `json:"ruleset_path" env:"REPUTATION_ENGINE_RULESET"`
	MaxRetries       int           `json:"max_retries" env:"REPUTATION_ENGINE_MAX_RETRIES"`
	LookupCacheSize  int           `json:"lookup_cache_size" env:"REPUTATION_ENGINE_LOOKUP_CACHE_SIZE"`
	AsyncWorkers     int           `json:"async_workers" env:"REPUTATION_ENGINE_ASYNC_WORKERS"`
	SweepInterval    time.Duration `json:"sweep_interval" env:"REPUTATION_ENGINE_SWEEP_INTERVAL"`
	SweepParallelism int           `json:"sweep_parallelism" env:"REPUTATION_ENGINE_SWEEP_PARALLELISM"`
	// LiveLeaderboard serves points leaderboards from an in-process board.
	// Only correct when this process is the sole writer to the store.
	LiveLeaderboard bool `json:"live_leaderboard" env:"REPUTATION_ENGINE_LIVE_LEADERBOARD"`
}

// WebhookConfig lists endpoints that receive committed events.
type WebhookConfig struct {
	Endpoints       []string      `json:"endpoints,omitempty" env:"REPUTATION_WEBHOOK_ENDPOINTS"`
	EventTypes      []string      `json:"event_types,omitempty" env:"REPUTATION_WEBHOOK_EVENT_TYPES"`
	Timeout         time.Duration `json:"timeout" env:"REPUTATION_WEBHOOK_TIMEOUT"`
	BreakerFailures uint32        `json:"breaker_failures" env:"REPUTATION_WEBHOOK_BREAKER_FAILURES"`
	BreakerCooldown time.Duration `json:"breaker_cooldown" env:"REPUTATION_WEBHOOK_BREAKER_COOLDOWN"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Address           string        `json:"address" env:"REPUTATION_SERVER_ADDR"`
	PathPrefix        string        `json:"path_prefix" env:"REPUTATION_SERVER_PATH_PREFIX"`
	CORSOrigins       []string      `json:"cors_origins" env:"REPUTATION_SERVER_CORS_ORIGINS"`
	ReadTimeout       time.Duration `json:"read_timeout" env:"REPUTATION_SERVER_READ_TIMEOUT"`
	WriteTimeout      time.Duration `json:"write_timeout" env:"REPUTATION_SERVER_WRITE_TIMEOUT"`
	IdleTimeout       time.Duration `json:"idle_timeout" env:"REPUTATION_SERVER_IDLE_TIMEOUT"`
	ReadHeaderTimeout time.Duration `json:"read_header_timeout" env:"REPUTATION_SERVER_READ_HEADER_TIMEOUT"`
	ShutdownTimeout   time.Duration `json:"shutdown_timeout" env:"REPUTATION_SERVER_SHUTDOWN_TIMEOUT"`
}

// StorageConfig holds storage adapter configuration
type StorageConfig struct {
	Adapter string       `json:"adapter" env:"REPUTATION_STORAGE_ADAPTER"`
	Redis   redis.Config `json:"redis,omitempty"`
	SQL     sqlx.Config  `json:"sql,omitempty"`
	File    FileConfig   `json:"file,omitempty"`
}

// FileConfig holds JSON file storage configuration
type FileConfig struct {
	Path string `json:"path" env:"REPUTATION_STORAGE_FILE_PATH"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level      string            `json:"level" env:"REPUTATION_LOG_LEVEL"`
	Format     string            `json:"format" env:"REPUTATION_LOG_FORMAT"`
	Output     string            `json:"output" env:"REPUTATION_LOG_OUTPUT"`
	Attributes map[string]string `json:"attributes,omitempty" env:"REPUTATION_LOG_ATTRIBUTES" envKeyValSeparator:"="`
}

// MetricsConfig holds metrics and monitoring configuration
type MetricsConfig struct {
	Enabled       bool   `json:"enabled" env:"REPUTATION_METRICS_ENABLED"`
	Address       string `json:"address" env:"REPUTATION_METRICS_ADDR"`
	Path          string `json:"path" env:"REPUTATION_METRICS_PATH"`
	CollectSystem bool   `json:"collect_system" env:"REPUTATION_METRICS_COLLECT_SYSTEM"`
}

// SecurityConfig holds security-related configuration
type SecurityConfig struct {
	EnableRateLimit bool            `json:"enable_rate_limit" env:"REPUTATION_SECURITY_RATE_LIMIT_ENABLED"`
	RateLimit       RateLimitConfig `json:"rate_limit"`
	APIKeys         []string        `json:"api_keys,omitempty" env:"REPUTATION_SECURITY_API_KEYS"`
}

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	RequestsPerMinute int `json:"requests_per_minute" env:"REPUTATION_SECURITY_RATE_LIMIT_RPM"`
}

// Validate validates security settings.
func (s SecurityConfig) Validate() error {
	var errs []string
	if s.EnableRateLimit {
		if s.RateLimit.RequestsPerMinute <= 0 {
			errs = append(errs, "rate_limit.requests_per_minute must be > 0 when rate limiting is enabled")
		}
	}
	for i, key := range s.APIKeys {
		if strings.TrimSpace(key) == "" {
			errs = append(errs, fmt.Sprintf("api_keys[%d] is empty", i))
		}
	}
	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

// Load loads configuration from environment variables and validates it
func Load() (*Config, error) {
	cfg := DefaultConfig()

	// Load from environment variables
	if err := loadFromEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from environment: %w", err)
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// validateConfigPath validates that the config file path is safe
func validateConfigPath(path string) error {
	if path == "" {
		return errors.New("config file path cannot be empty")
	}

	cleanPath := filepath.Clean(path)

	if !strings.HasSuffix(strings.ToLower(cleanPath), ".json") {
		return errors.New("config file must have .json extension")
	}

	if _, err := os.Stat(cleanPath); err != nil {
		return fmt.Errorf("config file not accessible: %w", err)
	}

	return nil
}

// LoadFromFile loads configuration from a JSON file
func LoadFromFile(path string) (*Config, error) {
	// Validate the path for security
	if err := validateConfigPath(path); err != nil {
		return nil, fmt.Errorf("invalid config file path: %w", err)
	}

	// Open the file safely after validation
	file, err := os.Open(path) // #nosec G304 - Path validated above
	if err != nil {
		return nil, fmt.Errorf("failed to open config file %s: %w", path, err)
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	cfg := DefaultConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	// Environment variables override file values
	if err := loadFromEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from environment: %w", err)
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// DefaultConfig returns a configuration with sensible defaults for development
func DefaultConfig() *Config {
	return &Config{
		Environment: EnvDevelopment,
		Profile:     "default",
		Server: ServerConfig{
			Address:           ":8080",
			PathPrefix:        "/api",
			CORSOrigins:       []string{"*"},
			ReadTimeout:       10 * time.Second,
			WriteTimeout:      10 * time.Second,
			IdleTimeout:       60 * time.Second,
			ReadHeaderTimeout: 5 * time.Second,
			ShutdownTimeout:   30 * time.Second,
		},
		Storage: StorageConfig{
			Adapter: "memory",
			Redis:   redis.DefaultConfig(),
			SQL:     sqlx.DefaultConfig(sqlx.DriverPostgres),
			File: FileConfig{
				Path: "./data/reputation.json",
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Metrics: MetricsConfig{
			Enabled:       false,
			Address:       ":9090",
			Path:          "/metrics",
			CollectSystem: true,
		},
		Security: SecurityConfig{
			EnableRateLimit: false,
			RateLimit: RateLimitConfig{
				RequestsPerMinute: 120,
			},
			APIKeys: []string{},
		},
		Engine: EngineConfig{
			MaxRetries:       5,
			LookupCacheSize:  1024,
			AsyncWorkers:     4,
			SweepInterval:    time.Hour,
			SweepParallelism: 8,
			LiveLeaderboard:  true,
		},
		Webhooks: WebhookConfig{
			Timeout:         2 * time.Second,
			BreakerFailures: 5,
			BreakerCooldown: 30 * time.Second,
		},
	}
}

// Validate validates the configuration and returns detailed error messages
func (c *Config) Validate() error {
	var errs []string

	// Validate environment
	if c.Environment == "" {
		errs = append(errs, "environment cannot be empty")
	}

	// Validate server config
	if err := c.Server.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("server config: %v", err))
	}

	// Validate storage config
	if err := c.Storage.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("storage config: %v", err))
	}

	// Validate logging config
	if err := c.Logging.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("logging config: %v", err))
	}

	// Validate metrics config
	if err := c.Metrics.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("metrics config: %v", err))
	}

	// Validate security config
	if err := c.Security.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("security config: %v", err))
	}

	if err := c.Engine.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("engine config: %v", err))
	}

	if err := c.Webhooks.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("webhook config: %v", err))
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}

	return nil
}

// String returns a JSON representation of the config (with secrets redacted)
func (c *Config) String() string {
	// Create a copy for redaction
	cfg := *c
	cfg.Security.APIKeys = make([]string, len(c.Security.APIKeys))
	for i := range cfg.Security.APIKeys {
		cfg.Security.APIKeys[i] = "[REDACTED]"
	}

	// Redact sensitive information
	if cfg.Storage.SQL.DSN != "" {
		cfg.Storage.SQL.DSN = "[REDACTED]"
	}
	if cfg.Storage.Redis.Password != "" {
		cfg.Storage.Redis.Password = "[REDACTED]"
	}

	data, _ := json.MarshalIndent(cfg, "", "  ")
	return string(data)
}
