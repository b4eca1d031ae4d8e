package config

import (
	"fmt"
	"time"
)

// LoadProfile returns the preset for a named deployment profile. Environment
// variables are applied on top and the result is validated.
func LoadProfile(name string) (*Config, error) {
	cfg := DefaultConfig()
	switch name {
	case "development", "default":
		cfg.Environment = EnvDevelopment
		cfg.Logging.Level = "debug"
		cfg.Logging.Format = "text"
	case "testing":
		cfg.Environment = EnvTesting
		cfg.Logging.Level = "warn"
		cfg.Engine.SweepInterval = 0
	case "staging":
		cfg.Environment = EnvStaging
		cfg.Storage.Adapter = "redis"
		cfg.Metrics.Enabled = true
		cfg.Security.EnableRateLimit = true
		// replicas share the redis store
		cfg.Engine.LiveLeaderboard = false
	case "production":
		cfg.Environment = EnvProduction
		cfg.Storage.Adapter = "sql"
		cfg.Server.CORSOrigins = nil
		cfg.Server.ShutdownTimeout = time.Minute
		cfg.Metrics.Enabled = true
		cfg.Security.EnableRateLimit = true
		cfg.Security.RateLimit.RequestsPerMinute = 600
		cfg.Engine.LiveLeaderboard = false
	default:
		return nil, fmt.Errorf("unknown profile %q", name)
	}
	cfg.Profile = name

	if err := loadFromEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from environment: %w", err)
	}
	// production needs a DSN, which only ever comes from the environment or a secret store
	if cfg.Storage.Adapter == "sql" && cfg.Storage.SQL.DSN == "" {
		return cfg, nil
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}
