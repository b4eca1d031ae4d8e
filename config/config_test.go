package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"reputationkit/core"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	// Test loading default config
	cfg, err := Load()
	require.NoError(t, err)
	require.NotNil(t, cfg)

	// Verify defaults
	assert.Equal(t, EnvDevelopment, cfg.Environment)
	assert.Equal(t, ":8080", cfg.Server.Address)
	assert.Equal(t, "memory", cfg.Storage.Adapter)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
}

func TestLoadFromFile(t *testing.T) {
	// Create a temporary config file
	configContent := `{
		"environment": "testing",
		"server": {
			"address": ":9090"
		},
		"storage": {
			"adapter": "memory"
		}
	}`

	tmpFile, err := os.CreateTemp("", "config_test_*.json")
	require.NoError(t, err)
	defer os.Remove(tmpFile.Name())

	_, err = tmpFile.WriteString(configContent)
	require.NoError(t, err)
	tmpFile.Close()

	// Load config from file
	cfg, err := LoadFromFile(tmpFile.Name())
	require.NoError(t, err)
	require.NotNil(t, cfg)

	// Verify loaded values
	assert.Equal(t, EnvTesting, cfg.Environment)
	assert.Equal(t, ":9090", cfg.Server.Address)
	assert.Equal(t, "memory", cfg.Storage.Adapter)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name        string
		config      *Config
		expectError bool
	}{
		{
			name: "valid config",
			config: &Config{
				Environment: EnvDevelopment,
				Server: ServerConfig{
					Address:           ":8080",
					ReadTimeout:       time.Second,
					WriteTimeout:      time.Second,
					IdleTimeout:       time.Second,
					ReadHeaderTimeout: time.Second,
					ShutdownTimeout:   time.Second,
				},
				Storage: StorageConfig{
					Adapter: "memory",
				},
				Logging: LoggingConfig{
					Level:  "info",
					Format: "json",
					Output: "stdout",
				},
			},
			expectError: false,
		},
		{
			name: "invalid environment",
			config: &Config{
				Environment: "",
				Server: ServerConfig{
					Address:           ":8080",
					ReadTimeout:       time.Second,
					WriteTimeout:      time.Second,
					IdleTimeout:       time.Second,
					ReadHeaderTimeout: time.Second,
					ShutdownTimeout:   time.Second,
				},
				Storage: StorageConfig{
					Adapter: "memory",
				},
				Logging: LoggingConfig{
					Level:  "info",
					Format: "json",
					Output: "stdout",
				},
			},
			expectError: true,
		},
		{
			name: "invalid server timeout",
			config: &Config{
				Environment: EnvDevelopment,
				Server: ServerConfig{
					Address:           ":8080",
					ReadTimeout:       0,
					WriteTimeout:      time.Second,
					IdleTimeout:       time.Second,
					ReadHeaderTimeout: time.Second,
					ShutdownTimeout:   time.Second,
				},
				Storage: StorageConfig{
					Adapter: "memory",
				},
				Logging: LoggingConfig{
					Level:  "info",
					Format: "json",
					Output: "stdout",
				},
			},
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.expectError {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestProfiles(t *testing.T) {
	tests := []struct {
		name         string
		profileName  string
		expectConfig bool
		environment  Environment
	}{
		{"development", "development", true, EnvDevelopment},
		{"testing", "testing", true, EnvTesting},
		{"staging", "staging", true, EnvStaging},
		{"production", "production", true, EnvProduction},
		{"unknown", "unknown", false, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := LoadProfile(tt.profileName)
			if tt.expectConfig {
				require.NoError(t, err)
				require.NotNil(t, cfg)
				assert.Equal(t, tt.environment, cfg.Environment)
			} else {
				assert.Error(t, err)
				assert.Nil(t, cfg)
			}
		})
	}
}

func TestLiveLeaderboardOnlyForSingleWriterProfiles(t *testing.T) {
	for name, want := range map[string]bool{"development": true, "testing": true, "staging": false, "production": false} {
		cfg, err := LoadProfile(name)
		require.NoError(t, err, name)
		assert.Equal(t, want, cfg.Engine.LiveLeaderboard, name)
	}

	t.Setenv("REPUTATION_ENGINE_LIVE_LEADERBOARD", "false")
	cfg, err := LoadProfile("development")
	require.NoError(t, err)
	assert.False(t, cfg.Engine.LiveLeaderboard)
}

func TestSecrets(t *testing.T) {
	// Test environment secret store
	store := NewEnvironmentSecretStore()

	testKey := "TEST_SECRET_KEY"
	testValue := "test_secret_value"
	t.Setenv(testKey, testValue)

	ctx := context.Background()

	// Test Get
	value, err := store.Get(ctx, testKey)
	assert.NoError(t, err)
	assert.Equal(t, testValue, value)

	// Test GetWithDefault
	defaultValue := "default"
	value = store.GetWithDefault(ctx, "NONEXISTENT_KEY", defaultValue)
	assert.Equal(t, defaultValue, value)

	value = store.GetWithDefault(ctx, testKey, defaultValue)
	assert.Equal(t, testValue, value)
}

func TestValidateConfigPath(t *testing.T) {
	tests := []struct {
		name        string
		path        string
		expectError bool
		setup       func() string // returns path to cleanup
	}{
		{
			name:        "valid json file",
			path:        "config_test.json",
			expectError: false,
			setup: func() string {
				tmpFile, _ := os.CreateTemp("", "config_test_*.json")
				tmpFile.WriteString("{}")
				tmpFile.Close()
				return tmpFile.Name()
			},
		},
		{
			name:        "empty path",
			path:        "",
			expectError: true,
			setup:       func() string { return "" },
		},
		{
			name:        "path traversal",
			path:        "../../../etc/passwd",
			expectError: true,
			setup:       func() string { return "" },
		},
		{
			name:        "non-json file",
			path:        "config.txt",
			expectError: true,
			setup: func() string {
				tmpFile, _ := os.CreateTemp("", "config_test_*.txt")
				tmpFile.WriteString("{}")
				tmpFile.Close()
				return tmpFile.Name()
			},
		},
		{
			name:        "nonexistent file",
			path:        "nonexistent.json",
			expectError: true,
			setup:       func() string { return "" },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cleanupPath := tt.setup()
			if cleanupPath != "" {
				defer os.Remove(cleanupPath)
				if tt.path == "config_test.json" || tt.path == "config.txt" {
					tt.path = cleanupPath
				}
			}

			err := validateConfigPath(tt.path)
			if tt.expectError {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("REPUTATION_SERVER_ADDR", ":7070")
	t.Setenv("REPUTATION_SERVER_CORS_ORIGINS", "https://a.example,https://b.example")
	t.Setenv("REPUTATION_LOG_ATTRIBUTES", "service=reputation,region=eu")
	t.Setenv("REPUTATION_ENGINE_MAX_RETRIES", "9")
	t.Setenv("REPUTATION_STORAGE_REDIS_KEY_PREFIX", "rep-test")
	t.Setenv("REPUTATION_WEBHOOK_TIMEOUT", "750ms")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ":7070", cfg.Server.Address)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.CORSOrigins)
	assert.Equal(t, map[string]string{"service": "reputation", "region": "eu"}, cfg.Logging.Attributes)
	assert.Equal(t, 9, cfg.Engine.MaxRetries)
	assert.Equal(t, "rep-test", cfg.Storage.Redis.KeyPrefix)
	assert.Equal(t, 750*time.Millisecond, cfg.Webhooks.Timeout)
	// untouched values keep their defaults
	assert.Equal(t, "memory", cfg.Storage.Adapter)
}

func TestLoadRejectsBadEnv(t *testing.T) {
	t.Setenv("REPUTATION_ENGINE_MAX_RETRIES", "many")
	_, err := Load()
	assert.Error(t, err)
}

func TestStorageValidation(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Storage.Adapter = "sql"
	assert.ErrorContains(t, cfg.Validate(), "dsn cannot be empty")

	cfg.Storage.SQL.DSN = "postgres://localhost/reputation"
	assert.NoError(t, cfg.Validate())

	cfg.Storage.Adapter = "cassandra"
	assert.ErrorContains(t, cfg.Validate(), "adapter must be one of")
}

func TestWebhookValidation(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Webhooks.Endpoints = []string{"https://hooks.example/reputation", "not a url"}
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "endpoints[1]")
	assert.NotContains(t, err.Error(), "endpoints[0]")
}

func TestLoadSecrets(t *testing.T) {
	t.Setenv("REPUTATION_STORAGE_SQL_DSN", "")
	dsnFile := filepath.Join(t.TempDir(), "dsn")
	require.NoError(t, os.WriteFile(dsnFile, []byte("postgres://secret\n"), 0o600))
	t.Setenv("REPUTATION_STORAGE_SQL_DSN_FILE", dsnFile)
	t.Setenv("REPUTATION_SECURITY_API_KEYS", "k1, k2")

	cfg := DefaultConfig()
	cfg.Storage.Adapter = "sql"
	require.NoError(t, cfg.LoadSecretsFromEnv(context.Background()))
	assert.Equal(t, "postgres://secret", cfg.Storage.SQL.DSN)
	assert.Equal(t, []string{"k1", "k2"}, cfg.Security.APIKeys)
	assert.NotContains(t, cfg.String(), "postgres://secret")
	assert.NotContains(t, cfg.String(), "k1")
}

func TestParseRuleset(t *testing.T) {
	rules, err := ParseRuleset([]byte(`
awards:
  login: 4
leaderboard_max_limit: 50
`))
	require.NoError(t, err)
	assert.Equal(t, int64(4), rules.Awards[core.ActionLogin])
	// untouched awards keep their stock values
	assert.Equal(t, int64(5), rules.Awards[core.ActionWatchlistAdded])
	assert.Equal(t, 50, rules.LeaderboardMaxLimit)
	assert.Equal(t, core.DefaultRuleset().LevelThresholds, rules.LevelThresholds)
}

func TestParseRulesetRejects(t *testing.T) {
	tests := map[string]string{
		"negative award":     "awards:\n  login: -1\n",
		"unsorted levels":    "level_thresholds: [0, 100, 50]\n",
		"nonzero first":      "level_thresholds: [10, 100]\n",
		"unknown field":      "bonus_multiplier: 2\n",
		"multiplier below 1": "review:\n  max_multiplier: 0.5\n",
		"duplicate badge":    "badges:\n  - {name: a, metric: reviews_written, threshold: 1}\n  - {name: a, metric: reviews_written, threshold: 2}\n",
		"review award":       "awards:\n  review_created: 10\n",
	}
	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := ParseRuleset([]byte(doc))
			assert.Error(t, err)
		})
	}
}

func TestLoadRulesetFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	require.NoError(t, os.WriteFile(path, []byte("awards:\n  movie_rated: 12\n"), 0o600))
	rules, err := LoadRuleset(path)
	require.NoError(t, err)
	assert.Equal(t, int64(12), rules.Awards[core.ActionMovieRated])

	_, err = LoadRuleset(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
