package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
)

// ErrSecretNotFound is returned when a secret store has no value for a key.
var ErrSecretNotFound = errors.New("secret not found")

// SecretStore resolves secrets by key.
type SecretStore interface {
	Get(ctx context.Context, key string) (string, error)
}

// EnvironmentSecretStore reads secrets from the process environment. A key
// K is also looked up as a file path in K_FILE, the convention used by
// container orchestrators for mounted secrets.
type EnvironmentSecretStore struct{}

func NewEnvironmentSecretStore() *EnvironmentSecretStore { return &EnvironmentSecretStore{} }

func (EnvironmentSecretStore) Get(_ context.Context, key string) (string, error) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v, nil
	}
	if path, ok := os.LookupEnv(key + "_FILE"); ok && path != "" {
		b, err := os.ReadFile(path) // #nosec G304 - operator supplied secret path
		if err != nil {
			return "", fmt.Errorf("read secret file for %s: %w", key, err)
		}
		return strings.TrimSpace(string(b)), nil
	}
	return "", fmt.Errorf("%w: %s", ErrSecretNotFound, key)
}

// GetWithDefault returns def when the key is not set.
func (s EnvironmentSecretStore) GetWithDefault(ctx context.Context, key, def string) string {
	v, err := s.Get(ctx, key)
	if err != nil {
		return def
	}
	return v
}

// LoadSecrets fills credentials from store, leaving values already set alone.
func (c *Config) LoadSecrets(ctx context.Context, store SecretStore) error {
	fill := func(dst *string, key string) error {
		if *dst != "" {
			return nil
		}
		v, err := store.Get(ctx, key)
		if errors.Is(err, ErrSecretNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		*dst = v
		return nil
	}
	if err := fill(&c.Storage.SQL.DSN, "REPUTATION_STORAGE_SQL_DSN"); err != nil {
		return err
	}
	if err := fill(&c.Storage.Redis.Password, "REPUTATION_STORAGE_REDIS_PASSWORD"); err != nil {
		return err
	}
	if len(c.Security.APIKeys) == 0 {
		var keys string
		if err := fill(&keys, "REPUTATION_SECURITY_API_KEYS"); err != nil {
			return err
		}
		for _, k := range strings.Split(keys, ",") {
			if k = strings.TrimSpace(k); k != "" {
				c.Security.APIKeys = append(c.Security.APIKeys, k)
			}
		}
	}
	return nil
}

// LoadSecretsFromEnv is LoadSecrets backed by the environment, then
// revalidates the config.
func (c *Config) LoadSecretsFromEnv(ctx context.Context) error {
	if err := c.LoadSecrets(ctx, NewEnvironmentSecretStore()); err != nil {
		return fmt.Errorf("load secrets: %w", err)
	}
	return c.Validate()
}
