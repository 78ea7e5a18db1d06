package config

import (
	"context"
	"fmt"
	"os"
	"strings"
)

// SecretStore resolves secret values by key.
type SecretStore interface {
	Get(ctx context.Context, key string) (string, error)
	GetWithDefault(ctx context.Context, key, fallback string) string
}

// EnvironmentSecretStore reads secrets from process environment variables.
type EnvironmentSecretStore struct{}

func NewEnvironmentSecretStore() *EnvironmentSecretStore { return &EnvironmentSecretStore{} }

// Get returns the value of key or an error when it is unset or empty.
func (s *EnvironmentSecretStore) Get(_ context.Context, key string) (string, error) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return "", fmt.Errorf("secret %s not set", key)
	}
	return v, nil
}

func (s *EnvironmentSecretStore) GetWithDefault(ctx context.Context, key, fallback string) string {
	if v, err := s.Get(ctx, key); err == nil {
		return v
	}
	return fallback
}

// Secret keys consulted by LoadSecrets.
const (
	SecretSQLDSN        = "QUESTLINE_STORAGE_SQL_DSN"
	SecretRedisPassword = "QUESTLINE_STORAGE_REDIS_PASSWORD"
	SecretAPIKeys       = "QUESTLINE_SECURITY_API_KEYS"
)

// LoadSecrets fills credentials that never belong in a config file.
// Values already present in cfg are kept when the store has nothing.
func LoadSecrets(ctx context.Context, store SecretStore, cfg *Config) {
	cfg.Storage.SQL.DSN = store.GetWithDefault(ctx, SecretSQLDSN, cfg.Storage.SQL.DSN)
	cfg.Storage.Redis.Password = store.GetWithDefault(ctx, SecretRedisPassword, cfg.Storage.Redis.Password)
	if keys := store.GetWithDefault(ctx, SecretAPIKeys, ""); keys != "" {
		var out []string
		for _, k := range strings.Split(keys, ",") {
			if k = strings.TrimSpace(k); k != "" {
				out = append(out, k)
			}
		}
		cfg.Security.APIKeys = out
	}
}

// LoadSecretsFromEnv is LoadSecrets backed by the environment.
func LoadSecretsFromEnv(cfg *Config) {
	LoadSecrets(context.Background(), NewEnvironmentSecretStore(), cfg)
}
