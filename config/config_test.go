package config

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"questline/adapters/sqlx"
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
	assert.Equal(t, 50, cfg.Game.FeedCapacity)
	assert.Equal(t, "async", cfg.Game.DispatchMode)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("QUESTLINE_SERVER_ADDR", ":7070")
	t.Setenv("QUESTLINE_GAME_FEED_CAPACITY", "20")
	t.Setenv("QUESTLINE_GAME_SYNC_RETRIES", "7")
	t.Setenv("QUESTLINE_WEBHOOK_ENDPOINTS", "http://a.example/hook, https://b.example/hook")
	t.Setenv("QUESTLINE_SERVER_SHUTDOWN_TIMEOUT", "3s")
	t.Setenv("QUESTLINE_LOG_ATTRIBUTES", "service=questline,region=eu")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ":7070", cfg.Server.Address)
	assert.Equal(t, 20, cfg.Game.FeedCapacity)
	assert.Equal(t, uint64(7), cfg.Game.SyncRetries)
	assert.Equal(t, []string{"http://a.example/hook", "https://b.example/hook"}, cfg.Webhook.Endpoints)
	assert.Equal(t, 3*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, map[string]string{"service": "questline", "region": "eu"}, cfg.Logging.Attributes)
}

func TestLoadEnvReachesNestedSections(t *testing.T) {
	t.Setenv("QUESTLINE_STORAGE_ADAPTER", "sql")
	t.Setenv("QUESTLINE_STORAGE_SQL_DRIVER", "mysql")
	t.Setenv("QUESTLINE_STORAGE_REDIS_ADDR", "cache:6379")
	t.Setenv("QUESTLINE_GAME_SYNC_MAX_ELAPSED", "12s")
	t.Setenv("QUESTLINE_SECURITY_RATE_LIMIT_RPM", "90")
	t.Setenv("QUESTLINE_SECURITY_API_KEYS", " k1, ,k2")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "sql", cfg.Storage.Adapter)
	assert.Equal(t, sqlx.DriverMySQL, cfg.Storage.SQL.Driver)
	assert.Equal(t, "cache:6379", cfg.Storage.Redis.Addr)
	assert.Equal(t, 12*time.Second, cfg.Game.SyncMaxElapsed)
	assert.Equal(t, 90, cfg.Security.RateLimit.RequestsPerMinute)
	assert.Equal(t, []string{"k1", "k2"}, cfg.Security.APIKeys)
}

func TestLoadRejectsBadEnv(t *testing.T) {
	t.Setenv("QUESTLINE_GAME_INBOX_SIZE", "lots")
	_, err := Load()
	assert.Error(t, err)
}

func TestLoadUsesProfileFromEnv(t *testing.T) {
	t.Setenv("QUESTLINE_PROFILE", "testing")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, EnvTesting, cfg.Environment)
	assert.Equal(t, "sync", cfg.Game.DispatchMode)

	t.Setenv("QUESTLINE_PROFILE", "nope")
	_, err = Load()
	assert.Error(t, err)
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
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{name: "defaults", mutate: func(*Config) {}},
		{name: "empty environment", mutate: func(c *Config) { c.Environment = "" }, wantErr: "environment cannot be empty"},
		{name: "zero read timeout", mutate: func(c *Config) { c.Server.ReadTimeout = 0 }, wantErr: "server config: read_timeout must be positive"},
		{name: "unknown adapter", mutate: func(c *Config) { c.Storage.Adapter = "tape" }, wantErr: "adapter must be one of"},
		{name: "sql adapter without dsn", mutate: func(c *Config) {
			c.Storage.Adapter = "sql"
			c.Storage.SQL.DSN = ""
		}, wantErr: "sql config: dsn cannot be empty"},
		{name: "bad webhook endpoint", mutate: func(c *Config) { c.Webhook.Endpoints = []string{"ftp://nowhere"} }, wantErr: "endpoints[0]"},
		{name: "bad dispatch mode", mutate: func(c *Config) { c.Game.DispatchMode = "eventually" }, wantErr: "dispatch_mode"},
		{name: "negative sync max elapsed", mutate: func(c *Config) { c.Game.SyncMaxElapsed = -time.Second }, wantErr: "sync_max_elapsed"},
		{name: "rate limit without burst", mutate: func(c *Config) {
			c.Security.EnableRateLimit = true
			c.Security.RateLimit.BurstSize = 0
		}, wantErr: "burst_size"},
		{name: "bad log format", mutate: func(c *Config) { c.Logging.Format = "xml" }, wantErr: "logging config: format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidateReportsEveryProblem(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Game.FeedCapacity = 0
	cfg.Logging.Level = "loud"
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "game config: feed_capacity must be positive")
	assert.Contains(t, err.Error(), "; logging config: level must be one of: debug, info, warn, error")
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

func TestSecrets(t *testing.T) {
	// Test environment secret store
	store := NewEnvironmentSecretStore()

	// Set test environment variable
	testKey := "TEST_SECRET_KEY"
	testValue := "test_secret_value"
	os.Setenv(testKey, testValue)
	defer os.Unsetenv(testKey)

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

	_, err = store.Get(ctx, "NONEXISTENT_KEY")
	assert.Error(t, err)
}

func TestLoadSecretsFromEnv(t *testing.T) {
	t.Setenv(SecretSQLDSN, "postgres://u:p@db/questline")
	t.Setenv(SecretAPIKeys, "k1, ,k2")

	cfg := DefaultConfig()
	cfg.Storage.Redis.Password = "from-file"
	LoadSecretsFromEnv(cfg)

	assert.Equal(t, "postgres://u:p@db/questline", cfg.Storage.SQL.DSN)
	assert.Equal(t, "from-file", cfg.Storage.Redis.Password)
	assert.Equal(t, []string{"k1", "k2"}, cfg.Security.APIKeys)

	out := cfg.String()
	assert.NotContains(t, out, "u:p@db")
	assert.NotContains(t, out, "from-file")
	assert.NotContains(t, out, "k1")
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
