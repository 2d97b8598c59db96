package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "test.yaml")

	configContent := `
database:
  host: localhost
  port: 5432
  user: testuser
  password: testpass
  database: testdb
  sslmode: disable
  max_connections: 5
  max_idle_connections: 2

generation:
  batch_size: 500
  bloom_initial_capacity: 2000
  bloom_error_rate: 0.01
  max_unique_tries: 500

logging:
  level: debug
  format: text
  output: stdout
`
	require.NoError(t, os.WriteFile(configPath, []byte(configContent), 0644))

	cfg, err := Load(configPath)
	require.NoError(t, err)

	assert.Equal(t, "localhost", cfg.Database.Host)
	assert.Equal(t, 5432, cfg.Database.Port)
	assert.Equal(t, "testuser", cfg.Database.User)
	assert.Equal(t, 5, cfg.Database.MaxConnections)

	assert.Equal(t, 500, cfg.Generation.BatchSize)
	assert.EqualValues(t, 2000, cfg.Generation.BloomInitialCapacity)

	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoadWithEnvVars(t *testing.T) {
	os.Setenv("TEST_DB_HOST", "env-host")
	os.Setenv("TEST_DB_USER", "env-user")
	os.Setenv("TEST_DB_PASS", "env-pass")
	defer func() {
		os.Unsetenv("TEST_DB_HOST")
		os.Unsetenv("TEST_DB_USER")
		os.Unsetenv("TEST_DB_PASS")
	}()

	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "test-env.yaml")

	configContent := `
database:
  host: ${TEST_DB_HOST}
  port: 5432
  user: ${TEST_DB_USER}
  password: ${TEST_DB_PASS}
  database: testdb
`
	require.NoError(t, os.WriteFile(configPath, []byte(configContent), 0644))

	cfg, err := Load(configPath)
	require.NoError(t, err)

	assert.Equal(t, "env-host", cfg.Database.Host)
	assert.Equal(t, "env-user", cfg.Database.User)
	assert.Equal(t, "env-pass", cfg.Database.Password)
}

func TestLoadWithPostgresEnvFallback(t *testing.T) {
	os.Setenv("PGHOST", "fallback-host")
	os.Setenv("PGUSER", "fallback-user")
	defer func() {
		os.Unsetenv("PGHOST")
		os.Unsetenv("PGUSER")
	}()

	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "test-fallback.yaml")

	configContent := `
database:
  port: 5432
  database: testdb
`
	require.NoError(t, os.WriteFile(configPath, []byte(configContent), 0644))

	cfg, err := Load(configPath)
	require.NoError(t, err)

	assert.Equal(t, "fallback-host", cfg.Database.Host)
	assert.Equal(t, "fallback-user", cfg.Database.User)
}

func TestApplyPostgresEnvFallbackFillsBlankFieldsOnly(t *testing.T) {
	os.Setenv("PGHOST", "fallback-host")
	os.Setenv("PGDATABASE", "fallback-db")
	defer func() {
		os.Unsetenv("PGHOST")
		os.Unsetenv("PGDATABASE")
	}()

	cfg := DefaultConfig()
	cfg.Database.Database = "explicit-db"

	ApplyPostgresEnvFallback(cfg)

	assert.Equal(t, "fallback-host", cfg.Database.Host)
	assert.Equal(t, "explicit-db", cfg.Database.Database, "already-set field must not be overwritten")
}

func TestExpandEnvVar(t *testing.T) {
	os.Setenv("TEST_VAR", "test-value")
	defer os.Unsetenv("TEST_VAR")

	tests := []struct {
		input    string
		expected string
	}{
		{"${TEST_VAR}", "test-value"},
		{"$TEST_VAR", "test-value"},
		{"prefix-${TEST_VAR}-suffix", "prefix-test-value-suffix"},
		{"${NONEXISTENT}", "${NONEXISTENT}"},
		{"no-vars-here", "no-vars-here"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, expandEnvVar(tt.input))
	}
}

func TestLoadNonExistentFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	assert.Error(t, err)
}

func TestApplyOverrides(t *testing.T) {
	cfg := DefaultConfig()

	cfg.ApplyOverrides("debug", "json", 500)

	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, 500, cfg.Generation.BatchSize)
}

func TestApplyOverridesZeroValues(t *testing.T) {
	cfg := &Config{
		Logging:    LoggingConfig{Level: "warn", Format: "json"},
		Generation: GenerationConfig{BatchSize: 2000},
	}

	cfg.ApplyOverrides("", "", 0)

	assert.Equal(t, "warn", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, 2000, cfg.Generation.BatchSize)
}
