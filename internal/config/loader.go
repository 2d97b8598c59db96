package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/spf13/viper"
)

// Load reads configuration from the specified file path.
// It supports YAML files and performs environment variable substitution.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	substituteEnvVars(cfg)
	applyPostgresEnvFallback(cfg)

	return cfg, nil
}

// LoadFromViper creates a Config from an existing Viper instance.
// Useful for testing or when Viper is configured externally.
func LoadFromViper(v *viper.Viper) (*Config, error) {
	cfg := DefaultConfig()

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	substituteEnvVars(cfg)
	applyPostgresEnvFallback(cfg)

	return cfg, nil
}

// envVarPattern matches ${VAR_NAME} or $VAR_NAME patterns.
var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}|\$([A-Za-z_][A-Za-z0-9_]*)`)

// substituteEnvVars replaces ${VAR_NAME} patterns with environment variable values.
func substituteEnvVars(cfg *Config) {
	cfg.Database.Host = expandEnvVar(cfg.Database.Host)
	cfg.Database.User = expandEnvVar(cfg.Database.User)
	cfg.Database.Password = expandEnvVar(cfg.Database.Password)
	cfg.Database.Database = expandEnvVar(cfg.Database.Database)
	cfg.Logging.Output = expandEnvVar(cfg.Logging.Output)
}

// expandEnvVar expands environment variables in the format ${VAR} or $VAR.
func expandEnvVar(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		var varName string
		if strings.HasPrefix(match, "${") {
			varName = match[2 : len(match)-1]
		} else {
			varName = match[1:]
		}

		if value, exists := os.LookupEnv(varName); exists {
			return value
		}
		return match
	})
}

// pgEnvFallback maps a Config.Database field to the libpq-standard
// environment variable used to fill it in when the config file and the
// $VAR / ${VAR} substitution both leave it blank.
var pgEnvFallback = []struct {
	get func(*DatabaseConfig) *string
	env string
}{
	{func(d *DatabaseConfig) *string { return &d.Host }, "PGHOST"},
	{func(d *DatabaseConfig) *string { return &d.User }, "PGUSER"},
	{func(d *DatabaseConfig) *string { return &d.Password }, "PGPASSWORD"},
	{func(d *DatabaseConfig) *string { return &d.Database }, "PGDATABASE"},
}

// ApplyPostgresEnvFallback fills any still-blank connection field from the
// standard libpq PG* environment variables. Exported so callers building a
// Config outside of Load (e.g. from CLI flags with no config file given)
// can still get the same PG* fallback behavior.
func ApplyPostgresEnvFallback(cfg *Config) {
	applyPostgresEnvFallback(cfg)
}

// applyPostgresEnvFallback fills any still-blank connection field from the
// standard libpq PG* environment variables.
func applyPostgresEnvFallback(cfg *Config) {
	for _, f := range pgEnvFallback {
		field := f.get(&cfg.Database)
		if *field == "" {
			if v, ok := os.LookupEnv(f.env); ok {
				*field = v
			}
		}
	}
	if cfg.Database.Port == 0 {
		if v, ok := os.LookupEnv("PGPORT"); ok {
			var port int
			if _, err := fmt.Sscanf(v, "%d", &port); err == nil {
				cfg.Database.Port = port
			}
		}
	}
}

// ApplyOverrides applies CLI flag overrides to the configuration.
// Only non-zero/non-empty values are applied.
func (c *Config) ApplyOverrides(logLevel, logFormat string, batchSize int) {
	if logLevel != "" {
		c.Logging.Level = logLevel
	}
	if logFormat != "" {
		c.Logging.Format = logFormat
	}
	if batchSize > 0 {
		c.Generation.BatchSize = batchSize
	}
}
