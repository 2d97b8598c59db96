// Package config provides configuration structures and loading for populous.
package config

// Config represents the complete application configuration for a generation run.
type Config struct {
	Database   DatabaseConfig   `yaml:"database" mapstructure:"database"`
	Generation GenerationConfig `yaml:"generation" mapstructure:"generation"`
	Safety     SafetyConfig     `yaml:"safety" mapstructure:"safety"`
	Logging    LoggingConfig    `yaml:"logging" mapstructure:"logging"`
}

// DatabaseConfig represents the target PostgreSQL connection configuration.
type DatabaseConfig struct {
	Host               string `yaml:"host" mapstructure:"host"`
	Port               int    `yaml:"port" mapstructure:"port"`
	User               string `yaml:"user" mapstructure:"user"`
	Password           string `yaml:"password" mapstructure:"password"`
	Database           string `yaml:"database" mapstructure:"database"`
	SSLMode            string `yaml:"sslmode" mapstructure:"sslmode"` // disable, prefer, require
	MaxConnections     int    `yaml:"max_connections" mapstructure:"max_connections"`
	MaxIdleConnections int    `yaml:"max_idle_connections" mapstructure:"max_idle_connections"`
}

// GenerationConfig holds the generation settings of a blueprint run. A run
// reads only BatchSize; the Bloom filter, unique-retry and progress fields
// are validated but not read (Bloom filters and unique retries use fixed
// values in internal/blueprint and internal/item).
type GenerationConfig struct {
	BatchSize            int     `yaml:"batch_size" mapstructure:"batch_size"`
	BloomInitialCapacity uint    `yaml:"bloom_initial_capacity" mapstructure:"bloom_initial_capacity"`
	BloomErrorRate       float64 `yaml:"bloom_error_rate" mapstructure:"bloom_error_rate"`
	MaxUniqueTries       int     `yaml:"max_unique_tries" mapstructure:"max_unique_tries"`
	ProgressIntervalSecs int     `yaml:"progress_interval_seconds" mapstructure:"progress_interval_seconds"`
}

// SafetyConfig represents safety settings for a generation run.
// AdvisoryLockTimeout is validated but not read: the run's advisory lock
// waits lock.TimeoutShort.
type SafetyConfig struct {
	UseAdvisoryLock     bool `yaml:"use_advisory_lock" mapstructure:"use_advisory_lock"`
	AdvisoryLockTimeout int  `yaml:"advisory_lock_timeout_seconds" mapstructure:"advisory_lock_timeout_seconds"`
}

// LoggingConfig represents logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`   // debug, info, warn, error
	Format string `yaml:"format" mapstructure:"format"` // json or text
	Output string `yaml:"output" mapstructure:"output"` // stdout, stderr, or file path
}

// DefaultConfig returns a Config with sensible default values.
func DefaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Host:               "localhost",
			Port:               5432,
			SSLMode:            "prefer",
			MaxConnections:     10,
			MaxIdleConnections: 5,
		},
		Generation: GenerationConfig{
			BatchSize:            1000,
			BloomInitialCapacity: 10000,
			BloomErrorRate:       0.001,
			MaxUniqueTries:       10000,
			ProgressIntervalSecs: 5,
		},
		Safety: SafetyConfig{
			UseAdvisoryLock:     true,
			AdvisoryLockTimeout: 10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stdout",
		},
	}
}
