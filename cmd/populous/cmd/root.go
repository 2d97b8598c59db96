package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

// Version information (set via ldflags at build time)
var (
	Version = "0.0.1-dev"
	Commit  = "unknown"
)

// CLI flags that override config file values
var (
	cfgFile   string
	logLevel  string
	logFormat string
	batchSize int
)

var rootCmd = &cobra.Command{
	Use:   "populous",
	Short: "Blueprint-driven synthetic data generator for PostgreSQL",
	Long: `populous populates a PostgreSQL database from a declarative blueprint:
items, fields, generators, counts and parent-child fan-out describe the
shape of the data; populous resolves dependency order, enforces
uniqueness, and writes rows in batches inside a single transaction.

Features:
  - Parent-before-child generation order, derived from the item graph
  - Bloom-filter-backed uniqueness, preloaded from existing rows
  - A buffered write pipeline with RETURNING-based id back-propagation
  - Row-count verification once a run finishes`,
	Version: Version,
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "",
		"Path to configuration file (optional; defaults apply when absent)")

	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "",
		"Override log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "",
		"Override log format (json, text)")
	rootCmd.PersistentFlags().IntVar(&batchSize, "batch-size", 0,
		"Override write batch size")
}

// GetConfigFile returns the config file path
func GetConfigFile() string {
	return cfgFile
}

// CLIOverrides contains flag values that override config file settings
type CLIOverrides struct {
	LogLevel  string
	LogFormat string
	BatchSize int
}

// GetCLIOverrides returns the CLI flag override values
func GetCLIOverrides() CLIOverrides {
	return CLIOverrides{
		LogLevel:  logLevel,
		LogFormat: logFormat,
		BatchSize: batchSize,
	}
}
