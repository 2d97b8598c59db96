package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dbsmedya/populous/internal/backend/postgres"
	"github.com/dbsmedya/populous/internal/blueprint"
	"github.com/dbsmedya/populous/internal/blueprintfile"
	"github.com/dbsmedya/populous/internal/config"
	"github.com/dbsmedya/populous/internal/database"
	"github.com/dbsmedya/populous/internal/lock"
	"github.com/dbsmedya/populous/internal/logger"
	"github.com/dbsmedya/populous/internal/verify"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Generate data into a target database",
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.AddCommand(runPostgresCmd)
}

var (
	runHost     string
	runPort     int
	runDB       string
	runUser     string
	runPassword string
	runSSLMode  string
	runNoLock   bool
)

var runPostgresCmd = &cobra.Command{
	Use:   "postgres FILES...",
	Short: "Load blueprint files and generate into a PostgreSQL database",
	Long: `Run postgres loads one or more blueprint files (later files override
earlier ones' vars/items), connects to the target database, preloads
uniqueness state, then generates every item inside a single transaction
that commits once generation finishes cleanly. PostgreSQL connection
parameters not given as flags fall back to the standard PG* environment
variables.

Example:
  populous run postgres --host db.internal --db shop --user populous \
    blueprints/users.yaml blueprints/orders.yaml`,
	Args: cobra.MinimumNArgs(1),
	RunE: runRunPostgres,
}

func init() {
	runPostgresCmd.Flags().StringVar(&runHost, "host", "", "Database host (falls back to PGHOST)")
	runPostgresCmd.Flags().IntVar(&runPort, "port", 0, "Database port (falls back to PGPORT)")
	runPostgresCmd.Flags().StringVar(&runDB, "db", "", "Database name (falls back to PGDATABASE)")
	runPostgresCmd.Flags().StringVar(&runUser, "user", "", "Database user (falls back to PGUSER)")
	runPostgresCmd.Flags().StringVar(&runPassword, "password", "", "Database password (falls back to PGPASSWORD)")
	runPostgresCmd.Flags().StringVar(&runSSLMode, "sslmode", "", "Connection sslmode (disable, prefer, require)")
	runPostgresCmd.Flags().BoolVar(&runNoLock, "no-lock", false, "Skip the advisory lock guarding concurrent runs")
}

func runRunPostgres(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	applyConnectionFlags(&cfg.Database)

	log, err := logger.New(&cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer log.Sync()

	log.Infow("starting run", "files", args)

	dbManager := database.NewManager(&cfg.Database)

	ctx := database.SetupSignalHandler()

	if err := dbManager.Connect(ctx); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer dbManager.Close()

	be := postgres.New(dbManager.DB, log.Desugar())

	bp := blueprint.New(ctx, be, cfg.Generation.BatchSize, log.Desugar())
	if err := blueprintfile.Load(ctx, bp, args); err != nil {
		return fmt.Errorf("failed to load blueprint files: %w", err)
	}

	if err := bp.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	itemNames := itemNamesOf(bp)

	v := verify.New(dbManager.DB, log.Desugar())
	baseline, err := v.Baseline(ctx, tableNamesOf(bp))
	if err != nil {
		return fmt.Errorf("failed to capture baseline row counts: %w", err)
	}

	runFn := func() error {
		if err := bp.Preprocess(ctx); err != nil {
			return fmt.Errorf("preprocess failed: %w", err)
		}

		if err := be.Transaction(ctx, func(ctx context.Context) error {
			return bp.Generate(ctx)
		}); err != nil {
			return fmt.Errorf("generation failed: %w", err)
		}

		return nil
	}

	if cfg.Safety.UseAdvisoryLock && !runNoLock {
		lockErr := lock.WithBlueprintLock(ctx, dbManager.DB, itemNames, runFn)
		if errors.Is(lockErr, lock.ErrLockTimeout) {
			return fmt.Errorf("another run is already in progress for these items")
		}
		if lockErr != nil {
			return lockErr
		}
	} else {
		if err := runFn(); err != nil {
			return err
		}
	}

	stats, err := v.Verify(ctx, bp.ExpectedCounts(), baseline)
	if err != nil {
		return fmt.Errorf("verification failed: %w", err)
	}

	fmt.Fprintf(outputWriter, "\n=== Run Complete ===\n")
	fmt.Fprintf(outputWriter, "Tables Verified: %d\n", stats.TablesVerified)
	fmt.Fprintf(outputWriter, "Rows Written: %d\n", stats.TotalRows)

	return nil
}

// loadConfig reads the optional config file named by --config, falling
// back to defaults when no file is given -- unlike the teacher, which
// always requires a job config file, populous's target database can be
// described entirely by flags/PG* environment variables.
func loadConfig() (*config.Config, error) {
	cfgFile := GetConfigFile()
	var cfg *config.Config
	if cfgFile != "" {
		c, err := config.Load(cfgFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
		cfg = c
	} else {
		cfg = config.DefaultConfig()
		config.ApplyPostgresEnvFallback(cfg)
	}

	overrides := GetCLIOverrides()
	cfg.ApplyOverrides(overrides.LogLevel, overrides.LogFormat, overrides.BatchSize)

	return cfg, nil
}

// applyConnectionFlags overlays the run-postgres connection flags onto cfg,
// leaving a field as loadConfig set it (config file, defaults and PG*
// environment fallback, all already applied) when its flag was not given.
func applyConnectionFlags(cfg *config.DatabaseConfig) {
	if runHost != "" {
		cfg.Host = runHost
	}
	if runPort != 0 {
		cfg.Port = runPort
	}
	if runDB != "" {
		cfg.Database = runDB
	}
	if runUser != "" {
		cfg.User = runUser
	}
	if runPassword != "" {
		cfg.Password = runPassword
	}
	if runSSLMode != "" {
		cfg.SSLMode = runSSLMode
	}
}

func itemNamesOf(bp *blueprint.Blueprint) []string {
	items := bp.Items()
	names := make([]string, len(items))
	for i, it := range items {
		names[i] = it.Name
	}
	return names
}

// tableNamesOf returns the distinct backing tables of bp's items, in first-
// seen order, for Verifier.Baseline to capture a pre-generation COUNT(*)
// against -- several items (e.g. a parent and its inherited children) can
// share the same table, so each name is only returned once.
func tableNamesOf(bp *blueprint.Blueprint) []string {
	items := bp.Items()
	seen := make(map[string]bool, len(items))
	tables := make([]string, 0, len(items))
	for _, it := range items {
		if seen[it.Table] {
			continue
		}
		seen[it.Table] = true
		tables = append(tables, it.Table)
	}
	return tables
}
