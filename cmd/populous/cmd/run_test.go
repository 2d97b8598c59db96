package cmd

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/dbsmedya/populous/internal/blueprint"
	"github.com/dbsmedya/populous/internal/config"
)

func TestApplyConnectionFlagsOverridesOnlyGivenFields(t *testing.T) {
	originalHost, originalPort, originalDB := runHost, runPort, runDB
	defer func() { runHost, runPort, runDB = originalHost, originalPort, originalDB }()

	runHost, runPort, runDB = "db.internal", 5433, "shop"

	cfg := config.DefaultConfig()
	applyConnectionFlags(&cfg.Database)

	assert.Equal(t, "db.internal", cfg.Database.Host)
	assert.Equal(t, 5433, cfg.Database.Port)
	assert.Equal(t, "shop", cfg.Database.Database)
	assert.Equal(t, "prefer", cfg.Database.SSLMode, "sslmode flag was not set, default should survive")
}

func TestLoadConfigDefaultsWhenNoConfigFileGiven(t *testing.T) {
	original := cfgFile
	defer func() { cfgFile = original }()
	cfgFile = ""

	cfg, err := loadConfig()
	require.NoError(t, err)
	assert.Equal(t, 1000, cfg.Generation.BatchSize)
}

func TestLoadConfigAppliesCLIOverrides(t *testing.T) {
	original := cfgFile
	originalBatch := batchSize
	defer func() {
		cfgFile = original
		batchSize = originalBatch
	}()
	cfgFile = ""
	batchSize = 250

	cfg, err := loadConfig()
	require.NoError(t, err)
	assert.Equal(t, 250, cfg.Generation.BatchSize)
}

func TestItemNamesOfPreservesRegistrationOrder(t *testing.T) {
	bp := blueprint.New(context.Background(), nil, 0, zap.NewNop())
	require.NoError(t, bp.AddItem(map[string]any{"name": "users", "table": "users", "count": 1}))
	require.NoError(t, bp.AddItem(map[string]any{"name": "orders", "table": "orders", "count": 1}))

	assert.Equal(t, []string{"users", "orders"}, itemNamesOf(bp))
}

func TestTableNamesOfDedupesSharedTable(t *testing.T) {
	bp := blueprint.New(context.Background(), nil, 0, zap.NewNop())
	require.NoError(t, bp.AddItem(map[string]any{"name": "users", "table": "users", "count": 1}))
	require.NoError(t, bp.AddItem(map[string]any{"name": "admins", "parent": "users"}))
	require.NoError(t, bp.AddItem(map[string]any{"name": "orders", "table": "orders", "count": 1}))

	assert.Equal(t, []string{"users", "orders"}, tableNamesOf(bp))
}

func TestRunPostgresCommandRequiresAtLeastOneFile(t *testing.T) {
	assert.Error(t, runPostgresCmd.Args(runPostgresCmd, []string{}))
	assert.NoError(t, runPostgresCmd.Args(runPostgresCmd, []string{"a.yaml"}))
}
