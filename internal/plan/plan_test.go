package plan

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/dbsmedya/populous/internal/blueprint"
)

func newTestBlueprint() *blueprint.Blueprint {
	return blueprint.New(context.Background(), nil, 1000, zap.NewNop())
}

func TestBuildEstimatesTopLevelCount(t *testing.T) {
	bp := newTestBlueprint()
	require.NoError(t, bp.AddItem(map[string]any{"name": "users", "table": "users", "count": 5}))

	roots, err := Build(bp)
	require.NoError(t, err)
	require.Len(t, roots, 1)
	assert.Equal(t, "users", roots[0].Name)
	assert.Equal(t, int64(5), roots[0].EstimatedRows)
	assert.Empty(t, roots[0].Children)
}

func TestBuildScalesFanOutByParentCount(t *testing.T) {
	bp := newTestBlueprint()
	require.NoError(t, bp.AddItem(map[string]any{"name": "users", "table": "users", "count": 10}))
	require.NoError(t, bp.AddItem(map[string]any{
		"name": "orders", "table": "orders",
		"count": map[string]any{"number": 3, "by": "users"},
	}))

	roots, err := Build(bp)
	require.NoError(t, err)
	require.Len(t, roots, 1)
	require.Len(t, roots[0].Children, 1)
	assert.Equal(t, "orders", roots[0].Children[0].Name)
	assert.Equal(t, int64(30), roots[0].Children[0].EstimatedRows)
}

func TestBuildNestsMultipleLevelsOfFanOut(t *testing.T) {
	bp := newTestBlueprint()
	require.NoError(t, bp.AddItem(map[string]any{"name": "users", "table": "users", "count": 2}))
	require.NoError(t, bp.AddItem(map[string]any{
		"name": "orders", "table": "orders",
		"count": map[string]any{"number": 2, "by": "users"},
	}))
	require.NoError(t, bp.AddItem(map[string]any{
		"name": "order_lines", "table": "order_lines",
		"count": map[string]any{"number": 3, "by": "orders"},
	}))

	roots, err := Build(bp)
	require.NoError(t, err)
	lines := roots[0].Children[0].Children[0]
	assert.Equal(t, int64(12), lines.EstimatedRows)
}

func TestTotalRowsSumsEntireForest(t *testing.T) {
	bp := newTestBlueprint()
	require.NoError(t, bp.AddItem(map[string]any{"name": "users", "table": "users", "count": 2}))
	require.NoError(t, bp.AddItem(map[string]any{
		"name": "orders", "table": "orders",
		"count": map[string]any{"number": 2, "by": "users"},
	}))

	roots, err := Build(bp)
	require.NoError(t, err)
	assert.Equal(t, int64(6), TotalRows(roots))
}

func TestRenderProducesTreeWithCountsAndTotal(t *testing.T) {
	bp := newTestBlueprint()
	require.NoError(t, bp.AddItem(map[string]any{"name": "users", "table": "users", "count": 5}))
	require.NoError(t, bp.AddItem(map[string]any{
		"name": "orders", "table": "orders",
		"count": map[string]any{"number": 3, "by": "users"},
	}))

	roots, err := Build(bp)
	require.NoError(t, err)

	out := Render(roots)
	assert.Contains(t, out, "users")
	assert.Contains(t, out, "orders")
	assert.Contains(t, out, "total estimated rows:")
	assert.True(t, strings.Contains(out, "└── orders") || strings.Contains(out, "├── orders"))
}
