package blueprint

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/dbsmedya/populous/internal/backend"
	"github.com/dbsmedya/populous/internal/item"
)

type fakeBackend struct {
	nextID  int64
	written map[string][][]any
	upserts map[string][]any
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{written: map[string][][]any{}, upserts: map[string][]any{}}
}

func (b *fakeBackend) Transaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}
func (b *fakeBackend) Write(ctx context.Context, table, pk string, cols []string, rows [][]any) ([]any, error) {
	ids := make([]any, len(rows))
	for i, row := range rows {
		b.nextID++
		ids[i] = b.nextID
		b.written[table] = append(b.written[table], row)
	}
	return ids, nil
}
func (b *fakeBackend) Upsert(ctx context.Context, table string, keys, columns []string, row []any) (any, error) {
	b.nextID++
	b.upserts[table] = row
	return b.nextID, nil
}
func (b *fakeBackend) Select(ctx context.Context, table string, fields []string) (backend.RowIterator, error) {
	return &emptyRows{}, nil
}
func (b *fakeBackend) SelectRandom(table string, fields []string, where map[string]any, maxRows int) ([]map[string]any, error) {
	return nil, nil
}
func (b *fakeBackend) GetPKColumn(ctx context.Context, table string) (string, error) { return "id", nil }
func (b *fakeBackend) GetMaxExistingValue(item, field string) (int64, bool, error)   { return 0, false, nil }
func (b *fakeBackend) GetNextPK(item, field string) (int64, bool, error)             { return 0, false, nil }
func (b *fakeBackend) Close() error                                                  { return nil }

type emptyRows struct{}

func (emptyRows) Next() (map[string]any, bool, error) { return nil, false, nil }
func (emptyRows) Close() error                        { return nil }

func newTestBlueprint(be backend.Backend) *Blueprint {
	return New(context.Background(), be, 1000, zap.NewNop())
}

func TestAddItemRejectsUnknownKey(t *testing.T) {
	bp := newTestBlueprint(newFakeBackend())
	err := bp.AddItem(map[string]any{"name": "users", "table": "users", "bogus": 1})
	assert.Error(t, err)
}

func TestAddItemRequiresExistingParent(t *testing.T) {
	bp := newTestBlueprint(newFakeBackend())
	err := bp.AddItem(map[string]any{"name": "admin", "parent": "ghost"})
	assert.Error(t, err)
}

func TestAddItemInheritsFromParent(t *testing.T) {
	bp := newTestBlueprint(newFakeBackend())
	require.NoError(t, bp.AddItem(map[string]any{
		"name":  "user",
		"table": "users",
		"fields": map[string]any{
			"name": "bob",
		},
	}))
	require.NoError(t, bp.AddItem(map[string]any{
		"name":   "admin",
		"parent": "user",
	}))

	admin, ok := bp.Item("admin")
	require.True(t, ok)
	assert.Equal(t, "users", admin.Table)
	_, ok = admin.Fields.Get("name")
	assert.True(t, ok)
}

func TestAddItemRedefinitionAmbiguousParentErrors(t *testing.T) {
	bp := newTestBlueprint(newFakeBackend())
	require.NoError(t, bp.AddItem(map[string]any{"name": "user", "table": "users"}))

	err := bp.AddItem(map[string]any{"name": "user", "parent": "other"})
	assert.Error(t, err)
}

func TestAddItemCountVariants(t *testing.T) {
	bp := newTestBlueprint(newFakeBackend())

	require.NoError(t, bp.AddItem(map[string]any{
		"name": "a", "table": "as", "count": 3,
	}))
	a, _ := bp.Item("a")
	n, err := a.Count.Call(bp.Env(), "a", "count")
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	require.NoError(t, bp.AddItem(map[string]any{
		"name": "b", "table": "bs",
		"count": map[string]any{"min": 2, "max": 2},
	}))
	b, _ := bp.Item("b")
	n, err = b.Count.Call(bp.Env(), "b", "count")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestAddItemCountUnknownKeyErrors(t *testing.T) {
	bp := newTestBlueprint(newFakeBackend())
	err := bp.AddItem(map[string]any{
		"name": "a", "table": "as",
		"count": map[string]any{"bogus": 1},
	})
	assert.Error(t, err)
}

func TestValidateDetectsCountByCycle(t *testing.T) {
	bp := newTestBlueprint(newFakeBackend())
	require.NoError(t, bp.AddItem(map[string]any{
		"name": "a", "table": "as",
		"count": map[string]any{"number": 1, "by": "b"},
	}))
	require.NoError(t, bp.AddItem(map[string]any{
		"name": "b", "table": "bs",
		"count": map[string]any{"number": 1, "by": "a"},
	}))

	assert.Error(t, bp.Validate())
}

func TestGenerateSkipsCountByItemsAtTopLevel(t *testing.T) {
	be := newFakeBackend()
	bp := newTestBlueprint(be)

	require.NoError(t, bp.AddItem(map[string]any{
		"name": "users", "table": "users", "count": 2,
	}))
	require.NoError(t, bp.AddItem(map[string]any{
		"name":  "posts",
		"table": "posts",
		"count": map[string]any{"number": 3, "by": "users"},
		"fields": map[string]any{
			"title": "hello",
		},
	}))

	require.NoError(t, bp.Generate(context.Background()))

	assert.Len(t, be.written["users"], 2)
	assert.Len(t, be.written["posts"], 6)
}

type failingWriteBackend struct {
	*fakeBackend
	failTable string
}

func (b *failingWriteBackend) Write(ctx context.Context, table, pk string, cols []string, rows [][]any) ([]any, error) {
	if table == b.failTable {
		return nil, assert.AnError
	}
	return b.fakeBackend.Write(ctx, table, pk, cols, rows)
}

// TestGenerateDependentFlushFailurePropagates covers the failure policy a
// dependent item's write must honor: a backend error flushing a child's
// buffer has to abort the whole Generate call, not just get logged while
// the run reports success.
func TestGenerateDependentFlushFailurePropagates(t *testing.T) {
	be := &failingWriteBackend{fakeBackend: newFakeBackend(), failTable: "posts"}
	bp := newTestBlueprint(be)

	require.NoError(t, bp.AddItem(map[string]any{
		"name": "users", "table": "users", "count": 1,
	}))
	require.NoError(t, bp.AddItem(map[string]any{
		"name":  "posts",
		"table": "posts",
		"count": map[string]any{"number": 1, "by": "users"},
		"fields": map[string]any{
			"title": "hello",
		},
	}))

	err := bp.Generate(context.Background())
	assert.ErrorIs(t, err, assert.AnError)
}

func TestAddFixtureUpsertsAndBindsVar(t *testing.T) {
	be := newFakeBackend()
	bp := newTestBlueprint(be)

	require.NoError(t, bp.AddItem(map[string]any{
		"name":  "countries",
		"table": "countries",
		"fields": map[string]any{
			"code": "",
			"name": "",
		},
	}))

	require.NoError(t, bp.AddFixture(context.Background(), "countries", "france", map[string]any{
		"code": "FR",
		"name": "France",
	}))

	v, ok := bp.GetVar("france")
	require.True(t, ok)
	row := v.(item.Row)
	assert.Equal(t, "FR", row["code"])
	assert.NotNil(t, row["id"])
}
