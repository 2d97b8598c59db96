// Package fixture implements populous's Fixture: a named, hand-specified
// row for an item, upserted by a natural key rather than randomly
// generated, then bound into a blueprint variable by name so dependents can
// fan out from it exactly as they would from a generated row. Adapted from
// the reference system's fixture.py.
package fixture

import (
	"context"
	"errors"
	"sort"

	"github.com/dbsmedya/populous/internal/expr"
	"github.com/dbsmedya/populous/internal/item"
	"github.com/dbsmedya/populous/internal/perrors"
)

var errNoBackend = errors.New("no backend configured")

// Fixture is one entry of a blueprint file's optional "fixtures" section.
type Fixture struct {
	ItemName string
	Name     string
	Params   map[string]any
}

// Generate produces and upserts the fixture's row, then runs it through the
// same BatchWritten/GenerateDependencies path a generated batch would, so a
// fixture can have dependents fan out from it.
func (fx *Fixture) Generate(ctx context.Context, reg item.Registry) error {
	it, ok := reg.Item(fx.ItemName)
	if !ok {
		return perrors.ValidationItemf(fx.ItemName,
			"fixture %q references an item that does not exist", fx.Name)
	}

	preset := make(map[string]expr.Expression, len(fx.Params))
	keys := make([]string, 0, len(fx.Params))
	for field, raw := range fx.Params {
		e, err := expr.Parse(raw)
		if err != nil {
			return err
		}
		preset[field] = e
		keys = append(keys, field)
	}
	sort.Strings(keys)

	row, err := it.GenerateFixture(preset, reg.Env())
	if err != nil {
		return err
	}

	be := reg.Backend()
	if be == nil {
		return perrors.Backendf("upsert", errNoBackend)
	}

	columns := it.DbFields()
	values := make([]any, len(columns))
	for i, col := range columns {
		values[i] = row[col]
	}

	id, err := be.Upsert(ctx, it.Table, keys, columns, values)
	if err != nil {
		return err
	}
	row["id"] = id

	reg.SetVar(fx.Name, row)

	return it.BatchWritten(ctx, []item.Row{row}, []any{id})
}
