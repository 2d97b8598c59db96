package item

import (
	"context"
	"fmt"

	"github.com/dbsmedya/populous/internal/expr"
	"github.com/dbsmedya/populous/internal/generator"
	"github.com/dbsmedya/populous/internal/vars"
)

// rowFactory resolves one row's fields on demand, caching each as it's
// produced. It lives inside this package (rather than as a standalone
// factory package) because it is an implementation detail of Item's Fields
// map with no other consumer -- splitting it out would just reintroduce an
// import back into this package.
type rowFactory struct {
	it   *Item
	env  vars.Env
	byFn string

	generated map[string]any
	err       error
}

func newRowFactory(it *Item, baseEnv vars.Env, parentRow any) *rowFactory {
	f := &rowFactory{
		it:        it,
		env:       baseEnv,
		byFn:      it.Count.By,
		generated: map[string]any{},
	}
	if f.byFn != "" && parentRow != nil {
		f.generated[f.byFn] = parentRow
	}
	return f
}

// Get implements the interface generator.Unique (via getThisField) uses to
// read a sibling field off the row currently under construction.
func (f *rowFactory) Get(name string) (any, bool) {
	if v, ok := f.generated[name]; ok {
		return v, true
	}

	field, ok := f.it.Fields.Get(name)
	if !ok {
		return nil, false
	}

	value, err := field.Gen.Next(f.env.With("this", f))
	if err != nil {
		if f.err == nil {
			f.err = err
		}
		return nil, false
	}

	f.generated[name] = value
	return value, true
}

func (f *rowFactory) generateRow() (Row, error) {
	row := make(Row, f.it.Fields.Len())
	for _, name := range f.it.Fields.Keys() {
		value, ok := f.Get(name)
		if !ok {
			if f.err != nil {
				return nil, f.err
			}
			return nil, fmt.Errorf("field %q could not be generated", name)
		}
		row[name] = value
	}
	return row, nil
}

// rowEnv is the environment store_in expressions are evaluated against for
// the row just produced: the base vars plus "this" bound to the factory
// that produced it, so "$this.field" resolves the finished row's values.
func (f *rowFactory) rowEnv() vars.Env {
	return f.env.With("this", f)
}

func (f *rowFactory) clear() {
	f.err = nil
	if f.byFn != "" {
		if parent, ok := f.generated[f.byFn]; ok {
			f.generated = map[string]any{f.byFn: parent}
			return
		}
	}
	f.generated = map[string]any{}
}

// asUnique finds the *generator.Unique wrapper on a field's generator,
// looking one layer through Nullable since Nullable always wraps Unique on
// the outside (spec.md's "NULL never conflicts with UNIQUE" ordering).
func asUnique(g generator.Generator) (*generator.Unique, bool) {
	if u, ok := g.(*generator.Unique); ok {
		return u, true
	}
	if n, ok := g.(*generator.Nullable); ok {
		u, ok := n.Inner.(*generator.Unique)
		return u, ok
	}
	return nil, false
}

// Preprocess preloads this item's uniqueness Bloom filters with whatever
// rows already exist in the backing table, so freshly generated values never
// collide with pre-existing data. Each distinct unique/unique_with key is
// preloaded at most once per table, the first time any item touches it
// (registry.ClaimPreload returning true).
func (it *Item) Preprocess(ctx context.Context) error {
	be := it.registry.Backend()
	if be == nil {
		return nil
	}

	for _, name := range it.Fields.Keys() {
		field, _ := it.Fields.Get(name)
		unique, ok := asUnique(field.Gen)
		if !ok || unique.Mode == generator.UniqueNone {
			continue
		}

		key := it.uniqueKey(name, unique.With)
		if !it.registry.ClaimPreload(it.Table, key) {
			continue
		}

		keyFields := append([]string{name}, unique.With...)
		rows, err := be.Select(ctx, it.Table, keyFields)
		if err != nil {
			return err
		}
		for {
			row, ok, err := rows.Next()
			if err != nil {
				rows.Close()
				return err
			}
			if !ok {
				break
			}
			values := make([]any, len(keyFields))
			for i, f := range keyFields {
				values[i] = row[f]
			}
			unique.Filter.Add(generator.RowKey(values...), false)
		}
		if err := rows.Close(); err != nil {
			return err
		}
	}

	return nil
}

// Generate produces count rows, enqueuing each into the shared buffer as it
// completes. When this item fans out per parent row (Count.By set),
// parentRow is the finalized parent row bound under that name, visible to
// every field's generator and to store_in expressions. ctx is threaded
// straight through to the buffer, so a flush triggered mid-loop (the queue
// hitting its maxLen) joins whatever backend.Transaction ctx is already
// carrying rather than opening an independent one.
func (it *Item) Generate(ctx context.Context, count int, parentRow Row) error {
	baseEnv := it.registry.Env()
	if be := it.registry.Backend(); be != nil {
		baseEnv = baseEnv.With(generator.BackendEnvKey, be)
	}

	var parent any
	if parentRow != nil {
		parent = parentRow
	}

	f := newRowFactory(it, baseEnv, parent)
	buf := it.registry.Buffer()

	for i := 0; i < count; i++ {
		row, err := f.generateRow()
		if err != nil {
			return err
		}

		if err := it.storeValues(row, f.rowEnv()); err != nil {
			return err
		}

		if err := buf.Add(ctx, it, row); err != nil {
			return err
		}
		f.clear()
	}

	return nil
}

// GenerateFixture produces one row for a named, hand-specified fixture: a
// field named in preset evaluates to its given value instead of running
// through its generator, and every other declared field is generated
// normally. Grounded on the reference system's Fixture.generate, which
// pre-sets fields on an ItemFactory before calling factory.generate() to
// fill in the rest.
func (it *Item) GenerateFixture(preset map[string]expr.Expression, env vars.Env) (Row, error) {
	baseEnv := env
	if be := it.registry.Backend(); be != nil {
		baseEnv = baseEnv.With(generator.BackendEnvKey, be)
	}

	f := newRowFactory(it, baseEnv, nil)
	for name, valueExpr := range preset {
		value, err := valueExpr.Evaluate(f.env.With("this", f))
		if err != nil {
			return nil, err
		}
		f.generated[name] = value
	}

	return f.generateRow()
}

// storeValues evaluates this item's store_in section once for the row just
// generated, appending the result either onto a blueprint-global var list
// or onto a sibling item's Store-backed field. Both targets are mutable
// ([]any slices and map[string]any rows), so a later id patch in
// BatchWritten is visible through every reference already appended here --
// no separate "patch the tail of the list" pass is needed.
func (it *Item) storeValues(row Row, env vars.Env) error {
	for varName, valueExpr := range it.StoreInGlobal {
		value, err := valueExpr.Evaluate(env)
		if err != nil {
			return err
		}
		it.registry.AppendVar(varName, value)
	}

	for _, target := range it.StoreInItem {
		value, err := target.Expr.Evaluate(env)
		if err != nil {
			return err
		}

		targetRow, ok := it.registry.GetVar(target.Item)
		if !ok {
			continue
		}
		list, ok := asRowFieldList(targetRow, target.Field)
		if !ok {
			continue
		}
		*list = append(*list, value)
	}

	return nil
}

// asRowFieldList reaches into a generated row for a Store field's backing
// list. targetRow is whatever store_in's target var currently holds: for
// the common "this.<parent>.<field>" case that is the parent row
// GenerateDependencies binds under the parent's name for the span of this
// item's generation. A target item that isn't currently bound (not this
// item's count.by parent, and not otherwise set) is silently skipped rather
// than erroring, since store_in only has an unambiguous runtime target when
// that binding is live.
func asRowFieldList(targetRow any, field string) (*[]any, bool) {
	row, ok := targetRow.(Row)
	if !ok {
		return nil, false
	}
	list, ok := row[field].(*[]any)
	if !ok {
		return nil, false
	}
	return list, true
}

// BatchWritten pairs each row the buffer just flushed with its backend-
// assigned id, finalizes the rows by mutating their id field in place (so
// every earlier reference to that same row -- a store_in list, a child's
// parent binding -- observes the real id too), and fans out to every
// dependent item.
func (it *Item) BatchWritten(ctx context.Context, rows []Row, ids []any) error {
	if len(rows) != len(ids) {
		return fmt.Errorf("item %q: %d rows written but %d ids returned", it.Name, len(rows), len(ids))
	}

	for i, row := range rows {
		row["id"] = ids[i]
	}
	it.RowsWritten += int64(len(rows))

	return it.GenerateDependencies(ctx, rows)
}

// GenerateDependencies fans out to every item whose count.by names this
// item or one of its zero-count ancestors: for each row just written, the
// parent var is bound, the dependent's count is evaluated in that context,
// its rows are generated (parent = row), and the binding is cleared before
// moving to the next row. Each dependent's buffer is flushed once the whole
// batch has been processed.
func (it *Item) GenerateDependencies(ctx context.Context, batch []Row) error {
	identity := map[string]bool{it.Name: true}
	for _, ancestor := range it.Ancestors {
		identity[ancestor] = true
	}

	dependents := it.registry.Dependents(identity)
	if len(dependents) == 0 {
		return nil
	}

	for _, row := range batch {
		for _, dep := range dependents {
			it.registry.SetVar(dep.Count.By, row)

			count, err := dep.Count.Call(it.registry.Env(), dep.Name, "count")
			if err != nil {
				it.registry.ClearVar(dep.Count.By)
				return err
			}
			err = dep.Generate(ctx, count, row)
			it.registry.ClearVar(dep.Count.By)
			if err != nil {
				return err
			}
		}
	}

	for _, dep := range dependents {
		if err := it.registry.FlushBuffer(ctx, dep); err != nil {
			return err
		}
	}

	return nil
}
