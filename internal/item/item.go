// Package item implements populous's Item: a table's blueprint declaration
// (fields, row count, parent-child fan-out) plus the generation lifecycle
// (preprocessing uniqueness state, producing rows, reacting to a write).
package item

import (
	"context"
	"strings"

	"github.com/elliotchance/orderedmap/v2"

	"github.com/dbsmedya/populous/internal/backend"
	"github.com/dbsmedya/populous/internal/bloomfilter"
	"github.com/dbsmedya/populous/internal/expr"
	"github.com/dbsmedya/populous/internal/generator"
	"github.com/dbsmedya/populous/internal/perrors"
	"github.com/dbsmedya/populous/internal/vars"
)

// Row is a single generated record: field name -> value. It is handed to a
// backend write once, then (with its assigned id) handed back to the owning
// Item's BatchWritten.
type Row map[string]any

// Registry is the slice of Blueprint that Item needs, kept narrow so this
// package never imports internal/blueprint (which imports this package).
type Registry interface {
	// Env returns a snapshot of the blueprint's current global vars,
	// excluding any "this"/by-name bindings -- those are layered on by the
	// caller per row.
	Env() vars.Env
	SetVar(name string, value any)
	// ClearVar removes a binding set by SetVar, once it's no longer needed
	// (e.g. a count.by parent-row binding after its dependents have run).
	ClearVar(name string)
	GetVar(name string) (any, bool)
	AppendVar(name string, value any)
	Item(name string) (*Item, bool)
	// Dependents returns every registered item whose count.by names one of
	// the given identity names, in registration order.
	Dependents(identity map[string]bool) []*Item
	// SeenFilter returns the shared Bloom filter for table+key, creating it
	// the first time it's requested. Every item/field sharing the same
	// table+key (e.g. through inheritance) gets back the same filter.
	SeenFilter(table, key string) (filter *bloomfilter.Filter, fresh bool)
	// ClaimPreload reports whether this call is the first one for table+key,
	// independent of SeenFilter's own bookkeeping -- used by Preprocess to
	// run each key's existing-rows query exactly once even when several
	// items share a table+key.
	ClaimPreload(table, key string) bool
	Backend() backend.Backend
	Buffer() Buffer
	// FlushBuffer forces any rows buffered for it to be written now,
	// propagating any backend error from that write.
	FlushBuffer(ctx context.Context, it *Item) error
}

// Buffer is the slice of internal/buffer that Item needs to enqueue
// generated rows, kept narrow for the same import-cycle reason as Registry.
type Buffer interface {
	Add(ctx context.Context, item *Item, row Row) error
}

// FieldSpec is a field's raw, not-yet-constructed declaration -- kept
// verbatim so a child item can rebuild an equivalent field (spec.md's
// "deep-copy each generator with its original kwargs via the constructor").
type FieldSpec struct {
	Name        string
	Generator   string
	Params      generator.Params
	NullableRaw any
	UniqueRaw   any
	Shadow      bool
	ShadowSet   bool
}

// clone returns a copy of the spec with its own Params map, so mutating the
// copy (e.g. a child overriding kwargs) never touches the parent's spec.
func (s FieldSpec) clone() FieldSpec {
	params := make(generator.Params, len(s.Params))
	for k, v := range s.Params {
		params[k] = v
	}
	s.Params = params
	return s
}

// Field is a constructed, ready-to-run field: its generator plus whether it
// is written to the backing table.
type Field struct {
	Name   string
	Spec   FieldSpec
	Gen    generator.Generator
	Shadow bool
}

// storeTarget is a parsed store_in_item entry: append Expr's evaluated
// result onto the Store-backed field named Field on whichever row is
// currently bound to var Item.
type storeTarget struct {
	Item  string
	Field string
	Expr  expr.Expression
}

// Item is one blueprint table declaration.
type Item struct {
	registry Registry

	Name  string
	Table string

	Fields *orderedmap.OrderedMap[string, *Field]

	Count  Count
	Parent *Item

	StoreInGlobal map[string]expr.Expression
	StoreInItem   []storeTarget

	// Ancestors holds the names of transitively inherited items that
	// should count as this item's identity for count.by fan-out, per
	// spec.md's "parent's count.number == 0" rule.
	Ancestors []string

	// RowsWritten counts every row of this item that has actually reached
	// the backend (generated or fixture, RETURNING or upsert), incremented
	// in BatchWritten. internal/verify compares the per-table sum of this
	// against a live row count once a run finishes.
	RowsWritten int64
}

// New constructs an item, inheriting table/fields/count/store_in from
// parent when one is given. The id field is always added first, as a
// shadow Value(null) placeholder -- it is overwritten with the backend's
// real RETURNING value once the row is written, in BatchWritten.
func New(registry Registry, name, table string, parent *Item) (*Item, error) {
	if name == "" {
		return nil, perrors.Validationf("items without a parent must have a name")
	}
	if parent != nil && table == "" {
		table = parent.Table
	}
	if table == "" {
		return nil, perrors.ValidationItemf(name, "item does not have a table")
	}

	it := &Item{
		registry:      registry,
		Name:          name,
		Table:         table,
		Fields:        orderedmap.NewOrderedMap[string, *Field](),
		StoreInGlobal: map[string]expr.Expression{},
		Parent:        parent,
	}

	if err := it.AddField("id", "Value", generator.Params{"value": nil, "shadow": true}); err != nil {
		return nil, err
	}

	if parent != nil {
		for _, name := range parent.Fields.Keys() {
			field, _ := parent.Fields.Get(name)
			if name == "id" {
				continue
			}
			inherited, err := it.buildField(field.Spec)
			if err != nil {
				return nil, err
			}
			it.Fields.Set(name, inherited)
		}

		it.Ancestors = append(it.Ancestors, parent.Ancestors...)
		if parent.Count.IsZeroNumber() {
			it.Ancestors = append(it.Ancestors, parent.Name)
		}

		it.Count = parent.Count
		it.StoreInItem = append(it.StoreInItem, parent.StoreInItem...)
		for k, v := range parent.StoreInGlobal {
			it.StoreInGlobal[k] = v
		}
	}

	return it, nil
}

// AddCount sets the item's row-count policy. number and min/max are
// mutually exclusive raw values (int, or a "$"-prefixed expression string);
// by is the optional parent item name to fan out per-row from. When this
// item already has an inherited count (merging onto a parent's count
// during New), existing semantics are preserved: by is kept unless
// overridden, and setting min/max drops an inherited number.
func (it *Item) AddCount(numberRaw, byRaw, minRaw, maxRaw any) error {
	by, _ := byRaw.(string)
	if by == "" {
		by = it.Count.By
	}

	hasMinMax := minRaw != nil || maxRaw != nil
	if hasMinMax && numberRaw != nil {
		return perrors.ValidationItemf(it.Name, "count: cannot set 'number' and 'min'/'max'")
	}

	count := Count{By: by}

	switch {
	case hasMinMax:
		minExpr, err := expr.Parse(orDefault(minRaw, 0))
		if err != nil {
			return err
		}
		maxExpr, err := expr.Parse(orDefault(maxRaw, 0))
		if err != nil {
			return err
		}
		count.Min, count.Max = minExpr, maxExpr
		if isZeroLiteral(minRaw) && isZeroLiteral(maxRaw) {
			count.NumberIsZero = true
		}
	case numberRaw != nil:
		numExpr, err := expr.Parse(numberRaw)
		if err != nil {
			return err
		}
		count.Number = numExpr
		if n, ok := numberRaw.(int); ok && n == 0 {
			count.NumberIsZero = true
		}
	default:
		// neither set: keep whatever this item already had (e.g. inherited).
		count.Number = it.Count.Number
		count.Min, count.Max = it.Count.Min, it.Count.Max
		count.NumberIsZero = it.Count.NumberIsZero
	}

	it.Count = count
	return nil
}

func orDefault(v any, def int) any {
	if v == nil {
		return def
	}
	return v
}

// isZeroLiteral reports whether raw is a literal zero for count.by's
// ancestor-append rule: an absent bound defaults to 0 the same as an
// explicit int 0. A "$"-prefixed expression is never literal, since its
// value isn't known until evaluate time.
func isZeroLiteral(raw any) bool {
	if raw == nil {
		return true
	}
	n, ok := raw.(int)
	return ok && n == 0
}

// AddField resolves params into a constructed Field, reusing a same-named
// parent field's generator type (and merging kwargs on top of its original
// ones) when generatorName is empty.
func (it *Item) AddField(name, generatorName string, params generator.Params) error {
	spec := FieldSpec{Name: name, Generator: generatorName, Params: params}

	if generatorName == "" {
		existing, ok := it.Fields.Get(name)
		if !ok {
			return perrors.ValidationFieldf(it.Name, name, "a generator must be specified")
		}
		merged := existing.Spec.clone()
		for k, v := range params {
			merged.Params[k] = v
		}
		merged.Name = name
		spec = merged
	}

	field, err := it.buildField(spec)
	if err != nil {
		return err
	}
	it.Fields.Set(name, field)
	return nil
}

// buildField pops the cross-cutting shadow/nullable/unique kwargs out of a
// clone of spec.Params, constructs the base generator from what remains,
// and wraps it with Unique then Nullable as needed -- Nullable outermost,
// so a null candidate never touches the uniqueness Bloom filter.
func (it *Item) buildField(spec FieldSpec) (*Field, error) {
	spec = spec.clone()

	shadow, shadowSet := popBoolPresence(spec.Params, "shadow")
	if nullableRaw, ok := popAny(spec.Params, "nullable"); ok {
		spec.NullableRaw = nullableRaw
	}
	if uniqueRaw, ok := popAny(spec.Params, "unique"); ok {
		spec.UniqueRaw = uniqueRaw
	}
	if shadowSet {
		spec.Shadow = shadow
		spec.ShadowSet = true
	}

	ctorParams := make(generator.Params, len(spec.Params))
	for k, v := range spec.Params {
		ctorParams[k] = v
	}

	base, err := generator.New(spec.Generator, it.Name, spec.Name, ctorParams)
	if err != nil {
		return nil, err
	}

	var gen generator.Generator = base

	mode, with := generator.ParseUniqueMode(spec.UniqueRaw)
	if mode != generator.UniqueNone {
		filter, _ := it.registry.SeenFilter(it.Table, it.uniqueKey(spec.Name, with))
		gen = &generator.Unique{
			Inner:    gen,
			Mode:     mode,
			With:     with,
			Filter:   filter,
			MaxTries: 10000,
			ItemName: it.Name,
			Field:    spec.Name,
		}
	}

	ratio, err := generator.ParseNullable(spec.NullableRaw)
	if err != nil {
		return nil, err
	}
	if ratio != nil {
		gen = &generator.Nullable{Inner: gen, Ratio: ratio}
	}

	shadowValue := spec.Shadow
	if !spec.ShadowSet {
		if sg, ok := base.(generator.ShadowGenerator); ok {
			shadowValue = sg.Shadow()
		}
	}

	return &Field{Name: spec.Name, Spec: spec, Gen: gen, Shadow: shadowValue}, nil
}

func popAny(p generator.Params, key string) (any, bool) {
	v, ok := p[key]
	if ok {
		delete(p, key)
	}
	return v, ok
}

func popBoolPresence(p generator.Params, key string) (bool, bool) {
	v, ok := popAny(p, key)
	if !ok {
		return false, false
	}
	b, _ := v.(bool)
	return b, true
}

// DbFields returns the ordered list of non-shadow field names -- the
// columns actually inserted for this item's rows.
func (it *Item) DbFields() []string {
	fields := make([]string, 0, it.Fields.Len())
	for _, name := range it.Fields.Keys() {
		field, _ := it.Fields.Get(name)
		if !field.Shadow {
			fields = append(fields, name)
		}
	}
	return fields
}

// uniqueKey is the natural DB key name a unique/unique_with declaration
// describes: the field name alone, or a composite of the field plus its
// sibling fields, in the order spec.md's data model calls "the field name,
// or the composite tuple".
func (it *Item) uniqueKey(field string, with []string) string {
	if len(with) == 0 {
		return field
	}
	return field + "," + strings.Join(with, ",")
}
