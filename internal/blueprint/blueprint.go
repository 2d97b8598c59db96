// Package blueprint implements populous's Blueprint: the registry of items
// and variables that validates additions and orchestrates preprocessing and
// top-level generation, adapted from the reference system's
// blueprint.py (add_item/add_var/preprocess/generate).
package blueprint

import (
	"context"

	"github.com/elliotchance/orderedmap/v2"
	"go.uber.org/zap"

	"github.com/dbsmedya/populous/internal/backend"
	"github.com/dbsmedya/populous/internal/bloomfilter"
	"github.com/dbsmedya/populous/internal/buffer"
	"github.com/dbsmedya/populous/internal/fixture"
	"github.com/dbsmedya/populous/internal/generator"
	"github.com/dbsmedya/populous/internal/item"
	"github.com/dbsmedya/populous/internal/itemgraph"
	"github.com/dbsmedya/populous/internal/perrors"
	"github.com/dbsmedya/populous/internal/vars"
)

// itemKeys and countKeys are the only keys a blueprint file's item/count
// descriptions may use; anything else is a validation error.
var itemKeys = map[string]bool{
	"name": true, "parent": true, "table": true,
	"count": true, "fields": true, "store_in": true,
}

var countKeys = map[string]bool{"number": true, "by": true, "min": true, "max": true}

// Blueprint is the top-level registry of items and variables, and the
// entry point for generation.
type Blueprint struct {
	log *zap.Logger

	be  backend.Backend
	buf *buffer.Buffer

	items *orderedmap.OrderedMap[string, *item.Item]
	v     vars.Env

	filters map[string]*bloomfilter.Filter
	claimed map[string]bool

	graph *itemgraph.Graph
}

// New creates an empty Blueprint bound to be. maxBufferLen is the per-item
// row count that triggers an automatic write (buffer.DefaultMaxLen if 0).
func New(ctx context.Context, be backend.Backend, maxBufferLen int, log *zap.Logger) *Blueprint {
	if log == nil {
		log = zap.NewNop()
	}
	return &Blueprint{
		log:     log,
		be:      be,
		buf:     buffer.New(be, maxBufferLen),
		items:   orderedmap.NewOrderedMap[string, *item.Item](),
		v:       vars.New(),
		filters: map[string]*bloomfilter.Filter{},
		claimed: map[string]bool{},
		graph:   itemgraph.New(),
	}
}

// AddVar sets a blueprint-global variable directly, for vars declared at the
// top level of a blueprint file.
func (bp *Blueprint) AddVar(name string, value any) {
	bp.v = bp.v.With(name, value)
}

// Items returns every registered item, in registration order.
func (bp *Blueprint) Items() []*item.Item {
	out := make([]*item.Item, 0, bp.items.Len())
	for _, name := range bp.items.Keys() {
		it, _ := bp.items.Get(name)
		out = append(out, it)
	}
	return out
}

// Graph exposes the count.by dependency graph, for the plan command.
func (bp *Blueprint) Graph() *itemgraph.Graph { return bp.graph }

// AddItem validates and registers one item description (a single entry of
// a blueprint file's "items" list). Re-declaring an already-registered name
// implicitly sets that name as its own parent, letting a later blueprint
// file extend an earlier one's item.
func (bp *Blueprint) AddItem(description map[string]any) error {
	for key := range description {
		if !itemKeys[key] {
			return perrors.Validationf(
				"unknown item key %q (allowed: name, parent, table, count, fields, store_in)", key)
		}
	}

	name, _ := description["name"].(string)

	if name != "" {
		if _, exists := bp.items.Get(name); exists {
			if p, ok := description["parent"].(string); ok && p != "" && p != name {
				return perrors.ValidationItemf(name,
					"re-defining item while setting %q as parent is ambiguous", p)
			}
			description["parent"] = name
		}
	}

	var parent *item.Item
	if parentName, ok := description["parent"].(string); ok && parentName != "" {
		p, exists := bp.items.Get(parentName)
		if !exists {
			return perrors.ValidationItemf(parentName, "parent does not exist")
		}
		parent = p
		if name == "" {
			name = parent.Name
		}
	}

	table, _ := description["table"].(string)

	it, err := item.New(bp, name, table, parent)
	if err != nil {
		return err
	}

	if err := bp.addFields(it, description["fields"]); err != nil {
		return err
	}

	if storeIn, ok := description["store_in"].(map[string]any); ok && storeIn != nil {
		if err := it.ParseStoreIn(storeIn); err != nil {
			return err
		}
	}

	if countRaw, ok := description["count"]; ok && countRaw != nil {
		if err := applyCount(it, countRaw); err != nil {
			return err
		}
	}

	bp.items.Set(name, it)
	bp.graph.AddNode(name)
	if it.Count.By != "" {
		bp.graph.AddEdge(it.Count.By, name)
	}

	return nil
}

func (bp *Blueprint) addFields(it *item.Item, raw any) error {
	fields, ok := raw.(map[string]any)
	if !ok {
		return nil
	}

	for fieldName, attrs := range fields {
		var genName string
		var params generator.Params

		if m, ok := attrs.(map[string]any); ok {
			params = make(generator.Params, len(m))
			for k, v := range m {
				params[k] = v
			}
			if g, ok := params["generator"]; ok {
				genName, _ = g.(string)
				delete(params, "generator")
			}
		} else {
			genName = "Value"
			params = generator.Params{"value": attrs}
		}

		if err := it.AddField(fieldName, genName, params); err != nil {
			return err
		}
	}

	return nil
}

func applyCount(it *item.Item, raw any) error {
	switch v := raw.(type) {
	case int:
		return it.AddCount(v, nil, nil, nil)
	case string:
		if v != "" && v[0] == '$' {
			return it.AddCount(v, nil, nil, nil)
		}
		return perrors.ValidationItemf(it.Name, "count must be an integer, expression, or dict")
	case map[string]any:
		for key := range v {
			if !countKeys[key] {
				return perrors.ValidationItemf(it.Name, "unknown count key %q", key)
			}
		}
		return it.AddCount(v["number"], v["by"], v["min"], v["max"])
	default:
		return perrors.ValidationItemf(it.Name, "count must be an integer, expression, or dict")
	}
}

// AddFixture registers and immediately generates a named, hand-specified
// row for itemName, upserting it by the keys given in params and binding it
// into the blueprint variable name so other items can reference it.
func (bp *Blueprint) AddFixture(ctx context.Context, itemName, name string, params map[string]any) error {
	fx := &fixture.Fixture{ItemName: itemName, Name: name, Params: params}
	return fx.Generate(ctx, bp)
}

// Validate checks the count.by dependency graph for cycles. Called once
// every item has been added, before Preprocess/Generate.
func (bp *Blueprint) Validate() error {
	return bp.graph.Validate()
}

// Preprocess preloads every item's uniqueness Bloom filters from the
// backend's existing rows.
func (bp *Blueprint) Preprocess(ctx context.Context) error {
	bp.log.Info("getting existing unique values")
	for _, name := range bp.items.Keys() {
		it, _ := bp.items.Get(name)
		if err := it.Preprocess(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Generate runs top-level generation: every item without a count.by parent
// is generated for its own count() rows, in registration order; items with
// count.by are produced lazily as their parent's batches are written. Once
// every top-level item has been walked, whatever remains queued below its
// owning item's buffer threshold is flushed.
func (bp *Blueprint) Generate(ctx context.Context) error {
	bp.log.Info("starting generation")

	for _, name := range bp.items.Keys() {
		it, _ := bp.items.Get(name)
		if it.Count.By != "" {
			continue
		}

		count, err := it.Count.Call(bp.v, it.Name, "count")
		if err != nil {
			return err
		}
		if err := it.Generate(ctx, count, nil); err != nil {
			return err
		}
	}

	if err := bp.buf.FlushAll(ctx); err != nil {
		return err
	}

	bp.log.Info("generation done")
	return nil
}

// item.Registry implementation below. Kept deliberately thin: all the
// domain logic lives in internal/item, this package only owns the shared
// state (vars, bloom filters, the item map) that Item needs to reach
// through the interface.

func (bp *Blueprint) Env() vars.Env { return bp.v }

func (bp *Blueprint) SetVar(name string, value any) { bp.v = bp.v.With(name, value) }

func (bp *Blueprint) ClearVar(name string) { delete(bp.v, name) }

func (bp *Blueprint) GetVar(name string) (any, bool) { return bp.v.Get(name) }

func (bp *Blueprint) AppendVar(name string, value any) {
	cur, _ := bp.v.Get(name)
	list, _ := cur.([]any)
	bp.v = bp.v.With(name, append(list, value))
}

func (bp *Blueprint) Item(name string) (*item.Item, bool) { return bp.items.Get(name) }

func (bp *Blueprint) Dependents(identity map[string]bool) []*item.Item {
	var out []*item.Item
	for _, name := range bp.items.Keys() {
		it, _ := bp.items.Get(name)
		if it.Count.By != "" && identity[it.Count.By] {
			out = append(out, it)
		}
	}
	return out
}

func (bp *Blueprint) SeenFilter(table, key string) (*bloomfilter.Filter, bool) {
	k := table + "\x1f" + key
	if f, ok := bp.filters[k]; ok {
		return f, false
	}
	f := bloomfilter.New(1000, 0.000001)
	bp.filters[k] = f
	return f, true
}

func (bp *Blueprint) ClaimPreload(table, key string) bool {
	k := table + "\x1f" + key
	if bp.claimed[k] {
		return false
	}
	bp.claimed[k] = true
	return true
}

func (bp *Blueprint) Backend() backend.Backend { return bp.be }

// ExpectedCounts sums RowsWritten across every item, grouped by table --
// items sharing a table through inheritance count toward the same total.
// internal/verify compares this against a live row count once Generate
// returns.
func (bp *Blueprint) ExpectedCounts() map[string]int64 {
	counts := make(map[string]int64)
	for _, name := range bp.items.Keys() {
		it, _ := bp.items.Get(name)
		counts[it.Table] += it.RowsWritten
	}
	return counts
}

func (bp *Blueprint) Buffer() item.Buffer { return bp.buf }

// FlushBuffer forces it's queued rows to be written now, propagating any
// backend error to the caller instead of swallowing it -- a dependent
// item's write failure must abort the surrounding generate() the same way a
// failure in the parent's own write would.
func (bp *Blueprint) FlushBuffer(ctx context.Context, it *item.Item) error {
	return bp.buf.Flush(ctx, it)
}
