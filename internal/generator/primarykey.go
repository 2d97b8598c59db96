package generator

import "github.com/dbsmedya/populous/internal/vars"

// NextPKLookup is the slice of Backend IntegerPrimaryKey needs to continue a
// legacy integer primary key sequence across runs.
type NextPKLookup interface {
	GetNextPK(item, field string) (int64, bool, error)
}

// ShadowGenerator is implemented by generators that should never be written
// to the backend themselves (e.g. because the database derives the value on
// insert), matching the blueprint-level "shadow" field contract.
type ShadowGenerator interface {
	Shadow() bool
}

// IntegerPrimaryKey mirrors a table's own auto-incrementing integer primary
// key locally, so other fields/items can reference the id of a row before
// it's actually been inserted. It is always a shadow field: populous tracks
// the value but never sends it in an INSERT.
type IntegerPrimaryKey struct {
	item, field string
	step        int64

	started bool
	next    int64
}

func init() {
	Register("IntegerPrimaryKey", newIntegerPrimaryKey)
}

func newIntegerPrimaryKey(item, field string, p Params) (Generator, error) {
	step := popInt(p, "step", 1)
	if err := rejectUnknown(item, field, p); err != nil {
		return nil, err
	}
	return &IntegerPrimaryKey{item: item, field: field, step: int64(step)}, nil
}

func (g *IntegerPrimaryKey) Shadow() bool { return true }

func (g *IntegerPrimaryKey) Next(env vars.Env) (any, error) {
	if !g.started {
		g.next = g.resolveStart(env)
		g.started = true
	}

	value := g.next
	g.next += g.step
	return value, nil
}

func (g *IntegerPrimaryKey) resolveStart(env vars.Env) int64 {
	raw, ok := env.Get(BackendEnvKey)
	if !ok {
		return 1
	}
	backend, ok := raw.(NextPKLookup)
	if !ok {
		return 1
	}
	value, found, err := backend.GetNextPK(g.item, g.field)
	if err != nil || !found {
		return 1
	}
	return value
}
