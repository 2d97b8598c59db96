package generator

import "github.com/dbsmedya/populous/internal/vars"

// MaxValueLookup is the slice of Backend AutoIncrement needs to pick up
// where an existing table's values left off.
type MaxValueLookup interface {
	GetMaxExistingValue(item, field string) (int64, bool, error)
}

// AutoIncrement yields a strictly increasing sequence of integers, starting
// from one past the largest existing value in item/field's backing table
// (or zero, on an empty table or when no backend is bound).
type AutoIncrement struct {
	item, field string
	start       int64

	started bool
	next    int64
}

func init() {
	Register("AutoIncrement", newAutoIncrement)
}

func newAutoIncrement(item, field string, p Params) (Generator, error) {
	start, hasStart := popAny(p, "start")
	if err := rejectUnknown(item, field, p); err != nil {
		return nil, err
	}

	a := &AutoIncrement{item: item, field: field}
	if hasStart {
		if n, ok := toInt64(start); ok {
			a.start = n
			a.started = true
		}
	}
	return a, nil
}

func (a *AutoIncrement) Next(env vars.Env) (any, error) {
	if !a.started {
		a.start = a.resolveStart(env)
		a.next = a.start
		a.started = true
	}

	value := a.next
	a.next++
	return value, nil
}

func (a *AutoIncrement) resolveStart(env vars.Env) int64 {
	raw, ok := env.Get(BackendEnvKey)
	if !ok {
		return 0
	}
	backend, ok := raw.(MaxValueLookup)
	if !ok {
		return 0
	}
	value, found, err := backend.GetMaxExistingValue(a.item, a.field)
	if err != nil || !found {
		return 0
	}
	return value + 1
}
