// Package generator implements populous's generator catalog: named, stateful
// value producers that expose an infinite stream of values through Next, plus
// the two cross-cutting behaviors every generator can be wrapped with --
// Nullable and Unique.
package generator

import (
	"fmt"
	"math/rand"
	"reflect"
	"strings"

	"github.com/dbsmedya/populous/internal/bloomfilter"
	"github.com/dbsmedya/populous/internal/expr"
	"github.com/dbsmedya/populous/internal/perrors"
	"github.com/dbsmedya/populous/internal/vars"
)

// Generator is a lazy, infinite producer of field values. Next is called
// once per generated row; implementations that need the row-in-progress
// (e.g. a Unique wrapper resolving sibling fields) read it from env's "this"
// binding.
type Generator interface {
	Next(env vars.Env) (any, error)
}

// Params is the raw keyword-argument bag a generator is constructed from,
// taken directly off a blueprint field description.
type Params map[string]any

// Constructor builds a Generator from its declared params. itemName and
// fieldName are passed through purely for error context.
type Constructor func(itemName, fieldName string, params Params) (Generator, error)

// catalog maps a blueprint's "generator:" name to its constructor. Populated
// by init() in each generator's source file via Register.
var catalog = map[string]Constructor{}

// Register adds a generator constructor to the catalog under name. Called
// from init() functions, so a duplicate registration is a programming error.
func Register(name string, ctor Constructor) {
	if _, exists := catalog[name]; exists {
		panic(fmt.Sprintf("generator: duplicate registration for %q", name))
	}
	catalog[name] = ctor
}

// New looks up name in the catalog and constructs a Generator from params.
func New(name, itemName, fieldName string, params Params) (Generator, error) {
	ctor, ok := catalog[name]
	if !ok {
		return nil, perrors.ValidationFieldf(itemName, fieldName, "unknown generator %q", name)
	}
	return ctor(itemName, fieldName, params)
}

// Names returns every registered generator name, for the "generators" CLI
// listing.
func Names() []string {
	names := make([]string, 0, len(catalog))
	for name := range catalog {
		names = append(names, name)
	}
	return names
}

// descriptions holds one-line docstrings per generator name, for the
// "generators" CLI listing. Kept separate from catalog since it is
// informational only and never consulted during generation.
var descriptions = map[string]string{
	"AutoIncrement":     "strictly increasing integers, continuing from the largest existing value in the backing table",
	"Boolean":           "true with a given probability, false otherwise",
	"Choices":           "a uniform random element of a fixed list or a referenced variable",
	"DateTime":          "a uniform random timestamp in a bounded window",
	"Date":              "a uniform random date in a bounded window",
	"Time":              "a uniform random time of day in a bounded window",
	"Email":             "a synthetic email address",
	"URL":               "a synthetic URL",
	"IP":                "a synthetic IP address",
	"Name":              "a synthetic full name",
	"FirstName":         "a synthetic first name",
	"LastName":          "a synthetic last name",
	"Integer":           "a uniform random integer between min and max",
	"IntegerPrimaryKey": "a shadow field mirroring a table's own auto-incrementing primary key",
	"Select":            "an existing row's value or id, drawn at random from the backend",
	"Store":             "a fresh empty list that other items can append into via store_in",
	"Text":              "a random string of runes drawn from a character class template",
	"UUID":              "a random v4 UUID",
	"Value":             "a fixed expression's result, re-evaluated every row",
	"Yaml":              "a YAML literal parsed into a value, optionally re-encoded as JSON",
}

// Describe returns name's one-line docstring and whether one is registered.
func Describe(name string) (string, bool) {
	d, ok := descriptions[name]
	return d, ok
}

// popString pops a string param, defaulting to def if absent.
func popString(p Params, key, def string) string {
	if v, ok := p[key]; ok {
		delete(p, key)
		if s, ok := v.(string); ok {
			return s
		}
	}
	return def
}

// popBool pops a bool param, defaulting to def if absent.
func popBool(p Params, key string, def bool) bool {
	if v, ok := p[key]; ok {
		delete(p, key)
		if b, ok := v.(bool); ok {
			return b
		}
	}
	return def
}

// popInt pops an int param, defaulting to def if absent.
func popInt(p Params, key string, def int) int {
	if v, ok := p[key]; ok {
		delete(p, key)
		switch n := v.(type) {
		case int:
			return n
		case int64:
			return int(n)
		case float64:
			return int(n)
		}
	}
	return def
}

// popAny pops a param regardless of type, returning (value, present).
func popAny(p Params, key string) (any, bool) {
	v, ok := p[key]
	if ok {
		delete(p, key)
	}
	return v, ok
}

// rejectUnknown fails construction if params still has entries left after
// every known kwarg has been popped, matching the "unknown kwargs ->
// validation error" contract.
func rejectUnknown(item, field string, p Params) error {
	if len(p) == 0 {
		return nil
	}
	names := make([]string, 0, len(p))
	for k := range p {
		names = append(names, k)
	}
	return perrors.ValidationFieldf(item, field, "unknown argument(s): %s", strings.Join(names, ", "))
}

// toFloat coerces a numeric value of arbitrary concrete type to float64.
func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case string:
		var f float64
		if _, err := fmt.Sscanf(n, "%g", &f); err == nil {
			return f, true
		}
	}
	return 0, false
}

// toInt64 coerces a numeric value of arbitrary concrete type to int64.
func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	case float64:
		return int64(n), true
	case string:
		var i int64
		if _, err := fmt.Sscanf(n, "%d", &i); err == nil {
			return i, true
		}
	}
	return 0, false
}

// Nullable wraps a Generator, occasionally substituting nil (the SQL NULL
// marker) according to the spec's nullable ∈ {false, true, number,
// expression} contract.
type Nullable struct {
	Inner Generator
	Ratio expr.Expression // nil when nullable is disabled
}

// ParseNullable builds the Ratio expression for a "nullable" param: false
// disables it (nil Ratio), true means 0.5, any other value is parsed as an
// expression evaluating to a fraction.
func ParseNullable(raw any) (expr.Expression, error) {
	switch v := raw.(type) {
	case nil:
		return nil, nil
	case bool:
		if !v {
			return nil, nil
		}
		return literalRatio{0.5}, nil
	default:
		return expr.Parse(raw)
	}
}

type literalRatio struct{ v float64 }

func (l literalRatio) Evaluate(vars.Env) (any, error) { return l.v, nil }

// Next returns nil with probability Ratio, otherwise delegates to Inner.
func (n *Nullable) Next(env vars.Env) (any, error) {
	if n.Ratio == nil {
		return n.Inner.Next(env)
	}
	raw, err := n.Ratio.Evaluate(env)
	if err != nil {
		return nil, err
	}
	ratio, ok := toFloat(raw)
	if ok && rand.Float64() <= ratio {
		return nil, nil
	}
	return n.Inner.Next(env)
}

// UniqueMode describes how a Unique wrapper builds its membership key.
type UniqueMode int

const (
	// UniqueNone disables uniqueness checking.
	UniqueNone UniqueMode = iota
	// UniqueSelf treats the generated value itself as the key.
	UniqueSelf
	// UniqueComposite combines the generated value with one or more sibling
	// fields read from "this" in the current row-in-progress.
	UniqueComposite
)

// Unique wraps a Generator, retrying up to MaxTries times whenever a
// candidate value's key is already present in Filter.
type Unique struct {
	Inner    Generator
	Mode     UniqueMode
	With     []string // sibling field names, for UniqueComposite
	Filter   *bloomfilter.Filter
	MaxTries int
	ItemName string
	Field    string
}

// ParseUniqueMode interprets the "unique" param: false/absent -> disabled,
// true -> value-only, string or list of strings -> composite with those
// sibling fields.
func ParseUniqueMode(raw any) (UniqueMode, []string) {
	switch v := raw.(type) {
	case nil:
		return UniqueNone, nil
	case bool:
		if v {
			return UniqueSelf, nil
		}
		return UniqueNone, nil
	case string:
		return UniqueComposite, []string{v}
	case []string:
		return UniqueComposite, v
	case []any:
		fields := make([]string, 0, len(v))
		for _, f := range v {
			if s, ok := f.(string); ok {
				fields = append(fields, s)
			}
		}
		return UniqueComposite, fields
	default:
		return UniqueNone, nil
	}
}

// Next draws candidates from Inner until one produces a key absent from
// Filter, or MaxTries is exceeded.
func (u *Unique) Next(env vars.Env) (any, error) {
	if u.Mode == UniqueNone {
		return u.Inner.Next(env)
	}

	for try := 0; try < u.MaxTries; try++ {
		value, err := u.Inner.Next(env)
		if err != nil {
			return nil, err
		}

		key, err := u.key(value, env)
		if err != nil {
			return nil, err
		}

		if !u.Filter.Contains(key) {
			u.Filter.Add(key, false)
			return value, nil
		}
	}

	return nil, perrors.GenerationFieldf(u.ItemName, u.Field,
		"could not generate a unique value after %d tries", u.MaxTries)
}

func (u *Unique) key(value any, env vars.Env) (string, error) {
	parts := []any{value}

	if u.Mode == UniqueComposite {
		this, _ := env.Get("this")
		for _, field := range u.With {
			sibling, err := getThisField(this, field)
			if err != nil {
				return "", perrors.GenerationFieldf(u.ItemName, u.Field, "unique_with %q: %s", field, err)
			}
			parts = append(parts, sibling)
		}
	}

	return RowKey(parts...), nil
}

// RowKey renders one or more generated/stored values into the same stable
// string key Unique checks its Bloom filter against, so a preprocess step
// preloading existing rows produces keys that collide correctly with
// candidates generated later.
func RowKey(values ...any) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = valueKey(v)
	}
	return strings.Join(parts, "\x1f")
}

// valueKey renders an arbitrary generated value into a stable string key. A
// record with an ID() method, or a struct with an ID/Id field (a foreign-key
// reference), is keyed by that id instead of its full representation.
func valueKey(value any) string {
	if value == nil {
		return "<nil>"
	}

	if ider, ok := value.(interface{ ID() any }); ok {
		return fmt.Sprint(ider.ID())
	}

	rv := reflect.ValueOf(value)
	if rv.Kind() == reflect.Struct {
		for _, name := range []string{"ID", "Id"} {
			if f := rv.FieldByName(name); f.IsValid() {
				return fmt.Sprint(f.Interface())
			}
		}
	}

	return fmt.Sprint(value)
}

// getThisField reads a named field off the row-in-progress, which may be a
// map[string]any or any value with a Get(string) (any, bool) method (the
// row factory); other types are an error.
func getThisField(this any, field string) (any, error) {
	if this == nil {
		return nil, fmt.Errorf("%q is undefined on this row yet", field)
	}
	if m, ok := this.(map[string]any); ok {
		v, ok := m[field]
		if !ok {
			return nil, fmt.Errorf("%q is undefined on this row yet", field)
		}
		return v, nil
	}
	if getter, ok := this.(interface {
		Get(string) (any, bool)
	}); ok {
		v, ok := getter.Get(field)
		if !ok {
			return nil, fmt.Errorf("%q is undefined on this row yet", field)
		}
		return v, nil
	}
	return nil, fmt.Errorf("cannot read field %q from row of type %T", field, this)
}
