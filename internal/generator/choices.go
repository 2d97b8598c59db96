package generator

import (
	"math/rand"
	"reflect"
	"strings"

	"github.com/dbsmedya/populous/internal/expr"
	"github.com/dbsmedya/populous/internal/perrors"
	"github.com/dbsmedya/populous/internal/vars"
)

// Choices yields a uniform random element of a fixed list, or of a list held
// in a blueprint/row variable when choices is given as a "$var[.path]"
// reference instead of a literal list.
type Choices struct {
	item, field string
	static      []any
	fromVar     bool
	varName     string
	varAttrs    []string
}

func init() {
	Register("Choices", newChoices)
}

func newChoices(item, field string, p Params) (Generator, error) {
	raw, ok := popAny(p, "choices")
	if !ok {
		return nil, perrors.ValidationFieldf(item, field, "choices is required")
	}
	if err := rejectUnknown(item, field, p); err != nil {
		return nil, err
	}

	if s, ok := raw.(string); ok && len(s) > 0 && s[0] == '$' {
		name, attrs := splitVarRef(s[1:])
		return &Choices{item: item, field: field, fromVar: true, varName: name, varAttrs: attrs}, nil
	}

	list, ok := toSlice(raw)
	if !ok {
		return nil, perrors.ValidationFieldf(item, field, "choices must be a list or a '$var' reference")
	}
	if len(list) == 0 {
		return nil, perrors.ValidationFieldf(item, field, "choices cannot be an empty static list")
	}

	return &Choices{item: item, field: field, static: list}, nil
}

func (c *Choices) Next(env vars.Env) (any, error) {
	list := c.static
	if c.fromVar {
		value, ok := env.Get(c.varName)
		if !ok {
			return nil, perrors.GenerationFieldf(c.item, c.field, "'%s' is undefined", c.varName)
		}
		for _, attr := range c.varAttrs {
			next, err := expr.GetAttr(value, attr)
			if err != nil {
				return nil, perrors.GenerationFieldf(c.item, c.field, "%s", err)
			}
			value = next
		}

		resolved, ok := toSlice(value)
		if !ok {
			return nil, perrors.GenerationFieldf(c.item, c.field, "'%s' did not resolve to a list", c.varName)
		}
		if len(resolved) == 0 {
			return nil, perrors.GenerationFieldf(c.item, c.field, "choices list '%s' is empty", c.varName)
		}
		list = resolved
	}

	return list[rand.Intn(len(list))], nil
}

func splitVarRef(ref string) (string, []string) {
	name, rest, found := strings.Cut(ref, ".")
	if !found {
		return ref, nil
	}
	return name, strings.Split(rest, ".")
}

func toSlice(v any) ([]any, bool) {
	if s, ok := v.([]any); ok {
		return s, true
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}
