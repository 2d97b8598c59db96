package expr

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/dbsmedya/populous/internal/perrors"
	"github.com/dbsmedya/populous/internal/vars"
)

// ValueExpression resolves "$name" or "$name.path.to.attr" against the
// variable environment: name is looked up directly, and any dotted suffix is
// walked as a chain of struct field / map key accesses, mirroring Python's
// operator.attrgetter chain in vars.py.
type ValueExpression struct {
	raw   string
	name  string
	attrs []string
}

func newValueExpression(ref string) (*ValueExpression, error) {
	name, rest, _ := strings.Cut(ref, ".")
	var attrs []string
	if rest != "" {
		attrs = strings.Split(rest, ".")
	}
	return &ValueExpression{raw: ref, name: name, attrs: attrs}, nil
}

// Evaluate resolves the reference against env.
func (v *ValueExpression) Evaluate(env vars.Env) (any, error) {
	value, ok := env.Get(v.name)
	if !ok {
		return nil, perrors.Generationf("error generating value '$%s': %q is undefined", v.raw, v.name)
	}

	for _, attr := range v.attrs {
		next, err := GetAttr(value, attr)
		if err != nil {
			return nil, perrors.Generationf("error generating value '$%s': %s", v.raw, err)
		}
		value = next
	}

	return value, nil
}

// GetAttr resolves a single attribute/key step of a dotted path against a
// map, struct, or pointer to struct.
func GetAttr(value any, attr string) (any, error) {
	if value == nil {
		return nil, fmt.Errorf("%q has no attribute %q", "nil", attr)
	}

	if m, ok := value.(map[string]any); ok {
		v, ok := m[attr]
		if !ok {
			return nil, fmt.Errorf("no attribute %q", attr)
		}
		return v, nil
	}

	rv := reflect.ValueOf(value)
	for rv.Kind() == reflect.Ptr || rv.Kind() == reflect.Interface {
		if rv.IsNil() {
			return nil, fmt.Errorf("no attribute %q: value is nil", attr)
		}
		rv = rv.Elem()
	}

	switch rv.Kind() {
	case reflect.Struct:
		field := rv.FieldByName(attr)
		if !field.IsValid() {
			return nil, fmt.Errorf("no attribute %q", attr)
		}
		return field.Interface(), nil
	case reflect.Map:
		mv := rv.MapIndex(reflect.ValueOf(attr))
		if !mv.IsValid() {
			return nil, fmt.Errorf("no attribute %q", attr)
		}
		return mv.Interface(), nil
	default:
		return nil, fmt.Errorf("type %s has no attribute %q", rv.Kind(), attr)
	}
}
