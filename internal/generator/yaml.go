package generator

import (
	gojson "encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/dbsmedya/populous/internal/expr"
	"github.com/dbsmedya/populous/internal/perrors"
	"github.com/dbsmedya/populous/internal/vars"
)

// Yaml evaluates an expression to a string and parses the result as YAML,
// optionally re-encoding the parsed structure as a JSON string for columns
// backed by a jsonb type.
type Yaml struct {
	item, field string
	value       expr.Expression
	toJSON      bool
}

func init() {
	Register("Yaml", newYaml)
}

func newYaml(item, field string, p Params) (Generator, error) {
	raw, ok := popAny(p, "value")
	if !ok {
		return nil, perrors.ValidationFieldf(item, field, "value is required")
	}
	toJSON := popBool(p, "to_json", false)
	value, err := expr.Parse(raw)
	if err != nil {
		return nil, err
	}
	if err := rejectUnknown(item, field, p); err != nil {
		return nil, err
	}
	return &Yaml{item: item, field: field, value: value, toJSON: toJSON}, nil
}

func (g *Yaml) Next(env vars.Env) (any, error) {
	rendered, err := g.value.Evaluate(env)
	if err != nil {
		return nil, err
	}
	text, ok := rendered.(string)
	if !ok {
		return nil, perrors.GenerationFieldf(g.item, g.field, "value did not evaluate to a string")
	}

	var parsed any
	if err := yaml.Unmarshal([]byte(text), &parsed); err != nil {
		return nil, perrors.GenerationFieldf(g.item, g.field, "invalid yaml: %s", err)
	}

	if !g.toJSON {
		return parsed, nil
	}

	encoded, err := gojson.Marshal(normalizeYAML(parsed))
	if err != nil {
		return nil, perrors.GenerationFieldf(g.item, g.field, "could not encode as json: %s", err)
	}
	return string(encoded), nil
}

// normalizeYAML recursively converts map[string]interface{} keys that
// gopkg.in/yaml.v3 may emit as map[interface{}]interface{} in nested
// structures into a JSON-encodable shape.
func normalizeYAML(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = normalizeYAML(item)
		}
		return out
	case map[any]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[fmt.Sprint(k)] = normalizeYAML(item)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = normalizeYAML(item)
		}
		return out
	default:
		return val
	}
}
