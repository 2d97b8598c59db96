package generator

import (
	"github.com/dbsmedya/populous/internal/expr"
	"github.com/dbsmedya/populous/internal/vars"
)

// Value yields the same expression's result each call; the expression is
// re-evaluated every time, so "$this.x" style values track the row in
// progress.
type Value struct {
	expression expr.Expression
	toJSON     bool
}

func init() {
	Register("Value", newValue)
}

func newValue(item, field string, p Params) (Generator, error) {
	raw, _ := popAny(p, "value")
	toJSON := popBool(p, "to_json", false)

	e, err := expr.Parse(raw)
	if err != nil {
		return nil, err
	}
	if err := rejectUnknown(item, field, p); err != nil {
		return nil, err
	}

	return &Value{expression: e, toJSON: toJSON}, nil
}

// ToJSON reports whether the backend should JSON-encode this field's values.
func (v *Value) ToJSON() bool { return v.toJSON }

func (v *Value) Next(env vars.Env) (any, error) {
	return v.expression.Evaluate(env)
}
