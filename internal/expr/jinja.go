package expr

import (
	"github.com/flosch/pongo2"

	"github.com/dbsmedya/populous/internal/perrors"
	"github.com/dbsmedya/populous/internal/vars"
)

// JinjaExpression evaluates a "$(expr)" value expression, e.g. "$(age + 1)"
// or "$(choices|random)".
//
// pongo2 has no standalone "compile expression" entry point like Jinja2's
// Environment.compile_expression - only full templates compile. We wrap the
// expression body in a single-output template ("{{ (expr) }}") once at parse
// time and execute that template at evaluate time. The parentheses keep
// operator precedence identical to evaluating `expr` alone. One consequence
// of this wrapping: the result always comes back through pongo2's string
// output encoding rather than as a native typed value, which is why
// generators that consume a "$(...)" field description should expect a
// string and parse further if they need a number or bool.
type JinjaExpression struct {
	raw      string
	template *pongo2.Template
}

func newJinjaExpression(body string) (*JinjaExpression, error) {
	registerFilters()

	tpl, err := pongo2.FromString("{{ (" + body + ") }}")
	if err != nil {
		return nil, perrors.Validationf("error parsing '$(%s)': invalid expression (%s)", body, err)
	}
	return &JinjaExpression{raw: body, template: tpl}, nil
}

// Evaluate renders the wrapped expression against env.
func (j *JinjaExpression) Evaluate(env vars.Env) (any, error) {
	out, err := j.template.Execute(pongo2.Context(env))
	if err != nil {
		return nil, perrors.Generationf("error generating value '$(%s)': %s", j.raw, err)
	}
	return out, nil
}
