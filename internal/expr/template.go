package expr

import (
	"github.com/flosch/pongo2"

	"github.com/dbsmedya/populous/internal/perrors"
	"github.com/dbsmedya/populous/internal/vars"
)

// TemplateExpression renders a full Jinja2-style template string such as
// "{{ first_name }} {{ last_name }}" against the variable environment.
type TemplateExpression struct {
	raw      string
	template *pongo2.Template
}

func newTemplateExpression(raw string) (*TemplateExpression, error) {
	registerFilters()

	tpl, err := pongo2.FromString(raw)
	if err != nil {
		return nil, perrors.Validationf("error parsing template %q: %s", raw, err)
	}
	return &TemplateExpression{raw: raw, template: tpl}, nil
}

// Evaluate renders the template against env.
func (t *TemplateExpression) Evaluate(env vars.Env) (any, error) {
	out, err := t.template.Execute(pongo2.Context(env))
	if err != nil {
		return nil, perrors.Generationf("error generating template %q: %s", t.raw, err)
	}
	return out, nil
}
