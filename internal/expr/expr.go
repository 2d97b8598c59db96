// Package expr implements populous's expression system: plain literals,
// "$name[.path]" value references, "$(expr)" Jinja-style expressions, and
// "{{ }}"/"{% %}" templates. Expressions are parsed once when a blueprint is
// loaded and evaluated repeatedly, once per generated row, against a
// vars.Env.
package expr

import (
	"regexp"
	"strings"

	"github.com/dbsmedya/populous/internal/perrors"
	"github.com/dbsmedya/populous/internal/vars"
)

// Expression evaluates to a value given the current variable environment.
type Expression interface {
	Evaluate(env vars.Env) (any, error)
}

// varRegex matches the "name[.path]" portion of a "$name.path" reference:
// an identifier optionally followed by dotted identifier segments.
var varRegex = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*(\.[a-zA-Z_][a-zA-Z0-9_]*)*$`)

// literal is a constant value: parsing never touches it again at evaluation
// time.
type literal struct {
	value any
}

func (l literal) Evaluate(vars.Env) (any, error) {
	return l.value, nil
}

// Parse turns a raw blueprint value into an Expression. Non-string values
// parse to a literal unchanged. Strings are inspected for the "$", "$(",
// "{{" and "{%" markers in the same precedence order as the reference
// implementation:
//
//  1. A leading unescaped "$" starts either a "$(...)" Jinja expression or a
//     "$name.path" value reference.
//  2. A leading "\$" is an escaped literal dollar sign; the backslash is
//     stripped and parsing continues on the rest of the string.
//  3. Any remaining "{{" or "{%" marks a template expression.
//  4. Otherwise the string is a literal.
func Parse(raw any) (Expression, error) {
	s, ok := raw.(string)
	if !ok || s == "" {
		return literal{raw}, nil
	}

	if s[0] == '$' {
		trimmed := strings.TrimSpace(s)
		if len(trimmed) > 1 && trimmed[1] == '(' {
			if trimmed[len(trimmed)-1] != ')' {
				return nil, perrors.Validationf("error parsing %q: missing ')'", trimmed)
			}
			return newJinjaExpression(trimmed[2 : len(trimmed)-1])
		}

		ref := trimmed[1:]
		if !varRegex.MatchString(ref) {
			return nil, perrors.Validationf(
				"error parsing %q: not a valid value expression; escape the $ with a "+
					`'\', or use the template syntax ('... {{ var }} ...')`, trimmed)
		}
		return newValueExpression(ref)
	}

	if strings.HasPrefix(s, `\$`) {
		s = s[1:]
	}

	if strings.Contains(s, "{{") || strings.Contains(s, "{%") {
		return newTemplateExpression(s)
	}

	return literal{s}, nil
}

// MustParse is Parse but panics on error; used for expressions that are
// known to be valid at compile time (internal defaults, tests).
func MustParse(raw any) Expression {
	e, err := Parse(raw)
	if err != nil {
		panic(err)
	}
	return e
}
