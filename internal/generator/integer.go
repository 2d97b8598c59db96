package generator

import (
	"fmt"
	"math/rand"

	"github.com/dbsmedya/populous/internal/expr"
	"github.com/dbsmedya/populous/internal/perrors"
	"github.com/dbsmedya/populous/internal/vars"
)

// Integer yields a uniform random integer in [min, max]; the bounds are
// expressions, re-evaluated every call so they may depend on the row or
// blueprint vars in progress.
type Integer struct {
	item, field string
	min, max    expr.Expression
	toString    bool
}

func init() {
	Register("Integer", newInteger)
}

func newInteger(item, field string, p Params) (Generator, error) {
	minRaw, ok := popAny(p, "min")
	if !ok {
		minRaw = 0
	}
	maxRaw, ok := popAny(p, "max")
	if !ok {
		maxRaw = int64(1)<<32 - 1
	}
	toString := popBool(p, "to_string", false)

	minExpr, err := expr.Parse(minRaw)
	if err != nil {
		return nil, err
	}
	maxExpr, err := expr.Parse(maxRaw)
	if err != nil {
		return nil, err
	}
	if err := rejectUnknown(item, field, p); err != nil {
		return nil, err
	}

	return &Integer{item: item, field: field, min: minExpr, max: maxExpr, toString: toString}, nil
}

func (g *Integer) Next(env vars.Env) (any, error) {
	minRaw, err := g.min.Evaluate(env)
	if err != nil {
		return nil, err
	}
	maxRaw, err := g.max.Evaluate(env)
	if err != nil {
		return nil, err
	}

	minVal, ok := toInt64(minRaw)
	if !ok {
		return nil, perrors.GenerationFieldf(g.item, g.field, "min did not evaluate to an integer: %v", minRaw)
	}
	maxVal, ok := toInt64(maxRaw)
	if !ok {
		return nil, perrors.GenerationFieldf(g.item, g.field, "max did not evaluate to an integer: %v", maxRaw)
	}
	if minVal > maxVal {
		return nil, perrors.GenerationFieldf(g.item, g.field, "min (%d) is greater than max (%d)", minVal, maxVal)
	}

	value := minVal + rand.Int63n(maxVal-minVal+1)
	if g.toString {
		return fmt.Sprintf("%d", value), nil
	}
	return value, nil
}
