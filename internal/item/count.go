package item

import (
	"math/rand"

	"github.com/dbsmedya/populous/internal/expr"
	"github.com/dbsmedya/populous/internal/perrors"
	"github.com/dbsmedya/populous/internal/vars"
)

func randIntn(n int) int { return rand.Intn(n) }

// Count describes how many rows an item produces: either a flat number, or
// a uniform random pick in [min, max]. Both forms may be expressions,
// re-evaluated on every call so they can depend on blueprint vars. By, when
// set, makes this item's rows fan out per-row of the named parent item
// instead of being generated as a top-level batch.
type Count struct {
	Number expr.Expression
	Min    expr.Expression
	Max    expr.Expression
	By     string

	// NumberIsZero records whether the count was declared as the literal
	// integer 0 (number: 0, or min and max both literal 0 or absent) -- an
	// item defined purely as a field/fixture template for
	// its children, never generating rows of its own. Tracked separately
	// from Number (an opaque expr.Expression) since only a literal count
	// can be known at blueprint-load time; an expression count is resolved
	// too late to affect ancestor-name propagation.
	NumberIsZero bool
}

// IsZeroNumber reports whether this count was declared as the literal
// number 0 or a literal 0..0 range (spec.md's "parent's count.number == 0" ancestor rule).
func (c Count) IsZeroNumber() bool { return c.NumberIsZero }

// Call resolves Count to a concrete row count for this invocation.
func (c Count) Call(env vars.Env, item, field string) (int, error) {
	if c.Number != nil {
		raw, err := c.Number.Evaluate(env)
		if err != nil {
			return 0, err
		}
		n, ok := toNonNegativeInt(raw)
		if !ok {
			return 0, perrors.GenerationFieldf(item, "count", "number did not evaluate to a non-negative integer: %v", raw)
		}
		return n, nil
	}

	minRaw, err := c.Min.Evaluate(env)
	if err != nil {
		return 0, err
	}
	maxRaw, err := c.Max.Evaluate(env)
	if err != nil {
		return 0, err
	}
	minVal, ok := toNonNegativeInt(minRaw)
	if !ok {
		return 0, perrors.GenerationFieldf(item, "count", "min did not evaluate to a non-negative integer: %v", minRaw)
	}
	maxVal, ok := toNonNegativeInt(maxRaw)
	if !ok {
		return 0, perrors.GenerationFieldf(item, "count", "max did not evaluate to a non-negative integer: %v", maxRaw)
	}
	if minVal > maxVal {
		return 0, perrors.GenerationFieldf(item, "count", "min (%d) is greater than max (%d)", minVal, maxVal)
	}
	if minVal == maxVal {
		return minVal, nil
	}
	return minVal + randIntn(maxVal-minVal+1), nil
}

func toNonNegativeInt(v any) (int, bool) {
	n, ok := toInt(v)
	if !ok || n < 0 {
		return 0, false
	}
	return n, true
}

func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	}
	return 0, false
}
