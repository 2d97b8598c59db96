package generator

import (
	"math/rand"

	"github.com/dbsmedya/populous/internal/vars"
)

// Boolean yields true with probability Ratio.
type Boolean struct {
	ratio float64
}

func init() {
	Register("Boolean", newBoolean)
}

func newBoolean(item, field string, p Params) (Generator, error) {
	ratio := 0.5
	if v, ok := popAny(p, "ratio"); ok {
		if f, ok := toFloat(v); ok {
			ratio = f
		}
	}
	if err := rejectUnknown(item, field, p); err != nil {
		return nil, err
	}
	return &Boolean{ratio: ratio}, nil
}

func (b *Boolean) Next(vars.Env) (any, error) {
	return rand.Float64() <= b.ratio, nil
}
