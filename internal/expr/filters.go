package expr

import (
	"fmt"
	"math/rand"
	"reflect"
	"sync"

	"github.com/flosch/pongo2"
)

// registerFiltersOnce installs populous's custom pongo2 filters exactly
// once; pongo2.RegisterFilter panics if called twice for the same name,
// which would happen if multiple blueprints were loaded in the same process.
var registerFiltersOnce sync.Once

func registerFilters() {
	registerFiltersOnce.Do(func() {
		_ = pongo2.RegisterFilter("random", filterRandom)
		_ = pongo2.RegisterFilter("d", filterDefault)
	})
}

// filterRandom returns a random element of a sequence, matching the
// reference implementation's "random" Jinja filter (a contextfilter working
// around Jinja's constant-folding of the stdlib random filter).
func filterRandom(in *pongo2.Value, param *pongo2.Value) (*pongo2.Value, *pongo2.Error) {
	rv := reflect.ValueOf(in.Interface())
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, &pongo2.Error{
			Sender:    "filter:random",
			OrigError: fmt.Errorf("random filter requires a sequence, got %s", rv.Kind()),
		}
	}
	n := rv.Len()
	if n == 0 {
		return nil, &pongo2.Error{
			Sender:    "filter:random",
			OrigError: fmt.Errorf("no random item, sequence was empty"),
		}
	}
	return pongo2.AsValue(rv.Index(rand.Intn(n)).Interface()), nil
}

// filterDefault is the "d" shorthand for pongo2's builtin "default" filter:
// returns param when in is nil/empty, in otherwise.
func filterDefault(in *pongo2.Value, param *pongo2.Value) (*pongo2.Value, *pongo2.Error) {
	if in.IsNil() || !in.IsTrue() {
		return param, nil
	}
	return in, nil
}
