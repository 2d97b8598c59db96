package generator

import (
	"reflect"

	"github.com/dbsmedya/populous/internal/expr"
	"github.com/dbsmedya/populous/internal/perrors"
	"github.com/dbsmedya/populous/internal/vars"
)

// BackendEnvKey is the reserved vars.Env key a blueprint binds its active
// Backend under, so generators that need to reach into storage (Select,
// AutoIncrement, IntegerPrimaryKey) can find it without the generator
// package importing the backend package.
const BackendEnvKey = "__backend__"

// RandomSelector is the slice of Backend that Select needs: a page of
// existing rows' primary keys matching an (optional) where clause.
type RandomSelector interface {
	SelectRandom(table string, fields []string, where map[string]any, maxRows int) ([]map[string]any, error)
}

// selectPageSize mirrors the source system's max_rows=10000 per refill.
const selectPageSize = 10000

// Select draws a random existing primary key from table, refilling its page
// from the backend whenever the page is exhausted or where's evaluated
// value changes between rows.
type Select struct {
	item, field string
	table       string
	pk          string
	where       expr.Expression

	page      []map[string]any
	pageIndex int
	lastWhere any
	haveLast  bool
}

func init() {
	Register("Select", newSelect)
}

func newSelect(item, field string, p Params) (Generator, error) {
	table := popString(p, "table", "")
	if table == "" {
		return nil, perrors.ValidationFieldf(item, field, "table is required")
	}
	pk := popString(p, "pk", "id")

	whereRaw, _ := popAny(p, "where")
	where, err := expr.Parse(whereRaw)
	if err != nil {
		return nil, err
	}
	if err := rejectUnknown(item, field, p); err != nil {
		return nil, err
	}

	return &Select{item: item, field: field, table: table, pk: pk, where: where}, nil
}

func (s *Select) backend(env vars.Env) (RandomSelector, error) {
	raw, ok := env.Get(BackendEnvKey)
	if !ok {
		return nil, perrors.GenerationFieldf(s.item, s.field, "no backend bound in this context")
	}
	backend, ok := raw.(RandomSelector)
	if !ok {
		return nil, perrors.GenerationFieldf(s.item, s.field, "bound backend does not support random selection")
	}
	return backend, nil
}

func (s *Select) Next(env vars.Env) (any, error) {
	where, err := s.evaluateWhere(env)
	if err != nil {
		return nil, err
	}

	needsRefill := s.pageIndex >= len(s.page) || (s.haveLast && !reflect.DeepEqual(where, s.lastWhere))
	if needsRefill {
		backend, err := s.backend(env)
		if err != nil {
			return nil, err
		}
		whereMap, _ := where.(map[string]any)
		page, err := backend.SelectRandom(s.table, []string{s.pk}, whereMap, selectPageSize)
		if err != nil {
			return nil, perrors.Backendf("select_random", err)
		}
		s.page = page
		s.pageIndex = 0
		s.lastWhere = where
		s.haveLast = true
	}

	if s.pageIndex >= len(s.page) {
		return nil, perrors.GenerationFieldf(s.item, s.field, "table %q has no rows matching where clause", s.table)
	}

	row := s.page[s.pageIndex]
	s.pageIndex++
	return row[s.pk], nil
}

func (s *Select) evaluateWhere(env vars.Env) (any, error) {
	if s.where == nil {
		return nil, nil
	}
	return s.where.Evaluate(env)
}
