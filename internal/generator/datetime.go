package generator

import (
	"math/rand"
	"time"

	"github.com/dbsmedya/populous/internal/expr"
	"github.com/dbsmedya/populous/internal/perrors"
	"github.com/dbsmedya/populous/internal/vars"
)

var (
	epochPast   = time.Date(1900, 1, 1, 0, 0, 0, 0, time.UTC)
	epochFuture = time.Date(2100, 1, 1, 0, 0, 0, 0, time.UTC)
)

// DateTime yields a uniform random timestamp in a window bounded by
// past/future toggles and optional after/before expressions.
type DateTime struct {
	item, field  string
	past, future bool
	after        expr.Expression
	before       expr.Expression
}

func init() {
	Register("DateTime", newDateTime)
	Register("Date", newDate)
	Register("Time", newTime)
}

func newDateTime(item, field string, p Params) (Generator, error) {
	past := popBool(p, "past", true)
	future := popBool(p, "future", false)

	after, err := parseBoundExpr(p, "after")
	if err != nil {
		return nil, err
	}
	before, err := parseBoundExpr(p, "before")
	if err != nil {
		return nil, err
	}
	if err := rejectUnknown(item, field, p); err != nil {
		return nil, err
	}

	return &DateTime{item: item, field: field, past: past, future: future, after: after, before: before}, nil
}

func parseBoundExpr(p Params, key string) (expr.Expression, error) {
	raw, ok := popAny(p, key)
	if !ok {
		return nil, nil
	}
	if n, ok := toInt64(raw); ok {
		// a bare year, e.g. "after: 2015" means Jan 1 of that year.
		return expr.MustParse(time.Date(int(n), 1, 1, 0, 0, 0, 0, time.UTC)), nil
	}
	return expr.Parse(raw)
}

func (g *DateTime) window(env vars.Env) (time.Time, time.Time, error) {
	start := epochPast
	if !g.past {
		start = time.Now()
	}
	stop := time.Now()
	if g.future {
		stop = epochFuture
	}

	if g.after != nil {
		v, err := g.after.Evaluate(env)
		if err != nil {
			return start, stop, err
		}
		if t, ok := v.(time.Time); ok {
			start = t
		}
	}
	if g.before != nil {
		v, err := g.before.Evaluate(env)
		if err != nil {
			return start, stop, err
		}
		if t, ok := v.(time.Time); ok {
			stop = t
		}
	}

	return start, stop, nil
}

func (g *DateTime) Next(env vars.Env) (any, error) {
	start, stop, err := g.window(env)
	if err != nil {
		return nil, err
	}
	if stop.Before(start) {
		return nil, perrors.GenerationFieldf(g.item, g.field, "window end (%s) is before start (%s)", stop, start)
	}

	delta := stop.Unix() - start.Unix()
	offset := int64(0)
	if delta > 0 {
		offset = rand.Int63n(delta + 1)
	}
	return time.Unix(start.Unix()+offset, 0).UTC(), nil
}

// Date truncates DateTime's result to a calendar date.
type Date struct{ DateTime }

func newDate(item, field string, p Params) (Generator, error) {
	dt, err := newDateTime(item, field, p)
	if err != nil {
		return nil, err
	}
	return &Date{*dt.(*DateTime)}, nil
}

func (d *Date) Next(env vars.Env) (any, error) {
	t, err := d.DateTime.Next(env)
	if err != nil {
		return nil, err
	}
	ts := t.(time.Time)
	return time.Date(ts.Year(), ts.Month(), ts.Day(), 0, 0, 0, 0, time.UTC), nil
}

// Time truncates DateTime's result to a time-of-day, discarding the date
// component; kept alongside Date/DateTime for parity with the source system.
type Time struct{ DateTime }

func newTime(item, field string, p Params) (Generator, error) {
	dt, err := newDateTime(item, field, p)
	if err != nil {
		return nil, err
	}
	return &Time{*dt.(*DateTime)}, nil
}

func (t *Time) Next(env vars.Env) (any, error) {
	value, err := t.DateTime.Next(env)
	if err != nil {
		return nil, err
	}
	ts := value.(time.Time)
	return time.Date(0, 1, 1, ts.Hour(), ts.Minute(), ts.Second(), 0, time.UTC), nil
}
