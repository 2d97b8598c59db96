package generator

import (
	"github.com/brianvoe/gofakeit/v7"

	"github.com/dbsmedya/populous/internal/expr"
	"github.com/dbsmedya/populous/internal/perrors"
	"github.com/dbsmedya/populous/internal/vars"
)

func init() {
	Register("Email", newEmail)
	Register("URL", newURL)
	Register("IP", newIP)
	Register("Name", newName)
	Register("FirstName", newFirstName)
	Register("LastName", newLastName)
}

// Email yields a synthetic email address.
type Email struct{}

func newEmail(item, field string, p Params) (Generator, error) {
	if err := rejectUnknown(item, field, p); err != nil {
		return nil, err
	}
	return Email{}, nil
}

func (Email) Next(vars.Env) (any, error) { return gofakeit.Email(), nil }

// URL yields a synthetic URL.
type URL struct{}

func newURL(item, field string, p Params) (Generator, error) {
	if err := rejectUnknown(item, field, p); err != nil {
		return nil, err
	}
	return URL{}, nil
}

func (URL) Next(vars.Env) (any, error) { return gofakeit.URL(), nil }

// IP yields a synthetic IPv4 and/or IPv6 address.
type IP struct {
	ipv4, ipv6 bool
}

func newIP(item, field string, p Params) (Generator, error) {
	ipv4 := popBool(p, "ipv4", true)
	ipv6 := popBool(p, "ipv6", true)
	if err := rejectUnknown(item, field, p); err != nil {
		return nil, err
	}
	return &IP{ipv4: ipv4, ipv6: ipv6}, nil
}

func (g *IP) Next(vars.Env) (any, error) {
	switch {
	case g.ipv4 && g.ipv6:
		if gofakeit.Bool() {
			return gofakeit.IPv4Address(), nil
		}
		return gofakeit.IPv6Address(), nil
	case g.ipv4:
		return gofakeit.IPv4Address(), nil
	default:
		return gofakeit.IPv6Address(), nil
	}
}

// Name yields a synthetic full name, optionally constrained to a gender and
// a maximum length (regenerated until it fits).
type Name struct {
	item, field string
	gender      expr.Expression
	maxLength   int
}

func newName(item, field string, p Params) (Generator, error) {
	genderRaw, _ := popAny(p, "gender")
	maxLength := popInt(p, "max_length", 0)
	genderExpr, err := expr.Parse(genderRaw)
	if err != nil {
		return nil, err
	}
	if err := rejectUnknown(item, field, p); err != nil {
		return nil, err
	}
	return &Name{item: item, field: field, gender: genderExpr, maxLength: maxLength}, nil
}

func (g *Name) provider(env vars.Env) (func() string, error) {
	gender, err := g.gender.Evaluate(env)
	if err != nil {
		return nil, err
	}
	switch gender {
	case "F":
		return func() string { return gofakeit.FirstNameFemale() + " " + gofakeit.LastName() }, nil
	case "M":
		return func() string { return gofakeit.FirstNameMale() + " " + gofakeit.LastName() }, nil
	case nil, "":
		return gofakeit.Name, nil
	default:
		return nil, perrors.GenerationFieldf(g.item, g.field, "gender must be either 'M', 'F' or null, got %q", gender)
	}
}

func (g *Name) Next(env vars.Env) (any, error) {
	provider, err := g.provider(env)
	if err != nil {
		return nil, err
	}
	for {
		value := provider()
		if g.maxLength == 0 || len(value) <= g.maxLength {
			return value, nil
		}
	}
}

// FirstName yields a synthetic first name, honoring the same gender contract
// as Name.
type FirstName struct{ Name }

func newFirstName(item, field string, p Params) (Generator, error) {
	n, err := newName(item, field, p)
	if err != nil {
		return nil, err
	}
	return &FirstName{*n.(*Name)}, nil
}

func (g *FirstName) provider(env vars.Env) (func() string, error) {
	gender, err := g.gender.Evaluate(env)
	if err != nil {
		return nil, err
	}
	switch gender {
	case "F":
		return gofakeit.FirstNameFemale, nil
	case "M":
		return gofakeit.FirstNameMale, nil
	case nil, "":
		return gofakeit.FirstName, nil
	default:
		return nil, perrors.GenerationFieldf(g.item, g.field, "gender must be either 'M', 'F' or null, got %q", gender)
	}
}

func (g *FirstName) Next(env vars.Env) (any, error) {
	provider, err := g.provider(env)
	if err != nil {
		return nil, err
	}
	for {
		value := provider()
		if g.maxLength == 0 || len(value) <= g.maxLength {
			return value, nil
		}
	}
}

// LastName yields a synthetic last name.
type LastName struct {
	maxLength int
}

func newLastName(item, field string, p Params) (Generator, error) {
	maxLength := popInt(p, "max_length", 0)
	if err := rejectUnknown(item, field, p); err != nil {
		return nil, err
	}
	return &LastName{maxLength: maxLength}, nil
}

func (g *LastName) Next(vars.Env) (any, error) {
	for {
		value := gofakeit.LastName()
		if g.maxLength == 0 || len(value) <= g.maxLength {
			return value, nil
		}
	}
}
