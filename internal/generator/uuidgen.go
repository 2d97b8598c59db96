package generator

import (
	"github.com/google/uuid"

	"github.com/dbsmedya/populous/internal/vars"
)

// UUID yields a random v4 UUID, as a string or as uuid.UUID depending on
// ToString.
type UUID struct {
	toString bool
}

func init() {
	Register("UUID", newUUID)
}

func newUUID(item, field string, p Params) (Generator, error) {
	toString := popBool(p, "to_string", false)
	if err := rejectUnknown(item, field, p); err != nil {
		return nil, err
	}
	return &UUID{toString: toString}, nil
}

func (u *UUID) Next(vars.Env) (any, error) {
	id := uuid.New()
	if u.toString {
		return id.String(), nil
	}
	return id, nil
}
