package generator

import "github.com/dbsmedya/populous/internal/vars"

// Store always yields a fresh, empty, append-target list. It is returned as
// a *[]any (rather than a plain []any) so a "store_in" reference on another
// item's field can append into the very list this row is holding, even
// after this row has been read out into a finalized Row -- a slice header
// copy wouldn't observe later appends, but the pointer does.
type Store struct{}

func init() {
	Register("Store", newStore)
}

func newStore(item, field string, p Params) (Generator, error) {
	if err := rejectUnknown(item, field, p); err != nil {
		return nil, err
	}
	return Store{}, nil
}

func (Store) Shadow() bool { return true }

func (Store) Next(vars.Env) (any, error) {
	list := make([]any, 0)
	return &list, nil
}
