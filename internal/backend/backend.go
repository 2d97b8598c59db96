// Package backend defines the storage port that the generation engine
// writes rows through and reads existing values from. internal/backend/postgres
// provides the concrete PostgreSQL implementation.
package backend

import "context"

// Backend is the storage port spec.md §4.8 describes. A Backend instance is
// bound to one blueprint run and closed once generation finishes.
type Backend interface {
	// Transaction runs fn inside a single transaction scope, committing on a
	// clean return and rolling back if fn returns an error or panics. All
	// writes during a single blueprint.Generate call happen inside one
	// Transaction call.
	Transaction(ctx context.Context, fn func(ctx context.Context) error) error

	// Write inserts rows (ordered to match columns) into table and returns
	// the backend-assigned primary key for each row, in row order.
	Write(ctx context.Context, table string, pkColumn string, columns []string, rows [][]any) ([]any, error)

	// Upsert writes one row into table keyed by the columns named in keys:
	// a matching existing row's id is returned unchanged, otherwise row is
	// inserted and its new id returned. Used for fixtures (named,
	// hand-specified rows upserted by a natural key rather than generated).
	Upsert(ctx context.Context, table string, keys []string, columns []string, row []any) (any, error)

	// Select streams every row of table, projecting only fields, through a
	// cursor-backed iterator so arbitrarily large tables can be read with
	// bounded memory.
	Select(ctx context.Context, table string, fields []string) (RowIterator, error)

	// SelectRandom draws an approximate random sample of up to maxRows rows
	// from table (optionally filtered by where), projecting only fields.
	SelectRandom(table string, fields []string, where map[string]any, maxRows int) ([]map[string]any, error)

	// GetPKColumn returns table's primary key column name, since a
	// blueprint's "id" field is a logical name that need not match the SQL
	// column.
	GetPKColumn(ctx context.Context, table string) (string, error)

	// GetMaxExistingValue returns the largest existing value of field in
	// table's item, for generators (AutoIncrement) that need a starting
	// point on backends without RETURNING support.
	GetMaxExistingValue(item, field string) (int64, bool, error)

	// GetNextPK returns the next value a legacy integer primary key
	// sequence would hand out. The sequence is read, not advanced: no
	// values are reserved, so a concurrent writer can take the same value.
	GetNextPK(item, field string) (int64, bool, error)

	// Close releases the backend's connection(s). Idempotent.
	Close() error
}

// RowIterator streams rows from a Select call.
type RowIterator interface {
	// Next advances to the next row. Returns (row, true, nil) while rows
	// remain, (nil, false, nil) once exhausted, or a BackendError.
	Next() (map[string]any, bool, error)
	Close() error
}
