// Package postgres implements populous's storage port (internal/backend)
// against a real PostgreSQL database, adapted from the teacher's
// internal/archiver copy/discovery query-building style and database.go's
// connection handling, reworked around INSERT ... RETURNING, a server-side
// cursor for Select, and a sampling query for SelectRandom.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/lib/pq/hstore"
	"go.uber.org/zap"

	"github.com/dbsmedya/populous/internal/backend"
	"github.com/dbsmedya/populous/internal/perrors"
	"github.com/dbsmedya/populous/internal/sqlutil"
)

var _ backend.Backend = (*Backend)(nil)

// querier is the slice of *sql.DB / *sql.Tx that query-building code needs,
// so the same helpers work whether or not a Transaction is active.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type txKey struct{}

var cursorSeq int64

// Backend is the PostgreSQL implementation of backend.Backend.
type Backend struct {
	db  *sql.DB
	log *zap.Logger
}

// New wraps an already-connected *sql.DB (internal/database.Manager.DB) as
// a backend.Backend.
func New(db *sql.DB, log *zap.Logger) *Backend {
	if log == nil {
		log = zap.NewNop()
	}
	return &Backend{db: db, log: log}
}

func (b *Backend) conn(ctx context.Context) querier {
	if tx, ok := ctx.Value(txKey{}).(*sql.Tx); ok {
		return tx
	}
	return b.db
}

// Transaction runs fn inside a single transaction, committing on a clean
// return and rolling back on error or panic -- grounded on the teacher's
// CopyPhase.Copy begin/defer-rollback/commit pattern. If ctx already carries
// a transaction (a nested Transaction call within an outer one), fn joins
// that transaction instead of opening a new one, and the commit/rollback is
// left to the outer call.
func (b *Backend) Transaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txKey{}).(*sql.Tx); ok {
		return fn(ctx)
	}

	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return perrors.Backendf("begin transaction", err)
	}

	txCtx := context.WithValue(ctx, txKey{}, tx)

	committed := false
	defer func() {
		if !committed {
			if rbErr := tx.Rollback(); rbErr != nil && rbErr != sql.ErrTxDone {
				b.log.Error("rollback failed", zap.Error(rbErr))
			}
		}
	}()

	if err := fn(txCtx); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return perrors.Backendf("commit transaction", err)
	}
	committed = true
	return nil
}

// Write inserts rows one at a time with INSERT ... RETURNING, preserving
// row order in the returned id slice. A prepared statement is reused across
// the batch, the same shape as the teacher's copyTable.
func (b *Backend) Write(ctx context.Context, table, pkColumn string, columns []string, rows [][]any) ([]any, error) {
	if len(rows) == 0 {
		return nil, nil
	}

	query := buildInsertReturning(table, pkColumn, columns)

	conn := b.conn(ctx)
	prep, ok := conn.(interface {
		PrepareContext(ctx context.Context, query string) (*sql.Stmt, error)
	})
	var stmtHandle *sql.Stmt
	if ok {
		var err error
		stmtHandle, err = prep.PrepareContext(ctx, query)
		if err != nil {
			return nil, perrors.Backendf("prepare insert", err)
		}
		defer stmtHandle.Close()
	}

	ids := make([]any, len(rows))
	for i, row := range rows {
		values := adaptValues(row)

		var id any
		var scanErr error
		if stmtHandle != nil {
			scanErr = stmtHandle.QueryRowContext(ctx, values...).Scan(&id)
		} else {
			scanErr = conn.QueryRowContext(ctx, query, values...).Scan(&id)
		}
		if scanErr != nil {
			return nil, perrors.Backendf("insert into "+table, scanErr)
		}
		ids[i] = id
	}

	return ids, nil
}

func buildInsertReturning(table, pkColumn string, columns []string) string {
	quoted := make([]string, len(columns))
	placeholders := make([]string, len(columns))
	for i, c := range columns {
		quoted[i] = sqlutil.QuoteIdentifier(c)
		placeholders[i] = fmt.Sprintf("$%d", i+1)
	}

	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) RETURNING %s",
		sqlutil.QuoteIdentifier(table),
		strings.Join(quoted, ", "),
		strings.Join(placeholders, ", "),
		sqlutil.QuoteIdentifier(pkColumn),
	)
}

// Upsert writes one row keyed by keys: a matching row's id is returned
// unchanged (ON CONFLICT DO UPDATE SET col = EXCLUDED.col overwrites the
// matching row's columns with the incoming values, and keeps RETURNING
// working uniformly for both the insert and the update path).
func (b *Backend) Upsert(ctx context.Context, table string, keys []string, columns []string, row []any) (any, error) {
	pk, err := b.GetPKColumn(ctx, table)
	if err != nil {
		return nil, err
	}

	quoted := make([]string, len(columns))
	placeholders := make([]string, len(columns))
	for i, c := range columns {
		quoted[i] = sqlutil.QuoteIdentifier(c)
		placeholders[i] = fmt.Sprintf("$%d", i+1)
	}

	quotedKeys := make([]string, len(keys))
	for i, k := range keys {
		quotedKeys[i] = sqlutil.QuoteIdentifier(k)
	}

	sets := make([]string, 0, len(columns))
	for _, c := range columns {
		q := sqlutil.QuoteIdentifier(c)
		sets = append(sets, fmt.Sprintf("%s = EXCLUDED.%s", q, q))
	}

	query := fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (%s) DO UPDATE SET %s RETURNING %s",
		sqlutil.QuoteIdentifier(table),
		strings.Join(quoted, ", "),
		strings.Join(placeholders, ", "),
		strings.Join(quotedKeys, ", "),
		strings.Join(sets, ", "),
		sqlutil.QuoteIdentifier(pk),
	)

	var id any
	if err := b.conn(ctx).QueryRowContext(ctx, query, adaptValues(row)...).Scan(&id); err != nil {
		return nil, perrors.Backendf("upsert into "+table, err)
	}
	return id, nil
}

// Select streams every row of table through a server-side cursor, so a
// large table can be preloaded for uniqueness checking with bounded memory.
func (b *Backend) Select(ctx context.Context, table string, fields []string) (backend.RowIterator, error) {
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, perrors.Backendf("begin select", err)
	}

	name := fmt.Sprintf("populous_cursor_%d", atomic.AddInt64(&cursorSeq, 1))
	quoted := make([]string, len(fields))
	for i, f := range fields {
		quoted[i] = sqlutil.QuoteIdentifier(f)
	}

	declare := fmt.Sprintf("DECLARE %s NO SCROLL CURSOR FOR SELECT %s FROM %s",
		name, strings.Join(quoted, ", "), sqlutil.QuoteIdentifier(table))

	if _, err := tx.ExecContext(ctx, declare); err != nil {
		tx.Rollback()
		return nil, perrors.Backendf("declare cursor", err)
	}

	return &CursorIterator{ctx: ctx, tx: tx, name: name, fields: fields, batchSize: 1000}, nil
}

// CursorIterator implements backend.RowIterator over a DECLARE/FETCH cursor.
type CursorIterator struct {
	ctx       context.Context
	tx        *sql.Tx
	name      string
	fields    []string
	batchSize int

	buf []map[string]any
	pos int
	err error
	eof bool
}

// Next advances to the next row, fetching the next batch from the cursor
// once the in-memory page is exhausted.
func (c *CursorIterator) Next() (map[string]any, bool, error) {
	if c.err != nil {
		return nil, false, c.err
	}

	if c.pos >= len(c.buf) {
		if c.eof {
			return nil, false, nil
		}
		if err := c.fetch(); err != nil {
			c.err = err
			return nil, false, err
		}
		if len(c.buf) == 0 {
			c.eof = true
			return nil, false, nil
		}
	}

	row := c.buf[c.pos]
	c.pos++
	return row, true, nil
}

func (c *CursorIterator) fetch() error {
	rows, err := c.tx.QueryContext(c.ctx, fmt.Sprintf("FETCH %d FROM %s", c.batchSize, c.name))
	if err != nil {
		return perrors.Backendf("fetch cursor", err)
	}
	defer rows.Close()

	c.buf = c.buf[:0]
	c.pos = 0

	for rows.Next() {
		values := make([]any, len(c.fields))
		ptrs := make([]any, len(c.fields))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return perrors.Backendf("scan cursor row", err)
		}

		row := make(map[string]any, len(c.fields))
		for i, f := range c.fields {
			row[f] = values[i]
		}
		c.buf = append(c.buf, row)
	}

	if len(c.buf) < c.batchSize {
		c.eof = true
	}

	return rows.Err()
}

// Close closes the cursor and its owning transaction.
func (c *CursorIterator) Close() error {
	if _, err := c.tx.ExecContext(c.ctx, fmt.Sprintf("CLOSE %s", c.name)); err != nil {
		c.tx.Rollback()
		return perrors.Backendf("close cursor", err)
	}
	return c.tx.Rollback()
}

// SelectRandom draws an approximate random sample of up to maxRows rows,
// oversampling with WHERE random() < p and falling back to ORDER BY
// random() LIMIT n on small tables where the estimate is unreliable.
func (b *Backend) SelectRandom(table string, fields []string, where map[string]any, maxRows int) ([]map[string]any, error) {
	ctx := context.Background()

	quoted := make([]string, len(fields))
	for i, f := range fields {
		quoted[i] = sqlutil.QuoteIdentifier(f)
	}
	cols := strings.Join(quoted, ", ")
	tbl := sqlutil.QuoteIdentifier(table)

	whereClauses, args := buildWhereClauses(where)

	est, estErr := b.estimateRowCount(ctx, table)

	var query string
	const smallTableThreshold = 10000
	if estErr == nil && est > int64(smallTableThreshold) {
		prob := float64(maxRows) * 3 / float64(est)
		if prob > 1 {
			prob = 1
		}
		whereClauses = append(whereClauses, fmt.Sprintf("random() < %f", prob))
		query = fmt.Sprintf("SELECT %s FROM %s WHERE %s LIMIT %d",
			cols, tbl, strings.Join(whereClauses, " AND "), maxRows)
	} else if len(whereClauses) > 0 {
		query = fmt.Sprintf("SELECT %s FROM %s WHERE %s ORDER BY random() LIMIT %d",
			cols, tbl, strings.Join(whereClauses, " AND "), maxRows)
	} else {
		query = fmt.Sprintf("SELECT %s FROM %s ORDER BY random() LIMIT %d", cols, tbl, maxRows)
	}

	rows, err := b.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, perrors.Backendf("select_random from "+table, err)
	}
	defer rows.Close()

	var out []map[string]any
	for rows.Next() {
		values := make([]any, len(fields))
		ptrs := make([]any, len(fields))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, perrors.Backendf("scan select_random row", err)
		}
		row := make(map[string]any, len(fields))
		for i, f := range fields {
			row[f] = values[i]
		}
		out = append(out, row)
	}

	return out, rows.Err()
}

func buildWhereClauses(where map[string]any) ([]string, []any) {
	if len(where) == 0 {
		return nil, nil
	}
	clauses := make([]string, 0, len(where))
	args := make([]any, 0, len(where))
	i := 1
	for col, val := range where {
		clauses = append(clauses, fmt.Sprintf("%s = $%d", sqlutil.QuoteIdentifier(col), i))
		args = append(args, val)
		i++
	}
	return clauses, args
}

// estimateRowCount uses the planner's cached statistics (pg_class.reltuples)
// rather than COUNT(*), since an exact count on a large table would defeat
// the point of sampling.
func (b *Backend) estimateRowCount(ctx context.Context, table string) (int64, error) {
	var est float64
	err := b.db.QueryRowContext(ctx,
		"SELECT reltuples FROM pg_class WHERE oid = $1::regclass", table,
	).Scan(&est)
	if err != nil {
		return 0, perrors.Backendf("estimate row count for "+table, err)
	}
	return int64(est), nil
}

// GetPKColumn returns table's primary key column name via pg_index.
func (b *Backend) GetPKColumn(ctx context.Context, table string) (string, error) {
	var col string
	err := b.conn(ctx).QueryRowContext(ctx, `
		SELECT a.attname
		FROM pg_index i
		JOIN pg_attribute a ON a.attrelid = i.indrelid AND a.attnum = ANY(i.indkey)
		WHERE i.indrelid = $1::regclass AND i.indisprimary
		LIMIT 1`, table).Scan(&col)
	if err != nil {
		return "", perrors.Backendf("get pk column for "+table, err)
	}
	return col, nil
}

// GetMaxExistingValue returns the largest existing value of field in table,
// for generators (AutoIncrement) that need a starting point on backends
// without RETURNING support.
func (b *Backend) GetMaxExistingValue(table, field string) (int64, bool, error) {
	query := fmt.Sprintf("SELECT MAX(%s) FROM %s", sqlutil.QuoteIdentifier(field), sqlutil.QuoteIdentifier(table))

	var max sql.NullInt64
	if err := b.db.QueryRowContext(context.Background(), query).Scan(&max); err != nil {
		return 0, false, perrors.Backendf("get max value for "+table+"."+field, err)
	}
	if !max.Valid {
		return 0, false, nil
	}
	return max.Int64, true, nil
}

// GetNextPK returns the next value a legacy integer primary key sequence
// would hand out, via pg_get_serial_sequence, without consuming it.
func (b *Backend) GetNextPK(table, field string) (int64, bool, error) {
	ctx := context.Background()

	var seq sql.NullString
	if err := b.db.QueryRowContext(ctx, "SELECT pg_get_serial_sequence($1, $2)", table, field).Scan(&seq); err != nil {
		return 0, false, perrors.Backendf("resolve sequence for "+table+"."+field, err)
	}
	if !seq.Valid || seq.String == "" {
		return 0, false, nil
	}

	var lastValue int64
	var isCalled bool
	query := fmt.Sprintf("SELECT last_value, is_called FROM %s", seq.String)
	if err := b.db.QueryRowContext(ctx, query).Scan(&lastValue, &isCalled); err != nil {
		return 0, false, perrors.Backendf("read sequence "+seq.String, err)
	}

	if !isCalled {
		return lastValue, true, nil
	}
	return lastValue + 1, true, nil
}

// Close releases the backend's connection. Idempotent; internal/database
// owns the *sql.DB's lifecycle, so Close only detaches this wrapper.
func (b *Backend) Close() error {
	return nil
}

// adaptValues converts Go-native parameter types (uuid.UUID, map[string]string
// for hstore columns) into values lib/pq knows how to encode, leaving every
// other value untouched for the driver's default conversion.
func adaptValues(row []any) []any {
	out := make([]any, len(row))
	for i, v := range row {
		out[i] = adaptValue(v)
	}
	return out
}

func adaptValue(v any) any {
	switch val := v.(type) {
	case uuid.UUID:
		return val.String()
	case map[string]string:
		h := hstore.Hstore{Map: make(map[string]sql.NullString, len(val))}
		for k, s := range val {
			h.Map[k] = sql.NullString{String: s, Valid: true}
		}
		return h
	default:
		return v
	}
}
