// Package verify provides post-generation row-count verification: once a
// run finishes, it compares the number of rows populous actually wrote to
// each table against a live SELECT COUNT(*) delta, catching a backend that
// silently dropped or duplicated writes. populous's core use case is
// generating into tables that already hold rows (the reason the Bloom-filter
// preprocess step exists at all), so a bare COUNT(*) can never be compared
// directly against a single run's written count -- a baseline taken before
// generation starts is required, and only the actual-minus-baseline delta is
// checked. Adapted from the teacher's internal/verifier, with the SHA256
// row-hash method dropped -- there is no "source" database to hash against
// in a generation tool, only a single destination.
package verify

import (
	"context"
	"database/sql"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/dbsmedya/populous/internal/sqlutil"
)

// Result holds the verification outcome for a single table.
type Result struct {
	Table        string
	Expected     int64
	Actual       int64
	Match        bool
	ErrorMessage string
}

// Stats summarizes a full verification run across every table checked.
type Stats struct {
	TablesVerified int
	TablesPassed   int
	TablesFailed   int
	TotalRows      int64
	Results        []Result
}

// Verifier checks actual table row counts against expected ones after a
// generation run.
type Verifier struct {
	db  *sql.DB
	log *zap.Logger
}

// New creates a Verifier against db, the same connection a run generated
// through.
func New(db *sql.DB, log *zap.Logger) *Verifier {
	if log == nil {
		log = zap.NewNop()
	}
	return &Verifier{db: db, log: log}
}

// Baseline captures a live COUNT(*) for every table named in tables, for use
// as Verify's pre-generation reference point. Called once, before
// Preprocess/Generate run, while the target tables hold only pre-existing
// rows.
func (v *Verifier) Baseline(ctx context.Context, tables []string) (map[string]int64, error) {
	baseline := make(map[string]int64, len(tables))
	for _, table := range tables {
		count, err := v.countTable(ctx, table)
		if err != nil {
			return nil, fmt.Errorf("failed to capture baseline for table %s: %w", table, err)
		}
		baseline[table] = count
	}
	return baseline, nil
}

// Verify compares each table's post-generation row count, minus its
// pre-generation baseline, against expected (as returned by
// blueprint.Blueprint.ExpectedCounts), iterating in sorted table-name order
// for deterministic logging. A table with zero expected rows (nothing was
// written to it this run) is skipped. baseline should come from a prior
// Baseline call made before generation started; a table missing from
// baseline is treated as having started empty.
func (v *Verifier) Verify(ctx context.Context, expected map[string]int64, baseline map[string]int64) (*Stats, error) {
	tables := make([]string, 0, len(expected))
	for table, count := range expected {
		if count > 0 {
			tables = append(tables, table)
		}
	}
	sort.Strings(tables)

	v.log.Sugar().Infof("starting verification for %d tables", len(tables))

	stats := &Stats{}
	for _, table := range tables {
		if err := ctx.Err(); err != nil {
			return stats, fmt.Errorf("verification interrupted: %w", err)
		}

		result, err := v.verifyTable(ctx, table, expected[table], baseline[table])
		if err != nil {
			return stats, fmt.Errorf("verification failed for table %s: %w", table, err)
		}

		stats.TablesVerified++
		stats.TotalRows += result.Actual - baseline[table]
		stats.Results = append(stats.Results, *result)

		if result.Match {
			stats.TablesPassed++
			v.log.Sugar().Debugf("verification passed for table %q (%d new rows)", table, result.Actual-baseline[table])
		} else {
			stats.TablesFailed++
			v.log.Sugar().Errorf("verification failed for table %q: %s", table, result.ErrorMessage)
		}
	}

	v.log.Sugar().Infof("verification complete: %d tables verified, %d passed, %d failed, %d total rows",
		stats.TablesVerified, stats.TablesPassed, stats.TablesFailed, stats.TotalRows)

	if stats.TablesFailed > 0 {
		return stats, fmt.Errorf("verification failed: %d tables had row-count mismatches", stats.TablesFailed)
	}
	return stats, nil
}

// verifyTable runs the live COUNT(*) for one table and compares the rows
// added since baseline to the expected count populous tracked while
// generating.
func (v *Verifier) verifyTable(ctx context.Context, table string, expected, baseline int64) (*Result, error) {
	actual, err := v.countTable(ctx, table)
	if err != nil {
		return nil, err
	}

	written := actual - baseline
	result := &Result{
		Table:    table,
		Expected: expected,
		Actual:   actual,
		Match:    written == expected,
	}
	if !result.Match {
		result.ErrorMessage = fmt.Sprintf("row count mismatch: expected=%d, written=%d (actual=%d, baseline=%d)",
			expected, written, actual, baseline)
	}
	return result, nil
}

func (v *Verifier) countTable(ctx context.Context, table string) (int64, error) {
	quoted, err := sqlutil.QuoteIdentifierSafe(table)
	if err != nil {
		return 0, err
	}

	query := fmt.Sprintf("SELECT COUNT(*) FROM %s", quoted)
	var count int64
	if err := v.db.QueryRowContext(ctx, query).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count %s: %w", table, err)
	}
	return count, nil
}
