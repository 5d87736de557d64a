package interceptor

import (
	"context"
	"database/sql"
	"errors"

	sq "github.com/Masterminds/squirrel"
)

// ExecResult preserves the caller's original return contract per spec.md
// §4.6: Result is populated when the caller never chained Returning
// (mirroring the driver's native "no-return" result), Rows is populated
// with exactly the caller's requested columns when they did.
type ExecResult struct {
	Result sql.Result
	Rows   []map[string]any
}

// capturedResult synthesizes a sql.Result from the row count captured for
// the audit pipeline, for the no-Returning path. Postgres has no
// meaningful LastInsertId, matching lib/pq's own behavior.
type capturedResult struct{ rows int64 }

func (r capturedResult) LastInsertId() (int64, error) {
	return 0, errors.New("pgaudit: LastInsertId is not supported")
}

func (r capturedResult) RowsAffected() (int64, error) { return r.rows, nil }

// queryRows executes a squirrel Sqlizer expected to return rows and scans
// every column into a []map[string]any, preserving driver types.
func queryRows(ctx context.Context, q Querier, stmt sq.Sqlizer) ([]map[string]any, error) {
	query, args, err := stmt.ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRows(rows)
}

func scanRows(rows *sql.Rows) ([]map[string]any, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var out []map[string]any
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		row := make(map[string]any, len(cols))
		for i, col := range cols {
			row[col] = vals[i]
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

func trimColumns(rows []map[string]any, columns []string) []map[string]any {
	if len(columns) == 0 || (len(columns) == 1 && columns[0] == "*") {
		return rows
	}
	out := make([]map[string]any, len(rows))
	for i, row := range rows {
		trimmed := make(map[string]any, len(columns))
		for _, c := range columns {
			if v, ok := row[c]; ok {
				trimmed[c] = v
			}
		}
		out[i] = trimmed
	}
	return out
}
