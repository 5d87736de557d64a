package interceptor

import (
	"context"

	sq "github.com/Masterminds/squirrel"

	"github.com/lattice-data/pgaudit/internal/capture"
)

// InsertStmt records an audited-or-not INSERT chain.
type InsertStmt struct {
	h         *Handle
	table     string
	columns   []string
	values    [][]any
	returning []string
	hasReturn bool
}

// Insert begins an INSERT chain against table.
func (h *Handle) Insert(table string) *InsertStmt {
	return &InsertStmt{h: h, table: table}
}

func (s *InsertStmt) Columns(cols ...string) *InsertStmt {
	s.columns = cols
	return s
}

func (s *InsertStmt) Values(vals ...any) *InsertStmt {
	s.values = append(s.values, vals)
	return s
}

// Returning records the caller's explicit RETURNING projection; columns
// defaults to "*" if called with none.
func (s *InsertStmt) Returning(columns ...string) *InsertStmt {
	if len(columns) == 0 {
		columns = []string{"*"}
	}
	s.returning = columns
	s.hasReturn = true
	return s
}

func (s *InsertStmt) build() sq.InsertBuilder {
	ib := sq.StatementBuilder.PlaceholderFormat(sq.Dollar).Insert(s.table)
	if len(s.columns) > 0 {
		ib = ib.Columns(s.columns...)
	}
	for _, row := range s.values {
		ib = ib.Values(row...)
	}
	return ib
}

// Exec executes the INSERT. Non-audited tables pass through unmodified;
// audited tables always fetch every column (RETURNING *) for the capture
// pipeline regardless of the caller's own Returning projection — trimming
// the result back down to that projection — which avoids the race a
// second follow-up statement would introduce (see DESIGN.md, Open
// Question 1).
func (s *InsertStmt) Exec(ctx context.Context) (*ExecResult, error) {
	h := s.h

	if !h.shouldAudit(s.table) {
		ib := s.build()
		if s.hasReturn {
			ib = ib.Suffix("RETURNING " + joinCols(s.returning))
			rows, err := queryRows(ctx, h.q, ib)
			if err != nil {
				return nil, err
			}
			return &ExecResult{Rows: rows}, nil
		}
		query, args, err := ib.ToSql()
		if err != nil {
			return nil, err
		}
		res, err := h.q.ExecContext(ctx, query, args...)
		if err != nil {
			return nil, err
		}
		return &ExecResult{Result: res}, nil
	}

	ib := s.build().Suffix("RETURNING *")
	rows, err := queryRows(ctx, h.q, ib)
	if err != nil {
		return nil, err
	}

	records, err := capture.InsertAuditLogs(s.table, rows, h.cfg.captureConfig())
	if err != nil {
		return nil, err
	}
	if err := h.deferOrEmit(ctx, records); err != nil {
		return nil, err
	}

	if s.hasReturn {
		return &ExecResult{Rows: trimColumns(rows, s.returning)}, nil
	}
	return &ExecResult{Result: capturedResult{rows: int64(len(rows))}}, nil
}

func joinCols(cols []string) string {
	out := ""
	for i, c := range cols {
		if i > 0 {
			out += ", "
		}
		out += c
	}
	return out
}
