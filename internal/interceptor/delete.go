package interceptor

import (
	"context"

	sq "github.com/Masterminds/squirrel"

	"github.com/lattice-data/pgaudit/internal/capture"
)

// DeleteStmt records an audited-or-not DELETE chain.
type DeleteStmt struct {
	h         *Handle
	table     string
	where     sq.Sqlizer
	returning []string
	hasReturn bool
}

// Delete begins a DELETE chain against table.
func (h *Handle) Delete(table string) *DeleteStmt {
	return &DeleteStmt{h: h, table: table}
}

func (s *DeleteStmt) Where(pred sq.Sqlizer) *DeleteStmt {
	s.where = pred
	return s
}

func (s *DeleteStmt) Returning(columns ...string) *DeleteStmt {
	if len(columns) == 0 {
		columns = []string{"*"}
	}
	s.returning = columns
	s.hasReturn = true
	return s
}

func (s *DeleteStmt) build() sq.DeleteBuilder {
	db := sq.StatementBuilder.PlaceholderFormat(sq.Dollar).Delete(s.table)
	if s.where != nil {
		db = db.Where(s.where)
	}
	return db
}

// Exec executes the DELETE, capturing the deleted rows' values before they
// disappear (via RETURNING *), symmetric with InsertStmt.Exec.
func (s *DeleteStmt) Exec(ctx context.Context) (*ExecResult, error) {
	h := s.h

	if !h.shouldAudit(s.table) {
		db := s.build()
		if s.hasReturn {
			db = db.Suffix("RETURNING " + joinCols(s.returning))
			rows, err := queryRows(ctx, h.q, db)
			if err != nil {
				return nil, err
			}
			return &ExecResult{Rows: rows}, nil
		}
		query, args, err := db.ToSql()
		if err != nil {
			return nil, err
		}
		res, err := h.q.ExecContext(ctx, query, args...)
		if err != nil {
			return nil, err
		}
		return &ExecResult{Result: res}, nil
	}

	db := s.build().Suffix("RETURNING *")
	rows, err := queryRows(ctx, h.q, db)
	if err != nil {
		return nil, err
	}

	records, err := capture.DeleteAuditLogs(s.table, rows, h.cfg.captureConfig())
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
