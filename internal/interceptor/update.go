package interceptor

import (
	"context"

	sq "github.com/Masterminds/squirrel"

	"github.com/lattice-data/pgaudit/internal/capture"
)

// UpdateStmt records an audited-or-not UPDATE chain.
type UpdateStmt struct {
	h         *Handle
	table     string
	setCols   []string
	setVals   []any
	where     sq.Sqlizer
	returning []string
	hasReturn bool
}

// Update begins an UPDATE chain against table.
func (h *Handle) Update(table string) *UpdateStmt {
	return &UpdateStmt{h: h, table: table}
}

func (s *UpdateStmt) Set(col string, val any) *UpdateStmt {
	s.setCols = append(s.setCols, col)
	s.setVals = append(s.setVals, val)
	return s
}

// Where accepts any squirrel predicate, e.g. sq.Eq{"id": id}.
func (s *UpdateStmt) Where(pred sq.Sqlizer) *UpdateStmt {
	s.where = pred
	return s
}

func (s *UpdateStmt) Returning(columns ...string) *UpdateStmt {
	if len(columns) == 0 {
		columns = []string{"*"}
	}
	s.returning = columns
	s.hasReturn = true
	return s
}

func (s *UpdateStmt) build() sq.UpdateBuilder {
	ub := sq.StatementBuilder.PlaceholderFormat(sq.Dollar).Update(s.table)
	for i, col := range s.setCols {
		ub = ub.Set(col, s.setVals[i])
	}
	if s.where != nil {
		ub = ub.Where(s.where)
	}
	return ub
}

// Exec executes the UPDATE. In changed mode, a pre-image SELECT restricted
// to the same WHERE predicate runs first, through the same Querier as the
// UPDATE: the transaction when the Handle is bound to one, otherwise the
// root *sql.DB pool, which may hand the two statements different
// connections.
func (s *UpdateStmt) Exec(ctx context.Context) (*ExecResult, error) {
	h := s.h

	if !h.shouldAudit(s.table) {
		ub := s.build()
		if s.hasReturn {
			ub = ub.Suffix("RETURNING " + joinCols(s.returning))
			rows, err := queryRows(ctx, h.q, ub)
			if err != nil {
				return nil, err
			}
			return &ExecResult{Rows: rows}, nil
		}
		query, args, err := ub.ToSql()
		if err != nil {
			return nil, err
		}
		res, err := h.q.ExecContext(ctx, query, args...)
		if err != nil {
			return nil, err
		}
		return &ExecResult{Result: res}, nil
	}

	var beforeRows []map[string]any
	if !h.cfg.UpdateFull {
		sel := sq.StatementBuilder.PlaceholderFormat(sq.Dollar).Select("*").From(s.table)
		if s.where != nil {
			sel = sel.Where(s.where)
		}
		rows, err := queryRows(ctx, h.q, sel)
		if err != nil {
			return nil, err
		}
		beforeRows = rows
	}

	ub := s.build().Suffix("RETURNING *")
	afterRows, err := queryRows(ctx, h.q, ub)
	if err != nil {
		return nil, err
	}

	records, err := capture.UpdateAuditLogs(s.table, beforeRows, afterRows, h.cfg.captureConfig())
	if err != nil {
		return nil, err
	}
	if err := h.deferOrEmit(ctx, records); err != nil {
		return nil, err
	}

	if s.hasReturn {
		return &ExecResult{Rows: trimColumns(afterRows, s.returning)}, nil
	}
	return &ExecResult{Result: capturedResult{rows: int64(len(afterRows))}}, nil
}
