// Package interceptor wraps github.com/Masterminds/squirrel statements so
// that INSERT/UPDATE/DELETE chains executed through a Handle are
// transparently captured and routed to the batch writer, per spec.md §4.6
// (C6).
//
// squirrel has no dynamic property surface the way the original's
// JavaScript query-builder does, so this is a structural facade — each
// builder method on Handle returns a statement type that records the
// caller's chain and, at Exec time, runs audited statements once with
// RETURNING * injected, then trims the captured rows back to the caller's
// own Returning projection (no second statement is issued), per spec.md
// §9's guidance for statically-typed hosts.
package interceptor

import (
	"context"
	"database/sql"

	sq "github.com/Masterminds/squirrel"

	"github.com/lattice-data/pgaudit/auditctx"
	"github.com/lattice-data/pgaudit/internal/capture"
	"github.com/lattice-data/pgaudit/internal/pk"
	"github.com/lattice-data/pgaudit/internal/writer"
)

// Querier is the subset of *sql.DB / *sql.Tx the interceptor needs.
type Querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Config is the subset of the logger configuration the interceptor needs
// to decide what's audited and what's captured.
type Config struct {
	AuditTable    string
	ShouldAudit   func(table string) bool
	Fields        map[string][]string
	ExcludeFields map[string]bool
	TableConfig   map[string]pk.Spec
	UpdateFull    bool
	Strict        bool
	WaitForWrite  bool
}

func (c *Config) captureConfig() capture.Config {
	return capture.Config{
		Fields:        c.Fields,
		ExcludeFields: c.ExcludeFields,
		TableConfig:   c.TableConfig,
		UpdateFull:    c.UpdateFull,
	}
}

// Handle is the audited facade over a *sql.DB or *sql.Tx. A Handle bound
// to a transaction accumulates captured records and only hands them to
// the writer on Commit, per spec.md §4.6's commit-gated emission
// guidance; a Handle bound to the root *sql.DB emits immediately after
// each statement.
type Handle struct {
	q       Querier
	tx      *sql.Tx
	rootDB  *sql.DB
	cfg     *Config
	w       *writer.Writer
	pending []pendingEmission
}

type pendingEmission struct {
	records []capture.Record
}

// Wrap returns a Handle bound to the root database connection.
func Wrap(db *sql.DB, cfg *Config, w *writer.Writer) *Handle {
	return &Handle{q: db, rootDB: db, cfg: cfg, w: w}
}

// Begin opens a transaction and returns a Handle bound to it; captured
// records accumulate until Commit.
func (h *Handle) Begin(ctx context.Context) (*Handle, error) {
	tx, err := h.rootDB.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	return &Handle{q: tx, tx: tx, rootDB: h.rootDB, cfg: h.cfg, w: h.w}, nil
}

// Commit commits the underlying transaction and, only on success, hands
// any records captured within it to the batch writer. The writer's own
// INSERT always targets the root *sql.DB, never the caller's transaction,
// per spec.md §4.6.
func (h *Handle) Commit(ctx context.Context) error {
	if h.tx == nil {
		return nil
	}
	if err := h.tx.Commit(); err != nil {
		return err
	}
	for _, p := range h.pending {
		if err := h.emit(ctx, p.records); err != nil {
			return err
		}
	}
	h.pending = nil
	return nil
}

// Rollback rolls back the underlying transaction and discards any
// records captured within it — no phantom audits from rolled-back
// transactions.
func (h *Handle) Rollback() error {
	h.pending = nil
	if h.tx == nil {
		return nil
	}
	return h.tx.Rollback()
}

// Select is a pass-through: reads are never audited.
func (h *Handle) Select(columns ...string) sq.SelectBuilder {
	return sq.StatementBuilder.PlaceholderFormat(sq.Dollar).Select(columns...).RunWith(h.q)
}

func (h *Handle) shouldAudit(table string) bool {
	if table == h.cfg.AuditTable {
		return false
	}
	return h.cfg.ShouldAudit(table)
}

// emit routes captured records through the writer with the current
// auditctx-scoped context; within a transaction this is buffered until
// Commit instead of called directly (see Insert/Update/Delete Exec paths).
func (h *Handle) emit(ctx context.Context, records []capture.Record) error {
	if len(records) == 0 {
		return nil
	}
	scope, _ := auditctx.FromContext(ctx)
	return h.w.Enqueue(ctx, records, scope)
}

// deferOrEmit either emits records immediately (root-handle path) or
// buffers them for commit-gated emission (transaction-bound handle).
func (h *Handle) deferOrEmit(ctx context.Context, records []capture.Record) error {
	if len(records) == 0 {
		return nil
	}
	if h.tx != nil {
		h.pending = append(h.pending, pendingEmission{records: records})
		return nil
	}
	return h.emit(ctx, records)
}
