// Package pgaudit provides transparent audit logging for database
// mutations executed through a squirrel-backed query-builder handle: wrap
// a *sql.DB once, and every INSERT/UPDATE/DELETE run through the returned
// handle is captured and persisted to an audit table alongside ambient
// context (acting principal, network identifiers, transaction id,
// metadata).
//
// See SPEC_FULL.md for the full design and DESIGN.md for how each piece
// is grounded.
package pgaudit

import (
	"context"
	"database/sql"

	"github.com/lattice-data/pgaudit/auditctx"
	"github.com/lattice-data/pgaudit/internal/capture"
	"github.com/lattice-data/pgaudit/internal/interceptor"
	"github.com/lattice-data/pgaudit/internal/writer"
)

// Logger is the audit logging facade (C7): a wrapped query handle plus
// context and manual-emission operations.
type Logger struct {
	cfg     Config
	tables  map[string]bool
	handle  *interceptor.Handle
	writer  *writer.Writer
	capture capture.Config
}

// NewLogger normalizes cfg, constructs the batch writer, and wraps db
// behind an audited Handle. Configuration errors (e.g. no audited tables)
// are returned synchronously, never deferred to first use.
func NewLogger(db *sql.DB, cfg Config) (*Logger, error) {
	normalized, err := cfg.normalize()
	if err != nil {
		return nil, err
	}

	w := writer.New(writer.Config{
		DB:            db,
		AuditTable:    normalized.AuditTable,
		Columns:       normalized.ColumnMap,
		BatchSize:     normalized.BatchSize,
		FlushInterval: normalized.FlushInterval,
		MaxQueueSize:  normalized.MaxQueueSize,
		Strict:        normalized.StrictMode,
		WaitForWrite:  normalized.WaitForWrite,
		GetUserID:     normalized.GetUserID,
		GetMetadata:   normalized.GetMetadata,
		LogError:      normalized.LogError,
	})

	l := &Logger{
		cfg:    normalized,
		tables: normalized.tableSet(),
		writer: w,
		capture: capture.Config{
			Fields:        normalized.Fields,
			ExcludeFields: normalized.excludeFieldSet(),
			TableConfig:   normalized.tableConfigSpecs(),
			UpdateFull:    normalized.UpdateValuesMode == UpdateValuesFull,
		},
	}

	icfg := &interceptor.Config{
		AuditTable:    normalized.AuditTable,
		ShouldAudit:   l.ShouldAudit,
		Fields:        normalized.Fields,
		ExcludeFields: l.capture.ExcludeFields,
		TableConfig:   l.capture.TableConfig,
		UpdateFull:    l.capture.UpdateFull,
		Strict:        normalized.StrictMode,
		WaitForWrite:  normalized.WaitForWrite,
	}
	l.handle = interceptor.Wrap(db, icfg, w)

	return l, nil
}

// DB returns the audited query handle (C6). Every Insert/Update/Delete
// chain executed through it is captured automatically.
func (l *Logger) DB() *interceptor.Handle {
	return l.handle
}

// ShouldAudit reports whether table is subject to audit capture: the
// audit table itself is never audited, "*" audits everything else, and
// otherwise membership in Tables decides.
func (l *Logger) ShouldAudit(table string) bool {
	if table == l.cfg.AuditTable {
		return false
	}
	if l.cfg.isWildcard() {
		return true
	}
	return l.tables[table]
}

// SetContext binds c as the audit context for the returned child context.
func (l *Logger) SetContext(ctx context.Context, c auditctx.Context) context.Context {
	return auditctx.WithContext(ctx, c)
}

// WithContext binds c for the dynamic extent of fn.
func (l *Logger) WithContext(ctx context.Context, c auditctx.Context, fn func(context.Context) error) error {
	return fn(auditctx.WithContext(ctx, c))
}

// GetContext returns the effective audit context bound to ctx, if any.
func (l *Logger) GetContext(ctx context.Context) (auditctx.Context, bool) {
	return auditctx.FromContext(ctx)
}

// LogInsert manually emits INSERT audit records for rows already written
// outside the audited handle (e.g. a bulk COPY).
func (l *Logger) LogInsert(ctx context.Context, table string, rows []map[string]any) error {
	if !l.ShouldAudit(table) {
		return nil
	}
	records, err := capture.InsertAuditLogs(table, rows, l.capture)
	if err != nil {
		return err
	}
	return l.enqueue(ctx, records)
}

// LogUpdate manually emits UPDATE audit records given before/after row
// snapshots captured by the caller.
func (l *Logger) LogUpdate(ctx context.Context, table string, before, after []map[string]any) error {
	if !l.ShouldAudit(table) {
		return nil
	}
	records, err := capture.UpdateAuditLogs(table, before, after, l.capture)
	if err != nil {
		return err
	}
	return l.enqueue(ctx, records)
}

// LogDelete manually emits DELETE audit records for rows already removed
// outside the audited handle.
func (l *Logger) LogDelete(ctx context.Context, table string, rows []map[string]any) error {
	if !l.ShouldAudit(table) {
		return nil
	}
	records, err := capture.DeleteAuditLogs(table, rows, l.capture)
	if err != nil {
		return err
	}
	return l.enqueue(ctx, records)
}

func (l *Logger) enqueue(ctx context.Context, records []capture.Record) error {
	if len(records) == 0 {
		return nil
	}
	scope, _ := auditctx.FromContext(ctx)
	return l.writer.Enqueue(ctx, records, scope)
}

// Shutdown drains the writer's queue and stops its background flusher.
// Afterwards, any call that hands records to the writer (a manual log call
// or a mutation through DB() on an audited table) returns a ShutdownClosed
// error; for a mutation, its own statement has already run by then.
func (l *Logger) Shutdown(ctx context.Context) error {
	return l.writer.Shutdown(ctx)
}
