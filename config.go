package pgaudit

import (
	"time"

	"github.com/lattice-data/pgaudit/internal/auditerr"
	"github.com/lattice-data/pgaudit/internal/pk"
	"github.com/lattice-data/pgaudit/internal/writer"
)

// UpdateValuesMode selects how UPDATE audit records record changed data.
type UpdateValuesMode string

const (
	// UpdateValuesFull snapshots the full after-row on every UPDATE.
	UpdateValuesFull UpdateValuesMode = "full"
	// UpdateValuesChanged records only the columns that actually changed.
	UpdateValuesChanged UpdateValuesMode = "changed"
)

// TableConfig configures the primary key(s) of an audited table, per
// spec.md §3's tableConfigMap.
type TableConfig struct {
	// PrimaryKey is a single column name or an ordered list of columns
	// for a composite key.
	PrimaryKey []string
}

// Config is the normalized configuration of a Logger, per spec.md §3.
type Config struct {
	// Tables is either {"*"} (audit everything) or the explicit set of
	// audited table names.
	Tables []string

	// Fields restricts captured columns per table; a table with no entry
	// captures every column (minus ExcludeFields).
	Fields map[string][]string

	// ExcludeFields is the set of column names redacted from every
	// captured table. Defaults to {password, token, secret, apiKey}.
	ExcludeFields []string

	// TableConfigMap configures primary keys per table.
	TableConfigMap map[string]TableConfig

	// AuditTable is the target table for persisted audit rows. Defaults
	// to "audit_logs".
	AuditTable string

	// ColumnMap remaps audit_logs' logical columns to physical ones.
	ColumnMap writer.ColumnMap

	// StrictMode, if true, propagates capture/write/queue failures to
	// the caller instead of logging and continuing.
	StrictMode bool

	// WaitForWrite, if true, makes LogInsert/LogUpdate/LogDelete and
	// audited mutation calls wait for the triggered flush (if any) to
	// complete before returning.
	WaitForWrite bool

	// BatchSize is the flush size trigger. Defaults to 100.
	BatchSize int

	// FlushInterval is the periodic flush trigger. Defaults to 5s.
	FlushInterval time.Duration

	// MaxQueueSize bounds the writer's queue. Defaults to 10000.
	MaxQueueSize int

	// UpdateValuesMode selects full-row vs. diff-only UPDATE recording.
	// Defaults to UpdateValuesChanged.
	UpdateValuesMode UpdateValuesMode

	// GetUserID and GetMetadata supply ambient defaults merged under
	// per-call context, per spec.md §3.
	GetUserID   func() string
	GetMetadata func() map[string]any

	// LogError receives non-fatal errors (queue overflow, write
	// failures) in lenient mode. Defaults to the component logger.
	LogError func(msg string, err error)
}

var defaultExcludeFields = []string{"password", "token", "secret", "apiKey"}

// normalize fills in defaults and validates cross-field invariants,
// returning a *auditerr.Error synchronously for anything malformed, per
// spec.md §7 ("ConfigurationError ... raised synchronously at logger
// construction").
func (c Config) normalize() (Config, error) {
	out := c

	if len(out.Tables) == 0 {
		return out, auditerr.Configuration("at least one audited table (or \"*\") is required")
	}

	if out.ExcludeFields == nil {
		out.ExcludeFields = append([]string(nil), defaultExcludeFields...)
	}
	if out.AuditTable == "" {
		out.AuditTable = "audit_logs"
	}
	if (out.ColumnMap == writer.ColumnMap{}) {
		out.ColumnMap = writer.DefaultColumnMap()
	}
	if out.BatchSize <= 0 {
		out.BatchSize = 100
	}
	if out.FlushInterval <= 0 {
		out.FlushInterval = 5 * time.Second
	}
	if out.MaxQueueSize <= 0 {
		out.MaxQueueSize = 10000
	}
	if out.UpdateValuesMode == "" {
		out.UpdateValuesMode = UpdateValuesChanged
	}
	if out.GetUserID == nil {
		out.GetUserID = func() string { return "" }
	}
	if out.GetMetadata == nil {
		out.GetMetadata = func() map[string]any { return nil }
	}

	return out, nil
}

func (c Config) isWildcard() bool {
	return len(c.Tables) == 1 && c.Tables[0] == "*"
}

func (c Config) tableConfigSpecs() map[string]pk.Spec {
	specs := make(map[string]pk.Spec, len(c.TableConfigMap))
	for table, tc := range c.TableConfigMap {
		specs[table] = pk.Spec{Columns: tc.PrimaryKey}
	}
	return specs
}

func (c Config) excludeFieldSet() map[string]bool {
	set := make(map[string]bool, len(c.ExcludeFields))
	for _, f := range c.ExcludeFields {
		set[f] = true
	}
	return set
}

func (c Config) tableSet() map[string]bool {
	set := make(map[string]bool, len(c.Tables))
	for _, t := range c.Tables {
		set[t] = true
	}
	return set
}
