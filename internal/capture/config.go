// Package capture implements field filtering, before/after diffing, and
// the INSERT/UPDATE/DELETE record transforms of spec.md §4.3–§4.4.
package capture

import "github.com/lattice-data/pgaudit/internal/pk"

// Config is the subset of the normalized logger configuration the capture
// transforms need: per-table column allowlists, a global redaction set,
// per-table primary key specs, and the full-vs-changed update policy.
type Config struct {
	Fields        map[string][]string
	ExcludeFields map[string]bool
	TableConfig   map[string]pk.Spec
	UpdateFull    bool
}

// Record is the in-memory audit record of spec.md §3, prior to context
// attachment (done by the writer at persist time).
type Record struct {
	Action    string
	TableName string
	RecordID  string
	Values    map[string]any
	Metadata  map[string]any
}
