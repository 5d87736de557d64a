// Package pk extracts a deterministic string primary key from a captured
// row, per spec.md §4.2.
package pk

import (
	"fmt"
	"sort"
	"strings"

	"github.com/lattice-data/pgaudit/internal/auditerr"
)

// Spec describes the configured primary key for a table: either a single
// column or an ordered composite.
type Spec struct {
	Columns []string
}

// Single reports whether this spec names exactly one column.
func (s Spec) Single() bool { return len(s.Columns) == 1 }

// Extract resolves the primary key of row for table, per spec.md §4.2:
// a missing spec or missing key column(s) fail; a single key stringifies
// directly; a composite key serializes through the safe JSON encoder,
// falling back to a lossy-but-stable composite key on encode failure.
func Extract(row map[string]any, table string, spec Spec) (string, error) {
	if len(spec.Columns) == 0 {
		return "", auditerr.Configuration("primaryKey required for table %s", table)
	}

	values := make([]any, len(spec.Columns))
	for i, col := range spec.Columns {
		v, ok := row[col]
		if !ok || v == nil {
			return "", auditerr.Capture("record missing configured primaryKey field(s) for table %s", table)
		}
		values[i] = v
	}

	if len(spec.Columns) == 1 {
		return stringify(values[0]), nil
	}

	ordered := make(orderedMap, len(spec.Columns))
	for i, col := range spec.Columns {
		ordered[i] = kv{key: col, value: values[i]}
	}

	encoded, err := encodeSafe(ordered)
	if err != nil {
		return fallbackKey(spec.Columns), nil
	}
	return encoded, nil
}

func fallbackKey(cols []string) string {
	sorted := append([]string(nil), cols...)
	sort.Strings(sorted)
	return fmt.Sprintf("composite_key_%s_%d", strings.Join(sorted, "_"), len(cols))
}

func stringify(v any) string {
	return fmt.Sprint(v)
}
