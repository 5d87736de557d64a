package capture

// FilterFields returns a new map containing exactly the columns of row
// that are permitted for table: present in cfg.Fields[table] when that
// allowlist is configured (otherwise every column), and never a member of
// cfg.ExcludeFields.
func FilterFields(row map[string]any, table string, cfg Config) map[string]any {
	allow, hasAllow := cfg.Fields[table]
	out := make(map[string]any, len(row))

	if hasAllow {
		for _, col := range allow {
			if cfg.ExcludeFields[col] {
				continue
			}
			if v, ok := row[col]; ok {
				out[col] = v
			}
		}
		return out
	}

	for col, v := range row {
		if cfg.ExcludeFields[col] {
			continue
		}
		out[col] = v
	}
	return out
}

// ChangedValues returns the subset of after whose value differs from
// before by structural equality, per spec.md §4.3. A key present only in
// after counts as changed. Returns an empty, non-nil map when nothing
// changed.
func ChangedValues(before, after map[string]any) map[string]any {
	changed := make(map[string]any)
	for k, av := range after {
		bv, existed := before[k]
		if !existed || !structEqual(bv, av) {
			changed[k] = av
		}
	}
	return changed
}
