package capture

import "github.com/lattice-data/pgaudit/internal/pk"

// InsertAuditLogs builds one INSERT record per non-nil row, per spec.md
// §4.4.
func InsertAuditLogs(table string, rows []map[string]any, cfg Config) ([]Record, error) {
	return simpleAuditLogs("INSERT", table, rows, cfg)
}

// DeleteAuditLogs builds one DELETE record per non-nil row, symmetric
// with InsertAuditLogs per spec.md §4.4.
func DeleteAuditLogs(table string, rows []map[string]any, cfg Config) ([]Record, error) {
	return simpleAuditLogs("DELETE", table, rows, cfg)
}

func simpleAuditLogs(action, table string, rows []map[string]any, cfg Config) ([]Record, error) {
	var out []Record
	spec := cfg.TableConfig[table]
	for _, row := range rows {
		if row == nil {
			continue
		}
		id, err := pk.Extract(row, table, spec)
		if err != nil {
			return nil, err
		}
		out = append(out, Record{
			Action:    action,
			TableName: table,
			RecordID:  id,
			Values:    FilterFields(row, table, cfg),
		})
	}
	return out, nil
}

// UpdateAuditLogs builds UPDATE records per spec.md §4.4:
//
//   - if cfg.UpdateFull or before is empty, every after row is recorded in
//     full (before-state unavailable or not wanted);
//   - otherwise before rows are indexed by their primary key and paired
//     with the matching after row; a row with no match falls back to full
//     mode; a paired row is recorded only if the permitted columns
//     actually changed.
func UpdateAuditLogs(table string, before, after []map[string]any, cfg Config) ([]Record, error) {
	spec := cfg.TableConfig[table]

	if cfg.UpdateFull || len(before) == 0 {
		return simpleAuditLogs("UPDATE", table, after, cfg)
	}

	beforeByID := make(map[string]map[string]any, len(before))
	for _, row := range before {
		if row == nil {
			continue
		}
		id, err := pk.Extract(row, table, spec)
		if err != nil {
			return nil, err
		}
		beforeByID[id] = row
	}

	var out []Record
	for _, row := range after {
		if row == nil {
			continue
		}
		id, err := pk.Extract(row, table, spec)
		if err != nil {
			return nil, err
		}

		beforeRow, paired := beforeByID[id]
		if !paired {
			out = append(out, Record{
				Action:    "UPDATE",
				TableName: table,
				RecordID:  id,
				Values:    FilterFields(row, table, cfg),
			})
			continue
		}

		changed := ChangedValues(FilterFields(beforeRow, table, cfg), FilterFields(row, table, cfg))
		if len(changed) == 0 {
			continue
		}
		out = append(out, Record{
			Action:    "UPDATE",
			TableName: table,
			RecordID:  id,
			Values:    changed,
		})
	}
	return out, nil
}
