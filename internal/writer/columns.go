package writer

// ColumnMap remaps the audit_logs table's logical column names to the
// physical column names used in SQL, per spec.md §3's "Column names are
// remappable via a configurable column map" rule.
type ColumnMap struct {
	ID            string
	UserID        string
	IPAddress     string
	UserAgent     string
	Action        string
	TableName     string
	RecordID      string
	Values        string
	Metadata      string
	TransactionID string
	CreatedAt     string
}

// DefaultColumnMap matches the schema documented in SPEC_FULL.md §6.
func DefaultColumnMap() ColumnMap {
	return ColumnMap{
		ID:            "id",
		UserID:        "user_id",
		IPAddress:     "ip_address",
		UserAgent:     "user_agent",
		Action:        "action",
		TableName:     "table_name",
		RecordID:      "record_id",
		Values:        "values",
		Metadata:      "metadata",
		TransactionID: "transaction_id",
		CreatedAt:     "created_at",
	}
}
