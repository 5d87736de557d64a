package writer

// Schema is the DDL for the audit_logs table, documented (not executed)
// here per spec.md §1 ("schema migrations for the audit table" are out of
// scope) — callers run this through their own migration tooling. Column
// names follow DefaultColumnMap; remapped configurations should adjust the
// DDL accordingly.
const Schema = `
CREATE TABLE IF NOT EXISTS audit_logs (
    id uuid PRIMARY KEY DEFAULT gen_random_uuid(),
    user_id text NULL,
    ip_address text NULL,
    user_agent text NULL,
    action text NOT NULL,
    table_name text NOT NULL,
    record_id text NOT NULL,
    values jsonb NULL,
    metadata jsonb NULL,
    transaction_id text NULL,
    created_at timestamptz NOT NULL DEFAULT now(),
    deleted_at timestamptz NULL
);
`
