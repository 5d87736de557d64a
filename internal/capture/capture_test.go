package capture

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lattice-data/pgaudit/internal/pk"
)

func TestFilterFields_AllowlistAndExclusion(t *testing.T) {
	cfg := Config{
		Fields:        map[string][]string{"users": {"id", "email", "password"}},
		ExcludeFields: map[string]bool{"password": true},
	}
	row := map[string]any{"id": 1, "email": "a@x", "password": "secret", "name": "A"}

	out := FilterFields(row, "users", cfg)
	assert.Equal(t, map[string]any{"id": 1, "email": "a@x"}, out)
}

func TestFilterFields_NoAllowlistExcludesGlobally(t *testing.T) {
	cfg := Config{ExcludeFields: map[string]bool{"token": true}}
	row := map[string]any{"id": 1, "token": "abc", "name": "A"}

	out := FilterFields(row, "sessions", cfg)
	assert.Equal(t, map[string]any{"id": 1, "name": "A"}, out)
}

func TestChangedValues(t *testing.T) {
	before := map[string]any{"name": "A", "age": 30}
	after := map[string]any{"name": "B", "age": 30, "city": "NYC"}

	changed := ChangedValues(before, after)
	assert.Equal(t, map[string]any{"name": "B", "city": "NYC"}, changed)
}

func TestChangedValues_NoneChanged(t *testing.T) {
	before := map[string]any{"name": "A"}
	after := map[string]any{"name": "A"}

	changed := ChangedValues(before, after)
	assert.Empty(t, changed)
	assert.NotNil(t, changed)
}

func TestChangedValues_TimeEquality(t *testing.T) {
	ts := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	before := map[string]any{"updatedAt": ts}
	after := map[string]any{"updatedAt": ts.In(time.FixedZone("x", 3600))}

	changed := ChangedValues(before, after)
	assert.Empty(t, changed)
}

func TestInsertAuditLogs(t *testing.T) {
	cfg := Config{TableConfig: map[string]pk.Spec{"users": {Columns: []string{"id"}}}}
	rows := []map[string]any{
		{"id": 1, "email": "a@x"},
		nil,
		{"id": 2, "email": "b@x"},
	}

	records, err := InsertAuditLogs("users", rows, cfg)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "INSERT", records[0].Action)
	assert.Equal(t, "1", records[0].RecordID)
	assert.Equal(t, "2", records[1].RecordID)
}

func TestUpdateAuditLogs_FullMode(t *testing.T) {
	cfg := Config{
		TableConfig: map[string]pk.Spec{"users": {Columns: []string{"id"}}},
		UpdateFull:  true,
	}
	after := []map[string]any{{"id": 1, "name": "B"}}

	records, err := UpdateAuditLogs("users", nil, after, cfg)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, map[string]any{"id": 1, "name": "B"}, records[0].Values)
}

func TestUpdateAuditLogs_ChangedOnly(t *testing.T) {
	cfg := Config{TableConfig: map[string]pk.Spec{"users": {Columns: []string{"id"}}}}
	before := []map[string]any{{"id": 1, "name": "A", "age": 30}}
	after := []map[string]any{{"id": 1, "name": "B", "age": 30}}

	records, err := UpdateAuditLogs("users", before, after, cfg)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, map[string]any{"name": "B"}, records[0].Values)
}

func TestUpdateAuditLogs_NoChangeSkipsRecord(t *testing.T) {
	cfg := Config{TableConfig: map[string]pk.Spec{"users": {Columns: []string{"id"}}}}
	before := []map[string]any{{"id": 1, "name": "A"}}
	after := []map[string]any{{"id": 1, "name": "A"}}

	records, err := UpdateAuditLogs("users", before, after, cfg)
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestUpdateAuditLogs_UnpairedRowFallsBackToFull(t *testing.T) {
	cfg := Config{TableConfig: map[string]pk.Spec{"users": {Columns: []string{"id"}}}}
	before := []map[string]any{{"id": 1, "name": "A"}}
	after := []map[string]any{{"id": 2, "name": "B"}}

	records, err := UpdateAuditLogs("users", before, after, cfg)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "2", records[0].RecordID)
	assert.Equal(t, map[string]any{"id": 2, "name": "B"}, records[0].Values)
}
