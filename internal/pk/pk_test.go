package pk

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtract_SingleKey(t *testing.T) {
	row := map[string]any{"id": 42, "email": "a@x"}
	id, err := Extract(row, "users", Spec{Columns: []string{"id"}})
	require.NoError(t, err)
	assert.Equal(t, "42", id)
}

func TestExtract_MissingSpec(t *testing.T) {
	_, err := Extract(map[string]any{"id": 1}, "users", Spec{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "primaryKey required for table users")
}

func TestExtract_MissingColumn(t *testing.T) {
	_, err := Extract(map[string]any{"other": 1}, "users", Spec{Columns: []string{"id"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing configured primaryKey")
}

func TestExtract_CompositeKeyDeterministic(t *testing.T) {
	row := map[string]any{"orgId": "org1", "entryId": "e1"}
	spec := Spec{Columns: []string{"orgId", "entryId"}}

	id1, err := Extract(row, "entries", spec)
	require.NoError(t, err)
	id2, err := Extract(row, "entries", spec)
	require.NoError(t, err)
	assert.Equal(t, id1, id2)
	assert.Contains(t, id1, `"orgId":"org1"`)
	assert.Contains(t, id1, `"entryId":"e1"`)
}

func TestExtract_BigIntegerCompositeKey(t *testing.T) {
	big, ok := new(big.Int).SetString("9007199254740991", 10)
	require.True(t, ok)

	row := map[string]any{"orgId": big, "entryId": "e1"}
	id, err := Extract(row, "entries", Spec{Columns: []string{"orgId", "entryId"}})
	require.NoError(t, err)
	assert.Contains(t, id, `"9007199254740991"`)
	assert.Contains(t, id, `"entryId":"e1"`)
}

func TestExtract_CircularMetadataFallsBackToLiteral(t *testing.T) {
	self := map[string]any{}
	self["self"] = self

	row := map[string]any{"orgId": self, "entryId": "e1"}
	id, err := Extract(row, "entries", Spec{Columns: []string{"orgId", "entryId"}})
	require.NoError(t, err)
	assert.Contains(t, id, "[Circular]")
}
