package query

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type record struct {
	ID      string         `json:"id"`
	Level   string         `json:"level"`
	Message string         `json:"message"`
	Attrs   map[string]any `json:"attrs,omitempty"`
}

func sample() []record {
	return []record{
		{ID: "l1", Level: "error", Message: "db timeout", Attrs: map[string]any{"host": "db-1"}},
		{ID: "l2", Level: "info", Message: "request ok"},
		{ID: "l3", Level: "error", Message: "db timeout", Attrs: map[string]any{"host": "db-2"}},
	}
}

func TestExtractField(t *testing.T) {
	result, err := Extract(sample(), ".level", 0)
	require.NoError(t, err)

	assert.Equal(t, 3, result.RawCount)
	assert.Equal(t, []any{"error", "info"}, result.Values, "duplicates collapsed")
	assert.Empty(t, result.Errors)
}

func TestExtractNestedField(t *testing.T) {
	result, err := Extract(sample(), ".attrs.host", 0)
	require.NoError(t, err)
	// Records without attrs yield null, which is skipped.
	assert.Equal(t, []any{"db-1", "db-2"}, result.Values)
}

func TestExtractMaxResults(t *testing.T) {
	result, err := Extract(sample(), ".id", 2)
	require.NoError(t, err)
	assert.Len(t, result.Values, 2)
}

func TestExtractInvalidExpression(t *testing.T) {
	_, err := Extract(sample(), ".level | foo(", 0)
	assert.Error(t, err)
}

func TestExtractEvalErrorIsCollected(t *testing.T) {
	result, err := Extract(sample(), ".message | length + .", 0)
	require.NoError(t, err)
	assert.NotEmpty(t, result.Errors)
}
