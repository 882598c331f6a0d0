package index

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAddAndFacets(t *testing.T) {
	idx := New()

	assert.True(t, idx.Add(Entry{ID: "l1", Severity: "error", AppName: "api"}))
	assert.True(t, idx.Add(Entry{ID: "l2", Severity: "error", AppName: "worker"}))
	assert.True(t, idx.Add(Entry{ID: "l3", Severity: "info", AppName: "api"}))
	assert.False(t, idx.Add(Entry{ID: "l1", Severity: "error", AppName: "api"}), "duplicate ID")

	assert.Equal(t, 3, idx.Len())
	assert.True(t, idx.Has("l2"))
	assert.False(t, idx.Has("l9"))

	facets := idx.Facets()
	assert.Equal(t, uint64(2), facets.BySeverity["error"])
	assert.Equal(t, uint64(1), facets.BySeverity["info"])
	assert.Equal(t, uint64(2), facets.ByApp["api"])
}

func TestRebuild(t *testing.T) {
	idx := New()
	idx.Add(Entry{ID: "old", Severity: "warn"})

	idx.Rebuild([]Entry{
		{ID: "a", Severity: "info", AppName: "api"},
		{ID: "b", Severity: "info", AppName: "api"},
	})

	assert.Equal(t, 2, idx.Len())
	assert.False(t, idx.Has("old"))
	assert.Equal(t, uint64(2), idx.Facets().BySeverity["info"])
	assert.Empty(t, idx.Facets().BySeverity["warn"])
}

func TestEmptyDimensionsSkipped(t *testing.T) {
	idx := New()
	idx.Add(Entry{ID: "bare"})

	facets := idx.Facets()
	assert.Empty(t, facets.BySeverity)
	assert.Empty(t, facets.ByApp)
	assert.Equal(t, 1, idx.Len())
}
