// Package index maintains a small in-memory facet index over the
// records currently accumulated in a view, using Roaring bitmaps. It
// answers "how many visible records per severity / per application"
// and deduplicates live events against rows already present.
package index

import (
	"sync"

	"github.com/RoaringBitmap/roaring/v2"
)

// Entry is the indexable slice of one record.
type Entry struct {
	ID       string
	Severity string
	AppName  string
}

// Facets holds per-dimension counts over the indexed records.
type Facets struct {
	BySeverity map[string]uint64
	ByApp      map[string]uint64
}

// Index is a thread-safe facet index. Rebuild replaces its contents
// whenever the accumulated list is replaced; Add extends it for
// appended pages and live prepends.
type Index struct {
	mu sync.RWMutex

	idToDoc    map[string]uint32
	nextDocID  uint32
	bySeverity map[string]*roaring.Bitmap
	byApp      map[string]*roaring.Bitmap
}

// New creates an empty index.
func New() *Index {
	return &Index{
		idToDoc:    make(map[string]uint32),
		bySeverity: make(map[string]*roaring.Bitmap),
		byApp:      make(map[string]*roaring.Bitmap),
	}
}

// Add indexes one record. Returns false if the ID was already present.
func (idx *Index) Add(entry Entry) bool {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	return idx.addLocked(entry)
}

// Rebuild replaces the index contents with the given entries.
func (idx *Index) Rebuild(entries []Entry) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	idx.idToDoc = make(map[string]uint32, len(entries))
	idx.nextDocID = 0
	idx.bySeverity = make(map[string]*roaring.Bitmap)
	idx.byApp = make(map[string]*roaring.Bitmap)
	for _, entry := range entries {
		idx.addLocked(entry)
	}
}

func (idx *Index) addLocked(entry Entry) bool {
	if _, exists := idx.idToDoc[entry.ID]; exists {
		return false
	}
	docID := idx.nextDocID
	idx.nextDocID++
	idx.idToDoc[entry.ID] = docID

	if entry.Severity != "" {
		addToBitmap(idx.bySeverity, entry.Severity, docID)
	}
	if entry.AppName != "" {
		addToBitmap(idx.byApp, entry.AppName, docID)
	}
	return true
}

// Has reports whether a record ID is already indexed.
func (idx *Index) Has(id string) bool {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	_, ok := idx.idToDoc[id]
	return ok
}

// Len returns the number of indexed records.
func (idx *Index) Len() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.idToDoc)
}

// Facets returns the current per-dimension counts.
func (idx *Index) Facets() Facets {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	facets := Facets{
		BySeverity: make(map[string]uint64, len(idx.bySeverity)),
		ByApp:      make(map[string]uint64, len(idx.byApp)),
	}
	for severity, bitmap := range idx.bySeverity {
		facets.BySeverity[severity] = bitmap.GetCardinality()
	}
	for app, bitmap := range idx.byApp {
		facets.ByApp[app] = bitmap.GetCardinality()
	}
	return facets
}

func addToBitmap(bitmaps map[string]*roaring.Bitmap, key string, docID uint32) {
	bitmap, ok := bitmaps[key]
	if !ok {
		bitmap = roaring.New()
		bitmaps[key] = bitmap
	}
	bitmap.Add(docID)
}
