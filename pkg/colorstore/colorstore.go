// Package colorstore assigns stable display colors to identifiers
// (application names, session IDs) and persists the assignment map
// across sessions in one namespaced JSON file.
//
// Persistence is best-effort: any storage failure (missing directory,
// permissions, malformed file) degrades to in-memory-only behavior
// without surfacing an error to the caller.
package colorstore

import (
	"bytes"
	"encoding/json"
	"hash/fnv"
	"log/slog"
	"os"
	"sync"

	"github.com/natefinch/atomic"
)

// palette holds the color names the dashboard understands.
var palette = []string{
	"red", "orange", "amber", "green", "teal",
	"blue", "indigo", "purple", "pink", "slate",
}

// Store is a thread-safe color-assignment map.
type Store struct {
	mu     sync.Mutex
	path   string
	colors map[string]string
}

// Open loads the stored assignment map from path. An empty path, a
// missing file or a malformed file all yield an empty in-memory map.
func Open(path string) *Store {
	s := &Store{path: path, colors: make(map[string]string)}
	if path == "" {
		return s
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			slog.Debug("color map unreadable", slog.String("path", path), slog.String("error", err.Error()))
		}
		return s
	}
	var stored map[string]string
	if err := json.Unmarshal(data, &stored); err != nil {
		slog.Debug("color map malformed, starting empty", slog.String("path", path))
		return s
	}
	s.colors = stored
	return s
}

// ColorFor returns the color assigned to id, assigning and persisting
// one deterministically if the id is new.
func (s *Store) ColorFor(id string) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if color, ok := s.colors[id]; ok {
		return color
	}
	color := hashColor(id)
	s.colors[id] = color
	s.writeLocked()
	return color
}

// Assignments returns a copy of the current assignment map.
func (s *Store) Assignments() map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := make(map[string]string, len(s.colors))
	for id, color := range s.colors {
		copied[id] = color
	}
	return copied
}

// Clear drops all assignments and removes the stored file.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.colors = make(map[string]string)
	if s.path == "" {
		return
	}
	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		slog.Debug("removing color map failed", slog.String("path", s.path), slog.String("error", err.Error()))
	}
}

// writeLocked persists the map. Failures leave the in-memory state
// authoritative.
func (s *Store) writeLocked() {
	if s.path == "" {
		return
	}
	data, err := json.Marshal(s.colors)
	if err != nil {
		return
	}
	if err := atomic.WriteFile(s.path, bytes.NewReader(data)); err != nil {
		slog.Debug("writing color map failed", slog.String("path", s.path), slog.String("error", err.Error()))
	}
}

// hashColor picks a palette entry by FNV-1a hash, so an identifier
// keeps its color even when the stored map is lost.
func hashColor(id string) string {
	h := fnv.New32a()
	h.Write([]byte(id))
	return palette[int(h.Sum32())%len(palette)]
}
