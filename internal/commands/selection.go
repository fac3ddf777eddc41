package commands

import (
	"slices"
	"sync"
)

// Selection is the ordered set of selected entity ids.
type Selection struct {
	mu  sync.RWMutex
	ids []string
}

// NewSelection returns an empty selection.
func NewSelection() *Selection { return &Selection{} }

// IDs returns the selected ids in selection order.
func (s *Selection) IDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.ids)
}

// Set replaces the selection, dropping duplicates and empty ids.
func (s *Selection) Set(ids []string) {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id != "" && !slices.Contains(out, id) {
			out = append(out, id)
		}
	}
	s.mu.Lock()
	s.ids = out
	s.mu.Unlock()
}

// Contains reports whether id is selected.
func (s *Selection) Contains(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Contains(s.ids, id)
}

// Remove deselects id and reports whether it was selected.
func (s *Selection) Remove(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := slices.Index(s.ids, id)
	if i < 0 {
		return false
	}
	s.ids = slices.Delete(s.ids, i, i+1)
	return true
}

// Clear empties the selection.
func (s *Selection) Clear() { s.Set(nil) }

// Len returns the number of selected ids.
func (s *Selection) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.ids)
}
