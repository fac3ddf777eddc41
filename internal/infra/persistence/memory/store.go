// Package memory keeps documents in process memory.
package memory

import (
	"context"
	"errors"
	"sync"

	"cadcore/pkg/domain"
)

var _ domain.DocumentStore = (*Store)(nil)

// Store is a map of deep-copied document states.
type Store struct {
	mu   sync.RWMutex
	docs map[string]domain.DocumentState
}

// New returns an empty store.
func New() *Store { return &Store{docs: make(map[string]domain.DocumentState)} }

// Save implements domain.DocumentStore.
func (s *Store) Save(_ context.Context, st domain.DocumentState) error {
	if st.ID == "" {
		return errors.New("save: document id required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs[st.ID] = st.Clone()
	return nil
}

// Load implements domain.DocumentStore.
func (s *Store) Load(_ context.Context, id string) (domain.DocumentState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.docs[id]
	if !ok {
		return domain.DocumentState{}, domain.ErrDocumentNotFound{ID: id}
	}
	return st.Clone(), nil
}

// List implements domain.DocumentStore.
func (s *Store) List(context.Context) ([]domain.DocumentSummary, error) {
	s.mu.RLock()
	out := make([]domain.DocumentSummary, 0, len(s.docs))
	for _, st := range s.docs {
		out = append(out, st.Summary())
	}
	s.mu.RUnlock()
	domain.SortSummaries(out)
	return out, nil
}

// Delete implements domain.DocumentStore.
func (s *Store) Delete(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.docs[id]
	delete(s.docs, id)
	return ok, nil
}
