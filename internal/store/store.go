// Package store implements the normalized entity store of an open document.
// It holds lines, models, materials, textures and geometries keyed by id in
// insertion order and knows nothing about the scene graph.
package store

import (
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"cadcore/internal/logging"
	"cadcore/pkg/domain"
)

// Store is the single source of truth for document entities. Every read
// returns a clone; callers never hold internal values.
type Store struct {
	mu         sync.RWMutex
	lines      *table[domain.Line]
	models     *table[domain.Model]
	materials  *table[domain.Material]
	textures   *table[domain.Texture]
	geometries *table[domain.Geometry]

	revision     uint64
	lastModified time.Time

	subMu  sync.Mutex
	subSeq int
	subs   map[int]func(domain.Change)

	nowFn  func() time.Time
	idFn   func() string
	schema domain.MetadataSchema
	logger *slog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.nowFn = now }
}

// WithIDGenerator overrides id allocation.
func WithIDGenerator(gen func() string) Option {
	return func(s *Store) { s.idFn = gen }
}

// WithSchema validates model metadata against schema on every write.
func WithSchema(schema domain.MetadataSchema) Option {
	return func(s *Store) { s.schema = schema }
}

// WithLogger sets the store logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// New constructs an empty store.
func New(opts ...Option) *Store {
	s := &Store{
		lines:      newTable(domain.CloneLine),
		models:     newTable(domain.CloneModel),
		materials:  newTable(domain.CloneMaterial),
		textures:   newTable(domain.CloneTexture),
		geometries: newTable(domain.CloneGeometry),
		subs:       make(map[int]func(domain.Change)),
		nowFn:      func() time.Time { return time.Now().UTC() },
		idFn:       uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = logging.Or(s.logger).With("component", "store")
	return s
}

// NewID allocates a fresh entity id.
func (s *Store) NewID() string { return s.idFn() }

// Schema returns the configured metadata schema, nil when unrestricted.
func (s *Store) Schema() domain.MetadataSchema { return s.schema }

// Revision increments on every successful mutation.
func (s *Store) Revision() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.revision
}

// LastModified returns the time of the most recent mutation.
func (s *Store) LastModified() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastModified
}

// Subscribe registers fn for every change. The returned func unsubscribes.
// Callbacks run after the store lock is released.
func (s *Store) Subscribe(fn func(domain.Change)) func() {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	s.subSeq++
	id := s.subSeq
	s.subs[id] = fn
	return func() {
		s.subMu.Lock()
		delete(s.subs, id)
		s.subMu.Unlock()
	}
}

func (s *Store) notify(changes ...domain.Change) {
	if len(changes) == 0 {
		return
	}
	s.subMu.Lock()
	ids := make([]int, 0, len(s.subs))
	for id := range s.subs {
		ids = append(ids, id)
	}
	fns := make([]func(domain.Change), 0, len(ids))
	slices.Sort(ids)
	for _, id := range ids {
		fns = append(fns, s.subs[id])
	}
	s.subMu.Unlock()
	for _, c := range changes {
		for _, fn := range fns {
			fn(c)
		}
	}
}

// touch must be called with mu held.
func (s *Store) touch(now time.Time) {
	s.revision++
	s.lastModified = now
}

func (s *Store) tableFor(kind domain.EntityKind) (entityTable, error) {
	switch kind {
	case domain.KindLine:
		return s.lines, nil
	case domain.KindModel:
		return s.models, nil
	case domain.KindMaterial:
		return s.materials, nil
	case domain.KindTexture:
		return s.textures, nil
	case domain.KindGeometry:
		return s.geometries, nil
	}
	return nil, fmt.Errorf("unknown entity kind %q", kind)
}

func (s *Store) validate(e domain.Entity) error {
	if m, ok := e.(domain.Model); ok {
		if err := s.schema.Validate(m.Metadata); err != nil {
			return fmt.Errorf("model %s: %w", m.ID, err)
		}
	}
	return nil
}

// stamp fills the id and timestamps. Entities that already carry a creation
// time keep their timestamps so restored records round-trip unchanged.
func stamp(e domain.Entity, id string, now time.Time, restore bool) domain.Entity {
	apply := func(b *domain.Base) {
		if restore && !b.CreatedAt.IsZero() {
			if b.ID == "" {
				b.ID = id
			}
			return
		}
		b.Stamp(id, now)
	}
	switch v := domain.Clone(e).(type) {
	case domain.Line:
		apply(&v.Base)
		return v
	case domain.Model:
		apply(&v.Base)
		return v
	case domain.Material:
		apply(&v.Base)
		return v
	case domain.Texture:
		apply(&v.Base)
		return v
	case domain.Geometry:
		apply(&v.Base)
		return v
	}
	return e
}

func touched(e domain.Entity, createdAt, now time.Time) domain.Entity {
	apply := func(b *domain.Base) {
		b.CreatedAt = createdAt
		b.Touch(now)
	}
	switch v := e.(type) {
	case domain.Line:
		apply(&v.Base)
		return v
	case domain.Model:
		apply(&v.Base)
		return v
	case domain.Material:
		apply(&v.Base)
		return v
	case domain.Texture:
		apply(&v.Base)
		return v
	case domain.Geometry:
		apply(&v.Base)
		return v
	}
	return e
}

func createdAt(e domain.Entity) time.Time {
	switch v := e.(type) {
	case domain.Line:
		return v.CreatedAt
	case domain.Model:
		return v.CreatedAt
	case domain.Material:
		return v.CreatedAt
	case domain.Texture:
		return v.CreatedAt
	case domain.Geometry:
		return v.CreatedAt
	}
	return time.Time{}
}
