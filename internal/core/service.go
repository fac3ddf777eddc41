package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"cadcore/internal/history"
	"cadcore/internal/logging"
	"cadcore/pkg/domain"
)

// Service opens, creates and persists documents through a DocumentStore.
type Service struct {
	docs     domain.DocumentStore
	docOpts  []Option
	autosave bool
	now      func() time.Time
	newID    func() string
	logger   *slog.Logger
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithAutosave persists a document after every history operation that left
// it dirty.
func WithAutosave(enabled bool) ServiceOption {
	return func(s *Service) { s.autosave = enabled }
}

// WithDocumentOptions applies opts to every document the service opens.
func WithDocumentOptions(opts ...Option) ServiceOption {
	return func(s *Service) { s.docOpts = append(s.docOpts, opts...) }
}

// WithServiceLogger sets the service logger.
func WithServiceLogger(l *slog.Logger) ServiceOption {
	return func(s *Service) { s.logger = l }
}

// WithServiceClock overrides the time used to stamp saves.
func WithServiceClock(now func() time.Time) ServiceOption {
	return func(s *Service) { s.now = now }
}

// WithDocumentIDs overrides document id allocation.
func WithDocumentIDs(gen func() string) ServiceOption {
	return func(s *Service) { s.newID = gen }
}

// NewService constructs a service backed by the supplied store.
func NewService(docs domain.DocumentStore, opts ...ServiceOption) *Service {
	s := &Service{docs: docs, now: time.Now, newID: uuid.NewString}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = logging.Or(s.logger).With("component", "service")
	return s
}

// Store returns the underlying document store.
func (s *Service) Store() domain.DocumentStore { return s.docs }

// Create starts an empty document and persists it so it shows up in List.
func (s *Service) Create(ctx context.Context, name string) (*Document, error) {
	id := s.newID()
	if name == "" {
		name = "Untitled"
	}
	d := NewDocument(id, name, s.docOpts...)
	if err := s.Save(ctx, d); err != nil {
		d.Close()
		return nil, err
	}
	s.attach(d)
	s.logger.Info("document created", "document", id, "name", name)
	return d, nil
}

// Open loads a stored document and rebuilds its scene.
func (s *Service) Open(ctx context.Context, id string) (*Document, error) {
	state, err := s.docs.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	d, err := LoadDocument(ctx, state, s.docOpts...)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", id, err)
	}
	s.attach(d)
	return d, nil
}

// OpenOrCreate opens id when it is stored and creates a new document otherwise.
func (s *Service) OpenOrCreate(ctx context.Context, id, name string) (*Document, error) {
	if id != "" {
		d, err := s.Open(ctx, id)
		var nf domain.ErrDocumentNotFound
		if !errors.As(err, &nf) {
			return d, err
		}
	}
	return s.Create(ctx, name)
}

// Save persists the current state of d and marks it clean.
func (s *Service) Save(ctx context.Context, d *Document) error {
	state := d.State()
	if now := s.now().UTC(); now.After(state.UpdatedAt) {
		state.UpdatedAt = now
	}
	if err := s.docs.Save(ctx, state); err != nil {
		return fmt.Errorf("save %s: %w", d.ID(), err)
	}
	d.MarkClean()
	s.logger.Info("document saved", "document", d.ID(), "entities", state.Entities.Len())
	return nil
}

// Import validates a persisted state by loading it, then stores it. The id
// is kept unless it is empty.
func (s *Service) Import(ctx context.Context, state domain.DocumentState) (domain.DocumentSummary, error) {
	if state.ID == "" {
		state.ID = s.newID()
	}
	d, err := LoadDocument(ctx, state, s.docOpts...)
	if err != nil {
		return domain.DocumentSummary{}, fmt.Errorf("import: %w", err)
	}
	defer d.Close()
	if err := d.Check(); err != nil {
		return domain.DocumentSummary{}, fmt.Errorf("import: %w", err)
	}
	out := d.State()
	out.UpdatedAt = state.UpdatedAt
	if out.UpdatedAt.IsZero() {
		out.UpdatedAt = s.now().UTC()
	}
	if err := s.docs.Save(ctx, out); err != nil {
		return domain.DocumentSummary{}, fmt.Errorf("import %s: %w", out.ID, err)
	}
	return out.Summary(), nil
}

// Export returns the stored state of id.
func (s *Service) Export(ctx context.Context, id string) (domain.DocumentState, error) {
	return s.docs.Load(ctx, id)
}

// List returns the stored documents, most recently updated first.
func (s *Service) List(ctx context.Context) ([]domain.DocumentSummary, error) {
	return s.docs.List(ctx)
}

// Delete removes a stored document.
func (s *Service) Delete(ctx context.Context, id string) (bool, error) {
	return s.docs.Delete(ctx, id)
}

// attach wires autosave for d.
func (s *Service) attach(d *Document) {
	if !s.autosave {
		return
	}
	d.onClose(d.History().Subscribe(func(history.State) {
		if !d.Dirty() {
			return
		}
		if err := s.Save(context.Background(), d); err != nil {
			s.logger.Error("autosave failed", "document", d.ID(), "error", err)
		}
	}))
}
