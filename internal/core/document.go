// Package core assembles the document components into editing sessions and
// persists them through a domain.DocumentStore.
package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"cadcore/internal/commands"
	"cadcore/internal/history"
	"cadcore/internal/layer"
	"cadcore/internal/logging"
	"cadcore/internal/observability"
	"cadcore/internal/scene"
	"cadcore/internal/store"
	"cadcore/pkg/domain"
)

// sceneGauge is implemented by recorders that export the live node count.
type sceneGauge interface {
	SetSceneNodes(n int)
}

type docConfig struct {
	loader   scene.AssetLoader
	maxDepth int
	metrics  observability.MetricsRecorder
	tracer   observability.Tracer
	logger   *slog.Logger
	now      func() time.Time
	idFn     func() string
	schema   domain.MetadataSchema
	onError  func(error)
}

// Option configures a Document.
type Option func(*docConfig)

// WithAssetLoader sets the loader used to resolve model paths.
func WithAssetLoader(l scene.AssetLoader) Option {
	return func(c *docConfig) { c.loader = l }
}

// WithMaxDepth caps the undo stack.
func WithMaxDepth(n int) Option {
	return func(c *docConfig) { c.maxDepth = n }
}

// WithMetrics records history operations and the scene node count.
func WithMetrics(rec observability.MetricsRecorder) Option {
	return func(c *docConfig) { c.metrics = rec }
}

// WithTracer wraps history operations in spans.
func WithTracer(tr observability.Tracer) Option {
	return func(c *docConfig) { c.tracer = tr }
}

// WithLogger sets the logger shared by every component of the document.
func WithLogger(l *slog.Logger) Option {
	return func(c *docConfig) { c.logger = l }
}

// WithClock overrides the time source of the entity store.
func WithClock(now func() time.Time) Option {
	return func(c *docConfig) { c.now = now }
}

// WithIDGenerator overrides entity and layer id allocation.
func WithIDGenerator(gen func() string) Option {
	return func(c *docConfig) { c.idFn = gen }
}

// WithSchema validates model metadata on every write.
func WithSchema(schema domain.MetadataSchema) Option {
	return func(c *docConfig) { c.schema = schema }
}

// WithBuildErrorHandler receives scene build failures.
func WithBuildErrorHandler(fn func(error)) Option {
	return func(c *docConfig) { c.onError = fn }
}

// Document is one open drawing: the entity store as the source of truth, its
// layers, the derived scene and the undo history.
type Document struct {
	id        string
	name      string
	createdAt time.Time

	store   *store.Store
	layers  *layer.Registry
	scene   *scene.Synchronizer
	history *history.History
	env     *commands.Env

	metrics observability.MetricsRecorder
	logger  *slog.Logger

	mu       sync.Mutex
	dirty    bool
	watchers []func()
	closers  []func()
	isClosed bool
}

// NewDocument returns an empty document with the default layer.
func NewDocument(id, name string, opts ...Option) *Document {
	cfg := docConfig{now: time.Now}
	for _, opt := range opts {
		opt(&cfg)
	}
	logger := logging.Or(cfg.logger)

	storeOpts := []store.Option{store.WithLogger(logger), store.WithClock(cfg.now)}
	layerOpts := []layer.Option{layer.WithLogger(logger)}
	if cfg.idFn != nil {
		storeOpts = append(storeOpts, store.WithIDGenerator(cfg.idFn))
		layerOpts = append(layerOpts, layer.WithIDGenerator(cfg.idFn))
	}
	if cfg.schema != nil {
		storeOpts = append(storeOpts, store.WithSchema(cfg.schema))
	}
	st := store.New(storeOpts...)
	layers := layer.New(layerOpts...)

	sceneOpts := []scene.Option{scene.WithLogger(logger)}
	if cfg.loader != nil {
		sceneOpts = append(sceneOpts, scene.WithAssetLoader(cfg.loader))
	}
	if cfg.onError != nil {
		sceneOpts = append(sceneOpts, scene.WithErrorHandler(cfg.onError))
	}
	sc := scene.New(st, layers, sceneOpts...)

	d := &Document{
		id:        id,
		name:      name,
		createdAt: cfg.now().UTC(),
		store:     st,
		layers:    layers,
		scene:     sc,
		history: history.New(
			history.WithMaxDepth(cfg.maxDepth),
			history.WithMetrics(cfg.metrics),
			history.WithTracer(cfg.tracer),
			history.WithLogger(logger),
		),
		env:     commands.NewEnv(st, layers, sc, logger),
		metrics: cfg.metrics,
		logger:  logger.With("component", "document", "document", id),
	}
	d.watch()
	return d
}

// LoadDocument rebuilds a document from persisted state and resyncs the
// scene. Model loads may still be pending on return; see Scene().Await.
func LoadDocument(ctx context.Context, state domain.DocumentState, opts ...Option) (*Document, error) {
	if state.ID == "" {
		return nil, errors.New("load document: id required")
	}
	d := NewDocument(state.ID, state.Name, opts...)
	if !state.CreatedAt.IsZero() {
		d.createdAt = state.CreatedAt
	}
	if err := d.replace(ctx, state); err != nil {
		d.Close()
		return nil, err
	}
	return d, nil
}

// replace swaps in persisted content without dirtying the document.
func (d *Document) replace(ctx context.Context, state domain.DocumentState) error {
	d.unwatch()
	defer d.watch()
	if err := d.store.Restore(state.Entities); err != nil {
		return fmt.Errorf("restore entities: %w", err)
	}
	if len(state.Layers) > 0 {
		if err := d.layers.Restore(state.Layers); err != nil {
			return fmt.Errorf("restore layers: %w", err)
		}
	}
	rep := d.scene.ResyncAll(ctx)
	d.history.Clear()
	d.env.Selection.Clear()
	d.updateGauge()
	d.logger.Info("document loaded",
		"entities", d.store.Len(),
		"layers", d.layers.UserCount(),
		"built", rep.Built,
		"pending", rep.Pending,
		"failed", len(rep.Failed))
	return nil
}

func (d *Document) watch() {
	unStore := d.store.Subscribe(func(domain.Change) { d.markDirty() })
	unLayers := d.layers.Subscribe(func(layer.Event) { d.markDirty() })
	d.mu.Lock()
	d.watchers = append(d.watchers, unStore, unLayers)
	d.mu.Unlock()
}

func (d *Document) unwatch() {
	d.mu.Lock()
	watchers := d.watchers
	d.watchers = nil
	d.mu.Unlock()
	for _, fn := range watchers {
		fn()
	}
}

func (d *Document) markDirty() {
	d.mu.Lock()
	d.dirty = true
	d.mu.Unlock()
}

// ID returns the document id.
func (d *Document) ID() string { return d.id }

// Name returns the display name.
func (d *Document) Name() string { return d.name }

// Store returns the entity store.
func (d *Document) Store() *store.Store { return d.store }

// Layers returns the layer registry.
func (d *Document) Layers() *layer.Registry { return d.layers }

// Scene returns the scene synchronizer.
func (d *Document) Scene() *scene.Synchronizer { return d.scene }

// History returns the undo history.
func (d *Document) History() *history.History { return d.history }

// Env returns the command environment used to construct commands.
func (d *Document) Env() *commands.Env { return d.env }

// Dirty reports whether the document changed since it was loaded or saved.
func (d *Document) Dirty() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dirty
}

// MarkClean resets the dirty flag after a successful save.
func (d *Document) MarkClean() {
	d.mu.Lock()
	d.dirty = false
	d.mu.Unlock()
}

// Execute runs cmd through the history.
func (d *Document) Execute(ctx context.Context, cmd history.Command) error {
	err := d.history.Execute(ctx, cmd)
	d.updateGauge()
	return err
}

// Undo reverts the last command.
func (d *Document) Undo(ctx context.Context) bool {
	ok := d.history.Undo(ctx)
	d.updateGauge()
	return ok
}

// Redo re-applies the last undone command.
func (d *Document) Redo(ctx context.Context) bool {
	ok := d.history.Redo(ctx)
	d.updateGauge()
	return ok
}

func (d *Document) updateGauge() {
	if g, ok := d.metrics.(sceneGauge); ok {
		g.SetSceneNodes(d.scene.Len())
	}
}

// State returns the persistable layout of the document. UpdatedAt is the
// store's last modification, or the creation time for untouched documents.
func (d *Document) State() domain.DocumentState {
	updated := d.store.LastModified()
	if updated.IsZero() {
		updated = d.createdAt
	}
	return domain.DocumentState{
		ID:        d.id,
		Name:      d.name,
		CreatedAt: d.createdAt,
		UpdatedAt: updated.UTC(),
		Entities:  d.store.Snapshot(),
		Layers:    d.layers.Snapshot(),
	}
}

// Check verifies the cross-component invariants: the system layer exists and
// is locked, every layered entity points at a registered layer and no scene
// node outlives its entity.
func (d *Document) Check() error {
	var errs []error
	if sys, ok := d.layers.Get(domain.SystemLayerID); !ok || !sys.Locked {
		errs = append(errs, domain.ErrInvariant{Rule: domain.RuleSystemLayer, Message: "system layer missing or unlocked"})
	}
	if d.layers.UserCount() == 0 {
		errs = append(errs, domain.ErrInvariant{Rule: domain.RuleLayerFloor, Message: "no user layers"})
	}
	for _, kind := range []domain.EntityKind{domain.KindLine, domain.KindModel} {
		for _, e := range d.store.List(kind) {
			if id := e.Layer(); id != "" {
				if _, ok := d.layers.Get(id); !ok {
					errs = append(errs, domain.ErrInvariant{Rule: domain.RuleDanglingLayer, Message: domain.RefOf(e).String() + " on " + id})
				}
			}
		}
	}
	for _, id := range d.scene.Orphans(d.store) {
		errs = append(errs, domain.ErrInvariant{Rule: domain.RuleOrphanNode, Message: id})
	}
	return errors.Join(errs...)
}

// Close releases subscriptions and cancels pending asset loads.
func (d *Document) Close() {
	d.mu.Lock()
	if d.isClosed {
		d.mu.Unlock()
		return
	}
	d.isClosed = true
	closers := d.closers
	d.closers = nil
	d.mu.Unlock()
	for _, fn := range closers {
		fn()
	}
	d.unwatch()
	d.env.Close()
	d.scene.Close()
}

// onClose registers fn to run when the document closes.
func (d *Document) onClose(fn func()) {
	d.mu.Lock()
	d.closers = append(d.closers, fn)
	d.mu.Unlock()
}
