package scene

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"sort"
	"sync"

	"cadcore/internal/logging"
	"cadcore/pkg/domain"
)

// EntitySource is the read side of the entity store the synchronizer projects.
type EntitySource interface {
	Get(kind domain.EntityKind, id string) (domain.Entity, bool)
	List(kind domain.EntityKind) []domain.Entity
	ModelsReferencing(id string) []string
	EntitiesOnLayer(layerID string) []domain.Ref
}

// LayerSource resolves layer display attributes.
type LayerSource interface {
	Get(id string) (domain.Layer, bool)
}

// Stats reports live resource accounting.
type Stats struct {
	Nodes        int `json:"nodes"`
	Resources    int `json:"resources"`
	PendingLoads int `json:"pendingLoads"`
	Built        int `json:"built"`
	TornDown     int `json:"tornDown"`
	Cancelled    int `json:"cancelled"`
	Discarded    int `json:"discarded"`
	Failures     int `json:"failures"`
}

// Report summarizes a full resync.
type Report struct {
	Built   int
	Pending int
	Failed  []error
}

// Synchronizer maintains the id to node index. Mutating calls run on the
// caller's goroutine; asset loads complete in the background and are applied
// by Pump or Await.
type Synchronizer struct {
	source EntitySource
	layers LayerSource
	loader AssetLoader
	peeker AssetPeeker

	mu        sync.RWMutex
	nodes     map[string]*liveNode
	pending   map[string]*pendingLoad
	syncing   map[string]bool
	resources int
	stats     Stats
	loadSeq   uint64

	queue *completionQueue

	subMu  sync.Mutex
	subSeq int
	subs   map[int]func(Event)

	onError func(error)
	logger  *slog.Logger
}

// Option configures a Synchronizer.
type Option func(*Synchronizer)

// WithAssetLoader sets the loader used by model builders. Loaders that also
// implement AssetPeeker get synchronous cache hits.
func WithAssetLoader(l AssetLoader) Option {
	return func(s *Synchronizer) {
		s.loader = l
		s.peeker, _ = l.(AssetPeeker)
	}
}

// WithErrorHandler receives every build failure.
func WithErrorHandler(fn func(error)) Option {
	return func(s *Synchronizer) { s.onError = fn }
}

// WithLogger sets the synchronizer logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Synchronizer) { s.logger = l }
}

// New builds a synchronizer over source and layers.
func New(source EntitySource, layers LayerSource, opts ...Option) *Synchronizer {
	s := &Synchronizer{
		source:  source,
		layers:  layers,
		nodes:   make(map[string]*liveNode),
		pending: make(map[string]*pendingLoad),
		syncing: make(map[string]bool),
		queue:   newCompletionQueue(),
		subs:    make(map[int]func(Event)),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = logging.Or(s.logger).With("component", "scene")
	return s
}

// Subscribe registers fn for node upserts and removals.
func (s *Synchronizer) Subscribe(fn func(Event)) func() {
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

func (s *Synchronizer) emit(ev Event) {
	s.subMu.Lock()
	ids := make([]int, 0, len(s.subs))
	for id := range s.subs {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	fns := make([]func(Event), 0, len(ids))
	for _, id := range ids {
		fns = append(fns, s.subs[id])
	}
	s.subMu.Unlock()
	for _, fn := range fns {
		fn(ev)
	}
}

func (s *Synchronizer) fail(ref domain.Ref, err error) error {
	bf := buildError(ref, err)
	s.mu.Lock()
	s.stats.Failures++
	s.mu.Unlock()
	s.logger.Warn("scene build failed", "ref", ref.String(), "error", err)
	if s.onError != nil {
		s.onError(bf)
	}
	return bf
}

// Sync rebuilds the node for ref from current store data. An absent entity
// removes its node. Materials, textures and geometries re-sync the models
// that reference them. Build failures leave the entity nodeless and are
// returned as domain.ErrBuildFailure.
func (s *Synchronizer) Sync(ctx context.Context, ref domain.Ref) error {
	if !ref.Kind.HasScenePresence() {
		var errs []error
		for _, id := range s.source.ModelsReferencing(ref.ID) {
			if err := s.Sync(ctx, domain.Ref{Kind: domain.KindModel, ID: id}); err != nil {
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	if s.syncing[ref.ID] {
		s.mu.Unlock()
		return domain.ErrReentrant
	}
	if p, ok := s.pending[ref.ID]; ok {
		p.dirty = true
		s.mu.Unlock()
		return nil
	}
	s.syncing[ref.ID] = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.syncing, ref.ID)
		s.mu.Unlock()
	}()

	e, ok := s.source.Get(ref.Kind, ref.ID)
	if !ok {
		s.Remove(ref.ID)
		return nil
	}
	had := s.teardown(ref.ID)

	switch v := e.(type) {
	case domain.Line:
		s.attach(s.buildLine(v))
		return nil
	case domain.Model:
		err := s.syncModel(ctx, v)
		// A pending or failed rebuild leaves a gap feeds must hear about.
		if had && !s.has(ref.ID) {
			s.emit(Event{Kind: EventRemove, ID: ref.ID})
		}
		return err
	}
	return nil
}

func (s *Synchronizer) has(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.nodes[id]
	return ok
}

func (s *Synchronizer) syncModel(ctx context.Context, m domain.Model) error {
	ref := domain.RefOf(m)
	if m.Path == "" {
		s.attach(s.buildModel(m, nil))
		return nil
	}
	if s.peeker != nil {
		if asset, ok := s.peeker.Peek(m.Path); ok {
			s.attach(s.buildModel(m, &asset))
			return nil
		}
	}
	if s.loader == nil {
		return s.fail(ref, assetError(m.Path, errNoLoader))
	}
	s.startLoad(ctx, ref, m.Path)
	return nil
}

// attach indexes a freshly built node and notifies subscribers.
func (s *Synchronizer) attach(n liveNode) {
	s.mu.Lock()
	s.nodes[n.node.ID] = &n
	s.resources += len(n.resources)
	s.stats.Built++
	s.mu.Unlock()
	s.emit(Event{Kind: EventUpsert, ID: n.node.ID, Node: n.node.clone()})
}

// teardown releases the node's resources and drops it from the index.
func (s *Synchronizer) teardown(id string) bool {
	s.mu.Lock()
	n, ok := s.nodes[id]
	if ok {
		s.resources -= len(n.resources)
		s.stats.TornDown++
		delete(s.nodes, id)
	}
	s.mu.Unlock()
	return ok
}

// Remove tears down the node for id and cancels any pending load. Absent ids are a no-op.
func (s *Synchronizer) Remove(id string) {
	s.mu.Lock()
	if p, ok := s.pending[id]; ok {
		p.cancel()
		delete(s.pending, id)
		s.stats.Cancelled++
	}
	s.mu.Unlock()
	if s.teardown(id) {
		s.emit(Event{Kind: EventRemove, ID: id})
	}
}

// RefreshLayer re-syncs every entity placed on layerID.
func (s *Synchronizer) RefreshLayer(ctx context.Context, layerID string) error {
	var errs []error
	for _, ref := range s.source.EntitiesOnLayer(layerID) {
		if err := s.Sync(ctx, ref); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// ResyncAll tears down every node and rebuilds lines then models in store
// order. Failures are reported but never abort the batch.
func (s *Synchronizer) ResyncAll(ctx context.Context) Report {
	s.mu.Lock()
	ids := make([]string, 0, len(s.nodes)+len(s.pending))
	for id := range s.nodes {
		ids = append(ids, id)
	}
	for id := range s.pending {
		if _, ok := s.nodes[id]; !ok {
			ids = append(ids, id)
		}
	}
	s.mu.Unlock()
	sort.Strings(ids)
	for _, id := range ids {
		s.Remove(id)
	}

	var rep Report
	for _, kind := range []domain.EntityKind{domain.KindLine, domain.KindModel} {
		for _, e := range s.source.List(kind) {
			if err := s.Sync(ctx, domain.RefOf(e)); err != nil {
				rep.Failed = append(rep.Failed, err)
			}
		}
	}
	s.mu.RLock()
	rep.Built = len(s.nodes)
	rep.Pending = len(s.pending)
	s.mu.RUnlock()
	s.logger.Info("scene resynced", "nodes", rep.Built, "pending", rep.Pending, "failed", len(rep.Failed))
	return rep
}

// GetNode returns a value copy of the node for id.
func (s *Synchronizer) GetNode(id string) (Node, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, ok := s.nodes[id]
	if !ok {
		return Node{}, false
	}
	return n.node.clone(), true
}

// Nodes returns copies of every node sorted by id.
func (s *Synchronizer) Nodes() []Node {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Node, 0, len(s.nodes))
	for _, n := range s.nodes {
		out = append(out, n.node.clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Len returns the number of live nodes.
func (s *Synchronizer) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.nodes)
}

// Pending reports whether a load for id is in flight.
func (s *Synchronizer) Pending(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.pending[id]
	return ok
}

// Stats returns resource accounting counters.
func (s *Synchronizer) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st := s.stats
	st.Nodes = len(s.nodes)
	st.Resources = s.resources
	st.PendingLoads = len(s.pending)
	return st
}

// Orphans lists node ids whose entity no longer exists in source.
func (s *Synchronizer) Orphans(source EntitySource) []string {
	if source == nil {
		source = s.source
	}
	s.mu.RLock()
	refs := make([]domain.Ref, 0, len(s.nodes))
	for _, n := range s.nodes {
		refs = append(refs, n.node.Ref())
	}
	s.mu.RUnlock()
	var out []string
	for _, ref := range refs {
		if _, ok := source.Get(ref.Kind, ref.ID); !ok {
			out = append(out, ref.ID)
		}
	}
	sort.Strings(out)
	return out
}
