// Package layer maintains the ordered layer list of a document, including the
// reserved system layer and the current-layer pointer.
package layer

import (
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"cogentcore.org/core/base/keylist"
	"github.com/google/uuid"

	"cadcore/internal/logging"
	"cadcore/pkg/domain"
)

// EventKind classifies registry notifications.
type EventKind string

// Registry event kinds.
const (
	EventAdded   EventKind = "added"
	EventUpdated EventKind = "updated"
	EventRemoved EventKind = "removed"
	EventReset   EventKind = "reset"
)

// Event describes a layer mutation. Before is zero for additions, After for removals.
type Event struct {
	Kind   EventKind
	ID     string
	Before domain.Layer
	After  domain.Layer
}

// DisplayChanged reports whether the event alters how entities on the layer render.
func (e Event) DisplayChanged() bool {
	switch e.Kind {
	case EventAdded, EventRemoved, EventReset:
		return true
	}
	return e.Before.Visible != e.After.Visible || e.Before.EffectiveOpacity() != e.After.EffectiveOpacity()
}

// Registry holds the system layer followed by user layers in display order.
type Registry struct {
	mu      sync.RWMutex
	layers  keylist.List[string, domain.Layer]
	current string

	subMu  sync.Mutex
	subSeq int
	subs   map[int]func(Event)

	idFn   func() string
	logger *slog.Logger
}

// Option configures a Registry.
type Option func(*Registry)

// WithIDGenerator overrides layer id allocation.
func WithIDGenerator(gen func() string) Option {
	return func(r *Registry) { r.idFn = gen }
}

// WithLogger sets the registry logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Registry) { r.logger = l }
}

// SystemLayer returns the reserved layer definition.
func SystemLayer() domain.Layer {
	return domain.Layer{ID: domain.SystemLayerID, Name: "System", Color: "#808080", Visible: true, Locked: true}
}

// DefaultLayer returns the user layer every new document starts with.
func DefaultLayer() domain.Layer {
	return domain.Layer{ID: domain.DefaultLayerID, Name: "Layer 1", Color: "#ffffff", Visible: true}
}

// New creates a registry holding the system layer and the default user layer.
func New(opts ...Option) *Registry {
	r := &Registry{
		subs: make(map[int]func(Event)),
		idFn: uuid.NewString,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = logging.Or(r.logger).With("component", "layers")
	r.layers.Set(domain.SystemLayerID, SystemLayer())
	r.layers.Set(domain.DefaultLayerID, DefaultLayer())
	r.current = domain.DefaultLayerID
	return r
}

// Subscribe registers fn for layer events. The returned func unsubscribes.
func (r *Registry) Subscribe(fn func(Event)) func() {
	r.subMu.Lock()
	defer r.subMu.Unlock()
	r.subSeq++
	id := r.subSeq
	r.subs[id] = fn
	return func() {
		r.subMu.Lock()
		delete(r.subs, id)
		r.subMu.Unlock()
	}
}

func (r *Registry) notify(ev Event) {
	r.subMu.Lock()
	ids := make([]int, 0, len(r.subs))
	for id := range r.subs {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	fns := make([]func(Event), 0, len(ids))
	for _, id := range ids {
		fns = append(fns, r.subs[id])
	}
	r.subMu.Unlock()
	for _, fn := range fns {
		fn(ev)
	}
}

func validate(l domain.Layer) error {
	if l.Opacity != nil && (*l.Opacity < 0 || *l.Opacity > 1) {
		return fmt.Errorf("layer %s: opacity %v out of range [0,1]", l.ID, *l.Opacity)
	}
	return nil
}

// Add appends a user layer, allocating an id and name when empty.
func (r *Registry) Add(l domain.Layer) (domain.Layer, error) {
	r.mu.Lock()
	if l.ID == "" {
		l.ID = r.idFn()
	}
	if l.Name == "" {
		l.Name = fmt.Sprintf("Layer %d", r.layers.Len())
	}
	if err := r.checkInsert(l); err != nil {
		r.mu.Unlock()
		return domain.Layer{}, err
	}
	stored := domain.CloneLayer(l)
	r.layers.Set(l.ID, stored)
	r.mu.Unlock()

	r.notify(Event{Kind: EventAdded, ID: l.ID, After: domain.CloneLayer(stored)})
	return domain.CloneLayer(stored), nil
}

// checkInsert must be called with mu held.
func (r *Registry) checkInsert(l domain.Layer) error {
	if l.ID == domain.SystemLayerID {
		return domain.ErrInvariant{Rule: domain.RuleSystemLayer, Message: "system layer is reserved"}
	}
	if r.layers.IndexByKey(l.ID) >= 0 {
		return domain.ErrInvariant{Rule: domain.RuleDuplicateID, Message: "layer " + l.ID + " already exists"}
	}
	return validate(l)
}

// InsertAt places l at idx in the full list, after the system layer.
func (r *Registry) InsertAt(idx int, l domain.Layer) error {
	r.mu.Lock()
	if err := r.checkInsert(l); err != nil {
		r.mu.Unlock()
		return err
	}
	stored := domain.CloneLayer(l)
	switch {
	case idx < 1:
		r.layers.Insert(1, l.ID, stored)
	case idx >= r.layers.Len():
		r.layers.Set(l.ID, stored)
	default:
		r.layers.Insert(idx, l.ID, stored)
	}
	r.mu.Unlock()

	r.notify(Event{Kind: EventAdded, ID: l.ID, After: domain.CloneLayer(stored)})
	return nil
}

// Get returns the layer with id, including the system layer.
func (r *Registry) Get(id string) (domain.Layer, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	l, ok := r.layers.AtTry(id)
	if !ok {
		return domain.Layer{}, false
	}
	return domain.CloneLayer(l), true
}

// Update applies fn to a copy of the layer. The id is immutable and the
// system layer stays locked. Returns false for absent ids or invalid results.
func (r *Registry) Update(id string, fn func(*domain.Layer)) bool {
	r.mu.Lock()
	before, ok := r.layers.AtTry(id)
	if !ok {
		r.mu.Unlock()
		r.logger.Debug("update of absent layer", "id", id)
		return false
	}
	before = domain.CloneLayer(before)
	next := domain.CloneLayer(before)
	fn(&next)
	next.ID = id
	if next.IsSystem() && !next.Locked {
		r.mu.Unlock()
		r.logger.Warn("system layer cannot be unlocked")
		return false
	}
	if err := validate(next); err != nil {
		r.mu.Unlock()
		r.logger.Warn("rejected layer update", "id", id, "error", err)
		return false
	}
	r.layers.Set(id, next)
	r.mu.Unlock()

	r.notify(Event{Kind: EventUpdated, ID: id, Before: before, After: domain.CloneLayer(next)})
	return true
}

// SetVisibility shows or hides a layer.
func (r *Registry) SetVisibility(id string, visible bool) bool {
	return r.Update(id, func(l *domain.Layer) { l.Visible = visible })
}

// SetLocked locks or unlocks a layer. The system layer cannot be unlocked.
func (r *Registry) SetLocked(id string, locked bool) bool {
	return r.Update(id, func(l *domain.Layer) { l.Locked = locked })
}

// CanRemove explains why id cannot be removed, nil when removal is allowed.
func (r *Registry) CanRemove(id string) error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.canRemove(id)
}

func (r *Registry) canRemove(id string) error {
	if id == domain.SystemLayerID {
		return domain.ErrInvariant{Rule: domain.RuleSystemLayer, Message: "system layer cannot be removed"}
	}
	if r.layers.IndexByKey(id) < 0 {
		return domain.ErrNotFound{Kind: domain.LayerKind, ID: id}
	}
	if r.userCount() <= 1 {
		return domain.ErrInvariant{Rule: domain.RuleLayerFloor, Message: "at least one user layer must remain"}
	}
	return nil
}

// Remove deletes a user layer. It returns false for the system layer, absent
// ids and the last remaining user layer.
func (r *Registry) Remove(id string) bool {
	_, _, ok := r.RemoveAt(id)
	return ok
}

// RemoveAt deletes a user layer and reports its former index in the full list.
func (r *Registry) RemoveAt(id string) (domain.Layer, int, bool) {
	r.mu.Lock()
	if err := r.canRemove(id); err != nil {
		r.mu.Unlock()
		r.logger.Debug("layer removal rejected", "id", id, "reason", err)
		return domain.Layer{}, -1, false
	}
	idx := r.layers.IndexByKey(id)
	removed := r.layers.Values[idx]
	r.layers.DeleteByIndex(idx, idx+1)
	if r.current == id {
		r.current = r.layers.Keys[1]
	}
	r.mu.Unlock()

	r.notify(Event{Kind: EventRemoved, ID: id, Before: domain.CloneLayer(removed)})
	return domain.CloneLayer(removed), idx, true
}

// userCount must be called with mu held.
func (r *Registry) userCount() int {
	n := r.layers.Len()
	if r.layers.IndexByKey(domain.SystemLayerID) >= 0 {
		n--
	}
	return n
}

// UserCount returns the number of non-system layers.
func (r *Registry) UserCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.userCount()
}

// List returns the user layers in display order.
func (r *Registry) List() []domain.Layer {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.Layer, 0, r.layers.Len())
	for _, l := range r.layers.Values {
		if !l.IsSystem() {
			out = append(out, domain.CloneLayer(l))
		}
	}
	return out
}

// All returns every layer including the system layer.
func (r *Registry) All() []domain.Layer {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.Layer, 0, r.layers.Len())
	for _, l := range r.layers.Values {
		out = append(out, domain.CloneLayer(l))
	}
	return out
}

// Current returns the layer new entities default to.
func (r *Registry) Current() domain.Layer {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return domain.CloneLayer(r.layers.At(r.current))
}

// SetCurrent moves the current-layer pointer to a user layer.
func (r *Registry) SetCurrent(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if id == domain.SystemLayerID {
		return domain.ErrInvariant{Rule: domain.RuleSystemLayer, Message: "system layer cannot be current"}
	}
	if r.layers.IndexByKey(id) < 0 {
		return domain.ErrNotFound{Kind: domain.LayerKind, ID: id}
	}
	r.current = id
	return nil
}

// Visible reports the layer's visibility. Unknown and empty ids are visible.
func (r *Registry) Visible(id string) bool {
	l, ok := r.Get(id)
	return !ok || l.Visible
}

// Locked reports whether the layer rejects edits. Unknown ids are unlocked.
func (r *Registry) Locked(id string) bool {
	l, ok := r.Get(id)
	return ok && l.Locked
}

// Opacity returns the effective opacity, 1 for unknown ids.
func (r *Registry) Opacity(id string) float64 {
	l, ok := r.Get(id)
	if !ok {
		return 1
	}
	return l.EffectiveOpacity()
}

// Snapshot returns the user layers for persistence.
func (r *Registry) Snapshot() []domain.Layer { return r.List() }

// Restore replaces the user layers. The system layer is recreated and the
// current pointer kept when it still exists.
func (r *Registry) Restore(layers []domain.Layer) error {
	if len(layers) == 0 {
		return domain.ErrInvariant{Rule: domain.RuleLayerFloor, Message: "restore needs at least one user layer"}
	}
	seen := make(map[string]bool, len(layers))
	for _, l := range layers {
		switch {
		case l.ID == "":
			return fmt.Errorf("restore: layer without id")
		case l.IsSystem():
			return domain.ErrInvariant{Rule: domain.RuleSystemLayer, Message: "system layer is not persisted"}
		case seen[l.ID]:
			return domain.ErrInvariant{Rule: domain.RuleDuplicateID, Message: "layer " + l.ID}
		}
		if err := validate(l); err != nil {
			return err
		}
		seen[l.ID] = true
	}
	r.mu.Lock()
	r.layers.Reset()
	r.layers.Set(domain.SystemLayerID, SystemLayer())
	for _, l := range layers {
		r.layers.Set(l.ID, domain.CloneLayer(l))
	}
	if !seen[r.current] {
		r.current = layers[0].ID
	}
	r.mu.Unlock()

	r.notify(Event{Kind: EventReset})
	return nil
}
