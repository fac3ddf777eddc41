package store

import (
	"errors"
	"fmt"
	"strings"

	"cadcore/pkg/domain"
)

// Get returns a clone of the entity, or false when absent.
func (s *Store) Get(kind domain.EntityKind, id string) (domain.Entity, bool) {
	t, err := s.tableFor(kind)
	if err != nil {
		return nil, false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return t.getEntity(id)
}

// Has reports whether ref resolves to a stored entity.
func (s *Store) Has(ref domain.Ref) bool {
	t, err := s.tableFor(ref.Kind)
	if err != nil {
		return false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return t.hasEntity(ref.ID)
}

// Insert appends e, allocating an id when empty.
func (s *Store) Insert(e domain.Entity) (domain.Entity, error) {
	return s.insert(-1, e, false)
}

// InsertAt places e at idx within its kind, appending when idx is out of
// range. Timestamps already present on e are preserved.
func (s *Store) InsertAt(idx int, e domain.Entity) (domain.Entity, error) {
	return s.insert(idx, e, true)
}

func (s *Store) insert(idx int, e domain.Entity, restore bool) (domain.Entity, error) {
	if e == nil {
		return nil, errors.New("insert nil entity")
	}
	t, err := s.tableFor(e.Kind())
	if err != nil {
		return nil, err
	}
	if err := s.validate(e); err != nil {
		return nil, err
	}
	s.mu.Lock()
	id := e.EntityID()
	if id == "" {
		id = s.idFn()
	}
	if t.hasEntity(id) {
		s.mu.Unlock()
		return nil, domain.ErrInvariant{Rule: domain.RuleDuplicateID, Message: fmt.Sprintf("%s %s already exists", e.Kind(), id)}
	}
	now := s.nowFn()
	stored := stamp(e, id, now, restore)
	t.insertEntity(idx, stored)
	s.touch(now)
	s.mu.Unlock()

	s.notify(domain.Change{Kind: stored.Kind(), ID: id, Action: domain.ActionCreate, After: domain.Clone(stored)})
	return domain.Clone(stored), nil
}

// Replace overwrites an existing entity wholesale, keeping its creation time.
func (s *Store) Replace(e domain.Entity) (domain.Entity, error) {
	if e == nil {
		return nil, errors.New("replace nil entity")
	}
	t, err := s.tableFor(e.Kind())
	if err != nil {
		return nil, err
	}
	if err := s.validate(e); err != nil {
		return nil, err
	}
	s.mu.Lock()
	before, ok := t.getEntity(e.EntityID())
	if !ok {
		s.mu.Unlock()
		return nil, domain.ErrNotFound{Kind: e.Kind(), ID: e.EntityID()}
	}
	now := s.nowFn()
	stored := touched(domain.Clone(e), createdAt(before), now)
	t.setEntity(stored)
	s.touch(now)
	s.mu.Unlock()

	s.notify(domain.Change{Kind: e.Kind(), ID: e.EntityID(), Action: domain.ActionUpdate, Before: before, After: domain.Clone(stored)})
	return domain.Clone(stored), nil
}

// Remove deletes the entity and returns the index it occupied. It never
// touches the scene; callers request node removal themselves.
func (s *Store) Remove(kind domain.EntityKind, id string) (int, bool) {
	t, err := s.tableFor(kind)
	if err != nil {
		return -1, false
	}
	s.mu.Lock()
	before, idx, ok := t.removeEntity(id)
	if !ok {
		s.mu.Unlock()
		s.logger.Debug("remove of absent entity", "kind", kind, "id", id)
		return -1, false
	}
	s.touch(s.nowFn())
	s.mu.Unlock()

	s.notify(domain.Change{Kind: kind, ID: id, Action: domain.ActionDelete, Before: before})
	return idx, true
}

// IndexOf returns the insertion position of the entity within its kind, -1 when absent.
func (s *Store) IndexOf(kind domain.EntityKind, id string) int {
	t, err := s.tableFor(kind)
	if err != nil {
		return -1
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return t.indexOf(id)
}

// List returns every entity of kind in insertion order.
func (s *Store) List(kind domain.EntityKind) []domain.Entity {
	t, err := s.tableFor(kind)
	if err != nil {
		return nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return t.entities()
}

// SetField applies a single named field edit.
func (s *Store) SetField(ref domain.Ref, field string, value any) (domain.Entity, error) {
	cur, ok := s.Get(ref.Kind, ref.ID)
	if !ok {
		return nil, domain.ErrNotFound{Kind: ref.Kind, ID: ref.ID}
	}
	if key, ok := strings.CutPrefix(field, "metadata."); ok && ref.Kind == domain.KindModel {
		if err := s.schema.ValidateValue(key, value); err != nil {
			return nil, err
		}
	}
	next, err := domain.SetField(cur, field, value)
	if err != nil {
		return nil, err
	}
	return s.Replace(next)
}

// Len returns the number of stored entities across kinds.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lines.len() + s.models.len() + s.materials.len() + s.textures.len() + s.geometries.len()
}

// EntitiesOnLayer lists the lines and models placed on layerID, lines first,
// each in insertion order.
func (s *Store) EntitiesOnLayer(layerID string) []domain.Ref {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Ref
	for _, l := range s.lines.rows.Values {
		if l.LayerID == layerID {
			out = append(out, domain.RefOf(l))
		}
	}
	for _, m := range s.models.rows.Values {
		if m.LayerID == layerID {
			out = append(out, domain.RefOf(m))
		}
	}
	return out
}

// ModelsReferencing returns the ids of models that use the material, texture
// or geometry id, directly or through a material property.
func (s *Store) ModelsReferencing(id string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	materials := map[string]bool{id: true}
	for _, mat := range s.materials.rows.Values {
		if referencesValue(mat.Properties, id) {
			materials[mat.ID] = true
		}
	}
	var out []string
	for _, m := range s.models.rows.Values {
		if m.GeometryID == id || (m.MaterialID != "" && materials[m.MaterialID]) {
			out = append(out, m.ID)
		}
	}
	return out
}

// MaterialsReferencing returns the ids of materials whose properties hold textureID.
func (s *Store) MaterialsReferencing(textureID string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []string
	for _, mat := range s.materials.rows.Values {
		if referencesValue(mat.Properties, textureID) {
			out = append(out, mat.ID)
		}
	}
	return out
}

func referencesValue(bag map[string]any, id string) bool {
	for _, v := range bag {
		if s, ok := v.(string); ok && s == id {
			return true
		}
	}
	return false
}

// Snapshot returns a deep copy of every entity.
func (s *Store) Snapshot() domain.EntitySet {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return domain.EntitySet{
		Lines:      s.lines.values(),
		Models:     s.models.values(),
		Materials:  s.materials.values(),
		Textures:   s.textures.values(),
		Geometries: s.geometries.values(),
	}
}

// Restore replaces the full contents with set. Subscribers are not notified;
// a restore starts a new baseline.
func (s *Store) Restore(set domain.EntitySet) error {
	seen := make(map[domain.Ref]bool, set.Len())
	check := func(e domain.Entity) error {
		ref := domain.RefOf(e)
		if ref.ID == "" {
			return fmt.Errorf("restore: %s without id", ref.Kind)
		}
		if seen[ref] {
			return domain.ErrInvariant{Rule: domain.RuleDuplicateID, Message: ref.String()}
		}
		seen[ref] = true
		return s.validate(e)
	}
	for _, l := range set.Lines {
		if err := check(l); err != nil {
			return err
		}
	}
	for _, m := range set.Models {
		if err := check(m); err != nil {
			return err
		}
	}
	for _, m := range set.Materials {
		if err := check(m); err != nil {
			return err
		}
	}
	for _, t := range set.Textures {
		if err := check(t); err != nil {
			return err
		}
	}
	for _, g := range set.Geometries {
		if err := check(g); err != nil {
			return err
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lines.reset(set.Lines)
	s.models.reset(set.Models)
	s.materials.reset(set.Materials)
	s.textures.reset(set.Textures)
	s.geometries.reset(set.Geometries)
	s.touch(s.nowFn())
	return nil
}
