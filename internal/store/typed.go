package store

import (
	"cadcore/pkg/domain"
)

func create[T domain.Entity](s *Store, v T) (T, error) {
	stored, err := s.insert(-1, v, false)
	if err != nil {
		var zero T
		return zero, err
	}
	return stored.(T), nil
}

func get[T domain.Entity](s *Store, t *table[T], id string) (T, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return t.get(id)
}

func list[T domain.Entity](s *Store, t *table[T]) []T {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return t.values()
}

// update applies fn to a copy of the stored value. The id cannot change.
func update[T domain.Entity](s *Store, t *table[T], kind domain.EntityKind, id string, fn func(*T)) bool {
	s.mu.Lock()
	before, ok := t.get(id)
	if !ok {
		s.mu.Unlock()
		s.logger.Debug("update of absent entity", "kind", kind, "id", id)
		return false
	}
	next := t.clone(before)
	fn(&next)
	now := s.nowFn()
	stored := touched(domain.WithID(next, id), createdAt(before), now).(T)
	if err := s.validate(stored); err != nil {
		s.mu.Unlock()
		s.logger.Warn("rejected update", "kind", kind, "id", id, "error", err)
		return false
	}
	t.set(stored)
	s.touch(now)
	s.mu.Unlock()

	s.notify(domain.Change{Kind: kind, ID: id, Action: domain.ActionUpdate, Before: before, After: t.clone(stored)})
	return true
}

// CreateLine stores l, allocating an id when empty.
func (s *Store) CreateLine(l domain.Line) (domain.Line, error) { return create(s, l) }

// Line returns the line with id.
func (s *Store) Line(id string) (domain.Line, bool) { return get(s, s.lines, id) }

// UpdateLine mutates a stored line. Absent ids return false.
func (s *Store) UpdateLine(id string, fn func(*domain.Line)) bool {
	return update(s, s.lines, domain.KindLine, id, fn)
}

// RemoveLine deletes the line with id.
func (s *Store) RemoveLine(id string) bool {
	_, ok := s.Remove(domain.KindLine, id)
	return ok
}

// Lines returns every line in insertion order.
func (s *Store) Lines() []domain.Line { return list(s, s.lines) }

// CreateModel stores m, allocating an id when empty.
func (s *Store) CreateModel(m domain.Model) (domain.Model, error) { return create(s, m) }

// Model returns the model with id.
func (s *Store) Model(id string) (domain.Model, bool) { return get(s, s.models, id) }

// UpdateModel mutates a stored model. Absent ids and schema violations return false.
func (s *Store) UpdateModel(id string, fn func(*domain.Model)) bool {
	return update(s, s.models, domain.KindModel, id, fn)
}

// RemoveModel deletes the model with id.
func (s *Store) RemoveModel(id string) bool {
	_, ok := s.Remove(domain.KindModel, id)
	return ok
}

// Models returns every model in insertion order.
func (s *Store) Models() []domain.Model { return list(s, s.models) }

// CreateMaterial stores m, allocating an id when empty.
func (s *Store) CreateMaterial(m domain.Material) (domain.Material, error) { return create(s, m) }

// Material returns the material with id.
func (s *Store) Material(id string) (domain.Material, bool) { return get(s, s.materials, id) }

// UpdateMaterial mutates a stored material.
func (s *Store) UpdateMaterial(id string, fn func(*domain.Material)) bool {
	return update(s, s.materials, domain.KindMaterial, id, fn)
}

// RemoveMaterial deletes the material with id.
func (s *Store) RemoveMaterial(id string) bool {
	_, ok := s.Remove(domain.KindMaterial, id)
	return ok
}

// Materials returns every material in insertion order.
func (s *Store) Materials() []domain.Material { return list(s, s.materials) }

// CreateTexture stores t, allocating an id when empty.
func (s *Store) CreateTexture(t domain.Texture) (domain.Texture, error) { return create(s, t) }

// Texture returns the texture with id.
func (s *Store) Texture(id string) (domain.Texture, bool) { return get(s, s.textures, id) }

// UpdateTexture mutates a stored texture.
func (s *Store) UpdateTexture(id string, fn func(*domain.Texture)) bool {
	return update(s, s.textures, domain.KindTexture, id, fn)
}

// RemoveTexture deletes the texture with id.
func (s *Store) RemoveTexture(id string) bool {
	_, ok := s.Remove(domain.KindTexture, id)
	return ok
}

// Textures returns every texture in insertion order.
func (s *Store) Textures() []domain.Texture { return list(s, s.textures) }

// CreateGeometry stores g, allocating an id when empty.
func (s *Store) CreateGeometry(g domain.Geometry) (domain.Geometry, error) { return create(s, g) }

// Geometry returns the geometry with id.
func (s *Store) Geometry(id string) (domain.Geometry, bool) { return get(s, s.geometries, id) }

// UpdateGeometry mutates a stored geometry.
func (s *Store) UpdateGeometry(id string, fn func(*domain.Geometry)) bool {
	return update(s, s.geometries, domain.KindGeometry, id, fn)
}

// RemoveGeometry deletes the geometry with id.
func (s *Store) RemoveGeometry(id string) bool {
	_, ok := s.Remove(domain.KindGeometry, id)
	return ok
}

// Geometries returns every geometry in insertion order.
func (s *Store) Geometries() []domain.Geometry { return list(s, s.geometries) }
