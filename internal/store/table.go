package store

import (
	"cogentcore.org/core/base/keylist"

	"cadcore/pkg/domain"
)

// table is an insertion-ordered id index for one entity kind.
type table[T domain.Entity] struct {
	rows  keylist.List[string, T]
	clone func(T) T
}

func newTable[T domain.Entity](clone func(T) T) *table[T] {
	return &table[T]{clone: clone}
}

func (t *table[T]) get(id string) (T, bool) {
	v, ok := t.rows.AtTry(id)
	if !ok {
		return v, false
	}
	return t.clone(v), true
}

func (t *table[T]) has(id string) bool {
	return t.rows.IndexByKey(id) >= 0
}

func (t *table[T]) insertAt(idx int, v T) {
	if idx < 0 || idx >= t.rows.Len() {
		_ = t.rows.Add(v.EntityID(), t.clone(v))
		return
	}
	t.rows.Insert(idx, v.EntityID(), t.clone(v))
}

func (t *table[T]) set(v T) {
	t.rows.Set(v.EntityID(), t.clone(v))
}

func (t *table[T]) remove(id string) (T, int, bool) {
	idx := t.rows.IndexByKey(id)
	if idx < 0 {
		var zero T
		return zero, -1, false
	}
	v := t.rows.Values[idx]
	t.rows.DeleteByIndex(idx, idx+1)
	return v, idx, true
}

func (t *table[T]) index(id string) int {
	return t.rows.IndexByKey(id)
}

func (t *table[T]) values() []T {
	out := make([]T, 0, t.rows.Len())
	for _, v := range t.rows.Values {
		out = append(out, t.clone(v))
	}
	return out
}

func (t *table[T]) reset(vals []T) {
	t.rows.Reset()
	for _, v := range vals {
		t.rows.Set(v.EntityID(), t.clone(v))
	}
}

func (t *table[T]) len() int { return t.rows.Len() }

// entityTable is the kind-erased view used by the dispatching API.
type entityTable interface {
	getEntity(id string) (domain.Entity, bool)
	hasEntity(id string) bool
	insertEntity(idx int, e domain.Entity)
	setEntity(e domain.Entity)
	removeEntity(id string) (domain.Entity, int, bool)
	indexOf(id string) int
	entities() []domain.Entity
	size() int
}

func (t *table[T]) getEntity(id string) (domain.Entity, bool) {
	v, ok := t.get(id)
	if !ok {
		return nil, false
	}
	return v, true
}

func (t *table[T]) hasEntity(id string) bool { return t.has(id) }

func (t *table[T]) insertEntity(idx int, e domain.Entity) { t.insertAt(idx, e.(T)) }

func (t *table[T]) setEntity(e domain.Entity) { t.set(e.(T)) }

func (t *table[T]) removeEntity(id string) (domain.Entity, int, bool) {
	v, idx, ok := t.remove(id)
	if !ok {
		return nil, -1, false
	}
	return v, idx, true
}

func (t *table[T]) indexOf(id string) int { return t.index(id) }

func (t *table[T]) entities() []domain.Entity {
	out := make([]domain.Entity, 0, t.rows.Len())
	for _, v := range t.rows.Values {
		out = append(out, t.clone(v))
	}
	return out
}

func (t *table[T]) size() int { return t.len() }
