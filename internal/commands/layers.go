package commands

import (
	"context"
	"fmt"

	"cadcore/internal/history"
	"cadcore/pkg/domain"
)

// LayerProperty sets one field of a layer. Display changes reach the scene
// through the Env's layer subscription.
type LayerProperty struct {
	env     *Env
	layerID string
	field   string
	before  any
	after   any
}

// NewLayerProperty captures the current field value as before.
func NewLayerProperty(env *Env, layerID, field string, after any) (*LayerProperty, error) {
	l, ok := env.Layers.Get(layerID)
	if !ok {
		return nil, domain.ErrNotFound{Kind: domain.LayerKind, ID: layerID}
	}
	before, err := domain.GetLayerField(l, field)
	if err != nil {
		return nil, err
	}
	trial := domain.CloneLayer(l)
	if err := domain.SetLayerField(&trial, field, after); err != nil {
		return nil, err
	}
	return &LayerProperty{env: env, layerID: layerID, field: field, before: before, after: after}, nil
}

// NewLayerVisibility shows or hides a layer.
func NewLayerVisibility(env *Env, layerID string, visible bool) (*LayerProperty, error) {
	return NewLayerProperty(env, layerID, domain.FieldVisible, visible)
}

// NewLayerLock locks or unlocks a layer.
func NewLayerLock(env *Env, layerID string, locked bool) (*LayerProperty, error) {
	return NewLayerProperty(env, layerID, domain.FieldLocked, locked)
}

// Label implements history.Command.
func (c *LayerProperty) Label() string { return "Change layer " + c.field }

// Do implements history.Command.
func (c *LayerProperty) Do(context.Context) error { return c.apply(c.after) }

// Undo implements history.Command.
func (c *LayerProperty) Undo(context.Context) error { return c.apply(c.before) }

func (c *LayerProperty) apply(value any) error {
	var setErr error
	ok := c.env.Layers.Update(c.layerID, func(l *domain.Layer) {
		setErr = domain.SetLayerField(l, c.field, value)
	})
	if setErr != nil {
		return setErr
	}
	if !ok {
		if _, exists := c.env.Layers.Get(c.layerID); !exists {
			return domain.ErrNotFound{Kind: domain.LayerKind, ID: c.layerID}
		}
		return domain.ErrInvariant{Rule: domain.RuleSystemLayer, Message: fmt.Sprintf("layer %s rejected %s change", c.layerID, c.field)}
	}
	return nil
}

// AddLayer appends a user layer.
type AddLayer struct {
	env   *Env
	layer domain.Layer
	index int
}

// NewAddLayer allocates the layer id and name now so redo recreates the same
// layer.
func NewAddLayer(env *Env, l domain.Layer) *AddLayer {
	l = domain.CloneLayer(l)
	if l.ID == "" {
		l.ID = env.Store.NewID()
	}
	if l.Name == "" {
		l.Name = fmt.Sprintf("Layer %d", len(env.Layers.All()))
	}
	return &AddLayer{env: env, layer: l, index: -1}
}

// Label implements history.Command.
func (c *AddLayer) Label() string { return "Add layer" }

// Layer returns the layer the command adds.
func (c *AddLayer) Layer() domain.Layer { return domain.CloneLayer(c.layer) }

// Do implements history.Command.
func (c *AddLayer) Do(context.Context) error {
	if c.index < 0 {
		_, err := c.env.Layers.Add(c.layer)
		return err
	}
	return c.env.Layers.InsertAt(c.index, c.layer)
}

// Undo implements history.Command.
func (c *AddLayer) Undo(context.Context) error {
	if err := c.env.Layers.CanRemove(c.layer.ID); err != nil {
		return err
	}
	_, idx, ok := c.env.Layers.RemoveAt(c.layer.ID)
	if !ok {
		return domain.ErrNotFound{Kind: domain.LayerKind, ID: c.layer.ID}
	}
	c.index = idx
	return nil
}

// RemoveLayer deletes a user layer together with the entities on it.
type RemoveLayer struct {
	env      *Env
	id       string
	contents *history.Batch
	removed  domain.Layer
	index    int
	current  string
}

// NewRemoveLayer prepares the removal of layer id.
func NewRemoveLayer(env *Env, id string) *RemoveLayer {
	return &RemoveLayer{env: env, id: id, index: -1}
}

// Label implements history.Command.
func (c *RemoveLayer) Label() string { return "Remove layer" }

// Do implements history.Command.
func (c *RemoveLayer) Do(ctx context.Context) error {
	if err := c.env.Layers.CanRemove(c.id); err != nil {
		return err
	}
	c.current = c.env.Layers.Current().ID
	c.contents = NewRemoveObjects(c.env, c.env.Store.EntitiesOnLayer(c.id))
	if err := c.contents.Do(ctx); err != nil {
		return err
	}
	removed, idx, ok := c.env.Layers.RemoveAt(c.id)
	if !ok {
		if err := c.contents.Undo(ctx); err != nil {
			return err
		}
		return domain.ErrNotFound{Kind: domain.LayerKind, ID: c.id}
	}
	c.removed, c.index = removed, idx
	return nil
}

// Undo implements history.Command.
func (c *RemoveLayer) Undo(ctx context.Context) error {
	if c.index < 0 {
		return fmt.Errorf("remove layer %s: nothing captured", c.id)
	}
	if err := c.env.Layers.InsertAt(c.index, c.removed); err != nil {
		return err
	}
	if c.current != "" {
		if err := c.env.Layers.SetCurrent(c.current); err != nil {
			return err
		}
	}
	return c.contents.Undo(ctx)
}
