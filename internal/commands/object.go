package commands

import (
	"context"
	"fmt"

	"cadcore/internal/history"
	"cadcore/pkg/domain"
)

// AddObject inserts a prepared entity snapshot.
type AddObject struct {
	env      *Env
	snapshot domain.Entity
	label    string
}

// NewAddObject prepares the insertion of e on layerID. An id is allocated now
// when e has none, so redo recreates the same entity. layerID is ignored for
// kinds that do not live on layers.
func NewAddObject(env *Env, e domain.Entity, layerID string) *AddObject {
	snap := domain.Clone(e)
	if snap.EntityID() == "" {
		snap = domain.WithID(snap, env.Store.NewID())
	}
	if layerID != "" {
		snap = domain.WithLayer(snap, layerID)
	}
	return &AddObject{env: env, snapshot: snap, label: "Add " + string(snap.Kind())}
}

// Label implements history.Command.
func (c *AddObject) Label() string { return c.label }

// Ref identifies the entity the command adds.
func (c *AddObject) Ref() domain.Ref { return domain.RefOf(c.snapshot) }

// Do implements history.Command.
func (c *AddObject) Do(ctx context.Context) error {
	if err := c.env.checkLayer(c.snapshot.Layer()); err != nil {
		return err
	}
	if _, err := c.env.Store.Insert(domain.Clone(c.snapshot)); err != nil {
		return err
	}
	c.env.sync(ctx, c.Ref())
	return nil
}

// Undo implements history.Command.
func (c *AddObject) Undo(ctx context.Context) error {
	ref := c.Ref()
	if _, ok := c.env.Store.Remove(ref.Kind, ref.ID); !ok {
		return domain.ErrNotFound{Kind: ref.Kind, ID: ref.ID}
	}
	c.env.Selection.Remove(ref.ID)
	c.env.dropNode(ctx, ref)
	return nil
}

// RemoveObject deletes an entity, remembering its data and position.
type RemoveObject struct {
	env       *Env
	ref       domain.Ref
	snapshot  domain.Entity
	index     int
	selection []string
}

// NewRemoveObject prepares the removal of ref.
func NewRemoveObject(env *Env, ref domain.Ref) *RemoveObject {
	return &RemoveObject{env: env, ref: ref, index: -1}
}

// Label implements history.Command.
func (c *RemoveObject) Label() string { return "Remove " + string(c.ref.Kind) }

// Do implements history.Command.
func (c *RemoveObject) Do(ctx context.Context) error {
	current, err := c.env.lookup(c.ref)
	if err != nil {
		return err
	}
	if err := c.env.checkEditable(current); err != nil {
		return err
	}
	c.snapshot = current
	c.selection = c.env.Selection.IDs()
	idx, ok := c.env.Store.Remove(c.ref.Kind, c.ref.ID)
	if !ok {
		return domain.ErrNotFound{Kind: c.ref.Kind, ID: c.ref.ID}
	}
	c.index = idx
	c.env.Selection.Remove(c.ref.ID)
	c.env.dropNode(ctx, c.ref)
	return nil
}

// Undo implements history.Command.
func (c *RemoveObject) Undo(ctx context.Context) error {
	if c.snapshot == nil {
		return fmt.Errorf("remove %s: nothing captured", c.ref)
	}
	if _, err := c.env.Store.InsertAt(c.index, domain.Clone(c.snapshot)); err != nil {
		return err
	}
	c.env.Selection.Set(c.selection)
	c.env.sync(ctx, c.ref)
	return nil
}

// NewAddObjects groups one AddObject per entity.
func NewAddObjects(env *Env, entities []domain.Entity, layerID string) *history.Batch {
	cmds := make([]history.Command, 0, len(entities))
	for _, e := range entities {
		cmds = append(cmds, NewAddObject(env, e, layerID))
	}
	return history.NewBatch(fmt.Sprintf("Add %d objects", len(cmds)), cmds...)
}

// NewRemoveObjects groups one RemoveObject per ref.
func NewRemoveObjects(env *Env, refs []domain.Ref) *history.Batch {
	cmds := make([]history.Command, 0, len(refs))
	for _, ref := range refs {
		cmds = append(cmds, NewRemoveObject(env, ref))
	}
	return history.NewBatch(fmt.Sprintf("Remove %d objects", len(cmds)), cmds...)
}
