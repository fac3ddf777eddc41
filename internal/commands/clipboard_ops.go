package commands

import (
	"context"
	"errors"

	"cadcore/internal/history"
	"cadcore/pkg/domain"
)

// ErrClipboardEmpty is returned by NewPaste when there is nothing to paste.
var ErrClipboardEmpty = errors.New("clipboard is empty")

// Copy places deep copies of entities on the clipboard.
type Copy struct {
	env     *Env
	entries []domain.Entity
	prev    ClipboardState
	gen     uint64
}

// NewCopy captures the current data of refs.
func NewCopy(env *Env, refs []domain.Ref) (*Copy, error) {
	entries, err := collect(env, refs)
	if err != nil {
		return nil, err
	}
	return &Copy{env: env, entries: entries}, nil
}

// Label implements history.Command.
func (c *Copy) Label() string { return "Copy" }

// Do implements history.Command.
func (c *Copy) Do(context.Context) error {
	c.prev = c.env.Clipboard.State()
	c.gen = c.env.Clipboard.Set(c.entries, false)
	return nil
}

// Undo implements history.Command. The previous clipboard comes back only if
// nothing replaced this copy in the meantime.
func (c *Copy) Undo(context.Context) error {
	if c.env.Clipboard.Generation() == c.gen {
		c.env.Clipboard.Restore(c.prev)
	}
	return nil
}

// Cut removes entities and places their copies on the clipboard.
type Cut struct {
	env    *Env
	refs   []domain.Ref
	remove *history.Batch
	prev   ClipboardState
	gen    uint64
}

// NewCut prepares cutting refs.
func NewCut(env *Env, refs []domain.Ref) (*Cut, error) {
	if _, err := collect(env, refs); err != nil {
		return nil, err
	}
	return &Cut{env: env, refs: refs, remove: NewRemoveObjects(env, refs)}, nil
}

// Label implements history.Command.
func (c *Cut) Label() string { return "Cut" }

// Do implements history.Command.
func (c *Cut) Do(ctx context.Context) error {
	entries, err := collect(c.env, c.refs)
	if err != nil {
		return err
	}
	if err := c.remove.Do(ctx); err != nil {
		return err
	}
	c.prev = c.env.Clipboard.State()
	c.gen = c.env.Clipboard.Set(entries, true)
	return nil
}

// Undo implements history.Command. Entities are restored; the clipboard is
// reverted only while it still holds this cut and none of it was pasted.
func (c *Cut) Undo(ctx context.Context) error {
	if err := c.remove.Undo(ctx); err != nil {
		return err
	}
	if c.env.Clipboard.Generation() == c.gen && c.env.Clipboard.Pastes(c.gen) == 0 {
		c.env.Clipboard.Restore(c.prev)
	}
	return nil
}

// Paste inserts fresh copies of the clipboard content.
type Paste struct {
	env   *Env
	gen   uint64
	layer string
	add   *history.Batch
	refs  []domain.Ref
}

// NewPaste copies the clipboard now, allocating new ids and shifting lines and
// models by offset. References between pasted entities are rewritten to the
// new ids. An empty layerID keeps each entity on its original layer.
func NewPaste(env *Env, layerID string, offset domain.Vec3) (*Paste, error) {
	st := env.Clipboard.State()
	if len(st.Entries) == 0 {
		return nil, ErrClipboardEmpty
	}
	ids := make(map[string]string, len(st.Entries))
	for _, e := range st.Entries {
		ids[e.EntityID()] = env.Store.NewID()
	}
	cmds := make([]history.Command, 0, len(st.Entries))
	refs := make([]domain.Ref, 0, len(st.Entries))
	for _, e := range st.Entries {
		copied := relink(domain.WithID(e, ids[e.EntityID()]), ids, offset)
		add := NewAddObject(env, copied, layerID)
		cmds = append(cmds, add)
		refs = append(refs, add.Ref())
	}
	return &Paste{
		env:   env,
		gen:   st.Generation,
		layer: layerID,
		add:   history.NewBatch("Paste", cmds...),
		refs:  refs,
	}, nil
}

// Label implements history.Command.
func (c *Paste) Label() string { return "Paste" }

// Refs lists the entities the paste creates.
func (c *Paste) Refs() []domain.Ref { return append([]domain.Ref(nil), c.refs...) }

// Do implements history.Command.
func (c *Paste) Do(ctx context.Context) error {
	if err := c.env.checkLayer(c.layer); err != nil {
		return err
	}
	if err := c.add.Do(ctx); err != nil {
		return err
	}
	c.env.Clipboard.markPasted(c.gen, 1)
	return nil
}

// Undo implements history.Command.
func (c *Paste) Undo(ctx context.Context) error {
	if err := c.add.Undo(ctx); err != nil {
		return err
	}
	c.env.Clipboard.markPasted(c.gen, -1)
	return nil
}

func collect(env *Env, refs []domain.Ref) ([]domain.Entity, error) {
	out := make([]domain.Entity, 0, len(refs))
	for _, ref := range refs {
		e, err := env.lookup(ref)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

// relink offsets geometry and redirects references to entities pasted
// alongside.
func relink(e domain.Entity, ids map[string]string, offset domain.Vec3) domain.Entity {
	switch v := e.(type) {
	case domain.Line:
		for i := range v.Points {
			v.Points[i] = v.Points[i].Add(offset)
		}
		return v
	case domain.Model:
		v.Position = v.Position.Add(offset)
		if id, ok := ids[v.MaterialID]; ok {
			v.MaterialID = id
		}
		if id, ok := ids[v.GeometryID]; ok {
			v.GeometryID = id
		}
		return v
	case domain.Material:
		for k, val := range v.Properties {
			if s, ok := val.(string); ok {
				if id, ok := ids[s]; ok {
					v.Properties[k] = id
				}
			}
		}
		return v
	}
	return e
}
