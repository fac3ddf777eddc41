package commands

import (
	"context"

	"cadcore/pkg/domain"
)

// PropertyChange sets one field of an entity, see domain.SetField for the
// accepted field names.
type PropertyChange struct {
	env    *Env
	ref    domain.Ref
	field  string
	before any
	after  any
}

// NewPropertyChange records an explicit before and after value.
func NewPropertyChange(env *Env, ref domain.Ref, field string, before, after any) *PropertyChange {
	return &PropertyChange{env: env, ref: ref, field: field, before: before, after: after}
}

// NewPropertyChangeTo captures the current field value as before.
func NewPropertyChangeTo(env *Env, ref domain.Ref, field string, after any) (*PropertyChange, error) {
	e, err := env.lookup(ref)
	if err != nil {
		return nil, err
	}
	before, err := domain.GetField(e, field)
	if err != nil {
		return nil, err
	}
	return NewPropertyChange(env, ref, field, before, after), nil
}

// NewVisibility toggles a model's own visibility flag.
func NewVisibility(env *Env, id string, visible bool) (*PropertyChange, error) {
	return NewPropertyChangeTo(env, domain.Ref{Kind: domain.KindModel, ID: id}, domain.FieldVisible, visible)
}

// Label implements history.Command.
func (c *PropertyChange) Label() string { return "Change " + c.field }

// Do implements history.Command.
func (c *PropertyChange) Do(ctx context.Context) error { return c.apply(ctx, c.after) }

// Undo implements history.Command.
func (c *PropertyChange) Undo(ctx context.Context) error { return c.apply(ctx, c.before) }

func (c *PropertyChange) apply(ctx context.Context, value any) error {
	e, err := c.env.lookup(c.ref)
	if err != nil {
		return err
	}
	if err := c.env.checkEditable(e); err != nil {
		return err
	}
	if c.field == domain.FieldLayerID {
		target, _ := value.(string)
		if err := c.env.checkLayer(target); err != nil {
			return err
		}
	}
	if _, err := c.env.Store.SetField(c.ref, c.field, value); err != nil {
		return err
	}
	c.env.sync(ctx, c.ref)
	return nil
}
