package commands

import (
	"context"

	"cadcore/pkg/domain"
)

// Transform moves, rotates or scales a model between two captured transforms.
type Transform struct {
	env    *Env
	id     string
	before domain.Transform
	after  domain.Transform
}

// NewTransform records an explicit before and after.
func NewTransform(env *Env, id string, before, after domain.Transform) *Transform {
	return &Transform{env: env, id: id, before: before, after: after}
}

// NewTransformTo captures the model's current transform as before.
func NewTransformTo(env *Env, id string, after domain.Transform) (*Transform, error) {
	m, ok := env.Store.Model(id)
	if !ok {
		return nil, domain.ErrNotFound{Kind: domain.KindModel, ID: id}
	}
	return NewTransform(env, id, m.Transform, after), nil
}

// Label implements history.Command.
func (c *Transform) Label() string { return "Transform model" }

// Do implements history.Command.
func (c *Transform) Do(ctx context.Context) error { return c.apply(ctx, c.after) }

// Undo implements history.Command.
func (c *Transform) Undo(ctx context.Context) error { return c.apply(ctx, c.before) }

func (c *Transform) apply(ctx context.Context, t domain.Transform) error {
	m, ok := c.env.Store.Model(c.id)
	if !ok {
		return domain.ErrNotFound{Kind: domain.KindModel, ID: c.id}
	}
	if err := c.env.checkEditable(m); err != nil {
		return err
	}
	if !c.env.Store.UpdateModel(c.id, func(m *domain.Model) { m.Transform = t }) {
		return domain.ErrNotFound{Kind: domain.KindModel, ID: c.id}
	}
	c.env.sync(ctx, domain.Ref{Kind: domain.KindModel, ID: c.id})
	return nil
}
