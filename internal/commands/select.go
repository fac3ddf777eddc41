package commands

import (
	"context"
	"slices"
)

// Select replaces the selection.
type Select struct {
	env    *Env
	before []string
	after  []string
}

// NewSelect captures the current selection as before.
func NewSelect(env *Env, ids []string) *Select {
	return &Select{env: env, before: env.Selection.IDs(), after: slices.Clone(ids)}
}

// Label implements history.Command.
func (c *Select) Label() string { return "Select" }

// Do implements history.Command.
func (c *Select) Do(context.Context) error {
	c.env.Selection.Set(c.after)
	return nil
}

// Undo implements history.Command.
func (c *Select) Undo(context.Context) error {
	c.env.Selection.Set(c.before)
	return nil
}
