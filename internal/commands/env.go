// Package commands implements the reversible document operations executed
// through history.History.
package commands

import (
	"context"
	"errors"
	"log/slog"

	"cadcore/internal/layer"
	"cadcore/internal/logging"
	"cadcore/internal/scene"
	"cadcore/internal/store"
	"cadcore/pkg/domain"
)

// Env is the set of document components commands operate on. Commands
// capture the Env at construction.
type Env struct {
	Store     *store.Store
	Layers    *layer.Registry
	Scene     *scene.Synchronizer
	Selection *Selection
	Clipboard *Clipboard
	Logger    *slog.Logger

	unwatch func()
}

// NewEnv wires the components together. Layer display changes re-sync every
// entity on the affected layer.
func NewEnv(st *store.Store, layers *layer.Registry, sc *scene.Synchronizer, logger *slog.Logger) *Env {
	env := &Env{
		Store:     st,
		Layers:    layers,
		Scene:     sc,
		Selection: NewSelection(),
		Clipboard: NewClipboard(),
		Logger:    logging.Or(logger).With("component", "commands"),
	}
	if sc != nil && layers != nil {
		env.unwatch = layers.Subscribe(func(ev layer.Event) {
			if ev.Kind == layer.EventReset || !ev.DisplayChanged() {
				return
			}
			if err := sc.RefreshLayer(context.Background(), ev.ID); err != nil {
				env.Logger.Warn("layer refresh incomplete", "layer", ev.ID, "error", err)
			}
		})
	}
	return env
}

// Close detaches the layer subscription.
func (e *Env) Close() {
	if e.unwatch != nil {
		e.unwatch()
		e.unwatch = nil
	}
}

// sync rebuilds the node for ref once the store already holds the change.
// The rebuild ignores cancellation of ctx. Build failures were already
// reported by the synchronizer; any other failure drops the node so no stale
// geometry survives, and the next sync of ref rebuilds it.
func (e *Env) sync(ctx context.Context, ref domain.Ref) {
	if e.Scene == nil {
		return
	}
	err := e.Scene.Sync(context.WithoutCancel(ctx), ref)
	var bf domain.ErrBuildFailure
	if err == nil || errors.As(err, &bf) {
		return
	}
	e.Logger.Warn("scene sync deferred", "ref", ref.String(), "error", err)
	if ref.Kind.HasScenePresence() {
		e.Scene.Remove(ref.ID)
	}
}

// dropNode removes the scene presence of ref. Non-scene kinds re-sync the
// models that referenced them.
func (e *Env) dropNode(ctx context.Context, ref domain.Ref) {
	if e.Scene == nil {
		return
	}
	if ref.Kind.HasScenePresence() {
		e.Scene.Remove(ref.ID)
		return
	}
	e.sync(ctx, ref)
}

// checkLayer verifies entities may be placed on layerID.
func (e *Env) checkLayer(layerID string) error {
	if layerID == "" || e.Layers == nil {
		return nil
	}
	l, ok := e.Layers.Get(layerID)
	if !ok {
		return domain.ErrInvariant{Rule: domain.RuleUnknownLayer, Message: "layer " + layerID + " does not exist"}
	}
	if l.Locked {
		return domain.ErrInvariant{Rule: domain.RuleLayerLocked, Message: "layer " + layerID + " is locked"}
	}
	return nil
}

// checkEditable verifies the entity's current layer accepts edits.
func (e *Env) checkEditable(ent domain.Entity) error {
	if e.Layers == nil || ent.Layer() == "" {
		return nil
	}
	if e.Layers.Locked(ent.Layer()) {
		return domain.ErrInvariant{Rule: domain.RuleLayerLocked, Message: "layer " + ent.Layer() + " is locked"}
	}
	return nil
}

func (e *Env) lookup(ref domain.Ref) (domain.Entity, error) {
	ent, ok := e.Store.Get(ref.Kind, ref.ID)
	if !ok {
		return nil, domain.ErrNotFound{Kind: ref.Kind, ID: ref.ID}
	}
	return ent, nil
}
