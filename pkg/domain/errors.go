package domain

import (
	"errors"
	"fmt"
)

// ErrReentrant is returned when an operation is re-entered while already running.
var ErrReentrant = errors.New("reentrant call")

// ErrNotFound is returned when a referenced entity or layer does not exist.
type ErrNotFound struct {
	Kind EntityKind
	ID   string
}

func (e ErrNotFound) Error() string {
	return fmt.Sprintf("%s %s not found", e.Kind, e.ID)
}

// LayerKind labels layer lookups in ErrNotFound.
const LayerKind EntityKind = "layer"

// ErrInvariant reports a rejected mutation that would break a document rule.
type ErrInvariant struct {
	Rule    string
	Message string
}

func (e ErrInvariant) Error() string {
	if e.Message == "" {
		return "invariant " + e.Rule + " violated"
	}
	return fmt.Sprintf("invariant %s violated: %s", e.Rule, e.Message)
}

// Invariant rule names.
const (
	RuleLayerLocked   = "layer-locked"
	RuleLayerFloor    = "layer-floor"
	RuleSystemLayer   = "system-layer"
	RuleUnknownLayer  = "unknown-layer"
	RuleDuplicateID   = "duplicate-id"
	RuleEmptyHistory  = "empty-history"
	RuleMetadataShape = "metadata-schema"
	RuleOrphanNode    = "orphan-node"
	RuleDanglingLayer = "dangling-layer"
)

// IsInvariant reports whether err wraps an ErrInvariant, optionally matching rule.
func IsInvariant(err error, rule string) bool {
	var inv ErrInvariant
	if !errors.As(err, &inv) {
		return false
	}
	return rule == "" || inv.Rule == rule
}

// ErrBuildFailure wraps an error raised while building a scene node.
type ErrBuildFailure struct {
	Ref Ref
	Err error
}

func (e ErrBuildFailure) Error() string {
	return fmt.Sprintf("build %s: %v", e.Ref, e.Err)
}

func (e ErrBuildFailure) Unwrap() error { return e.Err }

// ErrHistoryCorruption wraps a failure raised while undoing or redoing a command.
type ErrHistoryCorruption struct {
	Op    string
	Label string
	Err   error
}

func (e ErrHistoryCorruption) Error() string {
	return fmt.Sprintf("history %s %q dropped: %v", e.Op, e.Label, e.Err)
}

func (e ErrHistoryCorruption) Unwrap() error { return e.Err }
