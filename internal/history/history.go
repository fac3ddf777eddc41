// Package history implements linear undo/redo over reversible commands.
package history

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"sync"

	"cadcore/internal/logging"
	"cadcore/internal/observability"
	"cadcore/pkg/domain"
)

// Command is a reversible unit of mutation. Commands capture everything they
// need at construction and never read ambient state in Do or Undo.
type Command interface {
	Label() string
	Do(ctx context.Context) error
	Undo(ctx context.Context) error
}

// State is the UI-facing summary of the stacks.
type State struct {
	CanUndo   bool   `json:"canUndo"`
	CanRedo   bool   `json:"canRedo"`
	UndoLabel string `json:"undoLabel,omitempty"`
	RedoLabel string `json:"redoLabel,omitempty"`
	Depth     int    `json:"depth"`
}

// History holds the done and undone stacks. Pushing a new command clears the
// redo stack.
type History struct {
	mu       sync.Mutex
	done     []Command
	undone   []Command
	maxDepth int
	busy     bool

	subMu  sync.Mutex
	subSeq int
	subs   map[int]func(State)

	metrics observability.MetricsRecorder
	tracer  observability.Tracer
	logger  *slog.Logger
}

// Option configures a History.
type Option func(*History)

// WithMaxDepth caps the undo stack; 0 is unbounded.
func WithMaxDepth(n int) Option {
	return func(h *History) { h.maxDepth = max(n, 0) }
}

// WithMetrics records every execute, undo and redo.
func WithMetrics(rec observability.MetricsRecorder) Option {
	return func(h *History) { h.metrics = rec }
}

// WithTracer wraps each operation in a span.
func WithTracer(tr observability.Tracer) Option {
	return func(h *History) { h.tracer = tr }
}

// WithLogger sets the history logger.
func WithLogger(l *slog.Logger) Option {
	return func(h *History) { h.logger = l }
}

// New constructs an empty history.
func New(opts ...Option) *History {
	h := &History{subs: make(map[int]func(State))}
	for _, opt := range opts {
		opt(h)
	}
	h.logger = logging.Or(h.logger).With("component", "history")
	return h
}

// enter claims the history for one operation. Nested calls from inside a
// command are rejected.
func (h *History) enter() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.busy {
		return false
	}
	h.busy = true
	return true
}

func (h *History) leave() {
	h.mu.Lock()
	h.busy = false
	h.mu.Unlock()
	h.publish()
}

// Execute runs cmd and records it. A failing command is not recorded and its
// error is returned. A done ctx runs nothing.
func (h *History) Execute(ctx context.Context, cmd Command) error {
	if cmd == nil {
		return errors.New("execute nil command")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if !h.enter() {
		return domain.ErrReentrant
	}
	defer h.leave()

	err := observability.Instrument(ctx, h.metrics, h.tracer, "execute", cmd.Do)
	if err != nil {
		if domain.IsInvariant(err, "") {
			h.logger.Warn("command rejected", "label", cmd.Label(), "error", err)
		} else {
			h.logger.Debug("command failed", "label", cmd.Label(), "error", err)
		}
		return err
	}
	h.mu.Lock()
	h.done = append(h.done, cmd)
	h.undone = nil
	if h.maxDepth > 0 && len(h.done) > h.maxDepth {
		drop := len(h.done) - h.maxDepth
		h.done = slices.Delete(h.done, 0, drop)
		h.logger.Debug("history trimmed", "dropped", drop)
	}
	h.mu.Unlock()
	return nil
}

// Undo reverts the most recent command. It returns false when nothing can be
// undone, ctx is done, or the command's Undo fails; a failing entry is dropped.
func (h *History) Undo(ctx context.Context) bool {
	return h.step(ctx, "undo")
}

// Redo re-applies the most recently undone command.
func (h *History) Redo(ctx context.Context) bool {
	return h.step(ctx, "redo")
}

func (h *History) step(ctx context.Context, op string) bool {
	if err := ctx.Err(); err != nil {
		h.logger.Debug("history step skipped", "op", op, "error", err)
		return false
	}
	if !h.enter() {
		h.logger.Warn("reentrant history call rejected", "op", op)
		return false
	}
	defer h.leave()

	h.mu.Lock()
	from := &h.done
	if op == "redo" {
		from = &h.undone
	}
	if len(*from) == 0 {
		h.mu.Unlock()
		h.logger.Debug("history stack empty", "op", op)
		return false
	}
	cmd := (*from)[len(*from)-1]
	*from = (*from)[:len(*from)-1]
	h.mu.Unlock()

	run := cmd.Undo
	if op == "redo" {
		run = cmd.Do
	}
	if err := observability.Instrument(ctx, h.metrics, h.tracer, op, run); err != nil {
		h.logger.Error("history entry dropped", "error", domain.ErrHistoryCorruption{Op: op, Label: cmd.Label(), Err: err})
		return false
	}

	h.mu.Lock()
	if op == "undo" {
		h.undone = append(h.undone, cmd)
	} else {
		h.done = append(h.done, cmd)
	}
	h.mu.Unlock()
	return true
}

// CanUndo reports whether Undo has work to do.
func (h *History) CanUndo() bool { return h.State().CanUndo }

// CanRedo reports whether Redo has work to do.
func (h *History) CanRedo() bool { return h.State().CanRedo }

// UndoLabel names the command Undo would revert.
func (h *History) UndoLabel() string { return h.State().UndoLabel }

// RedoLabel names the command Redo would re-apply.
func (h *History) RedoLabel() string { return h.State().RedoLabel }

// State returns the current stack summary.
func (h *History) State() State {
	h.mu.Lock()
	defer h.mu.Unlock()
	st := State{CanUndo: len(h.done) > 0, CanRedo: len(h.undone) > 0, Depth: len(h.done)}
	if st.CanUndo {
		st.UndoLabel = h.done[len(h.done)-1].Label()
	}
	if st.CanRedo {
		st.RedoLabel = h.undone[len(h.undone)-1].Label()
	}
	return st
}

// Clear empties both stacks.
func (h *History) Clear() {
	h.mu.Lock()
	h.done, h.undone = nil, nil
	h.mu.Unlock()
	h.publish()
}

// SetMaxDepth changes the cap, trimming the oldest entries when needed.
func (h *History) SetMaxDepth(n int) {
	h.mu.Lock()
	h.maxDepth = max(n, 0)
	if h.maxDepth > 0 && len(h.done) > h.maxDepth {
		h.done = slices.Delete(h.done, 0, len(h.done)-h.maxDepth)
	}
	h.mu.Unlock()
	h.publish()
}

// Subscribe registers fn for state changes after every operation.
func (h *History) Subscribe(fn func(State)) func() {
	h.subMu.Lock()
	defer h.subMu.Unlock()
	h.subSeq++
	id := h.subSeq
	h.subs[id] = fn
	return func() {
		h.subMu.Lock()
		delete(h.subs, id)
		h.subMu.Unlock()
	}
}

func (h *History) publish() {
	st := h.State()
	h.subMu.Lock()
	ids := make([]int, 0, len(h.subs))
	for id := range h.subs {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	fns := make([]func(State), 0, len(ids))
	for _, id := range ids {
		fns = append(fns, h.subs[id])
	}
	h.subMu.Unlock()
	for _, fn := range fns {
		fn(st)
	}
}
