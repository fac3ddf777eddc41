package history

import (
	"context"
	"errors"
	"fmt"
)

// Batch runs commands in order and undoes them in reverse order.
type Batch struct {
	label    string
	commands []Command
}

// NewBatch groups commands under label.
func NewBatch(label string, commands ...Command) *Batch {
	return &Batch{label: label, commands: append([]Command(nil), commands...)}
}

// Label implements Command.
func (b *Batch) Label() string { return b.label }

// Len returns the number of grouped commands.
func (b *Batch) Len() int { return len(b.commands) }

// Do runs every command in order. When one fails the already-run prefix is
// undone in reverse before the error is returned.
func (b *Batch) Do(ctx context.Context) error {
	for i, cmd := range b.commands {
		if err := cmd.Do(ctx); err != nil {
			if rbErr := rollback(ctx, b.commands[:i]); rbErr != nil {
				return fmt.Errorf("%s step %d (%s): %w (rollback: %v)", b.label, i, cmd.Label(), err, rbErr)
			}
			return fmt.Errorf("%s step %d (%s): %w", b.label, i, cmd.Label(), err)
		}
	}
	return nil
}

// Undo reverts every command in reverse order. On failure the later steps
// already undone are re-applied so the batch stays whole; re-apply failures
// are joined into the returned error.
func (b *Batch) Undo(ctx context.Context) error {
	for i := len(b.commands) - 1; i >= 0; i-- {
		if err := b.commands[i].Undo(ctx); err != nil {
			errs := []error{fmt.Errorf("%s undo step %d (%s): %w", b.label, i, b.commands[i].Label(), err)}
			for j, cmd := range b.commands[i+1:] {
				if rerr := cmd.Do(ctx); rerr != nil {
					errs = append(errs, fmt.Errorf("%s reapply step %d (%s): %w", b.label, i+1+j, cmd.Label(), rerr))
				}
			}
			return errors.Join(errs...)
		}
	}
	return nil
}

func rollback(ctx context.Context, done []Command) error {
	for i := len(done) - 1; i >= 0; i-- {
		if err := done[i].Undo(ctx); err != nil {
			return err
		}
	}
	return nil
}
