package commands

import (
	"sync"

	"cadcore/pkg/domain"
)

// ClipboardState is a restorable copy of the clipboard.
type ClipboardState struct {
	Entries    []domain.Entity
	Generation uint64
	Cut        bool
}

// Clipboard holds deep copies of copied or cut entities. Every Set starts a
// new generation; pastes are counted per generation so a cut can tell whether
// its content was used.
type Clipboard struct {
	mu      sync.Mutex
	state   ClipboardState
	nextGen uint64
	pastes  map[uint64]int
}

// NewClipboard returns an empty clipboard.
func NewClipboard() *Clipboard {
	return &Clipboard{pastes: make(map[uint64]int)}
}

func cloneEntries(in []domain.Entity) []domain.Entity {
	out := make([]domain.Entity, 0, len(in))
	for _, e := range in {
		out = append(out, domain.Clone(e))
	}
	return out
}

// Set stores copies of entries and returns the new generation.
func (c *Clipboard) Set(entries []domain.Entity, cut bool) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextGen++
	c.state = ClipboardState{Entries: cloneEntries(entries), Generation: c.nextGen, Cut: cut}
	return c.nextGen
}

// State returns a copy of the current contents.
func (c *Clipboard) State() ClipboardState {
	c.mu.Lock()
	defer c.mu.Unlock()
	st := c.state
	st.Entries = cloneEntries(c.state.Entries)
	return st
}

// Restore reinstates a previous state.
func (c *Clipboard) Restore(st ClipboardState) {
	c.mu.Lock()
	defer c.mu.Unlock()
	st.Entries = cloneEntries(st.Entries)
	c.state = st
}

// Generation returns the generation of the current contents, 0 when never set.
func (c *Clipboard) Generation() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.Generation
}

// Empty reports whether there is nothing to paste.
func (c *Clipboard) Empty() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.state.Entries) == 0
}

// Pastes returns how many live pastes used generation gen.
func (c *Clipboard) Pastes(gen uint64) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pastes[gen]
}

func (c *Clipboard) markPasted(gen uint64, delta int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pastes[gen] += delta
	if c.pastes[gen] <= 0 {
		delete(c.pastes, gen)
	}
}
