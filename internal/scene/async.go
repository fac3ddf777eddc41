package scene

import (
	"context"
	"sync"

	"cadcore/pkg/domain"
)

// pendingLoad tracks one in-flight asset load. A dirty load is superseded:
// its completion re-runs Sync instead of attaching stale data.
type pendingLoad struct {
	seq    uint64
	ref    domain.Ref
	cancel context.CancelFunc
	dirty  bool
}

type completion struct {
	seq   uint64
	ref   domain.Ref
	asset Asset
	err   error
}

// completionQueue hands finished loads from loader goroutines back to the
// caller's goroutine.
type completionQueue struct {
	mu     sync.Mutex
	items  []completion
	signal chan struct{}
	wg     sync.WaitGroup
}

func newCompletionQueue() *completionQueue {
	return &completionQueue{signal: make(chan struct{}, 1)}
}

func (q *completionQueue) push(c completion) {
	q.mu.Lock()
	q.items = append(q.items, c)
	q.mu.Unlock()
	select {
	case q.signal <- struct{}{}:
	default:
	}
}

func (q *completionQueue) drain() []completion {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := q.items
	q.items = nil
	return out
}

func (s *Synchronizer) startLoad(ctx context.Context, ref domain.Ref, path string) {
	lctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.mu.Lock()
	s.loadSeq++
	p := &pendingLoad{seq: s.loadSeq, ref: ref, cancel: cancel}
	s.pending[ref.ID] = p
	s.mu.Unlock()

	s.queue.wg.Add(1)
	go func() {
		defer s.queue.wg.Done()
		asset, err := s.loader.Load(lctx, path)
		if err == nil {
			err = lctx.Err()
		}
		s.queue.push(completion{seq: p.seq, ref: ref, asset: asset, err: err})
	}()
}

// Pump applies every queued load completion on the caller's goroutine and
// returns how many were processed.
func (s *Synchronizer) Pump(ctx context.Context) int {
	items := s.queue.drain()
	for _, c := range items {
		s.apply(ctx, c)
	}
	return len(items)
}

func (s *Synchronizer) apply(ctx context.Context, c completion) {
	s.mu.Lock()
	p, ok := s.pending[c.ref.ID]
	if !ok || p.seq != c.seq {
		s.stats.Discarded++
		s.mu.Unlock()
		s.logger.Debug("discarded stale asset load", "ref", c.ref.String())
		return
	}
	delete(s.pending, c.ref.ID)
	p.cancel()
	dirty := p.dirty
	s.mu.Unlock()

	if dirty {
		_ = s.Sync(ctx, c.ref)
		return
	}
	e, ok := s.source.Get(c.ref.Kind, c.ref.ID)
	if !ok {
		s.mu.Lock()
		s.stats.Discarded++
		s.mu.Unlock()
		return
	}
	m, isModel := e.(domain.Model)
	if !isModel {
		return
	}
	if c.err != nil {
		_ = s.fail(c.ref, assetError(m.Path, c.err))
		return
	}
	if c.asset.Path != "" && c.asset.Path != m.Path {
		// the model was repointed without a Sync; rebuild from current data
		_ = s.Sync(ctx, c.ref)
		return
	}
	s.teardown(m.ID)
	s.attach(s.buildModel(m, &c.asset))
}

// Await blocks until every pending load has completed and been applied, or
// ctx is done.
func (s *Synchronizer) Await(ctx context.Context) error {
	for {
		s.Pump(ctx)
		s.mu.RLock()
		n := len(s.pending)
		s.mu.RUnlock()
		if n == 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.queue.signal:
		}
	}
}

// Close cancels every pending load and waits for loader goroutines to exit.
func (s *Synchronizer) Close() {
	s.mu.Lock()
	for id, p := range s.pending {
		p.cancel()
		delete(s.pending, id)
		s.stats.Cancelled++
	}
	s.mu.Unlock()
	s.queue.wg.Wait()
	s.queue.drain()
}
