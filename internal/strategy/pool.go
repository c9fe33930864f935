package strategy

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"
)

// workerPool runs submitted jobs on a fixed number of long-lived goroutines,
// bounded per spec §5 ("N strategy-worker tasks (bounded <= 2 per tier)").
// Unlike a per-job errgroup.Go call gated by a semaphore, submit() never
// blocks the caller behind a saturated limit beyond a generous queue depth,
// preserving OnChunk's "returns immediately" contract (§4.7) for the normal
// case where transcription keeps up with the chunk cadence.
type workerPool struct {
	jobs   chan func(context.Context)
	ctx    context.Context
	cancel context.CancelFunc
	group  *errgroup.Group

	mu     sync.Mutex
	closed bool
}

// newWorkerPool starts workers goroutines pulling from an internal queue via
// a fixed-size errgroup (one Go call per worker, not per job — a per-job
// Go call under SetLimit would block submit() once the pool saturated,
// breaking OnChunk's "returns immediately" contract). Each worker checks ctx
// for cancellation before starting a new job — cooperative cancellation: a
// job already running is never interrupted mid-flight.
func newWorkerPool(parent context.Context, workers, queueDepth int) *workerPool {
	ctx, cancel := context.WithCancel(parent)
	group, _ := errgroup.WithContext(context.Background())
	p := &workerPool{
		jobs:   make(chan func(context.Context), queueDepth),
		ctx:    ctx,
		cancel: cancel,
		group:  group,
	}
	for i := 0; i < workers; i++ {
		p.group.Go(p.runWorker)
	}
	return p
}

func (p *workerPool) runWorker() error {
	for job := range p.jobs {
		select {
		case <-p.ctx.Done():
			continue // not started yet; cooperative cancellation drops it.
		default:
		}
		job(p.ctx)
	}
	return nil
}

// submit enqueues job, blocking only if the queue is momentarily full. It is
// a no-op once the pool has been closed or cancelled.
func (p *workerPool) submit(job func(context.Context)) {
	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed {
		return
	}
	select {
	case <-p.ctx.Done():
		return
	case p.jobs <- job:
	}
}

// drain stops accepting new jobs, closes the queue, and blocks until every
// already-queued and in-flight job has finished. Used by the Fast tier on
// stop, which must fully drain before producing its final text.
func (p *workerPool) drain() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.jobs)
	p.mu.Unlock()

	_ = p.group.Wait()
}

// cancelAndDetach cancels the pool's context so workers drop any job not yet
// started, closes the queue, and returns without waiting for in-flight work
// — the Refine tier's "not awaited" cancellation (spec §4.7.3, §9).
func (p *workerPool) cancelAndDetach() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		p.cancel()
		return
	}
	p.closed = true
	close(p.jobs)
	p.mu.Unlock()

	p.cancel()
}
