package dflow

import (
	"sync"

	"github.com/dataflowgraph/dflow/internal/semaphore"
)

// Executor runs vertex work off the activating goroutine. Graph.invoke is
// always the unit of work submitted; Submit must eventually call fn exactly
// once.
type Executor interface {
	Submit(fn func())
}

// WorkerPool is a bounded Executor backed by a counting semaphore, grounded
// on the source's own Engine.Start worker-goroutine pattern (each submitted
// unit of work gets its own goroutine, gated by a fixed concurrency budget
// rather than a fixed goroutine count).
type WorkerPool struct {
	sem *semaphore.Semaphore
	wg  sync.WaitGroup

	// Logf is the teacher's own logging idiom (see engine/graph.Engine.Logf).
	Logf func(format string, v ...interface{})
}

// NewWorkerPool creates a pool that runs at most size vertices concurrently.
// A size of 0 or less means unbounded.
func NewWorkerPool(size int) *WorkerPool {
	wp := &WorkerPool{Logf: func(string, ...interface{}) {}}
	if size > 0 {
		wp.sem = semaphore.NewSemaphore(size)
	}
	return wp
}

// Submit returns immediately and runs fn on a new goroutine once that
// goroutine acquires a concurrency slot. If the pool is closed while the
// goroutine is waiting, the failure is logged and fn is not run.
func (wp *WorkerPool) Submit(fn func()) {
	wp.wg.Add(1)
	go func() {
		defer wp.wg.Done()
		if wp.sem != nil {
			if err := wp.sem.P(1); err != nil {
				wp.Logf("worker pool: semaphore acquire failed: %v", err)
				return
			}
			defer wp.sem.V(1)
		}
		fn()
	}()
}

// Wait blocks until every submitted unit of work has returned. Graph does
// not call this itself — Closure.Wait is the per-run completion signal — but
// it is useful when tearing down a WorkerPool shared across runs.
func (wp *WorkerPool) Wait() { wp.wg.Wait() }

// Close releases the pool's semaphore, unblocking anything waiting to
// acquire it rather than leaving it permanently stuck (same reasoning as
// the source's util/semaphore.Semaphore.Close, adapted here for pool
// teardown).
func (wp *WorkerPool) Close() {
	if wp.sem != nil {
		wp.sem.Close()
	}
}
