package dflow

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// Closure is the two-phase completion handle returned by Graph.Run. It
// tracks two independent countdowns — pending requested slots ("finish")
// and pending vertex work ("flush") — and exposes both as
// one-shot, channel-close gates in the teacher's own event-signaling idiom
// (compare the source's engine/event.Msg, which closes a channel exactly
// once to broadcast an ACK to any number of waiters).
type Closure struct {
	id uuid.UUID

	graph  *Graph
	ctx    context.Context
	cancel context.CancelFunc

	// pendingData/pendingVertex start biased by one extra unit, released
	// only after every requested slot has been registered and every
	// runnable vertex pushed for this run. That avoids the race where the
	// last real registration fires the gate before the run has finished
	// being set up (see DESIGN.md, "Closure bias of one").
	pendingData   int64
	pendingVertex int64

	finishOnce sync.Once
	finishGate chan struct{}

	flushOnce sync.Once
	flushGate chan struct{}

	mu       sync.Mutex
	code     int
	err      error
	callback func(*Closure)

	requested []*Slot
}

func newClosure(g *Graph, requested []*Slot) *Closure {
	c := &Closure{
		id:            uuid.New(),
		graph:         g,
		pendingData:   int64(len(requested)) + 1,
		pendingVertex: 1,
		finishGate:    make(chan struct{}),
		flushGate:     make(chan struct{}),
		requested:     requested,
	}
	return c
}

// ID returns the run's unique identifier.
func (c *Closure) ID() uuid.UUID { return c.id }

// Context returns the run's cancellable context. It is cancelled
// automatically once the run aborts or completes, so long-running
// AsyncProcessor implementations can select on it to stop early.
func (c *Closure) Context() context.Context { return c.ctx }

// begin releases the initial bias once registration of all requested slots
// and all initially-runnable vertices has completed.
func (c *Closure) begin() {
	c.dataCleared()
	c.vertexCleared()
}

// dataCleared is called once per requested slot, either synchronously (slot
// already ready) or from Slot.publish, and once more by begin to release the
// initial bias.
func (c *Closure) dataCleared() {
	if atomic.AddInt64(&c.pendingData, -1) == 0 {
		c.finishOnce.Do(func() { close(c.finishGate) })
	}
}

// trackVertex increments the pending-vertex countdown; called once per
// vertex pushed onto the runnable path for this run.
func (c *Closure) trackVertex() {
	atomic.AddInt64(&c.pendingVertex, 1)
}

// vertexCleared is called once per vertex that has finished running
// (successfully, skipped, or failed), and once more by begin to release the
// initial bias.
func (c *Closure) vertexCleared() {
	if atomic.AddInt64(&c.pendingVertex, -1) == 0 {
		c.flushOnce.Do(func() {
			close(c.flushGate)
			c.fire()
		})
	}
}

// fail records the run's terminal error and code, keeping only the first
// failure: later ones are observationally dropped since they race to a
// closed gate anyway.
func (c *Closure) fail(code int, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.code == CodeSuccess {
		c.code = code
		c.err = err
	}
}

func (c *Closure) fire() {
	if c.cancel != nil {
		c.cancel()
	}
	c.mu.Lock()
	cb := c.callback
	c.mu.Unlock()
	if cb != nil {
		cb(c)
	}
}

// abort records err as the run's terminal failure and force-closes both
// gates regardless of outstanding pending counts. It exists for failure
// modes where the ordinary countdown can never reach zero on its own — most
// notably an OnActivate failure, which leaves some dependency edges
// permanently unregistered — so waiting on Wait/Get/OnFinish cannot hang.
func (c *Closure) abort(code int, err error) {
	c.fail(code, err)
	c.finishOnce.Do(func() { close(c.finishGate) })
	c.flushOnce.Do(func() {
		close(c.flushGate)
		c.fire()
	})
}

// OnFinish registers a callback invoked once every requested slot has
// either been published or is provably unreachable. If the finish gate has
// already fired, the callback is invoked synchronously and immediately.
func (c *Closure) OnFinish(fn func(*Closure)) {
	select {
	case <-c.finishGate:
		fn(c)
	default:
		go func() {
			<-c.finishGate
			fn(c)
		}()
	}
}

// OnDone registers a callback invoked once every vertex touched by this run
// has finished (the "flush" gate). If the flush gate has already fired, the
// callback is invoked synchronously and immediately.
func (c *Closure) OnDone(fn func(*Closure)) {
	c.mu.Lock()
	already := false
	select {
	case <-c.flushGate:
		already = true
	default:
		c.callback = fn
	}
	c.mu.Unlock()
	if already {
		fn(c)
	}
}

// Wait blocks until every vertex touched by this run has finished (the
// "flush" gate): a stronger guarantee than Finished, useful for callers that
// need every side effect to have landed, not just the requested outputs to
// be available.
func (c *Closure) Wait() {
	<-c.flushGate
}

// Finished reports whether every requested slot has settled.
func (c *Closure) Finished() bool {
	select {
	case <-c.finishGate:
		return true
	default:
		return false
	}
}

// ErrorCode returns the run's terminal error code (CodeSuccess if none).
// Only meaningful after Wait returns or within a Wait-gated OnFinish/OnDone
// callback.
func (c *Closure) ErrorCode() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.code
}

// Get waits for the run to fully flush and returns its terminal error, if
// any.
func (c *Closure) Get() error {
	c.Wait()
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Requested returns the slots this run was asked to produce, in the order
// they were requested.
func (c *Closure) Requested() []*Slot { return c.requested }
