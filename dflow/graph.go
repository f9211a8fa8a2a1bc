package dflow

import (
	"context"
	"fmt"
	"sync"

	"github.com/dataflowgraph/dflow/internal/errwrap"
)

// Graph is a built, linked, immutable-shape blueprint of vertices and slots,
// ready to be run any number of times. Everything that varies between runs
// — slot values, activation flags, waiting counts — is reset between runs
// rather than rebuilt; the wiring computed at build time is reused for the
// lifetime of the Graph.
type Graph struct {
	slots    []*Slot
	vertices []*Vertex

	slotByName map[string]int

	sharedContext interface{}

	executor Executor

	Logf func(format string, v ...interface{})

	mu      sync.Mutex
	running bool
	current *Closure
}

// FindSlot looks up a slot by its symbolic name.
func (g *Graph) FindSlot(name string) (*Slot, bool) {
	i, ok := g.slotByName[name]
	if !ok {
		return nil, false
	}
	return g.slots[i], true
}

// SharedContext returns the read-only payload configured at build time via
// Builder.SetSharedContext, visible to every operator hook through
// Vertex.GraphContext.
func (g *Graph) SharedContext() interface{} { return g.sharedContext }

// ForEachVertex calls fn once per vertex, in build order.
func (g *Graph) ForEachVertex(fn func(*Vertex)) {
	for _, v := range g.vertices {
		fn(v)
	}
}

func (g *Graph) logf(format string, v ...interface{}) {
	if g.Logf != nil {
		g.Logf(format, v...)
	}
}

// Reset restores every slot and vertex to its pre-run state, so the Graph
// can be Run again. It also invokes every operator's optional Resetter hook,
// in build order, matching the source's own teardown-before-reuse idiom. An
// error from any Resetter aborts the reset early and is returned wrapped
// with the failing vertex's name.
func (g *Graph) Reset() error {
	g.mu.Lock()
	if g.running {
		g.mu.Unlock()
		return fmt.Errorf("dflow: cannot reset a graph while a run is in progress")
	}
	g.mu.Unlock()

	for _, v := range g.vertices {
		if r, ok := v.op.(Resetter); ok {
			if err := r.Reset(v); err != nil {
				return errwrap.Wrapf(err, "resetting vertex %q", v.name)
			}
		}
		v.reset()
	}
	for _, s := range g.slots {
		s.reset()
	}
	return nil
}

// Run activates the vertices needed to produce every named slot and returns
// a Closure tracking the run's progress. Requesting an unknown slot name is
// a build-time-class error returned immediately, not folded into the
// Closure. Requesting a slot with no viable path to a producer or preset
// value is diagnosed immediately and surfaces through the Closure as
// CodeUnreachable, mirroring the source's own reachability analysis
// (pgraph.Reachability) rather than letting the run hang.
func (g *Graph) Run(ctx context.Context, names ...string) (*Closure, error) {
	slots := make([]*Slot, 0, len(names))
	for _, n := range names {
		s, ok := g.FindSlot(n)
		if !ok {
			return nil, errwrap.Wrapf(ErrUnknownSlot, "requested slot %q", n)
		}
		slots = append(slots, s)
	}

	g.mu.Lock()
	if g.running {
		g.mu.Unlock()
		return nil, fmt.Errorf("dflow: graph is already running")
	}
	g.running = true
	g.mu.Unlock()

	if ctx == nil {
		ctx = context.Background()
	}
	runCtx, cancel := context.WithCancel(ctx)

	c := newClosure(g, slots)
	c.cancel = cancel
	c.ctx = runCtx

	g.mu.Lock()
	g.current = c
	g.mu.Unlock()

	for _, v := range g.vertices {
		v.closure = c
	}

	// Each unsatisfiable requested slot contributes its own wrapped error;
	// go-multierror.Append (via internal/errwrap.Append) accumulates them into
	// one diagnostic so a caller sees every dead-end root at once instead of
	// only the first one found, mirroring the teacher's own errwrap.Append
	// usage for multi-cause failures.
	var unreachable error
	for _, s := range slots {
		if path := g.unreachableWalk(s); path != nil {
			unreachable = errwrap.Append(unreachable, errwrap.Wrapf(ErrUnreachable, "%s", describePath(path)))
		}
	}
	if unreachable != nil {
		c.abort(CodeUnreachable, unreachable)
		g.finishRun()
		return c, nil
	}

	// Demand-driven activation: requesting a slot activates its producer,
	// whose own activation (Vertex.activate) recursively pursues each of
	// its dependencies' targets via Dependency.pursueTarget/requestActivate,
	// all the way back to root producers. A vertex unconnected to any
	// requested slot is never activated at all.
	for _, s := range slots {
		if s.IsReady() {
			c.dataCleared()
			continue
		}
		s.bindClosure(c)
		requestActivate(s)
	}

	c.begin()

	go func() {
		c.Wait()
		g.finishRun()
	}()

	return c, nil
}

func (g *Graph) finishRun() {
	g.mu.Lock()
	g.running = false
	g.current = nil
	g.mu.Unlock()
}

// pushRunnable is called by Vertex.activate/dependencyCleared once a vertex
// has no outstanding dependencies left to wait on. It dispatches to the
// trivial inline fast path or to the configured Executor.
func (g *Graph) pushRunnable(v *Vertex) {
	c := v.closure
	c.trackVertex()
	if v.Trivial() || g.executor == nil {
		g.invoke(v)
		return
	}
	g.executor.Submit(func() { g.invoke(v) })
}

// failActivation aborts the current run when an activation-phase failure
// occurs: either an operator's OnActivate hook returning an error, or a
// dependency's target-mutability acquisition losing its CAS race. Unlike a
// Process/ProcessAsync failure, an activation failure can leave dependency
// edges permanently unregistered (the failing vertex never reaches the
// point of activating its own dependencies), so there is no safe way to let
// the run continue converging on its own; we abort immediately.
func (g *Graph) failActivation(code int, err error) {
	g.mu.Lock()
	c := g.current
	g.mu.Unlock()
	if c == nil {
		return
	}
	c.abort(code, errwrap.Wrapf(err, "activation failed"))
}

// checkEssential inspects v's established dependencies for emptiness against
// their essential level. failed reports an essential-level-2 violation
// (fails the whole run); skip reports an essential-level-1 violation (the
// vertex itself is skipped, its emits never publish).
func checkEssential(v *Vertex) (failed, skip bool) {
	for _, d := range v.deps {
		if !d.Ready() {
			continue
		}
		if !d.Empty() {
			continue
		}
		switch d.Essential() {
		case EssentialFail:
			failed = true
		case EssentialSkip:
			skip = true
		}
	}
	return failed, skip
}

// invoke runs one activated, dependency-cleared vertex's computation. It is
// called either inline (trivial fast path, or no executor configured) or
// from an Executor-managed goroutine.
func (g *Graph) invoke(v *Vertex) {
	c := v.closure

	if failed, skip := checkEssential(v); failed || skip {
		if failed {
			c.abort(CodeEssentialEmpty, errwrap.Wrapf(ErrEssentialEmpty, "vertex %q", v.name))
		}
		c.vertexCleared()
		return
	}

	if op, ok := v.op.(AsyncProcessor); ok {
		done := completionFunc(func(err error) {
			if err != nil {
				c.abort(CodeOperatorFailed, errwrap.Wrapf(err, "vertex %q", v.name))
			}
			c.vertexCleared()
		})
		op.ProcessAsync(v, done)
		return
	}

	defer c.vertexCleared()
	if op, ok := v.op.(SyncProcessor); ok {
		if err := op.Process(v); err != nil {
			c.abort(CodeOperatorFailed, errwrap.Wrapf(err, "vertex %q", v.name))
		}
	}
}

// unreachableWalk performs a memoized depth-first walk backward from s
// through producer chains, grounded on the source's own pgraph.Reachability
// recursive traversal. It returns the first dead-end path found — a
// sequence of slots ending at one with neither a producer nor a preset
// value — or nil if every path it explored eventually bottoms out at a
// preset slot or at a producer with no unconditional dependencies. The
// visited set guards against revisiting a
// slot already ruled reachable, which also makes the walk safe on graphs
// containing diamonds (the same dependency reachable through two paths).
//
// Only unconditional dependency targets are treated as hard requirements:
// a dependency guarded by On/Unless might never be pursued at all, so its
// target being unreachable does not by itself doom the run (see the
// conditional-skip scenario in the tests) and a condition slot with no
// producer is a separate, build-time-detectable wiring concern rather than
// a runtime-unreachable one.
func (g *Graph) unreachableWalk(s *Slot) []*Slot {
	visited := make(map[*Slot]bool)
	return walkSlot(s, visited)
}

func walkSlot(s *Slot, visited map[*Slot]bool) []*Slot {
	if visited[s] {
		return nil
	}
	visited[s] = true

	if s.presetSet {
		return nil
	}
	if s.producer == nil {
		return []*Slot{s}
	}
	for _, d := range s.producer.deps {
		if d.condition != nil {
			continue // not a hard requirement; see doc comment above
		}
		if path := walkSlot(d.target, visited); path != nil {
			return append([]*Slot{s}, path...)
		}
	}
	return nil
}

func describePath(path []*Slot) string {
	out := ""
	for i, s := range path {
		if i > 0 {
			out += " -> "
		}
		out += s.Name()
	}
	return out
}
