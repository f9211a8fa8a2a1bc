package dflow

import "sync/atomic"

// Vertex is one operator invocation site together with its wired edges,
// modelled on GraphVertex. All per-run mutable state lives here; the
// wiring itself (operator, option payload, dependency/emit lists) is
// immutable once the owning Graph is built.
type Vertex struct {
	graph *Graph
	index int
	name  string

	op     Operator
	option interface{}

	deps       []*Dependency
	namedDeps  map[string]int
	emits      []*Slot
	namedEmits map[string]int

	trivial int32 // atomic bool, settable from Setup

	ctx interface{} // per-vertex, per-Graph scratch set by setup/on_activate

	activated  int32 // atomic bool: CAS-gated, exactly one activation per run
	waitingNum int64 // atomic: number of dependencies not yet cleared

	closure *Closure // the run driving this vertex's activation, if any
}

// Index returns the vertex's stable position in the graph.
func (v *Vertex) Index() int { return v.index }

// Name returns the vertex's display name, if one was set.
func (v *Vertex) Name() string { return v.name }

// Trivial reports whether this vertex is marked cheap enough to run inline.
func (v *Vertex) Trivial() bool { return atomic.LoadInt32(&v.trivial) != 0 }

// SetTrivial marks the vertex as trivial (callable from setup).
func (v *Vertex) SetTrivial(b bool) {
	n := int32(0)
	if b {
		n = 1
	}
	atomic.StoreInt32(&v.trivial, n)
}

// Option returns the operator-specific configuration payload set on this
// vertex by the Builder.
func (v *Vertex) Option() interface{} { return v.option }

// Context returns the per-vertex scratch payload.
func (v *Vertex) Context() interface{} { return v.ctx }

// SetContext stores a per-vertex scratch payload, scoped to the lifetime of
// the owning Graph (cleared only by an operator's own Reset hook, never by
// the engine).
func (v *Vertex) SetContext(x interface{}) { v.ctx = x }

// Dep returns the named dependency's target slot.
func (v *Vertex) Dep(name string) (*Slot, bool) {
	i, ok := v.namedDeps[name]
	if !ok {
		return nil, false
	}
	return v.deps[i].Target(), true
}

// AnonDep returns the i'th anonymously-ordered dependency's target slot.
func (v *Vertex) AnonDep(i int) (*Slot, bool) {
	if i < 0 || i >= len(v.deps) {
		return nil, false
	}
	return v.deps[i].Target(), true
}

// DependEdge returns the named dependency's edge (for mutability/essential
// introspection from within an operator hook).
func (v *Vertex) DependEdge(name string) (*Dependency, bool) {
	i, ok := v.namedDeps[name]
	if !ok {
		return nil, false
	}
	return v.deps[i], true
}

// Emit returns the named emit slot.
func (v *Vertex) Emit(name string) (*Slot, bool) {
	i, ok := v.namedEmits[name]
	if !ok {
		return nil, false
	}
	return v.emits[i], true
}

// AnonEmit returns the i'th anonymously-ordered emit slot.
func (v *Vertex) AnonEmit(i int) (*Slot, bool) {
	if i < 0 || i >= len(v.emits) {
		return nil, false
	}
	return v.emits[i], true
}

// GraphContext returns the Graph's shared, read-only context payload.
func (v *Vertex) GraphContext() interface{} { return v.graph.SharedContext() }

func (v *Vertex) reset() {
	atomic.StoreInt32(&v.activated, 0)
	atomic.StoreInt64(&v.waitingNum, 0)
	v.closure = nil
	for _, d := range v.deps {
		d.reset()
	}
}

// activate is the vertex activation algorithm. It is idempotent per run:
// only the CAS winner proceeds.
func (v *Vertex) activate() {
	if !atomic.CompareAndSwapInt32(&v.activated, 0, 1) {
		return
	}

	n := len(v.deps)
	if n == 0 {
		v.graph.pushRunnable(v)
		return
	}

	atomic.StoreInt64(&v.waitingNum, int64(n))

	if a, ok := v.op.(Activator); ok {
		if err := a.OnActivate(v); err != nil {
			v.graph.failActivation(CodeOperatorFailed, err)
			return
		}
	}

	for _, d := range v.deps {
		d.activate()
	}
}

// dependencyCleared is called by a Dependency once it reaches its ready (or
// not-established) terminal. When every dependency has cleared, the vertex
// becomes runnable.
func (v *Vertex) dependencyCleared() {
	if atomic.AddInt64(&v.waitingNum, -1) == 0 {
		v.graph.pushRunnable(v)
	}
}
