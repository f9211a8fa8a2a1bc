package dflow

import "sync/atomic"

// Essential levels a Dependency's target can be declared at.
const (
	EssentialOptional = 0 // empty is permissible
	EssentialSkip     = 1 // ready-but-empty skips the owning vertex
	EssentialFail     = 2 // ready-but-empty fails the run
)

// Dependency is a directed edge from a vertex to a target slot and an
// optional condition slot, modelled on GraphDependency. It couples target
// readiness and condition evaluation into one edge that converges to an
// unambiguous terminal state under concurrent resolution of either slot.
//
// Each Dependency instance is only ever driven by the one vertex that owns
// it, and each of its two possible wake-up paths (condition settling, target
// settling) fires at most once, because a Slot only walks its successor list
// once, at publish time (see Slot.publish). That lets the edge's own state
// transitions go lock-free: no two goroutines ever race to mutate the same
// Dependency field. The only shared, genuinely racy piece of state is
// whether a Slot is already ready at registration time, and that race is
// resolved inside Slot.addSuccessorOrFire under the slot's own mutex.
//
// waitingNum is kept purely as an observable token counter whose terminal
// values are 0 or -1 (-1 iff the condition resolved false); control flow
// itself is driven by explicit ready/established queries rather than by
// branching on its arithmetic, which lets us avoid GraphDependency's
// lock-free counter choreography (dependency.hpp's activate/ready pair)
// while preserving its externally visible contract. See DESIGN.md.
type Dependency struct {
	vertex         *Vertex
	target         *Slot
	condition      *Slot // nil means unconditional
	establishValue bool  // polarity the condition must match to establish (.on = true, .unless = false)
	mutable        bool
	essential      int

	waitingNum  int64 // atomic, observational (P4)
	established int32 // atomic bool, meaningful once settled
	ready       int32 // atomic bool
}

func newDependency(v *Vertex, target, condition *Slot, establishValue, mutable bool, essential int) *Dependency {
	return &Dependency{
		vertex:         v,
		target:         target,
		condition:      condition,
		establishValue: establishValue,
		mutable:        mutable,
		essential:      essential,
	}
}

// Target returns the slot this dependency ultimately reads.
func (d *Dependency) Target() *Slot { return d.target }

// Condition returns the optional condition slot, or nil.
func (d *Dependency) Condition() *Slot { return d.condition }

// Essential returns the essential level (0, 1 or 2).
func (d *Dependency) Essential() int { return d.essential }

// Ready reports whether the edge has reached its ready terminal state:
// established and the target has been published.
func (d *Dependency) Ready() bool { return atomic.LoadInt32(&d.ready) != 0 }

// Established reports whether the edge's condition (if any) resolved with
// the expected polarity.
func (d *Dependency) Established() bool { return atomic.LoadInt32(&d.established) != 0 }

// Empty reports whether the edge is ready but its target carries no value.
func (d *Dependency) Empty() bool { return d.Ready() && d.target.IsEmpty() }

func (d *Dependency) reset() {
	atomic.StoreInt64(&d.waitingNum, 0)
	atomic.StoreInt32(&d.established, 0)
	atomic.StoreInt32(&d.ready, 0)
}

// evaluateCondition reads the (already-ready) condition slot and compares its
// boolean value against the establish polarity.
func (d *Dependency) evaluateCondition() bool {
	return d.condition.Value().Bool() == d.establishValue
}

// activate performs the edge's once-per-run registration. The owning vertex
// calls this exactly once, after CASing its own activated flag and storing
// its waiting count.
func (d *Dependency) activate() {
	if d.condition == nil {
		atomic.StoreInt32(&d.established, 1)
		d.pursueTarget()
		return
	}
	if d.condition.addSuccessorOrFire(d, roleCondition) {
		d.onConditionReady()
		return
	}
	requestActivate(d.condition)
}

// onConditionReady runs exactly once, either synchronously from activate (if
// the condition was already published) or from notify when the condition's
// producer later publishes it.
func (d *Dependency) onConditionReady() {
	if d.evaluateCondition() {
		atomic.StoreInt32(&d.established, 1)
		d.pursueTarget()
		return
	}
	atomic.StoreInt32(&d.established, 0)
	// The target will never be awaited: retire to the -1 terminal.
	atomic.StoreInt64(&d.waitingNum, -1)
	d.vertex.dependencyCleared()
}

// pursueTarget is reached once the edge is known to be established. It either
// resolves immediately (target already ready) or registers for a future
// notification and kicks off the target's producer.
func (d *Dependency) pursueTarget() {
	if d.target.IsReady() {
		d.finishReady()
		return
	}
	if d.target.addSuccessorOrFire(d, roleTarget) {
		d.finishReady()
		return
	}
	requestActivate(d.target)
}

// finishReady runs exactly once, when the edge is established and its target
// has just been confirmed ready. It performs the target's mutability
// acquisition and wakes the owning vertex.
func (d *Dependency) finishReady() {
	var err error
	if d.mutable {
		err = d.target.acquireMutable()
	} else {
		err = d.target.acquireImmutable()
	}
	if err != nil {
		d.vertex.graph.failActivation(CodeMutabilityConflict, err)
		atomic.StoreInt64(&d.waitingNum, 0)
		d.vertex.dependencyCleared()
		return
	}
	atomic.StoreInt64(&d.waitingNum, 0)
	atomic.StoreInt32(&d.ready, 1)
	d.vertex.dependencyCleared()
}

// notify is called by a slot's publish path when a slot this edge is
// registered against becomes ready.
func (d *Dependency) notify(r role) {
	if r == roleCondition {
		d.onConditionReady()
		return
	}
	d.finishReady()
}

// requestActivate asks for a slot's producer to start running, so that it
// will eventually become ready and trigger this edge's notify. A root slot
// (no producer) that isn't ready yet simply never resolves this edge.
func requestActivate(s *Slot) {
	if s.producer != nil {
		s.producer.activate()
	}
}
