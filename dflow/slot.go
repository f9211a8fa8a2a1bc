package dflow

import (
	"reflect"
	"sync"
	"sync/atomic"
)

// role distinguishes which half of a combined dependency a slot notification
// is arriving for.
type role int

const (
	roleTarget role = iota
	roleCondition
)

type successorEntry struct {
	dep  *Dependency
	role role
}

// Slot is a typed, single-assignment publication cell, modelled on GraphData.
// At most one vertex ever produces it, and it is written at most once per
// run.
type Slot struct {
	graph *Graph
	index int
	name  string

	typ             reflect.Type
	channel         bool
	channelElemType reflect.Type
	typeErr         bool

	producer *Vertex // nil for a root slot

	mu             sync.Mutex
	ready          bool
	value          Value
	successors     []successorEntry
	closureWaiters []*Closure

	presetSet   bool
	presetValue Value

	acquireFlag int32 // CAS: single committer wins the right to publish
	depState    int32 // 0 = none, 1 = one-or-more immutable readers, 2 = one mutable reader
}

func newSlot(g *Graph, index int, name string) *Slot {
	return &Slot{graph: g, index: index, name: name}
}

// DeclareType records the slot's value type the first time it is called.
// Subsequent calls with a conflicting type mark the slot as erroneous, which
// surfaces as a Graph build failure. Any never conflicts.
func (s *Slot) DeclareType(t reflect.Type) error {
	if t == nil || t == Any {
		return nil
	}
	if s.typ == nil || s.typ == Any {
		s.typ = t
		return nil
	}
	if s.typ != t {
		s.typeErr = true
		return ErrTypeConflict
	}
	return nil
}

// DeclareChannel marks this slot as a streaming queue of elemType.
func (s *Slot) DeclareChannel(elemType reflect.Type) error {
	s.channel = true
	s.channelElemType = elemType
	return s.DeclareType(reflect.TypeOf((*Channel)(nil)))
}

// Name returns the slot's symbolic name.
func (s *Slot) Name() string { return s.name }

// Index returns the slot's stable index, assigned at link time.
func (s *Slot) Index() int { return s.index }

// Preset injects a caller-owned value before a run begins. For a root slot
// (no producer) this makes the slot ready immediately; for a slot with a
// producer, the value is held until the producer's Committer calls
// UsePreset, so that the committer can reuse this storage instead of
// constructing fresh storage.
func (s *Slot) Preset(v Value) {
	s.mu.Lock()
	s.presetSet = true
	s.presetValue = v
	s.mu.Unlock()
	if s.producer == nil {
		s.publish(v)
	}
}

// reset restores the slot to its initial, unready state for a new run. A
// preset root value is immediately restored to ready.
func (s *Slot) reset() {
	s.mu.Lock()
	s.ready = false
	s.value = Value{}
	s.successors = nil
	s.closureWaiters = nil
	s.mu.Unlock()
	atomic.StoreInt32(&s.acquireFlag, 0)
	atomic.StoreInt32(&s.depState, 0)
	if s.producer == nil && s.presetSet {
		s.publish(s.presetValue)
	}
}

// Emit returns a Committer: a scoped single-winner writer for this slot. Only
// the CAS winner may publish; all other callers receive an inert Committer.
func (s *Slot) Emit() *Committer {
	won := atomic.CompareAndSwapInt32(&s.acquireFlag, 0, 1)
	return &Committer{slot: s, won: won}
}

// publish performs the actual write-then-notify sequence shared by Emit's
// Committer.Close and by Preset on root slots.
func (s *Slot) publish(v Value) {
	s.mu.Lock()
	if s.ready {
		s.mu.Unlock()
		return
	}
	s.ready = true
	s.value = v
	succs := s.successors
	s.successors = nil
	waiters := s.closureWaiters
	s.closureWaiters = nil
	s.mu.Unlock()

	// Release semantics: the write above happens-before every notification
	// below, so a dependent observing ready=true always sees this value.
	for _, e := range succs {
		e.dep.notify(e.role)
	}
	for _, c := range waiters {
		c.dataCleared()
	}
}

// addSuccessorOrFire registers dep to be notified when this slot becomes
// ready. If the slot is already ready, it returns true immediately instead of
// registering, since a slot only walks its successor list once, at publish
// time.
func (s *Slot) addSuccessorOrFire(dep *Dependency, r role) (alreadyReady bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ready {
		return true
	}
	s.successors = append(s.successors, successorEntry{dep: dep, role: r})
	return false
}

// bindClosure registers c to be notified when this slot becomes ready, or
// immediately decrements c's pending-data count if it already is.
func (s *Slot) bindClosure(c *Closure) {
	s.mu.Lock()
	if s.ready {
		s.mu.Unlock()
		c.dataCleared()
		return
	}
	s.closureWaiters = append(s.closureWaiters, c)
	s.mu.Unlock()
}

// IsReady reports whether the slot has been published in the current run.
func (s *Slot) IsReady() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ready
}

// IsEmpty reports whether the slot is ready but was published with no value
// (the "empty" glossary term).
func (s *Slot) IsEmpty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ready && s.value.IsEmpty()
}

// Value returns the published value. Only meaningful once IsReady is true.
func (s *Slot) Value() Value {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.value
}

// acquireImmutable registers one more immutable reader of this slot. It
// fails only if a mutable reader already holds the slot.
func (s *Slot) acquireImmutable() error {
	for {
		old := atomic.LoadInt32(&s.depState)
		if old == 2 {
			return ErrMutabilityConflict
		}
		if atomic.CompareAndSwapInt32(&s.depState, old, 1) {
			return nil
		}
	}
}

// acquireMutable registers the single mutable reader of this slot. It
// succeeds only if no reader (mutable or immutable) exists yet.
func (s *Slot) acquireMutable() error {
	if atomic.CompareAndSwapInt32(&s.depState, 0, 2) {
		return nil
	}
	return ErrMutabilityConflict
}

// IsMutableHeld reports whether this slot currently has a mutable reader.
func (s *Slot) IsMutableHeld() bool {
	return atomic.LoadInt32(&s.depState) == 2
}

// Forward carries dep's value into this slot via a fresh Committer,
// mirroring GraphData::forward: the alias is kept only when the caller
// actually wants mutable access and dep is itself a live mutable alias;
// otherwise the value is demoted to an owned copy so this slot's readers
// can't reach back into a chain of forwards they never asked to mutate.
func (s *Slot) Forward(dep *Slot, wantMutable bool) error {
	c := s.Emit()
	if !c.Valid() {
		return nil
	}
	defer c.Close()
	v := dep.Value()
	if wantMutable && v.IsMutableRef() {
		c.Set(v)
		return nil
	}
	c.Set(v.Owned())
	return nil
}

// Committer is a move-only scoped writer returned by Slot.Emit. Its Close
// method publishes the slot unless the committer lost the acquire race (in
// which case it is inert) or was explicitly Cancelled.
type Committer struct {
	slot *Slot
	won  bool
	done bool
}

// Valid reports whether this committer won the single-writer race.
func (c *Committer) Valid() bool { return c.won }

// Set stores v as the value to publish when Close is called. Calling Set on
// a losing committer is a silent no-op.
func (c *Committer) Set(v Value) {
	if !c.won || c.done {
		return
	}
	c.slot.mu.Lock()
	c.slot.value = v
	c.slot.mu.Unlock()
}

// SetEmpty marks the slot to publish with no value.
func (c *Committer) SetEmpty() { c.Set(Empty()) }

// Ref aliases an externally owned mutable object instead of constructing a
// fresh value.
func (c *Committer) Ref(ptr interface{}) { c.Set(NewRef(ptr)) }

// ConstRef aliases an externally owned read-only object.
func (c *Committer) ConstRef(ptr interface{}) { c.Set(NewConstRef(ptr)) }

// UsePreset stages whatever value was registered via Slot.Preset, if any,
// reusing its storage; Close then publishes it. It is a no-op if no preset
// was set.
func (c *Committer) UsePreset() {
	c.slot.mu.Lock()
	set, v := c.slot.presetSet, c.slot.presetValue
	c.slot.mu.Unlock()
	if set {
		c.Set(v)
	}
}

// Cancel marks the committer as not publishing. Calling Cancel after Close,
// or twice, is a programming error ("double-release").
func (c *Committer) Cancel() {
	if c.done {
		panic(ErrDoubleRelease)
	}
	c.done = true
}

// Close publishes the slot's staged value unless this committer lost the
// acquire race (inert) or was already closed/cancelled (panics).
func (c *Committer) Close() {
	if !c.won {
		return
	}
	if c.done {
		panic(ErrDoubleRelease)
	}
	c.done = true
	c.slot.mu.Lock()
	v := c.slot.value
	c.slot.mu.Unlock()
	c.slot.publish(v)
}
