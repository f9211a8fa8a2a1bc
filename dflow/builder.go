package dflow

import (
	"fmt"
	"sync"

	"github.com/dataflowgraph/dflow/internal/errwrap"
)

// ComponentContext resolves a symbolic operator name to an Operator
// instance, mirroring the source's component-registry collaborator: a
// separate concern the core deliberately never owns. A Builder may be used
// entirely without one, by always adding vertices via a direct Operator
// value.
type ComponentContext interface {
	// Lookup returns a borrowed (shared) instance or an owning factory for
	// name. Exactly one of the two return values should be non-nil.
	Lookup(name string) (instance Operator, factory func() Operator, err error)
}

// Builder accepts operator wiring in arbitrary order and produces a linked,
// validated blueprint from which executable Graphs can be instantiated. The
// builder phase is single-threaded by contract, matching the source's
// build/link separation from the concurrent execution phase.
type Builder struct {
	mu       sync.Mutex
	specs    []*VertexSpec
	nameToIdx map[string]int
	idxToName []string
	producer  map[int]*VertexSpec

	components ComponentContext

	sharedContext interface{}
	executor      Executor
	presets       map[string]Value

	finished bool

	// Logf is the teacher's own logging idiom: a caller-supplied sink
	// instead of a logging library dependency (see SPEC_FULL.md, Ambient
	// Stack / Logging).
	Logf func(format string, v ...interface{})
}

// NewBuilder creates an empty Builder. components may be nil if every vertex
// is added via AddVertex(Operator) rather than by component name.
func NewBuilder(components ComponentContext) *Builder {
	return &Builder{
		nameToIdx: make(map[string]int),
		producer:  make(map[int]*VertexSpec),
		components: components,
		Logf:      func(string, ...interface{}) {},
	}
}

func (b *Builder) logf(format string, v ...interface{}) {
	if b.Logf != nil {
		b.Logf(format, v...)
	}
}

// SetSharedContext attaches a read-only payload visible to every operator
// hook as Vertex.GraphContext.
func (b *Builder) SetSharedContext(ctx interface{}) *Builder {
	b.sharedContext = ctx
	return b
}

// SetExecutor configures the Executor non-trivial vertices run under. If
// never called, the built Graph runs every vertex inline on the activating
// goroutine.
func (b *Builder) SetExecutor(e Executor) *Builder {
	b.executor = e
	return b
}

// PresetSlot injects a caller-owned value for a root slot (one with no
// vertex emitting it) before the graph is built. Presetting a slot that is
// also emitted by a vertex seeds Slot.Preset's storage for that vertex's
// Committer to reuse.
func (b *Builder) PresetSlot(name string, v Value) *Builder {
	if b.presets == nil {
		b.presets = make(map[string]Value)
	}
	b.presets[name] = v
	return b
}

// slotIndex assigns a stable index to name on first reference: the
// "first-come" rule of the linking algorithm.
func (b *Builder) slotIndex(name string) int {
	if i, ok := b.nameToIdx[name]; ok {
		return i
	}
	i := len(b.idxToName)
	b.nameToIdx[name] = i
	b.idxToName = append(b.idxToName, name)
	return i
}

// depSpec is one dependency declaration recorded on a VertexSpec, in the
// order it was added.
type depSpec struct {
	name           string // "" for anonymous
	targetName     string
	condName       string
	hasCondition   bool
	establishValue bool
	mutable        bool
	essential      int
}

// emitSpec is one emit declaration recorded on a VertexSpec.
type emitSpec struct {
	name       string
	targetName string
}

// VertexSpec is a builder-owned handle describing one vertex's wiring,
// returned by Builder.AddVertex. Handles remain valid across subsequent
// AddVertex calls.
type VertexSpec struct {
	builder *Builder
	index   int

	name string

	op      Operator
	factory func() Operator
	pendingComponent string

	option interface{}

	deps       []*depSpec
	namedDeps  map[string]int
	emits      []*emitSpec
	namedEmits map[string]int
}

// AddVertex appends a vertex bound to a directly supplied, shared Operator
// instance.
func (b *Builder) AddVertex(op Operator) *VertexSpec {
	b.mu.Lock()
	defer b.mu.Unlock()
	vs := &VertexSpec{
		builder:    b,
		index:      len(b.specs),
		op:         op,
		namedDeps:  make(map[string]int),
		namedEmits: make(map[string]int),
	}
	b.specs = append(b.specs, vs)
	return vs
}

// AddVertexNamed appends a vertex resolved at link time through the
// Builder's ComponentContext.
func (b *Builder) AddVertexNamed(componentName string) *VertexSpec {
	b.mu.Lock()
	defer b.mu.Unlock()
	vs := &VertexSpec{
		builder:    b,
		index:      len(b.specs),
		name:       componentName,
		namedDeps:  make(map[string]int),
		namedEmits: make(map[string]int),
	}
	vs.pendingComponent = componentName
	b.specs = append(b.specs, vs)
	return vs
}

// Name sets a display name for the vertex.
func (vs *VertexSpec) Name(name string) *VertexSpec {
	vs.name = name
	return vs
}

// Option attaches an arbitrary configuration payload, retrievable from the
// operator's hooks via Vertex.Option.
func (vs *VertexSpec) Option(payload interface{}) *VertexSpec {
	vs.option = payload
	return vs
}

// NamedDepend begins a fluent dependency declaration addressable by name.
func (vs *VertexSpec) NamedDepend(name string) *DependBuilder {
	d := &depSpec{name: name, essential: EssentialOptional}
	vs.deps = append(vs.deps, d)
	vs.namedDeps[name] = len(vs.deps) - 1
	return &DependBuilder{spec: d}
}

// AnonymousDepend begins a fluent dependency declaration addressed by
// insertion order.
func (vs *VertexSpec) AnonymousDepend() *DependBuilder {
	d := &depSpec{essential: EssentialOptional}
	vs.deps = append(vs.deps, d)
	return &DependBuilder{spec: d}
}

// NamedEmit begins a fluent emit declaration addressable by name.
func (vs *VertexSpec) NamedEmit(name string) *EmitBuilder {
	e := &emitSpec{name: name}
	vs.emits = append(vs.emits, e)
	vs.namedEmits[name] = len(vs.emits) - 1
	return &EmitBuilder{spec: e}
}

// AnonymousEmit begins a fluent emit declaration addressed by insertion
// order.
func (vs *VertexSpec) AnonymousEmit() *EmitBuilder {
	e := &emitSpec{}
	vs.emits = append(vs.emits, e)
	return &EmitBuilder{spec: e}
}

// DependBuilder is the fluent continuation of NamedDepend/AnonymousDepend.
type DependBuilder struct{ spec *depSpec }

// To names the slot this dependency reads.
func (d *DependBuilder) To(slot string) *DependBuilder {
	d.spec.targetName = slot
	return d
}

// On names a condition slot that must be ready and true for this dependency
// to establish.
func (d *DependBuilder) On(cond string) *DependBuilder {
	d.spec.condName = cond
	d.spec.hasCondition = true
	d.spec.establishValue = true
	return d
}

// Unless names a condition slot that must be ready and false for this
// dependency to establish.
func (d *DependBuilder) Unless(cond string) *DependBuilder {
	d.spec.condName = cond
	d.spec.hasCondition = true
	d.spec.establishValue = false
	return d
}

// SetMutable declares whether this dependency requires mutable access to its
// target.
func (d *DependBuilder) SetMutable(b bool) *DependBuilder {
	d.spec.mutable = b
	return d
}

// SetEssential declares the dependency's essential level (0, 1 or 2).
func (d *DependBuilder) SetEssential(level int) *DependBuilder {
	d.spec.essential = level
	return d
}

// EmitBuilder is the fluent continuation of NamedEmit/AnonymousEmit.
type EmitBuilder struct{ spec *emitSpec }

// To names the slot this emit produces.
func (e *EmitBuilder) To(slot string) *EmitBuilder {
	e.spec.targetName = slot
	return e
}

// Finish performs linking: every symbolic slot name is assigned a stable
// index on first reference, walking specs in the order they were added and,
// within each spec, its dependency targets and conditions first and then
// its emits; preset-only names are indexed last. Duplicate producers are
// rejected.
func (b *Builder) Finish() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.finished {
		return nil
	}

	for _, vs := range b.specs {
		for _, d := range vs.deps {
			if d.targetName != "" {
				b.slotIndex(d.targetName)
			}
			if d.hasCondition {
				b.slotIndex(d.condName)
			}
		}
		for _, e := range vs.emits {
			idx := b.slotIndex(e.targetName)
			if existing, ok := b.producer[idx]; ok && existing != vs {
				return errwrap.Wrapf(ErrDuplicateProducer, "slot %q is emitted by both vertex %d and vertex %d", e.targetName, existing.index, vs.index)
			}
			b.producer[idx] = vs
		}
	}

	for _, vs := range b.specs {
		if vs.op != nil || vs.pendingComponent == "" {
			continue
		}
		if b.components == nil {
			return fmt.Errorf("dflow: vertex %q references component %q but no ComponentContext was configured", vs.name, vs.pendingComponent)
		}
		instance, factory, err := b.components.Lookup(vs.pendingComponent)
		if err != nil {
			return errwrap.Wrapf(err, "resolving component %q", vs.pendingComponent)
		}
		vs.op = instance
		vs.factory = factory
	}

	for name := range b.presets {
		b.slotIndex(name)
	}

	b.finished = true
	return nil
}

// Build finalizes linking (if not already done via an explicit Finish call)
// and materializes an executable Graph: slots and vertices are allocated at
// their linked indices, dependency edges are wired to their targets and
// conditions, every vertex's emits are bound to their producing slot, and
// each operator's mandatory Setup hook runs exactly once, in build order.
// Any preset values are applied last, so a Setup hook that declares a slot's
// type runs before the slot is ever touched by Preset.
func (b *Builder) Build() (*Graph, error) {
	if err := b.Finish(); err != nil {
		return nil, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	g := &Graph{
		slotByName:    make(map[string]int, len(b.idxToName)),
		sharedContext: b.sharedContext,
		executor:      b.executor,
		Logf:          b.Logf,
	}

	g.slots = make([]*Slot, len(b.idxToName))
	for i, name := range b.idxToName {
		s := newSlot(g, i, name)
		g.slots[i] = s
		g.slotByName[name] = i
	}

	g.vertices = make([]*Vertex, len(b.specs))
	for i, vs := range b.specs {
		op := vs.op
		if op == nil && vs.factory != nil {
			op = vs.factory()
		}
		g.vertices[i] = &Vertex{
			graph:      g,
			index:      i,
			name:       vs.name,
			op:         op,
			option:     vs.option,
			namedDeps:  vs.namedDeps,
			namedEmits: vs.namedEmits,
		}
	}

	for i, vs := range b.specs {
		v := g.vertices[i]
		if v.op == nil {
			return nil, fmt.Errorf("dflow: vertex %q has no operator bound", vs.displayName())
		}

		for _, e := range vs.emits {
			idx, ok := b.nameToIdx[e.targetName]
			if !ok {
				return nil, errwrap.Wrapf(ErrUnknownSlot, "vertex %q emit %q", vs.displayName(), e.targetName)
			}
			slot := g.slots[idx]
			slot.producer = v
			v.emits = append(v.emits, slot)
		}

		for _, d := range vs.deps {
			if d.targetName == "" {
				return nil, fmt.Errorf("dflow: vertex %q has a dependency with no target slot", vs.displayName())
			}
			targetIdx, ok := b.nameToIdx[d.targetName]
			if !ok {
				return nil, errwrap.Wrapf(ErrUnknownSlot, "vertex %q dependency target %q", vs.displayName(), d.targetName)
			}
			var cond *Slot
			if d.hasCondition {
				condIdx, ok := b.nameToIdx[d.condName]
				if !ok {
					return nil, errwrap.Wrapf(ErrUnknownSlot, "vertex %q dependency condition %q", vs.displayName(), d.condName)
				}
				cond = g.slots[condIdx]
			}
			dep := newDependency(v, g.slots[targetIdx], cond, d.establishValue, d.mutable, d.essential)
			v.deps = append(v.deps, dep)
		}
	}

	for _, v := range g.vertices {
		if err := v.op.Setup(v); err != nil {
			return nil, errwrap.Wrapf(ErrSetupFailed, "vertex %q: %v", v.name, err)
		}
	}

	for _, s := range g.slots {
		if s.typeErr {
			return nil, errwrap.Wrapf(ErrTypeConflict, "slot %q", s.name)
		}
	}

	for name, val := range b.presets {
		idx := b.nameToIdx[name]
		g.slots[idx].Preset(val)
	}

	return g, nil
}

func (vs *VertexSpec) displayName() string {
	if vs.name != "" {
		return vs.name
	}
	return fmt.Sprintf("#%d", vs.index)
}
