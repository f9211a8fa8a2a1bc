package dflow

import "reflect"

// constOp emits a fixed value under a declared type, with no dependencies.
// Used as a source vertex in most scenario tests below.
type constOp struct {
	emitName string
	typ      reflect.Type
	value    interface{}
}

func (o *constOp) Setup(v *Vertex) error {
	slot, _ := v.Emit(o.emitName)
	return slot.DeclareType(o.typ)
}

func (o *constOp) Process(v *Vertex) error {
	slot, _ := v.Emit(o.emitName)
	c := slot.Emit()
	if c.Valid() {
		c.Set(NewValue(o.value))
	}
	c.Close()
	return nil
}

// passOp forwards one named dependency straight to one named emit.
type passOp struct {
	depName  string
	emitName string
	mutable  bool
}

func (o *passOp) Setup(v *Vertex) error { return nil }

func (o *passOp) Process(v *Vertex) error {
	dep, _ := v.Dep(o.depName)
	emit, _ := v.Emit(o.emitName)
	return emit.Forward(dep, o.mutable)
}

// recordingOp appends its name to a shared log when Process runs, and
// optionally fails.
type recordingOp struct {
	log  *[]string
	name string
	err  error
}

func (o *recordingOp) Setup(v *Vertex) error { return nil }

func (o *recordingOp) Process(v *Vertex) error {
	*o.log = append(*o.log, o.name)
	return o.err
}

// joinOp sums two named dependencies into one named emit, a minimal
// diamond-join operator.
type joinOp struct {
	depA, depB, emit string
}

func (o *joinOp) Setup(v *Vertex) error { return nil }

func (o *joinOp) Process(v *Vertex) error {
	a, _ := v.Dep(o.depA)
	b, _ := v.Dep(o.depB)
	e, _ := v.Emit(o.emit)
	c := e.Emit()
	if c.Valid() {
		c.Set(NewValue(a.Value().Int() + b.Value().Int()))
	}
	c.Close()
	return nil
}

// activateFailOp fails OnActivate unconditionally.
type activateFailOp struct {
	emitName string
	err      error
}

func (o *activateFailOp) Setup(v *Vertex) error {
	if o.emitName == "" {
		return nil
	}
	slot, _ := v.Emit(o.emitName)
	return slot.DeclareType(Any)
}

func (o *activateFailOp) OnActivate(v *Vertex) error { return o.err }

func (o *activateFailOp) Process(v *Vertex) error { return nil }
