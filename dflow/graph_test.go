package dflow

import (
	"context"
	"errors"
	"testing"
)

func buildOrFatal(t *testing.T, b *Builder) *Graph {
	t.Helper()
	g, err := b.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	return g
}

// TestDiamond wires A -> {B, C} -> D and checks the join result, the
// textbook shape for exercising Dependency.pursueTarget's register-for-later
// path (B waiting on x) and its already-ready path (C finding x published)
// on the same slot.
func TestDiamond(t *testing.T) {
	b := NewBuilder(nil)

	vA := b.AddVertex(&constOp{emitName: "x", typ: Any, value: int64(10)}).Name("A")
	vA.NamedEmit("x").To("x")

	vB := b.AddVertex(&passOp{depName: "x", emitName: "y"}).Name("B")
	vB.NamedDepend("x").To("x")
	vB.NamedEmit("y").To("y")

	vC := b.AddVertex(&passOp{depName: "x", emitName: "z"}).Name("C")
	vC.NamedDepend("x").To("x")
	vC.NamedEmit("z").To("z")

	vD := b.AddVertex(&joinOp{depA: "y", depB: "z", emit: "w"}).Name("D")
	vD.NamedDepend("y").To("y")
	vD.NamedDepend("z").To("z")
	vD.NamedEmit("w").To("w")

	g := buildOrFatal(t, b)

	c, err := g.Run(context.Background(), "w")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	c.Wait()
	if err := c.Get(); err != nil {
		t.Fatalf("run failed: %v", err)
	}
	w, _ := g.FindSlot("w")
	if got := w.Value().Int(); got != 20 {
		t.Errorf("w = %d, want 20", got)
	}
}

// TestConditionalSkip checks that a dependency whose condition resolves to
// the non-establishing polarity clears the owning vertex without ever
// touching the (producer-less) target slot, and does not mark downstream
// requested slots unreachable.
func TestConditionalSkip(t *testing.T) {
	b := NewBuilder(nil)

	b.AddVertex(&constOp{emitName: "cond", typ: Any, value: false}).Name("Cond").
		NamedEmit("cond").To("cond")

	var log []string
	v := b.AddVertex(&recordingOp{log: &log, name: "V"}).Name("V")
	v.NamedDepend("maybe").On("cond").To("maybeX").SetEssential(EssentialOptional)
	v.NamedEmit("out").To("out")

	g := buildOrFatal(t, b)

	c, err := g.Run(context.Background(), "out")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	c.Wait()
	if c.ErrorCode() != CodeSuccess {
		t.Fatalf("ErrorCode = %d, want success: %v", c.ErrorCode(), c.Get())
	}
	if len(log) != 1 || log[0] != "V" {
		t.Errorf("expected V to run once despite unestablished condition, log=%v", log)
	}
}

// TestMutableForward checks that Forward aliases a mutable ref rather than
// copying. The conflicting-second-reader case is TestMutabilityConflict.
func TestMutableForward(t *testing.T) {
	b := NewBuilder(nil)

	type box struct{ n int }
	shared := &box{n: 1}

	b.AddVertex(opFunc(func(v *Vertex) error {
		e, _ := v.Emit("boxed")
		c := e.Emit()
		if c.Valid() {
			c.Ref(shared)
		}
		c.Close()
		return nil
	})).Name("Source").NamedEmit("boxed").To("boxed")

	fwd := b.AddVertex(&passOp{depName: "boxed", emitName: "out", mutable: true}).Name("Forwarder")
	fwd.NamedDepend("boxed").To("boxed").SetMutable(true)
	fwd.NamedEmit("out").To("out")

	g := buildOrFatal(t, b)
	c, err := g.Run(context.Background(), "out")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	c.Wait()
	if err := c.Get(); err != nil {
		t.Fatalf("run failed: %v", err)
	}
	out, _ := g.FindSlot("out")
	got, ok := out.Value().Raw().(*box)
	if !ok || got != shared {
		t.Errorf("expected forwarded value to alias the original box, got %#v", out.Value().Raw())
	}
}

// TestMutabilityConflict checks that a second dependency racing to acquire a
// slot already held by a mutable reader fails activation with
// CodeMutabilityConflict rather than CodeOperatorFailed: a mutability
// conflict is a distinct error taxonomy entry from an operator returning
// non-zero.
func TestMutabilityConflict(t *testing.T) {
	b := NewBuilder(nil)

	type box struct{ n int }
	shared := &box{n: 1}

	b.AddVertex(opFunc(func(v *Vertex) error {
		e, _ := v.Emit("boxed")
		c := e.Emit()
		if c.Valid() {
			c.Ref(shared)
		}
		c.Close()
		return nil
	})).Name("Source").NamedEmit("boxed").To("boxed")

	fwd := b.AddVertex(&passOp{depName: "boxed", emitName: "out", mutable: true}).Name("Forwarder")
	fwd.NamedDepend("boxed").To("boxed").SetMutable(true)
	fwd.NamedEmit("out").To("out")

	var log []string
	extra := b.AddVertex(&recordingOp{log: &log, name: "Extra"}).Name("Extra")
	extra.NamedDepend("boxed").To("boxed")
	extra.NamedEmit("other").To("other")

	g := buildOrFatal(t, b)
	c, err := g.Run(context.Background(), "out", "other")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	c.Wait()
	if c.ErrorCode() != CodeMutabilityConflict {
		t.Fatalf("ErrorCode = %d, want CodeMutabilityConflict", c.ErrorCode())
	}
}

// TestActivationError checks that an OnActivate failure aborts the run
// immediately with CodeOperatorFailed instead of hanging on a slot whose
// producer's dependencies never got the chance to activate.
func TestActivationError(t *testing.T) {
	b := NewBuilder(nil)

	b.AddVertex(&constOp{emitName: "gate", typ: Any, value: true}).Name("Gate").
		NamedEmit("gate").To("gate")

	wantErr := errors.New("boom")
	v := b.AddVertex(&activateFailOp{emitName: "out", err: wantErr}).Name("V")
	v.NamedDepend("gate").To("gate")
	v.NamedEmit("out").To("out")

	g := buildOrFatal(t, b)
	c, err := g.Run(context.Background(), "out")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	c.Wait()
	if c.ErrorCode() != CodeOperatorFailed {
		t.Fatalf("ErrorCode = %d, want CodeOperatorFailed", c.ErrorCode())
	}
	if c.Get() == nil {
		t.Fatalf("expected a non-nil error from Get")
	}
}

// TestEssentialFailEmpty checks that an essential-level-2 dependency
// resolving empty fails the whole run.
func TestEssentialFailEmpty(t *testing.T) {
	b := NewBuilder(nil)

	b.AddVertex(&emptyEmitOp{emitName: "maybe"}).Name("Source").
		NamedEmit("maybe").To("maybe")

	var log []string
	v := b.AddVertex(&recordingOp{log: &log, name: "V"}).Name("V")
	v.NamedDepend("maybe").To("maybe").SetEssential(EssentialFail)
	v.NamedEmit("out").To("out")

	g := buildOrFatal(t, b)
	c, err := g.Run(context.Background(), "out")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	c.Wait()
	if c.ErrorCode() != CodeEssentialEmpty {
		t.Fatalf("ErrorCode = %d, want CodeEssentialEmpty", c.ErrorCode())
	}
}

// TestEssentialSkipEmpty checks that an essential-level-1 dependency
// resolving empty skips the owning vertex (its emit never publishes)
// without failing the run as a whole.
func TestEssentialSkipEmpty(t *testing.T) {
	b := NewBuilder(nil)

	b.AddVertex(&emptyEmitOp{emitName: "maybe"}).Name("Source").
		NamedEmit("maybe").To("maybe")

	var log []string
	v := b.AddVertex(&recordingOp{log: &log, name: "V"}).Name("V")
	v.NamedDepend("maybe").To("maybe").SetEssential(EssentialSkip)
	v.NamedEmit("out").To("out")

	g := buildOrFatal(t, b)
	c, err := g.Run(context.Background(), "out")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	c.Wait()
	if c.ErrorCode() != CodeSuccess {
		t.Fatalf("ErrorCode = %d, want success", c.ErrorCode())
	}
	if len(log) != 0 {
		t.Errorf("expected V to be skipped, but it ran: %v", log)
	}
}

// TestUnreachableTarget checks that requesting a slot whose unconditional
// producer chain dead-ends at a slot with neither a producer nor a preset
// is diagnosed as CodeUnreachable rather than hanging.
func TestUnreachableTarget(t *testing.T) {
	b := NewBuilder(nil)

	v := b.AddVertex(&passOp{depName: "missing", emitName: "out"}).Name("V")
	v.NamedDepend("missing").To("missing")
	v.NamedEmit("out").To("out")

	g := buildOrFatal(t, b)
	c, err := g.Run(context.Background(), "out")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	c.Wait()
	if c.ErrorCode() != CodeUnreachable {
		t.Fatalf("ErrorCode = %d, want CodeUnreachable", c.ErrorCode())
	}
}

// opFunc adapts a plain function to a minimal Operator+SyncProcessor, for
// tests that need a one-off operator without a dedicated named type.
type opFunc func(v *Vertex) error

func (f opFunc) Setup(v *Vertex) error   { return nil }
func (f opFunc) Process(v *Vertex) error { return f(v) }

// emptyEmitOp always publishes its slot empty.
type emptyEmitOp struct{ emitName string }

func (o *emptyEmitOp) Setup(v *Vertex) error { return nil }
func (o *emptyEmitOp) Process(v *Vertex) error {
	e, _ := v.Emit(o.emitName)
	c := e.Emit()
	c.SetEmpty()
	c.Close()
	return nil
}
