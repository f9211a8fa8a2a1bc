package dflow

import (
	"context"
	"testing"
)

// channelSourceOp declares a channel-typed emit, publishes the open Channel
// handle immediately (a channel-declared slot is ready the instant its
// publisher opens, not once the stream closes — confirmed against the
// distillation source's own test_channel.cpp), then pushes a fixed sequence
// of ints and closes it to signal end-of-stream.
type channelSourceOp struct {
	emitName string
	items    []int
}

func (o *channelSourceOp) Setup(v *Vertex) error {
	slot, _ := v.Emit(o.emitName)
	return slot.DeclareChannel(Any)
}

func (o *channelSourceOp) Process(v *Vertex) error {
	ch := NewChannel()
	slot, _ := v.Emit(o.emitName)
	c := slot.Emit()
	if c.Valid() {
		c.Ref(ch)
	}
	c.Close()
	for _, item := range o.items {
		ch.Push(item)
	}
	ch.Close()
	return nil
}

// channelSinkOp subscribes to its dependency's Channel and sums every
// element it reads until end-of-stream.
type channelSinkOp struct {
	depName  string
	emitName string
}

func (o *channelSinkOp) Setup(v *Vertex) error { return nil }

func (o *channelSinkOp) Process(v *Vertex) error {
	dep, _ := v.Dep(o.depName)
	ch, _ := dep.Value().Raw().(*Channel)

	sub := ch.Subscribe()
	sum := 0
	for {
		item, ok := sub.Next()
		if !ok {
			break
		}
		sum += item.(int)
	}

	emit, _ := v.Emit(o.emitName)
	c := emit.Emit()
	if c.Valid() {
		c.Set(NewValue(int64(sum)))
	}
	c.Close()
	return nil
}

// TestChannelStreaming wires a channel-declared slot between a source that
// pushes a fixed sequence and a sink that drains it to completion, checking
// that the single slot publication (the Channel handle itself) is enough for
// the consumer to read every element. The graph runs on a WorkerPool so the
// sink can drain the stream while the source is still pushing.
func TestChannelStreaming(t *testing.T) {
	b := NewBuilder(nil)
	b.SetExecutor(NewWorkerPool(2))

	b.AddVertex(&channelSourceOp{emitName: "stream", items: []int{1, 2, 3, 4}}).Name("Source").
		NamedEmit("stream").To("stream")

	sink := b.AddVertex(&channelSinkOp{depName: "stream", emitName: "sum"}).Name("Sink")
	sink.NamedDepend("stream").To("stream")
	sink.NamedEmit("sum").To("sum")

	g := buildOrFatal(t, b)

	c, err := g.Run(context.Background(), "sum")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	c.Wait()
	if err := c.Get(); err != nil {
		t.Fatalf("run failed: %v", err)
	}

	sum, _ := g.FindSlot("sum")
	if got := sum.Value().Int(); got != 10 {
		t.Errorf("sum = %d, want 10", got)
	}
}

// TestChannelMultipleSubscribersFanOut checks that two independent
// subscribers to the same Channel each observe every pushed element (fan-out,
// not a competing work queue).
func TestChannelMultipleSubscribersFanOut(t *testing.T) {
	ch := NewChannel()
	a := ch.Subscribe()
	b := ch.Subscribe()

	ch.Push(1)
	ch.Push(2)
	ch.Close()

	for _, sub := range []*channelReader{a, b} {
		var got []int
		for {
			v, ok := sub.Next()
			if !ok {
				break
			}
			got = append(got, v.(int))
		}
		if len(got) != 2 || got[0] != 1 || got[1] != 2 {
			t.Errorf("subscriber saw %v, want [1 2]", got)
		}
	}
}
