package dflow

import (
	"fmt"
	"reflect"
)

// Any is the universal dynamic type. A slot declared with Any never
// conflicts with a later DeclareType call.
var Any = reflect.TypeOf((*interface{})(nil)).Elem()

// valueState tracks how a Value's payload is held, so that Forward can branch
// on it instead of always copying.
type valueState int

const (
	stateOwning valueState = iota
	stateMoved
	stateMutableRef
	stateConstRef
)

// Value is a tagged, type-erased container modelled on GraphData's dynamic
// payload. Primitive kinds are stored inline to avoid boxing; anything else
// goes through the interface{} slot and a type discriminator.
type Value struct {
	valid bool // false means "empty" (ready with no value, see glossary)
	typ   reflect.Type
	state valueState

	// inline primitive storage, used when typ is one of the basic kinds.
	i   int64
	f   float64
	b   bool
	s   string

	// obj holds anything that isn't one of the inline primitives, plus the
	// mutable/const reference pointer when state is a ref state.
	obj interface{}
}

// Empty returns the sentinel empty value (ready, no payload).
func Empty() Value { return Value{} }

// IsEmpty reports whether this value carries no payload.
func (v Value) IsEmpty() bool { return !v.valid }

// NewValue wraps an owned value of any type.
func NewValue(x interface{}) Value {
	v := Value{valid: true, state: stateOwning, typ: reflect.TypeOf(x)}
	switch t := x.(type) {
	case int64:
		v.i = t
	case int:
		v.i = int64(t)
	case float64:
		v.f = t
	case bool:
		v.b = t
	case string:
		v.s = t
	default:
		v.obj = x
	}
	return v
}

// NewRef builds a Value that aliases an externally owned mutable object (the
// `ref` emit form).
func NewRef(ptr interface{}) Value {
	return Value{valid: true, state: stateMutableRef, obj: ptr, typ: reflect.TypeOf(ptr)}
}

// NewConstRef builds a Value that aliases an externally owned read-only
// object (the `cref` emit form).
func NewConstRef(ptr interface{}) Value {
	return Value{valid: true, state: stateConstRef, obj: ptr, typ: reflect.TypeOf(ptr)}
}

// Type returns the dynamic type carried by this value, or nil if empty.
func (v Value) Type() reflect.Type { return v.typ }

// Raw returns the underlying interface{} payload.
func (v Value) Raw() interface{} {
	switch v.typ {
	case reflect.TypeOf(int64(0)):
		return v.i
	case reflect.TypeOf(int(0)):
		return int(v.i)
	case reflect.TypeOf(float64(0)):
		return v.f
	case reflect.TypeOf(false):
		return v.b
	case reflect.TypeOf(""):
		return v.s
	default:
		return v.obj
	}
}

// Bool coerces the value to a boolean.
func (v Value) Bool() bool {
	switch x := v.Raw().(type) {
	case bool:
		return x
	case int64:
		return x != 0
	case float64:
		return x != 0
	case string:
		return x != ""
	default:
		return x != nil
	}
}

// Str returns a display string for the value.
func (v Value) Str() string {
	if s, ok := v.Raw().(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v.Raw())
}

// Int coerces integral and floating kinds to an int64.
func (v Value) Int() int64 {
	switch x := v.Raw().(type) {
	case int64:
		return x
	case int:
		return int64(x)
	case float64:
		return int64(x)
	default:
		return 0
	}
}

// Float coerces integral and floating kinds to a float64.
func (v Value) Float() float64 {
	switch x := v.Raw().(type) {
	case float64:
		return x
	case int64:
		return float64(x)
	case int:
		return float64(x)
	default:
		return 0
	}
}

// IsMutableRef reports whether this value aliases an external mutable
// object rather than owning its own storage.
func (v Value) IsMutableRef() bool { return v.state == stateMutableRef }

// IsConstRef reports whether this value aliases an external read-only
// object.
func (v Value) IsConstRef() bool { return v.state == stateConstRef }

// Owned returns v with any ref tag cleared, so a downstream holder of the
// result can never be mistaken for an alias of the original's mutable or
// const reference. The payload itself is not deep-copied: inline primitives
// are already copied by value, and obj keeps pointing at whatever it held,
// but with state reset to stateOwning the pointer is no longer treated as a
// live external alias for mutability-acquisition purposes.
func (v Value) Owned() Value {
	if v.state == stateOwning || v.state == stateMoved {
		return v
	}
	v.state = stateOwning
	return v
}
