// Package value implements the tagged value representation, the heap object
// model, the open-addressed string/field table, and the bytecode chunk that
// together form the data model executed by package vm.
//
// The four concerns (spec.md calls them out as separate components: Value,
// Object, Table, Chunk) are kept in one Go package, not four, because they
// are mutually referential the way they are in the canonical C
// implementation (object.h includes chunk.h and table.h, which both need
// Value): an ObjFunction owns a Chunk, a Chunk's constant pool is a slice of
// Value, and a Table stores Values keyed by *ObjString. Splitting them across
// packages would require either an import cycle or an unsafe downcast; one
// package with one file per concern keeps the dependency graph a DAG while
// preserving the spec's component boundaries at the file level.
package value

import (
	"fmt"
	"strconv"
)

// Kind identifies which alternative of the Value tagged union is populated.
type Kind uint8

const (
	KindNil Kind = iota
	KindBool
	KindNumber
	KindObj
)

// Value is a tagged union: Nil, Bool, Number(f64), or a reference to a heap
// Obj. It is deliberately a small value type (not a Go interface) so that
// nil/bool/number values never require a heap allocation, matching the
// spec's tagged-value design and the original C Value representation in
// _examples/original_source/vm/src/value.hpp.
type Value struct {
	kind   Kind
	b      bool
	n      float64
	obj    Obj
}

// Nil is the singular nil value.
var Nil = Value{kind: KindNil}

// Bool returns a boolean Value.
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// Number returns a numeric Value.
func Number(n float64) Value { return Value{kind: KindNumber, n: n} }

// FromObj returns a Value wrapping a heap object.
func FromObj(o Obj) Value { return Value{kind: KindObj, obj: o} }

// True and False are the two Bool singletons used pervasively by the
// compiler and VM.
var (
	True  = Bool(true)
	False = Bool(false)
)

func (v Value) Kind() Kind { return v.kind }
func (v Value) IsNil() bool { return v.kind == KindNil }
func (v Value) IsBool() bool { return v.kind == KindBool }
func (v Value) IsNumber() bool { return v.kind == KindNumber }
func (v Value) IsObj() bool { return v.kind == KindObj }

// AsBool returns the boolean payload. The caller must check IsBool first.
func (v Value) AsBool() bool { return v.b }

// AsNumber returns the numeric payload. The caller must check IsNumber first.
func (v Value) AsNumber() float64 { return v.n }

// AsObj returns the object payload. The caller must check IsObj first.
func (v Value) AsObj() Obj { return v.obj }

// IsObjKind reports whether v holds an object of the given kind.
func (v Value) IsObjKind(k ObjKind) bool {
	return v.kind == KindObj && v.obj.Kind() == k
}

// AsString returns the Go string content of a Value known to hold a
// *ObjString. The caller must check IsObjKind(ObjStringKind) first.
func (v Value) AsString() string {
	return v.obj.(*ObjString).Chars
}

// Falsey reports whether v is falsey: only nil and false are falsey,
// everything else (0, "", instances, ...) is truthy, per spec section 4.6.
func (v Value) Falsey() bool {
	switch v.kind {
	case KindNil:
		return true
	case KindBool:
		return !v.b
	default:
		return false
	}
}

// Truthy is the complement of Falsey.
func (v Value) Truthy() bool { return !v.Falsey() }

// Equal implements the spec's cross-type-is-false equality: nil==nil,
// bool/number compare by payload, objects compare by reference identity
// (which, thanks to string interning, makes equal-content strings compare
// equal too since they share one *ObjString).
func Equal(a, b Value) bool {
	if a.kind != b.kind {
		return false
	}
	switch a.kind {
	case KindNil:
		return true
	case KindBool:
		return a.b == b.b
	case KindNumber:
		return a.n == b.n
	case KindObj:
		return a.obj == b.obj
	default:
		return false
	}
}

// Print renders v the way the `print` statement and the REPL-less runtime
// render values, per spec section 6's "Printed forms" table.
func Print(v Value) string {
	switch v.kind {
	case KindNil:
		return "nil"
	case KindBool:
		if v.b {
			return "true"
		}
		return "false"
	case KindNumber:
		return formatNumber(v.n)
	case KindObj:
		return v.obj.String()
	default:
		return "<invalid value>"
	}
}

// formatNumber renders a float64 using the shortest round-trip
// representation, trimming a trailing ".0" for whole numbers the way clox's
// printf("%g")-based number printer effectively does for the values Lox
// programs produce.
func formatNumber(n float64) string {
	if n != n {
		return "nan"
	}
	s := strconv.FormatFloat(n, 'g', -1, 64)
	return s
}

// TypeName returns a short string describing v's runtime type, used in
// runtime type-mismatch error messages.
func TypeName(v Value) string {
	switch v.kind {
	case KindNil:
		return "nil"
	case KindBool:
		return "bool"
	case KindNumber:
		return "number"
	case KindObj:
		switch v.obj.Kind() {
		case ObjStringKind:
			return "string"
		case ObjFunctionKind:
			return "function"
		case ObjClosureKind:
			return "function"
		case ObjClassKind:
			return "class"
		case ObjInstanceKind:
			return "instance"
		case ObjBoundMethodKind:
			return "function"
		case ObjNativeKind:
			return "native function"
		case ObjUpvalueKind:
			return "upvalue"
		}
	}
	return fmt.Sprintf("unknown(%d)", v.kind)
}
