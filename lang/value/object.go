package value

import "fmt"

// ObjKind tags the concrete variant of a heap Obj. The VM's GC and printer
// dispatch on this tag with a switch, per the spec's explicit design note
// that Object polymorphism must be a switch on a kind tag rather than open
// dynamic dispatch (see _examples/original_source/vm/src/object.hpp's
// ObjType enum, which this mirrors one for one).
type ObjKind uint8

const (
	ObjStringKind ObjKind = iota
	ObjFunctionKind
	ObjClosureKind
	ObjUpvalueKind
	ObjClassKind
	ObjInstanceKind
	ObjBoundMethodKind
	ObjNativeKind
)

func (k ObjKind) String() string {
	switch k {
	case ObjStringKind:
		return "string"
	case ObjFunctionKind:
		return "function"
	case ObjClosureKind:
		return "closure"
	case ObjUpvalueKind:
		return "upvalue"
	case ObjClassKind:
		return "class"
	case ObjInstanceKind:
		return "instance"
	case ObjBoundMethodKind:
		return "bound method"
	case ObjNativeKind:
		return "native"
	default:
		return "unknown object"
	}
}

// Obj is the interface implemented by every heap-allocated value. Every
// concrete Obj type embeds a Header, which carries the GC mark bit and the
// intrusive next-object link the VM uses to walk (and eventually sweep) the
// full set of allocated objects, matching the spec's "common header: kind
// tag, is_marked bit, next link" invariant.
type Obj interface {
	Kind() ObjKind
	String() string
	header() *Header
}

// Header is embedded by every Obj implementation.
type Header struct {
	Marked bool
	Next   Obj
}

func (h *Header) header() *Header { return h }

// Marked reports whether o has been marked reachable during the current GC
// cycle.
func Marked(o Obj) bool { return o.header().Marked }

// SetMarked sets o's GC mark bit.
func SetMarked(o Obj, marked bool) { o.header().Marked = marked }

// NextObj returns the next object in the VM's intrusive allocation list.
func NextObj(o Obj) Obj { return o.header().Next }

// SetNextObj sets the next object in the VM's intrusive allocation list.
func SetNextObj(o Obj, next Obj) { o.header().Next = next }

// ObjString is an immutable, interned byte string with a precomputed hash.
type ObjString struct {
	Header
	Chars string
	Hash  uint32
}

func (s *ObjString) Kind() ObjKind { return ObjStringKind }
func (s *ObjString) String() string { return s.Chars }

// HashString computes the FNV-1a 32-bit hash of s, per spec section 3's
// String object description.
func HashString(s string) uint32 {
	var hash uint32 = 2166136261
	for i := 0; i < len(s); i++ {
		hash ^= uint32(s[i])
		hash *= 16777619
	}
	return hash
}

// Upvalue is either "open" (Location points into a live stack slot) or
// "closed" (Location points at Closed, an owned copy of the captured
// value). Both states share the same *Upvalue identity so that existing
// closures observe the open->closed transition without reallocation, per
// spec section 9's "Upvalue open/closed state" design note.
type Upvalue struct {
	Header
	Location *Value
	Closed   Value

	// StackSlot is the absolute stack index this upvalue refers to while
	// open; it is what the VM sorts the open-upvalue list by and compares
	// against when looking for an existing capture of a given slot. It is
	// meaningless once the upvalue is closed.
	StackSlot int

	// NextOpen chains open upvalues together in the VM's open-upvalue list,
	// sorted by strictly decreasing StackSlot. This is distinct from
	// Header.Next, which chains ALL objects for GC sweeping.
	NextOpen *Upvalue
}

func (u *Upvalue) Kind() ObjKind { return ObjUpvalueKind }
func (u *Upvalue) String() string { return "upvalue" }

// IsOpen reports whether u is still pointing into the live stack.
func (u *Upvalue) IsOpen() bool { return u.Location != &u.Closed }

// Function is the compiled representation of a function body: its arity,
// upvalue count, owned Chunk, and optional name.
type Function struct {
	Header
	Arity       int
	UpvalueCount int
	Chunk       Chunk
	Name        *ObjString
}

func (f *Function) Kind() ObjKind { return ObjFunctionKind }
func (f *Function) String() string {
	if f.Name == nil {
		return "<script>"
	}
	return fmt.Sprintf("<fn %s>", f.Name.Chars)
}

// UpvalueDesc describes, for one upvalue slot of a Closure, whether it
// captures a local of the immediately enclosing function (IsLocal==true,
// Index is a stack slot) or forwards an upvalue of the enclosing function
// (IsLocal==false, Index is an upvalue index).
type UpvalueDesc struct {
	Index   uint8
	IsLocal bool
}

// Closure pairs a compiled Function with its captured upvalues. Upvalues has
// length equal to Function.UpvalueCount and every slot is populated before
// the closure is first executed, per spec section 3's Closure invariant.
type Closure struct {
	Header
	Fn       *Function
	Upvalues []*Upvalue
}

func (c *Closure) Kind() ObjKind { return ObjClosureKind }
func (c *Closure) String() string { return c.Fn.String() }

// Class is a named, single-inheritance class with a method table keyed by
// method name.
type Class struct {
	Header
	Name    *ObjString
	Methods *Table
}

func (c *Class) Kind() ObjKind { return ObjClassKind }
func (c *Class) String() string { return c.Name.Chars }

// Instance is an object of a Class, with its own fields table.
type Instance struct {
	Header
	Class  *Class
	Fields *Table
}

func (i *Instance) Kind() ObjKind { return ObjInstanceKind }
func (i *Instance) String() string { return fmt.Sprintf("%s instance", i.Class.Name.Chars) }

// BoundMethod pairs a receiver value with the Closure of the method it was
// looked up from (o.m creates one of these, distinct from the fused
// Invoke/InvokeSuper fast path that never allocates one).
type BoundMethod struct {
	Header
	Receiver Value
	Method   *Closure
}

func (b *BoundMethod) Kind() ObjKind { return ObjBoundMethodKind }
func (b *BoundMethod) String() string { return b.Method.String() }

// NativeFn is the signature of a native (Go-implemented) function callable
// from Lox code.
type NativeFn func(args []Value) (Value, error)

// Native wraps a Go function so it can be called as a Lox value. The spec
// places the concrete `clock` builtin out of scope, but the calling
// convention itself ("Native: call the function pointer with (argc,
// &stack[top-argc])") is in scope and exercised by whatever natives the
// embedder registers via vm.VM.DefineNative.
type Native struct {
	Header
	Name string
	Fn   NativeFn
}

func (n *Native) Kind() ObjKind { return ObjNativeKind }
func (n *Native) String() string { return "<native fn>" }
