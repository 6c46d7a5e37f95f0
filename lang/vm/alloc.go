package vm

import "github.com/mna/loxvm/lang/value"

// Rough per-kind size charges used to drive the allocation-size GC
// heuristic of spec section 4.5 ("each new heap object adds its size to
// bytes_allocated"). Go does not expose unsafe.Sizeof-stable numbers across
// platforms in a way worth depending on here, so these are nominal constants
// large enough to make the heuristic meaningfully trigger collections under
// GCStressTest and ordinary allocation pressure alike.
const (
	stringSize      = 32
	upvalueSize     = 24
	closureSize     = 40
	classSize       = 48
	instanceSize    = 40
	boundMethodSize = 24
)

// registerObject splices o onto the front of the VM's intrusive allocation
// list, charges its size against bytesAllocated, and runs a collection
// first if GCStressTest is set or the threshold has been crossed, per spec
// section 4.5.
func (vm *VM) registerObject(o value.Obj, size int) {
	vm.bytesAllocated += size
	if vm.GCStressTest || vm.bytesAllocated > vm.nextGC {
		vm.collectGarbage()
	}
	value.SetNextObj(o, vm.objects)
	vm.objects = o
}

func (vm *VM) newClosure(fn *value.Function) *value.Closure {
	c := &value.Closure{Fn: fn, Upvalues: make([]*value.Upvalue, fn.UpvalueCount)}
	vm.registerObject(c, closureSize)
	return c
}

func (vm *VM) newInstance(class *value.Class) *value.Instance {
	i := &value.Instance{Class: class, Fields: &value.Table{}}
	vm.registerObject(i, instanceSize)
	return i
}

func (vm *VM) newBoundMethod(receiver value.Value, method *value.Closure) *value.BoundMethod {
	b := &value.BoundMethod{Receiver: receiver, Method: method}
	vm.registerObject(b, boundMethodSize)
	return b
}

func (vm *VM) newClass(name *value.ObjString) *value.Class {
	c := &value.Class{Name: name, Methods: &value.Table{}}
	vm.registerObject(c, classSize)
	return c
}

// internString finds or creates an interned ObjString for s, sharing the
// compiler's identity-keyed lookup so that runtime-produced strings (e.g.
// from concatenation) compare equal, by identity, to any matching constant
// baked in by the compiler.
func (vm *VM) internString(s string) *value.ObjString {
	hash := value.HashString(s)
	if found := vm.strings.FindString(s, hash); found != nil {
		return found
	}
	obj := &value.ObjString{Chars: s, Hash: hash}
	vm.registerObject(obj, stringSize+len(s))
	vm.strings.Set(obj, value.Nil)
	return obj
}

// concatenate implements spec section 4.6's `+` on at-least-one-String
// operands: if exactly one operand is a String, the other is converted with
// str_value (value.Print) and the two are concatenated.
func (vm *VM) concatenate(a, b value.Value) value.Value {
	as := vm.stringify(a)
	bs := vm.stringify(b)
	return value.FromObj(vm.internString(as + bs))
}

func (vm *VM) stringify(v value.Value) string {
	if v.IsObjKind(value.ObjStringKind) {
		return v.AsString()
	}
	return value.Print(v)
}
