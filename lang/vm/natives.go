package vm

import "github.com/mna/loxvm/lang/value"

// DefineNative registers a Go-implemented function as a global callable from
// Lox code, exercising the calling convention spec section 4.6 describes for
// natives ("call the function pointer with (argc, &stack[top-argc])") even
// though the spec's own concrete example (`clock`) is explicitly out of
// scope; see SPEC_FULL.md's native-calling-convention supplement.
func (vm *VM) DefineNative(name string, fn value.NativeFn) {
	nameObj := vm.internString(name)
	native := &value.Native{Name: name, Fn: fn}
	vm.registerObject(native, stringSize)
	vm.globals.Put(nameObj, value.FromObj(native))
}

// defineNatives registers the small set of deterministic test natives this
// repo exercises the calling convention with.
func (vm *VM) defineNatives() {
	vm.DefineNative("typeof", func(args []value.Value) (value.Value, error) {
		if len(args) != 1 {
			return value.Nil, nil
		}
		return value.FromObj(vm.internString(value.TypeName(args[0]))), nil
	})
}
