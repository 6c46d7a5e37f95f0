package vm

import "github.com/mna/loxvm/lang/value"

// collectGarbage runs one full precise mark-sweep cycle, per spec section
// 4.5: mark every root, blacken the gray stack until it is empty, sweep the
// intern table of any now-unmarked string, then sweep the VM's intrusive
// object list. The gray-stack worklist idiom is written the way
// lang/resolver/resolver.go threads a mutable *resolver through recursive
// helper methods, adapted here to markValue/markObject/blacken methods on
// the VM itself rather than a standalone type.
func (vm *VM) collectGarbage() {
	vm.markRoots()
	vm.traceReferences()
	vm.sweepStrings()
	vm.sweep()

	vm.nextGC = vm.bytesAllocated * vm.nextGCFactor()
}

func (vm *VM) nextGCFactor() int {
	if vm.NextGCFactor <= 1 {
		return 2
	}
	return vm.NextGCFactor
}

func (vm *VM) markRoots() {
	for i := 0; i < vm.stackTop; i++ {
		vm.markValue(vm.stack[i])
	}
	for i := 0; i < vm.frameCount; i++ {
		vm.markObject(vm.frames[i].closure)
	}
	for up := vm.openUpvalues; up != nil; up = up.NextOpen {
		vm.markObject(up)
	}

	vm.globals.Iter(func(k *value.ObjString, v value.Value) bool {
		vm.markObject(k)
		vm.markValue(v)
		return false
	})

	vm.markObject(vm.initString)
}

func (vm *VM) markValue(v value.Value) {
	if v.IsObj() {
		vm.markObject(v.AsObj())
	}
}

func (vm *VM) markObject(o value.Obj) {
	if o == nil || value.Marked(o) {
		return
	}
	value.SetMarked(o, true)
	vm.grayStack = append(vm.grayStack, o)
}

func (vm *VM) traceReferences() {
	for len(vm.grayStack) > 0 {
		o := vm.grayStack[len(vm.grayStack)-1]
		vm.grayStack = vm.grayStack[:len(vm.grayStack)-1]
		vm.blacken(o)
	}
}

// blacken marks every object o itself references, per spec section 4.5's
// per-kind reference table.
func (vm *VM) blacken(o value.Obj) {
	switch obj := o.(type) {
	case *value.BoundMethod:
		vm.markValue(obj.Receiver)
		vm.markObject(obj.Method)
	case *value.Class:
		vm.markObject(obj.Name)
		for _, e := range obj.Methods.Entries() {
			vm.markObject(e.Key)
			vm.markValue(e.Value)
		}
	case *value.Instance:
		vm.markObject(obj.Class)
		for _, e := range obj.Fields.Entries() {
			vm.markObject(e.Key)
			vm.markValue(e.Value)
		}
	case *value.Closure:
		vm.markObject(obj.Fn)
		for _, up := range obj.Upvalues {
			vm.markObject(up)
		}
	case *value.Function:
		vm.markObject(obj.Name)
		for _, c := range obj.Chunk.Constants {
			vm.markValue(c)
		}
	case *value.Upvalue:
		if !obj.IsOpen() {
			vm.markValue(obj.Closed)
		}
	case *value.ObjString, *value.Native:
		// leaf objects: nothing further to mark
	}
}

// sweepStrings removes from the intern table every key whose ObjString is
// unmarked, before the main sweep, so the intern table cannot keep strings
// alive on its own (spec section 4.5).
func (vm *VM) sweepStrings() {
	for _, s := range vm.strings.Keys() {
		if !value.Marked(s) {
			vm.strings.Delete(s)
		}
	}
}

// sweep walks the VM's intrusive allocation list, drops every unmarked
// object, and clears the mark bit on survivors.
func (vm *VM) sweep() {
	var prev value.Obj
	cur := vm.objects
	for cur != nil {
		if value.Marked(cur) {
			value.SetMarked(cur, false)
			prev = cur
			cur = value.NextObj(cur)
			continue
		}

		unreached := cur
		cur = value.NextObj(cur)
		if prev != nil {
			value.SetNextObj(prev, cur)
		} else {
			vm.objects = cur
		}
		_ = unreached // no explicit free: the Go GC reclaims it once unreachable
	}
}
