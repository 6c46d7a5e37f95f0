// Package vm implements the stack-based bytecode interpreter: it loads a
// compiled value.Function into a top-level Closure and drives the dispatch
// loop described in spec section 4.6, including the calling convention for
// closures, classes, bound methods and natives, upvalue capture/close, and
// the mark-sweep collector (gc.go).
//
// The dispatch loop shape ("op := code[ip]; ip++; switch op { ... }" inside
// a for loop, with an in-flight error (VM.lastErr) instead of
// panic/recover) is grounded on
// lang/machine/machine.go's run function; the Stdout/Stderr-carrying,
// configuration-by-struct-field VM type is grounded on
// lang/machine/thread.go's Thread.
package vm

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/dolthub/swiss"

	"github.com/mna/loxvm/lang/compiler"
	"github.com/mna/loxvm/lang/value"
)

const (
	// FramesMax is the default maximum number of nested call frames, per
	// spec section 4.6.
	FramesMax = 64
	// framesLocalsWidth is the per-frame slot budget the fixed-size value
	// stack is sized from (FramesMax * 256 = 16384), per spec section 4.6.
	framesLocalsWidth = 256
	stackMax          = FramesMax * framesLocalsWidth
)

// CallFrame is one active function activation: the closure being run, its
// instruction pointer (an index into closure.Fn.Chunk.Code), and the base
// index into the VM's value stack where its locals begin (slot 0 is the
// closure itself, or the receiver for a method).
type CallFrame struct {
	closure   *value.Closure
	ip        int
	slotsBase int
}

// VM is one bytecode interpreter instance: its value stack, call frames,
// globals, string-intern table, and GC bookkeeping. Configuration is by
// struct field, matching machine.Thread's MaxSteps/DisableRecursion idiom.
type VM struct {
	// Stdout and Stderr are where `print` output and runtime error traces
	// go, respectively. Nil defaults to os.Stdout / os.Stderr.
	Stdout io.Writer
	Stderr io.Writer

	// MaxFrames overrides FramesMax when > 0, mostly for tests that want to
	// exercise "Stack overflow." without recursing 64 levels deep.
	MaxFrames int
	// MaxStack overrides stackMax when > 0, for the same reason.
	MaxStack int
	// GCStressTest forces a full collection before every allocation, per
	// spec section 8's GC-stress-mode determinism property.
	GCStressTest bool
	// NextGCFactor is the multiplier applied to bytesAllocated to compute
	// the next collection threshold (spec section 4.5: "next_gc =
	// bytes_allocated * 2"). Defaults to 2 when <= 1.
	NextGCFactor int

	stack      []value.Value
	stackTop   int
	frames     []CallFrame
	frameCount int

	globals *swiss.Map[*value.ObjString, value.Value]
	strings value.Table

	openUpvalues *value.Upvalue
	objects      value.Obj

	initString *value.ObjString

	bytesAllocated int
	nextGC         int

	grayStack []value.Obj

	// lastErr carries a runtime error out of callValue/call/invoke, which
	// return a plain bool (mirroring clox's "did the call succeed" return)
	// so that the dispatch loop in run() can break out of its switch
	// uniformly; run() returns it after any call that returns false.
	lastErr error
}

// New creates a ready-to-use VM.
func New() *VM {
	vm := &VM{}
	vm.init()
	return vm
}

func (vm *VM) init() {
	frames := vm.MaxFrames
	if frames <= 0 {
		frames = FramesMax
	}
	stack := vm.MaxStack
	if stack <= 0 {
		stack = frames * framesLocalsWidth
	}
	vm.frames = make([]CallFrame, frames)
	vm.stack = make([]value.Value, stack)
	vm.globals = swiss.NewMap[*value.ObjString, value.Value](8)
	vm.nextGC = 1 << 20
	vm.initString = vm.internString("init")
	vm.defineNatives()
}

func (vm *VM) stdout() io.Writer {
	if vm.Stdout != nil {
		return vm.Stdout
	}
	return os.Stdout
}

func (vm *VM) stderr() io.Writer {
	if vm.Stderr != nil {
		return vm.Stderr
	}
	return os.Stderr
}

// Interpret compiles source and, if compilation succeeds, runs it to
// completion. It encodes the three outcome kinds of spec section 7 (Ok,
// CompileError, RuntimeError) as: nil for Ok, a scanerr.List for
// CompileError, and a *RuntimeError for RuntimeError; callers distinguish
// the latter two with errors.As.
func (vm *VM) Interpret(source, chunkName string) error {
	if vm.MaxFrames > 0 && vm.MaxFrames != len(vm.frames) {
		vm.frames = make([]CallFrame, vm.MaxFrames)
	}
	if vm.MaxStack > 0 && vm.MaxStack != len(vm.stack) {
		vm.stack = make([]value.Value, vm.MaxStack)
	}

	fn, err := compiler.Compile(source, chunkName, &vm.strings)
	if err != nil {
		return err
	}

	// Keep fn reachable while its closure is allocated, so that a collection
	// there keeps its constants (and their intern-table entries) alive.
	vm.push(value.FromObj(fn))
	closure := vm.newClosure(fn)
	vm.pop()
	vm.push(value.FromObj(closure))
	if !vm.callValue(value.FromObj(closure), 0) {
		return vm.lastErr
	}

	return vm.run()
}

// RuntimeError is returned by Interpret/run when execution fails after
// compilation succeeded; it carries the formatted stack trace described in
// spec section 5 ("print the error, walk the frame stack ... printing
// '[line L] in <name>'").
type RuntimeError struct {
	Message string
	Trace   string
}

func (e *RuntimeError) Error() string { return e.Message }

func (vm *VM) push(v value.Value) {
	vm.stack[vm.stackTop] = v
	vm.stackTop++
}

func (vm *VM) pop() value.Value {
	vm.stackTop--
	return vm.stack[vm.stackTop]
}

func (vm *VM) peek(distance int) value.Value {
	return vm.stack[vm.stackTop-1-distance]
}

func (vm *VM) resetStack() {
	vm.stackTop = 0
	vm.frameCount = 0
	vm.openUpvalues = nil
}

// runtimeError formats a runtime error with a full call-stack trace,
// writes it to Stderr, resets the VM's stack (spec section 5's
// cancellation semantics), and returns it as a *RuntimeError.
func (vm *VM) runtimeError(format string, args ...any) error {
	msg := fmt.Sprintf(format, args...)

	var trace strings.Builder
	fmt.Fprintf(&trace, "%s\n", msg)
	for i := vm.frameCount - 1; i >= 0; i-- {
		fr := &vm.frames[i]
		fn := fr.closure.Fn
		line := 0
		if fr.ip-1 >= 0 && fr.ip-1 < len(fn.Chunk.Lines) {
			line = fn.Chunk.Lines[fr.ip-1]
		}
		name := "script"
		if fn.Name != nil {
			name = fn.Name.Chars + "()"
		}
		fmt.Fprintf(&trace, "[line %d] in %s\n", line, name)
	}

	fmt.Fprint(vm.stderr(), trace.String())
	vm.resetStack()
	return &RuntimeError{Message: msg, Trace: trace.String()}
}

// --- calling convention ---------------------------------------------------

func (vm *VM) callValue(callee value.Value, argCount int) bool {
	if callee.IsObj() {
		switch obj := callee.AsObj().(type) {
		case *value.Closure:
			return vm.call(obj, argCount)
		case *value.Class:
			vm.stack[vm.stackTop-argCount-1] = value.FromObj(vm.newInstance(obj))
			if initializer, ok := obj.Methods.Get(vm.initString); ok {
				return vm.call(initializer.AsObj().(*value.Closure), argCount)
			} else if argCount != 0 {
				vm.lastErr = vm.runtimeError("Expected 0 arguments but got %d.", argCount)
				return false
			}
			return true
		case *value.BoundMethod:
			vm.stack[vm.stackTop-argCount-1] = obj.Receiver
			return vm.call(obj.Method, argCount)
		case *value.Native:
			args := vm.stack[vm.stackTop-argCount : vm.stackTop]
			result, err := obj.Fn(args)
			if err != nil {
				vm.lastErr = vm.runtimeError("%s", err.Error())
				return false
			}
			vm.stackTop -= argCount + 1
			vm.push(result)
			return true
		}
	}
	vm.lastErr = vm.runtimeError("Can only call functions and classes.")
	return false
}

func (vm *VM) call(closure *value.Closure, argCount int) bool {
	if argCount != closure.Fn.Arity {
		vm.lastErr = vm.runtimeError("Expected %d arguments but got %d.", closure.Fn.Arity, argCount)
		return false
	}
	if vm.frameCount == len(vm.frames) {
		vm.lastErr = vm.runtimeError("Stack overflow.")
		return false
	}
	fr := &vm.frames[vm.frameCount]
	vm.frameCount++
	fr.closure = closure
	fr.ip = 0
	fr.slotsBase = vm.stackTop - argCount - 1
	return true
}

func (vm *VM) invoke(name *value.ObjString, argCount int) bool {
	receiver := vm.peek(argCount)
	if !receiver.IsObjKind(value.ObjInstanceKind) {
		vm.lastErr = vm.runtimeError("Only instances have methods.")
		return false
	}
	instance := receiver.AsObj().(*value.Instance)

	if field, ok := instance.Fields.Get(name); ok {
		vm.stack[vm.stackTop-argCount-1] = field
		return vm.callValue(field, argCount)
	}
	return vm.invokeFromClass(instance.Class, name, argCount)
}

func (vm *VM) invokeFromClass(class *value.Class, name *value.ObjString, argCount int) bool {
	method, ok := class.Methods.Get(name)
	if !ok {
		vm.lastErr = vm.runtimeError("Undefined property '%s'.", name.Chars)
		return false
	}
	return vm.call(method.AsObj().(*value.Closure), argCount)
}

func (vm *VM) bindMethod(class *value.Class, name *value.ObjString) bool {
	method, ok := class.Methods.Get(name)
	if !ok {
		vm.lastErr = vm.runtimeError("Undefined property '%s'.", name.Chars)
		return false
	}
	bound := vm.newBoundMethod(vm.peek(0), method.AsObj().(*value.Closure))
	vm.pop()
	vm.push(value.FromObj(bound))
	return true
}

// --- upvalues ---------------------------------------------------------

// captureUpvalue returns the open upvalue for the stack slot at index,
// reusing an existing one if the sorted open-upvalue list already has one
// for that exact slot, per spec section 4.6.
func (vm *VM) captureUpvalue(index int) *value.Upvalue {
	var prev *value.Upvalue
	cur := vm.openUpvalues
	for cur != nil && cur.StackSlot > index {
		prev = cur
		cur = cur.NextOpen
	}
	if cur != nil && cur.StackSlot == index {
		return cur
	}

	created := &value.Upvalue{Location: &vm.stack[index], StackSlot: index, NextOpen: cur}
	vm.registerObject(created, upvalueSize)
	if prev == nil {
		vm.openUpvalues = created
	} else {
		prev.NextOpen = created
	}
	return created
}

// closeUpvalues closes every open upvalue whose stack slot is >= last,
// copying the live value out of the stack and into the upvalue's own Closed
// field, per spec section 4.6.
func (vm *VM) closeUpvalues(last int) {
	for vm.openUpvalues != nil && vm.openUpvalues.StackSlot >= last {
		up := vm.openUpvalues
		up.Closed = *up.Location
		up.Location = &up.Closed
		vm.openUpvalues = up.NextOpen
	}
}
