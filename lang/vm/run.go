package vm

import (
	"fmt"

	"github.com/mna/loxvm/lang/value"
)

// run drives the main dispatch loop: read an opcode byte from the current
// frame's ip, advance, dispatch. The frame pointer is re-read from
// vm.frames[vm.frameCount-1] after any operation that may push or pop
// frames, matching spec section 4.6's "Main loop" description and the
// re-read-after-call discipline lang/machine/machine.go's run loop follows
// around its own call opcodes.
func (vm *VM) run() error {
	fr := &vm.frames[vm.frameCount-1]

	readByte := func() byte {
		b := fr.closure.Fn.Chunk.Code[fr.ip]
		fr.ip++
		return b
	}
	readUint16 := func() int {
		hi := readByte()
		lo := readByte()
		return int(hi)<<8 | int(lo)
	}
	readConstant := func() value.Value {
		return fr.closure.Fn.Chunk.Constants[readByte()]
	}
	readString := func() *value.ObjString {
		return readConstant().AsObj().(*value.ObjString)
	}

	for {
		op := value.Opcode(readByte())
		switch op {
		case value.OpConstant:
			vm.push(readConstant())

		case value.OpNil:
			vm.push(value.Nil)
		case value.OpTrue:
			vm.push(value.True)
		case value.OpFalse:
			vm.push(value.False)
		case value.OpPop:
			vm.pop()

		case value.OpGetLocal:
			slot := readByte()
			vm.push(vm.stack[fr.slotsBase+int(slot)])
		case value.OpSetLocal:
			slot := readByte()
			vm.stack[fr.slotsBase+int(slot)] = vm.peek(0)

		case value.OpGetGlobal:
			name := readString()
			v, ok := vm.globals.Get(name)
			if !ok {
				return vm.runtimeError("Undefined variable '%s'.", name.Chars)
			}
			vm.push(v)
		case value.OpDefineGlobal:
			name := readString()
			vm.globals.Put(name, vm.peek(0))
			vm.pop()
		case value.OpSetGlobal:
			name := readString()
			if _, ok := vm.globals.Get(name); !ok {
				return vm.runtimeError("Undefined variable '%s'.", name.Chars)
			}
			vm.globals.Put(name, vm.peek(0))

		case value.OpGetUpvalue:
			slot := readByte()
			vm.push(*fr.closure.Upvalues[slot].Location)
		case value.OpSetUpvalue:
			slot := readByte()
			*fr.closure.Upvalues[slot].Location = vm.peek(0)

		case value.OpGetProperty:
			if !vm.peek(0).IsObjKind(value.ObjInstanceKind) {
				return vm.runtimeError("Only instances have properties.")
			}
			instance := vm.peek(0).AsObj().(*value.Instance)
			name := readString()
			if v, ok := instance.Fields.Get(name); ok {
				vm.pop()
				vm.push(v)
				break
			}
			if !vm.bindMethod(instance.Class, name) {
				return vm.lastErr
			}
		case value.OpSetProperty:
			if !vm.peek(1).IsObjKind(value.ObjInstanceKind) {
				return vm.runtimeError("Only instances have fields.")
			}
			instance := vm.peek(1).AsObj().(*value.Instance)
			name := readString()
			instance.Fields.Set(name, vm.peek(0))
			v := vm.pop()
			vm.pop()
			vm.push(v)
		case value.OpGetSuper:
			name := readString()
			superclass := vm.pop().AsObj().(*value.Class)
			if !vm.bindMethod(superclass, name) {
				return vm.lastErr
			}

		case value.OpEqual:
			b := vm.pop()
			a := vm.pop()
			vm.push(value.Bool(value.Equal(a, b)))
		case value.OpGreater:
			if err := vm.binaryNumberOp(func(a, b float64) value.Value { return value.Bool(a > b) }); err != nil {
				return err
			}
		case value.OpLess:
			if err := vm.binaryNumberOp(func(a, b float64) value.Value { return value.Bool(a < b) }); err != nil {
				return err
			}
		case value.OpAdd:
			b, a := vm.peek(0), vm.peek(1)
			switch {
			case a.IsNumber() && b.IsNumber():
				vm.pop()
				vm.pop()
				vm.push(value.Number(a.AsNumber() + b.AsNumber()))
			case a.IsObjKind(value.ObjStringKind) || b.IsObjKind(value.ObjStringKind):
				vm.pop()
				vm.pop()
				vm.push(vm.concatenate(a, b))
			default:
				return vm.runtimeError("Operands must be two numbers or two strings.")
			}
		case value.OpSubtract:
			if err := vm.binaryNumberOp(func(a, b float64) value.Value { return value.Number(a - b) }); err != nil {
				return err
			}
		case value.OpMultiply:
			if err := vm.binaryNumberOp(func(a, b float64) value.Value { return value.Number(a * b) }); err != nil {
				return err
			}
		case value.OpDivide:
			if err := vm.binaryNumberOp(func(a, b float64) value.Value { return value.Number(a / b) }); err != nil {
				return err
			}
		case value.OpNot:
			vm.push(value.Bool(vm.pop().Falsey()))
		case value.OpNegate:
			if !vm.peek(0).IsNumber() {
				return vm.runtimeError("Operand must be a number.")
			}
			vm.push(value.Number(-vm.pop().AsNumber()))

		case value.OpPrint:
			fmt.Fprintf(vm.stdout(), "%s\n", value.Print(vm.pop()))

		case value.OpJump:
			offset := readUint16()
			fr.ip += offset
		case value.OpJumpIfFalse:
			offset := readUint16()
			if vm.peek(0).Falsey() {
				fr.ip += offset
			}
		case value.OpLoop:
			offset := readUint16()
			fr.ip -= offset

		case value.OpCall:
			argCount := int(readByte())
			if !vm.callValue(vm.peek(argCount), argCount) {
				return vm.lastErr
			}
			fr = &vm.frames[vm.frameCount-1]

		case value.OpInvoke:
			name := readString()
			argCount := int(readByte())
			if !vm.invoke(name, argCount) {
				return vm.lastErr
			}
			fr = &vm.frames[vm.frameCount-1]

		case value.OpSuperInvoke:
			name := readString()
			argCount := int(readByte())
			superclass := vm.pop().AsObj().(*value.Class)
			if !vm.invokeFromClass(superclass, name, argCount) {
				return vm.lastErr
			}
			fr = &vm.frames[vm.frameCount-1]

		case value.OpClosure:
			fn := readConstant().AsObj().(*value.Function)
			closure := vm.newClosure(fn)
			// Push before capturing upvalues: capture can itself allocate
			// (registerObject may trigger collectGarbage), and only a
			// closure already reachable from the stack survives that.
			vm.push(value.FromObj(closure))
			for i := range closure.Upvalues {
				isLocal := readByte()
				index := readByte()
				if isLocal != 0 {
					closure.Upvalues[i] = vm.captureUpvalue(fr.slotsBase + int(index))
				} else {
					closure.Upvalues[i] = fr.closure.Upvalues[index]
				}
			}

		case value.OpCloseUpvalue:
			vm.closeUpvalues(vm.stackTop - 1)
			vm.pop()

		case value.OpReturn:
			result := vm.pop()
			vm.closeUpvalues(fr.slotsBase)
			vm.frameCount--
			if vm.frameCount == 0 {
				vm.pop()
				return nil
			}
			vm.stackTop = fr.slotsBase
			vm.push(result)
			fr = &vm.frames[vm.frameCount-1]

		case value.OpClass:
			vm.push(value.FromObj(vm.newClass(readString())))
		case value.OpInherit:
			superVal := vm.peek(1)
			if !superVal.IsObjKind(value.ObjClassKind) {
				return vm.runtimeError("Superclass must be a class.")
			}
			subclass := vm.peek(0).AsObj().(*value.Class)
			subclass.Methods.AddAll(superVal.AsObj().(*value.Class).Methods)
			vm.pop() // pop the subclass operand; the superclass stays bound as the "super" local
		case value.OpMethod:
			name := readString()
			method := vm.peek(0)
			class := vm.peek(1).AsObj().(*value.Class)
			class.Methods.Set(name, method)
			vm.pop()

		default:
			return vm.runtimeError("Unknown opcode %d.", byte(op))
		}
	}
}

func (vm *VM) binaryNumberOp(f func(a, b float64) value.Value) error {
	if !vm.peek(0).IsNumber() || !vm.peek(1).IsNumber() {
		return vm.runtimeError("Operands must be numbers.")
	}
	b := vm.pop()
	a := vm.pop()
	vm.push(f(a.AsNumber(), b.AsNumber()))
	return nil
}
