package compiler_test

import (
	"testing"

	"github.com/mna/loxvm/lang/compiler"
	"github.com/mna/loxvm/lang/scanerr"
	"github.com/mna/loxvm/lang/value"
	"github.com/stretchr/testify/require"
)

func compile(t *testing.T, src string) *value.Function {
	t.Helper()
	var strings value.Table
	fn, err := compiler.Compile(src, "test", &strings)
	require.NoError(t, err)
	require.NotNil(t, fn)
	return fn
}

func TestCompileArithmeticEmitsExpectedOpcodes(t *testing.T) {
	fn := compile(t, "print 1 + 2 * 3;")
	code := fn.Chunk.Code

	require.Contains(t, code, byte(value.OpConstant))
	require.Contains(t, code, byte(value.OpMultiply))
	require.Contains(t, code, byte(value.OpAdd))
	require.Contains(t, code, byte(value.OpPrint))
	require.Equal(t, byte(value.OpReturn), code[len(code)-1])
}

func TestCompileReportsErrorAndReturnsNilFunction(t *testing.T) {
	var strings value.Table
	fn, err := compiler.Compile("print 1 +;", "test", &strings)
	require.Error(t, err)
	require.Nil(t, fn)
}

func TestCompileSynchronizesAfterErrorAndReportsSecondError(t *testing.T) {
	var strings value.Table
	_, err := compiler.Compile("var; print 1;\nvar;", "test", &strings)
	require.Error(t, err)
	var list scanerr.List
	require.ErrorAs(t, err, &list)
	require.Len(t, list, 2)
	require.Contains(t, list[0].Msg, "line 1")
	require.Contains(t, list[1].Msg, "line 2")
}

func TestCompileGlobalVarRoundTrips(t *testing.T) {
	fn := compile(t, `var a = 1; a = 2; print a;`)
	code := fn.Chunk.Code
	require.Contains(t, code, byte(value.OpDefineGlobal))
	require.Contains(t, code, byte(value.OpSetGlobal))
	require.Contains(t, code, byte(value.OpGetGlobal))
}

func TestCompileLocalsUseGetSetLocal(t *testing.T) {
	fn := compile(t, `{ var a = 1; a = 2; print a; }`)
	code := fn.Chunk.Code
	require.NotContains(t, code, byte(value.OpDefineGlobal))
	require.Contains(t, code, byte(value.OpSetLocal))
	require.Contains(t, code, byte(value.OpGetLocal))
	// the block's local must be popped on scope exit, right before the
	// compiler's implicit `nil; return`.
	require.Equal(t, byte(value.OpPop), code[len(code)-3])
}

func TestCompileClosureCapturesUpvalue(t *testing.T) {
	fn := compile(t, `
		fun makeCounter() {
			var i = 0;
			fun count() {
				i = i + 1;
				return i;
			}
			return count;
		}
	`)
	// makeCounter is compiled as a nested Function constant of the script,
	// and count as a nested Function constant of makeCounter; find count.
	var inner *value.Function
	for _, c := range fn.Chunk.Constants {
		if c.IsObjKind(value.ObjFunctionKind) {
			f := c.AsObj().(*value.Function)
			if f.Name != nil && f.Name.Chars == "makeCounter" {
				inner = f
			}
		}
	}
	require.NotNil(t, inner)
	var count *value.Function
	for _, c := range inner.Chunk.Constants {
		if c.IsObjKind(value.ObjFunctionKind) {
			f := c.AsObj().(*value.Function)
			if f.Name != nil && f.Name.Chars == "count" {
				count = f
			}
		}
	}
	require.NotNil(t, count)
	require.Equal(t, 1, count.UpvalueCount)
}

func TestCompileClassEmitsClassAndMethod(t *testing.T) {
	fn := compile(t, `
		class Greeter {
			greet() {
				print "hi";
			}
		}
	`)
	code := fn.Chunk.Code
	require.Contains(t, code, byte(value.OpClass))
	require.Contains(t, code, byte(value.OpMethod))
}

func TestCompileInheritanceEmitsInherit(t *testing.T) {
	fn := compile(t, `
		class A {}
		class B < A {}
	`)
	require.Contains(t, fn.Chunk.Code, byte(value.OpInherit))
}

func TestCompileSelfInheritanceIsError(t *testing.T) {
	var strings value.Table
	_, err := compiler.Compile(`class A < A {}`, "test", &strings)
	require.Error(t, err)
}

func TestCompileBreakOutsideLoopIsError(t *testing.T) {
	var strings value.Table
	_, err := compiler.Compile(`break;`, "test", &strings)
	require.Error(t, err)
}

func TestCompileBreakInsideLoopEmitsJump(t *testing.T) {
	fn := compile(t, `while (true) { break; }`)
	require.Contains(t, fn.Chunk.Code, byte(value.OpJump))
}

func TestCompileReturnValueInInitializerIsError(t *testing.T) {
	var strings value.Table
	_, err := compiler.Compile(`
		class A {
			init() {
				return 1;
			}
		}
	`, "test", &strings)
	require.Error(t, err)
}

func TestCompileInterningSharesIdenticalStringConstants(t *testing.T) {
	var strings value.Table
	fn, err := compiler.Compile(`var a = "hi"; var b = "hi";`, "test", &strings)
	require.NoError(t, err)

	var first, second *value.ObjString
	for _, c := range fn.Chunk.Constants {
		if c.IsObjKind(value.ObjStringKind) {
			s := c.AsObj().(*value.ObjString)
			if s.Chars == "hi" {
				if first == nil {
					first = s
				} else {
					second = s
				}
			}
		}
	}
	require.NotNil(t, first)
	require.NotNil(t, second)
	require.Same(t, first, second)
}
