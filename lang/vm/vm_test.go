package vm_test

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mna/loxvm/lang/vm"
)

// run compiles and executes src, returning its stdout split into lines (the
// trailing newline is stripped, empty output yields nil rather than [""]).
func run(t *testing.T, src string) []string {
	t.Helper()
	m := vm.New()
	var out bytes.Buffer
	m.Stdout = &out
	err := m.Interpret(src, "test")
	require.NoError(t, err)
	s := out.String()
	if s == "" {
		return nil
	}
	return strings.Split(strings.TrimSuffix(s, "\n"), "\n")
}

// TestScenarios exercises spec section 8's concrete end-to-end scenarios
// table verbatim: each program must print exactly the listed lines.
func TestScenarios(t *testing.T) {
	cases := []struct {
		name string
		src  string
		want []string
	}{
		{
			name: "arithmetic precedence",
			src:  `print 1 + 2 * 3;`,
			want: []string{"7"},
		},
		{
			name: "string concatenation",
			src:  `var a = "hi"; var b = " there"; print a + b;`,
			want: []string{"hi there"},
		},
		{
			name: "closures capture by reference across calls",
			src: `fun mk() { var x = 0; fun inc() { x = x + 1; return x; } return inc; }
			      var f = mk();
			      print f();
			      print f();
			      print f();`,
			want: []string{"1", "2", "3"},
		},
		{
			name: "single inheritance and super calls",
			src: `class A { greet() { print "A"; } }
			      class B < A { greet() { super.greet(); print "B"; } }
			      B().greet();`,
			want: []string{"A", "B"},
		},
		{
			name: "init and this binding",
			src:  `class P { init(x) { this.x = x; } } var p = P(42); print p.x;`,
			want: []string{"42"},
		},
		{
			name: "for loop",
			src:  `for (var i = 0; i < 3; i = i + 1) { print i; }`,
			want: []string{"0", "1", "2"},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, run(t, tc.src))
		})
	}
}

// TestBreakExtension exercises the break supplement (SPEC_FULL.md's
// resolution of spec.md's break Open Question).
func TestBreakExtension(t *testing.T) {
	t.Run("break exits the loop early", func(t *testing.T) {
		src := `for (var i = 0; i < 5; i = i + 1) { if (i == 2) break; print i; }`
		assert.Equal(t, []string{"0", "1"}, run(t, src))
	})

	t.Run("break inside while", func(t *testing.T) {
		src := `var i = 0;
		        while (i < 5) {
		          i = i + 1;
		          if (i == 4) break;
		          print i;
		        }`
		assert.Equal(t, []string{"1", "2", "3"}, run(t, src))
	})
}

// TestGCStressDeterminism checks spec section 8's GC-stress-mode
// determinism property: forcing a collection before every allocation must
// not change observable output.
func TestGCStressDeterminism(t *testing.T) {
	src := `class Node {
	          init(value) { this.value = value; this.next = nil; }
	        }
	        fun sum(node) {
	          var total = 0;
	          while (node != nil) {
	            total = total + node.value;
	            node = node.next;
	          }
	          return total;
	        }
	        var a = Node(1);
	        var b = Node(2);
	        var c = Node(3);
	        a.next = b;
	        b.next = c;
	        print sum(a);
	        fun mk() { var x = 0; fun inc() { x = x + 1; return x; } return inc; }
	        var f = mk();
	        print f();
	        print f();
	        var s = "a" + "b" + "c" + "d";
	        print s;`

	var normal bytes.Buffer
	m1 := vm.New()
	m1.Stdout = &normal
	require.NoError(t, m1.Interpret(src, "test"))

	var stressed bytes.Buffer
	m2 := vm.New()
	m2.Stdout = &stressed
	m2.GCStressTest = true
	require.NoError(t, m2.Interpret(src, "test"))

	assert.Equal(t, normal.String(), stressed.String())
	assert.Equal(t, "6\n1\n2\nabcd\n", normal.String())
}

// TestCompileErrorReportsAndSkipsExecution checks spec section 7: a compile
// error is reported with no Function returned, so Interpret must not run
// anything (no stdout output) and must return a non-nil error.
func TestCompileErrorReportsAndSkipsExecution(t *testing.T) {
	m := vm.New()
	var out bytes.Buffer
	m.Stdout = &out
	err := m.Interpret(`print 1 +;`, "test")
	require.Error(t, err)
	assert.Empty(t, out.String())
}

// TestRuntimeErrorUndefinedGlobal checks spec section 7's runtime-error
// outcome kind: an undefined global reference fails at run time, not
// compile time, and carries a RuntimeError.
func TestRuntimeErrorUndefinedGlobal(t *testing.T) {
	m := vm.New()
	var out, errOut bytes.Buffer
	m.Stdout = &out
	m.Stderr = &errOut
	err := m.Interpret(`print nope;`, "test")
	require.Error(t, err)
	var rerr *vm.RuntimeError
	require.ErrorAs(t, err, &rerr)
	assert.Contains(t, rerr.Message, "Undefined variable 'nope'.")
}

// TestRuntimeErrorStackTrace checks that the reported trace walks nested
// call frames innermost first, per spec section 5.
func TestRuntimeErrorStackTrace(t *testing.T) {
	src := `fun a() { b(); }
	        fun b() { c(); }
	        fun c() { return -"x"; }
	        a();`
	m := vm.New()
	var errOut bytes.Buffer
	m.Stderr = &errOut
	err := m.Interpret(src, "test")
	require.Error(t, err)
	var rerr *vm.RuntimeError
	require.ErrorAs(t, err, &rerr)
	assert.Contains(t, rerr.Trace, "c()")
	assert.Contains(t, rerr.Trace, "b()")
	assert.Contains(t, rerr.Trace, "a()")
	assert.Less(t, strings.Index(rerr.Trace, "c()"), strings.Index(rerr.Trace, "b()"))
	assert.Less(t, strings.Index(rerr.Trace, "b()"), strings.Index(rerr.Trace, "a()"))
}

// TestStringInterningIdentity checks the intern invariant of spec section
// 8: a string built at runtime by concatenation compares equal to an
// equivalent compile-time constant, because both share one intern table.
func TestStringInterningIdentity(t *testing.T) {
	src := `var a = "foo" + "bar";
	        print a == "foobar";`
	assert.Equal(t, []string{"true"}, run(t, src))
}
