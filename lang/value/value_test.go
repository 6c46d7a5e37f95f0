package value_test

import (
	"testing"

	"github.com/mna/loxvm/lang/value"
	"github.com/stretchr/testify/require"
)

func TestFalseyTruthy(t *testing.T) {
	require.True(t, value.Nil.Falsey())
	require.True(t, value.False.Falsey())
	require.True(t, value.True.Truthy())
	require.True(t, value.Number(0).Truthy())
	require.True(t, value.FromObj(&value.ObjString{Chars: ""}).Truthy())
}

func TestEqualCrossTypeIsFalse(t *testing.T) {
	require.False(t, value.Equal(value.Nil, value.False))
	require.False(t, value.Equal(value.Number(0), value.False))
	require.True(t, value.Equal(value.Nil, value.Nil))
	require.True(t, value.Equal(value.Number(1), value.Number(1)))
	require.True(t, value.Equal(value.True, value.True))
}

func TestEqualObjectsByIdentity(t *testing.T) {
	a := value.FromObj(&value.ObjString{Chars: "x"})
	b := value.FromObj(&value.ObjString{Chars: "x"})
	require.False(t, value.Equal(a, b), "distinct *ObjString instances are not equal without interning")

	s := &value.ObjString{Chars: "x"}
	require.True(t, value.Equal(value.FromObj(s), value.FromObj(s)))
}

func TestPrintForms(t *testing.T) {
	require.Equal(t, "nil", value.Print(value.Nil))
	require.Equal(t, "true", value.Print(value.True))
	require.Equal(t, "false", value.Print(value.False))
	require.Equal(t, "3", value.Print(value.Number(3)))
	require.Equal(t, "3.14", value.Print(value.Number(3.14)))

	fn := &value.Function{Name: &value.ObjString{Chars: "add"}}
	require.Equal(t, "<fn add>", value.Print(value.FromObj(fn)))

	top := &value.Function{}
	require.Equal(t, "<script>", value.Print(value.FromObj(top)))

	cls := &value.Class{Name: &value.ObjString{Chars: "Foo"}}
	require.Equal(t, "Foo", value.Print(value.FromObj(cls)))

	inst := &value.Instance{Class: cls}
	require.Equal(t, "Foo instance", value.Print(value.FromObj(inst)))

	native := &value.Native{Name: "clock"}
	require.Equal(t, "<native fn>", value.Print(value.FromObj(native)))
}

func TestTypeName(t *testing.T) {
	require.Equal(t, "nil", value.TypeName(value.Nil))
	require.Equal(t, "bool", value.TypeName(value.True))
	require.Equal(t, "number", value.TypeName(value.Number(1)))
	require.Equal(t, "string", value.TypeName(value.FromObj(&value.ObjString{})))
}
