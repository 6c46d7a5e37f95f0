package value_test

import (
	"testing"

	"github.com/mna/loxvm/lang/value"
	"github.com/stretchr/testify/require"
)

func TestChunkWriteAndLines(t *testing.T) {
	var c value.Chunk
	c.WriteOp(value.OpNil, 1)
	c.Write(0x05, 2)

	require.Equal(t, []byte{byte(value.OpNil), 0x05}, c.Code)
	require.Equal(t, []int{1, 2}, c.Lines)
}

func TestChunkAddConstant(t *testing.T) {
	var c value.Chunk
	idx := c.AddConstant(value.Number(1))
	require.Equal(t, 0, idx)

	idx = c.AddConstant(value.Number(2))
	require.Equal(t, 1, idx)
	require.Len(t, c.Constants, 2)
	require.Equal(t, value.Number(2), c.Constants[1])
}

func TestOpcodeString(t *testing.T) {
	require.Equal(t, "OP_CONSTANT", value.OpConstant.String())
	require.Equal(t, "OP_RETURN", value.OpReturn.String())
	require.Contains(t, value.Opcode(255).String(), "OP_UNKNOWN")
}
