package debugdump_test

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hexlift/hexlift/debugdump"
	"github.com/hexlift/hexlift/ir"
)

func buildAddChunk(t *testing.T) *ir.Chunk {
	t.Helper()
	b := ir.NewBuilder()
	b.BeginChunk("add_chunk")
	rax := ir.Reg{Offset: 8, Name: "RAX"}
	rbx := ir.Reg{Offset: 16, Name: "RBX"}
	require.NoError(t, b.BeginPacket(0x1000, "add rax, rbx"))
	lhs, err := b.ReadReg(rax, ir.U64)
	require.NoError(t, err)
	rhs, err := b.ReadReg(rbx, ir.U64)
	require.NoError(t, err)
	sum, err := b.Add(lhs, rhs)
	require.NoError(t, err)
	require.NoError(t, b.WriteReg(rax, sum.Result))
	_, err = b.EndPacket()
	require.NoError(t, err)
	return b.EndChunk()
}

func TestDumpRendersPacketsAndActions(t *testing.T) {
	chunk := buildAddChunk(t)
	var buf bytes.Buffer
	require.NoError(t, debugdump.Dump(&buf, chunk))

	out := buf.String()
	require.Contains(t, out, "packet 0x1000")
	require.Contains(t, out, "add rax, rbx")
	require.Contains(t, out, "write_reg RAX")
	require.Contains(t, out, "read_reg(RAX)")
	require.Contains(t, out, "read_reg(RBX)")
}

func TestDumpRendersControlFlow(t *testing.T) {
	b := ir.NewBuilder()
	b.BeginChunk("branchy")
	require.NoError(t, b.BeginPacket(0, "jmp loop"))
	target := b.Label("loop_top")
	require.NoError(t, b.BrTo(target))
	require.NoError(t, b.PlaceLabel(target))
	_, err := b.EndPacket()
	require.NoError(t, err)
	chunk := b.EndChunk()

	var buf bytes.Buffer
	require.NoError(t, debugdump.Dump(&buf, chunk))
	out := buf.String()
	require.Contains(t, out, "br -> loop_top")
	require.Contains(t, out, "label loop_top:")
}
