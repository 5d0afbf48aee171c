package debugdump_test

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hexlift/hexlift/debugdump"
	"github.com/hexlift/hexlift/ir"
)

func TestDotEmitsGraphvizWithFallthroughEdge(t *testing.T) {
	b := ir.NewBuilder()
	b.BeginChunk("two_packets")
	rax := ir.Reg{Offset: 8, Name: "RAX"}
	require.NoError(t, b.BeginPacket(0x1000, "mov rax, 1"))
	one, err := b.ConstU64(1)
	require.NoError(t, err)
	require.NoError(t, b.WriteReg(rax, one))
	_, err = b.EndPacket()
	require.NoError(t, err)

	require.NoError(t, b.BeginPacket(0x1004, "ret"))
	pc, err := b.ReadPC(ir.U64)
	require.NoError(t, err)
	require.NoError(t, b.WritePC(pc, ir.BrNormal))
	_, err = b.EndPacket()
	require.NoError(t, err)
	chunk := b.EndChunk()

	var buf bytes.Buffer
	require.NoError(t, debugdump.Dot(&buf, chunk))
	out := buf.String()

	require.Contains(t, out, `digraph "two_packets"`)
	require.Contains(t, out, "n0 -> n1")
	require.Contains(t, out, "write_reg RAX")
	require.Contains(t, out, "}")
}

func TestDotEmitsBranchEdgeToLabel(t *testing.T) {
	b := ir.NewBuilder()
	b.BeginChunk("branch")
	require.NoError(t, b.BeginPacket(0, "jmp loop"))
	target := b.Label("loop_top")
	cond, err := b.ConstU8(1)
	require.NoError(t, err)
	condU1, err := b.Trunc(cond, ir.U1)
	require.NoError(t, err)
	require.NoError(t, b.CondBrTo(condU1, target))
	require.NoError(t, b.PlaceLabel(target))
	_, err = b.EndPacket()
	require.NoError(t, err)
	chunk := b.EndChunk()

	var buf bytes.Buffer
	require.NoError(t, debugdump.Dot(&buf, chunk))
	require.Contains(t, buf.String(), `n0 -> "loop_top"`)
}
