package opt

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hexlift/hexlift/decode"
	"github.com/hexlift/hexlift/ir"
)

func init() {
	for _, off := range decode.FlagOffsets() {
		RegisterFlagOffset(off)
	}
}

// TestDeadFlagEliminationDropsUnreadWrite builds two packets: the first
// writes ZF and is never read; the second writes ZF again and is read by a
// CondBr. The first packet's ZF write should be removed.
func TestDeadFlagEliminationDropsUnreadWrite(t *testing.T) {
	b := ir.NewBuilder()
	b.BeginChunk("fixture")

	require.NoError(t, b.BeginPacket(0x1000, "first"))
	one, err := b.ConstU64(1)
	require.NoError(t, err)
	require.NoError(t, b.WriteReg(decode.FlagReg("ZF"), one))
	_, err = b.EndPacket()
	require.NoError(t, err)

	require.NoError(t, b.BeginPacket(0x1004, "second"))
	zero, err := b.ConstU64(0)
	require.NoError(t, err)
	require.NoError(t, b.WriteReg(decode.FlagReg("ZF"), zero))
	read, err := b.ReadReg(decode.FlagReg("ZF"), ir.U1)
	require.NoError(t, err)
	lbl := b.Label("target")
	require.NoError(t, b.CondBrTo(read, lbl))
	require.NoError(t, b.PlaceLabel(lbl))
	res, err := b.EndPacket()
	require.NoError(t, err)
	require.Equal(t, ir.PacketEndOfBlock, res)

	c := b.Chunk()
	result := DeadFlagElimination(c, nil)
	require.Equal(t, 1, result.Removed)
	require.Equal(t, 2, result.Total)

	firstActions := c.Packets()[0].Actions()
	for _, a := range firstActions {
		_, isWrite := a.(*ir.WriteReg)
		require.False(t, isWrite, "dead ZF write in first packet should have been removed")
	}
}

// TestDeadFlagEliminationPreservesLastPacketWrite ensures a flag write in
// the chunk's last flag-modifying packet survives even with no in-chunk
// reader, since a successor chunk may observe it live-out.
func TestDeadFlagEliminationPreservesLastPacketWrite(t *testing.T) {
	b := ir.NewBuilder()
	b.BeginChunk("fixture2")
	require.NoError(t, b.BeginPacket(0x2000, "only"))
	one, err := b.ConstU64(1)
	require.NoError(t, err)
	require.NoError(t, b.WriteReg(decode.FlagReg("CF"), one))
	_, err = b.EndPacket()
	require.NoError(t, err)

	c := b.Chunk()
	result := DeadFlagElimination(c, nil)
	require.Equal(t, 0, result.Removed)
	require.Equal(t, 1, result.Total)
}

// Running the pass twice must produce the same chunk as running it once.
func TestDeadFlagEliminationIsIdempotent(t *testing.T) {
	build := func() *ir.Chunk {
		b := ir.NewBuilder()
		b.BeginChunk("idem")
		require.NoError(t, b.BeginPacket(0x1000, "first"))
		one, err := b.ConstU64(1)
		require.NoError(t, err)
		require.NoError(t, b.WriteReg(decode.FlagReg("ZF"), one))
		require.NoError(t, b.WriteReg(decode.FlagReg("CF"), one))
		_, err = b.EndPacket()
		require.NoError(t, err)
		require.NoError(t, b.BeginPacket(0x1004, "second"))
		zero, err := b.ConstU64(0)
		require.NoError(t, err)
		require.NoError(t, b.WriteReg(decode.FlagReg("ZF"), zero))
		_, err = b.EndPacket()
		require.NoError(t, err)
		return b.Chunk()
	}

	c := build()
	first := DeadFlagElimination(c, nil)
	actionsAfterFirst := countActions(c)
	second := DeadFlagElimination(c, nil)
	require.Equal(t, 0, second.Removed, "second pass must find nothing new")
	require.Equal(t, actionsAfterFirst, countActions(c))
	require.LessOrEqual(t, second.Total, first.Total)
}

func countActions(c *ir.Chunk) int {
	n := 0
	for _, p := range c.Packets() {
		n += len(p.Actions())
	}
	return n
}

// A dead flag write whose value tree contains an atomic RMW anchors the
// atomic's side effect and must survive the pass.
func TestDeadFlagEliminationKeepsAtomicAnchoredWrite(t *testing.T) {
	b := ir.NewBuilder()
	b.BeginChunk("locked")

	require.NoError(t, b.BeginPacket(0x1000, "lock add [mem], 1"))
	addr, err := b.ConstU64(0x9000)
	require.NoError(t, err)
	one, err := b.ConstU64(1)
	require.NoError(t, err)
	prior, err := b.AtomicBinaryRMW(ir.AtomicAdd, addr, one)
	require.NoError(t, err)
	zero, err := b.ConstU64(0)
	require.NoError(t, err)
	eq, err := b.CmpEq(prior, zero)
	require.NoError(t, err)
	require.NoError(t, b.WriteReg(decode.FlagReg("ZF"), eq.Result))
	_, err = b.EndPacket()
	require.NoError(t, err)

	require.NoError(t, b.BeginPacket(0x1004, "overwrite zf"))
	c, err := b.ConstU64(1)
	require.NoError(t, err)
	require.NoError(t, b.WriteReg(decode.FlagReg("ZF"), c))
	_, err = b.EndPacket()
	require.NoError(t, err)

	chunk := b.Chunk()
	result := DeadFlagElimination(chunk, nil)
	require.Equal(t, 0, result.Removed, "atomic-anchored flag write must not be dropped")
	require.Len(t, chunk.Packets()[0].Actions(), 1)
}
