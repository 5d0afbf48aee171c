package xctx_test

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/hexlift/hexlift/host"
	"github.com/hexlift/hexlift/ir"
	"github.com/hexlift/hexlift/xctx"
)

// buildXorRaxRax constructs the canonical `xor rax, rax` chunk directly
// against the IR builder, bypassing decode/lift so this test exercises only
// xctx's materialization.
func buildXorRaxRax(t *testing.T) *ir.Chunk {
	t.Helper()
	b := ir.NewBuilder()
	b.BeginChunk("xor_rax_rax")
	rax := ir.Reg{Offset: 8, Name: "RAX"}
	require.NoError(t, b.BeginPacket(0x400000, "xor rax, rax"))
	lhs, err := b.ReadReg(rax, ir.U64)
	require.NoError(t, err)
	result, err := b.Bxor(lhs, lhs)
	require.NoError(t, err)
	require.NoError(t, b.WriteReg(rax, result.Result))
	_, err = b.EndPacket()
	require.NoError(t, err)
	return b.EndChunk()
}

func TestArm64LowerChunkEmitsStr(t *testing.T) {
	chunk := buildXorRaxRax(t)
	log := zap.NewNop()
	l := xctx.NewArm64Lowerer(log)
	require.NoError(t, l.LowerChunk(chunk))

	blocks := l.Blocks()
	require.NotEmpty(t, blocks)
	var mnemonics []string
	for _, blk := range blocks {
		for _, instr := range blk.Instr {
			mnemonics = append(mnemonics, instr.Mnemonic)
		}
	}
	require.Contains(t, mnemonics, "eor")
	require.Contains(t, mnemonics, "str")
}

func TestArm64MaterializeIsMemoized(t *testing.T) {
	b := ir.NewBuilder()
	b.BeginChunk("c")
	require.NoError(t, b.BeginPacket(0, "disasm"))
	rax := ir.Reg{Offset: 8, Name: "RAX"}
	rbx := ir.Reg{Offset: 16, Name: "RBX"}
	v, err := b.ReadReg(rax, ir.U64)
	require.NoError(t, err)
	require.NoError(t, b.WriteReg(rax, v))
	require.NoError(t, b.WriteReg(rbx, v))
	_, err = b.EndPacket()
	require.NoError(t, err)
	chunk := b.EndChunk()

	l := xctx.NewArm64Lowerer(zap.NewNop())
	require.NoError(t, l.LowerChunk(chunk))

	var ldrCount int
	for _, blk := range l.Blocks() {
		for _, instr := range blk.Instr {
			if instr.Mnemonic == "ldr" {
				ldrCount++
			}
		}
	}
	require.Equal(t, 1, ldrCount, "reading the same port twice must materialize once")
}

func TestArm64CondBrLowersToCompareAndBranch(t *testing.T) {
	b := ir.NewBuilder()
	b.BeginChunk("c")
	require.NoError(t, b.BeginPacket(0, "disasm"))
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

	l := xctx.NewArm64Lowerer(zap.NewNop())
	require.NoError(t, l.LowerChunk(chunk))

	var sawBranch bool
	for _, blk := range l.Blocks() {
		for _, instr := range blk.Instr {
			if instr.Branch {
				sawBranch = true
			}
		}
	}
	require.True(t, sawBranch)
}

// buildAddWithZFWrite lifts "add rax, rbx"-shaped IR whose zero flag port
// feeds a flag-register write, so lowering must compute the flag rather
// than reuse the sum.
func buildAddWithZFWrite(t *testing.T) *ir.Chunk {
	t.Helper()
	b := ir.NewBuilder()
	b.BeginChunk("add_flags")
	rax := ir.Reg{Offset: 8, Name: "RAX"}
	rbx := ir.Reg{Offset: 32, Name: "RBX"}
	zf := ir.Reg{Offset: 136, Name: "ZF"}
	require.NoError(t, b.BeginPacket(0x1000, "add rax, rbx"))
	lhs, err := b.ReadReg(rax, ir.U64)
	require.NoError(t, err)
	rhs, err := b.ReadReg(rbx, ir.U64)
	require.NoError(t, err)
	sum, err := b.Add(lhs, rhs)
	require.NoError(t, err)
	require.NoError(t, b.WriteReg(rax, sum.Result))
	require.NoError(t, b.WriteReg(zf, sum.Zero()))
	_, err = b.EndPacket()
	require.NoError(t, err)
	return b.EndChunk()
}

func TestArm64FlagPortLowersToAddsCset(t *testing.T) {
	chunk := buildAddWithZFWrite(t)
	l := xctx.NewArm64Lowerer(zap.NewNop())
	require.NoError(t, l.LowerChunk(chunk))

	var mnemonics []string
	for _, blk := range l.Blocks() {
		for _, instr := range blk.Instr {
			mnemonics = append(mnemonics, instr.Mnemonic)
		}
	}
	require.Contains(t, mnemonics, "adds")
	require.Contains(t, mnemonics, "cset")
}

func TestArm64SignExtendShiftsUpThenDown(t *testing.T) {
	b := ir.NewBuilder()
	b.BeginChunk("sx")
	rax := ir.Reg{Offset: 8, Name: "RAX"}
	require.NoError(t, b.BeginPacket(0, "movsx"))
	v, err := b.ReadReg(rax, ir.U8)
	require.NoError(t, err)
	wide, err := b.Sx(v, ir.U64)
	require.NoError(t, err)
	require.NoError(t, b.WriteReg(rax, wide))
	_, err = b.EndPacket()
	require.NoError(t, err)
	chunk := b.EndChunk()

	l := xctx.NewArm64Lowerer(zap.NewNop())
	require.NoError(t, l.LowerChunk(chunk))

	var order []string
	for _, blk := range l.Blocks() {
		for _, instr := range blk.Instr {
			if instr.Mnemonic == "lsl" || instr.Mnemonic == "asr" {
				order = append(order, instr.Mnemonic)
			}
		}
	}
	require.Equal(t, []string{"lsl", "asr"}, order)
}

func TestArm64VectorLaneOpsLower(t *testing.T) {
	b := ir.NewBuilder()
	b.BeginChunk("lanes")
	xmm0 := ir.Reg{Offset: 160, Name: "XMM0"}
	rax := ir.Reg{Offset: 8, Name: "RAX"}
	vecTy, err := ir.Vector(ir.U32, 4)
	require.NoError(t, err)

	require.NoError(t, b.BeginPacket(0x1000, "pshufd-ish"))
	raw, err := b.ReadReg(xmm0, ir.U128)
	require.NoError(t, err)
	vec, err := b.Bitcast(raw, vecTy)
	require.NoError(t, err)
	lane, err := b.VecExtract(vec, 1)
	require.NoError(t, err)
	wide, err := b.Zx(lane, ir.U64)
	require.NoError(t, err)
	require.NoError(t, b.WriteReg(rax, wide))
	rebuilt, err := b.VecInsert(vec, 0, lane)
	require.NoError(t, err)
	back, err := b.Bitcast(rebuilt, ir.U128)
	require.NoError(t, err)
	require.NoError(t, b.WriteReg(xmm0, back))
	_, err = b.EndPacket()
	require.NoError(t, err)
	chunk := b.EndChunk()

	l := xctx.NewArm64Lowerer(zap.NewNop())
	require.NoError(t, l.LowerChunk(chunk))

	var mnemonics []string
	for _, blk := range l.Blocks() {
		for _, instr := range blk.Instr {
			mnemonics = append(mnemonics, instr.Mnemonic)
		}
	}
	require.Contains(t, mnemonics, "umov")
	require.Contains(t, mnemonics, "ins")
	require.Contains(t, mnemonics, "movv")
}

func TestArm64FlagStoreUsesByteAccess(t *testing.T) {
	chunk := buildAddWithZFWrite(t)
	l := xctx.NewArm64Lowerer(zap.NewNop())
	require.NoError(t, l.LowerChunk(chunk))

	var flagStore bool
	for _, blk := range l.Blocks() {
		for _, instr := range blk.Instr {
			if instr.Mnemonic != "str" {
				continue
			}
			for _, op := range instr.Uses {
				if op.Kind == host.OperandMem && op.Mem.Disp == 136 {
					require.EqualValues(t, 1, op.Mem.Bytes(), "flag slots are one byte wide")
					flagStore = true
				}
			}
		}
	}
	require.True(t, flagStore, "expected a store to the ZF slot")
}
