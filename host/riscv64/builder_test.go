package riscv64

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hexlift/hexlift/host"
)

func TestMoveImmediateSplitsNonzeroLanes(t *testing.T) {
	b := NewBuilder()
	dst := host.NewVReg(1, host.ClassInt)
	b.MoveImmediate(dst, 0x1_0002_0003)
	require.GreaterOrEqual(t, len(b.Instrs), 4)
	require.Equal(t, "lui", b.Instrs[0].Mnemonic)
	require.Equal(t, "addiw", b.Instrs[1].Mnemonic)
	require.Equal(t, "slli", b.Instrs[2].Mnemonic)
	require.Equal(t, "addi", b.Instrs[3].Mnemonic)
}

func TestMoveImmediateSkipsUpperFoldForSmallValues(t *testing.T) {
	b := NewBuilder()
	dst := host.NewVReg(1, host.ClassInt)
	b.MoveImmediate(dst, 42)
	require.Len(t, b.Instrs, 2)
}

func TestEncodeLuiProducesFourBytes(t *testing.T) {
	b := NewBuilder()
	dst := host.NewVReg(1, host.ClassInt).WithRealReg(X5)
	b.MoveImmediate(dst, 0)
	bytes, err := Encode(b.Instrs[0])
	require.NoError(t, err)
	require.Len(t, bytes, 4)
}

func TestEncodeUnknownMnemonicErrors(t *testing.T) {
	_, err := Encode(host.NewInstruction("frobnicate"))
	require.Error(t, err)
}

func TestSelectEmitsMaskSequence(t *testing.T) {
	b := NewBuilder()
	dst := host.NewVReg(1, host.ClassInt).WithRealReg(X5)
	cond := host.NewVReg(2, host.ClassInt).WithRealReg(X6)
	tval := host.NewVReg(3, host.ClassInt).WithRealReg(X7)
	fval := host.NewVReg(4, host.ClassInt).WithRealReg(X28)
	scratch := host.NewVReg(5, host.ClassInt).WithRealReg(X29)
	b.Select(dst, cond, tval, fval, scratch)
	require.Len(t, b.Instrs, 5)
	require.Equal(t, "neg", b.Instrs[0].Mnemonic)
	require.Equal(t, "or", b.Instrs[4].Mnemonic)
}

func TestConfigExcludesReservedRegisters(t *testing.T) {
	cfg := Config()
	for _, r := range cfg.IntRegs {
		require.NotEqual(t, X0, r)
		require.NotEqual(t, X1, r)
		require.NotEqual(t, X2, r)
		require.NotEqual(t, X8, r)
	}
}
