package host

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func testConfig() Config {
	return Config{
		IntRegs: []RealReg{0, 1, 2, 3},
		SP:      30,
		FP:      29,
		LR:      31,
		Zero:    RealRegInvalid,
	}
}

func TestAllocateAssignsDistinctRegsForLiveRanges(t *testing.T) {
	v1 := NewVReg(1, ClassInt)
	v2 := NewVReg(2, ClassInt)
	v3 := NewVReg(3, ClassInt)

	blk := &Block{
		Label: "entry",
		Instr: []*Instruction{
			NewInstruction("const").WithDef(RegOperand(v1)),
			NewInstruction("const").WithDef(RegOperand(v2)),
			NewInstruction("add").WithUse(RegOperand(v1)).WithUse(RegOperand(v2)).WithDef(RegOperand(v3)),
			NewInstruction("store").WithUse(RegOperand(v3)).MarkKeep(),
		},
	}

	a := NewAllocator(testConfig())
	eliminated, err := a.Allocate([]*Block{blk})
	require.NoError(t, err)
	require.Equal(t, 0, eliminated)

	add := blk.Instr[2]
	require.NotEqual(t, add.Uses[0].Reg.RealReg(), add.Uses[1].Reg.RealReg())
	require.True(t, add.Defs[0].Reg.RealReg() != RealRegInvalid)
}

func TestAllocateElidesSelfCopy(t *testing.T) {
	v1 := NewVReg(1, ClassInt)
	blk := &Block{
		Label: "entry",
		Instr: []*Instruction{
			NewInstruction("const").WithDef(RegOperand(v1)),
			NewInstruction("mov").WithUse(RegOperand(v1)).WithDef(RegOperand(v1)),
			NewInstruction("store").WithUse(RegOperand(v1)).MarkKeep(),
		},
	}

	a := NewAllocator(testConfig())
	eliminated, err := a.Allocate([]*Block{blk})
	require.NoError(t, err)
	require.Equal(t, 1, eliminated)
	require.Len(t, blk.Instr, 2)
}

func TestVRegPackingRoundTrip(t *testing.T) {
	v := NewVReg(42, ClassFloat)
	require.Equal(t, VRegID(42), v.ID())
	require.Equal(t, ClassFloat, v.Class())
	require.Equal(t, RealRegInvalid, v.RealReg())

	assigned := v.WithRealReg(7)
	require.Equal(t, VRegID(42), assigned.ID())
	require.Equal(t, RealReg(7), assigned.RealReg())
}

// After allocation no operand may still name a virtual register, and every
// physical register must have returned to the free pool.
func TestAllocateLeavesNoVirtualRegisters(t *testing.T) {
	v1 := NewVReg(1, ClassInt)
	v2 := NewVReg(2, ClassInt)
	v3 := NewVReg(3, ClassInt)
	blk := &Block{
		Label: "entry",
		Instr: []*Instruction{
			NewInstruction("const").WithDef(RegOperand(v1)),
			NewInstruction("const").WithDef(RegOperand(v2)),
			NewInstruction("add").WithUse(RegOperand(v1)).WithUse(RegOperand(v2)).WithDef(RegOperand(v3)),
			NewInstruction("store").WithUse(RegOperand(v3)).MarkKeep(),
		},
	}

	a := NewAllocator(testConfig())
	_, err := a.Allocate([]*Block{blk})
	require.NoError(t, err)
	require.NoError(t, VerifyAllocated([]*Block{blk}))

	for _, instr := range blk.Instr {
		for _, op := range append(append([]Operand{}, instr.Uses...), instr.Defs...) {
			if op.Kind == OperandReg {
				require.NotEqual(t, RealRegInvalid, op.Reg.RealReg(),
					"operand of %s still virtual", instr.Mnemonic)
			}
		}
	}
	require.Len(t, a.freeInt, len(testConfig().IntRegs), "free pool must be restored")
}

// A def whose value is never used downstream kills the instruction unless
// it is marked keep.
func TestAllocateKillsDeadDef(t *testing.T) {
	v1 := NewVReg(1, ClassInt)
	v2 := NewVReg(2, ClassInt)
	blk := &Block{
		Label: "entry",
		Instr: []*Instruction{
			NewInstruction("const").WithDef(RegOperand(v1)),
			NewInstruction("const").WithDef(RegOperand(v2)), // dead
			NewInstruction("store").WithUse(RegOperand(v1)).MarkKeep(),
		},
	}

	a := NewAllocator(testConfig())
	eliminated, err := a.Allocate([]*Block{blk})
	require.NoError(t, err)
	require.Equal(t, 1, eliminated)
	require.Len(t, blk.Instr, 2)
}

// An instruction whose explicit def is dead but whose implicit write
// satisfies a later implicit read must be converted to keep, not killed.
func TestImplicitWriteSatisfyingReadBecomesKeep(t *testing.T) {
	flags := NewVReg(100, ClassInt)
	v1 := NewVReg(1, ClassInt)
	v2 := NewVReg(2, ClassInt)
	scratch := NewVReg(3, ClassInt)
	dst := NewVReg(4, ClassInt)

	cmp := NewInstruction("subs").
		WithDef(RegOperand(scratch)).
		WithUse(RegOperand(v1)).
		WithUse(RegOperand(v2)).
		WithImplicitDef(flags)
	blk := &Block{
		Label: "entry",
		Instr: []*Instruction{
			NewInstruction("const").WithDef(RegOperand(v1)),
			NewInstruction("const").WithDef(RegOperand(v2)),
			cmp,
			NewInstruction("cset").WithDef(RegOperand(dst)).WithImplicitUse(flags),
			NewInstruction("store").WithUse(RegOperand(dst)).MarkKeep(),
		},
	}

	a := NewAllocator(testConfig())
	eliminated, err := a.Allocate([]*Block{blk})
	require.NoError(t, err)
	require.Equal(t, 0, eliminated, "flag producer must survive despite its dead explicit def")
	require.True(t, cmp.Keep)
	require.Len(t, blk.Instr, 5)
}

// An implicit read with no matching implicit write anywhere earlier is a
// dangling dependency the allocator must report.
func TestDanglingImplicitReadFailsAllocation(t *testing.T) {
	flags := NewVReg(100, ClassInt)
	dst := NewVReg(1, ClassInt)
	blk := &Block{
		Label: "entry",
		Instr: []*Instruction{
			NewInstruction("cset").WithDef(RegOperand(dst)).WithImplicitUse(flags),
			NewInstruction("store").WithUse(RegOperand(dst)).MarkKeep(),
		},
	}

	a := NewAllocator(testConfig())
	_, err := a.Allocate([]*Block{blk})
	require.Error(t, err)
}

// A copy whose source and destination coalesce into the same physical
// register after allocation is dropped even though the vreg IDs differ.
func TestAllocateCoalescesPhysicalCopy(t *testing.T) {
	v1 := NewVReg(1, ClassInt)
	v2 := NewVReg(2, ClassInt)
	blk := &Block{
		Label: "entry",
		Instr: []*Instruction{
			NewInstruction("const").WithDef(RegOperand(v1)),
			NewInstruction("mov").WithDef(RegOperand(v2)).WithUse(RegOperand(v1)),
			NewInstruction("store").WithUse(RegOperand(v2)).MarkKeep(),
		},
	}

	a := NewAllocator(testConfig())
	eliminated, err := a.Allocate([]*Block{blk})
	require.NoError(t, err)
	require.Equal(t, 1, eliminated)
	require.Len(t, blk.Instr, 2)
}
