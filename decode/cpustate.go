// Package decode turns a stream of x86-64 bytes into ir.Chunk content: it
// wraps golang.org/x/arch/x86/x86asm for raw instruction decoding and
// exposes the operand-to-IR mapping (register slots, effective addresses,
// abstract flag updates) that every lift translator builds on.
package decode

import "github.com/hexlift/hexlift/ir"

// regEntry is one row of the CPU-state offset table, kept as a literal Go
// table rather than a generated one: the register set is closed and small
// enough that a code-generation step would cost more than it saves.
type regEntry struct {
	name   string
	offset uint32
}

// Byte offsets into the external CPU-state record. Each GPR's
// 64-bit slot is aliased by narrower accessors computed from the same base
// offset; only the base offsets are listed here.
const (
	offRIP = 0
	offRAX = 8
	offRCX = 16
	offRDX = 24
	offRBX = 32
	offRSP = 40
	offRBP = 48
	offRSI = 56
	offRDI = 64
	offR8  = 72
	offR9  = 80
	offR10 = 88
	offR11 = 96
	offR12 = 104
	offR13 = 112
	offR14 = 120
	offR15 = 128

	offZF = 136
	offCF = 137
	offOF = 138
	offSF = 139
	offPF = 140
	offAF = 141

	offFS = 144
	offGS = 152

	// XMM0..XMM15, 128 bits (16 bytes) each.
	offXMM0 = 160

	offX87Status = 160 + 16*16
	offX87Ctrl   = offX87Status + 8
	offX87Tag    = offX87Ctrl + 8
	offX87Stack  = offX87Tag + 8
)

var gprOffsets = map[string]uint32{
	"RAX": offRAX, "RCX": offRCX, "RDX": offRDX, "RBX": offRBX,
	"RSP": offRSP, "RBP": offRBP, "RSI": offRSI, "RDI": offRDI,
	"R8": offR8, "R9": offR9, "R10": offR10, "R11": offR11,
	"R12": offR12, "R13": offR13, "R14": offR14, "R15": offR15,
}

var flagOffsets = map[string]uint32{
	"ZF": offZF, "CF": offCF, "OF": offOF, "SF": offSF, "PF": offPF, "AF": offAF,
}

// Reg64 returns the Reg naming a GPR's full 64-bit slot.
func Reg64(name string) ir.Reg {
	return ir.Reg{Offset: gprOffsets[name], Name: name}
}

// FlagReg returns the Reg naming a one-bit flag slot.
func FlagReg(name string) ir.Reg {
	return ir.Reg{Offset: flagOffsets[name], Name: name}
}

// XMMReg returns the Reg naming the 128-bit slot of XMMn.
func XMMReg(n int) ir.Reg {
	return ir.Reg{Offset: uint32(offXMM0 + 16*n), Name: xmmName(n)}
}

func xmmName(n int) string {
	const digits = "0123456789"
	if n < 10 {
		return "XMM" + string(digits[n])
	}
	return "XMM1" + string(digits[n-10])
}

// PCReg names the RIP slot.
var PCReg = ir.Reg{Offset: offRIP, Name: "RIP"}

// FlagOffsets returns the CPU-state byte offsets of the six x86 status
// flags, for callers (opt.RegisterFlagOffset) that need to recognize flag
// writes without importing decode's naming tables directly.
func FlagOffsets() []uint32 {
	offs := make([]uint32, 0, len(flagOffsets))
	for _, o := range flagOffsets {
		offs = append(offs, o)
	}
	return offs
}

// FSBase / GSBase name the segment base slots added to effective addresses
// for FS/GS-prefixed memory operands.
var (
	FSBase = ir.Reg{Offset: offFS, Name: "FS_BASE"}
	GSBase = ir.Reg{Offset: offGS, Name: "GS_BASE"}
)
