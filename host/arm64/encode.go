package arm64

import (
	"encoding/binary"

	"github.com/pkg/errors"

	"github.com/hexlift/hexlift/host"
)

// Encode lowers one allocated Instruction to its 4-byte A64 encoding,
// bit-packing directly rather than round-tripping through an external
// assembler: every mnemonic this backend's Builder emits has an encoder
// here, covering the register/immediate forms
// the lifter's translators actually produce.
func Encode(instr *host.Instruction) ([]byte, error) {
	buf := make([]byte, 4)
	var word uint32
	switch instr.Mnemonic {
	case "movz":
		word = encodeMovWide(0b10, instr)
	case "movk":
		word = encodeMovWide(0b11, instr)
	case "add":
		word = encodeAddSub(0b0, instr)
	case "adds":
		word = encodeAddSubOpS(0b0, 1, instr)
	case "sub", "subs":
		op := uint32(0b1)
		s := uint32(0)
		if instr.Mnemonic == "subs" {
			s = 1
		}
		word = encodeAddSubOpS(op, s, instr)
	case "mul":
		word = encodeDataProc3(0b000, instr)
	case "udiv":
		word = encodeDataProc2(0b000010, instr)
	case "sdiv":
		word = encodeDataProc2(0b000011, instr)
	case "and":
		word = encodeLogical(0b00, instr)
	case "orr":
		word = encodeLogical(0b01, instr)
	case "eor":
		word = encodeLogical(0b10, instr)
	case "lsl":
		word = encodeDataProc2(0b001000, instr)
	case "lsr":
		word = encodeDataProc2(0b001001, instr)
	case "asr":
		word = encodeDataProc2(0b001010, instr)
	case "csel":
		word = encodeCSel(instr)
	case "cset":
		word = encodeCSet(instr)
	case "mov":
		// ORR Rd, XZR, Rm.
		word = 1<<31 | 0b01<<29 | 0b01010<<24 | operandReg(instr.Uses, 0)<<16 | 31<<5 | operandReg(instr.Defs, 0)
	case "mvn":
		// ORN Rd, XZR, Rm.
		word = 1<<31 | 0b01<<29 | 0b01010<<24 | 1<<21 | operandReg(instr.Uses, 0)<<16 | 31<<5 | operandReg(instr.Defs, 0)
	case "ubfx":
		word = encodeUbfx(instr)
	case "bfi":
		word = encodeBfi(instr)
	case "fmov":
		// General-to-float bit move; the trailing immediate selects the
		// S (4) or D (8) form.
		if operandImm(instr.Uses, 1) == 4 {
			word = 0x1E270000 | operandReg(instr.Uses, 0)<<5 | operandReg(instr.Defs, 0)
		} else {
			word = 0x9E670000 | operandReg(instr.Uses, 0)<<5 | operandReg(instr.Defs, 0)
		}
	case "scvtf":
		// 64-bit signed int -> double.
		word = 0x9E620000 | operandReg(instr.Uses, 0)<<5 | operandReg(instr.Defs, 0)
	case "fcvtzs":
		// Double -> 64-bit signed int, round toward zero.
		word = 0x9E780000 | operandReg(instr.Uses, 0)<<5 | operandReg(instr.Defs, 0)
	case "ldaddal", "ldclral", "ldsetal", "ldeoral", "swpal":
		word = encodeLSE(instr)
	case "casal":
		word = encodeCasal(instr)
	case "ldr":
		word = encodeLoadStore(true, instr)
	case "str":
		word = encodeLoadStore(false, instr)
	case "umov":
		word = encodeLaneMove(0x0E003C00, instr, false)
	case "ins":
		word = encodeLaneMove(0x4E001C00, instr, false)
	case "ins_el":
		word = encodeLaneMove(0x6E000400, instr, true)
	case "dup_el":
		word = encodeLaneMove(0x5E000400, instr, false)
	case "movv":
		// Vector register move: ORR Vd.16B, Vn.16B, Vn.16B.
		rn := operandReg(instr.Uses, 0)
		word = 0x4EA01C00 | rn<<16 | rn<<5 | operandReg(instr.Defs, 0)
	case "movi":
		// MOVI Vd.2D, #0 — the zero-vector seed.
		word = 0x6F00E400 | operandReg(instr.Defs, 0)
	case "fadd", "fsub", "fmul", "fdiv":
		word = encodeFPArith(instr)
	case "ret":
		word = 0xD65F0000 | uint32(regNum(X30))<<5
	default:
		if len(instr.Mnemonic) >= 2 && instr.Mnemonic[:2] == "b." {
			word = encodeBCond(instr)
		} else if instr.Mnemonic == "b" {
			word = 0x14000000
		} else if instr.Mnemonic == "bl" {
			word = 0x94000000
		} else {
			return nil, errors.Errorf("arm64 encode: unhandled mnemonic %q", instr.Mnemonic)
		}
	}
	binary.LittleEndian.PutUint32(buf, word)
	return buf, nil
}

// regNum maps a RealReg to its 5-bit encoding field, treating the vector
// register file as a parallel numbering (bit 100+n collapses to n).
func regNum(r host.RealReg) uint32 {
	if uint32(r) >= 100 {
		return uint32(r) - 100
	}
	return uint32(r)
}

func operandReg(ops []host.Operand, i int) uint32 {
	if i >= len(ops) || ops[i].Kind != host.OperandReg {
		return 0
	}
	return regNum(ops[i].Reg.RealReg())
}

func operandImm(ops []host.Operand, i int) int64 {
	if i >= len(ops) || ops[i].Kind != host.OperandImm {
		return 0
	}
	return ops[i].Imm
}

// encodeMovWide packs MOVZ (opc=10) / MOVK (opc=11), 64-bit (sf=1) form:
// sf(1) opc(2) 100101 hw(2) imm16(16) Rd(5).
func encodeMovWide(opc uint32, instr *host.Instruction) uint32 {
	rd := operandReg(instr.Defs, 0)
	imm16 := uint32(operandImm(instr.Uses, 0)) & 0xFFFF
	shift := uint32(operandImm(instr.Uses, 1))
	hw := (shift / 16) & 0b11
	return 1<<31 | opc<<29 | 0b100101<<23 | hw<<21 | imm16<<5 | rd
}

// encodeAddSub packs the 64-bit register-register ADD: sf(1) op(1)=0
// S(1)=0 01011 shift(2)=0 0 Rm(5) imm6(6)=0 Rn(5) Rd(5).
func encodeAddSub(op uint32, instr *host.Instruction) uint32 {
	return encodeAddSubOpS(op, 0, instr)
}

func encodeAddSubOpS(op, s uint32, instr *host.Instruction) uint32 {
	rd := operandReg(instr.Defs, 0)
	if len(instr.Defs) == 0 {
		rd = 31 // compare forms discard into XZR.
	}
	rn := operandReg(instr.Uses, 0)
	rm := operandReg(instr.Uses, 1)
	return 1<<31 | op<<30 | s<<29 | 0b01011<<24 | rm<<16 | rn<<5 | rd
}

// encodeDataProc3 packs the data-processing (3 source) family (MUL is
// MADD with a zero accumulate register): sf(1) 00 11011 000 Rm(5) 0 Ra(5)=11111 Rn(5) Rd(5).
func encodeDataProc3(opcode uint32, instr *host.Instruction) uint32 {
	rd := operandReg(instr.Defs, 0)
	rn := operandReg(instr.Uses, 0)
	rm := operandReg(instr.Uses, 1)
	const zr = 0b11111
	return 1<<31 | 0b0011011<<24 | opcode<<21 | rm<<16 | 0<<15 | zr<<10 | rn<<5 | rd
}

// encodeDataProc2 packs the data-processing (2 source) family shared by
// UDIV/SDIV/LSLV/LSRV/ASRV: sf(1) 0 0 11010110 Rm(5) opcode(6) Rn(5) Rd(5).
func encodeDataProc2(opcode uint32, instr *host.Instruction) uint32 {
	rd := operandReg(instr.Defs, 0)
	rn := operandReg(instr.Uses, 0)
	rm := operandReg(instr.Uses, 1)
	return 1<<31 | 0b11010110<<21 | rm<<16 | opcode<<10 | rn<<5 | rd
}

// encodeLogical packs the shifted-register logical family (AND/ORR/EOR):
// sf(1) opc(2) 01010 shift(2)=0 N(1)=0 Rm(5) imm6(6)=0 Rn(5) Rd(5).
func encodeLogical(opc uint32, instr *host.Instruction) uint32 {
	rd := operandReg(instr.Defs, 0)
	rn := operandReg(instr.Uses, 0)
	rm := operandReg(instr.Uses, 1)
	return 1<<31 | opc<<29 | 0b01010<<24 | rm<<16 | rn<<5 | rd
}

// encodeCSel packs CSEL: sf(1) 0 0 11010100 Rm(5) cond(4) 0 0 Rn(5) Rd(5).
func encodeCSel(instr *host.Instruction) uint32 {
	rd := operandReg(instr.Defs, 0)
	rn := operandReg(instr.Uses, 0)
	rm := operandReg(instr.Uses, 1)
	var cond uint32
	if len(instr.Uses) > 2 && instr.Uses[2].Kind == host.OperandCond {
		cond = condEncoding(instr.Uses[2].Cond)
	}
	return 1<<31 | 0b11010100<<21 | rm<<16 | cond<<12 | rn<<5 | rd
}

func condEncoding(c host.Cond) uint32 {
	switch c {
	case host.CondEQ:
		return 0x0
	case host.CondNE:
		return 0x1
	case host.CondLO:
		return 0x2
	case host.CondHS:
		return 0x3
	case host.CondMI:
		return 0x4
	case host.CondPL:
		return 0x5
	case host.CondVS:
		return 0x6
	case host.CondVC:
		return 0x7
	case host.CondHI:
		return 0x8
	case host.CondLS:
		return 0x9
	case host.CondGE:
		return 0xA
	case host.CondLT:
		return 0xB
	case host.CondGT:
		return 0xC
	case host.CondLE:
		return 0xD
	default:
		return 0xE
	}
}

// encodeLoadStore packs the unsigned-immediate LDR/STR family:
// size(2) 111 V(1) 01 opc(2) imm12(12) Rn(5) Rt(5). The size bits and the
// imm12 scale both come from the memory operand's access width — LDRB/STRB
// for the one-byte status-flag slots up through the Q-register form for
// 128-bit XMM state. Scaling by anything else would alias the
// byte-granular flag offsets onto one slot.
func encodeLoadStore(load bool, instr *host.Instruction) uint32 {
	var rt uint32
	var rtReg host.RealReg
	var mem host.MemOperand
	if load {
		rt = operandReg(instr.Defs, 0)
		if len(instr.Defs) > 0 && instr.Defs[0].Kind == host.OperandReg {
			rtReg = instr.Defs[0].Reg.RealReg()
		}
		if len(instr.Uses) > 0 && instr.Uses[0].Kind == host.OperandMem {
			mem = instr.Uses[0].Mem
		}
	} else {
		rt = operandReg(instr.Uses, 0)
		if len(instr.Uses) > 0 && instr.Uses[0].Kind == host.OperandReg {
			rtReg = instr.Uses[0].Reg.RealReg()
		}
		if len(instr.Uses) > 1 && instr.Uses[1].Kind == host.OperandMem {
			mem = instr.Uses[1].Mem
		}
	}
	rn := regNum(mem.Base.RealReg())
	sz := uint32(mem.Bytes())
	imm12 := (uint32(mem.Disp) / sz) & 0xFFF

	var size, v, opc uint32
	switch sz {
	case 1:
		size = 0b00
	case 2:
		size = 0b01
	case 4:
		size = 0b10
	case 16:
		// Q-register form: size=00, V=1, opc high bit set.
		size = 0b00
		v = 1
	default:
		size = 0b11
	}
	if load {
		opc = 0b01
	}
	if sz == 16 {
		opc |= 0b10
	} else if uint32(rtReg) >= 100 {
		// D/S-register load-store of a float-class target.
		v = 1
	}
	return size<<30 | 0b111<<27 | v<<26 | 0b01<<24 | opc<<22 | imm12<<10 | rn<<5 | rt
}

// encodeCSet packs CSET as its CSINC alias: CSINC Rd, XZR, XZR,
// invert(cond).
func encodeCSet(instr *host.Instruction) uint32 {
	rd := operandReg(instr.Defs, 0)
	var cond uint32 = 0xE
	if len(instr.Uses) > 0 && instr.Uses[0].Kind == host.OperandCond {
		cond = condEncoding(instr.Uses[0].Cond) ^ 1
	}
	return 1<<31 | 0b11010100<<21 | 31<<16 | cond<<12 | 0b01<<10 | 31<<5 | rd
}

// encodeUbfx packs UBFX as UBFM: immr = lsb, imms = lsb+width-1.
// Operand order as emitted by the lowerer: uses = [src, lsb, width].
func encodeUbfx(instr *host.Instruction) uint32 {
	rd := operandReg(instr.Defs, 0)
	rn := operandReg(instr.Uses, 0)
	lsb := uint32(operandImm(instr.Uses, 1)) & 0x3F
	width := uint32(operandImm(instr.Uses, 2))
	imms := (lsb + width - 1) & 0x3F
	return 1<<31 | 0b10<<29 | 0b100110<<23 | 1<<22 | lsb<<16 | imms<<10 | rn<<5 | rd
}

// encodeBfi packs BFI as BFM: immr = (64-lsb) mod 64, imms = width-1.
// Operand order as emitted by the lowerer: uses = [dst, bits, lsb, width]
// (dst doubles as a use since BFM reads its destination).
func encodeBfi(instr *host.Instruction) uint32 {
	rd := operandReg(instr.Defs, 0)
	rn := operandReg(instr.Uses, 1)
	lsb := uint32(operandImm(instr.Uses, 2)) & 0x3F
	width := uint32(operandImm(instr.Uses, 3))
	immr := (64 - lsb) & 0x3F
	imms := (width - 1) & 0x3F
	return 1<<31 | 0b01<<29 | 0b100110<<23 | 1<<22 | immr<<16 | imms<<10 | rn<<5 | rd
}

// encodeLSE packs the 64-bit acquire-release LSE atomics. Operand order as
// emitted by the lowerer: def = result, uses = [mem, operand].
func encodeLSE(instr *host.Instruction) uint32 {
	rt := operandReg(instr.Defs, 0)
	var rn uint32
	if len(instr.Uses) > 0 && instr.Uses[0].Kind == host.OperandMem {
		rn = regNum(instr.Uses[0].Mem.Base.RealReg())
	}
	rs := operandReg(instr.Uses, 1)
	base := uint32(0xF8E00000) | rs<<16 | rn<<5 | rt
	switch instr.Mnemonic {
	case "ldaddal":
		return base
	case "ldclral":
		return base | 0b001<<12
	case "ldeoral":
		return base | 0b010<<12
	case "ldsetal":
		return base | 0b011<<12
	case "swpal":
		return base | 1<<15
	}
	return base
}

// encodeCasal packs CASAL Xs, Xt, [Xn]: Rs is the compare value and
// receives the observed value; Rt is the value stored on match. Operand
// order as emitted by the lowerer: def = Rs, uses = [Rs, new, mem].
func encodeCasal(instr *host.Instruction) uint32 {
	rs := operandReg(instr.Defs, 0)
	rt := operandReg(instr.Uses, 1)
	var rn uint32
	if len(instr.Uses) > 2 && instr.Uses[2].Kind == host.OperandMem {
		rn = regNum(instr.Uses[2].Mem.Base.RealReg())
	}
	return 0xC8E0FC00 | rs<<16 | rn<<5 | rt
}

// laneImm5 packs an element size (bytes) and lane index into the shared
// imm5 field of the SIMD copy family: the size is a one-hot low marker and
// the index sits above it.
func laneImm5(es, lane uint32) uint32 {
	switch es {
	case 1:
		return 0b00001 | lane<<1
	case 2:
		return 0b00010 | lane<<2
	case 4:
		return 0b00100 | lane<<3
	default:
		return 0b01000 | lane<<4
	}
}

// encodeLaneMove packs the SIMD copy forms (UMOV, INS general, INS element,
// scalar DUP) sharing the imm5 lane field. Operand layout from the lowerer:
// the last register use is Rn, the leading immediates are lane indices, and
// the final immediate is the element size in bytes. el selects the
// two-index INS-element form, whose source lane lands in imm4.
func encodeLaneMove(base uint32, instr *host.Instruction, el bool) uint32 {
	rd := operandReg(instr.Defs, 0)
	var regs []uint32
	var imms []int64
	for _, op := range instr.Uses {
		switch op.Kind {
		case host.OperandReg:
			regs = append(regs, regNum(op.Reg.RealReg()))
		case host.OperandImm:
			imms = append(imms, op.Imm)
		}
	}
	var rn uint32
	if len(regs) > 0 {
		rn = regs[len(regs)-1]
	}
	var es, lane uint32 = 8, 0
	if len(imms) > 0 {
		es = uint32(imms[len(imms)-1])
		lane = uint32(imms[0])
	}
	word := base | laneImm5(es, lane)<<16 | rn<<5 | rd
	if el && len(imms) > 1 {
		word |= uint32(imms[1]) * es << 11 // imm4 = srcLane << log2(es)
	}
	if base == 0x0E003C00 && es == 8 {
		word |= 1 << 30 // UMOV Xd, Vn.D[i] needs Q=1.
	}
	return word
}

// encodeFPArith packs the scalar floating-point two-source forms; the
// trailing immediate use carries the operand width in bytes (4 or 8),
// selecting the S or D variant.
func encodeFPArith(instr *host.Instruction) uint32 {
	rd := operandReg(instr.Defs, 0)
	rn := operandReg(instr.Uses, 0)
	rm := operandReg(instr.Uses, 1)
	var typ uint32
	if operandImm(instr.Uses, 2) == 8 {
		typ = 0b01
	}
	var op uint32
	switch instr.Mnemonic {
	case "fadd":
		op = 0b0010
	case "fsub":
		op = 0b0011
	case "fmul":
		op = 0b0000
	case "fdiv":
		op = 0b0001
	}
	return 0b00011110<<24 | typ<<22 | 1<<21 | rm<<16 | op<<12 | 0b10<<10 | rn<<5 | rd
}

// encodeBCond packs B.cond: 0101010 0 imm19(19)=0 0 cond(4).
func encodeBCond(instr *host.Instruction) uint32 {
	var cond uint32
	if len(instr.Uses) > 0 && instr.Uses[0].Kind == host.OperandCond {
		cond = condEncoding(instr.Uses[0].Cond)
	}
	return 0b01010100<<24 | cond
}
