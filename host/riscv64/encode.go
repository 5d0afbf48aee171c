package riscv64

import (
	"encoding/binary"

	"github.com/pkg/errors"

	"github.com/hexlift/hexlift/host"
)

// Encode lowers one allocated Instruction to its 4-byte RV64GC encoding,
// bit-packing directly rather than round-tripping through an external
// assembler, covering the mnemonics Builder emits.
func Encode(instr *host.Instruction) ([]byte, error) {
	buf := make([]byte, 4)
	var word uint32
	switch instr.Mnemonic {
	case "add":
		word = rType(0b0000000, 0b000, 0b0110011, instr)
	case "sub":
		word = rType(0b0100000, 0b000, 0b0110011, instr)
	case "mul":
		word = rType(0b0000001, 0b000, 0b0110011, instr)
	case "divu":
		word = rType(0b0000001, 0b101, 0b0110011, instr)
	case "div":
		word = rType(0b0000001, 0b100, 0b0110011, instr)
	case "and":
		word = rType(0b0000000, 0b111, 0b0110011, instr)
	case "or":
		word = rType(0b0000000, 0b110, 0b0110011, instr)
	case "xor":
		word = rType(0b0000000, 0b100, 0b0110011, instr)
	case "sll":
		word = rType(0b0000000, 0b001, 0b0110011, instr)
	case "srl":
		word = rType(0b0000000, 0b101, 0b0110011, instr)
	case "sra":
		word = rType(0b0100000, 0b101, 0b0110011, instr)
	case "slt":
		word = rType(0b0000000, 0b010, 0b0110011, instr)
	case "sltu":
		word = rType(0b0000000, 0b011, 0b0110011, instr)
	case "not":
		// Pseudo-op: xori rd, rs, -1.
		word = iType(-1, 0b100, 0b0010011, instr.Defs, instr.Uses)
	case "neg":
		// Pseudo-op: sub rd, x0, rs.
		word = subFromZero(instr)
	case "addi":
		word = iType(operandImm(instr.Uses, 1), 0b000, 0b0010011, instr.Defs, instr.Uses)
	case "xori":
		word = iType(operandImm(instr.Uses, 1), 0b100, 0b0010011, instr.Defs, instr.Uses)
	case "slti":
		word = iType(operandImm(instr.Uses, 1), 0b010, 0b0010011, instr.Defs, instr.Uses)
	case "sltiu":
		word = iType(operandImm(instr.Uses, 1), 0b011, 0b0010011, instr.Defs, instr.Uses)
	case "addiw":
		word = iType(operandImm(instr.Uses, 1), 0b000, 0b0011011, instr.Defs, instr.Uses)
	case "slli":
		word = iType(operandImm(instr.Uses, 1)&0x3F, 0b001, 0b0010011, instr.Defs, instr.Uses)
	case "lui":
		word = uType(operandImm(instr.Uses, 0), 0b0110111, instr)
	case "ld":
		word = loadType(0b011, instr)
	case "lwu":
		word = loadType(0b110, instr)
	case "lhu":
		word = loadType(0b101, instr)
	case "lbu":
		word = loadType(0b100, instr)
	case "sd":
		word = storeType(0b011, instr)
	case "sw":
		word = storeType(0b010, instr)
	case "sh":
		word = storeType(0b001, instr)
	case "sb":
		word = storeType(0b000, instr)
	case "jal":
		word = jType(0b1101111, instr)
	case "j":
		word = 0x0000006F // jal x0, 0 (target patched by the linker pass).
	case "ret":
		word = 0x00008067 // jalr x0, 0(x1)
	case "bnez":
		word = bType(instr)
	default:
		return nil, errors.Errorf("riscv64 encode: unhandled mnemonic %q", instr.Mnemonic)
	}
	binary.LittleEndian.PutUint32(buf, word)
	return buf, nil
}

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

func rType(funct7, funct3, opcode uint32, instr *host.Instruction) uint32 {
	rd := operandReg(instr.Defs, 0)
	rs1 := operandReg(instr.Uses, 0)
	rs2 := operandReg(instr.Uses, 1)
	return funct7<<25 | rs2<<20 | rs1<<15 | funct3<<12 | rd<<7 | opcode
}

func iType(imm int64, funct3, opcode uint32, defs, uses []host.Operand) uint32 {
	rd := operandReg(defs, 0)
	rs1 := operandReg(uses, 0)
	return (uint32(imm)&0xFFF)<<20 | rs1<<15 | funct3<<12 | rd<<7 | opcode
}

func uType(imm int64, opcode uint32, instr *host.Instruction) uint32 {
	rd := operandReg(instr.Defs, 0)
	return uint32(imm)<<12 | rd<<7 | opcode
}

func subFromZero(instr *host.Instruction) uint32 {
	rd := operandReg(instr.Defs, 0)
	rs2 := operandReg(instr.Uses, 0)
	return 0b0100000<<25 | rs2<<20 | 0<<15 | 0b000<<12 | rd<<7 | 0b0110011
}

func loadType(funct3 uint32, instr *host.Instruction) uint32 {
	rd := operandReg(instr.Defs, 0)
	var rs1 uint32
	var disp int64
	if len(instr.Uses) > 0 && instr.Uses[0].Kind == host.OperandMem {
		rs1 = regNum(instr.Uses[0].Mem.Base.RealReg())
		disp = int64(instr.Uses[0].Mem.Disp)
	}
	return (uint32(disp)&0xFFF)<<20 | rs1<<15 | funct3<<12 | rd<<7 | 0b0000011
}

func storeType(funct3 uint32, instr *host.Instruction) uint32 {
	rs2 := operandReg(instr.Uses, 0)
	var rs1 uint32
	var disp int64
	if len(instr.Uses) > 1 && instr.Uses[1].Kind == host.OperandMem {
		rs1 = regNum(instr.Uses[1].Mem.Base.RealReg())
		disp = int64(instr.Uses[1].Mem.Disp)
	}
	imm := uint32(disp) & 0xFFF
	low := imm & 0x1F
	high := (imm >> 5) & 0x7F
	return high<<25 | rs2<<20 | rs1<<15 | funct3<<12 | low<<7 | 0b0100011
}

func jType(opcode uint32, instr *host.Instruction) uint32 {
	rd := operandReg(instr.Defs, 0)
	if len(instr.Defs) == 0 {
		rd = 1 // JAL with an implicit-def-only link register (x1).
	}
	return rd<<7 | opcode
}

func bType(instr *host.Instruction) uint32 {
	rs1 := operandReg(instr.Uses, 0)
	const funct3 = 0b001 // BNE
	return rs1<<15 | funct3<<12 | 0b1100011
}
