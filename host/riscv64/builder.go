package riscv64

import "github.com/hexlift/hexlift/host"

// Builder emits host.Instruction values for one RISC-V 64 function body,
// one method per machine instruction family. By default
// instructions accumulate flat into Instrs; a Lowerer wires Sink to
// redirect each one into the block xctx.Context currently has open instead,
// since the allocator tracks liveness per block, not over one flat stream.
type Builder struct {
	Instrs []*host.Instruction
	Sink   func(*host.Instruction)
}

// NewBuilder returns an empty instruction builder.
func NewBuilder() *Builder { return &Builder{} }

func (b *Builder) emit(i *host.Instruction) *host.Instruction {
	if b.Sink != nil {
		b.Sink(i)
	} else {
		b.Instrs = append(b.Instrs, i)
	}
	return i
}

// Emit appends a caller-built instruction directly, for forms xctx's
// lowering constructs itself rather than going through a dedicated builder
// method.
func (b *Builder) Emit(i *host.Instruction) *host.Instruction { return b.emit(i) }

// MoveImmediate materializes a 64-bit constant via LUI+ADDIW for the low 32
// bits, then up to three SLLI/ADDI pairs to fold in the upper bits — RISC-V
// has no wide-immediate load instruction either.
func (b *Builder) MoveImmediate(dst host.VReg, value uint64) {
	low := int32(value)
	b.emit(host.NewInstruction("lui").
		WithDef(host.RegOperand(dst)).
		WithUse(host.ImmOperand(int64(low) >> 12)))
	b.emit(host.NewInstruction("addiw").
		WithDef(host.RegOperand(dst)).
		WithUse(host.RegOperand(dst)).
		WithUse(host.ImmOperand(int64(low) & 0xFFF)))
	if value>>32 != 0 {
		b.emit(host.NewInstruction("slli").
			WithDef(host.RegOperand(dst)).
			WithUse(host.RegOperand(dst)).
			WithUse(host.ImmOperand(32)))
		b.emit(host.NewInstruction("addi").
			WithDef(host.RegOperand(dst)).
			WithUse(host.RegOperand(dst)).
			WithUse(host.ImmOperand(int64(value >> 32))))
	}
}

func (b *Builder) threeReg(mnemonic string, dst, lhs, rhs host.VReg) *host.Instruction {
	return b.emit(host.NewInstruction(mnemonic).
		WithDef(host.RegOperand(dst)).
		WithUse(host.RegOperand(lhs)).
		WithUse(host.RegOperand(rhs)))
}

func (b *Builder) Add(dst, lhs, rhs host.VReg) *host.Instruction { return b.threeReg("add", dst, lhs, rhs) }
func (b *Builder) Sub(dst, lhs, rhs host.VReg) *host.Instruction { return b.threeReg("sub", dst, lhs, rhs) }
func (b *Builder) Mul(dst, lhs, rhs host.VReg) *host.Instruction { return b.threeReg("mul", dst, lhs, rhs) }
func (b *Builder) Divu(dst, lhs, rhs host.VReg) *host.Instruction { return b.threeReg("divu", dst, lhs, rhs) }
func (b *Builder) Div(dst, lhs, rhs host.VReg) *host.Instruction { return b.threeReg("div", dst, lhs, rhs) }
func (b *Builder) And(dst, lhs, rhs host.VReg) *host.Instruction { return b.threeReg("and", dst, lhs, rhs) }
func (b *Builder) Or(dst, lhs, rhs host.VReg) *host.Instruction { return b.threeReg("or", dst, lhs, rhs) }
func (b *Builder) Xor(dst, lhs, rhs host.VReg) *host.Instruction { return b.threeReg("xor", dst, lhs, rhs) }
func (b *Builder) Sll(dst, lhs, rhs host.VReg) *host.Instruction { return b.threeReg("sll", dst, lhs, rhs) }
func (b *Builder) Srl(dst, lhs, rhs host.VReg) *host.Instruction { return b.threeReg("srl", dst, lhs, rhs) }
func (b *Builder) Sra(dst, lhs, rhs host.VReg) *host.Instruction { return b.threeReg("sra", dst, lhs, rhs) }

// SltU emits "set if less than, unsigned" — RISC-V has no flag register, so
// every condition this backend needs is materialized as a 0/1 integer via
// SLT/SLTU and composed with XOR/OR rather than read from a status flag;
// the NZCV-style implicit dependency set the arm64 backend declares has no
// RISC-V analogue for this reason (DESIGN.md records the decision).
func (b *Builder) SltU(dst, lhs, rhs host.VReg) *host.Instruction { return b.threeReg("sltu", dst, lhs, rhs) }
func (b *Builder) Slt(dst, lhs, rhs host.VReg) *host.Instruction  { return b.threeReg("slt", dst, lhs, rhs) }

// Select lowers csel as a three-instruction sequence since RISC-V (pre-Zicond)
// has no conditional-move instruction: mask = 0-or-all-ones from cond, then
// dst = (t & mask) | (f & ~mask).
func (b *Builder) Select(dst, cond, t, f, scratch host.VReg) {
	b.emit(host.NewInstruction("neg").WithDef(host.RegOperand(scratch)).WithUse(host.RegOperand(cond)))
	b.emit(host.NewInstruction("and").WithDef(host.RegOperand(dst)).WithUse(host.RegOperand(t)).WithUse(host.RegOperand(scratch)))
	b.emit(host.NewInstruction("not").WithDef(host.RegOperand(scratch)).WithUse(host.RegOperand(scratch)))
	b.emit(host.NewInstruction("and").WithDef(host.RegOperand(scratch)).WithUse(host.RegOperand(f)).WithUse(host.RegOperand(scratch)))
	b.emit(host.NewInstruction("or").WithDef(host.RegOperand(dst)).WithUse(host.RegOperand(dst)).WithUse(host.RegOperand(scratch)))
}

// Load emits the width-appropriate load for mem's access size: lbu/lhu/lwu
// for the narrow slots (zero-extending, matching the register file's
// unsigned canonical form — the one-byte status flags must not pull in
// their neighbors) and ld for full words. A 16-byte access maps to "lq",
// which the encoder rejects: this backend has no 128-bit register file.
func (b *Builder) Load(dst host.VReg, mem host.MemOperand) *host.Instruction {
	return b.emit(host.NewInstruction(loadMnemonic(mem.Bytes())).
		WithDef(host.RegOperand(dst)).
		WithUse(host.MemOperandOf(mem)))
}

// Store emits the width-appropriate store for mem's access size.
func (b *Builder) Store(src host.VReg, mem host.MemOperand) *host.Instruction {
	return b.emit(host.NewInstruction(storeMnemonic(mem.Bytes())).
		WithUse(host.RegOperand(src)).
		WithUse(host.MemOperandOf(mem)))
}

func loadMnemonic(sz uint8) string {
	switch sz {
	case 1:
		return "lbu"
	case 2:
		return "lhu"
	case 4:
		return "lwu"
	case 16:
		return "lq"
	default:
		return "ld"
	}
}

func storeMnemonic(sz uint8) string {
	switch sz {
	case 1:
		return "sb"
	case 2:
		return "sh"
	case 4:
		return "sw"
	case 16:
		return "sq"
	default:
		return "sd"
	}
}

// Ld loads a 64-bit value from mem into dst.
func (b *Builder) Ld(dst host.VReg, mem host.MemOperand) *host.Instruction {
	return b.emit(host.NewInstruction("ld").
		WithDef(host.RegOperand(dst)).
		WithUse(host.MemOperandOf(mem)))
}

// Sd stores src into mem.
func (b *Builder) Sd(src host.VReg, mem host.MemOperand) *host.Instruction {
	return b.emit(host.NewInstruction("sd").
		WithUse(host.RegOperand(src)).
		WithUse(host.MemOperandOf(mem)))
}

// J emits an unconditional jump to target.
func (b *Builder) J(target string) *host.Instruction {
	return b.emit(host.NewInstruction("j").MarkBranch(target))
}

// BNEZ emits a branch to target when cond is non-zero.
func (b *Builder) BNEZ(cond host.VReg, target string) *host.Instruction {
	return b.emit(host.NewInstruction("bnez").
		WithUse(host.RegOperand(cond)).
		MarkBranch(target))
}

// Jal emits a call to an internal helper, writing the return address into
// the link register; always kept.
func (b *Builder) Jal(target string) *host.Instruction {
	return b.emit(host.NewInstruction("jal").
		WithImplicitDef(host.NewVReg(host.VRegID(X1), host.ClassInt).WithRealReg(X1)).
		MarkBranch(target).
		MarkKeep())
}

// Ret returns via the link register.
func (b *Builder) Ret() *host.Instruction {
	return b.emit(host.NewInstruction("ret").
		WithImplicitUse(host.NewVReg(host.VRegID(X1), host.ClassInt).WithRealReg(X1)).
		MarkKeep())
}
