package arm64

import "github.com/hexlift/hexlift/host"

// Builder emits host.Instruction values for one function body. It exposes
// one method per machine instruction family the lowering pass in xctx
// needs; each method both appends the instruction and returns it so
// callers can chain Keep/Branch annotations.
//
// By default instructions accumulate flat into Instrs, which is enough for
// a builder used standalone (tests, golden-instruction checks). A Lowerer
// wires Sink to redirect each emitted instruction into the block
// xctx.Context currently has open, since the allocator keys its
// forward/backward liveness tracking on block boundaries, not on one flat
// instruction stream.
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

// Emit appends a caller-built instruction directly, for instruction forms
// (ubfx, bfi, the LSE atomics, the scalar fcvt family) that xctx's lowering
// constructs itself rather than going through a dedicated builder method.
func (b *Builder) Emit(i *host.Instruction) *host.Instruction { return b.emit(i) }

// MoveImmediate materializes a 64-bit constant into dst via a MOVZ followed
// by up to three MOVK instructions, one per non-zero 16-bit lane — AArch64
// has no single instruction that loads an arbitrary 64-bit immediate.
func (b *Builder) MoveImmediate(dst host.VReg, value uint64) {
	first := true
	for shift := uint(0); shift < 64; shift += 16 {
		lane := uint16(value >> shift)
		if lane == 0 && shift != 0 {
			continue
		}
		if first {
			b.emit(host.NewInstruction("movz").
				WithDef(host.RegOperand(dst)).
				WithUse(host.ImmOperand(int64(lane))).
				WithUse(host.ImmOperand(int64(shift))))
			first = false
			continue
		}
		b.emit(host.NewInstruction("movk").
			WithDef(host.RegOperand(dst)).
			WithUse(host.RegOperand(dst)).
			WithUse(host.ImmOperand(int64(lane))).
			WithUse(host.ImmOperand(int64(shift))))
	}
	if first {
		// value == 0: MOVZ with immediate 0 still has to run once.
		b.emit(host.NewInstruction("movz").
			WithDef(host.RegOperand(dst)).
			WithUse(host.ImmOperand(0)).
			WithUse(host.ImmOperand(0)))
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
func (b *Builder) UDiv(dst, lhs, rhs host.VReg) *host.Instruction { return b.threeReg("udiv", dst, lhs, rhs) }
func (b *Builder) SDiv(dst, lhs, rhs host.VReg) *host.Instruction { return b.threeReg("sdiv", dst, lhs, rhs) }
func (b *Builder) And(dst, lhs, rhs host.VReg) *host.Instruction { return b.threeReg("and", dst, lhs, rhs) }
func (b *Builder) Orr(dst, lhs, rhs host.VReg) *host.Instruction { return b.threeReg("orr", dst, lhs, rhs) }
func (b *Builder) Eor(dst, lhs, rhs host.VReg) *host.Instruction { return b.threeReg("eor", dst, lhs, rhs) }

func (b *Builder) shiftReg(mnemonic string, dst, in host.VReg, amount host.VReg) *host.Instruction {
	return b.emit(host.NewInstruction(mnemonic).
		WithDef(host.RegOperand(dst)).
		WithUse(host.RegOperand(in)).
		WithUse(host.RegOperand(amount)))
}

func (b *Builder) Lsl(dst, in, amount host.VReg) *host.Instruction { return b.shiftReg("lsl", dst, in, amount) }
func (b *Builder) Lsr(dst, in, amount host.VReg) *host.Instruction { return b.shiftReg("lsr", dst, in, amount) }
func (b *Builder) Asr(dst, in, amount host.VReg) *host.Instruction { return b.shiftReg("asr", dst, in, amount) }

// Adds emits a flag-setting add, writing NZCV as an implicit side effect so
// the allocator's implicit-dependency tracking keeps it alive when a flag
// port downstream consumes the condition.
func (b *Builder) Adds(dst, lhs, rhs host.VReg) *host.Instruction {
	return b.emit(host.NewInstruction("adds").
		WithDef(host.RegOperand(dst)).
		WithUse(host.RegOperand(lhs)).
		WithUse(host.RegOperand(rhs)).
		WithImplicitDef(nzcv))
}

// Subs emits a flag-setting subtract with a kept result.
func (b *Builder) Subs(dst, lhs, rhs host.VReg) *host.Instruction {
	return b.emit(host.NewInstruction("subs").
		WithDef(host.RegOperand(dst)).
		WithUse(host.RegOperand(lhs)).
		WithUse(host.RegOperand(rhs)).
		WithImplicitDef(nzcv))
}

// Cset materializes cond as 0/1 into dst (CSINC against the zero register).
func (b *Builder) Cset(dst host.VReg, cond host.Cond) *host.Instruction {
	return b.emit(host.NewInstruction("cset").
		WithDef(host.RegOperand(dst)).
		WithUse(host.CondOperand(cond)).
		WithImplicitUse(nzcv))
}

// Mov copies src into dst (ORR against the zero register). The allocator
// kills it when both sides land in the same physical register.
func (b *Builder) Mov(dst, src host.VReg) *host.Instruction {
	return b.emit(host.NewInstruction("mov").
		WithDef(host.RegOperand(dst)).
		WithUse(host.RegOperand(src)))
}

// Mvn writes the one's complement of src into dst.
func (b *Builder) Mvn(dst, src host.VReg) *host.Instruction {
	return b.emit(host.NewInstruction("mvn").
		WithDef(host.RegOperand(dst)).
		WithUse(host.RegOperand(src)))
}

// Cmp emits a flag-setting compare (SUBS with a discarded result).
func (b *Builder) Cmp(lhs, rhs host.VReg) *host.Instruction {
	return b.emit(host.NewInstruction("subs").
		WithUse(host.RegOperand(lhs)).
		WithUse(host.RegOperand(rhs)).
		WithImplicitDef(nzcv))
}

// CSel emits a conditional select: dst = cond ? t : f.
func (b *Builder) CSel(dst, t, f host.VReg, cond host.Cond) *host.Instruction {
	return b.emit(host.NewInstruction("csel").
		WithDef(host.RegOperand(dst)).
		WithUse(host.RegOperand(t)).
		WithUse(host.RegOperand(f)).
		WithUse(host.CondOperand(cond)).
		WithImplicitUse(nzcv))
}

// Ldr loads width bits from mem into dst.
func (b *Builder) Ldr(dst host.VReg, mem host.MemOperand) *host.Instruction {
	return b.emit(host.NewInstruction("ldr").
		WithDef(host.RegOperand(dst)).
		WithUse(host.MemOperandOf(mem)))
}

// Str stores src into mem.
func (b *Builder) Str(src host.VReg, mem host.MemOperand) *host.Instruction {
	return b.emit(host.NewInstruction("str").
		WithUse(host.RegOperand(src)).
		WithUse(host.MemOperandOf(mem)))
}

// B emits an unconditional branch to target, marking it a Branch for the
// allocator's liveness tracking.
func (b *Builder) B(target string) *host.Instruction {
	return b.emit(host.NewInstruction("b").MarkBranch(target))
}

// BCond emits a conditional branch to target.
func (b *Builder) BCond(cond host.Cond, target string) *host.Instruction {
	return b.emit(host.NewInstruction("b." + condName(cond)).
		WithUse(host.CondOperand(cond)).
		WithImplicitUse(nzcv).
		MarkBranch(target))
}

// Bl emits a branch-and-link call to an internal helper, writing the return
// address into LR; always kept, since its side effects are not locally
// observable.
func (b *Builder) Bl(target string) *host.Instruction {
	return b.emit(host.NewInstruction("bl").
		WithImplicitDef(host.NewVReg(host.VRegID(X30), host.ClassInt).WithRealReg(X30)).
		MarkBranch(target).
		MarkKeep())
}

// Ret returns to the address in LR.
func (b *Builder) Ret() *host.Instruction {
	return b.emit(host.NewInstruction("ret").
		WithImplicitUse(host.NewVReg(host.VRegID(X30), host.ClassInt).WithRealReg(X30)).
		MarkKeep())
}

// nzcv is a synthetic vreg naming the condition-flags register as an
// implicit dependency for the allocator's outstanding-read tracking.
var nzcv = host.NewVReg(0xFFFFFFFE, host.ClassInt)
