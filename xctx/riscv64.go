package xctx

import (
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/hexlift/hexlift/host"
	"github.com/hexlift/hexlift/host/riscv64"
	"github.com/hexlift/hexlift/ir"
)

// RiscvLowerer materializes one chunk's packets into RISC-V 64 host
// instructions. RISC-V has no condition-flags register, so comparisons and
// selects lower to the SLT/SLTU + mask sequences host/riscv64.Builder
// already exposes rather than to a flag-port read; the NZCV-style implicit
// dependency the arm64 backend tracks has no analogue here.
type RiscvLowerer struct {
	*Context
	B     *riscv64.Builder
	state host.VReg
	log   *zap.Logger

	localVregs map[uint32]host.VReg
}

// NewRiscvLowerer returns a Lowerer for one chunk, with its state-base vreg
// pre-bound to the frame pointer (s0/x8).
func NewRiscvLowerer(log *zap.Logger) *RiscvLowerer {
	c := NewContext()
	l := &RiscvLowerer{Context: c, B: riscv64.NewBuilder(), log: log}
	l.B.Sink = func(i *host.Instruction) { l.Context.Emit(i) }
	l.state = riscv64.StateVReg()
	return l
}

// LowerChunk walks every packet of chunk in order and lowers its actions.
func (l *RiscvLowerer) LowerChunk(chunk *ir.Chunk) error {
	for _, p := range chunk.Packets() {
		l.PC = p.Address
		for _, a := range p.Actions() {
			if err := l.lowerAction(a); err != nil {
				return errors.Wrapf(err, "lowering packet at 0x%x (%s)", p.Address, p.Disasm)
			}
		}
	}
	return nil
}

func (l *RiscvLowerer) lowerAction(n ir.Node) error {
	switch a := n.(type) {
	case *ir.WriteReg:
		v, err := l.materialize(a.Value)
		if err != nil {
			return err
		}
		l.B.Store(v, host.MemOperand{Base: l.state, Disp: int32(a.Dest.Offset), Size: accessBytes(a.Value.Type())})
		return nil
	case *ir.WriteMem:
		addr, err := l.materialize(a.Addr)
		if err != nil {
			return err
		}
		val, err := l.materialize(a.Value)
		if err != nil {
			return err
		}
		l.B.Store(val, host.MemOperand{Base: addr, Size: accessBytes(a.Value.Type())})
		return nil
	case *ir.WritePC:
		v, err := l.materialize(a.Value)
		if err != nil {
			return err
		}
		l.B.Store(v, host.MemOperand{Base: l.state, Disp: 0, Size: 8}).MarkKeep()
		l.B.Ret()
		return nil
	case *ir.LabelNode:
		l.OpenBlock(a.Name)
		return nil
	case *ir.Br:
		l.B.J(a.Target.Name)
		return nil
	case *ir.CondBr:
		cond, err := l.materialize(a.Cond)
		if err != nil {
			return err
		}
		l.B.BNEZ(cond, a.Target.Name)
		return nil
	case *ir.InternalCall:
		for _, arg := range a.Args {
			if _, err := l.materialize(arg); err != nil {
				return err
			}
		}
		l.B.Jal(a.FuncName)
		return nil
	case *ir.WriteLocal:
		v, err := l.materialize(a.Value)
		if err != nil {
			return err
		}
		l.bindLocal(a.Dest, v)
		return nil
	default:
		return errors.Wrapf(ErrBackend, "riscv64: unhandled action kind %v", n.Kind())
	}
}

func (l *RiscvLowerer) bindLocal(local ir.Local, v host.VReg) {
	if l.localVregs == nil {
		l.localVregs = make(map[uint32]host.VReg)
	}
	l.localVregs[local.ID()] = v
}

func (l *RiscvLowerer) materialize(p *ir.Port) (host.VReg, error) {
	if v, ok := l.Materialized(p); ok {
		return v, nil
	}
	v, err := l.materializeUncached(p)
	if err != nil {
		return host.InvalidVReg, err
	}
	l.Bind(p, v)
	return v, nil
}

func (l *RiscvLowerer) materializeUncached(p *ir.Port) (host.VReg, error) {
	switch p.Kind() {
	case ir.PortZero, ir.PortNegative, ir.PortOverflow, ir.PortCarry:
		return l.materializeFlag(p)
	}
	switch n := p.Node().(type) {
	case *ir.Constant:
		dst := l.FreshVReg(classOf(p.Type()))
		if n.IsFloat {
			l.B.MoveImmediate(dst, uint64(n.Float64))
			return dst, nil
		}
		l.B.MoveImmediate(dst, n.Bits)
		return dst, nil
	case *ir.ReadReg:
		dst := l.FreshVReg(classOf(p.Type()))
		l.B.Load(dst, host.MemOperand{Base: l.state, Disp: int32(n.Src.Offset), Size: accessBytes(n.Typ)})
		return dst, nil
	case *ir.ReadMem:
		addr, err := l.materialize(n.Addr)
		if err != nil {
			return host.InvalidVReg, err
		}
		dst := l.FreshVReg(classOf(p.Type()))
		l.B.Load(dst, host.MemOperand{Base: addr, Size: accessBytes(n.Typ)})
		return dst, nil
	case *ir.ReadPC:
		dst := l.FreshVReg(host.ClassInt)
		l.B.MoveImmediate(dst, l.PC)
		return dst, nil
	case *ir.ReadLocal:
		if v, ok := l.localVregs[n.Src.ID()]; ok {
			return v, nil
		}
		return host.InvalidVReg, errors.Wrapf(ErrBackend, "riscv64: read_local %d before any write", n.Src.ID())
	case *ir.BinaryArith:
		return l.materializeBinary(p, n)
	case *ir.CSel:
		return l.materializeCSel(n)
	case *ir.BitShift:
		return l.materializeShift(n)
	case *ir.UnaryArith:
		return l.materializeUnary(n)
	default:
		return host.InvalidVReg, errors.Wrapf(ErrBackend, "riscv64: node kind %T not lowered on this target (see DESIGN.md)", p.Node())
	}
}

// materializeFlag lowers a companion flag port. RISC-V has no flags
// register, so every flag is a materialized 0/1 value: zero via SLTIU
// against 1, negative via SLT against the zero register, carry via the
// unsigned compare of result against an addend (or of the minuend against
// the subtrahend for the borrow), and signed overflow via the classic
// sign-XOR sequences. The carry port of a subtraction is the borrow, the
// convention the jcc translator's condition table assumes.
func (l *RiscvLowerer) materializeFlag(p *ir.Port) (host.VReg, error) {
	dst := l.FreshVReg(host.ClassInt)
	switch n := p.Node().(type) {
	case *ir.BinaryArith:
		switch p.Kind() {
		case ir.PortZero, ir.PortNegative:
			return l.flagFromResult(dst, p, n.Result)
		}
		switch n.Op {
		case ir.OpAdd, ir.OpSub:
			return l.addSubFlag(dst, p, n)
		default:
			l.B.MoveImmediate(dst, 0)
			return dst, nil
		}
	case *ir.UnaryArith:
		return l.flagFromResult(dst, p, n.Result)
	case *ir.TernaryArith:
		return l.ternaryFlag(dst, p, n)
	case *ir.BitShift:
		return l.shiftFlag(dst, p, n)
	default:
		return host.InvalidVReg, errors.Wrapf(ErrBackend, "riscv64: flag port on %T", p.Node())
	}
}

func (l *RiscvLowerer) flagFromResult(dst host.VReg, p *ir.Port, result *ir.Port) (host.VReg, error) {
	v, err := l.materialize(result)
	if err != nil {
		return host.InvalidVReg, err
	}
	if p.Kind() == ir.PortZero {
		l.B.Emit(host.NewInstruction("sltiu").
			WithDef(host.RegOperand(dst)).
			WithUse(host.RegOperand(v)).
			WithUse(host.ImmOperand(1)))
	} else {
		l.B.Slt(dst, v, riscv64.ZeroVReg())
	}
	return dst, nil
}

func (l *RiscvLowerer) addSubFlag(dst host.VReg, p *ir.Port, n *ir.BinaryArith) (host.VReg, error) {
	lhs, err := l.materialize(n.Lhs)
	if err != nil {
		return host.InvalidVReg, err
	}
	rhs, err := l.materialize(n.Rhs)
	if err != nil {
		return host.InvalidVReg, err
	}
	result, err := l.materialize(n.Result)
	if err != nil {
		return host.InvalidVReg, err
	}
	sub := n.Op == ir.OpSub
	if p.Kind() == ir.PortCarry {
		if sub {
			l.B.SltU(dst, lhs, rhs)
		} else {
			l.B.SltU(dst, result, lhs)
		}
		return dst, nil
	}
	// Signed overflow. For a-b: set iff signs of a and b differ and the
	// result's sign differs from a's. For a+b: set iff signs agree and the
	// result's sign differs from a's.
	signsDiffer := l.FreshVReg(host.ClassInt)
	l.B.Xor(signsDiffer, lhs, rhs)
	resultFlipped := l.FreshVReg(host.ClassInt)
	l.B.Xor(resultFlipped, lhs, result)
	combined := l.FreshVReg(host.ClassInt)
	if sub {
		l.B.And(combined, signsDiffer, resultFlipped)
	} else {
		inverted := l.FreshVReg(host.ClassInt)
		l.B.Emit(host.NewInstruction("not").
			WithDef(host.RegOperand(inverted)).
			WithUse(host.RegOperand(signsDiffer)))
		l.B.And(combined, inverted, resultFlipped)
	}
	l.B.Slt(dst, combined, riscv64.ZeroVReg())
	return dst, nil
}

func (l *RiscvLowerer) ternaryFlag(dst host.VReg, p *ir.Port, n *ir.TernaryArith) (host.VReg, error) {
	switch p.Kind() {
	case ir.PortZero, ir.PortNegative:
		return l.flagFromResult(dst, p, n.Result)
	}
	a, err := l.materialize(n.A)
	if err != nil {
		return host.InvalidVReg, err
	}
	b, err := l.materialize(n.B)
	if err != nil {
		return host.InvalidVReg, err
	}
	carryIn, err := l.materialize(n.CarryIn)
	if err != nil {
		return host.InvalidVReg, err
	}
	if p.Kind() == ir.PortOverflow {
		return host.InvalidVReg, errors.Wrapf(ErrBackend, "riscv64: adc/sbb overflow port not lowered on this target")
	}
	// Carry out of a+b+c (or borrow of a-b-c): set if either half steps
	// past the unsigned range.
	half := l.FreshVReg(host.ClassInt)
	c1 := l.FreshVReg(host.ClassInt)
	full := l.FreshVReg(host.ClassInt)
	c2 := l.FreshVReg(host.ClassInt)
	if n.Op == ir.OpSbb {
		l.B.SltU(c1, a, b)
		l.B.Sub(half, a, b)
		l.B.SltU(c2, half, carryIn)
		l.B.Sub(full, half, carryIn)
	} else {
		l.B.Add(half, a, b)
		l.B.SltU(c1, half, a)
		l.B.Add(full, half, carryIn)
		l.B.SltU(c2, full, half)
	}
	l.B.Or(dst, c1, c2)
	return dst, nil
}

func (l *RiscvLowerer) shiftFlag(dst host.VReg, p *ir.Port, n *ir.BitShift) (host.VReg, error) {
	switch p.Kind() {
	case ir.PortZero, ir.PortNegative:
		return l.flagFromResult(dst, p, n.Result)
	case ir.PortOverflow:
		return host.InvalidVReg, errors.Wrapf(ErrBackend, "riscv64: shift overflow port not lowered on this target")
	}
	in, err := l.materialize(n.In)
	if err != nil {
		return host.InvalidVReg, err
	}
	amount, err := l.materialize(n.Amount)
	if err != nil {
		return host.InvalidVReg, err
	}
	one := l.FreshVReg(host.ClassInt)
	l.B.MoveImmediate(one, 1)
	idx := l.FreshVReg(host.ClassInt)
	if n.ShiftKind == ir.ShiftLSL {
		w := l.FreshVReg(host.ClassInt)
		l.B.MoveImmediate(w, uint64(n.In.Type().Width()))
		l.B.Sub(idx, w, amount)
	} else {
		l.B.Sub(idx, amount, one)
	}
	shifted := l.FreshVReg(host.ClassInt)
	l.B.Srl(shifted, in, idx)
	l.B.And(dst, shifted, one)
	return dst, nil
}

func (l *RiscvLowerer) materializeUnary(n *ir.UnaryArith) (host.VReg, error) {
	in, err := l.materialize(n.In)
	if err != nil {
		return host.InvalidVReg, err
	}
	dst := l.FreshVReg(host.ClassInt)
	switch n.Op {
	case ir.OpNeg:
		l.B.Emit(host.NewInstruction("neg").WithDef(host.RegOperand(dst)).WithUse(host.RegOperand(in)))
	case ir.OpNot:
		l.B.Emit(host.NewInstruction("not").WithDef(host.RegOperand(dst)).WithUse(host.RegOperand(in)))
	}
	return dst, nil
}

func (l *RiscvLowerer) materializeBinary(p *ir.Port, n *ir.BinaryArith) (host.VReg, error) {
	lhs, err := l.materialize(n.Lhs)
	if err != nil {
		return host.InvalidVReg, err
	}
	rhs, err := l.materialize(n.Rhs)
	if err != nil {
		return host.InvalidVReg, err
	}
	dst := l.FreshVReg(classOf(p.Type()))
	switch n.Op {
	case ir.OpAdd:
		l.B.Add(dst, lhs, rhs)
	case ir.OpSub:
		l.B.Sub(dst, lhs, rhs)
	case ir.OpMul:
		l.B.Mul(dst, lhs, rhs)
	case ir.OpDiv:
		l.B.Divu(dst, lhs, rhs)
	case ir.OpMod:
		q := l.FreshVReg(host.ClassInt)
		l.B.Divu(q, lhs, rhs)
		prod := l.FreshVReg(host.ClassInt)
		l.B.Mul(prod, q, rhs)
		l.B.Sub(dst, lhs, prod)
	case ir.OpAnd:
		l.B.And(dst, lhs, rhs)
	case ir.OpOr:
		l.B.Or(dst, lhs, rhs)
	case ir.OpXor:
		l.B.Xor(dst, lhs, rhs)
	case ir.OpCmpEq:
		l.B.Xor(dst, lhs, rhs)
		l.B.SltU(dst, riscv64.ZeroVReg(), dst)
		// SLTU(0, dst) is 1 iff the XOR was non-zero; invert via XORI 1.
		l.B.Emit(host.NewInstruction("xori").WithDef(host.RegOperand(dst)).WithUse(host.RegOperand(dst)).WithUse(host.ImmOperand(1)))
	case ir.OpCmpNe:
		l.B.Xor(dst, lhs, rhs)
		l.B.SltU(dst, riscv64.ZeroVReg(), dst)
	case ir.OpCmpGt:
		l.B.Slt(dst, rhs, lhs)
	default:
		return host.InvalidVReg, errors.Wrapf(ErrBackend, "riscv64: unhandled binary op %v", n.Op)
	}
	return dst, nil
}

func (l *RiscvLowerer) materializeCSel(n *ir.CSel) (host.VReg, error) {
	cond, err := l.materialize(n.Cond)
	if err != nil {
		return host.InvalidVReg, err
	}
	t, err := l.materialize(n.True)
	if err != nil {
		return host.InvalidVReg, err
	}
	f, err := l.materialize(n.False)
	if err != nil {
		return host.InvalidVReg, err
	}
	dst := l.FreshVReg(classOf(n.Result.Type()))
	scratch := l.FreshVReg(host.ClassInt)
	l.B.Select(dst, cond, t, f, scratch)
	return dst, nil
}

func (l *RiscvLowerer) materializeShift(n *ir.BitShift) (host.VReg, error) {
	in, err := l.materialize(n.In)
	if err != nil {
		return host.InvalidVReg, err
	}
	amount, err := l.materialize(n.Amount)
	if err != nil {
		return host.InvalidVReg, err
	}
	dst := l.FreshVReg(classOf(n.Result.Type()))
	switch n.ShiftKind {
	case ir.ShiftLSL:
		l.B.Sll(dst, in, amount)
	case ir.ShiftLSR:
		l.B.Srl(dst, in, amount)
	case ir.ShiftASR:
		l.B.Sra(dst, in, amount)
	}
	return dst, nil
}
