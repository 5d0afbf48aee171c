package xctx

import (
	"math"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/hexlift/hexlift/host"
	"github.com/hexlift/hexlift/host/arm64"
	"github.com/hexlift/hexlift/ir"
)

// ErrBackend is the BackendError sentinel: the host instruction
// builder rejected an operand, or a node kind has no lowering on this
// target.
var ErrBackend = errors.New("xctx: backend error")

// Arm64Lowerer materializes one chunk's packets into AArch64 host
// instructions. It owns the CPU-state base register (the frame pointer,
// X29 by this translator's convention) so ReadReg/WriteReg lower to
// ldr/str against [X29, #offset].
type Arm64Lowerer struct {
	*Context
	B          *arm64.Builder
	state      host.VReg // CPU-state base pointer, bound to X29.
	log        *zap.Logger
	localVregs map[uint32]host.VReg
}

// NewArm64Lowerer returns a Lowerer for one chunk, with its state-base vreg
// pre-bound to the frame pointer.
func NewArm64Lowerer(log *zap.Logger) *Arm64Lowerer {
	c := NewContext()
	l := &Arm64Lowerer{Context: c, B: arm64.NewBuilder(), log: log}
	l.B.Sink = func(i *host.Instruction) { l.Context.Emit(i) }
	l.state = arm64.StateVReg()
	return l
}

// LowerChunk walks every packet of chunk in order and lowers its actions.
func (l *Arm64Lowerer) LowerChunk(chunk *ir.Chunk) error {
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

func (l *Arm64Lowerer) lowerAction(n ir.Node) error {
	switch a := n.(type) {
	case *ir.WriteReg:
		v, err := l.materialize(a.Value)
		if err != nil {
			return err
		}
		l.B.Str(v, host.MemOperand{Base: l.state, Disp: int32(a.Dest.Offset), Size: accessBytes(a.Value.Type())})
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
		l.B.Str(val, host.MemOperand{Base: addr, Size: accessBytes(a.Value.Type())})
		return nil
	case *ir.WritePC:
		v, err := l.materialize(a.Value)
		if err != nil {
			return err
		}
		l.B.Str(v, host.MemOperand{Base: l.state, Disp: 0, Size: 8}).MarkKeep()
		l.B.Ret()
		return nil
	case *ir.LabelNode:
		l.OpenBlock(a.Name)
		return nil
	case *ir.Br:
		l.B.B(a.Target.Name)
		return nil
	case *ir.CondBr:
		cond, err := l.materialize(a.Cond)
		if err != nil {
			return err
		}
		// Cond is a plain 1-bit integer value here (not derived from a
		// flag-producing compare), so test it directly with cbnz-shaped
		// compare-and-branch: subs against the zero register, then b.ne.
		l.B.Cmp(cond, arm64.ZeroVReg())
		l.B.BCond(host.CondNE, a.Target.Name)
		return nil
	case *ir.InternalCall:
		for _, arg := range a.Args {
			if _, err := l.materialize(arg); err != nil {
				return err
			}
		}
		l.B.Bl(a.FuncName)
		return nil
	case *ir.WriteLocal:
		v, err := l.materialize(a.Value)
		if err != nil {
			return err
		}
		l.bindLocal(a.Dest, v)
		return nil
	default:
		return errors.Wrapf(ErrBackend, "arm64: unhandled action kind %v", n.Kind())
	}
}

// bindLocal maps a chunk-local's ID to the vreg currently holding its
// value; local_var slots are SSA-friendly, so one vreg per
// write is enough rather than a real stack slot.
func (l *Arm64Lowerer) bindLocal(local ir.Local, v host.VReg) {
	if l.localVregs == nil {
		l.localVregs = make(map[uint32]host.VReg)
	}
	l.localVregs[local.ID()] = v
}

// materialize recursively lowers the value-producing node behind p into a
// vreg, memoizing the result so a port referenced from multiple sites is
// computed once.
func (l *Arm64Lowerer) materialize(p *ir.Port) (host.VReg, error) {
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

func (l *Arm64Lowerer) materializeUncached(p *ir.Port) (host.VReg, error) {
	switch p.Kind() {
	case ir.PortZero, ir.PortNegative, ir.PortOverflow, ir.PortCarry:
		return l.materializeFlag(p)
	}
	switch n := p.Node().(type) {
	case *ir.Constant:
		if p.Type().IsVector() || p.Type().Width() > 64 {
			// The only wide constant the translators build is the zero
			// vector seeding a lane-by-lane rebuild.
			if n.Bits != 0 {
				return host.InvalidVReg, errors.Wrapf(ErrBackend, "arm64: non-zero vector constant")
			}
			dst := l.FreshVReg(host.ClassFloat)
			l.B.Emit(host.NewInstruction("movi").WithDef(host.RegOperand(dst)))
			return dst, nil
		}
		if n.IsFloat {
			// Materialize the bit pattern in a general register, then move
			// it across to the float file.
			bits := l.FreshVReg(host.ClassInt)
			l.B.MoveImmediate(bits, floatBits(n))
			dst := l.FreshVReg(host.ClassFloat)
			l.B.Emit(host.NewInstruction("fmov").
				WithDef(host.RegOperand(dst)).
				WithUse(host.RegOperand(bits)).
				WithUse(host.ImmOperand(int64(n.Typ.Width() / 8))))
			return dst, nil
		}
		dst := l.FreshVReg(classOf(p.Type()))
		l.B.MoveImmediate(dst, n.Bits)
		return dst, nil
	case *ir.ReadReg:
		dst := l.FreshVReg(classOf(p.Type()))
		l.B.Ldr(dst, host.MemOperand{Base: l.state, Disp: int32(n.Src.Offset), Size: accessBytes(n.Typ)})
		return dst, nil
	case *ir.ReadMem:
		addr, err := l.materialize(n.Addr)
		if err != nil {
			return host.InvalidVReg, err
		}
		dst := l.FreshVReg(classOf(p.Type()))
		l.B.Ldr(dst, host.MemOperand{Base: addr, Size: accessBytes(n.Typ)})
		return dst, nil
	case *ir.ReadPC:
		dst := l.FreshVReg(host.ClassInt)
		l.B.MoveImmediate(dst, l.PC)
		return dst, nil
	case *ir.ReadLocal:
		if v, ok := l.localVregs[n.Src.ID()]; ok {
			return v, nil
		}
		return host.InvalidVReg, errors.Wrapf(ErrBackend, "arm64: read_local %d before any write", n.Src.ID())
	case *ir.UnaryArith:
		return l.materializeUnary(n)
	case *ir.BinaryArith:
		return l.materializeBinary(p, n)
	case *ir.TernaryArith:
		return l.materializeTernary(n)
	case *ir.Cast:
		return l.materializeCast(n)
	case *ir.CSel:
		return l.materializeCSel(n)
	case *ir.BitShift:
		return l.materializeShift(n)
	case *ir.BitExtract:
		return l.materializeBitExtract(n)
	case *ir.BitInsert:
		return l.materializeBitInsert(n)
	case *ir.VectorExtract:
		return l.materializeVectorExtract(n)
	case *ir.VectorInsert:
		return l.materializeVectorInsert(n)
	case *ir.AtomicUnary, *ir.AtomicBinary, *ir.AtomicTernary:
		return l.materializeAtomic(p.Node())
	default:
		return host.InvalidVReg, errors.Wrapf(ErrBackend, "arm64: unhandled value node %T", p.Node())
	}
}

func floatBits(n *ir.Constant) uint64 {
	if n.Typ.Width() == 32 {
		return uint64(math.Float32bits(float32(n.Float64)))
	}
	return math.Float64bits(n.Float64)
}

// materializeFlag lowers a companion flag port, computed lazily and only
// when referenced. For add/sub, every flag port (zero and negative as well
// as carry and overflow) re-executes the operation in its flag-setting
// ADDS/SUBS form and CSETs the requested condition out of NZCV; for other
// producers the flag is derived from the primary result. The carry port of a subtraction is the
// borrow (x86 CF convention, which the jcc translator's condition table
// assumes), i.e. the inverse of AArch64's native C after SUBS.
func (l *Arm64Lowerer) materializeFlag(p *ir.Port) (host.VReg, error) {
	dst := l.FreshVReg(host.ClassInt)
	switch n := p.Node().(type) {
	case *ir.BinaryArith:
		switch n.Op {
		case ir.OpAdd, ir.OpSub:
			lhs, err := l.materialize(n.Lhs)
			if err != nil {
				return host.InvalidVReg, err
			}
			rhs, err := l.materialize(n.Rhs)
			if err != nil {
				return host.InvalidVReg, err
			}
			scratch := l.FreshVReg(host.ClassInt)
			if n.Op == ir.OpAdd {
				l.B.Adds(scratch, lhs, rhs)
			} else {
				l.B.Subs(scratch, lhs, rhs)
			}
			l.B.Cset(dst, flagCond(p.Kind(), n.Op == ir.OpSub))
			return dst, nil
		default:
			return l.flagFromResult(dst, p, n.Result)
		}
	case *ir.TernaryArith:
		return l.materializeTernaryFlag(dst, p, n)
	case *ir.UnaryArith:
		return l.flagFromResult(dst, p, n.Result)
	case *ir.BitShift:
		return l.materializeShiftFlag(dst, p, n)
	case *ir.AtomicTernary:
		result, err := l.materialize(n.Result)
		if err != nil {
			return host.InvalidVReg, err
		}
		expected, err := l.materialize(n.Expected)
		if err != nil {
			return host.InvalidVReg, err
		}
		l.B.Cmp(result, expected)
		l.B.Cset(dst, host.CondEQ)
		return dst, nil
	default:
		return host.InvalidVReg, errors.Wrapf(ErrBackend, "arm64: flag port on %T", p.Node())
	}
}

// flagFromResult handles the operations whose carry/overflow are
// architecturally zero (logicals, mul, div): zero and negative come from a
// compare of the primary result, the other two are constants.
func (l *Arm64Lowerer) flagFromResult(dst host.VReg, p *ir.Port, result *ir.Port) (host.VReg, error) {
	switch p.Kind() {
	case ir.PortCarry, ir.PortOverflow:
		l.B.MoveImmediate(dst, 0)
		return dst, nil
	}
	v, err := l.materialize(result)
	if err != nil {
		return host.InvalidVReg, err
	}
	l.B.Cmp(v, arm64.ZeroVReg())
	if p.Kind() == ir.PortZero {
		l.B.Cset(dst, host.CondEQ)
	} else {
		l.B.Cset(dst, host.CondMI)
	}
	return dst, nil
}

// materializeTernaryFlag computes ADC/SBB flags by chaining two
// flag-setting halves: carry (or borrow) is set if either step carried.
func (l *Arm64Lowerer) materializeTernaryFlag(dst host.VReg, p *ir.Port, n *ir.TernaryArith) (host.VReg, error) {
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
	sub := n.Op == ir.OpSbb
	cond := flagCond(p.Kind(), sub)
	half := l.FreshVReg(host.ClassInt)
	c1 := l.FreshVReg(host.ClassInt)
	if sub {
		l.B.Subs(half, a, b)
	} else {
		l.B.Adds(half, a, b)
	}
	l.B.Cset(c1, cond)
	full := l.FreshVReg(host.ClassInt)
	c2 := l.FreshVReg(host.ClassInt)
	if sub {
		l.B.Subs(full, half, carryIn)
	} else {
		l.B.Adds(full, half, carryIn)
	}
	l.B.Cset(c2, cond)
	l.B.Orr(dst, c1, c2)
	return dst, nil
}

// materializeShiftFlag computes shift flags: carry is the last bit shifted
// out, overflow (defined only for single-bit shifts, which is the only case
// the shift translator requests it for) is carry^msb for LSL, the
// original msb for LSR, and zero for ASR.
func (l *Arm64Lowerer) materializeShiftFlag(dst host.VReg, p *ir.Port, n *ir.BitShift) (host.VReg, error) {
	switch p.Kind() {
	case ir.PortZero, ir.PortNegative:
		return l.flagFromResult(dst, p, n.Result)
	}
	in, err := l.materialize(n.In)
	if err != nil {
		return host.InvalidVReg, err
	}
	amount, err := l.materialize(n.Amount)
	if err != nil {
		return host.InvalidVReg, err
	}
	width := uint64(n.In.Type().Width())
	one := l.FreshVReg(host.ClassInt)
	l.B.MoveImmediate(one, 1)
	carry := dst
	if p.Kind() == ir.PortOverflow {
		carry = l.FreshVReg(host.ClassInt)
	}
	idx := l.FreshVReg(host.ClassInt)
	if n.ShiftKind == ir.ShiftLSL {
		w := l.FreshVReg(host.ClassInt)
		l.B.MoveImmediate(w, width)
		l.B.Sub(idx, w, amount)
	} else {
		l.B.Sub(idx, amount, one)
	}
	shifted := l.FreshVReg(host.ClassInt)
	l.B.Lsr(shifted, in, idx)
	l.B.And(carry, shifted, one)
	if p.Kind() == ir.PortCarry {
		return dst, nil
	}
	switch n.ShiftKind {
	case ir.ShiftLSL:
		result, err := l.materialize(n.Result)
		if err != nil {
			return host.InvalidVReg, err
		}
		msbIdx := l.FreshVReg(host.ClassInt)
		l.B.MoveImmediate(msbIdx, width-1)
		msb := l.FreshVReg(host.ClassInt)
		l.B.Lsr(msb, result, msbIdx)
		l.B.And(msb, msb, one)
		l.B.Eor(dst, carry, msb)
	case ir.ShiftLSR:
		msbIdx := l.FreshVReg(host.ClassInt)
		l.B.MoveImmediate(msbIdx, width-1)
		l.B.Lsr(dst, in, msbIdx)
		l.B.And(dst, dst, one)
	default:
		l.B.MoveImmediate(dst, 0)
	}
	return dst, nil
}

func flagCond(kind ir.PortKind, sub bool) host.Cond {
	switch kind {
	case ir.PortZero:
		return host.CondEQ
	case ir.PortNegative:
		return host.CondMI
	case ir.PortOverflow:
		return host.CondVS
	case ir.PortCarry:
		if sub {
			return host.CondLO
		}
		return host.CondHS
	}
	return host.CondEQ
}

func (l *Arm64Lowerer) materializeUnary(n *ir.UnaryArith) (host.VReg, error) {
	in, err := l.materialize(n.In)
	if err != nil {
		return host.InvalidVReg, err
	}
	dst := l.FreshVReg(classOf(n.Result.Type()))
	switch n.Op {
	case ir.OpNeg:
		l.B.Sub(dst, arm64.ZeroVReg(), in)
	case ir.OpNot:
		l.B.Mvn(dst, in)
	}
	return dst, nil
}

func (l *Arm64Lowerer) materializeBinary(p *ir.Port, n *ir.BinaryArith) (host.VReg, error) {
	lhs, err := l.materialize(n.Lhs)
	if err != nil {
		return host.InvalidVReg, err
	}
	rhs, err := l.materialize(n.Rhs)
	if err != nil {
		return host.InvalidVReg, err
	}
	dst := l.FreshVReg(classOf(p.Type()))
	if n.Lhs.Type().IsFloat() {
		return l.materializeFPBinary(dst, n, lhs, rhs)
	}
	switch n.Op {
	case ir.OpAdd:
		l.B.Add(dst, lhs, rhs)
	case ir.OpSub:
		l.B.Sub(dst, lhs, rhs)
	case ir.OpMul:
		l.B.Mul(dst, lhs, rhs)
	case ir.OpDiv:
		l.B.UDiv(dst, lhs, rhs)
	case ir.OpMod:
		// AArch64 has no remainder instruction: r = a - (a/b)*b.
		q := l.FreshVReg(host.ClassInt)
		l.B.UDiv(q, lhs, rhs)
		prod := l.FreshVReg(host.ClassInt)
		l.B.Mul(prod, q, rhs)
		l.B.Sub(dst, lhs, prod)
	case ir.OpAnd:
		l.B.And(dst, lhs, rhs)
	case ir.OpOr:
		l.B.Orr(dst, lhs, rhs)
	case ir.OpXor:
		l.B.Eor(dst, lhs, rhs)
	case ir.OpCmpEq, ir.OpCmpNe, ir.OpCmpGt:
		l.B.Cmp(lhs, rhs)
		l.B.Cset(dst, cmpCond(n.Op))
	default:
		return host.InvalidVReg, errors.Wrapf(ErrBackend, "arm64: unhandled binary op %v", n.Op)
	}
	return dst, nil
}

// materializeFPBinary lowers float-class arithmetic (the scalar lanes the
// SSE translators extract) onto the FADD/FSUB/FMUL/FDIV scalar forms; the
// trailing immediate tells the encoder whether to use the S or D variant.
func (l *Arm64Lowerer) materializeFPBinary(dst host.VReg, n *ir.BinaryArith, lhs, rhs host.VReg) (host.VReg, error) {
	var mnem string
	switch n.Op {
	case ir.OpAdd:
		mnem = "fadd"
	case ir.OpSub:
		mnem = "fsub"
	case ir.OpMul:
		mnem = "fmul"
	case ir.OpDiv:
		mnem = "fdiv"
	default:
		return host.InvalidVReg, errors.Wrapf(ErrBackend, "arm64: unhandled float binary op %v", n.Op)
	}
	l.B.Emit(host.NewInstruction(mnem).
		WithDef(host.RegOperand(dst)).
		WithUse(host.RegOperand(lhs)).
		WithUse(host.RegOperand(rhs)).
		WithUse(host.ImmOperand(int64(n.Lhs.Type().Width() / 8))))
	return dst, nil
}

func cmpCond(op ir.BinaryOp) host.Cond {
	switch op {
	case ir.OpCmpEq:
		return host.CondEQ
	case ir.OpCmpNe:
		return host.CondNE
	default:
		return host.CondGT
	}
}

func (l *Arm64Lowerer) materializeTernary(n *ir.TernaryArith) (host.VReg, error) {
	a, err := l.materialize(n.A)
	if err != nil {
		return host.InvalidVReg, err
	}
	b, err := l.materialize(n.B)
	if err != nil {
		return host.InvalidVReg, err
	}
	carry, err := l.materialize(n.CarryIn)
	if err != nil {
		return host.InvalidVReg, err
	}
	dst := l.FreshVReg(classOf(n.Result.Type()))
	tmp := l.FreshVReg(host.ClassInt)
	switch n.Op {
	case ir.OpAdc:
		l.B.Add(tmp, a, b)
		l.B.Add(dst, tmp, carry)
	case ir.OpSbb:
		l.B.Sub(tmp, a, b)
		l.B.Sub(dst, tmp, carry)
	}
	return dst, nil
}

func (l *Arm64Lowerer) materializeCast(n *ir.Cast) (host.VReg, error) {
	in, err := l.materialize(n.In)
	if err != nil {
		return host.InvalidVReg, err
	}
	switch n.CastKind {
	case ir.CastBitcast, ir.CastZeroExtend:
		// AArch64 32-bit writes already zero the upper 32 bits of their
		// 64-bit register view, so zero-extension and bitcast between
		// integer widths this translator models are both a plain move;
		// finer-grained (e.g. 8/16-bit) masking is applied by the caller
		// via BitInsert against the destination register's full width.
		return in, nil
	case ir.CastSignExtend:
		// Shift the source's sign bit up to bit 63, then arithmetic-shift
		// back down so it smears across the widened bits.
		dst := l.FreshVReg(host.ClassInt)
		amt := shiftAmountVReg(l, 64-uint(n.In.Type().Width()))
		l.B.Lsl(dst, in, amt)
		l.B.Asr(dst, dst, amt)
		return dst, nil
	case ir.CastTrunc:
		return in, nil
	case ir.CastConvert:
		dst := l.FreshVReg(classOf(n.OutType))
		mnem := "scvtf"
		if n.In.Type().Class() == ir.ClassFloat {
			mnem = "fcvtzs"
		}
		l.B.Emit(host.NewInstruction(mnem).WithDef(host.RegOperand(dst)).WithUse(host.RegOperand(in)))
		return dst, nil
	default:
		return host.InvalidVReg, errors.Wrapf(ErrBackend, "arm64: unhandled cast kind %v", n.CastKind)
	}
}

func shiftAmountVReg(l *Arm64Lowerer, amount uint) host.VReg {
	v := l.FreshVReg(host.ClassInt)
	l.B.MoveImmediate(v, uint64(amount))
	return v
}

func (l *Arm64Lowerer) materializeCSel(n *ir.CSel) (host.VReg, error) {
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
	l.B.Cmp(cond, arm64.ZeroVReg())
	dst := l.FreshVReg(classOf(n.Result.Type()))
	l.B.CSel(dst, t, f, host.CondNE)
	return dst, nil
}

func (l *Arm64Lowerer) materializeShift(n *ir.BitShift) (host.VReg, error) {
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
		l.B.Lsl(dst, in, amount)
	case ir.ShiftLSR:
		l.B.Lsr(dst, in, amount)
	case ir.ShiftASR:
		l.B.Asr(dst, in, amount)
	}
	return dst, nil
}

func (l *Arm64Lowerer) materializeBitExtract(n *ir.BitExtract) (host.VReg, error) {
	from, err := l.materialize(n.From)
	if err != nil {
		return host.InvalidVReg, err
	}
	dst := l.FreshVReg(host.ClassInt)
	l.B.Emit(host.NewInstruction("ubfx").
		WithDef(host.RegOperand(dst)).
		WithUse(host.RegOperand(from)).
		WithUse(host.ImmOperand(int64(n.Offset))).
		WithUse(host.ImmOperand(int64(n.Length))))
	return dst, nil
}

func (l *Arm64Lowerer) materializeBitInsert(n *ir.BitInsert) (host.VReg, error) {
	input, err := l.materialize(n.Input)
	if err != nil {
		return host.InvalidVReg, err
	}
	bits, err := l.materialize(n.Bits)
	if err != nil {
		return host.InvalidVReg, err
	}
	// BFI reads its destination: copy the untouched input in first, then
	// overlay the field. dst appears as both def and use.
	dst := l.FreshVReg(host.ClassInt)
	l.B.Mov(dst, input)
	l.B.Emit(host.NewInstruction("bfi").
		WithDef(host.RegOperand(dst)).
		WithUse(host.RegOperand(dst)).
		WithUse(host.RegOperand(bits)).
		WithUse(host.ImmOperand(int64(n.To))).
		WithUse(host.ImmOperand(int64(n.Length))).
		MarkKeep())
	return dst, nil
}

// laneBytes returns a vector's element size in bytes, defaulting to 8-byte
// (64-bit) lanes when the port is not actually a vector type (bitcast views
// of scalar 128-bit state).
func laneBytes(t ir.Type) int64 {
	if elem, ok := t.ElementType(); ok {
		return int64(elem.Width() / 8)
	}
	return 8
}

// materializeVectorExtract reads one lane out of a V register: UMOV into a
// general register for integer lanes, a scalar DUP for float lanes (the
// extracted element stays in the float file so scalar SSE math follows
// without a cross-file move).
func (l *Arm64Lowerer) materializeVectorExtract(n *ir.VectorExtract) (host.VReg, error) {
	vec, err := l.materialize(n.V)
	if err != nil {
		return host.InvalidVReg, err
	}
	es := laneBytes(n.V.Type())
	if n.Result.Type().IsFloat() {
		dst := l.FreshVReg(host.ClassFloat)
		l.B.Emit(host.NewInstruction("dup_el").
			WithDef(host.RegOperand(dst)).
			WithUse(host.RegOperand(vec)).
			WithUse(host.ImmOperand(int64(n.Index))).
			WithUse(host.ImmOperand(es)))
		return dst, nil
	}
	dst := l.FreshVReg(host.ClassInt)
	l.B.Emit(host.NewInstruction("umov").
		WithDef(host.RegOperand(dst)).
		WithUse(host.RegOperand(vec)).
		WithUse(host.ImmOperand(int64(n.Index))).
		WithUse(host.ImmOperand(es)))
	return dst, nil
}

// materializeVectorInsert copies the source vector and overwrites one lane:
// INS from a general register for integer values, INS (element) from lane 0
// of the value's float register otherwise. The copy keeps the node pure —
// the input vector's vreg is left untouched for its other consumers.
func (l *Arm64Lowerer) materializeVectorInsert(n *ir.VectorInsert) (host.VReg, error) {
	vec, err := l.materialize(n.V)
	if err != nil {
		return host.InvalidVReg, err
	}
	val, err := l.materialize(n.Value)
	if err != nil {
		return host.InvalidVReg, err
	}
	es := laneBytes(n.V.Type())
	dst := l.FreshVReg(host.ClassFloat)
	l.B.Emit(host.NewInstruction("movv").
		WithDef(host.RegOperand(dst)).
		WithUse(host.RegOperand(vec)))
	if n.Value.Type().IsFloat() {
		l.B.Emit(host.NewInstruction("ins_el").
			WithDef(host.RegOperand(dst)).
			WithUse(host.RegOperand(dst)).
			WithUse(host.RegOperand(val)).
			WithUse(host.ImmOperand(int64(n.Index))).
			WithUse(host.ImmOperand(0)).
			WithUse(host.ImmOperand(es)).
			MarkKeep())
	} else {
		l.B.Emit(host.NewInstruction("ins").
			WithDef(host.RegOperand(dst)).
			WithUse(host.RegOperand(dst)).
			WithUse(host.RegOperand(val)).
			WithUse(host.ImmOperand(int64(n.Index))).
			WithUse(host.ImmOperand(es)).
			MarkKeep())
	}
	return dst, nil
}

func (l *Arm64Lowerer) materializeAtomic(n ir.Node) (host.VReg, error) {
	switch a := n.(type) {
	case *ir.AtomicBinary:
		addr, err := l.materialize(a.Addr)
		if err != nil {
			return host.InvalidVReg, err
		}
		operand, err := l.materialize(a.Operand)
		if err != nil {
			return host.InvalidVReg, err
		}
		switch a.Op {
		case ir.AtomicAnd:
			// LDCLR clears the set bits of its operand: AND via the
			// complement.
			inverted := l.FreshVReg(host.ClassInt)
			l.B.Mvn(inverted, operand)
			operand = inverted
		case ir.AtomicSub:
			// No LDSUB form: add the negation.
			negated := l.FreshVReg(host.ClassInt)
			l.B.Sub(negated, arm64.ZeroVReg(), operand)
			operand = negated
		}
		dst := l.FreshVReg(host.ClassInt)
		mnem := atomicMnemonic(a.Op)
		l.B.Emit(host.NewInstruction(mnem).
			WithDef(host.RegOperand(dst)).
			WithUse(host.MemOperandOf(host.MemOperand{Base: addr})).
			WithUse(host.RegOperand(operand)).
			MarkKeep())
		return dst, nil
	case *ir.AtomicTernary:
		addr, err := l.materialize(a.Addr)
		if err != nil {
			return host.InvalidVReg, err
		}
		expected, err := l.materialize(a.Expected)
		if err != nil {
			return host.InvalidVReg, err
		}
		newVal, err := l.materialize(a.New)
		if err != nil {
			return host.InvalidVReg, err
		}
		// CASAL's Rs both supplies the compare value and receives the
		// observed one: stage expected into dst, which doubles as use and
		// def.
		dst := l.FreshVReg(host.ClassInt)
		l.B.Mov(dst, expected)
		l.B.Emit(host.NewInstruction("casal").
			WithDef(host.RegOperand(dst)).
			WithUse(host.RegOperand(dst)).
			WithUse(host.RegOperand(newVal)).
			WithUse(host.MemOperandOf(host.MemOperand{Base: addr})).
			MarkKeep())
		return dst, nil
	default:
		return host.InvalidVReg, errors.Wrapf(ErrBackend, "arm64: unhandled atomic node %T", n)
	}
}

func atomicMnemonic(op ir.AtomicBinaryOp) string {
	switch op {
	case ir.AtomicAdd, ir.AtomicSub:
		return "ldaddal"
	case ir.AtomicAnd:
		return "ldclral" // AArch64 LDCLR clears set bits: translator complements the operand.
	case ir.AtomicOr:
		return "ldsetal"
	case ir.AtomicXor:
		return "ldeoral"
	case ir.AtomicXchg:
		return "swpal"
	case ir.AtomicXadd:
		return "ldaddal"
	default:
		return "ldaddal"
	}
}
