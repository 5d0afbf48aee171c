package lift_test

import (
	"math/big"
	"testing"

	"github.com/hexlift/hexlift/ir"
)

// machine interprets a lifted chunk's IR directly, giving the translator
// tests an executable oracle without involving a host backend: each action
// applies its architectural effect to a CPU-state register map and a sparse
// byte-addressed memory. Pure value nodes are re-evaluated on every visit
// (so loops observe fresh register reads); atomic nodes are evaluated once
// and memoized, since one atomic node is one guest RMW however many ports
// reference it.
type machine struct {
	t       *testing.T
	regs    map[uint32]uint64
	mem     map[uint64]byte
	locals  map[uint32]*big.Int
	atomics map[ir.Node]*nodeState
	calls   []string
	pc      uint64
}

type nodeState struct {
	value          *big.Int
	zf, sf, cf, of uint64
}

func newMachine(t *testing.T) *machine {
	return &machine{
		t:       t,
		regs:    make(map[uint32]uint64),
		mem:     make(map[uint64]byte),
		locals:  make(map[uint32]*big.Int),
		atomics: make(map[ir.Node]*nodeState),
	}
}

func (m *machine) setReg(r ir.Reg, v uint64) { m.regs[r.Offset] = v }
func (m *machine) reg(r ir.Reg) uint64      { return m.regs[r.Offset] }

func (m *machine) writeMem(addr uint64, v *big.Int, bytes int) {
	u := new(big.Int).Set(v)
	for i := 0; i < bytes; i++ {
		m.mem[addr+uint64(i)] = byte(new(big.Int).Rsh(u, uint(8*i)).Uint64())
	}
}

func (m *machine) readMem(addr uint64, bytes int) *big.Int {
	out := new(big.Int)
	for i := bytes - 1; i >= 0; i-- {
		out.Lsh(out, 8)
		out.Or(out, big.NewInt(int64(m.mem[addr+uint64(i)])))
	}
	return out
}

func (m *machine) store64(addr, v uint64) {
	m.writeMem(addr, new(big.Int).SetUint64(v), 8)
}

func (m *machine) load64(addr uint64) uint64 {
	return m.readMem(addr, 8).Uint64()
}

func (m *machine) writeMemU32(addr uint64, v uint32) {
	m.writeMem(addr, new(big.Int).SetUint64(uint64(v)), 4)
}

// run executes every packet in order, honoring intra-packet labels and
// branches (the rep translator's loop shape).
func (m *machine) run(chunk *ir.Chunk) {
	steps := 0
	for _, p := range chunk.Packets() {
		m.pc = p.Address
		actions := p.Actions()
		labels := make(map[*ir.LabelNode]int)
		for i, a := range actions {
			if l, ok := a.(*ir.LabelNode); ok {
				labels[l] = i
			}
		}
		jump := func(target *ir.LabelNode) int {
			i, ok := labels[target]
			if !ok {
				m.t.Fatalf("interpreter: branch to unplaced label %q", target.Name)
			}
			return i
		}
		for i := 0; i < len(actions); i++ {
			steps++
			if steps > 100000 {
				m.t.Fatal("interpreter: step limit exceeded (runaway loop?)")
			}
			switch a := actions[i].(type) {
			case *ir.WriteReg:
				m.regs[a.Dest.Offset] = m.evalPort(a.Value).Uint64()
			case *ir.WriteMem:
				addr := m.evalPort(a.Addr).Uint64()
				m.writeMem(addr, m.evalPort(a.Value), int(a.Value.Type().Width())/8)
			case *ir.WritePC:
				m.regs[0] = m.evalPort(a.Value).Uint64()
			case *ir.LabelNode:
				// position marker only
			case *ir.Br:
				i = jump(a.Target)
			case *ir.CondBr:
				if m.evalPort(a.Cond).Sign() != 0 {
					i = jump(a.Target)
				}
			case *ir.InternalCall:
				m.calls = append(m.calls, a.FuncName)
			case *ir.WriteLocal:
				m.locals[a.Dest.ID()] = m.evalPort(a.Value)
			default:
				m.t.Fatalf("interpreter: unhandled action %T", a)
			}
		}
	}
}

func (m *machine) evalPort(p *ir.Port) *big.Int {
	st := m.evalNode(p.Node())
	switch p.Kind() {
	case ir.PortZero:
		return big.NewInt(int64(st.zf))
	case ir.PortNegative:
		return big.NewInt(int64(st.sf))
	case ir.PortCarry:
		return big.NewInt(int64(st.cf))
	case ir.PortOverflow:
		return big.NewInt(int64(st.of))
	default:
		return new(big.Int).Set(st.value)
	}
}

func (m *machine) evalNode(n ir.Node) *nodeState {
	switch n.Kind() {
	case ir.KindAtomicUnary, ir.KindAtomicBinary, ir.KindAtomicTernary:
		if st, ok := m.atomics[n]; ok {
			return st
		}
		st := m.evalFresh(n)
		m.atomics[n] = st
		return st
	}
	return m.evalFresh(n)
}

func pow2(w uint16) *big.Int {
	return new(big.Int).Lsh(big.NewInt(1), uint(w))
}

// umod reduces v into [0, 2^w), the canonical unsigned representation every
// evaluated value is kept in.
func umod(v *big.Int, w uint16) *big.Int {
	return new(big.Int).Mod(v, pow2(w))
}

// signed reinterprets an unsigned-canonical value as w-bit two's complement.
func signed(v *big.Int, w uint16) *big.Int {
	if w == 0 || v.Bit(int(w)-1) == 0 {
		return new(big.Int).Set(v)
	}
	return new(big.Int).Sub(v, pow2(w))
}

func boolBit(b bool) uint64 {
	if b {
		return 1
	}
	return 0
}

func (m *machine) setZN(st *nodeState, w uint16) {
	st.zf = boolBit(st.value.Sign() == 0)
	if w > 0 {
		st.sf = uint64(st.value.Bit(int(w) - 1))
	}
}

func (m *machine) evalFresh(n ir.Node) *nodeState {
	st := &nodeState{value: new(big.Int)}
	switch v := n.(type) {
	case *ir.Constant:
		if v.IsFloat {
			m.t.Fatalf("interpreter: float constants not supported by this oracle")
		}
		st.value = umod(new(big.Int).SetUint64(v.Bits), v.Typ.Width())
	case *ir.ReadReg:
		if v.Typ.Width() > 64 {
			m.t.Fatalf("interpreter: register read wider than 64 bits (%s)", v.Typ)
		}
		st.value = umod(new(big.Int).SetUint64(m.regs[v.Src.Offset]), v.Typ.Width())
	case *ir.ReadMem:
		addr := m.evalPort(v.Addr).Uint64()
		st.value = m.readMem(addr, int(v.Typ.Width())/8)
	case *ir.ReadPC:
		st.value = new(big.Int).SetUint64(m.pc)
	case *ir.ReadLocal:
		l, ok := m.locals[v.Src.ID()]
		if !ok {
			m.t.Fatalf("interpreter: read_local %d before any write", v.Src.ID())
		}
		st.value = new(big.Int).Set(l)
	case *ir.UnaryArith:
		m.evalUnary(st, v)
	case *ir.BinaryArith:
		m.evalBinary(st, v)
	case *ir.TernaryArith:
		m.evalTernary(st, v)
	case *ir.Cast:
		m.evalCast(st, v)
	case *ir.CSel:
		if m.evalPort(v.Cond).Sign() != 0 {
			st.value = m.evalPort(v.True)
		} else {
			st.value = m.evalPort(v.False)
		}
	case *ir.BitShift:
		m.evalShift(st, v)
	case *ir.BitExtract:
		from := m.evalPort(v.From)
		st.value = umod(new(big.Int).Rsh(from, uint(v.Offset)), v.Length)
	case *ir.BitInsert:
		m.evalBitInsert(st, v)
	case *ir.AtomicUnary:
		m.evalAtomicUnary(st, v)
	case *ir.AtomicBinary:
		m.evalAtomicBinary(st, v)
	case *ir.AtomicTernary:
		m.evalCmpxchg(st, v)
	default:
		m.t.Fatalf("interpreter: unhandled value node %T", n)
	}
	return st
}

func (m *machine) evalUnary(st *nodeState, n *ir.UnaryArith) {
	w := n.In.Type().Width()
	in := m.evalPort(n.In)
	switch n.Op {
	case ir.OpNeg:
		st.value = umod(new(big.Int).Neg(in), w)
	case ir.OpNot:
		st.value = new(big.Int).Sub(new(big.Int).Sub(pow2(w), big.NewInt(1)), in)
	}
	m.setZN(st, w)
}

func (m *machine) evalBinary(st *nodeState, n *ir.BinaryArith) {
	w := n.Lhs.Type().Width()
	a := m.evalPort(n.Lhs)
	b := m.evalPort(n.Rhs)
	sa, sb := signed(a, w), signed(b, w)
	switch n.Op {
	case ir.OpAdd:
		sum := new(big.Int).Add(a, b)
		st.value = umod(sum, w)
		st.cf = boolBit(sum.Cmp(pow2(w)) >= 0)
		sv := signed(st.value, w)
		st.of = boolBit((sa.Sign() >= 0) == (sb.Sign() >= 0) && (sv.Sign() >= 0) != (sa.Sign() >= 0))
	case ir.OpSub:
		st.value = umod(new(big.Int).Sub(a, b), w)
		st.cf = boolBit(a.Cmp(b) < 0)
		sv := signed(st.value, w)
		st.of = boolBit((sa.Sign() >= 0) != (sb.Sign() >= 0) && (sv.Sign() >= 0) != (sa.Sign() >= 0))
	case ir.OpMul:
		st.value = umod(new(big.Int).Mul(a, b), w)
	case ir.OpDiv:
		x, y := a, b
		if n.Lhs.Type().Class() == ir.ClassSignedInt {
			x, y = sa, sb
		}
		if y.Sign() == 0 {
			m.t.Fatal("interpreter: division by zero")
		}
		st.value = umod(new(big.Int).Quo(x, y), w)
	case ir.OpMod:
		x, y := a, b
		if n.Lhs.Type().Class() == ir.ClassSignedInt {
			x, y = sa, sb
		}
		if y.Sign() == 0 {
			m.t.Fatal("interpreter: division by zero")
		}
		st.value = umod(new(big.Int).Rem(x, y), w)
	case ir.OpAnd:
		st.value = new(big.Int).And(a, b)
	case ir.OpOr:
		st.value = new(big.Int).Or(a, b)
	case ir.OpXor:
		st.value = new(big.Int).Xor(a, b)
	case ir.OpCmpEq:
		st.value = big.NewInt(int64(boolBit(a.Cmp(b) == 0)))
	case ir.OpCmpNe:
		st.value = big.NewInt(int64(boolBit(a.Cmp(b) != 0)))
	case ir.OpCmpGt:
		st.value = big.NewInt(int64(boolBit(sa.Cmp(sb) > 0)))
	}
	m.setZN(st, w)
}

func (m *machine) evalTernary(st *nodeState, n *ir.TernaryArith) {
	w := n.A.Type().Width()
	a := m.evalPort(n.A)
	b := m.evalPort(n.B)
	c := m.evalPort(n.CarryIn)
	switch n.Op {
	case ir.OpAdc:
		sum := new(big.Int).Add(new(big.Int).Add(a, b), c)
		st.value = umod(sum, w)
		st.cf = boolBit(sum.Cmp(pow2(w)) >= 0)
	case ir.OpSbb:
		diff := new(big.Int).Sub(new(big.Int).Sub(a, b), c)
		st.value = umod(diff, w)
		st.cf = boolBit(diff.Sign() < 0)
	}
	sa := signed(a, w)
	sv := signed(st.value, w)
	sb := signed(b, w)
	if n.Op == ir.OpAdc {
		st.of = boolBit((sa.Sign() >= 0) == (sb.Sign() >= 0) && (sv.Sign() >= 0) != (sa.Sign() >= 0))
	} else {
		st.of = boolBit((sa.Sign() >= 0) != (sb.Sign() >= 0) && (sv.Sign() >= 0) != (sa.Sign() >= 0))
	}
	m.setZN(st, w)
}

func (m *machine) evalCast(st *nodeState, n *ir.Cast) {
	in := m.evalPort(n.In)
	inW := n.In.Type().Width()
	outW := n.OutType.Width()
	switch n.CastKind {
	case ir.CastTrunc, ir.CastZeroExtend, ir.CastBitcast:
		st.value = umod(in, outW)
	case ir.CastSignExtend:
		st.value = umod(signed(in, inW), outW)
	default:
		m.t.Fatalf("interpreter: cast kind %d not supported by this oracle", n.CastKind)
	}
}

func (m *machine) evalShift(st *nodeState, n *ir.BitShift) {
	w := n.In.Type().Width()
	in := m.evalPort(n.In)
	amt := uint(m.evalPort(n.Amount).Uint64())
	switch n.ShiftKind {
	case ir.ShiftLSL:
		st.value = umod(new(big.Int).Lsh(in, amt), w)
		if amt > 0 && amt <= uint(w) {
			st.cf = uint64(in.Bit(int(uint(w) - amt)))
		}
		st.of = st.cf ^ uint64(st.value.Bit(int(w)-1))
	case ir.ShiftLSR:
		st.value = new(big.Int).Rsh(in, amt)
		if amt > 0 {
			st.cf = uint64(in.Bit(int(amt) - 1))
		}
		st.of = uint64(in.Bit(int(w) - 1))
	case ir.ShiftASR:
		st.value = umod(new(big.Int).Rsh(signed(in, w), amt), w)
		if amt > 0 {
			st.cf = uint64(in.Bit(int(amt) - 1))
		}
	}
	m.setZN(st, w)
}

func (m *machine) evalBitInsert(st *nodeState, n *ir.BitInsert) {
	w := n.Input.Type().Width()
	input := m.evalPort(n.Input)
	bits := umod(m.evalPort(n.Bits), n.Length)
	fieldMask := new(big.Int).Lsh(new(big.Int).Sub(pow2(n.Length), big.NewInt(1)), uint(n.To))
	cleared := new(big.Int).AndNot(input, fieldMask)
	st.value = umod(cleared.Or(cleared, new(big.Int).Lsh(bits, uint(n.To))), w)
}

func (m *machine) evalAtomicUnary(st *nodeState, n *ir.AtomicUnary) {
	addr := m.evalPort(n.Addr).Uint64()
	bytes := int(n.Typ.Width()) / 8
	prior := m.readMem(addr, bytes)
	var next *big.Int
	switch n.Op {
	case ir.AtomicNot:
		next = new(big.Int).Sub(new(big.Int).Sub(pow2(n.Typ.Width()), big.NewInt(1)), prior)
	case ir.AtomicNeg:
		next = umod(new(big.Int).Neg(prior), n.Typ.Width())
	}
	m.writeMem(addr, next, bytes)
	st.value = prior
}

func (m *machine) evalAtomicBinary(st *nodeState, n *ir.AtomicBinary) {
	w := n.Operand.Type().Width()
	addr := m.evalPort(n.Addr).Uint64()
	operand := m.evalPort(n.Operand)
	bytes := int(w) / 8
	prior := m.readMem(addr, bytes)
	var next *big.Int
	switch n.Op {
	case ir.AtomicAdd, ir.AtomicXadd:
		next = umod(new(big.Int).Add(prior, operand), w)
	case ir.AtomicSub:
		next = umod(new(big.Int).Sub(prior, operand), w)
	case ir.AtomicAnd:
		next = new(big.Int).And(prior, operand)
	case ir.AtomicOr:
		next = new(big.Int).Or(prior, operand)
	case ir.AtomicXor:
		next = new(big.Int).Xor(prior, operand)
	case ir.AtomicXchg:
		next = new(big.Int).Set(operand)
	default:
		m.t.Fatalf("interpreter: unhandled atomic binary op %d", n.Op)
	}
	m.writeMem(addr, next, bytes)
	st.value = prior
}

func (m *machine) evalCmpxchg(st *nodeState, n *ir.AtomicTernary) {
	w := n.Expected.Type().Width()
	addr := m.evalPort(n.Addr).Uint64()
	expected := m.evalPort(n.Expected)
	newVal := m.evalPort(n.New)
	bytes := int(w) / 8
	prior := m.readMem(addr, bytes)
	if prior.Cmp(expected) == 0 {
		m.writeMem(addr, newVal, bytes)
		st.zf = 1
	}
	st.value = prior
}
