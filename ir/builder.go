package ir

import "github.com/pkg/errors"

// Builder is the arena-owning factory that constructs nodes for the current
// chunk: action nodes may only be appended between BeginPacket/EndPacket,
// and every constructed node carries a type compatible with its declared
// result.
//
// Value constructors return either the fresh node (whose Result field is its
// primary *Port) or that *Port directly, so callers can chain construction:
//
//	sum, _ := b.Add(lhs, rhs)
//	b.WriteReg(rax, sum.Result)
type Builder struct {
	chunk *Chunk
	cur   *Packet
}

// NewBuilder returns an empty Builder with no current chunk.
func NewBuilder() *Builder { return &Builder{} }

// BeginChunk starts a new chunk and makes it current.
func (b *Builder) BeginChunk(name string) *Chunk {
	b.chunk = NewChunk(name)
	return b.chunk
}

// EndChunk finalizes and returns the current chunk.
func (b *Builder) EndChunk() *Chunk {
	c := b.chunk
	b.chunk = nil
	return c
}

// Chunk returns the chunk currently under construction, or nil.
func (b *Builder) Chunk() *Chunk { return b.chunk }

// BeginPacket opens a new packet for the instruction at address, recording
// disasm for debug output.
func (b *Builder) BeginPacket(address uint64, disasm string) error {
	if b.chunk == nil {
		return errors.Wrap(ErrNoCurrentPacket, "begin_packet: no current chunk")
	}
	b.cur = &Packet{Address: address, Disasm: disasm}
	return nil
}

// EndPacket closes the current packet, appends it to the chunk, and reports
// whether it ended the current translation block: true iff the packet
// contains a write_pc action.
func (b *Builder) EndPacket() (PacketResult, error) {
	if b.cur == nil {
		return PacketNormal, errors.Wrap(ErrNoCurrentPacket, "end_packet")
	}
	p := b.cur
	result := PacketNormal
	for _, a := range p.actions {
		if wp, ok := a.(*WritePC); ok && !wp.isFallthroughAdd() {
			result = PacketEndOfBlock
			break
		}
	}
	p.result = result
	b.chunk.packets = append(b.chunk.packets, p)
	b.cur = nil
	return result, nil
}

func (wp *WritePC) isFallthroughAdd() bool {
	// A write_pc is only ever constructed for genuine control transfers in
	// this builder (straight-line advance is implicit in the decode loop),
	// so every write_pc ends its block.
	return false
}

func (b *Builder) requirePacket() error {
	if b.cur == nil {
		return errors.Wrap(ErrNoCurrentPacket, "no packet open")
	}
	return nil
}

func (b *Builder) appendAction(n Node) {
	b.cur.appendAction(n)
}

func (b *Builder) nextID() NodeID {
	return b.chunk.allocID()
}

// ---- constants ----

func (b *Builder) constant(typ Type, bits uint64) *Constant {
	n := &Constant{base: base{id: b.nextID(), kind: KindConstant}, Typ: typ, Bits: bits}
	n.Result = newPort(n, PortConstant, typ)
	return n
}

func (b *Builder) ConstU8(v uint8) (*Port, error)   { return b.constant(U8, uint64(v)).Result, nil }
func (b *Builder) ConstU16(v uint16) (*Port, error) { return b.constant(U16, uint64(v)).Result, nil }
func (b *Builder) ConstU32(v uint32) (*Port, error) { return b.constant(U32, uint64(v)).Result, nil }
func (b *Builder) ConstU64(v uint64) (*Port, error) { return b.constant(U64, v).Result, nil }

// ConstInt builds a typed integer constant of any recognized width.
func (b *Builder) ConstInt(typ Type, bits uint64) (*Port, error) {
	if !typ.IsInt() {
		return nil, errors.Wrapf(ErrTypeMismatch, "ConstInt: %s is not an integer type", typ)
	}
	return b.constant(typ, bits).Result, nil
}

// ConstF32 builds an f32 constant.
func (b *Builder) ConstF32(v float32) (*Port, error) {
	n := &Constant{base: base{id: b.nextID(), kind: KindConstant}, Typ: F32, Float64: float64(v), IsFloat: true}
	n.Result = newPort(n, PortConstant, F32)
	return n.Result, nil
}

// ConstF64 builds an f64 constant.
func (b *Builder) ConstF64(v float64) (*Port, error) {
	n := &Constant{base: base{id: b.nextID(), kind: KindConstant}, Typ: F64, Float64: v, IsFloat: true}
	n.Result = newPort(n, PortConstant, F64)
	return n.Result, nil
}

// ---- registers & memory ----

// ReadReg reads register src as typ.
func (b *Builder) ReadReg(src Reg, typ Type) (*Port, error) {
	n := &ReadReg{base: base{id: b.nextID(), kind: KindReadReg}, Src: src, Typ: typ}
	n.Result = newPort(n, PortValue, typ)
	return n.Result, nil
}

// WriteReg appends a write_reg action storing value into dest.
func (b *Builder) WriteReg(dest Reg, value *Port) error {
	if err := b.requirePacket(); err != nil {
		return err
	}
	n := &WriteReg{base: base{id: b.nextID(), kind: KindWriteReg}, Dest: dest, Value: value}
	b.appendAction(n)
	return nil
}

// ReadMem loads typ from the effective address addr.
func (b *Builder) ReadMem(addr *Port, typ Type) (*Port, error) {
	n := &ReadMem{base: base{id: b.nextID(), kind: KindReadMem}, Addr: addr, Typ: typ}
	n.Result = newPort(n, PortValue, typ)
	return n.Result, nil
}

// WriteMem appends a write_mem action storing value at addr.
func (b *Builder) WriteMem(addr *Port, value *Port) error {
	if err := b.requirePacket(); err != nil {
		return err
	}
	n := &WriteMem{base: base{id: b.nextID(), kind: KindWriteMem}, Addr: addr, Value: value}
	b.appendAction(n)
	return nil
}

// ReadPC produces the guest program counter.
func (b *Builder) ReadPC(typ Type) (*Port, error) {
	n := &ReadPC{base: base{id: b.nextID(), kind: KindReadPC}, Typ: typ}
	n.Result = newPort(n, PortValue, typ)
	return n.Result, nil
}

// WritePC appends a write_pc action redirecting control flow to value.
func (b *Builder) WritePC(value *Port, kind BrType) error {
	if err := b.requirePacket(); err != nil {
		return err
	}
	if kind == BrCSel {
		if _, ok := value.Node().(*CSel); !ok {
			return errors.Wrapf(ErrTypeMismatch, "WritePC: br_type=csel requires a csel-producing value, got %T", value.Node())
		}
	}
	n := &WritePC{base: base{id: b.nextID(), kind: KindWritePC}, Value: value, BrKind: kind}
	b.appendAction(n)
	return nil
}

// ---- pure arithmetic ----

func (b *Builder) binArith(op BinaryOp, lhs, rhs *Port) (*BinaryArith, error) {
	if lhs.Type() != rhs.Type() {
		return nil, errors.Wrapf(ErrTypeMismatch, "%v: operand types differ (%s vs %s)", op, lhs.Type(), rhs.Type())
	}
	resultType := lhs.Type()
	if op == OpCmpEq || op == OpCmpNe || op == OpCmpGt {
		resultType = U1
	}
	n := &BinaryArith{base: base{id: b.nextID(), kind: KindBinaryArith}, Op: op, Lhs: lhs, Rhs: rhs}
	n.Result = newPort(n, PortValue, resultType)
	n.zero = newPort(n, PortZero, U1)
	n.negative = newPort(n, PortNegative, U1)
	n.overflow = newPort(n, PortOverflow, U1)
	n.carry = newPort(n, PortCarry, U1)
	return n, nil
}

func (b *Builder) Add(lhs, rhs *Port) (*BinaryArith, error)   { return b.binArith(OpAdd, lhs, rhs) }
func (b *Builder) Sub(lhs, rhs *Port) (*BinaryArith, error)   { return b.binArith(OpSub, lhs, rhs) }
func (b *Builder) Mul(lhs, rhs *Port) (*BinaryArith, error)   { return b.binArith(OpMul, lhs, rhs) }
func (b *Builder) Div(lhs, rhs *Port) (*BinaryArith, error)   { return b.binArith(OpDiv, lhs, rhs) }
func (b *Builder) Mod(lhs, rhs *Port) (*BinaryArith, error)   { return b.binArith(OpMod, lhs, rhs) }
func (b *Builder) Band(lhs, rhs *Port) (*BinaryArith, error)  { return b.binArith(OpAnd, lhs, rhs) }
func (b *Builder) Bor(lhs, rhs *Port) (*BinaryArith, error)   { return b.binArith(OpOr, lhs, rhs) }
func (b *Builder) Bxor(lhs, rhs *Port) (*BinaryArith, error)  { return b.binArith(OpXor, lhs, rhs) }
func (b *Builder) CmpEq(lhs, rhs *Port) (*BinaryArith, error) { return b.binArith(OpCmpEq, lhs, rhs) }
func (b *Builder) CmpNe(lhs, rhs *Port) (*BinaryArith, error) { return b.binArith(OpCmpNe, lhs, rhs) }
func (b *Builder) CmpGt(lhs, rhs *Port) (*BinaryArith, error) { return b.binArith(OpCmpGt, lhs, rhs) }

// Bnot computes the one's complement of in.
func (b *Builder) Bnot(in *Port) (*UnaryArith, error) { return b.unaryArith(OpNot, in) }

// Neg computes the two's complement negation of in.
func (b *Builder) Neg(in *Port) (*UnaryArith, error) { return b.unaryArith(OpNeg, in) }

func (b *Builder) unaryArith(op UnaryOp, in *Port) (*UnaryArith, error) {
	n := &UnaryArith{base: base{id: b.nextID(), kind: KindUnaryArith}, Op: op, In: in}
	n.Result = newPort(n, PortValue, in.Type())
	n.zero = newPort(n, PortZero, U1)
	n.negative = newPort(n, PortNegative, U1)
	return n, nil
}

func (b *Builder) ternaryArith(op TernaryOp, a, bb, carryIn *Port) (*TernaryArith, error) {
	if a.Type() != bb.Type() {
		return nil, errors.Wrapf(ErrTypeMismatch, "%v: operand types differ (%s vs %s)", op, a.Type(), bb.Type())
	}
	if carryIn.Type() != U1 {
		return nil, errors.Wrapf(ErrTypeMismatch, "%v: carry-in must be u1, got %s", op, carryIn.Type())
	}
	n := &TernaryArith{base: base{id: b.nextID(), kind: KindTernaryArith}, Op: op, A: a, B: bb, CarryIn: carryIn}
	n.Result = newPort(n, PortValue, a.Type())
	n.zero = newPort(n, PortZero, U1)
	n.negative = newPort(n, PortNegative, U1)
	n.overflow = newPort(n, PortOverflow, U1)
	n.carry = newPort(n, PortCarry, U1)
	return n, nil
}

// Adc computes a + b + carryIn.
func (b *Builder) Adc(a, bb, carryIn *Port) (*TernaryArith, error) {
	return b.ternaryArith(OpAdc, a, bb, carryIn)
}

// Sbb computes a - b - carryIn.
func (b *Builder) Sbb(a, bb, carryIn *Port) (*TernaryArith, error) {
	return b.ternaryArith(OpSbb, a, bb, carryIn)
}

// ---- shifts & bit ops ----

func (b *Builder) shift(kind ShiftKind, in, amount *Port) (*BitShift, error) {
	n := &BitShift{base: base{id: b.nextID(), kind: KindBitShift}, ShiftKind: kind, In: in, Amount: amount}
	n.Result = newPort(n, PortValue, in.Type())
	n.zero = newPort(n, PortZero, U1)
	n.negative = newPort(n, PortNegative, U1)
	n.overflow = newPort(n, PortOverflow, U1)
	n.carry = newPort(n, PortCarry, U1)
	return n, nil
}

func (b *Builder) Lsl(in, amount *Port) (*BitShift, error) { return b.shift(ShiftLSL, in, amount) }
func (b *Builder) Lsr(in, amount *Port) (*BitShift, error) { return b.shift(ShiftLSR, in, amount) }
func (b *Builder) Asr(in, amount *Port) (*BitShift, error) { return b.shift(ShiftASR, in, amount) }

// BitExtractBits reads length bits of from starting at bit offset,
// zero-extended into a same-width-or-narrower unsigned result.
func (b *Builder) BitExtractBits(from *Port, offset, length uint16) (*Port, error) {
	resTyp, err := NewInt(ClassUnsignedInt, nextIntWidth(length))
	if err != nil {
		return nil, err
	}
	n := &BitExtract{base: base{id: b.nextID(), kind: KindBitExtract}, From: from, Offset: offset, Length: length}
	n.Result = newPort(n, PortValue, resTyp)
	return n.Result, nil
}

// BitInsertBits overwrites length bits of input at bit offset to with the
// low bits of bits, producing a new value of input's type.
func (b *Builder) BitInsertBits(input, bits *Port, to, length uint16) (*Port, error) {
	n := &BitInsert{base: base{id: b.nextID(), kind: KindBitInsert}, Input: input, Bits: bits, To: to, Length: length}
	n.Result = newPort(n, PortValue, input.Type())
	return n.Result, nil
}

func nextIntWidth(minBits uint16) uint16 {
	for _, w := range []uint16{1, 8, 16, 32, 64, 128, 256, 512} {
		if w >= minBits {
			return w
		}
	}
	return 512
}

// ---- casts ----

func (b *Builder) cast(kind CastKind, round RoundMode, in *Port, out Type) (*Port, error) {
	// Same width, same class: zx/sx/trunc are identities and short-circuit
	// without allocating a node.
	if kind != CastConvert && kind != CastBitcast &&
		out.Width() == in.Type().Width() && out.Class() == in.Type().Class() {
		return in, nil
	}
	switch kind {
	case CastTrunc:
		if out.Width() >= in.Type().Width() {
			return nil, errors.Wrapf(ErrTypeMismatch, "trunc: out width %d must be < in width %d", out.Width(), in.Type().Width())
		}
	case CastZeroExtend, CastSignExtend:
		if out.Width() <= in.Type().Width() {
			return nil, errors.Wrapf(ErrTypeMismatch, "zx/sx: out width %d must be > in width %d", out.Width(), in.Type().Width())
		}
	case CastBitcast:
		if out.Width() != in.Type().Width() {
			return nil, errors.Wrapf(ErrTypeMismatch, "bitcast: width must be preserved (%d != %d)", out.Width(), in.Type().Width())
		}
	}
	n := &Cast{base: base{id: b.nextID(), kind: KindCast}, CastKind: kind, Round: round, In: in, OutType: out}
	n.Result = newPort(n, PortValue, out)
	return n.Result, nil
}

// Zx zero-extends in to out.
func (b *Builder) Zx(in *Port, out Type) (*Port, error) { return b.cast(CastZeroExtend, RoundNone, in, out) }

// Sx sign-extends in to out.
func (b *Builder) Sx(in *Port, out Type) (*Port, error) { return b.cast(CastSignExtend, RoundNone, in, out) }

// Trunc narrows in to out.
func (b *Builder) Trunc(in *Port, out Type) (*Port, error) { return b.cast(CastTrunc, RoundNone, in, out) }

// Bitcast reinterprets in as out without changing bit pattern or width.
func (b *Builder) Bitcast(in *Port, out Type) (*Port, error) { return b.cast(CastBitcast, RoundNone, in, out) }

// Convert changes class (int<->float) using round to control rounding.
func (b *Builder) Convert(in *Port, out Type, round RoundMode) (*Port, error) {
	return b.cast(CastConvert, round, in, out)
}

// ---- selection ----

// CSelect builds a csel(cond, t, f) value node.
func (b *Builder) CSelect(cond, t, f *Port) (*CSel, error) {
	if cond.Type() != U1 {
		return nil, errors.Wrapf(ErrTypeMismatch, "csel: cond must be u1, got %s", cond.Type())
	}
	if t.Type() != f.Type() {
		return nil, errors.Wrapf(ErrTypeMismatch, "csel: branch types differ (%s vs %s)", t.Type(), f.Type())
	}
	n := &CSel{base: base{id: b.nextID(), kind: KindCSel}, Cond: cond, True: t, False: f}
	n.Result = newPort(n, PortValue, t.Type())
	return n, nil
}

// ---- vector ----

// VecExtract reads lane index out of v.
func (b *Builder) VecExtract(v *Port, index uint16) (*Port, error) {
	elem, ok := v.Type().ElementType()
	if !ok {
		return nil, errors.Wrapf(ErrTypeMismatch, "vector_extract: %s is not a vector type", v.Type())
	}
	n := &VectorExtract{base: base{id: b.nextID(), kind: KindVectorExtract}, V: v, Index: index}
	n.Result = newPort(n, PortValue, elem)
	return n.Result, nil
}

// VecInsert writes value into lane index of v, returning a new vector.
func (b *Builder) VecInsert(v *Port, index uint16, value *Port) (*Port, error) {
	elem, ok := v.Type().ElementType()
	if !ok {
		return nil, errors.Wrapf(ErrTypeMismatch, "vector_insert: %s is not a vector type", v.Type())
	}
	if elem != value.Type() {
		return nil, errors.Wrapf(ErrTypeMismatch, "vector_insert: lane type %s != value type %s", elem, value.Type())
	}
	n := &VectorInsert{base: base{id: b.nextID(), kind: KindVectorInsert}, V: v, Index: index, Value: value}
	n.Result = newPort(n, PortValue, v.Type())
	return n.Result, nil
}

// ---- control ----

// Label allocates a new intra-chunk control target.
func (b *Builder) Label(name string) *LabelNode {
	n := &LabelNode{base: base{id: b.nextID(), kind: KindLabel}, Name: name}
	return n
}

// BrTo appends an unconditional jump to target.
func (b *Builder) BrTo(target *LabelNode) error {
	if err := b.requirePacket(); err != nil {
		return err
	}
	n := &Br{base: base{id: b.nextID(), kind: KindBr}, Target: target}
	b.appendAction(n)
	return nil
}

// CondBrTo appends a conditional jump to target, taken iff cond is non-zero.
func (b *Builder) CondBrTo(cond *Port, target *LabelNode) error {
	if err := b.requirePacket(); err != nil {
		return err
	}
	if cond.Type() != U1 {
		return errors.Wrapf(ErrTypeMismatch, "cond_br: cond must be u1, got %s", cond.Type())
	}
	n := &CondBr{base: base{id: b.nextID(), kind: KindCondBr}, Cond: cond, Target: target}
	b.appendAction(n)
	return nil
}

// PlaceLabel appends lbl (previously allocated via Label) as an action at
// its intra-packet position, marking a branch target.
func (b *Builder) PlaceLabel(lbl *LabelNode) error {
	if err := b.requirePacket(); err != nil {
		return err
	}
	b.appendAction(lbl)
	return nil
}

// ---- locals ----

// AllocLocal allocates a new SSA-friendly stack slot of typ.
func (b *Builder) AllocLocal(typ Type) Local {
	l := Local{id: uint32(len(b.chunk.locals)), typ: typ}
	b.chunk.locals = append(b.chunk.locals, l)
	return l
}

// ReadLocalVar reads the current value of a local.
func (b *Builder) ReadLocalVar(src Local) (*Port, error) {
	n := &ReadLocal{base: base{id: b.nextID(), kind: KindReadLocal}, Src: src}
	n.Result = newPort(n, PortValue, src.Type())
	return n.Result, nil
}

// WriteLocalVar appends a write_local action.
func (b *Builder) WriteLocalVar(dest Local, value *Port) error {
	if err := b.requirePacket(); err != nil {
		return err
	}
	if value.Type() != dest.Type() {
		return errors.Wrapf(ErrTypeMismatch, "write_local: value type %s != local type %s", value.Type(), dest.Type())
	}
	n := &WriteLocal{base: base{id: b.nextID(), kind: KindWriteLocal}, Dest: dest, Value: value}
	b.appendAction(n)
	return nil
}

// ---- internal calls ----

// InternalCallTo appends a call to the named helper routine with args.
func (b *Builder) InternalCallTo(name string, args ...*Port) error {
	if err := b.requirePacket(); err != nil {
		return err
	}
	n := &InternalCall{base: base{id: b.nextID(), kind: KindInternalCall}, FuncName: name, Args: args}
	b.appendAction(n)
	return nil
}

// ---- atomics ----

// AtomicUnaryRMW atomically applies op to the memory at addr, returning the
// prior value.
func (b *Builder) AtomicUnaryRMW(op AtomicUnaryOp, addr *Port, typ Type) (*Port, error) {
	n := &AtomicUnary{base: base{id: b.nextID(), kind: KindAtomicUnary}, Op: op, Addr: addr, Typ: typ}
	n.Result = newPort(n, PortValue, typ)
	return n.Result, nil
}

// AtomicBinaryRMW atomically combines the memory at addr with operand,
// returning the prior value.
func (b *Builder) AtomicBinaryRMW(op AtomicBinaryOp, addr, operand *Port) (*Port, error) {
	n := &AtomicBinary{base: base{id: b.nextID(), kind: KindAtomicBinary}, Op: op, Addr: addr, Operand: operand}
	n.Result = newPort(n, PortValue, operand.Type())
	return n.Result, nil
}

// AtomicCompareExchange implements CMPXCHG against addr: compares the
// memory's current value with expected and, on match, stores newVal.
// Result is the memory's prior value; the zero flag port reflects success.
func (b *Builder) AtomicCompareExchange(addr, expected, newVal *Port) (*AtomicTernary, error) {
	if expected.Type() != newVal.Type() {
		return nil, errors.Wrapf(ErrTypeMismatch, "cmpxchg: expected type %s != new type %s", expected.Type(), newVal.Type())
	}
	n := &AtomicTernary{base: base{id: b.nextID(), kind: KindAtomicTernary}, Op: AtomicCmpxchg, Addr: addr, Expected: expected, New: newVal}
	n.Result = newPort(n, PortValue, expected.Type())
	n.zero = newPort(n, PortZero, U1)
	return n, nil
}
