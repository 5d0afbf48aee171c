package ir

// UnaryOp enumerates pure unary arithmetic operations.
type UnaryOp uint8

const (
	OpNeg UnaryOp = iota
	OpNot
)

// BinaryOp enumerates pure binary arithmetic operations, including the
// comparisons exposed by the builder.
type BinaryOp uint8

const (
	OpAdd BinaryOp = iota
	OpSub
	OpMul
	OpDiv
	OpMod
	OpAnd
	OpOr
	OpXor
	OpCmpEq
	OpCmpNe
	OpCmpGt
)

// TernaryOp enumerates the carry-aware arithmetic operations (ADC/SBB).
type TernaryOp uint8

const (
	OpAdc TernaryOp = iota
	OpSbb
)

// ShiftKind enumerates the three bit_shift directions.
type ShiftKind uint8

const (
	ShiftLSL ShiftKind = iota
	ShiftLSR
	ShiftASR
)

// CastKind enumerates the cast families. Width/class legality for each kind
// is enforced by Builder, not by Cast itself.
type CastKind uint8

const (
	CastTrunc CastKind = iota
	CastZeroExtend
	CastSignExtend
	CastBitcast
	CastConvert
)

// RoundMode controls CastConvert's int<->float rounding behavior; it is
// meaningless for the other cast kinds.
type RoundMode uint8

const (
	RoundNone RoundMode = iota
	RoundNearest
	RoundTrunc
)

// Constant is a literal value of Typ. Integer literals are held in Bits
// (sign/zero-extended as appropriate for Typ's class); float literals use
// Float64 for f32/f64/f80 and are narrowed by the backend at materialization.
type Constant struct {
	base
	Typ     Type
	Bits    uint64
	Float64 float64
	IsFloat bool
	Result  *Port
}

func (n *Constant) Accept(v Visitor) { v.VisitConstant(n) }

// ReadReg reads the Src register slot as Typ.
type ReadReg struct {
	base
	Src    Reg
	Typ    Type
	Result *Port
}

func (n *ReadReg) Accept(v Visitor) { v.VisitReadReg(n) }

// ReadMem loads Typ from the effective address Addr.
type ReadMem struct {
	base
	Addr   *Port
	Typ    Type
	Result *Port
}

func (n *ReadMem) Accept(v Visitor) { v.VisitReadMem(n) }

// ReadPC produces the guest program counter as Typ (normally u64).
type ReadPC struct {
	base
	Typ    Type
	Result *Port
}

func (n *ReadPC) Accept(v Visitor) { v.VisitReadPC(n) }

// ReadLocal reads the value last written to Src.
type ReadLocal struct {
	base
	Src    Local
	Result *Port
}

func (n *ReadLocal) Accept(v Visitor) { v.VisitReadLocal(n) }

// UnaryArith applies Op to In, exposing zero/negative flag ports only.
type UnaryArith struct {
	base
	flagPorts
	Op     UnaryOp
	In     *Port
	Result *Port
}

func (n *UnaryArith) Accept(v Visitor) { v.VisitUnaryArith(n) }

// BinaryArith applies Op to Lhs/Rhs, exposing all four flag ports.
type BinaryArith struct {
	base
	flagPorts
	Op     BinaryOp
	Lhs    *Port
	Rhs    *Port
	Result *Port
}

func (n *BinaryArith) Accept(v Visitor) { v.VisitBinaryArith(n) }

// TernaryArith implements ADC/SBB: A op B with CarryIn folded in.
type TernaryArith struct {
	base
	flagPorts
	Op       TernaryOp
	A        *Port
	B        *Port
	CarryIn  *Port
	Result   *Port
}

func (n *TernaryArith) Accept(v Visitor) { v.VisitTernaryArith(n) }

// Cast converts In to OutType per CastKind (and Round, for CastConvert).
type Cast struct {
	base
	CastKind CastKind
	Round    RoundMode
	In       *Port
	OutType  Type
	Result   *Port
}

func (n *Cast) Accept(v Visitor) { v.VisitCast(n) }

// CSel selects True or False depending on Cond (a u1 value).
type CSel struct {
	base
	Cond   *Port
	True   *Port
	False  *Port
	Result *Port
}

func (n *CSel) Accept(v Visitor) { v.VisitCSel(n) }

// BitShift shifts In by Amount (a separate port whose width is independent
// of In's) in the direction given by ShiftKind.
type BitShift struct {
	base
	flagPorts
	ShiftKind ShiftKind
	In        *Port
	Amount    *Port
	Result    *Port
}

func (n *BitShift) Accept(v Visitor) { v.VisitBitShift(n) }

// BitExtract reads Length bits of From starting at bit Offset, zero-extended
// to the result type. Used both directly (e.g. the PSHUFD/PSHUFB control
// fields in the shuffle translator) and by the muldiv translator to split a double-width product into low/high halves.
type BitExtract struct {
	base
	From   *Port
	Offset uint16
	Length uint16
	Result *Port
}

func (n *BitExtract) Accept(v Visitor) { v.VisitBitExtract(n) }

// BitInsert overwrites Length bits of Input starting at bit To with the low
// Length bits of Bits, leaving the rest of Input unchanged. This is how the
// decoder expresses 8/16-bit partial-register writes against the full
// 64-bit GPR slot.
type BitInsert struct {
	base
	Input  *Port
	Bits   *Port
	To     uint16
	Length uint16
	Result *Port
}

func (n *BitInsert) Accept(v Visitor) { v.VisitBitInsert(n) }

// VectorExtract reads lane Index out of vector V.
type VectorExtract struct {
	base
	V      *Port
	Index  uint16
	Result *Port
}

func (n *VectorExtract) Accept(v Visitor) { v.VisitVectorExtract(n) }

// VectorInsert writes Value into lane Index of vector V, producing a new
// vector value (V itself is not mutated; IR value nodes are pure).
type VectorInsert struct {
	base
	V      *Port
	Index  uint16
	Value  *Port
	Result *Port
}

func (n *VectorInsert) Accept(v Visitor) { v.VisitVectorInsert(n) }
