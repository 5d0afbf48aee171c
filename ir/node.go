package ir

// NodeKind tags every concrete node type in the hierarchy. Dispatch is by
// switch/match on this tag (see Visitor), not by a deep class hierarchy,
// which keeps the debug, dot, and backend consumers off parallel
// subclass trees.
type NodeKind uint8

const (
	// Action nodes: observable side effects, kept in packet order.
	KindWriteReg NodeKind = iota
	KindWriteMem
	KindWritePC
	KindBr
	KindCondBr
	KindLabel
	KindInternalCall
	KindWriteLocal

	// Value nodes: pure, memoizable, produce one or more ports.
	KindConstant
	KindReadReg
	KindReadMem
	KindReadPC
	KindReadLocal
	KindUnaryArith
	KindBinaryArith
	KindTernaryArith
	KindCast
	KindCSel
	KindBitShift
	KindBitExtract
	KindBitInsert
	KindVectorExtract
	KindVectorInsert

	// Atomic nodes: unary/binary/ternary atomic read-modify-write.
	KindAtomicUnary
	KindAtomicBinary
	KindAtomicTernary
)

var nodeKindNames = [...]string{
	KindWriteReg:      "write_reg",
	KindWriteMem:      "write_mem",
	KindWritePC:       "write_pc",
	KindBr:            "br",
	KindCondBr:        "cond_br",
	KindLabel:         "label",
	KindInternalCall:  "internal_call",
	KindWriteLocal:    "write_local",
	KindConstant:      "constant",
	KindReadReg:       "read_reg",
	KindReadMem:       "read_mem",
	KindReadPC:        "read_pc",
	KindReadLocal:     "read_local",
	KindUnaryArith:    "unary_arith",
	KindBinaryArith:   "binary_arith",
	KindTernaryArith:  "ternary_arith",
	KindCast:          "cast",
	KindCSel:          "csel",
	KindBitShift:      "bit_shift",
	KindBitExtract:    "bit_extract",
	KindBitInsert:     "bit_insert",
	KindVectorExtract: "vector_extract",
	KindVectorInsert:  "vector_insert",
	KindAtomicUnary:   "atomic_unary",
	KindAtomicBinary:  "atomic_binary",
	KindAtomicTernary: "atomic_ternary",
}

func (k NodeKind) String() string {
	if int(k) < len(nodeKindNames) {
		return nodeKindNames[k]
	}
	return "unknown_node"
}

// NodeID uniquely identifies a node within its owning chunk, in allocation
// order. It is used by debug dump and the dot-graph generator; it carries no
// meaning outside of one chunk.
type NodeID uint32

// Node is the shared base of every IR node. Its only universal contract is
// Accept, which must invoke the most-specific-kind callback on the given
// Visitor.
type Node interface {
	ID() NodeID
	Kind() NodeKind
	Accept(v Visitor)
}

// IsAction reports whether n is an action node (has a place in packet
// order) as opposed to a value or atomic node.
func IsAction(n Node) bool {
	switch n.Kind() {
	case KindWriteReg, KindWriteMem, KindWritePC, KindBr, KindCondBr, KindLabel, KindInternalCall, KindWriteLocal:
		return true
	default:
		return false
	}
}

// base is embedded by every concrete node type and supplies ID/Kind.
type base struct {
	id   NodeID
	kind NodeKind
}

func (b *base) ID() NodeID     { return b.id }
func (b *base) Kind() NodeKind { return b.kind }

// flagPorts is embedded by arithmetic nodes that expose the four companion
// flag ports computed lazily by the backend from the primary result.
// Unary arithmetic nodes only populate zero/negative.
type flagPorts struct {
	zero, negative, overflow, carry *Port
}

func (f *flagPorts) Zero() *Port     { return f.zero }
func (f *flagPorts) Negative() *Port { return f.negative }
func (f *flagPorts) Overflow() *Port { return f.overflow }
func (f *flagPorts) Carry() *Port    { return f.carry }
