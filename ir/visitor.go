package ir

// Visitor is the node traversal contract. Each concrete
// node's Accept implementation calls
// exactly one of these methods, so a Visitor implementation never needs to
// re-derive a node's kind via a type switch.
//
// Embedding DefaultVisitor lets a consumer implement only the handful of
// callbacks it cares about, rather than re-implementing one method per node
// kind. In this module the debug text dump (debugdump.Dump) is the consumer
// that goes through Visitor; the dot-graph generator, the dead-flag
// optimizer and the backend lowering passes in xctx switch on concrete node
// types and do not use it.
type Visitor interface {
	VisitWriteReg(*WriteReg)
	VisitWriteMem(*WriteMem)
	VisitWritePC(*WritePC)
	VisitBr(*Br)
	VisitCondBr(*CondBr)
	VisitLabel(*LabelNode)
	VisitInternalCall(*InternalCall)
	VisitWriteLocal(*WriteLocal)

	VisitConstant(*Constant)
	VisitReadReg(*ReadReg)
	VisitReadMem(*ReadMem)
	VisitReadPC(*ReadPC)
	VisitReadLocal(*ReadLocal)
	VisitUnaryArith(*UnaryArith)
	VisitBinaryArith(*BinaryArith)
	VisitTernaryArith(*TernaryArith)
	VisitCast(*Cast)
	VisitCSel(*CSel)
	VisitBitShift(*BitShift)
	VisitBitExtract(*BitExtract)
	VisitBitInsert(*BitInsert)
	VisitVectorExtract(*VectorExtract)
	VisitVectorInsert(*VectorInsert)

	VisitAtomicUnary(*AtomicUnary)
	VisitAtomicBinary(*AtomicBinary)
	VisitAtomicTernary(*AtomicTernary)
}

// DefaultVisitor implements Visitor with no-op bodies. Embed it and override
// only the callbacks a given consumer needs.
type DefaultVisitor struct{}

func (DefaultVisitor) VisitWriteReg(*WriteReg)           {}
func (DefaultVisitor) VisitWriteMem(*WriteMem)           {}
func (DefaultVisitor) VisitWritePC(*WritePC)             {}
func (DefaultVisitor) VisitBr(*Br)                       {}
func (DefaultVisitor) VisitCondBr(*CondBr)               {}
func (DefaultVisitor) VisitLabel(*LabelNode)             {}
func (DefaultVisitor) VisitInternalCall(*InternalCall)   {}
func (DefaultVisitor) VisitWriteLocal(*WriteLocal)       {}
func (DefaultVisitor) VisitConstant(*Constant)           {}
func (DefaultVisitor) VisitReadReg(*ReadReg)             {}
func (DefaultVisitor) VisitReadMem(*ReadMem)             {}
func (DefaultVisitor) VisitReadPC(*ReadPC)               {}
func (DefaultVisitor) VisitReadLocal(*ReadLocal)         {}
func (DefaultVisitor) VisitUnaryArith(*UnaryArith)       {}
func (DefaultVisitor) VisitBinaryArith(*BinaryArith)     {}
func (DefaultVisitor) VisitTernaryArith(*TernaryArith)   {}
func (DefaultVisitor) VisitCast(*Cast)                   {}
func (DefaultVisitor) VisitCSel(*CSel)                   {}
func (DefaultVisitor) VisitBitShift(*BitShift)           {}
func (DefaultVisitor) VisitBitExtract(*BitExtract)       {}
func (DefaultVisitor) VisitBitInsert(*BitInsert)         {}
func (DefaultVisitor) VisitVectorExtract(*VectorExtract) {}
func (DefaultVisitor) VisitVectorInsert(*VectorInsert)   {}
func (DefaultVisitor) VisitAtomicUnary(*AtomicUnary)     {}
func (DefaultVisitor) VisitAtomicBinary(*AtomicBinary)   {}
func (DefaultVisitor) VisitAtomicTernary(*AtomicTernary) {}

var _ Visitor = DefaultVisitor{}

// WalkChunk visits every node of every packet in chunk, in packet and
// within-packet order, action nodes only (value nodes are reached
// transitively by consumers that care to follow port references).
func WalkChunk(c *Chunk, v Visitor) {
	for _, p := range c.Packets() {
		for _, a := range p.Actions() {
			a.Accept(v)
		}
	}
}
