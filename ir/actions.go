package ir

// BrType classifies a write_pc action so the backend can choose how to
// realize the control transfer. BrCSel requires the written value to be
// produced by a CSel node, which lets the backend
// opportunistically emit a single conditional jump instead of materializing
// a conditional value and then branching on it.
type BrType uint8

const (
	BrNormal BrType = iota
	BrCSel
)

// WriteReg writes Value into the Dest register slot. Partial-width writes
// (8/16/32-bit) are expressed by the decoder via a preceding bit_insert
// against the wider register value per the x86-64 aliasing rules; WriteReg
// itself always writes Value's full declared width into Dest.
type WriteReg struct {
	base
	Dest  Reg
	Value *Port
}

func (n *WriteReg) Accept(v Visitor) { v.VisitWriteReg(n) }

// WriteMem stores Value at the effective address Addr.
type WriteMem struct {
	base
	Addr  *Port
	Value *Port
}

func (n *WriteMem) Accept(v Visitor) { v.VisitWriteMem(n) }

// WritePC redirects control flow to Value. BrKind records whether Value came
// from a CSel (conditional) or is an unconditional/computed target; ending a
// packet with a WritePC that is not a fallthrough add marks it end_of_block.
type WritePC struct {
	base
	Value  *Port
	BrKind BrType
}

func (n *WritePC) Accept(v Visitor) { v.VisitWritePC(n) }

// Br is an unconditional jump to an intra-chunk Target label.
type Br struct {
	base
	Target *LabelNode
}

func (n *Br) Accept(v Visitor) { v.VisitBr(n) }

// CondBr jumps to Target iff Cond (a u1 value) is non-zero; control falls
// through to the next action otherwise.
type CondBr struct {
	base
	Cond   *Port
	Target *LabelNode
}

func (n *CondBr) Accept(v Visitor) { v.VisitCondBr(n) }

// LabelNode names an intra-packet/intra-chunk control target. The backend
// resolves its position at emit time.
type LabelNode struct {
	base
	Name string
}

func (n *LabelNode) Accept(v Visitor) { v.VisitLabel(n) }

// InternalCall invokes a named helper routine (resolved via
// resolve.Resolver) with Args as its argument ports. It
// has no IR result: helpers communicate back through CPU-state or memory
// side effects observed by the runtime.
type InternalCall struct {
	base
	FuncName string
	Args     []*Port
}

func (n *InternalCall) Accept(v Visitor) { v.VisitInternalCall(n) }

// WriteLocal stores Value into the stack slot named by Dest.
type WriteLocal struct {
	base
	Dest  Local
	Value *Port
}

func (n *WriteLocal) Accept(v Visitor) { v.VisitWriteLocal(n) }
