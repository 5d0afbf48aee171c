package host

// Instruction is the host-agnostic instruction model every backend builder
// emits into and the register allocator walks over: a mnemonic plus
// explicit use/def operand lists, an implicit-dependency set (e.g. NZCV on
// arm64, the link register written by a call on either host), and a Keep
// flag marking instructions the allocator must never elide as dead.
type Instruction struct {
	Mnemonic string
	Uses     []Operand
	Defs     []Operand

	// ImplicitUses/ImplicitDefs name vregs read or written as a side effect
	// of the instruction (status flags, link register) without appearing as
	// an explicit operand.
	ImplicitUses []VReg
	ImplicitDefs []VReg

	// Branch marks control-flow instructions so the allocator can track
	// forward/backward liveness across block boundaries.
	Branch bool
	// BranchTarget is the label this instruction transfers control to, when
	// Branch is set.
	BranchTarget string

	// Keep marks an instruction the allocator must retain even if its defs
	// are never read downstream (volatile stores, calls with side effects).
	Keep bool
}

// NewInstruction builds an Instruction with the given mnemonic and no
// operands yet; callers append via the With* helpers.
func NewInstruction(mnemonic string) *Instruction {
	return &Instruction{Mnemonic: mnemonic}
}

// WithUse appends a use operand and returns the instruction for chaining.
func (i *Instruction) WithUse(op Operand) *Instruction {
	i.Uses = append(i.Uses, op)
	return i
}

// WithDef appends a def operand and returns the instruction for chaining.
func (i *Instruction) WithDef(op Operand) *Instruction {
	i.Defs = append(i.Defs, op)
	return i
}

// WithImplicitUse records an implicit read.
func (i *Instruction) WithImplicitUse(v VReg) *Instruction {
	i.ImplicitUses = append(i.ImplicitUses, v)
	return i
}

// WithImplicitDef records an implicit write.
func (i *Instruction) WithImplicitDef(v VReg) *Instruction {
	i.ImplicitDefs = append(i.ImplicitDefs, v)
	return i
}

// MarkKeep sets Keep and returns the instruction for chaining.
func (i *Instruction) MarkKeep() *Instruction {
	i.Keep = true
	return i
}

// MarkBranch sets Branch/BranchTarget and returns the instruction for
// chaining.
func (i *Instruction) MarkBranch(target string) *Instruction {
	i.Branch = true
	i.BranchTarget = target
	return i
}

// UsedVRegs returns every vreg this instruction reads, explicit and
// implicit, for liveness computation.
func (i *Instruction) UsedVRegs() []VReg {
	out := make([]VReg, 0, len(i.Uses)+len(i.ImplicitUses))
	for _, op := range i.Uses {
		out = appendOperandVRegs(out, op)
	}
	out = append(out, i.ImplicitUses...)
	return out
}

// DefinedVRegs returns every vreg this instruction writes, explicit and
// implicit.
func (i *Instruction) DefinedVRegs() []VReg {
	out := make([]VReg, 0, len(i.Defs)+len(i.ImplicitDefs))
	for _, op := range i.Defs {
		out = appendOperandVRegs(out, op)
	}
	out = append(out, i.ImplicitDefs...)
	return out
}

// explicitUseVRegs returns only the vregs named by operand-list uses; the
// allocator assigns pool registers to these, while implicit registers go
// through the outstanding-dependency bookkeeping instead.
func (i *Instruction) explicitUseVRegs() []VReg {
	out := make([]VReg, 0, len(i.Uses))
	for _, op := range i.Uses {
		out = appendOperandVRegs(out, op)
	}
	return out
}

// explicitDefVRegs returns only the vregs named by operand-list defs.
func (i *Instruction) explicitDefVRegs() []VReg {
	out := make([]VReg, 0, len(i.Defs))
	for _, op := range i.Defs {
		out = appendOperandVRegs(out, op)
	}
	return out
}

func appendOperandVRegs(out []VReg, op Operand) []VReg {
	switch op.Kind {
	case OperandReg:
		return append(out, op.Reg)
	case OperandMem:
		if op.Mem.Base.Valid() {
			out = append(out, op.Mem.Base)
		}
		if op.Mem.Index.Valid() {
			out = append(out, op.Mem.Index)
		}
		return out
	default:
		return out
	}
}

// Block is a straight-line run of instructions between branch targets, the
// allocator's unit of forward/backward liveness tracking.
type Block struct {
	Label string
	Instr []*Instruction
}
