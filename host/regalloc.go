package host

import "github.com/pkg/errors"

// Config describes one host's allocatable physical register files and the
// registers the backend reserves for its own bookkeeping:
// the stack pointer, the CPU-state/frame pointer, the link/return-address
// register, and (on hosts that have one) a hard-wired zero register.
type Config struct {
	IntRegs   []RealReg
	FloatRegs []RealReg

	SP   RealReg
	FP   RealReg
	LR   RealReg
	Zero RealReg // RealRegInvalid if the host has no hard-wired zero.
}

// Allocator implements the reverse linear-scan allocator: it walks a
// function's blocks from the last instruction to the first, assigning each
// vreg a physical register at its last use (in forward order) and freeing
// it at its defining instruction, since in reverse traversal a def is seen
// after all of its uses.
type Allocator struct {
	cfg Config

	freeInt   []RealReg
	freeFloat []RealReg

	// assigned maps a vreg ID to the RealReg it currently holds while the
	// scan is in progress.
	assigned map[VRegID]RealReg

	// liveOnEntry records, per block label, the vregs (with class) live at
	// the top of that block once the liveness pre-pass completes; this lets a backward branch's target merge liveness from a
	// block the reverse scan has not visited yet.
	liveOnEntry map[string]map[VRegID]VReg
}

// NewAllocator builds an Allocator with a fresh copy of cfg's free lists.
func NewAllocator(cfg Config) *Allocator {
	a := &Allocator{
		cfg:         cfg,
		freeInt:     append([]RealReg(nil), cfg.IntRegs...),
		freeFloat:   append([]RealReg(nil), cfg.FloatRegs...),
		assigned:    make(map[VRegID]RealReg),
		liveOnEntry: make(map[string]map[VRegID]VReg),
	}
	return a
}

// Allocate assigns physical registers to every vreg operand across blocks,
// mutating each Instruction's operands in place. It returns the count of
// instructions eliminated as no-op copies or dead defs, and an error if an
// implicit-read dependency is left dangling at the end of the scan.
func (a *Allocator) Allocate(blocks []*Block) (eliminated int, err error) {
	a.computeLiveOnEntry(blocks)
	blockIndex := make(map[string]int, len(blocks))
	for i, b := range blocks {
		blockIndex[b.Label] = i
	}

	// outstanding tracks implicit reads (flag-register consumers like cset
	// and b.cond) the reverse scan has seen but not yet matched to an
	// implicit write. Pre-colored implicit registers (the link register)
	// are live-in at the function boundary and never tracked.
	outstanding := make(map[VRegID]bool)

	for bi := len(blocks) - 1; bi >= 0; bi-- {
		blk := blocks[bi]
		kept := make([]*Instruction, 0, len(blk.Instr))
		for ii := len(blk.Instr) - 1; ii >= 0; ii-- {
			instr := blk.Instr[ii]

			if !instr.Keep && a.isRedundantCopy(instr) {
				eliminated++
				continue
			}

			// An implicit write that satisfies an outstanding implicit
			// read converts the instruction to keep: its explicit def may
			// be dead (cmp discards its difference) while the flags it
			// produces are what downstream actually consumes.
			for _, v := range instr.ImplicitDefs {
				if outstanding[v.ID()] {
					instr.Keep = true
					delete(outstanding, v.ID())
				}
			}

			// A backward branch's target may already carry live-in vregs
			// whose reaching defs are still ahead of us: pin them to their
			// current/fresh assignment now so an intervening def inside the loop body
			// does not reclaim the physical register they need on the
			// next iteration's back-edge.
			if instr.Branch {
				if target, ok := blockIndex[instr.BranchTarget]; ok && target < bi {
					for _, v := range a.liveOnEntry[instr.BranchTarget] {
						a.assignOrReuse(v)
					}
				}
			}

			// Defs are freed first in reverse order: by the time the scan
			// reaches a defining instruction, every later use has already
			// pinned a physical register, so the vreg's lifetime ends here.
			// A def with no prior allocation never had a later reader,
			// which makes the instruction dead unless it is marked Keep.
			dead := false
			for _, v := range instr.explicitDefVRegs() {
				real, hadUse := a.release(v)
				if !hadUse {
					if !instr.Keep {
						dead = true
						continue
					}
					real = a.pickFree(v.Class())
				}
				a.bindOperandRegs(instr.Defs, v, real)
			}
			if dead {
				eliminated++
				continue
			}

			for _, v := range instr.explicitUseVRegs() {
				real := a.assignOrReuse(v)
				a.bindOperandRegs(instr.Uses, v, real)
			}

			// Copy elimination proper: a register-to-register move whose
			// source and destination landed in the same physical register
			// is a no-op. The def was released before the use was
			// assigned, and the free pool is LIFO, so back-to-back copies
			// routinely coalesce here.
			if !instr.Keep && isCopyMnemonic(instr.Mnemonic) &&
				len(instr.Defs) == 1 && len(instr.Uses) == 1 &&
				instr.Defs[0].Kind == OperandReg && instr.Uses[0].Kind == OperandReg &&
				instr.Defs[0].Reg.RealReg() != RealRegInvalid &&
				instr.Defs[0].Reg.RealReg() == instr.Uses[0].Reg.RealReg() {
				eliminated++
				continue
			}

			for _, v := range instr.ImplicitUses {
				if v.RealReg() == RealRegInvalid {
					outstanding[v.ID()] = true
				}
			}

			kept = append(kept, instr)
		}
		// kept was built in reverse; restore original order.
		for l, r := 0, len(kept)-1; l < r; l, r = l+1, r-1 {
			kept[l], kept[r] = kept[r], kept[l]
		}
		blk.Instr = kept
	}
	if len(outstanding) > 0 {
		return eliminated, errors.Errorf("regalloc: %d dangling implicit-read dependencies", len(outstanding))
	}
	return eliminated, nil
}

// VerifyAllocated checks that no operand still names a virtual register
// after allocation; the emitter refuses such a block rather than encode a
// vreg index as a physical register number.
func VerifyAllocated(blocks []*Block) error {
	for _, blk := range blocks {
		for _, instr := range blk.Instr {
			for _, ops := range [][]Operand{instr.Uses, instr.Defs} {
				for _, op := range ops {
					switch op.Kind {
					case OperandReg:
						if op.Reg.RealReg() == RealRegInvalid {
							return errors.Errorf("regalloc: %s operand still virtual (v%d)", instr.Mnemonic, op.Reg.ID())
						}
					case OperandMem:
						if op.Mem.Base.Valid() && op.Mem.Base.RealReg() == RealRegInvalid {
							return errors.Errorf("regalloc: %s memory base still virtual (v%d)", instr.Mnemonic, op.Mem.Base.ID())
						}
						if op.Mem.Index.Valid() && op.Mem.Index.RealReg() == RealRegInvalid {
							return errors.Errorf("regalloc: %s memory index still virtual (v%d)", instr.Mnemonic, op.Mem.Index.ID())
						}
					}
				}
			}
		}
	}
	return nil
}

// computeLiveOnEntry runs a simple per-block liveness approximation (each
// block scanned on its own, last instruction to first, successors ignored)
// so backward-branch targets (loop headers) have a liveness set available
// before the reverse scan reaches them; this is what lets the allocator
// treat forward and backward branches differently.
func (a *Allocator) computeLiveOnEntry(blocks []*Block) {
	for _, b := range blocks {
		live := make(map[VRegID]VReg)
		for i := len(b.Instr) - 1; i >= 0; i-- {
			instr := b.Instr[i]
			for _, v := range instr.explicitDefVRegs() {
				delete(live, v.ID())
			}
			for _, v := range instr.explicitUseVRegs() {
				live[v.ID()] = v
			}
		}
		a.liveOnEntry[b.Label] = live
	}
}

func isCopyMnemonic(m string) bool { return m == "mov" || m == "copy" }

func (a *Allocator) isRedundantCopy(instr *Instruction) bool {
	if !isCopyMnemonic(instr.Mnemonic) {
		return false
	}
	if len(instr.Uses) != 1 || len(instr.Defs) != 1 {
		return false
	}
	if instr.Uses[0].Kind != OperandReg || instr.Defs[0].Kind != OperandReg {
		return false
	}
	return instr.Uses[0].Reg.ID() == instr.Defs[0].Reg.ID()
}

// release frees v's physical register and returns it, reporting whether any
// later (in forward order) instruction actually used v. The freed register
// is returned to the class free pool: everything strictly earlier in
// program order may need it, and the defining instruction we are at right
// now is the last point that can claim it — a def's reaching register
// becomes available the moment we pass its own def. A
// vreg that already names a physical register (the frame pointer, link
// register, or zero register builders reference directly) is pre-colored
// and never touches the free pool.
func (a *Allocator) release(v VReg) (real RealReg, hadUse bool) {
	if real := v.RealReg(); real != RealRegInvalid {
		return real, true
	}
	if real, ok := a.assigned[v.ID()]; ok {
		delete(a.assigned, v.ID())
		a.freeReal(v.Class(), real)
		return real, true
	}
	return RealRegInvalid, false
}

func (a *Allocator) freeReal(class RegClass, r RealReg) {
	if r == RealRegInvalid {
		return
	}
	if class == ClassFloat {
		a.freeFloat = append(a.freeFloat, r)
	} else {
		a.freeInt = append(a.freeInt, r)
	}
}

// assignOrReuse returns v's currently assigned physical register, or
// allocates one if this is the vreg's last use in forward order (first
// encounter in the reverse scan).
func (a *Allocator) assignOrReuse(v VReg) RealReg {
	if real := v.RealReg(); real != RealRegInvalid {
		return real
	}
	if real, ok := a.assigned[v.ID()]; ok {
		return real
	}
	real := a.pickFree(v.Class())
	a.assigned[v.ID()] = real
	return real
}

func (a *Allocator) pickFree(class RegClass) RealReg {
	if class == ClassFloat {
		if len(a.freeFloat) > 0 {
			r := a.freeFloat[len(a.freeFloat)-1]
			a.freeFloat = a.freeFloat[:len(a.freeFloat)-1]
			return r
		}
		return RealRegInvalid
	}
	if len(a.freeInt) > 0 {
		r := a.freeInt[len(a.freeInt)-1]
		a.freeInt = a.freeInt[:len(a.freeInt)-1]
		return r
	}
	return RealRegInvalid
}

func (a *Allocator) bindOperandRegs(operands []Operand, v VReg, real RealReg) {
	for i := range operands {
		switch operands[i].Kind {
		case OperandReg:
			if operands[i].Reg.ID() == v.ID() {
				operands[i].Reg = v.WithRealReg(real)
			}
		case OperandMem:
			if operands[i].Mem.Base.Valid() && operands[i].Mem.Base.ID() == v.ID() {
				operands[i].Mem.Base = v.WithRealReg(real)
			}
			if operands[i].Mem.Index.Valid() && operands[i].Mem.Index.ID() == v.ID() {
				operands[i].Mem.Index = v.WithRealReg(real)
			}
		}
	}
}
