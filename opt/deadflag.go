// Package opt implements the IR optimizer passes: a single dead-flag
// elimination pass for now, a one-shot mutating walk over already-built IR.
package opt

import (
	"go.uber.org/zap"

	"github.com/hexlift/hexlift/ir"
)

// flagOffsets lists the CPU-state byte offsets this pass treats as flag
// registers. It is a closed set deliberately kept local to this package:
// dead-flag elimination only ever concerns itself with the six x86 status
// flags, never general-purpose registers.
var flagOffsets = map[uint32]bool{}

// RegisterFlagOffset marks offset as a flag slot eligible for dead-flag
// elimination. decode.FlagReg's six offsets are registered by init() in
// this package's test file and by any caller that builds chunks against a
// different CPU-state layout.
func RegisterFlagOffset(offset uint32) {
	flagOffsets[offset] = true
}

func isFlagReg(r ir.Reg) bool { return flagOffsets[r.Offset] }

// Result reports how many flag writes a DeadFlagElimination pass removed
// out of how many it considered.
type Result struct {
	Removed int
	Total   int
}

// DeadFlagElimination walks chunk's packets in reverse, and each packet's
// actions in reverse, deleting WriteReg actions that target a flag register
// not subsequently read before being overwritten again. Writes inside the
// chunk's last flag-modifying packet are preserved unconditionally, since a
// successor chunk may observe them.
func DeadFlagElimination(c *ir.Chunk, log *zap.Logger) Result {
	packets := c.Packets()
	live := map[uint32]bool{}
	res := Result{}

	lastFlagPacket := -1
	for i, p := range packets {
		for _, a := range p.Actions() {
			if wr, ok := a.(*ir.WriteReg); ok && isFlagReg(wr.Dest) {
				lastFlagPacket = i
			}
		}
	}

	for pi := len(packets) - 1; pi >= 0; pi-- {
		p := packets[pi]
		actions := p.Actions()
		kept := make([]ir.Node, 0, len(actions))
		// Walk this packet's actions in reverse, building `kept` back to
		// front, then reverse it once at the end.
		for ai := len(actions) - 1; ai >= 0; ai-- {
			a := actions[ai]
			if wr, ok := a.(*ir.WriteReg); ok && isFlagReg(wr.Dest) {
				res.Total++
				if !live[wr.Dest.Offset] && pi != lastFlagPacket && !containsAtomic(wr) {
					res.Removed++
					if log != nil {
						log.Debug("dead-flag eliminated",
							zap.String("flag", wr.Dest.Name),
							zap.Uint64("packet_addr", p.Address))
					}
					continue // drop the write; don't mark consumed reads live.
				}
				live[wr.Dest.Offset] = false
			}
			markLiveReads(a, live)
			kept = append(kept, a)
		}
		for l, r := 0, len(kept)-1; l < r; l, r = l+1, r-1 {
			kept[l], kept[r] = kept[r], kept[l]
		}
		p.SetActions(kept)
	}
	return res
}

// markLiveReads marks every flag register transitively read by n's operand
// ports as live, so earlier (in program order) writes to that flag are
// preserved.
func markLiveReads(n ir.Node, live map[uint32]bool) {
	seen := map[ir.NodeID]bool{}
	var walk func(ir.Node)
	walk = func(node ir.Node) {
		if node == nil || seen[node.ID()] {
			return
		}
		seen[node.ID()] = true
		if rr, ok := node.(*ir.ReadReg); ok && isFlagReg(rr.Src) {
			live[rr.Src.Offset] = true
		}
		for _, p := range operandPorts(node) {
			walk(portNode(p))
		}
	}
	walk(n)
}

// containsAtomic reports whether the value tree feeding n includes an
// atomic RMW node. A flag write whose producer chain contains one is never
// removed: that write may be the only action anchoring the RMW's side
// effect (a LOCK-prefixed ALU op with no register destination).
func containsAtomic(n ir.Node) bool {
	seen := map[ir.NodeID]bool{}
	var found bool
	var walk func(ir.Node)
	walk = func(node ir.Node) {
		if node == nil || seen[node.ID()] || found {
			return
		}
		seen[node.ID()] = true
		switch node.Kind() {
		case ir.KindAtomicUnary, ir.KindAtomicBinary, ir.KindAtomicTernary:
			found = true
			return
		}
		for _, p := range operandPorts(node) {
			walk(portNode(p))
		}
	}
	walk(n)
	return found
}

// operandPorts returns every upstream port a node references, the shared
// child-edge enumeration both traversals above walk.
func operandPorts(node ir.Node) []*ir.Port {
	switch v := node.(type) {
	case *ir.WriteReg:
		return []*ir.Port{v.Value}
	case *ir.WriteMem:
		return []*ir.Port{v.Addr, v.Value}
	case *ir.WritePC:
		return []*ir.Port{v.Value}
	case *ir.CondBr:
		return []*ir.Port{v.Cond}
	case *ir.InternalCall:
		return v.Args
	case *ir.WriteLocal:
		return []*ir.Port{v.Value}
	case *ir.ReadMem:
		return []*ir.Port{v.Addr}
	case *ir.UnaryArith:
		return []*ir.Port{v.In}
	case *ir.BinaryArith:
		return []*ir.Port{v.Lhs, v.Rhs}
	case *ir.TernaryArith:
		return []*ir.Port{v.A, v.B, v.CarryIn}
	case *ir.Cast:
		return []*ir.Port{v.In}
	case *ir.CSel:
		return []*ir.Port{v.Cond, v.True, v.False}
	case *ir.BitShift:
		return []*ir.Port{v.In, v.Amount}
	case *ir.BitExtract:
		return []*ir.Port{v.From}
	case *ir.BitInsert:
		return []*ir.Port{v.Input, v.Bits}
	case *ir.VectorExtract:
		return []*ir.Port{v.V}
	case *ir.VectorInsert:
		return []*ir.Port{v.V, v.Value}
	case *ir.AtomicUnary:
		return []*ir.Port{v.Addr}
	case *ir.AtomicBinary:
		return []*ir.Port{v.Addr, v.Operand}
	case *ir.AtomicTernary:
		return []*ir.Port{v.Addr, v.Expected, v.New}
	default:
		return nil
	}
}

func portNode(p *ir.Port) ir.Node {
	if p == nil {
		return nil
	}
	return p.Node()
}
