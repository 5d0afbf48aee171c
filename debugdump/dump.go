// Package debugdump implements two debug outputs: a text dump, which
// consumes ir.Visitor, and a Graphviz generator, which switches on each
// action's concrete node type and does not go through ir.Visitor. Both
// are thin — they only ever read
// nodes, never mutate them — keeping walks over chunks side-effect-free,
// which is also what lets an external static-emission collaborator reuse
// the same chunks.
package debugdump

import (
	"fmt"
	"io"

	"github.com/hexlift/hexlift/ir"
)

// textVisitor renders one action node (and, transitively, the value nodes
// it references) as a line of text. It embeds ir.DefaultVisitor so it only
// needs to implement the action-node callbacks dump actually prints;
// everything else inherits the no-op default, keeping every consumer a
// plug-in of one dispatch contract rather than its own class hierarchy.
type textVisitor struct {
	ir.DefaultVisitor
	w   io.Writer
	err error
}

// Dump writes a human-readable trace of chunk's packets and actions to w,
// one line per action, with inline rendering of each action's operand
// expression tree.
func Dump(w io.Writer, chunk *ir.Chunk) error {
	tv := &textVisitor{w: w}
	for _, p := range chunk.Packets() {
		fmt.Fprintf(w, "packet 0x%x  %s  [%s]\n", p.Address, p.Disasm, p.Result())
		for _, a := range p.Actions() {
			a.Accept(tv)
			if tv.err != nil {
				return tv.err
			}
		}
	}
	return nil
}

func (v *textVisitor) line(format string, args ...interface{}) {
	if v.err != nil {
		return
	}
	_, v.err = fmt.Fprintf(v.w, "  "+format+"\n", args...)
}

func (v *textVisitor) VisitWriteReg(n *ir.WriteReg) {
	v.line("write_reg %s <- %s", n.Dest.Name, expr(n.Value))
}

func (v *textVisitor) VisitWriteMem(n *ir.WriteMem) {
	v.line("write_mem [%s] <- %s", expr(n.Addr), expr(n.Value))
}

func (v *textVisitor) VisitWritePC(n *ir.WritePC) {
	kind := "normal"
	if n.BrKind == ir.BrCSel {
		kind = "csel"
	}
	v.line("write_pc <- %s (%s)", expr(n.Value), kind)
}

func (v *textVisitor) VisitBr(n *ir.Br) {
	v.line("br -> %s", n.Target.Name)
}

func (v *textVisitor) VisitCondBr(n *ir.CondBr) {
	v.line("cond_br %s -> %s", expr(n.Cond), n.Target.Name)
}

func (v *textVisitor) VisitLabel(n *ir.LabelNode) {
	v.line("label %s:", n.Name)
}

func (v *textVisitor) VisitInternalCall(n *ir.InternalCall) {
	args := make([]string, len(n.Args))
	for i, a := range n.Args {
		args[i] = expr(a)
	}
	v.line("internal_call %s(%v)", n.FuncName, args)
}

func (v *textVisitor) VisitWriteLocal(n *ir.WriteLocal) {
	v.line("write_local #%d <- %s", n.Dest.ID(), expr(n.Value))
}

// expr renders a value port and its producing node as a compact
// s-expression, recursing into operands. It is shared by the dot generator
// for node labels.
func expr(p *ir.Port) string {
	if p == nil {
		return "<nil>"
	}
	switch n := p.Node().(type) {
	case *ir.Constant:
		if n.IsFloat {
			return fmt.Sprintf("%g", n.Float64)
		}
		return fmt.Sprintf("0x%x:%s", n.Bits, n.Typ)
	case *ir.ReadReg:
		return fmt.Sprintf("read_reg(%s)", n.Src.Name)
	case *ir.ReadMem:
		return fmt.Sprintf("read_mem(%s):%s", expr(n.Addr), n.Typ)
	case *ir.ReadPC:
		return "read_pc"
	case *ir.ReadLocal:
		return fmt.Sprintf("read_local(#%d)", n.Src.ID())
	case *ir.UnaryArith:
		return fmt.Sprintf("%v(%s)", n.Op, expr(n.In))
	case *ir.BinaryArith:
		return fmt.Sprintf("%v(%s, %s)", n.Op, expr(n.Lhs), expr(n.Rhs))
	case *ir.TernaryArith:
		return fmt.Sprintf("%v(%s, %s, %s)", n.Op, expr(n.A), expr(n.B), expr(n.CarryIn))
	case *ir.Cast:
		return fmt.Sprintf("cast<%d>(%s) -> %s", n.CastKind, expr(n.In), n.OutType)
	case *ir.CSel:
		return fmt.Sprintf("csel(%s, %s, %s)", expr(n.Cond), expr(n.True), expr(n.False))
	case *ir.BitShift:
		return fmt.Sprintf("shift<%d>(%s, %s)", n.ShiftKind, expr(n.In), expr(n.Amount))
	case *ir.BitExtract:
		return fmt.Sprintf("bit_extract(%s, %d, %d)", expr(n.From), n.Offset, n.Length)
	case *ir.BitInsert:
		return fmt.Sprintf("bit_insert(%s, %s, %d, %d)", expr(n.Input), expr(n.Bits), n.To, n.Length)
	case *ir.VectorExtract:
		return fmt.Sprintf("vector_extract(%s, %d)", expr(n.V), n.Index)
	case *ir.VectorInsert:
		return fmt.Sprintf("vector_insert(%s, %d, %s)", expr(n.V), n.Index, expr(n.Value))
	case *ir.AtomicUnary:
		return fmt.Sprintf("atomic_unary<%d>(%s)", n.Op, expr(n.Addr))
	case *ir.AtomicBinary:
		return fmt.Sprintf("atomic_binary<%d>(%s, %s)", n.Op, expr(n.Addr), expr(n.Operand))
	case *ir.AtomicTernary:
		return fmt.Sprintf("cmpxchg(%s, %s, %s)", expr(n.Addr), expr(n.Expected), expr(n.New))
	default:
		return fmt.Sprintf("<%T>", n)
	}
}
