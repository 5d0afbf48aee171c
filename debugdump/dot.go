package debugdump

import (
	"fmt"
	"io"

	"github.com/hexlift/hexlift/ir"
)

// Dot writes a Graphviz "digraph" rendering of chunk to w: one node per
// packet, an edge to the next packet when the packet falls through, and an
// edge to a node named after the label of each explicit br/cond_br. This
// mirrors the action-level granularity of Dump rather than rendering every
// value node individually, since a full def-use graph of a real chunk is
// illegible at a glance; value-node detail is available via each packet's
// label text (built with the same expr helper Dump uses).
func Dot(w io.Writer, chunk *ir.Chunk) error {
	fmt.Fprintf(w, "digraph %q {\n", chunk.Name)
	fmt.Fprintln(w, "  node [shape=box, fontname=monospace];")

	labelOf := map[string]int{}
	for i, p := range chunk.Packets() {
		labelOf[fmt.Sprintf("p%x", p.Address)] = i
	}

	for i, p := range chunk.Packets() {
		fmt.Fprintf(w, "  n%d [label=%q];\n", i, packetLabel(p))
		if p.Result() == ir.PacketNormal && i+1 < len(chunk.Packets()) {
			fmt.Fprintf(w, "  n%d -> n%d;\n", i, i+1)
		}
		for _, target := range branchTargets(p) {
			fmt.Fprintf(w, "  n%d -> %q;\n", i, target)
		}
	}
	fmt.Fprintln(w, "}")
	return nil
}

func packetLabel(p *ir.Packet) string {
	s := fmt.Sprintf("0x%x: %s\\l", p.Address, p.Disasm)
	for _, a := range p.Actions() {
		s += actionLabel(a) + "\\l"
	}
	return s
}

func actionLabel(a ir.Node) string {
	switch n := a.(type) {
	case *ir.WriteReg:
		return fmt.Sprintf("write_reg %s <- %s", n.Dest.Name, expr(n.Value))
	case *ir.WriteMem:
		return fmt.Sprintf("write_mem [%s] <- %s", expr(n.Addr), expr(n.Value))
	case *ir.WritePC:
		return fmt.Sprintf("write_pc <- %s", expr(n.Value))
	case *ir.Br:
		return "br -> " + n.Target.Name
	case *ir.CondBr:
		return fmt.Sprintf("cond_br %s -> %s", expr(n.Cond), n.Target.Name)
	case *ir.LabelNode:
		return "label " + n.Name
	case *ir.InternalCall:
		return "internal_call " + n.FuncName
	case *ir.WriteLocal:
		return fmt.Sprintf("write_local #%d <- %s", n.Dest.ID(), expr(n.Value))
	default:
		return fmt.Sprintf("%T", a)
	}
}

// branchTargets returns the label names a packet's actions explicitly
// transfer control to, for dot edges beyond straight-line fallthrough.
func branchTargets(p *ir.Packet) []string {
	var out []string
	for _, a := range p.Actions() {
		switch n := a.(type) {
		case *ir.Br:
			out = append(out, n.Target.Name)
		case *ir.CondBr:
			out = append(out, n.Target.Name)
		}
	}
	return out
}
