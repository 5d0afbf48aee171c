// Package xctx implements the Dynamic Translation Context:
// per-chunk state that drives lifter -> builder materialization, owns the
// port -> vreg memoization map, and hands finished host.Block lists to a
// register allocator and then an encoder. Each host target gets its own
// Lowerer (Arm64Lowerer, RiscvLowerer) that embeds *Context and
// implements the node-kind-specific emission; Context itself is
// backend-agnostic bookkeeping, split out so each target's Lowerer does not
// duplicate the memoization and block-cursor state.
package xctx

import (
	"github.com/hexlift/hexlift/host"
	"github.com/hexlift/hexlift/ir"
)

// Context tracks, for one chunk being lowered: which ports have already
// been materialized into a vreg (so a value node referenced from two
// places is computed once "memoized by port→vreg"), the
// blocks emitted so far, and the current block under construction. PC is
// the guest address of the packet currently being lowered, used to resolve
// immediate-foldable read_pc ports.
type Context struct {
	vregs    map[*ir.Port]host.VReg
	nextID   host.VRegID
	blocks   []*host.Block
	cur      *host.Block
	PC       uint64
	labelSeq int
}

// NewContext returns an empty Context ready to lower one chunk.
func NewContext() *Context {
	c := &Context{vregs: make(map[*ir.Port]host.VReg)}
	c.cur = &host.Block{Label: "entry"}
	c.blocks = append(c.blocks, c.cur)
	return c
}

// Blocks returns every block emitted so far, in emission order.
func (c *Context) Blocks() []*host.Block { return c.blocks }

// Emit appends instr to the current block.
func (c *Context) Emit(instr *host.Instruction) *host.Instruction {
	c.cur.Instr = append(c.cur.Instr, instr)
	return instr
}

// OpenBlock starts a new block named label and makes it current; used when
// lowering a label_node action so branch targets land on a block boundary,
// which is what the allocator's forward/backward liveness tracking keys on.
func (c *Context) OpenBlock(label string) {
	c.cur = &host.Block{Label: label}
	c.blocks = append(c.blocks, c.cur)
}

// FreshLabel returns a unique intra-chunk label name for constructs (like
// the rep-prefix loop) that need a branch target the lifter did not itself
// name.
func (c *Context) FreshLabel(prefix string) string {
	c.labelSeq++
	return prefix + "_L" + itoa(c.labelSeq)
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	return string(buf[i:])
}

// Materialized reports whether p already has a vreg, returning it.
func (c *Context) Materialized(p *ir.Port) (host.VReg, bool) {
	v, ok := c.vregs[p]
	return v, ok
}

// Bind records that p now lives in v, so later references reuse it.
func (c *Context) Bind(p *ir.Port, v host.VReg) {
	c.vregs[p] = v
}

// FreshVReg issues a new virtual register of class for an as-yet-unbound
// port.
func (c *Context) FreshVReg(class host.RegClass) host.VReg {
	id := c.nextID
	c.nextID++
	return host.NewVReg(id, class)
}

// classOf chooses the vreg register class a port's IR type should
// materialize into: floating-point, vector, and wider-than-64-bit values
// (the 128-bit XMM state) go to the float/vector file, everything else
// (including flags, which are 1-bit integers) to the integer file.
func classOf(t ir.Type) host.RegClass {
	if t.Class() == ir.ClassFloat || t.IsVector() || t.Width() > 64 {
		return host.ClassFloat
	}
	return host.ClassInt
}

// accessBytes converts a value type's width to the load/store access size
// encoders key on. Sub-byte values (flags) access a single byte.
func accessBytes(t ir.Type) uint8 {
	w := t.Width()
	if w <= 8 {
		return 1
	}
	return uint8(w / 8)
}
