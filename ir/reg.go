package ir

// Reg names a slot in the external CPU-state record: a
// register offset plus its natural (full) width. The decoder maps
// architectural register names (RAX, XMM3, ZF, ...) onto these; ir itself
// stays agnostic to the concrete layout so that the CPU-state contract can
// evolve without ir depending on the decode package.
type Reg struct {
	// Offset is the byte offset of the register's full-width slot in the
	// CPU-state struct.
	Offset uint32
	// Name is used only for disassembly text and debug dump.
	Name string
}

// Local is a handle to a local_var stack slot allocated by Builder.AllocLocal.
type Local struct {
	id  uint32
	typ Type
}

// ID returns the local's identity within its owning chunk.
func (l Local) ID() uint32 { return l.id }

// Type returns the local's declared value type.
func (l Local) Type() Type { return l.typ }
