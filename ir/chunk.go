package ir

// Chunk is a lifted region — typically one ELF function, or the set of
// basic blocks reachable from a translation entry point — made of packets
// in address order. A Chunk exclusively owns every node, port, packet, and
// local it contains via its arena: nothing in a Chunk is ever referenced
// from another Chunk.
type Chunk struct {
	Name string

	packets []*Packet
	locals  []Local
	nextID  NodeID
}

// NewChunk allocates an empty chunk with the given debug name (usually the
// ELF symbol name of the region being lifted).
func NewChunk(name string) *Chunk {
	return &Chunk{Name: name}
}

// Packets returns the chunk's packets in address order.
func (c *Chunk) Packets() []*Packet { return c.packets }

// Locals returns every local_var allocated in this chunk.
func (c *Chunk) Locals() []Local { return c.locals }

func (c *Chunk) allocID() NodeID {
	id := c.nextID
	c.nextID++
	return id
}
