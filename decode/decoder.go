package decode

import (
	"github.com/pkg/errors"
	"golang.org/x/arch/x86/x86asm"
)

// Decoder identifies one x86-64 instruction at a time from a byte stream,
// tracking the guest address so RIP-relative operands can be resolved.
type Decoder struct {
	Data []byte
	Base uint64
	off  int
}

// NewDecoder returns a Decoder over data, whose first byte corresponds to
// guest address base.
func NewDecoder(data []byte, base uint64) *Decoder {
	return &Decoder{Data: data, Base: base}
}

// Done reports whether every byte has been consumed.
func (d *Decoder) Done() bool { return d.off >= len(d.Data) }

// Addr returns the guest address of the next instruction to be decoded.
func (d *Decoder) Addr() uint64 { return d.Base + uint64(d.off) }

// Next decodes the instruction at the current position and advances past
// it, returning the decoded instruction, its address, and its length. A
// malformed instruction returns ErrDecode and does not advance, so callers
// truncating the chunk at the last good instruction can stop cleanly.
func (d *Decoder) Next() (x86asm.Inst, uint64, int, error) {
	if d.Done() {
		return x86asm.Inst{}, 0, 0, errors.Wrap(ErrDecode, "decode: past end of buffer")
	}
	inst, err := x86asm.Decode(d.Data[d.off:], 64)
	if err != nil {
		return x86asm.Inst{}, 0, 0, errors.Wrapf(ErrDecode, "decode at +0x%x: %v", d.off, err)
	}
	addr := d.Addr()
	d.off += inst.Len
	return inst, addr, inst.Len, nil
}

// Peek decodes the instruction at the current position without advancing.
func (d *Decoder) Peek() (x86asm.Inst, error) {
	if d.Done() {
		return x86asm.Inst{}, errors.Wrap(ErrDecode, "decode: past end of buffer")
	}
	return x86asm.Decode(d.Data[d.off:], 64)
}
