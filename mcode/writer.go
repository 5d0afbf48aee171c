package mcode

import "github.com/pkg/errors"

// Reloc describes a pending relocation against a label that had not yet
// been placed when the referencing instruction's bytes were appended
// (forward branches within a chunk). Offset is the byte offset within the
// arena allocation the Writer owns; Kind names the encoder-specific fixup
// shape (e.g. "b26" for an AArch64 26-bit branch immediate).
type Reloc struct {
	Offset int
	Label  string
	Kind   string
}

// Writer appends one chunk's encoded bytes into an Arena allocation,
// recording guest-PC -> host-PC pairs as it goes and collecting
// relocations an Encoder could not resolve inline.
type Writer struct {
	arena  *Arena
	base   []byte
	start  int
	cursor int

	labels map[string]int // label name -> byte offset within this chunk's region
	relocs []Reloc

	// PCMap records, in append order, the guest address each host-code
	// region corresponds to; the runtime trampoline binary-searches this to
	// answer "is guest PC X already translated".
	PCMap []PCEntry
}

// PCEntry is one guest-PC -> host-PC correspondence recorded by Commit.
type PCEntry struct {
	GuestPC uint64
	HostOff int
}

// NewWriter reserves size bytes from arena for one chunk's emitted code.
func NewWriter(arena *Arena, size int) (*Writer, error) {
	buf, start, err := arena.Alloc(size)
	if err != nil {
		return nil, err
	}
	return &Writer{arena: arena, base: buf, start: start, labels: make(map[string]int)}, nil
}

// Append writes b at the current cursor and advances it, returning the byte
// offset (within the arena, not this writer's region) the bytes landed at.
func (w *Writer) Append(b []byte) int {
	off := w.start + w.cursor
	copy(w.base[w.cursor:], b)
	w.cursor += len(b)
	return off
}

// PlaceLabel records name's current position so later relocations against
// it (forward branches) can be resolved once Commit runs.
func (w *Writer) PlaceLabel(name string) {
	w.labels[name] = w.cursor
}

// AddReloc records a pending fixup against a label not yet placed.
func (w *Writer) AddReloc(r Reloc) {
	w.relocs = append(w.relocs, r)
}

// RecordPC associates guestPC with the host offset the writer is currently
// at, for the translation cache's PC map.
func (w *Writer) RecordPC(guestPC uint64) {
	w.PCMap = append(w.PCMap, PCEntry{GuestPC: guestPC, HostOff: w.start + w.cursor})
}

// Fixup resolves the given relative-branch encoder function against every
// recorded relocation whose label has since been placed, returning an error
// naming the first label that never was: the allocator or encoder produced
// a branch to a label the lowering pass never emitted.
func (w *Writer) Fixup(patch func(buf []byte, instrOff, targetOff int, kind string) error) error {
	for _, r := range w.relocs {
		target, ok := w.labels[r.Label]
		if !ok {
			return errors.Errorf("mcode: unresolved label %q", r.Label)
		}
		if err := patch(w.base, r.Offset, target, r.Kind); err != nil {
			return errors.Wrapf(err, "fixup offset %d -> label %q", r.Offset, r.Label)
		}
	}
	return nil
}

// Bytes returns the bytes written so far within this writer's region.
func (w *Writer) Bytes() []byte { return w.base[:w.cursor] }
