// Package mcode implements the machine-code arena and writer: a bump
// allocator that never recycles, guarded by a single mutex, plus a
// Writer that appends encoded host bytes and records guest-PC -> host-PC
// mappings for the runtime trampoline.
package mcode

import (
	"sync"

	"github.com/pkg/errors"
)

// ErrArenaFull is returned when a chunk's generated code would not fit in
// the arena's remaining capacity.
var ErrArenaFull = errors.New("mcode: arena exhausted")

// Arena is a bump-allocator of pages meant to be mapped R+W+X. W^X
// enforcement (mapping pages W, sealing them X after the writer commits) is
// left as future hardening; this type only owns the byte storage and the
// allocation offset.
type Arena struct {
	mu   sync.Mutex
	buf  []byte
	off  int
}

// NewArena allocates an Arena backed by a byte slice of the given size,
// standing in for a host mmap'd R+W+X region. The actual mapping is a
// runtime/OS concern outside this module.
func NewArena(size int) *Arena {
	return &Arena{buf: make([]byte, size)}
}

// Alloc reserves n contiguous bytes and returns a slice over them plus the
// byte offset they start at. Thread-safe: multiple chunks may be translated
// concurrently and each commits under this one mutex.
func (a *Arena) Alloc(n int) ([]byte, int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.off+n > len(a.buf) {
		return nil, 0, errors.Wrapf(ErrArenaFull, "need %d bytes, have %d", n, len(a.buf)-a.off)
	}
	start := a.off
	a.off += n
	return a.buf[start : start+n], start, nil
}

// Base returns the arena's backing storage base address as an offset space;
// callers needing an absolute host pointer do so via unsafe conversion at
// the runtime boundary, which stays outside this package.
func (a *Arena) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.off
}

// Cap reports the arena's total capacity in bytes.
func (a *Arena) Cap() int { return len(a.buf) }
