// Package runtime implements the thin trampoline entry and dispatch loop
// glue: PC -> find/translate -> invoke. The ELF reader, guest-memory
// allocator, syscall proxy, and the actual assembly trampoline that jumps
// into generated code are external collaborators; this package only owns
// the translation cache and the loop that drives them.
package runtime

import (
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// ErrUntranslatable is returned when TranslateFunc cannot produce host code
// for a guest PC; a failed translation surfaces to the caller as an error
// status from the invoke loop.
var ErrUntranslatable = errors.New("runtime: untranslatable guest PC")

// CacheEntry is one guest-PC -> host-entry-point mapping.
type CacheEntry struct {
	GuestPC  uint64
	HostEntry uintptr
}

// Cache is the shared translation cache: lookup-or-insert under one mutex,
// entries never mutated after insert.
type Cache struct {
	mu      sync.Mutex
	entries map[uint64]CacheEntry
}

// NewCache returns an empty translation cache.
func NewCache() *Cache {
	return &Cache{entries: make(map[uint64]CacheEntry)}
}

// LookupOrInsert returns the cached entry for pc if present; otherwise it
// calls fill to produce one, stores it, and returns it. fill runs with the
// cache's mutex held — concurrent translations of different chunks still
// serialize at this one point, but not during the (possibly slow)
// translation work a caller might choose to do outside fill.
func (c *Cache) LookupOrInsert(pc uint64, fill func() (CacheEntry, error)) (CacheEntry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[pc]; ok {
		return e, nil
	}
	e, err := fill()
	if err != nil {
		return CacheEntry{}, err
	}
	c.entries[pc] = e
	return e, nil
}

// TranslateFunc produces and commits host code for the guest function
// starting at pc, returning its host entry point. It is supplied by the
// caller wiring decode+lift+xctx+opt+mcode together (see cmd/hexliftc for
// an end-to-end example); this package only calls it on a cache miss.
type TranslateFunc func(pc uint64) (uintptr, error)

// InvokeFunc enters generated host code at entry and runs until the guest
// thread either returns normally or hits an untranslated PC, returning the
// next guest PC to resume at and a non-zero status on the latter. The real
// implementation is an assembly trampoline outside this module; tests
// supply a stand-in.
type InvokeFunc func(entry uintptr) (nextPC uint64, status int)

// Dispatcher runs one guest thread's PC -> find/translate -> invoke loop.
// Each guest thread gets its own Dispatcher sharing one *Cache: CPU-state
// structs are per-thread and never shared, but the cache is.
type Dispatcher struct {
	Cache     *Cache
	Translate TranslateFunc
	Invoke    InvokeFunc
	Log       *zap.Logger
}

// NewDispatcher builds a Dispatcher over a shared cache.
func NewDispatcher(cache *Cache, translate TranslateFunc, invoke InvokeFunc, log *zap.Logger) *Dispatcher {
	return &Dispatcher{Cache: cache, Translate: translate, Invoke: invoke, Log: log}
}

// Run drives the dispatch loop starting at entryPC until Invoke reports a
// non-recoverable status or ctx-less completion (status 0 with no further
// PC, i.e. the guest program returned). It never blocks on I/O itself;
// Translate may "no operation internal to translation
// blocks on I/O" is a property of the translation pipeline, not of
// whatever the caller's Translate hook chooses to do.
func (d *Dispatcher) Run(entryPC uint64) error {
	pc := entryPC
	for {
		entry, err := d.Cache.LookupOrInsert(pc, func() (CacheEntry, error) {
			host, err := d.Translate(pc)
			if err != nil {
				return CacheEntry{}, err
			}
			return CacheEntry{GuestPC: pc, HostEntry: host}, nil
		})
		if err != nil {
			if d.Log != nil {
				d.Log.Error("translation failed", zap.Uint64("guest_pc", pc), zap.Error(err))
			}
			return errors.Wrapf(err, "runtime: translating guest PC 0x%x", pc)
		}

		next, status := d.Invoke(entry.HostEntry)
		if status != 0 {
			if d.Log != nil {
				d.Log.Error("invoke_code returned untranslatable PC", zap.Uint64("guest_pc", next), zap.Int("status", status))
			}
			return errors.Wrapf(ErrUntranslatable, "guest PC 0x%x (status %d)", next, status)
		}
		if next == 0 {
			return nil
		}
		pc = next
	}
}
