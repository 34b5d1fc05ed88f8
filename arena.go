package memtable

import (
	"sync/atomic"
	"unsafe"
)

const arenaAlign = 8

// Arena is a fixed-capacity byte buffer with a lock-free bump allocator.
// Offset 0 is reserved as the NULL pointer and never handed out.
type Arena struct {
	cursor atomic.Uint32
	buf    []byte
}

// NewArena creates an arena with the given capacity in bytes.
func NewArena(capacity int) *Arena {
	a := &Arena{buf: make([]byte, capacity)}
	a.cursor.Store(1)
	return a
}

// Size returns the number of bytes allocated so far, including the
// reserved NULL byte and alignment padding.
func (a *Arena) Size() int { return int(a.cursor.Load()) }

// Capacity returns the fixed capacity.
func (a *Arena) Capacity() int { return len(a.buf) }

// reserve allocates size bytes at an 8-byte aligned offset.
func (a *Arena) reserve(size int) (uint32, error) {
	total := align(uint64(size))
	for {
		cur := a.cursor.Load()
		start := align(uint64(cur))
		next := start + total
		if next > uint64(len(a.buf)) {
			return 0, ErrArenaFull
		}
		if a.cursor.CompareAndSwap(cur, uint32(next)) {
			return uint32(start), nil
		}
	}
}

// putBytes appends p without alignment and returns its offset. Only opaque
// payloads may use this path.
func (a *Arena) putBytes(p []byte) (uint32, error) {
	for {
		cur := a.cursor.Load()
		next := uint64(cur) + uint64(len(p))
		if next > uint64(len(a.buf)) {
			return 0, ErrArenaFull
		}
		if a.cursor.CompareAndSwap(cur, uint32(next)) {
			copy(a.buf[cur:next], p)
			return cur, nil
		}
	}
}

// bytes returns a view of n bytes at off.
func (a *Arena) bytes(off uint32, n uint32) []byte {
	return a.buf[off : off+n : off+n]
}

// slot returns the 4-byte aligned word at off for atomic access. This is
// the only place the arena buffer is reinterpreted.
func (a *Arena) slot(off uint32) *uint32 {
	_ = a.buf[off+3]
	return (*uint32)(unsafe.Pointer(&a.buf[off]))
}

// reset discards all allocations. Callers must ensure the arena is no
// longer accessed concurrently.
func (a *Arena) reset() {
	a.cursor.Store(1)
}

func align(n uint64) uint64 {
	return (n + arenaAlign - 1) &^ (arenaAlign - 1)
}
