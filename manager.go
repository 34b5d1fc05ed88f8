package memtable

import (
	"sync"
	"sync/atomic"

	"github.com/syndtr/goleveldb/leveldb/iterator"
)

// tables is an immutable snapshot of the manager's memtables.
type tables struct {
	active    [2]*Memtable // [0] receives writes, [1] is on standby
	immutable []*Memtable  // oldest first
}

// Manager owns a bounded pool of memtables. At most two of them are
// active, the rest are sealed and wait for an external flush.
type Manager struct {
	o *Options

	mu    sync.Mutex // serializes rotation
	state atomic.Pointer[tables]
}

// NewManager creates a new manager. Active memtables are created lazily.
func NewManager(o *Options) *Manager {
	m := &Manager{o: o.norm()}
	m.state.Store(new(tables))
	return m
}

// MemtableSize returns the configured arena capacity of each memtable.
func (m *Manager) MemtableSize() int { return m.o.MemtableSize }

// NumActive returns the number of active memtables.
func (m *Manager) NumActive() int {
	n := 0
	for _, t := range m.state.Load().active {
		if t != nil {
			n++
		}
	}
	return n
}

// NumImmutable returns the number of sealed memtables waiting for a flush.
func (m *Manager) NumImmutable() int { return len(m.state.Load().immutable) }

// Put writes a key/value pair into the active memtable. If the memtable is
// full, it is sealed and the write is retried against its replacement. Put
// returns ErrQueueFull when no further memtable can be sealed until
// SealOldestImmutable is called.
//
// Entries that would not fit into an empty memtable are rejected upfront
// with ErrEntryTooLarge, a retry against a fresh memtable always succeeds.
func (m *Manager) Put(key, value []byte) error {
	if len(key) > MaxKeySize {
		return ErrKeyTooLarge
	}
	if nodeSize(len(key), len(value), MaxTowerHeight) > m.o.MemtableSize-headNodeSize() {
		return ErrEntryTooLarge
	}

	for {
		t, err := m.writable()
		if err != nil {
			return err
		}
		id := t.ID()

		switch err := t.put(key, value); err {
		case errSealed:
			// lost the race against a rotation, try the new active memtable
		case ErrArenaFull:
			if err := m.rotate(t, id); err != nil {
				return err
			}
		default:
			return err
		}
	}
}

// Get looks up key in the active memtables, then in the immutable ones from
// newest to oldest.
// It may return an ErrNotFound error.
func (m *Manager) Get(key []byte) ([]byte, error) {
	s := m.state.Load()
	for _, t := range s.active {
		if t == nil {
			continue
		}
		if val, err := t.Get(key); err != ErrNotFound {
			return val, err
		}
	}
	for i := len(s.immutable) - 1; i >= 0; i-- {
		if val, err := s.immutable[i].Get(key); err != ErrNotFound {
			return val, err
		}
	}
	return nil, ErrNotFound
}

// SealOldestImmutable removes and returns the oldest sealed memtable for
// flushing, or nil if there is none. Writes that were in flight when the
// memtable was sealed have completed when it is returned.
func (m *Manager) SealOldestImmutable() *Memtable {
	m.mu.Lock()
	s := m.state.Load()
	if len(s.immutable) == 0 {
		m.mu.Unlock()
		return nil
	}

	oldest := s.immutable[0]
	next := &tables{
		active:    s.active,
		immutable: append([]*Memtable(nil), s.immutable[1:]...),
	}
	m.state.Store(next)
	m.mu.Unlock()

	oldest.drain()
	return oldest
}

// Recycle resets a flushed memtable and keeps it on standby to replace the
// next full one. The memtable must have been returned by
// SealOldestImmutable. Recycle blocks until concurrent readers have left
// the memtable, including open iterators. It returns false if the standby
// slot is already taken.
func (m *Manager) Recycle(t *Memtable) bool {
	if t == nil || !t.Sealed() || t.skl.Capacity() != m.o.MemtableSize {
		return false
	}

	m.mu.Lock()
	s := m.state.Load()
	busy := s.active[1] != nil
	for _, x := range s.immutable {
		busy = busy || x == t
	}
	m.mu.Unlock()

	if busy {
		return false
	}

	if !t.recycle() {
		return false
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	s = m.state.Load()
	if s.active[1] != nil {
		return false
	}

	next := &tables{active: s.active, immutable: s.immutable}
	if next.active[0] == nil {
		next.active[0] = t
	} else {
		next.active[1] = t
	}
	m.state.Store(next)
	return true
}

// NewIterator returns an iterator across all memtables. For keys present
// in multiple memtables only the newest value is visible.
func (m *Manager) NewIterator() iterator.Iterator {
	s := m.state.Load()

	iters := make([]iterator.Iterator, 0, len(s.active)+len(s.immutable))
	for _, t := range s.active {
		if t != nil {
			iters = append(iters, t.NewIterator())
		}
	}
	for i := len(s.immutable) - 1; i >= 0; i-- {
		iters = append(iters, s.immutable[i].NewIterator())
	}
	return newMergedIterator(iters, m.o.Comparer)
}

// writable returns the memtable that currently receives writes.
func (m *Manager) writable() (*Memtable, error) {
	if t := m.state.Load().active[0]; t != nil {
		return t, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	s := m.state.Load()
	if s.active[0] != nil {
		return s.active[0], nil
	}

	next := &tables{active: s.active, immutable: s.immutable}
	next.active[0] = newMemtable(m.o)
	m.state.Store(next)
	return next.active[0], nil
}

// rotate seals full and promotes a fresh memtable. Only the first caller for
// a given memtable rotates, later callers return immediately. id guards
// against full having been recycled and promoted again in the meantime.
func (m *Manager) rotate(full *Memtable, id uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := m.state.Load()
	if s.active[0] != full || full.ID() != id {
		return nil
	}
	if len(s.immutable) >= m.o.maxImmutable() {
		return ErrQueueFull
	}

	full.seal()
	next := &tables{
		immutable: append(append(make([]*Memtable, 0, len(s.immutable)+1), s.immutable...), full),
	}
	if s.active[1] != nil {
		next.active[0] = s.active[1]
	} else {
		next.active[0] = newMemtable(m.o)
	}
	m.state.Store(next)
	return nil
}

func headNodeSize() int {
	return nodeSize(0, 0, MaxTowerHeight)
}
