package memtable

import (
	"errors"
	"io"
	"runtime"
	"sync/atomic"

	"github.com/bsm/memtable/table"
	"github.com/syndtr/goleveldb/leveldb/iterator"
)

// MaxKeySize is the maximum key length in bytes.
const MaxKeySize = 1<<16 - 1

// ErrNotFound is returned when a key cannot be found.
var ErrNotFound = errors.New("memtable: not found")

var (
	// ErrArenaFull is returned when an arena has no room left for an entry.
	ErrArenaFull = errors.New("memtable: arena is full")
	// ErrQueueFull is returned when a full memtable cannot be rotated
	// because the immutable queue is at capacity. Writers should back off
	// until a flush completes.
	ErrQueueFull = errors.New("memtable: immutable queue is full")
	// ErrKeyTooLarge is returned for keys longer than MaxKeySize.
	ErrKeyTooLarge = errors.New("memtable: key too large")
	// ErrEntryTooLarge is returned for entries that would not fit into an
	// empty memtable.
	ErrEntryTooLarge = errors.New("memtable: entry too large")
)

var errSealed = errors.New("memtable: is sealed")

var memtableID uint64

// Memtable is a skip list owned by a Manager. Once sealed it is read-only.
type Memtable struct {
	skl *Skiplist
	id  atomic.Uint64

	sealed  atomic.Bool
	retired atomic.Bool // set while the arena is being reset
	writers atomic.Int32
	readers atomic.Int32
}

func newMemtable(o *Options) *Memtable {
	m := &Memtable{skl: NewSkiplist(o)}
	m.id.Store(atomic.AddUint64(&memtableID, 1))
	return m
}

// ID returns a process-unique identifier. It changes when the memtable
// is recycled.
func (m *Memtable) ID() uint64 { return m.id.Load() }

// Get returns the latest value for key.
// It may return an ErrNotFound error.
func (m *Memtable) Get(key []byte) ([]byte, error) {
	if !m.acquire() {
		return nil, ErrNotFound
	}
	defer m.release()

	return m.skl.Get(key)
}

// Len returns the number of entries, including shadowed versions.
func (m *Memtable) Len() int { return m.skl.Len() }

// Size returns the number of arena bytes in use.
func (m *Memtable) Size() int { return m.skl.Size() }

// Sealed returns true once the memtable no longer accepts writes.
func (m *Memtable) Sealed() bool { return m.sealed.Load() }

// NewIterator returns an iterator over the latest version of every key.
// The memtable cannot be recycled until the iterator is released.
func (m *Memtable) NewIterator() iterator.Iterator {
	if !m.acquire() {
		return iterator.NewEmptyIterator(nil)
	}

	iter := m.skl.NewIterator()
	iter.SetReleaser(releaseFunc(m.release))
	return iter
}

// WriteTable serializes the memtable into a sorted table. The memtable
// should be sealed first.
func (m *Memtable) WriteTable(w io.Writer, o *table.WriterOptions) error {
	if o == nil {
		o = new(table.WriterOptions)
	}
	if o.Comparer == nil {
		oo := *o
		oo.Comparer = m.skl.cmp
		o = &oo
	}

	tw := table.NewWriter(w, o)
	iter := m.NewIterator()
	defer iter.Release()

	for iter.Next() {
		if err := tw.Append(iter.Key(), iter.Value()); err != nil {
			_ = tw.Close()
			return err
		}
	}
	return tw.Close()
}

func (m *Memtable) put(key, value []byte) error {
	m.writers.Add(1)
	defer m.writers.Add(-1)

	if m.sealed.Load() {
		return errSealed
	}
	return m.skl.Put(key, value)
}

func (m *Memtable) seal() { m.sealed.Store(true) }

// drain waits for writers that entered before the seal.
func (m *Memtable) drain() {
	for m.writers.Load() > 0 {
		runtime.Gosched()
	}
}

// acquire pins the arena for reading. It fails while the memtable is being
// recycled, its previous contents are gone by then.
func (m *Memtable) acquire() bool {
	m.readers.Add(1)
	if m.retired.Load() {
		m.readers.Add(-1)
		return false
	}
	return true
}

func (m *Memtable) release() { m.readers.Add(-1) }

// recycle resets a sealed memtable once all readers and writers are gone.
// It returns false if the memtable is already being recycled.
func (m *Memtable) recycle() bool {
	if !m.retired.CompareAndSwap(false, true) {
		return false
	}
	for m.readers.Load() > 0 || m.writers.Load() > 0 {
		runtime.Gosched()
	}

	m.skl.Reset()
	m.id.Store(atomic.AddUint64(&memtableID, 1))
	m.sealed.Store(false)
	m.retired.Store(false)
	return true
}

type releaseFunc func()

func (f releaseFunc) Release() { f() }
