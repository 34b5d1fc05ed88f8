package memtable

import (
	"errors"

	"github.com/syndtr/goleveldb/leveldb/iterator"
	"github.com/syndtr/goleveldb/leveldb/util"
)

var errIterReleased = errors.New("memtable: iterator released")

var _ iterator.Iterator = (*Iterator)(nil)

// Iterator walks the skip list in key order. Shadowed versions of a key are
// skipped, only the latest one is visible. Keys and values point into the
// arena and must be copied if used after the memtable is recycled.
//
// Iterators are not safe for concurrent use, but may run concurrently with
// writers.
type Iterator struct {
	util.BasicReleaser

	skl *Skiplist
	nd  uint32
	pos iterPos
	err error

	key, val []byte
}

type iterPos uint8

const (
	posNone iterPos = iota // unpositioned
	posSOI                 // before the first entry
	posEOI                 // after the last entry
	posEntry
)

// NewIterator returns an unpositioned iterator.
func (s *Skiplist) NewIterator() *Iterator {
	return &Iterator{skl: s}
}

func (i *Iterator) released() bool {
	if i.Released() {
		i.err = errIterReleased
		i.nd = 0
		return true
	}
	return false
}

func (i *Iterator) set(nd uint32, exhausted iterPos) bool {
	i.nd = nd
	if nd == 0 {
		i.key, i.val = nil, nil
		i.pos = exhausted
		return false
	}
	i.key, i.val, _ = i.skl.arena.decodeNode(nd)
	i.pos = posEntry
	return true
}

// First moves to the first key.
func (i *Iterator) First() bool {
	if i.released() {
		return false
	}
	return i.set(i.skl.arena.nextOffset(i.skl.head, 0), posEOI)
}

// Last moves to the last key.
func (i *Iterator) Last() bool {
	if i.released() {
		return false
	}
	nd := i.skl.findLast()
	if nd != 0 {
		nd, _ = i.skl.findGreaterOrEqual(i.skl.arena.nodeKey(nd))
	}
	return i.set(nd, posSOI)
}

// Seek moves to the first key >= key.
func (i *Iterator) Seek(key []byte) bool {
	if i.released() {
		return false
	}
	nd, _ := i.skl.findGreaterOrEqual(key)
	return i.set(nd, posEOI)
}

// Next moves to the next key. An unpositioned iterator, or one that was
// moved before the first entry, moves to the first key.
func (i *Iterator) Next() bool {
	if i.released() {
		return false
	}
	switch i.pos {
	case posNone, posSOI:
		return i.First()
	case posEOI:
		return false
	}

	a := i.skl.arena
	nd := a.nextOffset(i.nd, 0)
	for nd != 0 && i.skl.cmp.Compare(a.nodeKey(nd), i.key) == 0 {
		nd = a.nextOffset(nd, 0)
	}
	return i.set(nd, posEOI)
}

// Prev moves to the previous key. An unpositioned iterator, or one that
// was moved past the last entry, moves to the last key.
func (i *Iterator) Prev() bool {
	if i.released() {
		return false
	}
	switch i.pos {
	case posNone, posEOI:
		return i.Last()
	case posSOI:
		return false
	}

	nd := i.skl.findLessThan(i.key)
	if nd != 0 {
		nd, _ = i.skl.findGreaterOrEqual(i.skl.arena.nodeKey(nd))
	}
	return i.set(nd, posSOI)
}

// Valid returns true if the iterator is positioned on an entry.
func (i *Iterator) Valid() bool { return i.nd != 0 && !i.Released() }

// Key returns the current key.
func (i *Iterator) Key() []byte {
	if !i.Valid() {
		return nil
	}
	return i.key
}

// Value returns the current value.
func (i *Iterator) Value() []byte {
	if !i.Valid() {
		return nil
	}
	return i.val
}

// Error returns errIterReleased once the iterator was used after Release.
func (i *Iterator) Error() error { return i.err }
