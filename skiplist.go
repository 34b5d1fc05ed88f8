package memtable

import (
	"sync/atomic"

	"github.com/syndtr/goleveldb/leveldb/comparer"
)

// Skiplist is a sorted map over byte keys whose nodes live in a single
// Arena. Put and Get are safe for concurrent use without locks.
//
// Equal keys are not overwritten in place: a put links a new node in front
// of the older ones, so lookups return the most recently written value.
type Skiplist struct {
	arena  *Arena
	cmp    comparer.BasicComparer
	head   uint32
	height atomic.Uint32 // tallest tower in use, an upper bound for searches
	count  atomic.Int64
}

// NewSkiplist creates a skip list backed by a fresh arena of
// o.MemtableSize bytes.
func NewSkiplist(o *Options) *Skiplist {
	o = o.norm()

	s := &Skiplist{
		arena: NewArena(o.MemtableSize),
		cmp:   o.Comparer,
	}
	s.init()
	return s
}

func (s *Skiplist) init() {
	head, err := s.newNode(nil, nil, MaxTowerHeight)
	if err != nil {
		panic("memtable: arena too small for head node")
	}
	s.head = head
	s.height.Store(1)
	s.count.Store(0)
}

// Reset discards all entries and rewinds the arena. It must not be called
// while the list is accessed concurrently.
func (s *Skiplist) Reset() {
	s.arena.reset()
	s.init()
}

// Len returns the number of nodes, including shadowed versions of a key.
func (s *Skiplist) Len() int { return int(s.count.Load()) }

// Size returns the number of arena bytes in use.
func (s *Skiplist) Size() int { return s.arena.Size() }

// Capacity returns the arena capacity.
func (s *Skiplist) Capacity() int { return s.arena.Capacity() }

// Put inserts a key/value pair. It returns ErrArenaFull if the arena cannot
// hold the entry, in which case the list is left untouched.
func (s *Skiplist) Put(key, value []byte) error {
	if len(key) > MaxKeySize {
		return ErrKeyTooLarge
	}

	height := randomHeight()
	nd, err := s.newNode(key, value, height)
	if err != nil {
		return err
	}

	// link level 0 first so the node is reachable as soon as possible
	for lvl := 0; lvl < height; lvl++ {
		for {
			prev, next := s.findSplice(key, lvl)
			s.arena.setNextOffset(nd, lvl, next)
			if s.arena.casNextOffset(prev, lvl, next, nd) {
				break
			}
		}
	}

	for {
		cur := s.height.Load()
		if uint32(height) <= cur || s.height.CompareAndSwap(cur, uint32(height)) {
			break
		}
	}
	s.count.Add(1)
	return nil
}

// Get returns a copy of the latest value stored for key.
// It may return an ErrNotFound error.
func (s *Skiplist) Get(key []byte) ([]byte, error) {
	return s.Append(nil, key)
}

// Append retrieves the latest value for key and appends it to dst.
// It may return an ErrNotFound error.
func (s *Skiplist) Append(dst, key []byte) ([]byte, error) {
	nd := s.find(key)
	if nd == 0 {
		return dst, ErrNotFound
	}
	return append(dst, s.arena.nodeValue(nd)...), nil
}

func (s *Skiplist) newNode(key, value []byte, height int) (uint32, error) {
	nd, err := s.arena.allocateNode(height)
	if err != nil {
		return 0, err
	}
	if err := s.arena.writeNode(nd, key, value, height); err != nil {
		return 0, err
	}
	return nd, nil
}

func (s *Skiplist) topLevel() int {
	return int(s.height.Load()) - 1
}

// find returns the first node equal to key or 0.
func (s *Skiplist) find(key []byte) uint32 {
	nd, eq := s.findGreaterOrEqual(key)
	if !eq {
		return 0
	}
	return nd
}

// findGreaterOrEqual returns the first node at level 0 whose key is >= key.
func (s *Skiplist) findGreaterOrEqual(key []byte) (uint32, bool) {
	prev := s.head
	var next uint32
	for lvl := s.topLevel(); lvl >= 0; lvl-- {
		prev, next = s.walk(prev, key, lvl)
	}
	if next == 0 {
		return 0, false
	}
	return next, s.cmp.Compare(s.arena.nodeKey(next), key) == 0
}

// findSplice returns the nodes between which key is to be linked at lvl:
// the last node with a key < key and its successor.
func (s *Skiplist) findSplice(key []byte, lvl int) (prev, next uint32) {
	top := s.topLevel()
	if top < lvl {
		top = lvl
	}

	prev = s.head
	for l := top; l >= lvl; l-- {
		prev, next = s.walk(prev, key, l)
	}
	return prev, next
}

// walk follows lvl from prev while the successor's key is < key.
func (s *Skiplist) walk(prev uint32, key []byte, lvl int) (uint32, uint32) {
	for {
		next := s.arena.nextOffset(prev, lvl)
		if next == 0 || s.cmp.Compare(s.arena.nodeKey(next), key) >= 0 {
			return prev, next
		}
		prev = next
	}
}

// findLessThan returns the last node whose key is < key, or 0.
func (s *Skiplist) findLessThan(key []byte) uint32 {
	prev := s.head
	for lvl := s.topLevel(); lvl >= 0; lvl-- {
		prev, _ = s.walk(prev, key, lvl)
	}
	if prev == s.head {
		return 0
	}
	return prev
}

// findLast returns the last node, or 0 if the list is empty.
func (s *Skiplist) findLast() uint32 {
	cur := s.head
	for lvl := s.topLevel(); lvl >= 0; lvl-- {
		for {
			next := s.arena.nextOffset(cur, lvl)
			if next == 0 {
				break
			}
			cur = next
		}
	}
	if cur == s.head {
		return 0
	}
	return cur
}
