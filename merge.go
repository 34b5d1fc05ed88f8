package memtable

import (
	"github.com/syndtr/goleveldb/leveldb/comparer"
	"github.com/syndtr/goleveldb/leveldb/iterator"
	"github.com/syndtr/goleveldb/leveldb/util"
)

// mergedIterator merges iterators ordered newest first. When several of
// them hold the same key, the value of the newest one wins and the others
// are skipped.
type mergedIterator struct {
	util.BasicReleaser

	iters   []iterator.Iterator
	cmp     comparer.BasicComparer
	index   int
	key     []byte
	pos     iterPos
	forward bool
	err     error
}

func newMergedIterator(iters []iterator.Iterator, cmp comparer.BasicComparer) *mergedIterator {
	return &mergedIterator{iters: iters, cmp: cmp, index: -1}
}

func (i *mergedIterator) released() bool {
	if i.Released() {
		i.err = errIterReleased
		i.index = -1
		return true
	}
	return false
}

// pick selects the smallest (forward) or largest key, preferring the
// lowest index on ties.
func (i *mergedIterator) pick(exhausted iterPos) bool {
	i.index = -1
	for x, it := range i.iters {
		if !it.Valid() {
			continue
		}
		if i.index < 0 {
			i.index = x
			continue
		}
		c := i.cmp.Compare(it.Key(), i.iters[i.index].Key())
		if (i.forward && c < 0) || (!i.forward && c > 0) {
			i.index = x
		}
	}

	if i.index < 0 {
		i.pos = exhausted
		return false
	}
	i.pos = posEntry
	i.key = append(i.key[:0], i.iters[i.index].Key()...)
	return true
}

func (i *mergedIterator) First() bool {
	if i.released() {
		return false
	}
	for _, it := range i.iters {
		it.First()
	}
	i.forward = true
	return i.pick(posEOI)
}

func (i *mergedIterator) Last() bool {
	if i.released() {
		return false
	}
	for _, it := range i.iters {
		it.Last()
	}
	i.forward = false
	return i.pick(posSOI)
}

func (i *mergedIterator) Seek(key []byte) bool {
	if i.released() {
		return false
	}
	for _, it := range i.iters {
		it.Seek(key)
	}
	i.forward = true
	return i.pick(posEOI)
}

func (i *mergedIterator) Next() bool {
	if i.released() {
		return false
	}
	switch i.pos {
	case posNone, posSOI:
		return i.First()
	case posEOI:
		return false
	}

	if !i.forward {
		for _, it := range i.iters {
			it.Seek(i.key)
		}
		i.forward = true
	}
	for _, it := range i.iters {
		if it.Valid() && i.cmp.Compare(it.Key(), i.key) == 0 {
			it.Next()
		}
	}
	return i.pick(posEOI)
}

func (i *mergedIterator) Prev() bool {
	if i.released() {
		return false
	}
	switch i.pos {
	case posNone, posEOI:
		return i.Last()
	case posSOI:
		return false
	}

	if i.forward {
		for _, it := range i.iters {
			if it.Seek(i.key) {
				it.Prev()
			} else {
				it.Last()
			}
		}
		i.forward = false
	} else {
		for _, it := range i.iters {
			if it.Valid() && i.cmp.Compare(it.Key(), i.key) == 0 {
				it.Prev()
			}
		}
	}
	return i.pick(posSOI)
}

func (i *mergedIterator) Valid() bool { return i.index >= 0 && !i.Released() }

func (i *mergedIterator) Key() []byte {
	if !i.Valid() {
		return nil
	}
	return i.iters[i.index].Key()
}

func (i *mergedIterator) Value() []byte {
	if !i.Valid() {
		return nil
	}
	return i.iters[i.index].Value()
}

func (i *mergedIterator) Error() error { return i.err }

func (i *mergedIterator) Release() {
	if !i.Released() {
		for _, it := range i.iters {
			it.Release()
		}
	}
	i.BasicReleaser.Release()
}
