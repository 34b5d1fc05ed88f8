package memtable

import (
	"math"

	"github.com/syndtr/goleveldb/leveldb/comparer"
)

const (
	defaultMemtableSize = 64 << 20
	minMemtableSize     = 1 << 10
	defaultMaxMemtables = 4
)

// Options define memtable and manager specific options.
type Options struct {
	// MemtableSize is the arena capacity in bytes of every memtable.
	// Default: 64MiB.
	MemtableSize int

	// MaxMemtables is the total number of memtables a manager may hold.
	// Two of them are active, the remaining MaxMemtables-2 may be
	// immutable and waiting for a flush. Must be at least 3.
	// Default: 4.
	MaxMemtables int

	// Comparer defines the ordering of keys.
	// Default: comparer.DefaultComparer (bytewise).
	Comparer comparer.BasicComparer
}

func (o *Options) norm() *Options {
	var oo Options
	if o != nil {
		oo = *o
	}

	if oo.MemtableSize < 1 {
		oo.MemtableSize = defaultMemtableSize
	} else if oo.MemtableSize < minMemtableSize {
		oo.MemtableSize = minMemtableSize
	} else if uint64(oo.MemtableSize) > math.MaxUint32 {
		oo.MemtableSize = math.MaxUint32
	}
	if oo.MaxMemtables < 3 {
		oo.MaxMemtables = defaultMaxMemtables
	}
	if oo.Comparer == nil {
		oo.Comparer = comparer.DefaultComparer
	}

	return &oo
}

func (o *Options) maxImmutable() int {
	return o.MaxMemtables - 2
}
