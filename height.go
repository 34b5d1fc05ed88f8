package memtable

import (
	"math/bits"
	"sync"
	"sync/atomic"
	"time"
)

// MaxTowerHeight is the maximum height of a node tower. With a branching
// factor of 4, 20 levels comfortably index a 64MiB arena.
const MaxTowerHeight = 20

var heightSeq uint64

// heightGen is a xorshift64 generator. It is not safe for concurrent use,
// every call context must own its own instance.
type heightGen struct {
	state uint64
}

func newHeightGen() *heightGen {
	x := uint64(time.Now().UnixNano()) ^ atomic.AddUint64(&heightSeq, 1)*0x9E3779B97F4A7C15
	x ^= x << 21
	x ^= x >> 35
	x ^= x << 4
	return &heightGen{state: x | 1}
}

// next advances the state and returns the low 32 bits.
func (g *heightGen) next() uint32 {
	x := g.state
	x ^= x << 13
	x ^= x >> 7
	x ^= x << 17
	g.state = x
	return uint32(x)
}

// height returns a tower height in [1, MaxTowerHeight], geometrically
// distributed with p = 1/4 per additional level.
func (g *heightGen) height() int {
	h := bits.TrailingZeros32(g.next())>>1 + 1
	if h > MaxTowerHeight {
		h = MaxTowerHeight
	}
	return h
}

var heightPool = sync.Pool{
	New: func() interface{} { return newHeightGen() },
}

func randomHeight() int {
	g := heightPool.Get().(*heightGen)
	h := g.height()
	heightPool.Put(g)
	return h
}
