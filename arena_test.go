package memtable_test

import (
	"math/rand"
	"sort"
	"sync"

	"github.com/bsm/memtable"
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

var _ = Describe("Arena", func() {
	var subject *memtable.Arena

	BeforeEach(func() {
		subject = memtable.NewArena(64)
	})

	It("should init", func() {
		Expect(subject.Capacity()).To(Equal(64))
		Expect(subject.Size()).To(Equal(1))
	})

	It("should reserve aligned", func() {
		Expect(subject.Reserve(10)).To(Equal(uint32(8)))
		Expect(subject.Size()).To(Equal(24))
		Expect(subject.Reserve(1)).To(Equal(uint32(24)))
		Expect(subject.Size()).To(Equal(32))
	})

	It("should put bytes unaligned", func() {
		Expect(subject.Reserve(1)).To(Equal(uint32(8)))
		Expect(subject.PutBytes([]byte("abc"))).To(Equal(uint32(16)))
		Expect(subject.PutBytes([]byte("de"))).To(Equal(uint32(19)))
		Expect(subject.Size()).To(Equal(21))
		Expect(subject.Bytes(16, 5)).To(Equal([]byte("abcde")))

		Expect(subject.Reserve(8)).To(Equal(uint32(24)))
		Expect(subject.PutBytes(nil)).To(Equal(uint32(32)))
		Expect(subject.Size()).To(Equal(32))
	})

	It("should fail when full without moving the cursor", func() {
		Expect(subject.Reserve(48)).To(Equal(uint32(8)))
		Expect(subject.Reserve(8)).To(Equal(uint32(56)))
		Expect(subject.Size()).To(Equal(64))

		_, err := subject.Reserve(1)
		Expect(err).To(MatchError(memtable.ErrArenaFull))
		_, err = subject.PutBytes([]byte("x"))
		Expect(err).To(MatchError(memtable.ErrArenaFull))
		Expect(subject.Size()).To(Equal(64))
	})

	It("should fail on unaligned tail", func() {
		Expect(subject.PutBytes(make([]byte, 57))).To(Equal(uint32(1)))
		_, err := subject.Reserve(8)
		Expect(err).To(MatchError(memtable.ErrArenaFull))
		Expect(subject.PutBytes(make([]byte, 6))).To(Equal(uint32(58)))
	})

	It("should reset", func() {
		Expect(subject.Reserve(40)).To(Equal(uint32(8)))
		subject.Reset()
		Expect(subject.Size()).To(Equal(1))
		Expect(subject.Reserve(40)).To(Equal(uint32(8)))
	})

	It("should hand out disjoint ranges concurrently", func() {
		type span struct{ off, n uint32 }

		arena := memtable.NewArena(256 << 10)
		spans := make([][]span, 8)

		var wg sync.WaitGroup
		for w := range spans {
			wg.Add(1)
			go func(w int) {
				defer GinkgoRecover()
				defer wg.Done()

				rnd := rand.New(rand.NewSource(int64(w)))
				for {
					n := rnd.Intn(64) + 1
					var off uint32
					var err error
					if rnd.Intn(2) == 0 {
						off, err = arena.Reserve(n)
						Expect(off % 8).To(BeZero())
					} else {
						off, err = arena.PutBytes(make([]byte, n))
					}
					if err == memtable.ErrArenaFull {
						return
					}
					Expect(err).NotTo(HaveOccurred())
					spans[w] = append(spans[w], span{off: off, n: uint32(n)})
				}
			}(w)
		}
		wg.Wait()

		var all []span
		for _, ss := range spans {
			all = append(all, ss...)
		}
		sort.Slice(all, func(i, j int) bool { return all[i].off < all[j].off })

		Expect(len(all)).To(BeNumerically(">", 1000))
		Expect(all[0].off).To(BeNumerically(">=", 1))
		for i := 1; i < len(all); i++ {
			Expect(all[i-1].off + all[i-1].n).To(BeNumerically("<=", all[i].off))
		}
		last := all[len(all)-1]
		Expect(last.off + last.n).To(BeNumerically("<=", arena.Capacity()))
	})

	It("should only move the cursor forward", func() {
		arena := memtable.NewArena(1 << 20)
		done := make(chan struct{})

		var wg sync.WaitGroup
		for w := 0; w < 4; w++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for {
					if _, err := arena.Reserve(24); err != nil {
						return
					}
				}
			}()
		}
		go func() {
			wg.Wait()
			close(done)
		}()

		prev := arena.Size()
		for running := true; running; {
			select {
			case <-done:
				running = false
			default:
			}
			cur := arena.Size()
			Expect(cur).To(BeNumerically(">=", prev))
			prev = cur
		}
		Expect(arena.Size()).To(BeNumerically("<=", arena.Capacity()))
	})
})
