package table_test

import (
	"bytes"
	"fmt"

	"github.com/bsm/memtable/table"
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
	"github.com/onsi/gomega/types"
)

var _ = Describe("Reader", func() {
	var subject *table.Reader

	HavePos := func(n int) types.GomegaMatcher {
		return WithTransform(func(x interface{ Pos() int }) int {
			return x.Pos()
		}, Equal(n))
	}

	// The following will seed 100 keys into 2 blocks:
	//
	// B0: key00000000..key00000240
	// B1: key00000244..key00000396
	//
	BeforeEach(func() {
		var err error
		subject, err = seedReader(100)
		Expect(err).NotTo(HaveOccurred())
	})

	It("should init", func() {
		Expect(subject.NumBlocks()).To(BeNumerically(">", 1))

		tr10k, err := seedReader(10000)
		Expect(err).NotTo(HaveOccurred())
		Expect(tr10k.NumBlocks()).To(BeNumerically(">", 100*subject.NumBlocks()/2))
	})

	It("should reject bad input", func() {
		_, err := table.NewReader(bytes.NewReader([]byte("short")), 5, nil)
		Expect(err).To(MatchError(`table: bad magic byte sequence`))

		junk := bytes.Repeat([]byte{'x'}, 64)
		_, err = table.NewReader(bytes.NewReader(junk), int64(len(junk)), nil)
		Expect(err).To(MatchError(`table: bad magic byte sequence`))
	})

	It("should Get/Append", func() {
		for i := 0; i <= 396; i += 4 {
			sfx := fmt.Sprintf("%08d", i)
			Expect(subject.Get(seedKey(i))).To(HaveSuffix(sfx), "for %d", i)
		}

		_, err := subject.Get(seedKey(1))
		Expect(err).To(MatchError(table.ErrNotFound))
		_, err = subject.Get(seedKey(395))
		Expect(err).To(MatchError(table.ErrNotFound))
		_, err = subject.Get(seedKey(400))
		Expect(err).To(MatchError(table.ErrNotFound))
		_, err = subject.Get([]byte("a"))
		Expect(err).To(MatchError(table.ErrNotFound))
		_, err = subject.Get([]byte("key"))
		Expect(err).To(MatchError(table.ErrNotFound))

		dst := []byte("prefix:")
		dst, err = subject.Append(dst, seedKey(8))
		Expect(err).NotTo(HaveOccurred())
		Expect(string(dst)).To(HavePrefix("prefix:"))
		Expect(string(dst)).To(HaveSuffix("00000008"))
	})

	It("should retrieve blocks", func() {
		b0, err := subject.GetBlock(0)
		Expect(err).NotTo(HaveOccurred())
		Expect(b0.Pos()).To(Equal(0))

		b1, err := subject.GetBlock(1)
		Expect(err).NotTo(HaveOccurred())
		Expect(b1.Pos()).To(Equal(1))

		b0, err = subject.GetBlock(-1)
		Expect(err).NotTo(HaveOccurred())
		Expect(b0.Pos()).To(Equal(0))

		bx, err := subject.GetBlock(1000)
		Expect(err).NotTo(HaveOccurred())
		Expect(bx.Pos()).To(Equal(subject.NumBlocks()))
	})

	It("should seek blocks", func() {
		last := subject.NumBlocks() - 1
		Expect(subject.SeekBlock([]byte(""))).To(HavePos(0))
		Expect(subject.SeekBlock(seedKey(0))).To(HavePos(0))
		Expect(subject.SeekBlock(seedKey(396))).To(HavePos(last))
		Expect(subject.SeekBlock(seedKey(397))).To(HavePos(last + 1))
		Expect(subject.SeekBlock([]byte("z"))).To(HavePos(last + 1))
	})

	Describe("BlockReader", func() {
		var block *table.BlockReader

		BeforeEach(func() {
			var err error
			block, err = subject.GetBlock(0)
			Expect(err).NotTo(HaveOccurred())
		})

		AfterEach(func() {
			block.Release()
		})

		It("should have pos", func() {
			Expect(block.Pos()).To(Equal(0))
		})

		It("should have sections", func() {
			n := block.NumSections()
			Expect(n).To(BeNumerically(">=", 2))
			Expect(block.GetSection(0).Pos()).To(Equal(0))
			Expect(block.GetSection(1).Pos()).To(Equal(1))
			Expect(block.GetSection(n).Pos()).To(Equal(n))
			Expect(block.GetSection(n + 1).Pos()).To(Equal(n))
			Expect(block.GetSection(-1).Pos()).To(Equal(0))
		})

		It("should seek sections", func() {
			// sections restart every 16 entries: S0 holds 0..60, S1 starts at 64
			Expect(block.SeekSection([]byte(""))).To(HavePos(0))
			Expect(block.SeekSection(seedKey(0))).To(HavePos(0))
			Expect(block.SeekSection(seedKey(60))).To(HavePos(0))
			Expect(block.SeekSection(seedKey(63))).To(HavePos(0))
			Expect(block.SeekSection(seedKey(64))).To(HavePos(1))
			Expect(block.SeekSection([]byte("z"))).To(HavePos(block.NumSections()))
		})
	})

	Describe("SectionReader", func() {
		var section *table.SectionReader

		// S1: 64..124
		BeforeEach(func() {
			block, err := subject.GetBlock(0)
			Expect(err).NotTo(HaveOccurred())

			section = block.GetSection(1)
		})

		It("should have pos", func() {
			Expect(section.Pos()).To(Equal(1))
		})

		It("should seek", func() {
			Expect(section.Seek(seedKey(80))).To(BeTrue())
			Expect(section.Next()).To(BeTrue())
			Expect(section.Key()).To(Equal(seedKey(80)))

			Expect(section.Seek(seedKey(97))).To(BeTrue())
			Expect(section.Next()).To(BeTrue())
			Expect(section.Key()).To(Equal(seedKey(100)))
		})

		It("should iterate", func() {
			Expect(section.More()).To(BeTrue())
			Expect(section.Next()).To(BeTrue())
			Expect(section.Key()).To(Equal(seedKey(64)))
			Expect(section.Value()).To(HaveSuffix("00000064"))

			Expect(section.More()).To(BeTrue())
			Expect(section.Next()).To(BeTrue())
			Expect(section.Key()).To(Equal(seedKey(68)))
			Expect(section.Value()).To(HaveSuffix("00000068"))

			for i := 0; i < 13; i++ {
				Expect(section.More()).To(BeTrue())
				Expect(section.Next()).To(BeTrue())
			}
			Expect(section.Key()).To(Equal(seedKey(120)))

			Expect(section.More()).To(BeTrue())
			Expect(section.Next()).To(BeTrue())
			Expect(section.Key()).To(Equal(seedKey(124)))
			Expect(section.Value()).To(HaveSuffix("00000124"))

			Expect(section.More()).To(BeFalse())
			Expect(section.Next()).To(BeFalse())
		})
	})

	Describe("Iterator", func() {
		It("should iterate from beginning", func() {
			iter, err := subject.Seek(nil)
			Expect(err).NotTo(HaveOccurred())
			defer iter.Release()

			Expect(iter.More()).To(BeTrue())
			Expect(iter.Next()).To(BeTrue())
			Expect(iter.Key()).To(Equal(seedKey(0)))
			Expect(iter.Value()).To(HaveSuffix("00000000"))

			Expect(iter.More()).To(BeTrue())
			Expect(iter.Next()).To(BeTrue())
			Expect(iter.Key()).To(Equal(seedKey(4)))
			Expect(iter.Value()).To(HaveSuffix("00000004"))

			for i := 0; i < 97; i++ {
				Expect(iter.More()).To(BeTrue())
				Expect(iter.Next()).To(BeTrue())
			}

			Expect(iter.More()).To(BeTrue())
			Expect(iter.Next()).To(BeTrue())
			Expect(iter.Key()).To(Equal(seedKey(396)))
			Expect(iter.Value()).To(HaveSuffix("00000396"))

			Expect(iter.More()).To(BeFalse())
			Expect(iter.Next()).To(BeFalse())
			Expect(iter.Err()).NotTo(HaveOccurred())
		})

		It("should iterate in order across blocks", func() {
			iter, err := subject.Seek(nil)
			Expect(err).NotTo(HaveOccurred())
			defer iter.Release()

			n := 0
			for iter.Next() {
				Expect(iter.Key()).To(Equal(seedKey(n * 4)))
				n++
			}
			Expect(n).To(Equal(100))
			Expect(iter.Err()).NotTo(HaveOccurred())
		})

		It("should iterate from middle", func() {
			iter, err := subject.Seek(seedKey(200))
			Expect(err).NotTo(HaveOccurred())
			defer iter.Release()

			Expect(iter.Next()).To(BeTrue())
			Expect(iter.Key()).To(Equal(seedKey(200)))
			Expect(iter.Next()).To(BeTrue())
			Expect(iter.Key()).To(Equal(seedKey(204)))
		})

		It("should iterate from last entry", func() {
			iter, err := subject.Seek(seedKey(396))
			Expect(err).NotTo(HaveOccurred())
			defer iter.Release()

			Expect(iter.More()).To(BeTrue())
			Expect(iter.Next()).To(BeTrue())
			Expect(iter.Key()).To(Equal(seedKey(396)))
			Expect(iter.Value()).To(HaveSuffix("00000396"))

			Expect(iter.More()).To(BeFalse())
			Expect(iter.Next()).To(BeFalse())
			Expect(iter.Err()).NotTo(HaveOccurred())
		})

		It("should not iterate when past the end", func() {
			iter, err := subject.Seek([]byte("z"))
			Expect(err).NotTo(HaveOccurred())
			defer iter.Release()

			Expect(iter.More()).To(BeFalse())
			Expect(iter.Next()).To(BeFalse())
			Expect(iter.Err()).NotTo(HaveOccurred())
		})
	})

	It("should read snappy compressed tables", func() {
		buf := new(bytes.Buffer)
		Expect(seedTable(buf, 1000, table.SnappyCompression)).To(Succeed())

		r, err := table.NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()), nil)
		Expect(err).NotTo(HaveOccurred())
		for i := 0; i < 4000; i += 4 {
			Expect(r.Get(seedKey(i))).To(HaveSuffix(fmt.Sprintf("%08d", i)))
		}
	})
})
