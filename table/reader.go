package table

import (
	"bytes"
	"encoding/binary"
	"io"
	"sort"
	"sync"

	"github.com/AndreasBriese/bbloom"
	"github.com/golang/snappy"
	"github.com/pkg/errors"
	"github.com/syndtr/goleveldb/leveldb/comparer"
)

// ReaderOptions define reader specific options.
type ReaderOptions struct {
	// Comparer must match the one the table was written with.
	// Default: comparer.DefaultComparer.
	Comparer comparer.BasicComparer
}

func (o *ReaderOptions) norm() *ReaderOptions {
	var oo ReaderOptions
	if o != nil {
		oo = *o
	}
	if oo.Comparer == nil {
		oo.Comparer = comparer.DefaultComparer
	}
	return &oo
}

// Reader instances can seek and iterate across data in tables.
type Reader struct {
	r   io.ReaderAt
	cmp comparer.BasicComparer

	index     []blockInfo
	maxOffset int64

	filter    bbloom.Bloom
	hasFilter bool
}

// NewReader opens a reader.
func NewReader(r io.ReaderAt, size int64, o *ReaderOptions) (*Reader, error) {
	if size < footerSize {
		return nil, errBadMagic
	}

	// read footer
	footerOffset := size - footerSize
	footer := make([]byte, footerSize)
	if _, err := r.ReadAt(footer, footerOffset); err != nil {
		return nil, errors.Wrap(err, "table: read footer failed")
	}

	// parse footer
	if !bytes.Equal(footer[16:], magic) {
		return nil, errBadMagic
	}
	indexOffset := int64(binary.LittleEndian.Uint64(footer[0:]))
	filterOffset := int64(binary.LittleEndian.Uint64(footer[8:]))
	if indexOffset < 0 || indexOffset > filterOffset || filterOffset > footerOffset {
		return nil, errBadIndex
	}

	// read index
	raw := make([]byte, footerOffset-indexOffset)
	if _, err := r.ReadAt(raw, indexOffset); err != nil {
		return nil, errors.Wrap(err, "table: read index failed")
	}

	index, err := parseIndex(raw[:filterOffset-indexOffset])
	if err != nil {
		return nil, err
	}

	tr := &Reader{
		r:   r,
		cmp: o.norm().Comparer,

		index:     index,
		maxOffset: indexOffset,
	}

	// read filter
	if data := raw[filterOffset-indexOffset:]; len(data) != 0 {
		tr.filter = bbloom.JSONUnmarshal(data)
		tr.hasFilter = true
	}
	return tr, nil
}

func parseIndex(raw []byte) ([]blockInfo, error) {
	var index []blockInfo
	var offset int64

	for pos := 0; pos < len(raw); {
		kln, n := binary.Uvarint(raw[pos:])
		if n <= 0 || pos+n+int(kln) > len(raw) {
			return nil, errBadIndex
		}
		pos += n

		key := raw[pos : pos+int(kln)]
		pos += int(kln)

		delta, n := binary.Uvarint(raw[pos:])
		if n <= 0 {
			return nil, errBadIndex
		}
		pos += n

		offset += int64(delta)
		index = append(index, blockInfo{MaxKey: key, Offset: offset})
	}
	return index, nil
}

// NumBlocks returns the number of stored blocks.
func (r *Reader) NumBlocks() int {
	return len(r.index)
}

// Append retrieves a single value for a key. Unlike Get it doesn't
// appends it to dst instead of allocating a new byte slice.
// It may return an ErrNotFound error.
func (r *Reader) Append(dst []byte, key []byte) ([]byte, error) {
	if r.hasFilter && !r.filter.Has(key) {
		return dst, ErrNotFound
	}

	iter, err := r.Seek(key)
	if err != nil {
		return dst, err
	}
	defer iter.Release()

	if !iter.Next() || r.cmp.Compare(iter.Key(), key) != 0 {
		return dst, ErrNotFound
	}
	return append(dst, iter.Value()...), nil
}

// Get is a shortcut for Append(nil, key).
// It may return an ErrNotFound error.
func (r *Reader) Get(key []byte) ([]byte, error) {
	return r.Append(nil, key)
}

// Seek returns an iterator starting at the position >= key.
func (r *Reader) Seek(key []byte) (*Iterator, error) {
	b, err := r.SeekBlock(key)
	if err != nil {
		return nil, err
	}

	s := b.SeekSection(key)
	s.Seek(key)
	return &Iterator{r: r, b: b, s: s}, nil
}

// GetBlock returns a reader for the n-th block.
func (r *Reader) GetBlock(bpos int) (*BlockReader, error) {
	if len(r.index) == 0 {
		return &BlockReader{cmp: r.cmp}, nil
	}
	if bpos < 0 {
		bpos = 0
	}
	if bpos >= len(r.index) {
		return &BlockReader{
			cmp:  r.cmp,
			bpos: len(r.index),
		}, nil
	}
	return r.readBlock(bpos)
}

// SeekBlock seeks the block containing the key.
func (r *Reader) SeekBlock(key []byte) (*BlockReader, error) {
	bpos := sort.Search(len(r.index), func(i int) bool {
		return r.cmp.Compare(r.index[i].MaxKey, key) >= 0
	})
	return r.GetBlock(bpos)
}

func (r *Reader) readBlock(bpos int) (*BlockReader, error) {
	min := r.index[bpos].Offset
	max := r.maxOffset
	if next := bpos + 1; next < len(r.index) {
		max = r.index[next].Offset
	}
	if max-min < 5 {
		return nil, errBadIndex
	}

	raw := fetchBuffer(int(max - min))
	if _, err := r.r.ReadAt(raw, min); err != nil {
		releaseBuffer(raw)
		return nil, errors.Wrapf(err, "table: read block %d failed", bpos)
	}

	var block []byte
	switch cBitPos := len(raw) - 1; raw[cBitPos] {
	case blockNoCompression:
		block = raw[:cBitPos]
	case blockSnappyCompression:
		defer releaseBuffer(raw)

		sz, err := snappy.DecodedLen(raw[:cBitPos])
		if err != nil {
			return nil, err
		}

		plain := fetchBuffer(sz)
		if block, err = snappy.Decode(plain, raw[:cBitPos]); err != nil {
			releaseBuffer(plain)
			return nil, err
		}
	default:
		releaseBuffer(raw)
		return nil, errBadCompression
	}

	return &BlockReader{
		cmp:    r.cmp,
		block:  block,
		bpos:   bpos,
		scnt:   int(binary.LittleEndian.Uint32(block[len(block)-4:])),
		maxKey: r.index[bpos].MaxKey,
	}, nil
}

// --------------------------------------------------------------------

// BlockReader reads a single block.
type BlockReader struct {
	cmp    comparer.BasicComparer
	block  []byte
	bpos   int // the current block position
	scnt   int // the section count
	maxKey []byte
}

// NumSections returns the number of sections in this block.
func (r *BlockReader) NumSections() int { return r.scnt }

// Pos returns the index position the current block within the table.
func (r *BlockReader) Pos() int { return r.bpos }

// GetSection gets a single section.
func (r *BlockReader) GetSection(spos int) *SectionReader {
	if spos < 0 {
		spos = 0
	}
	if spos >= r.scnt {
		return &SectionReader{cmp: r.cmp, spos: r.scnt}
	}

	min := r.sectionOffset(spos)
	max := r.sectionOffset(spos + 1)
	return &SectionReader{cmp: r.cmp, section: r.block[min:max], spos: spos}
}

// SeekSection seeks the section for a key.
func (r *BlockReader) SeekSection(key []byte) *SectionReader {
	if r.scnt == 0 || r.cmp.Compare(key, r.maxKey) > 0 {
		return r.GetSection(r.scnt)
	}

	spos := sort.Search(r.scnt, func(i int) bool {
		return r.cmp.Compare(r.firstKey(i), key) > 0
	}) - 1
	return r.GetSection(spos)
}

// Release releases the block reader and frees up resources. The reader must not be used
// after this method is called.
func (r *BlockReader) Release() {
	releaseBuffer(r.block)
	r.block = nil
}

// The starting offset of the section within the block.
func (r *BlockReader) sectionOffset(spos int) int {
	if spos < 1 {
		return 0
	} else if spos >= r.scnt {
		return len(r.block) - r.scnt*4
	} else {
		nn := len(r.block) - r.scnt*4 + (spos-1)*4
		return int(binary.LittleEndian.Uint32(r.block[nn:]))
	}
}

// firstKey returns the full key of the first entry in a section.
func (r *BlockReader) firstKey(spos int) []byte {
	pos := r.sectionOffset(spos)
	_, n := binary.Uvarint(r.block[pos:]) // shared, always 0
	pos += n
	kln, n := binary.Uvarint(r.block[pos:])
	pos += n
	_, n = binary.Uvarint(r.block[pos:])
	pos += n
	return r.block[pos : pos+int(kln)]
}

// SectionReader reads an individual section within a block.
type SectionReader struct {
	cmp     comparer.BasicComparer
	section []byte

	spos int // the section
	read int // bytes read

	key     []byte // current key
	val     []byte // current value
	pending bool   // current entry was decoded by Seek but not yet returned
}

// Seek positions the cursor before the first entry >= key.
func (r *SectionReader) Seek(key []byte) bool {
	if r.pending && r.cmp.Compare(r.key, key) >= 0 {
		return true
	}
	r.pending = false

	for r.read < len(r.section) {
		r.decode()
		if r.cmp.Compare(r.key, key) >= 0 {
			r.pending = true
			return true
		}
	}
	return false
}

// Pos returns the index position the current section within the block.
func (r *SectionReader) Pos() int { return r.spos }

// Key returns the key if the current entry. Please note that keys
// are temporary buffers and must be copied if used beyond the next cursor move.
func (r *SectionReader) Key() []byte { return r.key }

// Value returns the value of the current entry. Please note that values
// are temporary buffers and must be copied if used beyond the next cursor move.
func (r *SectionReader) Value() []byte { return r.val }

// More returns true if more data can be read in the section.
func (r *SectionReader) More() bool { return r.pending || r.read < len(r.section) }

// Next advances the cursor to the next entry within the section and
// returns true if successful.
func (r *SectionReader) Next() bool {
	if r.pending {
		r.pending = false
		return true
	}
	if r.read < len(r.section) {
		r.decode()
		return true
	}
	return false
}

func (r *SectionReader) decode() {
	shared, n := binary.Uvarint(r.section[r.read:])
	r.read += n
	unshared, n := binary.Uvarint(r.section[r.read:])
	r.read += n
	vln, n := binary.Uvarint(r.section[r.read:])
	r.read += n

	r.key = append(r.key[:shared], r.section[r.read:r.read+int(unshared)]...)
	r.read += int(unshared)
	r.val = r.section[r.read : r.read+int(vln)]
	r.read += int(vln)
}

// --------------------------------------------------------------------

// Iterator is a convenience wrapper around BlockReader and SectionReader
// which can (forward-) iterate over keys across block and section boundaries.
type Iterator struct {
	r *Reader
	b *BlockReader
	s *SectionReader

	err error
}

// Key returns the key if the current entry.
func (i *Iterator) Key() []byte { return i.s.Key() }

// Value returns the value of the current entry. Please note that values
// are temporary buffers and must be copied if used beyond the next cursor move.
func (i *Iterator) Value() []byte { return i.s.Value() }

// More returns true if more data can be read.
func (i *Iterator) More() bool {
	if i.err != nil {
		return false
	}

	return i.s.More() || i.s.Pos()+1 < i.b.NumSections() || i.b.Pos()+1 < i.r.NumBlocks()
}

// Next advances the cursor to the next entry and returns true if successful.
func (i *Iterator) Next() bool {
	if i.err != nil {
		return false
	}

	// more entries in the section
	if i.s.More() {
		return i.s.Next()
	}

	// more sections in the block
	if n := i.s.Pos() + 1; n < i.b.NumSections() {
		i.s = i.b.GetSection(n)
		return i.s.Next()
	}

	// more blocks
	if n := i.b.Pos() + 1; n < i.r.NumBlocks() {
		b, err := i.r.GetBlock(n)
		if err != nil {
			i.err = err
			return false
		}
		i.b.Release()
		i.b = b
		i.s = i.b.GetSection(0)
		return i.s.Next()
	}

	return false
}

// Err exposes iterator errors, if any.
func (i *Iterator) Err() error {
	return i.err
}

// Release releases the iterator and frees up resources. The iterator must not be used
// after this method is called.
func (i *Iterator) Release() {
	i.b.Release()
	i.err = errReleased
}

// --------------------------------------------------------------------

var bufPool sync.Pool

func fetchBuffer(sz int) []byte {
	if v := bufPool.Get(); v != nil {
		if p := v.([]byte); sz <= cap(p) {
			return p[:sz]
		}
	}
	return make([]byte, sz)
}

func releaseBuffer(p []byte) {
	if cap(p) != 0 {
		bufPool.Put(p)
	}
}
