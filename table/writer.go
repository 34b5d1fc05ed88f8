package table

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/AndreasBriese/bbloom"
	"github.com/golang/snappy"
	"github.com/pkg/errors"
	"github.com/syndtr/goleveldb/leveldb/comparer"
)

// WriterOptions define writer specific options.
type WriterOptions struct {
	// BlockSize is the minimum uncompressed size in bytes of each table block.
	// Default: 4KiB.
	BlockSize int

	// BlockRestartInterval is the number of keys between restart points
	// for prefix compression of keys.
	//
	// Default: 16.
	BlockRestartInterval int

	// The compression codec to use.
	// Default: SnappyCompression.
	Compression Compression

	// FilterKeys is the expected number of keys, used to size the bloom filter.
	// Default: 4096.
	FilterKeys int

	// FilterFalsePositiveRate is the target false positive rate of the bloom filter.
	// Default: 0.01.
	FilterFalsePositiveRate float64

	// Comparer defines the key order. Keys must be appended in strictly
	// ascending order.
	// Default: comparer.DefaultComparer.
	Comparer comparer.BasicComparer
}

func (o *WriterOptions) norm() *WriterOptions {
	var oo WriterOptions
	if o != nil {
		oo = *o
	}

	if oo.BlockSize < 1 {
		oo.BlockSize = 1 << 12
	}
	if oo.BlockRestartInterval < 1 {
		oo.BlockRestartInterval = 16
	}
	if !oo.Compression.isValid() {
		oo.Compression = SnappyCompression
	}
	if oo.FilterKeys < 1 {
		oo.FilterKeys = 4096
	}
	if oo.FilterFalsePositiveRate <= 0 || oo.FilterFalsePositiveRate >= 1 {
		oo.FilterFalsePositiveRate = 0.01
	}
	if oo.Comparer == nil {
		oo.Comparer = comparer.DefaultComparer
	}

	return &oo
}

// Writer instances can write a table.
type Writer struct {
	w io.Writer
	o *WriterOptions

	block blockInfo // the current block info
	blen  int       // the number of entries in the current block
	soffs []int     // section offsets in the current block

	buf []byte // plain buffer
	snp []byte // snappy  buffer
	tmp []byte // scratch buffer

	index  []blockInfo
	filter bbloom.Bloom
}

// NewWriter wraps a writer and returns a Writer.
func NewWriter(w io.Writer, o *WriterOptions) *Writer {
	o = o.norm()
	return &Writer{
		w:      w,
		o:      o,
		tmp:    make([]byte, 3*binary.MaxVarintLen64),
		filter: bbloom.New(float64(o.FilterKeys), o.FilterFalsePositiveRate),
	}
}

// Append appends a key/value pair to the table.
func (w *Writer) Append(key, value []byte) error {
	if w.tmp == nil {
		return errClosed
	}

	if (w.blen != 0 || len(w.index) != 0) && w.o.Comparer.Compare(key, w.block.MaxKey) <= 0 {
		return fmt.Errorf("table: attempted an out-of-order append, %q must be > %q", key, w.block.MaxKey)
	}

	if len(w.buf) != 0 && len(w.buf)+len(key)+len(value)+3*binary.MaxVarintLen64 > w.o.BlockSize {
		if err := w.flush(); err != nil {
			return err
		}
	}

	shared := 0
	if w.blen%w.o.BlockRestartInterval == 0 { // new section?
		w.soffs = append(w.soffs, len(w.buf))
	} else {
		shared = sharedPrefixLen(w.block.MaxKey, key)
	}

	n := binary.PutUvarint(w.tmp[0:], uint64(shared))
	n += binary.PutUvarint(w.tmp[n:], uint64(len(key)-shared))
	n += binary.PutUvarint(w.tmp[n:], uint64(len(value)))
	w.buf = append(w.buf, w.tmp[:n]...)
	w.buf = append(w.buf, key[shared:]...)
	w.buf = append(w.buf, value...)

	w.blen++
	w.block.MaxKey = append(w.block.MaxKey[:0], key...)
	w.filter.Add(key)

	return nil
}

// Close closes the writer
func (w *Writer) Close() error {
	if w.tmp == nil {
		return errClosed
	}
	if err := w.flush(); err != nil {
		return err
	}

	indexOffset := w.block.Offset
	if err := w.writeIndex(); err != nil {
		return err
	}

	filterOffset := w.block.Offset
	if err := w.writeRaw(w.filter.JSONMarshal()); err != nil {
		return err
	}

	if err := w.writeFooter(indexOffset, filterOffset); err != nil {
		return err
	}
	w.tmp = nil
	return nil
}

func (w *Writer) writeIndex() error {
	var prev int64

	for _, ent := range w.index {
		n := binary.PutUvarint(w.tmp[0:], uint64(len(ent.MaxKey)))
		if err := w.writeRaw(w.tmp[:n]); err != nil {
			return err
		}
		if err := w.writeRaw(ent.MaxKey); err != nil {
			return err
		}

		n = binary.PutUvarint(w.tmp[0:], uint64(ent.Offset-prev))
		if err := w.writeRaw(w.tmp[:n]); err != nil {
			return err
		}
		prev = ent.Offset
	}
	return nil
}

func (w *Writer) writeFooter(indexOffset, filterOffset int64) error {
	binary.LittleEndian.PutUint64(w.tmp[0:], uint64(indexOffset))
	binary.LittleEndian.PutUint64(w.tmp[8:], uint64(filterOffset))
	if err := w.writeRaw(w.tmp[:16]); err != nil {
		return err
	}
	if err := w.writeRaw(magic); err != nil {
		return err
	}
	return nil
}

func (w *Writer) writeRaw(p []byte) error {
	n, err := w.w.Write(p)
	w.block.Offset += int64(n)
	if err != nil {
		return errors.Wrap(err, "table: write failed")
	}
	return nil
}

func (w *Writer) flush() error {
	if len(w.buf) == 0 {
		return nil
	}

	for _, o := range w.soffs {
		if o > 0 {
			binary.LittleEndian.PutUint32(w.tmp, uint32(o))
			w.buf = append(w.buf, w.tmp[:4]...)
		}
	}
	binary.LittleEndian.PutUint32(w.tmp, uint32(len(w.soffs)))
	w.buf = append(w.buf, w.tmp[:4]...)

	var block []byte
	switch w.o.Compression {
	case SnappyCompression:
		w.snp = snappy.Encode(w.snp[:cap(w.snp)], w.buf)
		if len(w.snp) < len(w.buf)-len(w.buf)/4 {
			block = append(w.snp, blockSnappyCompression)
		} else {
			block = append(w.buf, blockNoCompression)
		}
	default:
		block = append(w.buf, blockNoCompression)
	}

	info := w.block
	info.MaxKey = append([]byte(nil), w.block.MaxKey...)
	w.index = append(w.index, info)
	w.buf = w.buf[:0]
	w.soffs = w.soffs[:0]
	w.blen = 0

	return w.writeRaw(block)
}

func sharedPrefixLen(a, b []byte) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			return i
		}
	}
	return n
}
