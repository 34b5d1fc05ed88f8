package table

import "errors"

var magic = []byte{109, 101, 109, 116, 98, 108, 8, 213}

const footerSize = 24

const (
	blockNoCompression     = 0
	blockSnappyCompression = 1
)

// ErrNotFound is returned by the reader when a key cannot be found.
var ErrNotFound = errors.New("table: not found")

var (
	errClosed         = errors.New("table: is closed")
	errBadMagic       = errors.New("table: bad magic byte sequence")
	errBadCompression = errors.New("table: bad compression codec")
	errBadIndex       = errors.New("table: bad block index")
	errReleased       = errors.New("table: iterator was released")
)

type blockInfo struct {
	MaxKey []byte // maximum key in the block
	Offset int64  // block offset position
}

// --------------------------------------------------------------------

// Compression is the compression codec
type Compression byte

func (c Compression) isValid() bool {
	return c >= SnappyCompression && c < unknownCompression
}

// Supported compression codecs
const (
	SnappyCompression Compression = iota
	NoCompression
	unknownCompression
)
