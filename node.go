package memtable

import (
	"encoding/binary"
	"sync/atomic"
)

// Node header layout, see package docs.
const (
	nodeValueOffset  = 0
	nodeKeyOffset    = 8
	nodeKeySize      = 12
	nodeHeightOffset = 14
	nodeHeaderSize   = 16

	towerSlotSize = 4
)

// nodeSize returns the number of arena bytes a node with the given key,
// value and height occupies, including worst-case alignment padding.
func nodeSize(keyLen, valLen, height int) int {
	return nodeHeaderSize + height*towerSlotSize + arenaAlign - 1 + keyLen + valLen
}

func encodeValuePointer(off, size uint32) uint64 {
	return uint64(off)<<32 | uint64(size)
}

func decodeValuePointer(v uint64) (off, size uint32) {
	return uint32(v >> 32), uint32(v)
}

// allocateNode reserves header and tower space for a node.
func (a *Arena) allocateNode(height int) (uint32, error) {
	return a.reserve(nodeHeaderSize + height*towerSlotSize)
}

// writeNode copies key and value into the arena and initializes the header
// and tower of the node at nd.
func (a *Arena) writeNode(nd uint32, key, value []byte, height int) error {
	koff, err := a.putBytes(key)
	if err != nil {
		return err
	}
	voff, err := a.putBytes(value)
	if err != nil {
		return err
	}

	hdr := a.buf[nd : nd+nodeHeaderSize]
	binary.LittleEndian.PutUint64(hdr[nodeValueOffset:], encodeValuePointer(voff, uint32(len(value))))
	binary.LittleEndian.PutUint32(hdr[nodeKeyOffset:], koff)
	binary.LittleEndian.PutUint16(hdr[nodeKeySize:], uint16(len(key)))
	binary.LittleEndian.PutUint16(hdr[nodeHeightOffset:], uint16(height))

	for lvl := 0; lvl < height; lvl++ {
		atomic.StoreUint32(a.slot(towerOffset(nd, lvl)), 0)
	}
	return nil
}

func (a *Arena) nodeKey(nd uint32) []byte {
	koff := binary.LittleEndian.Uint32(a.buf[nd+nodeKeyOffset:])
	ksz := binary.LittleEndian.Uint16(a.buf[nd+nodeKeySize:])
	return a.bytes(koff, uint32(ksz))
}

func (a *Arena) nodeValue(nd uint32) []byte {
	voff, vsz := decodeValuePointer(binary.LittleEndian.Uint64(a.buf[nd+nodeValueOffset:]))
	return a.bytes(voff, vsz)
}

func (a *Arena) nodeHeight(nd uint32) int {
	return int(binary.LittleEndian.Uint16(a.buf[nd+nodeHeightOffset:]))
}

// decodeNode reads the node at nd.
func (a *Arena) decodeNode(nd uint32) (key, value []byte, height int) {
	return a.nodeKey(nd), a.nodeValue(nd), a.nodeHeight(nd)
}

func towerOffset(nd uint32, lvl int) uint32 {
	return nd + nodeHeaderSize + uint32(lvl)*towerSlotSize
}

func (a *Arena) nextOffset(nd uint32, lvl int) uint32 {
	return atomic.LoadUint32(a.slot(towerOffset(nd, lvl)))
}

func (a *Arena) setNextOffset(nd uint32, lvl int, next uint32) {
	atomic.StoreUint32(a.slot(towerOffset(nd, lvl)), next)
}

func (a *Arena) casNextOffset(nd uint32, lvl int, old, next uint32) bool {
	return atomic.CompareAndSwapUint32(a.slot(towerOffset(nd, lvl)), old, next)
}
