// Package btree implements the single-level (leaf-only) B-tree that backs
// every table and secondary index. Splitting is a non-goal: a leaf that
// is already at capacity rejects further inserts with ErrTableFull rather
// than growing a second level.
//
// A leaf page layout is:
//
//	offset 0   node-type   (1 byte)
//	offset 1   is-root     (1 byte)
//	offset 2   parent-page (4 bytes, unused — no splitting, reserved)
//	offset 6   num-cells   (4 bytes)
//	offset 10  cells...    sorted by key, each cell is (key:4, value:Size)
//
// Keys are unsigned 32-bit integers in ascending numeric order.
package btree

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/minidb/minidb/internal/pager"
)

const (
	// HeaderSize is the byte size of the leaf page header.
	HeaderSize = 10

	nodeTypeOff   = 0
	isRootOff     = 1
	parentPageOff = 2
	numCellsOff   = 6

	keySize = 4
)

// NodeType identifies the kind of a page. Only Leaf is ever realized;
// Internal is reserved for a future splitting implementation.
type NodeType uint8

const (
	Leaf NodeType = iota
	Internal
)

// Errors returned by leaf mutation operations.
var (
	ErrDuplicateKey = errors.New("duplicate key")
	ErrTableFull    = errors.New("table full")
	ErrNotFound     = errors.New("key not found")
)

// Schema describes the fixed cell geometry of one B-tree: the size in
// bytes of the value half of every cell, and the resulting cell count
// that fits in a page after the header.
type Schema struct {
	ValueSize int
}

// CellSize is the total byte size of one cell (key + value).
func (s Schema) CellSize() int { return keySize + s.ValueSize }

// MaxCells is LEAF_NODE_MAX_CELLS: the hard per-page capacity.
func (s Schema) MaxCells() int {
	return (pager.PageSize - HeaderSize) / s.CellSize()
}

func cellOffset(s Schema, cellNum int) int {
	return HeaderSize + cellNum*s.CellSize()
}

// InitLeaf zeroes and initializes buf as an empty leaf page.
func InitLeaf(buf *[pager.PageSize]byte, isRoot bool) {
	for i := range buf {
		buf[i] = 0
	}
	buf[nodeTypeOff] = byte(Leaf)
	if isRoot {
		buf[isRootOff] = 1
	}
	setNumCells(buf, 0)
}

// NodeTypeOf returns the node type recorded in the page header.
func NodeTypeOf(buf *[pager.PageSize]byte) NodeType {
	return NodeType(buf[nodeTypeOff])
}

// IsRoot reports the is-root header flag.
func IsRoot(buf *[pager.PageSize]byte) bool {
	return buf[isRootOff] != 0
}

// NumCells returns the num-cells header field.
func NumCells(buf *[pager.PageSize]byte) int {
	return int(binary.LittleEndian.Uint32(buf[numCellsOff : numCellsOff+4]))
}

func setNumCells(buf *[pager.PageSize]byte, n int) {
	binary.LittleEndian.PutUint32(buf[numCellsOff:numCellsOff+4], uint32(n))
}

// ParentPage returns the parent-page header field. Declared by the page
// format but never consulted: there is no splitting, so no page ever
// has a parent.
func ParentPage(buf *[pager.PageSize]byte) uint32 {
	return binary.LittleEndian.Uint32(buf[parentPageOff : parentPageOff+4])
}

// CellKey reads the key of the cell at cellNum.
func CellKey(buf *[pager.PageSize]byte, s Schema, cellNum int) uint32 {
	off := cellOffset(s, cellNum)
	return binary.LittleEndian.Uint32(buf[off : off+keySize])
}

// CellValue returns a slice view onto the value bytes of the cell at
// cellNum. Mutating the slice mutates the page in place.
func CellValue(buf *[pager.PageSize]byte, s Schema, cellNum int) []byte {
	off := cellOffset(s, cellNum) + keySize
	return buf[off : off+s.ValueSize]
}

func setCell(buf *[pager.PageSize]byte, s Schema, cellNum int, key uint32, value []byte) {
	if len(value) != s.ValueSize {
		panic(fmt.Sprintf("btree: value size %d != schema value size %d", len(value), s.ValueSize))
	}
	off := cellOffset(s, cellNum)
	binary.LittleEndian.PutUint32(buf[off:off+keySize], key)
	copy(buf[off+keySize:off+s.CellSize()], value)
}

// search returns the lower-bound cell index: the first cell whose key is
// >= target, or NumCells(buf) if all keys are smaller.
func search(buf *[pager.PageSize]byte, s Schema, target uint32) int {
	n := NumCells(buf)
	lo, hi := 0, n
	for lo < hi {
		mid := (lo + hi) / 2
		if CellKey(buf, s, mid) < target {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return lo
}

// UpperBound returns the first cell index whose key is > target, or
// NumCells(buf) if none is. Secondary-index inserts use this instead of
// the lower bound because the index key is a lossy hash: several cells
// legitimately share one key, and a new collision must land after all
// of them rather than be rejected as a duplicate.
func UpperBound(buf *[pager.PageSize]byte, s Schema, target uint32) int {
	n := NumCells(buf)
	lo, hi := 0, n
	for lo < hi {
		mid := (lo + hi) / 2
		if CellKey(buf, s, mid) <= target {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return lo
}

func shiftRight(buf *[pager.PageSize]byte, s Schema, from, to int) {
	for i := to; i > from; i-- {
		copy(
			buf[cellOffset(s, i):cellOffset(s, i)+s.CellSize()],
			buf[cellOffset(s, i-1):cellOffset(s, i-1)+s.CellSize()],
		)
	}
}

// insertAt shifts cells [pos, NumCells) right by one and writes
// (key, value) at pos, without any duplicate-key check. Fails with
// ErrTableFull if the leaf is already at MaxCells capacity.
func insertAt(buf *[pager.PageSize]byte, s Schema, pos int, key uint32, value []byte) error {
	n := NumCells(buf)
	if n == s.MaxCells() {
		return ErrTableFull
	}
	shiftRight(buf, s, pos, n)
	setCell(buf, s, pos, key, value)
	setNumCells(buf, n+1)
	return nil
}

// InsertAt inserts (key, value) at the exact cell position pos,
// shifting subsequent cells right. Unlike Insert and
// InsertAllowingDuplicateKey it does no key-ordered search: the
// transaction manager uses it to put a rolled-back delete's pre-image
// back at precisely the slot it was removed from.
func InsertAt(buf *[pager.PageSize]byte, s Schema, pos int, key uint32, value []byte) error {
	return insertAt(buf, s, pos, key, value)
}

// WriteCell overwrites the existing cell at cellNum in place with
// (key, value), without shifting or changing the cell count. The
// transaction manager uses it to restore an update's pre-image.
func WriteCell(buf *[pager.PageSize]byte, s Schema, cellNum int, key uint32, value []byte) {
	setCell(buf, s, cellNum, key, value)
}

// Insert places (key, value) at its ordered position in the leaf. It
// fails with ErrDuplicateKey if key is already present, or ErrTableFull
// if the leaf is already at MaxCells capacity.
func Insert(buf *[pager.PageSize]byte, s Schema, key uint32, value []byte) error {
	n := NumCells(buf)
	pos := search(buf, s, key)
	if pos < n && CellKey(buf, s, pos) == key {
		return ErrDuplicateKey
	}
	return insertAt(buf, s, pos, key, value)
}

// InsertAllowingDuplicateKey inserts (key, value) immediately after any
// existing cells sharing key, without rejecting the insert as a
// duplicate. Used by secondary indexes, whose key is a lossy hash that
// legitimately collides across distinct rows.
func InsertAllowingDuplicateKey(buf *[pager.PageSize]byte, s Schema, key uint32, value []byte) error {
	pos := UpperBound(buf, s, key)
	return insertAt(buf, s, pos, key, value)
}

// DeleteAt removes the cell at cellNum, shifting subsequent cells left.
func DeleteAt(buf *[pager.PageSize]byte, s Schema, cellNum int) error {
	n := NumCells(buf)
	if cellNum < 0 || cellNum >= n {
		return ErrNotFound
	}
	for i := cellNum; i < n-1; i++ {
		copy(
			buf[cellOffset(s, i):cellOffset(s, i)+s.CellSize()],
			buf[cellOffset(s, i+1):cellOffset(s, i+1)+s.CellSize()],
		)
	}
	setNumCells(buf, n-1)
	return nil
}
