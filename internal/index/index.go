// Package index implements secondary indexes: one B-tree per
// (table, column), keyed by a djb2 hash of the indexed column's raw
// bytes, whose leaf cells carry (row_id, key_size, key_bytes) so
// lookups can re-compare the raw key and tolerate hash collisions.
package index

import (
	"encoding/binary"
	"fmt"

	"github.com/minidb/minidb/internal/btree"
	"github.com/minidb/minidb/internal/catalog"
	"github.com/minidb/minidb/internal/pager"
	"github.com/minidb/minidb/internal/row"
	"github.com/minidb/minidb/internal/table"
)

// ErrDuplicateIndexKey is returned by Insert on a unique index when a
// cell with the same hash and the same raw key bytes already exists.
var ErrDuplicateIndexKey = fmt.Errorf("duplicate index key")

// Hash computes the djb2 hash of b: h=5381; h=h*33+byte, for each byte.
func Hash(b []byte) uint32 {
	var h uint32 = 5381
	for _, c := range b {
		h = h*33 + uint32(c)
	}
	return h
}

// Index owns the Pager backing one IndexDef's file.
type Index struct {
	Def      *catalog.IndexDef
	Pager    *pager.Pager
	Schema   btree.Schema
	keyWidth int
}

const payloadHeaderSize = 8 // row_id:4 + key_size:4

// Open opens (creating if needed) the backing file for def, an index
// over column (whose declared width governs the index's fixed cell
// size).
func Open(def *catalog.IndexDef, column row.Column) (*Index, error) {
	p, err := pager.Open(def.FilePath)
	if err != nil {
		return nil, err
	}
	keyWidth := column.Width()
	schema := btree.Schema{ValueSize: payloadHeaderSize + keyWidth}
	buf, err := p.Fetch(int(def.RootPage))
	if err != nil {
		p.Close(pager.PageSize)
		return nil, err
	}
	if p.FileLength() == 0 {
		btree.InitLeaf(buf, true)
	}
	return &Index{Def: def, Pager: p, Schema: schema, keyWidth: keyWidth}, nil
}

func (ix *Index) encodePayload(rowID uint32, keyBytes []byte) []byte {
	buf := make([]byte, ix.Schema.ValueSize)
	binary.LittleEndian.PutUint32(buf[0:4], rowID)
	binary.LittleEndian.PutUint32(buf[4:8], uint32(len(keyBytes)))
	copy(buf[payloadHeaderSize:], keyBytes)
	return buf
}

func (ix *Index) decodePayload(buf []byte) (rowID uint32, keyBytes []byte) {
	rowID = binary.LittleEndian.Uint32(buf[0:4])
	n := binary.LittleEndian.Uint32(buf[4:8])
	return rowID, buf[payloadHeaderSize : payloadHeaderSize+n]
}

// Insert adds (rowID, keyBytes) under hash(keyBytes). On a unique
// index, fails with ErrDuplicateIndexKey if a cell with the same hash
// and identical raw key bytes already exists.
func (ix *Index) Insert(rowID uint32, keyBytes []byte) error {
	hash := Hash(keyBytes)
	if ix.Def.Unique {
		matches, err := ix.findRaw(hash, keyBytes)
		if err != nil {
			return err
		}
		if len(matches) > 0 {
			return ErrDuplicateIndexKey
		}
	}
	buf, err := ix.Pager.Fetch(int(ix.Def.RootPage))
	if err != nil {
		return err
	}
	return btree.InsertAllowingDuplicateKey(buf, ix.Schema, hash, ix.encodePayload(rowID, keyBytes))
}

// Match is one index cell that survived raw-key re-comparison.
type Match struct {
	RowID   uint32
	CellNum int
}

// findRaw returns every cell whose hash is hash and whose raw key bytes
// equal keyBytes.
func (ix *Index) findRaw(hash uint32, keyBytes []byte) ([]Match, error) {
	c, err := btree.Find(ix.Pager, ix.Schema, int(ix.Def.RootPage), hash)
	if err != nil {
		return nil, err
	}
	var out []Match
	for {
		n, err := c.NumCells()
		if err != nil {
			return nil, err
		}
		if c.CellNum >= n {
			break
		}
		k, err := c.KeyAtCursor()
		if err != nil {
			return nil, err
		}
		if k != hash {
			break
		}
		val, err := c.ValueAtCursor()
		if err != nil {
			return nil, err
		}
		rowID, kb := ix.decodePayload(val)
		if string(kb) == string(keyBytes) {
			out = append(out, Match{RowID: rowID, CellNum: c.CellNum})
		}
		c.CellNum++
	}
	return out, nil
}

// Find returns the row IDs of every row whose indexed column equals
// keyBytes, re-comparing raw bytes on every hash collision.
func (ix *Index) Find(keyBytes []byte) ([]uint32, error) {
	matches, err := ix.findRaw(Hash(keyBytes), keyBytes)
	if err != nil {
		return nil, err
	}
	rowIDs := make([]uint32, len(matches))
	for i, m := range matches {
		rowIDs[i] = m.RowID
	}
	return rowIDs, nil
}

// Delete removes the cell whose hash matches hash(keyBytes) and whose
// row_id equals rowID.
func (ix *Index) Delete(rowID uint32, keyBytes []byte) error {
	hash := Hash(keyBytes)
	c, err := btree.Find(ix.Pager, ix.Schema, int(ix.Def.RootPage), hash)
	if err != nil {
		return err
	}
	for {
		n, err := c.NumCells()
		if err != nil {
			return err
		}
		if c.CellNum >= n {
			return fmt.Errorf("index %q: no cell for row %d", ix.Def.Name, rowID)
		}
		k, err := c.KeyAtCursor()
		if err != nil {
			return err
		}
		if k != hash {
			return fmt.Errorf("index %q: no cell for row %d", ix.Def.Name, rowID)
		}
		val, err := c.ValueAtCursor()
		if err != nil {
			return err
		}
		gotRowID, _ := ix.decodePayload(val)
		if gotRowID == rowID {
			return c.DeleteAtCursor()
		}
		c.CellNum++
	}
}

// Build scans tbl via a fresh cursor and inserts one index cell per row.
func Build(ix *Index, tbl *table.Table, columnIndex int) error {
	c, err := tbl.Start()
	if err != nil {
		return err
	}
	for !c.EndOfTable {
		rowBuf, err := c.ValueAtCursor()
		if err != nil {
			return err
		}
		rowID := row.PrimaryKey(tbl.Def.Columns, rowBuf)
		keyBytes := row.RawBytes(tbl.Def.Columns, rowBuf, columnIndex)
		if err := ix.Insert(rowID, keyBytes); err != nil {
			return err
		}
		if err := c.Advance(); err != nil {
			return err
		}
	}
	return nil
}

// Close flushes the root page, sized to its actual cell count, and
// closes the pager.
func (ix *Index) Close() error {
	buf, err := ix.Pager.Fetch(int(ix.Def.RootPage))
	if err != nil {
		return err
	}
	used := btree.HeaderSize + btree.NumCells(buf)*ix.Schema.CellSize()
	return ix.Pager.Close(used)
}
