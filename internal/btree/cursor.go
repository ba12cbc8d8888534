package btree

import (
	"github.com/minidb/minidb/internal/pager"
)

// Cursor is a positioned handle into one table's (or index's) B-tree,
// used by every insert/select/delete path. Because the realized design
// never splits a leaf, PageNum is always the tree's single root page —
// the field exists so a future splitting implementation has somewhere
// to record descent.
type Cursor struct {
	Pager      *pager.Pager
	Schema     Schema
	PageNum    int
	CellNum    int
	EndOfTable bool
}

// leaf fetches the page this cursor is positioned over.
func (c *Cursor) leaf() (*[pager.PageSize]byte, error) {
	return c.Pager.Fetch(c.PageNum)
}

// Start returns a cursor at the first cell of rootPage.
func Start(p *pager.Pager, schema Schema, rootPage int) (*Cursor, error) {
	buf, err := p.Fetch(rootPage)
	if err != nil {
		return nil, err
	}
	return &Cursor{
		Pager:      p,
		Schema:     schema,
		PageNum:    rootPage,
		CellNum:    0,
		EndOfTable: NumCells(buf) == 0,
	}, nil
}

// Find walks down to rootPage's leaf and returns a cursor positioned at
// the lower-bound insertion point for key: the first cell with a key
// >= target, or one-past-the-end if every key is smaller. It never
// returns EndOfTable — callers check CellNum against NumCells and
// compare the key at CellNum themselves to decide between "found" and
// "insert here".
func Find(p *pager.Pager, schema Schema, rootPage int, key uint32) (*Cursor, error) {
	buf, err := p.Fetch(rootPage)
	if err != nil {
		return nil, err
	}
	pos := search(buf, schema, key)
	return &Cursor{
		Pager:   p,
		Schema:  schema,
		PageNum: rootPage,
		CellNum: pos,
	}, nil
}

// KeyAtCursor returns the key of the cell the cursor currently points
// at. The caller must ensure CellNum is in range.
func (c *Cursor) KeyAtCursor() (uint32, error) {
	buf, err := c.leaf()
	if err != nil {
		return 0, err
	}
	return CellKey(buf, c.Schema, c.CellNum), nil
}

// ValueAtCursor returns the value bytes of the cell the cursor currently
// points at, as a live view onto the cached page.
func (c *Cursor) ValueAtCursor() ([]byte, error) {
	buf, err := c.leaf()
	if err != nil {
		return nil, err
	}
	return CellValue(buf, c.Schema, c.CellNum), nil
}

// NumCells returns the cell count of the cursor's page.
func (c *Cursor) NumCells() (int, error) {
	buf, err := c.leaf()
	if err != nil {
		return 0, err
	}
	return NumCells(buf), nil
}

// Advance moves the cursor to the next cell, setting EndOfTable once the
// last cell of the leaf has been passed.
func (c *Cursor) Advance() error {
	n, err := c.NumCells()
	if err != nil {
		return err
	}
	c.CellNum++
	if c.CellNum >= n {
		c.EndOfTable = true
	}
	return nil
}

// InsertAtCursor inserts (key, value) at the cursor's current position.
// On success the cursor is left pointing at the inserted cell.
func (c *Cursor) InsertAtCursor(key uint32, value []byte) error {
	buf, err := c.leaf()
	if err != nil {
		return err
	}
	n := NumCells(buf)
	if c.CellNum < n && CellKey(buf, c.Schema, c.CellNum) == key {
		return ErrDuplicateKey
	}
	return insertAt(buf, c.Schema, c.CellNum, key, value)
}

// InsertAllowingDuplicateKey inserts (key, value) after any existing
// cells with the same key, per InsertAllowingDuplicateKey's contract.
func (c *Cursor) InsertAllowingDuplicateKey(key uint32, value []byte) error {
	buf, err := c.leaf()
	if err != nil {
		return err
	}
	return InsertAllowingDuplicateKey(buf, c.Schema, key, value)
}

// DeleteAtCursor removes the cell the cursor currently points at,
// shifting subsequent cells left.
func (c *Cursor) DeleteAtCursor() error {
	buf, err := c.leaf()
	if err != nil {
		return err
	}
	return DeleteAt(buf, c.Schema, c.CellNum)
}
