// Package table binds one TableDef to an open Pager and root page,
// giving insert/select/delete callers row-level operations layered over
// the raw leaf B-tree.
package table

import (
	"github.com/minidb/minidb/internal/btree"
	"github.com/minidb/minidb/internal/catalog"
	"github.com/minidb/minidb/internal/pager"
	"github.com/minidb/minidb/internal/row"
)

// Table owns the Pager backing one TableDef's file.
type Table struct {
	Def    *catalog.TableDef
	Pager  *pager.Pager
	Schema btree.Schema
}

// Open opens (creating if needed) the backing file named by def and
// initializes a fresh leaf root if the file is new.
func Open(def *catalog.TableDef) (*Table, error) {
	p, err := pager.Open(def.FilePath)
	if err != nil {
		return nil, err
	}
	schema := btree.Schema{ValueSize: row.RowWidth(def.Columns)}
	buf, err := p.Fetch(int(def.RootPage))
	if err != nil {
		p.Close(pager.PageSize)
		return nil, err
	}
	if p.FileLength() == 0 {
		btree.InitLeaf(buf, true)
	}
	return &Table{Def: def, Pager: p, Schema: schema}, nil
}

// cellSize is the fixed (key+row) byte size of one cell in this table.
func (t *Table) cellSize() int { return t.Schema.CellSize() }

// Find returns a cursor at the lower-bound position for key.
func (t *Table) Find(key uint32) (*btree.Cursor, error) {
	return btree.Find(t.Pager, t.Schema, int(t.Def.RootPage), key)
}

// Start returns a cursor at the first row, in key order.
func (t *Table) Start() (*btree.Cursor, error) {
	return btree.Start(t.Pager, t.Schema, int(t.Def.RootPage))
}

// Insert encodes values and inserts them at their ordered position.
// Fails with btree.ErrDuplicateKey if the primary key already exists,
// or btree.ErrTableFull if the leaf is at capacity.
func (t *Table) Insert(values []any) error {
	buf, err := row.Encode(t.Def.Columns, values)
	if err != nil {
		return err
	}
	key := row.PrimaryKey(t.Def.Columns, buf)
	c, err := t.Find(key)
	if err != nil {
		return err
	}
	return c.InsertAtCursor(key, buf)
}

// DecodeRow decodes the row bytes at a cursor's current position.
func (t *Table) DecodeRow(c *btree.Cursor) ([]any, error) {
	buf, err := c.ValueAtCursor()
	if err != nil {
		return nil, err
	}
	return row.Decode(t.Def.Columns, buf)
}

// Close flushes the root page — sized to its actual cell count, since
// the page is otherwise mostly unused space — and closes the pager.
func (t *Table) Close() error {
	buf, err := t.Pager.Fetch(int(t.Def.RootPage))
	if err != nil {
		return err
	}
	used := btree.HeaderSize + btree.NumCells(buf)*t.cellSize()
	return t.Pager.Close(used)
}
