package btree

import (
	"path/filepath"
	"testing"

	"github.com/minidb/minidb/internal/pager"
)

func newTestLeaf(t *testing.T) (*pager.Pager, Schema) {
	t.Helper()
	p, err := pager.Open(filepath.Join(t.TempDir(), "t.tbl"))
	if err != nil {
		t.Fatalf("open pager: %v", err)
	}
	buf, err := p.Fetch(0)
	if err != nil {
		t.Fatalf("fetch root: %v", err)
	}
	InitLeaf(buf, true)
	return p, Schema{ValueSize: 8}
}

func val(n byte) []byte { return []byte{n, n, n, n, n, n, n, n} }

func TestInsertKeepsOrder(t *testing.T) {
	p, s := newTestLeaf(t)
	defer p.Close(pager.PageSize)

	for _, k := range []uint32{3, 1, 2} {
		c, err := Find(p, s, 0, k)
		if err != nil {
			t.Fatalf("find: %v", err)
		}
		if err := c.InsertAtCursor(k, val(byte(k))); err != nil {
			t.Fatalf("insert %d: %v", k, err)
		}
	}

	c, err := Start(p, s, 0)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	var keys []uint32
	for !c.EndOfTable {
		k, err := c.KeyAtCursor()
		if err != nil {
			t.Fatalf("key: %v", err)
		}
		keys = append(keys, k)
		if err := c.Advance(); err != nil {
			t.Fatalf("advance: %v", err)
		}
	}
	want := []uint32{1, 2, 3}
	if len(keys) != len(want) {
		t.Fatalf("got %v want %v", keys, want)
	}
	for i := range want {
		if keys[i] != want[i] {
			t.Fatalf("got %v want %v", keys, want)
		}
	}
}

func TestDuplicateKeyRejected(t *testing.T) {
	p, s := newTestLeaf(t)
	defer p.Close(pager.PageSize)

	c, _ := Find(p, s, 0, 1)
	if err := c.InsertAtCursor(1, val(1)); err != nil {
		t.Fatalf("first insert: %v", err)
	}
	c2, _ := Find(p, s, 0, 1)
	if err := c2.InsertAtCursor(1, val(9)); err != ErrDuplicateKey {
		t.Fatalf("expected ErrDuplicateKey, got %v", err)
	}
}

func TestTableFullWhenAtCapacity(t *testing.T) {
	p, s := newTestLeaf(t)
	defer p.Close(pager.PageSize)

	max := s.MaxCells()
	for i := 0; i < max; i++ {
		c, err := Find(p, s, 0, uint32(i))
		if err != nil {
			t.Fatalf("find: %v", err)
		}
		if err := c.InsertAtCursor(uint32(i), val(byte(i))); err != nil {
			t.Fatalf("insert %d: %v", i, err)
		}
	}
	c, _ := Find(p, s, 0, uint32(max))
	if err := c.InsertAtCursor(uint32(max), val(1)); err != ErrTableFull {
		t.Fatalf("expected ErrTableFull, got %v", err)
	}
}

func TestDeleteShiftsLeft(t *testing.T) {
	p, s := newTestLeaf(t)
	defer p.Close(pager.PageSize)

	for _, k := range []uint32{1, 2, 3} {
		c, _ := Find(p, s, 0, k)
		if err := c.InsertAtCursor(k, val(byte(k))); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}
	c, err := Find(p, s, 0, 2)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if err := c.DeleteAtCursor(); err != nil {
		t.Fatalf("delete: %v", err)
	}

	start, _ := Start(p, s, 0)
	var keys []uint32
	for !start.EndOfTable {
		k, _ := start.KeyAtCursor()
		keys = append(keys, k)
		start.Advance()
	}
	if len(keys) != 2 || keys[0] != 1 || keys[1] != 3 {
		t.Fatalf("got %v, want [1 3]", keys)
	}
}
