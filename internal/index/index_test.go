package index

import (
	"path/filepath"
	"testing"

	"github.com/minidb/minidb/internal/catalog"
	"github.com/minidb/minidb/internal/row"
	"github.com/minidb/minidb/internal/table"
)

func newTestTable(t *testing.T, dir string) *table.Table {
	t.Helper()
	def := &catalog.TableDef{
		Name: "users",
		Columns: []row.Column{
			{Name: "id", Type: row.Int},
			{Name: "name", Type: row.String, Size: 16},
		},
		FilePath: filepath.Join(dir, "users.tbl"),
	}
	tbl, err := table.Open(def)
	if err != nil {
		t.Fatalf("open table: %v", err)
	}
	t.Cleanup(func() { tbl.Close() })
	return tbl
}

func newTestIndex(t *testing.T, dir string, tbl *table.Table, unique bool) *Index {
	t.Helper()
	def := &catalog.IndexDef{
		Name:     "idx_name",
		Column:   "name",
		Unique:   unique,
		FilePath: filepath.Join(dir, "idx_name.idx"),
		Kind:     catalog.BTreeKind,
	}
	ix, err := Open(def, tbl.Def.Columns[1])
	if err != nil {
		t.Fatalf("open index: %v", err)
	}
	t.Cleanup(func() { ix.Close() })
	return ix
}

func TestHashIsDeterministic(t *testing.T) {
	if Hash([]byte("alice")) != Hash([]byte("alice")) {
		t.Fatal("hash is not deterministic")
	}
	if Hash([]byte("alice")) == Hash([]byte("bob")) {
		t.Fatal("distinct strings unexpectedly hashed equal (unlucky but check inputs)")
	}
}

func TestBuildAndFindRoundTrip(t *testing.T) {
	dir := t.TempDir()
	tbl := newTestTable(t, dir)
	for i, name := range []string{"alice", "bob", "carol"} {
		if err := tbl.Insert([]any{int64(i + 1), name}); err != nil {
			t.Fatalf("insert row: %v", err)
		}
	}

	ix := newTestIndex(t, dir, tbl, false)
	if err := Build(ix, tbl, 1); err != nil {
		t.Fatalf("build: %v", err)
	}

	rowIDs, err := ix.Find([]byte("bob"))
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if len(rowIDs) != 1 || rowIDs[0] != 2 {
		t.Fatalf("expected [2], got %v", rowIDs)
	}

	if rowIDs, err := ix.Find([]byte("dave")); err != nil || len(rowIDs) != 0 {
		t.Fatalf("expected no match for dave, got %v err=%v", rowIDs, err)
	}
}

func TestUniqueIndexRejectsDuplicate(t *testing.T) {
	dir := t.TempDir()
	tbl := newTestTable(t, dir)
	if err := tbl.Insert([]any{int64(1), "alice"}); err != nil {
		t.Fatalf("insert row: %v", err)
	}
	if err := tbl.Insert([]any{int64(2), "alice"}); err != nil {
		t.Fatalf("insert row: %v", err)
	}

	ix := newTestIndex(t, dir, tbl, true)
	if err := ix.Insert(1, []byte("alice")); err != nil {
		t.Fatalf("first insert: %v", err)
	}
	if err := ix.Insert(2, []byte("alice")); err != ErrDuplicateIndexKey {
		t.Fatalf("expected ErrDuplicateIndexKey, got %v", err)
	}
}

func TestHashCollisionKeepsBothRowsDistinguishableByRawBytes(t *testing.T) {
	dir := t.TempDir()
	tbl := newTestTable(t, dir)
	// "Ab" and "BA" collide under djb2: 65*33+98 == 66*33+65.
	if Hash([]byte("Ab")) != Hash([]byte("BA")) {
		t.Fatal("expected Ab and BA to share a djb2 hash")
	}
	if err := tbl.Insert([]any{int64(1), "Ab"}); err != nil {
		t.Fatalf("insert row: %v", err)
	}
	if err := tbl.Insert([]any{int64(2), "BA"}); err != nil {
		t.Fatalf("insert row: %v", err)
	}

	ix := newTestIndex(t, dir, tbl, false)
	if err := ix.Insert(1, []byte("Ab")); err != nil {
		t.Fatalf("insert Ab: %v", err)
	}
	if err := ix.Insert(2, []byte("BA")); err != nil {
		t.Fatalf("insert BA: %v", err)
	}

	abIDs, err := ix.Find([]byte("Ab"))
	if err != nil || len(abIDs) != 1 || abIDs[0] != 1 {
		t.Fatalf("Ab lookup: %v err=%v", abIDs, err)
	}
	baIDs, err := ix.Find([]byte("BA"))
	if err != nil || len(baIDs) != 1 || baIDs[0] != 2 {
		t.Fatalf("BA lookup: %v err=%v", baIDs, err)
	}
}

func TestDeleteRemovesOnlyMatchingRow(t *testing.T) {
	dir := t.TempDir()
	tbl := newTestTable(t, dir)
	if err := tbl.Insert([]any{int64(1), "alice"}); err != nil {
		t.Fatalf("insert row: %v", err)
	}
	if err := tbl.Insert([]any{int64(2), "alice"}); err != nil {
		t.Fatalf("insert row: %v", err)
	}

	ix := newTestIndex(t, dir, tbl, false)
	if err := ix.Insert(1, []byte("alice")); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := ix.Insert(2, []byte("alice")); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := ix.Delete(1, []byte("alice")); err != nil {
		t.Fatalf("delete: %v", err)
	}

	rowIDs, err := ix.Find([]byte("alice"))
	if err != nil || len(rowIDs) != 1 || rowIDs[0] != 2 {
		t.Fatalf("expected [2] remaining, got %v err=%v", rowIDs, err)
	}
}
