package catalog

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/minidb/minidb/internal/row"
)

func withTempDatabaseDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	wd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.Chdir(wd) })
	return dir
}

func TestCatalogSaveLoadRoundTrip(t *testing.T) {
	withTempDatabaseDir(t)

	c := New("demo")
	td, err := c.AddTable("users", []row.Column{
		{Name: "id", Type: row.Int},
		{Name: "name", Type: row.String, Size: 32},
	})
	if err != nil {
		t.Fatalf("add table: %v", err)
	}
	td.RootPage = 0
	if _, err := c.AddIndex(td, "idx_name", "name", false); err != nil {
		t.Fatalf("add index: %v", err)
	}
	if err := c.SetActive("users"); err != nil {
		t.Fatalf("set active: %v", err)
	}
	if err := c.Save(); err != nil {
		t.Fatalf("save: %v", err)
	}

	loaded, err := Load("demo")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.DatabaseName != "demo" {
		t.Fatalf("database name mismatch: %q", loaded.DatabaseName)
	}
	if len(loaded.Tables) != 1 {
		t.Fatalf("expected 1 table, got %d", len(loaded.Tables))
	}
	lt := loaded.Tables[0]
	if lt.Name != "users" || len(lt.Columns) != 2 || lt.Columns[1].Size != 32 {
		t.Fatalf("table mismatch: %+v", lt)
	}
	if lt.FilePath != filepath.Join("Database", "demo", "Tables", "users.tbl") {
		t.Fatalf("unexpected file path: %q", lt.FilePath)
	}
	if len(lt.Indexes) != 1 || lt.Indexes[0].Name != "idx_name" {
		t.Fatalf("index mismatch: %+v", lt.Indexes)
	}
	if loaded.ActiveIndex != 0 {
		t.Fatalf("active index mismatch: %d", loaded.ActiveIndex)
	}
}

func TestLoadMigratesMisfiledTablePath(t *testing.T) {
	dir := withTempDatabaseDir(t)

	c := New("demo")
	if _, err := c.AddTable("users", []row.Column{{Name: "id", Type: row.Int}}); err != nil {
		t.Fatalf("add table: %v", err)
	}
	c.Tables[0].FilePath = filepath.Join(dir, "stray.tbl")
	if err := EnsureLayout("demo"); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(c.Tables[0].FilePath, []byte("data"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := c.Save(); err != nil {
		t.Fatalf("save: %v", err)
	}

	loaded, err := Load("demo")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	want := TablePath("demo", "users")
	if loaded.Tables[0].FilePath != want {
		t.Fatalf("expected canonical path %q, got %q", want, loaded.Tables[0].FilePath)
	}
	if _, err := os.Stat(want); err != nil {
		t.Fatalf("expected migrated file at %q: %v", want, err)
	}
}
