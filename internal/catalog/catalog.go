// Package catalog implements the set of named table (and per-table
// index) definitions that make up one database: the in-memory registry,
// the active-table pointer, and the binary on-disk persistence format.
package catalog

import (
	"fmt"
	"sync"

	"github.com/minidb/minidb/internal/row"
)

const (
	MaxTableName  = 64
	MaxColumnName = 64
	MaxTables     = 32
	MaxColumns    = 16
	MaxIndexes    = 16
)

// IndexKind identifies the storage structure backing an index. B-tree is
// the only kind ever realized.
type IndexKind string

const BTreeKind IndexKind = "btree"

// IndexDef describes one secondary index on a table.
type IndexDef struct {
	Name     string
	Column   string
	Unique   bool
	RootPage uint32
	FilePath string
	Kind     IndexKind
}

// TableDef describes one table: its schema, its backing file and root
// page, and the indexes defined over it.
type TableDef struct {
	Name     string
	Columns  []row.Column
	RootPage uint32
	FilePath string
	Indexes  []IndexDef
}

// FindIndex returns the named index, or nil if it does not exist.
func (t *TableDef) FindIndex(name string) *IndexDef {
	for i := range t.Indexes {
		if t.Indexes[i].Name == name {
			return &t.Indexes[i]
		}
	}
	return nil
}

// IndexOnColumn returns the first index over the named column, or nil.
func (t *TableDef) IndexOnColumn(column string) *IndexDef {
	for i := range t.Indexes {
		if t.Indexes[i].Column == column {
			return &t.Indexes[i]
		}
	}
	return nil
}

// ColumnIndex returns the position of the named column, or -1.
func (t *TableDef) ColumnIndex(name string) int {
	for i, c := range t.Columns {
		if c.Name == name {
			return i
		}
	}
	return -1
}

var (
	ErrDuplicateName    = fmt.Errorf("duplicate name")
	ErrCapacityExceeded = fmt.Errorf("capacity exceeded")
	ErrNotFound         = fmt.Errorf("not found")
)

// Catalog is the ordered, process-wide registry of a database's tables.
// It is safe for concurrent use.
type Catalog struct {
	mu           sync.RWMutex
	DatabaseName string
	Tables       []*TableDef
	ActiveIndex  int // -1 if no table is active
}

// New returns an empty catalog for dbName.
func New(dbName string) *Catalog {
	return &Catalog{DatabaseName: dbName, ActiveIndex: -1}
}

// AddTable registers a new table with the given name and columns,
// deriving its canonical backing file path. Fails with ErrDuplicateName
// or ErrCapacityExceeded.
func (c *Catalog) AddTable(name string, cols []row.Column) (*TableDef, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.Tables) >= MaxTables {
		return nil, ErrCapacityExceeded
	}
	for _, t := range c.Tables {
		if t.Name == name {
			return nil, ErrDuplicateName
		}
	}
	if len(cols) > MaxColumns {
		return nil, fmt.Errorf("table %q: too many columns (%d > %d)", name, len(cols), MaxColumns)
	}
	td := &TableDef{
		Name:     name,
		Columns:  cols,
		FilePath: TablePath(c.DatabaseName, name),
	}
	c.Tables = append(c.Tables, td)
	return td, nil
}

// FindTable performs a linear scan, bounded by MaxTables so this never
// needs an index.
func (c *Catalog) FindTable(name string) (*TableDef, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, t := range c.Tables {
		if t.Name == name {
			return t, nil
		}
	}
	return nil, ErrNotFound
}

// SetActive marks name as the active table.
func (c *Catalog) SetActive(name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, t := range c.Tables {
		if t.Name == name {
			c.ActiveIndex = i
			return nil
		}
	}
	return ErrNotFound
}

// Active returns the currently active table, or ErrNotFound if none is set.
func (c *Catalog) Active() (*TableDef, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.ActiveIndex < 0 || c.ActiveIndex >= len(c.Tables) {
		return nil, ErrNotFound
	}
	return c.Tables[c.ActiveIndex], nil
}

// AddIndex registers a new index on table, deriving its canonical
// backing file path.
func (c *Catalog) AddIndex(table *TableDef, name, column string, unique bool) (*IndexDef, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(table.Indexes) >= MaxIndexes {
		return nil, ErrCapacityExceeded
	}
	for _, ix := range table.Indexes {
		if ix.Name == name {
			return nil, ErrDuplicateName
		}
	}
	ix := IndexDef{
		Name:     name,
		Column:   column,
		Unique:   unique,
		FilePath: IndexPath(c.DatabaseName, table.Name, name),
		Kind:     BTreeKind,
	}
	table.Indexes = append(table.Indexes, ix)
	return &table.Indexes[len(table.Indexes)-1], nil
}

// ListTableNames returns every registered table name, in catalog order.
func (c *Catalog) ListTableNames() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, len(c.Tables))
	for i, t := range c.Tables {
		names[i] = t.Name
	}
	return names
}
