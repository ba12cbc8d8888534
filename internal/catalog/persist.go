package catalog

import (
	"bufio"
	"fmt"
	"io"
	"os"

	"github.com/minidb/minidb/internal/binfmt"
	"github.com/minidb/minidb/internal/row"
)

const nameFieldSize = 256

// Save writes the catalog to its canonical path (Database/<db>/<db>.catalog)
// in a fixed binary layout:
//
//	u32 num_tables
//	u32 active_table_index
//	char database_name[256]
//	for each table:
//	    char name[64]
//	    u32 num_columns
//	    for each column: char name[64], u32 type, u32 size
//	    u32 root_page_num
//	    char filename[256]
//
// Index definitions are not part of the table section above; minidb
// appends one additional section per table listing its indexes so
// create_index survives a restart too. A reader that only understands
// the table prefix can stop there; this implementation always reads
// the trailing section it itself wrote.
func (c *Catalog) Save() error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if err := EnsureLayout(c.DatabaseName); err != nil {
		return err
	}
	path := CatalogPath(c.DatabaseName)
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("catalog: create %s: %w", tmp, err)
	}
	w := bufio.NewWriter(f)

	binfmt.WriteU32(w, uint32(len(c.Tables)))
	binfmt.WriteU32(w, uint32(int32(c.ActiveIndex)))
	binfmt.WriteFixedString(w, c.DatabaseName, nameFieldSize)

	for _, t := range c.Tables {
		binfmt.WriteFixedString(w, t.Name, MaxTableName)
		binfmt.WriteU32(w, uint32(len(t.Columns)))
		for _, col := range t.Columns {
			binfmt.WriteFixedString(w, col.Name, MaxColumnName)
			binfmt.WriteU32(w, uint32(col.Type))
			binfmt.WriteU32(w, col.Size)
		}
		binfmt.WriteU32(w, t.RootPage)
		binfmt.WriteFixedString(w, t.FilePath, nameFieldSize)
	}

	for _, t := range c.Tables {
		binfmt.WriteU32(w, uint32(len(t.Indexes)))
		for _, ix := range t.Indexes {
			binfmt.WriteFixedString(w, ix.Name, MaxTableName)
			binfmt.WriteFixedString(w, ix.Column, MaxColumnName)
			binfmt.WriteBool(w, ix.Unique)
			binfmt.WriteU32(w, ix.RootPage)
			binfmt.WriteFixedString(w, ix.FilePath, nameFieldSize)
		}
	}

	if err := w.Flush(); err != nil {
		f.Close()
		return fmt.Errorf("catalog: write %s: %w", tmp, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("catalog: close %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("catalog: rename to %s: %w", path, err)
	}
	return nil
}

// Load reads a catalog previously written by Save from its canonical
// path for dbName.
func Load(dbName string) (*Catalog, error) {
	return LoadFromPath(CatalogPath(dbName))
}

// LoadFromPath reads a catalog from an explicit path and back-fills
// DatabaseName by parsing the path's directory component. On load,
// every table's path is re-canonicalized; if the stored path differs
// (e.g. the database directory moved), the backing file is migrated
// with rename, and the catalog is saved back.
func LoadFromPath(path string) (*Catalog, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("catalog: open %s: %w", path, err)
	}
	defer f.Close()
	r := bufio.NewReader(f)

	numTables, err := binfmt.ReadU32(r)
	if err != nil {
		return nil, err
	}
	activeIdx, err := binfmt.ReadU32(r)
	if err != nil {
		return nil, err
	}
	dbName, err := binfmt.ReadFixedString(r, nameFieldSize)
	if err != nil {
		return nil, err
	}
	if dbName == "" {
		dbName = dbNameFromPath(path)
	}

	c := &Catalog{DatabaseName: dbName, ActiveIndex: int(int32(activeIdx))}
	c.Tables = make([]*TableDef, 0, numTables)

	for i := uint32(0); i < numTables; i++ {
		name, err := binfmt.ReadFixedString(r, MaxTableName)
		if err != nil {
			return nil, err
		}
		numCols, err := binfmt.ReadU32(r)
		if err != nil {
			return nil, err
		}
		cols := make([]row.Column, numCols)
		for j := uint32(0); j < numCols; j++ {
			colName, err := binfmt.ReadFixedString(r, MaxColumnName)
			if err != nil {
				return nil, err
			}
			typ, err := binfmt.ReadU32(r)
			if err != nil {
				return nil, err
			}
			size, err := binfmt.ReadU32(r)
			if err != nil {
				return nil, err
			}
			cols[j] = row.Column{Name: colName, Type: row.Type(typ), Size: size}
		}
		rootPage, err := binfmt.ReadU32(r)
		if err != nil {
			return nil, err
		}
		storedPath, err := binfmt.ReadFixedString(r, nameFieldSize)
		if err != nil {
			return nil, err
		}

		canonical := TablePath(dbName, name)
		if storedPath != canonical && storedPath != "" {
			if err := os.Rename(storedPath, canonical); err != nil && !os.IsNotExist(err) {
				return nil, fmt.Errorf("catalog: migrate %s -> %s: %w", storedPath, canonical, err)
			}
		}

		c.Tables = append(c.Tables, &TableDef{
			Name:     name,
			Columns:  cols,
			RootPage: rootPage,
			FilePath: canonical,
		})
	}

	for i := uint32(0); i < numTables && i < uint32(len(c.Tables)); i++ {
		numIdx, err := binfmt.ReadU32(r)
		if err == io.EOF {
			break // older catalog file with no trailing index section
		}
		if err != nil {
			return nil, err
		}
		t := c.Tables[i]
		t.Indexes = make([]IndexDef, numIdx)
		for j := uint32(0); j < numIdx; j++ {
			ixName, err := binfmt.ReadFixedString(r, MaxTableName)
			if err != nil {
				return nil, err
			}
			column, err := binfmt.ReadFixedString(r, MaxColumnName)
			if err != nil {
				return nil, err
			}
			unique, err := binfmt.ReadBool(r)
			if err != nil {
				return nil, err
			}
			rootPage, err := binfmt.ReadU32(r)
			if err != nil {
				return nil, err
			}
			filePath, err := binfmt.ReadFixedString(r, nameFieldSize)
			if err != nil {
				return nil, err
			}
			t.Indexes[j] = IndexDef{
				Name: ixName, Column: column, Unique: unique,
				RootPage: rootPage, FilePath: filePath, Kind: BTreeKind,
			}
		}
	}

	if err := c.Save(); err != nil {
		return nil, fmt.Errorf("catalog: save migrated catalog: %w", err)
	}
	return c, nil
}

func dbNameFromPath(path string) string {
	// .../Database/<db>/<db>.catalog
	dir := path
	for i := len(dir) - 1; i >= 0; i-- {
		if dir[i] == '/' || dir[i] == '\\' {
			dir = dir[:i]
			break
		}
	}
	for i := len(dir) - 1; i >= 0; i-- {
		if dir[i] == '/' || dir[i] == '\\' {
			return dir[i+1:]
		}
	}
	return dir
}

