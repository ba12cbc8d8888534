package catalog

import (
	"fmt"
	"os"
	"path/filepath"
)

// DatabaseDir returns Database/<db>.
func DatabaseDir(db string) string {
	return filepath.Join("Database", db)
}

// CatalogPath returns Database/<db>/<db>.catalog.
func CatalogPath(db string) string {
	return filepath.Join(DatabaseDir(db), db+".catalog")
}

// ACLPath returns Database/<db>/<db>.acl.
func ACLPath(db string) string {
	return filepath.Join(DatabaseDir(db), db+".acl")
}

// TablesDir returns Database/<db>/Tables.
func TablesDir(db string) string {
	return filepath.Join(DatabaseDir(db), "Tables")
}

// TablePath returns the canonical path of a table's backing file.
func TablePath(db, table string) string {
	return filepath.Join(TablesDir(db), table+".tbl")
}

// IndexPath returns the canonical path of an index's backing file.
func IndexPath(db, table, index string) string {
	return filepath.Join(TablesDir(db), fmt.Sprintf("%s_%s.idx", table, index))
}

// EnsureLayout creates Database/<db>/Tables if it does not already exist.
func EnsureLayout(db string) error {
	return os.MkdirAll(TablesDir(db), 0755)
}
