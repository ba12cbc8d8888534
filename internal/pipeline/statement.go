// Package pipeline implements the command pipeline: parsing a
// newline-framed JSON document into a tagged Statement, routing it
// through the ACL, executing it against the catalog/table/index/txn
// layers, and formatting a response.
package pipeline

import (
	"encoding/json"
	"fmt"

	"github.com/minidb/minidb/internal/acl"
	"github.com/minidb/minidb/internal/row"
)

// Where is a WHERE clause: column OP value.
type Where struct {
	Column   string `json:"column"`
	Operator string `json:"operator"`
	Value    any    `json:"value"`
}

// ColumnSpec describes one column in a create_table request.
type ColumnSpec struct {
	Name string `json:"name"`
	Type string `json:"type"`
	Size uint32 `json:"size"`
}

// Statement is the tagged variant every wire-protocol command parses
// into. Only the fields relevant to Command are populated; the rest
// are left zero.
type Statement struct {
	Command string `json:"command"`

	// insert / select / update / delete
	Table   string   `json:"table"`
	Columns []string `json:"-"`
	Where   *Where   `json:"where,omitempty"`
	Values  []any    `json:"values,omitempty"`
	Column  string   `json:"column,omitempty"`
	Value   any      `json:"value,omitempty"`

	// create_table — shares the wire key "columns" with the projection
	// list above; UnmarshalJSON picks the right shape by Command.
	ColumnDefs []ColumnSpec `json:"-"`

	// create_index / show_indexes — Columns[0] names the indexed column.
	IndexName string `json:"index_name,omitempty"`
	Unique    bool   `json:"unique,omitempty"`

	// use_database / create_database / use_table
	Name string `json:"name,omitempty"`

	// meta
	MetaCommand string `json:"meta_command,omitempty"`
	FormatType  string `json:"format_type,omitempty"`

	// auth / user management
	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"`
	Role     string `json:"role,omitempty"`
}

// wireStatement mirrors Statement field-for-field except it leaves
// "columns" as raw JSON, since create_table sends a list of column
// definition objects there while every other command sends a plain
// list of column names.
type wireStatement struct {
	Command     string          `json:"command"`
	Table       string          `json:"table"`
	Columns     json.RawMessage `json:"columns,omitempty"`
	Where       *Where          `json:"where,omitempty"`
	Values      []any           `json:"values,omitempty"`
	Column      string          `json:"column,omitempty"`
	Value       any             `json:"value,omitempty"`
	IndexName   string          `json:"index_name,omitempty"`
	Unique      bool            `json:"unique,omitempty"`
	Name        string          `json:"name,omitempty"`
	MetaCommand string          `json:"meta_command,omitempty"`
	FormatType  string          `json:"format_type,omitempty"`
	Username    string          `json:"username,omitempty"`
	Password    string          `json:"password,omitempty"`
	Role        string          `json:"role,omitempty"`
}

// UnmarshalJSON decodes the wire-protocol document, then disambiguates
// "columns" by Command: create_table's column definitions (objects)
// versus every other command's projection/column-name list (strings).
func (st *Statement) UnmarshalJSON(data []byte) error {
	var w wireStatement
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	*st = Statement{
		Command:     w.Command,
		Table:       w.Table,
		Where:       w.Where,
		Values:      w.Values,
		Column:      w.Column,
		Value:       w.Value,
		IndexName:   w.IndexName,
		Unique:      w.Unique,
		Name:        w.Name,
		MetaCommand: w.MetaCommand,
		FormatType:  w.FormatType,
		Username:    w.Username,
		Password:    w.Password,
		Role:        w.Role,
	}
	if len(w.Columns) == 0 {
		return nil
	}
	if w.Command == "create_table" {
		if err := json.Unmarshal(w.Columns, &st.ColumnDefs); err != nil {
			return fmt.Errorf("columns: %w", err)
		}
		return nil
	}
	if err := json.Unmarshal(w.Columns, &st.Columns); err != nil {
		return fmt.Errorf("columns: %w", err)
	}
	return nil
}

// Parse decodes one newline-terminated JSON document into a Statement.
func Parse(line []byte) (*Statement, error) {
	var st Statement
	if err := json.Unmarshal(line, &st); err != nil {
		return nil, fmt.Errorf("parse: %w", err)
	}
	if st.Command == "" {
		return nil, fmt.Errorf("parse: missing command")
	}
	return &st, nil
}

// commandClasses maps each non-meta, non-auth command to the
// permission bucket check_permission consults.
var commandClasses = map[string]acl.CommandClass{
	"select":          acl.Read,
	"show_tables":     acl.Read,
	"show_indexes":    acl.Read,
	"insert":          acl.Write,
	"update":          acl.Write,
	"delete":          acl.Delete,
	"create_table":    acl.Create,
	"create_index":    acl.Create,
	"create_database": acl.Create,
	"use_database":    acl.Read,
	"use_table":       acl.Read,
	"grant":           acl.Grant,
	"revoke":          acl.Revoke,
}

// CommandClass returns the permission bucket for cmd, and whether cmd
// is subject to permission checking at all (meta, login, logout, and
// create_user/drop_user bypass it — they carry their own authorization
// rules instead).
func CommandClass(command string) (acl.CommandClass, bool) {
	c, ok := commandClasses[command]
	return c, ok
}

func parseColumnSpecs(defs []ColumnSpec) ([]row.Column, error) {
	cols := make([]row.Column, len(defs))
	for i, d := range defs {
		t, err := row.ParseType(d.Type)
		if err != nil {
			return nil, fmt.Errorf("column %q: %w", d.Name, err)
		}
		cols[i] = row.Column{Name: d.Name, Type: t, Size: d.Size}
	}
	return cols, nil
}
