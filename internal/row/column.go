// Package row implements the fixed-width row codec described by a
// TableDef: encoding Go values into the on-disk byte layout of a table's
// rows, decoding them back, and the type-directed comparisons the WHERE
// clause needs.
package row

import "fmt"

// Type is a column's storage kind. The numeric values are the on-disk
// enum persisted in the catalog file ("u32 type // enum 0..7").
type Type uint32

const (
	Int Type = iota
	Float
	Bool
	Date
	Time
	Timestamp
	String
	Blob
)

// String renders a Type for diagnostics and the wire protocol.
func (t Type) String() string {
	switch t {
	case Int:
		return "INT"
	case Float:
		return "FLOAT"
	case Bool:
		return "BOOL"
	case Date:
		return "DATE"
	case Time:
		return "TIME"
	case Timestamp:
		return "TIMESTAMP"
	case String:
		return "STRING"
	case Blob:
		return "BLOB"
	default:
		return fmt.Sprintf("Type(%d)", uint32(t))
	}
}

// ParseType maps a wire-protocol type name to a Type.
func ParseType(s string) (Type, error) {
	switch s {
	case "INT":
		return Int, nil
	case "FLOAT":
		return Float, nil
	case "BOOL":
		return Bool, nil
	case "DATE":
		return Date, nil
	case "TIME":
		return Time, nil
	case "TIMESTAMP":
		return Timestamp, nil
	case "STRING":
		return String, nil
	case "BLOB":
		return Blob, nil
	default:
		return 0, fmt.Errorf("unknown column type %q", s)
	}
}

// Numeric reports whether comparisons on this type are numeric (as
// opposed to byte-wise, or unsupported).
func (t Type) Numeric() bool {
	switch t {
	case Int, Float, Bool, Date, Time, Timestamp:
		return true
	default:
		return false
	}
}

// Column describes one column of a TableDef: its name, its storage
// type, and — for STRING and BLOB — the declared size that governs its
// on-disk width.
type Column struct {
	Name string
	Type Type
	Size uint32 // declared size for STRING/BLOB; ignored otherwise
}

// Width returns the fixed on-disk byte width of this column.
func (c Column) Width() int {
	switch c.Type {
	case Int, Float, Date, Time:
		return 4
	case Bool:
		return 1
	case Timestamp:
		return 8
	case String:
		return int(c.Size)
	case Blob:
		return 4 + int(c.Size) // 4-byte length prefix + declared capacity
	default:
		return 0
	}
}

// RowWidth returns the total fixed width of a row described by cols.
func RowWidth(cols []Column) int {
	w := 0
	for _, c := range cols {
		w += c.Width()
	}
	return w
}

// Offset returns the byte offset of column index i within an encoded row.
func Offset(cols []Column, i int) int {
	off := 0
	for j := 0; j < i; j++ {
		off += cols[j].Width()
	}
	return off
}
