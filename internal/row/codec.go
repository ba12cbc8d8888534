package row

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Encode packs values — one per column, in column order — into a
// fixed-width row buffer per cols. values[0] must be the primary key
// (an INT column); callers read it back from the buffer with
// PrimaryKey.
func Encode(cols []Column, values []any) ([]byte, error) {
	if len(values) != len(cols) {
		return nil, fmt.Errorf("row: expected %d values, got %d", len(cols), len(values))
	}
	buf := make([]byte, RowWidth(cols))
	off := 0
	for i, c := range cols {
		w := c.Width()
		if err := encodeOne(buf[off:off+w], c, values[i]); err != nil {
			return nil, fmt.Errorf("column %q: %w", c.Name, err)
		}
		off += w
	}
	return buf, nil
}

func encodeOne(dst []byte, c Column, v any) error {
	switch c.Type {
	case Int, Date, Time:
		n, err := asInt64(v)
		if err != nil {
			return err
		}
		binary.LittleEndian.PutUint32(dst, uint32(int32(n)))
	case Float:
		f, err := asFloat64(v)
		if err != nil {
			return err
		}
		binary.LittleEndian.PutUint32(dst, math.Float32bits(float32(f)))
	case Bool:
		b, ok := v.(bool)
		if !ok {
			return fmt.Errorf("expected bool, got %T", v)
		}
		if b {
			dst[0] = 1
		}
	case Timestamp:
		n, err := asInt64(v)
		if err != nil {
			return err
		}
		binary.LittleEndian.PutUint64(dst, uint64(n))
	case String:
		s, ok := v.(string)
		if !ok {
			return fmt.Errorf("expected string, got %T", v)
		}
		if len(s) > len(dst) {
			return fmt.Errorf("string too long: %d > %d", len(s), len(dst))
		}
		copy(dst, s)
	case Blob:
		b, ok := v.([]byte)
		if !ok {
			return fmt.Errorf("expected []byte, got %T", v)
		}
		if len(b) > len(dst)-4 {
			return fmt.Errorf("blob too long: %d > %d", len(b), len(dst)-4)
		}
		binary.LittleEndian.PutUint32(dst[:4], uint32(len(b)))
		copy(dst[4:], b)
	default:
		return fmt.Errorf("unknown column type %v", c.Type)
	}
	return nil
}

func asInt64(v any) (int64, error) {
	switch n := v.(type) {
	case int64:
		return n, nil
	case int:
		return int64(n), nil
	case uint32:
		return int64(n), nil
	case float64:
		return int64(n), nil
	default:
		return 0, fmt.Errorf("expected integer, got %T", v)
	}
}

func asFloat64(v any) (float64, error) {
	switch f := v.(type) {
	case float64:
		return f, nil
	case float32:
		return float64(f), nil
	case int:
		return float64(f), nil
	default:
		return 0, fmt.Errorf("expected number, got %T", v)
	}
}

// Decode unpacks a fixed-width row buffer into one Go value per column.
func Decode(cols []Column, buf []byte) ([]any, error) {
	if len(buf) != RowWidth(cols) {
		return nil, fmt.Errorf("row: buffer is %d bytes, want %d", len(buf), RowWidth(cols))
	}
	values := make([]any, len(cols))
	off := 0
	for i, c := range cols {
		w := c.Width()
		values[i] = decodeOne(c, buf[off:off+w])
		off += w
	}
	return values, nil
}

func decodeOne(c Column, src []byte) any {
	switch c.Type {
	case Int, Date, Time:
		return int64(int32(binary.LittleEndian.Uint32(src)))
	case Float:
		return float64(math.Float32frombits(binary.LittleEndian.Uint32(src)))
	case Bool:
		return src[0] != 0
	case Timestamp:
		return int64(binary.LittleEndian.Uint64(src))
	case String:
		end := len(src)
		for end > 0 && src[end-1] == 0 {
			end--
		}
		return string(src[:end])
	case Blob:
		n := binary.LittleEndian.Uint32(src[:4])
		out := make([]byte, n)
		copy(out, src[4:4+n])
		return out
	default:
		return nil
	}
}

// RawBytes returns the raw on-disk bytes of column i within an encoded
// row — INT/FLOAT as their little-endian 4 bytes, STRING as its used
// (non-padded) length, BLOB as its declared capacity. Secondary-index
// building and hashing operate on these bytes directly.
func RawBytes(cols []Column, buf []byte, i int) []byte {
	off := Offset(cols, i)
	c := cols[i]
	w := c.Width()
	field := buf[off : off+w]
	switch c.Type {
	case String:
		end := len(field)
		for end > 0 && field[end-1] == 0 {
			end--
		}
		return field[:end]
	case Blob:
		return field[4:]
	default:
		return field
	}
}

// PrimaryKey returns the row's primary key, which is always column 0 and
// always an unsigned 32-bit integer.
func PrimaryKey(cols []Column, buf []byte) uint32 {
	off := Offset(cols, 0)
	return binary.LittleEndian.Uint32(buf[off : off+4])
}
