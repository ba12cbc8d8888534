package row

import (
	"bytes"
	"fmt"
)

// Op is a WHERE comparison operator.
type Op string

const (
	Eq  Op = "="
	Neq Op = "!="
	Lt  Op = "<"
	Lte Op = "<="
	Gt  Op = ">"
	Gte Op = ">="
)

// ParseOp maps the wire-protocol operator spelling to an Op.
func ParseOp(s string) (Op, error) {
	switch s {
	case "=":
		return Eq, nil
	case "!=", "<>":
		return Neq, nil
	case "<":
		return Lt, nil
	case "<=":
		return Lte, nil
	case ">":
		return Gt, nil
	case ">=":
		return Gte, nil
	default:
		return "", fmt.Errorf("unsupported operator %q", s)
	}
}

// Compare evaluates decoded column value `actual` against wire value
// `want` using op, type-directed: numeric for
// INT/FLOAT/BOOL/DATE/TIME/TIMESTAMP (BOOL treats true/false as 1/0),
// byte-wise for STRING, unsupported for BLOB.
func Compare(t Type, op Op, actual, want any) (bool, error) {
	switch t {
	case Blob:
		return false, fmt.Errorf("BLOB columns do not support comparison")
	case String:
		a, _ := actual.(string)
		w, ok := want.(string)
		if !ok {
			return false, fmt.Errorf("expected string operand, got %T", want)
		}
		return compareOrdered(op, bytes.Compare([]byte(a), []byte(w))), nil
	case Bool:
		actual = boolToFloat(actual)
		want = boolToFloat(want)
		fallthrough
	default:
		a, err := asFloat64(actual)
		if err != nil {
			a2, err2 := asInt64(actual)
			if err2 != nil {
				return false, err
			}
			a = float64(a2)
		}
		w, err := asFloat64(want)
		if err != nil {
			w2, err2 := asInt64(want)
			if err2 != nil {
				return false, err
			}
			w = float64(w2)
		}
		cmp := 0
		switch {
		case a < w:
			cmp = -1
		case a > w:
			cmp = 1
		}
		return compareOrdered(op, cmp), nil
	}
}

// boolToFloat maps a bool operand to 1/0 so BOOL columns can share the
// numeric comparison path below; non-bool values pass through
// unchanged so asFloat64/asInt64 report the original type in errors.
func boolToFloat(v any) any {
	if b, ok := v.(bool); ok {
		if b {
			return float64(1)
		}
		return float64(0)
	}
	return v
}

func compareOrdered(op Op, cmp int) bool {
	switch op {
	case Eq:
		return cmp == 0
	case Neq:
		return cmp != 0
	case Lt:
		return cmp < 0
	case Lte:
		return cmp <= 0
	case Gt:
		return cmp > 0
	case Gte:
		return cmp >= 0
	default:
		return false
	}
}
