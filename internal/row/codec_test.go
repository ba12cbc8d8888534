package row

import (
	"bytes"
	"testing"
)

func testCols() []Column {
	return []Column{
		{Name: "id", Type: Int},
		{Name: "name", Type: String, Size: 16},
		{Name: "active", Type: Bool},
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	cols := testCols()
	in := []any{int64(42), "alice", true}
	buf, err := Encode(cols, in)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if len(buf) != RowWidth(cols) {
		t.Fatalf("encoded width %d != RowWidth %d", len(buf), RowWidth(cols))
	}
	out, err := Decode(cols, buf)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out[0].(int64) != 42 || out[1].(string) != "alice" || out[2].(bool) != true {
		t.Fatalf("round-trip mismatch: %+v", out)
	}
}

func TestRawBytesStringTrimsPadding(t *testing.T) {
	cols := testCols()
	buf, _ := Encode(cols, []any{int64(1), "ab", false})
	raw := RawBytes(cols, buf, 1)
	if !bytes.Equal(raw, []byte("ab")) {
		t.Fatalf("got %q, want %q", raw, "ab")
	}
}

func TestPrimaryKey(t *testing.T) {
	cols := testCols()
	buf, _ := Encode(cols, []any{int64(7), "x", false})
	if PrimaryKey(cols, buf) != 7 {
		t.Fatalf("got %d, want 7", PrimaryKey(cols, buf))
	}
}

func TestCompareStringByteWise(t *testing.T) {
	ok, err := Compare(String, Lt, "abc", "abd")
	if err != nil || !ok {
		t.Fatalf("expected abc < abd, err=%v ok=%v", err, ok)
	}
}

func TestCompareBlobUnsupported(t *testing.T) {
	if _, err := Compare(Blob, Eq, []byte("a"), []byte("a")); err == nil {
		t.Fatal("expected error comparing BLOB")
	}
}
