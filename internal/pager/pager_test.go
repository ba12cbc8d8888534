package pager

import (
	"bytes"
	"path/filepath"
	"testing"
)

func TestFetchNewPageIsZeroed(t *testing.T) {
	dir := t.TempDir()
	p, err := Open(filepath.Join(dir, "t.tbl"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer p.Close(PageSize)

	buf, err := p.Fetch(0)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if !bytes.Equal(buf[:], make([]byte, PageSize)) {
		t.Fatal("expected zeroed page")
	}
}

func TestFetchPageOutOfRangeIsFatal(t *testing.T) {
	dir := t.TempDir()
	p, err := Open(filepath.Join(dir, "t.tbl"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer p.Close(PageSize)

	if _, err := p.Fetch(MaxPages); err == nil {
		t.Fatal("expected error fetching page at MaxPages")
	}
}

func TestFlushThenReopenRoundTrips(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "t.tbl")

	p, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	buf, err := p.Fetch(0)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	copy(buf[:], []byte("hello world"))
	if err := p.Flush(0, PageSize); err != nil {
		t.Fatalf("flush: %v", err)
	}
	if err := p.Close(PageSize); err != nil {
		t.Fatalf("close: %v", err)
	}

	p2, err := Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer p2.Close(PageSize)
	buf2, err := p2.Fetch(0)
	if err != nil {
		t.Fatalf("fetch after reopen: %v", err)
	}
	if !bytes.HasPrefix(buf2[:], []byte("hello world")) {
		t.Fatalf("round-trip mismatch: got %q", buf2[:11])
	}
}

func TestClosePartialTrailingPage(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "t.tbl")

	p, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	buf, _ := p.Fetch(0)
	copy(buf[:], bytes.Repeat([]byte{0xAB}, 50))
	if err := p.Close(50); err != nil {
		t.Fatalf("close: %v", err)
	}
	if p.FileLength() != 50 {
		t.Fatalf("expected partial file length 50, got %d", p.FileLength())
	}
}
