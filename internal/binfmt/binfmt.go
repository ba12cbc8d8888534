// Package binfmt holds the small fixed-width binary encoding helpers
// shared by every package that persists its own on-disk struct layout
// (the catalog and the ACL store): little-endian u32, a single byte
// bool, and a NUL-padded fixed-size string.
package binfmt

import (
	"encoding/binary"
	"io"
)

func WriteU32(w io.Writer, v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	w.Write(b[:])
}

func ReadU32(r io.Reader) (uint32, error) {
	var b [4]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b[:]), nil
}

func WriteBool(w io.Writer, v bool) {
	if v {
		w.Write([]byte{1})
	} else {
		w.Write([]byte{0})
	}
}

func ReadBool(r io.Reader) (bool, error) {
	var b [1]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return false, err
	}
	return b[0] != 0, nil
}

func WriteFixedString(w io.Writer, s string, n int) {
	buf := make([]byte, n)
	copy(buf, s)
	w.Write(buf)
}

func ReadFixedString(r io.Reader, n int) (string, error) {
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", err
	}
	end := 0
	for end < len(buf) && buf[end] != 0 {
		end++
	}
	return string(buf[:end]), nil
}
