package imgregion

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"
)

func TestPartialAccess(t *testing.T) {
	data := make([]byte, 64)
	root := New("image", data)

	hdr, err := Partial("header", root, 16, 32)
	if err != nil {
		t.Fatalf("Partial: got %v, want nil", err)
	}
	field, err := Partial("field", hdr, 8, 8)
	if err != nil {
		t.Fatalf("Partial: got %v, want nil", err)
	}

	if err := WriteU32(field, binary.LittleEndian, 4, 0xdeadbeef); err != nil {
		t.Fatalf("WriteU32: got %v, want nil", err)
	}
	if got := binary.LittleEndian.Uint32(data[16+8+4:]); got != 0xdeadbeef {
		t.Errorf("backing data: got %#x, want 0xdeadbeef", got)
	}

	v, err := ReadU32(hdr, binary.LittleEndian, 12)
	if err != nil || v != 0xdeadbeef {
		t.Errorf("ReadU32: got (%#x, %v), want (0xdeadbeef, nil)", v, err)
	}

	parent, off := RecursiveGetParentAddress(field, 4)
	if parent != root || off != 16+8+4 {
		t.Errorf("RecursiveGetParentAddress: got (%s, %d), want (image, 28)", parent.GetName(), off)
	}
}

func TestBounds(t *testing.T) {
	root := New("image", make([]byte, 16))

	if _, err := Partial("big", root, 8, 9); !errors.Is(err, ErrorOutOfRange) {
		t.Errorf("Partial past end: got %v, want ErrorOutOfRange", err)
	}

	p, err := Partial("tail", root, 8, 8)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := ReadU64(p, binary.BigEndian, 4); !errors.Is(err, ErrorOutOfRange) {
		t.Errorf("ReadU64 past end: got %v, want ErrorOutOfRange", err)
	}
	if _, err := ReadU64(p, binary.BigEndian, 0); err != nil {
		t.Errorf("ReadU64 in range: got %v, want nil", err)
	}
}

func TestReadOnly(t *testing.T) {
	data := []byte("AVB0xxxx")
	root := NewReadOnly("vbmeta", data)

	if err := WriteU32(root, binary.BigEndian, 4, 1); !errors.Is(err, ErrorReadOnly) {
		t.Errorf("write to read-only: got %v, want ErrorReadOnly", err)
	}

	got, err := Bytes(root)
	if err != nil || !bytes.Equal(got, data) {
		t.Errorf("Bytes: got (%q, %v), want (%q, nil)", got, err, data)
	}
}
