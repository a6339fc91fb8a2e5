// Package imgregion exposes named, nested byte ranges of a firmware image so
// that parsers can address a section relative to itself while still being
// able to report the absolute file offset.
package imgregion

import (
	"encoding/binary"
	"fmt"
)

type Region interface {
	GetLength() int
	Access(write bool, addr int, buf []byte) (int, error)
	GetParent() (Region, int)
	GetName() string
}

type regionBuffer struct {
	name     string
	data     []byte
	readOnly bool
}

// New wraps an in-memory image. Writes go straight to data.
func New(name string, data []byte) Region {
	return &regionBuffer{name: name, data: data}
}

// NewReadOnly wraps memory that must not be modified, e.g. a read-only mapping.
func NewReadOnly(name string, data []byte) Region {
	return &regionBuffer{name: name, data: data, readOnly: true}
}

func (r *regionBuffer) GetName() string {
	return r.name
}

func (r *regionBuffer) GetLength() int {
	return len(r.data)
}

func (r *regionBuffer) GetParent() (Region, int) {
	return nil, 0
}

func (r *regionBuffer) Access(write bool, addr int, buf []byte) (int, error) {
	if addr < 0 || addr+len(buf) > len(r.data) {
		return 0, fmt.Errorf("%s: %d bytes at 0x%x: %w", r.name, len(buf), addr, ErrorOutOfRange)
	}
	if write {
		if r.readOnly {
			return 0, ErrorReadOnly
		}
		return copy(r.data[addr:], buf), nil
	}
	return copy(buf, r.data[addr:]), nil
}

type regionPartial struct {
	parent Region
	offset int
	length int
	name   string
}

// Partial returns the sub-range [offset, offset+length) of parent.
func Partial(name string, parent Region, offset int, length int) (Region, error) {
	if offset < 0 || length < 0 || offset+length > parent.GetLength() {
		return nil, fmt.Errorf("%s: 0x%x+0x%x exceeds %s (0x%x): %w",
			name, offset, length, parent.GetName(), parent.GetLength(), ErrorOutOfRange)
	}

	return regionPartial{
		parent: parent,
		offset: offset,
		length: length,
		name:   name,
	}, nil
}

func (h regionPartial) GetName() string {
	return h.name
}

func (h regionPartial) GetLength() int {
	return h.length
}

func (h regionPartial) GetParent() (Region, int) {
	return h.parent, h.offset
}

func (h regionPartial) Access(write bool, addr int, buf []byte) (int, error) {
	if addr < 0 || len(buf)+addr > h.length {
		return 0, fmt.Errorf("%s: %d bytes at 0x%x: %w", h.name, len(buf), addr, ErrorOutOfRange)
	}

	return h.parent.Access(write, h.offset+addr, buf)
}

// Bytes copies out the whole region.
func Bytes(m Region) ([]byte, error) {
	buf := make([]byte, m.GetLength())
	_, err := m.Access(false, 0, buf)
	return buf, err
}

func ReadU32(m Region, order binary.ByteOrder, addr int) (uint32, error) {
	var buf [4]byte
	_, err := m.Access(false, addr, buf[:])
	return order.Uint32(buf[:]), err
}

func WriteU32(m Region, order binary.ByteOrder, addr int, value uint32) error {
	var buf [4]byte
	order.PutUint32(buf[:], value)
	_, err := m.Access(true, addr, buf[:])
	return err
}

func ReadU64(m Region, order binary.ByteOrder, addr int) (uint64, error) {
	var buf [8]byte
	_, err := m.Access(false, addr, buf[:])
	return order.Uint64(buf[:]), err
}

func RecursiveGetParentAddress(region Region, offset int) (Region, int) {
	for {
		var parentOffset int
		prevRegion := region
		region, parentOffset = region.GetParent()

		offset += parentOffset

		if region == nil {
			return prevRegion, offset
		}
	}
}
