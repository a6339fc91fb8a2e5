// Package lkpatch applies the known AVB bypass patch sets to the MT8781 LK
// bootloader image. Every site is validated before it is written, so an LK
// build that does not match is rejected instead of being corrupted.
package lkpatch

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

type LogFunc func(level int, format string, param ...interface{})

var le = binary.LittleEndian

const (
	insnNOP    = 0xD503201F
	insnMOVW00 = 0x52800000 /* mov w0, #0 */
)

// Change records one written site.
type Change struct {
	Offset int
	Old    []byte
	New    []byte
	Label  string
}

type patcher struct {
	image   []byte
	changes []Change
	logFunc LogFunc
}

func newPatcher(in []byte, logFunc LogFunc) *patcher {
	return &patcher{
		image:   append([]byte{}, in...),
		logFunc: logFunc,
	}
}

func (p *patcher) log(level int, format string, param ...interface{}) {
	if p.logFunc != nil {
		p.logFunc(level, format, param...)
	}
}

func (p *patcher) section(name string) {
	p.log(0, "%s", name)
}

func (p *patcher) check(offset, length int) error {
	if offset < 0 || offset+length > len(p.image) {
		return fmt.Errorf("0x%06X+%d (image is 0x%X bytes): %w", offset, length, len(p.image), ErrorOutOfRange)
	}
	return nil
}

func (p *patcher) u32(offset int) (uint32, error) {
	if err := p.check(offset, 4); err != nil {
		return 0, err
	}
	return le.Uint32(p.image[offset:]), nil
}

func (p *patcher) write(offset int, value []byte, label string) error {
	if err := p.check(offset, len(value)); err != nil {
		return err
	}

	old := append([]byte{}, p.image[offset:offset+len(value)]...)
	copy(p.image[offset:], value)
	p.changes = append(p.changes, Change{Offset: offset, Old: old, New: append([]byte{}, value...), Label: label})

	if len(value) <= 8 {
		p.log(1, "  0x%06X: %x -> %x  %s", offset, old, value, label)
	} else {
		p.log(1, "  0x%06X: %d bytes  %s", offset, len(value), label)
	}
	return nil
}

func (p *patcher) writeU32(offset int, value uint32, label string) error {
	var buf [4]byte
	le.PutUint32(buf[:], value)
	return p.write(offset, buf[:], label)
}

func mismatch(offset int, what string, got, want uint32) error {
	return fmt.Errorf("%s at 0x%06X: got 0x%08X, expected 0x%08X: %w", what, offset, got, want, ErrorMismatch)
}

func signExtend(value uint32, bits uint) int {
	shift := 32 - bits
	return int(int32(value<<shift) >> shift)
}

func cbnzTarget(insn uint32, pc int) int {
	return pc + signExtend((insn>>5)&0x7FFFF, 19)*4
}

func (p *patcher) expectCBNZ(offset, target int) error {
	insn, err := p.u32(offset)
	if err != nil {
		return err
	}
	if insn&0x7F000000 != 0x35000000 {
		return fmt.Errorf("expected CBNZ at 0x%06X, got 0x%08X: %w", offset, insn, ErrorMismatch)
	}
	if got := cbnzTarget(insn, offset); got != target {
		return mismatch(offset, "CBNZ target", uint32(got), uint32(target))
	}
	return nil
}

func (p *patcher) expectBL(offset int) error {
	insn, err := p.u32(offset)
	if err != nil {
		return err
	}
	if insn&0xFC000000 != 0x94000000 {
		return fmt.Errorf("expected BL at 0x%06X, got 0x%08X: %w", offset, insn, ErrorMismatch)
	}
	return nil
}

/* ADD Xd, Xn, #imm with Xd == Xn and no shift */
func (p *patcher) replaceAddImm(offset int, expected, imm uint32, label string) error {
	insn, err := p.u32(offset)
	if err != nil {
		return err
	}
	if insn&0x7F000000 != 0x11000000 {
		return fmt.Errorf("expected ADD (imm) at 0x%06X, got 0x%08X: %w", offset, insn, ErrorMismatch)
	}

	sf := insn >> 31 & 1
	op := insn >> 30 & 1
	s := insn >> 29 & 1
	shift := insn >> 22 & 3
	rn := insn >> 5 & 0x1F
	rd := insn & 0x1F
	if sf != 1 || op != 0 || s != 0 || shift != 0 || rd != rn {
		return fmt.Errorf("unexpected ADD form at 0x%06X: 0x%08X: %w", offset, insn, ErrorMismatch)
	}
	if got := insn >> 10 & 0xFFF; got != expected {
		return mismatch(offset, "ADD immediate", got, expected)
	}

	return p.writeU32(offset, insn&^(0xFFF<<10)|imm<<10, label)
}

func (p *patcher) replaceU32(offset int, expected, value uint32, label string) error {
	got, err := p.u32(offset)
	if err != nil {
		return err
	}
	if got != expected {
		return mismatch(offset, label, got, expected)
	}
	return p.writeU32(offset, value, label)
}

func (p *patcher) replaceBytes(offset int, expected, value []byte, label string) error {
	if len(expected) != len(value) {
		return fmt.Errorf("%s: length %d vs %d: %w", label, len(expected), len(value), ErrorMismatch)
	}
	if err := p.check(offset, len(expected)); err != nil {
		return err
	}
	if got := p.image[offset : offset+len(expected)]; !bytes.Equal(got, expected) {
		return fmt.Errorf("%s at 0x%06X: got %q, expected %q: %w", label, offset, got, expected, ErrorMismatch)
	}
	return p.write(offset, value, label)
}
