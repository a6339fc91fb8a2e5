package lkpatch

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

const testImageSize = 0x2D2000

func putU32(img []byte, off int, v uint32) {
	le.PutUint32(img[off:], v)
}

func encodeCBNZ(pc, target int) uint32 {
	imm := uint32((target-pc)/4) & 0x7FFFF
	return 0xB5000000 | imm<<5 | 1
}

func encodeAdd(reg, imm uint32) uint32 {
	return 0x91000000 | imm<<10 | reg<<5 | reg
}

func stockImage() []byte {
	img := make([]byte, testImageSize)
	for _, m := range imgAuthBranches {
		putU32(img, m.offset, encodeCBNZ(m.offset, m.target))
	}
	for i, m := range orangeSelectors {
		putU32(img, m.offset, encodeAdd(uint32(i%8), m.expected))
	}
	for _, m := range selinuxLiterals {
		copy(img[m.offset:], m.old)
	}
	putU32(img, lockRestoreCall, 0x94006BA5)
	for _, m := range append(append([]wordSite{}, lockRestoreCallers...), lockStateGetter...) {
		putU32(img, m.offset, m.expected)
	}
	return img
}

func testKey() []byte {
	key := make([]byte, AVBKeyLength)
	for i := range key {
		key[i] = byte(i * 7)
	}
	return key
}

func TestCBNZTarget(t *testing.T) {
	tests := []struct {
		pc, target int
	}{
		{0x095554, 0x0957C8},
		{0x1000, 0x0F00},
		{0x2D1648, 0x2D17DC},
	}
	for _, tc := range tests {
		if got := cbnzTarget(encodeCBNZ(tc.pc, tc.target), tc.pc); got != tc.target {
			t.Errorf("pc 0x%X: got 0x%X, want 0x%X", tc.pc, got, tc.target)
		}
	}
}

func TestPatchV16(t *testing.T) {
	in := stockImage()
	orig := append([]byte{}, in...)

	var lines []string
	out, changes, err := PatchV16(in, testKey(), Config{LogFunc: func(level int, format string, param ...interface{}) {
		lines = append(lines, format)
	}})
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(in, orig) {
		t.Errorf("input image was modified")
	}
	if len(lines) == 0 {
		t.Errorf("nothing logged")
	}

	want := 1 + len(imgAuthBranches) + len(orangeSelectors) + len(selinuxLiterals) + 1
	if len(changes) != want {
		t.Errorf("got %d changes, want %d", len(changes), want)
	}

	if !bytes.Equal(out[AVBKeyOffset:AVBKeyOffset+AVBKeyLength], testKey()) {
		t.Errorf("AVB key not embedded")
	}
	for _, m := range imgAuthBranches {
		if got := le.Uint32(out[m.offset:]); got != insnNOP {
			t.Errorf("0x%06X: got 0x%08X, want NOP", m.offset, got)
		}
	}
	for i, m := range orangeSelectors {
		if got, want := le.Uint32(out[m.offset:]), encodeAdd(uint32(i%8), orangeImm); got != want {
			t.Errorf("0x%06X: got 0x%08X, want 0x%08X", m.offset, got, want)
		}
	}
	for _, m := range selinuxLiterals {
		if got := string(out[m.offset : m.offset+len(m.new)]); got != m.new {
			t.Errorf("0x%06X: got %q, want %q", m.offset, got, m.new)
		}
	}
	if got := le.Uint32(out[lockRestoreCall:]); got != insnMOVW00 {
		t.Errorf("lock restore: got 0x%08X", got)
	}
	if Detect(out) != LevelV16 {
		t.Errorf("got level %v, want v16", Detect(out))
	}

	if _, _, err := PatchV16(out, testKey(), Config{}); !errors.Is(err, ErrorMismatch) {
		t.Errorf("second pass: got %v, want %v", err, ErrorMismatch)
	}
}

func TestPatchV16Rejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(img []byte) []byte
		key    []byte
		want   error
		offset string
	}{
		{"short key", nil, make([]byte, 255), ErrorKeyLength, ""},
		{"truncated", func(img []byte) []byte { return img[:0x100000] }, nil, ErrorOutOfRange, "0x136F80"},
		{"not cbnz", func(img []byte) []byte {
			putU32(img, 0x1B957C, insnNOP)
			return img
		}, nil, ErrorMismatch, "0x1B957C"},
		{"cbnz target", func(img []byte) []byte {
			putU32(img, 0x095554, encodeCBNZ(0x095554, 0x095600))
			return img
		}, nil, ErrorMismatch, "0x095554"},
		{"add imm", func(img []byte) []byte {
			putU32(img, 0x142988, encodeAdd(3, 0xF7F))
			return img
		}, nil, ErrorMismatch, "0x142988"},
		{"add registers", func(img []byte) []byte {
			putU32(img, 0x085CF8, 0x91000000|0xF7F<<10|2<<5|3)
			return img
		}, nil, ErrorMismatch, "0x085CF8"},
		{"add 32 bit", func(img []byte) []byte {
			putU32(img, 0x085CF8, 0x11000000|0xF7F<<10)
			return img
		}, nil, ErrorMismatch, "0x085CF8"},
		{"literal", func(img []byte) []byte {
			copy(img[0x0B13C5:], "androidboot.meta_log_disable=2")
			return img
		}, nil, ErrorMismatch, "0x0B13C5"},
		{"not bl", func(img []byte) []byte {
			putU32(img, lockRestoreCall, insnNOP)
			return img
		}, nil, ErrorMismatch, "0x00C59C"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			img := stockImage()
			if tc.mutate != nil {
				img = tc.mutate(img)
			}
			key := tc.key
			if key == nil {
				key = testKey()
			}

			out, changes, err := PatchV16(img, key, Config{})
			if !errors.Is(err, tc.want) {
				t.Fatalf("got %v, want %v", err, tc.want)
			}
			if out != nil || changes != nil {
				t.Errorf("partial result returned on error")
			}
			if tc.offset != "" && !strings.Contains(err.Error(), tc.offset) {
				t.Errorf("error %q does not name offset %s", err, tc.offset)
			}
		})
	}
}

func TestPatchV18(t *testing.T) {
	v16, _, err := PatchV16(stockImage(), testKey(), Config{})
	if err != nil {
		t.Fatal(err)
	}

	out, changes, err := PatchV18(v16, Config{})
	if err != nil {
		t.Fatal(err)
	}
	if want := len(lockRestoreCallers) + len(lockStateGetter); len(changes) != want {
		t.Errorf("got %d changes, want %d", len(changes), want)
	}
	for _, m := range append(append([]wordSite{}, lockRestoreCallers...), lockStateGetter...) {
		if got := le.Uint32(out[m.offset:]); got != m.new {
			t.Errorf("0x%06X: got 0x%08X, want 0x%08X", m.offset, got, m.new)
		}
	}
	if Detect(out) != LevelV18 {
		t.Errorf("got level %v, want v18", Detect(out))
	}
}

func TestPatchV18Rejects(t *testing.T) {
	if _, _, err := PatchV18(stockImage(), Config{}); !errors.Is(err, ErrorNotPatchedV16) {
		t.Errorf("stock: got %v, want %v", err, ErrorNotPatchedV16)
	}

	v16, _, err := PatchV16(stockImage(), testKey(), Config{})
	if err != nil {
		t.Fatal(err)
	}
	putU32(v16, 0x0A3354, insnNOP)
	_, _, err = PatchV18(v16, Config{})
	if !errors.Is(err, ErrorMismatch) || !strings.Contains(err.Error(), "0x0A3354") {
		t.Errorf("got %v, want mismatch at 0x0A3354", err)
	}

	if _, _, err := PatchV18(make([]byte, 16), Config{}); !errors.Is(err, ErrorOutOfRange) {
		t.Errorf("short: got %v, want %v", err, ErrorOutOfRange)
	}
}

func TestDetect(t *testing.T) {
	if got := Detect(stockImage()); got != LevelStock {
		t.Errorf("stock: got %v", got)
	}
	if got := Detect(make([]byte, 0x100)); got != LevelUnknown {
		t.Errorf("short: got %v", got)
	}
	if got := Detect(make([]byte, testImageSize)); got != LevelUnknown {
		t.Errorf("zeroed: got %v", got)
	}
}
