package ramdisk

import "bytes"

type Format int

const (
	FormatUnknown Format = iota
	FormatCPIO
	FormatGzip
	FormatLZ4Legacy
	FormatLZ4
	FormatXZ
	FormatZstd
)

var formatNames = map[Format]string{
	FormatUnknown:   "unknown",
	FormatCPIO:      "cpio",
	FormatGzip:      "gzip",
	FormatLZ4Legacy: "lz4_legacy",
	FormatLZ4:       "lz4",
	FormatXZ:        "xz",
	FormatZstd:      "zstd",
}

/* Names are the ones magiskboot accepts for compress=<format> */
func (f Format) String() string {
	if n, ok := formatNames[f]; ok {
		return n
	}
	return formatNames[FormatUnknown]
}

func ParseFormat(name string) Format {
	for f, n := range formatNames {
		if n == name {
			return f
		}
	}
	return FormatUnknown
}

var formatMagic = []struct {
	magic  []byte
	format Format
}{
	{[]byte("070701"), FormatCPIO},
	{[]byte("070702"), FormatCPIO},
	{[]byte{0x1f, 0x8b}, FormatGzip},
	{[]byte{0x1f, 0x9e}, FormatGzip},
	{[]byte{0x02, 0x21, 0x4c, 0x18}, FormatLZ4Legacy},
	{[]byte{0x03, 0x21, 0x4c, 0x18}, FormatLZ4},
	{[]byte{0x04, 0x22, 0x4d, 0x18}, FormatLZ4},
	{[]byte{0xfd, '7', 'z', 'X', 'Z', 0x00}, FormatXZ},
	{[]byte{0x28, 0xb5, 0x2f, 0xfd}, FormatZstd},
}

// Detect identifies a ramdisk payload from its leading bytes.
func Detect(data []byte) Format {
	for _, m := range formatMagic {
		if bytes.HasPrefix(data, m.magic) {
			return m.format
		}
	}
	return FormatUnknown
}
