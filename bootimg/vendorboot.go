// Package bootimg reads and rebuilds Android vendor_boot images (header v3
// and v4) without external tools.
package bootimg

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"os"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/edsrzf/mmap-go"
	"github.com/mt8781-root/vbtools/imgregion"
)

const Magic = "VNDRBOOT"

/* Header field offsets, see boot_img_hdr.h vendor_boot_img_hdr_v3/v4 */
const (
	offHeaderVersion  = 8
	offPageSize       = 12
	offKernelAddr     = 16
	offRamdiskAddr    = 20
	offRamdiskSize    = 24
	offCmdline        = 28
	offTagsAddr       = 2076
	offName           = 2080
	offHeaderSize     = 2096
	offDtbSize        = 2100
	offDtbAddr        = 2104
	offTableSize      = 2112
	offTableEntryNum  = 2116
	offTableEntrySize = 2120
	offBootconfigSize = 2124

	cmdlineSize = 2048
	nameSize    = 16

	headerV3Size = 2112
	headerV4Size = 2128
)

/* vendor_ramdisk_table_entry_v4 */
const (
	entryOffSize   = 0
	entryOffOffset = 4
	entryOffType   = 8
	entryOffName   = 12
	entryNameSize  = 32
)

type RamdiskEntry struct {
	Size   uint32
	Offset uint32
	Type   uint32
	Name   string
}

type VendorBoot struct {
	HeaderVersion uint32
	PageSize      uint32
	KernelAddr    uint32
	RamdiskAddr   uint32
	RamdiskSize   uint32
	Cmdline       string
	TagsAddr      uint32
	Name          string
	HeaderSize    uint32
	DtbSize       uint32
	DtbAddr       uint64

	TableSize      uint32
	TableEntryNum  uint32
	TableEntrySize uint32
	BootconfigSize uint32

	Entries []RamdiskEntry

	image      imgregion.Region
	header     imgregion.Region
	ramdisk    imgregion.Region
	dtb        imgregion.Region
	table      imgregion.Region
	bootconfig imgregion.Region
}

func align(value uint64, pageSize uint32) uint64 {
	p := uint64(pageSize)
	return (value + p - 1) &^ (p - 1)
}

func cString(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	return string(b)
}

func Parse(data []byte) (*VendorBoot, error) {
	return parse(imgregion.New("vendor_boot", data))
}

func parse(image imgregion.Region) (*VendorBoot, error) {
	if image.GetLength() < headerV3Size {
		return nil, ErrorTruncated
	}

	raw := make([]byte, headerV4Size)
	if image.GetLength() < headerV4Size {
		raw = raw[:headerV3Size]
	}
	if _, err := image.Access(false, 0, raw); err != nil {
		return nil, err
	}

	if string(raw[:len(Magic)]) != Magic {
		return nil, ErrorBadMagic
	}

	le := binary.LittleEndian
	v := &VendorBoot{
		HeaderVersion: le.Uint32(raw[offHeaderVersion:]),
		PageSize:      le.Uint32(raw[offPageSize:]),
		KernelAddr:    le.Uint32(raw[offKernelAddr:]),
		RamdiskAddr:   le.Uint32(raw[offRamdiskAddr:]),
		RamdiskSize:   le.Uint32(raw[offRamdiskSize:]),
		Cmdline:       cString(raw[offCmdline : offCmdline+cmdlineSize]),
		TagsAddr:      le.Uint32(raw[offTagsAddr:]),
		Name:          cString(raw[offName : offName+nameSize]),
		HeaderSize:    le.Uint32(raw[offHeaderSize:]),
		DtbSize:       le.Uint32(raw[offDtbSize:]),
		DtbAddr:       le.Uint64(raw[offDtbAddr:]),
		image:         image,
	}

	if v.HeaderVersion < 3 {
		return nil, fmt.Errorf("version %d: %w", v.HeaderVersion, ErrorUnsupportedVersion)
	}
	if v.PageSize == 0 || v.PageSize&(v.PageSize-1) != 0 {
		return nil, fmt.Errorf("invalid page size %d", v.PageSize)
	}

	if v.HeaderVersion >= 4 {
		if len(raw) < headerV4Size {
			return nil, ErrorTruncated
		}
		v.TableSize = le.Uint32(raw[offTableSize:])
		v.TableEntryNum = le.Uint32(raw[offTableEntryNum:])
		v.TableEntrySize = le.Uint32(raw[offTableEntrySize:])
		v.BootconfigSize = le.Uint32(raw[offBootconfigSize:])
	}

	headerArea := align(uint64(v.HeaderSize), v.PageSize)
	ramdiskOff := headerArea
	dtbOff := ramdiskOff + align(uint64(v.RamdiskSize), v.PageSize)
	tableOff := dtbOff + align(uint64(v.DtbSize), v.PageSize)
	bootconfigOff := tableOff + align(uint64(v.TableSize), v.PageSize)

	sections := []struct {
		name   string
		off    uint64
		size   uint64
		target *imgregion.Region
	}{
		{"header", 0, headerArea, &v.header},
		{"ramdisk", ramdiskOff, uint64(v.RamdiskSize), &v.ramdisk},
		{"dtb", dtbOff, uint64(v.DtbSize), &v.dtb},
		{"ramdisk_table", tableOff, uint64(v.TableSize), &v.table},
		{"bootconfig", bootconfigOff, uint64(v.BootconfigSize), &v.bootconfig},
	}
	for _, m := range sections {
		if m.off+m.size > uint64(image.GetLength()) {
			return nil, fmt.Errorf("%s: %w", m.name, ErrorTruncated)
		}
		r, err := imgregion.Partial(m.name, image, int(m.off), int(m.size))
		if err != nil {
			return nil, err
		}
		*m.target = r
	}

	if err := v.parseTable(); err != nil {
		return nil, err
	}
	return v, nil
}

func (v *VendorBoot) parseTable() error {
	if v.TableEntryNum == 0 || v.TableEntrySize < entryOffName+entryNameSize {
		return nil
	}
	if uint64(v.TableEntryNum)*uint64(v.TableEntrySize) > uint64(v.TableSize) {
		return fmt.Errorf("ramdisk table: %w", ErrorTruncated)
	}

	le := binary.LittleEndian
	for i := uint32(0); i < v.TableEntryNum; i++ {
		raw := make([]byte, v.TableEntrySize)
		if _, err := v.table.Access(false, int(i*v.TableEntrySize), raw); err != nil {
			return err
		}
		v.Entries = append(v.Entries, RamdiskEntry{
			Size:   le.Uint32(raw[entryOffSize:]),
			Offset: le.Uint32(raw[entryOffOffset:]),
			Type:   le.Uint32(raw[entryOffType:]),
			Name:   cString(raw[entryOffName : entryOffName+entryNameSize]),
		})
	}
	return nil
}

// Ramdisk returns a copy of the (possibly compressed) vendor ramdisk section.
func (v *VendorBoot) Ramdisk() ([]byte, error) {
	return imgregion.Bytes(v.ramdisk)
}

// Rebuild lays the image out again with a new ramdisk. The result has the
// size of the original image; growing past it is refused since the
// partition can't hold more.
func (v *VendorBoot) Rebuild(newRamdisk []byte) ([]byte, error) {
	if v.TableEntryNum > 1 {
		return nil, fmt.Errorf("%d entries: %w", v.TableEntryNum, ErrorMultipleRamdisks)
	}

	header, err := imgregion.Bytes(v.header)
	if err != nil {
		return nil, err
	}
	binary.LittleEndian.PutUint32(header[offRamdiskSize:], uint32(len(newRamdisk)))

	table, err := imgregion.Bytes(v.table)
	if err != nil {
		return nil, err
	}
	if v.TableEntryNum > 0 && v.TableEntrySize >= 4 {
		binary.LittleEndian.PutUint32(table[entryOffSize:], uint32(len(newRamdisk)))
	}

	dtb, err := imgregion.Bytes(v.dtb)
	if err != nil {
		return nil, err
	}
	bootconfig, err := imgregion.Bytes(v.bootconfig)
	if err != nil {
		return nil, err
	}

	out := make([]byte, 0, v.image.GetLength())
	out = append(out, header...)
	for _, m := range [][]byte{newRamdisk, dtb, table, bootconfig} {
		out = append(out, m...)
		out = append(out, make([]byte, int(align(uint64(len(m)), v.PageSize))-len(m))...)
	}

	if len(out) > v.image.GetLength() {
		return nil, fmt.Errorf("%d > %d: %w", len(out), v.image.GetLength(), ErrorImageGrew)
	}
	out = append(out, make([]byte, v.image.GetLength()-len(out))...)
	return out, nil
}

func (v *VendorBoot) Describe() string {
	var b strings.Builder

	fmt.Fprintf(&b, "header_version  %d\n", v.HeaderVersion)
	fmt.Fprintf(&b, "page_size       %d\n", v.PageSize)
	fmt.Fprintf(&b, "name            %q\n", v.Name)
	fmt.Fprintf(&b, "cmdline         %q\n", v.Cmdline)
	fmt.Fprintf(&b, "image_size      %s\n", humanize.Bytes(uint64(v.image.GetLength())))

	for _, m := range []imgregion.Region{v.header, v.ramdisk, v.dtb, v.table, v.bootconfig} {
		_, off := imgregion.RecursiveGetParentAddress(m, 0)
		fmt.Fprintf(&b, "%-15s @0x%08x %10d bytes (%s)\n", m.GetName(), off, m.GetLength(), humanize.Bytes(uint64(m.GetLength())))
	}

	for i, m := range v.Entries {
		fmt.Fprintf(&b, "vendor_ramdisk[%d] name=%q type=%d offset=0x%x size=%d\n", i, m.Name, m.Type, m.Offset, m.Size)
	}
	return b.String()
}

// File is a vendor_boot image mapped read-only from disk.
type File struct {
	*VendorBoot

	f *os.File
	m mmap.MMap
}

func Open(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	m, err := mmap.Map(f, mmap.RDONLY, 0)
	if err != nil {
		f.Close()
		return nil, err
	}

	v, err := parse(imgregion.NewReadOnly(path, m))
	if err != nil {
		m.Unmap()
		f.Close()
		return nil, err
	}

	return &File{VendorBoot: v, f: f, m: m}, nil
}

func (f *File) Close() error {
	err := f.m.Unmap()
	if cerr := f.f.Close(); err == nil {
		err = cerr
	}
	return err
}
