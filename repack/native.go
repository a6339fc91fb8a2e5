package repack

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/mt8781-root/vbtools/bootimg"
	"github.com/mt8781-root/vbtools/ramdisk"
)

// NativeBackend edits vendor_boot header v3/v4 images in process, without
// magiskboot.
type NativeBackend struct {
	LogFunc LogFunc
}

type nativeRamdisk struct {
	img     *bootimg.File
	archive *ramdisk.Archive
	format  ramdisk.Format
	size    int
	logFunc LogFunc
}

func (b NativeBackend) Open(ctx context.Context, input, scratch string) (Ramdisk, error) {
	img, err := bootimg.Open(input)
	if err != nil {
		return nil, err
	}

	r := &nativeRamdisk{img: img, logFunc: b.LogFunc}
	if err := r.load(); err != nil {
		img.Close()
		return nil, err
	}
	return r, nil
}

func (r *nativeRamdisk) load() error {
	if r.img.RamdiskSize == 0 {
		return ErrorNoInnerArchive
	}

	packed, err := r.img.Ramdisk()
	if err != nil {
		return err
	}
	r.size = len(packed)

	payload, format, err := ramdisk.Decompress(packed)
	if errors.Is(err, ramdisk.ErrorUnknownFormat) {
		return fmt.Errorf("%w: %v", ErrorNoInnerArchive, err)
	} else if err != nil {
		return err
	}
	r.format = format

	r.archive, err = ramdisk.Load(payload)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrorNoInnerArchive, err)
	}

	r.log(1, "Vendor ramdisk: %s, %s packed, %s unpacked, %d entries",
		format, humanize.Bytes(uint64(len(packed))), humanize.Bytes(uint64(len(payload))), len(r.archive.Names()))
	return nil
}

func (r *nativeRamdisk) log(level int, format string, param ...interface{}) {
	if r.logFunc != nil {
		r.logFunc(level, format, param...)
	}
}

func (r *nativeRamdisk) ReadFile(ctx context.Context, name string) ([]byte, bool, error) {
	data, err := r.archive.Lookup(name)
	if errors.Is(err, ramdisk.ErrorNotFound) || errors.Is(err, ramdisk.ErrorNotRegular) {
		return nil, false, nil
	}
	return data, err == nil, err
}

func (r *nativeRamdisk) WriteFile(ctx context.Context, name string, data []byte) error {
	return r.archive.Replace(name, data)
}

func (r *nativeRamdisk) Repack(ctx context.Context, output string) error {
	payload, err := r.archive.Bytes()
	if err != nil {
		return err
	}

	packed, err := ramdisk.Compress(payload, r.format)
	if err != nil {
		return err
	}

	image, err := r.img.Rebuild(packed)
	if err != nil {
		return err
	}

	r.log(1, "Ramdisk size %d -> %d, image size %s", r.size, len(packed), humanize.Bytes(uint64(len(image))))
	return os.WriteFile(output, image, 0644)
}

func (r *nativeRamdisk) Close() error {
	return r.img.Close()
}
