package repack

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/mt8781-root/vbtools/magiskboot"
	"github.com/mt8781-root/vbtools/ramdisk"
	"github.com/otiai10/copy"
)

// MagiskbootBackend unpacks and repacks with an external magiskboot binary.
type MagiskbootBackend struct {
	Path    string
	LogFunc LogFunc
}

const imageName = "vendor_boot.img"

type mbArchive struct {
	path         string
	work         string
	format       ramdisk.Format
	decompressed bool
}

type mbMember struct {
	archive *mbArchive
	index   int
	mode    os.FileMode
}

type magiskbootRamdisk struct {
	tool     *magiskboot.Tool
	scratch  string
	archives []*mbArchive
	members  map[string]mbMember
}

func (b MagiskbootBackend) Open(ctx context.Context, input, scratch string) (Ramdisk, error) {
	dir := filepath.Join(scratch, "unpack")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	tool := &magiskboot.Tool{Path: b.Path, Dir: dir, LogFunc: magiskboot.LogFunc(b.LogFunc)}

	if err := copy.Copy(input, filepath.Join(dir, imageName)); err != nil {
		return nil, err
	}
	if err := tool.Unpack(ctx, imageName); err != nil {
		return nil, err
	}

	paths, err := findArchives(dir)
	if err != nil {
		return nil, err
	}
	if len(paths) == 0 {
		return nil, ErrorNoInnerArchive
	}

	r := &magiskbootRamdisk{tool: tool, scratch: scratch, members: map[string]mbMember{}}
	for _, m := range paths {
		a, err := r.prepare(ctx, m)
		if err != nil {
			return nil, err
		}
		r.archives = append(r.archives, a)
	}
	return r, nil
}

/* magiskboot leaves ramdisk.cpio, or one file per table entry for v4 */
func findArchives(dir string) ([]string, error) {
	var paths []string

	single := filepath.Join(dir, "ramdisk.cpio")
	if fi, err := os.Stat(single); err == nil && fi.Size() > 0 {
		paths = append(paths, single)
	}

	multi, err := filepath.Glob(filepath.Join(dir, "vendor_ramdisk", "*.cpio"))
	if err != nil {
		return nil, err
	}
	sort.Strings(multi)
	return append(paths, multi...), nil
}

func sniff(path string) (ramdisk.Format, error) {
	f, err := os.Open(path)
	if err != nil {
		return ramdisk.FormatUnknown, err
	}
	defer f.Close()

	var buf [8]byte
	n, err := io.ReadFull(f, buf[:])
	if err != nil && err != io.ErrUnexpectedEOF {
		return ramdisk.FormatUnknown, err
	}
	return ramdisk.Detect(buf[:n]), nil
}

func (r *magiskbootRamdisk) prepare(ctx context.Context, path string) (*mbArchive, error) {
	format, err := sniff(path)
	if err != nil {
		return nil, err
	}

	a := &mbArchive{path: path, work: path, format: format}
	switch format {
	case ramdisk.FormatCPIO:
		return a, nil
	case ramdisk.FormatUnknown:
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), ramdisk.ErrorUnknownFormat)
	}

	a.work = path + ".raw"
	a.decompressed = true
	if err := r.tool.Decompress(ctx, path, a.work); err != nil {
		return nil, err
	}
	return a, nil
}

func (r *magiskbootRamdisk) memberPath(kind string, index int, name string) (string, error) {
	dir := filepath.Join(r.scratch, kind, fmt.Sprint(index))
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", err
	}
	return filepath.Join(dir, DumpName(name)), nil
}

func (r *magiskbootRamdisk) ReadFile(ctx context.Context, name string) ([]byte, bool, error) {
	for i, a := range r.archives {
		ok, err := r.tool.CpioExists(ctx, a.work, name)
		if err != nil {
			return nil, false, err
		}
		if !ok {
			continue
		}

		out, err := r.memberPath("extract", i, name)
		if err != nil {
			return nil, false, err
		}
		if err := r.tool.CpioExtract(ctx, a.work, name, out); err != nil {
			return nil, false, err
		}

		fi, err := os.Stat(out)
		if err != nil {
			return nil, false, err
		}
		data, err := os.ReadFile(out)
		if err != nil {
			return nil, false, err
		}

		r.members[name] = mbMember{archive: a, index: i, mode: fi.Mode().Perm()}
		return data, true, nil
	}
	return nil, false, nil
}

func (r *magiskbootRamdisk) WriteFile(ctx context.Context, name string, data []byte) error {
	m, ok := r.members[name]
	if !ok {
		return fmt.Errorf("%s: %w", name, ramdisk.ErrorNotFound)
	}

	path, err := r.memberPath("patched", m.index, name)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return err
	}
	return r.tool.CpioAdd(ctx, m.archive.work, m.mode, name, path)
}

func (r *magiskbootRamdisk) Repack(ctx context.Context, output string) error {
	for _, a := range r.archives {
		if !a.decompressed {
			continue
		}
		if err := r.tool.Compress(ctx, a.format.String(), a.work, a.path); err != nil {
			return err
		}
		/* repack must not pick the raw copy up as an extra ramdisk */
		if err := os.Remove(a.work); err != nil {
			return err
		}
	}

	return r.tool.Repack(ctx, imageName, output)
}

func (r *magiskbootRamdisk) Close() error {
	return nil
}
