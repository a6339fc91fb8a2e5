// Package repack rebuilds a vendor_boot image with AVB and verity flags
// stripped from the fstab files in its ramdisk.
package repack

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mt8781-root/vbtools/fstab"
	"github.com/otiai10/copy"
)

type LogFunc func(level int, format string, param ...interface{})

// DefaultCandidates are the fstab locations used by MT8781/MT6789 vendor
// ramdisks.
var DefaultCandidates = []string{
	"first_stage_ramdisk/fstab.mt8781",
	"first_stage_ramdisk/fstab.mt6789",
	"first_stage_ramdisk/fstab.emmc",
	"fstab.mt8781",
	"system/etc/recovery.fstab",
}

// Backend unpacks a container into a Ramdisk whose members can be edited.
type Backend interface {
	Open(ctx context.Context, input, scratch string) (Ramdisk, error)
}

type Ramdisk interface {
	/* ReadFile returns false if name is not in the ramdisk */
	ReadFile(ctx context.Context, name string) ([]byte, bool, error)
	WriteFile(ctx context.Context, name string, data []byte) error
	/* Repack recompresses the ramdisk and writes the rebuilt container */
	Repack(ctx context.Context, output string) error
	Close() error
}

type Config struct {
	Candidates []string
	Options    fstab.Options
	LogFunc    LogFunc
}

type FileResult struct {
	Name    string
	Lines   int
	Content []byte
}

type Result struct {
	Files   []FileResult
	Changed int
	Output  string
	DumpDir string
}

func (c *Config) log(level int, format string, param ...interface{}) {
	if c.LogFunc != nil {
		c.LogFunc(level, format, param...)
	}
}

// DumpDir is where copies of the patched fstab files are left next to output.
func DumpDir(output string) string {
	base := filepath.Base(output)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	return filepath.Join(filepath.Dir(output), stem+".fstab_dump")
}

// DumpName flattens a ramdisk path into a single file name.
func DumpName(name string) string {
	return strings.ReplaceAll(name, "/", "__")
}

// Rebuild unpacks input, strips AVB flags from every candidate fstab and
// writes the repacked image to output. Nothing is written when no line
// changed.
func Rebuild(ctx context.Context, backend Backend, input, output string, config Config) (*Result, error) {
	if _, err := os.Stat(input); err != nil {
		return nil, err
	}

	candidates := config.Candidates
	if len(candidates) == 0 {
		candidates = DefaultCandidates
	}

	scratch, err := os.MkdirTemp("", "vb_strip_avb_")
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(scratch)

	rd, err := backend.Open(ctx, input, scratch)
	if err != nil {
		return nil, err
	}
	defer rd.Close()

	result := &Result{}
	for _, name := range candidates {
		data, ok, err := rd.ReadFile(ctx, name)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		if !ok {
			config.log(2, "%s: not present", name)
			continue
		}

		text, changed := config.Options.Strip(string(data))
		if changed == 0 {
			config.log(1, "%s: nothing to strip", name)
			continue
		}

		if err := rd.WriteFile(ctx, name, []byte(text)); err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}

		config.log(0, "patched %s: %d line(s)", name, changed)
		result.Files = append(result.Files, FileResult{Name: name, Lines: changed, Content: []byte(text)})
		result.Changed += changed
	}

	if result.Changed == 0 {
		return nil, ErrorNoChanges
	}

	image := filepath.Join(scratch, "new-boot.img")
	if err := rd.Repack(ctx, image); err != nil {
		return nil, err
	}

	/* the image is written last and never exists without its dump */
	dump := DumpDir(output)
	if err := writeDump(dump, result.Files); err != nil {
		os.RemoveAll(dump)
		return nil, err
	}
	if err := copy.Copy(image, output); err != nil {
		os.RemoveAll(dump)
		return nil, err
	}

	result.Output = output
	result.DumpDir = dump
	return result, nil
}

func writeDump(dir string, files []FileResult) error {
	if err := os.RemoveAll(dir); err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	for _, m := range files {
		if err := os.WriteFile(filepath.Join(dir, DumpName(m.Name)), m.Content, 0644); err != nil {
			return err
		}
	}
	return nil
}
