// Package magiskboot drives the external magiskboot binary.
package magiskboot

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
)

type LogFunc func(level int, format string, param ...interface{})

// Tool runs magiskboot commands inside Dir. magiskboot reads and writes its
// unpacked components relative to the working directory.
type Tool struct {
	Path    string
	Dir     string
	LogFunc LogFunc
}

func (t *Tool) log(level int, format string, param ...interface{}) {
	if t.LogFunc != nil {
		t.LogFunc(level, format, param...)
	}
}

func (t *Tool) command(ctx context.Context, args ...string) *exec.Cmd {
	cmd := exec.CommandContext(ctx, t.Path, args...)
	cmd.Dir = t.Dir
	return cmd
}

func (t *Tool) run(ctx context.Context, args ...string) error {
	t.log(2, "Running magiskboot %s", strings.Join(args, " "))

	var out bytes.Buffer
	cmd := t.command(ctx, args...)
	cmd.Stdout = &out
	cmd.Stderr = &out

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("magiskboot %s: %w: %s", args[0], err, strings.TrimSpace(out.String()))
	}

	if out.Len() > 0 {
		t.log(3, "%s", strings.TrimSpace(out.String()))
	}
	return nil
}

// Unpack splits a boot image into header, kernel, ramdisk.cpio, dtb, ...
func (t *Tool) Unpack(ctx context.Context, image string) error {
	return t.run(ctx, "unpack", image)
}

// Repack rebuilds orig from the components in Dir and writes out.
func (t *Tool) Repack(ctx context.Context, orig, out string) error {
	return t.run(ctx, "repack", orig, out)
}

func (t *Tool) Decompress(ctx context.Context, in, out string) error {
	return t.run(ctx, "decompress", in, out)
}

func (t *Tool) Compress(ctx context.Context, format, in, out string) error {
	return t.run(ctx, "compress="+format, in, out)
}

func (t *Tool) CpioExtract(ctx context.Context, archive, entry, out string) error {
	return t.run(ctx, "cpio", archive, fmt.Sprintf("extract %s %s", entry, out))
}

func (t *Tool) CpioAdd(ctx context.Context, archive string, mode os.FileMode, entry, file string) error {
	return t.run(ctx, "cpio", archive, fmt.Sprintf("add %04o %s %s", mode.Perm(), entry, file))
}

// CpioExists reports whether entry is in archive. magiskboot signals absence
// with exit status 1.
func (t *Tool) CpioExists(ctx context.Context, archive, entry string) (bool, error) {
	t.log(2, "Running magiskboot cpio %s \"exists %s\"", archive, entry)

	cmd := t.command(ctx, "cpio", archive, "exists "+entry)
	err := cmd.Run()
	if err == nil {
		return true, nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && exitErr.ExitCode() == 1 {
		return false, nil
	}
	return false, fmt.Errorf("magiskboot cpio exists: %w", err)
}
