package magiskboot

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

/* When set, the test binary behaves as a fake magiskboot that appends its
 * arguments to $FAKE_MAGISKBOOT_LOG and exits with $FAKE_MAGISKBOOT_EXIT. */
const fakeEnv = "FAKE_MAGISKBOOT_LOG"

func TestMain(m *testing.M) {
	if log := os.Getenv(fakeEnv); log != "" {
		f, err := os.OpenFile(log, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			os.Exit(2)
		}
		fmt.Fprintln(f, strings.Join(os.Args[1:], "|"))
		f.Close()

		if os.Getenv("FAKE_MAGISKBOOT_EXIT") != "" {
			fmt.Fprintln(os.Stderr, "fake failure")
			var code int
			fmt.Sscanf(os.Getenv("FAKE_MAGISKBOOT_EXIT"), "%d", &code)
			os.Exit(code)
		}
		os.Exit(0)
	}
	os.Exit(m.Run())
}

func fakeTool(t *testing.T) (*Tool, string) {
	d := t.TempDir()
	log := filepath.Join(d, "args.log")
	t.Setenv(fakeEnv, log)
	exe, err := os.Executable()
	if err != nil {
		t.Fatal(err)
	}
	return &Tool{Path: exe, Dir: d}, log
}

func readLog(t *testing.T, path string) []string {
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading fake log: %v", err)
	}
	return strings.Split(strings.TrimSpace(string(b)), "\n")
}

func TestCommands(t *testing.T) {
	tool, log := fakeTool(t)
	ctx := context.Background()

	steps := []func() error{
		func() error { return tool.Unpack(ctx, "vendor_boot.img") },
		func() error { return tool.Decompress(ctx, "ramdisk.cpio", "ramdisk.raw") },
		func() error { return tool.CpioExtract(ctx, "ramdisk.raw", "fstab.mt8781", "out/fstab") },
		func() error { return tool.CpioAdd(ctx, "ramdisk.raw", 0o640, "fstab.mt8781", "out/fstab") },
		func() error { return tool.Compress(ctx, "lz4_legacy", "ramdisk.raw", "ramdisk.cpio") },
		func() error { return tool.Repack(ctx, "vendor_boot.img", "new-boot.img") },
	}
	for i, m := range steps {
		if err := m(); err != nil {
			t.Fatalf("step %d: got %v, want nil", i, err)
		}
	}

	want := []string{
		"unpack|vendor_boot.img",
		"decompress|ramdisk.cpio|ramdisk.raw",
		"cpio|ramdisk.raw|extract fstab.mt8781 out/fstab",
		"cpio|ramdisk.raw|add 0640 fstab.mt8781 out/fstab",
		"compress=lz4_legacy|ramdisk.raw|ramdisk.cpio",
		"repack|vendor_boot.img|new-boot.img",
	}
	got := readLog(t, log)
	if strings.Join(got, "\n") != strings.Join(want, "\n") {
		t.Errorf("invocations:\n%s\nwant:\n%s", strings.Join(got, "\n"), strings.Join(want, "\n"))
	}
}

func TestCpioExists(t *testing.T) {
	tool, _ := fakeTool(t)
	ctx := context.Background()

	ok, err := tool.CpioExists(ctx, "ramdisk.cpio", "fstab.mt8781")
	if !ok || err != nil {
		t.Errorf("exit 0: got (%v, %v), want (true, nil)", ok, err)
	}

	t.Setenv("FAKE_MAGISKBOOT_EXIT", "1")
	ok, err = tool.CpioExists(ctx, "ramdisk.cpio", "fstab.mt8781")
	if ok || err != nil {
		t.Errorf("exit 1: got (%v, %v), want (false, nil)", ok, err)
	}

	t.Setenv("FAKE_MAGISKBOOT_EXIT", "3")
	if _, err := tool.CpioExists(ctx, "ramdisk.cpio", "fstab.mt8781"); err == nil {
		t.Errorf("exit 3: got nil, want err")
	}
}

func TestRunError(t *testing.T) {
	tool, _ := fakeTool(t)
	t.Setenv("FAKE_MAGISKBOOT_EXIT", "1")

	err := tool.Unpack(context.Background(), "vendor_boot.img")
	if err == nil || !strings.Contains(err.Error(), "fake failure") {
		t.Errorf("Unpack: got %v, want error carrying tool output", err)
	}
}

func TestLocate(t *testing.T) {
	d := t.TempDir()
	exe := filepath.Join(d, "magiskboot")
	if err := os.WriteFile(exe, []byte("#!/bin/sh\n"), 0755); err != nil {
		t.Fatal(err)
	}
	plain := filepath.Join(d, "notexec")
	if err := os.WriteFile(plain, nil, 0644); err != nil {
		t.Fatal(err)
	}

	t.Setenv(EnvVar, "")
	if got, err := Locate(exe); err != nil || got != exe {
		t.Errorf("Locate(override): got (%q, %v), want (%q, nil)", got, err, exe)
	}

	t.Setenv(EnvVar, exe)
	if got, err := Locate(""); err != nil || got != exe {
		t.Errorf("Locate($%s): got (%q, %v), want (%q, nil)", EnvVar, got, err, exe)
	}

	t.Setenv(EnvVar, plain)
	if _, err := Locate(""); !errors.Is(err, ErrorNotExecutable) {
		t.Errorf("Locate(non-executable): got %v, want ErrorNotExecutable", err)
	}

	t.Setenv(EnvVar, "")
	t.Setenv("PATH", d)
	wd, _ := os.Getwd()
	if err := os.Chdir(t.TempDir()); err != nil {
		t.Fatal(err)
	}
	defer os.Chdir(wd)
	if got, err := Locate(""); err != nil || got != exe {
		t.Errorf("Locate($PATH): got (%q, %v), want (%q, nil)", got, err, exe)
	}

	t.Setenv("PATH", t.TempDir())
	if _, err := Locate(""); !errors.Is(err, ErrorNotFound) {
		t.Errorf("Locate(nothing): got %v, want ErrorNotFound", err)
	}
}
