package main

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/mt8781-root/vbtools/bootimg"
	"github.com/mt8781-root/vbtools/magiskboot"
)

func TestSplitList(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"", nil},
		{"fstab.mt8781", []string{"fstab.mt8781"}},
		{" a , ,b,", []string{"a", "b"}},
	}
	for _, tc := range tests {
		if got := splitList(tc.in); !reflect.DeepEqual(got, tc.want) {
			t.Errorf("splitList(%q): got %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestRunErrors(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "out.img")

	if err := run(context.Background(), filepath.Join(dir, "missing.img"), out, options{}); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("missing input: got %v", err)
	}

	input := filepath.Join(dir, "vendor_boot.img")
	if err := os.WriteFile(input, []byte("not an image"), 0644); err != nil {
		t.Fatal(err)
	}

	t.Setenv(magiskboot.EnvVar, filepath.Join(dir, "no-such-magiskboot"))
	if err := run(context.Background(), input, out, options{}); !errors.Is(err, magiskboot.ErrorNotExecutable) {
		t.Errorf("bad magiskboot: got %v, want %v", err, magiskboot.ErrorNotExecutable)
	}

	if err := run(context.Background(), input, out, options{native: true}); !errors.Is(err, bootimg.ErrorBadMagic) && !errors.Is(err, bootimg.ErrorTruncated) {
		t.Errorf("native on garbage: got %v", err)
	}
	if _, err := os.Stat(out); !os.IsNotExist(err) {
		t.Errorf("output written on failure")
	}
}
