package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/mt8781-root/vbtools/bootimg"
	"github.com/mt8781-root/vbtools/fstab"
	"github.com/mt8781-root/vbtools/magiskboot"
	"github.com/mt8781-root/vbtools/ramdisk"
	"github.com/mt8781-root/vbtools/repack"
)

type StripFstabCmd struct {
	Input       string `arg type:"existingfile" help:"fstab file to read."`
	Output      string `arg optional help:"Where to write the result, stdout if omitted."`
	KeepSpacing bool   `optional help:"Keep the original column spacing of rewritten lines."`
}

func (s *StripFstabCmd) Run(c *Context) error {
	data, err := os.ReadFile(s.Input)
	if err != nil {
		return err
	}

	opts := fstab.Options{KeepSpacing: s.KeepSpacing}
	text, n := opts.Strip(string(data))
	if s.Output == "" {
		fmt.Print(text)
		return nil
	}

	red := color.New(color.FgRed)
	green := color.New(color.FgGreen)
	for _, line := range strings.Split(strings.TrimSuffix(string(data), "\n"), "\n") {
		line = strings.TrimSuffix(line, "\r")
		if out, changed := opts.StripLine(line); changed {
			c.log(1, "%s", red.Sprint("- "+line))
			c.log(1, "%s", green.Sprint("+ "+out))
		}
	}

	if err := os.WriteFile(s.Output, []byte(text), 0644); err != nil {
		return err
	}
	c.log(0, "%s: %d line(s) changed", s.Output, n)
	return nil
}

type RebuildVendorBootCmd struct {
	Input  string `arg type:"existingfile" help:"Stock vendor_boot image."`
	Output string `arg help:"Where to write the rebuilt image."`

	Backend     string   `optional enum:"magiskboot,native" default:"magiskboot" help:"Unpack/repack backend (magiskboot or native)."`
	Magiskboot  string   `optional env:"MAGISKBOOT" help:"Path to the magiskboot binary."`
	Fstab       []string `optional sep:"," help:"fstab paths inside the ramdisk to patch."`
	KeepSpacing bool     `optional help:"Keep the original column spacing of rewritten lines."`
}

func (r *RebuildVendorBootCmd) Run(c *Context) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	var backend repack.Backend
	switch r.Backend {
	case "native":
		backend = repack.NativeBackend{LogFunc: c.logFunc}
	default:
		path, err := magiskboot.Locate(r.Magiskboot)
		if err != nil {
			return err
		}
		c.log(1, "using %s", path)
		backend = repack.MagiskbootBackend{Path: path, LogFunc: c.logFunc}
	}

	res, err := repack.Rebuild(ctx, backend, r.Input, r.Output, repack.Config{
		Candidates: r.Fstab,
		Options:    fstab.Options{KeepSpacing: r.KeepSpacing},
		LogFunc:    c.logFunc,
	})
	if err != nil {
		return err
	}

	green := color.New(color.FgGreen).SprintFunc()
	c.log(0, "%s %s (%d line(s) in %d file(s))", green("written"), res.Output, res.Changed, len(res.Files))
	c.log(0, "fstab dump: %s", res.DumpDir)
	return nil
}

type VendorBootInfoCmd struct {
	Image string `arg type:"existingfile" help:"vendor_boot image."`
	List  bool   `optional help:"List the ramdisk members."`
}

func (v *VendorBootInfoCmd) Run(c *Context) error {
	f, err := bootimg.Open(v.Image)
	if err != nil {
		return err
	}
	defer f.Close()

	fmt.Print(f.Describe())
	if !v.List {
		return nil
	}

	rd, err := f.Ramdisk()
	if err != nil {
		return err
	}
	raw, format, err := ramdisk.Decompress(rd)
	if err != nil {
		return err
	}
	fmt.Printf("ramdisk         %s, %s unpacked\n", format, humanize.Bytes(uint64(len(raw))))

	a, err := ramdisk.Load(raw)
	if err != nil {
		return err
	}

	candidates := map[string]bool{}
	for _, m := range repack.DefaultCandidates {
		candidates[m] = true
	}
	green := color.New(color.FgGreen).SprintFunc()
	for _, name := range a.Names() {
		if candidates[name] {
			fmt.Println(green(name))
		} else {
			fmt.Println(name)
		}
	}
	return nil
}
