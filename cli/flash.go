package main

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/mt8781-root/vbtools/flash"
	"github.com/mt8781-root/vbtools/manifest"
)

type FlashCmd struct {
	Steps []string `arg help:"partition=image pairs, flashed in the order given."`

	Tool     string `optional enum:"fastboot,mtk" default:"fastboot" help:"Flashing tool (fastboot or mtk)."`
	Fastboot string `optional default:"fastboot" env:"FASTBOOT" help:"fastboot binary."`
	Serial   string `optional help:"fastboot device serial."`
	Python   string `optional default:"python3" help:"Python interpreter for mtkclient."`
	MTK      string `optional name:"mtk" default:"mtk.py" env:"MTKCLIENT" help:"Path to mtkclient's mtk.py."`

	Manifest string `optional type:"existingfile" help:"Verify every image against this manifest first."`
	DryRun   bool   `optional help:"Print the commands without running them."`
}

func (f *FlashCmd) Run(c *Context) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	steps, err := flash.ParseSteps(f.Steps)
	if err != nil {
		return err
	}

	config := flash.Config{
		Tool:         flash.Tool(f.Tool),
		FastbootPath: f.Fastboot,
		Serial:       f.Serial,
		Python:       f.Python,
		MTKPath:      f.MTK,
		DryRun:       f.DryRun,
		LogFunc:      c.logFunc,
	}
	if f.Manifest != "" {
		if config.Manifest, err = manifest.Load(f.Manifest); err != nil {
			return err
		}
		config.ManifestRoot = filepath.Dir(f.Manifest)
	}

	if err := flash.Run(ctx, steps, config); err != nil {
		return err
	}
	if !f.DryRun {
		c.log(0, "%s %d partition(s)", color.GreenString("flashed"), len(steps))
	}
	return nil
}
