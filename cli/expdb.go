package main

import (
	"github.com/mt8781-root/vbtools/expdb"
)

type ExpdbCmd struct {
	Input  string `arg type:"existingfile" help:"Raw expdb partition dump."`
	OutDir string `optional help:"Output directory, <input>_reconstructed if omitted."`

	MinLen       int `optional type:"int" default:"8" help:"Minimum printable run length."`
	WindowBefore int `optional type:"int" default:"120" help:"Records kept before the latest LK handoff."`
	WindowAfter  int `optional type:"int" default:"80" help:"Records kept after the latest init panic."`
}

func (e *ExpdbCmd) Run(c *Context) error {
	res, err := expdb.Reconstruct(e.Input, e.OutDir, expdb.Config{
		MinLen:       e.MinLen,
		WindowBefore: e.WindowBefore,
		WindowAfter:  e.WindowAfter,
		LogFunc:      c.logFunc,
	})
	if err != nil {
		return err
	}

	c.log(0, "outdir: %s", res.OutDir)
	c.log(0, "records: %d (H=%d M=%d L=%d)", res.Summary.Total, res.Summary.High, res.Summary.Medium, res.Summary.Low)
	return nil
}
