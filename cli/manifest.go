package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/mt8781-root/vbtools/manifest"
)

type VerifyCmd struct {
	Manifest string `arg type:"existingfile" help:"Checksum manifest."`
	Root     string `optional help:"Directory paths are relative to, the manifest's directory if omitted."`
}

func (v *VerifyCmd) Run(c *Context) error {
	entries, err := manifest.Load(v.Manifest)
	if err != nil {
		return err
	}

	root := v.Root
	if root == "" {
		root = filepath.Dir(v.Manifest)
	}

	if err := manifest.Verify(root, entries); err != nil {
		return err
	}
	for _, e := range entries {
		c.log(1, "%s %s", color.GreenString("OK"), e.Path)
	}
	c.log(0, "%d file(s) verified", len(entries))
	return nil
}

type HashCmd struct {
	Files  []string `arg help:"Files to hash."`
	Root   string   `optional help:"Directory the files are relative to."`
	Output string   `optional short:"o" help:"Manifest to write, stdout if omitted."`
}

func (h *HashCmd) Run(c *Context) error {
	var b bytes.Buffer
	if _, err := manifest.Generate(&b, h.Root, h.Files); err != nil {
		return err
	}

	if h.Output == "" {
		fmt.Print(b.String())
		return nil
	}
	if err := os.WriteFile(h.Output, b.Bytes(), 0644); err != nil {
		return err
	}
	c.log(0, "written %s", h.Output)
	return nil
}
