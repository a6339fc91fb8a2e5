package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/mt8781-root/vbtools/lkpatch"
	"github.com/mt8781-root/vbtools/vbmeta"
)

type LKPatchCmd struct {
	V16    LKPatchV16Cmd `cmd name:"v16" help:"Embed the custom AVB key and bypass image auth, orange state, permissive selinux."`
	V18    LKPatchV18Cmd `cmd name:"v18" help:"Apply the lock-state fixes on top of a v16 image."`
	Status LKStatusCmd   `cmd help:"Show which patch set an LK image carries."`
}

type lkOutput struct {
	Output string `arg help:"Where to write the patched LK image."`
	Dump   bool   `optional help:"Hexdump every patched site."`
}

func (o *lkOutput) write(c *Context, orig, patched []byte, changes []lkpatch.Change) error {
	if o.Dump {
		for _, ch := range changes {
			fmt.Println(dumpChange(orig, patched, ch))
		}
	}
	if err := os.WriteFile(o.Output, patched, 0644); err != nil {
		return err
	}
	c.log(0, "%s %s (%d site(s))", color.GreenString("written"), o.Output, len(changes))
	return nil
}

type LKPatchV16Cmd struct {
	LK     string `arg type:"existingfile" help:"Stock LK image."`
	VBMeta string `arg type:"existingfile" help:"vbmeta image whose public key LK should trust."`

	Out lkOutput `embed`
}

func (l *LKPatchV16Cmd) Run(c *Context) error {
	lk, err := os.ReadFile(l.LK)
	if err != nil {
		return err
	}
	vb, err := os.ReadFile(l.VBMeta)
	if err != nil {
		return err
	}

	img, err := vbmeta.Parse(vb)
	if err != nil {
		return fmt.Errorf("%s: %w", l.VBMeta, err)
	}
	key, err := img.PublicKeyModulus()
	if err != nil {
		return fmt.Errorf("%s: %w", l.VBMeta, err)
	}

	out, changes, err := lkpatch.PatchV16(lk, key, lkpatch.Config{LogFunc: c.logFunc})
	if err != nil {
		return err
	}
	return l.Out.write(c, lk, out, changes)
}

type LKPatchV18Cmd struct {
	LK string `arg type:"existingfile" help:"LK image already patched with v16."`

	Out lkOutput `embed`
}

func (l *LKPatchV18Cmd) Run(c *Context) error {
	lk, err := os.ReadFile(l.LK)
	if err != nil {
		return err
	}

	out, changes, err := lkpatch.PatchV18(lk, lkpatch.Config{LogFunc: c.logFunc})
	if err != nil {
		return err
	}
	return l.Out.write(c, lk, out, changes)
}

type LKStatusCmd struct {
	LK string `arg type:"existingfile" help:"LK image."`
}

func (l *LKStatusCmd) Run(c *Context) error {
	lk, err := os.ReadFile(l.LK)
	if err != nil {
		return err
	}
	fmt.Printf("%s: %s\n", l.LK, lkpatch.Detect(lk))
	return nil
}
