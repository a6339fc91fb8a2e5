package main

import (
	"crypto/sha1"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/mt8781-root/vbtools/vbmeta"
)

type VBMetaInfoCmd struct {
	Image  string `arg type:"existingfile" help:"vbmeta image."`
	Verify bool   `optional help:"Check the hash and signature against the embedded key."`
}

func (v *VBMetaInfoCmd) Run(c *Context) error {
	data, err := os.ReadFile(v.Image)
	if err != nil {
		return err
	}

	img, err := vbmeta.Parse(data)
	if err != nil {
		return err
	}
	fmt.Print(img.Describe())

	if key, err := img.PublicKey(); err == nil {
		fmt.Printf("public_key_sha1 %x\n", sha1.Sum(key))
	}

	if v.Verify {
		if err := img.Verify(); err != nil {
			return err
		}
		fmt.Println(color.GreenString("signature OK"))
	}
	return nil
}

type VBMetaRebuildCmd struct {
	Stock  string `arg type:"existingfile" help:"Stock vbmeta image (descriptors are kept)."`
	Custom string `arg type:"existingfile" help:"vbmeta image carrying the custom public key."`
	Key    string `arg type:"existingfile" help:"PEM private key matching the custom public key."`
	Output string `arg help:"Where to write the re-signed vbmeta."`

	Flags uint32 `optional type:"int" default:"3" help:"vbmeta flags (1=hashtree disabled, 2=verification disabled)."`
}

func (v *VBMetaRebuildCmd) Run(c *Context) error {
	stock, err := os.ReadFile(v.Stock)
	if err != nil {
		return err
	}
	custom, err := os.ReadFile(v.Custom)
	if err != nil {
		return err
	}
	key, err := vbmeta.LoadPrivateKey(v.Key)
	if err != nil {
		return err
	}

	out, err := vbmeta.Rebuild(stock, custom, key, v.Flags)
	if err != nil {
		return err
	}
	if err := os.WriteFile(v.Output, out, 0644); err != nil {
		return err
	}

	c.log(0, "%s %s flags=%s", color.GreenString("written"), v.Output, vbmeta.FlagsString(v.Flags))
	return nil
}
