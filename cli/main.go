package main

import (
	"fmt"
	"os"

	"github.com/alecthomas/kong"
	"github.com/fatih/color"
)

type Context struct {
	logFunc func(level int, format string, param ...interface{})
}

func (c *Context) log(level int, format string, param ...interface{}) {
	c.logFunc(level, format, param...)
}

var CLI struct {
	LogLevel int  `optional help:"Higher values give more output." env:"VBTOOLS_LOG_LEVEL"`
	NoColor  bool `optional help:"Disable colored output."`

	StripFstab        StripFstabCmd        `cmd help:"Strip AVB/verity flags from an fstab file."`
	RebuildVendorBoot RebuildVendorBootCmd `cmd help:"Rebuild vendor_boot with AVB flags stripped from its fstab files."`
	VendorBootInfo    VendorBootInfoCmd    `cmd help:"Show vendor_boot header, sections and ramdisk contents."`

	VBMetaInfo    VBMetaInfoCmd    `cmd name:"vbmeta-info" help:"Show a vbmeta header and check its signature."`
	VBMetaRebuild VBMetaRebuildCmd `cmd name:"vbmeta-rebuild" help:"Re-sign stock vbmeta with a custom key."`

	LKPatch LKPatchCmd `cmd name:"lk-patch" help:"Patch the LK bootloader."`

	Expdb ExpdbCmd `cmd help:"Reconstruct readable logs from an expdb dump."`

	Verify VerifyCmd `cmd help:"Verify files against a checksum manifest."`
	Hash   HashCmd   `cmd help:"Write a SHA-256 checksum manifest."`

	Flash FlashCmd `cmd help:"Flash images to partitions in order."`
}

func run(args []string, extra ...kong.Option) {
	options := append([]kong.Option{
		kong.Name("vbtools"),
		kong.Description("MT8781/MT6789 AVB bypass toolkit."),
		kong.UsageOnError(),
		kong.Configuration(kong.JSON, "/etc/vbtools.json", "~/.vbtools.json"),
		kong.NamedMapper("int", intMapper{}),
		kong.NamedMapper("hex", intMapper{base: 16}),
	}, extra...)

	k, err := kong.New(&CLI, options...)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	ctx, err := k.Parse(args)
	if err != nil {
		k.FatalIfErrorf(err)
		return
	}

	if CLI.NoColor {
		color.NoColor = true
	}

	c := &Context{
		logFunc: func(level int, format string, param ...interface{}) {
			if level > CLI.LogLevel {
				return
			}
			fmt.Fprintf(k.Stdout, format+"\n", param...)
		},
	}

	/* FatalIfErrorf is the only place errors are reported */
	ctx.FatalIfErrorf(ctx.Run(c))
}

func main() {
	run(os.Args[1:])
}
