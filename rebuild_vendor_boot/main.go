package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"

	"github.com/mt8781-root/vbtools/fstab"
	"github.com/mt8781-root/vbtools/magiskboot"
	"github.com/mt8781-root/vbtools/repack"
)

type options struct {
	native      bool
	candidates  []string
	keepSpacing bool
	verbose     bool
}

func splitList(s string) []string {
	var out []string
	for _, m := range strings.Split(s, ",") {
		if m = strings.TrimSpace(m); m != "" {
			out = append(out, m)
		}
	}
	return out
}

func run(ctx context.Context, input, output string, opts options) error {
	if _, err := os.Stat(input); err != nil {
		return fmt.Errorf("input image: %w", err)
	}

	logFunc := func(level int, format string, param ...interface{}) {
		if level == 0 || opts.verbose {
			log.Printf(format, param...)
		}
	}

	var backend repack.Backend
	if opts.native {
		backend = repack.NativeBackend{LogFunc: logFunc}
	} else {
		path, err := magiskboot.Locate("")
		if err != nil {
			return fmt.Errorf("%w (searched %s)", err, strings.Join(magiskboot.SearchPaths(), ", "))
		}
		backend = repack.MagiskbootBackend{Path: path, LogFunc: logFunc}
	}

	res, err := repack.Rebuild(ctx, backend, input, output, repack.Config{
		Candidates: opts.candidates,
		Options:    fstab.Options{KeepSpacing: opts.keepSpacing},
		LogFunc:    logFunc,
	})
	if err != nil {
		return err
	}

	log.Println("Written:", res.Output)
	log.Println("fstab dump:", res.DumpDir)
	return nil
}

func main() {
	native := flag.Bool("native", false, "Rebuild in process instead of running magiskboot")
	fstabs := flag.String("fstab", "", "Comma separated fstab paths inside the ramdisk (default: built-in list)")
	keepSpacing := flag.Bool("keep-spacing", false, "Keep the original column spacing of rewritten lines")
	verbose := flag.Bool("v", false, "Verbose output")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: %s [flags] <input_image> <output_image>\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() != 2 {
		flag.Usage()
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := run(ctx, flag.Arg(0), flag.Arg(1), options{
		native:      *native,
		candidates:  splitList(*fstabs),
		keepSpacing: *keepSpacing,
		verbose:     *verbose,
	})
	stop()
	if err != nil {
		log.Fatalln("Failed:", err)
	}
}
