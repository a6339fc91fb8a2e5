package expdb

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/edsrzf/mmap-go"
)

type LogFunc func(level int, format string, param ...interface{})

type Config struct {
	MinLen       int
	WindowBefore int
	WindowAfter  int

	LogFunc LogFunc
}

var DefaultConfig = Config{
	MinLen:       8,
	WindowBefore: 120,
	WindowAfter:  80,
}

const (
	FullLog    = "reconstructed_full.log"
	HumanLog   = "reconstructed_human.log"
	WindowLog  = "latest_boot_window.log"
	SummaryTxt = "summary.txt"
)

type Result struct {
	OutDir  string
	Records []Record
	Summary *Summary
	Files   []string
}

// DefaultOutDir is <dir>/<stem>_reconstructed next to the input.
func DefaultOutDir(input string) string {
	base := filepath.Base(input)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	return filepath.Join(filepath.Dir(input), stem+"_reconstructed")
}

func readInput(path string) ([]byte, func(), error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}

	st, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, nil, err
	}
	if !st.Mode().IsRegular() {
		f.Close()
		return nil, nil, fmt.Errorf("%s: %w", path, ErrorNotRegular)
	}
	if st.Size() == 0 {
		/* mmap rejects zero length; an empty dump still gets its reports */
		f.Close()
		return nil, func() {}, nil
	}

	m, err := mmap.Map(f, mmap.RDONLY, 0)
	if err != nil {
		f.Close()
		return nil, nil, err
	}

	return m, func() {
		m.Unmap()
		f.Close()
	}, nil
}

func writeFile(path string, fn func(w io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := fn(f); err != nil {
		f.Close()
		return fmt.Errorf("%s: %w", path, err)
	}
	return f.Close()
}

// Reconstruct reads the expdb dump at input and writes the four reports
// into outDir (DefaultOutDir when empty).
func Reconstruct(input, outDir string, config Config) (*Result, error) {
	if outDir == "" {
		outDir = DefaultOutDir(input)
	}
	logf := func(level int, format string, param ...interface{}) {
		if config.LogFunc != nil {
			config.LogFunc(level, format, param...)
		}
	}

	data, done, err := readInput(input)
	if err != nil {
		return nil, err
	}
	defer done()

	records := Extract(data, config.MinLen)
	logf(1, "extracted %d record(s) from %d bytes", len(records), len(data))

	if err := os.MkdirAll(outDir, 0755); err != nil {
		return nil, err
	}

	res := &Result{
		OutDir:  outDir,
		Records: records,
		Summary: Summarize(records),
	}

	outputs := []struct {
		name string
		fn   func(w io.Writer) error
	}{
		{FullLog, func(w io.Writer) error { return WriteFull(w, records) }},
		{HumanLog, func(w io.Writer) error { return WriteHuman(w, records) }},
		{WindowLog, func(w io.Writer) error { return WriteWindow(w, records, config.WindowBefore, config.WindowAfter) }},
		{SummaryTxt, func(w io.Writer) error {
			_, err := res.Summary.WriteTo(w)
			return err
		}},
	}

	for _, o := range outputs {
		path := filepath.Join(outDir, o.name)
		if err := writeFile(path, o.fn); err != nil {
			return nil, err
		}
		res.Files = append(res.Files, path)
		logf(0, "written: %s", path)
	}

	return res, nil
}
