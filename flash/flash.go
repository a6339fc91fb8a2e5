// Package flash writes a sequence of images to device partitions through
// fastboot or mtkclient. Steps run strictly in order and the first failure
// aborts the sequence.
package flash

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/hashicorp/go-multierror"
	"github.com/mt8781-root/vbtools/manifest"
)

type LogFunc func(level int, format string, param ...interface{})

type Tool string

const (
	Fastboot Tool = "fastboot"
	MTK      Tool = "mtk"
)

type Step struct {
	Partition string
	Image     string
}

func (s Step) String() string {
	return s.Partition + "=" + s.Image
}

// ParseSteps parses partition=image arguments, keeping their order.
func ParseSteps(args []string) ([]Step, error) {
	if len(args) == 0 {
		return nil, ErrorNoSteps
	}

	var steps []Step
	for _, a := range args {
		part, image, ok := strings.Cut(a, "=")
		part = strings.TrimSpace(part)
		image = strings.TrimSpace(image)
		if !ok || part == "" || image == "" {
			return nil, fmt.Errorf("%q: %w", a, ErrorBadStep)
		}
		steps = append(steps, Step{Partition: part, Image: image})
	}
	return steps, nil
}

type Runner interface {
	Run(ctx context.Context, name string, args ...string) error
}

type ExecRunner struct {
	Stdout io.Writer
	Stderr io.Writer
}

func (r ExecRunner) Run(ctx context.Context, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = r.Stdout
	cmd.Stderr = r.Stderr
	return cmd.Run()
}

type Config struct {
	Tool Tool

	FastbootPath string
	Serial       string

	Python  string
	MTKPath string

	/* Checked before anything is written when set */
	Manifest     []manifest.Entry
	ManifestRoot string

	DryRun  bool
	Runner  Runner
	LogFunc LogFunc
}

var DefaultConfig = Config{
	Tool:         Fastboot,
	FastbootPath: "fastboot",
	Python:       "python3",
	MTKPath:      "mtk.py",
}

func (c *Config) log(level int, format string, param ...interface{}) {
	if c.LogFunc != nil {
		c.LogFunc(level, format, param...)
	}
}

// Command returns the argv that flashes step.
func (c *Config) Command(step Step) ([]string, error) {
	switch c.Tool {
	case Fastboot:
		argv := []string{c.FastbootPath}
		if c.Serial != "" {
			argv = append(argv, "-s", c.Serial)
		}
		return append(argv, "flash", step.Partition, step.Image), nil
	case MTK:
		return []string{c.Python, c.MTKPath, "w", step.Partition, step.Image}, nil
	}
	return nil, fmt.Errorf("%q: %w", c.Tool, ErrorUnknownTool)
}

func (c *Config) manifestPath(image string) string {
	if c.ManifestRoot == "" {
		return image
	}
	abs, err := filepath.Abs(image)
	if err != nil {
		return image
	}
	root, err := filepath.Abs(c.ManifestRoot)
	if err != nil {
		return image
	}
	if rel, err := filepath.Rel(root, abs); err == nil && !strings.HasPrefix(rel, "..") {
		return rel
	}
	return image
}

// Check validates every step before the first command runs.
func (c *Config) Check(steps []Step) error {
	var result error

	for _, s := range steps {
		st, err := os.Stat(s.Image)
		if err != nil {
			result = multierror.Append(result, fmt.Errorf("%s: %w", s.Partition, err))
			continue
		}
		if !st.Mode().IsRegular() {
			result = multierror.Append(result, fmt.Errorf("%s: %s is not a regular file", s.Partition, s.Image))
			continue
		}
		c.log(1, "%-12s %s (%s)", s.Partition, s.Image, humanize.IBytes(uint64(st.Size())))

		if c.Manifest == nil {
			continue
		}
		e, err := manifest.Lookup(c.Manifest, c.manifestPath(s.Image))
		if err == nil {
			e.Path = s.Image
			err = e.Check("")
		}
		if err != nil {
			result = multierror.Append(result, fmt.Errorf("%s: %w", s.Partition, err))
		}
	}

	return result
}

// Run flashes steps in order. Nothing is retried.
func Run(ctx context.Context, steps []Step, config Config) error {
	if len(steps) == 0 {
		return ErrorNoSteps
	}
	if config.Runner == nil {
		config.Runner = ExecRunner{Stdout: os.Stdout, Stderr: os.Stderr}
	}

	for _, s := range steps {
		if _, err := config.Command(s); err != nil {
			return err
		}
	}
	if err := config.Check(steps); err != nil {
		return err
	}

	for i, s := range steps {
		argv, _ := config.Command(s)
		config.log(0, "[%d/%d] %s", i+1, len(steps), strings.Join(argv, " "))
		if config.DryRun {
			continue
		}

		if err := config.Runner.Run(ctx, argv[0], argv[1:]...); err != nil {
			return fmt.Errorf("step %d (%s): %v: %w", i+1, s.Partition, err, ErrorStepFailed)
		}
	}

	return nil
}
