package magiskboot

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
)

const (
	EnvVar = "MAGISKBOOT"
	Binary = "magiskboot"
)

// SearchPaths lists where Locate looks after an explicit override and
// $MAGISKBOOT, before falling back to $PATH.
func SearchPaths() []string {
	var paths []string
	if exe, err := os.Executable(); err == nil {
		paths = append(paths, filepath.Join(filepath.Dir(exe), Binary))
	}
	return append(paths,
		filepath.Join("bin", Binary),
		filepath.Join("tools", Binary),
	)
}

// Locate finds the magiskboot binary. An explicitly requested path (the
// override or $MAGISKBOOT) must be usable; it is never silently replaced by
// one found elsewhere.
func Locate(override string) (string, error) {
	for _, m := range []string{override, os.Getenv(EnvVar)} {
		if m == "" {
			continue
		}
		if !isExecutable(m) {
			return "", fmt.Errorf("%s: %w", m, ErrorNotExecutable)
		}
		return filepath.Abs(m)
	}

	for _, m := range SearchPaths() {
		if isExecutable(m) {
			return filepath.Abs(m)
		}
	}

	if p, err := exec.LookPath(Binary); err == nil {
		return filepath.Abs(p)
	}

	return "", fmt.Errorf("%w (set %s or put it in $PATH)", ErrorNotFound, EnvVar)
}
