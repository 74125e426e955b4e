package binary

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strings"
)

// Path resolves an explicit binary. A value with no path separator is looked up on PATH.
// Fallback is used when the config does not name a binary.
type Path struct {
	Fallback string
}

func (p Path) Resolve(_ context.Context, cfg Config) (string, error) {
	name := cfg.Binary
	if name == "" {
		name = p.Fallback
	}
	if name == "" {
		return "", fmt.Errorf("%w: no binary configured", ErrNotFound)
	}

	if !strings.ContainsRune(name, os.PathSeparator) && !strings.ContainsRune(name, '/') {
		found, err := exec.LookPath(name)
		if err != nil {
			return "", fmt.Errorf("%w: %w", ErrNotFound, err)
		}
		name = found
	}

	fi, err := os.Stat(name)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrNotFound, err)
	}
	if !fi.Mode().IsRegular() {
		return "", fmt.Errorf("%w: %q is not a regular file", ErrNotFound, name)
	}
	if runtime.GOOS != "windows" && fi.Mode().Perm()&0111 == 0 {
		return "", fmt.Errorf("%w: %q is not executable", ErrNotFound, name)
	}
	return name, nil
}
