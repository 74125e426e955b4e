package compiler

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"

	"golang.org/x/sync/errgroup"
)

type Compiler struct {
	dir     string
	ldFlags string
}

func New() *Compiler {
	tempDir, err := os.MkdirTemp("", "esmem-test-binaries")
	if err != nil {
		panic(err)
	}

	return &Compiler{
		dir:     tempDir,
		ldFlags: "-w -s",
	}
}

func (c *Compiler) Dir() string {
	return c.dir
}

func (c *Compiler) Cleanup() {
	_ = os.RemoveAll(c.dir)
}

type Work struct {
	Name string
	// Target is the directory the build runs in, normally the module root.
	Target string
	// Source is the main package, relative to Target.
	Source      string
	Environment []string

	Result *string
}

// Compile a binary for testing.
func (c *Compiler) Compile(ctx context.Context, work Work) (string, error) {
	cwd, err := filepath.Abs(work.Target)
	if err != nil {
		return "", err
	}

	goos := runtime.GOOS
	for _, e := range work.Environment {
		if strings.HasPrefix(e, "GOOS=") {
			goos = strings.SplitN(e, "=", 2)[1]
		}
	}

	path := binaryPath(work.Name, c.dir, goos)
	// #nosec - this is fine
	cmd := exec.CommandContext(ctx, goPath(), "build",
		"-ldflags="+c.ldFlags,
		"-o", path,
		work.Source,
	)
	cmd.Dir = cwd
	cmd.Env = append(os.Environ(), "CGO_ENABLED=0")
	cmd.Env = append(cmd.Env, work.Environment...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	err = cmd.Run()
	if err != nil {
		return "", fmt.Errorf("compile %s: %w", work.Name, err)
	}

	if work.Result != nil {
		*work.Result = path
	}
	return path, nil
}

// CompileAll compiles all the work concurrently, storing each path in its Result.
func (c *Compiler) CompileAll(ctx context.Context, work ...Work) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.NumCPU())
	for _, w := range work {
		w := w
		g.Go(func() error {
			_, err := c.Compile(ctx, w)
			return err
		})
	}
	return g.Wait()
}

func goPath() string {
	goroot := os.Getenv("GOROOT")
	if goroot == "" {
		return "go"
	}
	return filepath.Join(goroot, "bin", "go")
}

func binaryPath(name, tempDir, goos string) string {
	path := filepath.Join(tempDir, name)
	if goos == "windows" {
		return path + ".exe"
	}
	return path
}
