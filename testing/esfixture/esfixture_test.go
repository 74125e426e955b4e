package esfixture

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"gotest.tools/v3/assert"
	"gotest.tools/v3/assert/cmp"

	"github.com/esmem/esmem/binary"
	"github.com/esmem/esmem/httpclient"
	"github.com/esmem/esmem/instance"
	"github.com/esmem/esmem/testing/compiler"
	"github.com/esmem/esmem/testing/testcontext"
)

var fakeServer string

func TestMain(m *testing.M) {
	c := compiler.New()
	var err error
	fakeServer, err = c.Compile(context.Background(), compiler.Work{
		Name:   "elasticsearch",
		Target: "../..",
		Source: "./internal/fakeserver",
	})
	if err != nil {
		c.Cleanup()
		fmt.Println("failed to compile the fake server:", err)
		os.Exit(1)
	}

	code := m.Run()
	c.Cleanup()
	os.Exit(code)
}

func TestSetup(t *testing.T) {
	ctx := testcontext.Background()
	fix := Setup(ctx, t, Config{
		Instance: instance.Config{
			Args:          []string{"-E", "fake.version=8.6.2"},
			ProbeInterval: 50 * time.Millisecond,
		},
		Resolver: binary.Path{Fallback: fakeServer},
	})

	assert.Check(t, cmp.Equal(fix.Version, "8.6.2"))
	info, ok := fix.Server.Info()
	assert.Assert(t, ok)
	assert.Check(t, cmp.Equal(fix.URI, info.URI))

	var settings map[string]string
	req := httpclient.NewRequest("GET", "/_fake/settings", time.Second)
	req.Decoder = httpclient.NewJSONDecoder(&settings)
	assert.Assert(t, fix.Client.Call(ctx, req))
	assert.Check(t, cmp.Equal(settings["path.data"], filepath.Join(info.DataDir, "path")))
}

func TestSetup_SkipsWithoutBinary(t *testing.T) {
	t.Setenv("CI", "")
	t.Setenv("ESMEM_BINARY", "")

	ft := &fakeT{name: t.Name()}
	fix := Setup(testcontext.Background(), ft, Config{})
	assert.Check(t, fix == nil)
	assert.Check(t, ft.skipped)
	assert.Check(t, !ft.failed)
}

// fakeT records a skip instead of stopping the goroutine.
type fakeT struct {
	name     string
	skipped  bool
	failed   bool
	cleanups []func()
}

func (f *fakeT) Cleanup(fn func())                       { f.cleanups = append(f.cleanups, fn) }
func (f *fakeT) Fail()                                   { f.failed = true }
func (f *fakeT) FailNow()                                { f.failed = true }
func (f *fakeT) Failed() bool                            { return f.failed }
func (f *fakeT) Fatal(args ...interface{})               { f.failed = true }
func (f *fakeT) Helper()                                 {}
func (f *fakeT) Log(args ...interface{})                 {}
func (f *fakeT) Logf(format string, args ...interface{}) {}
func (f *fakeT) Name() string                            { return f.name }
func (f *fakeT) Skip(args ...interface{})                { f.skipped = true }
