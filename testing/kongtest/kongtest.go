// Package kongtest renders the help output of kong command lines in tests.
package kongtest

import (
	"bytes"
	"testing"

	"github.com/alecthomas/kong"
	"gotest.tools/v3/assert"
	"gotest.tools/v3/assert/cmp"
)

// Help parses --help against cli and returns what kong printed. The defaults of cli are
// populated as a side effect.
func Help(t *testing.T, cli interface{}, options ...kong.Option) string {
	t.Helper()
	w := bytes.NewBuffer(nil)
	rc := -1
	options = append([]kong.Option{
		kong.Name("test-app"),
		kong.Writers(w, w),
		kong.Exit(func(i int) {
			rc = i
		}),
	}, options...)
	app, err := kong.New(cli, options...)
	assert.Assert(t, err)

	_, err = app.Parse([]string{"--help"})
	assert.Check(t, err)
	assert.Check(t, cmp.Equal(rc, 0))

	return w.String()
}

// Parse parses args against cli with the given environment, and fails the test on error.
func Parse(t *testing.T, cli interface{}, args []string, env map[string]string) {
	t.Helper()
	for k, v := range env {
		t.Setenv(k, v)
	}
	app, err := kong.New(cli, kong.Name("test-app"), kong.Exit(func(i int) {
		t.Fatalf("unexpected exit %d", i)
	}))
	assert.Assert(t, err)

	_, err = app.Parse(args)
	assert.Assert(t, err)
}
