package compiler

import (
	"context"
	"os"
	"testing"

	"gotest.tools/v3/assert"
	"gotest.tools/v3/icmd"
)

func TestCompiler_Compile(t *testing.T) {
	c := New()

	binary := ""
	t.Cleanup(func() {
		c.Cleanup()
		_, err := os.Stat(binary)
		assert.Check(t, os.IsNotExist(err))
	})

	assert.Assert(t, t.Run("Compile binary", func(t *testing.T) {
		var err error
		binary, err = c.Compile(context.Background(), Work{
			Name:   "echo",
			Target: "../..",
			Source: "./testing/compiler/internal/echo",
		})
		assert.Assert(t, err)
		_, err = os.Stat(binary)
		assert.Check(t, err)
	}))

	t.Run("Run binary", func(t *testing.T) {
		res := icmd.RunCmd(icmd.Command(binary, "arg1", "arg2"), icmd.WithEnv("ECHO_NAME=echo"))
		assert.Check(t, res.Equal(icmd.Expected{
			Out: "echo: [arg1 arg2]",
		}))
	})
}

func TestCompiler_CompileAll(t *testing.T) {
	c := New()
	t.Cleanup(c.Cleanup)

	var binary1, binary2 string
	err := c.CompileAll(context.Background(),
		Work{Result: &binary1, Name: "binary1", Target: "../..", Source: "./testing/compiler/internal/echo"},
		Work{Result: &binary2, Name: "binary2", Target: "../..", Source: "./testing/compiler/internal/echo"},
	)
	assert.Assert(t, err)

	res := icmd.RunCmd(icmd.Command(binary1, "one"), icmd.WithEnv("ECHO_NAME=binary1"))
	assert.Check(t, res.Equal(icmd.Expected{Out: "binary1: [one]"}))
	res = icmd.RunCmd(icmd.Command(binary2, "two"), icmd.WithEnv("ECHO_NAME=binary2"))
	assert.Check(t, res.Equal(icmd.Expected{Out: "binary2: [two]"}))
}

func TestCompiler_CompileFails(t *testing.T) {
	c := New()
	t.Cleanup(c.Cleanup)

	_, err := c.Compile(context.Background(), Work{
		Name:   "missing",
		Target: "../..",
		Source: "./testing/compiler/internal/does-not-exist",
	})
	assert.Check(t, err != nil)
}
