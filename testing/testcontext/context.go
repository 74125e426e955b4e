// Package testcontext provides a context for tests that carries a text o11y provider,
// so library spans and child process output show up in test logs.
package testcontext

import (
	"context"
	"os"

	"github.com/esmem/esmem/config/o11y"
)

// ctx is a global singleton, initialised at package time so beeline is only set up once
var ctx = newContext()

// Background returns a context for use in tests which contains a working o11y, so you get logs.
func Background() context.Context {
	return ctx
}

func newContext() context.Context {
	format := "text"
	if os.Getenv("ESMEM_TEST_LOG") == "none" {
		format = "none"
	}
	cx, _, err := o11y.Setup(context.Background(), o11y.Config{
		Format:  format,
		Service: "test-service",
		Version: "dev",
	})
	if err != nil {
		panic(err)
	}
	return cx
}
