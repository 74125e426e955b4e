package instance

import (
	"context"
	"fmt"
	"os"
	"testing"

	"github.com/esmem/esmem/testing/compiler"
)

// fakeServer is the path to the compiled internal/fakeserver binary.
var fakeServer string

func TestMain(m *testing.M) {
	c := compiler.New()
	var err error
	fakeServer, err = c.Compile(context.Background(), compiler.Work{
		Name:   "elasticsearch",
		Target: "..",
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
