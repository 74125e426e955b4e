package closer_test

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/esmem/esmem/closer"
)

func ExampleErrorHandler() {
	dir, err := os.MkdirTemp("", "closer-example")
	if err != nil {
		os.Exit(1)
	}
	defer os.RemoveAll(dir)

	err = writeLock(filepath.Join(dir, "node.lock"))
	fmt.Println(err)

	// output: <nil>
}

// writeLock returns the error from closing the file if writing it succeeded.
func writeLock(path string) (err error) {
	f, err := os.Create(path) //#nosec:G304 // this is a test
	if err != nil {
		return err
	}
	defer closer.ErrorHandler(f, &err)

	_, err = fmt.Fprintf(f, "%d\n", os.Getpid())
	return err
}
