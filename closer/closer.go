/*
Package closer keeps the errors of deferred Close calls.

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer closer.ErrorHandler(f, &err)
*/
package closer

import (
	"errors"
	"io"
)

// ErrorHandler closes c and stores the close error in *in. If *in already holds an
// error both are kept.
func ErrorHandler(c io.Closer, in *error) {
	cerr := c.Close()
	if cerr == nil {
		return
	}
	if *in == nil {
		*in = cerr
		return
	}
	*in = errors.Join(*in, cerr)
}
