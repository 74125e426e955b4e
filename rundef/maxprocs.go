//go:build !go1.25

package rundef

import (
	"context"
	"fmt"

	"go.uber.org/automaxprocs/maxprocs"

	"github.com/esmem/esmem/o11y"
)

// MaxProcs sets GOMAXPROCS to the cgroup CPU quota.
func MaxProcs(ctx context.Context) (err error) {
	ctx, span := o11y.StartSpan(ctx, "rundef: max procs")
	defer o11y.End(span, &err)

	_, err = maxprocs.Set(maxprocs.Min(1), maxprocs.Logger(func(format string, args ...interface{}) {
		o11y.Log(ctx, "rundef: max procs", o11y.Field("message", fmt.Sprintf(format, args...)))
	}))
	if err != nil {
		return err
	}
	reportProcs(span)
	return nil
}
