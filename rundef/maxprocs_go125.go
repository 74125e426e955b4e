//go:build go1.25

package rundef

import (
	"context"

	"github.com/esmem/esmem/o11y"
)

// MaxProcs only reports GOMAXPROCS, the runtime honours the cgroup CPU quota itself.
func MaxProcs(ctx context.Context) (err error) {
	_, span := o11y.StartSpan(ctx, "rundef: max procs")
	defer o11y.End(span, &err)

	reportProcs(span)
	return nil
}
