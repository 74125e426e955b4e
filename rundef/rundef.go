// Package rundef tunes the Go runtime for the container the binary finds itself in.
package rundef

import (
	"context"
	"runtime"

	"github.com/KimMachineGun/automemlimit/memlimit"
	"golang.org/x/sync/errgroup"

	"github.com/esmem/esmem/o11y"
)

// memRatio leaves room for the search server process, which shares the cgroup.
const memRatio = 0.5

// Defaults sets GOMEMLIMIT and GOMAXPROCS from the cgroup limits, falling back to the
// host's resources.
func Defaults(ctx context.Context) (err error) {
	ctx, span := o11y.StartSpan(ctx, "rundef: defaults")
	defer o11y.End(span, &err)

	var g errgroup.Group
	g.Go(func() error {
		return MemLimit(ctx)
	})
	g.Go(func() error {
		return MaxProcs(ctx)
	})
	return g.Wait()
}

// MemLimit sets GOMEMLIMIT to half of the memory available.
func MemLimit(ctx context.Context) (err error) {
	_, span := o11y.StartSpan(ctx, "rundef: mem limit")
	defer o11y.End(span, &err)

	limit, err := memlimit.SetGoMemLimitWithOpts(
		memlimit.WithRatio(memRatio),
		memlimit.WithProvider(
			memlimit.ApplyFallback(
				memlimit.FromCgroup,
				memlimit.FromSystem,
			)))
	if err != nil {
		return err
	}
	span.AddField("limit", limit)
	return nil
}

func reportProcs(span o11y.Span) {
	span.AddField("limit", runtime.GOMAXPROCS(0))
}
