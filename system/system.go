package system

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/esmem/esmem/o11y"
	"github.com/esmem/esmem/termination"
)

// HealthChecker is implemented by anything that can report its own liveness and readiness.
// Either func may be nil.
type HealthChecker interface {
	HealthChecks() (name string, ready, live func(ctx context.Context) error)
}

type System struct {
	group        *errgroup.Group
	ctx          context.Context
	services     []func(context.Context) error
	healthChecks []HealthChecker
	cleanups     []func(ctx context.Context) error
}

func New(ctx context.Context) *System {
	group, ctx := errgroup.WithContext(ctx)
	return &System{
		group: group,
		ctx:   ctx,
	}
}

var terminationTestHook = termination.Handle

// Run starts every service and blocks until one returns an error or a termination signal
// arrives. The delay is applied after the signal, before services are told to stop.
func (r *System) Run(delay time.Duration) (err error) {
	_, uptimeSpan := o11y.StartSpan(r.ctx, "system: run")
	defer o11y.End(uptimeSpan, &err)
	uptimeSpan.RecordMetric(o11y.Timing("system.run", "result"))

	r.group.Go(func() error {
		return terminationTestHook(r.ctx, delay)
	})

	for _, f := range r.services {
		// Capture the func, so we don't overwrite it when the goroutines start in parallel.
		f := f
		r.group.Go(func() error {
			return f(r.ctx)
		})
	}

	return r.group.Wait()
}

func (r *System) AddService(s func(ctx context.Context) error) {
	r.services = append(r.services, s)
}

func (r *System) AddHealthCheck(h HealthChecker) {
	r.healthChecks = append(r.healthChecks, h)
}

func (r *System) AddCleanup(c func(ctx context.Context) error) {
	r.cleanups = append(r.cleanups, c)
}

func (r *System) HealthChecks() []HealthChecker {
	return r.healthChecks
}

// Cleanup runs the cleanups, last added first. Errors are logged, not returned.
func (r *System) Cleanup(ctx context.Context) {
	for i := len(r.cleanups) - 1; i >= 0; i-- {
		err := r.cleanups[i](ctx)
		if err != nil {
			o11y.LogError(ctx, "system: cleanup error", err)
		}
	}
}
