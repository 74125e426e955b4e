package system

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"gotest.tools/v3/assert"
	"gotest.tools/v3/assert/cmp"

	"github.com/esmem/esmem/o11y"
	"github.com/esmem/esmem/termination"
	"github.com/esmem/esmem/testing/testcontext"
)

func TestSystem_Run(t *testing.T) {
	ctx := testcontext.Background()

	// Wait until everything has been exercised before terminating
	terminationWait := &sync.WaitGroup{}
	terminationTestHook = func(ctx context.Context, delay time.Duration) error {
		terminationWait.Wait()
		return termination.ErrTerminated
	}
	t.Cleanup(func() {
		terminationTestHook = termination.Handle
	})

	sys := New(ctx)

	terminationWait.Add(1)
	sys.AddService(func(ctx context.Context) (err error) {
		ctx, span := o11y.StartSpan(ctx, "service")
		defer o11y.End(span, &err)
		terminationWait.Done()
		<-ctx.Done()
		return nil
	})

	sys.AddHealthCheck(&mockHealthChecker{})
	assert.Check(t, cmp.Len(sys.HealthChecks(), 1))

	var order []string
	sys.AddCleanup(func(ctx context.Context) error {
		order = append(order, "first")
		return nil
	})
	sys.AddCleanup(func(ctx context.Context) error {
		order = append(order, "second")
		return errors.New("logged, not returned")
	})

	err := sys.Run(0)
	assert.Check(t, errors.Is(err, termination.ErrTerminated))

	sys.Cleanup(ctx)
	assert.Check(t, cmp.DeepEqual(order, []string{"second", "first"}))
}

func TestSystem_RunServiceError(t *testing.T) {
	ctx := testcontext.Background()
	terminationTestHook = func(ctx context.Context, delay time.Duration) error {
		<-ctx.Done()
		return nil
	}
	t.Cleanup(func() {
		terminationTestHook = termination.Handle
	})

	boom := errors.New("instance exited")
	sys := New(ctx)
	sys.AddService(func(ctx context.Context) error {
		return boom
	})

	err := sys.Run(0)
	assert.Check(t, cmp.ErrorIs(err, boom))
}

type mockHealthChecker struct{}

func (m *mockHealthChecker) HealthChecks() (name string, ready, live func(ctx context.Context) error) {
	return "name", nil, nil
}
