/*
Package registry tracks running servers so they can be stopped together.

A test binary that starts servers from several packages or helpers can share one
Registry and call StopAll from TestMain, instead of relying on process-wide state:

	var reg = registry.New()

	func TestMain(m *testing.M) {
		code := m.Run()
		_ = reg.StopAll(context.Background())
		os.Exit(code)
	}
*/
package registry

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/esmem/esmem/o11y"
)

type entry struct {
	id   uint64
	name string
	stop func(ctx context.Context) error
}

type Registry struct {
	mu      sync.Mutex
	nextID  uint64
	entries []entry
}

func New() *Registry {
	return &Registry{}
}

// Add registers stop under name and returns a func that removes it again.
// The returned func is safe to call more than once.
func (r *Registry) Add(name string, stop func(ctx context.Context) error) (remove func()) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextID++
	id := r.nextID
	r.entries = append(r.entries, entry{id: id, name: name, stop: stop})

	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		for i, e := range r.entries {
			if e.id == id {
				r.entries = append(r.entries[:i], r.entries[i+1:]...)
				return
			}
		}
	}
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Names lists the registered entries in the order they were added.
func (r *Registry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, 0, len(r.entries))
	for _, e := range r.entries {
		names = append(names, e.name)
	}
	return names
}

// StopAll calls every registered stop func concurrently and waits for all of them.
// Every func is called even if some fail; the first error is returned. Entries stay
// registered until their owner removes them, which a successful stop normally does.
func (r *Registry) StopAll(ctx context.Context) (err error) {
	ctx, span := o11y.StartSpan(ctx, "registry: stop all")
	defer o11y.End(span, &err)

	r.mu.Lock()
	entries := make([]entry, len(r.entries))
	copy(entries, r.entries)
	r.mu.Unlock()
	span.AddField("count", len(entries))

	var g errgroup.Group
	for _, e := range entries {
		e := e
		g.Go(func() error {
			if err := e.stop(ctx); err != nil {
				return fmt.Errorf("stop %s: %w", e.name, err)
			}
			return nil
		})
	}
	return g.Wait()
}
