package healthcheck

import (
	"context"
	"fmt"

	"github.com/esmem/esmem/httpserver"
	"github.com/esmem/esmem/system"
)

// Load serves the health checks registered with sys so far on addr, as a service of sys.
// It should be loaded after everything that adds health checks.
func Load(ctx context.Context, addr string, sys *system.System) (*httpserver.HTTPServer, error) {
	healthAPI, err := New(ctx, sys.HealthChecks())
	if err != nil {
		return nil, fmt.Errorf("error creating health check API: %w", err)
	}

	return httpserver.Load(ctx, httpserver.Config{
		Name:    "admin",
		Addr:    addr,
		Handler: healthAPI.Handler(),
	}, sys)
}
