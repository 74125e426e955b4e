// Package esfixture starts a throwaway search server for a single test.
package esfixture

import (
	"context"
	"errors"
	"os"
	"strings"
	"time"

	"gotest.tools/v3/assert"

	"github.com/esmem/esmem/binary"
	"github.com/esmem/esmem/httpclient"
	"github.com/esmem/esmem/instance"
	"github.com/esmem/esmem/memserver"
	"github.com/esmem/esmem/o11y"
	"github.com/esmem/esmem/testing/internal/types"
)

type Config struct {
	Instance instance.Config
	// Resolver finds the server binary. When nil the ESMEM_* environment is used, and the
	// test is skipped if no binary is configured, unless downloading is forced.
	Resolver binary.Resolver
	// ForceLocal fails the test instead of skipping it when no binary is available.
	// It is implied on CI.
	ForceLocal bool
}

type Fixture struct {
	URI     string
	Version string
	Server  *memserver.Server
	Client  *httpclient.Client
}

// Setup starts a server and stops it when the test finishes.
func Setup(ctx context.Context, t types.TestingTB, cfg Config) *Fixture {
	t.Helper()
	ctx, span := o11y.StartSpan(ctx, "esfixture: setup")
	defer span.End()

	resolver := cfg.Resolver
	if resolver == nil {
		opts, err := binary.Options{}.FromEnv()
		assert.Assert(t, err)
		if opts.Binary == "" && !forced(cfg) {
			t.Skip("search server binary not configured, set ESMEM_BINARY")
			return nil
		}
		resolver = opts.Resolver()
		if cfg.Instance.Binary == "" {
			cfg.Instance.Binary = opts.Binary
		}
	}

	srv := memserver.New(memserver.Options{
		Instance: cfg.Instance,
		Resolver: resolver,
		Name:     t.Name(),
	})
	t.Cleanup(func() {
		assert.Check(t, srv.Stop(context.Background()))
	})

	info, err := srv.EnsureInstance(ctx)
	if !forced(cfg) && (errors.Is(err, binary.ErrNotFound) || errors.Is(err, binary.ErrDownload)) {
		t.Skip("search server not available: ", err)
		return nil
	}
	assert.Assert(t, err)
	span.AddField("uri", info.URI)

	client := httpclient.New(httpclient.Config{
		Name:    "esfixture",
		BaseURL: info.URI,
		Timeout: 10 * time.Second,
	})

	var root struct {
		Version struct {
			Number string `json:"number"`
		} `json:"version"`
	}
	req := httpclient.NewRequest("GET", "/", time.Second)
	req.Decoder = httpclient.NewJSONDecoder(&root)
	err = client.Call(ctx, req)
	assert.Assert(t, err)

	return &Fixture{
		URI:     info.URI,
		Version: root.Version.Number,
		Server:  srv,
		Client:  client,
	}
}

func forced(cfg Config) bool {
	return cfg.ForceLocal || strings.EqualFold(os.Getenv("CI"), "true")
}
