// Command esmem starts a throwaway search server, prints its URI and keeps it running
// until interrupted. The data directory is removed on exit unless one was given.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log" //nolint:depguard // non-o11y log is allowed for a top-level fatal
	"os"
	"time"

	"github.com/alecthomas/kong"

	"github.com/esmem/esmem/binary"
	configo11y "github.com/esmem/esmem/config/o11y"
	"github.com/esmem/esmem/config/secret"
	"github.com/esmem/esmem/httpserver/healthcheck"
	"github.com/esmem/esmem/instance"
	"github.com/esmem/esmem/memserver"
	"github.com/esmem/esmem/o11y"
	"github.com/esmem/esmem/rundef"
	"github.com/esmem/esmem/system"
	"github.com/esmem/esmem/termination"
)

// Version is set at build time.
var Version = "dev"

type cli struct {
	IP      string            `env:"ESMEM_IP" default:"127.0.0.1" help:"Address the server binds to."`
	Port    int               `env:"ESMEM_PORT" help:"Port to listen on, any free port when 0 or busy."`
	DataDir string            `env:"ESMEM_DATA_DIR" help:"Data directory to use. A temporary one is created and removed when empty."`
	Env     map[string]string `help:"Environment overrides for the server, as key=value."`
	Args    []string          `arg:"" optional:"" help:"Extra arguments passed to the server verbatim."`

	Binary          string        `env:"ESMEM_BINARY" help:"Path to the server executable. Downloaded when empty."`
	Version         string        `name:"es-version" env:"ESMEM_VERSION" default:"7.17.9" help:"Server version to download."`
	DownloadURL     string        `env:"ESMEM_DOWNLOAD_URL" help:"Override the distribution URL."`
	CacheDir        string        `env:"ESMEM_CACHE_DIR" help:"Where downloaded distributions are kept."`
	DownloadTimeout time.Duration `env:"ESMEM_DOWNLOAD_TIMEOUT" default:"5m" help:"Time limit for fetching a distribution."`

	KillTimeout   time.Duration `env:"ESMEM_KILL_TIMEOUT" default:"10s" help:"Grace period before the server is killed."`
	AdminAddr     string        `env:"ESMEM_ADMIN_ADDR" help:"Address for the health check API, disabled when empty."`
	ShutdownDelay time.Duration `env:"SHUTDOWN_DELAY" default:"0s" help:"Delay shutdown by this amount" hidden:""`

	O11yStatsd           string        `name:"o11y-statsd" env:"O11Y_STATSD" help:"Address to send statsd metrics"`
	O11yHoneycombEnabled bool          `name:"o11y-honeycomb" env:"O11Y_HONEYCOMB" help:"Send traces to honeycomb"`
	O11yHoneycombDataset string        `name:"o11y-honeycomb-dataset" env:"O11Y_HONEYCOMB_DATASET" default:"esmem"`
	O11yHoneycombKey     secret.String `name:"o11y-honeycomb-key" env:"O11Y_HONEYCOMB_KEY"`
	O11yFormat           string        `name:"o11y-format" env:"O11Y_FORMAT" enum:"json,color,colour,text,none" default:"text" help:"Format used for stderr logging"`
}

func main() {
	c := cli{}
	kong.Parse(&c, kong.Name("esmem"), kong.Description("Run a throwaway search server."))

	err := run(context.Background(), c, os.Stdout, os.Stderr)
	if err != nil && !errors.Is(err, termination.ErrTerminated) {
		log.Fatal("Unexpected Error: ", err)
	}
}

func run(ctx context.Context, c cli, stdout, stderr io.Writer) (err error) {
	ctx, o11yCleanup, err := configo11y.Setup(ctx, configo11y.Config{
		Statsd:           c.O11yStatsd,
		HoneycombEnabled: c.O11yHoneycombEnabled,
		HoneycombDataset: c.O11yHoneycombDataset,
		HoneycombKey:     c.O11yHoneycombKey,
		Format:           c.O11yFormat,
		Version:          Version,
		Service:          "esmem",
		StatsNamespace:   "esmem.",
		Writer:           stderr,
	})
	if err != nil {
		return err
	}
	defer o11yCleanup(ctx)

	ctx, runSpan := o11y.StartSpan(ctx, "main: run")
	defer o11y.End(runSpan, &err)

	if err := rundef.Defaults(ctx); err != nil {
		o11y.LogError(ctx, "main: runtime defaults", err)
	}

	sys := system.New(ctx)
	defer sys.Cleanup(context.WithoutCancel(ctx))

	srv, err := loadServer(ctx, c, sys)
	if err != nil {
		return err
	}

	uri, err := srv.URI(ctx)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintln(stdout, uri)

	if c.AdminAddr != "" {
		// Should be last so it collects all the health checks
		_, err = healthcheck.Load(ctx, c.AdminAddr, sys)
		if err != nil {
			return err
		}
	}

	return sys.Run(c.ShutdownDelay)
}

func loadServer(ctx context.Context, c cli, sys *system.System) (*memserver.Server, error) {
	bin := binary.Options{
		Binary:          c.Binary,
		Version:         c.Version,
		DownloadURL:     c.DownloadURL,
		CacheDir:        c.CacheDir,
		DownloadTimeout: c.DownloadTimeout,
	}

	srv := memserver.New(memserver.Options{
		Instance: instance.Config{
			IP:          c.IP,
			Port:        c.Port,
			DataDir:     c.DataDir,
			Args:        c.Args,
			Binary:      c.Binary,
			Env:         c.Env,
			KillTimeout: c.KillTimeout,
		},
		Resolver: bin.Resolver(),
		Name:     "search",
	})

	err := srv.Start(ctx)
	if err != nil {
		return nil, err
	}
	sys.AddCleanup(srv.Stop)
	sys.AddHealthCheck(srv)

	info, _ := srv.Info()
	sys.AddService(func(ctx context.Context) error {
		select {
		case <-info.Instance.Done():
			return fmt.Errorf("search server exited: %v", info.Instance.ExitErr())
		case <-ctx.Done():
			return nil
		}
	})
	return srv, nil
}
