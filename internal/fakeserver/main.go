// Command fakeserver imitates the parts of a search server that esmem relies on: it
// accepts "-E key=value" settings, binds network.host:http.port, creates its data and
// logs directories and prints a "started" line. FAKESERVER_MODE selects misbehaviour
// for tests.
package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/gin-gonic/gin"

	"github.com/esmem/esmem/httpserver"
	"github.com/esmem/esmem/httpserver/ginrouter"
	"github.com/esmem/esmem/system"
	"github.com/esmem/esmem/termination"
	"github.com/esmem/esmem/testing/httprecorder"
	"github.com/esmem/esmem/testing/httprecorder/ginrecorder"
)

const (
	// modeNormal serves HTTP and prints the started marker.
	modeNormal = ""
	// modeSilent serves HTTP but never prints the marker.
	modeSilent = "silent"
	// modeExit writes to stderr and exits before doing anything else.
	modeExit = "exit"
	// modeHang neither listens nor prints the marker.
	modeHang = "hang"
	// modeStubborn is normal but ignores SIGTERM.
	modeStubborn = "stubborn"
	// modeFork is normal and also starts a long-lived child process.
	modeFork = "fork"
	// modeNoisy is normal with stderr chatter before and after the marker.
	modeNoisy = "noisy"
)

type cli struct {
	Settings map[string]string `short:"E" name:"setting" help:"Configure a setting as key=value."`

	Mode  string        `env:"FAKESERVER_MODE" help:"Misbehaviour to exhibit."`
	Delay time.Duration `env:"FAKESERVER_DELAY" help:"Wait this long before listening."`
}

func main() {
	c := &cli{}
	kong.Parse(c, kong.Name("elasticsearch"))

	err := run(c)
	if err != nil && !errors.Is(err, termination.ErrTerminated) {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}
}

func run(c *cli) error {
	switch c.Mode {
	case modeExit:
		fmt.Fprintln(os.Stderr, "fatal: unsupported setting [bogus.setting]")
		os.Exit(78)
	case modeHang:
		fmt.Println("initializing ...")
		sleepForever()
	case modeStubborn:
		signal.Ignore(syscall.SIGTERM)
	case modeFork:
		if err := forkChild(); err != nil {
			return err
		}
	}

	if err := makeDirs(c.Settings); err != nil {
		return err
	}

	if c.Mode == modeNoisy {
		fmt.Fprintln(os.Stderr, "warning: no-jdk distributions are deprecated")
	}
	fmt.Println("initializing ...")
	time.Sleep(c.Delay)

	ctx := context.Background()
	sys := system.New(ctx)

	rec := httprecorder.New()
	r := ginrouter.Default(ctx, "fakeserver")
	r.Use(ginrecorder.Middleware(ctx, rec))
	r.GET("/", func(gc *gin.Context) {
		gc.JSON(http.StatusOK, gin.H{
			"name":         setting(c.Settings, "node.name", "fake-node"),
			"cluster_name": setting(c.Settings, "cluster.name", "elasticsearch"),
			"version": gin.H{
				"number": setting(c.Settings, "fake.version", "7.17.9"),
			},
			"tagline": "You Know, for Search",
		})
	})
	r.GET("/_fake/settings", func(gc *gin.Context) {
		gc.JSON(http.StatusOK, c.Settings)
	})
	r.GET("/_fake/probes", func(gc *gin.Context) {
		gc.String(http.StatusOK, strconv.Itoa(len(rec.FindRequests(http.MethodGet, "/"))))
	})
	r.GET("/_fake/env/:name", func(gc *gin.Context) {
		gc.String(http.StatusOK, os.Getenv(gc.Param("name")))
	})

	addr := net.JoinHostPort(setting(c.Settings, "network.host", "127.0.0.1"),
		setting(c.Settings, "http.port", "9200"))
	srv, err := httpserver.New(ctx, httpserver.Config{
		Name:    "fakeserver",
		Addr:    addr,
		Handler: r,
	})
	if err != nil {
		return err
	}
	sys.AddService(srv.Serve)

	if c.Mode != modeSilent {
		fmt.Printf("[INFO ][o.e.n.Node] [%s] publish_address {%s}\n", setting(c.Settings, "node.name", "fake-node"), srv.Addr())
		fmt.Printf("[INFO ][o.e.n.Node] [%s] STARTED\n", setting(c.Settings, "node.name", "fake-node"))
	}
	if c.Mode == modeNoisy {
		fmt.Fprintln(os.Stderr, "warning: this line arrives after readiness")
	}

	if c.Mode == modeStubborn {
		// no termination handling, only SIGKILL stops us
		go func() {
			_ = srv.Serve(ctx)
		}()
		sleepForever()
	}
	return sys.Run(0)
}

func sleepForever() {
	for {
		time.Sleep(time.Hour)
	}
}

func setting(settings map[string]string, key, def string) string {
	if v, ok := settings[key]; ok && v != "" {
		return v
	}
	return def
}

func makeDirs(settings map[string]string) error {
	for _, key := range []string{"path.data", "path.logs"} {
		dir, ok := settings[key]
		if !ok {
			continue
		}
		if err := os.MkdirAll(dir, 0750); err != nil {
			return err
		}
	}
	if dir, ok := settings["path.data"]; ok {
		return os.WriteFile(filepath.Join(dir, "node.lock"), nil, 0600)
	}
	return nil
}

// forkChild starts a copy of this program that hangs, so tests can check that the whole
// process group is killed.
func forkChild() error {
	self, err := os.Executable()
	if err != nil {
		return err
	}
	//#nosec:G204 // re-executing ourselves
	cmd := exec.Command(self)
	cmd.Env = append(os.Environ(), "FAKESERVER_MODE="+modeHang)
	err = cmd.Start()
	if err != nil {
		return err
	}
	fmt.Printf("child pid %d\n", cmd.Process.Pid)
	return nil
}
