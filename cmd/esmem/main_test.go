package main

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"strings"
	"testing"
	"time"

	"gotest.tools/v3/assert"
	"gotest.tools/v3/assert/cmp"
	"gotest.tools/v3/poll"

	"github.com/esmem/esmem/internal/syncbuffer"
	"github.com/esmem/esmem/testing/compiler"
	"github.com/esmem/esmem/testing/kongtest"
)

var fakeServer string

func TestMain(m *testing.M) {
	c := compiler.New()
	var err error
	fakeServer, err = c.Compile(context.Background(), compiler.Work{
		Name:   "elasticsearch",
		Target: "../..",
		Source: "./internal/fakeserver",
	})
	if err != nil {
		c.Cleanup()
		fmt.Println("failed to compile the fake server:", err)
		os.Exit(1)
	}

	code := m.Run()
	c.Cleanup()
	os.Exit(code)
}

func TestHelp(t *testing.T) {
	c := cli{}
	s := kongtest.Help(t, &c)
	for _, flag := range []string{"--port=", "--data-dir=", "--binary=", "--es-version=", "--admin-addr=", "$ESMEM_CACHE_DIR"} {
		assert.Check(t, cmp.Contains(s, flag))
	}
	assert.Check(t, cmp.Equal(c.IP, "127.0.0.1"))
	assert.Check(t, cmp.Equal(c.Version, "7.17.9"))
	assert.Check(t, cmp.Equal(c.KillTimeout, 10*time.Second))
}

func TestRun(t *testing.T) {
	c := cli{}
	kongtest.Parse(t, &c, []string{
		"--env=FAKESERVER_MODE=silent",
		"--o11y-format=none",
		"--", "-E", "cluster.name=from-cli",
	}, map[string]string{
		"ESMEM_BINARY": fakeServer,
	})
	assert.Check(t, cmp.DeepEqual(c.Args, []string{"-E", "cluster.name=from-cli"}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stdout := &syncbuffer.SyncBuffer{}
	runErr := make(chan error, 1)
	go func() {
		runErr <- run(ctx, c, stdout, io.Discard)
	}()

	var uri string
	poll.WaitOn(t, func(poll.LogT) poll.Result {
		uri = strings.TrimSpace(stdout.String())
		if uri != "" {
			return poll.Success()
		}
		select {
		case err := <-runErr:
			return poll.Error(fmt.Errorf("run returned early: %v", err))
		default:
		}
		return poll.Continue("waiting for the uri")
	}, poll.WithTimeout(30*time.Second))

	// #nosec - test server
	res, err := http.Get(uri + "/")
	assert.Assert(t, err)
	body, err := io.ReadAll(res.Body)
	assert.Check(t, err)
	assert.Check(t, res.Body.Close())
	assert.Check(t, cmp.Contains(string(body), `"cluster_name":"from-cli"`))

	cancel()
	select {
	case err := <-runErr:
		assert.Check(t, err)
	case <-time.After(20 * time.Second):
		t.Fatal("run did not return")
	}

	host := strings.TrimPrefix(uri, "http://")
	l, err := net.Listen("tcp", host)
	assert.Assert(t, err)
	assert.Check(t, l.Close())
}
