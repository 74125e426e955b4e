package instance

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"os/exec"
	"regexp"
	"strconv"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/esmem/esmem/binary"
	"github.com/esmem/esmem/httpclient"
	"github.com/esmem/esmem/internal/syncbuffer"
	"github.com/esmem/esmem/o11y"
)

var startedPattern = regexp.MustCompile(`(?i)started`)

const (
	readyByStdout = "stdout"
	readyByHTTP   = "http"
)

// Supervisor owns exactly one server process, from spawn to exit.
type Supervisor struct {
	resolver binary.Resolver
	cfg      Config
	logs     *syncbuffer.SyncBuffer
	done     chan struct{}

	mu      sync.Mutex
	ran     bool
	cmd     *exec.Cmd
	ready   bool
	readyBy string
	exitErr error
}

func New(resolver binary.Resolver, cfg Config) *Supervisor {
	return &Supervisor{
		resolver: resolver,
		cfg:      cfg.withDefaults(),
		logs:     &syncbuffer.SyncBuffer{},
		done:     make(chan struct{}),
	}
}

// settlement is the one-shot outcome of the readiness race. Only the first call
// to settle is observed.
type settlement struct {
	once sync.Once
	done chan struct{}
	by   string
	err  error
}

func newSettlement() *settlement {
	return &settlement{done: make(chan struct{})}
}

func (s *settlement) settle(by string, err error) {
	s.once.Do(func() {
		s.by = by
		s.err = err
		close(s.done)
	})
}

func (s *settlement) settled() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

// Run starts the server and blocks until it is ready, fails to start, or ctx is done.
// The process is killed before any error is returned.
func (s *Supervisor) Run(ctx context.Context) (err error) {
	logCtx := ctx
	ctx, span := o11y.StartSpan(ctx, "instance: run")
	defer o11y.End(span, &err)
	span.RecordMetric(o11y.Timing("instance.run", "result", "ready_by"))

	s.mu.Lock()
	if s.ran {
		s.mu.Unlock()
		return ErrAlreadyRun
	}
	s.ran = true
	s.mu.Unlock()

	cfg := s.cfg
	span.AddField("ip", cfg.IP)
	span.AddField("port", cfg.Port)
	span.AddField("data_dir", cfg.DataDir)
	if cfg.Port == 0 {
		return errors.New("instance: port is required")
	}

	bin, err := s.resolver.Resolve(ctx, binary.Config{Binary: cfg.Binary})
	if err != nil {
		return fmt.Errorf("instance: resolve binary: %w", err)
	}
	span.AddField("binary", bin)

	st := newSettlement()

	//#nosec:G204 // running the configured server binary is the point
	cmd := exec.Command(bin, cfg.CommandArgs()...)
	cmd.Env = cfg.Environ(os.Environ())
	cmd.WaitDelay = time.Second
	setProcessGroup(cmd)

	stdoutLines := &lineWriter{fn: func(line string) {
		if startedPattern.MatchString(line) {
			st.settle(readyByStdout, nil)
		}
	}}
	stderrLines := &lineWriter{fn: func(line string) {
		o11y.Log(logCtx, "instance: stderr", o11y.Field("line", line))
	}}
	cmd.Stdout = s.outputs(stdoutLines)
	cmd.Stderr = s.outputs(stderrLines)

	err = cmd.Start()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrSpawn, err)
	}
	span.AddRawField("process.pid", cmd.Process.Pid)

	s.mu.Lock()
	s.cmd = cmd
	s.mu.Unlock()

	go func() {
		waitErr := cmd.Wait()
		stdoutLines.Flush()
		stderrLines.Flush()

		s.mu.Lock()
		s.exitErr = waitErr
		s.mu.Unlock()
		close(s.done)

		st.settle("", fmt.Errorf("%w: %s\n%s", ErrPrematureExit, cmd.ProcessState, s.logs.Tail(20)))
	}()

	probeCtx, cancelProbe := context.WithCancel(ctx)
	probeDone := make(chan struct{})
	go func() {
		defer close(probeDone)
		attempts, err := s.probe(probeCtx, cfg, st)
		if probeCtx.Err() != nil || st.settled() {
			return
		}
		if err != nil {
			// the last probe error is context only; a probe deadline must not read as cancellation
			st.settle("", fmt.Errorf("%w: after %d probe attempts: %v", ErrReadinessTimeout, attempts, err))
			return
		}
		st.settle(readyByHTTP, nil)
	}()

	select {
	case <-st.done:
		err = st.err
	case <-ctx.Done():
		err = ctx.Err()
	}
	cancelProbe()
	<-probeDone

	if err != nil {
		_ = s.Kill(context.WithoutCancel(ctx))
		return err
	}

	s.mu.Lock()
	s.ready = true
	s.readyBy = st.by
	s.mu.Unlock()
	span.AddRawField("ready_by", st.by)
	return nil
}

func (s *Supervisor) outputs(lines io.Writer) io.Writer {
	writers := []io.Writer{s.logs, lines}
	if s.cfg.Output != nil {
		writers = append(writers, s.cfg.Output)
	}
	return io.MultiWriter(writers...)
}

var errSettled = errors.New("readiness already settled")

// probe polls the server root until it answers 2xx, the attempt budget is spent, or the
// race is settled by the other detector. Failed requests are expected while the server
// initialises and are simply retried.
func (s *Supervisor) probe(ctx context.Context, cfg Config, st *settlement) (attempts int, err error) {
	base := "http://" + net.JoinHostPort(cfg.probeHost(), strconv.Itoa(cfg.Port))
	client := httpclient.New(httpclient.Config{
		Name:                  "instance-probe",
		BaseURL:               base,
		DisableRetries:        true,
		MaxConnectionsPerHost: 1,
	})
	defer client.CloseIdleConnections()

	deadline := time.Duration(cfg.ProbeAttempts)*cfg.ProbeInterval + cfg.ProbeTimeout
	ctx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	bo := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(cfg.ProbeInterval), uint64(cfg.ProbeAttempts-1)),
		ctx,
	)
	err = backoff.Retry(func() error {
		if st.settled() {
			return backoff.Permanent(errSettled)
		}
		attempts++
		return client.Call(ctx, httpclient.NewRequest("GET", "/", cfg.ProbeTimeout))
	}, bo)
	return attempts, err
}

// Kill stops the process and waits for it to exit. It is a no-op if the process was
// never started or has already exited. SIGTERM goes to the whole process group first;
// SIGKILL follows after Config.KillTimeout or as soon as ctx is done.
func (s *Supervisor) Kill(ctx context.Context) (err error) {
	s.mu.Lock()
	cmd := s.cmd
	s.mu.Unlock()
	if cmd == nil {
		return nil
	}
	select {
	case <-s.done:
		return nil
	default:
	}

	ctx, span := o11y.StartSpan(ctx, "instance: kill")
	defer o11y.End(span, &err)
	span.AddRawField("process.pid", cmd.Process.Pid)

	if err := terminate(cmd); err != nil && !errors.Is(err, os.ErrProcessDone) {
		span.AddField("terminate_error", err)
	}

	timer := time.NewTimer(s.cfg.KillTimeout)
	defer timer.Stop()
	select {
	case <-s.done:
		span.AddField("signal", "term")
		return nil
	case <-timer.C:
	case <-ctx.Done():
	}

	span.AddField("signal", "kill")
	if err := forceKill(cmd); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return fmt.Errorf("instance: kill %d: %w", cmd.Process.Pid, err)
	}
	<-s.done
	return nil
}

// Ready reports whether Run observed readiness.
func (s *Supervisor) Ready() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ready
}

// ReadyBy names the detector that won the readiness race, "stdout" or "http".
func (s *Supervisor) ReadyBy() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readyBy
}

// Logs returns everything the process has written to stdout and stderr so far.
func (s *Supervisor) Logs() string {
	return s.logs.String()
}

// Pid is the process id, or 0 if the process was never started.
func (s *Supervisor) Pid() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cmd == nil || s.cmd.Process == nil {
		return 0
	}
	return s.cmd.Process.Pid
}

// Done is closed once a started process has exited.
func (s *Supervisor) Done() <-chan struct{} {
	return s.done
}

// ExitErr is the result of waiting on the exited process.
func (s *Supervisor) ExitErr() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.exitErr
}

// Config returns the configuration with defaults applied.
func (s *Supervisor) Config() Config {
	return s.cfg
}
