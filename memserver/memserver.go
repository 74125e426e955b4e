package memserver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"sync"

	"github.com/esmem/esmem/binary"
	"github.com/esmem/esmem/instance"
	"github.com/esmem/esmem/o11y"
	"github.com/esmem/esmem/registry"
)

const (
	DefaultIP = "127.0.0.1"
	// TempDirPattern names the data directories allocated for sessions.
	TempDirPattern = "elastic-mem-"
)

var (
	ErrAlreadyStarted = errors.New("memserver: already started")
	ErrNotStarted     = errors.New("memserver: not started")
)

type Options struct {
	// Instance is the base configuration of the server. Port 0 means any free port and an
	// empty DataDir means a temporary directory owned by the session.
	Instance instance.Config
	// Resolver finds the server binary. binary.Default is used when nil.
	Resolver binary.Resolver
	// Registry, when set, tracks the session from a successful Start until Stop.
	Registry *registry.Registry
	// Name identifies the server in the registry and in traces.
	Name string
}

// Info describes a running session.
type Info struct {
	Port    int
	IP      string
	DataDir string
	// TempDir is true when DataDir was allocated by the session and is removed on Stop.
	TempDir  bool
	URI      string
	Instance *instance.Supervisor
}

type session struct {
	done chan struct{}
	info Info
	err  error
}

type Server struct {
	opts Options

	// stopMu serialises Stop so a session is torn down once.
	stopMu sync.Mutex

	mu         sync.Mutex
	current    *session
	deregister func()
}

func New(opts Options) *Server {
	if opts.Name == "" {
		opts.Name = "memserver"
	}
	return &Server{opts: opts}
}

// Start launches the server and blocks until it is ready.
func (s *Server) Start(ctx context.Context) error {
	_, err := s.start(ctx)
	return err
}

func (s *Server) start(ctx context.Context) (*session, error) {
	s.mu.Lock()
	if s.current != nil {
		s.mu.Unlock()
		return nil, ErrAlreadyStarted
	}
	sess := &session{done: make(chan struct{})}
	s.current = sess
	s.mu.Unlock()

	info, err := s.startInstance(ctx)

	s.mu.Lock()
	sess.info, sess.err = info, err
	if err != nil {
		s.current = nil
	} else if s.opts.Registry != nil {
		s.deregister = s.opts.Registry.Add(s.opts.Name+" "+info.URI, s.Stop)
	}
	close(sess.done)
	s.mu.Unlock()

	return sess, err
}

// EnsureInstance returns the running session, waiting for one that is starting or
// starting one if there is none.
func (s *Server) EnsureInstance(ctx context.Context) (Info, error) {
	for {
		s.mu.Lock()
		sess := s.current
		s.mu.Unlock()

		if sess == nil {
			sess, err := s.start(ctx)
			if errors.Is(err, ErrAlreadyStarted) {
				// lost a race with another start, wait for that one
				continue
			}
			if err != nil {
				return Info{}, err
			}
			return sess.info, nil
		}

		if err := waitFor(ctx, sess); err != nil {
			return Info{}, err
		}
		if sess.err != nil {
			return Info{}, sess.err
		}
		return sess.info, nil
	}
}

// URI is the base URL of the running server, starting it if needed.
func (s *Server) URI(ctx context.Context) (string, error) {
	info, err := s.EnsureInstance(ctx)
	if err != nil {
		return "", err
	}
	return info.URI, nil
}

// Info returns the session once Start has completed successfully.
func (s *Server) Info() (Info, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return Info{}, false
	}
	select {
	case <-s.current.done:
		return s.current.info, s.current.err == nil
	default:
		return Info{}, false
	}
}

// Stop kills the server and waits for it to exit. An in-flight Start is waited for first.
// Stopping a server that is not running does nothing.
func (s *Server) Stop(ctx context.Context) (err error) {
	s.stopMu.Lock()
	defer s.stopMu.Unlock()

	s.mu.Lock()
	sess := s.current
	s.mu.Unlock()
	if sess == nil {
		return nil
	}

	if err := waitFor(ctx, sess); err != nil {
		return err
	}
	if sess.err != nil {
		return nil
	}

	ctx, span := o11y.StartSpan(ctx, "memserver: stop")
	defer o11y.End(span, &err)
	span.AddField("name", s.opts.Name)
	span.AddField("uri", sess.info.URI)

	err = sess.info.Instance.Kill(ctx)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.current = nil
	deregister := s.deregister
	s.deregister = nil
	s.mu.Unlock()

	if deregister != nil {
		deregister()
	}
	if sess.info.TempDir {
		span.AddField("removed_dir", sess.info.DataDir)
		err = os.RemoveAll(sess.info.DataDir)
		if err != nil {
			return fmt.Errorf("memserver: remove data dir: %w", err)
		}
	}
	return nil
}

func (s *Server) startInstance(ctx context.Context) (info Info, err error) {
	ctx, span := o11y.StartSpan(ctx, "memserver: start")
	defer o11y.End(span, &err)
	span.AddField("name", s.opts.Name)

	cfg := s.opts.Instance
	resolver := s.opts.Resolver
	if resolver == nil {
		var bcfg binary.Config
		resolver, bcfg, err = binary.Default()
		if err != nil {
			return Info{}, err
		}
		if cfg.Binary == "" {
			cfg.Binary = bcfg.Binary
		}
	}

	if cfg.IP == "" {
		cfg.IP = DefaultIP
	}
	requested := cfg.Port
	cfg.Port, err = choosePort(cfg.IP, requested)
	if err != nil {
		return Info{}, err
	}
	span.AddField("port", cfg.Port)
	span.AddField("port_requested", requested)

	owned := false
	if cfg.DataDir == "" {
		cfg.DataDir, err = os.MkdirTemp("", TempDirPattern)
		if err != nil {
			return Info{}, fmt.Errorf("memserver: data dir: %w", err)
		}
		owned = true
	}
	span.AddField("data_dir", cfg.DataDir)
	span.AddField("temp_dir", owned)

	sup := instance.New(resolver, cfg)
	err = sup.Run(ctx)
	if err != nil {
		if owned {
			_ = os.RemoveAll(cfg.DataDir)
		}
		return Info{}, err
	}

	return Info{
		Port:     cfg.Port,
		IP:       cfg.IP,
		DataDir:  cfg.DataDir,
		TempDir:  owned,
		URI:      "http://" + net.JoinHostPort(cfg.IP, strconv.Itoa(cfg.Port)),
		Instance: sup,
	}, nil
}

// waitFor blocks until sess has finished starting. A finished session wins over a done ctx.
func waitFor(ctx context.Context, sess *session) error {
	select {
	case <-sess.done:
		return nil
	default:
	}
	select {
	case <-sess.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// choosePort returns requested if it can be bound on ip, otherwise any free port.
func choosePort(ip string, requested int) (int, error) {
	if requested != 0 {
		l, err := net.Listen("tcp", net.JoinHostPort(ip, strconv.Itoa(requested)))
		if err == nil {
			_ = l.Close()
			return requested, nil
		}
	}

	l, err := net.Listen("tcp", net.JoinHostPort(ip, "0"))
	if err != nil {
		return 0, fmt.Errorf("memserver: find free port: %w", err)
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port, nil
}

// HealthChecks reports the server ready while its process is running. Liveness is not
// checked, a stopped server is not a reason to restart the host program.
func (s *Server) HealthChecks() (name string, ready, live func(ctx context.Context) error) {
	return s.opts.Name, func(ctx context.Context) error {
		info, ok := s.Info()
		if !ok {
			return ErrNotStarted
		}
		select {
		case <-info.Instance.Done():
			return fmt.Errorf("memserver: process exited: %v", info.Instance.ExitErr())
		default:
			return nil
		}
	}, nil
}
