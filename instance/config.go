package instance

import (
	"io"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"
)

const (
	DefaultProbeInterval = 200 * time.Millisecond
	DefaultProbeAttempts = 150
	DefaultProbeTimeout  = time.Second
	DefaultKillTimeout   = 10 * time.Second
)

// Config is the input to a Supervisor. It is not modified once handed over.
type Config struct {
	// IP is the network.host the server binds to. The probe uses 127.0.0.1 when empty.
	IP string
	// Port is the http.port the server listens on. Required.
	Port int
	// DataDir is the root for the server's data and logs directories.
	DataDir string
	// Args are appended verbatim after the generated overrides, so they win on conflict.
	Args []string
	// Binary is passed to the binary resolver as an explicit path.
	Binary string
	// Env overrides variables from the parent environment key by key.
	Env map[string]string

	ProbeInterval time.Duration
	ProbeAttempts int
	// ProbeTimeout bounds a single probe request.
	ProbeTimeout time.Duration
	// KillTimeout is how long Kill waits after SIGTERM before sending SIGKILL.
	KillTimeout time.Duration

	// Output optionally receives the raw stdout and stderr of the process.
	Output io.Writer
}

func (c Config) withDefaults() Config {
	if c.ProbeInterval <= 0 {
		c.ProbeInterval = DefaultProbeInterval
	}
	if c.ProbeAttempts <= 0 {
		c.ProbeAttempts = DefaultProbeAttempts
	}
	if c.ProbeTimeout <= 0 {
		c.ProbeTimeout = DefaultProbeTimeout
	}
	if c.KillTimeout <= 0 {
		c.KillTimeout = DefaultKillTimeout
	}
	return c
}

// DataPath is the path.data directory, or empty when no DataDir is set.
func (c Config) DataPath() string {
	return c.subPath("path")
}

// LogsPath is the path.logs directory, or empty when no DataDir is set.
func (c Config) LogsPath() string {
	return c.subPath("logs")
}

func (c Config) subPath(name string) string {
	if c.DataDir == "" {
		return ""
	}
	dir, err := filepath.Abs(c.DataDir)
	if err != nil {
		dir = filepath.Clean(c.DataDir)
	}
	return filepath.Join(dir, name)
}

// CommandArgs is the argument vector for the server: network.host, http.port,
// path.data and path.logs overrides for the fields that are set, in that order,
// followed by Args.
func (c Config) CommandArgs() []string {
	var args []string
	if c.IP != "" {
		args = append(args, "-E", "network.host="+c.IP)
	}
	if c.Port != 0 {
		args = append(args, "-E", "http.port="+strconv.Itoa(c.Port))
	}
	if c.DataDir != "" {
		args = append(args,
			"-E", "path.data="+c.DataPath(),
			"-E", "path.logs="+c.LogsPath(),
		)
	}
	return append(args, c.Args...)
}

// Environ overlays Env on base, a list of key=value pairs such as os.Environ().
// The result is sorted.
func (c Config) Environ(base []string) []string {
	merged := make(map[string]string, len(base)+len(c.Env))
	for _, kv := range base {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || k == "" {
			continue
		}
		merged[k] = v
	}
	for k, v := range c.Env {
		merged[k] = v
	}

	env := make([]string, 0, len(merged))
	for k, v := range merged {
		env = append(env, k+"="+v)
	}
	sort.Strings(env)
	return env
}

func (c Config) probeHost() string {
	switch c.IP {
	case "", "0.0.0.0", "::":
		return "127.0.0.1"
	}
	return c.IP
}
