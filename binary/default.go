package binary

import (
	"time"

	"github.com/esmem/esmem/config/env"
)

// Options configures the Default resolver.
type Options struct {
	Binary      string
	Version     string
	DownloadURL string
	CacheDir    string
	// DownloadTimeout bounds fetching a distribution, including retries.
	DownloadTimeout time.Duration
}

// FromEnv overlays ESMEM_* environment variables on o. Malformed values are collected
// and returned together.
func (o Options) FromEnv() (Options, error) {
	l := env.NewLoader()
	o.load(l)
	return o, l.Err()
}

// EnvVars lists the environment variables FromEnv consults, for help output.
func (o Options) EnvVars() env.Vars {
	l := env.NewLoader()
	o.load(l)
	return l.VarsUsed()
}

func (o *Options) load(l *env.Loader) {
	l.String(&o.Binary, "ESMEM_BINARY")
	l.String(&o.Version, "ESMEM_VERSION")
	l.String(&o.DownloadURL, "ESMEM_DOWNLOAD_URL")
	l.String(&o.CacheDir, "ESMEM_CACHE_DIR")
	l.Duration(&o.DownloadTimeout, "ESMEM_DOWNLOAD_TIMEOUT")
}

// Config is the resolver config named by these options.
func (o Options) Config() Config {
	return Config{Binary: o.Binary}
}

// Resolver resolves an explicit path first and falls back to downloading a distribution.
func (o Options) Resolver() Resolver {
	return Chain(
		Path{},
		Download{
			Version:  o.Version,
			URL:      o.DownloadURL,
			CacheDir: o.CacheDir,
			Timeout:  o.DownloadTimeout,
		},
	)
}

// Default is the resolver configured from the environment alone.
func Default() (Resolver, Config, error) {
	o, err := Options{}.FromEnv()
	if err != nil {
		return nil, Config{}, err
	}
	return o.Resolver(), o.Config(), nil
}
