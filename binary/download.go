package binary

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/esmem/esmem/download"
	"github.com/esmem/esmem/o11y"
)

const DefaultVersion = "7.17.9"

// Download fetches a server distribution, caches it under CacheDir and returns the
// executable inside it. It steps aside (ErrNotFound) when an explicit binary is configured.
type Download struct {
	// Version of the distribution, DefaultVersion when empty.
	Version string
	// URL of the tar.gz distribution. When empty it is derived from Version, OS and arch.
	URL string
	// CacheDir holds downloaded archives and their extraction. Defaults to the user cache dir.
	CacheDir string
	// Timeout bounds the whole download including retries.
	Timeout time.Duration
}

func (d Download) Resolve(ctx context.Context, cfg Config) (_ string, err error) {
	if cfg.Binary != "" {
		return "", fmt.Errorf("%w: explicit binary %q is not downloaded", ErrNotFound, cfg.Binary)
	}

	ctx, span := o11y.StartSpan(ctx, "binary: download")
	defer o11y.End(span, &err)

	rawURL, err := d.url()
	if err != nil {
		return "", err
	}
	span.AddField("url", rawURL)

	cacheDir, err := d.cacheDir()
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrDownload, err)
	}
	span.AddField("cache_dir", cacheDir)

	timeout := d.Timeout
	if timeout == 0 {
		timeout = 10 * time.Minute
	}
	dl, err := download.NewDownloader(timeout, cacheDir)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrDownload, err)
	}

	archive, err := dl.Download(ctx, rawURL, 0600)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrDownload, err)
	}

	dir := strings.TrimSuffix(archive, ".tar.gz")
	if dir == archive {
		dir = archive + ".d"
	}
	err = download.ExtractTarGz(ctx, archive, dir)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrDownload, err)
	}

	bin, err := findExecutable(dir)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrDownload, err)
	}
	return Path{}.Resolve(ctx, Config{Binary: bin})
}

func (d Download) url() (string, error) {
	if d.URL != "" {
		return d.URL, nil
	}
	version := d.Version
	if version == "" {
		version = DefaultVersion
	}
	return DistributionURL(version, runtime.GOOS, runtime.GOARCH)
}

func (d Download) cacheDir() (string, error) {
	if d.CacheDir != "" {
		return d.CacheDir, nil
	}
	dir, err := os.UserCacheDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "esmem"), nil
}

// DistributionURL is the official artifact URL for a version on a platform.
func DistributionURL(version, goos, goarch string) (string, error) {
	var arch string
	switch goarch {
	case "amd64":
		arch = "x86_64"
	case "arm64":
		arch = "aarch64"
	default:
		return "", fmt.Errorf("%w: unsupported architecture %q", ErrNotFound, goarch)
	}
	switch goos {
	case "linux", "darwin":
	default:
		return "", fmt.Errorf("%w: unsupported platform %q", ErrNotFound, goos)
	}
	return fmt.Sprintf("https://artifacts.elastic.co/downloads/elasticsearch/elasticsearch-%s-%s-%s.tar.gz",
		version, goos, arch), nil
}

// findExecutable looks for bin/elasticsearch at the root of the extraction or one level down,
// which is where the official archives put it.
func findExecutable(dir string) (string, error) {
	for _, pattern := range []string{
		filepath.Join(dir, "bin", "elasticsearch"),
		filepath.Join(dir, "*", "bin", "elasticsearch"),
	} {
		matches, err := filepath.Glob(pattern)
		if err != nil {
			return "", err
		}
		if len(matches) > 0 {
			return matches[0], nil
		}
	}
	return "", fmt.Errorf("no bin/elasticsearch in %q", dir)
}
