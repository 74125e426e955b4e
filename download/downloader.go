/*
Package download fetches server distributions into a local cache directory and
unpacks them.
*/
package download

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/esmem/esmem/closer"
	"github.com/esmem/esmem/httpclient"
	"github.com/esmem/esmem/o11y"
)

type Downloader struct {
	dir                    string
	client                 *httpclient.Client
	downloadAttemptTimeout time.Duration
}

type Option func(d *Downloader)

// NewDownloader creates a downloader whose files are stored under dir. The timeout bounds
// each Download including retries.
func NewDownloader(timeout time.Duration, dir string, options ...Option) (*Downloader, error) {
	dir, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("could not absolutify downloader dir: %w", err)
	}

	err = os.MkdirAll(dir, 0755) // #nosec - the downloads are intentionally world-readable
	if err != nil {
		return nil, fmt.Errorf("could not create download dir: %w", err)
	}

	downloader := &Downloader{
		dir: dir,
		client: httpclient.New(httpclient.Config{
			Name:    "downloader",
			Timeout: timeout,
		}),
	}

	for _, option := range options {
		option(downloader)
	}

	return downloader, nil
}

func AttemptTimeout(timeout time.Duration) Option {
	return func(d *Downloader) {
		d.downloadAttemptTimeout = timeout
	}
}

// Dir is the absolute root of the download cache.
func (d *Downloader) Dir() string {
	return d.dir
}

// Download downloads the file from the rawURL, to a location rooted at the location specified when constructing
// the downloader nested to a file location based on the path part of the rawURL.
// An already downloaded file is returned without contacting the server.
func (d *Downloader) Download(ctx context.Context, rawURL string, perm os.FileMode) (_ string, err error) {
	ctx, span := o11y.StartSpan(ctx, "download: download")
	defer o11y.End(span, &err)
	span.AddField("url", rawURL)

	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("cannot parse URL: %w", err)
	}

	target := d.TargetPath(u)
	tmp := target + ".tmp"

	defer func() {
		cleanup := func() {
			_ = os.Remove(tmp)
		}

		// Don't leave half-downloaded files hanging around
		if p := recover(); p != nil {
			cleanup()
			panic(p)
		} else if err != nil {
			cleanup()
		}
	}()

	if isCached(ctx, target) {
		span.AddField("cached", true)
		return target, nil
	}
	span.AddField("cached", false)

	err = d.downloadFile(ctx, u.String(), tmp, perm)
	if err != nil {
		return "", err
	}

	err = os.Rename(tmp, target)
	if err != nil {
		return "", err
	}

	return target, nil
}

// Remove removes any file that the downloader had previously downloaded from the rawURL
func (d *Downloader) Remove(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("cannot parse URL: %w", err)
	}
	err = os.Remove(d.TargetPath(u))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

// TargetPath is where a download of u is stored.
func (d *Downloader) TargetPath(u *url.URL) string {
	return filepath.Join(d.dir, filepath.FromSlash(u.Path))
}

func isCached(ctx context.Context, target string) bool {
	info, err := os.Stat(target)
	if err != nil {
		if !os.IsNotExist(err) {
			o11y.AddField(ctx, "downloader_error", err)
		}
		return false
	}
	return !info.IsDir()
}

func (d *Downloader) downloadFile(ctx context.Context, url, target string, perm os.FileMode) (err error) {
	err = os.MkdirAll(filepath.Dir(target), 0755) // #nosec - the downloads are intentionally world-readable
	if err != nil {
		return fmt.Errorf("could not create directory: %w", err)
	}

	//#nosec:G304 // the archive is unpacked later, these permissions are needed.
	out, err := os.OpenFile(target, os.O_RDWR|os.O_CREATE|os.O_TRUNC, perm)
	if err != nil {
		return fmt.Errorf("could not create file: %w", err)
	}
	defer closer.ErrorHandler(out, &err)

	timeout := 5 * time.Minute
	if d.downloadAttemptTimeout != 0 {
		timeout = d.downloadAttemptTimeout
	}

	// the url is used as the route directly since it may contain escaped characters
	req := httpclient.Request{Method: "GET", Route: url, Timeout: timeout}
	req.Decoder = func(r io.Reader) error {
		// a retried attempt starts the file again
		if _, err := out.Seek(0, io.SeekStart); err != nil {
			return err
		}
		if err := out.Truncate(0); err != nil {
			return err
		}
		_, err := io.Copy(out, r)
		if err != nil {
			return fmt.Errorf("could not write file %q: %w", target, err)
		}
		return nil
	}

	err = d.client.Call(ctx, req)
	if err != nil {
		return fmt.Errorf("could not get URL %q: %w", url, err)
	}

	return nil
}
