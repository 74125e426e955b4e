package download

import (
	"archive/tar"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"

	"github.com/esmem/esmem/closer"
	"github.com/esmem/esmem/o11y"
)

var ErrUnsafePath = errors.New("archive entry escapes the target directory")

// ExtractTarGz unpacks the gzipped tarball at archive into dir. The contents are written to a
// sibling temporary directory first and renamed into place, so dir either holds a complete
// extraction or does not exist. An existing dir is left untouched and treated as done.
func ExtractTarGz(ctx context.Context, archive, dir string) (err error) {
	ctx, span := o11y.StartSpan(ctx, "download: extract")
	defer o11y.End(span, &err)
	span.AddField("archive", archive)
	span.AddField("dir", dir)

	if fi, err := os.Stat(dir); err == nil && fi.IsDir() {
		span.AddField("cached", true)
		return nil
	}

	tmp, err := os.MkdirTemp(filepath.Dir(dir), filepath.Base(dir)+".tmp-")
	if err != nil {
		return fmt.Errorf("could not create extraction dir: %w", err)
	}
	defer func() {
		if err != nil {
			_ = os.RemoveAll(tmp)
		}
	}()

	err = extract(ctx, archive, tmp)
	if err != nil {
		return err
	}

	err = os.Rename(tmp, dir)
	if err != nil {
		// another process finished the same extraction first
		if fi, serr := os.Stat(dir); serr == nil && fi.IsDir() {
			_ = os.RemoveAll(tmp)
			return nil
		}
		return err
	}
	return nil
}

func extract(ctx context.Context, archive, dir string) (err error) {
	f, err := os.Open(archive) //#nosec:G304 // the archive is one we downloaded
	if err != nil {
		return err
	}
	defer closer.ErrorHandler(f, &err)

	zr, err := gzip.NewReader(f)
	if err != nil {
		return fmt.Errorf("could not read gzip stream: %w", err)
	}
	defer closer.ErrorHandler(zr, &err)

	files := 0
	tr := tar.NewReader(zr)
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("could not read tar entry: %w", err)
		}

		target, err := safeJoin(dir, hdr.Name)
		if err != nil {
			return err
		}

		switch hdr.Typeflag {
		case tar.TypeDir:
			err = os.MkdirAll(target, 0755) // #nosec - the distribution is intentionally world-readable
		case tar.TypeReg:
			err = writeFile(target, tr, hdr.FileInfo().Mode().Perm())
			files++
		case tar.TypeSymlink:
			err = writeSymlink(dir, target, hdr.Linkname)
		default:
			// devices, fifos and the like have no place in a server distribution
			continue
		}
		if err != nil {
			return err
		}
	}
	o11y.AddField(ctx, "files", files)
	return nil
}

func writeFile(target string, r io.Reader, perm os.FileMode) (err error) {
	err = os.MkdirAll(filepath.Dir(target), 0755) // #nosec - the distribution is intentionally world-readable
	if err != nil {
		return err
	}
	//#nosec:G304 // target has been checked by safeJoin
	out, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, perm)
	if err != nil {
		return err
	}
	defer closer.ErrorHandler(out, &err)

	_, err = io.Copy(out, r) //#nosec:G110 // the archive comes from a trusted distribution URL
	return err
}

func writeSymlink(root, target, linkname string) error {
	resolved := linkname
	if !filepath.IsAbs(linkname) {
		resolved = filepath.Join(filepath.Dir(target), linkname)
	}
	if !within(root, resolved) {
		return fmt.Errorf("%w: %s -> %s", ErrUnsafePath, target, linkname)
	}
	err := os.MkdirAll(filepath.Dir(target), 0755) // #nosec - the distribution is intentionally world-readable
	if err != nil {
		return err
	}
	return os.Symlink(linkname, target)
}

func safeJoin(root, name string) (string, error) {
	target := filepath.Join(root, filepath.FromSlash(name))
	if !within(root, target) {
		return "", fmt.Errorf("%w: %s", ErrUnsafePath, name)
	}
	return target, nil
}

func within(root, path string) bool {
	rel, err := filepath.Rel(root, filepath.Clean(path))
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}
