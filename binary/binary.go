/*
Package binary resolves the path of the search server executable.

A Resolver turns a Config into the path of something that can be executed. The
instance package only depends on that contract; Default provides the usual chain
of an explicit path followed by a cached download.
*/
package binary

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrNotFound means a resolver had nothing to offer for the config. Chain moves
	// on to the next resolver when it sees it.
	ErrNotFound = errors.New("search server binary not found")
	// ErrDownload is returned when a distribution could not be fetched or unpacked.
	ErrDownload = errors.New("search server download failed")
)

// Config describes the binary wanted by a caller.
type Config struct {
	// Binary is an explicit path, or a name looked up on PATH.
	Binary string
}

type Resolver interface {
	Resolve(ctx context.Context, cfg Config) (string, error)
}

// ResolverFunc adapts a func to a Resolver
type ResolverFunc func(ctx context.Context, cfg Config) (string, error)

func (f ResolverFunc) Resolve(ctx context.Context, cfg Config) (string, error) {
	return f(ctx, cfg)
}

// Chain tries each resolver in order. The first one that does not fail with ErrNotFound
// decides the result. If all of them report ErrNotFound the joined errors are returned.
func Chain(resolvers ...Resolver) Resolver {
	return ResolverFunc(func(ctx context.Context, cfg Config) (string, error) {
		var errs []error
		for _, r := range resolvers {
			p, err := r.Resolve(ctx, cfg)
			if err == nil {
				return p, nil
			}
			if !errors.Is(err, ErrNotFound) {
				return "", err
			}
			errs = append(errs, err)
		}
		if len(errs) == 0 {
			return "", fmt.Errorf("%w: no resolvers configured", ErrNotFound)
		}
		return "", errors.Join(errs...)
	})
}
