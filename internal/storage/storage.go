// Package storage stores uploaded files and export output.
package storage

import (
	"context"
	"errors"
	"io"
)

var ErrObjectNotFound = errors.New("object not found")

type ObjectStorage interface {
	// Put writes r to path and returns a location for the stored object.
	Put(ctx context.Context, path string, r io.Reader) (string, error)
	Open(ctx context.Context, path string) (io.ReadCloser, error)
	Delete(ctx context.Context, path string) error
}
