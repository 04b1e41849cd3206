// Package storage defines the object-store abstraction the pipeline uses
// for input batches, checkpoints, and output tables. The core is agnostic
// to whether a path lives on the local filesystem or a remote object
// store; both sides implement ObjectStore.
package storage

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Get when no object exists at the path.
var ErrNotFound = errors.New("storage: object not found")

// ObjectStore reads and writes whole objects by path. Put must be
// all-or-nothing: after an error the previous object content, if any,
// must still be readable.
type ObjectStore interface {
	Get(ctx context.Context, path string) ([]byte, error)
	Put(ctx context.Context, path string, data []byte) error
	List(ctx context.Context, prefix string) ([]string, error)
}
