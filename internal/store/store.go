// Package store defines the object store collaborator that holds original
// assets and resized variants.
package store

import (
	"context"
	"errors"
)

var (
	ErrNotFound = errors.New("object not found")
	// ErrUnavailable marks transient store failures that survived retries.
	ErrUnavailable = errors.New("object store unavailable")
)

// Object is a stored blob with the headers it was written with.
type Object struct {
	Key          string
	Data         []byte
	ContentType  string
	CacheControl string
	ETag         string
}

type PutOptions struct {
	ContentType  string
	CacheControl string
}

// ObjectStore is the only I/O boundary of the resize pipeline. Put must
// replace or create the key atomically.
type ObjectStore interface {
	Get(ctx context.Context, key string) (*Object, error)
	Put(ctx context.Context, key string, data []byte, opts PutOptions) error
}
