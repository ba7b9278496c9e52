// Package storage defines the Backend interface for the sandbox object store.
package storage

import (
	"context"
	"io"
)

// ObjectInfo describes one immediate child of a listed prefix.
type ObjectInfo struct {
	Key      string // full key; prefixes end in "/"
	Size     int64
	IsPrefix bool
}

// Backend is the interface for sandbox storage backends.
// Keys are slash-separated. A prefix is a key ending in "/" (or "" for the
// root) and plays the role of a directory.
//
// Missing objects are reported with errors wrapping fs.ErrNotExist.
type Backend interface {
	// GetObject returns the object body and its size.
	GetObject(ctx context.Context, key string) (io.ReadCloser, int64, error)

	// PutObject creates or replaces the object. size may be -1 when unknown.
	PutObject(ctx context.Context, key string, body io.Reader, size int64) error

	// DeleteObject removes an object. Deleting a missing object is not an error.
	DeleteObject(ctx context.Context, key string) error

	// ObjectExists reports whether an object exists at key.
	ObjectExists(ctx context.Context, key string) (bool, error)

	// List returns the immediate children of prefix.
	List(ctx context.Context, prefix string) ([]ObjectInfo, error)

	// MakePrefix makes an empty prefix visible to List and PrefixExists.
	MakePrefix(ctx context.Context, prefix string) error

	// DeletePrefix removes a prefix and everything below it.
	DeletePrefix(ctx context.Context, prefix string) error

	// PrefixExists reports whether prefix was made or holds any object.
	PrefixExists(ctx context.Context, prefix string) (bool, error)

	// Type returns the backend type identifier ("local", "s3").
	Type() string

	// Close releases any resources held by the backend.
	Close() error
}
