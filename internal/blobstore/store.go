// Package blobstore is the durable key to JSON store shared by every invocation.
// It offers last-writer-wins get/put only: no transactions, no compare-and-swap.
package blobstore

import (
	"context"
	"errors"
)

// ErrUnavailable wraps any backend failure so callers can tell a broken store
// apart from a missing key.
var ErrUnavailable = errors.New("blob store unavailable")

type Store interface {
	// GetJSON decodes the blob stored under key into dst. It reports false
	// without error when the key does not exist.
	GetJSON(ctx context.Context, key string, dst any) (bool, error)
	PutJSON(ctx context.Context, key string, v any) error
	Exists(ctx context.Context, key string) (bool, error)
	Delete(ctx context.Context, key string) error
}
