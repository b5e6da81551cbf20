// Package storage provides the hierarchical blob store the pipeline
// persists staged bytes, artifacts and metadata into. Keys are
// slash-separated strings such as "staging/{docID}/invoice.pdf".
package storage

import (
	"context"
	"errors"
)

// ErrNotFound is returned by GetBytes for absent keys.
var ErrNotFound = errors.New("storage: key not found")

// Store is the behavior the pipeline depends on.
type Store interface {
	PutBytes(ctx context.Context, key string, data []byte) error
	GetBytes(ctx context.Context, key string) ([]byte, error)
	Exists(ctx context.Context, key string) (bool, error)
	ListPrefix(ctx context.Context, prefix string) ([]string, error)
}
