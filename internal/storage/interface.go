package storage

import (
	"context"
	"io"
)

// ContentStore defines the interface for image blob storage. Keys are
// content-addressed by the pipeline (hash-prefixed), so a key never changes
// for a given image.
type ContentStore interface {
	// Upload stores an object under key.
	Upload(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error

	// Download retrieves an object by key.
	Download(ctx context.Context, key string) (io.ReadCloser, error)

	// GetURL returns the public URL for accessing an object.
	GetURL(key string) string

	// Delete removes an object by key.
	Delete(ctx context.Context, key string) error

	// Exists checks if an object exists.
	Exists(ctx context.Context, key string) (bool, error)
}
