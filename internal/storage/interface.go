package storage

import (
	"context"
	"io"
)

// BlobStorage defines the interface for document blob storage
type BlobStorage interface {
	// Store saves content at the given path
	Store(ctx context.Context, path string, content io.Reader, contentType string) error

	// Retrieve gets content from the given path
	Retrieve(ctx context.Context, path string) (io.ReadCloser, error)

	// Delete removes content at the given path
	Delete(ctx context.Context, path string) error

	// Exists checks if content exists at the given path
	Exists(ctx context.Context, path string) (bool, error)

	// GetSize returns the size of content at the given path
	GetSize(ctx context.Context, path string) (int64, error)

	// List returns paths matching the prefix
	List(ctx context.Context, prefix string) ([]string, error)

	// CreateEmpty creates a zero-length blob at the given path,
	// ready for sequential appends
	CreateEmpty(ctx context.Context, path string) error

	// Append writes content starting at offset, which must equal the blob's
	// current size. Returns the blob size after the write. A failed append
	// leaves the blob at its previous size so the same offset can be retried.
	Append(ctx context.Context, path string, content io.Reader, offset int64) (int64, error)

	// Move renames a blob from src to dst within the store
	Move(ctx context.Context, src, dst string) error
}
