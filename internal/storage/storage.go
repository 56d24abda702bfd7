// Package storage reads and writes dataset objects (partition shards and
// their metadata) in a bucket-like namespace addressed by slash-separated
// object paths.
package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Common errors for storage operations.
var (
	ErrObjectNotFound = errors.New("object not found")
	ErrInvalidPath    = errors.New("invalid object path")
	ErrUploadFailed   = errors.New("upload failed")
	ErrDownloadFailed = errors.New("download failed")
	ErrDeleteFailed   = errors.New("delete failed")
)

// ObjectStorage abstracts the object store holding the dataset.
// Implementations are the local filesystem and S3.
type ObjectStorage interface {
	// Upload copies the file at localPath to objectPath.
	Upload(ctx context.Context, localPath, objectPath string) error

	// Download copies objectPath to the file at localPath.
	Download(ctx context.Context, objectPath, localPath string) error

	// Read returns the full content of a small object such as metadata.json.
	Read(ctx context.Context, objectPath string) ([]byte, error)

	// Write replaces objectPath with data.
	Write(ctx context.Context, objectPath string, data []byte) error

	// Delete removes an object. Deleting a missing object is not an error.
	Delete(ctx context.Context, objectPath string) error

	// Exists reports whether an object exists.
	Exists(ctx context.Context, objectPath string) (bool, error)

	// ListObjects returns the object paths under prefix in lexical order.
	ListObjects(ctx context.Context, prefix string) ([]string, error)
}

// cleanObjectPath validates an object path. Paths are relative, use "/"
// separators and may not escape the namespace.
func cleanObjectPath(objectPath string) (string, error) {
	p := strings.TrimPrefix(objectPath, "/")
	if p == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidPath)
	}
	for _, seg := range strings.Split(p, "/") {
		if seg == ".." || seg == "." || seg == "" {
			return "", fmt.Errorf("%w: %q", ErrInvalidPath, objectPath)
		}
	}
	return p, nil
}
