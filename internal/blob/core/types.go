// Package core defines the blob store contract shared by the attachment
// drivers and the persistence coordinator.
package core

import (
	"context"
	"errors"
	"io"
	"time"
)

// Driver identifies a concrete blob storage backend implementation.
type Driver string

const (
	// DriverFilesystem represents the local filesystem implementation.
	DriverFilesystem Driver = "fs" // local filesystem (default)
	// DriverS3 represents an S3 / MinIO compatible implementation.
	DriverS3 Driver = "s3"
	// DriverMemory represents an in-memory implementation typically used in tests.
	DriverMemory Driver = "memory"
	// DriverRedis stores payloads as redis hashes.
	DriverRedis Driver = "redis"
)

// PutOptions specifies optional parameters for Put.
type PutOptions struct {
	ContentType string            // MIME type, optional
	Metadata    map[string]string // User metadata (small, flat key-value)
}

// Info describes a stored blob.
type Info struct {
	Key          string            `json:"key"`
	Size         int64             `json:"size_bytes"`
	ContentType  string            `json:"content_type,omitempty"`
	ETag         string            `json:"etag,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	LastModified time.Time         `json:"last_modified"`
}

// Store maps opaque keys to binary payloads. It knows nothing about patients
// or the state document.
type Store interface {
	// Put writes the payload under key, replacing any previous payload.
	Put(ctx context.Context, key string, r io.Reader, opts PutOptions) (Info, error)
	// Get returns ErrNotFound when key is absent.
	Get(ctx context.Context, key string) (Info, io.ReadCloser, error)
	Head(ctx context.Context, key string) (Info, error)
	// Delete reports whether a payload was removed; absent keys are not an error.
	Delete(ctx context.Context, key string) (bool, error)
	// List returns blobs whose key has the prefix, ordered by key.
	List(ctx context.Context, prefix string) ([]Info, error)
	// ValidateKey returns the error Put would return for key, without
	// touching storage.
	ValidateKey(key string) error
	Driver() Driver
}

// ErrNotFound is returned by Get and Head for absent keys.
var ErrNotFound = errors.New("blobstore: not found")

// ErrInvalidKey wraps every key a driver refuses to store.
var ErrInvalidKey = errors.New("blobstore: invalid key")

// Keys projects a listing to its keys.
func Keys(infos []Info) []string {
	out := make([]string, 0, len(infos))
	for _, info := range infos {
		out = append(out, info.Key)
	}
	return out
}
