// Package storage defines the common interfaces for blob storage adapters.
// These interfaces abstract storage operations, allowing the pipelines to
// persist model artifacts and exports against different backends
// (e.g., GCS, local file system) through a unified API.
package storage

import (
	"context"
	"io"
)

// StorageExecutor defines generic storage operations.
type StorageExecutor interface {
	// Upload uploads data to the specified bucket and object name.
	// 'data' is the stream of data to upload. 'contentType' is the MIME type of the data.
	Upload(ctx context.Context, bucket, objectName string, data io.Reader, contentType string) error
	// Download downloads data from the specified bucket and object name.
	// It returns a ReadCloser which must be closed by the caller after use.
	Download(ctx context.Context, bucket, objectName string) (io.ReadCloser, error)
	// ListObjects lists objects within the specified bucket and prefix.
	// The 'fn' callback is called for each object name found.
	ListObjects(ctx context.Context, bucket, prefix string, fn func(objectName string) error) error
	// DeleteObject deletes the specified object from the bucket.
	DeleteObject(ctx context.Context, bucket, objectName string) error
}

// StorageConnection represents a blob storage connection.
type StorageConnection interface {
	StorageExecutor

	// Close closes the storage connection.
	Close() error
	// Type returns the storage type (e.g., "local", "gcs").
	Type() string
	// Name returns the connection name (e.g., "artifacts").
	Name() string
}

// StorageProvider manages the acquisition and lifecycle of storage connections.
type StorageProvider interface {
	// GetConnection retrieves a StorageConnection with the specified name.
	GetConnection(name string) (StorageConnection, error)
	// CloseAll closes all connections managed by this provider.
	CloseAll() error
	// Type returns the storage type handled by this provider.
	Type() string
	// ForceReconnect forces the closure and re-establishment of an existing connection with the specified name.
	ForceReconnect(name string) (StorageConnection, error)
}

// StorageProviderGroup is an Fx tag used to group all StorageProvider implementations.
const StorageProviderGroup = `group:"storage_providers"`
