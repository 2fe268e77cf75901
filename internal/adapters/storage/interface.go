package storage

import (
	"context"
	"io"
	"time"
)

// FileMetadata represents metadata about a stored file
type FileMetadata struct {
	Key          string    `json:"key"`
	Size         int64     `json:"size"`
	ContentType  string    `json:"content_type"`
	LastModified time.Time `json:"last_modified"`
	ETag         string    `json:"etag,omitempty"`
	CacheControl string    `json:"cache_control,omitempty"`
}

// ListOptions provides options for listing files
type ListOptions struct {
	Prefix     string `json:"prefix,omitempty"`
	MaxResults int    `json:"max_results,omitempty"`
	Marker     string `json:"marker,omitempty"` // For pagination
}

// ListResult represents the result of a list operation
type ListResult struct {
	Files       []FileMetadata `json:"files"`
	NextMarker  string         `json:"next_marker,omitempty"` // For pagination
	IsTruncated bool           `json:"is_truncated"`
}

// StoreOptions provides options for storing files
type StoreOptions struct {
	ContentType  string `json:"content_type,omitempty"`
	CacheControl string `json:"cache_control,omitempty"`
	Overwrite    bool   `json:"overwrite,omitempty"`
}

// FileStorage is where build output lives: prerendered pages read at
// request time, and static assets uploaded at deploy time.
type FileStorage interface {
	// Store saves data under key
	Store(ctx context.Context, key string, data []byte, opts *StoreOptions) error

	// Retrieve reads a whole file
	Retrieve(ctx context.Context, key string) ([]byte, error)

	// Open returns a reader over a file so it can be streamed without
	// buffering. The caller closes the reader.
	Open(ctx context.Context, key string) (io.ReadCloser, *FileMetadata, error)

	// Delete removes a file
	Delete(ctx context.Context, key string) error

	// Exists checks if a file exists at the given key
	Exists(ctx context.Context, key string) (bool, error)

	// GetMetadata returns metadata for a file
	GetMetadata(ctx context.Context, key string) (*FileMetadata, error)

	// List returns files matching the given options
	List(ctx context.Context, opts *ListOptions) (*ListResult, error)

	// Close cleans up any resources used by the storage implementation
	Close() error
}

// StorageConfig represents configuration for storage providers
type StorageConfig struct {
	Type     string `json:"type" yaml:"type"`           // "local", "s3" or "mock"
	BasePath string `json:"base_path" yaml:"base_path"` // For local storage
	Bucket   string `json:"bucket" yaml:"bucket"`       // For S3
	Region   string `json:"region" yaml:"region"`       // For S3
	Prefix   string `json:"prefix" yaml:"prefix"`       // Key prefix inside the bucket
}
