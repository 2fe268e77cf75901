package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"
)

// MockFileStorage is an in-memory FileStorage. It also serves as the
// "mock" storage type for local experiments.
type MockFileStorage struct {
	mu       sync.RWMutex
	files    map[string]*mockFile
	failures []error
}

type mockFile struct {
	data         []byte
	contentType  string
	cacheControl string
	lastModified time.Time
	etag         string
}

// NewMockFileStorage creates an empty MockFileStorage
func NewMockFileStorage() *MockFileStorage {
	return &MockFileStorage{
		files: make(map[string]*mockFile),
	}
}

// FailNext queues errors returned by the next calls, one per call,
// regardless of the operation.
func (m *MockFileStorage) FailNext(errs ...error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures = append(m.failures, errs...)
}

func (m *MockFileStorage) popFailure() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.failures) == 0 {
		return nil
	}
	err := m.failures[0]
	m.failures = m.failures[1:]
	return err
}

// Store implements FileStorage.Store
func (m *MockFileStorage) Store(ctx context.Context, key string, data []byte, opts *StoreOptions) error {
	if err := validateKey(key); err != nil {
		return NewStorageError("Store", key, err, false)
	}
	if err := m.popFailure(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if opts != nil && !opts.Overwrite {
		if _, exists := m.files[key]; exists {
			return NewStorageError("Store", key, ErrFileAlreadyExists, false)
		}
	}

	contentType := ContentTypeFor(key)
	var cacheControl string
	if opts != nil {
		if opts.ContentType != "" {
			contentType = opts.ContentType
		}
		cacheControl = opts.CacheControl
	}

	now := time.Now()
	m.files[key] = &mockFile{
		data:         append([]byte(nil), data...),
		contentType:  contentType,
		cacheControl: cacheControl,
		lastModified: now,
		etag:         fmt.Sprintf("%d-%d", len(data), now.UnixNano()),
	}

	return nil
}

// Retrieve implements FileStorage.Retrieve
func (m *MockFileStorage) Retrieve(ctx context.Context, key string) ([]byte, error) {
	file, err := m.lookup("Retrieve", key)
	if err != nil {
		return nil, err
	}
	return append([]byte(nil), file.data...), nil
}

// Open implements FileStorage.Open
func (m *MockFileStorage) Open(ctx context.Context, key string) (io.ReadCloser, *FileMetadata, error) {
	file, err := m.lookup("Open", key)
	if err != nil {
		return nil, nil, err
	}
	data := append([]byte(nil), file.data...)
	return io.NopCloser(bytes.NewReader(data)), file.metadata(key), nil
}

// Delete implements FileStorage.Delete
func (m *MockFileStorage) Delete(ctx context.Context, key string) error {
	if _, err := m.lookup("Delete", key); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.files, key)
	return nil
}

// Exists implements FileStorage.Exists
func (m *MockFileStorage) Exists(ctx context.Context, key string) (bool, error) {
	_, err := m.lookup("Exists", key)
	if IsNotFound(err) {
		return false, nil
	}
	return err == nil, err
}

// GetMetadata implements FileStorage.GetMetadata
func (m *MockFileStorage) GetMetadata(ctx context.Context, key string) (*FileMetadata, error) {
	file, err := m.lookup("GetMetadata", key)
	if err != nil {
		return nil, err
	}
	return file.metadata(key), nil
}

// List implements FileStorage.List
func (m *MockFileStorage) List(ctx context.Context, opts *ListOptions) (*ListResult, error) {
	if opts == nil {
		opts = &ListOptions{}
	}
	if err := m.popFailure(); err != nil {
		return nil, err
	}

	maxResults := opts.MaxResults
	if maxResults <= 0 {
		maxResults = 1000
	}

	m.mu.RLock()
	var files []FileMetadata
	for key, file := range m.files {
		if opts.Prefix != "" && !strings.HasPrefix(key, opts.Prefix) {
			continue
		}
		if opts.Marker != "" && key <= opts.Marker {
			continue
		}
		files = append(files, *file.metadata(key))
	}
	m.mu.RUnlock()

	sort.Slice(files, func(i, j int) bool { return files[i].Key < files[j].Key })

	result := &ListResult{Files: files}
	if len(files) > maxResults {
		result.Files = files[:maxResults]
		result.IsTruncated = true
		result.NextMarker = result.Files[maxResults-1].Key
	}

	return result, nil
}

// Close implements FileStorage.Close
func (m *MockFileStorage) Close() error {
	m.Reset()
	return nil
}

// Reset clears all stored files and queued failures
func (m *MockFileStorage) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files = make(map[string]*mockFile)
	m.failures = nil
}

// FileCount returns the number of stored files
func (m *MockFileStorage) FileCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.files)
}

// HasFile checks if a file exists (without error handling)
func (m *MockFileStorage) HasFile(key string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, exists := m.files[key]
	return exists
}

func (m *MockFileStorage) lookup(op, key string) (*mockFile, error) {
	if err := validateKey(key); err != nil {
		return nil, NewStorageError(op, key, err, false)
	}
	if err := m.popFailure(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	file, exists := m.files[key]
	if !exists {
		return nil, NewStorageError(op, key, ErrFileNotFound, false)
	}
	return file, nil
}

func (f *mockFile) metadata(key string) *FileMetadata {
	return &FileMetadata{
		Key:          key,
		Size:         int64(len(f.data)),
		ContentType:  f.contentType,
		CacheControl: f.cacheControl,
		LastModified: f.lastModified,
		ETag:         f.etag,
	}
}
