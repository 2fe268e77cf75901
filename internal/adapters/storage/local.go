package storage

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"mime"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// LocalFileStorage serves files from a directory, typically the build
// output shipped in the deployment package.
type LocalFileStorage struct {
	basePath string
}

// NewLocalFileStorage creates a LocalFileStorage rooted at basePath
func NewLocalFileStorage(basePath string) (*LocalFileStorage, error) {
	absPath, err := filepath.Abs(basePath)
	if err != nil {
		return nil, NewStorageError("NewLocalFileStorage", "", err, false)
	}

	// The Lambda task root is read-only, so only create the directory when
	// it is missing.
	if _, err := os.Stat(absPath); os.IsNotExist(err) {
		if err := os.MkdirAll(absPath, 0o755); err != nil {
			return nil, NewStorageError("NewLocalFileStorage", "", err, false)
		}
	}

	return &LocalFileStorage{basePath: absPath}, nil
}

// BasePath returns the absolute root directory
func (l *LocalFileStorage) BasePath() string {
	return l.basePath
}

// Store implements FileStorage.Store
func (l *LocalFileStorage) Store(ctx context.Context, key string, data []byte, opts *StoreOptions) error {
	if err := validateKey(key); err != nil {
		return NewStorageError("Store", key, err, false)
	}

	filePath := l.getFilePath(key)

	if opts != nil && !opts.Overwrite {
		if _, err := os.Stat(filePath); err == nil {
			return NewStorageError("Store", key, ErrFileAlreadyExists, false)
		}
	}

	if err := os.MkdirAll(filepath.Dir(filePath), 0o755); err != nil {
		return NewStorageError("Store", key, err, true)
	}

	// Write to a temp file and rename so readers never see a partial file
	tempPath := filePath + ".tmp"
	if err := os.WriteFile(tempPath, data, 0o644); err != nil {
		return NewStorageError("Store", key, err, true)
	}
	if err := os.Rename(tempPath, filePath); err != nil {
		os.Remove(tempPath)
		return NewStorageError("Store", key, err, true)
	}

	return nil
}

// Retrieve implements FileStorage.Retrieve
func (l *LocalFileStorage) Retrieve(ctx context.Context, key string) ([]byte, error) {
	if err := validateKey(key); err != nil {
		return nil, NewStorageError("Retrieve", key, err, false)
	}

	data, err := os.ReadFile(l.getFilePath(key))
	if err != nil {
		return nil, l.wrapError("Retrieve", key, err)
	}
	return data, nil
}

// Open implements FileStorage.Open
func (l *LocalFileStorage) Open(ctx context.Context, key string) (io.ReadCloser, *FileMetadata, error) {
	if err := validateKey(key); err != nil {
		return nil, nil, NewStorageError("Open", key, err, false)
	}

	f, err := os.Open(l.getFilePath(key))
	if err != nil {
		return nil, nil, l.wrapError("Open", key, err)
	}

	stat, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, nil, l.wrapError("Open", key, err)
	}
	if stat.IsDir() {
		f.Close()
		return nil, nil, NewStorageError("Open", key, ErrFileNotFound, false)
	}

	return f, fileMetadata(key, stat), nil
}

// Delete implements FileStorage.Delete
func (l *LocalFileStorage) Delete(ctx context.Context, key string) error {
	if err := validateKey(key); err != nil {
		return NewStorageError("Delete", key, err, false)
	}

	if err := os.Remove(l.getFilePath(key)); err != nil {
		return l.wrapError("Delete", key, err)
	}
	return nil
}

// Exists implements FileStorage.Exists
func (l *LocalFileStorage) Exists(ctx context.Context, key string) (bool, error) {
	if err := validateKey(key); err != nil {
		return false, NewStorageError("Exists", key, err, false)
	}

	stat, err := os.Stat(l.getFilePath(key))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, NewStorageError("Exists", key, err, true)
	}

	return !stat.IsDir(), nil
}

// GetMetadata implements FileStorage.GetMetadata
func (l *LocalFileStorage) GetMetadata(ctx context.Context, key string) (*FileMetadata, error) {
	if err := validateKey(key); err != nil {
		return nil, NewStorageError("GetMetadata", key, err, false)
	}

	stat, err := os.Stat(l.getFilePath(key))
	if err != nil {
		return nil, l.wrapError("GetMetadata", key, err)
	}
	if stat.IsDir() {
		return nil, NewStorageError("GetMetadata", key, ErrFileNotFound, false)
	}

	return fileMetadata(key, stat), nil
}

// List implements FileStorage.List. Keys are returned in lexical order.
func (l *LocalFileStorage) List(ctx context.Context, opts *ListOptions) (*ListResult, error) {
	if opts == nil {
		opts = &ListOptions{}
	}

	maxResults := opts.MaxResults
	if maxResults <= 0 {
		maxResults = 1000
	}

	var files []FileMetadata
	err := filepath.WalkDir(l.basePath, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || strings.HasSuffix(p, ".tmp") {
			return nil
		}

		rel, err := filepath.Rel(l.basePath, p)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)

		if opts.Prefix != "" && !strings.HasPrefix(key, opts.Prefix) {
			return nil
		}
		if opts.Marker != "" && key <= opts.Marker {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return err
		}
		files = append(files, *fileMetadata(key, info))
		return nil
	})
	if err != nil {
		return nil, NewStorageError("List", "", err, true)
	}

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
func (l *LocalFileStorage) Close() error {
	return nil
}

func (l *LocalFileStorage) getFilePath(key string) string {
	return filepath.Join(l.basePath, filepath.FromSlash(key))
}

func (l *LocalFileStorage) wrapError(op, key string, err error) error {
	if os.IsNotExist(err) {
		return NewStorageError(op, key, ErrFileNotFound, false)
	}
	return NewStorageError(op, key, err, true)
}

// validateKey rejects empty keys and keys that could escape the root
func validateKey(key string) error {
	if key == "" {
		return ErrInvalidKey
	}
	if strings.HasPrefix(key, "/") {
		return ErrInvalidKey
	}
	for _, segment := range strings.Split(key, "/") {
		if segment == ".." {
			return ErrInvalidKey
		}
	}
	return nil
}

// ContentTypeFor guesses a content type from the key's extension
func ContentTypeFor(key string) string {
	if contentType := mime.TypeByExtension(filepath.Ext(key)); contentType != "" {
		return contentType
	}
	return "application/octet-stream"
}

func fileMetadata(key string, info fs.FileInfo) *FileMetadata {
	return &FileMetadata{
		Key:          key,
		Size:         info.Size(),
		ContentType:  ContentTypeFor(key),
		LastModified: info.ModTime(),
		ETag:         fmt.Sprintf("%d-%d", info.Size(), info.ModTime().Unix()),
	}
}
