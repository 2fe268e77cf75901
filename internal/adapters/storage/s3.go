package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
)

// S3API is the subset of the S3 client used by S3FileStorage
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// S3FileStorage stores files in an S3 bucket, optionally under a key prefix
type S3FileStorage struct {
	client S3API
	bucket string
	prefix string
}

// NewS3FileStorage creates an S3FileStorage with the default credential
// chain. An empty region falls back to the SDK's resolution.
func NewS3FileStorage(ctx context.Context, bucket, region, prefix string) (*S3FileStorage, error) {
	if bucket == "" {
		return nil, NewStorageError("NewS3FileStorage", "", errors.New("bucket is required"), false)
	}

	var opts []func(*awsconfig.LoadOptions) error
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, NewStorageError("NewS3FileStorage", "", fmt.Errorf("load aws config: %w", err), false)
	}

	return NewS3FileStorageWithClient(s3.NewFromConfig(cfg), bucket, prefix), nil
}

// NewS3FileStorageWithClient creates an S3FileStorage around an existing client
func NewS3FileStorageWithClient(client S3API, bucket, prefix string) *S3FileStorage {
	return &S3FileStorage{
		client: client,
		bucket: bucket,
		prefix: strings.Trim(prefix, "/"),
	}
}

// Store implements FileStorage.Store. Without Overwrite the put is
// conditional, so a concurrent writer cannot be clobbered either.
func (s *S3FileStorage) Store(ctx context.Context, key string, data []byte, opts *StoreOptions) error {
	if err := validateKey(key); err != nil {
		return NewStorageError("Store", key, err, false)
	}

	input := &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(s.objectKey(key)),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(ContentTypeFor(key)),
	}
	if opts != nil {
		if opts.ContentType != "" {
			input.ContentType = aws.String(opts.ContentType)
		}
		if opts.CacheControl != "" {
			input.CacheControl = aws.String(opts.CacheControl)
		}
		if !opts.Overwrite {
			input.IfNoneMatch = aws.String("*")
		}
	}

	if _, err := s.client.PutObject(ctx, input); err != nil {
		return s.wrapError("Store", key, err)
	}
	return nil
}

// Retrieve implements FileStorage.Retrieve
func (s *S3FileStorage) Retrieve(ctx context.Context, key string) ([]byte, error) {
	body, _, err := s.open(ctx, "Retrieve", key)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	data, err := io.ReadAll(body)
	if err != nil {
		return nil, s.wrapError("Retrieve", key, err)
	}
	return data, nil
}

// Open implements FileStorage.Open
func (s *S3FileStorage) Open(ctx context.Context, key string) (io.ReadCloser, *FileMetadata, error) {
	return s.open(ctx, "Open", key)
}

func (s *S3FileStorage) open(ctx context.Context, op, key string) (io.ReadCloser, *FileMetadata, error) {
	if err := validateKey(key); err != nil {
		return nil, nil, NewStorageError(op, key, err, false)
	}

	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.objectKey(key)),
	})
	if err != nil {
		return nil, nil, s.wrapError(op, key, err)
	}

	return out.Body, &FileMetadata{
		Key:          key,
		Size:         aws.ToInt64(out.ContentLength),
		ContentType:  aws.ToString(out.ContentType),
		CacheControl: aws.ToString(out.CacheControl),
		LastModified: aws.ToTime(out.LastModified),
		ETag:         strings.Trim(aws.ToString(out.ETag), `"`),
	}, nil
}

// Delete implements FileStorage.Delete
func (s *S3FileStorage) Delete(ctx context.Context, key string) error {
	if err := validateKey(key); err != nil {
		return NewStorageError("Delete", key, err, false)
	}

	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.objectKey(key)),
	})
	if err != nil {
		return s.wrapError("Delete", key, err)
	}
	return nil
}

// Exists implements FileStorage.Exists
func (s *S3FileStorage) Exists(ctx context.Context, key string) (bool, error) {
	_, err := s.GetMetadata(ctx, key)
	if err != nil {
		if IsNotFound(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// GetMetadata implements FileStorage.GetMetadata
func (s *S3FileStorage) GetMetadata(ctx context.Context, key string) (*FileMetadata, error) {
	if err := validateKey(key); err != nil {
		return nil, NewStorageError("GetMetadata", key, err, false)
	}

	out, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.objectKey(key)),
	})
	if err != nil {
		return nil, s.wrapError("GetMetadata", key, err)
	}

	return &FileMetadata{
		Key:          key,
		Size:         aws.ToInt64(out.ContentLength),
		ContentType:  aws.ToString(out.ContentType),
		CacheControl: aws.ToString(out.CacheControl),
		LastModified: aws.ToTime(out.LastModified),
		ETag:         strings.Trim(aws.ToString(out.ETag), `"`),
	}, nil
}

// List implements FileStorage.List
func (s *S3FileStorage) List(ctx context.Context, opts *ListOptions) (*ListResult, error) {
	if opts == nil {
		opts = &ListOptions{}
	}

	input := &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(s.objectKey(opts.Prefix)),
	}
	if opts.Prefix == "" && s.prefix != "" {
		input.Prefix = aws.String(s.prefix + "/")
	}
	if opts.Marker != "" {
		input.StartAfter = aws.String(s.objectKey(opts.Marker))
	}
	if opts.MaxResults > 0 {
		input.MaxKeys = aws.Int32(int32(opts.MaxResults))
	}

	out, err := s.client.ListObjectsV2(ctx, input)
	if err != nil {
		return nil, s.wrapError("List", "", err)
	}

	result := &ListResult{IsTruncated: aws.ToBool(out.IsTruncated)}
	for _, obj := range out.Contents {
		result.Files = append(result.Files, FileMetadata{
			Key:          s.relativeKey(aws.ToString(obj.Key)),
			Size:         aws.ToInt64(obj.Size),
			ContentType:  ContentTypeFor(aws.ToString(obj.Key)),
			LastModified: aws.ToTime(obj.LastModified),
			ETag:         strings.Trim(aws.ToString(obj.ETag), `"`),
		})
	}
	if result.IsTruncated && len(result.Files) > 0 {
		result.NextMarker = result.Files[len(result.Files)-1].Key
	}

	return result, nil
}

// Close implements FileStorage.Close
func (s *S3FileStorage) Close() error {
	return nil
}

func (s *S3FileStorage) objectKey(key string) string {
	if s.prefix == "" {
		return key
	}
	if key == "" {
		return s.prefix + "/"
	}
	return path.Join(s.prefix, key)
}

func (s *S3FileStorage) relativeKey(objectKey string) string {
	if s.prefix == "" {
		return objectKey
	}
	return strings.TrimPrefix(objectKey, s.prefix+"/")
}

// wrapError maps SDK errors onto the storage error kinds
func (s *S3FileStorage) wrapError(op, key string, err error) error {
	var (
		noSuchKey *types.NoSuchKey
		notFound  *types.NotFound
		apiErr    smithy.APIError
	)

	switch {
	case errors.As(err, &noSuchKey), errors.As(err, &notFound):
		return NewStorageError(op, key, ErrFileNotFound, false)
	case errors.Is(err, context.DeadlineExceeded):
		return NewStorageError(op, key, fmt.Errorf("%w: %v", ErrTimeout, err), true)
	case errors.Is(err, context.Canceled):
		return NewStorageError(op, key, err, false)
	case errors.As(err, &apiErr):
		switch apiErr.ErrorCode() {
		case "PreconditionFailed", "ConditionalRequestConflict":
			return NewStorageError(op, key, ErrFileAlreadyExists, false)
		case "SlowDown", "InternalError", "ServiceUnavailable", "RequestTimeout":
			return NewStorageError(op, key, fmt.Errorf("%w: %v", ErrStorageUnavailable, err), true)
		}
		return NewStorageError(op, key, err, false)
	}

	return NewStorageError(op, key, err, true)
}
