package storage

import (
	"context"
	"fmt"
	"io"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// S3Options configures an S3-compatible backend.
type S3Options struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Region    string
	UseSSL    bool
}

// S3Store keeps artifacts in a single MinIO/S3 bucket.
type S3Store struct {
	client *minio.Client
	bucket string
	region string
}

// NewS3Store creates a MinIO client for the bucket.
func NewS3Store(opts S3Options) (*S3Store, error) {
	client, err := minio.New(opts.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(opts.AccessKey, opts.SecretKey, ""),
		Secure: opts.UseSSL,
		Region: opts.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("storage: init minio: %w", err)
	}
	return &S3Store{client: client, bucket: opts.Bucket, region: opts.Region}, nil
}

// EnsureBucket makes sure the bucket exists before use.
func (s *S3Store) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("storage: check bucket %s: %w", s.bucket, err)
	}
	if exists {
		return nil
	}
	if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{Region: s.region}); err != nil {
		return fmt.Errorf("storage: make bucket %s: %w", s.bucket, err)
	}
	return nil
}

// Put uploads r. A size of -1 streams a multipart upload, which MinIO aborts
// if the reader fails, so no partial object becomes visible.
func (s *S3Store) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) (ObjectInfo, error) {
	cleanKey, err := sanitizeKey(key)
	if err != nil {
		return ObjectInfo{}, err
	}
	if contentType == "" {
		contentType = contentTypeFor(cleanKey)
	}
	if _, err := s.client.PutObject(ctx, s.bucket, cleanKey, r, size, minio.PutObjectOptions{ContentType: contentType}); err != nil {
		return ObjectInfo{}, fmt.Errorf("storage: put object: %w", err)
	}
	return s.Stat(ctx, cleanKey)
}

func (s *S3Store) Open(ctx context.Context, key string) (io.ReadCloser, ObjectInfo, error) {
	info, err := s.Stat(ctx, key)
	if err != nil {
		return nil, ObjectInfo{}, err
	}
	obj, err := s.client.GetObject(ctx, s.bucket, info.Key, minio.GetObjectOptions{})
	if err != nil {
		return nil, ObjectInfo{}, translateS3Error(err, "get object")
	}
	return obj, info, nil
}

func (s *S3Store) Stat(ctx context.Context, key string) (ObjectInfo, error) {
	cleanKey, err := sanitizeKey(key)
	if err != nil {
		return ObjectInfo{}, err
	}
	st, err := s.client.StatObject(ctx, s.bucket, cleanKey, minio.StatObjectOptions{})
	if err != nil {
		return ObjectInfo{}, translateS3Error(err, "stat object")
	}
	return ObjectInfo{Key: cleanKey, Size: st.Size, ContentType: st.ContentType, ModTime: st.LastModified}, nil
}

func (s *S3Store) Delete(ctx context.Context, key string) error {
	cleanKey, err := sanitizeKey(key)
	if err != nil {
		return err
	}
	if err := s.client.RemoveObject(ctx, s.bucket, cleanKey, minio.RemoveObjectOptions{}); err != nil {
		return translateS3Error(err, "remove object")
	}
	return nil
}

func (s *S3Store) List(ctx context.Context) ([]ObjectInfo, error) {
	var out []ObjectInfo
	for obj := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{Recursive: true}) {
		if obj.Err != nil {
			return out, fmt.Errorf("storage: list objects: %w", obj.Err)
		}
		out = append(out, ObjectInfo{Key: obj.Key, Size: obj.Size, ContentType: obj.ContentType, ModTime: obj.LastModified})
	}
	return out, nil
}

func translateS3Error(err error, op string) error {
	if minio.ToErrorResponse(err).Code == "NoSuchKey" {
		return ErrObjectNotFound
	}
	return fmt.Errorf("storage: %s: %w", op, err)
}

var _ Backend = (*S3Store)(nil)
