package sink

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"path"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/papercomputeco/ligandx/pkg/logger"
)

// ObjectAPI is the subset of *minio.Client used by the object sink.
type ObjectAPI interface {
	BucketExists(ctx context.Context, bucketName string) (bool, error)
	MakeBucket(ctx context.Context, bucketName string, opts minio.MakeBucketOptions) error
	PutObject(ctx context.Context, bucketName, objectName string, reader *bytes.Reader, objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
}

// MinIOConfig configures the object sink.
type MinIOConfig struct {
	Endpoint  string
	Bucket    string
	Prefix    string
	AccessKey string
	SecretKey string
	UseSSL    bool
	Logger    *slog.Logger
}

// ObjectStore mirrors artifacts to an S3 compatible bucket under
// <prefix>/json/<key>.json, <prefix>/log/<key>.csv and
// <prefix>/token/<key>.csv.
type ObjectStore struct {
	api    ObjectAPI
	bucket string
	prefix string
	logger *slog.Logger
}

// minioClient adapts *minio.Client to ObjectAPI.
type minioClient struct {
	*minio.Client
}

func (c minioClient) PutObject(ctx context.Context, bucketName, objectName string, reader *bytes.Reader, objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error) {
	return c.Client.PutObject(ctx, bucketName, objectName, reader, objectSize, opts)
}

// NewMinIO connects to the configured endpoint and ensures the bucket
// exists.
func NewMinIO(ctx context.Context, cfg *MinIOConfig) (*ObjectStore, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("creating minio client: %w", err)
	}
	return NewObjectStore(ctx, minioClient{client}, cfg.Bucket, cfg.Prefix, cfg.Logger)
}

// NewObjectStore creates an object sink over api, creating bucket when
// missing.
func NewObjectStore(ctx context.Context, api ObjectAPI, bucket, prefix string, log *slog.Logger) (*ObjectStore, error) {
	if bucket == "" {
		return nil, fmt.Errorf("object store: bucket is required")
	}

	exists, err := api.BucketExists(ctx, bucket)
	if err != nil {
		return nil, fmt.Errorf("checking bucket %s: %w", bucket, err)
	}
	if !exists {
		if err := api.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("creating bucket %s: %w", bucket, err)
		}
	}

	return &ObjectStore{api: api, bucket: bucket, prefix: prefix, logger: logger.OrNop(log)}, nil
}

func (s *ObjectStore) Write(ctx context.Context, a Artifacts) error {
	for _, obj := range []struct {
		name        string
		data        []byte
		contentType string
	}{
		{s.ObjectName(JSONDir, a.Key+".json"), a.Document, "application/json"},
		{s.ObjectName(LogDir, a.Key+".csv"), a.QA, "text/csv"},
		{s.ObjectName(TokenDir, a.Key+".csv"), a.Tokens, "text/csv"},
	} {
		_, err := s.api.PutObject(ctx, s.bucket, obj.name, bytes.NewReader(obj.data), int64(len(obj.data)), minio.PutObjectOptions{
			ContentType: obj.contentType,
		})
		if err != nil {
			return fmt.Errorf("uploading %s: %w", obj.name, err)
		}
		s.logger.Debug("uploaded artifact", "bucket", s.bucket, "object", obj.name, "bytes", len(obj.data))
	}
	return nil
}

// ObjectName joins the prefix, directory and file name.
func (s *ObjectStore) ObjectName(dir, file string) string {
	return path.Join(s.prefix, dir, file)
}
