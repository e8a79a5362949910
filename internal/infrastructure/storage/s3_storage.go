package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime"
	"path"
	"strings"

	"github.com/buffrsign/esign-orchestrator/internal/application/port"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/zap"
)

// S3Config configures an S3 compatible bucket (AWS, MinIO, Supabase Storage)
type S3Config struct {
	Endpoint     string
	Region       string
	Bucket       string
	AccessKey    string
	SecretKey    string
	UseSSL       bool
	Prefix       string
	CreateBucket bool
}

// Validate checks the fields needed to reach the bucket
func (c S3Config) Validate() error {
	if c.Endpoint == "" {
		return fmt.Errorf("s3 endpoint is required")
	}
	if c.Bucket == "" {
		return fmt.Errorf("s3 bucket is required")
	}
	if c.AccessKey == "" || c.SecretKey == "" {
		return fmt.Errorf("s3 credentials are required")
	}
	return nil
}

// S3Storage implements port.DocumentStorage on an object store
type S3Storage struct {
	client *minio.Client
	bucket string
	prefix string
	logger *zap.Logger
}

// NewS3Storage connects to the bucket and optionally creates it
func NewS3Storage(ctx context.Context, cfg S3Config, logger *zap.Logger) (*S3Storage, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create s3 client: %w", err)
	}

	if cfg.CreateBucket {
		exists, err := client.BucketExists(ctx, cfg.Bucket)
		if err != nil {
			return nil, fmt.Errorf("failed to check bucket %s: %w", cfg.Bucket, err)
		}
		if !exists {
			if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{Region: cfg.Region}); err != nil {
				return nil, fmt.Errorf("failed to create bucket %s: %w", cfg.Bucket, err)
			}
			logger.Info("Created document bucket", zap.String("bucket", cfg.Bucket))
		}
	}

	return &S3Storage{
		client: client,
		bucket: cfg.Bucket,
		prefix: strings.Trim(cfg.Prefix, "/"),
		logger: logger,
	}, nil
}

// Save uploads content under the object key for path
func (s *S3Storage) Save(ctx context.Context, p string, content []byte) error {
	key, err := s.objectKey(p)
	if err != nil {
		return err
	}

	_, err = s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(content), int64(len(content)),
		minio.PutObjectOptions{ContentType: contentType(key)})
	if err != nil {
		s.logger.Error("Failed to upload document", zap.String("key", key), zap.Error(err))
		return fmt.Errorf("failed to upload document: %w", err)
	}

	s.logger.Debug("Document uploaded", zap.String("key", key), zap.Int("size", len(content)))
	return nil
}

// Read downloads the object stored for path
func (s *S3Storage) Read(ctx context.Context, p string) ([]byte, error) {
	key, err := s.objectKey(p)
	if err != nil {
		return nil, err
	}

	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, s.wrapError("download", key, err)
	}
	defer obj.Close()

	content, err := io.ReadAll(obj)
	if err != nil {
		return nil, s.wrapError("download", key, err)
	}
	return content, nil
}

// Exists reports whether the object is present
func (s *S3Storage) Exists(ctx context.Context, p string) bool {
	key, err := s.objectKey(p)
	if err != nil {
		return false
	}
	_, err = s.client.StatObject(ctx, s.bucket, key, minio.StatObjectOptions{})
	return err == nil
}

// Delete removes the object; S3 treats missing keys as success
func (s *S3Storage) Delete(ctx context.Context, p string) error {
	key, err := s.objectKey(p)
	if err != nil {
		return err
	}
	if err := s.client.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return s.wrapError("delete", key, err)
	}
	return nil
}

func (s *S3Storage) objectKey(p string) (string, error) {
	return joinKey(s.prefix, p)
}

func (s *S3Storage) wrapError(op, key string, err error) error {
	if isNoSuchKey(err) {
		return fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	s.logger.Error("Object storage request failed",
		zap.String("op", op),
		zap.String("key", key),
		zap.Error(err))
	return fmt.Errorf("failed to %s document: %w", op, err)
}

func isNoSuchKey(err error) bool {
	code := minio.ToErrorResponse(err).Code
	return code == "NoSuchKey" || code == "NotFound"
}

// joinKey builds a clean object key and rejects paths leaving the prefix
func joinKey(prefix, p string) (string, error) {
	p = strings.TrimSpace(p)
	if p == "" {
		return "", fmt.Errorf("document path is empty")
	}
	p = strings.ReplaceAll(p, "\\", "/")
	for _, seg := range strings.Split(p, "/") {
		if seg == ".." {
			return "", fmt.Errorf("path escapes base directory: %s", p)
		}
	}
	key := strings.TrimPrefix(path.Clean("/"+p), "/")
	if prefix != "" {
		key = prefix + "/" + key
	}
	return key, nil
}

func contentType(key string) string {
	if ct := mime.TypeByExtension(path.Ext(key)); ct != "" {
		return ct
	}
	return "application/octet-stream"
}

var _ port.DocumentStorage = (*S3Storage)(nil)
