package media

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinIOConfig configures an S3-compatible bucket.
type MinIOConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
	PublicURL string
}

// MinIOStorage stores uploads in an S3-compatible bucket.
type MinIOStorage struct {
	client    *minio.Client
	bucket    string
	publicURL string
}

// NewMinIOStorage connects to the endpoint and creates the bucket when missing.
func NewMinIOStorage(ctx context.Context, cfg MinIOConfig) (*MinIOStorage, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("media: create minio client: %w", err)
	}
	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("media: check bucket: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("media: create bucket: %w", err)
		}
	}
	publicURL := strings.TrimRight(cfg.PublicURL, "/")
	if publicURL == "" {
		scheme := "http"
		if cfg.UseSSL {
			scheme = "https"
		}
		publicURL = scheme + "://" + cfg.Endpoint + "/" + cfg.Bucket
	}
	return &MinIOStorage{client: client, bucket: cfg.Bucket, publicURL: publicURL}, nil
}

// Store uploads the file and returns its object key.
func (s *MinIOStorage) Store(ctx context.Context, upload Upload) (string, error) {
	key := ObjectKey(upload)
	_, err := s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(upload.Data), int64(len(upload.Data)), minio.PutObjectOptions{
		ContentType: ContentType(upload),
	})
	if err != nil {
		return "", fmt.Errorf("media: put object: %w", err)
	}
	return key, nil
}

// Delete removes the object. Empty references are ignored.
func (s *MinIOStorage) Delete(ctx context.Context, ref string) error {
	if strings.TrimSpace(ref) == "" {
		return nil
	}
	if err := s.client.RemoveObject(ctx, s.bucket, ref, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("media: remove object: %w", err)
	}
	return nil
}

// URL returns the public object URL.
func (s *MinIOStorage) URL(ref string) string {
	if ref == "" {
		return ""
	}
	return s.publicURL + "/" + ref
}

var _ Storage = (*MinIOStorage)(nil)
