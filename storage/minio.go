package storage

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"time"

	miniosdk "github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

type MinIOConfig struct {
	Endpoint   string
	AccessKey  string
	SecretKey  string
	UseSSL     bool
	Bucket     string
	Prefix     string
	LinkExpiry time.Duration
}

// MinIO publishes artifacts to a MinIO (or other S3 compatible) bucket.
type MinIO struct {
	client *miniosdk.Client
	cfg    MinIOConfig
}

// NewMinIO connects and creates the bucket when it does not exist yet.
func NewMinIO(ctx context.Context, cfg MinIOConfig) (*MinIO, error) {
	if cfg.LinkExpiry <= 0 {
		cfg.LinkExpiry = DefaultLinkExpiry
	}
	client, err := miniosdk.New(cfg.Endpoint, &miniosdk.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create MinIO client: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("failed to check bucket existence: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, miniosdk.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("failed to create bucket: %w", err)
		}
	}
	return &MinIO{client: client, cfg: cfg}, nil
}

// Put uploads the artifact and returns a presigned download link.
func (m *MinIO) Put(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	objectKey := joinKey(m.cfg.Prefix, key)
	_, err := m.client.PutObject(ctx, m.cfg.Bucket, objectKey, bytes.NewReader(data), int64(len(data)), miniosdk.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload %s: %w", objectKey, err)
	}

	u, err := m.client.PresignedGetObject(ctx, m.cfg.Bucket, objectKey, m.cfg.LinkExpiry, url.Values{})
	if err != nil {
		return "", fmt.Errorf("failed to presign %s: %w", objectKey, err)
	}
	return u.String(), nil
}

func (m *MinIO) Bucket() string {
	return m.cfg.Bucket
}
