package storage

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"clipfarm/config"
)

// DefaultLinkExpiry is how long presigned links stay valid
const DefaultLinkExpiry = 24 * time.Hour

// ArtifactStore publishes finished videos.
type ArtifactStore interface {
	// Put stores data under key and returns a URL it can be fetched from.
	Put(ctx context.Context, key string, data []byte, contentType string) (string, error)
}

// New builds the store selected by the configuration.
func New(ctx context.Context, cfg config.StorageConfig) (ArtifactStore, error) {
	switch cfg.Backend {
	case "s3":
		s, err := NewS3(ctx, S3Config{
			Bucket:       cfg.Bucket,
			Prefix:       cfg.Prefix,
			Region:       cfg.Region,
			Profile:      cfg.Profile,
			UsePathStyle: cfg.PathStyle,
		})
		if err != nil {
			return nil, err
		}
		return s, nil
	case "minio":
		m, err := NewMinIO(ctx, MinIOConfig{
			Endpoint:  cfg.MinIOEndpoint,
			AccessKey: cfg.MinIOAccessKey,
			SecretKey: cfg.MinIOSecretKey,
			UseSSL:    cfg.MinIOUseSSL,
			Bucket:    cfg.Bucket,
			Prefix:    cfg.Prefix,
		})
		if err != nil {
			return nil, err
		}
		return m, nil
	case "", "local":
		l, err := NewLocal(cfg.LocalDir)
		if err != nil {
			return nil, err
		}
		return l, nil
	}
	return nil, fmt.Errorf("unsupported storage backend %q", cfg.Backend)
}

// Local writes artifacts below a directory.
type Local struct {
	dir string
}

func NewLocal(dir string) (*Local, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output dir: %w", err)
	}
	return &Local{dir: abs}, nil
}

// Put writes the file and returns its file:// URL.
func (l *Local) Put(_ context.Context, key string, data []byte, _ string) (string, error) {
	clean := path.Clean("/" + key)
	if clean == "/" {
		return "", fmt.Errorf("invalid artifact key %q", key)
	}
	dst := filepath.Join(l.dir, filepath.FromSlash(clean))
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return "", fmt.Errorf("failed to create %s: %w", filepath.Dir(dst), err)
	}
	if err := os.WriteFile(dst, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", dst, err)
	}
	return "file://" + filepath.ToSlash(dst), nil
}

func joinKey(prefix, key string) string {
	key = strings.TrimLeft(key, "/")
	if prefix == "" {
		return key
	}
	return prefix + "/" + key
}
