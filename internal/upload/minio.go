// Package upload stores entry image attachments in S3-compatible
// object storage.
package upload

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"organaizer/api/internal/util"
)

// ErrUnsupportedType is returned when the uploaded content is not an
// image.
var ErrUnsupportedType = errors.New("only image uploads are allowed")

var allowedTypes = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/gif":  ".gif",
	"image/webp": ".webp",
}

type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// Store wraps a MinIO client for a single bucket.
type Store struct {
	client *minio.Client
	bucket string
}

// New connects to the object store and creates the bucket when it does
// not exist yet.
func New(ctx context.Context, cfg Config) (*Store, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("connect object store: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket %s: %w", cfg.Bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create bucket %s: %w", cfg.Bucket, err)
		}
	}
	return &Store{client: client, bucket: cfg.Bucket}, nil
}

// Object describes a stored upload.
type Object struct {
	Key         string `json:"key"`
	ContentType string `json:"contentType"`
	Size        int64  `json:"size"`
	URL         string `json:"url"`
}

// Put stores an image under a date-partitioned key:
// YYYY/MM/DD/<unix-ms>_<id>_<name>. Non-image content types are
// rejected before anything is written.
func (s *Store) Put(ctx context.Context, name, contentType string, size int64, body io.Reader) (Object, error) {
	ext, ok := allowedTypes[contentType]
	if !ok {
		return Object{}, ErrUnsupportedType
	}

	base := sanitizeObjectName(name)
	if path.Ext(base) == "" {
		base += ext
	}
	now := time.Now().UTC()
	key := fmt.Sprintf("%s/%d_%s_%s", now.Format("2006/01/02"), now.UnixMilli(), util.NewID(""), base)

	info, err := s.client.PutObject(ctx, s.bucket, key, body, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return Object{}, fmt.Errorf("store object %s: %w", key, err)
	}

	return Object{
		Key:         key,
		ContentType: contentType,
		Size:        info.Size,
		URL:         fmt.Sprintf("/api/uploads/%s", key),
	}, nil
}

// Get streams a stored object. The caller must close the reader.
func (s *Store) Get(ctx context.Context, key string) (io.ReadCloser, Object, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, Object{}, fmt.Errorf("get object %s: %w", key, err)
	}
	stat, err := obj.Stat()
	if err != nil {
		obj.Close()
		return nil, Object{}, fmt.Errorf("stat object %s: %w", key, err)
	}
	return obj, Object{
		Key:         key,
		ContentType: stat.ContentType,
		Size:        stat.Size,
	}, nil
}

// PresignedURL returns a time-limited direct download link.
func (s *Store) PresignedURL(ctx context.Context, key string, expiry time.Duration) (string, error) {
	u, err := s.client.PresignedGetObject(ctx, s.bucket, key, expiry, nil)
	if err != nil {
		return "", fmt.Errorf("presign object %s: %w", key, err)
	}
	return u.String(), nil
}

func sanitizeObjectName(name string) string {
	base := path.Base(strings.ReplaceAll(name, "\\", "/"))
	var b strings.Builder
	for _, r := range base {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9',
			r == '-', r == '_', r == '.':
			b.WriteRune(r)
		case r == ' ':
			b.WriteRune('-')
		}
	}
	out := strings.Trim(b.String(), ".")
	if out == "" {
		out = "upload"
	}
	return out
}
