package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/joseph-ayodele/kyc-extractor/internal/common"
)

var ErrNotConfigured = errors.New("storage: endpoint not configured")

type Config struct {
	Endpoint  string // host:port, no scheme
	AccessKey string
	SecretKey string
	Bucket    string
	Region    string // default us-east-1
	UseSSL    bool
}

// Store uploads batch reports to an S3-compatible bucket.
type Store struct {
	client *minio.Client
	bucket string
	region string
	logger *slog.Logger
}

// New connects to the endpoint and makes sure the bucket exists.
func New(ctx context.Context, cfg Config, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Endpoint == "" {
		return nil, ErrNotConfigured
	}
	if cfg.Region == "" {
		cfg.Region = "us-east-1"
	}
	endpoint := strings.TrimPrefix(strings.TrimPrefix(cfg.Endpoint, "https://"), "http://")

	cli, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, common.NewAppError(common.CodeStorage, "create minio client", err)
	}

	exists, err := cli.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, common.NewAppError(common.CodeStorage, "check bucket "+cfg.Bucket, err)
	}
	if !exists {
		if err := cli.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{Region: cfg.Region}); err != nil {
			return nil, common.NewAppError(common.CodeStorage, "create bucket "+cfg.Bucket, err)
		}
		logger.Info("storage.bucket.created", "bucket", cfg.Bucket)
	}

	return &Store{client: cli, bucket: cfg.Bucket, region: cfg.Region, logger: logger}, nil
}

// Upload writes data under key and returns the object URL. The URL is only
// reachable directly when the bucket is public.
func (s *Store) Upload(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	info, err := s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		s.logger.Error("storage.upload.failed", "bucket", s.bucket, "key", key, "error", err)
		return "", common.NewAppError(common.CodeStorage, "upload "+key, err)
	}
	s.logger.Info("storage.upload.ok", "bucket", s.bucket, "key", key, "bytes", info.Size)
	return s.ObjectURL(key), nil
}

func (s *Store) ObjectURL(key string) string {
	u := s.client.EndpointURL()
	return fmt.Sprintf("%s://%s/%s/%s", u.Scheme, u.Host, s.bucket, strings.TrimLeft(key, "/"))
}

func (s *Store) Bucket() string { return s.bucket }
