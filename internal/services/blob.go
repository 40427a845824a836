package services

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/atelier-hq/atelier-backend/internal/config"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/minio/minio-go/v7"
	miniocreds "github.com/minio/minio-go/v7/pkg/credentials"
)

// S3BlobStore writes attachments to an S3 compatible bucket (Cloudflare R2
// by default).
type S3BlobStore struct {
	client    *s3.Client
	bucket    string
	publicURL string
}

func NewS3BlobStore(ctx context.Context, cfg *config.Config) (*S3BlobStore, error) {
	if cfg.R2BucketName == "" {
		return nil, fmt.Errorf("R2_BUCKET_NAME is not set")
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion("auto"),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.R2AccessKeyID, cfg.R2SecretAccessKey, "")),
	)
	if err != nil {
		return nil, fmt.Errorf("load storage config: %w", err)
	}

	endpoint := fmt.Sprintf("https://%s.r2.cloudflarestorage.com", cfg.R2AccountID)
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(endpoint)
	})

	publicURL := cfg.R2PublicURL
	if publicURL == "" {
		publicURL = fmt.Sprintf("https://%s.r2.dev", cfg.R2BucketName)
	}
	return &S3BlobStore{client: client, bucket: cfg.R2BucketName, publicURL: strings.TrimRight(publicURL, "/")}, nil
}

func (s *S3BlobStore) Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) (string, error) {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          body,
		ContentLength: aws.Int64(size),
		ContentType:   aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("put %s: %w", key, err)
	}
	return s.publicURL + "/" + key, nil
}

// MinioBlobStore writes attachments to a MinIO bucket, for self-hosted and
// local deployments.
type MinioBlobStore struct {
	client    *minio.Client
	bucket    string
	publicURL string
}

func NewMinioBlobStore(cfg *config.Config) (*MinioBlobStore, error) {
	if cfg.MinioEndpoint == "" || cfg.MinioBucket == "" {
		return nil, fmt.Errorf("MINIO_ENDPOINT and MINIO_BUCKET must be set")
	}

	client, err := minio.New(cfg.MinioEndpoint, &minio.Options{
		Creds:  miniocreds.NewStaticV4(cfg.MinioAccessKey, cfg.MinioSecretKey, ""),
		Secure: cfg.MinioUseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("minio client: %w", err)
	}

	publicURL := cfg.MinioPublicURL
	if publicURL == "" {
		scheme := "http"
		if cfg.MinioUseSSL {
			scheme = "https"
		}
		publicURL = fmt.Sprintf("%s://%s/%s", scheme, cfg.MinioEndpoint, cfg.MinioBucket)
	}
	return &MinioBlobStore{client: client, bucket: cfg.MinioBucket, publicURL: strings.TrimRight(publicURL, "/")}, nil
}

func (m *MinioBlobStore) Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) (string, error) {
	_, err := m.client.PutObject(ctx, m.bucket, key, body, size, minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return "", fmt.Errorf("put %s: %w", key, err)
	}
	return m.publicURL + "/" + key, nil
}

// NewBlobStore picks the store named by BLOB_DRIVER.
func NewBlobStore(ctx context.Context, cfg *config.Config) (BlobStore, error) {
	switch cfg.BlobDriver {
	case "", "s3", "r2":
		return NewS3BlobStore(ctx, cfg)
	case "minio":
		return NewMinioBlobStore(cfg)
	default:
		return nil, fmt.Errorf("unknown BLOB_DRIVER %q", cfg.BlobDriver)
	}
}
