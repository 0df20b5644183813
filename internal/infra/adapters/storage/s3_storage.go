package storage

import (
	"context"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"time"

	"comfy-gateway/internal/config"
	"comfy-gateway/internal/domain"
	"comfy-gateway/internal/domain/ports/adapter"
	"comfy-gateway/internal/infra/metrics"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog"
)

var _ adapter.ObjectStorage = (*S3Storage)(nil)

// s3API is the subset of *s3.Client used here.
type s3API interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

type presignAPI interface {
	PresignGetObject(ctx context.Context, in *s3.GetObjectInput, opts ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

type S3Storage struct {
	client  s3API
	presign presignAPI
	bucket  string
	log     *zerolog.Logger
}

// NewS3Storage builds a client from static keys when configured, otherwise
// from the default AWS credential chain.
func NewS3Storage(ctx context.Context, cfg config.StorageConfig, logger *zerolog.Logger) (*S3Storage, error) {
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})
	l := logger.With().Str("component", "S3Storage").Str("bucket", cfg.Bucket).Logger()
	return &S3Storage{
		client:  client,
		presign: s3.NewPresignClient(client),
		bucket:  cfg.Bucket,
		log:     &l,
	}, nil
}

func (s *S3Storage) Upload(ctx context.Context, localPath, key string) (string, error) {
	f, err := os.Open(localPath)
	if err != nil {
		return "", fmt.Errorf("%w: open %s: %v", domain.ErrStorage, localPath, err)
	}
	defer f.Close()

	contentType := mime.TypeByExtension(filepath.Ext(key))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        f,
		ContentType: aws.String(contentType),
	})
	if err != nil {
		metrics.IncStorageUpload("s3", false)
		s.log.Error().Err(err).Str("key", key).Msg("s3 upload failed")
		return "", fmt.Errorf("%w: put %s: %v", domain.ErrStorage, key, err)
	}
	metrics.IncStorageUpload("s3", true)
	s.log.Debug().Str("key", key).Msg("uploaded")
	return s.bucket, nil
}

func (s *S3Storage) PresignGet(ctx context.Context, key string, ttl time.Duration) (string, error) {
	req, err := s.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(ttl))
	if err != nil {
		return "", fmt.Errorf("%w: presign %s: %v", domain.ErrStorage, key, err)
	}
	return req.URL, nil
}
