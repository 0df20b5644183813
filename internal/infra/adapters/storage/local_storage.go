package storage

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"comfy-gateway/internal/config"
	"comfy-gateway/internal/domain"
	"comfy-gateway/internal/domain/ports/adapter"
	"comfy-gateway/internal/infra/metrics"

	"github.com/rs/zerolog"
)

// LocalBucket is reported as the bucket of locally stored objects.
const LocalBucket = "local"

var _ adapter.ObjectStorage = (*LocalStorage)(nil)

// LocalStorage copies images into a directory served by the gateway itself.
// Links are plain URLs; ttl is ignored.
type LocalStorage struct {
	dir       string
	publicURL string
	log       *zerolog.Logger
}

func NewLocalStorage(cfg config.StorageConfig, logger *zerolog.Logger) (*LocalStorage, error) {
	if err := os.MkdirAll(cfg.LocalDir, 0o755); err != nil {
		return nil, fmt.Errorf("create storage dir: %w", err)
	}
	l := logger.With().Str("component", "LocalStorage").Str("dir", cfg.LocalDir).Logger()
	return &LocalStorage{
		dir:       cfg.LocalDir,
		publicURL: strings.TrimSuffix(cfg.PublicURL, "/"),
		log:       &l,
	}, nil
}

func (s *LocalStorage) Dir() string { return s.dir }

func (s *LocalStorage) Upload(ctx context.Context, localPath, key string) (string, error) {
	if err := s.copyIn(localPath, key); err != nil {
		metrics.IncStorageUpload("local", false)
		return "", err
	}
	metrics.IncStorageUpload("local", true)
	s.log.Debug().Str("key", key).Msg("stored")
	return LocalBucket, nil
}

func (s *LocalStorage) copyIn(localPath, key string) error {
	if key == "" || key != filepath.Base(key) {
		return fmt.Errorf("%w: bad object key %q", domain.ErrInvalidArgument, key)
	}
	src, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("%w: open %s: %v", domain.ErrStorage, localPath, err)
	}
	defer src.Close()

	dst, err := os.Create(filepath.Join(s.dir, key))
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrStorage, err)
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return fmt.Errorf("%w: copy %s: %v", domain.ErrStorage, key, err)
	}
	if err := dst.Close(); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrStorage, err)
	}
	return nil
}

func (s *LocalStorage) PresignGet(ctx context.Context, key string, ttl time.Duration) (string, error) {
	if _, err := os.Stat(filepath.Join(s.dir, key)); err != nil {
		return "", fmt.Errorf("%w: object %s", domain.ErrNotFound, key)
	}
	return s.publicURL + "/" + url.PathEscape(key), nil
}
