package adapter

import (
	"context"
	"time"
)

// ObjectStorage is where finished images end up for clients to download.
type ObjectStorage interface {
	// Upload stores the local file under key and returns the bucket used.
	Upload(ctx context.Context, localPath, key string) (bucket string, err error)
	PresignGet(ctx context.Context, key string, ttl time.Duration) (string, error)
}
