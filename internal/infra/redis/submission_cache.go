package redis

import (
	"context"
	"fmt"
	"time"

	"comfy-gateway/internal/domain/ports/repository"
	"comfy-gateway/internal/infra/metrics"
)

var _ repository.SubmissionRepository = (*SubmissionCache)(nil)

// SubmissionCache stores every prompt id issued by the gateway for ttl
// (2h by default) under "prompt_id_<id>".
type SubmissionCache struct {
	client RedisClient
	ttl    time.Duration
}

func NewSubmissionCache(client RedisClient, ttl time.Duration) *SubmissionCache {
	if ttl <= 0 {
		ttl = 2 * time.Hour
	}
	return &SubmissionCache{client: client, ttl: ttl}
}

func submissionKey(promptID string) string {
	return "prompt_id_" + promptID
}

func (c *SubmissionCache) Record(ctx context.Context, promptID string) error {
	if err := c.client.Set(ctx, submissionKey(promptID), promptID, c.ttl); err != nil {
		return fmt.Errorf("record prompt id: %w", err)
	}
	return nil
}

func (c *SubmissionCache) Exists(ctx context.Context, promptID string) (bool, error) {
	if promptID == "" {
		return false, nil
	}
	v, err := c.client.Get(ctx, submissionKey(promptID))
	if err != nil {
		if IsNil(err) {
			metrics.IncCacheRequest("prompt_id", "miss")
			return false, nil
		}
		return false, fmt.Errorf("lookup prompt id: %w", err)
	}
	hit := v == promptID
	if hit {
		metrics.IncCacheRequest("prompt_id", "hit")
	} else {
		metrics.IncCacheRequest("prompt_id", "miss")
	}
	return hit, nil
}
