package repository

import (
	"context"

	"comfy-gateway/internal/domain/model"
)

// ImageRepository records images uploaded to object storage.
type ImageRepository interface {
	Save(ctx context.Context, tx Tx, rec *model.ImageRecord) error
	ListByPromptID(ctx context.Context, tx Tx, promptID string) ([]*model.ImageRecord, error)
}
