package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v4/pgxpool"

	"comfy-gateway/internal/domain/model"
	"comfy-gateway/internal/domain/ports/repository"
)

var _ repository.ImageRepository = (*ImageRepo)(nil)

type ImageRepo struct {
	pool *pgxpool.Pool
}

func NewImageRepo(pool *pgxpool.Pool) *ImageRepo {
	return &ImageRepo{pool: pool}
}

func (r *ImageRepo) Save(ctx context.Context, tx repository.Tx, rec *model.ImageRecord) error {
	const q = `
INSERT INTO images (id, name, bucket, prompt_id, created_at)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (id) DO NOTHING;
`
	ex, err := getExecutor(r.pool, tx)
	if err != nil {
		return err
	}
	if _, err := ex.Exec(ctx, q, rec.ID, rec.Name, rec.Bucket, rec.PromptID, rec.CreatedAt); err != nil {
		return fmt.Errorf("save image: %w", err)
	}
	return nil
}

// ListByPromptID returns records oldest first.
func (r *ImageRepo) ListByPromptID(ctx context.Context, tx repository.Tx, promptID string) ([]*model.ImageRecord, error) {
	const q = `
SELECT id, name, bucket, prompt_id, created_at
  FROM images WHERE prompt_id = $1
 ORDER BY created_at, id;
`
	ex, err := getExecutor(r.pool, tx)
	if err != nil {
		return nil, err
	}
	rows, err := ex.Query(ctx, q, promptID)
	if err != nil {
		return nil, fmt.Errorf("list images: %w", err)
	}
	defer rows.Close()

	var out []*model.ImageRecord
	for rows.Next() {
		var rec model.ImageRecord
		if err := rows.Scan(&rec.ID, &rec.Name, &rec.Bucket, &rec.PromptID, &rec.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, &rec)
	}
	return out, rows.Err()
}
