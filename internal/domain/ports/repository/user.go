package repository

import (
	"context"

	"comfy-gateway/internal/domain/model"
)

// UserRepository stores gateway accounts. Lookups return domain.ErrNotFound
// for unknown users; Save returns domain.ErrAlreadyExists on a taken username.
type UserRepository interface {
	Save(ctx context.Context, tx Tx, u *model.User) error
	FindByUsername(ctx context.Context, tx Tx, username string) (*model.User, error)
	FindByID(ctx context.Context, tx Tx, id string) (*model.User, error)
}
