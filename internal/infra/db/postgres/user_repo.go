package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"comfy-gateway/internal/domain"
	"comfy-gateway/internal/domain/model"
	"comfy-gateway/internal/domain/ports/repository"
)

var _ repository.UserRepository = (*UserRepo)(nil)

type UserRepo struct {
	pool *pgxpool.Pool
}

func NewUserRepo(pool *pgxpool.Pool) *UserRepo {
	return &UserRepo{pool: pool}
}

func (r *UserRepo) Save(ctx context.Context, tx repository.Tx, u *model.User) error {
	const q = `
INSERT INTO users (id, username, password_hash, created_at)
VALUES ($1, $2, $3, $4)
ON CONFLICT (id) DO UPDATE SET username = $2, password_hash = $3;
`
	ex, err := getExecutor(r.pool, tx)
	if err != nil {
		return err
	}
	if _, err := ex.Exec(ctx, q, u.ID, u.Username, u.PasswordHash, u.CreatedAt); err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: username %q", domain.ErrAlreadyExists, u.Username)
		}
		return fmt.Errorf("save user: %w", err)
	}
	return nil
}

func (r *UserRepo) FindByUsername(ctx context.Context, tx repository.Tx, username string) (*model.User, error) {
	return r.findOne(ctx, tx, `SELECT id, username, password_hash, created_at FROM users WHERE username = $1;`, username)
}

func (r *UserRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.User, error) {
	return r.findOne(ctx, tx, `SELECT id, username, password_hash, created_at FROM users WHERE id = $1;`, id)
}

func (r *UserRepo) findOne(ctx context.Context, tx repository.Tx, q string, arg any) (*model.User, error) {
	ex, err := getExecutor(r.pool, tx)
	if err != nil {
		return nil, err
	}
	var u model.User
	if err := ex.QueryRow(ctx, q, arg).Scan(&u.ID, &u.Username, &u.PasswordHash, &u.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("find user: %w", err)
	}
	return &u, nil
}
