package model

import (
	"strings"
	"time"

	"comfy-gateway/internal/domain"

	"github.com/google/uuid"
)

// User is an account allowed to log in to the gateway.
type User struct {
	ID           string
	Username     string
	PasswordHash string
	CreatedAt    time.Time
}

func NewUser(username, passwordHash string) (*User, error) {
	username = strings.TrimSpace(username)
	if username == "" || passwordHash == "" {
		return nil, domain.ErrInvalidArgument
	}
	return &User{
		ID:           uuid.NewString(),
		Username:     username,
		PasswordHash: passwordHash,
		CreatedAt:    time.Now(),
	}, nil
}

func (u *User) IsZero() bool { return u == nil || u.ID == "" }
