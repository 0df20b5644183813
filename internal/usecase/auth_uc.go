package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"comfy-gateway/internal/domain"
	"comfy-gateway/internal/domain/model"
	"comfy-gateway/internal/domain/ports/repository"
	"comfy-gateway/internal/infra/logging"

	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"
)

// Compile-time check
var _ AuthUseCase = (*authUC)(nil)

type TokenPair struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh"`
}

// TokenManager mints and verifies session tokens.
type TokenManager interface {
	IssuePair(userID string) (TokenPair, error)
	// RefreshAccess mints a new access token from a valid refresh token.
	RefreshAccess(refresh string) (string, error)
	// VerifyAccess returns the subject of a valid access token. Refresh
	// tokens are rejected.
	VerifyAccess(access string) (string, error)
}

type AuthUseCase interface {
	Signup(ctx context.Context, username, password, passwordRepeat string) (*model.User, error)
	Login(ctx context.Context, username, password string) (TokenPair, error)
	Refresh(ctx context.Context, refresh string) (string, error)
	Check(ctx context.Context, access string) (*model.User, error)
}

type authUC struct {
	users  repository.UserRepository
	tm     repository.TransactionManager
	tokens TokenManager
	cost   int
	dev    bool
	log    *zerolog.Logger
}

func NewAuthUseCase(users repository.UserRepository, tm repository.TransactionManager, tokens TokenManager, dev bool, logger *zerolog.Logger) *authUC {
	l := logger.With().Str("component", "AuthUC").Logger()
	return &authUC{
		users:  users,
		tm:     tm,
		tokens: tokens,
		cost:   bcrypt.DefaultCost,
		dev:    dev,
		log:    &l,
	}
}

// WithBcryptCost lowers the hashing cost, for tests.
func (a *authUC) WithBcryptCost(cost int) *authUC {
	a.cost = cost
	return a
}

func (a *authUC) Signup(ctx context.Context, username, password, passwordRepeat string) (*model.User, error) {
	defer logging.TraceDuration(a.log, "AuthUC.Signup")()

	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return nil, fmt.Errorf("%w: username and password are required", domain.ErrInvalidArgument)
	}
	if password != passwordRepeat {
		return nil, fmt.Errorf("%w: passwords do not match", domain.ErrInvalidArgument)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), a.cost)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidArgument, err)
	}

	var user *model.User
	txOpts := pgx.TxOptions{IsoLevel: pgx.Serializable}
	err = a.tm.WithTx(ctx, txOpts, func(ctx context.Context, tx repository.Tx) error {
		existing, err := a.users.FindByUsername(ctx, tx, username)
		if err != nil && !errors.Is(err, domain.ErrNotFound) {
			return err
		}
		if existing != nil {
			return fmt.Errorf("%w: username %q", domain.ErrAlreadyExists, username)
		}
		nu, err := model.NewUser(username, string(hash))
		if err != nil {
			return err
		}
		if err := a.users.Save(ctx, tx, nu); err != nil {
			return err
		}
		user = nu
		return nil
	})
	if err != nil {
		return nil, err
	}
	a.log.Info().Str("username", logging.Redact(username, a.dev)).Msg("user signed up")
	return user, nil
}

func (a *authUC) Login(ctx context.Context, username, password string) (TokenPair, error) {
	defer logging.TraceDuration(a.log, "AuthUC.Login")()

	u, err := a.users.FindByUsername(ctx, repository.NoTX, strings.TrimSpace(username))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return TokenPair{}, fmt.Errorf("%w: bad credentials", domain.ErrUnauthorized)
		}
		return TokenPair{}, err
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) != nil {
		return TokenPair{}, fmt.Errorf("%w: bad credentials", domain.ErrUnauthorized)
	}
	return a.tokens.IssuePair(u.ID)
}

func (a *authUC) Refresh(ctx context.Context, refresh string) (string, error) {
	return a.tokens.RefreshAccess(refresh)
}

func (a *authUC) Check(ctx context.Context, access string) (*model.User, error) {
	id, err := a.tokens.VerifyAccess(access)
	if err != nil {
		return nil, err
	}
	u, err := a.users.FindByID(ctx, repository.NoTX, id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("%w: user no longer exists", domain.ErrUnauthorized)
		}
		return nil, err
	}
	return u, nil
}
