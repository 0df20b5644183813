package web

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"comfy-gateway/internal/domain"
	"comfy-gateway/internal/usecase"

	"github.com/golang-jwt/jwt/v5"
)

// ===== Session/JWT primitives =====

const (
	tokenAccess  = "access"
	tokenRefresh = "refresh"
)

var _ usecase.TokenManager = (*AuthManager)(nil)

type AuthConfig struct {
	HMACSecret []byte
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

// AuthManager mints HS256 access/refresh token pairs.
type AuthManager struct {
	cfg AuthConfig
	now func() time.Time
}

func NewAuthManager(secret string, accessTTL, refreshTTL time.Duration) *AuthManager {
	return &AuthManager{
		cfg: AuthConfig{
			HMACSecret: []byte(secret),
			AccessTTL:  accessTTL,
			RefreshTTL: refreshTTL,
		},
		now: time.Now,
	}
}

type SessionClaims struct {
	TokenType string `json:"token_type"`
	jwt.RegisteredClaims
}

func (a *AuthManager) mint(userID, typ string, ttl time.Duration) (string, error) {
	now := a.now()
	claims := SessionClaims{
		TokenType: typ,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			Subject:   userID,
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.cfg.HMACSecret)
}

func (a *AuthManager) IssuePair(userID string) (usecase.TokenPair, error) {
	access, err := a.mint(userID, tokenAccess, a.cfg.AccessTTL)
	if err != nil {
		return usecase.TokenPair{}, err
	}
	refresh, err := a.mint(userID, tokenRefresh, a.cfg.RefreshTTL)
	if err != nil {
		return usecase.TokenPair{}, err
	}
	return usecase.TokenPair{Access: access, Refresh: refresh}, nil
}

func (a *AuthManager) RefreshAccess(refresh string) (string, error) {
	claims, err := a.parse(refresh, tokenRefresh)
	if err != nil {
		return "", err
	}
	return a.mint(claims.Subject, tokenAccess, a.cfg.AccessTTL)
}

func (a *AuthManager) VerifyAccess(access string) (string, error) {
	claims, err := a.parse(access, tokenAccess)
	if err != nil {
		return "", err
	}
	return claims.Subject, nil
}

// BearerToken extracts the token of an "Authorization: Bearer <jwt>" header.
func BearerToken(r *http.Request) (string, error) {
	hdr := r.Header.Get("Authorization")
	if len(hdr) > 7 && strings.EqualFold(hdr[:7], "bearer ") {
		return strings.TrimSpace(hdr[7:]), nil
	}
	return "", fmt.Errorf("%w: missing bearer token", domain.ErrUnauthorized)
}

func (a *AuthManager) parse(tok, wantType string) (*SessionClaims, error) {
	claims := &SessionClaims{}
	tkn, err := jwt.ParseWithClaims(tok, claims, func(t *jwt.Token) (any, error) {
		return a.cfg.HMACSecret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(a.now),
	)
	if err != nil || !tkn.Valid {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, fmt.Errorf("%w: token expired", domain.ErrUnauthorized)
		}
		return nil, fmt.Errorf("%w: invalid token", domain.ErrUnauthorized)
	}
	if claims.TokenType != wantType || claims.Subject == "" {
		return nil, fmt.Errorf("%w: wrong token type", domain.ErrUnauthorized)
	}
	return claims, nil
}
