//go:build !integration

package web

import (
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"comfy-gateway/internal/domain"

	"github.com/golang-jwt/jwt/v5"
)

func TestAuthManager_PairAndTypes(t *testing.T) {
	am := NewAuthManager("s3cret", 30*time.Minute, 24*time.Hour)

	pair, err := am.IssuePair("user-1")
	if err != nil {
		t.Fatalf("IssuePair: %v", err)
	}
	if sub, err := am.VerifyAccess(pair.Access); err != nil || sub != "user-1" {
		t.Errorf("VerifyAccess = %q, %v", sub, err)
	}
	if _, err := am.VerifyAccess(pair.Refresh); !errors.Is(err, domain.ErrUnauthorized) {
		t.Errorf("refresh accepted as access: %v", err)
	}
	if _, err := am.RefreshAccess(pair.Access); !errors.Is(err, domain.ErrUnauthorized) {
		t.Errorf("access accepted as refresh: %v", err)
	}

	access, err := am.RefreshAccess(pair.Refresh)
	if err != nil {
		t.Fatalf("RefreshAccess: %v", err)
	}
	if sub, _ := am.VerifyAccess(access); sub != "user-1" {
		t.Errorf("refreshed subject = %q", sub)
	}
}

func TestAuthManager_Expiry(t *testing.T) {
	am := NewAuthManager("s3cret", time.Minute, time.Hour)
	base := time.Date(2024, 3, 9, 14, 0, 0, 0, time.UTC)
	am.now = func() time.Time { return base }

	pair, err := am.IssuePair("user-1")
	if err != nil {
		t.Fatal(err)
	}
	am.now = func() time.Time { return base.Add(2 * time.Minute) }
	if _, err := am.VerifyAccess(pair.Access); !errors.Is(err, domain.ErrUnauthorized) {
		t.Errorf("expired access: %v", err)
	}
	if _, err := am.RefreshAccess(pair.Refresh); err != nil {
		t.Errorf("refresh still valid: %v", err)
	}
}

func TestAuthManager_RejectsForeignTokens(t *testing.T) {
	am := NewAuthManager("s3cret", time.Minute, time.Hour)
	other := NewAuthManager("other", time.Minute, time.Hour)

	pair, _ := other.IssuePair("user-1")
	if _, err := am.VerifyAccess(pair.Access); !errors.Is(err, domain.ErrUnauthorized) {
		t.Errorf("foreign signature: %v", err)
	}

	none := jwt.NewWithClaims(jwt.SigningMethodNone, SessionClaims{TokenType: tokenAccess})
	s, _ := none.SignedString(jwt.UnsafeAllowNoneSignatureType)
	if _, err := am.VerifyAccess(s); !errors.Is(err, domain.ErrUnauthorized) {
		t.Errorf("alg none: %v", err)
	}
	if _, err := am.VerifyAccess("garbage"); !errors.Is(err, domain.ErrUnauthorized) {
		t.Errorf("garbage: %v", err)
	}
}

func TestBearerToken(t *testing.T) {
	r := httptest.NewRequest("POST", "/", nil)
	if _, err := BearerToken(r); !errors.Is(err, domain.ErrUnauthorized) {
		t.Errorf("missing header: %v", err)
	}
	r.Header.Set("Authorization", "bearer abc")
	if tok, err := BearerToken(r); err != nil || tok != "abc" {
		t.Errorf("BearerToken = %q, %v", tok, err)
	}
	r.Header.Set("Authorization", "Basic abc")
	if _, err := BearerToken(r); err == nil {
		t.Error("basic auth accepted")
	}
}
