package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/dmitrijs2005/gophshare/internal/common"
	"github.com/golang-jwt/jwt/v5"
)

func TestGenerateToken_RoundTrip(t *testing.T) {
	t.Parallel()

	secret := []byte("super-secret")
	tok, err := GenerateToken("user-123", secret, time.Hour)
	if err != nil {
		t.Fatalf("GenerateToken error: %v", err)
	}

	got, err := GetUserIDFromToken(tok, secret)
	if err != nil {
		t.Fatalf("GetUserIDFromToken error: %v", err)
	}
	if got != "user-123" {
		t.Fatalf("user = %q, want user-123", got)
	}
}

func TestGetUserIDFromToken_Rejects(t *testing.T) {
	t.Parallel()

	secret := []byte("right")
	sign := func(method jwt.SigningMethod, key any, claims Claims) string {
		t.Helper()
		s, err := jwt.NewWithClaims(method, claims).SignedString(key)
		if err != nil {
			t.Fatalf("SignedString error: %v", err)
		}
		return s
	}
	expired, err := GenerateToken("u1", secret, -time.Second)
	if err != nil {
		t.Fatalf("GenerateToken error: %v", err)
	}
	forged, err := GenerateToken("u1", []byte("wrong"), time.Hour)
	if err != nil {
		t.Fatalf("GenerateToken error: %v", err)
	}

	tests := []struct {
		name  string
		token string
		want  error
	}{
		{"expired", expired, common.ErrTokenExpired},
		{"wrong secret", forged, common.ErrInvalidToken},
		{"malformed", "not.a.jwt", common.ErrInvalidToken},
		{"alg none", sign(jwt.SigningMethodNone, jwt.UnsafeAllowNoneSignatureType, Claims{UserID: "u1"}), common.ErrInvalidToken},
		{"HS512", sign(jwt.SigningMethodHS512, secret, Claims{UserID: "u1"}), common.ErrInvalidToken},
		{"no user", sign(jwt.SigningMethodHS256, secret, Claims{}), common.ErrInvalidToken},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := GetUserIDFromToken(tt.token, secret)
			if !errors.Is(err, tt.want) {
				t.Fatalf("error = %v, want %v", err, tt.want)
			}
		})
	}
}
