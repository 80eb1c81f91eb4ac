package identity

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/fuego-app/fuego/internal/domain"
)

const testSecret = "super-secret-jwt-token-with-at-least-32-characters"

func sign(t *testing.T, method jwt.SigningMethod, key any, claims jwt.RegisteredClaims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(method, claims).SignedString(key)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return s
}

func validClaims() jwt.RegisteredClaims {
	return jwt.RegisteredClaims{
		Subject:   "user-1",
		Audience:  jwt.ClaimStrings{"authenticated"},
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}
}

func TestResolve_Valid(t *testing.T) {
	v := NewVerifier(testSecret, "authenticated")
	token := sign(t, jwt.SigningMethodHS256, []byte(testSecret), validClaims())

	sub, err := v.Resolve(context.Background(), token)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sub != "user-1" {
		t.Errorf("expected user-1, got %q", sub)
	}
}

func TestResolve_Rejects(t *testing.T) {
	expired := validClaims()
	expired.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Minute))

	noSub := validClaims()
	noSub.Subject = ""

	wrongAud := validClaims()
	wrongAud.Audience = jwt.ClaimStrings{"anon"}

	noExp := validClaims()
	noExp.ExpiresAt = nil

	tests := []struct {
		name  string
		token string
	}{
		{"garbage", "not-a-jwt"},
		{"wrong secret", sign(t, jwt.SigningMethodHS256, []byte("other-secret"), validClaims())},
		{"wrong alg", sign(t, jwt.SigningMethodHS512, []byte(testSecret), validClaims())},
		{"expired", sign(t, jwt.SigningMethodHS256, []byte(testSecret), expired)},
		{"no subject", sign(t, jwt.SigningMethodHS256, []byte(testSecret), noSub)},
		{"wrong audience", sign(t, jwt.SigningMethodHS256, []byte(testSecret), wrongAud)},
		{"no expiry", sign(t, jwt.SigningMethodHS256, []byte(testSecret), noExp)},
	}

	v := NewVerifier(testSecret, "authenticated")
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := v.Resolve(context.Background(), tc.token)
			if !errors.Is(err, domain.ErrUnauthenticated) {
				t.Errorf("expected ErrUnauthenticated, got %v", err)
			}
		})
	}
}

func TestResolve_NoAudienceConfigured(t *testing.T) {
	v := NewVerifier(testSecret, "")
	claims := validClaims()
	claims.Audience = nil

	if _, err := v.Resolve(context.Background(), sign(t, jwt.SigningMethodHS256, []byte(testSecret), claims)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestBearerToken(t *testing.T) {
	tests := []struct {
		header  string
		want    string
		wantErr bool
	}{
		{"", "", false},
		{"Bearer abc", "abc", false},
		{"bearer abc", "abc", false},
		{"Basic abc", "", true},
		{"Bearer", "", true},
		{"Bearer   ", "", true},
	}
	for _, tc := range tests {
		got, err := BearerToken(tc.header)
		if (err != nil) != tc.wantErr || got != tc.want {
			t.Errorf("BearerToken(%q) = %q, %v", tc.header, got, err)
		}
		if err != nil && !errors.Is(err, domain.ErrUnauthenticated) {
			t.Errorf("expected ErrUnauthenticated, got %v", err)
		}
	}
}

func TestCallerContext(t *testing.T) {
	if _, ok := CallerFromContext(context.Background()); ok {
		t.Error("expected no caller in empty context")
	}
	ctx := WithCaller(context.Background(), Caller{ID: "u1", Token: "t"})
	c, ok := CallerFromContext(ctx)
	if !ok || c.ID != "u1" || c.Token != "t" {
		t.Errorf("unexpected caller: %+v ok=%v", c, ok)
	}
}
