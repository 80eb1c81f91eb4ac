// Package identity resolves bearer tokens to caller ids.
package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/fuego-app/fuego/internal/domain"
)

// Caller is the authenticated principal of a request.
type Caller struct {
	ID    string
	Token string // raw bearer token, forwarded to row-level-security backends
}

type ctxKey struct{}

// WithCaller stores the caller in the context.
func WithCaller(ctx context.Context, c Caller) context.Context {
	return context.WithValue(ctx, ctxKey{}, c)
}

// CallerFromContext returns the caller, if one was resolved.
func CallerFromContext(ctx context.Context) (Caller, bool) {
	c, ok := ctx.Value(ctxKey{}).(Caller)
	return c, ok && c.ID != ""
}

// BearerToken extracts the token from an Authorization header value.
// An empty header yields "" and no error; any other scheme is unauthenticated.
func BearerToken(header string) (string, error) {
	if header == "" {
		return "", nil
	}
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
		return "", fmt.Errorf("malformed authorization header: %w", domain.ErrUnauthenticated)
	}
	return strings.TrimSpace(token), nil
}

// Verifier validates HS256 tokens signed with the project JWT secret.
type Verifier struct {
	secret   []byte
	audience string
}

// NewVerifier creates a verifier. An empty audience skips the aud check.
func NewVerifier(secret, audience string) *Verifier {
	return &Verifier{secret: []byte(secret), audience: audience}
}

// Resolve verifies the token and returns its subject.
func (v *Verifier) Resolve(_ context.Context, token string) (string, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if v.audience != "" {
		opts = append(opts, jwt.WithAudience(v.audience))
	}

	var claims jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return v.secret, nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", fmt.Errorf("token expired: %w", domain.ErrUnauthenticated)
		}
		return "", fmt.Errorf("invalid token: %w", domain.ErrUnauthenticated)
	}
	if claims.Subject == "" {
		return "", fmt.Errorf("token has no subject: %w", domain.ErrUnauthenticated)
	}
	return claims.Subject, nil
}
