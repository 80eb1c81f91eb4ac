package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidArgument signals client-correctable input (missing subject, bad limit).
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrUnauthenticated signals a missing or invalid caller credential.
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrForbidden signals a consent or ownership denial.
	ErrForbidden = errors.New("forbidden")
	// ErrNotFound signals a missing resource.
	ErrNotFound = errors.New("not found")
	// ErrUpstream signals a store or provider failure. The upstream text is logged, not exposed.
	ErrUpstream = errors.New("upstream failure")
	// ErrNotConfigured signals that a required external credential or provider is absent.
	ErrNotConfigured = errors.New("not configured")
	// ErrRateLimited signals a local rate limit hit.
	ErrRateLimited = errors.New("rate limited")
	// ErrEmbeddingProviderError signals an embedding provider failure. It is an upstream failure.
	ErrEmbeddingProviderError = fmt.Errorf("embedding provider error: %w", ErrUpstream)
)
