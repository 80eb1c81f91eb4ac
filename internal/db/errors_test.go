package db

import (
	"errors"
	"fmt"
	"testing"

	"github.com/fuego-app/fuego/internal/domain"
)

func TestError_WrapsOperation(t *testing.T) {
	inner := errors.New("connection reset")
	err := &Error{Op: OpSelect, Err: inner}

	if err.Error() != "SELECT: connection reset" {
		t.Errorf("Error() = %q", err.Error())
	}
	if !errors.Is(err, inner) {
		t.Error("expected errors.Is to reach the inner error")
	}
}

func TestError_IsUpstreamFailure(t *testing.T) {
	err := fmt.Errorf("find_matches_cursor: %w", &Error{Op: OpSelect, Err: errors.New("connection reset")})

	if !errors.Is(err, domain.ErrUpstream) {
		t.Error("expected a store error to match domain.ErrUpstream")
	}
	if errors.Is(err, domain.ErrNotFound) {
		t.Error("store error must not match unrelated sentinels")
	}
}
