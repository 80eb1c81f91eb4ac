package consent

import (
	"context"

	domprofile "github.com/fuego-app/fuego/internal/domain/profile"
)

// ProfileReader loads the authorization view of a profile.
// It returns an error wrapping domain.ErrNotFound when no such profile exists.
type ProfileReader interface {
	GetAuthorization(ctx context.Context, profileID string) (domprofile.Authorization, error)
}
