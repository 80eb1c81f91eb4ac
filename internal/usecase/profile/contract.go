package profile

import (
	"context"

	domprofile "github.com/fuego-app/fuego/internal/domain/profile"
)

// Repository defines the storage contract for profiles.
type Repository interface {
	Insert(ctx context.Context, p domprofile.Profile, embedding []float32) (domprofile.Profile, error)
}
