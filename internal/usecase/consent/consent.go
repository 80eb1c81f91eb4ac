// Package consent gates matching on caller identity, profile ownership and visibility.
package consent

import (
	"context"
	"errors"
	"fmt"

	"github.com/fuego-app/fuego/internal/domain"
	domprofile "github.com/fuego-app/fuego/internal/domain/profile"
)

// Reason explains a denial. It doubles as the error code returned to clients.
type Reason string

// Denial reasons.
const (
	ReasonMissingToken    Reason = "missing_token"
	ReasonNotFound        Reason = "not_found"
	ReasonForbidden       Reason = "forbidden"
	ReasonConsentRequired Reason = "consent_required"
)

// Decision is the outcome of Authorize.
type Decision struct {
	Allowed bool
	Reason  Reason
}

// Allowed is the permitting decision.
var Allowed = Decision{Allowed: true}

// Denied builds a denying decision.
func Denied(r Reason) Decision {
	return Decision{Reason: r}
}

// Authorize decides whether callerID may match against the profile.
// A nil auth means the profile lookup failed.
func Authorize(callerID string, auth *domprofile.Authorization) Decision {
	switch {
	case callerID == "":
		return Denied(ReasonMissingToken)
	case auth == nil:
		return Denied(ReasonNotFound)
	case callerID != auth.OwnerID && !auth.IsPublic:
		return Denied(ReasonForbidden)
	default:
		return Allowed
	}
}

// DeniedError carries a denial reason and unwraps to the matching domain sentinel.
type DeniedError struct {
	Reason Reason
}

func (e *DeniedError) Error() string {
	return "access denied: " + string(e.Reason)
}

// Unwrap maps the reason onto the domain error taxonomy.
func (e *DeniedError) Unwrap() error {
	switch e.Reason {
	case ReasonMissingToken:
		return domain.ErrUnauthenticated
	case ReasonNotFound:
		return domain.ErrNotFound
	default:
		return domain.ErrForbidden
	}
}

// Err returns nil for an allowing decision and a *DeniedError otherwise.
func (d Decision) Err() error {
	if d.Allowed {
		return nil
	}
	return &DeniedError{Reason: d.Reason}
}

// RequireCaller fails with missing_token when no caller was resolved.
func RequireCaller(callerID string) error {
	return Authorize(callerID, &domprofile.Authorization{OwnerID: callerID}).Err()
}

// Service enforces the guard against the profile store.
type Service struct {
	profiles       ProfileReader
	requireConsent bool
}

// New creates a guard. With requireConsent, allowed subjects must have opted in to matching.
func New(profiles ProfileReader, requireConsent bool) *Service {
	return &Service{profiles: profiles, requireConsent: requireConsent}
}

// Check authorizes callerID against profileID. Authorization is read fresh on every call.
func (s *Service) Check(ctx context.Context, callerID, profileID string) error {
	if err := RequireCaller(callerID); err != nil {
		return err
	}

	auth, err := s.profiles.GetAuthorization(ctx, profileID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return Authorize(callerID, nil).Err()
		}
		return fmt.Errorf("load profile authorization: %v: %w", err, domain.ErrUpstream)
	}

	if err := Authorize(callerID, &auth).Err(); err != nil {
		return err
	}
	if s.requireConsent && !auth.ConsentToMatching {
		return Denied(ReasonConsentRequired).Err()
	}
	return nil
}
