package chi

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"github.com/fuego-app/fuego/internal/identity"
	"github.com/fuego-app/fuego/internal/logger"
)

// exemptPaths are routes that never look at credentials (health, metrics).
var exemptPaths = map[string]struct{}{
	"/health":  {},
	"/metrics": {},
}

// TokenResolver maps a bearer token to the caller id.
type TokenResolver interface {
	Resolve(ctx context.Context, token string) (string, error)
}

// IdentityMiddleware resolves an optional Bearer token into the request's caller.
// A request without an Authorization header passes through anonymously; routes that
// need a caller reject it themselves. A present but invalid token is a 401.
// If resolver is nil, identity is disabled and every request is anonymous.
func IdentityMiddleware(resolver TokenResolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if resolver == nil {
			return next
		}

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := exemptPaths[r.URL.Path]; ok {
				next.ServeHTTP(w, r)
				return
			}

			token, err := identity.BearerToken(r.Header.Get("Authorization"))
			if err != nil {
				writeError(w, http.StatusUnauthorized, CodeUnauthorized, "authorization header must use Bearer scheme")
				return
			}
			if token == "" {
				next.ServeHTTP(w, r)
				return
			}

			callerID, err := resolver.Resolve(r.Context(), token)
			if err != nil {
				logger.FromContext(r.Context()).Debug("token rejected", zap.Error(err))
				writeError(w, http.StatusUnauthorized, CodeUnauthorized, "invalid or expired token")
				return
			}

			ctx := identity.WithCaller(r.Context(), identity.Caller{ID: callerID, Token: token})
			ctx = logger.WithFields(ctx, zap.String("caller_id", callerID))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
