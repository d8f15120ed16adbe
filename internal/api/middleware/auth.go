package middleware

import (
	"context"
	"net/http"
	"strings"

	apierrors "github.com/ows4444/pluginforge/internal/api/errors"
)

// AuthConfig maps static API keys to their user record. There is no JWT
// path: operators provision keys out of band and roll them via config.
type AuthConfig struct {
	Enabled bool
	APIKeys map[string]*User
}

// AuthMiddleware validates the "Authorization: ApiKey <key>" header,
// attaching the resolved User to the request context on success.
func AuthMiddleware(cfg AuthConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if !cfg.Enabled {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get(AuthorizationHeader)
			parts := strings.SplitN(header, " ", 2)
			if len(parts) != 2 || parts[0] != "ApiKey" {
				writeUnauthorized(w, r, "missing or malformed Authorization header")
				return
			}
			user, ok := cfg.APIKeys[parts[1]]
			if !ok {
				writeUnauthorized(w, r, "invalid API key")
				return
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), UserContextKey, user)))
		})
	}
}

// RBACMiddleware rejects callers whose role doesn't meet required.
func RBACMiddleware(required string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, ok := GetUser(r.Context())
			if !ok {
				writeUnauthorized(w, r, "authentication required")
				return
			}
			if !HasRequiredRole(user.Role, required) {
				writeForbidden(w, r, "insufficient role")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// AdminMiddleware requires RoleAdmin.
func AdminMiddleware(next http.Handler) http.Handler {
	return RBACMiddleware(RoleAdmin)(next)
}

// OperatorMiddleware requires RoleOperator or above.
func OperatorMiddleware(next http.Handler) http.Handler {
	return RBACMiddleware(RoleOperator)(next)
}

// GetUser extracts the authenticated caller from the request context.
func GetUser(ctx context.Context) (*User, bool) {
	user, ok := ctx.Value(UserContextKey).(*User)
	return user, ok
}

func writeUnauthorized(w http.ResponseWriter, r *http.Request, message string) {
	apierrors.WriteError(w, r, GetRequestID(r.Context()), apierrors.AuthenticationRequired().WithDetails(message))
}

func writeForbidden(w http.ResponseWriter, r *http.Request, message string) {
	apierrors.WriteError(w, r, GetRequestID(r.Context()), apierrors.InsufficientPermissions(message))
}
