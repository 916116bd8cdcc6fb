package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/mcoot/mclink/internal/api/apierr"
	"github.com/mcoot/mclink/internal/model"
	"github.com/mcoot/mclink/internal/services/auth"
)

type contextKey string

const keyContextKey contextKey = "api_key"

// RequireScope creates authentication middleware admitting keys that hold scope
func RequireScope(authService *auth.Service, scope model.Scope) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			secret := extractKey(r)
			if secret == "" {
				apierr.WriteError(w, apierr.NewUnauthorizedError())
				return
			}

			key, err := authService.Authenticate(secret)
			if err != nil {
				apierr.WriteError(w, err)
				return
			}
			if !key.HasScope(scope) {
				apierr.WriteError(w, apierr.NewForbiddenError(scope))
				return
			}

			ctx := context.WithValue(r.Context(), keyContextKey, key)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// extractKey reads the API key from X-API-Key, then a bearer token
func extractKey(r *http.Request) string {
	if key := r.Header.Get("X-API-Key"); key != "" {
		return key
	}
	authHeader := r.Header.Get("Authorization")
	if strings.HasPrefix(authHeader, "Bearer ") {
		return strings.TrimPrefix(authHeader, "Bearer ")
	}
	return ""
}

// GetKey returns the authenticated API key from the request context
func GetKey(ctx context.Context) *auth.Key {
	key, _ := ctx.Value(keyContextKey).(*auth.Key)
	return key
}
