package middleware

import (
	"context"
	"net/http"
	"strings"

	authproviders "github.com/cbodonnell/gridlock/pkg/auth/providers"
	"github.com/cbodonnell/gridlock/pkg/log"
)

type contextKey string

// UserContextKey is the request context key the authenticated user id is
// stored under.
const UserContextKey contextKey = "user"

// NewAuthMiddleware verifies the bearer token on every request and puts
// the resolved user id on the request context.
func NewAuthMiddleware(authProvider authproviders.AuthProvider) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			token := strings.TrimPrefix(authHeader, "Bearer ")
			if token == "" || token == authHeader {
				http.Error(w, "Missing bearer token", http.StatusUnauthorized)
				return
			}

			claims, err := authProvider.VerifyToken(r.Context(), token)
			if err != nil {
				log.Debug("failed to verify token: %v", err)
				http.Error(w, "Invalid token", http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), UserContextKey, claims.UID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// UserID returns the authenticated user id set by the auth middleware.
func UserID(r *http.Request) (string, bool) {
	userID, ok := r.Context().Value(UserContextKey).(string)
	return userID, ok && userID != ""
}
