package middleware

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"messenger-sync/internal/identity"
)

type contextKey string

const sessionKey contextKey = "session"

// TokenValidator turns a bearer token into the session it was issued for
type TokenValidator interface {
	ValidateToken(token string) (identity.Session, error)
}

// AuthMiddleware creates a middleware for JWT authentication
func AuthMiddleware(validator TokenValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				respondError(w, "Authorization header required", http.StatusUnauthorized)
				return
			}

			parts := strings.Split(authHeader, " ")
			if len(parts) != 2 || parts[0] != "Bearer" {
				respondError(w, "Invalid authorization header format", http.StatusUnauthorized)
				return
			}

			session, err := validator.ValidateToken(parts[1])
			if err != nil {
				respondError(w, "Invalid token", http.StatusUnauthorized)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithSession(r.Context(), session)))
		})
	}
}

// WithSession stores session in ctx
func WithSession(ctx context.Context, session identity.Session) context.Context {
	return context.WithValue(ctx, sessionKey, session)
}

// GetSession extracts the session from context. The zero session is
// returned for unauthenticated requests.
func GetSession(ctx context.Context) identity.Session {
	session, _ := ctx.Value(sessionKey).(identity.Session)
	return session
}

// ValidateWebSocketToken validates the token passed as a WebSocket query parameter
func ValidateWebSocketToken(token string, validator TokenValidator) (identity.Session, error) {
	if token == "" {
		return identity.Session{}, fmt.Errorf("token required")
	}
	return validator.ValidateToken(token)
}

// respondError sends an error response
func respondError(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
