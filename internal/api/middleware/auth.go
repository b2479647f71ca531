package middleware

import (
	"context"
	"errors"
	"net/http"

	"github.com/davidm/taskflow/internal/auth"
	"github.com/davidm/taskflow/internal/domain"
	"github.com/davidm/taskflow/internal/logger"
	"github.com/davidm/taskflow/internal/service"
)

type contextKey string

const (
	userKey      contextKey = "user"
	sessionIDKey contextKey = "sessionID"
)

// Auth authenticates the bearer token against the full chain (signature,
// blacklist, session registry, user lookup) and stores the user and session
// id on the request context. Store failures surface as 500, never as a
// silent pass.
func Auth(authService *service.AuthService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := auth.ExtractBearer(r.Header.Get("Authorization"))
			if token == "" {
				unauthorized(w, "Authentication token is required")
				return
			}

			user, sessionID, err := authService.Authenticate(r.Context(), token)
			if err != nil {
				if isAuthFailure(err) {
					unauthorized(w, "Authentication failed")
					return
				}
				logger.Error().Err(err).Msg("authentication infrastructure failure")
				http.Error(w, "Internal server error", http.StatusInternalServerError)
				return
			}

			ctx := context.WithValue(r.Context(), userKey, user)
			ctx = context.WithValue(ctx, sessionIDKey, sessionID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// isAuthFailure separates authentication failures (401) from infrastructure
// failures (500). Cryptographic failures are never retried.
func isAuthFailure(err error) bool {
	return errors.Is(err, auth.ErrTokenExpired) ||
		errors.Is(err, auth.ErrTokenMalformed) ||
		errors.Is(err, auth.ErrTokenVerification) ||
		errors.Is(err, service.ErrTokenRevoked) ||
		errors.Is(err, service.ErrSessionInvalid) ||
		errors.Is(err, service.ErrUserNotFound)
}

func unauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	w.Write([]byte(`{"status":"error","message":"` + message + `"}`))
}

func GetUser(ctx context.Context) (*domain.User, bool) {
	user, ok := ctx.Value(userKey).(*domain.User)
	return user, ok
}

func GetSessionID(ctx context.Context) (string, bool) {
	sessionID, ok := ctx.Value(sessionIDKey).(string)
	return sessionID, ok
}
