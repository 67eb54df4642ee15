package auth

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/sakif/convoy/internal/apperror"
	"github.com/sakif/convoy/internal/middleware"
	"github.com/sakif/convoy/internal/model"
)

// contextKey is package-private so no other package can read or shadow the
// authenticated user id by guessing a string key.
type contextKey string

const userIDKey contextKey = "userID"

// UserResolver loads the account behind a token subject. The service layer's
// AuthService satisfies it; tests pass a map-backed fake.
type UserResolver interface {
	GetUserByID(ctx context.Context, id string) (*model.User, error)
}

// RequireAuth guards a route group.
//
// Responses:
//   - 401 when the Authorization header is missing or the token fails
//     validation, or when the subject no longer exists
//   - 403 when the account exists but has been deactivated
//   - 503 when the user lookup times out, 500 when it fails otherwise
//
// On success the user id is stored in the request context for
// UserIDFromContext.
func RequireAuth(tokens *TokenService, users UserResolver, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := bearerToken(r.Header.Get("Authorization"))
			if raw == "" {
				deny(w, http.StatusUnauthorized, "No token, authorization denied")
				return
			}

			userID, err := tokens.Validate(raw)
			if err != nil {
				deny(w, http.StatusUnauthorized, "Token is not valid")
				return
			}

			user, err := users.GetUserByID(r.Context(), userID)
			switch {
			case err == nil && user != nil:
			case err == nil, errors.Is(err, apperror.ErrNotFound):
				deny(w, http.StatusUnauthorized, "Token is not valid")
				return
			case errors.Is(err, context.DeadlineExceeded):
				logger.Warn("auth: token subject lookup timed out",
					slog.String("userID", userID),
					slog.String("error", err.Error()),
				)
				deny(w, http.StatusServiceUnavailable, "The request timed out, please retry")
				return
			default:
				logger.Error("auth: token subject lookup failed",
					slog.String("userID", userID),
					slog.String("error", err.Error()),
				)
				deny(w, http.StatusInternalServerError, "An internal error occurred")
				return
			}
			if !user.IsActive {
				deny(w, http.StatusForbidden, "Account is inactive")
				return
			}

			middleware.TagUser(r.Context(), user.ID)
			next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), user.ID)))
		})
	}
}

// WithUserID returns a context carrying an authenticated user id. Handler tests
// use it to skip the middleware.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

// UserIDFromContext returns ("", false) for anonymous requests.
func UserIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(userIDKey).(string)
	return id, ok && id != ""
}

// bearerToken accepts "Bearer <token>" and, leniently, a bare token.
func bearerToken(header string) string {
	fields := strings.Fields(header)
	switch len(fields) {
	case 1:
		return fields[0]
	case 2:
		if strings.EqualFold(fields[0], "Bearer") {
			return fields[1]
		}
	}
	return ""
}

// deny writes the standard response envelope. It lives here rather than in the
// handler package so auth has no dependency on the HTTP handlers.
func deny(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"success": false,
		"status":  "ERROR",
		"message": message,
		"data":    nil,
	})
}
