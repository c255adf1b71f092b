package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/sakif/panchang/internal/apperror"
	"github.com/sakif/panchang/internal/model"
)

const (
	// SessionCookie holds the session JWT.
	SessionCookie = "session"
	// APITokenHeader carries the API token on programmatic calls.
	APITokenHeader = "X-API-Token"
)

type contextKey string

const (
	userIDKey contextKey = "userID"
	userKey   contextKey = "user"
)

// APITokenAuthenticator resolves an API token to its user.
type APITokenAuthenticator interface {
	AuthenticateAPIToken(ctx context.Context, token string) (*model.User, error)
}

// UserLookup resolves the user a session token names.
type UserLookup interface {
	GetUser(ctx context.Context, id int64) (*model.User, error)
}

// RequireSession admits requests carrying a valid session cookie whose user still exists and
// whose session version is current. The user is stored in the request context.
func RequireSession(tokens *TokenService, users UserLookup) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			cookie, err := r.Cookie(SessionCookie)
			if err != nil || cookie.Value == "" {
				writeUnauthorized(w, "login required")
				return
			}

			session, err := tokens.Validate(cookie.Value)
			if err != nil {
				writeUnauthorized(w, "session expired or invalid")
				return
			}

			user, err := users.GetUser(r.Context(), session.UserID)
			switch {
			case errors.Is(err, apperror.ErrNotFound):
				writeUnauthorized(w, "session revoked")
				return
			case err != nil:
				writeJSONError(w, http.StatusInternalServerError, "internal_error", "An internal error occurred")
				return
			case user.SessionVersion != session.Version:
				writeUnauthorized(w, "session revoked")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), user)))
		})
	}
}

// RequireAPIToken admits requests whose X-API-Token header belongs to a user. The user is
// stored in the request context.
func RequireAPIToken(authn APITokenAuthenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := r.Header.Get(APITokenHeader)
			if token == "" {
				writeUnauthorized(w, "API token is missing")
				return
			}

			user, err := authn.AuthenticateAPIToken(r.Context(), token)
			if err != nil {
				writeUnauthorized(w, "Invalid API token")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), user)))
		})
	}
}

// UserIDFromContext returns the authenticated user id set by either middleware.
func UserIDFromContext(ctx context.Context) (int64, bool) {
	id, ok := ctx.Value(userIDKey).(int64)
	return id, ok && id > 0
}

// UserFromContext returns the user set by either middleware.
func UserFromContext(ctx context.Context) (*model.User, bool) {
	u, ok := ctx.Value(userKey).(*model.User)
	return u, ok && u != nil
}

// WithUser returns ctx carrying user, as the middlewares set it.
func WithUser(ctx context.Context, user *model.User) context.Context {
	ctx = context.WithValue(ctx, userIDKey, user.ID)
	return context.WithValue(ctx, userKey, user)
}

func writeUnauthorized(w http.ResponseWriter, msg string) {
	writeJSONError(w, http.StatusUnauthorized, "unauthorized", msg)
}

func writeJSONError(w http.ResponseWriter, status int, kind, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": kind, "message": msg})
}
