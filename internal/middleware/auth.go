package middleware

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/cmpc-libros/apiserver/internal/auth"
	"github.com/cmpc-libros/apiserver/types"
)

type contextKey string

const userContextKey contextKey = "user"

// UserLookup resolves the user a verified token refers to. A token whose
// subject no longer exists must not authenticate.
type UserLookup interface {
	GetByID(ctx context.Context, id int) (types.User, error)
}

// RequireAuth verifies the session token (cookie first, bearer header as
// fallback), confirms the referenced user still exists, and injects the
// user into the request context. Everything else gets a 401.
func RequireAuth(secret []byte, users UserLookup) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString, err := auth.TokenFromRequest(r)
			if err != nil {
				unauthorized(w)
				return
			}

			userID, _, err := auth.ParseToken(tokenString, secret)
			if err != nil {
				unauthorized(w)
				return
			}

			user, err := users.GetByID(r.Context(), userID)
			if err != nil {
				unauthorized(w)
				return
			}

			ctx := context.WithValue(r.Context(), userContextKey, user)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// UserFromContext returns the authenticated user, if any.
func UserFromContext(ctx context.Context) (types.User, bool) {
	user, ok := ctx.Value(userContextKey).(types.User)
	return user, ok
}

func unauthorized(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": "unauthorized"})
}
