package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/cors"

	"github.com/papertrade/papertrade/internal/apperrors"
)

type ctxKey int

const userIDKey ctxKey = iota

// TokenVerifier resolves a session token to a user ID.
type TokenVerifier interface {
	VerifyToken(token string) (string, error)
}

// RequireUser rejects requests without a valid bearer token and stores the
// token's user ID in the request context.
func RequireUser(v TokenVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || token == "" {
				RespondError(w, r, apperrors.Reject(apperrors.ErrUnauthorized, "missing bearer token"))
				return
			}
			userID, err := v.VerifyToken(strings.TrimSpace(token))
			if err != nil {
				RespondError(w, r, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), userIDKey, userID)))
		})
	}
}

// UserID returns the authenticated user's ID.
func UserID(ctx context.Context) string {
	id, _ := ctx.Value(userIDKey).(string)
	return id
}

// NoCache disables response caching.
func NoCache(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
		w.Header().Set("Expires", "0")
		w.Header().Set("Pragma", "no-cache")
		next.ServeHTTP(w, r)
	})
}

// NewCORS creates a new CORS middleware with the given allowed origins
func NewCORS(allowedOrigins []string) *cors.Cors {
	return cors.New(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		ExposedHeaders:   []string{"Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	})
}
