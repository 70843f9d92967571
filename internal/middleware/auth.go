package middleware

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strings"

	"community-chat/internal/auth"
	"community-chat/internal/chat"
	"community-chat/internal/models"
	"community-chat/internal/repository"
)

type contextKey string

const UserKey contextKey = "user"

// BearerToken extracts the handshake credential from the Authorization
// header, the access_token cookie, or (for websocket dials from
// browsers) the token query parameter, in that order.
func BearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}
	if cookie, err := r.Cookie("access_token"); err == nil {
		return cookie.Value
	}
	return r.URL.Query().Get("token")
}

// Authenticate guards the REST surface: a valid token for an existing
// user or a 401.
func Authenticate(verifier *auth.Verifier, users repository.UserRepository) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := BearerToken(r)
			if token == "" {
				http.Error(w, "Authentication required", http.StatusUnauthorized)
				return
			}

			claims, err := verifier.ValidateToken(token)
			if err != nil {
				log.Printf("[AUTH] Invalid token: %v", err)
				http.Error(w, "Session expired or invalid", http.StatusUnauthorized)
				return
			}

			user, err := users.GetUserByID(r.Context(), claims.UserID)
			if err != nil {
				if errors.Is(err, chat.ErrNotFound) {
					log.Printf("[AUTH] Token valid but user no longer exists: %s", claims.UserID)
					http.Error(w, "User account not found", http.StatusUnauthorized)
					return
				}
				log.Printf("[ERROR] Middleware DB lookup failed: %v", err)
				http.Error(w, "Internal server error", http.StatusInternalServerError)
				return
			}

			ctx := context.WithValue(r.Context(), UserKey, user)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// UserFrom pulls the authenticated user the middleware stored.
func UserFrom(ctx context.Context) (*models.User, bool) {
	user, ok := ctx.Value(UserKey).(*models.User)
	return user, ok
}
