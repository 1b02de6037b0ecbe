package auth

import (
	"context"
	"net/http"

	logger "github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
)

const tokenHeader = "X-Admin-Token"

// AdminOnly guards a route subtree behind the admin token. The token
// travels in the X-Admin-Token header and is verified against the
// configured bcrypt hash. An empty hash disables the guard.
func AdminOnly(tokenHash string) func(http.Handler) http.Handler {
	if tokenHash == "" {
		logger.Warn("ADMIN_TOKEN_HASH is empty, admin routes are unprotected")
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if tokenHash != "" {
				token := r.Header.Get(tokenHeader)
				if token == "" {
					http.Error(w, "Unauthorized", http.StatusUnauthorized)
					return
				}

				if err := bcrypt.CompareHashAndPassword([]byte(tokenHash), []byte(token)); err != nil {
					logger.WithField("remote", r.RemoteAddr).
						Warn("Rejected request with invalid admin token")
					http.Error(w, "Unauthorized", http.StatusUnauthorized)
					return
				}
			}

			ctx := context.WithValue(r.Context(), AdminKey, true)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
