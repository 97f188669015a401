package auth

import (
	"net/http"
	"strings"
)

// IsAdmin gates the credential management endpoints behind a bearer token
// with the admin role. The internal bundle endpoints do not use this; their
// sole trust signal is the caller's network origin.
func IsAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, err := extractClaims(r)
		if err != nil {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		if claims.Role != "admin" {
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func extractClaims(r *http.Request) (*Claims, error) {
	authHeader := r.Header.Get("Authorization")
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return nil, ErrInvalidToken
	}
	token := strings.TrimPrefix(authHeader, "Bearer ")
	return ValidateToken(token)
}
