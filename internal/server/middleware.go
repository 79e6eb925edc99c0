package server

import (
	"context"
	"net/http"
	"strings"

	"github.com/payperwork/payperwork/internal/auth"
)

type contextKey string

const userIDKey contextKey = "user_id"

// auth wraps a handler with bearer-token verification. The verified user id
// is placed on the request context; handlers never trust client-supplied ids.
func (s *Server) auth(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			respondError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}
		userID, err := auth.Verify(token, s.authSecret)
		if err != nil {
			respondError(w, http.StatusUnauthorized, "invalid token")
			return
		}
		next(w, r.WithContext(context.WithValue(r.Context(), userIDKey, userID)))
	})
}

// userID returns the authenticated user for a request.
func userID(r *http.Request) string {
	id, _ := r.Context().Value(userIDKey).(string)
	return id
}
