package server

import (
	"context"
	"net/http"
)

// ContextKey is a custom type for context keys to avoid collisions
type ContextKey string

const (
	// ContextKeyUserID stores the authenticated user ID
	ContextKeyUserID ContextKey = "user_id"
	// ContextKeyAccessToken stores the resolved access token
	ContextKeyAccessToken ContextKey = "access_token"
)

// RequireAuth validates the Authorization header through the legacy bridge,
// which accepts both "Bearer" and the old "Token" scheme, and injects the
// resolved token into the request context.
func (s *Server) RequireAuth() func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			at, err := s.services.Bridge.ResolveHeader(r.Context(), r.Header.Get("Authorization"))
			if err != nil {
				writeOAuthError(w, http.StatusUnauthorized, "unauthorized", "invalid or missing token")
				return
			}

			ctx := context.WithValue(r.Context(), ContextKeyUserID, at.UserID)
			ctx = context.WithValue(ctx, ContextKeyAccessToken, at)
			next(w, r.WithContext(ctx))
		}
	}
}

func authenticatedUserID(r *http.Request) string {
	userID, _ := r.Context().Value(ContextKeyUserID).(string)
	return userID
}
