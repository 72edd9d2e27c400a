package handlers

import (
	"context"
	"net/http"

	"commenta.app/cloud/internal/auth"
	"commenta.app/cloud/internal/logger"
	"commenta.app/cloud/models"
)

type profileKey struct{}

// requireUser resolves the hosted-auth session token into an Identity.
func (s *Server) requireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.Auth.Configured() {
			writeError(w, http.StatusServiceUnavailable, "Authentication not configured")
			return
		}

		id, err := s.Auth.Verify(auth.TokenFromRequest(r))
		if err != nil {
			writeError(w, http.StatusUnauthorized, "Unauthorized")
			return
		}
		next.ServeHTTP(w, r.WithContext(auth.WithIdentity(r.Context(), id)))
	})
}

func (s *Server) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := auth.FromContext(r.Context())
		if !ok {
			writeError(w, http.StatusUnauthorized, "Unauthorized")
			return
		}

		isAdmin, err := s.Storage.IsAdmin(r.Context(), id.UserID)
		if err != nil {
			logger.Error("Failed to check admin access", map[string]interface{}{
				"user_id": id.UserID,
				"error":   err.Error(),
			})
			writeError(w, http.StatusInternalServerError, "Internal server error")
			return
		}
		if !isAdmin {
			writeError(w, http.StatusForbidden, "Forbidden")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// requirePro lets through users on the pro plan and stores their profile in
// the request context.
func (s *Server) requirePro(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := auth.FromContext(r.Context())
		if !ok {
			writeError(w, http.StatusUnauthorized, "Unauthorized")
			return
		}

		profile, err := s.Storage.GetProfile(r.Context(), id.UserID)
		if err != nil {
			logger.Error("Failed to load profile", map[string]interface{}{
				"user_id": id.UserID,
				"error":   err.Error(),
			})
			writeError(w, http.StatusInternalServerError, "Internal server error")
			return
		}
		if !profile.IsPro() {
			writeError(w, http.StatusForbidden, "Support is available to PRO subscribers")
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), profileKey{}, profile)))
	})
}

func identity(r *http.Request) *auth.Identity {
	id, _ := auth.FromContext(r.Context())
	return id
}

func proProfile(r *http.Request) *models.Profile {
	p, _ := r.Context().Value(profileKey{}).(*models.Profile)
	return p
}
