package handlers

import (
	"net/http"
	"time"

	"commenta.app/cloud/internal/logger"
	"commenta.app/cloud/models"
)

type MeResponse struct {
	Plan string `json:"plan"`
}

func (s *Server) Me(w http.ResponseWriter, r *http.Request) {
	id := identity(r)
	profile, err := s.Storage.GetProfile(r.Context(), id.UserID)
	if err != nil {
		s.internalError(w, "Failed to load profile", err)
		return
	}

	plan := models.PlanFree
	if profile != nil && profile.Plan != "" {
		plan = profile.Plan
	}
	writeJSON(w, http.StatusOK, MeResponse{Plan: plan})
}

type SitesResponse struct {
	Count int                  `json:"count"`
	Sites []models.LicenseSite `json:"sites"`
}

// MySites lists the installations that validated the user's license. Users
// without a PRO plan or without a license get an empty list.
func (s *Server) MySites(w http.ResponseWriter, r *http.Request) {
	id := identity(r)
	empty := SitesResponse{Count: 0, Sites: []models.LicenseSite{}}

	profile, err := s.Storage.GetProfile(r.Context(), id.UserID)
	if err != nil {
		s.internalError(w, "Failed to load profile", err)
		return
	}
	if !profile.IsPro() {
		writeJSON(w, http.StatusOK, empty)
		return
	}

	license, err := s.Storage.FindLicenseByUser(r.Context(), id.UserID)
	if err != nil {
		s.internalError(w, "Failed to load license", err)
		return
	}
	if license == nil {
		writeJSON(w, http.StatusOK, empty)
		return
	}

	sites, err := s.Storage.ListLicenseSites(r.Context(), license.ID)
	if err != nil {
		s.internalError(w, "Failed to load sites", err)
		return
	}
	writeJSON(w, http.StatusOK, SitesResponse{Count: len(sites), Sites: sites})
}

type LicenseResponse struct {
	LicenseKey string    `json:"license_key"`
	Status     string    `json:"status"`
	CreatedAt  time.Time `json:"created_at"`
}

func (s *Server) MyLicense(w http.ResponseWriter, r *http.Request) {
	id := identity(r)

	profile, err := s.Storage.GetProfile(r.Context(), id.UserID)
	if err != nil {
		s.internalError(w, "Failed to load profile", err)
		return
	}
	if !profile.IsPro() {
		writeError(w, http.StatusNotFound, "No license")
		return
	}

	license, err := s.Storage.FindLicenseByUser(r.Context(), id.UserID)
	if err != nil {
		s.internalError(w, "Failed to load license", err)
		return
	}
	if license == nil {
		writeError(w, http.StatusNotFound, "No license")
		return
	}

	writeJSON(w, http.StatusOK, LicenseResponse{
		LicenseKey: license.Key,
		Status:     license.Status,
		CreatedAt:  license.CreatedAt,
	})
}

func (s *Server) internalError(w http.ResponseWriter, message string, err error) {
	logger.Error(message, map[string]interface{}{
		"error": err.Error(),
	})
	writeError(w, http.StatusInternalServerError, "Internal server error")
}
