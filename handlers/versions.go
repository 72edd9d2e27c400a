package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"path"
	"strings"
	"time"

	"commenta.app/cloud/internal/logger"
	"commenta.app/cloud/internal/version"
	"commenta.app/cloud/models"
	"commenta.app/cloud/storage"
	"github.com/go-chi/chi/v5"
)

const (
	maxReleaseSize = 4 << 20
	dateLayout     = "2006-01-02"
)

type ChangelogResponse struct {
	Version       string `json:"version"`
	ReleaseDate   string `json:"release_date"`
	Description   string `json:"description,omitempty"`
	ChangelogText string `json:"changelog_text,omitempty"`
	ChangelogURL  string `json:"changelog_url,omitempty"`
	DownloadURL   string `json:"download_url,omitempty"`
	Channel       string `json:"release_channel"`
}

func changelogFrom(v *models.PluginVersion) ChangelogResponse {
	return ChangelogResponse{
		Version:       v.Version,
		ReleaseDate:   v.ReleaseDate.Format(dateLayout),
		Description:   v.Description,
		ChangelogText: v.ChangelogText,
		ChangelogURL:  v.ChangelogURL,
		DownloadURL:   v.DownloadURL,
		Channel:       v.ReleaseChannel,
	}
}

// Changelog serves the public release notes of one version.
func (s *Server) Changelog(w http.ResponseWriter, r *http.Request) {
	v := strings.TrimSpace(chi.URLParam(r, "version"))
	if v == "" {
		writeError(w, http.StatusBadRequest, "Version required")
		return
	}

	release, err := s.Storage.GetVersionByVersion(r.Context(), v)
	if err != nil {
		s.internalError(w, "Failed to load version", err)
		return
	}
	if release == nil {
		writeError(w, http.StatusNotFound, "Version not found")
		return
	}
	writeJSON(w, http.StatusOK, changelogFrom(release))
}

// LatestChangelog serves the highest version of a release channel.
func (s *Server) LatestChangelog(w http.ResponseWriter, r *http.Request) {
	channel, _ := models.ParseReleaseChannel(r.URL.Query().Get("channel"))

	releases, err := s.Storage.ListVersionsByChannel(r.Context(), channel)
	if err != nil {
		s.internalError(w, "Failed to list versions", err)
		return
	}

	names := make([]string, len(releases))
	for i, rel := range releases {
		names[i] = rel.Version
	}
	idx := version.Newest(names)
	if idx < 0 {
		writeError(w, http.StatusNotFound, "No releases")
		return
	}
	writeJSON(w, http.StatusOK, changelogFrom(&releases[idx]))
}

type VersionsResponse struct {
	Versions []models.PluginVersion `json:"versions"`
}

func (s *Server) AdminListVersions(w http.ResponseWriter, r *http.Request) {
	versions, err := s.Storage.ListVersions(r.Context())
	if err != nil {
		s.internalError(w, "Failed to list versions", err)
		return
	}
	writeJSON(w, http.StatusOK, VersionsResponse{Versions: versions})
}

// VersionRequest is the body of create and update calls. On update only the
// fields present are applied.
type VersionRequest struct {
	Version        *string `json:"version"`
	ReleaseDate    *string `json:"release_date" validate:"omitempty,datetime=2006-01-02"`
	Description    *string `json:"description"`
	FileName       *string `json:"file_name"`
	ChangelogURL   *string `json:"changelog_url" validate:"omitempty,url"`
	ChangelogText  *string `json:"changelog_text"`
	DownloadURL    *string `json:"download_url" validate:"omitempty,url"`
	IsPrerelease   *bool   `json:"is_prerelease"`
	ReleaseChannel *string `json:"release_channel"`
}

// applyVersionRequest copies the request onto v and reports whether any field was set.
func (s *Server) applyVersionRequest(req VersionRequest, v *models.PluginVersion) (bool, error) {
	changed := false
	text := func(p *string, dst *string) {
		if p != nil {
			*dst = strings.TrimSpace(*p)
			changed = true
		}
	}

	if req.Version != nil && strings.TrimSpace(*req.Version) != "" {
		v.Version = strings.TrimSpace(*req.Version)
		changed = true
	}
	if req.ReleaseDate != nil {
		date := s.now().UTC()
		if d := strings.TrimSpace(*req.ReleaseDate); d != "" {
			parsed, err := time.Parse(dateLayout, d)
			if err != nil {
				return false, fmt.Errorf("release_date must be YYYY-MM-DD")
			}
			date = parsed
		}
		v.ReleaseDate = truncateDay(date)
		changed = true
	}
	text(req.Description, &v.Description)
	text(req.FileName, &v.FileName)
	text(req.ChangelogURL, &v.ChangelogURL)
	text(req.DownloadURL, &v.DownloadURL)
	if req.ChangelogText != nil {
		v.ChangelogText = strings.TrimSpace(s.sanitizer.Sanitize(*req.ChangelogText))
		changed = true
	}
	if req.IsPrerelease != nil {
		v.IsPrerelease = *req.IsPrerelease
		changed = true
	}
	if req.ReleaseChannel != nil {
		if channel, ok := models.ParseReleaseChannel(*req.ReleaseChannel); ok {
			v.ReleaseChannel = channel
			changed = true
		}
	}
	return changed, nil
}

func truncateDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func (s *Server) AdminCreateVersion(w http.ResponseWriter, r *http.Request) {
	var req VersionRequest
	if err := s.decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Version == nil || strings.TrimSpace(*req.Version) == "" {
		writeError(w, http.StatusBadRequest, "version is required")
		return
	}

	v := &models.PluginVersion{
		ReleaseDate:    truncateDay(s.now().UTC()),
		ReleaseChannel: models.ChannelStable,
	}
	if _, err := s.applyVersionRequest(req, v); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	err := s.Storage.CreateVersion(r.Context(), v)
	if errors.Is(err, storage.ErrDuplicate) {
		writeError(w, http.StatusConflict, "Version already exists")
		return
	}
	if err != nil {
		s.internalError(w, "Failed to create version", err)
		return
	}

	logger.Info("Plugin version created", map[string]interface{}{
		"version": v.Version,
		"channel": v.ReleaseChannel,
	})
	writeJSON(w, http.StatusCreated, map[string]*models.PluginVersion{"version": v})
}

func (s *Server) AdminUpdateVersion(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !validID(id) {
		writeError(w, http.StatusNotFound, "Version not found")
		return
	}

	var req VersionRequest
	if err := s.decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	v, err := s.Storage.GetVersion(r.Context(), id)
	if err != nil {
		s.internalError(w, "Failed to load version", err)
		return
	}
	if v == nil {
		writeError(w, http.StatusNotFound, "Version not found")
		return
	}

	changed, err := s.applyVersionRequest(req, v)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if !changed {
		writeError(w, http.StatusBadRequest, "No fields to update")
		return
	}

	err = s.Storage.UpdateVersion(r.Context(), v)
	switch {
	case errors.Is(err, storage.ErrDuplicate):
		writeError(w, http.StatusConflict, "Version already exists")
	case errors.Is(err, storage.ErrNotFound):
		writeError(w, http.StatusNotFound, "Version not found")
	case err != nil:
		s.internalError(w, "Failed to update version", err)
	default:
		writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
	}
}

func (s *Server) AdminDeleteVersion(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !validID(id) {
		writeError(w, http.StatusNotFound, "Version not found")
		return
	}

	err := s.Storage.DeleteVersion(r.Context(), id)
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Version not found")
		return
	}
	if err != nil {
		s.internalError(w, "Failed to delete version", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

type UploadResponse struct {
	DownloadURL string `json:"download_url"`
	FileName    string `json:"file_name"`
}

// AdminUploadRelease stores a plugin .zip in the release bucket under a
// folder named after the version.
func (s *Server) AdminUploadRelease(w http.ResponseWriter, r *http.Request) {
	if !s.Objects.Configured() {
		writeError(w, http.StatusServiceUnavailable, "Object storage not configured")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxReleaseSize+(1<<20))
	if err := r.ParseMultipartForm(maxReleaseSize); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid form data")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "Arquivo .zip é obrigatório")
		return
	}
	defer file.Close()

	name := path.Base(strings.ReplaceAll(header.Filename, "\\", "/"))
	if !strings.HasSuffix(strings.ToLower(name), ".zip") {
		writeError(w, http.StatusBadRequest, "Apenas arquivos .zip são permitidos")
		return
	}
	if header.Size > maxReleaseSize {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("Arquivo muito grande. Máximo %dMB.", maxReleaseSize>>20))
		return
	}

	folder := "uploads"
	if v := strings.TrimSpace(r.FormValue("version")); v != "" {
		folder = version.SanitizePath(v)
	}

	contentType := header.Header.Get("Content-Type")
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = "application/zip"
	}

	url, err := s.Objects.Upload(r.Context(), folder+"/"+name, contentType, file)
	if err != nil {
		s.internalError(w, "Failed to upload release", err)
		return
	}

	logger.Info("Plugin release uploaded", map[string]interface{}{
		"file_name": name,
		"folder":    folder,
	})
	writeJSON(w, http.StatusOK, UploadResponse{DownloadURL: url, FileName: name})
}
