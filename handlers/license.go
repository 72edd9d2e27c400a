package handlers

import (
	"net/http"
	"strings"

	"commenta.app/cloud/internal/licensing"
	"commenta.app/cloud/internal/logger"
	"commenta.app/cloud/internal/metrics"
	"github.com/getsentry/sentry-go"
)

// ValidateRequest is the plugin's body. Site fields of any other JSON type
// are ignored rather than failing the whole request.
type ValidateRequest struct {
	Token    string `json:"token" validate:"required"`
	SiteURL  any    `json:"site_url"`
	SiteName any    `json:"site_name"`
}

func optionalString(v any) string {
	s, _ := v.(string)
	return s
}

// ValidateLicense answers the WordPress plugin. Every response carries the
// valid flag so the plugin can decide without looking at the status code.
func (s *Server) ValidateLicense(w http.ResponseWriter, r *http.Request) {
	var req ValidateRequest
	if err := s.decodeJSON(w, r, &req); err != nil || strings.TrimSpace(req.Token) == "" {
		metrics.ValidationsTotal.WithLabelValues(metrics.OutcomeMissingToken).Inc()
		writeJSON(w, http.StatusBadRequest, licensing.Result{Valid: false, Message: licensing.MessageTokenRequired})
		return
	}

	siteURL := optionalString(req.SiteURL)
	result, err := s.Validator.Validate(r.Context(), licensing.Request{
		Token:    req.Token,
		SiteURL:  siteURL,
		SiteName: optionalString(req.SiteName),
	})
	if err != nil {
		sentry.CaptureException(err)
		logger.Error("License validation failed", map[string]interface{}{
			"error":    err.Error(),
			"site_url": siteURL,
		})
		writeJSON(w, http.StatusInternalServerError, licensing.Result{Valid: false, Message: licensing.MessageInternalError})
		return
	}

	writeJSON(w, http.StatusOK, result)
}

func (s *Server) validateRateLimited(w http.ResponseWriter, r *http.Request) {
	metrics.ValidationsTotal.WithLabelValues(metrics.OutcomeRateLimited).Inc()
	writeJSON(w, http.StatusTooManyRequests, licensing.Result{Valid: false, Message: "Muitas requisições. Tente novamente em instantes."})
}
