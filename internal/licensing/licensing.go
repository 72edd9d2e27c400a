package licensing

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"commenta.app/cloud/internal/logger"
	"commenta.app/cloud/internal/metrics"
	"commenta.app/cloud/models"
	"github.com/getsentry/sentry-go"
	"golang.org/x/net/idna"
)

// Messages returned to the WordPress plugin. The plugin shows them verbatim.
const (
	MessageTokenRequired   = "Token é obrigatório."
	MessageInvalidToken    = "Token inválido ou expirado."
	MessageRevoked         = "Licença revogada."
	MessageAccountNotFound = "Conta não encontrada."
	MessageNotPro          = "Plano não é Pro."
	MessageInternalError   = "Erro ao validar licença."
)

// Store is the persistence the validator depends on.
type Store interface {
	FindLicenseByKey(ctx context.Context, key string) (*models.License, error)
	GetProfile(ctx context.Context, userID string) (*models.Profile, error)
	UpsertLicenseSite(ctx context.Context, licenseID, siteURL, siteName string, at time.Time) error
}

type Request struct {
	Token    string `json:"token"`
	SiteURL  string `json:"site_url"`
	SiteName string `json:"site_name"`
}

type Result struct {
	Valid   bool   `json:"valid"`
	Plan    string `json:"plan,omitempty"`
	Message string `json:"message,omitempty"`
}

type Validator struct {
	Store Store
	Now   func() time.Time
}

func NewValidator(store Store) *Validator {
	return &Validator{Store: store, Now: time.Now}
}

// Validate decides whether the presented license token grants PRO access.
// On success the calling site is recorded against the license; a failure to
// record it is logged and does not change the result.
func (v *Validator) Validate(ctx context.Context, req Request) (Result, error) {
	token := strings.TrimSpace(req.Token)
	if token == "" {
		metrics.ValidationsTotal.WithLabelValues(metrics.OutcomeMissingToken).Inc()
		return Result{Valid: false, Message: MessageTokenRequired}, nil
	}

	license, err := v.Store.FindLicenseByKey(ctx, token)
	if err != nil {
		return v.fail(fmt.Errorf("failed to look up license: %w", err))
	}
	if license == nil {
		return v.reject(metrics.OutcomeUnknownKey, MessageInvalidToken), nil
	}
	if !license.IsActive() {
		return v.reject(metrics.OutcomeRevoked, MessageRevoked), nil
	}

	profile, err := v.Store.GetProfile(ctx, license.UserID)
	if err != nil {
		return v.fail(fmt.Errorf("failed to load profile: %w", err))
	}
	if profile == nil {
		return v.reject(metrics.OutcomeNoAccount, MessageAccountNotFound), nil
	}
	if !profile.IsPro() {
		return v.reject(metrics.OutcomeNotPro, MessageNotPro), nil
	}

	if siteURL := NormalizeSiteURL(req.SiteURL); siteURL != "" {
		v.recordSite(ctx, license.ID, siteURL, strings.TrimSpace(req.SiteName))
	}

	metrics.ValidationsTotal.WithLabelValues(metrics.OutcomeValid).Inc()
	return Result{Valid: true, Plan: models.PlanPro}, nil
}

func (v *Validator) recordSite(ctx context.Context, licenseID, siteURL, siteName string) {
	now := time.Now
	if v.Now != nil {
		now = v.Now
	}

	if err := v.Store.UpsertLicenseSite(ctx, licenseID, siteURL, siteName, now().UTC()); err != nil {
		metrics.SiteUpsertFailures.Inc()
		sentry.CaptureException(err)
		logger.Error("Failed to record license site", map[string]interface{}{
			"license_id": licenseID,
			"site_url":   siteURL,
			"error":      err.Error(),
		})
	}
}

func (v *Validator) reject(outcome, message string) Result {
	metrics.ValidationsTotal.WithLabelValues(outcome).Inc()
	return Result{Valid: false, Message: message}
}

func (v *Validator) fail(err error) (Result, error) {
	metrics.ValidationsTotal.WithLabelValues(metrics.OutcomeError).Inc()
	return Result{Valid: false, Message: MessageInternalError}, err
}

// NormalizeSiteURL reduces a site address to its origin so repeated
// validations from one installation map to one record. Internationalized
// hosts are converted to punycode. Addresses without a usable origin are kept
// trimmed and lowercased.
func NormalizeSiteURL(raw string) string {
	s := strings.ToLower(strings.TrimSpace(raw))
	if s == "" {
		return ""
	}

	origin, ok := siteOrigin(s)
	if !ok {
		return s
	}
	// Stored keys must be fixed points; anything else is kept as typed.
	if again, ok := siteOrigin(origin); !ok || again != origin {
		return s
	}
	return origin
}

func siteOrigin(s string) (string, bool) {
	candidate := s
	if !strings.HasPrefix(candidate, "http://") && !strings.HasPrefix(candidate, "https://") {
		candidate = "https://" + candidate
	}

	u, err := url.Parse(candidate)
	if err != nil || u.Hostname() == "" {
		return "", false
	}

	host := u.Hostname()
	if strings.Contains(host, ":") {
		host = "[" + host + "]"
	} else if !isASCII(host) {
		ascii, err := idna.Lookup.ToASCII(host)
		if err != nil {
			return "", false
		}
		host = ascii
	}
	host = strings.ToLower(host)
	if port := u.Port(); port != "" && !isDefaultPort(u.Scheme, port) {
		host += ":" + port
	}

	return u.Scheme + "://" + host, true
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= utf8.RuneSelf {
			return false
		}
	}
	return true
}

func isDefaultPort(scheme, port string) bool {
	return (scheme == "http" && port == "80") || (scheme == "https" && port == "443")
}

// GenerateKey returns a new random license key: 24 bytes, URL-safe base64.
func GenerateKey() (string, error) {
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate license key: %w", err)
	}
	return base64.URLEncoding.EncodeToString(buf), nil
}
