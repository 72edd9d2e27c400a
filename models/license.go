package models

import "time"

const (
	StatusActive  = "active"
	StatusRevoked = "revoked"
)

// License grants PRO access to its owning profile. There is at most one
// license per user and its key never changes once issued.
type License struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Key       string    `json:"license_key"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (l *License) IsActive() bool {
	return l != nil && l.Status == StatusActive
}

// LicenseSite records one WordPress installation that presented a license.
// SiteURL is the normalized origin and is unique per license.
type LicenseSite struct {
	ID               string    `json:"id"`
	LicenseID        string    `json:"license_id"`
	SiteURL          string    `json:"site_url"`
	SiteName         string    `json:"site_name,omitempty"`
	FirstValidatedAt time.Time `json:"first_validated_at"`
	LastValidatedAt  time.Time `json:"last_validated_at"`
}

// SiteOverview is a LicenseSite joined with its license and owner, as shown
// in the admin site list.
type SiteOverview struct {
	LicenseSite
	LicenseKey string `json:"license_key,omitempty"`
	UserEmail  string `json:"user_email,omitempty"`
	UserName   string `json:"user_name,omitempty"`
}
