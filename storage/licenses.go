package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"commenta.app/cloud/models"
	"github.com/google/uuid"
)

const licenseColumns = `id, user_id, license_key, status, created_at, updated_at`

func scanLicense(row rowScanner) (*models.License, error) {
	var l models.License
	if err := row.Scan(&l.ID, &l.UserID, &l.Key, &l.Status, &l.CreatedAt, &l.UpdatedAt); err != nil {
		return nil, err
	}
	return &l, nil
}

func (s *SQLStore) findLicense(ctx context.Context, q querier, where string, arg any) (*models.License, error) {
	license, err := scanLicense(s.queryRow(ctx, q, `SELECT `+licenseColumns+` FROM licenses WHERE `+where+` = ?`, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get license: %w", err)
	}
	return license, nil
}

func (s *SQLStore) FindLicenseByKey(ctx context.Context, key string) (*models.License, error) {
	return s.findLicense(ctx, s.db, "license_key", key)
}

func (s *SQLStore) FindLicenseByUser(ctx context.Context, userID string) (*models.License, error) {
	return s.findLicense(ctx, s.db, "user_id", userID)
}

// EnsureLicense returns the user's license, creating an active one with the
// given key when none exists. The boolean reports whether it was created.
// Concurrent calls for one user create at most one license.
func (s *SQLStore) EnsureLicense(ctx context.Context, userID, key string) (*models.License, bool, error) {
	now := s.now().UTC()

	res, err := s.exec(ctx, s.db, `
		INSERT INTO licenses (id, user_id, license_key, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id) DO NOTHING`,
		uuid.NewString(), userID, key, models.StatusActive, now, now,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, false, fmt.Errorf("failed to create license: %w", ErrDuplicate)
		}
		return nil, false, fmt.Errorf("failed to create license: %w", err)
	}

	created := false
	if n, err := res.RowsAffected(); err == nil && n > 0 {
		created = true
	}

	license, err := s.FindLicenseByUser(ctx, userID)
	if err != nil {
		return nil, false, err
	}
	if license == nil {
		return nil, false, fmt.Errorf("license for user %s missing after insert", userID)
	}
	return license, created, nil
}

func (s *SQLStore) SetLicenseStatus(ctx context.Context, key, status string) error {
	res, err := s.exec(ctx, s.db, `UPDATE licenses SET status = ?, updated_at = ? WHERE license_key = ?`,
		status, s.now().UTC(), key)
	if err != nil {
		return fmt.Errorf("failed to update license status: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// UpsertLicenseSite records a validation from siteURL in one statement: the
// first call inserts the site, later calls bump last_validated_at and
// replace the name when a new one is given.
func (s *SQLStore) UpsertLicenseSite(ctx context.Context, licenseID, siteURL, siteName string, at time.Time) error {
	_, err := s.exec(ctx, s.db, `
		INSERT INTO license_sites (id, license_id, site_url, site_name, first_validated_at, last_validated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (license_id, site_url) DO UPDATE SET
			last_validated_at = CASE
				WHEN excluded.last_validated_at > license_sites.last_validated_at THEN excluded.last_validated_at
				ELSE license_sites.last_validated_at
			END,
			site_name = COALESCE(excluded.site_name, license_sites.site_name)`,
		uuid.NewString(), licenseID, siteURL, nullString(siteName), at, at,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert license site: %w", err)
	}
	return nil
}

const siteColumns = `s.id, s.license_id, s.site_url, s.site_name, s.first_validated_at, s.last_validated_at`

func scanSite(row rowScanner, extra ...any) (*models.LicenseSite, error) {
	var (
		site models.LicenseSite
		name sql.NullString
	)
	dest := append([]any{&site.ID, &site.LicenseID, &site.SiteURL, &name, &site.FirstValidatedAt, &site.LastValidatedAt}, extra...)
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	site.SiteName = name.String
	return &site, nil
}

// ListLicenseSites lists the sites of one license, most recently validated first.
func (s *SQLStore) ListLicenseSites(ctx context.Context, licenseID string) ([]models.LicenseSite, error) {
	rows, err := s.query(ctx, s.db, `SELECT `+siteColumns+` FROM license_sites s WHERE s.license_id = ? ORDER BY s.last_validated_at DESC`, licenseID)
	if err != nil {
		return nil, fmt.Errorf("failed to query license sites: %w", err)
	}
	defer closeRows(rows)

	sites := []models.LicenseSite{}
	for rows.Next() {
		site, err := scanSite(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan license site: %w", err)
		}
		sites = append(sites, *site)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating license sites: %w", err)
	}
	return sites, nil
}

// ListSites lists every registered site joined with its license and owner.
func (s *SQLStore) ListSites(ctx context.Context, offset, limit int) ([]models.SiteOverview, error) {
	rows, err := s.query(ctx, s.db, `
		SELECT `+siteColumns+`, l.license_key, p.email, p.full_name
		FROM license_sites s
		JOIN licenses l ON l.id = s.license_id
		LEFT JOIN profiles p ON p.id = l.user_id
		ORDER BY s.last_validated_at DESC
		LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query sites: %w", err)
	}
	defer closeRows(rows)

	sites := []models.SiteOverview{}
	for rows.Next() {
		var key, email, name sql.NullString
		site, err := scanSite(rows, &key, &email, &name)
		if err != nil {
			return nil, fmt.Errorf("failed to scan site: %w", err)
		}
		sites = append(sites, models.SiteOverview{
			LicenseSite: *site,
			LicenseKey:  key.String,
			UserEmail:   email.String,
			UserName:    name.String,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sites: %w", err)
	}
	return sites, nil
}

func (s *SQLStore) CountSites(ctx context.Context) (int, error) {
	n, err := s.count(ctx, `SELECT COUNT(*) FROM license_sites`)
	if err != nil {
		return 0, fmt.Errorf("failed to count sites: %w", err)
	}
	return n, nil
}
