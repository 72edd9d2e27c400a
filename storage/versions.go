package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"commenta.app/cloud/models"
	"github.com/google/uuid"
)

const versionColumns = `id, version, release_date, description, file_name, changelog_url, changelog_text, download_url, is_prerelease, release_channel, created_at`

func scanVersion(row rowScanner) (*models.PluginVersion, error) {
	var (
		v                                                   models.PluginVersion
		description, fileName, changelogURL, text, download sql.NullString
	)
	err := row.Scan(&v.ID, &v.Version, &v.ReleaseDate, &description, &fileName, &changelogURL, &text, &download,
		&v.IsPrerelease, &v.ReleaseChannel, &v.CreatedAt)
	if err != nil {
		return nil, err
	}
	v.Description = description.String
	v.FileName = fileName.String
	v.ChangelogURL = changelogURL.String
	v.ChangelogText = text.String
	v.DownloadURL = download.String
	return &v, nil
}

// ListVersions lists every release, newest first.
func (s *SQLStore) ListVersions(ctx context.Context) ([]models.PluginVersion, error) {
	return s.listVersions(ctx, `SELECT `+versionColumns+` FROM plugin_versions ORDER BY release_date DESC, created_at DESC`)
}

func (s *SQLStore) ListVersionsByChannel(ctx context.Context, channel string) ([]models.PluginVersion, error) {
	return s.listVersions(ctx, `SELECT `+versionColumns+` FROM plugin_versions WHERE release_channel = ? ORDER BY release_date DESC, created_at DESC`, channel)
}

func (s *SQLStore) listVersions(ctx context.Context, query string, args ...any) ([]models.PluginVersion, error) {
	rows, err := s.query(ctx, s.db, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query plugin versions: %w", err)
	}
	defer closeRows(rows)

	versions := []models.PluginVersion{}
	for rows.Next() {
		v, err := scanVersion(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan plugin version: %w", err)
		}
		versions = append(versions, *v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating plugin versions: %w", err)
	}
	return versions, nil
}

func (s *SQLStore) GetVersion(ctx context.Context, id string) (*models.PluginVersion, error) {
	return s.getVersion(ctx, "id", id)
}

func (s *SQLStore) GetVersionByVersion(ctx context.Context, version string) (*models.PluginVersion, error) {
	return s.getVersion(ctx, "version", version)
}

func (s *SQLStore) getVersion(ctx context.Context, column, value string) (*models.PluginVersion, error) {
	v, err := scanVersion(s.queryRow(ctx, s.db, `SELECT `+versionColumns+` FROM plugin_versions WHERE `+column+` = ?`, value))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get plugin version: %w", err)
	}
	return v, nil
}

func (s *SQLStore) CreateVersion(ctx context.Context, v *models.PluginVersion) error {
	if v.ID == "" {
		v.ID = uuid.NewString()
	}
	if v.CreatedAt.IsZero() {
		v.CreatedAt = s.now().UTC()
	}
	if v.ReleaseChannel == "" {
		v.ReleaseChannel = models.ChannelStable
	}

	_, err := s.exec(ctx, s.db, `
		INSERT INTO plugin_versions (`+versionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		v.ID, v.Version, v.ReleaseDate, nullString(v.Description), nullString(v.FileName),
		nullString(v.ChangelogURL), nullString(v.ChangelogText), nullString(v.DownloadURL),
		v.IsPrerelease, v.ReleaseChannel, v.CreatedAt,
	)
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("failed to create plugin version: %w", err)
	}
	return nil
}

func (s *SQLStore) UpdateVersion(ctx context.Context, v *models.PluginVersion) error {
	res, err := s.exec(ctx, s.db, `
		UPDATE plugin_versions SET
			version = ?, release_date = ?, description = ?, file_name = ?, changelog_url = ?,
			changelog_text = ?, download_url = ?, is_prerelease = ?, release_channel = ?
		WHERE id = ?`,
		v.Version, v.ReleaseDate, nullString(v.Description), nullString(v.FileName), nullString(v.ChangelogURL),
		nullString(v.ChangelogText), nullString(v.DownloadURL), v.IsPrerelease, v.ReleaseChannel,
		v.ID,
	)
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("failed to update plugin version: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLStore) DeleteVersion(ctx context.Context, id string) error {
	res, err := s.exec(ctx, s.db, `DELETE FROM plugin_versions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete plugin version: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLStore) CountVersions(ctx context.Context) (int, error) {
	n, err := s.count(ctx, `SELECT COUNT(*) FROM plugin_versions`)
	if err != nil {
		return 0, fmt.Errorf("failed to count plugin versions: %w", err)
	}
	return n, nil
}
