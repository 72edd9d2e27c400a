package models

import "time"

const (
	ChannelStable = "stable"
	ChannelBeta   = "beta"
	ChannelAlpha  = "alpha"
)

// PluginVersion is a published release of the WordPress plugin.
type PluginVersion struct {
	ID             string    `json:"id"`
	Version        string    `json:"version"`
	ReleaseDate    time.Time `json:"release_date"`
	Description    string    `json:"description,omitempty"`
	FileName       string    `json:"file_name,omitempty"`
	ChangelogURL   string    `json:"changelog_url,omitempty"`
	ChangelogText  string    `json:"changelog_text,omitempty"`
	DownloadURL    string    `json:"download_url,omitempty"`
	IsPrerelease   bool      `json:"is_prerelease"`
	ReleaseChannel string    `json:"release_channel"`
	CreatedAt      time.Time `json:"created_at"`
}

// ParseReleaseChannel returns the channel for known values and reports
// whether the input was recognised.
func ParseReleaseChannel(channel string) (string, bool) {
	switch channel {
	case ChannelStable, ChannelBeta, ChannelAlpha:
		return channel, true
	}
	return ChannelStable, false
}
