package version

import (
	"regexp"
	"strings"

	"github.com/Masterminds/semver/v3"
)

var unsafePathChars = regexp.MustCompile(`[^0-9A-Za-z.\-]`)

// SanitizePath turns a version string into a storage folder name: only
// letters, digits, dots and hyphens survive, and leading/trailing dots are
// removed. An empty result becomes "unknown".
func SanitizePath(version string) string {
	cleaned := unsafePathChars.ReplaceAllString(version, "")
	cleaned = strings.Trim(cleaned, ".")
	if cleaned == "" {
		return "unknown"
	}
	return cleaned
}

// Valid reports whether version parses as a semantic version.
func Valid(version string) bool {
	_, err := semver.NewVersion(version)
	return err == nil
}

// Compare orders two version strings by semantic version. Strings that do
// not parse sort below every valid version and are compared lexically
// among themselves.
func Compare(a, b string) int {
	va, errA := semver.NewVersion(a)
	vb, errB := semver.NewVersion(b)

	switch {
	case errA == nil && errB == nil:
		return va.Compare(vb)
	case errA == nil:
		return 1
	case errB == nil:
		return -1
	default:
		return strings.Compare(a, b)
	}
}

// Newest returns the index of the highest version in versions, or -1 for an
// empty slice.
func Newest(versions []string) int {
	best := -1
	for i, v := range versions {
		if best == -1 || Compare(v, versions[best]) > 0 {
			best = i
		}
	}
	return best
}
