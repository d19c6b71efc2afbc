// Package artifact derives stable storage keys for the files an audit
// produces: screenshots, per-site reports, and batch outputs.
package artifact

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"
	"time"
)

const (
	screenshotPrefix = "screenshots"
	reportPrefix     = "reports"
	batchPrefix      = "batches"

	// maxSlugLen keeps object names comfortably under filesystem and
	// bucket key limits even after prefixes and suffixes are attached.
	maxSlugLen = 60

	hashLen = 12

	timeLayout = "20060102-150405"
)

var invalidFilenameChars = regexp.MustCompile(`[^a-zA-Z0-9._-]+`)

// Slug turns a URL into a short, filesystem-safe identifier. Scheme and a
// leading "www." are dropped so http/https and www variants of the same
// site collapse to the same slug.
func Slug(rawURL string) string {
	s := strings.ToLower(strings.TrimSpace(rawURL))
	for _, prefix := range []string{"https://", "http://"} {
		s = strings.TrimPrefix(s, prefix)
	}
	s = strings.TrimPrefix(s, "www.")
	s = strings.TrimRight(s, "/")
	s = invalidFilenameChars.ReplaceAllString(s, "-")
	s = strings.Trim(s, "-.")
	if s == "" {
		s = "site"
	}
	if len(s) > maxSlugLen {
		s = strings.Trim(s[:maxSlugLen], "-.")
	}
	return s
}

// ShortHash returns a short hex digest of the input. Slugs alone can
// collide after truncation; the digest keeps keys unique per URL.
func ShortHash(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])[:hashLen]
}

// ScreenshotKey names a screenshot object for the given URL and viewport
// ("desktop" or "mobile").
func ScreenshotKey(rawURL, viewport string) string {
	return fmt.Sprintf("%s/%s-%s-%s.png", screenshotPrefix, Slug(rawURL), ShortHash(rawURL), viewport)
}

// ReportKey names a per-site markdown report. The timestamp keeps repeat
// audits of the same URL from overwriting each other.
func ReportKey(rawURL string, ts time.Time) string {
	return fmt.Sprintf("%s/%s-%s-%s.md", reportPrefix, Slug(rawURL), ShortHash(rawURL), ts.UTC().Format(timeLayout))
}

// BatchDir names the directory that holds one batch run's outputs.
func BatchDir(ts time.Time) string {
	return fmt.Sprintf("%s/%s", batchPrefix, ts.UTC().Format(timeLayout))
}

// BatchCSVKey names the per-site results CSV inside a batch directory.
func BatchCSVKey(ts time.Time) string {
	return BatchDir(ts) + "/results.csv"
}

// BatchSummaryKey names the markdown summary inside a batch directory.
func BatchSummaryKey(ts time.Time) string {
	return BatchDir(ts) + "/summary.md"
}
