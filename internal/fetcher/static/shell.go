package static

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

const (
	// minHTMLBytes is the size below which a marker-bearing document is
	// assumed to be a bare mount point.
	minHTMLBytes = 2048

	// minVisibleText is the visible-text floor; real firm homepages
	// carry far more than this.
	minVisibleText = 200

	// scriptDensity is the inline-script share of the document at which
	// a near-textless page is treated as an application payload.
	scriptDensity = 0.25
)

// shellMarkers are the mount points and hydration artifacts of the
// common client-side frameworks.
var shellMarkers = []string{
	`id="__next"`, `id='__next'`,
	`id="root"`, `id='root'`,
	`id="app"`, `id='app'`,
	"data-reactroot",
	"__next_data__",
}

// LooksLikeShell reports whether the markup is probably the empty shell
// of a JavaScript application rather than server-rendered content. A
// shell parses fine but its body says nothing about the real page, so
// signals derived from it would score the site unfairly.
func LooksLikeShell(rawHTML string) bool {
	if strings.TrimSpace(rawHTML) == "" {
		return false
	}
	lower := strings.ToLower(rawHTML)
	marker := false
	for _, m := range shellMarkers {
		if strings.Contains(lower, m) {
			marker = true
			break
		}
	}

	textLen, scriptBytes := pageProfile(rawHTML)
	density := float64(scriptBytes) / float64(len(rawHTML))

	switch {
	case marker && len(rawHTML) < minHTMLBytes:
		return true
	case marker && textLen < minVisibleText:
		return true
	case density >= scriptDensity && textLen < minVisibleText:
		return true
	}
	return false
}

// pageProfile measures the visible body text and the inline script
// payload of the document.
func pageProfile(rawHTML string) (textLen, scriptBytes int) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(rawHTML))
	if err != nil {
		return 0, 0
	}
	doc.Find("script").Each(func(_ int, s *goquery.Selection) {
		scriptBytes += len(s.Text())
	})
	doc.Find("script, style, noscript").Remove()
	textLen = len(strings.TrimSpace(doc.Find("body").Text()))
	return textLen, scriptBytes
}
