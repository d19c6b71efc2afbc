// Package extract derives markup facts from a captured landing page. It is
// the only place that parses HTML for scoring; scorers consume the resulting
// booleans and never touch the document themselves.
package extract

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

var (
	// US phone shapes: 555-123-4567, (555) 123-4567, +1 555.123.4567, ...
	phonePattern = regexp.MustCompile(`(\+?1[-.\s]?)?\(?[0-9]{3}\)?[-.\s]?[0-9]{3}[-.\s]?[0-9]{4}`)
	emailPattern = regexp.MustCompile(`[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}`)

	ctaClassPattern  = regexp.MustCompile(`(?i)btn|button|cta`)
	teamClassPattern = regexp.MustCompile(`(?i)team|about|staff`)

	// Short acronyms need word boundaries; "cpa" alone would match "cpanel".
	acronymPattern = regexp.MustCompile(`\b(cpa|mba)\b`)
)

var (
	ctaKeywords = []string{
		"schedule", "consult", "contact us", "get started",
		"book", "appointment", "free consultation",
	}
	formKeywords = []string{"contact", "email", "message", "inquiry", "name"}
	teamKeywords = []string{
		"our team", "about us", "meet our", "our staff", "our professionals",
	}
	credentialKeywords = []string{
		"certified public accountant", "licensed", "credential",
		"certification", "masters", "bachelor", "university",
	}
	addressKeywords = []string{
		"street", "st.", "avenue", "ave.", "road", "rd.", "suite", "ste.",
	}
	mapsMarkers = []string{"maps.google.com", "google.com/maps/embed"}
)

// Facts are the markup measurements for one page. All booleans are definite:
// once the document parses, every fact is either observed or observed-absent.
type Facts struct {
	Title           string
	MetaDescription string
	H1Count         int
	HasCTA          bool
	HasContactForm  bool
	HasPhone        bool
	HasTelLink      bool
	HasTeam         bool
	HasCredentials  bool
	HasMapsEmbed    bool
	HasViewportMeta bool
	HasFooter       bool
	FooterNAP       bool
}

// Markup parses rawHTML and extracts every fact the scorers consume.
func Markup(rawHTML string) (*Facts, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(rawHTML))
	if err != nil {
		return nil, fmt.Errorf("parse markup: %w", err)
	}
	doc.Find("script, style, noscript").Remove()

	pageText := strings.ToLower(doc.Find("body").Text())
	lowerHTML := strings.ToLower(rawHTML)

	f := &Facts{
		Title:           strings.TrimSpace(doc.Find("title").First().Text()),
		MetaDescription: metaContent(doc, "description"),
		H1Count:         doc.Find("h1").Length(),
		HasCTA:          hasCTA(doc),
		HasContactForm:  hasContactForm(doc),
		HasPhone:        phonePattern.MatchString(pageText),
		HasTelLink:      hasTelLink(doc),
		HasTeam:         hasClassOrKeyword(doc, teamClassPattern, pageText, teamKeywords),
		HasCredentials:  hasCredentials(pageText),
		HasMapsEmbed:    containsAny(lowerHTML, mapsMarkers),
		HasViewportMeta: doc.Find(`meta[name="viewport"]`).Length() > 0,
	}

	footer := footerText(doc)
	f.HasFooter = footer != ""
	f.FooterNAP = f.HasFooter && hasNAP(footer)
	return f, nil
}

func metaContent(doc *goquery.Document, name string) string {
	content, _ := doc.Find(`meta[name="` + name + `"]`).First().Attr("content")
	return strings.TrimSpace(content)
}

func hasCTA(doc *goquery.Document) bool {
	if hasMatchingClass(doc, ctaClassPattern) {
		return true
	}
	found := false
	doc.Find(`a, button, input[type="submit"], input[type="button"]`).EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		text := strings.ToLower(strings.TrimSpace(sel.Text()))
		if text == "" {
			text, _ = sel.Attr("value")
			text = strings.ToLower(text)
		}
		if containsAny(text, ctaKeywords) {
			found = true
			return false
		}
		return true
	})
	return found
}

func hasContactForm(doc *goquery.Document) bool {
	found := false
	doc.Find("form").EachWithBreak(func(_ int, form *goquery.Selection) bool {
		controls := 0
		var hay strings.Builder
		form.Find("input, textarea, select").Each(func(_ int, ctl *goquery.Selection) {
			typ, _ := ctl.Attr("type")
			if strings.EqualFold(typ, "hidden") {
				return
			}
			controls++
			for _, attr := range []string{"name", "placeholder", "id", "aria-label"} {
				if v, ok := ctl.Attr(attr); ok {
					hay.WriteString(strings.ToLower(v))
					hay.WriteByte(' ')
				}
			}
		})
		if controls < 2 {
			return true
		}
		for _, attr := range []string{"action", "id", "class"} {
			if v, ok := form.Attr(attr); ok {
				hay.WriteString(strings.ToLower(v))
				hay.WriteByte(' ')
			}
		}
		hay.WriteString(strings.ToLower(form.Text()))
		if containsAny(hay.String(), formKeywords) {
			found = true
			return false
		}
		return true
	})
	return found
}

func hasTelLink(doc *goquery.Document) bool {
	found := false
	doc.Find("a[href]").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		href, _ := sel.Attr("href")
		if strings.HasPrefix(strings.ToLower(strings.TrimSpace(href)), "tel:") {
			found = true
			return false
		}
		return true
	})
	return found
}

func hasClassOrKeyword(doc *goquery.Document, classPat *regexp.Regexp, pageText string, keywords []string) bool {
	if hasMatchingClass(doc, classPat) {
		return true
	}
	return containsAny(pageText, keywords)
}

func hasMatchingClass(doc *goquery.Document, pat *regexp.Regexp) bool {
	found := false
	doc.Find("[class]").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		cls, _ := sel.Attr("class")
		if pat.MatchString(cls) {
			found = true
			return false
		}
		return true
	})
	return found
}

func hasCredentials(pageText string) bool {
	if acronymPattern.MatchString(pageText) {
		return true
	}
	return containsAny(pageText, credentialKeywords)
}

func footerText(doc *goquery.Document) string {
	sel := doc.Find("footer")
	if sel.Length() == 0 {
		sel = doc.Find(`[id*="footer"], [class*="footer"]`)
	}
	if sel.Length() == 0 {
		return ""
	}
	return strings.ToLower(strings.TrimSpace(sel.First().Text()))
}

// hasNAP reports whether footer text carries name/address/phone contact
// details: a phone number, an email address, or a street-address keyword.
func hasNAP(footer string) bool {
	if phonePattern.MatchString(footer) || emailPattern.MatchString(footer) {
		return true
	}
	return containsAny(footer, addressKeywords)
}

func containsAny(haystack string, needles []string) bool {
	for _, n := range needles {
		if n == "" {
			continue
		}
		if strings.Contains(haystack, n) {
			return true
		}
	}
	return false
}
