package audit

import (
	"errors"
	"net/url"
	"strings"
)

// NormalizeURL canonicalizes user input into an absolute http(s) URL:
// a missing scheme defaults to https, scheme and host are lowercased,
// and any fragment is dropped. Input that cannot form a fetchable URL
// returns a LoadError of kind invalid.
func NormalizeURL(raw string) (string, *LoadError) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", &LoadError{Kind: LoadErrInvalid, URL: raw, Err: errors.New("empty URL")}
	}
	if !strings.Contains(trimmed, "://") {
		trimmed = "https://" + trimmed
	}

	u, err := url.Parse(trimmed)
	if err != nil {
		return "", &LoadError{Kind: LoadErrInvalid, URL: raw, Err: err}
	}
	u.Scheme = strings.ToLower(u.Scheme)
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", &LoadError{Kind: LoadErrInvalid, URL: raw, Err: errors.New("unsupported scheme " + u.Scheme)}
	}
	if u.Host == "" {
		return "", &LoadError{Kind: LoadErrInvalid, URL: raw, Err: errors.New("missing host")}
	}
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""
	return u.String(), nil
}

// HostOf returns the lowercased hostname of a URL, without port. Input
// that does not parse comes back trimmed as-is.
func HostOf(rawURL string) string {
	trimmed := strings.TrimSpace(rawURL)
	candidate := trimmed
	if !strings.Contains(candidate, "://") {
		candidate = "https://" + candidate
	}
	u, err := url.Parse(candidate)
	if err != nil || u.Hostname() == "" {
		return trimmed
	}
	return strings.ToLower(u.Hostname())
}
