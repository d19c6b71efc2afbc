package audit

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// LoadErrorKind buckets load failures for reporting and retry decisions.
type LoadErrorKind string

const (
	LoadErrBlocked    LoadErrorKind = "blocked"
	LoadErrTimeout    LoadErrorKind = "timeout"
	LoadErrDNS        LoadErrorKind = "dns"
	LoadErrConnection LoadErrorKind = "connection"
	LoadErrHTTP       LoadErrorKind = "http"
	LoadErrInvalid    LoadErrorKind = "invalid"
	LoadErrCanceled   LoadErrorKind = "canceled"
	LoadErrInternal   LoadErrorKind = "internal"
)

// blockedStatuses are the HTTP statuses that indicate the site refused
// the request rather than failing to serve it.
var blockedStatuses = map[int]bool{
	401: true,
	403: true,
	407: true,
	429: true,
	451: true,
}

// LoadError describes why a page could not be loaded.
type LoadError struct {
	Kind   LoadErrorKind
	URL    string
	Status int
	Err    error
}

func (e *LoadError) Error() string {
	msg := fmt.Sprintf("load %s failed (%s)", e.URL, e.Kind)
	if e.Status > 0 {
		msg += fmt.Sprintf(": http status %d", e.Status)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *LoadError) Unwrap() error { return e.Err }

// Reason is a short human-readable cause for reports and CSV output.
func (e *LoadError) Reason() string {
	switch e.Kind {
	case LoadErrBlocked:
		return fmt.Sprintf("request blocked (HTTP %d)", e.Status)
	case LoadErrTimeout:
		return "page load timed out"
	case LoadErrDNS:
		return "domain could not be resolved"
	case LoadErrConnection:
		return "connection failed"
	case LoadErrHTTP:
		return fmt.Sprintf("server returned HTTP %d", e.Status)
	case LoadErrInvalid:
		return "invalid URL"
	case LoadErrCanceled:
		return "audit canceled"
	case LoadErrInternal:
		return "internal error during audit"
	default:
		return "page could not be loaded"
	}
}

// ClassifyStatus maps an HTTP status to a load error. Statuses below 400
// return nil.
func ClassifyStatus(url string, status int) *LoadError {
	if status < 400 {
		return nil
	}
	kind := LoadErrHTTP
	if blockedStatuses[status] {
		kind = LoadErrBlocked
	}
	return &LoadError{
		Kind:   kind,
		URL:    url,
		Status: status,
		Err:    fmt.Errorf("http status %d", status),
	}
}

// ClassifyErr maps a transport error to a load error kind.
func ClassifyErr(url string, err error) *LoadError {
	le := &LoadError{Kind: LoadErrConnection, URL: url, Err: err}

	var dnsErr *net.DNSError
	var netErr net.Error
	switch {
	case errors.Is(err, context.Canceled):
		le.Kind = LoadErrCanceled
	case errors.Is(err, context.DeadlineExceeded):
		le.Kind = LoadErrTimeout
	case errors.As(err, &dnsErr):
		le.Kind = LoadErrDNS
	case errors.As(err, &netErr) && netErr.Timeout():
		le.Kind = LoadErrTimeout
	}
	return le
}

// AsLoadError returns err as a *LoadError, classifying plain errors from
// loaders that do not produce one themselves.
func AsLoadError(url string, err error) *LoadError {
	var le *LoadError
	if errors.As(err, &le) {
		return le
	}
	return ClassifyErr(url, err)
}
