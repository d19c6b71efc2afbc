package audit

import (
	"context"
	"errors"
	"fmt"
	"net"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestClassifyStatus(t *testing.T) {
	t.Parallel()

	require.Nil(t, ClassifyStatus("https://example.com", 200))
	require.Nil(t, ClassifyStatus("https://example.com", 301))

	for _, status := range []int{401, 403, 407, 429, 451} {
		lerr := ClassifyStatus("https://example.com", status)
		require.NotNil(t, lerr)
		require.Equal(t, LoadErrBlocked, lerr.Kind, "status %d", status)
		require.Equal(t, status, lerr.Status)
	}

	for _, status := range []int{400, 404, 410, 500, 503} {
		lerr := ClassifyStatus("https://example.com", status)
		require.NotNil(t, lerr)
		require.Equal(t, LoadErrHTTP, lerr.Kind, "status %d", status)
	}
}

func TestClassifyErr(t *testing.T) {
	t.Parallel()

	cases := []struct {
		err  error
		want LoadErrorKind
	}{
		{context.Canceled, LoadErrCanceled},
		{context.DeadlineExceeded, LoadErrTimeout},
		{fmt.Errorf("navigate: %w", context.DeadlineExceeded), LoadErrTimeout},
		{&net.DNSError{Err: "no such host", Name: "example.invalid"}, LoadErrDNS},
		{&net.OpError{Op: "dial", Err: errors.New("connection refused")}, LoadErrConnection},
		{errors.New("tls handshake failure"), LoadErrConnection},
	}
	for _, tc := range cases {
		lerr := ClassifyErr("https://example.com", tc.err)
		require.Equal(t, tc.want, lerr.Kind, "error %v", tc.err)
		require.ErrorIs(t, lerr, tc.err)
	}
}

func TestClassifyErrTimeoutNetError(t *testing.T) {
	t.Parallel()

	lerr := ClassifyErr("https://example.com", &net.DNSError{Err: "i/o timeout", IsTimeout: true})
	// DNS classification wins over the timeout flag so retry logic keys
	// off the resolution failure.
	require.Equal(t, LoadErrDNS, lerr.Kind)
}

func TestAsLoadErrorPassesThrough(t *testing.T) {
	t.Parallel()

	orig := &LoadError{Kind: LoadErrBlocked, URL: "https://example.com", Status: 403}
	wrapped := fmt.Errorf("fetch: %w", orig)

	require.Same(t, orig, AsLoadError("https://example.com", wrapped))

	classified := AsLoadError("https://example.com", context.DeadlineExceeded)
	require.Equal(t, LoadErrTimeout, classified.Kind)
}

func TestLoadErrorReason(t *testing.T) {
	t.Parallel()

	blocked := &LoadError{Kind: LoadErrBlocked, Status: 429}
	require.Equal(t, "request blocked (HTTP 429)", blocked.Reason())

	httpErr := &LoadError{Kind: LoadErrHTTP, Status: 500}
	require.Equal(t, "server returned HTTP 500", httpErr.Reason())

	require.Equal(t, "page load timed out", (&LoadError{Kind: LoadErrTimeout}).Reason())
	require.Equal(t, "domain could not be resolved", (&LoadError{Kind: LoadErrDNS}).Reason())
}
