package static

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leadfoundry/siteauditor/internal/audit"
	"github.com/leadfoundry/siteauditor/internal/backoff"
)

const firmPage = `<html><head><title>Smith CPA</title></head><body>
<h1>Smith CPA</h1>
<p>Tax preparation, bookkeeping, and advisory services for small
businesses across the region. Call us today to schedule a free
consultation with one of our certified public accountants.</p>
<footer>123 Main Street, Albany NY | (518) 555-0100</footer>
</body></html>`

func newLoader(t *testing.T) *Loader {
	t.Helper()
	retry := backoff.NewPolicyWith(3, time.Millisecond, 2*time.Millisecond)
	return New(Config{Timeout: 250 * time.Millisecond}, retry, nil)
}

func TestLoadSuccess(t *testing.T) {
	t.Parallel()

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, firmPage)
	}))
	defer ts.Close()

	capture, err := newLoader(t).Load(context.Background(), ts.URL)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, capture.StatusCode)
	assert.Contains(t, capture.RawHTML, "Smith CPA")
	assert.False(t, capture.Rendered)
	assert.False(t, capture.JSShell)
	assert.Nil(t, capture.DesktopShot)
	assert.Greater(t, capture.LoadTime, time.Duration(0))
}

func TestLoadFollowsRedirect(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/home", http.StatusMovedPermanently)
	})
	mux.HandleFunc("/home", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, firmPage)
	})
	ts := httptest.NewServer(mux)
	defer ts.Close()

	capture, err := newLoader(t).Load(context.Background(), ts.URL)
	require.NoError(t, err)
	assert.Equal(t, ts.URL+"/home", capture.FinalURL)
}

func TestLoadHTTPErrorIsFinal(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer ts.Close()

	_, err := newLoader(t).Load(context.Background(), ts.URL)
	var lerr *audit.LoadError
	require.ErrorAs(t, err, &lerr)
	assert.Equal(t, audit.LoadErrHTTP, lerr.Kind)
	assert.Equal(t, http.StatusNotFound, lerr.Status)
	assert.EqualValues(t, 1, calls.Load(), "status outcomes must not be retried")
}

func TestLoadBlocked(t *testing.T) {
	t.Parallel()

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "forbidden", http.StatusForbidden)
	}))
	defer ts.Close()

	_, err := newLoader(t).Load(context.Background(), ts.URL)
	var lerr *audit.LoadError
	require.ErrorAs(t, err, &lerr)
	assert.Equal(t, audit.LoadErrBlocked, lerr.Kind)
	assert.Equal(t, http.StatusForbidden, lerr.Status)
}

func TestLoadRetriesTimeouts(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) <= 2 {
			time.Sleep(500 * time.Millisecond)
			return
		}
		fmt.Fprint(w, firmPage)
	}))
	defer ts.Close()

	retry := backoff.NewPolicyWith(3, time.Millisecond, 2*time.Millisecond)
	loader := New(Config{Timeout: 50 * time.Millisecond}, retry, nil)

	capture, err := loader.Load(context.Background(), ts.URL)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, capture.StatusCode)
	assert.EqualValues(t, 3, calls.Load())
}

func TestLoadTimeoutExhaustsRetries(t *testing.T) {
	t.Parallel()

	ts := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, _ *http.Request) {
		time.Sleep(500 * time.Millisecond)
	}))
	defer ts.Close()

	retry := backoff.NewPolicyWith(2, time.Millisecond, 2*time.Millisecond)
	loader := New(Config{Timeout: 30 * time.Millisecond}, retry, nil)

	_, err := loader.Load(context.Background(), ts.URL)
	var lerr *audit.LoadError
	require.ErrorAs(t, err, &lerr)
	assert.Equal(t, audit.LoadErrTimeout, lerr.Kind)
}

func TestLoadDNSFailure(t *testing.T) {
	t.Parallel()

	_, err := newLoader(t).Load(context.Background(), "http://no-such-host.invalid/")
	var lerr *audit.LoadError
	require.ErrorAs(t, err, &lerr)
	assert.Equal(t, audit.LoadErrDNS, lerr.Kind)
}

func TestLoadCanceled(t *testing.T) {
	t.Parallel()

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, firmPage)
	}))
	defer ts.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newLoader(t).Load(ctx, ts.URL)
	var lerr *audit.LoadError
	require.ErrorAs(t, err, &lerr)
	assert.Equal(t, audit.LoadErrCanceled, lerr.Kind)
	require.True(t, errors.Is(err, context.Canceled) || lerr.Err != nil)
}

func TestLoadDetectsShell(t *testing.T) {
	t.Parallel()

	shell := `<html><head><script id="__NEXT_DATA__" type="application/json">{"props":{}}</script></head>` +
		`<body><div id="__next"></div></body></html>`
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, shell)
	}))
	defer ts.Close()

	capture, err := newLoader(t).Load(context.Background(), ts.URL)
	require.NoError(t, err)
	assert.True(t, capture.JSShell)
}
