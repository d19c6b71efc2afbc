package audit

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNormalizeURL(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   string
		want string
	}{
		{"example.com", "https://example.com"},
		{"  example.com  ", "https://example.com"},
		{"http://Example.COM/About", "http://example.com/About"},
		{"https://example.com/page#section", "https://example.com/page"},
		{"HTTPS://WWW.EXAMPLE.COM", "https://www.example.com"},
		{"example.com:8443/x", "https://example.com:8443/x"},
	}
	for _, tc := range cases {
		got, lerr := NormalizeURL(tc.in)
		require.Nil(t, lerr, "input %q", tc.in)
		require.Equal(t, tc.want, got, "input %q", tc.in)
	}
}

func TestNormalizeURLRejectsUnfetchable(t *testing.T) {
	t.Parallel()

	for _, in := range []string{"", "   ", "ftp://example.com", "https://", "://nope"} {
		_, lerr := NormalizeURL(in)
		require.NotNil(t, lerr, "input %q", in)
		require.Equal(t, LoadErrInvalid, lerr.Kind, "input %q", in)
	}
}

func TestHostOf(t *testing.T) {
	t.Parallel()

	require.Equal(t, "example.com", HostOf("https://Example.com/path"))
	require.Equal(t, "example.com", HostOf("example.com:8080"))
	require.Equal(t, "www.example.com", HostOf("www.example.com"))
}
