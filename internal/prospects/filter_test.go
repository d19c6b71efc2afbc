package prospects

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leadfoundry/siteauditor/internal/audit"
)

func TestNewHostFilter(t *testing.T) {
	t.Parallel()

	assert.Nil(t, NewHostFilter(nil))
	assert.Nil(t, NewHostFilter([]string{"", "  ", "\t"}))
	assert.NotNil(t, NewHostFilter([]string{"yelp.com"}))
}

func TestHostFilterExcluded(t *testing.T) {
	t.Parallel()

	f := NewHostFilter([]string{"yelp.com", "*.facebook.com", ".bbb.org", "Instagram.com"})
	require.NotNil(t, f)

	t.Run("ExactMatch", func(t *testing.T) {
		t.Parallel()
		assert.True(t, f.Excluded("yelp.com"))
		assert.True(t, f.Excluded("YELP.com"))
		assert.True(t, f.Excluded("instagram.com"))
	})

	t.Run("ExactDoesNotCoverSubdomains", func(t *testing.T) {
		t.Parallel()
		assert.False(t, f.Excluded("m.yelp.com"))
		assert.False(t, f.Excluded("www.instagram.com"))
	})

	t.Run("WildcardCoversSubdomainsAndBareDomain", func(t *testing.T) {
		t.Parallel()
		assert.True(t, f.Excluded("facebook.com"))
		assert.True(t, f.Excluded("www.facebook.com"))
		assert.True(t, f.Excluded("m.en.facebook.com"))
	})

	t.Run("DotPrefixBehavesLikeWildcard", func(t *testing.T) {
		t.Parallel()
		assert.True(t, f.Excluded("bbb.org"))
		assert.True(t, f.Excluded("www.bbb.org"))
	})

	t.Run("NoSuffixFalsePositives", func(t *testing.T) {
		t.Parallel()
		assert.False(t, f.Excluded("notfacebook.com"))
		assert.False(t, f.Excluded("smithcpa.com"))
	})

	t.Run("NilFilterExcludesNothing", func(t *testing.T) {
		t.Parallel()
		var nilFilter *HostFilter
		assert.False(t, nilFilter.Excluded("facebook.com"))
	})
}

func TestHostFilterApply(t *testing.T) {
	t.Parallel()

	reqs := []audit.Request{
		{URL: "https://smithcpa.com", CompanyName: "Smith CPA"},
		{URL: "https://www.facebook.com/smithcpa", CompanyName: "Smith CPA (FB)"},
		{URL: "https://jonesaccounting.com", CompanyName: "Jones Accounting"},
	}

	f := NewHostFilter(DefaultExclusions())
	kept, skipped := f.Apply(reqs)

	require.Len(t, kept, 2)
	assert.Equal(t, "https://smithcpa.com", kept[0].URL)
	assert.Equal(t, "https://jonesaccounting.com", kept[1].URL)

	require.Len(t, skipped, 1)
	assert.Equal(t, "Smith CPA (FB)", skipped[0].Request.CompanyName)
	assert.Contains(t, skipped[0].Reason, "www.facebook.com")
	assert.Contains(t, skipped[0].Reason, "exclusion list")
}

func TestHostFilterApplyNilPassthrough(t *testing.T) {
	t.Parallel()

	reqs := []audit.Request{{URL: "https://facebook.com"}}
	var nilFilter *HostFilter
	kept, skipped := nilFilter.Apply(reqs)

	assert.Equal(t, reqs, kept)
	assert.Empty(t, skipped)
}
