package prospects

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leadfoundry/siteauditor/internal/audit"
)

func TestLoadCSV(t *testing.T) {
	t.Parallel()

	t.Run("StandardHeader", func(t *testing.T) {
		t.Parallel()
		in := strings.NewReader(
			"url,company_name,notes\n" +
				"https://smithcpa.com,Smith CPA,warm lead\n" +
				"https://www.jonesaccounting.com,Jones Accounting,\n")

		reqs, err := LoadCSV(in)
		require.NoError(t, err)
		require.Len(t, reqs, 2)

		assert.Equal(t, audit.Request{
			URL:         "https://smithcpa.com",
			CompanyName: "Smith CPA",
			Notes:       "warm lead",
		}, reqs[0])
		assert.Equal(t, "Jones Accounting", reqs[1].CompanyName)
		assert.Empty(t, reqs[1].Notes)
	})

	t.Run("AliasHeaders", func(t *testing.T) {
		t.Parallel()
		in := strings.NewReader(
			"Website,Company,Comments\n" +
				"smithcpa.com,Smith & Associates,from the chamber list\n")

		reqs, err := LoadCSV(in)
		require.NoError(t, err)
		require.Len(t, reqs, 1)
		assert.Equal(t, "smithcpa.com", reqs[0].URL)
		assert.Equal(t, "Smith & Associates", reqs[0].CompanyName)
		assert.Equal(t, "from the chamber list", reqs[0].Notes)
	})

	t.Run("SpacedHeaderNames", func(t *testing.T) {
		t.Parallel()
		in := strings.NewReader(
			"Company Name, URL\n" +
				"Smith CPA,https://smithcpa.com\n")

		reqs, err := LoadCSV(in)
		require.NoError(t, err)
		require.Len(t, reqs, 1)
		assert.Equal(t, "Smith CPA", reqs[0].CompanyName)
		assert.Equal(t, "https://smithcpa.com", reqs[0].URL)
	})

	t.Run("ByteOrderMarkHeader", func(t *testing.T) {
		t.Parallel()
		in := strings.NewReader("\uFEFFurl,name\nhttps://smithcpa.com,Smith CPA\n")

		reqs, err := LoadCSV(in)
		require.NoError(t, err)
		require.Len(t, reqs, 1)
		assert.Equal(t, "Smith CPA", reqs[0].CompanyName)
	})

	t.Run("CompanyFallsBackToHost", func(t *testing.T) {
		t.Parallel()
		in := strings.NewReader("url,company_name\nhttps://www.smithcpa.com/about,\n")

		reqs, err := LoadCSV(in)
		require.NoError(t, err)
		require.Len(t, reqs, 1)
		assert.Equal(t, "smithcpa.com", reqs[0].CompanyName)
	})

	t.Run("SkipsRowsWithoutURL", func(t *testing.T) {
		t.Parallel()
		in := strings.NewReader(
			"url,company_name\n" +
				",Orphaned Row\n" +
				"https://smithcpa.com,Smith CPA\n")

		reqs, err := LoadCSV(in)
		require.NoError(t, err)
		require.Len(t, reqs, 1)
		assert.Equal(t, "https://smithcpa.com", reqs[0].URL)
	})

	t.Run("ShortRowsTolerated", func(t *testing.T) {
		t.Parallel()
		in := strings.NewReader(
			"url,company_name,notes\n" +
				"https://smithcpa.com,Smith CPA\n")

		reqs, err := LoadCSV(in)
		require.NoError(t, err)
		require.Len(t, reqs, 1)
		assert.Empty(t, reqs[0].Notes)
	})
}

func TestLoadCSVErrors(t *testing.T) {
	t.Parallel()

	t.Run("EmptyInput", func(t *testing.T) {
		t.Parallel()
		_, err := LoadCSV(strings.NewReader(""))
		require.ErrorContains(t, err, "empty")
	})

	t.Run("NoURLColumn", func(t *testing.T) {
		t.Parallel()
		_, err := LoadCSV(strings.NewReader("company_name,notes\nSmith CPA,hello\n"))
		require.ErrorContains(t, err, "no url column")
		assert.ErrorContains(t, err, "website")
	})

	t.Run("HeaderOnly", func(t *testing.T) {
		t.Parallel()
		_, err := LoadCSV(strings.NewReader("url,company_name\n"))
		require.ErrorContains(t, err, "no usable rows")
	})

	t.Run("MalformedQuoting", func(t *testing.T) {
		t.Parallel()
		_, err := LoadCSV(strings.NewReader("url\n\"https://smithcpa.com\n"))
		require.ErrorContains(t, err, "parse prospects csv")
	})
}
