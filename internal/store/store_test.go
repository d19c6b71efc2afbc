package store

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leadfoundry/siteauditor/internal/audit"
	"github.com/leadfoundry/siteauditor/internal/scoring"
)

func scoredResult(t *testing.T) *audit.Result {
	t.Helper()
	return &audit.Result{
		ID:          uuid.NewString(),
		URL:         "https://smithcpa.com",
		FinalURL:    "https://www.smithcpa.com/",
		CompanyName: "Smith CPA",
		Notes:       "from spring list",
		Timestamp:   time.Date(2025, 11, 3, 10, 0, 0, 0, time.UTC),
		State:       audit.StateDone,
		Categories: []scoring.CategoryResult{
			{
				Category:       scoring.CategoryVisual,
				PointsEarned:   21,
				PointsPossible: 30,
				Findings:       []scoring.Finding{{Severity: scoring.SeverityPass, Message: "Design rated 7/10"}},
			},
		},
		TotalScore:          72.5,
		Percentage:          72.5,
		Tier:                scoring.TierYes,
		Grade:               scoring.GradeFor(72.5),
		RankedOpportunities: []scoring.Opportunity{{Category: scoring.CategoryVisual, Message: "Modernize the design", Gain: 9}},
		LoadTime:            1800 * time.Millisecond,
		Rendered:            true,
		ReportPath:          "reports/smithcpa.com_20251103.md",
	}
}

func TestNewAuditRecordScored(t *testing.T) {
	t.Parallel()

	res := scoredResult(t)
	rec, err := NewAuditRecord(res)
	require.NoError(t, err)

	assert.Equal(t, res.ID, rec.ID.String())
	assert.Equal(t, "https://smithcpa.com", rec.URL)
	assert.Equal(t, audit.StateDone, rec.State)
	assert.Equal(t, 72.5, rec.Score)
	assert.Equal(t, scoring.TierYes, rec.Tier)
	assert.Equal(t, "C", rec.Grade)
	assert.Nil(t, rec.FailReason)
	assert.Equal(t, res.Timestamp, rec.CreatedAt)

	detail, err := rec.DecodeDetail()
	require.NoError(t, err)
	require.Len(t, detail.Categories, 1)
	assert.Equal(t, scoring.CategoryVisual, detail.Categories[0].Category)
	require.Len(t, detail.Opportunities, 1)
	assert.Equal(t, 9.0, detail.Opportunities[0].Gain)
	assert.Equal(t, "from spring list", detail.Notes)
}

func TestNewAuditRecordFailed(t *testing.T) {
	t.Parallel()

	res := &audit.Result{
		ID:        uuid.NewString(),
		URL:       "https://gone.example.com",
		Timestamp: time.Now().UTC(),
		State:     audit.StateFailed,
		Err:       &audit.LoadError{Kind: audit.LoadErrDNS, URL: "https://gone.example.com"},
	}

	rec, err := NewAuditRecord(res)
	require.NoError(t, err)

	assert.Equal(t, audit.StateFailed, rec.State)
	assert.Zero(t, rec.Score)
	assert.Empty(t, rec.Tier)
	require.NotNil(t, rec.FailReason)
	assert.Equal(t, "domain could not be resolved", *rec.FailReason)
}

func TestNewAuditRecordRejectsBadID(t *testing.T) {
	t.Parallel()

	_, err := NewAuditRecord(&audit.Result{ID: "not-a-uuid"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse audit id")
}

func TestDecodeDetailEmpty(t *testing.T) {
	t.Parallel()

	detail, err := AuditRecord{}.DecodeDetail()
	require.NoError(t, err)
	assert.Empty(t, detail.Categories)
}
