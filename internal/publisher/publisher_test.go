package publisher

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leadfoundry/siteauditor/internal/audit"
	"github.com/leadfoundry/siteauditor/internal/scoring"
)

func TestNewCompletionEventScored(t *testing.T) {
	t.Parallel()

	finished := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)
	res := &audit.Result{
		ID:          "4f2d9aa2-32f5-4cbb-a8d4-4a2d85c9b7e1",
		URL:         "https://smithcpa.com",
		FinalURL:    "https://www.smithcpa.com",
		CompanyName: "Smith CPA",
		State:       audit.StateDone,
		TotalScore:  41.5,
		Percentage:  41.5,
		Tier:        scoring.TierStrongYes,
		Grade:       scoring.Grade{Letter: "F", Summary: "failing"},
		ReportPath:  "reports/smithcpa.com.md",
	}

	evt := NewCompletionEvent(res, finished)
	assert.Equal(t, res.ID, evt.AuditID)
	assert.Equal(t, "DONE", evt.State)
	assert.Equal(t, 41.5, evt.Score)
	assert.Equal(t, "STRONG YES", evt.Tier)
	assert.Equal(t, "F", evt.Grade)
	assert.Equal(t, finished, evt.FinishedAt)
	assert.Empty(t, evt.FailReason)

	data, err := json.Marshal(evt)
	require.NoError(t, err)
	assert.False(t, strings.Contains(string(data), "fail_reason"), "omitempty should drop empty failure fields")
}

func TestNewCompletionEventFailed(t *testing.T) {
	t.Parallel()

	res := &audit.Result{
		ID:    "4f2d9aa2-32f5-4cbb-a8d4-4a2d85c9b7e2",
		URL:   "https://deadfirm.com",
		State: audit.StateFailed,
		Err:   &audit.LoadError{Kind: audit.LoadErrDNS, URL: "https://deadfirm.com"},
	}

	evt := NewCompletionEvent(res, time.Now())
	assert.Equal(t, "FAILED", evt.State)
	assert.Equal(t, "domain could not be resolved", evt.FailReason)
	assert.Zero(t, evt.Score)
	assert.Empty(t, evt.Tier)

	data, err := json.Marshal(evt)
	require.NoError(t, err)
	assert.False(t, strings.Contains(string(data), `"score"`), "failed audits publish no score")
}
