// Package publisher emits audit completion events for downstream
// consumers such as lead-scoring pipelines and CRM importers.
package publisher

import (
	"context"
	"time"

	"github.com/leadfoundry/siteauditor/internal/audit"
)

// Publisher sends a payload to a named topic and returns the message ID.
// Implementations marshal the payload themselves.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// CompletionEvent is the message emitted when an audit reaches a
// terminal state. Scored fields are zero for failed audits.
type CompletionEvent struct {
	AuditID     string    `json:"audit_id"`
	URL         string    `json:"url"`
	FinalURL    string    `json:"final_url,omitempty"`
	CompanyName string    `json:"company_name,omitempty"`
	State       string    `json:"state"`
	Score       float64   `json:"score,omitempty"`
	Percentage  float64   `json:"percentage,omitempty"`
	Tier        string    `json:"tier,omitempty"`
	Grade       string    `json:"grade,omitempty"`
	ReportPath  string    `json:"report_path,omitempty"`
	FailReason  string    `json:"fail_reason,omitempty"`
	FinishedAt  time.Time `json:"finished_at"`
}

// NewCompletionEvent builds the terminal event for one audit result.
func NewCompletionEvent(res *audit.Result, finishedAt time.Time) CompletionEvent {
	evt := CompletionEvent{
		AuditID:     res.ID,
		URL:         res.URL,
		FinalURL:    res.FinalURL,
		CompanyName: res.CompanyName,
		State:       string(res.State),
		ReportPath:  res.ReportPath,
		FinishedAt:  finishedAt.UTC(),
	}
	if res.Scored() {
		evt.Score = res.TotalScore
		evt.Percentage = res.Percentage
		evt.Tier = string(res.Tier)
		evt.Grade = res.Grade.Letter
	}
	if res.Err != nil {
		evt.FailReason = res.Err.Reason()
	}
	return evt
}
