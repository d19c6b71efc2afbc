package judge

import (
	"context"

	"github.com/leadfoundry/siteauditor/internal/audit"
	"github.com/leadfoundry/siteauditor/internal/signals"
)

// Disabled is the judge wired when no API key is configured. Every call
// reports the judgment as unavailable so the visual category can explain
// the gap instead of silently scoring zero.
type Disabled struct {
	// Reason is surfaced in findings, e.g. "visual judgment disabled:
	// no API key".
	Reason string
}

var _ audit.VisionJudge = Disabled{}

func (d Disabled) Judge(context.Context, []byte) (signals.Judgment, error) {
	reason := d.Reason
	if reason == "" {
		reason = "visual judgment disabled"
	}
	return signals.Unavailable(reason), nil
}
