package judge

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"

	"github.com/leadfoundry/siteauditor/internal/signals"
)

// ratingPattern recovers a rating from free-form replies, e.g.
// `Rating: 7/10` or `"rating" = 6.5`.
var ratingPattern = regexp.MustCompile(`(?i)rating"?\s*[:=]?\s*"?(\d+(?:\.\d+)?)`)

// parseJudgment turns a model reply into a judgment. It tries the requested
// JSON shape first, then falls back to scanning for a rating in prose. ok is
// false when neither yields a rating.
func parseJudgment(reply string) (signals.Judgment, bool) {
	if j, ok := parseJSON(reply); ok {
		return j, true
	}

	m := ratingPattern.FindStringSubmatch(reply)
	if m == nil {
		return signals.Judgment{}, false
	}
	rating, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return signals.Judgment{}, false
	}
	return signals.Judged(rating, strings.TrimSpace(reply)), true
}

func parseJSON(reply string) (signals.Judgment, bool) {
	// Models sometimes wrap the object in prose or a code fence; take the
	// outermost braces.
	start := strings.Index(reply, "{")
	end := strings.LastIndex(reply, "}")
	if start < 0 || end <= start {
		return signals.Judgment{}, false
	}

	var body struct {
		Rating    *float64 `json:"rating"`
		Rationale string   `json:"rationale"`
	}
	if err := json.Unmarshal([]byte(reply[start:end+1]), &body); err != nil {
		return signals.Judgment{}, false
	}
	if body.Rating == nil {
		return signals.Judgment{}, false
	}
	return signals.Judged(*body.Rating, strings.TrimSpace(body.Rationale)), true
}
