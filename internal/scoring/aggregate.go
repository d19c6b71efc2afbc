package scoring

import (
	"errors"
	"fmt"
	"sort"
)

// ErrCategoryCount reports an aggregation call that did not receive exactly
// one result per category. The orchestrator guarantees every category is
// attempted or explicitly marked unattempted, so hitting this is a defect.
var ErrCategoryCount = errors.New("scoring: exactly one result per category required")

// ErrPointsRange reports a category result whose earned points fall outside
// [0, possible].
var ErrPointsRange = errors.New("scoring: points earned outside valid range")

// Tier is the final outreach recommendation. Lower scores are better
// prospects: a weak site is the sales pitch.
type Tier string

const (
	TierStrongYes Tier = "STRONG YES"
	TierYes       Tier = "YES"
	TierMaybe     Tier = "MAYBE"
	TierNo        Tier = "NO"
)

// ClassifyTier maps a total score onto its outreach tier. Bands are closed on
// the low end, open on the high end, and cover all of [0, 100]; the cut
// points are product decisions and must not be re-derived.
func ClassifyTier(total float64) Tier {
	switch {
	case total < 60:
		return TierStrongYes
	case total < 75:
		return TierYes
	case total < 85:
		return TierMaybe
	default:
		return TierNo
	}
}

// Explanation is the outreach guidance attached to a tier in reports.
func (t Tier) Explanation() string {
	switch t {
	case TierStrongYes:
		return "High-priority outreach: the site needs significant work and the pitch writes itself."
	case TierYes:
		return "Good outreach candidate: clear, demonstrable gaps to present."
	case TierMaybe:
		return "Borderline: worth a mention of specific gaps if capacity allows."
	case TierNo:
		return "Deprioritize: the site is already strong and a redesign pitch would fall flat."
	default:
		return ""
	}
}

// Grade is the prospect-facing letter grade shown in reports. It reads the
// same score from the site owner's perspective: high grades mean a healthy
// site (and a poor outreach target).
type Grade struct {
	Letter  string
	Summary string
}

// GradeFor maps a total score to its letter grade.
func GradeFor(total float64) Grade {
	switch {
	case total >= 85:
		return Grade{Letter: "A", Summary: "Excellent web presence; only fine-tuning left."}
	case total >= 75:
		return Grade{Letter: "B", Summary: "Strong site with a few gaps worth closing."}
	case total >= 60:
		return Grade{Letter: "C", Summary: "Functional but dated; several high-value fixes available."}
	default:
		return Grade{Letter: "D", Summary: "Significant issues across design, conversion, and trust."}
	}
}

// Summary is the aggregated outcome across all five categories.
type Summary struct {
	TotalScore          float64
	Percentage          float64
	Tier                Tier
	Grade               Grade
	RankedOpportunities []Opportunity
}

// Aggregate sums exactly five category results into a total score, tier,
// grade, and ranked opportunity list. The total is always in [0, 100]: a
// category that could not be evaluated contributes the zero score its own
// findings explain.
func Aggregate(results []CategoryResult) (Summary, error) {
	if len(results) != len(Categories()) {
		return Summary{}, fmt.Errorf("%w: got %d results", ErrCategoryCount, len(results))
	}

	seen := make(map[Category]struct{}, len(results))
	total := 0.0
	for _, r := range results {
		if r.Category.Budget() == 0 {
			return Summary{}, fmt.Errorf("%w: unknown category %q", ErrCategoryCount, r.Category)
		}
		if _, dup := seen[r.Category]; dup {
			return Summary{}, fmt.Errorf("%w: duplicate category %q", ErrCategoryCount, r.Category)
		}
		seen[r.Category] = struct{}{}
		if r.PointsEarned < 0 || r.PointsEarned > r.PointsPossible {
			return Summary{}, fmt.Errorf("%w: %s earned %.2f of %.2f",
				ErrPointsRange, r.Category, r.PointsEarned, r.PointsPossible)
		}
		total += r.PointsEarned
	}

	return Summary{
		TotalScore:          total,
		Percentage:          total,
		Tier:                ClassifyTier(total),
		Grade:               GradeFor(total),
		RankedOpportunities: rankOpportunities(results),
	}, nil
}

// rankOpportunities merges every category's opportunities ordered by
// recoverable gain descending, breaking ties by category priority and then by
// emission order. The ordering is fully deterministic.
func rankOpportunities(results []CategoryResult) []Opportunity {
	var merged []Opportunity
	for _, r := range results {
		merged = append(merged, r.Opportunities...)
	}
	sort.SliceStable(merged, func(i, j int) bool {
		if merged[i].Gain != merged[j].Gain {
			return merged[i].Gain > merged[j].Gain
		}
		return categoryPriority(merged[i].Category) < categoryPriority(merged[j].Category)
	})
	return merged
}

func categoryPriority(c Category) int {
	for i, cat := range Categories() {
		if c == cat {
			return i
		}
	}
	return len(Categories())
}
