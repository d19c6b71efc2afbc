// Package scoring turns site signals into weighted category results and a
// single outreach recommendation. Every scorer is a pure function: no I/O,
// no shared state, identical input always yields identical output.
package scoring

// Category names one of the five scored dimensions.
type Category string

const (
	CategoryVisual     Category = "Visual Design"
	CategoryConversion Category = "Conversion"
	CategoryTrust      Category = "Trust"
	CategorySEO        Category = "SEO"
	CategoryTechnical  Category = "Technical"
)

// Category budgets sum to exactly 100. The split is a product decision and
// must not be re-derived.
const (
	visualBudget     = 30.0
	conversionBudget = 25.0
	trustBudget      = 20.0
	seoBudget        = 15.0
	technicalBudget  = 10.0
)

// Categories returns all categories in priority order; earlier entries win
// opportunity-ranking ties.
func Categories() [5]Category {
	return [5]Category{
		CategoryVisual,
		CategoryConversion,
		CategoryTrust,
		CategorySEO,
		CategoryTechnical,
	}
}

// Budget returns the category's maximum points.
func (c Category) Budget() float64 {
	switch c {
	case CategoryVisual:
		return visualBudget
	case CategoryConversion:
		return conversionBudget
	case CategoryTrust:
		return trustBudget
	case CategorySEO:
		return seoBudget
	case CategoryTechnical:
		return technicalBudget
	default:
		return 0
	}
}

// Severity classifies a Finding.
type Severity string

const (
	// SeverityPass records a sub-check that passed cleanly.
	SeverityPass Severity = "pass"
	// SeverityWarn records an advisory: passed or partially passed, but
	// sub-optimally.
	SeverityWarn Severity = "warn"
	// SeverityFail records a failed sub-check.
	SeverityFail Severity = "fail"
)

// Finding is one recorded observation about a sub-check.
type Finding struct {
	Severity Severity
	Message  string
}

// Opportunity is an actionable improvement derived from a failed or
// sub-optimal sub-check. Gain is the number of points recoverable and is the
// ranking key.
type Opportunity struct {
	Category Category
	Message  string
	Gain     float64
}

// CategoryResult is the outcome of scoring one category.
// Invariant: 0 <= PointsEarned <= PointsPossible.
type CategoryResult struct {
	Category       Category
	PointsEarned   float64
	PointsPossible float64
	Findings       []Finding
	Opportunities  []Opportunity
}

// builder accumulates one category's findings and opportunities, deduplicating
// opportunities by message.
type builder struct {
	result CategoryResult
	seen   map[string]struct{}
}

func newBuilder(c Category) *builder {
	return &builder{
		result: CategoryResult{Category: c, PointsPossible: c.Budget()},
		seen:   make(map[string]struct{}),
	}
}

func (b *builder) earn(points float64) {
	b.result.PointsEarned += points
}

func (b *builder) finding(sev Severity, msg string) {
	b.result.Findings = append(b.result.Findings, Finding{Severity: sev, Message: msg})
}

func (b *builder) opportunity(msg string, gain float64) {
	if _, dup := b.seen[msg]; dup {
		return
	}
	b.seen[msg] = struct{}{}
	b.result.Opportunities = append(b.result.Opportunities, Opportunity{
		Category: b.result.Category,
		Message:  msg,
		Gain:     gain,
	})
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
