package engine

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/joshuadevelopsgames/crm-demo-sub003/internal/config"
	"github.com/joshuadevelopsgames/crm-demo-sub003/internal/storage"
)

// Business segments. A through C rank contributing accounts by revenue share,
// D marks project-only accounts, E and F are lead tiers split by ICP score.
const (
	SegmentA = "A"
	SegmentB = "B"
	SegmentC = "C"
	SegmentD = "D"
	SegmentE = "E"
	SegmentF = "F"
)

var hundred = decimal.NewFromInt(100)

// classifySegment assigns one (account, year) segment. Rules evaluate
// top-down, first match wins: lead check, project-only check, revenue share.
func classifySegment(m accountMetrics, year int, total decimal.Decimal, icpScore *float64, cfg config.EngineConfig) string {
	if m.dealCount[year] == 0 {
		return leadSegment(icpScore, cfg.ICPThreshold)
	}

	if m.standard[year] && !m.service[year] {
		return SegmentD
	}

	share := decimal.Zero
	if total.IsPositive() {
		share = m.revenue[year].Div(total).Mul(hundred)
	}

	switch {
	case share.GreaterThan(decimal.NewFromFloat(cfg.ShareAPct)):
		return SegmentA
	case share.GreaterThanOrEqual(decimal.NewFromFloat(cfg.ShareBPct)):
		return SegmentB
	default:
		return SegmentC
	}
}

// leadSegment splits no-won-deal accounts by ICP score. A missing score is
// treated the same as a low one.
func leadSegment(icpScore *float64, threshold float64) string {
	if icpScore != nil && *icpScore >= threshold {
		return SegmentE
	}
	return SegmentF
}

// classifierYears returns every year needing a segment: all years the account
// has revenue for, plus the current and next calendar year so the active-year
// rollover always finds a value already written.
func classifierYears(m accountMetrics, asOf time.Time) []int {
	seen := make(map[int]bool, len(m.revenue)+2)
	years := make([]int, 0, len(m.revenue)+2)
	for year := range m.revenue {
		if !seen[year] {
			seen[year] = true
			years = append(years, year)
		}
	}
	for _, year := range []int{asOf.Year(), asOf.Year() + 1} {
		if !seen[year] {
			seen[year] = true
			years = append(years, year)
		}
	}
	return years
}

// ActiveSegmentYear resolves which stored segment year is currently in
// effect: the calendar year, except January and February which still read the
// prior year's classification.
func ActiveSegmentYear(asOf time.Time) int {
	if asOf.Month() < time.March {
		return asOf.Year() - 1
	}
	return asOf.Year()
}

// EffectiveSegment is the read-side view of an account's current segment.
// Revenue-derived segments (A through D) are served exactly as the batch wrote
// them. Lead segments are re-derived from the live ICP score, which can move
// between batches while the stored value cannot.
func EffectiveSegment(account storage.Account, asOf time.Time, icpThreshold float64) string {
	segment, ok := account.SegmentByYear[ActiveSegmentYear(asOf)]
	if !ok {
		segment = account.ActiveSegment
	}
	if segment == SegmentE || segment == SegmentF {
		return leadSegment(account.ICPScore, icpThreshold)
	}
	return segment
}
