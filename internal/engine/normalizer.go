package engine

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/joshuadevelopsgames/crm-demo-sub003/internal/storage"
)

// wonStatuses is the legacy free-text allow-list consulted when a deal has no
// pipeline stage. Matching is over the trimmed, lowercased status.
var wonStatuses = map[string]struct{}{
	"contract signed":             {},
	"work complete":               {},
	"billing complete":            {},
	"email contract award":        {},
	"verbal contract award":       {},
	"contract in progress":        {},
	"contract + billing complete": {},
	"sold":                        {},
	"won":                         {},
}

// dateLayouts covers the formats the import layer has historically produced.
var dateLayouts = []string{
	"2006-01-02",
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006/01/02",
	"01/02/2006",
}

// IsWon resolves a deal's canonical won boolean. A populated pipeline stage is
// authoritative: it wins when it mentions "sold" and loses otherwise. Only an
// empty stage falls back to the legacy status allow-list. Total for all inputs.
func IsWon(deal storage.Deal) bool {
	pipeline := strings.ToLower(strings.TrimSpace(deal.PipelineStatus))
	if pipeline != "" {
		return strings.Contains(pipeline, "sold")
	}
	_, ok := wonStatuses[strings.ToLower(strings.TrimSpace(deal.Status))]
	return ok
}

// statusRecognized reports whether a deal's status carries any known signal.
// Used for anomaly accounting only; IsWon stays the decision function.
func statusRecognized(deal storage.Deal) bool {
	if strings.TrimSpace(deal.PipelineStatus) != "" {
		return true
	}
	status := strings.ToLower(strings.TrimSpace(deal.Status))
	if status == "" {
		return true
	}
	_, ok := wonStatuses[status]
	return ok
}

// ParseDate attempts every known layout against a trimmed raw date string.
func ParseDate(raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// ApplicableYear resolves the accounting year of a deal by walking the date
// priority chain contract_end, contract_start, estimate_date, created_date.
// The first field that parses wins. ok=false means the deal is undatable and
// is excluded from every year.
func ApplicableYear(deal storage.Deal) (int, bool) {
	for _, raw := range []string{deal.ContractEnd, deal.ContractStart, deal.EstimateDate, deal.CreatedDate} {
		if t, ok := ParseDate(raw); ok {
			return t.Year(), true
		}
	}
	return 0, false
}

// AmountSource identifies which monetary field supplied a deal's value.
type AmountSource int

const (
	AmountPrimary AmountSource = iota
	AmountFallback
	AmountMissing
)

// DealAmount returns the deal's monetary value. The tax-exclusive amount is
// preferred; the tax-inclusive amount is used only when the primary is absent
// entirely, never when it is legitimately zero.
func DealAmount(deal storage.Deal) (decimal.Decimal, AmountSource) {
	if deal.AmountExTax != nil {
		return *deal.AmountExTax, AmountPrimary
	}
	if deal.AmountIncTax != nil {
		return *deal.AmountIncTax, AmountFallback
	}
	return decimal.Zero, AmountMissing
}

// wholeDays returns the calendar-day difference to - from, ignoring clock time.
func wholeDays(from, to time.Time) int {
	f := time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, time.UTC)
	t := time.Date(to.Year(), to.Month(), to.Day(), 0, 0, 0, 0, time.UTC)
	return int(t.Sub(f) / (24 * time.Hour))
}

// normalizeKey canonicalises free-text department/address values for matching.
func normalizeKey(parts ...string) string {
	normalized := make([]string, 0, len(parts))
	for _, part := range parts {
		normalized = append(normalized, strings.Join(strings.Fields(strings.ToLower(part)), " "))
	}
	return strings.Join(normalized, "|")
}
