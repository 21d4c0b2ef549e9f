package engine

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/joshuadevelopsgames/crm-demo-sub003/internal/storage"
)

// PlanKind distinguishes how a deal's value maps onto calendar years.
type PlanKind int

const (
	// PlanProrated spreads value evenly across the contract's year count.
	PlanProrated PlanKind = iota
	// PlanSingleYear books the full value into one year.
	PlanSingleYear
	// PlanUnallocatable marks a zero/negative duration; contributes nothing.
	PlanUnallocatable
	// PlanUndated marks a deal with no parseable date anywhere; excluded.
	PlanUndated
)

// Plan is the allocation verdict for one deal.
type Plan struct {
	Kind        PlanKind
	StartYear   int
	Years       int
	Months      int
	Slices      map[int]decimal.Decimal
	TypoSuspect bool
}

// SpansYear reports whether the plan books any value into the given year.
func (p Plan) SpansYear(year int) bool {
	_, ok := p.Slices[year]
	return ok
}

// ValueFor returns the slice booked into the given year, zero when none.
func (p Plan) ValueFor(year int) decimal.Decimal {
	if value, ok := p.Slices[year]; ok {
		return value
	}
	return decimal.Zero
}

// Allocator converts contract dates and value into per-year slices.
type Allocator struct {
	graceDays int
}

// NewAllocator constructs an Allocator with the given typo grace window.
func NewAllocator(graceDays int) Allocator {
	return Allocator{graceDays: graceDays}
}

// ContractMonths computes the whole-month duration between two dates. The
// count is incremented for a trailing partial month only when the end
// day-of-month exceeds the start's, so an exact anniversary stays at N*12.
func ContractMonths(start, end time.Time) int {
	months := (end.Year()-start.Year())*12 + int(end.Month()) - int(start.Month())
	if end.Day() > start.Day() {
		months++
	}
	return months
}

// YearCount maps a whole-month duration onto contract years.
func YearCount(months int) int {
	switch {
	case months <= 12:
		return 1
	case months <= 24:
		return 2
	case months <= 36:
		return 3
	}
	if months%12 == 0 {
		return months / 12
	}
	return months/12 + 1
}

// typoSuspect flags the N-years-and-one-month pattern (13, 25, 37... months)
// that usually means a mistyped end year, unless the end date sits inside the
// grace window just past the anniversary.
func (a Allocator) typoSuspect(start, end time.Time, months int) bool {
	if months < 13 || months%12 != 1 {
		return false
	}
	anniversary := start.AddDate(months/12, 0, 0)
	grace := anniversary.AddDate(0, 0, a.graceDays)
	return end.After(grace)
}

// Plan resolves a deal's allocation. Both contract dates present: prorate
// across the year count. Only a start (or only a non-contract date): full
// value in that single year. Nothing parseable: undated, excluded.
func (a Allocator) Plan(deal storage.Deal, amount decimal.Decimal) Plan {
	start, startOK := ParseDate(deal.ContractStart)
	end, endOK := ParseDate(deal.ContractEnd)

	if startOK && endOK {
		months := ContractMonths(start, end)
		if months <= 0 {
			return Plan{Kind: PlanUnallocatable, Months: months}
		}
		years := YearCount(months)
		return Plan{
			Kind:        PlanProrated,
			StartYear:   start.Year(),
			Years:       years,
			Months:      months,
			Slices:      prorate(amount, start.Year(), years),
			TypoSuspect: a.typoSuspect(start, end, months),
		}
	}

	if startOK {
		return singleYearPlan(start.Year(), amount)
	}

	if year, ok := ApplicableYear(deal); ok {
		return singleYearPlan(year, amount)
	}

	return Plan{Kind: PlanUndated}
}

func singleYearPlan(year int, amount decimal.Decimal) Plan {
	return Plan{
		Kind:      PlanSingleYear,
		StartYear: year,
		Years:     1,
		Months:    12,
		Slices:    map[int]decimal.Decimal{year: amount},
	}
}

// prorate divides value evenly across consecutive years starting at
// startYear. Slices are cent-rounded with the remainder folded into the final
// year, so the slices always sum back to the exact original value.
func prorate(value decimal.Decimal, startYear, years int) map[int]decimal.Decimal {
	slices := make(map[int]decimal.Decimal, years)
	if years <= 1 {
		slices[startYear] = value
		return slices
	}

	share := value.Div(decimal.NewFromInt(int64(years))).Round(2)
	allocated := decimal.Zero
	for i := 0; i < years-1; i++ {
		slices[startYear+i] = share
		allocated = allocated.Add(share)
	}
	slices[startYear+years-1] = value.Sub(allocated)
	return slices
}
