package app

import (
	"fmt"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/shopspring/decimal"

	"github.com/joshuadevelopsgames/crm-demo-sub003/internal/engine"
	"github.com/joshuadevelopsgames/crm-demo-sub003/internal/storage"
)

// SimulateOptions describe one synthetic deal to push through the
// normalizer and allocator. No database is touched.
type SimulateOptions struct {
	Status         string
	PipelineStatus string
	Type           string
	ContractStart  string
	ContractEnd    string
	Amount         string
}

// Simulate prints how the engine would treat a single deal: the won verdict,
// the applicable year, the contract duration, and the per-year allocation.
func (a *App) Simulate(opts SimulateOptions) error {
	amount := decimal.Zero
	if opts.Amount != "" {
		parsed, err := decimal.NewFromString(opts.Amount)
		if err != nil {
			return fmt.Errorf("invalid --amount value: %w", err)
		}
		amount = parsed
	}

	deal := storage.Deal{
		ID:             "simulated",
		Status:         opts.Status,
		PipelineStatus: opts.PipelineStatus,
		Type:           opts.Type,
		AmountExTax:    &amount,
		ContractStart:  opts.ContractStart,
		ContractEnd:    opts.ContractEnd,
	}

	won := engine.IsWon(deal)
	year, yearOK := engine.ApplicableYear(deal)
	plan := engine.NewAllocator(a.Config.Engine.TypoGraceDays).Plan(deal, amount)

	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintf(writer, "Won\t%t\n", won)
	if yearOK {
		fmt.Fprintf(writer, "Applicable year\t%d\n", year)
	} else {
		fmt.Fprintf(writer, "Applicable year\tundeterminable (excluded)\n")
	}

	switch plan.Kind {
	case engine.PlanUndated:
		fmt.Fprintf(writer, "Allocation\tnone (no parseable dates)\n")
	case engine.PlanUnallocatable:
		fmt.Fprintf(writer, "Allocation\tnone (%d months is not a valid duration)\n", plan.Months)
	default:
		fmt.Fprintf(writer, "Duration\t%d months (%d contract years)\n", plan.Months, plan.Years)
		if plan.TypoSuspect {
			fmt.Fprintf(writer, "Warning\tduration looks like an end-date typo\n")
		}
		years := make([]int, 0, len(plan.Slices))
		for y := range plan.Slices {
			years = append(years, y)
		}
		sort.Ints(years)
		for _, y := range years {
			fmt.Fprintf(writer, "  %d\t%s\n", y, plan.Slices[y].StringFixed(2))
		}
	}

	return writer.Flush()
}
