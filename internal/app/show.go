package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"
)

// Show prints recent batch runs.
func (a *App) Show(ctx context.Context, opts ShowOptions) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database not configured; cannot show runs")
	}
	if closeStore != nil {
		defer closeStore()
	}

	runs, err := store.ListRecentRuns(ctx, opts.Limit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Fprintln(os.Stdout, "no batch runs found")
		return nil
	}

	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Started (UTC)\tRun\tAccounts\tDeals\tRisk\tNeglect\tUndated\tNonAlloc\tNoAmount\tFallbacks\tBadStatus")

	for _, run := range runs {
		fmt.Fprintf(
			writer,
			"%s\t%s\t%d\t%d\t%d\t%d\t%d\t%d\t%d\t%d\t%d\n",
			run.StartedAt.UTC().Format(time.RFC3339),
			shortRunID(run.RunID),
			run.Accounts,
			run.Deals,
			run.RiskFlags,
			run.NeglectFlags,
			run.UndatedDeals,
			run.NonAllocatable,
			run.MissingAmount,
			run.AmountFallbacks,
			run.UnrecognizedStatuses,
		)
	}

	writer.Flush()

	for _, run := range runs {
		for _, sample := range run.Samples {
			fmt.Fprintf(os.Stdout, "%s: %s\n", shortRunID(run.RunID), sanitizeInline(sample))
		}
	}
	return nil
}

func shortRunID(runID string) string {
	if len(runID) > 8 {
		return runID[:8]
	}
	return runID
}

func sanitizeInline(v string) string {
	cleaned := strings.ReplaceAll(v, "\n", " ")
	cleaned = strings.ReplaceAll(cleaned, "\r", " ")
	return cleaned
}
