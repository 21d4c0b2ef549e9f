package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/joshuadevelopsgames/crm-demo-sub003/internal/storage"
)

// Flags prints the current risk and neglect flag lists.
func (a *App) Flags(ctx context.Context, opts FlagsOptions) error {
	kind := strings.ToLower(strings.TrimSpace(opts.Kind))
	if kind != "" && kind != "risk" && kind != "neglect" {
		return fmt.Errorf("unknown flag kind %q (want risk or neglect)", opts.Kind)
	}

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database not configured; cannot show flags")
	}
	if closeStore != nil {
		defer closeStore()
	}

	if kind == "" || kind == "risk" {
		if err := a.printRiskFlags(ctx, store); err != nil {
			return err
		}
	}
	if kind == "" || kind == "neglect" {
		if err := a.printNeglectFlags(ctx, store); err != nil {
			return err
		}
	}
	return nil
}

func (a *App) printRiskFlags(ctx context.Context, store *storage.Store) error {
	flags, err := store.ListRiskFlags(ctx)
	if err != nil {
		return err
	}
	if len(flags) == 0 {
		fmt.Fprintln(os.Stdout, "no risk flags")
		return nil
	}

	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Account\tDeal\tExpires\tDays\tDuplicate\tConflicts")
	for _, flag := range flags {
		fmt.Fprintf(
			writer,
			"%s\t%s\t%s\t%d\t%t\t%s\n",
			flag.AccountID,
			flag.DealID,
			flag.ContractEnd.UTC().Format(time.DateOnly),
			flag.DaysUntilExpiry,
			flag.Duplicate,
			strings.Join(flag.ConflictIDs, ","),
		)
	}
	return writer.Flush()
}

func (a *App) printNeglectFlags(ctx context.Context, store *storage.Store) error {
	flags, err := store.ListNeglectFlags(ctx)
	if err != nil {
		return err
	}
	if len(flags) == 0 {
		fmt.Fprintln(os.Stdout, "no neglect flags")
		return nil
	}

	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Account\tSegment\tThreshold\tDays since contact")
	for _, flag := range flags {
		days := fmt.Sprintf("%d", flag.DaysSinceContact)
		if flag.NoInteraction {
			days = "never contacted"
		}
		fmt.Fprintf(writer, "%s\t%s\t%d\t%s\n", flag.AccountID, flag.Segment, flag.ThresholdDays, days)
	}
	return writer.Flush()
}
