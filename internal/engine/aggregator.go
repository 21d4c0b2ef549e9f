package engine

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/joshuadevelopsgames/crm-demo-sub003/internal/storage"
)

// accountMetrics holds one account's recomputed per-year aggregates.
type accountMetrics struct {
	accountID string
	revenue   map[int]decimal.Decimal
	dealCount map[int]int
	standard  map[int]bool
	service   map[int]bool
	stats     dealStats
}

// computeAccount folds one account's deals into per-year revenue, won-deal
// counts, and type presence. Pure: same deals in, same metrics out.
func computeAccount(accountID string, deals []storage.Deal, alloc Allocator) accountMetrics {
	m := accountMetrics{
		accountID: accountID,
		revenue:   make(map[int]decimal.Decimal),
		dealCount: make(map[int]int),
		standard:  make(map[int]bool),
		service:   make(map[int]bool),
	}

	for _, deal := range deals {
		if deal.Archived {
			continue
		}
		if !statusRecognized(deal) {
			m.stats.noteUnrecognized(strings.TrimSpace(deal.Status))
		}
		if !IsWon(deal) {
			continue
		}

		amount, source := DealAmount(deal)
		switch source {
		case AmountFallback:
			m.stats.fallbacks++
		case AmountMissing:
			m.stats.missingAmount++
		}

		plan := alloc.Plan(deal, amount)
		switch plan.Kind {
		case PlanUndated:
			m.stats.undated++
			m.stats.sample("deal %s: no parseable date on any field, excluded", deal.ID)
			continue
		case PlanUnallocatable:
			m.stats.nonAllocatable++
			m.stats.sample("deal %s: non-positive contract duration (%d months), contributes 0", deal.ID, plan.Months)
			continue
		}
		if plan.TypoSuspect {
			m.stats.sample("deal %s: %d-month duration looks like an end-date typo", deal.ID, plan.Months)
		}

		dealType := strings.ToLower(strings.TrimSpace(deal.Type))
		for year, slice := range plan.Slices {
			m.revenue[year] = m.revenue[year].Add(slice)
			m.dealCount[year]++
			switch dealType {
			case "standard":
				m.standard[year] = true
			case "service":
				m.service[year] = true
			}
		}
	}

	return m
}

// mapAccounts runs the per-account revenue computation across a worker pool.
// Each account is independent; the reduce over portfolio totals happens after
// every worker has finished.
func mapAccounts(ctx context.Context, accounts []storage.Account, dealsByAccount map[string][]storage.Deal, alloc Allocator, workers int) ([]accountMetrics, error) {
	if workers <= 0 {
		workers = 1
	}

	jobs := make(chan storage.Account)
	results := make(chan accountMetrics, len(accounts))

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for account := range jobs {
				results <- computeAccount(account.ID, dealsByAccount[account.ID], alloc)
			}
		}()
	}

	var sendErr error
	for _, account := range accounts {
		select {
		case <-ctx.Done():
			sendErr = ctx.Err()
		case jobs <- account:
			continue
		}
		break
	}
	close(jobs)
	wg.Wait()
	close(results)

	if sendErr != nil {
		return nil, sendErr
	}

	metrics := make([]accountMetrics, 0, len(accounts))
	for m := range results {
		metrics = append(metrics, m)
	}
	sort.Slice(metrics, func(i, j int) bool { return metrics[i].accountID < metrics[j].accountID })
	return metrics, nil
}

// reduceTotals sums account revenue into portfolio totals, independently per
// year. No cross-year leakage: a year's total sees only that year's slices.
func reduceTotals(metrics []accountMetrics) map[int]decimal.Decimal {
	totals := make(map[int]decimal.Decimal)
	for _, m := range metrics {
		for year, revenue := range m.revenue {
			totals[year] = totals[year].Add(revenue)
		}
	}
	return totals
}
