package engine

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/joshuadevelopsgames/crm-demo-sub003/internal/config"
	"github.com/joshuadevelopsgames/crm-demo-sub003/internal/storage"
)

// Snapshot is the immutable input of one batch run.
type Snapshot struct {
	Accounts []storage.Account
	Deals    []storage.Deal
	Snoozes  []storage.SnoozeDirective
}

// Result is everything one batch run computed, held fully in memory so the
// caller can persist it atomically.
type Result struct {
	Accounts     []storage.AccountUpdate
	RiskFlags    []storage.RiskFlagRecord
	NeglectFlags []storage.NeglectFlagRecord
	Totals       map[int]decimal.Decimal
	Stats        *RunStats
}

// Engine runs the attribution and classification pipeline over a snapshot.
type Engine struct {
	cfg    config.EngineConfig
	alloc  Allocator
	logger zerolog.Logger
}

// New constructs an Engine.
func New(cfg config.EngineConfig, logger zerolog.Logger) *Engine {
	return &Engine{
		cfg:    cfg,
		alloc:  NewAllocator(cfg.TypoGraceDays),
		logger: logger.With().Str("component", "engine").Logger(),
	}
}

// Run executes the full pipeline: per-account revenue map step (parallel),
// portfolio totals reduce, segment classification for every relevant year,
// then the risk and neglect passes. Deterministic for a given snapshot and
// asOf, up to the generated run ID and timings.
func (e *Engine) Run(ctx context.Context, snap Snapshot, asOf time.Time) (*Result, error) {
	stats := newRunStats(asOf, e.cfg.AnomalySampleCap)
	stats.Deals = len(snap.Deals)

	dealsByAccount := make(map[string][]storage.Deal, len(snap.Accounts))
	for _, deal := range snap.Deals {
		dealsByAccount[deal.AccountID] = append(dealsByAccount[deal.AccountID], deal)
	}

	accountsByID := make(map[string]storage.Account, len(snap.Accounts))
	active := make([]storage.Account, 0, len(snap.Accounts))
	for _, account := range snap.Accounts {
		accountsByID[account.ID] = account
		if !account.Archived {
			active = append(active, account)
		}
	}
	stats.Accounts = len(active)

	metrics, err := mapAccounts(ctx, active, dealsByAccount, e.alloc, e.cfg.Workers)
	if err != nil {
		return nil, err
	}
	for _, m := range metrics {
		stats.merge(m.stats)
	}

	totals := reduceTotals(metrics)

	updates := make([]storage.AccountUpdate, 0, len(metrics))
	segments := make(map[string]string, len(metrics))
	activeYear := ActiveSegmentYear(asOf)
	for _, m := range metrics {
		account := accountsByID[m.accountID]
		segmentByYear := make(map[int]string)
		for _, year := range classifierYears(m, asOf) {
			segmentByYear[year] = classifySegment(m, year, totals[year], account.ICPScore, e.cfg)
		}

		update := storage.AccountUpdate{
			ID:              m.accountID,
			RevenueByYear:   m.revenue,
			SegmentByYear:   segmentByYear,
			DealCountByYear: m.dealCount,
			ActiveSegment:   segmentByYear[activeYear],
		}
		updates = append(updates, update)
		segments[m.accountID] = update.ActiveSegment
	}

	riskFlags := e.detectRisk(accountsByID, dealsByAccount, snoozedAccounts(snap.Snoozes, storage.SnoozeRenewalReminder, asOf), asOf)
	neglectFlags := e.detectNeglect(accountsByID, segments, snoozedAccounts(snap.Snoozes, storage.SnoozeNeglectedAccount, asOf), asOf)

	stats.RiskFlags = len(riskFlags)
	stats.NeglectFlags = len(neglectFlags)
	stats.FinishedAt = time.Now().UTC()

	for status := range stats.UnrecognizedStatuses {
		e.logger.Warn().Str("status", status).Msg("unrecognized deal status, treated as not won")
	}
	if stats.AmountFallbackOccurred() {
		e.logger.Warn().Int("deals", stats.AmountFallbacks).Msg("tax-exclusive amount missing, fell back to tax-inclusive")
	}
	e.logger.Info().
		Str("run_id", stats.RunID).
		Int("accounts", stats.Accounts).
		Int("deals", stats.Deals).
		Int("risk_flags", stats.RiskFlags).
		Int("neglect_flags", stats.NeglectFlags).
		Msg("batch computed")

	return &Result{
		Accounts:     updates,
		RiskFlags:    riskFlags,
		NeglectFlags: neglectFlags,
		Totals:       totals,
		Stats:        stats,
	}, nil
}

// snoozedAccounts resolves which accounts have an unexpired snooze for one
// notification category.
func snoozedAccounts(snoozes []storage.SnoozeDirective, category string, asOf time.Time) map[string]bool {
	snoozed := make(map[string]bool)
	for _, snooze := range snoozes {
		if snooze.Category == category && snooze.ExpiresAt.After(asOf) {
			snoozed[snooze.AccountID] = true
		}
	}
	return snoozed
}
