package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/joshuadevelopsgames/crm-demo-sub003/internal/alerting"
	"github.com/joshuadevelopsgames/crm-demo-sub003/internal/config"
	"github.com/joshuadevelopsgames/crm-demo-sub003/internal/engine"
	"github.com/joshuadevelopsgames/crm-demo-sub003/internal/scheduler"
	"github.com/joshuadevelopsgames/crm-demo-sub003/internal/storage"
)

// Service orchestrates snapshot loading, the batch engine, persistence, and
// digest alerting.
type Service struct {
	scheduler *scheduler.Scheduler
	source    storage.SnapshotSource
	writer    storage.BatchWriter
	engine    *engine.Engine
	notifier  alerting.Notifier
	logger    zerolog.Logger

	alertsOn bool
	maxFlags int
	locker   storage.AdvisoryLocker
	lockKey  int64
}

// New constructs the batch service.
func New(cfg *config.Config, sched *scheduler.Scheduler, source storage.SnapshotSource, writer storage.BatchWriter, eng *engine.Engine, notifier alerting.Notifier, logger zerolog.Logger) *Service {
	var locker storage.AdvisoryLocker
	if l, ok := source.(storage.AdvisoryLocker); ok {
		locker = l
	}

	return &Service{
		scheduler: sched,
		source:    source,
		writer:    writer,
		engine:    eng,
		notifier:  notifier,
		logger:    logger.With().Str("component", "service").Logger(),
		alertsOn:  cfg.Alerting.Enabled,
		maxFlags:  cfg.Alerting.MaxFlags,
		locker:    locker,
		lockKey:   cfg.Scheduler.AdvisoryLockKey,
	}
}

// Run begins the aligned batch loop.
func (s *Service) Run(ctx context.Context) error {
	if s.scheduler == nil {
		return fmt.Errorf("scheduler not configured")
	}
	return s.scheduler.Run(ctx, s.ProcessRun)
}

// ProcessRun executes one full batch: lock, load, compute, persist, notify.
func (s *Service) ProcessRun(ctx context.Context, runAt time.Time) error {
	unlock, proceed, err := s.acquireLock(ctx)
	if err != nil {
		return err
	}
	if !proceed {
		s.logger.Debug().Time("run_at", runAt).Msg("skip run because advisory lock held elsewhere")
		return nil
	}
	if unlock != nil {
		defer unlock()
	}

	return s.executeRun(ctx, runAt)
}

func (s *Service) executeRun(ctx context.Context, runAt time.Time) error {
	accounts, err := s.source.ListAccounts(ctx)
	if err != nil {
		return fmt.Errorf("load accounts: %w", err)
	}

	deals, err := s.source.ListDeals(ctx)
	if err != nil {
		return fmt.Errorf("load deals: %w", err)
	}

	snoozes, err := s.source.ListActiveSnoozes(ctx, runAt)
	if err != nil {
		return fmt.Errorf("load snoozes: %w", err)
	}

	snap := engine.Snapshot{Accounts: accounts, Deals: deals, Snoozes: snoozes}
	result, err := s.engine.Run(ctx, snap, runAt)
	if err != nil {
		return fmt.Errorf("run engine: %w", err)
	}

	if s.writer != nil {
		batch := storage.BatchWrite{
			Accounts:     result.Accounts,
			RiskFlags:    result.RiskFlags,
			NeglectFlags: result.NeglectFlags,
			Run:          result.Stats.Record(),
		}
		if err := s.writer.SaveBatch(ctx, batch); err != nil {
			return fmt.Errorf("persist batch: %w", err)
		}
	}

	s.logger.Info().Time("run_at", runAt).
		Str("run_id", result.Stats.RunID).
		Int("risk_flags", len(result.RiskFlags)).
		Int("neglect_flags", len(result.NeglectFlags)).
		Msg("batch persisted")

	if s.alertsOn && s.notifier != nil {
		note := s.buildDigest(result)
		if err := s.notifier.Notify(ctx, note); err != nil {
			s.logger.Error().Err(err).Time("run_at", runAt).Msg("failed to dispatch digest")
		}
	}

	return nil
}

// buildDigest trims the result down to the most urgent flags. Risk flags
// arrive sorted by account; the soonest expiries lead the digest instead.
func (s *Service) buildDigest(result *engine.Result) alerting.Notification {
	stats := result.Stats

	risks := make([]storage.RiskFlagRecord, len(result.RiskFlags))
	copy(risks, result.RiskFlags)
	sort.Slice(risks, func(i, j int) bool { return risks[i].DaysUntilExpiry < risks[j].DaysUntilExpiry })
	if len(risks) > s.maxFlags {
		risks = risks[:s.maxFlags]
	}

	neglect := make([]storage.NeglectFlagRecord, len(result.NeglectFlags))
	copy(neglect, result.NeglectFlags)
	sort.Slice(neglect, func(i, j int) bool { return neglect[i].DaysSinceContact > neglect[j].DaysSinceContact })
	if len(neglect) > s.maxFlags {
		neglect = neglect[:s.maxFlags]
	}

	anomalies := stats.UndatedDeals + stats.NonAllocatable + stats.MissingAmount + len(stats.UnrecognizedStatuses)

	return alerting.Notification{
		RunID:          stats.RunID,
		AsOf:           stats.AsOf,
		Accounts:       stats.Accounts,
		Deals:          stats.Deals,
		TotalRiskFlags: len(result.RiskFlags),
		TotalNeglect:   len(result.NeglectFlags),
		Anomalies:      anomalies,
		RiskHighlights: risks,
		NeglectStalest: neglect,
	}
}

func (s *Service) acquireLock(ctx context.Context) (func(), bool, error) {
	if s.lockKey == 0 || s.locker == nil {
		return nil, true, nil
	}
	unlock, acquired, err := s.locker.TryAdvisoryLock(ctx, s.lockKey)
	if err != nil {
		return nil, false, fmt.Errorf("acquire advisory lock: %w", err)
	}
	if !acquired {
		return nil, false, nil
	}
	return unlock, true, nil
}
