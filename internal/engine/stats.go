package engine

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/joshuadevelopsgames/crm-demo-sub003/internal/storage"
)

// RunStats accumulates per-record anomalies for one batch run. Anomalies never
// abort the batch; they surface here as counters plus a capped sample list.
type RunStats struct {
	RunID                string
	AsOf                 time.Time
	StartedAt            time.Time
	FinishedAt           time.Time
	Accounts             int
	Deals                int
	RiskFlags            int
	NeglectFlags         int
	UndatedDeals         int
	NonAllocatable       int
	MissingAmount        int
	AmountFallbacks      int
	UnrecognizedStatuses map[string]int
	Samples              []string

	sampleCap int
}

func newRunStats(asOf time.Time, sampleCap int) *RunStats {
	return &RunStats{
		RunID:                uuid.NewString(),
		AsOf:                 asOf,
		StartedAt:            time.Now().UTC(),
		UnrecognizedStatuses: make(map[string]int),
		sampleCap:            sampleCap,
	}
}

// AmountFallbackOccurred reports whether any deal fell back to the
// tax-inclusive amount this run. Surfaced once per run, not per deal.
func (s *RunStats) AmountFallbackOccurred() bool {
	return s.AmountFallbacks > 0
}

func (s *RunStats) sample(format string, args ...any) {
	if len(s.Samples) >= s.sampleCap {
		return
	}
	s.Samples = append(s.Samples, fmt.Sprintf(format, args...))
}

// dealStats is the per-worker partial merged into RunStats after the map step.
type dealStats struct {
	undated        int
	nonAllocatable int
	missingAmount  int
	fallbacks      int
	unrecognized   map[string]int
	samples        []string
}

func (d *dealStats) sample(format string, args ...any) {
	d.samples = append(d.samples, fmt.Sprintf(format, args...))
}

func (d *dealStats) noteUnrecognized(status string) {
	if d.unrecognized == nil {
		d.unrecognized = make(map[string]int)
	}
	d.unrecognized[status]++
}

func (s *RunStats) merge(d dealStats) {
	s.UndatedDeals += d.undated
	s.NonAllocatable += d.nonAllocatable
	s.MissingAmount += d.missingAmount
	s.AmountFallbacks += d.fallbacks
	for status, count := range d.unrecognized {
		s.UnrecognizedStatuses[status] += count
	}
	for _, sample := range d.samples {
		if len(s.Samples) >= s.sampleCap {
			break
		}
		s.Samples = append(s.Samples, sample)
	}
}

// Record converts the stats into their persisted form.
func (s *RunStats) Record() storage.BatchRunRecord {
	samples := make([]string, len(s.Samples))
	copy(samples, s.Samples)
	sort.Strings(samples)

	return storage.BatchRunRecord{
		RunID:                s.RunID,
		AsOf:                 s.AsOf,
		StartedAt:            s.StartedAt,
		FinishedAt:           s.FinishedAt,
		Accounts:             s.Accounts,
		Deals:                s.Deals,
		RiskFlags:            s.RiskFlags,
		NeglectFlags:         s.NeglectFlags,
		UndatedDeals:         s.UndatedDeals,
		NonAllocatable:       s.NonAllocatable,
		MissingAmount:        s.MissingAmount,
		AmountFallbacks:      s.AmountFallbacks,
		UnrecognizedStatuses: len(s.UnrecognizedStatuses),
		Samples:              samples,
	}
}
