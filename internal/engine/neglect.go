package engine

import (
	"sort"
	"time"

	"github.com/joshuadevelopsgames/crm-demo-sub003/internal/storage"
)

// detectNeglect flags accounts whose last interaction is older than their
// segment's cadence. High-touch segments (A, B) get the fast threshold;
// everything else, including accounts with no stored segment, gets the slow
// one. An account with no interaction on record at all is always flagged.
func (e *Engine) detectNeglect(accounts map[string]storage.Account, segments map[string]string, snoozed map[string]bool, asOf time.Time) []storage.NeglectFlagRecord {
	flags := make([]storage.NeglectFlagRecord, 0)

	accountIDs := make([]string, 0, len(accounts))
	for id := range accounts {
		accountIDs = append(accountIDs, id)
	}
	sort.Strings(accountIDs)

	for _, accountID := range accountIDs {
		account := accounts[accountID]
		if account.Archived || snoozed[accountID] {
			continue
		}
		if account.Relationship == storage.RelationshipNotApplicable {
			continue
		}

		segment := segments[accountID]
		threshold := e.neglectThreshold(segment)

		if account.LastInteraction == nil {
			flags = append(flags, storage.NeglectFlagRecord{
				AccountID:     accountID,
				NoInteraction: true,
				ThresholdDays: threshold,
				Segment:       segment,
			})
			continue
		}

		days := wholeDays(*account.LastInteraction, asOf)
		if days <= threshold {
			continue
		}
		flags = append(flags, storage.NeglectFlagRecord{
			AccountID:        accountID,
			DaysSinceContact: days,
			ThresholdDays:    threshold,
			Segment:          segment,
		})
	}

	return flags
}

func (e *Engine) neglectThreshold(segment string) int {
	if segment == SegmentA || segment == SegmentB {
		return e.cfg.NeglectFastDays
	}
	return e.cfg.NeglectSlowDays
}
