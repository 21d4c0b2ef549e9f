package engine

import (
	"sort"
	"time"

	"github.com/joshuadevelopsgames/crm-demo-sub003/internal/storage"
)

// riskDeal is a won deal with a parseable contract end, pre-resolved for the
// expiry scan.
type riskDeal struct {
	deal storage.Deal
	end  time.Time
	days int
	key  string
}

// detectRisk flags accounts whose soonest-expiring won contract falls inside
// the renewal window. Past-due contracts are not renewal candidates and stay
// out of the window.
func (e *Engine) detectRisk(accounts map[string]storage.Account, dealsByAccount map[string][]storage.Deal, snoozed map[string]bool, asOf time.Time) []storage.RiskFlagRecord {
	flags := make([]storage.RiskFlagRecord, 0)

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

		expiring := expiringDeals(dealsByAccount[accountID], asOf)
		if len(expiring) == 0 {
			continue
		}

		survivors := make([]riskDeal, 0, len(expiring))
		for _, candidate := range expiring {
			if candidate.days < 0 || candidate.days > e.cfg.RiskWindowDays {
				continue
			}
			if e.superseded(candidate, expiring) {
				continue
			}
			survivors = append(survivors, candidate)
		}
		if len(survivors) == 0 {
			continue
		}

		flags = append(flags, e.buildRiskFlag(accountID, survivors))
	}

	return flags
}

// expiringDeals collects all won deals with a parseable end date, including
// those beyond the window: they are still needed as renewal evidence.
func expiringDeals(deals []storage.Deal, asOf time.Time) []riskDeal {
	expiring := make([]riskDeal, 0, len(deals))
	for _, deal := range deals {
		if deal.Archived || !IsWon(deal) {
			continue
		}
		end, ok := ParseDate(deal.ContractEnd)
		if !ok {
			continue
		}
		expiring = append(expiring, riskDeal{
			deal: deal,
			end:  end,
			days: wholeDays(asOf, end),
			key:  normalizeKey(deal.Department, deal.Address),
		})
	}
	return expiring
}

// superseded reports whether another won deal on the same department and
// address already covers the period after this one: a later end date whose own
// expiry sits beyond the risk window means the renewal is arranged.
func (e *Engine) superseded(candidate riskDeal, all []riskDeal) bool {
	for _, other := range all {
		if other.deal.ID == candidate.deal.ID || other.key != candidate.key {
			continue
		}
		if other.end.After(candidate.end) && other.days > e.cfg.RiskWindowDays {
			return true
		}
	}
	return false
}

// buildRiskFlag picks the soonest-expiring survivor as the account's primary
// record and attaches duplicate-group members. Two surviving deals on the same
// normalized department and address cannot both be genuine; all members of
// such groups are reported.
func (e *Engine) buildRiskFlag(accountID string, survivors []riskDeal) storage.RiskFlagRecord {
	sort.Slice(survivors, func(i, j int) bool {
		if !survivors[i].end.Equal(survivors[j].end) {
			return survivors[i].end.Before(survivors[j].end)
		}
		return survivors[i].deal.ID < survivors[j].deal.ID
	})

	groups := make(map[string][]riskDeal)
	for _, survivor := range survivors {
		groups[survivor.key] = append(groups[survivor.key], survivor)
	}

	conflictIDs := make([]string, 0)
	duplicate := false
	for _, group := range groups {
		if len(group) < 2 {
			continue
		}
		duplicate = true
		for _, member := range group {
			conflictIDs = append(conflictIDs, member.deal.ID)
		}
	}
	sort.Strings(conflictIDs)

	primary := survivors[0]
	return storage.RiskFlagRecord{
		AccountID:       accountID,
		DealID:          primary.deal.ID,
		ContractEnd:     primary.end,
		DaysUntilExpiry: primary.days,
		Duplicate:       duplicate,
		ConflictIDs:     conflictIDs,
	}
}
