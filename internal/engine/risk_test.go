package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joshuadevelopsgames/crm-demo-sub003/internal/storage"
)

var riskAsOf = time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

// expiringDeal builds a won deal ending the given number of days after
// riskAsOf, on a fixed department and address unless overridden.
func expiringDeal(t *testing.T, id, accountID string, daysOut int) storage.Deal {
	t.Helper()
	end := riskAsOf.AddDate(0, 0, daysOut)
	deal := wonDeal(t, id, accountID, end.AddDate(-1, 0, 0).Format(time.DateOnly), end.Format(time.DateOnly), "1000")
	deal.Department = "Facilities"
	deal.Address = "12 Harbour Rd"
	return deal
}

func runRisk(t *testing.T, accounts map[string]storage.Account, deals map[string][]storage.Deal, snoozed map[string]bool) []storage.RiskFlagRecord {
	t.Helper()
	return testEngine(t).detectRisk(accounts, deals, snoozed, riskAsOf)
}

func TestDetectRiskFlagsExpiringContract(t *testing.T) {
	accounts := map[string]storage.Account{"a1": {ID: "a1"}}
	deal := expiringDeal(t, "d1", "a1", 45)

	flags := runRisk(t, accounts, map[string][]storage.Deal{"a1": {deal}}, nil)

	require.Len(t, flags, 1)
	assert.Equal(t, "a1", flags[0].AccountID)
	assert.Equal(t, "d1", flags[0].DealID)
	assert.Equal(t, 45, flags[0].DaysUntilExpiry)
	assert.False(t, flags[0].Duplicate)
	assert.Empty(t, flags[0].ConflictIDs)
}

func TestDetectRiskSupersededByRenewal(t *testing.T) {
	accounts := map[string]storage.Account{"a1": {ID: "a1"}}
	ending := expiringDeal(t, "d1", "a1", 45)
	renewal := expiringDeal(t, "d2", "a1", 400)

	flags := runRisk(t, accounts, map[string][]storage.Deal{"a1": {ending, renewal}}, nil)
	assert.Empty(t, flags)

	// A renewal on a different address covers a different engagement and
	// does not clear the expiring one.
	elsewhere := expiringDeal(t, "d3", "a1", 400)
	elsewhere.Address = "99 Station St"
	flags = runRisk(t, accounts, map[string][]storage.Deal{"a1": {ending, elsewhere}}, nil)
	require.Len(t, flags, 1)
	assert.Equal(t, "d1", flags[0].DealID)
}

func TestDetectRiskRenewalInsideWindowDoesNotSupersede(t *testing.T) {
	// Both contracts expire within the window; the later one is itself at
	// risk, so it cannot vouch for the earlier one.
	accounts := map[string]storage.Account{"a1": {ID: "a1"}}
	first := expiringDeal(t, "d1", "a1", 45)
	second := expiringDeal(t, "d2", "a1", 170)

	flags := runRisk(t, accounts, map[string][]storage.Deal{"a1": {first, second}}, nil)
	require.Len(t, flags, 1)
	assert.Equal(t, "d1", flags[0].DealID)
	assert.True(t, flags[0].Duplicate)
	assert.Equal(t, []string{"d1", "d2"}, flags[0].ConflictIDs)
}

func TestDetectRiskDuplicateGroup(t *testing.T) {
	accounts := map[string]storage.Account{"a1": {ID: "a1"}}
	sixty := expiringDeal(t, "d-60", "a1", 60)
	ninety := expiringDeal(t, "d-90", "a1", 90)

	flags := runRisk(t, accounts, map[string][]storage.Deal{"a1": {ninety, sixty}}, nil)

	require.Len(t, flags, 1)
	assert.Equal(t, "d-60", flags[0].DealID)
	assert.Equal(t, 60, flags[0].DaysUntilExpiry)
	assert.True(t, flags[0].Duplicate)
	assert.Equal(t, []string{"d-60", "d-90"}, flags[0].ConflictIDs)
}

func TestDetectRiskKeyNormalization(t *testing.T) {
	accounts := map[string]storage.Account{"a1": {ID: "a1"}}
	first := expiringDeal(t, "d1", "a1", 60)
	second := expiringDeal(t, "d2", "a1", 90)
	second.Department = "  FACILITIES "
	second.Address = "12   harbour   rd"

	flags := runRisk(t, accounts, map[string][]storage.Deal{"a1": {first, second}}, nil)
	require.Len(t, flags, 1)
	assert.True(t, flags[0].Duplicate)
}

func TestDetectRiskWindowBoundaries(t *testing.T) {
	tests := []struct {
		name    string
		daysOut int
		flagged bool
	}{
		{"expires today", 0, true},
		{"last day of window", 180, true},
		{"just past window", 181, false},
		{"already expired", -1, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			accounts := map[string]storage.Account{"a1": {ID: "a1"}}
			deal := expiringDeal(t, "d1", "a1", tt.daysOut)
			flags := runRisk(t, accounts, map[string][]storage.Deal{"a1": {deal}}, nil)
			if tt.flagged {
				require.Len(t, flags, 1)
				assert.Equal(t, tt.daysOut, flags[0].DaysUntilExpiry)
			} else {
				assert.Empty(t, flags)
			}
		})
	}
}

func TestDetectRiskSkips(t *testing.T) {
	deal := expiringDeal(t, "d1", "a1", 45)
	deals := map[string][]storage.Deal{"a1": {deal}}

	archived := map[string]storage.Account{"a1": {ID: "a1", Archived: true}}
	assert.Empty(t, runRisk(t, archived, deals, nil))

	active := map[string]storage.Account{"a1": {ID: "a1"}}
	assert.Empty(t, runRisk(t, active, deals, map[string]bool{"a1": true}))

	lost := deal
	lost.Status = "Lost"
	assert.Empty(t, runRisk(t, active, map[string][]storage.Deal{"a1": {lost}}, nil))

	unparseable := deal
	unparseable.ContractEnd = "mid next year"
	assert.Empty(t, runRisk(t, active, map[string][]storage.Deal{"a1": {unparseable}}, nil))
}

func TestDetectRiskSortedByAccount(t *testing.T) {
	accounts := map[string]storage.Account{
		"b": {ID: "b"},
		"a": {ID: "a"},
		"c": {ID: "c"},
	}
	deals := map[string][]storage.Deal{
		"a": {expiringDeal(t, "da", "a", 10)},
		"b": {expiringDeal(t, "db", "b", 20)},
		"c": {expiringDeal(t, "dc", "c", 30)},
	}

	flags := runRisk(t, accounts, deals, nil)
	require.Len(t, flags, 3)
	assert.Equal(t, "a", flags[0].AccountID)
	assert.Equal(t, "b", flags[1].AccountID)
	assert.Equal(t, "c", flags[2].AccountID)
}
