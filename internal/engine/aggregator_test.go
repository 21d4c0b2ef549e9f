package engine

import (
	"context"
	"fmt"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joshuadevelopsgames/crm-demo-sub003/internal/storage"
)

func TestComputeAccountSkipsArchivedAndLostDeals(t *testing.T) {
	alloc := NewAllocator(30)

	archived := wonDeal(t, "d1", "a1", "2024-01-01", "2025-01-01", "1000")
	archived.Archived = true
	lost := wonDeal(t, "d2", "a1", "2024-01-01", "2025-01-01", "1000")
	lost.Status = "Lost"
	kept := wonDeal(t, "d3", "a1", "2024-01-01", "2025-01-01", "1000")

	m := computeAccount("a1", []storage.Deal{archived, lost, kept}, alloc)

	assert.True(t, m.revenue[2024].Equal(dec(t, "1000")))
	assert.Equal(t, 1, m.dealCount[2024])
	assert.Equal(t, map[string]int{"Lost": 1}, m.stats.unrecognized)
}

func TestComputeAccountAmountSources(t *testing.T) {
	alloc := NewAllocator(30)

	fallback := wonDeal(t, "d1", "a1", "2024-01-01", "2025-01-01", "0")
	fallback.AmountExTax = nil
	fallback.AmountIncTax = decPtr(t, "1100")

	missing := wonDeal(t, "d2", "a1", "2024-01-01", "2025-01-01", "0")
	missing.AmountExTax = nil
	missing.AmountIncTax = nil

	m := computeAccount("a1", []storage.Deal{fallback, missing}, alloc)

	assert.Equal(t, 1, m.stats.fallbacks)
	assert.Equal(t, 1, m.stats.missingAmount)
	assert.True(t, m.revenue[2024].Equal(dec(t, "1100")))
	// A missing amount contributes zero revenue but the deal still counts.
	assert.Equal(t, 2, m.dealCount[2024])
}

func TestComputeAccountTypePresencePerYear(t *testing.T) {
	alloc := NewAllocator(30)

	std := wonDeal(t, "d1", "a1", "2024-01-01", "2025-01-01", "100")
	svc := wonDeal(t, "d2", "a1", "2025-01-01", "2026-01-01", "100")
	svc.Type = "Service"

	m := computeAccount("a1", []storage.Deal{std, svc}, alloc)

	assert.True(t, m.standard[2024])
	assert.False(t, m.service[2024])
	assert.True(t, m.service[2025])
	assert.False(t, m.standard[2025])
}

func TestComputeAccountUndatedAndNonAllocatable(t *testing.T) {
	alloc := NewAllocator(30)

	undated := wonDeal(t, "d1", "a1", "tbd", "", "500")
	inverted := wonDeal(t, "d2", "a1", "2025-01-01", "2024-01-01", "500")

	m := computeAccount("a1", []storage.Deal{undated, inverted}, alloc)

	assert.Equal(t, 1, m.stats.undated)
	assert.Equal(t, 1, m.stats.nonAllocatable)
	assert.Empty(t, m.revenue)
	assert.Empty(t, m.dealCount)
	assert.Len(t, m.stats.samples, 2)
}

// Moving a contract from one year to the next moves its full value with it;
// nothing leaks into the year it left.
func TestRevenueFollowsContractYear(t *testing.T) {
	alloc := NewAllocator(30)

	before := computeAccount("a1", []storage.Deal{wonDeal(t, "d1", "a1", "2024-03-01", "2025-03-01", "8000")}, alloc)
	after := computeAccount("a1", []storage.Deal{wonDeal(t, "d1", "a1", "2025-03-01", "2026-03-01", "8000")}, alloc)

	assert.True(t, before.revenue[2024].Equal(dec(t, "8000")))
	assert.True(t, after.revenue[2024].IsZero())
	assert.True(t, after.revenue[2025].Equal(dec(t, "8000")))
}

func TestReduceTotalsSumsAccountsPerYear(t *testing.T) {
	metrics := []accountMetrics{
		{accountID: "a1", revenue: map[int]decimal.Decimal{2024: dec(t, "100"), 2025: dec(t, "50")}},
		{accountID: "a2", revenue: map[int]decimal.Decimal{2024: dec(t, "300")}},
		{accountID: "a3", revenue: map[int]decimal.Decimal{2026: dec(t, "7")}},
	}

	totals := reduceTotals(metrics)

	assert.True(t, totals[2024].Equal(dec(t, "400")))
	assert.True(t, totals[2025].Equal(dec(t, "50")))
	assert.True(t, totals[2026].Equal(dec(t, "7")))
}

func TestMapAccountsDeterministic(t *testing.T) {
	alloc := NewAllocator(30)

	accounts := make([]storage.Account, 0, 20)
	dealsByAccount := make(map[string][]storage.Deal)
	for i := 19; i >= 0; i-- {
		id := fmt.Sprintf("a%02d", i)
		accounts = append(accounts, storage.Account{ID: id})
		dealsByAccount[id] = []storage.Deal{wonDeal(t, "d-"+id, id, "2024-01-01", "2025-01-01", "100")}
	}

	first, err := mapAccounts(context.Background(), accounts, dealsByAccount, alloc, 4)
	require.NoError(t, err)
	second, err := mapAccounts(context.Background(), accounts, dealsByAccount, alloc, 1)
	require.NoError(t, err)

	require.Len(t, first, 20)
	for i, m := range first {
		assert.Equal(t, second[i].accountID, m.accountID)
		assert.True(t, m.revenue[2024].Equal(dec(t, "100")))
	}
	assert.Equal(t, "a00", first[0].accountID)
	assert.Equal(t, "a19", first[19].accountID)
}

func TestMapAccountsNoDeals(t *testing.T) {
	metrics, err := mapAccounts(context.Background(), []storage.Account{{ID: "a1"}}, nil, NewAllocator(30), 2)
	require.NoError(t, err)
	require.Len(t, metrics, 1)
	assert.Empty(t, metrics[0].revenue)
}
