package engine

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/joshuadevelopsgames/crm-demo-sub003/internal/config"
	"github.com/joshuadevelopsgames/crm-demo-sub003/internal/storage"
)

func testEngineConfig() config.EngineConfig {
	return config.EngineConfig{
		Workers:          2,
		RiskWindowDays:   180,
		TypoGraceDays:    30,
		ICPThreshold:     80,
		ShareAPct:        15,
		ShareBPct:        5,
		NeglectFastDays:  30,
		NeglectSlowDays:  90,
		AnomalySampleCap: 10,
	}
}

func testEngine(t *testing.T) *Engine {
	t.Helper()
	return New(testEngineConfig(), zerolog.Nop())
}

func dec(t *testing.T, value string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(value)
	if err != nil {
		t.Fatalf("bad decimal literal %q: %v", value, err)
	}
	return d
}

func decPtr(t *testing.T, value string) *decimal.Decimal {
	t.Helper()
	d := dec(t, value)
	return &d
}

func floatPtr(v float64) *float64 {
	return &v
}

func timePtr(v time.Time) *time.Time {
	return &v
}

// wonDeal builds a signed standard deal covering one contract period.
func wonDeal(t *testing.T, id, accountID, start, end, amount string) storage.Deal {
	t.Helper()
	return storage.Deal{
		ID:            id,
		AccountID:     accountID,
		Status:        "Contract Signed",
		Type:          "standard",
		AmountExTax:   decPtr(t, amount),
		ContractStart: start,
		ContractEnd:   end,
	}
}
