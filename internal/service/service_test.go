package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joshuadevelopsgames/crm-demo-sub003/internal/alerting"
	"github.com/joshuadevelopsgames/crm-demo-sub003/internal/config"
	"github.com/joshuadevelopsgames/crm-demo-sub003/internal/engine"
	"github.com/joshuadevelopsgames/crm-demo-sub003/internal/storage"
)

type fakeSource struct {
	accounts []storage.Account
	deals    []storage.Deal
	snoozes  []storage.SnoozeDirective
	err      error
}

func (f *fakeSource) ListAccounts(ctx context.Context) ([]storage.Account, error) {
	return f.accounts, f.err
}

func (f *fakeSource) ListDeals(ctx context.Context) ([]storage.Deal, error) {
	return f.deals, f.err
}

func (f *fakeSource) ListActiveSnoozes(ctx context.Context, now time.Time) ([]storage.SnoozeDirective, error) {
	return f.snoozes, f.err
}

type fakeWriter struct {
	saved []storage.BatchWrite
	err   error
}

func (f *fakeWriter) SaveBatch(ctx context.Context, batch storage.BatchWrite) error {
	if f.err != nil {
		return f.err
	}
	f.saved = append(f.saved, batch)
	return nil
}

type fakeNotifier struct {
	sent []alerting.Notification
	err  error
}

func (f *fakeNotifier) Notify(ctx context.Context, note alerting.Notification) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, note)
	return nil
}

func testServiceConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Engine = config.EngineConfig{
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
	cfg.Alerting.Enabled = true
	cfg.Alerting.MaxFlags = 2
	return cfg
}

func newTestService(cfg *config.Config, source storage.SnapshotSource, writer storage.BatchWriter, notifier alerting.Notifier) *Service {
	eng := engine.New(cfg.Engine, zerolog.Nop())
	return New(cfg, nil, source, writer, eng, notifier, zerolog.Nop())
}

func amount(t *testing.T, v string) *decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(v)
	require.NoError(t, err)
	return &d
}

func TestProcessRunPersistsAndNotifies(t *testing.T) {
	runAt := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	stale := runAt.AddDate(0, 0, -120)

	source := &fakeSource{
		accounts: []storage.Account{
			{ID: "a1", LastInteraction: &stale},
		},
		deals: []storage.Deal{
			{
				ID:            "d1",
				AccountID:     "a1",
				Status:        "Contract Signed",
				Type:          "standard",
				AmountExTax:   amount(t, "60000"),
				ContractStart: "2024-08-01",
				ContractEnd:   runAt.AddDate(0, 0, 40).Format(time.DateOnly),
			},
		},
	}
	writer := &fakeWriter{}
	notifier := &fakeNotifier{}

	svc := newTestService(testServiceConfig(), source, writer, notifier)
	require.NoError(t, svc.ProcessRun(context.Background(), runAt))

	require.Len(t, writer.saved, 1)
	batch := writer.saved[0]
	require.Len(t, batch.Accounts, 1)
	assert.Equal(t, "a1", batch.Accounts[0].ID)
	require.Len(t, batch.RiskFlags, 1)
	assert.Equal(t, 40, batch.RiskFlags[0].DaysUntilExpiry)
	require.Len(t, batch.NeglectFlags, 1)
	assert.NotEmpty(t, batch.Run.RunID)
	assert.Equal(t, 1, batch.Run.Accounts)

	require.Len(t, notifier.sent, 1)
	note := notifier.sent[0]
	assert.Equal(t, batch.Run.RunID, note.RunID)
	assert.Equal(t, 1, note.TotalRiskFlags)
	assert.Equal(t, 1, note.TotalNeglect)
}

func TestProcessRunSourceErrorAborts(t *testing.T) {
	source := &fakeSource{err: errors.New("connection refused")}
	writer := &fakeWriter{}

	svc := newTestService(testServiceConfig(), source, writer, nil)
	err := svc.ProcessRun(context.Background(), time.Now())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "load accounts")
	assert.Empty(t, writer.saved)
}

func TestProcessRunWriterErrorAborts(t *testing.T) {
	source := &fakeSource{accounts: []storage.Account{{ID: "a1"}}}
	writer := &fakeWriter{err: errors.New("deadlock detected")}

	svc := newTestService(testServiceConfig(), source, writer, nil)
	err := svc.ProcessRun(context.Background(), time.Now())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "persist batch")
}

func TestProcessRunNotifierErrorIsNonFatal(t *testing.T) {
	source := &fakeSource{accounts: []storage.Account{{ID: "a1"}}}
	writer := &fakeWriter{}
	notifier := &fakeNotifier{err: errors.New("telegram unreachable")}

	svc := newTestService(testServiceConfig(), source, writer, notifier)
	require.NoError(t, svc.ProcessRun(context.Background(), time.Now()))
	require.Len(t, writer.saved, 1)
}

func TestBuildDigestCapsAndOrders(t *testing.T) {
	svc := newTestService(testServiceConfig(), &fakeSource{}, nil, nil)

	result := &engine.Result{
		Stats: &engine.RunStats{RunID: "r1"},
		RiskFlags: []storage.RiskFlagRecord{
			{AccountID: "a1", DaysUntilExpiry: 90},
			{AccountID: "a2", DaysUntilExpiry: 10},
			{AccountID: "a3", DaysUntilExpiry: 45},
		},
		NeglectFlags: []storage.NeglectFlagRecord{
			{AccountID: "a1", DaysSinceContact: 40},
			{AccountID: "a2", DaysSinceContact: 400},
			{AccountID: "a3", DaysSinceContact: 95},
		},
	}

	note := svc.buildDigest(result)

	assert.Equal(t, 3, note.TotalRiskFlags)
	require.Len(t, note.RiskHighlights, 2)
	assert.Equal(t, "a2", note.RiskHighlights[0].AccountID)
	assert.Equal(t, "a3", note.RiskHighlights[1].AccountID)

	require.Len(t, note.NeglectStalest, 2)
	assert.Equal(t, "a2", note.NeglectStalest[0].AccountID)
	assert.Equal(t, "a3", note.NeglectStalest[1].AccountID)
}
