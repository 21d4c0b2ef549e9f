package alerting

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/joshuadevelopsgames/crm-demo-sub003/internal/storage"
)

func TestTelegramNotifierSuccess(t *testing.T) {
	received := make(map[string]string)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.Path, "sendMessage") {
			t.Fatalf("path should contain sendMessage, got %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Fatalf("decode request body: %v", err)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true})
	}))
	defer srv.Close()

	notifier := NewTelegramNotifier("token", "chat", srv.URL, time.Second, testLogger())
	note := Notification{
		RunID:          "run-1",
		AsOf:           time.Now(),
		Accounts:       12,
		Deals:          40,
		TotalRiskFlags: 2,
		TotalNeglect:   1,
		RiskHighlights: []storage.RiskFlagRecord{
			{AccountID: "acct-9", DealID: "deal-3", DaysUntilExpiry: 45, Duplicate: true},
		},
		NeglectStalest: []storage.NeglectFlagRecord{
			{AccountID: "acct-4", DaysSinceContact: 120, ThresholdDays: 90},
		},
	}

	if err := notifier.Notify(context.Background(), note); err != nil {
		t.Fatalf("Notify should succeed: %v", err)
	}

	if received["chat_id"] != "chat" {
		t.Fatalf("wrong chat_id: %#v", received)
	}
	text := received["text"]
	if text == "" {
		t.Fatal("text should not be empty")
	}
	if !strings.Contains(text, "acct-9 expires in 45 days") {
		t.Fatalf("digest should mention the risk highlight, got %q", text)
	}
	if !strings.Contains(text, "[duplicate]") {
		t.Fatalf("digest should mark duplicates, got %q", text)
	}
	if !strings.Contains(text, "acct-4 last contacted 120 days ago") {
		t.Fatalf("digest should mention the neglect highlight, got %q", text)
	}
}

func TestTelegramNotifierError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": false})
	}))
	defer srv.Close()

	notifier := NewTelegramNotifier("token", "chat", srv.URL, time.Second, testLogger())

	if err := notifier.Notify(context.Background(), Notification{RunID: "run-1"}); err == nil {
		t.Fatal("ok=false should report an error")
	}
}

func TestRenderMessageNoInteraction(t *testing.T) {
	note := Notification{
		RunID: "run-2",
		NeglectStalest: []storage.NeglectFlagRecord{
			{AccountID: "acct-7", NoInteraction: true, ThresholdDays: 90},
		},
	}
	text := renderMessage(note)
	if !strings.Contains(text, "acct-7 has no interaction on record") {
		t.Fatalf("expected no-interaction wording, got %q", text)
	}
}

func testLogger() zerolog.Logger {
	return zerolog.Nop()
}
