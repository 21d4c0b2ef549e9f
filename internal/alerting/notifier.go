package alerting

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/joshuadevelopsgames/crm-demo-sub003/internal/storage"
)

// Notification is the digest of one completed batch run.
type Notification struct {
	RunID           string
	AsOf            time.Time
	Accounts        int
	Deals           int
	TotalRiskFlags  int
	TotalNeglect    int
	Anomalies       int
	RiskHighlights  []storage.RiskFlagRecord
	NeglectStalest  []storage.NeglectFlagRecord
}

// Notifier delivers batch digests.
type Notifier interface {
	Notify(ctx context.Context, notification Notification) error
}

// TelegramNotifier pushes digests through the Telegram Bot API.
type TelegramNotifier struct {
	botToken string
	chatID   string
	baseURL  string
	client   *http.Client
	logger   zerolog.Logger
}

// NewTelegramNotifier constructs a Telegram digest notifier.
func NewTelegramNotifier(botToken, chatID, baseURL string, timeout time.Duration, logger zerolog.Logger) *TelegramNotifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if baseURL == "" {
		baseURL = "https://api.telegram.org"
	}

	return &TelegramNotifier{
		botToken: botToken,
		chatID:   chatID,
		baseURL:  strings.TrimRight(baseURL, "/"),
		client:   &http.Client{Timeout: timeout},
		logger:   logger.With().Str("component", "alert_telegram").Logger(),
	}
}

// Notify sends the digest text through the sendMessage API.
func (n *TelegramNotifier) Notify(ctx context.Context, note Notification) error {
	payload := map[string]string{
		"chat_id": n.chatID,
		"text":    renderMessage(note),
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal telegram payload: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", n.baseURL, n.botToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create telegram request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send telegram request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("unexpected telegram status: %d", resp.StatusCode)
	}

	var result struct {
		OK bool `json:"ok"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err == nil {
		if !result.OK {
			return fmt.Errorf("telegram returned ok=false")
		}
	}

	n.logger.Info().Str("run_id", note.RunID).
		Int("risk_flags", note.TotalRiskFlags).
		Int("neglect_flags", note.TotalNeglect).
		Msg("batch digest sent")
	return nil
}

func renderMessage(note Notification) string {
	builder := strings.Builder{}
	builder.WriteString("[Account Watch Digest]\n")
	builder.WriteString(fmt.Sprintf("Run: %s\n", note.RunID))
	builder.WriteString(fmt.Sprintf("As of: %s\n", note.AsOf.UTC().Format("2006-01-02")))
	builder.WriteString(fmt.Sprintf("Accounts: %d, deals: %d\n", note.Accounts, note.Deals))
	builder.WriteString(fmt.Sprintf("Renewals at risk: %d\n", note.TotalRiskFlags))
	builder.WriteString(fmt.Sprintf("Neglected accounts: %d\n", note.TotalNeglect))
	if note.Anomalies > 0 {
		builder.WriteString(fmt.Sprintf("Data anomalies: %d\n", note.Anomalies))
	}

	for _, flag := range note.RiskHighlights {
		line := fmt.Sprintf("- %s expires in %d days (deal %s)", flag.AccountID, flag.DaysUntilExpiry, flag.DealID)
		if flag.Duplicate {
			line += " [duplicate]"
		}
		builder.WriteString(line + "\n")
	}
	for _, flag := range note.NeglectStalest {
		if flag.NoInteraction {
			builder.WriteString(fmt.Sprintf("- %s has no interaction on record\n", flag.AccountID))
			continue
		}
		builder.WriteString(fmt.Sprintf("- %s last contacted %d days ago (limit %d)\n", flag.AccountID, flag.DaysSinceContact, flag.ThresholdDays))
	}
	return builder.String()
}

var _ Notifier = (*TelegramNotifier)(nil)
