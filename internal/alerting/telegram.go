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

	"svfe-monitor/internal/model"
	"svfe-monitor/internal/telemetry"
)

// TelegramNotifier pushes alerts through the Telegram Bot API.
type TelegramNotifier struct {
	botToken string
	chatID   string
	baseURL  string
	client   *http.Client
	logger   zerolog.Logger
}

// NewTelegramNotifier builds a notifier for one chat.
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

// Name identifies the channel in logs and metrics.
func (n *TelegramNotifier) Name() string { return "telegram" }

// Notify posts the rendered alert with sendMessage.
func (n *TelegramNotifier) Notify(ctx context.Context, event model.AlertEvent) error {
	payload := map[string]string{
		"chat_id": n.chatID,
		"text":    renderTelegram(event),
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
		return fmt.Errorf("%w: telegram request: %v", model.ErrDeliveryFailure, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: telegram status %d", model.ErrDeliveryFailure, resp.StatusCode)
	}

	var result struct {
		OK bool `json:"ok"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err == nil && !result.OK {
		return fmt.Errorf("%w: telegram returned ok=false", model.ErrDeliveryFailure)
	}

	telemetry.NotificationsSent.WithLabelValues(n.Name(), "sent").Inc()
	n.logger.Info().Str("rule", event.Rule).Str("subject", event.Subject).Msg("telegram alert sent")
	return nil
}

func renderTelegram(event model.AlertEvent) string {
	var b strings.Builder
	b.WriteString("[SVFE Monitor]\n")
	fmt.Fprintf(&b, "Severity: %s\n", strings.ToUpper(string(event.Severity)))
	fmt.Fprintf(&b, "Rule: %s\n", event.Rule)
	if event.Subject != "" {
		fmt.Fprintf(&b, "Subject: %s\n", event.Subject)
	}
	if !event.CreatedAt.IsZero() {
		fmt.Fprintf(&b, "At: %s\n", event.CreatedAt.Format("2006-01-02 15:04:05"))
	}
	b.WriteString(event.Message)
	return b.String()
}

var _ Notifier = (*TelegramNotifier)(nil)
