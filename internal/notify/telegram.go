// Package notify delivers best-effort operator alerts via the Telegram
// bot API. Delivery failures are reported to the caller but must never
// fail the operation that triggered the alert.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Telegram posts messages to a fixed operator chat.
type Telegram struct {
	baseURL    string
	botToken   string
	chatID     string
	httpClient *http.Client
}

// NewTelegram creates a notifier for the given bot token and chat. An
// empty token disables the notifier; Send then becomes a no-op.
func NewTelegram(botToken, chatID string) *Telegram {
	return &Telegram{
		baseURL:  "https://api.telegram.org",
		botToken: botToken,
		chatID:   chatID,
		httpClient: &http.Client{
			Timeout: 5 * time.Second,
		},
	}
}

// NewTelegramWithBaseURL is used by tests to point at a local server.
func NewTelegramWithBaseURL(baseURL, botToken, chatID string) *Telegram {
	t := NewTelegram(botToken, chatID)
	t.baseURL = strings.TrimRight(baseURL, "/")
	return t
}

type sendMessageRequest struct {
	ChatID    string `json:"chat_id"`
	Text      string `json:"text"`
	ParseMode string `json:"parse_mode"`
}

// Send posts a Markdown message to the operator chat.
func (t *Telegram) Send(ctx context.Context, text string) error {
	if t == nil || t.botToken == "" || t.chatID == "" {
		return nil
	}

	body, err := json.Marshal(sendMessageRequest{
		ChatID:    t.chatID,
		Text:      text,
		ParseMode: "Markdown",
	})
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", t.baseURL, t.botToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	return nil
}
