// Package server pushes out-of-band notifications toward the operator when
// rooms are created, without ever blocking the hub.
package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"
)

// Notification kinds handed to the sink.
const (
	notifyNewRoom = "new_room"
)

// Notifier is a fire-and-forget sink for lifecycle events. Implementations
// must never block the caller and must swallow their own delivery failures.
type Notifier interface {
	Notify(kind, roomID, username string, at time.Time)
}

// nopNotifier drops everything. Used when no sink is configured.
type nopNotifier struct{}

func (nopNotifier) Notify(string, string, string, time.Time) {}

// telegramNotifier posts notifications to a Telegram bot chat. Delivery runs
// on its own goroutine with a short client timeout; failures are logged and
// dropped.
type telegramNotifier struct {
	botToken string
	chatID   string
	baseURL  string
	client   *http.Client
}

func newTelegramNotifier(botToken, chatID string) *telegramNotifier {
	return &telegramNotifier{
		botToken: botToken,
		chatID:   chatID,
		baseURL:  "https://api.telegram.org",
		client:   &http.Client{Timeout: 5 * time.Second},
	}
}

func (n *telegramNotifier) Notify(kind, roomID, username string, at time.Time) {
	text := formatNotification(kind, roomID, username, at)
	if text == "" {
		return
	}
	go n.post(text)
}

func (n *telegramNotifier) post(text string) {
	payload, err := json.Marshal(map[string]any{
		"chat_id":                  n.chatID,
		"text":                     text,
		"disable_web_page_preview": true,
	})
	if err != nil {
		log.Printf("Telegram notification encode failed: %v", err)
		return
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", n.baseURL, n.botToken)
	resp, err := n.client.Post(url, "application/json", bytes.NewReader(payload))
	if err != nil {
		log.Printf("Telegram notification failed: %v", err)
		return
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		log.Printf("Telegram notification rejected: status %d", resp.StatusCode)
	}
}

func formatNotification(kind, roomID, username string, at time.Time) string {
	switch kind {
	case notifyNewRoom:
		return fmt.Sprintf("New chat request from %s (room %s) at %s",
			username, roomID, at.Format("3:04 PM"))
	default:
		return ""
	}
}

// newNotifierFromConfig picks the configured sink, defaulting to a no-op.
func newNotifierFromConfig(cfg Config) Notifier {
	if cfg.Telegram.BotToken != "" && cfg.Telegram.ChatID != "" {
		return newTelegramNotifier(cfg.Telegram.BotToken, cfg.Telegram.ChatID)
	}
	return nopNotifier{}
}
