package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"SignalDesk/internal/model"
)

// TelegramNotifier sends messages via the Telegram Bot API.
type TelegramNotifier struct {
	BotToken string
	ChatID   string
	Client   *http.Client

	// apiBase overrides the Bot API host in tests. Empty means production.
	apiBase string
}

// Button is one inline keyboard button.
type Button struct {
	Text         string `json:"text"`
	CallbackData string `json:"callback_data"`
}

// NewTelegramNotifier creates a notifier with optional proxy support.
func NewTelegramNotifier(botToken, chatID, proxyURL string) *TelegramNotifier {
	transport := &http.Transport{}
	if proxyURL != "" {
		if u, err := url.Parse(proxyURL); err == nil {
			transport.Proxy = http.ProxyURL(u)
		}
	}
	return &TelegramNotifier{
		BotToken: botToken,
		ChatID:   chatID,
		Client: &http.Client{
			Timeout:   30 * time.Second,
			Transport: transport,
		},
	}
}

// Send sends a plain message to the configured chat.
func (t *TelegramNotifier) Send(text string) error {
	_, err := t.sendMessage(text, nil)
	return err
}

// SendWithRetry sends a message with exponential backoff retry.
func (t *TelegramNotifier) SendWithRetry(ctx context.Context, text string, maxRetries int) error {
	var lastErr error
	for i := 0; i <= maxRetries; i++ {
		if err := t.Send(text); err != nil {
			lastErr = err
			backoff := time.Duration(1<<uint(i)) * time.Second
			log.Printf("[WARN] Telegram send failed (attempt %d/%d): %v, retrying in %v", i+1, maxRetries+1, err, backoff)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
				continue
			}
		}
		return nil
	}
	return fmt.Errorf("all %d retries exhausted: %w", maxRetries+1, lastErr)
}

// PostRecommendation posts a recommendation with decision buttons and
// returns the message id as the opaque message ref.
func (t *TelegramNotifier) PostRecommendation(rec *model.Recommendation) (string, error) {
	buttons := []Button{
		{Text: "✅ Accept", CallbackData: "act:ACCEPT:" + rec.Signal.ID},
		{Text: "❌ Reject", CallbackData: "act:REJECT:" + rec.Signal.ID},
		{Text: "⏸ Defer", CallbackData: "act:DEFER:" + rec.Signal.ID},
		{Text: "🗣 Challenge", CallbackData: "act:CHALLENGE:" + rec.Signal.ID},
	}
	return t.sendMessage(FormatRecommendation(rec), buttons)
}

// PostConfirmationRequest posts a time-boxed yes/no request for a
// needs-confirmation alert, keyed by its correlation id.
func (t *TelegramNotifier) PostConfirmationRequest(alert *model.Signal, corrID string, window time.Duration) (string, error) {
	buttons := []Button{
		{Text: "👍 Confirm", CallbackData: "confirm:yes:" + corrID},
		{Text: "👎 Decline", CallbackData: "confirm:no:" + corrID},
	}
	return t.sendMessage(FormatConfirmationRequest(alert, window), buttons)
}

func (t *TelegramNotifier) methodURL(method string) string {
	base := t.apiBase
	if base == "" {
		base = "https://api.telegram.org"
	}
	return fmt.Sprintf("%s/bot%s/%s", base, t.BotToken, method)
}

// sendMessage posts text, optionally with a single row of inline buttons.
func (t *TelegramNotifier) sendMessage(text string, buttons []Button) (string, error) {
	apiURL := t.methodURL("sendMessage")
	payload := map[string]any{
		"chat_id":    t.ChatID,
		"text":       text,
		"parse_mode": "HTML",
	}
	if len(buttons) > 0 {
		payload["reply_markup"] = map[string]any{
			"inline_keyboard": [][]Button{buttons},
		}
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}
	resp, err := t.Client.Post(apiURL, "application/json", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("send message: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("telegram API error: status %d, body: %s", resp.StatusCode, string(respBody))
	}

	var result struct {
		Result struct {
			MessageID int64 `json:"message_id"`
		} `json:"result"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		// Message went out; only the ref is lost, so the entry it backs
		// cannot be resolved from its Telegram message later.
		log.Printf("[WARN] sendMessage response unparsable, message ref unavailable: %v", err)
		return "", nil
	}
	return strconv.FormatInt(result.Result.MessageID, 10), nil
}

// answerCallback acknowledges a button press so the client stops spinning.
func (t *TelegramNotifier) answerCallback(callbackID string) {
	apiURL := t.methodURL("answerCallbackQuery")
	body, _ := json.Marshal(map[string]string{"callback_query_id": callbackID})
	resp, err := t.Client.Post(apiURL, "application/json", bytes.NewReader(body))
	if err != nil {
		log.Printf("[WARN] answer callback: %v", err)
		return
	}
	resp.Body.Close()
}
