package notifier

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"time"
)

// CommandHandler processes an incoming text command and returns the reply.
type CommandHandler func(command string) string

// CallbackHandler processes an inline button press. data is the raw
// callback_data payload.
type CallbackHandler func(data string) string

type update struct {
	UpdateID int64 `json:"update_id"`
	Message  *struct {
		Text string `json:"text"`
		Chat struct {
			ID int64 `json:"id"`
		} `json:"chat"`
	} `json:"message"`
	CallbackQuery *struct {
		ID   string `json:"id"`
		Data string `json:"data"`
		From struct {
			ID int64 `json:"id"`
		} `json:"from"`
		Message *struct {
			Chat struct {
				ID int64 `json:"id"`
			} `json:"chat"`
		} `json:"message"`
	} `json:"callback_query"`
}

// StartPolling long-polls getUpdates and dispatches messages and button
// presses until the context is cancelled. Blocks.
func (t *TelegramNotifier) StartPolling(ctx context.Context, onCommand CommandHandler, onCallback CallbackHandler) {
	log.Printf("[INFO] Telegram polling started")
	var offset int64
	for {
		select {
		case <-ctx.Done():
			log.Printf("[INFO] Telegram polling stopped")
			return
		default:
		}

		updates, err := t.getUpdates(ctx, offset)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Printf("[WARN] getUpdates failed: %v", err)
			time.Sleep(5 * time.Second)
			continue
		}

		for _, u := range updates {
			offset = u.UpdateID + 1
			switch {
			case u.CallbackQuery != nil:
				t.answerCallback(u.CallbackQuery.ID)
				if u.CallbackQuery.Message != nil && !t.chatAllowed(u.CallbackQuery.Message.Chat.ID) {
					continue
				}
				if onCallback == nil {
					continue
				}
				if reply := onCallback(u.CallbackQuery.Data); reply != "" {
					if err := t.Send(reply); err != nil {
						log.Printf("[WARN] send callback reply: %v", err)
					}
				}
			case u.Message != nil && u.Message.Text != "":
				if !t.chatAllowed(u.Message.Chat.ID) {
					continue
				}
				if onCommand == nil {
					continue
				}
				if reply := onCommand(u.Message.Text); reply != "" {
					if err := t.Send(reply); err != nil {
						log.Printf("[WARN] send command reply: %v", err)
					}
				}
			}
		}
	}
}

func (t *TelegramNotifier) chatAllowed(chatID int64) bool {
	want, err := strconv.ParseInt(t.ChatID, 10, 64)
	if err != nil {
		return true
	}
	return chatID == want
}

func (t *TelegramNotifier) getUpdates(ctx context.Context, offset int64) ([]update, error) {
	apiURL := fmt.Sprintf("%s?timeout=30&offset=%d", t.methodURL("getUpdates"), offset)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := t.Client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("status %d: %s", resp.StatusCode, string(body))
	}

	var result struct {
		OK     bool     `json:"ok"`
		Result []update `json:"result"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode updates: %w", err)
	}
	if !result.OK {
		return nil, fmt.Errorf("telegram returned ok=false")
	}
	return result.Result, nil
}
