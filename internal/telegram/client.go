package telegram

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Client is a minimal Telegram Bot API client.
type Client struct {
	apiBase    string
	httpClient *http.Client
}

// NewClient creates a client for the given API base (e.g.
// "https://api.telegram.org") and bot token. The HTTP timeout must exceed
// the long-poll timeout passed to GetUpdates.
func NewClient(apiBase, token string, requestTimeout time.Duration) *Client {
	return &Client{
		apiBase: strings.TrimRight(apiBase, "/") + "/bot" + token,
		httpClient: &http.Client{
			Timeout: requestTimeout,
		},
	}
}

// Chat identifies one Telegram conversation.
type Chat struct {
	ID int64 `json:"id"`
}

// Message is an inbound chat message.
type Message struct {
	MessageID int64  `json:"message_id"`
	Chat      Chat   `json:"chat"`
	Text      string `json:"text"`
}

// Update is one getUpdates entry.
type Update struct {
	UpdateID int64    `json:"update_id"`
	Message  *Message `json:"message,omitempty"`
}

// apiResponse is the generic Telegram API response wrapper.
type apiResponse struct {
	OK          bool            `json:"ok"`
	Description string          `json:"description,omitempty"`
	Result      json.RawMessage `json:"result,omitempty"`
}

// GetUpdates long-polls the getUpdates API.
func (c *Client) GetUpdates(offset int64, timeout int) ([]Update, error) {
	params := url.Values{}
	params.Set("offset", strconv.FormatInt(offset, 10))
	params.Set("timeout", strconv.Itoa(timeout))

	resp, err := c.httpClient.Get(c.apiBase + "/getUpdates?" + params.Encode())
	if err != nil {
		return nil, fmt.Errorf("telegram getUpdates request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read getUpdates response: %w", err)
	}

	var wrapper apiResponse
	if err := json.Unmarshal(body, &wrapper); err != nil {
		return nil, fmt.Errorf("parse getUpdates response: %w", err)
	}
	if !wrapper.OK {
		return nil, fmt.Errorf("telegram getUpdates rejected: %s", wrapper.Description)
	}

	var updates []Update
	if err := json.Unmarshal(wrapper.Result, &updates); err != nil {
		return nil, fmt.Errorf("parse getUpdates result: %w", err)
	}
	return updates, nil
}

type replyKeyboard struct {
	Keyboard       [][]keyboardButton `json:"keyboard"`
	ResizeKeyboard bool               `json:"resize_keyboard"`
}

type keyboardButton struct {
	Text string `json:"text"`
}

type sendMessagePayload struct {
	ChatID      int64          `json:"chat_id"`
	Text        string         `json:"text"`
	ReplyMarkup *replyKeyboard `json:"reply_markup,omitempty"`
}

// SendMessage sends a text message to the chat, optionally attaching the
// history-control reply keyboard. Telegram caps message length, so long
// replies are truncated rather than rejected.
func (c *Client) SendMessage(chatID int64, text string, withKeyboard bool) error {
	payload := sendMessagePayload{
		ChatID: chatID,
		Text:   truncate(text, 3900),
	}
	if withKeyboard {
		payload.ReplyMarkup = &replyKeyboard{
			Keyboard: [][]keyboardButton{
				{{Text: ButtonDisableHistory}},
				{{Text: ButtonEnableHistory}},
			},
			ResizeKeyboard: true,
		}
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal sendMessage payload: %w", err)
	}

	resp, err := c.httpClient.Post(c.apiBase+"/sendMessage", "application/json", bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("telegram sendMessage request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read sendMessage response: %w", err)
	}
	var wrapper apiResponse
	if err := json.Unmarshal(body, &wrapper); err != nil {
		return fmt.Errorf("parse sendMessage response: %w", err)
	}
	if !wrapper.OK {
		return fmt.Errorf("telegram sendMessage rejected: %s", wrapper.Description)
	}
	return nil
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
