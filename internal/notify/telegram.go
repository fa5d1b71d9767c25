package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const defaultTelegramAPI = "https://api.telegram.org"

// TelegramSink posts digests through the Telegram Bot API.
type TelegramSink struct {
	token   string
	chatID  string
	baseURL string
	client  *http.Client
}

// TelegramOption configures a TelegramSink.
type TelegramOption func(*TelegramSink)

// WithTelegramAPI overrides the Bot API base URL.
func WithTelegramAPI(baseURL string) TelegramOption {
	return func(t *TelegramSink) { t.baseURL = strings.TrimRight(baseURL, "/") }
}

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(c *http.Client) TelegramOption {
	return func(t *TelegramSink) { t.client = c }
}

// NewTelegram creates a Telegram sink for one chat.
func NewTelegram(token, chatID string, opts ...TelegramOption) *TelegramSink {
	t := &TelegramSink{
		token:   token,
		chatID:  chatID,
		baseURL: defaultTelegramAPI,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Name implements Sink.
func (t *TelegramSink) Name() string { return "telegram" }

type telegramMessage struct {
	ChatID    string `json:"chat_id"`
	Text      string `json:"text"`
	ParseMode string `json:"parse_mode"`
}

// Send implements Sink.
func (t *TelegramSink) Send(ctx context.Context, s Summary) error {
	body, err := json.Marshal(telegramMessage{
		ChatID:    t.chatID,
		Text:      FormatMessage(s),
		ParseMode: "Markdown",
	})
	if err != nil {
		return fmt.Errorf("encode telegram message: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", t.baseURL, t.token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build telegram request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		// The URL carries the bot token; keep it out of the error.
		return fmt.Errorf("telegram request failed: %w", redactURLError(err))
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("telegram returned %s: %s", resp.Status, strings.TrimSpace(string(detail)))
	}
	return nil
}

func redactURLError(err error) error {
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return urlErr.Err
	}
	return err
}
