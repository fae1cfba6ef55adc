package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const botAPIBase = "https://api.telegram.org"

// Bot is a minimal Bot API client, enough to message students directly.
type Bot struct {
	token      string
	baseURL    string
	httpClient *http.Client
}

type BotConfig struct {
	Token string
	// BaseURL overrides the Bot API host, used by tests.
	BaseURL string
}

func NewBot(cfg BotConfig) *Bot {
	if cfg.BaseURL == "" {
		cfg.BaseURL = botAPIBase
	}
	return &Bot{
		token:      cfg.Token,
		baseURL:    cfg.BaseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// Enabled reports whether a bot token is configured.
func (b *Bot) Enabled() bool {
	return b.token != ""
}

type sendMessageRequest struct {
	ChatID    int64  `json:"chat_id"`
	Text      string `json:"text"`
	ParseMode string `json:"parse_mode,omitempty"`
}

type apiResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description,omitempty"`
}

// SendMessage delivers a text message to the chat. Markdown parse mode
// matches what the bot sends elsewhere.
func (b *Bot) SendMessage(ctx context.Context, chatID int64, text string) error {
	if !b.Enabled() {
		return fmt.Errorf("telegram: bot token not configured")
	}
	payload, err := json.Marshal(sendMessageRequest{
		ChatID:    chatID,
		Text:      text,
		ParseMode: "Markdown",
	})
	if err != nil {
		return fmt.Errorf("telegram: marshal message: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", b.baseURL, b.token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("telegram: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("telegram: send message: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("telegram: read response: %w", err)
	}
	var api apiResponse
	if err := json.Unmarshal(body, &api); err != nil {
		return fmt.Errorf("telegram: unmarshal response: %w", err)
	}
	if !api.OK {
		return fmt.Errorf("telegram: send message rejected: %s", api.Description)
	}
	return nil
}
