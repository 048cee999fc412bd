// Package telegram is a minimal Bot API client covering the calls the
// gateway makes: reachability probe, plain messages, and messages carrying
// a single URL button.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

const defaultAPIBase = "https://api.telegram.org"

// Bot issues Bot API calls for one bot token.
type Bot struct {
	token   string
	apiBase string
	httpc   *http.Client
}

// BotOption configures a Bot.
type BotOption func(*Bot)

// WithAPIBase points the bot at a non-default API host (tests).
func WithAPIBase(base string) BotOption {
	return func(b *Bot) { b.apiBase = base }
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(h *http.Client) BotOption {
	return func(b *Bot) { b.httpc = h }
}

func NewBot(token string, opts ...BotOption) *Bot {
	b := &Bot{
		token:   token,
		apiBase: defaultAPIBase,
		httpc:   &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// GetMe checks that the token is usable. Used as the startup capability
// probe before the bot is selected as the link-opening primitive.
func (b *Bot) GetMe(ctx context.Context) error {
	return b.call(ctx, "getMe", nil)
}

// SendMessage sends a plain text message to a chat.
func (b *Bot) SendMessage(ctx context.Context, chatID, text string) error {
	return b.call(ctx, "sendMessage", map[string]any{
		"chat_id": chatID,
		"text":    text,
	})
}

// SendLinkButton sends a message with one inline URL button. Tapping the
// button hands the user straight to the target application rather than an
// in-app viewer.
func (b *Bot) SendLinkButton(ctx context.Context, chatID, text, label, url string) error {
	return b.call(ctx, "sendMessage", map[string]any{
		"chat_id": chatID,
		"text":    text,
		"reply_markup": map[string]any{
			"inline_keyboard": [][]map[string]string{
				{{"text": label, "url": url}},
			},
		},
	})
}

func (b *Bot) call(ctx context.Context, method string, params map[string]any) error {
	u := fmt.Sprintf("%s/bot%s/%s", b.apiBase, b.token, method)

	var body bytes.Buffer
	if params != nil {
		if err := json.NewEncoder(&body).Encode(params); err != nil {
			return fmt.Errorf("telegram %s: encode params: %w", method, err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, &body)
	if err != nil {
		return fmt.Errorf("telegram %s: build request: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("telegram %s: %w", method, err)
	}
	defer resp.Body.Close()

	var decoded struct {
		OK          bool   `json:"ok"`
		Description string `json:"description"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return fmt.Errorf("telegram %s: decode response: %w", method, err)
	}
	if !decoded.OK {
		return fmt.Errorf("telegram %s: %s", method, decoded.Description)
	}
	return nil
}
