package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// maxMessageRunes is the Telegram message length limit.
const maxMessageRunes = 4096

// Transport delivers rendered events.
type Transport interface {
	Send(ctx context.Context, ev Event) error
	Close() error
}

// TelegramTransport posts events to a chat through the Bot API.
type TelegramTransport struct {
	token   string
	chatID  string
	baseURL string
	client  *http.Client
}

// TelegramOption configures a TelegramTransport.
type TelegramOption func(*TelegramTransport)

// WithBaseURL overrides the Bot API endpoint.
func WithBaseURL(u string) TelegramOption {
	return func(t *TelegramTransport) {
		t.baseURL = strings.TrimSuffix(u, "/")
	}
}

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(c *http.Client) TelegramOption {
	return func(t *TelegramTransport) {
		if c != nil {
			t.client = c
		}
	}
}

// NewTelegramTransport creates a transport for the bot token and chat.
func NewTelegramTransport(token, chatID string, opts ...TelegramOption) *TelegramTransport {
	t := &TelegramTransport{
		token:   token,
		chatID:  chatID,
		baseURL: "https://api.telegram.org",
		client:  &http.Client{Timeout: 5 * time.Second},
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Send posts ev.Text with HTML parse mode.
func (t *TelegramTransport) Send(ctx context.Context, ev Event) error {
	if t.token == "" || t.chatID == "" {
		return fmt.Errorf("%w: telegram transport misconfigured", ErrTransport)
	}

	form := url.Values{}
	form.Set("chat_id", t.chatID)
	form.Set("text", truncate(ev.Text, maxMessageRunes))
	form.Set("parse_mode", "HTML")
	form.Set("disable_web_page_preview", "true")

	endpoint := fmt.Sprintf("%s/bot%s/sendMessage", t.baseURL, t.token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	return do(t.client, req)
}

// Close releases idle connections.
func (t *TelegramTransport) Close() error {
	t.client.CloseIdleConnections()
	return nil
}

// WebhookTransport posts events as JSON to an HTTP endpoint.
type WebhookTransport struct {
	url    string
	client *http.Client
}

type webhookPayload struct {
	Kind      EventKind `json:"kind"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// NewWebhookTransport creates a transport posting to url.
func NewWebhookTransport(url string, client *http.Client) *WebhookTransport {
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	return &WebhookTransport{url: url, client: client}
}

// Send posts {kind, text, timestamp}.
func (w *WebhookTransport) Send(ctx context.Context, ev Event) error {
	body, err := json.Marshal(webhookPayload{Kind: ev.Kind, Text: ev.Text, Timestamp: ev.Time.UTC()})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	return do(w.client, req)
}

// Close releases idle connections.
func (w *WebhookTransport) Close() error {
	w.client.CloseIdleConnections()
	return nil
}

func do(client *http.Client, req *http.Request) error {
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%w: %s", ErrTransport, resp.Status)
	}
	return nil
}
