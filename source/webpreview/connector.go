package webpreview

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math"
	"mime"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/PuerkitoBio/goquery"
	"github.com/shaxb/tele-google/core"
	"github.com/shaxb/tele-google/ingestion"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/time/rate"
)

const (
	defaultBaseURL   = "https://t.me"
	defaultUserAgent = "tele-google/1.0"
)

// Connector reads channels through their public web preview.
type Connector struct {
	name         string
	baseURL      string
	client       *http.Client
	limiter      *rate.Limiter
	pollInterval time.Duration
	maxPages     int
	userAgent    string
	md           *converter.Converter
	logger       *slog.Logger
}

var _ ingestion.Connector = (*Connector)(nil)

// Option configures a Connector.
type Option func(*Connector)

// WithName sets the name used in logs. Default is "webpreview".
func WithName(name string) Option {
	return func(c *Connector) {
		if name != "" {
			c.name = name
		}
	}
}

// WithBaseURL overrides the preview host. Default is https://t.me.
func WithBaseURL(u string) Option {
	return func(c *Connector) {
		c.baseURL = strings.TrimSuffix(u, "/")
	}
}

// WithHTTPClient sets the HTTP client. Default has a 20 second timeout.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Connector) {
		if client != nil {
			c.client = client
		}
	}
}

// WithRate limits requests across all sources. Default is one per second.
func WithRate(limit rate.Limit) Option {
	return func(c *Connector) {
		c.limiter = rate.NewLimiter(limit, 1)
	}
}

// WithPollInterval sets how often Watch checks for new posts.
// Default is 60 seconds.
func WithPollInterval(d time.Duration) Option {
	return func(c *Connector) {
		if d > 0 {
			c.pollInterval = d
		}
	}
}

// WithMaxPages bounds how many pages History walks. Default is 50.
func WithMaxPages(n int) Option {
	return func(c *Connector) {
		if n > 0 {
			c.maxPages = n
		}
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(c *Connector) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// New creates a web preview connector.
func New(opts ...Option) *Connector {
	c := &Connector{
		name:         "webpreview",
		baseURL:      defaultBaseURL,
		client:       &http.Client{Timeout: 20 * time.Second},
		limiter:      rate.NewLimiter(rate.Every(time.Second), 1),
		pollInterval: 60 * time.Second,
		maxPages:     50,
		userAgent:    defaultUserAgent,
		logger:       slog.Default(),
		md: converter.NewConverter(
			converter.WithPlugins(
				base.NewBasePlugin(),
				commonmark.NewCommonmarkPlugin(),
			),
		),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("component", "webpreview", "connector", c.name)
	return c
}

// Name identifies the connector in logs.
func (c *Connector) Name() string {
	return c.name
}

// Connect checks the base URL. The preview needs no session.
func (c *Connector) Connect(ctx context.Context) error {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return fmt.Errorf("parse base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("unsupported base url scheme %q", u.Scheme)
	}
	return ctx.Err()
}

// Resolve fetches the channel's preview page and returns its chat handle.
// Preview pages carry no numeric chat ID, so one is derived from the name.
func (c *Connector) Resolve(ctx context.Context, sourceID string) (ingestion.Chat, error) {
	sourceID = core.NormalizeSourceID(sourceID)
	name := strings.TrimPrefix(sourceID, "@")
	if name == "" {
		return ingestion.Chat{}, fmt.Errorf("%w: empty source id", ingestion.ErrUnknownSource)
	}

	doc, err := c.fetch(ctx, name, 0)
	if err != nil {
		return ingestion.Chat{}, err
	}
	if doc.Find(".tgme_channel_info").Length() == 0 && doc.Find(".tgme_widget_message").Length() == 0 {
		return ingestion.Chat{}, fmt.Errorf("%w: %s", ErrNoPreview, sourceID)
	}

	title := strings.TrimSpace(doc.Find(".tgme_channel_info_header_title").First().Text())
	if title == "" {
		title, _ = doc.Find(`meta[property="og:title"]`).Attr("content")
	}
	return ingestion.Chat{ID: chatID(name), SourceID: sourceID, Title: title}, nil
}

// Watch polls the newest page of chat and delivers posts newer than the
// newest one seen when watching started.
func (c *Connector) Watch(ctx context.Context, chat ingestion.Chat, handler func(core.Message)) error {
	name := strings.TrimPrefix(chat.SourceID, "@")
	logger := c.logger.With("source", chat.SourceID)

	var lastID int64
	msgs, err := c.page(ctx, chat, 0)
	if err != nil {
		return err
	}
	for _, msg := range msgs {
		lastID = max(lastID, msg.ID)
	}
	logger.Debug("watching", "last_id", lastID, "interval", c.pollInterval)

	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		msgs, err := c.page(ctx, chat, 0)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			logger.Warn("error polling channel", "channel", name, "err", err)
			continue
		}
		for _, msg := range msgs {
			if msg.ID <= lastID {
				continue
			}
			handler(msg)
			lastID = msg.ID
		}
	}
}

// History returns up to limit posts of chat with IDs above minID, oldest
// first. When more are available the newest ones are kept. A limit of 0
// means no limit.
func (c *Connector) History(ctx context.Context, chat ingestion.Chat, limit int, minID int64) ([]core.Message, error) {
	var (
		collected []core.Message
		before    int64
	)

	for page := 0; page < c.maxPages; page++ {
		msgs, err := c.page(ctx, chat, before)
		if err != nil {
			return nil, err
		}
		if len(msgs) == 0 {
			break
		}

		oldest := msgs[0].ID
		for _, msg := range msgs {
			if msg.ID > minID {
				collected = append(collected, msg)
			}
		}
		if oldest <= minID || oldest <= 1 || (limit > 0 && len(collected) >= limit) {
			break
		}
		if before != 0 && oldest >= before {
			break
		}
		before = oldest
	}

	sort.Slice(collected, func(i, j int) bool { return collected[i].ID < collected[j].ID })
	collected = dedupe(collected)
	if limit > 0 && len(collected) > limit {
		collected = collected[len(collected)-limit:]
	}
	return collected, nil
}

// page fetches one page of posts, oldest first. before=0 is the newest page.
func (c *Connector) page(ctx context.Context, chat ingestion.Chat, before int64) ([]core.Message, error) {
	name := strings.TrimPrefix(chat.SourceID, "@")
	doc, err := c.fetch(ctx, name, before)
	if err != nil {
		return nil, err
	}
	msgs := c.parseMessages(doc, name, chat.ID)
	sort.Slice(msgs, func(i, j int) bool { return msgs[i].ID < msgs[j].ID })
	return msgs, nil
}

func (c *Connector) fetch(ctx context.Context, name string, before int64) (*goquery.Document, error) {
	pageURL := c.baseURL + "/s/" + url.PathEscape(name)
	if before > 0 {
		pageURL += "?before=" + strconv.FormatInt(before, 10)
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request preview: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("%w: @%s", ingestion.ErrUnknownSource, name)
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("%w: %s", ErrUnexpectedStatus, resp.Status)
	}

	body, err := decodeBody(resp.Body, resp.Header.Get("Content-Type"))
	if err != nil {
		return nil, err
	}
	doc, err := goquery.NewDocumentFromReader(body)
	if err != nil {
		return nil, fmt.Errorf("parse document: %w", err)
	}
	return doc, nil
}

func (c *Connector) parseMessages(doc *goquery.Document, name string, id int64) []core.Message {
	var msgs []core.Message
	doc.Find(".tgme_widget_message[data-post]").Each(func(_ int, s *goquery.Selection) {
		post, _ := s.Attr("data-post")
		channel, idText, ok := strings.Cut(post, "/")
		if !ok || !strings.EqualFold(channel, name) {
			return
		}
		msgID, err := strconv.ParseInt(idText, 10, 64)
		if err != nil {
			return
		}

		msg := core.Message{
			ID:           msgID,
			ChatID:       id,
			ChatUsername: name,
			Text:         c.messageText(s.Find(".tgme_widget_message_text").First()),
			HasMedia: s.Find(".tgme_widget_message_photo_wrap, .tgme_widget_message_video_player, " +
				".tgme_widget_message_document_wrap").Length() > 0,
		}
		if stamp, ok := s.Find(".tgme_widget_message_date time").First().Attr("datetime"); ok {
			if t, err := time.Parse(time.RFC3339, stamp); err == nil {
				msg.Date = t.UTC()
			}
		}
		msgs = append(msgs, msg)
	})
	return msgs
}

// messageText converts a post body to Markdown, falling back to its plain
// text.
func (c *Connector) messageText(s *goquery.Selection) string {
	if s.Length() == 0 {
		return ""
	}
	fallback := strings.TrimSpace(s.Text())
	html, err := s.Html()
	if err != nil || strings.TrimSpace(html) == "" {
		return fallback
	}
	text, err := c.md.ConvertString(html, converter.WithDomain(c.baseURL))
	if err != nil || strings.TrimSpace(text) == "" {
		return fallback
	}
	return strings.TrimSpace(text)
}

// decodeBody wraps body in a decoder for the charset named in contentType.
// UTF-8 and unknown content types are passed through.
func decodeBody(body io.Reader, contentType string) (io.Reader, error) {
	_, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return body, nil
	}
	charset := strings.ToLower(params["charset"])
	if charset == "" || charset == "utf-8" || charset == "utf8" {
		return body, nil
	}
	enc, err := htmlindex.Get(charset)
	if err != nil {
		return nil, fmt.Errorf("unsupported charset %q: %w", charset, err)
	}
	return enc.NewDecoder().Reader(body), nil
}

// chatID derives a stable positive chat ID from a channel name.
func chatID(name string) int64 {
	return int64(uint64(core.IDFromContent(strings.ToLower(name))) & math.MaxInt64)
}

func dedupe(msgs []core.Message) []core.Message {
	out := msgs[:0]
	var last int64 = -1
	for _, msg := range msgs {
		if msg.ID == last {
			continue
		}
		out = append(out, msg)
		last = msg.ID
	}
	return out
}
