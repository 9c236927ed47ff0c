package webpreview

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shaxb/tele-google/core"
	"github.com/shaxb/tele-google/ingestion"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/time/rate"
)

type post struct {
	id    int64
	body  string
	photo bool
}

// channelServer serves a fake preview of one channel, pageSize posts per page.
type channelServer struct {
	name     string
	title    string
	pageSize int

	mu    sync.Mutex
	posts []post // ascending IDs
	hits  int
}

func (s *channelServer) add(p post) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.posts = append(s.posts, p)
}

func (s *channelServer) requests() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hits
}

func (s *channelServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hits++

	if r.URL.Path != "/s/"+s.name {
		http.NotFound(w, r)
		return
	}

	before := int64(1 << 62)
	if v := r.URL.Query().Get("before"); v != "" {
		before, _ = strconv.ParseInt(v, 10, 64)
	}
	var page []post
	for i := len(s.posts) - 1; i >= 0 && len(page) < s.pageSize; i-- {
		if s.posts[i].id < before {
			page = append([]post{s.posts[i]}, page...)
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, `<html><head><meta property="og:title" content="%s"></head><body>`, s.title)
	fmt.Fprintf(&b, `<div class="tgme_channel_info"><div class="tgme_channel_info_header_title"><span>%s</span></div></div>`, s.title)
	for _, p := range page {
		fmt.Fprintf(&b, `<div class="tgme_widget_message_wrap"><div class="tgme_widget_message" data-post="%s/%d">`, s.name, p.id)
		if p.photo {
			b.WriteString(`<a class="tgme_widget_message_photo_wrap"></a>`)
		}
		if p.body != "" {
			fmt.Fprintf(&b, `<div class="tgme_widget_message_text">%s</div>`, p.body)
		}
		fmt.Fprintf(&b, `<a class="tgme_widget_message_date"><time datetime="2025-03-01T10:%02d:00+00:00"></time></a>`, p.id%60)
		b.WriteString(`</div></div>`)
	}
	b.WriteString(`</body></html>`)

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte(b.String()))
}

func newChannel(t *testing.T, n int) (*channelServer, *Connector) {
	t.Helper()
	cs := &channelServer{name: "shop", title: "Phone Shop", pageSize: 3}
	for i := 1; i <= n; i++ {
		cs.add(post{id: int64(100 + i), body: fmt.Sprintf("Item %d for sale", i)})
	}
	srv := httptest.NewServer(cs)
	t.Cleanup(srv.Close)

	c := New(WithBaseURL(srv.URL), WithRate(rate.Inf), WithPollInterval(10*time.Millisecond))
	return cs, c
}

func TestConnect(t *testing.T) {
	assert.NoError(t, New().Connect(context.Background()))
	assert.Error(t, New(WithBaseURL("ftp://t.me")).Connect(context.Background()))
}

func TestResolve(t *testing.T) {
	_, c := newChannel(t, 1)

	chat, err := c.Resolve(context.Background(), "https://t.me/shop")
	require.NoError(t, err)
	assert.Equal(t, "@shop", chat.SourceID)
	assert.Equal(t, "Phone Shop", chat.Title)
	assert.Positive(t, chat.ID)

	again, err := c.Resolve(context.Background(), "shop")
	require.NoError(t, err)
	assert.Equal(t, chat.ID, again.ID)
}

func TestResolve_Unknown(t *testing.T) {
	_, c := newChannel(t, 1)

	_, err := c.Resolve(context.Background(), "@ghost")
	assert.ErrorIs(t, err, ingestion.ErrUnknownSource)
}

func TestResolve_NoPreview(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`<html><body><div class="tgme_page">private</div></body></html>`))
	}))
	defer srv.Close()

	c := New(WithBaseURL(srv.URL), WithRate(rate.Inf))
	_, err := c.Resolve(context.Background(), "@private")
	assert.ErrorIs(t, err, ErrNoPreview)
}

func TestFetch_UnexpectedStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := New(WithBaseURL(srv.URL), WithRate(rate.Inf))
	_, err := c.Resolve(context.Background(), "@shop")
	assert.ErrorIs(t, err, ErrUnexpectedStatus)
}

func TestHistory_WalksPages(t *testing.T) {
	cs, c := newChannel(t, 8)
	ctx := context.Background()
	chat, err := c.Resolve(ctx, "@shop")
	require.NoError(t, err)

	msgs, err := c.History(ctx, chat, 0, 0)
	require.NoError(t, err)
	require.Len(t, msgs, 8)
	for i, msg := range msgs {
		assert.Equal(t, int64(101+i), msg.ID)
		assert.Equal(t, chat.ID, msg.ChatID)
		assert.Equal(t, "shop", msg.ChatUsername)
	}
	assert.Equal(t, fmt.Sprintf("Item %d for sale", 1), msgs[0].Text)
	assert.Equal(t, time.Date(2025, 3, 1, 10, 41, 0, 0, time.UTC), msgs[0].Date)
	assert.GreaterOrEqual(t, cs.requests(), 4)
}

func TestHistory_MinIDAndLimit(t *testing.T) {
	_, c := newChannel(t, 8)
	ctx := context.Background()
	chat, err := c.Resolve(ctx, "@shop")
	require.NoError(t, err)

	msgs, err := c.History(ctx, chat, 0, 104)
	require.NoError(t, err)
	require.Len(t, msgs, 4)
	assert.Equal(t, int64(105), msgs[0].ID)

	msgs, err = c.History(ctx, chat, 2, 0)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, int64(107), msgs[0].ID)
	assert.Equal(t, int64(108), msgs[1].ID)
}

func TestHistory_MaxPages(t *testing.T) {
	_, c := newChannel(t, 9)
	c.maxPages = 2
	ctx := context.Background()

	msgs, err := c.History(ctx, ingestion.Chat{SourceID: "@shop"}, 0, 0)
	require.NoError(t, err)
	assert.Len(t, msgs, 6)
}

func TestParse_MarkdownAndMedia(t *testing.T) {
	cs, c := newChannel(t, 0)
	cs.add(post{id: 5, body: `iPhone 13<br/>Details on <a href="https://example.com/x">site</a>`, photo: true})
	cs.add(post{id: 6, photo: true})

	msgs, err := c.History(context.Background(), ingestion.Chat{SourceID: "@shop"}, 0, 0)
	require.NoError(t, err)
	require.Len(t, msgs, 2)

	assert.True(t, msgs[0].HasMedia)
	assert.Contains(t, msgs[0].Text, "iPhone 13")
	assert.Contains(t, msgs[0].Text, "[site](https://example.com/x)")

	assert.True(t, msgs[1].HasMedia)
	assert.Empty(t, msgs[1].Text)
}

func TestWatch_DeliversNewPosts(t *testing.T) {
	cs, c := newChannel(t, 2)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var (
		mu  sync.Mutex
		got []core.Message
	)
	done := make(chan error, 1)
	go func() {
		done <- c.Watch(ctx, ingestion.Chat{ID: 1, SourceID: "@shop"}, func(msg core.Message) {
			mu.Lock()
			got = append(got, msg)
			mu.Unlock()
		})
	}()

	require.Eventually(t, func() bool { return cs.requests() >= 2 }, 2*time.Second, 5*time.Millisecond)
	cs.add(post{id: 103, body: "Fresh post"})
	cs.add(post{id: 104, body: "Another one"})

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 2
	}, 2*time.Second, 5*time.Millisecond)

	mu.Lock()
	assert.Equal(t, int64(103), got[0].ID)
	assert.Equal(t, int64(104), got[1].ID)
	mu.Unlock()

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}

func TestDecodeBody_Charset(t *testing.T) {
	encoded, err := charmap.Windows1251.NewEncoder().String("Продаю телефон")
	require.NoError(t, err)

	r, err := decodeBody(strings.NewReader(encoded), "text/html; charset=windows-1251")
	require.NoError(t, err)
	decoded, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, "Продаю телефон", string(decoded))

	r, err = decodeBody(strings.NewReader("plain"), "")
	require.NoError(t, err)
	decoded, err = io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, "plain", string(decoded))

	_, err = decodeBody(strings.NewReader("x"), "text/html; charset=klingon")
	assert.Error(t, err)
}

