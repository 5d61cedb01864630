package telegram

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ObiAU/newscurator/internal/models"
)

type botServer struct {
	*httptest.Server
	mu       sync.Mutex
	messages []map[string]string
	failSend bool
}

func newBotServer(t *testing.T) *botServer {
	bs := &botServer{}
	bs.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case strings.HasSuffix(r.URL.Path, "/getMe"):
			fmt.Fprint(w, `{"ok":true,"result":{"id":42,"is_bot":true,"first_name":"Curator","username":"curator_bot"}}`)
		case strings.HasSuffix(r.URL.Path, "/sendMessage"):
			assert.NoError(t, r.ParseForm())
			bs.mu.Lock()
			bs.messages = append(bs.messages, map[string]string{
				"chat_id":    r.PostForm.Get("chat_id"),
				"text":       r.PostForm.Get("text"),
				"parse_mode": r.PostForm.Get("parse_mode"),
			})
			fail := bs.failSend
			bs.mu.Unlock()
			if fail {
				fmt.Fprint(w, `{"ok":false,"error_code":400,"description":"Bad Request: chat not found"}`)
				return
			}
			fmt.Fprint(w, `{"ok":true,"result":{"message_id":1,"date":0,"chat":{"id":-100123,"type":"channel"}}}`)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(bs.Close)
	return bs
}

func (bs *botServer) publisher(t *testing.T) *Publisher {
	p, err := NewPublisher("test-token", -100123, WithEndpoint(bs.URL+"/bot%s/%s"), WithHTTPClient(bs.Client()))
	require.NoError(t, err)
	return p
}

func article(n int) models.Article {
	date := "2025-01-03T10:00:00.000Z"
	return models.Article{
		ID:            fmt.Sprintf("id-%d", n),
		Title:         fmt.Sprintf("Story %d <beta> & more", n),
		URL:           fmt.Sprintf("https://example.com/story/%d?a=1&b=2", n),
		Source:        "example.com",
		PublishedDate: &date,
		Summary:       "Why it matters.",
		TopicIDs:      []string{"t1"},
	}
}

func TestNewPublisherValidates(t *testing.T) {
	_, err := NewPublisher("", 1)
	assert.Error(t, err)

	_, err = NewPublisher("token", 0)
	assert.Error(t, err)
}

func TestPublishFeedSendsHTML(t *testing.T) {
	bs := newBotServer(t)
	p := bs.publisher(t)

	require.NoError(t, p.PublishFeed(context.Background(), []models.Article{article(1), article(2)}))

	require.Len(t, bs.messages, 1)
	msg := bs.messages[0]
	assert.Equal(t, "-100123", msg["chat_id"])
	assert.Equal(t, "HTML", msg["parse_mode"])
	assert.Contains(t, msg["text"], `1. <a href="https://example.com/story/1?a=1&amp;b=2">Story 1 &lt;beta&gt; &amp; more</a>`)
	assert.Contains(t, msg["text"], "<i>example.com · 2025-01-03</i>")
	assert.Contains(t, msg["text"], "2. <a href=")
}

func TestPublishFeedSkipsEmpty(t *testing.T) {
	bs := newBotServer(t)
	p := bs.publisher(t)

	require.NoError(t, p.PublishFeed(context.Background(), nil))
	assert.Empty(t, bs.messages)
}

func TestPublishFeedReportsAPIErrors(t *testing.T) {
	bs := newBotServer(t)
	p := bs.publisher(t)
	bs.mu.Lock()
	bs.failSend = true
	bs.mu.Unlock()

	err := p.PublishFeed(context.Background(), []models.Article{article(1)})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "chat not found")
}

func TestFormatFeedSplitsLongDigests(t *testing.T) {
	articles := make([]models.Article, 0, 40)
	for i := 0; i < 40; i++ {
		a := article(i)
		a.Summary = strings.Repeat("word ", 80)
		articles = append(articles, a)
	}

	messages := formatFeed(articles)
	require.Greater(t, len(messages), 1)
	for _, m := range messages {
		assert.LessOrEqual(t, len(m), maxMessageLength)
	}
	assert.Contains(t, messages[len(messages)-1], "40. <a href=")
}

func TestFormatArticleTruncatesSummaryOnRunes(t *testing.T) {
	a := article(1)
	a.Summary = strings.Repeat("é", 500)
	a.PublishedDate = nil

	block := formatArticle(1, a)
	assert.Contains(t, block, "<i>example.com</i>")
	assert.Contains(t, block, strings.Repeat("é", 400)+"…")
	assert.NotContains(t, block, strings.Repeat("é", 401))
}

func TestFormatFeedCompactsOversizedArticles(t *testing.T) {
	huge := article(2)
	huge.URL = "https://example.com/?q=" + strings.Repeat("x", 5000)
	huge.Title = strings.Repeat(`"&`, 1000)
	huge.Summary = strings.Repeat("<", 1000)

	messages := formatFeed([]models.Article{article(1), huge, article(3)})
	for _, m := range messages {
		assert.LessOrEqual(t, len(m), maxMessageLength)
	}

	all := strings.Join(messages, "\n")
	assert.NotContains(t, all, strings.Repeat("x", 100))
	assert.Contains(t, all, "2. <b>")
	assert.Contains(t, all, `1. <a href="https://example.com/story/1`)
	assert.Contains(t, all, `3. <a href="https://example.com/story/3`)
}

func TestPublishFeedKeepsMessagesUnderLimit(t *testing.T) {
	bs := newBotServer(t)
	p := bs.publisher(t)

	huge := article(1)
	huge.URL = "https://example.com/" + strings.Repeat("a", 5000)

	require.NoError(t, p.PublishFeed(context.Background(), []models.Article{huge}))
	require.Len(t, bs.messages, 1)
	assert.LessOrEqual(t, len(bs.messages[0]["text"]), maxMessageLength)
	assert.Contains(t, bs.messages[0]["text"], "1. <b>Story 1 &lt;beta&gt; &amp; more</b>")
}
