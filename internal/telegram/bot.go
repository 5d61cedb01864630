package telegram

import (
	"context"
	"errors"
	"fmt"
	"html"
	"log/slog"
	"net/http"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/ObiAU/newscurator/internal/logging"
	"github.com/ObiAU/newscurator/internal/models"
)

// maxMessageLength is Telegram's limit for a single text message.
const maxMessageLength = 4096

// Rune caps for article fields. With worst-case HTML escaping a compact
// block still fits in one message.
const (
	maxSummary      = 400
	maxCompactTitle = 200
	maxCompactMeta  = 100
)

// Publisher posts aggregated feeds to a single Telegram chat.
type Publisher struct {
	api    *tgbotapi.BotAPI
	chatID int64
	logger *slog.Logger
}

type Option func(*options)

type options struct {
	endpoint string
	client   *http.Client
	logger   *slog.Logger
}

// WithEndpoint overrides the Bot API endpoint format, e.g. "http://host/bot%s/%s".
func WithEndpoint(endpoint string) Option {
	return func(o *options) {
		o.endpoint = endpoint
	}
}

func WithHTTPClient(client *http.Client) Option {
	return func(o *options) {
		o.client = client
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// NewPublisher authenticates the bot token against the Bot API.
func NewPublisher(token string, chatID int64, opts ...Option) (*Publisher, error) {
	if token == "" {
		return nil, errors.New("telegram: missing bot token")
	}
	if chatID == 0 {
		return nil, errors.New("telegram: missing chat id")
	}

	o := options{endpoint: tgbotapi.APIEndpoint, client: &http.Client{}}
	for _, opt := range opts {
		opt(&o)
	}

	api, err := tgbotapi.NewBotAPIWithClient(token, o.endpoint, o.client)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}

	return &Publisher{
		api:    api,
		chatID: chatID,
		logger: logging.OrDiscard(o.logger),
	}, nil
}

// PublishFeed sends the articles as one or more HTML messages, splitting
// between articles to stay under the message size limit.
func (p *Publisher) PublishFeed(ctx context.Context, articles []models.Article) error {
	if len(articles) == 0 {
		return nil
	}

	for i, message := range formatFeed(articles) {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := p.sendMessage(message); err != nil {
			return fmt.Errorf("send part %d: %w", i+1, err)
		}
	}

	p.logger.Info("feed published to telegram", "chat_id", p.chatID, "articles", len(articles))
	return nil
}

func (p *Publisher) sendMessage(text string) error {
	msg := tgbotapi.NewMessage(p.chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.DisableWebPagePreview = true

	_, err := p.api.Send(msg)
	return err
}

func formatFeed(articles []models.Article) []string {
	const header = "📰 <b>Your news digest</b>\n\n"

	var messages []string
	var current strings.Builder
	current.WriteString(header)

	for i, article := range articles {
		block := formatArticle(i+1, article)
		if len(header)+len(block) > maxMessageLength {
			block = formatCompactArticle(i+1, article)
		}
		if current.Len()+len(block) > maxMessageLength && current.Len() > len(header) {
			messages = append(messages, strings.TrimSpace(current.String()))
			current.Reset()
		}
		current.WriteString(block)
	}

	return append(messages, strings.TrimSpace(current.String()))
}

func formatArticle(n int, article models.Article) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d. <a href=\"%s\">%s</a>\n", n, html.EscapeString(article.URL), html.EscapeString(article.Title))
	writeDetails(&b, articleMeta(article), article.Summary)
	return b.String()
}

// formatCompactArticle drops the link and caps every field, for articles
// whose full block would not fit in one message.
func formatCompactArticle(n int, article models.Article) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d. <b>%s</b>\n", n, html.EscapeString(truncateRunes(article.Title, maxCompactTitle)))
	writeDetails(&b, truncateRunes(articleMeta(article), maxCompactMeta), article.Summary)
	return b.String()
}

func articleMeta(article models.Article) string {
	meta := article.Source
	if article.PublishedDate != nil && len(*article.PublishedDate) >= 10 {
		meta += " · " + (*article.PublishedDate)[:10]
	}
	return meta
}

func writeDetails(b *strings.Builder, meta, summary string) {
	b.WriteString("<i>" + html.EscapeString(meta) + "</i>\n")
	if summary = strings.TrimSpace(summary); summary != "" {
		b.WriteString(html.EscapeString(truncateRunes(summary, maxSummary)) + "\n")
	}
	b.WriteString("\n")
}

func truncateRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return strings.TrimSpace(string(runes[:n])) + "…"
}
