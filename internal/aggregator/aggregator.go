package aggregator

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/ObiAU/newscurator/internal/logging"
	"github.com/ObiAU/newscurator/internal/models"
)

const (
	searchResultsPerTopic = 5
	articlesPerTopic      = 3
)

// Aggregator builds a feed from a set of topics.
type Aggregator struct {
	searcher models.Searcher
	filter   models.ResultFilter
	logger   *slog.Logger
	now      func() time.Time
}

func New(searcher models.Searcher, filter models.ResultFilter, logger *slog.Logger) *Aggregator {
	return &Aggregator{
		searcher: searcher,
		filter:   filter,
		logger:   logging.OrDiscard(logger),
		now:      time.Now,
	}
}

// Aggregate searches every active topic concurrently, filters each batch for
// relevance, keeps the top articles per topic and dedupes the result by URL.
// Topic order is preserved and the first occurrence of a URL wins.
func (a *Aggregator) Aggregate(ctx context.Context, topics []models.Topic) []models.Article {
	active := make([]models.Topic, 0, len(topics))
	for _, topic := range topics {
		if topic.IsActive && strings.TrimSpace(topic.FirstQuery()) != "" {
			active = append(active, topic)
		}
	}
	if len(active) == 0 {
		return []models.Article{}
	}

	batches := a.searchAll(ctx, active)
	batches = a.filterAll(ctx, active, batches)

	fetchedAt := a.now()
	seen := make(map[string]struct{})
	articles := make([]models.Article, 0, len(active)*articlesPerTopic)
	for i, topic := range active {
		batch := batches[i]
		if len(batch) > articlesPerTopic {
			batch = batch[:articlesPerTopic]
		}
		for _, result := range batch {
			if _, dup := seen[result.URL]; dup {
				continue
			}
			seen[result.URL] = struct{}{}
			articles = append(articles, models.NewArticle(result, []string{topic.ID}, fetchedAt))
		}
	}

	a.logger.Info("aggregated feed", "topics", len(active), "articles", len(articles))
	return articles
}

func (a *Aggregator) searchAll(ctx context.Context, topics []models.Topic) [][]models.SearchResult {
	batches := make([][]models.SearchResult, len(topics))
	var wg sync.WaitGroup

	for i, topic := range topics {
		wg.Add(1)
		go func(i int, topic models.Topic) {
			defer wg.Done()

			results, err := a.searcher.Search(ctx, topic.FirstQuery(), models.SearchOptions{
				Category:   topic.Category,
				Recency:    topic.DateRange.OrDefault(),
				NumResults: searchResultsPerTopic,
			})
			if err != nil {
				a.logger.Warn("topic search failed", "topic", topic.Name, "error", err)
				return
			}
			batches[i] = results
		}(i, topic)
	}

	wg.Wait()
	return batches
}

func (a *Aggregator) filterAll(ctx context.Context, topics []models.Topic, batches [][]models.SearchResult) [][]models.SearchResult {
	if a.filter == nil {
		return batches
	}

	filtered := make([][]models.SearchResult, len(batches))
	var wg sync.WaitGroup

	for i, batch := range batches {
		if len(batch) == 0 {
			continue
		}
		wg.Add(1)
		go func(i int, batch []models.SearchResult) {
			defer wg.Done()

			kept, err := a.filter.Filter(ctx, batch, topics[i].Interest())
			if err != nil {
				a.logger.Warn("relevance filter failed", "topic", topics[i].Name, "error", err)
				filtered[i] = batch
				return
			}
			filtered[i] = kept
		}(i, batch)
	}

	wg.Wait()
	return filtered
}
