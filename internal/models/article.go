package models

import (
	"context"
	"time"
)

// Article is a normalized search result surfaced in the feed.
type Article struct {
	ID             string    `json:"id"`
	Title          string    `json:"title"`
	URL            string    `json:"url"`
	Source         string    `json:"source"`
	PublishedDate  *string   `json:"publishedDate"`
	Author         *string   `json:"author"`
	Summary        string    `json:"summary"`
	Highlights     []string  `json:"highlights"`
	ImageURL       *string   `json:"imageUrl"`
	TopicIDs       []string  `json:"topicIds"`
	RelevanceScore float64   `json:"relevanceScore"`
	FetchedAt      time.Time `json:"fetchedAt"`
}

// SearchResult is the intermediate shape between the search API and Article.
type SearchResult struct {
	Title         string   `json:"title"`
	URL           string   `json:"url"`
	Source        string   `json:"source"`
	PublishedDate *string  `json:"publishedDate"`
	Author        *string  `json:"author"`
	Summary       string   `json:"summary"`
	Highlights    []string `json:"highlights"`
	ImageURL      *string  `json:"imageUrl"`
}

// SearchOptions narrows a content search.
type SearchOptions struct {
	Category   Category
	Recency    RecencyWindow
	NumResults int
}

// Searcher queries a search/content API.
type Searcher interface {
	Search(ctx context.Context, query string, opts SearchOptions) ([]SearchResult, error)
}

// ResultFilter keeps, rewrites or drops search results for a user interest.
type ResultFilter interface {
	Filter(ctx context.Context, results []SearchResult, interest string) ([]SearchResult, error)
}

// NewArticle maps a search result to an Article tagged with topicIDs.
func NewArticle(result SearchResult, topicIDs []string, fetchedAt time.Time) Article {
	if topicIDs == nil {
		topicIDs = []string{}
	}
	highlights := result.Highlights
	if highlights == nil {
		highlights = []string{}
	}

	return Article{
		ID:             ArticleID(result.URL),
		Title:          result.Title,
		URL:            result.URL,
		Source:         result.Source,
		PublishedDate:  result.PublishedDate,
		Author:         result.Author,
		Summary:        result.Summary,
		Highlights:     highlights,
		ImageURL:       result.ImageURL,
		TopicIDs:       topicIDs,
		RelevanceScore: 1,
		FetchedAt:      fetchedAt,
	}
}
