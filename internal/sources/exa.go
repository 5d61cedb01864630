package sources

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

	"github.com/ObiAU/newscurator/internal/models"
)

const (
	defaultExaBaseURL = "https://api.exa.ai"
	defaultNumResults = 5
	// extra raw results requested to make up for undated and homepage hits
	overfetch         = 5
)

// ErrSearchFailed wraps every transport, status or decode failure of a search.
var ErrSearchFailed = errors.New("search failed")

// ExaClient queries the Exa search/contents API.
type ExaClient struct {
	apiKey  string
	baseURL string
	client  *http.Client
	now     func() time.Time
}

var _ models.Searcher = (*ExaClient)(nil)

type ExaOption func(*ExaClient)

func WithBaseURL(baseURL string) ExaOption {
	return func(c *ExaClient) {
		if baseURL != "" {
			c.baseURL = strings.TrimRight(baseURL, "/")
		}
	}
}

func WithHTTPClient(hc *http.Client) ExaOption {
	return func(c *ExaClient) {
		c.client = hc
	}
}

// WithClock overrides the time source used to compute the recency cutoff.
func WithClock(now func() time.Time) ExaOption {
	return func(c *ExaClient) {
		c.now = now
	}
}

func NewExaClient(apiKey string, opts ...ExaOption) *ExaClient {
	c := &ExaClient{
		apiKey:  apiKey,
		baseURL: defaultExaBaseURL,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
		now: time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type exaSearchRequest struct {
	Query              string      `json:"query"`
	Type               string      `json:"type"`
	NumResults         int         `json:"numResults"`
	StartPublishedDate string      `json:"startPublishedDate"`
	Category           string      `json:"category,omitempty"`
	Contents           exaContents `json:"contents"`
}

type exaContents struct {
	Text struct {
		MaxCharacters int `json:"maxCharacters"`
	} `json:"text"`
	Highlights struct {
		NumSentences int `json:"numSentences"`
	} `json:"highlights"`
	Summary struct {
		Query string `json:"query"`
	} `json:"summary"`
}

type exaSearchResponse struct {
	Results []struct {
		Title         string   `json:"title"`
		URL           string   `json:"url"`
		PublishedDate string   `json:"publishedDate"`
		Author        string   `json:"author"`
		Image         string   `json:"image"`
		Summary       string   `json:"summary"`
		Highlights    []string `json:"highlights"`
		Text          string   `json:"text"`
	} `json:"results"`
}

// Search returns at most opts.NumResults dated, non-homepage results for query.
func (c *ExaClient) Search(ctx context.Context, query string, opts models.SearchOptions) ([]models.SearchResult, error) {
	numResults := opts.NumResults
	if numResults <= 0 {
		numResults = defaultNumResults
	}

	payload := exaSearchRequest{
		Query:              query,
		Type:               "auto",
		NumResults:         numResults + overfetch,
		StartPublishedDate: StartDate(opts.Recency, c.now()),
		Category:           string(opts.Category),
	}
	payload.Contents.Text.MaxCharacters = 500
	payload.Contents.Highlights.NumSentences = 2
	payload.Contents.Summary.Query = "Key points about: " + query

	apiResp, err := c.do(ctx, payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSearchFailed, err)
	}

	results := make([]models.SearchResult, 0, numResults)
	for _, raw := range apiResp.Results {
		if len(results) >= numResults {
			break
		}
		if raw.PublishedDate == "" {
			continue
		}
		parsed, err := url.Parse(raw.URL)
		if err != nil || parsed.Host == "" || isHomepage(parsed) {
			continue
		}

		title := raw.Title
		if title == "" {
			title = "Untitled"
		}
		highlights := raw.Highlights
		if highlights == nil {
			highlights = []string{}
		}

		results = append(results, models.SearchResult{
			Title:         title,
			URL:           raw.URL,
			Source:        strings.TrimPrefix(parsed.Hostname(), "www."),
			PublishedDate: optional(raw.PublishedDate),
			Author:        optional(raw.Author),
			Summary:       raw.Summary,
			Highlights:    highlights,
			ImageURL:      optional(raw.Image),
		})
	}

	return results, nil
}

func (c *ExaClient) do(ctx context.Context, payload exaSearchRequest) (*exaSearchResponse, error) {
	if c.apiKey == "" {
		return nil, errors.New("exa: missing API key")
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/search", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("exa returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}

	var apiResp exaSearchResponse
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	return &apiResp, nil
}

// StartDate formats the recency cutoff as a UTC date without time of day.
func StartDate(window models.RecencyWindow, now time.Time) string {
	return window.Cutoff(now.UTC()).Format("2006-01-02")
}

func isHomepage(u *url.URL) bool {
	path := strings.TrimSuffix(u.Path, "/")
	return path == "" || path == "/index" || path == "/home"
}

func optional(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}
