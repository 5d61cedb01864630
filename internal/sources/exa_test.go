package sources

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ObiAU/newscurator/internal/models"
)

var fixedNow = time.Date(2025, 3, 31, 15, 4, 5, 0, time.UTC)

func newTestClient(t *testing.T, handler http.HandlerFunc) *ExaClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewExaClient("test-key",
		WithBaseURL(srv.URL),
		WithHTTPClient(srv.Client()),
		WithClock(func() time.Time { return fixedNow }),
	)
}

func TestStartDate(t *testing.T) {
	cases := []struct {
		window models.RecencyWindow
		want   string
	}{
		{models.RecencyDay, "2025-03-30"},
		{models.RecencyTwoDays, "2025-03-29"},
		{models.RecencyWeek, "2025-03-24"},
		// March 31 minus one month normalises past February's end.
		{models.RecencyMonth, "2025-03-03"},
		{"", "2025-03-29"},
	}

	for _, tc := range cases {
		t.Run(string(tc.window), func(t *testing.T) {
			assert.Equal(t, tc.want, StartDate(tc.window, fixedNow))
		})
	}
}

func TestStartDateUsesUTCDate(t *testing.T) {
	loc := time.FixedZone("UTC+10", 10*60*60)
	now := time.Date(2025, 1, 10, 5, 0, 0, 0, loc) // 2025-01-09 19:00 UTC

	assert.Equal(t, "2025-01-08", StartDate(models.RecencyDay, now))
}

func TestSearchBuildsRequestAndFiltersResults(t *testing.T) {
	var got exaSearchRequest
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/search", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("x-api-key"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"results": [
			{"title": "First", "url": "https://www.example.com/a", "publishedDate": "2025-01-03T00:00:00.000Z", "summary": "s1", "highlights": ["h1"]},
			{"title": "Home", "url": "https://example.com/", "publishedDate": "2025-01-03T00:00:00.000Z"},
			{"title": "Index", "url": "https://example.com/index/", "publishedDate": "2025-01-03T00:00:00.000Z"},
			{"title": "Landing", "url": "https://example.com/home", "publishedDate": "2025-01-03T00:00:00.000Z"},
			{"title": "Undated", "url": "https://example.com/undated"},
			{"title": "", "url": "https://news.example.org/b", "publishedDate": "2025-01-02T00:00:00.000Z", "author": "Ann", "image": "https://img/x.png"},
			{"title": "Third", "url": "https://example.net/c", "publishedDate": "2025-01-01T00:00:00.000Z"}
		]}`))
	})

	results, err := client.Search(context.Background(), "AI safety", models.SearchOptions{
		Category:   models.CategoryNews,
		Recency:    models.RecencyWeek,
		NumResults: 2,
	})
	require.NoError(t, err)

	assert.Equal(t, "AI safety", got.Query)
	assert.Equal(t, "auto", got.Type)
	assert.Equal(t, 7, got.NumResults)
	assert.Equal(t, "2025-03-24", got.StartPublishedDate)
	assert.Equal(t, "news", got.Category)
	assert.Equal(t, 500, got.Contents.Text.MaxCharacters)
	assert.Equal(t, 2, got.Contents.Highlights.NumSentences)
	assert.Equal(t, "Key points about: AI safety", got.Contents.Summary.Query)

	require.Len(t, results, 2)

	assert.Equal(t, "First", results[0].Title)
	assert.Equal(t, "example.com", results[0].Source)
	assert.Equal(t, []string{"h1"}, results[0].Highlights)
	assert.Nil(t, results[0].Author)

	assert.Equal(t, "Untitled", results[1].Title)
	assert.Equal(t, "news.example.org", results[1].Source)
	require.NotNil(t, results[1].Author)
	assert.Equal(t, "Ann", *results[1].Author)
	require.NotNil(t, results[1].ImageURL)
	assert.Equal(t, []string{}, results[1].Highlights)
}

func TestSearchDefaults(t *testing.T) {
	var got exaSearchRequest
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"results": []}`))
	})

	results, err := client.Search(context.Background(), "rust", models.SearchOptions{})
	require.NoError(t, err)
	assert.Empty(t, results)

	assert.Equal(t, 10, got.NumResults)
	assert.Equal(t, "2025-03-29", got.StartPublishedDate)
	assert.Empty(t, got.Category)
}

func TestSearchWrapsFailures(t *testing.T) {
	t.Run("status", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "boom", http.StatusBadGateway)
		})
		_, err := client.Search(context.Background(), "q", models.SearchOptions{})
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrSearchFailed)
		assert.Contains(t, err.Error(), "502")
	})

	t.Run("decode", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`not json`))
		})
		_, err := client.Search(context.Background(), "q", models.SearchOptions{})
		assert.ErrorIs(t, err, ErrSearchFailed)
	})

	t.Run("missing key", func(t *testing.T) {
		client := NewExaClient("")
		_, err := client.Search(context.Background(), "q", models.SearchOptions{})
		assert.ErrorIs(t, err, ErrSearchFailed)
	})
}
