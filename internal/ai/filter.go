package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ObiAU/newscurator/internal/logging"
	"github.com/ObiAU/newscurator/internal/models"
)

const filterMaxTokens = 2048

// RelevanceFilter asks the LLM which search results are worth showing for a
// user interest and rewrites the survivors' title and summary.
type RelevanceFilter struct {
	completions ChatCompletions
	model       string
	logger      *slog.Logger
}

var _ models.ResultFilter = (*RelevanceFilter)(nil)

func NewRelevanceFilter(completions ChatCompletions, model string, logger *slog.Logger) *RelevanceFilter {
	return &RelevanceFilter{
		completions: completions,
		model:       model,
		logger:      logging.OrDiscard(logger),
	}
}

type filterResponse struct {
	// nil when the key is absent or null; an empty array rejects every result
	Articles *[]struct {
		URL            string `json:"url"`
		Title          string `json:"title"`
		WhyInteresting string `json:"whyInteresting"`
	} `json:"articles"`
}

// Filter never fails: when the model call or its output is unusable the
// input is returned unchanged.
func (f *RelevanceFilter) Filter(ctx context.Context, results []models.SearchResult, interest string) ([]models.SearchResult, error) {
	if len(results) == 0 {
		return []models.SearchResult{}, nil
	}
	if f.completions == nil {
		return results, nil
	}

	prompt := buildFilterPrompt(results, interest)
	text, err := CompleteText(ctx, f.completions, f.model, prompt, filterMaxTokens)
	if err != nil {
		f.logger.Warn("relevance filter failed, keeping unfiltered results", "interest", interest, "error", err)
		return results, nil
	}

	filtered, err := parseFilterResponse(text, results)
	if err != nil {
		f.logger.Warn("relevance filter response unusable, keeping unfiltered results", "interest", interest, "error", err)
		return results, nil
	}

	f.logger.Debug("relevance filter applied", "interest", interest, "in", len(results), "out", len(filtered))
	return filtered, nil
}

func buildFilterPrompt(results []models.SearchResult, interest string) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("You are strictly filtering search results for a user interested in: %q\n\n", interest))
	sb.WriteString("Here are the URLs found:\n")

	for i, r := range results {
		sb.WriteString(fmt.Sprintf("\n[%d]\n", i))
		sb.WriteString(fmt.Sprintf("URL: %s\n", r.URL))
		sb.WriteString(fmt.Sprintf("Title: %s\n", r.Title))
		sb.WriteString(fmt.Sprintf("Summary: %s\n", r.Summary))
		sb.WriteString(fmt.Sprintf("Source: %s\n", r.Source))
	}

	sb.WriteString("\nSTRICT FILTERING RULES - EXCLUDE if ANY of these apply:\n")
	sb.WriteString("1. NOT a written article, blog post, or research paper (EXCLUDE scores, standings, schedules, live feeds, forums, product pages, documentation, landing pages)\n")
	sb.WriteString("2. Paywalled content (Wall Street Journal, NYT, The Athletic, Bloomberg, Financial Times, etc. - EXCLUDE unless clearly free)\n")
	sb.WriteString("3. Category pages, tag pages, search results, or index pages\n")
	sb.WriteString("4. Video-only content, podcasts, or image galleries\n")
	sb.WriteString("5. Social media posts, tweets, or Reddit threads\n")
	sb.WriteString("6. Press releases or sponsored content\n")
	sb.WriteString(fmt.Sprintf("7. Not genuinely relevant to %q\n\n", interest))
	sb.WriteString("ONLY INCLUDE: news articles, blog posts, research papers, analysis pieces, opinion/editorial pieces with substantial written content.\n\n")
	sb.WriteString("For each article that passes ALL filters, provide:\n")
	sb.WriteString("- url: the exact original URL\n")
	sb.WriteString("- title: a clear title (max 100 chars)\n")
	sb.WriteString(fmt.Sprintf("- whyInteresting: one sentence on why this matters for someone interested in %s\n\n", interest))
	sb.WriteString("Respond with valid JSON only:\n")
	sb.WriteString(`{"articles": [{"url": "...", "title": "...", "whyInteresting": "..."}]}`)
	sb.WriteString("\n\nIf NO articles pass the strict filter, return {\"articles\": []}. Be aggressive in filtering - quality over quantity.")

	return sb.String()
}

var (
	errNoJSON     = errors.New("llm response missing json payload")
	errNoArticles = errors.New("llm response missing articles array")
)

func parseFilterResponse(text string, results []models.SearchResult) ([]models.SearchResult, error) {
	payload := extractJSON(text)
	if payload == "" {
		return nil, errNoJSON
	}

	var decoded filterResponse
	if err := json.Unmarshal([]byte(payload), &decoded); err != nil {
		return nil, fmt.Errorf("llm response decode: %w", err)
	}
	if decoded.Articles == nil {
		return nil, errNoArticles
	}
	articles := *decoded.Articles

	byURL := make(map[string]models.SearchResult, len(results))
	for _, r := range results {
		if _, ok := byURL[r.URL]; !ok {
			byURL[r.URL] = r
		}
	}

	filtered := make([]models.SearchResult, 0, len(articles))
	for _, enhanced := range articles {
		original, ok := byURL[enhanced.URL]
		if !ok {
			continue
		}
		original.Title = enhanced.Title
		original.Summary = enhanced.WhyInteresting
		filtered = append(filtered, original)
	}

	return filtered, nil
}

// extractJSON returns the first balanced {...} object in content, skipping
// braces inside JSON strings. It returns "" when no object closes.
func extractJSON(content string) string {
	start := strings.Index(content, "{")
	if start == -1 {
		return ""
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(content); i++ {
		ch := content[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}

		switch ch {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return content[start : i+1]
			}
		}
	}

	return ""
}
