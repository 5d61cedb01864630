package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/openai/openai-go/v2"

	"github.com/ObiAU/newscurator/internal/logging"
	"github.com/ObiAU/newscurator/internal/models"
)

const (
	ToolAskFollowUp   = "askFollowUp"
	ToolExtractTopics = "extractTopics"
	ToolSearchContent = "searchContent"

	defaultSearchResults = 5
	// extra results requested from search to absorb relevance filter losses
	searchOverfetch      = 3
)

// Option is one selectable answer of a follow-up question.
type Option struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

type FollowUpInput struct {
	Question      string   `json:"question"`
	Options       []Option `json:"options"`
	AllowMultiple bool     `json:"allowMultiple"`
}

type FollowUpResult struct {
	Success       bool     `json:"success"`
	Question      string   `json:"question"`
	Options       []Option `json:"options"`
	AllowMultiple bool     `json:"allowMultiple"`
	Message       string   `json:"message"`
}

// TopicDraft is a topic as described by the model, before it gets an identity.
type TopicDraft struct {
	Name          string               `json:"name"`
	Description   string               `json:"description"`
	SearchQueries []string             `json:"searchQueries"`
	Category      models.Category      `json:"category"`
	DateRange     models.RecencyWindow `json:"dateRange"`
}

type ExtractTopicsInput struct {
	Topics []TopicDraft `json:"topics"`
}

type ExtractTopicsResult struct {
	Success bool           `json:"success"`
	Topics  []models.Topic `json:"topics"`
	Message string         `json:"message"`
}

// SearchContentInput holds NumResults as float64 so that "5.0" from the
// model still decodes.
type SearchContentInput struct {
	Query      string               `json:"query"`
	Category   models.Category      `json:"category"`
	NumResults float64              `json:"numResults"`
	DateRange  models.RecencyWindow `json:"dateRange"`
}

type SearchContentResult struct {
	Success  bool             `json:"success"`
	Articles []models.Article `json:"articles"`
	Message  string           `json:"message"`
}

var errSearchUnavailable = errors.New("EXA_API_KEY is not configured")

type errorResult struct {
	Error string `json:"error"`
}

// Toolbox executes the tools declared to the model.
type Toolbox struct {
	searcher models.Searcher
	filter   models.ResultFilter
	now      func() time.Time
	newID    func() string
	logger   *slog.Logger
}

func NewToolbox(searcher models.Searcher, filter models.ResultFilter, logger *slog.Logger) *Toolbox {
	return &Toolbox{
		searcher: searcher,
		filter:   filter,
		now:      time.Now,
		newID:    uuid.NewString,
		logger:   logging.OrDiscard(logger),
	}
}

// Execute runs the named tool with JSON arguments. It always returns a
// result value; failures are reported inside the result.
func (t *Toolbox) Execute(ctx context.Context, name, arguments string) any {
	switch name {
	case ToolAskFollowUp:
		var input FollowUpInput
		if err := decodeArguments(arguments, &input); err != nil {
			return invalidArguments(name, err)
		}
		return t.PresentChoices(input)
	case ToolExtractTopics:
		var input ExtractTopicsInput
		if err := decodeArguments(arguments, &input); err != nil {
			return invalidArguments(name, err)
		}
		return t.ExtractTopics(input)
	case ToolSearchContent:
		var input SearchContentInput
		if err := decodeArguments(arguments, &input); err != nil {
			return invalidArguments(name, err)
		}
		return t.SearchContent(ctx, input)
	default:
		t.logger.Warn("model requested unknown tool", "tool", name)
		return errorResult{Error: "Unknown tool"}
	}
}

func (t *Toolbox) PresentChoices(input FollowUpInput) FollowUpResult {
	options := input.Options
	if options == nil {
		options = []Option{}
	}
	return FollowUpResult{
		Success:       true,
		Question:      input.Question,
		Options:       options,
		AllowMultiple: input.AllowMultiple,
		Message:       "Follow-up question presented to user",
	}
}

func (t *Toolbox) ExtractTopics(input ExtractTopicsInput) ExtractTopicsResult {
	createdAt := t.now()
	topics := make([]models.Topic, 0, len(input.Topics))
	for _, draft := range input.Topics {
		category := draft.Category
		if !category.Valid() {
			category = models.CategoryNews
		}

		topics = append(topics, models.Topic{
			ID:            t.newID(),
			Name:          draft.Name,
			Description:   draft.Description,
			SearchQueries: cleanQueries(draft.SearchQueries),
			Category:      category,
			DateRange:     draft.DateRange.OrDefault(),
			IsActive:      true,
			CreatedAt:     createdAt,
		})
	}

	return ExtractTopicsResult{
		Success: true,
		Topics:  topics,
		Message: fmt.Sprintf("Extracted %d topic(s)", len(topics)),
	}
}

func (t *Toolbox) SearchContent(ctx context.Context, input SearchContentInput) SearchContentResult {
	numResults := int(input.NumResults)
	if numResults <= 0 {
		numResults = defaultSearchResults
	}

	category := input.Category
	if !category.Valid() {
		category = ""
	}

	var raw []models.SearchResult
	err := errSearchUnavailable
	if t.searcher != nil {
		raw, err = t.searcher.Search(ctx, input.Query, models.SearchOptions{
			Category:   category,
			Recency:    input.DateRange.OrDefault(),
			NumResults: numResults + searchOverfetch,
		})
	}
	if err != nil {
		t.logger.Warn("search tool failed", "query", input.Query, "error", err)
		return SearchContentResult{
			Success:  false,
			Articles: []models.Article{},
			Message:  fmt.Sprintf("Search failed: %v", err),
		}
	}

	filtered := raw
	if t.filter != nil {
		if enhanced, err := t.filter.Filter(ctx, raw, input.Query); err == nil {
			filtered = enhanced
		}
	}
	if len(filtered) > numResults {
		filtered = filtered[:numResults]
	}

	fetchedAt := t.now()
	articles := make([]models.Article, 0, len(filtered))
	for _, result := range filtered {
		articles = append(articles, models.NewArticle(result, nil, fetchedAt))
	}

	return SearchContentResult{
		Success:  true,
		Articles: articles,
		Message:  fmt.Sprintf("Found %d article(s)", len(articles)),
	}
}

// Definitions declares the tools to the model.
func Definitions() []openai.ChatCompletionToolUnionParam {
	categories := make([]string, 0, len(models.Categories))
	for _, c := range models.Categories {
		categories = append(categories, string(c))
	}
	windows := make([]string, 0, len(models.RecencyWindows))
	for _, w := range models.RecencyWindows {
		windows = append(windows, string(w))
	}

	return []openai.ChatCompletionToolUnionParam{
		openai.ChatCompletionFunctionTool(openai.FunctionDefinitionParam{
			Name:        ToolAskFollowUp,
			Description: openai.String("Ask the user a follow-up question with multiple choice options. Set allowMultiple=true to let users select multiple options."),
			Parameters: openai.FunctionParameters{
				"type": "object",
				"properties": map[string]any{
					"question": map[string]any{"type": "string", "description": "The follow-up question to ask"},
					"options": map[string]any{
						"type":        "array",
						"description": "2-5 options for the user to choose from",
						"minItems":    2,
						"maxItems":    5,
						"items": map[string]any{
							"type": "object",
							"properties": map[string]any{
								"label": map[string]any{"type": "string", "description": "Short label for the option"},
								"value": map[string]any{"type": "string", "description": "Value to use if selected"},
							},
							"required": []string{"label", "value"},
						},
					},
					"allowMultiple": map[string]any{
						"type":        "boolean",
						"description": "If true, user can select multiple options. Default false.",
					},
				},
				"required": []string{"question", "options"},
			},
		}),
		openai.ChatCompletionFunctionTool(openai.FunctionDefinitionParam{
			Name:        ToolExtractTopics,
			Description: openai.String("Extract topics of interest from the conversation when the user has expressed clear interests."),
			Parameters: openai.FunctionParameters{
				"type": "object",
				"properties": map[string]any{
					"topics": map[string]any{
						"type":        "array",
						"description": "Array of topics to extract",
						"items": map[string]any{
							"type": "object",
							"properties": map[string]any{
								"name":        map[string]any{"type": "string", "description": "Short name for the topic"},
								"description": map[string]any{"type": "string", "description": "Brief description"},
								"searchQueries": map[string]any{
									"type":        "array",
									"items":       map[string]any{"type": "string"},
									"description": "2-3 search queries",
								},
								"category": map[string]any{
									"type":        "string",
									"enum":        categories,
									"description": "Content category",
								},
								"dateRange": map[string]any{
									"type":        "string",
									"enum":        windows,
									"description": "How recent (default: 2days for last 48 hours)",
								},
							},
							"required": []string{"name", "description", "searchQueries", "category", "dateRange"},
						},
					},
				},
				"required": []string{"topics"},
			},
		}),
		openai.ChatCompletionFunctionTool(openai.FunctionDefinitionParam{
			Name:        ToolSearchContent,
			Description: openai.String("Search for articles on a topic. Use this when the user wants to see articles."),
			Parameters: openai.FunctionParameters{
				"type": "object",
				"properties": map[string]any{
					"query": map[string]any{"type": "string", "description": "Search query"},
					"category": map[string]any{
						"type":        "string",
						"enum":        categories,
						"description": "Category",
					},
					"numResults": map[string]any{"type": "number", "description": "Number of results"},
					"dateRange": map[string]any{
						"type":        "string",
						"enum":        windows,
						"description": "Recency (default: 2days for last 48 hours)",
					},
				},
				"required": []string{"query"},
			},
		}),
	}
}

func decodeArguments(arguments string, target any) error {
	if strings.TrimSpace(arguments) == "" {
		arguments = "{}"
	}
	return json.Unmarshal([]byte(arguments), target)
}

func invalidArguments(tool string, err error) errorResult {
	return errorResult{Error: fmt.Sprintf("invalid arguments for %s: %v", tool, err)}
}

func cleanQueries(queries []string) []string {
	cleaned := make([]string, 0, len(queries))
	for _, q := range queries {
		q = strings.TrimSpace(q)
		if q != "" {
			cleaned = append(cleaned, q)
		}
	}
	return cleaned
}
