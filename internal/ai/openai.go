package ai

import (
	"context"
	"errors"
	"fmt"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
)

// ChatCompletions is the part of the OpenAI chat API used by this service.
// *openai.ChatCompletionService satisfies it.
type ChatCompletions interface {
	New(ctx context.Context, body openai.ChatCompletionNewParams, opts ...option.RequestOption) (*openai.ChatCompletion, error)
}

// NewCompletions builds an OpenAI chat completion service. baseURL may point
// at any OpenAI-compatible endpoint; empty keeps the SDK default.
func NewCompletions(apiKey, baseURL string) ChatCompletions {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	client := openai.NewClient(opts...)
	return &client.Chat.Completions
}

var errNoChoices = errors.New("no response from openai")

// CompleteText sends a single user prompt and returns the first choice's text.
func CompleteText(ctx context.Context, completions ChatCompletions, model, prompt string, maxTokens int) (string, error) {
	response, err := completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(prompt),
		},
		Temperature: openai.Float(0.1),
		MaxTokens:   openai.Int(int64(maxTokens)),
	})
	if err != nil {
		return "", fmt.Errorf("openai request failed: %w", err)
	}

	if len(response.Choices) == 0 {
		return "", errNoChoices
	}

	return response.Choices[0].Message.Content, nil
}
