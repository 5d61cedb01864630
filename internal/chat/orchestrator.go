package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/openai/openai-go/v2"

	"github.com/ObiAU/newscurator/internal/ai"
	"github.com/ObiAU/newscurator/internal/logging"
	"github.com/ObiAU/newscurator/internal/models"
)

const (
	DefaultMaxToolRounds = 8
	defaultMaxTokens     = 1024
)

// ErrToolLoopExceeded is returned when the model keeps requesting tools past
// the configured number of rounds.
var ErrToolLoopExceeded = errors.New("tool loop exceeded")

// Orchestrator drives the tool-calling conversation with the model.
type Orchestrator struct {
	completions   ai.ChatCompletions
	tools         *Toolbox
	model         string
	maxTokens     int
	maxToolRounds int
	logger        *slog.Logger
}

type Options struct {
	Model         string
	MaxTokens     int
	MaxToolRounds int
	Logger        *slog.Logger
}

func NewOrchestrator(completions ai.ChatCompletions, tools *Toolbox, opts Options) *Orchestrator {
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = defaultMaxTokens
	}
	if opts.MaxToolRounds <= 0 {
		opts.MaxToolRounds = DefaultMaxToolRounds
	}
	return &Orchestrator{
		completions:   completions,
		tools:         tools,
		model:         opts.Model,
		maxTokens:     opts.MaxTokens,
		maxToolRounds: opts.MaxToolRounds,
		logger:        logging.OrDiscard(opts.Logger),
	}
}

// Converse runs the model over the prior turns, executing requested tools
// until the model answers without asking for one.
func (o *Orchestrator) Converse(ctx context.Context, turns []models.ChatTurn) (models.Reply, error) {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(turns)+1)
	messages = append(messages, openai.SystemMessage(SystemPrompt))
	for _, turn := range turns {
		if turn.Role == "assistant" {
			messages = append(messages, openai.AssistantMessage(turn.Content))
			continue
		}
		messages = append(messages, openai.UserMessage(turn.Content))
	}

	reply := models.Reply{Role: "assistant", ToolResults: []models.ToolResult{}}
	var texts []string

	for round := 0; ; round++ {
		choice, err := o.complete(ctx, messages)
		if err != nil {
			return models.Reply{}, err
		}

		if choice.Message.Content != "" {
			texts = append(texts, choice.Message.Content)
		}

		calls := choice.Message.ToolCalls
		if len(calls) == 0 {
			break
		}
		if round >= o.maxToolRounds {
			return models.Reply{}, fmt.Errorf("%w: model still requesting tools after %d rounds", ErrToolLoopExceeded, round)
		}

		messages = append(messages, choice.Message.ToParam())
		for _, call := range calls {
			o.logger.Info("executing tool", "tool", call.Function.Name, "round", round)

			result := o.tools.Execute(ctx, call.Function.Name, call.Function.Arguments)
			encoded, err := json.Marshal(result)
			if err != nil {
				return models.Reply{}, fmt.Errorf("encode %s result: %w", call.Function.Name, err)
			}

			messages = append(messages, openai.ToolMessage(string(encoded), call.ID))
			reply.ToolResults = append(reply.ToolResults, models.ToolResult{
				Type:       "tool_result",
				ToolName:   call.Function.Name,
				ToolResult: result,
			})
		}
	}

	reply.Content = strings.Join(texts, "\n")
	return reply, nil
}

func (o *Orchestrator) complete(ctx context.Context, messages []openai.ChatCompletionMessageParamUnion) (openai.ChatCompletionChoice, error) {
	response, err := o.completions.New(ctx, openai.ChatCompletionNewParams{
		Model:     openai.ChatModel(o.model),
		Messages:  messages,
		Tools:     Definitions(),
		MaxTokens: openai.Int(int64(o.maxTokens)),
	})
	if err != nil {
		return openai.ChatCompletionChoice{}, fmt.Errorf("openai request failed: %w", err)
	}
	if len(response.Choices) == 0 {
		return openai.ChatCompletionChoice{}, errors.New("no response from openai")
	}
	return response.Choices[0], nil
}
