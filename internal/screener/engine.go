package screener

import (
	"context"
	"errors"
	"fmt"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/azure"
	"github.com/openai/openai-go/v2/option"
)

// Message is one entry of the prompt sent to the generative engine.
type Message struct {
	Role    string // "system", "user" or "assistant"
	Content string
}

// Engine produces one chat completion for a prompt. Implementations must
// honor ctx cancellation; the processor enforces the hard timeout.
type Engine interface {
	Complete(ctx context.Context, messages []Message) (string, error)
}

// OpenAIEngine calls an OpenAI-compatible chat completions API.
type OpenAIEngine struct {
	client      openai.Client
	model       string
	maxTokens   int64
	temperature float64
}

// NewAzureEngine creates an engine for an Azure OpenAI deployment.
func NewAzureEngine(endpoint, apiVersion, apiKey, deployment string, maxTokens int64, temperature float64) *OpenAIEngine {
	return &OpenAIEngine{
		client:      openai.NewClient(azure.WithEndpoint(endpoint, apiVersion), azure.WithAPIKey(apiKey)),
		model:       deployment,
		maxTokens:   maxTokens,
		temperature: temperature,
	}
}

// NewOpenAIEngine creates an engine against the public OpenAI API.
func NewOpenAIEngine(apiKey, model string, maxTokens int64, temperature float64) *OpenAIEngine {
	return &OpenAIEngine{
		client:      openai.NewClient(option.WithAPIKey(apiKey)),
		model:       model,
		maxTokens:   maxTokens,
		temperature: temperature,
	}
}

// Complete sends the prompt and returns the raw reply text.
func (e *OpenAIEngine) Complete(ctx context.Context, messages []Message) (string, error) {
	params := openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(e.model),
		Messages:    make([]openai.ChatCompletionMessageParamUnion, 0, len(messages)),
		MaxTokens:   openai.Int(e.maxTokens),
		Temperature: openai.Float(e.temperature),
	}
	for _, m := range messages {
		switch m.Role {
		case "system":
			params.Messages = append(params.Messages, openai.SystemMessage(m.Content))
		case "assistant":
			params.Messages = append(params.Messages, openai.AssistantMessage(m.Content))
		default:
			params.Messages = append(params.Messages, openai.UserMessage(m.Content))
		}
	}

	resp, err := e.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("chat completion: no choices")
	}
	return resp.Choices[0].Message.Content, nil
}
