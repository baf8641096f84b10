package fallback

import (
	"context"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAICompleter sends chat completions through the OpenAI API or a
// compatible endpoint.
type OpenAICompleter struct {
	baseURL string
}

// NewOpenAICompleter returns a completer. An empty baseURL uses the
// public OpenAI endpoint.
func NewOpenAICompleter(baseURL string) *OpenAICompleter {
	return &OpenAICompleter{baseURL: baseURL}
}

// Complete implements Completer. A client is built per call because the
// API key travels with the request.
func (c *OpenAICompleter) Complete(ctx context.Context, req CompletionRequest) (CompletionResponse, error) {
	cfg := openai.DefaultConfig(req.APIKey)
	if c.baseURL != "" {
		cfg.BaseURL = c.baseURL
	}
	client := openai.NewClientWithConfig(cfg)

	resp, err := client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       req.Model,
		Temperature: req.Temperature,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: req.System},
			{Role: openai.ChatMessageRoleUser, Content: req.User},
		},
	})
	if err != nil {
		return CompletionResponse{}, fmt.Errorf("fallback: openai completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return CompletionResponse{}, errNoChoices
	}
	return CompletionResponse{
		Text:  resp.Choices[0].Message.Content,
		Model: resp.Model,
	}, nil
}
