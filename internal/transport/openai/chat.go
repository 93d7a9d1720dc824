package openai

import (
	"context"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/codevoyager1984/math-agent/internal/domain"
)

// ChatConfig holds the chat completion settings used by the LLM judge.
type ChatConfig struct {
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float32
	MaxTokens   int
}

// Chat is a single-turn chat completion client.
type Chat struct {
	client      *openai.Client
	model       string
	temperature float32
	maxTokens   int
}

// NewChat creates a chat client. Zero Temperature and MaxTokens select 0.1 and 2000.
func NewChat(cfg *ChatConfig) *Chat {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	temp := cfg.Temperature
	if temp == 0 {
		temp = 0.1
	}
	maxTokens := cfg.MaxTokens
	if maxTokens == 0 {
		maxTokens = 2000
	}
	return &Chat{
		client:      openai.NewClientWithConfig(clientCfg),
		model:       cfg.Model,
		temperature: temp,
		maxTokens:   maxTokens,
	}
}

// Complete sends a system and a user message and returns the trimmed reply.
// Errors wrap domain.ErrRerankFailure.
func (c *Chat) Complete(ctx context.Context, system, user string) (string, error) {
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
		Temperature: c.temperature,
		MaxTokens:   c.maxTokens,
	})
	if err != nil {
		return "", parseAPIError(err, domain.ErrRerankFailure)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("chat completion returned no choices: %w", domain.ErrRerankFailure)
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}
