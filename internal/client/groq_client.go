package client

import (
	"context"
	"fmt"

	openai "github.com/sashabaranov/go-openai"

	"github.com/worksim/api/internal/config"
)

const memorySystemPrompt = "You condense workplace chat history into short factual notes " +
	"a coworker would remember. Plain text, no preamble."

// GroqClient handles text generation through Groq's OpenAI compatible API
type GroqClient struct {
	client *openai.Client
	model  string
	apiKey string
}

// NewGroqClient creates a new Groq API client
func NewGroqClient(cfg *config.GroqConfig) *GroqClient {
	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = cfg.BaseURL
	}
	return &GroqClient{
		client: openai.NewClientWithConfig(oc),
		model:  cfg.Model,
		apiKey: cfg.APIKey,
	}
}

// ChatCompletion sends a system + user chat completion request
func (c *GroqClient) ChatCompletion(ctx context.Context, system, user string) (string, error) {
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
		Temperature: 0.3,
		MaxTokens:   1024,
	})
	if err != nil {
		return "", fmt.Errorf("groq chat completion: %w", err)
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no choices in response")
	}

	return resp.Choices[0].Message.Content, nil
}

// GenerateContent implements ContentGenerator for text-only prompts
func (c *GroqClient) GenerateContent(ctx context.Context, prompt string, media *Media) (string, error) {
	if media != nil {
		return "", fmt.Errorf("groq client does not accept media")
	}
	return c.ChatCompletion(ctx, memorySystemPrompt, prompt)
}

// IsConfigured returns true if the client has valid configuration
func (c *GroqClient) IsConfigured() bool {
	return c.apiKey != ""
}
