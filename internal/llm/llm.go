package llm

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// DefaultSystemPrompt frames every completion as coming from a speaking examiner.
const DefaultSystemPrompt = "You are an experienced IELTS speaking examiner. Answer in plain text."

var tracer = otel.Tracer("github.com/pavelanni/ielts/internal/llm")

// Config holds the connection settings for the examiner model.
type Config struct {
	BaseURL      string
	APIKey       string
	Model        string
	SystemPrompt string
	Temperature  float32
}

// Client wraps an OpenAI-compatible API client.
type Client struct {
	api    *openai.Client
	model  string
	system string
	temp   float32
}

// New creates a new LLM client.
func New(cfg Config) (*Client, error) {
	if cfg.Model == "" {
		return nil, fmt.Errorf("LLM model name is required")
	}
	config := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		config.BaseURL = cfg.BaseURL
	}
	system := cfg.SystemPrompt
	if system == "" {
		system = DefaultSystemPrompt
	}
	return &Client{
		api:    openai.NewClientWithConfig(config),
		model:  cfg.Model,
		system: system,
		temp:   cfg.Temperature,
	}, nil
}

// Ping checks that the endpoint is reachable and accepts the credentials.
func (c *Client) Ping(ctx context.Context) error {
	if _, err := c.api.ListModels(ctx); err != nil {
		return fmt.Errorf("list models: %w", err)
	}
	return nil
}

// Complete sends one prompt and returns the examiner's reply verbatim.
// An empty reply is not an error; callers parse whatever text comes back.
func (c *Client) Complete(ctx context.Context, prompt string) (string, error) {
	ctx, span := tracer.Start(ctx, "llm.complete")
	defer span.End()
	span.SetAttributes(
		attribute.String("llm.model", c.model),
		attribute.Int("llm.prompt_chars", len(prompt)),
	)

	start := time.Now()
	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: c.system},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		Temperature: c.temp,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "chat completion failed")
		return "", fmt.Errorf("LLM API call: %w", err)
	}

	if len(resp.Choices) == 0 {
		slog.Warn("LLM returned no choices", "model", c.model)
		return "", nil
	}

	raw := resp.Choices[0].Message.Content
	slog.Debug("LLM response", "duration", time.Since(start), "raw", raw)
	span.SetAttributes(attribute.Int("llm.response_chars", len(raw)))
	return raw, nil
}
