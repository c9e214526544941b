package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIClient talks to the OpenAI completions API (or any compatible
// gateway via a base URL override).
type OpenAIClient struct {
	client *openai.Client
	logger *slog.Logger
}

// NewOpenAIClient creates an OpenAI completion client. baseURL may be
// empty to use the official endpoint.
func NewOpenAIClient(apiKey, baseURL string, logger *slog.Logger) *OpenAIClient {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &OpenAIClient{
		client: openai.NewClientWithConfig(cfg),
		logger: logger,
	}
}

// Complete sends a text completion request.
func (c *OpenAIClient) Complete(ctx context.Context, prompt string, params Params) (string, error) {
	c.logger.Log(ctx, LevelTrace, "openai completion request",
		"model", params.Model,
		"prompt", prompt,
	)

	resp, err := c.client.CreateCompletion(ctx, openai.CompletionRequest{
		Model:            params.Model,
		Prompt:           prompt,
		MaxTokens:        params.MaxTokens,
		Temperature:      float32(params.Temperature),
		TopP:             float32(params.TopP),
		FrequencyPenalty: float32(params.FrequencyPenalty),
		PresencePenalty:  float32(params.PresencePenalty),
		BestOf:           params.BestOf,
		Stop:             params.Stop,
	})
	if err != nil {
		var apiErr *openai.APIError
		if errors.As(err, &apiErr) && apiErr.HTTPStatusCode == http.StatusTooManyRequests {
			return "", fmt.Errorf("%w: %v", ErrRateLimited, err)
		}
		return "", fmt.Errorf("%w: create completion: %v", ErrProvider, err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: completion returned no choices (model %s)", ErrProvider, params.Model)
	}

	text := strings.TrimSpace(resp.Choices[0].Text)
	c.logger.Log(ctx, LevelTrace, "openai completion response",
		"model", params.Model,
		"text", text,
		"prompt_tokens", resp.Usage.PromptTokens,
		"completion_tokens", resp.Usage.CompletionTokens,
	)
	return text, nil
}

// Ping checks provider reachability by listing models.
func (c *OpenAIClient) Ping(ctx context.Context) error {
	if _, err := c.client.ListModels(ctx); err != nil {
		return fmt.Errorf("openai ping: %w", err)
	}
	return nil
}
