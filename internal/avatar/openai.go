package avatar

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"

	openai "github.com/sashabaranov/go-openai"

	"github.com/verdant-labs/companiond/internal/llm"
)

// OpenAIImageGenerator renders selfie prompts through the OpenAI image
// API.
type OpenAIImageGenerator struct {
	client *openai.Client
	logger *slog.Logger
}

// NewOpenAIImageGenerator creates an image generator. baseURL may be
// empty to use the official endpoint.
func NewOpenAIImageGenerator(apiKey, baseURL string, logger *slog.Logger) *OpenAIImageGenerator {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &OpenAIImageGenerator{
		client: openai.NewClientWithConfig(cfg),
		logger: logger,
	}
}

// Generate implements Generator.
func (g *OpenAIImageGenerator) Generate(ctx context.Context, prompt string) ([]byte, error) {
	g.logger.Log(ctx, llm.LevelTrace, "image generation request", "prompt", prompt)

	resp, err := g.client.CreateImage(ctx, openai.ImageRequest{
		Prompt:         prompt,
		N:              1,
		Size:           openai.CreateImageSize512x512,
		ResponseFormat: openai.CreateImageResponseFormatB64JSON,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: create image: %v", llm.ErrProvider, err)
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("%w: image generation returned no data", llm.ErrProvider)
	}

	data, err := base64.StdEncoding.DecodeString(resp.Data[0].B64JSON)
	if err != nil {
		return nil, fmt.Errorf("decode image payload: %w", err)
	}
	return data, nil
}
