// Package avatar produces companion selfies: it derives an image
// prompt from the persona, renders it through an image generator, and
// publishes the result to object storage.
package avatar

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/verdant-labs/companiond/internal/llm"
)

// selfieTemplate turns a persona sheet into a text-to-image prompt.
const selfieTemplate = `Write a text-to-image prompt for a realistic selfie of the person described.

Example:

Context: Name: Lisa
Age: 24
Gender: female
Interests: swimming
Profession: banker
Appearance: short and thin
Relationship status: single
Personality: easy going.

Selfie prompt: selfie photo of a 24 year old woman, short and thin, natural lighting, casual clothes, smartphone front camera, candid, photorealistic

Context: Name: John
Age: 35
Gender: male
Interests: tennis
Profession: lawyer
Appearance: medium build
Relationship status: single
Personality: professional but not overly formal.

Selfie prompt: selfie photo of a 35 year old man, medium build, office background, natural expression, smartphone front camera, photorealistic

Context: %INPUT%
Selfie prompt:`

// PromptHandler derives image prompts from persona sheets through the
// completion model.
type PromptHandler struct {
	client llm.Client
	params llm.Params
}

// NewPromptHandler creates a selfie prompt handler.
func NewPromptHandler(client llm.Client, params llm.Params) *PromptHandler {
	params.BestOf = 0
	params.Stop = nil
	return &PromptHandler{client: client, params: params}
}

// Derive returns the image prompt for a persona sheet.
func (h *PromptHandler) Derive(ctx context.Context, sheet string) (string, error) {
	out, err := h.client.Complete(ctx, strings.Replace(selfieTemplate, "%INPUT%", sheet, 1), h.params)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

// Generator renders an image prompt to JPEG bytes. The concrete
// backend is deployment-specific and stays behind this interface.
type Generator interface {
	Generate(ctx context.Context, prompt string) ([]byte, error)
}

// Uploader publishes image bytes under a key and returns the public
// URL.
type Uploader interface {
	Upload(ctx context.Context, key string, data []byte, contentType string) (string, error)
}

// Service ties prompt derivation, generation, and upload together.
type Service struct {
	prompts   *PromptHandler
	generator Generator
	uploader  Uploader
	logger    *slog.Logger
}

// NewService creates the selfie pipeline.
func NewService(prompts *PromptHandler, generator Generator, uploader Uploader, logger *slog.Logger) *Service {
	return &Service{prompts: prompts, generator: generator, uploader: uploader, logger: logger}
}

// CreateSelfie produces and publishes a selfie for one companion. The
// object key is derived from the checkpoint id so regenerating replaces
// the previous image.
func (s *Service) CreateSelfie(ctx context.Context, checkpointID, personaSheet string) (string, error) {
	imagePrompt, err := s.prompts.Derive(ctx, personaSheet)
	if err != nil {
		return "", fmt.Errorf("derive selfie prompt: %w", err)
	}
	s.logger.Debug("selfie prompt derived", "checkpoint", checkpointID, "prompt", imagePrompt)

	data, err := s.generator.Generate(ctx, imagePrompt)
	if err != nil {
		return "", fmt.Errorf("generate selfie: %w", err)
	}

	url, err := s.uploader.Upload(ctx, "companions/"+checkpointID+".jpg", data, "image/jpeg")
	if err != nil {
		return "", fmt.Errorf("upload selfie: %w", err)
	}
	return url, nil
}
