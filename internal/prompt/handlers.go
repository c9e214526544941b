package prompt

import (
	"context"
	"strings"

	"github.com/verdant-labs/companiond/internal/llm"
)

// toneTemplate turns free-form mood requests into a short tone
// descriptor suitable for the "(tone)" slot of the prompt.
const toneTemplate = `Summarize the person's tone for the conversation.

Example:

Context: be more prickly
Conversation tone: sarcastic and prickly

Context: make her happy and excited
Conversation tone: happy and excited

Context: she is soft and easy going. very shy
Conversation tone: soft spoken, shy

Context: She is very funny and has a dry sense of humor. Very witty
Conversation tone: funny. dry sense of humor. Witty

Context: Dr Frost is very serious and smart. He likes to use very big words all of the time.
Conversation tone: serious tone, using big words, feeling superior

Context: %INPUT%
Conversation tone:`

// styleTemplate derives a texting-style paragraph from a persona sheet.
const styleTemplate = `Describe the texting style.

Example:

Context: Name: Lisa
Age: 24
Gender: female
Interests: swimming
Profession: banker
Appearance: short and thin
Relationship status: single
Personality: easy going.

Texting style: Lisa's texting style is casual and relaxed. She loves slang and abbreviations like "OMG!" and "LOL", and she often throws in a few typos for fun. She keeps things light and breezy and peppers her texts with witty comments and puns.

Context: Name: John
Age: 35
Gender: male
Interests: tennis
Profession: lawyer
Appearance: medium build
Relationship status: single
Personality: professional but not overly formal, likes to get straight to the point.

Texting style: John's writing style is professional yet concise. He gets straight to the point without unnecessary pleasantries or small talk. He uses proper grammar, but he does not come across as stuffy. His texts are usually short and focused.

Context: %INPUT%
Texting style:`

// ToneHandler normalizes free-text mood descriptors through the
// completion model before they are substituted into prompts.
type ToneHandler struct {
	client llm.Client
	params llm.Params
}

// NewToneHandler creates a tone normalizer using the given model params.
func NewToneHandler(client llm.Client, params llm.Params) *ToneHandler {
	params.BestOf = 0
	params.Stop = nil
	return &ToneHandler{client: client, params: params}
}

// Normalize returns the summarized tone for raw user text.
func (h *ToneHandler) Normalize(ctx context.Context, text string) (string, error) {
	out, err := h.client.Complete(ctx, strings.Replace(toneTemplate, "%INPUT%", text, 1), h.params)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

// TextStyleHandler derives a texting-style description from a persona
// sheet for inclusion in the generated prompt.
type TextStyleHandler struct {
	client llm.Client
	params llm.Params
}

// NewTextStyleHandler creates a texting-style handler.
func NewTextStyleHandler(client llm.Client, params llm.Params) *TextStyleHandler {
	params.BestOf = 0
	params.Stop = nil
	return &TextStyleHandler{client: client, params: params}
}

// Describe returns the texting-style paragraph for a persona sheet.
func (h *TextStyleHandler) Describe(ctx context.Context, sheet string) (string, error) {
	out, err := h.client.Complete(ctx, strings.Replace(styleTemplate, "%INPUT%", sheet, 1), h.params)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}
