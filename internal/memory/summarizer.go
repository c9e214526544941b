package memory

import (
	"context"
	"strings"

	"github.com/verdant-labs/companiond/internal/llm"
)

// summaryPrompt asks the model to extend the rolling summary with newly
// evicted conversation lines.
const summaryPrompt = `Progressively summarize the lines of conversation provided, adding onto the previous summary and returning a new summary. Keep names, facts, and emotional context.

Current summary:
%SUMMARY%

New lines of conversation:
%LINES%

New summary:`

// LLMSummarizer generates rolling summaries using a completion model.
type LLMSummarizer struct {
	client llm.Client
	params llm.Params
}

// NewLLMSummarizer creates a summarizer. Summaries favor fidelity over
// flair, so the temperature is pinned low regardless of the
// conversation's own parameters.
func NewLLMSummarizer(client llm.Client, params llm.Params) *LLMSummarizer {
	params.Temperature = 0.2
	params.BestOf = 0
	params.Stop = nil
	return &LLMSummarizer{client: client, params: params}
}

// Summarize implements Summarizer.
func (s *LLMSummarizer) Summarize(ctx context.Context, existing string, lines []string) (string, error) {
	prompt := strings.Replace(summaryPrompt, "%SUMMARY%", existing, 1)
	prompt = strings.Replace(prompt, "%LINES%", strings.Join(lines, "\n"), 1)

	out, err := s.client.Complete(ctx, prompt, s.params)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}
