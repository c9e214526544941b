// Package memory provides two-tier conversation memory: a buffer of
// verbatim recent turns plus a moving summary of everything older. The
// buffer holds the unsummarized tail; the summary holds everything
// before it. No turn is ever represented in both tiers.
package memory

import (
	"context"
	"fmt"
	"strings"
)

// EstimateTokens approximates the token count of text. Rough estimate:
// 4 characters per token.
func EstimateTokens(s string) int {
	return len(s) / 4
}

// Summarizer folds evicted conversation lines into a rolling summary.
type Summarizer interface {
	// Summarize returns a new summary that extends existing with the
	// given lines. existing may be empty on the first eviction.
	Summarize(ctx context.Context, existing string, lines []string) (string, error)
}

// SummaryBuffer is the live memory of one conversation. It is not safe
// for concurrent use; the owning store serializes access per user.
type SummaryBuffer struct {
	userName string
	botName  string
	budget   int // token budget for the raw buffer

	lines   []string // unsummarized tail, oldest first
	summary string   // moving summary of evicted lines
}

// NewSummaryBuffer creates an empty memory with the given role labels
// and raw-buffer token budget.
func NewSummaryBuffer(userName, botName string, budget int) *SummaryBuffer {
	return &SummaryBuffer{
		userName: userName,
		botName:  botName,
		budget:   budget,
	}
}

// AppendExchange records one user/bot turn pair as two buffer lines.
func (b *SummaryBuffer) AppendExchange(userText, botText string) {
	b.lines = append(b.lines,
		fmt.Sprintf("%s: %s", b.userName, userText),
		fmt.Sprintf("%s: %s", b.botName, botText),
	)
}

// Lines returns a copy of the raw buffer, oldest first.
func (b *SummaryBuffer) Lines() []string {
	out := make([]string, len(b.lines))
	copy(out, b.lines)
	return out
}

// Summary returns the moving summary of evicted turns.
func (b *SummaryBuffer) Summary() string {
	return b.summary
}

// Restore replaces both tiers, e.g. when rehydrating from a checkpoint.
func (b *SummaryBuffer) Restore(lines []string, summary string) {
	b.lines = make([]string, len(lines))
	copy(b.lines, lines)
	b.summary = summary
}

// Reset clears both tiers.
func (b *SummaryBuffer) Reset() {
	b.lines = nil
	b.summary = ""
}

// History renders the memory for prompt substitution: the moving
// summary first, then the verbatim tail. Empty memory renders as "".
func (b *SummaryBuffer) History() string {
	parts := make([]string, 0, len(b.lines)+1)
	if b.summary != "" {
		parts = append(parts, b.summary)
	}
	parts = append(parts, b.lines...)
	return strings.Join(parts, "\n")
}

// TokenCount estimates the size of the raw buffer only. The summary is
// intentionally excluded — it is already compacted.
func (b *SummaryBuffer) TokenCount() int {
	total := 0
	for _, l := range b.lines {
		total += EstimateTokens(l)
	}
	return total
}

// OverBudget reports whether the raw buffer exceeds the token budget.
func (b *SummaryBuffer) OverBudget() bool {
	return b.TokenCount() > b.budget
}

// Condense evicts the oldest raw lines until the buffer fits the
// budget, then folds the evicted lines into the moving summary. On
// summarizer failure the buffer is left untouched so the eviction can
// be retried on the next turn.
func (b *SummaryBuffer) Condense(ctx context.Context, s Summarizer) error {
	if !b.OverBudget() {
		return nil
	}

	var evicted []string
	kept := b.lines
	for len(kept) > 0 {
		total := 0
		for _, l := range kept {
			total += EstimateTokens(l)
		}
		if total <= b.budget {
			break
		}
		evicted = append(evicted, kept[0])
		kept = kept[1:]
	}

	if len(evicted) == 0 {
		return nil
	}

	summary, err := s.Summarize(ctx, b.summary, evicted)
	if err != nil {
		return fmt.Errorf("summarize evicted turns: %w", err)
	}

	b.summary = summary
	b.lines = append([]string(nil), kept...)
	return nil
}
