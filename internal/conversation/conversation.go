// Package conversation wires one companion's prompt, memory, and
// completion client into a live session that can answer user turns and
// snapshot itself into a checkpoint.
package conversation

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/verdant-labs/companiond/internal/checkpoint"
	"github.com/verdant-labs/companiond/internal/llm"
	"github.com/verdant-labs/companiond/internal/memory"
	"github.com/verdant-labs/companiond/internal/prompt"
)

// Deps are the shared collaborators a session needs. They are
// per-process, not per-conversation.
type Deps struct {
	Client     llm.Client
	Summarizer memory.Summarizer
	Tones      *prompt.ToneHandler
	Logger     *slog.Logger
}

// Conversation is one live companion session. It is not safe for
// concurrent use; the owning store serializes access per user.
type Conversation struct {
	deps Deps

	id        string
	userID    string
	createdAt time.Time

	params checkpoint.ModelParams
	prompt *prompt.CompanionPrompt
	memory *memory.SummaryBuffer

	description string
	selfieURL   string
	debug       bool
}

// New starts a fresh conversation for a user. The id is derived from
// the user and creation time, so two companions created in the same
// second would collide; callers creating in bulk must space creations.
func New(deps Deps, userID string, params checkpoint.ModelParams, p *prompt.CompanionPrompt, description string, now time.Time) *Conversation {
	return &Conversation{
		deps:        deps,
		id:          checkpoint.NewID(userID, now),
		userID:      userID,
		createdAt:   now.UTC().Truncate(time.Second),
		params:      params,
		prompt:      p,
		memory:      memory.NewSummaryBuffer(p.UserName, p.BotName, params.MemoryTokenBudget),
		description: description,
	}
}

// Restore rebuilds a session from a checkpoint, including both memory
// tiers.
func Restore(deps Deps, rec *checkpoint.Record) *Conversation {
	p := prompt.New(rec.PromptTemplate, rec.PromptUserName, rec.PromptBotName)
	c := &Conversation{
		deps:        deps,
		id:          rec.ID,
		userID:      rec.UserID,
		createdAt:   rec.CreatedAt,
		params:      rec.Params,
		prompt:      p,
		memory:      memory.NewSummaryBuffer(p.UserName, p.BotName, rec.Params.MemoryTokenBudget),
		description: rec.Description,
		selfieURL:   rec.SelfieURL,
	}
	c.memory.Restore(rec.MemoryBuffer, rec.MemorySummary)
	return c
}

func (c *Conversation) ID() string            { return c.id }
func (c *Conversation) UserID() string        { return c.userID }
func (c *Conversation) CreatedAt() time.Time  { return c.createdAt }
func (c *Conversation) Description() string   { return c.description }
func (c *Conversation) Tone() string          { return c.params.Tone }
func (c *Conversation) SelfieURL() string     { return c.selfieURL }
func (c *Conversation) SetSelfieURL(u string) { c.selfieURL = u }

// completionParams maps the persisted model config onto one call's
// parameters, adding the prompt's stop sequences.
func (c *Conversation) completionParams() llm.Params {
	return llm.Params{
		Model:            c.params.Model,
		MaxTokens:        c.params.MaxTokens,
		Temperature:      c.params.Temperature,
		TopP:             c.params.TopP,
		FrequencyPenalty: c.params.FrequencyPenalty,
		PresencePenalty:  c.params.PresencePenalty,
		BestOf:           c.params.BestOf,
		Stop:             c.prompt.StopSequences(),
	}
}

// Ask runs one conversational turn: render the prompt from the current
// memory, complete it, record the exchange, and condense memory if the
// raw buffer outgrew its budget.
//
// A condense failure does not fail the turn. The reply already exists
// and the oversized buffer is still correct, so the error is logged and
// eviction retried on the next turn.
func (c *Conversation) Ask(ctx context.Context, input string) (string, error) {
	rendered := c.prompt.Render(c.memory.History(), c.params.Tone, input)

	reply, err := c.deps.Client.Complete(ctx, rendered, c.completionParams())
	if err != nil {
		return "", fmt.Errorf("complete turn: %w", err)
	}
	reply = strings.TrimSpace(reply)

	c.memory.AppendExchange(input, reply)

	if err := c.memory.Condense(ctx, c.deps.Summarizer); err != nil {
		c.deps.Logger.Warn("memory condense failed, keeping full buffer",
			"conversation", c.id, "error", err)
	}

	if c.debug {
		return rendered + "\n-----\n" + reply, nil
	}
	return reply, nil
}

// SetTone normalizes free-form tone text through the tone handler and
// applies the result to subsequent turns.
func (c *Conversation) SetTone(ctx context.Context, text string) (string, error) {
	tone, err := c.deps.Tones.Normalize(ctx, text)
	if err != nil {
		return "", fmt.Errorf("normalize tone: %w", err)
	}
	c.params.Tone = tone
	return tone, nil
}

// ToggleDebug flips debug mode and reports the new state. In debug
// mode Ask prefixes replies with the exact prompt sent to the model.
func (c *Conversation) ToggleDebug() bool {
	c.debug = !c.debug
	return c.debug
}

// ClearHistory drops both memory tiers, keeping config and prompt.
func (c *Conversation) ClearHistory() {
	c.memory.Reset()
}

// Snapshot captures the full session state as a checkpoint record.
func (c *Conversation) Snapshot() *checkpoint.Record {
	return &checkpoint.Record{
		ID:             c.id,
		UserID:         c.userID,
		CreatedAt:      c.createdAt,
		Params:         c.params,
		PromptTemplate: c.prompt.Text,
		PromptUserName: c.prompt.UserName,
		PromptBotName:  c.prompt.BotName,
		MemoryBuffer:   c.memory.Lines(),
		MemorySummary:  c.memory.Summary(),
		Description:    c.description,
		SelfieURL:      c.selfieURL,
	}
}
