// Package checkpoint provides durable snapshots of companion
// conversations: model configuration, the rendered persona prompt, and
// the two-tier memory state.
package checkpoint

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ErrNotFound marks a lookup for a checkpoint that does not exist or is
// not owned by the requesting user. The two cases are deliberately
// indistinguishable so checkpoint ids cannot be probed across users.
var ErrNotFound = errors.New("checkpoint not found")

// ErrExists marks an insert whose checkpoint id is already taken.
var ErrExists = errors.New("checkpoint already exists")

// ModelParams holds the completion parameters persisted per companion,
// plus the tone descriptor and the memory token budget.
type ModelParams struct {
	Model             string  `json:"model"`
	MaxTokens         int     `json:"max_tokens"`
	Temperature       float64 `json:"temperature"`
	TopP              float64 `json:"top_p"`
	FrequencyPenalty  float64 `json:"frequency_penalty"`
	PresencePenalty   float64 `json:"presence_penalty"`
	BestOf            int     `json:"best_of"`
	Tone              string  `json:"tone"`
	MemoryTokenBudget int     `json:"memory_token_budget"`
}

// Record is one persisted companion conversation.
type Record struct {
	ID        string    `json:"checkpoint_id"`
	UserID    string    `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`

	Params ModelParams `json:"config"`

	PromptTemplate string `json:"prompt_template"`
	PromptUserName string `json:"prompt_user_name"`
	PromptBotName  string `json:"prompt_chatbot_name"`

	// MemoryBuffer is the unsummarized tail of the conversation,
	// stored as a JSON array of lines.
	MemoryBuffer  []string `json:"memory_buffer"`
	MemorySummary string   `json:"memory_moving_summary_buffer"`

	Description string `json:"bot_description"`
	SelfieURL   string `json:"selfie_url,omitempty"`
}

// NewID forms a checkpoint id from the owning user and creation time.
// The "{user}-{unix}" shape keeps ids unique per companion and sortable
// by creation time.
func NewID(userID string, now time.Time) string {
	return fmt.Sprintf("%s-%d", userID, now.Unix())
}

func timeFromUnix(unix int64) time.Time {
	return time.Unix(unix, 0).UTC()
}

// CreationTime extracts the creation timestamp encoded in a checkpoint
// id.
func CreationTime(id string) (time.Time, error) {
	i := strings.LastIndex(id, "-")
	if i < 0 {
		return time.Time{}, fmt.Errorf("malformed checkpoint id %q", id)
	}
	unix, err := strconv.ParseInt(id[i+1:], 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("malformed checkpoint id %q: %w", id, err)
	}
	return time.Unix(unix, 0).UTC(), nil
}
