package conversation

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/verdant-labs/companiond/internal/checkpoint"
	"github.com/verdant-labs/companiond/internal/llm"
	"github.com/verdant-labs/companiond/internal/memory"
	"github.com/verdant-labs/companiond/internal/prompt"
)

// scriptedClient returns canned replies in order and records every
// prompt and params it was called with.
type scriptedClient struct {
	replies []string
	err     error

	prompts []string
	params  []llm.Params
}

func (c *scriptedClient) Complete(_ context.Context, p string, params llm.Params) (string, error) {
	c.prompts = append(c.prompts, p)
	c.params = append(c.params, params)
	if c.err != nil {
		return "", c.err
	}
	if len(c.prompts) > len(c.replies) {
		return "ok", nil
	}
	return c.replies[len(c.prompts)-1], nil
}

func (c *scriptedClient) Ping(context.Context) error { return nil }

type noopSummarizer struct{ calls int }

func (s *noopSummarizer) Summarize(_ context.Context, existing string, lines []string) (string, error) {
	s.calls++
	return existing + " " + strings.Join(lines, " "), nil
}

type failingSummarizer struct{}

func (failingSummarizer) Summarize(context.Context, string, []string) (string, error) {
	return "", errors.New("summarizer down")
}

func testParams() checkpoint.ModelParams {
	return checkpoint.ModelParams{
		Model:             "gpt-3.5-turbo-instruct",
		MaxTokens:         256,
		Temperature:       0.9,
		TopP:              1,
		BestOf:            1,
		Tone:              "warm",
		MemoryTokenBudget: 1000,
	}
}

func testDeps(client llm.Client, s memory.Summarizer) Deps {
	return Deps{
		Client:     client,
		Summarizer: s,
		Tones:      prompt.NewToneHandler(client, llm.Params{Model: "gpt-3.5-turbo-instruct"}),
		Logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

func TestAskRendersExactPrompt(t *testing.T) {
	client := &scriptedClient{replies: []string{"  hello there!  "}}
	p := prompt.New("You are Nova.", "", "")
	c := New(testDeps(client, &noopSummarizer{}), "alice", testParams(), p, "Nova", time.Now())

	reply, err := c.Ask(context.Background(), "hi")
	if err != nil {
		t.Fatalf("ask: %v", err)
	}
	if reply != "hello there!" {
		t.Errorf("reply = %q, want trimmed completion", reply)
	}

	want := "You are Nova.\n\n[User]: hi\n[Bot] (warm):"
	if client.prompts[0] != want {
		t.Errorf("prompt = %q, want %q", client.prompts[0], want)
	}
	if len(client.params[0].Stop) != 1 || client.params[0].Stop[0] != "\n[User]:" {
		t.Errorf("stop = %v", client.params[0].Stop)
	}
}

func TestAskAccumulatesHistory(t *testing.T) {
	client := &scriptedClient{replies: []string{"hello!", "sure."}}
	p := prompt.New("You are Nova.", "", "")
	c := New(testDeps(client, &noopSummarizer{}), "alice", testParams(), p, "Nova", time.Now())

	ctx := context.Background()
	if _, err := c.Ask(ctx, "hi"); err != nil {
		t.Fatalf("first ask: %v", err)
	}
	if _, err := c.Ask(ctx, "tell me about stars"); err != nil {
		t.Fatalf("second ask: %v", err)
	}

	second := client.prompts[1]
	if !strings.Contains(second, "[User]: hi\n[Bot]: hello!") {
		t.Errorf("second prompt missing first exchange:\n%s", second)
	}
	if !strings.HasSuffix(second, "[User]: tell me about stars\n[Bot] (warm):") {
		t.Errorf("second prompt tail wrong:\n%s", second)
	}
}

func TestAskPropagatesCompletionFailure(t *testing.T) {
	client := &scriptedClient{err: llm.ErrRateLimited}
	p := prompt.New("You are Nova.", "", "")
	c := New(testDeps(client, &noopSummarizer{}), "alice", testParams(), p, "Nova", time.Now())

	_, err := c.Ask(context.Background(), "hi")
	if !errors.Is(err, llm.ErrRateLimited) {
		t.Errorf("error = %v, want ErrRateLimited", err)
	}

	// A failed turn must not pollute memory.
	if h := c.Snapshot(); len(h.MemoryBuffer) != 0 {
		t.Errorf("buffer after failed turn = %v, want empty", h.MemoryBuffer)
	}
}

func TestAskCondensesOverBudgetMemory(t *testing.T) {
	client := &scriptedClient{replies: []string{"a long reply that takes a fair number of tokens to say"}}
	summarizer := &noopSummarizer{}
	params := testParams()
	params.MemoryTokenBudget = 5
	p := prompt.New("You are Nova.", "", "")
	c := New(testDeps(client, summarizer), "alice", params, p, "Nova", time.Now())

	if _, err := c.Ask(context.Background(), "please talk a lot"); err != nil {
		t.Fatalf("ask: %v", err)
	}
	if summarizer.calls == 0 {
		t.Error("expected condense to call the summarizer")
	}
	rec := c.Snapshot()
	if rec.MemorySummary == "" {
		t.Error("expected a non-empty moving summary after condense")
	}
}

func TestAskSurvivesSummarizerFailure(t *testing.T) {
	client := &scriptedClient{replies: []string{"a long reply that takes a fair number of tokens to say"}}
	params := testParams()
	params.MemoryTokenBudget = 5
	p := prompt.New("You are Nova.", "", "")
	c := New(testDeps(client, failingSummarizer{}), "alice", params, p, "Nova", time.Now())

	reply, err := c.Ask(context.Background(), "please talk a lot")
	if err != nil {
		t.Fatalf("ask should not fail on condense error: %v", err)
	}
	if reply == "" {
		t.Error("expected the reply despite condense failure")
	}
	if rec := c.Snapshot(); len(rec.MemoryBuffer) != 2 {
		t.Errorf("buffer = %v, want the exchange kept intact", rec.MemoryBuffer)
	}
}

func TestSetToneNormalizes(t *testing.T) {
	client := &scriptedClient{replies: []string{"  sarcastic and prickly  "}}
	p := prompt.New("You are Nova.", "", "")
	c := New(testDeps(client, &noopSummarizer{}), "alice", testParams(), p, "Nova", time.Now())

	tone, err := c.SetTone(context.Background(), "be more prickly")
	if err != nil {
		t.Fatalf("set tone: %v", err)
	}
	if tone != "sarcastic and prickly" {
		t.Errorf("tone = %q", tone)
	}
	if c.Tone() != tone {
		t.Errorf("Tone() = %q, want %q", c.Tone(), tone)
	}
	if !strings.Contains(client.prompts[0], "Context: be more prickly") {
		t.Errorf("tone prompt missing input:\n%s", client.prompts[0])
	}
}

func TestToggleDebugPrefixesPrompt(t *testing.T) {
	client := &scriptedClient{replies: []string{"hello!"}}
	p := prompt.New("You are Nova.", "", "")
	c := New(testDeps(client, &noopSummarizer{}), "alice", testParams(), p, "Nova", time.Now())

	if on := c.ToggleDebug(); !on {
		t.Fatal("first toggle should enable debug")
	}

	reply, err := c.Ask(context.Background(), "hi")
	if err != nil {
		t.Fatalf("ask: %v", err)
	}
	if !strings.HasPrefix(reply, "You are Nova.") {
		t.Errorf("debug reply should start with the rendered prompt:\n%s", reply)
	}
	if !strings.HasSuffix(reply, "\n-----\nhello!") {
		t.Errorf("debug reply should end with the completion:\n%s", reply)
	}

	if on := c.ToggleDebug(); on {
		t.Error("second toggle should disable debug")
	}
}

func TestSnapshotRestoreRoundTrip(t *testing.T) {
	client := &scriptedClient{replies: []string{"hello!", "still here."}}
	deps := testDeps(client, &noopSummarizer{})
	p := prompt.New("You are Nova.", "", "")
	c := New(deps, "alice", testParams(), p, "Nova the artist", time.Now())

	ctx := context.Background()
	if _, err := c.Ask(ctx, "hi"); err != nil {
		t.Fatalf("ask: %v", err)
	}
	c.SetSelfieURL("https://cdn.example.com/companions/x.jpg")

	rec := c.Snapshot()
	restored := Restore(deps, rec)

	if restored.ID() != c.ID() || restored.UserID() != c.UserID() {
		t.Errorf("identity = %s/%s, want %s/%s",
			restored.ID(), restored.UserID(), c.ID(), c.UserID())
	}
	if restored.Description() != "Nova the artist" {
		t.Errorf("description = %q", restored.Description())
	}
	if restored.SelfieURL() != c.SelfieURL() {
		t.Errorf("selfie url = %q", restored.SelfieURL())
	}

	// The restored session must render the exact same prompt the
	// original would for the next turn.
	if _, err := restored.Ask(ctx, "you remember me?"); err != nil {
		t.Fatalf("restored ask: %v", err)
	}
	got := client.prompts[len(client.prompts)-1]
	if !strings.Contains(got, "[User]: hi\n[Bot]: hello!") {
		t.Errorf("restored prompt lost history:\n%s", got)
	}
}

func TestClearHistory(t *testing.T) {
	client := &scriptedClient{replies: []string{"hello!"}}
	p := prompt.New("You are Nova.", "", "")
	c := New(testDeps(client, &noopSummarizer{}), "alice", testParams(), p, "Nova", time.Now())

	if _, err := c.Ask(context.Background(), "hi"); err != nil {
		t.Fatalf("ask: %v", err)
	}
	c.ClearHistory()

	rec := c.Snapshot()
	if len(rec.MemoryBuffer) != 0 || rec.MemorySummary != "" {
		t.Errorf("memory not cleared: %v / %q", rec.MemoryBuffer, rec.MemorySummary)
	}
	if rec.PromptTemplate != "You are Nova." {
		t.Error("clear history must keep the prompt")
	}
}
