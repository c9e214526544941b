package prompt

import (
	"context"
	"strings"
	"testing"

	"github.com/verdant-labs/companiond/internal/llm"
)

// echoClient returns a canned completion and records the last prompt.
type echoClient struct {
	reply string
	last  string
}

func (e *echoClient) Complete(ctx context.Context, prompt string, params llm.Params) (string, error) {
	e.last = prompt
	return e.reply, nil
}

func (e *echoClient) Ping(ctx context.Context) error { return nil }

func TestRenderLayout(t *testing.T) {
	p := New("You are Nova.", "[User]", "[Bot]")

	got := p.Render("[User]: hi\n[Bot] (kind): hey", "kind", "how are you?")
	want := "You are Nova.\n" +
		"[User]: hi\n[Bot] (kind): hey\n" +
		"[User]: how are you?\n" +
		"[Bot] (kind):"
	if got != want {
		t.Errorf("render mismatch:\ngot:  %q\nwant: %q", got, want)
	}
}

func TestRenderIsDeterministic(t *testing.T) {
	p := New("persona", "", "")
	a := p.Render("h", "warm", "hi")
	b := p.Render("h", "warm", "hi")
	if a != b {
		t.Error("render must be a pure function of its inputs")
	}
}

func TestNewDefaultsRoleLabels(t *testing.T) {
	p := New("x", "", "")
	if p.UserName != DefaultUserName || p.BotName != DefaultBotName {
		t.Errorf("labels = %q/%q, want defaults", p.UserName, p.BotName)
	}
}

func TestStopSequences(t *testing.T) {
	p := New("x", "[User]", "[Bot]")
	stop := p.StopSequences()
	if len(stop) != 1 || stop[0] != "\n[User]:" {
		t.Errorf("stop = %v", stop)
	}
}

func TestToneHandlerNormalizes(t *testing.T) {
	c := &echoClient{reply: "  sarcastic and prickly\n"}
	h := NewToneHandler(c, llm.Params{Model: "test-model"})

	tone, err := h.Normalize(context.Background(), "be more prickly")
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if tone != "sarcastic and prickly" {
		t.Errorf("tone = %q", tone)
	}
	if !strings.Contains(c.last, "Context: be more prickly") {
		t.Errorf("few-shot prompt missing user context:\n%s", c.last)
	}
}

func TestGeneratorComposesSections(t *testing.T) {
	c := &echoClient{reply: "Nova texts in short bursts."}
	g := NewGenerator(c, llm.Params{Model: "test-model"})

	sheet := "Name: Nova\nAge: 26"
	p, err := g.Generate(context.Background(), sheet)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	for _, section := range []string{DefaultStartText, sheet, DefaultStyleDefinitionText, "Nova texts in short bursts.", DefaultWelcomingText} {
		if !strings.Contains(p.Text, section) {
			t.Errorf("prompt text missing section %q", section[:min(40, len(section))])
		}
	}
	if !strings.Contains(c.last, sheet) {
		t.Error("style handler should see the persona sheet")
	}

	// Section order: start → sheet → style definition → style → welcome.
	if strings.Index(p.Text, sheet) < strings.Index(p.Text, DefaultStartText) {
		t.Error("sheet should follow start text")
	}
	if strings.Index(p.Text, "Nova texts") < strings.Index(p.Text, sheet) {
		t.Error("texting style should follow the sheet")
	}
}
