package llm

import (
	"context"
	"testing"
)

// recordingClient remembers the last prompt it received.
type recordingClient struct {
	name  string
	last  string
	reply string
}

func (r *recordingClient) Complete(ctx context.Context, prompt string, params Params) (string, error) {
	r.last = prompt
	return r.reply, nil
}

func (r *recordingClient) Ping(ctx context.Context) error { return nil }

func TestMultiClientRoutesByModel(t *testing.T) {
	local := &recordingClient{name: "local", reply: "from local"}
	hosted := &recordingClient{name: "hosted", reply: "from hosted"}

	m := NewMultiClient(hosted)
	m.AddProvider("ollama", local)
	m.AddModel("llama3", "ollama")

	out, err := m.Complete(context.Background(), "hi", Params{Model: "llama3"})
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if out != "from local" {
		t.Errorf("got %q, want routed to local provider", out)
	}

	out, err = m.Complete(context.Background(), "hi", Params{Model: "gpt-3.5-turbo-instruct"})
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if out != "from hosted" {
		t.Errorf("got %q, want fallback provider", out)
	}
}

func TestMultiClientNoFallback(t *testing.T) {
	m := NewMultiClient(nil)
	if _, err := m.Complete(context.Background(), "hi", Params{Model: "unknown"}); err == nil {
		t.Error("expected error with no provider for model")
	}
	if err := m.Ping(context.Background()); err == nil {
		t.Error("expected ping error with no fallback")
	}
}
