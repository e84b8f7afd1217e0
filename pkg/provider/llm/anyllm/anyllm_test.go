package anyllm

import (
	"context"
	"slices"
	"testing"

	"github.com/MrWong99/cadence/pkg/provider/llm"
	anyllmlib "github.com/mozilla-ai/any-llm-go"
)

func newTestProvider(t *testing.T) *Provider {
	t.Helper()
	p, err := New("openai", "gpt-4o-mini", anyllmlib.WithAPIKey("sk-test"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return p
}

func TestParams(t *testing.T) {
	t.Parallel()
	p := newTestProvider(t)

	got := p.params(llm.CompletionRequest{
		SystemPrompt: "You write lyrics. Answer in JSON.",
		Messages: []llm.Message{
			{Role: llm.RoleUser, Content: "5 lines, 4 syllables"},
			{Role: llm.RoleAssistant, Content: `{"candidates":[]}`},
		},
		Temperature: 0.7,
		MaxTokens:   256,
		JSON:        true,
	})
	if got.Model != "gpt-4o-mini" || len(got.Messages) != 3 {
		t.Fatalf("params = %+v", got)
	}
	if got.Messages[0].Role != anyllmlib.RoleSystem || got.Messages[0].ContentString() != "You write lyrics. Answer in JSON." {
		t.Errorf("system = %+v", got.Messages[0])
	}
	if got.Messages[2].Role != llm.RoleAssistant {
		t.Errorf("roles not preserved: %+v", got.Messages)
	}
	if got.Temperature == nil || *got.Temperature != 0.7 || got.MaxTokens == nil || *got.MaxTokens != 256 {
		t.Errorf("sampling = %v/%v", got.Temperature, got.MaxTokens)
	}

	bare := p.params(llm.CompletionRequest{Messages: []llm.Message{{Role: llm.RoleUser, Content: "hi"}}})
	if bare.Temperature != nil || bare.MaxTokens != nil || len(bare.Messages) != 1 {
		t.Errorf("zero values should be omitted: %+v", bare)
	}
}

func TestSystemPrompt(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		req  llm.CompletionRequest
		want string
	}{
		{name: "plain", req: llm.CompletionRequest{SystemPrompt: "Write lyrics."}, want: "Write lyrics."},
		{name: "json appends instruction", req: llm.CompletionRequest{SystemPrompt: "Write lyrics.", JSON: true}, want: "Write lyrics.\n" + jsonInstruction},
		{name: "json without prompt", req: llm.CompletionRequest{JSON: true}, want: jsonInstruction},
		{name: "json already asked", req: llm.CompletionRequest{SystemPrompt: "Return JSON.", JSON: true}, want: "Return JSON."},
		{name: "empty", req: llm.CompletionRequest{}, want: ""},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := systemPrompt(tc.req); got != tc.want {
				t.Errorf("systemPrompt = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestNew(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		backend string
		model   string
		wantErr bool
	}{
		{name: "openai", backend: "openai", model: "gpt-4o-mini"},
		{name: "case insensitive", backend: " Anthropic ", model: "claude-3-5-haiku-latest"},
		{name: "empty backend", backend: "", model: "m", wantErr: true},
		{name: "empty model", backend: "openai", model: "", wantErr: true},
		{name: "unsupported", backend: "fakecloud", model: "m", wantErr: true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			p, err := New(tc.backend, tc.model, anyllmlib.WithAPIKey("dummy"))
			if (err != nil) != tc.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tc.wantErr)
			}
			if err == nil && p.Model() != tc.model {
				t.Errorf("model = %q", p.Model())
			}
		})
	}
}

func TestNewOllama_DefaultModel(t *testing.T) {
	t.Parallel()
	p, err := NewOllama("")
	if err != nil {
		t.Fatalf("NewOllama: %v", err)
	}
	if p.Model() != DefaultOllamaModel || p.name != "ollama" {
		t.Errorf("provider = %s/%s", p.name, p.Model())
	}
}

func TestBackends(t *testing.T) {
	t.Parallel()
	got := Backends()
	if !slices.IsSorted(got) || !slices.Contains(got, "ollama") || len(got) != 9 {
		t.Errorf("Backends = %v", got)
	}
}

func TestComplete_RejectsInvalidRequest(t *testing.T) {
	t.Parallel()
	p := newTestProvider(t)
	if _, err := p.Complete(context.Background(), llm.CompletionRequest{}); err == nil {
		t.Error("expected error for request without messages")
	}
}
