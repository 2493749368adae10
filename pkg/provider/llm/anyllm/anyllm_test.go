package anyllm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"slices"
	"strings"
	"testing"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/MrWong99/murmur/pkg/provider/llm"
)

// ── buildParams ──────────────────────────────────────────────────────────────

func TestBuildParams_SystemPromptFirst(t *testing.T) {
	t.Parallel()
	p := &Provider{model: "claude-3-5-haiku-latest", maxTokens: DefaultMaxTokens}
	params := p.buildParams(llm.CompletionRequest{
		SystemPrompt: "Answer in one sentence.",
		Messages: []llm.Message{
			{Role: llm.RoleUser, Content: "what time is it"},
			{Role: llm.RoleAssistant, Content: "[TIME_NOW]"},
		},
	})
	if params.Model != "claude-3-5-haiku-latest" {
		t.Errorf("Model = %q", params.Model)
	}
	if len(params.Messages) != 3 {
		t.Fatalf("got %d messages, want 3", len(params.Messages))
	}
	if params.Messages[0].Role != anyllmlib.RoleSystem || params.Messages[0].ContentString() != "Answer in one sentence." {
		t.Errorf("first message = %+v, want system prompt", params.Messages[0])
	}
	if params.Messages[2].Role != llm.RoleAssistant || params.Messages[2].ContentString() != "[TIME_NOW]" {
		t.Errorf("last message = %+v", params.Messages[2])
	}
}

func TestBuildParams_ReplyCap(t *testing.T) {
	t.Parallel()
	p := &Provider{model: "llama3", maxTokens: 120}
	msgs := []llm.Message{{Role: llm.RoleUser, Content: "x"}}

	def := p.buildParams(llm.CompletionRequest{Messages: msgs})
	if def.MaxTokens == nil || *def.MaxTokens != 120 {
		t.Errorf("MaxTokens = %v, want provider cap 120", def.MaxTokens)
	}
	if def.Temperature != nil {
		t.Errorf("Temperature = %v, want unset", *def.Temperature)
	}

	set := p.buildParams(llm.CompletionRequest{Messages: msgs, Temperature: 0.7, MaxTokens: 40})
	if set.MaxTokens == nil || *set.MaxTokens != 40 {
		t.Errorf("MaxTokens = %v, want request value 40", set.MaxTokens)
	}
	if set.Temperature == nil || *set.Temperature != 0.7 {
		t.Errorf("Temperature = %v, want 0.7", set.Temperature)
	}
}

// ── New ──────────────────────────────────────────────────────────────────────

func TestNew_Errors(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name, backend, model string
		opts                 Options
		want                 string
	}{
		{"empty backend", "", "llama3", Options{}, "backend name"},
		{"empty model", "ollama", "", Options{}, "model"},
		{"unknown backend", "fakecloud", "x", Options{APIKey: "k"}, "unsupported backend"},
		{"openai is native", "openai", "gpt-4o", Options{APIKey: "k"}, "unsupported backend"},
		{"negative cap", "ollama", "llama3", Options{MaxTokens: -1}, "max tokens"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, err := New(tc.backend, tc.model, tc.opts)
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Errorf("err = %v, want mention of %q", err, tc.want)
			}
		})
	}
}

func TestBackends_Sorted(t *testing.T) {
	t.Parallel()
	got := Backends()
	if !slices.IsSorted(got) {
		t.Errorf("Backends() = %v, want sorted", got)
	}
	if slices.Contains(got, "openai") || !slices.Contains(got, "anthropic") || !slices.Contains(got, "ollama") {
		t.Errorf("Backends() = %v", got)
	}
}

func TestNew_Backends(t *testing.T) {
	tests := []struct {
		backend string
		model   string
		opts    Options
	}{
		{"Anthropic", "claude-3-5-sonnet-latest", Options{APIKey: "sk-ant-test"}},
		{"ollama", "llama3", Options{}},
		{"llamacpp", "llama3", Options{APIKey: "ignored"}},
		{"llamafile", "llama3", Options{MaxTokens: 64}},
	}
	for _, tc := range tests {
		t.Run(tc.backend, func(t *testing.T) {
			p, err := New(tc.backend, tc.model, tc.opts)
			if err != nil {
				t.Fatalf("New(%q): %v", tc.backend, err)
			}
			if p.name != strings.ToLower(tc.backend) {
				t.Errorf("name = %q", p.name)
			}
			want := llm.CapabilitiesFor(tc.model)
			want.MaxOutputTokens = min(want.MaxOutputTokens, p.maxTokens)
			if got := p.Capabilities(); got != want {
				t.Errorf("Capabilities = %+v, want %+v", got, want)
			}
		})
	}
}

// ── Complete ─────────────────────────────────────────────────────────────────

// chatServer answers every chat completion with one choice carrying content
// and finishReason.
func chatServer(t *testing.T, content, finishReason string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"id":"c1","object":"chat.completion","created":1,"model":"llama3",
"choices":[{"index":0,"message":{"role":"assistant","content":%q},"finish_reason":%q}],
"usage":{"prompt_tokens":12,"completion_tokens":3,"total_tokens":15}}`, content, finishReason)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestComplete_LocalBackend(t *testing.T) {
	srv := chatServer(t, "[TIME_NOW]", "stop")
	p, err := New("llamacpp", "llama3", Options{BaseURL: srv.URL + "/v1"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	resp, err := p.Complete(context.Background(), llm.CompletionRequest{
		Messages: []llm.Message{{Role: llm.RoleUser, Content: "what time is it"}},
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if resp.Content != "[TIME_NOW]" || resp.FinishReason != "stop" {
		t.Errorf("resp = %+v", resp)
	}
	if resp.Usage.TotalTokens != 15 {
		t.Errorf("Usage = %+v, want 15 total tokens", resp.Usage)
	}
}

func TestComplete_ContentFilterIsRefusal(t *testing.T) {
	srv := chatServer(t, "", "content_filter")
	p, err := New("llamacpp", "llama3", Options{BaseURL: srv.URL + "/v1"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	_, err = p.Complete(context.Background(), llm.CompletionRequest{
		Messages: []llm.Message{{Role: llm.RoleUser, Content: "x"}},
	})
	if !errors.Is(err, llm.ErrRefused) {
		t.Errorf("err = %v, want ErrRefused", err)
	}
}
