// Package anyllm provides an LLM provider for the hosted and local backends
// supported by github.com/mozilla-ai/any-llm-go (Anthropic, Gemini, Ollama,
// DeepSeek, Mistral, Groq, llama.cpp and llamafile). OpenAI itself is served
// by the sibling openai package.
//
//	p, err := anyllm.New("anthropic", "claude-3-5-haiku-latest", anyllm.Options{APIKey: "sk-ant-..."})
//	p, err := anyllm.New("ollama", "llama3", anyllm.Options{BaseURL: "http://localhost:11434"})
package anyllm

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	anyllmlib "github.com/mozilla-ai/any-llm-go"
	"github.com/mozilla-ai/any-llm-go/providers/anthropic"
	"github.com/mozilla-ai/any-llm-go/providers/deepseek"
	"github.com/mozilla-ai/any-llm-go/providers/gemini"
	"github.com/mozilla-ai/any-llm-go/providers/groq"
	"github.com/mozilla-ai/any-llm-go/providers/llamacpp"
	"github.com/mozilla-ai/any-llm-go/providers/llamafile"
	"github.com/mozilla-ai/any-llm-go/providers/mistral"
	"github.com/mozilla-ai/any-llm-go/providers/ollama"

	"github.com/MrWong99/murmur/pkg/provider/llm"
)

// DefaultMaxTokens caps spoken replies when neither the request nor
// [Options.MaxTokens] sets a limit.
const DefaultMaxTokens = 300

var _ llm.Provider = (*Provider)(nil)

// backend describes one any-llm-go provider.
type backend struct {
	create func(...anyllmlib.Option) (anyllmlib.Provider, error)
	// local backends run on the user's machine and take no API key.
	local bool
}

var backends = map[string]backend{
	"anthropic": {create: func(o ...anyllmlib.Option) (anyllmlib.Provider, error) { return anthropic.New(o...) }},
	"gemini":    {create: func(o ...anyllmlib.Option) (anyllmlib.Provider, error) { return gemini.New(o...) }},
	"deepseek":  {create: func(o ...anyllmlib.Option) (anyllmlib.Provider, error) { return deepseek.New(o...) }},
	"mistral":   {create: func(o ...anyllmlib.Option) (anyllmlib.Provider, error) { return mistral.New(o...) }},
	"groq":      {create: func(o ...anyllmlib.Option) (anyllmlib.Provider, error) { return groq.New(o...) }},
	"ollama":    {create: func(o ...anyllmlib.Option) (anyllmlib.Provider, error) { return ollama.New(o...) }, local: true},
	"llamacpp":  {create: func(o ...anyllmlib.Option) (anyllmlib.Provider, error) { return llamacpp.New(o...) }, local: true},
	"llamafile": {create: func(o ...anyllmlib.Option) (anyllmlib.Provider, error) { return llamafile.New(o...) }, local: true},
}

// Backends returns the backend names accepted by [New] in sorted order.
func Backends() []string {
	names := make([]string, 0, len(backends))
	for n := range backends {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}

// Options configures a [Provider].
type Options struct {
	// APIKey authenticates against hosted backends. When empty, any-llm-go
	// falls back to the backend's environment variable (ANTHROPIC_API_KEY,
	// ...). Ignored for local backends.
	APIKey string

	// BaseURL overrides the backend endpoint.
	BaseURL string

	// MaxTokens caps replies for requests that leave MaxTokens at zero.
	// Default: [DefaultMaxTokens].
	MaxTokens int
}

// Provider implements llm.Provider on top of an any-llm-go backend.
type Provider struct {
	backend   anyllmlib.Provider
	name      string
	model     string
	maxTokens int
}

// New creates a Provider for the named backend (case-insensitive).
func New(name, model string, opts Options) (*Provider, error) {
	if name == "" {
		return nil, errors.New("anyllm: backend name must not be empty")
	}
	if model == "" {
		return nil, errors.New("anyllm: model must not be empty")
	}
	name = strings.ToLower(name)
	b, ok := backends[name]
	if !ok {
		return nil, fmt.Errorf("anyllm: unsupported backend %q; supported: %s", name, strings.Join(Backends(), ", "))
	}
	if opts.MaxTokens < 0 {
		return nil, fmt.Errorf("anyllm: max tokens %d must not be negative", opts.MaxTokens)
	}
	if opts.MaxTokens == 0 {
		opts.MaxTokens = DefaultMaxTokens
	}

	var libOpts []anyllmlib.Option
	if opts.APIKey != "" && !b.local {
		libOpts = append(libOpts, anyllmlib.WithAPIKey(opts.APIKey))
	}
	if opts.BaseURL != "" {
		libOpts = append(libOpts, anyllmlib.WithBaseURL(opts.BaseURL))
	}
	lib, err := b.create(libOpts...)
	if err != nil {
		return nil, fmt.Errorf("anyllm: create %q backend: %w", name, err)
	}
	return &Provider{backend: lib, name: name, model: model, maxTokens: opts.MaxTokens}, nil
}

// Complete implements llm.Provider. A reply stopped by the backend's
// content filter is reported as [llm.ErrRefused].
func (p *Provider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	resp, err := p.backend.Completion(ctx, p.buildParams(req))
	if err != nil {
		return nil, fmt.Errorf("anyllm: %s completion: %w", p.name, err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("anyllm: %s: %w", p.name, llm.ErrNoChoices)
	}

	choice := resp.Choices[0]
	if choice.FinishReason == "content_filter" {
		return nil, fmt.Errorf("anyllm: %s: %w: content filter", p.name, llm.ErrRefused)
	}
	out := &llm.CompletionResponse{
		Content:      choice.Message.ContentString(),
		FinishReason: choice.FinishReason,
	}
	if resp.Usage != nil {
		out.Usage = llm.Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		}
	}
	return out, nil
}

// CountTokens implements llm.Provider.
func (p *Provider) CountTokens(messages []llm.Message) (int, error) {
	return llm.EstimateTokens(messages), nil
}

// Capabilities implements llm.Provider with the output limit lowered to the
// reply cap.
func (p *Provider) Capabilities() llm.ModelCapabilities {
	caps := llm.CapabilitiesFor(p.model)
	caps.MaxOutputTokens = min(caps.MaxOutputTokens, p.maxTokens)
	return caps
}

func (p *Provider) buildParams(req llm.CompletionRequest) anyllmlib.CompletionParams {
	messages := make([]anyllmlib.Message, 0, len(req.Messages)+1)
	if req.SystemPrompt != "" {
		messages = append(messages, anyllmlib.Message{Role: anyllmlib.RoleSystem, Content: req.SystemPrompt})
	}
	for _, m := range req.Messages {
		messages = append(messages, anyllmlib.Message{Role: m.Role, Content: m.Content})
	}

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = p.maxTokens
	}
	params := anyllmlib.CompletionParams{
		Model:     p.model,
		Messages:  messages,
		MaxTokens: &maxTokens,
	}
	if req.Temperature != 0 {
		t := req.Temperature
		params.Temperature = &t
	}
	return params
}
