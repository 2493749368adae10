// Package openai answers dialogue turns through the OpenAI chat completions
// API. Any server speaking that protocol (vLLM, LM Studio, a proxy) can be
// targeted with [WithBaseURL].
package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"
	"github.com/openai/openai-go/shared"

	"github.com/MrWong99/murmur/pkg/provider/llm"
)

// DefaultMaxTokens caps replies when neither the request nor [WithMaxTokens]
// sets a limit. Replies are read aloud, so they are kept short.
const DefaultMaxTokens = 300

// finishContentFilter is the finish reason of a filtered reply.
const finishContentFilter = "content_filter"

var _ llm.Provider = (*Provider)(nil)

// Option configures a [Provider].
type Option func(*Provider)

// WithBaseURL overrides the API base URL.
func WithBaseURL(url string) Option {
	return func(p *Provider) { p.baseURL = url }
}

// WithOrganization sends the organization ID with every request.
func WithOrganization(org string) Option {
	return func(p *Provider) { p.organization = org }
}

// WithTimeout bounds each request.
func WithTimeout(d time.Duration) Option {
	return func(p *Provider) { p.timeout = d }
}

// WithMaxTokens sets the reply cap used when a request leaves MaxTokens at
// zero. Default: [DefaultMaxTokens].
func WithMaxTokens(n int) Option {
	return func(p *Provider) { p.maxTokens = n }
}

// Provider implements llm.Provider using the OpenAI API.
type Provider struct {
	client    oai.Client
	model     string
	maxTokens int

	baseURL      string
	organization string
	timeout      time.Duration
}

// New returns a Provider for model. Both apiKey and model are required.
func New(apiKey, model string, opts ...Option) (*Provider, error) {
	switch {
	case apiKey == "":
		return nil, errors.New("openai: apiKey must not be empty")
	case model == "":
		return nil, errors.New("openai: model must not be empty")
	}
	p := &Provider{model: model, maxTokens: DefaultMaxTokens}
	for _, o := range opts {
		o(p)
	}
	if p.maxTokens <= 0 {
		return nil, fmt.Errorf("openai: max tokens %d must be positive", p.maxTokens)
	}

	// Breakers own failure handling; the SDK must not retry behind them.
	reqOpts := []option.RequestOption{option.WithAPIKey(apiKey), option.WithMaxRetries(0)}
	if p.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(p.baseURL))
	}
	if p.organization != "" {
		reqOpts = append(reqOpts, option.WithOrganization(p.organization))
	}
	if p.timeout > 0 {
		reqOpts = append(reqOpts, option.WithHTTPClient(&http.Client{Timeout: p.timeout}))
	}
	p.client = oai.NewClient(reqOpts...)
	return p, nil
}

// Complete implements llm.Provider. Refusals and filtered replies fail with
// [llm.ErrRefused]; API failures name the HTTP status.
func (p *Provider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	params, err := p.buildParams(req)
	if err != nil {
		return nil, fmt.Errorf("openai: build params: %w", err)
	}

	resp, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		if apiErr := (*oai.Error)(nil); errors.As(err, &apiErr) {
			return nil, fmt.Errorf("openai: chat completion: HTTP %d: %w", apiErr.StatusCode, err)
		}
		return nil, fmt.Errorf("openai: chat completion: %w", err)
	}
	return toResponse(resp)
}

func toResponse(resp *oai.ChatCompletion) (*llm.CompletionResponse, error) {
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("openai: %w", llm.ErrNoChoices)
	}
	choice := resp.Choices[0]
	switch {
	case choice.Message.Refusal != "":
		return nil, fmt.Errorf("openai: %w: %s", llm.ErrRefused, choice.Message.Refusal)
	case choice.FinishReason == finishContentFilter:
		return nil, fmt.Errorf("openai: %w: reply was filtered", llm.ErrRefused)
	}
	return &llm.CompletionResponse{
		Content:      choice.Message.Content,
		FinishReason: choice.FinishReason,
		Usage: llm.Usage{
			PromptTokens:     int(resp.Usage.PromptTokens),
			CompletionTokens: int(resp.Usage.CompletionTokens),
			TotalTokens:      int(resp.Usage.TotalTokens),
		},
	}, nil
}

// CountTokens implements llm.Provider with the shared heuristic.
func (p *Provider) CountTokens(messages []llm.Message) (int, error) {
	return llm.EstimateTokens(messages), nil
}

// Capabilities implements llm.Provider. MaxOutputTokens is lowered to the
// reply cap so the prompt budget is not shrunk by output never requested.
func (p *Provider) Capabilities() llm.ModelCapabilities {
	caps := llm.CapabilitiesFor(p.model)
	caps.MaxOutputTokens = min(caps.MaxOutputTokens, p.maxTokens)
	return caps
}

func (p *Provider) buildParams(req llm.CompletionRequest) (oai.ChatCompletionNewParams, error) {
	messages := make([]oai.ChatCompletionMessageParamUnion, 0, len(req.Messages)+1)
	if req.SystemPrompt != "" {
		messages = append(messages, oai.SystemMessage(req.SystemPrompt))
	}
	for _, m := range req.Messages {
		msg, err := convertMessage(m)
		if err != nil {
			return oai.ChatCompletionNewParams{}, err
		}
		messages = append(messages, msg)
	}

	limit := req.MaxTokens
	if limit <= 0 {
		limit = p.maxTokens
	}
	params := oai.ChatCompletionNewParams{
		Model:               shared.ChatModel(p.model),
		Messages:            messages,
		MaxCompletionTokens: param.NewOpt(int64(limit)),
	}
	if req.Temperature != 0 {
		params.Temperature = param.NewOpt(req.Temperature)
	}
	return params, nil
}

func convertMessage(m llm.Message) (oai.ChatCompletionMessageParamUnion, error) {
	switch m.Role {
	case llm.RoleSystem:
		return oai.SystemMessage(m.Content), nil
	case llm.RoleUser:
		return oai.UserMessage(m.Content), nil
	case llm.RoleAssistant:
		return oai.AssistantMessage(m.Content), nil
	}
	return oai.ChatCompletionMessageParamUnion{}, fmt.Errorf("openai: unknown message role %q", m.Role)
}
