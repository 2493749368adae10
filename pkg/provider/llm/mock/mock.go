// Package mock provides a scripted [llm.Provider] for tests.
//
// Replies come from a one-shot queue filled with [Provider.Queue] and then
// from a standing reply set with [Provider.SetReply] or [Provider.SetError]:
//
//	p := &mock.Provider{}
//	p.SetReply("[TIME_NOW]")
//	p.Queue("[REMIND|IN|5m|stretch]")
package mock

import (
	"context"
	"slices"
	"sync"

	"github.com/MrWong99/murmur/pkg/provider/llm"
)

var _ llm.Provider = (*Provider)(nil)

type reply struct {
	content string
	err     error
}

// Provider records every completion request. A Provider with no reply set
// answers with empty content.
type Provider struct {
	// Tokens is returned by CountTokens. Zero means [llm.EstimateTokens].
	Tokens int

	// TokensErr, if set, fails CountTokens.
	TokensErr error

	// Caps is returned by Capabilities.
	Caps llm.ModelCapabilities

	mu       sync.Mutex
	queue    []reply
	standing reply
	requests []llm.CompletionRequest
}

// SetReply makes content the standing reply.
func (p *Provider) SetReply(content string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.standing = reply{content: content}
}

// SetError makes every call without a queued reply fail with err.
func (p *Provider) SetError(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.standing = reply{err: err}
}

// Queue adds one-shot replies that are used, in order, before the standing
// reply.
func (p *Provider) Queue(contents ...string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, c := range contents {
		p.queue = append(p.queue, reply{content: c})
	}
}

// Complete records req and returns the next reply.
func (p *Provider) Complete(_ context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	req.Messages = slices.Clone(req.Messages)

	p.mu.Lock()
	p.requests = append(p.requests, req)
	r := p.standing
	if len(p.queue) > 0 {
		r, p.queue = p.queue[0], p.queue[1:]
	}
	p.mu.Unlock()

	if r.err != nil {
		return nil, r.err
	}
	return &llm.CompletionResponse{Content: r.content, FinishReason: "stop"}, nil
}

// CountTokens implements llm.Provider.
func (p *Provider) CountTokens(messages []llm.Message) (int, error) {
	if p.TokensErr != nil {
		return 0, p.TokensErr
	}
	if p.Tokens == 0 {
		return llm.EstimateTokens(messages), nil
	}
	return p.Tokens, nil
}

// Capabilities implements llm.Provider.
func (p *Provider) Capabilities() llm.ModelCapabilities { return p.Caps }

// Requests returns the recorded requests in call order.
func (p *Provider) Requests() []llm.CompletionRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	return slices.Clone(p.requests)
}
