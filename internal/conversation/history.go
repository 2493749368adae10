package conversation

import (
	"slices"
	"sync"

	"github.com/MrWong99/murmur/pkg/provider/llm"
)

// History is the ordered user/assistant exchange sent with every completion
// request. A turn is added with a single [History.Commit] once it has a
// reply, so a failed turn never leaves a dangling user message behind.
//
// All methods are safe for concurrent use.
type History struct {
	mu   sync.Mutex
	max  int
	msgs []llm.Message
}

// NewHistory returns a History that keeps at most max messages. Older
// messages are dropped a user/assistant pair at a time. A max of zero or
// less keeps everything.
func NewHistory(max int) *History {
	return &History{max: max}
}

// Messages returns a copy of the committed messages, oldest first.
func (h *History) Messages() []llm.Message {
	h.mu.Lock()
	defer h.mu.Unlock()
	return slices.Clone(h.msgs)
}

// With returns the committed messages followed by a user message carrying
// text. The history itself is not modified.
func (h *History) With(text string) []llm.Message {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]llm.Message, len(h.msgs), len(h.msgs)+1)
	copy(out, h.msgs)
	return append(out, llm.Message{Role: llm.RoleUser, Content: text})
}

// Commit appends the user message and the assistant reply as one step and
// trims the oldest pairs beyond the bound.
func (h *History) Commit(user, assistant string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.msgs = append(h.msgs,
		llm.Message{Role: llm.RoleUser, Content: user},
		llm.Message{Role: llm.RoleAssistant, Content: assistant},
	)
	if h.max <= 0 {
		return
	}
	for len(h.msgs) > h.max && len(h.msgs) >= 2 {
		h.msgs = slices.Delete(h.msgs, 0, 2)
	}
}

// Len returns the number of committed messages.
func (h *History) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.msgs)
}

// Reset drops every committed message.
func (h *History) Reset() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.msgs = nil
}

// FitBudget drops the oldest messages of msgs, a pair at a time, until the
// provider's token estimate fits its prompt budget. The final message (the
// pending user turn) is always kept. Estimation errors leave msgs unchanged.
func FitBudget(p llm.Provider, msgs []llm.Message) []llm.Message {
	budget := p.Capabilities().PromptBudget()
	if budget <= 0 {
		return msgs
	}
	for len(msgs) > 1 {
		n, err := p.CountTokens(msgs)
		if err != nil || n <= budget {
			return msgs
		}
		drop := min(2, len(msgs)-1)
		msgs = msgs[drop:]
	}
	return msgs
}
