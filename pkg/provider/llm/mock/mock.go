// Package mock provides a test double for the llm.Provider interface.
//
// Use Provider in unit tests to verify which prompts the pipeline sends and
// to feed controlled replies without a live chat-completion backend. All
// response fields should be set before the provider is shared between
// goroutines; call records are guarded by an internal mutex.
//
// Example:
//
//	p := &mock.Provider{ChatResponse: "잘 썼습니다."}
//	text, err := p.Chat(ctx, msgs)
package mock

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/gyojeong/bff/pkg/provider/llm"
)

// ChatCall records a single invocation of Chat.
type ChatCall struct {
	// Messages is the message list passed to Chat.
	Messages []llm.Message
}

// StructuredCall records a single invocation of ChatStructured.
type StructuredCall struct {
	// Messages is the message list passed to ChatStructured.
	Messages []llm.Message
}

// Provider is a mock implementation of llm.Provider.
//
// Chat returns ChatResponse / ChatErr. ChatStructured unmarshals the next
// entry of StructuredResponses (a JSON document) into out, or returns
// StructuredErr. When StructuredFunc is set it takes precedence and receives
// the zero-based call index.
type Provider struct {
	mu sync.Mutex

	// --- Configurable responses ---

	// ChatResponse is returned by Chat when ChatErr is nil.
	ChatResponse string

	// ChatErr, if non-nil, is returned as the error from Chat.
	ChatErr error

	// StructuredResponses are JSON documents consumed in order by successive
	// ChatStructured calls. When exhausted, the last entry is reused.
	StructuredResponses []string

	// StructuredErr, if non-nil, is returned by every ChatStructured call.
	StructuredErr error

	// StructuredFunc, if non-nil, fully controls ChatStructured. It receives
	// the zero-based call index and the out pointer.
	StructuredFunc func(call int, messages []llm.Message, out any) error

	// --- Call records (read after test) ---

	// ChatCalls records every invocation of Chat in order.
	ChatCalls []ChatCall

	// StructuredCalls records every invocation of ChatStructured in order.
	StructuredCalls []StructuredCall
}

// Chat records the call and returns ChatResponse, ChatErr.
func (p *Provider) Chat(_ context.Context, messages []llm.Message, _ ...llm.CallOption) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ChatCalls = append(p.ChatCalls, ChatCall{Messages: cloneMessages(messages)})
	return p.ChatResponse, p.ChatErr
}

// ChatStructured records the call and fills out from the configured source.
func (p *Provider) ChatStructured(_ context.Context, messages []llm.Message, out any, _ ...llm.CallOption) error {
	p.mu.Lock()
	idx := len(p.StructuredCalls)
	p.StructuredCalls = append(p.StructuredCalls, StructuredCall{Messages: cloneMessages(messages)})
	fn := p.StructuredFunc
	errOut := p.StructuredErr
	var doc string
	if len(p.StructuredResponses) > 0 {
		if idx >= len(p.StructuredResponses) {
			idx = len(p.StructuredResponses) - 1
		}
		doc = p.StructuredResponses[idx]
	}
	p.mu.Unlock()

	if fn != nil {
		return fn(idx, messages, out)
	}
	if errOut != nil {
		return errOut
	}
	if doc == "" {
		return nil
	}
	if err := json.Unmarshal([]byte(doc), out); err != nil {
		return llm.NewError(llm.ReasonParse, "mock response", err)
	}
	return nil
}

// CallCount returns the total number of Chat plus ChatStructured invocations.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.ChatCalls) + len(p.StructuredCalls)
}

// Reset clears all recorded calls. Thread-safe.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ChatCalls = nil
	p.StructuredCalls = nil
}

func cloneMessages(in []llm.Message) []llm.Message {
	out := make([]llm.Message, len(in))
	copy(out, in)
	return out
}

// Ensure Provider implements llm.Provider at compile time.
var _ llm.Provider = (*Provider)(nil)
