// Package llm defines the Provider interface for the chat-completion backend
// used by the feedback pipeline.
//
// A provider wraps a remote chat-completion API and exposes two operations:
// free-form text completion ([Provider.Chat]) and JSON-schema-constrained
// completion ([Provider.ChatStructured]). All pipeline stages depend on this
// interface rather than on a concrete client so that tests can substitute the
// mock in pkg/provider/llm/mock.
//
// Implementations must be safe for concurrent use.
package llm

import "context"

// Role tags a chat message with its author.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is a single role-tagged entry in a chat conversation.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// System returns a system-role message with the given content.
func System(content string) Message { return Message{Role: RoleSystem, Content: content} }

// User returns a user-role message with the given content.
func User(content string) Message { return Message{Role: RoleUser, Content: content} }

// Params are the sampling parameters sent with every completion request.
// The zero value is not valid; start from [DefaultParams] and override fields.
type Params struct {
	// TopP is the nucleus sampling mass. Default: 1.0.
	TopP float64

	// TopK limits sampling to the K most likely tokens; 0 disables the limit.
	TopK int

	// MaxCompletionTokens caps the generated token count. Default: 1024.
	MaxCompletionTokens int

	// Temperature controls output randomness. Default: 0.1, since corrections must
	// be near-deterministic.
	Temperature float64

	// RepetitionPenalty discourages token repetition. Default: 1.0 (off).
	RepetitionPenalty float64
}

// DefaultParams returns the documented default sampling parameters.
func DefaultParams() Params {
	return Params{
		TopP:                1.0,
		TopK:                0,
		MaxCompletionTokens: 1024,
		Temperature:         0.1,
		RepetitionPenalty:   1.0,
	}
}

// CallConfig collects per-call overrides applied via [CallOption] values.
type CallConfig struct {
	Params Params
}

// CallOption is a functional option for a single Chat or ChatStructured call.
type CallOption func(*CallConfig)

// WithParams replaces the full sampling parameter set for one call.
func WithParams(p Params) CallOption {
	return func(c *CallConfig) { c.Params = p }
}

// WithTemperature overrides the sampling temperature for one call.
func WithTemperature(t float64) CallOption {
	return func(c *CallConfig) { c.Params.Temperature = t }
}

// WithMaxCompletionTokens overrides the completion token cap for one call.
func WithMaxCompletionTokens(n int) CallOption {
	return func(c *CallConfig) { c.Params.MaxCompletionTokens = n }
}

// Provider is the abstraction over the chat-completion backend.
//
// Implementations must be safe for concurrent use and must propagate context
// cancellation promptly on all network I/O.
type Provider interface {
	// Chat sends the ordered message list to the model and returns the
	// free-form text content of the reply.
	Chat(ctx context.Context, messages []Message, opts ...CallOption) (string, error)

	// ChatStructured sends the message list with a JSON-schema response
	// constraint derived from out's type, then parses the returned content
	// into out. out must be a non-nil pointer to a struct.
	//
	// A reply that is not valid JSON, or that does not conform to out's
	// schema, fails the call; partial results are never written.
	ChatStructured(ctx context.Context, messages []Message, out any, opts ...CallOption) error
}
