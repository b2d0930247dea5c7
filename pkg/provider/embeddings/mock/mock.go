// Package mock provides a test double for [embeddings.Provider].
package mock

import (
	"context"
	"sync"

	"github.com/gyojeong/bff/pkg/provider/embeddings"
)

// EmbedCall records one Embed invocation.
type EmbedCall struct {
	Text string
}

// Provider is a configurable in-memory [embeddings.Provider]. The zero value
// is usable; set the response fields before handing it to the code under
// test. Safe for concurrent use.
type Provider struct {
	mu sync.Mutex

	// EmbedResult is the vector returned by Embed and, replicated per input,
	// by EmbedBatch.
	EmbedResult []float32

	// EmbedErr, when non-nil, is returned by Embed and EmbedBatch.
	EmbedErr error

	// EmbedFunc, when set, overrides the canned response. The call is still
	// recorded.
	EmbedFunc func(text string) ([]float32, error)

	// DimensionsValue is returned by Dimensions.
	DimensionsValue int

	// ModelIDValue is returned by ModelID.
	ModelIDValue string

	// EmbedCalls records every Embed and EmbedBatch input in order.
	EmbedCalls []EmbedCall
}

var _ embeddings.Provider = (*Provider)(nil)

func (p *Provider) Embed(_ context.Context, text string) ([]float32, error) {
	p.mu.Lock()
	p.EmbedCalls = append(p.EmbedCalls, EmbedCall{Text: text})
	fn := p.EmbedFunc
	p.mu.Unlock()

	if fn != nil {
		return fn(text)
	}
	if p.EmbedErr != nil {
		return nil, p.EmbedErr
	}
	return p.EmbedResult, nil
}

func (p *Provider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for _, text := range texts {
		vec, err := p.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		out = append(out, vec)
	}
	return out, nil
}

func (p *Provider) Dimensions() int { return p.DimensionsValue }

func (p *Provider) ModelID() string { return p.ModelIDValue }

// Reset clears the recorded calls.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.EmbedCalls = nil
}
