package morph

import (
	"context"
	"fmt"

	"golang.org/x/sync/semaphore"
)

// Gated wraps an [Analyzer] with a weighted semaphore so that at most n
// analysis calls run at once. The analysis sidecar is CPU-bound; without a
// gate a burst of candidate sentences from concurrent requests can saturate
// it and stall every pipeline at once.
type Gated struct {
	inner Analyzer
	sem   *semaphore.Weighted
}

// Gate returns a [Gated] analyzer permitting at most n concurrent calls.
// n must be positive.
func Gate(inner Analyzer, n int64) (*Gated, error) {
	if n <= 0 {
		return nil, fmt.Errorf("morph: gate size must be positive, got %d", n)
	}
	return &Gated{inner: inner, sem: semaphore.NewWeighted(n)}, nil
}

// Split implements [Analyzer]. It acquires a slot before delegating.
func (g *Gated) Split(ctx context.Context, text string) ([]string, error) {
	if err := g.sem.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("morph: acquire analysis slot: %w", err)
	}
	defer g.sem.Release(1)
	return g.inner.Split(ctx, text)
}

// Analyze implements [Analyzer]. It acquires a slot before delegating.
func (g *Gated) Analyze(ctx context.Context, sentence string) ([]Word, error) {
	if err := g.sem.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("morph: acquire analysis slot: %w", err)
	}
	defer g.sem.Release(1)
	return g.inner.Analyze(ctx, sentence)
}

// Ensure Gated implements Analyzer at compile time.
var _ Analyzer = (*Gated)(nil)
