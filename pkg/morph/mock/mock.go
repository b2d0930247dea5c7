// Package mock provides a mock implementation of the [morph.Analyzer]
// interface for testing.
package mock

import (
	"context"
	"sync"

	"github.com/gyojeong/bff/pkg/morph"
)

// Ensure Analyzer implements the morph.Analyzer interface at compile time.
var _ morph.Analyzer = (*Analyzer)(nil)

// Analyzer is a mock morph.Analyzer. Configure the response fields or the
// Func hooks before use; hooks take precedence when set.
type Analyzer struct {
	mu sync.Mutex

	// SplitSentences is returned by Split when SplitFunc is nil.
	SplitSentences []string
	// SplitErr is returned by Split when SplitFunc is nil.
	SplitErr error
	// SplitFunc, if set, handles Split calls entirely.
	SplitFunc func(ctx context.Context, text string) ([]string, error)

	// AnalyzeWords is returned by Analyze when AnalyzeFunc is nil.
	AnalyzeWords []morph.Word
	// AnalyzeErr is returned by Analyze when AnalyzeFunc is nil.
	AnalyzeErr error
	// AnalyzeFunc, if set, handles Analyze calls entirely. The sentence
	// argument lets tests vary the analysis per input.
	AnalyzeFunc func(ctx context.Context, sentence string) ([]morph.Word, error)

	// SplitCalls records the text argument of every Split call.
	SplitCalls []string
	// AnalyzeCalls records the sentence argument of every Analyze call.
	AnalyzeCalls []string
}

// Split implements morph.Analyzer.
func (a *Analyzer) Split(ctx context.Context, text string) ([]string, error) {
	a.mu.Lock()
	a.SplitCalls = append(a.SplitCalls, text)
	fn := a.SplitFunc
	sentences, err := a.SplitSentences, a.SplitErr
	a.mu.Unlock()

	if fn != nil {
		return fn(ctx, text)
	}
	return sentences, err
}

// Analyze implements morph.Analyzer.
func (a *Analyzer) Analyze(ctx context.Context, sentence string) ([]morph.Word, error) {
	a.mu.Lock()
	a.AnalyzeCalls = append(a.AnalyzeCalls, sentence)
	fn := a.AnalyzeFunc
	words, err := a.AnalyzeWords, a.AnalyzeErr
	a.mu.Unlock()

	if fn != nil {
		return fn(ctx, sentence)
	}
	return words, err
}

// Reset clears all recorded calls.
func (a *Analyzer) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.SplitCalls = nil
	a.AnalyzeCalls = nil
}
