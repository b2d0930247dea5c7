// Package sentence splits a composition into sentences and tags the ones
// likely to contain grammar errors.
//
// Tagging is a cheap heuristic pre-filter: only tagged candidates are sent
// through the expensive retrieval-augmented correction pipeline, everything
// else bypasses the language model entirely.
package sentence

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/gyojeong/bff/internal/observe"
	"github.com/gyojeong/bff/pkg/morph"
)

// DefaultThreshold is the error-candidacy cutoff. Sentences scoring at or
// above it are candidates.
const DefaultThreshold = 6.0

// Sentence is one split sentence with its candidacy state. Words holds the
// morphological analysis when it succeeded; candidates reuse it downstream.
type Sentence struct {
	ID        int
	Text      string
	Candidate bool
	Words     []morph.Word
}

// Service splits and tags compositions using a shared analyzer.
type Service struct {
	analyzer  morph.Analyzer
	threshold float64
	metrics   *observe.Metrics
	logger    *slog.Logger
}

// Option is a functional option for [Service].
type Option func(*Service)

// WithThreshold overrides the candidacy threshold. Default: [DefaultThreshold].
func WithThreshold(threshold float64) Option {
	return func(s *Service) {
		s.threshold = threshold
	}
}

// WithMetrics enables analysis-latency and candidacy recording on m.
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// NewService creates a Service on top of the process-wide analyzer.
func NewService(analyzer morph.Analyzer, logger *slog.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{analyzer: analyzer, threshold: DefaultThreshold, logger: logger}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Split divides the composition body into trimmed sentences with dense ids
// starting at 0 in text order. Splitter failure is fatal: without sentences
// there is nothing to give feedback on.
func (s *Service) Split(ctx context.Context, contents string) ([]Sentence, error) {
	parts, err := s.analyzer.Split(ctx, contents)
	if err != nil {
		return nil, fmt.Errorf("sentence: split: %w", err)
	}
	sentences := make([]Sentence, 0, len(parts))
	for _, part := range parts {
		sentences = append(sentences, Sentence{
			ID:   len(sentences),
			Text: strings.TrimSpace(part),
		})
	}
	return sentences, nil
}

// Tag scores every sentence and marks candidates in place. A sentence whose
// analysis fails is always a candidate; the correction pipeline gets to look
// at anything the analyzer cannot parse.
func (s *Service) Tag(ctx context.Context, sentences []Sentence) []Sentence {
	for i := range sentences {
		start := time.Now()
		words, err := s.analyzer.Analyze(ctx, sentences[i].Text)
		if s.metrics != nil {
			s.metrics.AnalysisDuration.Record(ctx, time.Since(start).Seconds())
		}
		if err != nil {
			s.logger.Warn("analysis failed, forcing candidacy",
				"sentence_id", sentences[i].ID, "error", err)
			sentences[i].Candidate = true
		} else {
			sentences[i].Words = words
			score := Score(words, sentences[i].Text)
			sentences[i].Candidate = score >= s.threshold
		}
		if s.metrics != nil {
			s.metrics.RecordTaggedSentence(ctx, sentences[i].Candidate)
		}
	}
	return sentences
}

// Score computes the error-candidacy score of an analyzed sentence:
//
//	+4  missing essential constituent: no predicate in a sentence longer
//	    than 5 tokens, or a predicate without any subject candidate
//	+3  more than 3 particle tags or more than 3 ending tags
//	+2  any foreign-word or symbol tag
//	+1  longer than 80 characters; -1 shorter than 3
//
// The result is floored at 0.
func Score(words []morph.Word, text string) float64 {
	var tokens []morph.Morpheme
	for _, w := range words {
		tokens = append(tokens, w.Morphemes...)
	}

	score := 0.0

	var predicates, nouns, subjectMarkers, particles, endings int
	foreign := false
	for _, tok := range tokens {
		if morph.IsPredicate(tok.Tag) {
			predicates++
		}
		if morph.IsNoun(tok.Tag) {
			nouns++
		}
		if tok.Tag == "JKS" || tok.Tag == "JX" {
			subjectMarkers++
		}
		if strings.HasPrefix(tok.Tag, "J") {
			particles++
		}
		if strings.HasPrefix(tok.Tag, "E") {
			endings++
		}
		if morph.IsForeignOrSymbol(tok.Tag) {
			foreign = true
		}
	}

	hasSubject := nouns > 0 && subjectMarkers > 0
	if (predicates == 0 && len(tokens) > 5) || (predicates > 0 && !hasSubject) {
		score += 4.0
	}
	if particles > 3 || endings > 3 {
		score += 3.0
	}
	if foreign {
		score += 2.0
	}

	length := utf8.RuneCountInString(text)
	if length > 80 {
		score += 1.0
	} else if length < 3 {
		score -= 1.0
	}

	if score < 0 {
		return 0
	}
	return score
}
