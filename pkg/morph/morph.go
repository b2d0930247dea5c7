// Package morph defines the Analyzer interface for Korean morphological
// analysis and the tag helpers shared by the sentence scorer and the lexical
// standardizer.
//
// The analyzer is treated as an opaque tokenizer: this package names the tag
// categories the pipeline cares about (particles, endings, predicates, …)
// but never interprets tags beyond membership in those categories. The
// concrete tag set is the Sejong set emitted by the analysis sidecar.
//
// Implementations must be safe for concurrent use; the analyzer is a
// process-wide singleton created at startup.
package morph

import "context"

// Morpheme is one analyzed morpheme with its part-of-speech tag.
type Morpheme struct {
	// Surface is the morpheme text as it appears after analysis.
	Surface string `json:"surface"`

	// Tag is the analyzer's part-of-speech tag (e.g., "NNG", "JKO", "EF").
	Tag string `json:"tag"`
}

// Word is a whitespace-delimited word (eojeol) with its morpheme breakdown.
type Word struct {
	// Surface is the word as written by the learner.
	Surface string `json:"surface"`

	// Morphemes is the ordered morpheme analysis of Surface.
	Morphemes []Morpheme `json:"morphemes"`
}

// Analyzer splits text into sentences and analyzes sentences into words.
//
// Split must preserve text order; Analyze must preserve word order. Both
// must respect context cancellation.
type Analyzer interface {
	// Split divides a composition body into ordered sentences.
	Split(ctx context.Context, text string) ([]string, error)

	// Analyze returns the word-level morpheme groups of one sentence.
	Analyze(ctx context.Context, sentence string) ([]Word, error)
}
