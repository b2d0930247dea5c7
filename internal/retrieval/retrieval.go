// Package retrieval defines the few-shot example types shared by the vector
// and lexical retrievers, plus the helpers that normalize their payloads.
//
// Both retrievers return [ErrorExample] values mined from a corpus of graded
// learner sentences. The grammar feedback service feeds them to the language
// model verbatim as few-shot context; nothing in this package interprets the
// annotations beyond carrying them.
package retrieval

import (
	"encoding/json"
	"fmt"
)

// ErrorWord is one annotated error span inside a retrieved example. Text is
// typically of the form "wrong -> right" or a short annotation. The remaining
// fields are optional classifier labels carried through from the corpus.
type ErrorWord struct {
	Text          string `json:"text"`
	ErrorLocation string `json:"error_location,omitempty"`
	ErrorAspect   string `json:"error_aspect,omitempty"`
	ErrorLevel    string `json:"error_level,omitempty"`
}

// ErrorExample is one retrieved learner sentence with its error annotations.
type ErrorExample struct {
	OriginalSentence string      `json:"original_sentence"`
	ErrorWords       []ErrorWord `json:"error_words"`
}

// ParseErrorWords normalizes the error_words metadata field of a retrieved
// document. The stores hold it in two shapes: a JSON-encoded string, or a
// native list of objects. Anything else is an error; callers skip the hit.
func ParseErrorWords(raw any) ([]ErrorWord, error) {
	switch v := raw.(type) {
	case string:
		var words []ErrorWord
		if err := json.Unmarshal([]byte(v), &words); err != nil {
			return nil, fmt.Errorf("retrieval: parse error_words string: %w", err)
		}
		return words, nil
	case []any:
		// Round-trip through JSON so both map[string]any elements and
		// already-typed ones decode uniformly.
		blob, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("retrieval: encode error_words list: %w", err)
		}
		var words []ErrorWord
		if err := json.Unmarshal(blob, &words); err != nil {
			return nil, fmt.Errorf("retrieval: parse error_words list: %w", err)
		}
		return words, nil
	case nil:
		return nil, nil
	default:
		return nil, fmt.Errorf("retrieval: error_words has unsupported type %T", raw)
	}
}

// MergeExamples concatenates example lists while dropping duplicates by
// original sentence. The first occurrence wins and input order is preserved,
// so vector hits stay ahead of lexical fallback hits.
func MergeExamples(lists ...[]ErrorExample) []ErrorExample {
	seen := make(map[string]struct{})
	var merged []ErrorExample
	for _, list := range lists {
		for _, ex := range list {
			if _, dup := seen[ex.OriginalSentence]; dup {
				continue
			}
			seen[ex.OriginalSentence] = struct{}{}
			merged = append(merged, ex)
		}
	}
	return merged
}
