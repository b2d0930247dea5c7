package lexical

import (
	"strings"

	"github.com/gyojeong/bff/pkg/morph"
)

// StandardizeWord converts one analyzed word into its standardized tag form.
// Per morpheme:
//
//   - particles, endings, dependent nouns, and auxiliaries keep their surface
//     form verbatim (these carry the error signal directly)
//   - nouns emit tag + "_O"/"_X" by final consonant of the surface
//   - verbs and adjectives additionally emit "_P"/"_N" by vowel harmony
//   - every other tag is emitted bare
//
// The per-morpheme parts are concatenated without separators. Morphemes with
// an empty surface are skipped.
func StandardizeWord(word morph.Word) string {
	var b strings.Builder
	for _, m := range word.Morphemes {
		if m.Surface == "" {
			continue
		}
		switch {
		case morph.IsParticle(m.Tag) || morph.IsEnding(m.Tag) ||
			morph.IsDependentNoun(m.Tag) || morph.IsAuxiliary(m.Tag):
			b.WriteString(m.Surface)
		case morph.IsNoun(m.Tag) || morph.IsVerb(m.Tag) || morph.IsAdjective(m.Tag):
			b.WriteString(m.Tag)
			if morph.HasFinalConsonant(m.Surface) {
				b.WriteString("_O")
			} else {
				b.WriteString("_X")
			}
			if morph.IsVerb(m.Tag) || morph.IsAdjective(m.Tag) {
				if morph.HasPositiveVowel(m.Surface) {
					b.WriteString("_P")
				} else {
					b.WriteString("_N")
				}
			}
		default:
			b.WriteString(m.Tag)
		}
	}
	return b.String()
}

// Standardize builds the full-text query string for an analyzed sentence:
// standardized words joined by single spaces, empty words dropped.
func Standardize(words []morph.Word) string {
	parts := make([]string, 0, len(words))
	for _, w := range words {
		if s := StandardizeWord(w); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, " ")
}
