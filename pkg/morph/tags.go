package morph

// Tag category sets for the Sejong tag set emitted by the analysis sidecar.
// Membership drives both the error-likelihood scorer and the lexical
// standardization transform.
var (
	nounTags          = tagSet("NNG", "NNP", "NR", "NP")
	dependentNounTags = tagSet("NNB")
	verbTags          = tagSet("VV", "VCP", "VCN")
	auxiliaryTags     = tagSet("VX")
	adjectiveTags     = tagSet("VA")
	particleTags      = tagSet("JKS", "JKC", "JKG", "JKO", "JKB", "JKV", "JKQ", "JX", "JC")
	endingTags        = tagSet("EP", "EF", "EC", "ETN", "ETM")
	foreignSymbolTags = tagSet("SL", "SW")
)

func tagSet(tags ...string) map[string]struct{} {
	m := make(map[string]struct{}, len(tags))
	for _, t := range tags {
		m[t] = struct{}{}
	}
	return m
}

// IsNoun reports whether tag is a (non-dependent) noun tag.
func IsNoun(tag string) bool { _, ok := nounTags[tag]; return ok }

// IsDependentNoun reports whether tag is the dependent-noun tag.
func IsDependentNoun(tag string) bool { _, ok := dependentNounTags[tag]; return ok }

// IsVerb reports whether tag is a verb (or copula) tag.
func IsVerb(tag string) bool { _, ok := verbTags[tag]; return ok }

// IsAuxiliary reports whether tag is the auxiliary-predicate tag.
func IsAuxiliary(tag string) bool { _, ok := auxiliaryTags[tag]; return ok }

// IsAdjective reports whether tag is the adjective tag.
func IsAdjective(tag string) bool { _, ok := adjectiveTags[tag]; return ok }

// IsParticle reports whether tag is a particle (josa) tag.
func IsParticle(tag string) bool { _, ok := particleTags[tag]; return ok }

// IsEnding reports whether tag is a verbal-ending (eomi) tag.
func IsEnding(tag string) bool { _, ok := endingTags[tag]; return ok }

// IsForeignOrSymbol reports whether tag marks foreign text or a symbol.
func IsForeignOrSymbol(tag string) bool { _, ok := foreignSymbolTags[tag]; return ok }

// IsPredicate reports whether tag marks a predicate candidate (verb or
// adjective).
func IsPredicate(tag string) bool { return IsVerb(tag) || IsAdjective(tag) }

// Hangul syllable block boundaries and jamo arithmetic. A precomposed
// syllable decomposes as ((code - 0xAC00) / 28 / 21, (code-0xAC00) / 28 % 21,
// (code - 0xAC00) % 28) = (initial, vowel, final).
const (
	hangulBase = 0xAC00
	hangulEnd  = 0xD7A3
)

// HasFinalConsonant reports whether the last rune of s is a Hangul syllable
// with a final consonant (batchim). Non-Hangul trailing runes report false.
func HasFinalConsonant(s string) bool {
	last, ok := lastRune(s)
	if !ok || last < hangulBase || last > hangulEnd {
		return false
	}
	return (last-hangulBase)%28 != 0
}

// HasPositiveVowel reports whether the last rune of s is a Hangul syllable
// whose medial vowel is ㅏ or ㅗ (the "bright" vowels governing vowel
// harmony). Non-Hangul trailing runes report false.
func HasPositiveVowel(s string) bool {
	last, ok := lastRune(s)
	if !ok || last < hangulBase || last > hangulEnd {
		return false
	}
	vowel := ((last - hangulBase) / 28) % 21
	return vowel == 0 || vowel == 8 // ㅏ, ㅗ
}

func lastRune(s string) (rune, bool) {
	var last rune
	found := false
	for _, r := range s {
		last = r
		found = true
	}
	return last, found
}
