package jobregistry

import (
	"regexp"
	"strings"
)

// stopWords is the closed set of generic English function words dropped
// during keyword extraction.
var stopWords = map[string]struct{}{
	"a": {}, "an": {}, "and": {}, "are": {}, "as": {}, "at": {}, "be": {},
	"by": {}, "for": {}, "from": {}, "has": {}, "he": {}, "in": {}, "is": {},
	"it": {}, "its": {}, "of": {}, "on": {}, "that": {}, "the": {}, "to": {},
	"was": {}, "were": {}, "will": {}, "with": {}, "this": {}, "these": {},
	"those": {}, "i": {}, "you": {}, "we": {}, "they": {}, "them": {},
	"but": {}, "or": {}, "if": {}, "so": {}, "no": {}, "not": {}, "do": {},
	"does": {}, "did": {}, "can": {}, "could": {}, "would": {}, "should": {},
	"about": {}, "into": {}, "than": {}, "then": {}, "there": {}, "here": {},
	"what": {}, "which": {}, "who": {}, "when": {}, "where": {}, "why": {},
	"how": {},
}

// punctuationSplitter is the fixed punctuation class keyword extraction
// splits on, in addition to whitespace.
var punctuationSplitter = regexp.MustCompile(`[\s,.;:!?"'(){}\[\]<>/\\|@#$%^&*_+=~` + "`" + `-]+`)

// neverMatchPattern matches nothing; used when extraction yields no keywords.
// RE2 has no lookaround, so "never matches" is expressed as a character class
// requiring a rune outside the entire valid Unicode range.
const neverMatchPattern = `[^\x{0000}-\x{10FFFF}]`

// extractKeywords turns a free-text prompt into a deduplicated, ordered
// keyword list: lowercase/case-fold, split on whitespace and punctuation,
// drop stop words, drop tokens shorter than 2 runes, dedup preserving
// first-seen order.
func extractKeywords(prompt string) []string {
	folded := strings.ToLower(prompt)
	tokens := punctuationSplitter.Split(folded, -1)

	seen := make(map[string]struct{}, len(tokens))
	keywords := make([]string, 0, len(tokens))

	for _, tok := range tokens {
		if tok == "" {
			continue
		}
		if len([]rune(tok)) < 2 {
			continue
		}
		if _, stop := stopWords[tok]; stop {
			continue
		}
		if _, dup := seen[tok]; dup {
			continue
		}
		seen[tok] = struct{}{}
		keywords = append(keywords, tok)
	}
	return keywords
}

// buildMatchRegex compiles the disjunction-of-escaped-alternatives pattern
// used to test post text against a job's keywords: (?i)(?:\bkw1\b|\bkw2\b|...).
// A \b anchor is placed only at a keyword edge that is an ASCII word
// character, so a keyword such as "c++" still matches at the end of a word.
// An empty keyword set compiles to a pattern that never matches.
func buildMatchRegex(keywords []string) (*regexp.Regexp, error) {
	if len(keywords) == 0 {
		return regexp.Compile(neverMatchPattern)
	}

	wordChar := regexp.MustCompile(`^\w$`)
	escaped := make([]string, len(keywords))
	for i, kw := range keywords {
		alt := regexp.QuoteMeta(kw)
		if kw != "" && wordChar.MatchString(kw[:1]) {
			alt = `\b` + alt
		}
		if kw != "" && wordChar.MatchString(kw[len(kw)-1:]) {
			alt += `\b`
		}
		escaped[i] = alt
	}
	expr := `(?i)(?:` + strings.Join(escaped, "|") + `)`
	return regexp.Compile(expr)
}
