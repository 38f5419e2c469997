package jobregistry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractKeywordsDropsStopWordsAndShortTokens(t *testing.T) {
	got := extractKeywords("The quick, brown fox is an AI agent!")
	assert.Equal(t, []string{"quick", "brown", "fox", "ai", "agent"}, got)
}

func TestExtractKeywordsDeduplicatesPreservingOrder(t *testing.T) {
	got := extractKeywords("rust rust golang RUST golang")
	assert.Equal(t, []string{"rust", "golang"}, got)
}

func TestExtractKeywordsStopWordOnlyPromptYieldsEmptySet(t *testing.T) {
	got := extractKeywords("is the a of")
	assert.Empty(t, got)
}

func TestBuildMatchRegexMatchesAnyAlternative(t *testing.T) {
	re, err := buildMatchRegex([]string{"golang", "rust"})
	require.NoError(t, err)

	assert.True(t, re.MatchString("I love Golang concurrency"))
	assert.True(t, re.MatchString("rewriting it in RUST"))
	assert.False(t, re.MatchString("python is fine too"))
	assert.False(t, re.MatchString("golanguage is not a word boundary match"))
}

func TestBuildMatchRegexEscapesSpecialCharacters(t *testing.T) {
	re, err := buildMatchRegex([]string{"c++", "a.b"})
	require.NoError(t, err)

	assert.True(t, re.MatchString("who still writes c++"))
	assert.True(t, re.MatchString("the value is a.b today"))
	assert.False(t, re.MatchString("axb should not match"))
}

func TestBuildMatchRegexEmptyKeywordsNeverMatches(t *testing.T) {
	re, err := buildMatchRegex(nil)
	require.NoError(t, err)

	assert.False(t, re.MatchString(""))
	assert.False(t, re.MatchString("anything at all"))
}
