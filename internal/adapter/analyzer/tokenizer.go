package analyzer

import (
	"strings"
	"unicode"

	lru "github.com/hashicorp/golang-lru/v2"
)

const (
	// MaxTokenLen drops runs that are almost never words: base64 blobs,
	// hashes and OCR noise.
	MaxTokenLen = 32

	stemCacheSize = 8192
)

// Tokenizer turns document prose into index terms: lower-cased words with
// stopwords dropped and, optionally, Porter stems. It is safe for
// concurrent use.
type Tokenizer struct {
	stemmer   *PorterStemmer
	stems     *lru.Cache[string, string]
	stopwords map[string]struct{}
}

// NewTokenizer creates a tokenizer. Stems are memoised since document
// vocabularies repeat heavily.
func NewTokenizer(useStemming bool) *Tokenizer {
	t := &Tokenizer{stopwords: defaultStopwords()}
	if useStemming {
		t.stemmer = NewPorterStemmer()
		t.stems, _ = lru.New[string, string](stemCacheSize)
	}
	return t
}

// Tokenize splits text into terms in reading order.
func (t *Tokenizer) Tokenize(text string) []string {
	words := splitWords(text)
	tokens := make([]string, 0, len(words))

	for _, word := range words {
		if len(word) > MaxTokenLen {
			continue
		}
		word = strings.ToLower(word)
		if len([]rune(word)) < 2 {
			continue
		}
		if _, isStop := t.stopwords[word]; isStop {
			continue
		}
		tokens = append(tokens, t.stem(word))
	}

	return tokens
}

func (t *Tokenizer) stem(word string) string {
	if t.stemmer == nil {
		return word
	}
	if s, ok := t.stems.Get(word); ok {
		return s
	}
	s := t.stemmer.Stem(word)
	t.stems.Add(word, s)
	return s
}

// TermFrequencies tokenizes text and counts each resulting term.
func (t *Tokenizer) TermFrequencies(text string) map[string]int {
	tokens := t.Tokenize(text)
	tf := make(map[string]int, len(tokens))
	for _, tok := range tokens {
		tf[tok]++
	}
	return tf
}

// Stemming reports whether tokens are reduced to their Porter stems.
func (t *Tokenizer) Stemming() bool {
	return t.stemmer != nil
}

// splitWords splits text on anything that is not a letter or digit.
// Apostrophes inside a word are elided, so "don't" and "dont" match.
func splitWords(text string) []string {
	var words []string
	var current strings.Builder

	flush := func() {
		if current.Len() > 0 {
			words = append(words, current.String())
			current.Reset()
		}
	}

	runes := []rune(text)
	for i, r := range runes {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			current.WriteRune(r)
		case isApostrophe(r) && current.Len() > 0 && i+1 < len(runes) && unicode.IsLetter(runes[i+1]):
			// elided
		default:
			flush()
		}
	}
	flush()

	return words
}

func isApostrophe(r rune) bool {
	return r == '\'' || r == '’'
}

// defaultStopwords returns a set of common English stopwords.
func defaultStopwords() map[string]struct{} {
	stops := []string{
		"a", "an", "and", "are", "as", "at", "be", "by", "for",
		"from", "has", "he", "in", "is", "it", "its", "of", "on",
		"that", "the", "to", "was", "were", "will", "with", "this",
		"have", "had", "but", "not", "you", "your", "we", "our",
		"they", "their", "she", "her", "his", "if", "or", "so",
		"no", "can", "do", "does", "did", "been", "being", "would",
		"could", "should", "may", "might", "must", "shall", "which",
		"who", "whom", "what", "when", "where", "why", "how", "all",
		"each", "every", "both", "few", "more", "most", "other",
		"some", "such", "than", "too", "very", "just", "also",
		"into", "about", "there", "these", "those", "them", "then",
		"me", "my", "us", "am", "dont", "isnt",
	}
	m := make(map[string]struct{}, len(stops))
	for _, s := range stops {
		m[s] = struct{}{}
	}
	return m
}
