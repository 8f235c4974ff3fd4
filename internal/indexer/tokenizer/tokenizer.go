// Package tokenizer turns document and query text into index terms. The same
// Tokenizer must be used to build the index and to evaluate queries, so its
// rules are fully determined by Config.
package tokenizer

import (
	"strings"
	"unicode"
)

var stopWords = map[string]struct{}{
	"a": {}, "an": {}, "and": {}, "are": {}, "as": {}, "at": {},
	"be": {}, "by": {}, "for": {}, "from": {}, "has": {}, "he": {},
	"in": {}, "is": {}, "it": {}, "its": {}, "of": {}, "on": {},
	"or": {}, "that": {}, "the": {}, "to": {}, "was": {}, "were": {},
	"will": {}, "with": {}, "this": {}, "but": {}, "they": {},
	"have": {}, "had": {}, "what": {}, "when": {}, "where": {},
	"who": {}, "which": {}, "their": {}, "if": {}, "each": {},
	"do": {}, "not": {}, "no": {}, "so": {}, "can": {},
}

const (
	// ModeWhitespace splits on runs of white space and keeps punctuation.
	ModeWhitespace = "whitespace"
	// ModeStandard splits on every non-letter, non-digit rune.
	ModeStandard = "standard"
)

type Config struct {
	Mode      string
	Lowercase bool
	Stem      bool
	// StopWords drops stop words while tokenizing. IsStopWord answers
	// regardless of this flag.
	StopWords bool
	ExtraStop []string
	MinLength int
}

type Tokenizer struct {
	cfg  Config
	stop map[string]struct{}
}

func New(cfg Config) *Tokenizer {
	if cfg.Mode == "" {
		cfg.Mode = ModeStandard
	}
	stop := make(map[string]struct{}, len(stopWords)+len(cfg.ExtraStop))
	for w := range stopWords {
		stop[w] = struct{}{}
	}
	for _, w := range cfg.ExtraStop {
		stop[strings.ToLower(w)] = struct{}{}
	}
	return &Tokenizer{cfg: cfg, stop: stop}
}

// Whitespace returns the tokenizer the reference collections were indexed
// with: white-space splitting, no case folding, no stemming.
func Whitespace() *Tokenizer {
	return New(Config{Mode: ModeWhitespace})
}

// Tokenize returns the terms of text in order, duplicates included.
func (t *Tokenizer) Tokenize(text string) []string {
	if t.cfg.Lowercase {
		text = strings.ToLower(text)
	}
	var words []string
	switch t.cfg.Mode {
	case ModeWhitespace:
		words = strings.Fields(text)
	default:
		words = strings.FieldsFunc(text, func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsDigit(r)
		})
	}
	terms := make([]string, 0, len(words))
	for _, word := range words {
		if len(word) < t.cfg.MinLength {
			continue
		}
		if t.cfg.StopWords && t.IsStopWord(word) {
			continue
		}
		if t.cfg.Stem {
			word = stem(word)
			if word == "" {
				continue
			}
		}
		terms = append(terms, word)
	}
	return terms
}

// Normalize folds a single, already split term the way Tokenize would. Only
// case folding is applied: the stemmer is not idempotent, so re-stemming an
// analyzed term could change it.
func (t *Tokenizer) Normalize(term string) string {
	if t.cfg.Lowercase {
		return strings.ToLower(term)
	}
	return term
}

// IsStopWord reports whether term is on the stop list. The check is case
// insensitive.
func (t *Tokenizer) IsStopWord(term string) bool {
	_, ok := t.stop[strings.ToLower(term)]
	return ok
}

// stem applies a simple suffix-stripping stemmer to the given word.
func stem(word string) string {
	suffixes := []struct {
		suffix      string
		replacement string
		minLen      int
	}{
		{"ational", "ate", 2},
		{"tional", "tion", 2},
		{"encies", "ence", 2},
		{"ances", "ance", 2},
		{"ments", "ment", 2},
		{"izing", "ize", 2},
		{"ating", "ate", 2},
		{"iness", "y", 2},
		{"ously", "ous", 2},
		{"ively", "ive", 2},
		{"eness", "ene", 2},
		{"tion", "t", 3},
		{"sion", "s", 3},
		{"ying", "y", 2},
		{"ling", "l", 3},
		{"ies", "y", 2},
		{"ing", "", 3},
		{"ers", "er", 2},
		{"est", "", 3},
		{"ful", "", 3},
		{"ous", "", 3},
		{"ess", "", 3},
		{"ble", "", 3},
		{"ed", "", 3},
		{"er", "", 3},
		{"ly", "", 3},
		{"es", "", 3},
		{"ss", "ss", 2},
		{"s", "", 3},
	}
	for _, rule := range suffixes {
		if strings.HasSuffix(word, rule.suffix) {
			newWord := word[:len(word)-len(rule.suffix)] + rule.replacement
			if len(newWord) >= rule.minLen {
				return newWord
			}
		}
	}
	return word
}
