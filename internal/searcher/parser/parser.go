// Package parser turns query text into the weighted term sequence the
// retrieval engine scores. Plain words go through the index tokenizer; words
// of the form term^weight are taken verbatim with their weight, which is how
// expanded queries are written back as text.
package parser

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	apperrors "github.com/Adithya-Monish-Kumar-K/prf-retrieval/pkg/errors"
)

// Query is one evaluation request. Text is replaced in place when the query
// is expanded.
type Query struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// Tokenizer is the part of the index tokenizer the parser needs.
type Tokenizer interface {
	Tokenize(text string) []string
}

// Normalizer is implemented by tokenizers that can fold the term of a
// weighted word to its indexed form.
type Normalizer interface {
	Normalize(term string) string
}

type WeightedTerm struct {
	Term   string
	Weight float64
}

// Plan is the parsed query. Terms keeps query order and duplicates; a term
// that occurs twice is scored twice.
type Plan struct {
	Terms    []WeightedTerm
	RawQuery string
}

// Distinct returns each term once, in order of first occurrence.
func (p *Plan) Distinct() []string {
	seen := make(map[string]struct{}, len(p.Terms))
	out := make([]string, 0, len(p.Terms))
	for _, wt := range p.Terms {
		if _, ok := seen[wt.Term]; ok {
			continue
		}
		seen[wt.Term] = struct{}{}
		out = append(out, wt.Term)
	}
	return out
}

// Words returns the plain term sequence, ignoring weights.
func (p *Plan) Words() []string {
	out := make([]string, len(p.Terms))
	for i, wt := range p.Terms {
		out[i] = wt.Term
	}
	return out
}

func (p *Plan) Empty() bool {
	return len(p.Terms) == 0
}

// Parse splits text on white space. Plain words go through tok; the term of
// a weighted word ("cat^0.5") is kept whole and only case folded when tok is a
// Normalizer, so serialized expanded queries parse back unchanged. A malformed weighted word such as "^2",
// "cat^" or "cat^x", or a negative or non-finite weight, fails the whole query
// with ErrQuery.
func Parse(text string, tok Tokenizer) (*Plan, error) {
	plan := &Plan{
		Terms:    make([]WeightedTerm, 0),
		RawQuery: text,
	}
	for _, word := range strings.Fields(text) {
		i := strings.LastIndexByte(word, '^')
		if i < 0 {
			for _, term := range tok.Tokenize(word) {
				plan.Terms = append(plan.Terms, WeightedTerm{Term: term, Weight: 1})
			}
			continue
		}
		term, raw := word[:i], word[i+1:]
		if term == "" || raw == "" {
			return nil, fmt.Errorf("weighted term %q: %w", word, apperrors.ErrQuery)
		}
		weight, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, fmt.Errorf("weight of %q: %v: %w", word, err, apperrors.ErrQuery)
		}
		if weight < 0 || math.IsNaN(weight) || math.IsInf(weight, 0) {
			return nil, fmt.Errorf("weight of %q must be finite and non-negative: %w", word, apperrors.ErrQuery)
		}
		if n, ok := tok.(Normalizer); ok {
			term = n.Normalize(term)
		}
		plan.Terms = append(plan.Terms, WeightedTerm{Term: term, Weight: weight})
	}
	return plan, nil
}
