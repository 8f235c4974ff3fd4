// Package termvec implements a sparse term-weight vector with length
// bookkeeping, normalization, clipping, interpolation and query clarity.
//
// Length is the sum of the current weights and is kept consistent with the
// weight map after every mutation. A Vector is not safe for concurrent
// mutation.
package termvec

import (
	"log/slog"
	"math"
	"sort"
	"strconv"
	"strings"
)

// StopFunc reports whether a term is a stop word.
type StopFunc func(term string) bool

// DocStats is the slice of the Index Service that ToIDF needs.
type DocStats interface {
	DocumentCount() int64
	DocumentFrequency(term string) int64
}

// CollectionStats is the slice of the Index Service that Clarity needs.
type CollectionStats interface {
	TotalTermFrequency(term string) int64
	CollectionLength() int64
}

// Feature is one (term, weight) entry.
type Feature struct {
	Term   string
	Weight float64
}

type Vector struct {
	weights map[string]float64
	length  float64
	stop    StopFunc
}

func New() *Vector {
	return &Vector{weights: make(map[string]float64)}
}

// NewWithStop returns an empty vector whose Add and Set drop terms for which
// stop returns true. A nil stop disables filtering.
func NewWithStop(stop StopFunc) *Vector {
	v := New()
	v.stop = stop
	return v
}

// FromTerms counts terms into a new vector, one Add per occurrence.
func FromTerms(terms []string, stop StopFunc) *Vector {
	v := NewWithStop(stop)
	for _, t := range terms {
		v.Add(t)
	}
	return v
}

func (v *Vector) isStop(term string) bool {
	return v.stop != nil && v.stop(term)
}

// Add increments the weight of term by one. Stop words are ignored.
func (v *Vector) Add(term string) {
	if v.isStop(term) {
		return
	}
	v.weights[term]++
	v.length++
}

// Set overwrites the weight of term. The previous weight is removed from the
// length before the new one is added, so repeated calls are idempotent. Stop
// words are ignored.
func (v *Vector) Set(term string, weight float64) {
	if v.isStop(term) {
		return
	}
	v.length += weight - v.weights[term]
	v.weights[term] = weight
}

// AddWeight adds weight to term. Unlike Add and Set it bypasses the stop
// filter.
func (v *Vector) AddWeight(term string, weight float64) {
	v.weights[term] += weight
	v.length += weight
}

func (v *Vector) Remove(term string) {
	w, ok := v.weights[term]
	if !ok {
		return
	}
	v.length -= w
	delete(v.weights, term)
}

// Scale multiplies every weight, and the length, by factor.
func (v *Vector) Scale(factor float64) {
	for term, w := range v.weights {
		v.weights[term] = w * factor
	}
	v.length *= factor
}

// Clip keeps the k highest-weighted terms; ties go to the lexicographically
// smaller term. A negative k empties the vector.
func (v *Vector) Clip(k int) {
	if k < 0 {
		k = 0
	}
	if k >= len(v.weights) {
		return
	}
	kept := v.Features()[:k]
	v.weights = make(map[string]float64, k)
	v.length = 0
	for _, f := range kept {
		v.weights[f.Term] = f.Weight
		v.length += f.Weight
	}
}

// Normalize rescales the weights to sum to one. A vector whose weights sum to
// zero becomes all zeros with length zero.
func (v *Vector) Normalize() {
	sum := 0.0
	for _, w := range v.weights {
		sum += w
	}
	v.length = 0
	for term, w := range v.weights {
		if sum == 0 {
			v.weights[term] = 0
			continue
		}
		v.weights[term] = w / sum
		v.length += w / sum
	}
}

// L2Normalize rescales the weights to unit Euclidean norm. It does nothing on
// an empty or all-zero vector.
func (v *Vector) L2Normalize() {
	norm := v.Norm()
	if norm == 0 {
		return
	}
	v.length = 0
	for term, w := range v.weights {
		v.weights[term] = w / norm
		v.length += w / norm
	}
}

// ToIDF replaces every weight tf with tf'*idf where idf is
// log(docCount/(df+1)) and tf' is log(tf+1) when logTF is set.
func (v *Vector) ToIDF(stats DocStats, logTF bool) {
	docCount := float64(stats.DocumentCount())
	v.length = 0
	for term, tf := range v.weights {
		if logTF {
			tf = math.Log(tf + 1)
		}
		idf := math.Log(docCount / (float64(stats.DocumentFrequency(term)) + 1))
		v.weights[term] = tf * idf
		v.length += tf * idf
	}
}

// Clarity is the KL divergence of this vector, read as a distribution, from
// the collection unigram model (cf+1)/collectionLength. Only the vector's own
// terms contribute. It is 0 for a zero-length vector or an empty collection.
func (v *Vector) Clarity(stats CollectionStats) float64 {
	total := float64(stats.CollectionLength())
	if v.length == 0 || total == 0 {
		return 0
	}
	kld := 0.0
	for term, w := range v.weights {
		p := w / v.length
		if p <= 0 {
			continue
		}
		q := float64(stats.TotalTermFrequency(term)+1) / total
		kld += p * math.Log(p/q)
	}
	return kld
}

// Interpolate returns xWeight*x + (1-xWeight)*y over the union of both
// vocabularies. When xWeight is outside [0, 1] it logs a warning and returns
// the plain sum x + y. Neither input is modified.
func Interpolate(x, y *Vector, xWeight float64) *Vector {
	yWeight := 1 - xWeight
	if xWeight < 0 || xWeight > 1 {
		slog.Default().With("component", "termvec").Warn("interpolation weight out of range, summing vectors",
			"x_weight", xWeight,
		)
		xWeight, yWeight = 1, 1
	}
	out := New()
	for term := range x.weights {
		out.AddWeight(term, xWeight*x.weights[term]+yWeight*y.weights[term])
	}
	for term := range y.weights {
		if _, seen := x.weights[term]; seen {
			continue
		}
		out.AddWeight(term, yWeight*y.weights[term])
	}
	return out
}

// Clone returns an independent copy sharing the stop filter.
func (v *Vector) Clone() *Vector {
	c := &Vector{
		weights: make(map[string]float64, len(v.weights)),
		length:  v.length,
		stop:    v.stop,
	}
	for term, w := range v.weights {
		c.weights[term] = w
	}
	return c
}

func (v *Vector) Weight(term string) float64 {
	return v.weights[term]
}

func (v *Vector) Contains(term string) bool {
	_, ok := v.weights[term]
	return ok
}

// Len is the number of terms.
func (v *Vector) Len() int {
	return len(v.weights)
}

// Length is the cached sum of weights.
func (v *Vector) Length() float64 {
	return v.length
}

// Norm is the Euclidean norm of the weights.
func (v *Vector) Norm() float64 {
	sum := 0.0
	for _, w := range v.weights {
		sum += w * w
	}
	return math.Sqrt(sum)
}

// Terms returns the vocabulary in lexicographic order.
func (v *Vector) Terms() []string {
	terms := make([]string, 0, len(v.weights))
	for term := range v.weights {
		terms = append(terms, term)
	}
	sort.Strings(terms)
	return terms
}

// Features returns the entries ordered by weight descending, then term.
func (v *Vector) Features() []Feature {
	out := make([]Feature, 0, len(v.weights))
	for term, w := range v.weights {
		out = append(out, Feature{Term: term, Weight: w})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Weight != out[j].Weight {
			return out[i].Weight > out[j].Weight
		}
		return out[i].Term < out[j].Term
	})
	return out
}

// Format renders the top k features as "weight term" lines, weights with at
// most nine decimals.
func (v *Vector) Format(k int) string {
	var b strings.Builder
	for i, f := range v.Features() {
		if i >= k {
			break
		}
		b.WriteString(formatWeight(f.Weight))
		b.WriteByte(' ')
		b.WriteString(f.Term)
		b.WriteByte('\n')
	}
	return b.String()
}

func (v *Vector) String() string {
	return v.Format(len(v.weights))
}

func formatWeight(w float64) string {
	s := strconv.FormatFloat(w, 'f', 9, 64)
	s = strings.TrimRight(s, "0")
	s = strings.TrimSuffix(s, ".")
	if s == "-0" {
		s = "0"
	}
	return s
}
