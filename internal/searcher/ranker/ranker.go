// Package ranker holds the scoring models. Functions here are pure: callers
// fetch postings and collection statistics and pass them in.
package ranker

import (
	"fmt"
	"math"

	"github.com/Adithya-Monish-Kumar-K/prf-retrieval/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/prf-retrieval/pkg/errors"
)

const (
	DefaultMu = 2500.0
	DefaultK1 = 1.2
	DefaultB  = 0.75
)

// Kind names a scoring model in configuration.
type Kind string

const (
	KindDirichlet Kind = "dirichlet"
	KindBM25      Kind = "bm25"
)

// TermStats are the collection-wide statistics of one term.
type TermStats struct {
	DocFreq          int64
	TotalFreq        int64
	CollectionLength int64
	DocCount         int64
	AvgDocLength     float64
}

// Model scores one (term, document) pair. Score must accept freq == 0, which
// is how documents lacking a query term are completed.
type Model interface {
	Kind() Kind
	Score(freq int, docLen int, stats TermStats) float64
}

// DirichletLM is query likelihood with Dirichlet prior smoothing.
type DirichletLM struct {
	Mu float64
}

func (DirichletLM) Kind() Kind { return KindDirichlet }

func (m DirichletLM) Score(freq int, docLen int, stats TermStats) float64 {
	p := CollectionProbability(stats.TotalFreq, stats.CollectionLength)
	return Dirichlet(float64(freq), docLen, m.Mu, p)
}

type BM25 struct {
	K1 float64
	B  float64
}

func (BM25) Kind() Kind { return KindBM25 }

func (m BM25) Score(freq int, docLen int, stats TermStats) float64 {
	return BM25Weight(float64(freq), float64(docLen), stats.AvgDocLength, stats.DocCount, stats.DocFreq, m.K1, m.B)
}

// New builds the model named by cfg.Model.
func New(cfg config.ScoringConfig) (Model, error) {
	switch Kind(cfg.Model) {
	case KindDirichlet:
		if cfg.Mu <= 0 {
			return nil, fmt.Errorf("dirichlet mu must be positive, got %v: %w", cfg.Mu, apperrors.ErrInvalidConfig)
		}
		return DirichletLM{Mu: cfg.Mu}, nil
	case KindBM25:
		return BM25{K1: cfg.K1, B: cfg.B}, nil
	default:
		return nil, fmt.Errorf("unknown scoring model %q: %w", cfg.Model, apperrors.ErrInvalidConfig)
	}
}

// Dirichlet returns ln((freq + mu*p) / (docLen + mu)).
func Dirichlet(freq float64, docLen int, mu float64, p float64) float64 {
	return math.Log((freq + mu*p) / (float64(docLen) + mu))
}

// CollectionProbability is the Laplace-smoothed probability of a term in the
// collection. It is strictly positive, so unseen terms still score.
func CollectionProbability(totalFreq int64, collectionLength int64) float64 {
	return float64(totalFreq+1) / float64(collectionLength+1)
}

// BM25IDF returns ln((N+1)/(df+0.5)).
func BM25IDF(docCount int64, docFreq int64) float64 {
	return math.Log(float64(docCount+1) / (float64(docFreq) + 0.5))
}

// BM25Weight returns idf * k1*tf / (tf + k1*(1 - b + b*docLen/avgDocLen)).
// It is 0 when avgDocLen is not positive.
func BM25Weight(tf float64, docLen float64, avgDocLen float64, docCount int64, docFreq int64, k1 float64, b float64) float64 {
	if avgDocLen <= 0 {
		return 0
	}
	idf := BM25IDF(docCount, docFreq)
	lengthRatio := docLen / avgDocLen
	denominator := tf + k1*(1-b+b*lengthRatio)
	if denominator == 0 {
		return 0
	}
	return idf * k1 * tf / denominator
}
