// Package expansion implements Rocchio pseudo-relevance feedback: the top
// documents of an initial retrieval are turned into BM25-weighted term
// vectors, summed, mixed with the query vector and clipped to the strongest
// terms.
package expansion

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/prf-retrieval/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/prf-retrieval/internal/searcher/merger"
	"github.com/Adithya-Monish-Kumar-K/prf-retrieval/internal/searcher/parser"
	"github.com/Adithya-Monish-Kumar-K/prf-retrieval/internal/searcher/ranker"
	"github.com/Adithya-Monish-Kumar-K/prf-retrieval/internal/searcher/termvec"
	"github.com/Adithya-Monish-Kumar-K/prf-retrieval/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/prf-retrieval/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/prf-retrieval/pkg/metrics"
)

// Query vector weighting schemes.
const (
	WeightingBM25 = "bm25"
	WeightingRaw  = "raw"
)

// Tokenizer is the index tokenizer, including its stop list.
type Tokenizer interface {
	Tokenize(text string) []string
	IsStopWord(term string) bool
}

type Config struct {
	Alpha   float64
	Beta    float64
	FbDocs  int
	FbTerms int
	// QueryWeighting selects BM25 or raw counts for the original query terms.
	QueryWeighting  string
	FilterStopWords bool
	K1              float64
	B               float64
}

// ConfigFrom builds a Config from the feedback and scoring sections.
func ConfigFrom(fb config.FeedbackConfig, sc config.ScoringConfig) Config {
	return Config{
		Alpha:           fb.Alpha,
		Beta:            fb.Beta,
		FbDocs:          fb.FbDocs,
		FbTerms:         fb.FbTerms,
		QueryWeighting:  fb.QueryWeighting,
		FilterStopWords: fb.FilterStopWords,
		K1:              sc.K1,
		B:               sc.B,
	}
}

type Rocchio struct {
	cfg     Config
	engine  *executor.Engine
	tok     Tokenizer
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// New validates cfg and returns an expander. m may be nil.
func New(cfg Config, engine *executor.Engine, tok Tokenizer, m *metrics.Metrics) (*Rocchio, error) {
	if cfg.FbDocs <= 0 {
		return nil, fmt.Errorf("rocchio fbDocs must be positive, got %d: %w", cfg.FbDocs, apperrors.ErrInvalidConfig)
	}
	if cfg.FbTerms <= 0 {
		return nil, fmt.Errorf("rocchio fbTerms must be positive, got %d: %w", cfg.FbTerms, apperrors.ErrInvalidConfig)
	}
	switch cfg.QueryWeighting {
	case "":
		cfg.QueryWeighting = WeightingBM25
	case WeightingBM25, WeightingRaw:
	default:
		return nil, fmt.Errorf("unknown query weighting %q: %w", cfg.QueryWeighting, apperrors.ErrInvalidConfig)
	}
	return &Rocchio{
		cfg:     cfg,
		engine:  engine,
		tok:     tok,
		metrics: m,
		logger:  slog.Default().With("component", "rocchio"),
	}, nil
}

// Expand runs the initial retrieval for q and returns the expanded query
// vector, holding at most FbTerms terms.
func (r *Rocchio) Expand(ctx context.Context, q parser.Query) (*termvec.Vector, error) {
	plan, err := parser.Parse(q.Text, r.tok)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", q.ID, err)
	}
	hits, err := r.engine.Execute(ctx, plan)
	if err != nil {
		return nil, fmt.Errorf("initial retrieval for %s: %w", q.ID, err)
	}
	top := merger.TopK(hits, r.cfg.FbDocs)

	var stop termvec.StopFunc
	if r.cfg.FilterStopWords {
		stop = r.tok.IsStopWord
	}

	feedback := termvec.New()
	for _, hit := range top {
		text, err := r.engine.Index().DocumentText(hit.DocID)
		if err != nil {
			return nil, fmt.Errorf("feedback document %d: %w", hit.DocID, err)
		}
		r.addBM25(feedback, termvec.FromTerms(r.tok.Tokenize(text), stop))
	}
	// scaled by the configured count even when fewer documents were found
	feedback.Scale(r.cfg.Beta / float64(r.cfg.FbDocs))

	queryVec := termvec.FromTerms(plan.Words(), nil)
	if r.cfg.QueryWeighting == WeightingBM25 {
		weighted := termvec.New()
		r.addBM25(weighted, queryVec)
		queryVec = weighted
	}
	queryVec.Scale(r.cfg.Alpha)

	for _, f := range queryVec.Features() {
		feedback.AddWeight(f.Term, f.Weight)
	}
	feedback.Clip(r.cfg.FbTerms)

	if r.metrics != nil {
		r.metrics.ExpansionTerms.Observe(float64(feedback.Len()))
	}
	r.logger.Debug("query expanded",
		"query_id", q.ID,
		"feedback_docs", len(top),
		"terms", feedback.Len(),
	)
	return feedback, nil
}

// ExpandQuery replaces q.Text with the serialized expanded query.
func (r *Rocchio) ExpandQuery(ctx context.Context, q *parser.Query) error {
	vec, err := r.Expand(ctx, *q)
	if err != nil {
		return err
	}
	q.Text = Serialize(vec)
	return nil
}

// addBM25 adds the BM25 weight of every term of doc into sum. The document
// length is doc's own token count.
func (r *Rocchio) addBM25(sum *termvec.Vector, doc *termvec.Vector) {
	idx := r.engine.Index()
	docCount := idx.DocumentCount()
	avgDocLen := idx.AvgDocLength()
	for _, term := range doc.Terms() {
		w := ranker.BM25Weight(doc.Weight(term), doc.Length(), avgDocLen,
			docCount, idx.DocumentFrequency(term), r.cfg.K1, r.cfg.B)
		sum.AddWeight(term, w)
	}
}

// Serialize writes vec as space separated term^weight pairs, strongest first.
// The output parses back to the same terms and weights.
func Serialize(vec *termvec.Vector) string {
	features := vec.Features()
	parts := make([]string, len(features))
	for i, f := range features {
		parts[i] = f.Term + "^" + strconv.FormatFloat(f.Weight, 'g', -1, 64)
	}
	return strings.Join(parts, " ")
}
