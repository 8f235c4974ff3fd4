// Package executor evaluates queries against an Index Service: it scans every
// partition concurrently, merges the partition hit sets, completes missing
// term scores and sums them into the aggregate document score.
package executor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Adithya-Monish-Kumar-K/prf-retrieval/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/prf-retrieval/internal/searcher/merger"
	"github.com/Adithya-Monish-Kumar-K/prf-retrieval/internal/searcher/parser"
	"github.com/Adithya-Monish-Kumar-K/prf-retrieval/internal/searcher/ranker"
	"github.com/Adithya-Monish-Kumar-K/prf-retrieval/pkg/metrics"
)

// IndexService is the read-only view of the index used during evaluation.
// Implementations must allow concurrent calls.
type IndexService interface {
	Partitions() []index.Partition
	DocumentFrequency(term string) int64
	TotalTermFrequency(term string) int64
	CollectionLength() int64
	DocumentCount() int64
	AvgDocLength() float64
	DocumentLength(id int) (int, error)
	DocumentText(id int) (string, error)
	ExternalID(id int) (string, error)
}

type Engine struct {
	index   IndexService
	model   ranker.Model
	tok     parser.Tokenizer
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// New returns an Engine scoring with model. m may be nil.
func New(idx IndexService, model ranker.Model, tok parser.Tokenizer, m *metrics.Metrics) *Engine {
	return &Engine{
		index:   idx,
		model:   model,
		tok:     tok,
		metrics: m,
		logger:  slog.Default().With("component", "query-executor"),
	}
}

func (e *Engine) Index() IndexService {
	return e.index
}

func (e *Engine) Tokenizer() parser.Tokenizer {
	return e.tok
}

func (e *Engine) Model() ranker.Model {
	return e.model
}

// Search parses q.Text and evaluates it. Parse failures wrap ErrQuery; index
// failures wrap ErrIndexCorruption.
func (e *Engine) Search(ctx context.Context, q parser.Query) (*merger.HitSet, error) {
	plan, err := parser.Parse(q.Text, e.tok)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", q.ID, err)
	}
	return e.Execute(ctx, plan)
}

// Execute evaluates a parsed plan. Every hit in the returned set has its
// aggregate Score set.
func (e *Engine) Execute(ctx context.Context, plan *parser.Plan) (*merger.HitSet, error) {
	if plan.Empty() {
		return merger.NewHitSet(), nil
	}
	terms := plan.Distinct()
	stats := make(map[string]ranker.TermStats, len(terms))
	for _, term := range terms {
		stats[term] = e.termStats(term)
	}

	parts := e.index.Partitions()
	partials := make([]*merger.HitSet, len(parts))
	g, gctx := errgroup.WithContext(ctx)
	for i, part := range parts {
		g.Go(func() error {
			hs, err := e.scanPartition(gctx, part, terms, stats)
			if err != nil {
				return fmt.Errorf("partition %d: %w", i, err)
			}
			partials[i] = hs
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	hits := merger.NewHitSet()
	for _, hs := range partials {
		hits.Combine(hs)
	}

	fallbacks := 0
	for _, hit := range hits.Hits() {
		var docLen int
		lengthKnown := false
		completed := make(map[string]float64, len(terms))
		for _, term := range terms {
			if _, ok := hit.TermScores[term]; ok {
				continue
			}
			if !lengthKnown {
				n, err := e.index.DocumentLength(hit.DocID)
				if err != nil {
					return nil, fmt.Errorf("completing document %d: %w", hit.DocID, err)
				}
				docLen, lengthKnown = n, true
			}
			completed[term] = e.model.Score(0, docLen, stats[term])
			fallbacks++
		}
		score := 0.0
		for _, wt := range plan.Terms {
			s, ok := hit.TermScores[wt.Term]
			if !ok {
				s = completed[wt.Term]
			}
			score += wt.Weight * s
		}
		hit.Score = score
	}
	if e.metrics != nil {
		e.metrics.FallbackCompletions.Add(float64(fallbacks))
	}

	e.logger.Debug("query executed",
		"query", plan.RawQuery,
		"terms", len(plan.Terms),
		"partitions", len(parts),
		"candidates", hits.Len(),
		"fallbacks", fallbacks,
	)
	return hits, nil
}

func (e *Engine) scanPartition(ctx context.Context, part index.Partition, terms []string, stats map[string]ranker.TermStats) (*merger.HitSet, error) {
	start := time.Now()
	hs := merger.NewHitSet()
	for _, term := range terms {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		postings, err := part.Postings(term)
		if err != nil {
			return nil, fmt.Errorf("postings for %q: %w", term, err)
		}
		for _, p := range postings {
			docLen, err := e.index.DocumentLength(p.DocID)
			if err != nil {
				return nil, err
			}
			hs.SetTermScore(p.DocID, term, e.model.Score(p.Frequency, docLen, stats[term]))
		}
	}
	if e.metrics != nil {
		e.metrics.PartitionLatency.Observe(time.Since(start).Seconds())
	}
	return hs, nil
}

func (e *Engine) termStats(term string) ranker.TermStats {
	return ranker.TermStats{
		DocFreq:          e.index.DocumentFrequency(term),
		TotalFreq:        e.index.TotalTermFrequency(term),
		CollectionLength: e.index.CollectionLength(),
		DocCount:         e.index.DocumentCount(),
		AvgDocLength:     e.index.AvgDocLength(),
	}
}
