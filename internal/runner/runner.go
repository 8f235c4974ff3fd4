// Package runner evaluates batches of queries into TREC run lines. Queries run
// on a bounded worker pool; results keep the input order. A query that fails
// to parse gets no results and the run continues. Any other failure, index
// corruption in particular, aborts the run.
package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/Adithya-Monish-Kumar-K/prf-retrieval/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/prf-retrieval/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/prf-retrieval/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/prf-retrieval/internal/searcher/expansion"
	"github.com/Adithya-Monish-Kumar-K/prf-retrieval/internal/searcher/merger"
	"github.com/Adithya-Monish-Kumar-K/prf-retrieval/internal/searcher/parser"
	"github.com/Adithya-Monish-Kumar-K/prf-retrieval/internal/searcher/termvec"
	"github.com/Adithya-Monish-Kumar-K/prf-retrieval/internal/trec"
	"github.com/Adithya-Monish-Kumar-K/prf-retrieval/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/prf-retrieval/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/prf-retrieval/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/prf-retrieval/pkg/metrics"
)

// EventSink receives one event per evaluated query. *analytics.Collector
// satisfies it.
type EventSink interface {
	Track(event analytics.QueryEvent)
}

// Options control one batch run.
type Options struct {
	ResultCount int
	Tag         string
	Workers     int
	Expand      bool
}

// OptionsFrom maps run and feedback configuration to Options.
func OptionsFrom(run config.RunConfig, fb config.FeedbackConfig) Options {
	return Options{
		ResultCount: run.ResultCount,
		Tag:         run.Tag,
		Workers:     run.Workers,
		Expand:      fb.Enabled,
	}
}

// Outcome is the evaluation of one query. Query.Text is the text that was
// finally scored. Err is set for per-query failures only.
type Outcome struct {
	Query    parser.Query
	Hits     []merger.ScoredHit
	Lines    []trec.Line
	Expanded bool
	CacheHit bool
	Clarity  float64
	Latency  time.Duration
	Err      error
}

// Kind classifies the outcome for metrics and events.
func (o *Outcome) Kind() analytics.Outcome {
	switch {
	case o.Err != nil:
		return analytics.OutcomeQueryError
	case len(o.Hits) == 0:
		return analytics.OutcomeZeroResult
	default:
		return analytics.OutcomeOK
	}
}

// Result is a finished batch run.
type Result struct {
	RunID      string
	Tag        string
	StartedAt  time.Time
	FinishedAt time.Time
	Outcomes   []*Outcome
	Stats      analytics.RunStats
}

// Lines returns every run line in query order.
func (r *Result) Lines() []trec.Line {
	var lines []trec.Line
	for _, o := range r.Outcomes {
		lines = append(lines, o.Lines...)
	}
	return lines
}

type Runner struct {
	engine   *executor.Engine
	expander *expansion.Rocchio
	cache    *cache.QueryCache
	events   EventSink
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

// New returns a Runner without expansion, caching or event publishing. m
// may be nil.
func New(engine *executor.Engine, m *metrics.Metrics) *Runner {
	return &Runner{
		engine:  engine,
		metrics: m,
		logger:  slog.Default().With("component", "runner"),
	}
}

func (r *Runner) WithExpander(x *expansion.Rocchio) *Runner {
	r.expander = x
	return r
}

func (r *Runner) WithCache(c *cache.QueryCache) *Runner {
	r.cache = c
	return r
}

func (r *Runner) WithEvents(sink EventSink) *Runner {
	r.events = sink
	return r
}

// CanExpand reports whether an expander is configured.
func (r *Runner) CanExpand() bool {
	return r.expander != nil
}

// Run evaluates queries and converts their top ResultCount hits to run lines.
func (r *Runner) Run(ctx context.Context, queries []parser.Query, opts Options) (*Result, error) {
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.Tag == "" {
		opts.Tag = trec.DefaultTag
	}
	if opts.Expand && r.expander == nil {
		return nil, fmt.Errorf("expansion requested without an expander: %w", apperrors.ErrInvalidConfig)
	}

	result := &Result{
		RunID:     uuid.NewString(),
		Tag:       opts.Tag,
		StartedAt: time.Now(),
		Outcomes:  make([]*Outcome, len(queries)),
	}
	agg := analytics.NewAggregator(result.RunID)
	ctx = logger.WithRunID(ctx, result.RunID)
	log := logger.FromContext(ctx).With("component", "runner")
	log.Info("run started",
		"queries", len(queries),
		"workers", opts.Workers,
		"expand", opts.Expand,
		"tag", opts.Tag,
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Workers)
	for i, q := range queries {
		g.Go(func() error {
			out, err := r.Evaluate(gctx, q, opts.ResultCount, opts.Expand)
			if err != nil {
				return fmt.Errorf("query %s: %w", q.ID, err)
			}
			lines, err := trec.Lines(q.ID, out.Hits, opts.ResultCount, r.engine.Index(), opts.Tag)
			if err != nil {
				return fmt.Errorf("query %s: %w", q.ID, err)
			}
			out.Lines = lines
			result.Outcomes[i] = out

			event := r.Event(result.RunID, out)
			agg.Record(event)
			if r.events != nil {
				r.events.Track(event)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		log.Error("run aborted", "error", err)
		return nil, err
	}

	result.FinishedAt = time.Now()
	result.Stats = agg.Stats()
	log.Info("run finished",
		"queries", result.Stats.Queries,
		"zero_result", result.Stats.ZeroResultCount,
		"query_errors", result.Stats.QueryErrors,
		"p50_ms", result.Stats.P50LatencyMs,
		"p95_ms", result.Stats.P95LatencyMs,
		"elapsed", result.FinishedAt.Sub(result.StartedAt).Round(time.Millisecond),
	)
	if len(result.Stats.ZeroResultQueries) > 0 {
		log.Warn("queries without results", "query_ids", result.Stats.ZeroResultQueries)
	}
	return result, nil
}

// Evaluate runs one query, expanding it first when expand is set and an
// expander is configured. It returns the best limit hits; limit <= 0 keeps
// all. Parse failures are reported in Outcome.Err; the returned error is
// reserved for failures that should stop a run.
func (r *Runner) Evaluate(ctx context.Context, q parser.Query, limit int, expand bool) (*Outcome, error) {
	start := time.Now()
	out := &Outcome{Query: q, Expanded: expand && r.expander != nil}

	compute := func() (*cache.Result, error) {
		query := q
		if out.Expanded {
			if err := r.expander.ExpandQuery(ctx, &query); err != nil {
				return nil, err
			}
		}
		hits, err := r.engine.Search(ctx, query)
		if err != nil {
			return nil, err
		}
		return &cache.Result{Text: query.Text, Hits: merger.TopK(hits, limit)}, nil
	}

	var (
		res *cache.Result
		err error
	)
	if r.cache != nil {
		key := q.Text
		if out.Expanded {
			key = "rocchio|" + key
		}
		res, out.CacheHit, err = r.cache.GetOrCompute(ctx, key, limit, compute)
	} else {
		res, err = compute()
	}
	out.Latency = time.Since(start)

	if err != nil {
		if !errors.Is(err, apperrors.ErrQuery) {
			r.count(analytics.OutcomeError)
			return nil, err
		}
		out.Err = err
		r.log(ctx).Warn("query skipped", "query_id", q.ID, "error", err)
		r.observe(out)
		return out, nil
	}

	out.Query.Text = res.Text
	out.Hits = res.Hits
	out.Clarity = r.clarity(out.Query.Text)
	r.observe(out)
	r.log(ctx).Debug("query evaluated",
		"query_id", q.ID,
		"hits", len(out.Hits),
		"expanded", out.Expanded,
		"cache_hit", out.CacheHit,
		"clarity", out.Clarity,
		"latency", out.Latency,
	)
	return out, nil
}

func (r *Runner) log(ctx context.Context) *slog.Logger {
	if logger.RunID(ctx) == "" && logger.RequestID(ctx) == "" {
		return r.logger
	}
	return logger.FromContext(ctx).With("component", "runner")
}

// Event builds the analytics event for out.
func (r *Runner) Event(runID string, out *Outcome) analytics.QueryEvent {
	event := analytics.QueryEvent{
		RunID:     runID,
		QueryID:   out.Query.ID,
		Query:     out.Query.Text,
		Expanded:  out.Expanded,
		Returned:  len(out.Hits),
		LatencyMs: float64(out.Latency.Microseconds()) / 1000,
		CacheHit:  out.CacheHit,
		Clarity:   out.Clarity,
		Outcome:   out.Kind(),
		Timestamp: time.Now().UTC(),
	}
	if out.Err != nil {
		event.Error = out.Err.Error()
	}
	if plan, err := parser.Parse(out.Query.Text, r.engine.Tokenizer()); err == nil {
		event.Terms = len(plan.Distinct())
	}
	return event
}

// clarity is the KL divergence of the weighted query terms from the
// collection model. Unparseable text has clarity 0.
func (r *Runner) clarity(text string) float64 {
	plan, err := parser.Parse(text, r.engine.Tokenizer())
	if err != nil {
		return 0
	}
	vec := termvec.New()
	for _, wt := range plan.Terms {
		vec.AddWeight(wt.Term, wt.Weight)
	}
	return vec.Clarity(r.engine.Index())
}

func (r *Runner) observe(out *Outcome) {
	r.count(out.Kind())
	if r.metrics == nil {
		return
	}
	stage := "initial"
	if out.Expanded {
		stage = "expanded"
	}
	r.metrics.QueryLatency.WithLabelValues(stage).Observe(out.Latency.Seconds())
}

func (r *Runner) count(outcome analytics.Outcome) {
	if r.metrics != nil {
		r.metrics.QueriesTotal.WithLabelValues(string(outcome)).Inc()
	}
}
