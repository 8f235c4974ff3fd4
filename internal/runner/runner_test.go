package runner

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"

	"github.com/Adithya-Monish-Kumar-K/prf-retrieval/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/prf-retrieval/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/prf-retrieval/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/prf-retrieval/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/prf-retrieval/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/prf-retrieval/internal/searcher/expansion"
	"github.com/Adithya-Monish-Kumar-K/prf-retrieval/internal/searcher/parser"
	"github.com/Adithya-Monish-Kumar-K/prf-retrieval/internal/searcher/ranker"
	"github.com/Adithya-Monish-Kumar-K/prf-retrieval/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/prf-retrieval/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/prf-retrieval/pkg/metrics"
)

var corpus = []string{"cat cat dog", "dog emu", "fox"}

func newIndex(t *testing.T) (*indexer.Engine, *tokenizer.Tokenizer) {
	t.Helper()
	tok := tokenizer.New(tokenizer.Config{Mode: tokenizer.ModeWhitespace})
	idx, err := indexer.NewEngine(config.IndexConfig{DataDir: t.TempDir()}, tok, nil)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { idx.Close() })
	for i, text := range corpus {
		if _, err := idx.IndexDocument(fmt.Sprintf("D%d", i), text); err != nil {
			t.Fatal(err)
		}
	}
	return idx, tok
}

func newRunner(t *testing.T, m *metrics.Metrics) *Runner {
	t.Helper()
	idx, tok := newIndex(t)
	return New(executor.New(idx, ranker.DirichletLM{Mu: ranker.DefaultMu}, tok, m), m)
}

func TestRunKeepsOrderAndLimits(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewWithRegistry(reg)
	r := newRunner(t, m)

	queries := []parser.Query{
		{ID: "q1", Text: "dog"},
		{ID: "q2", Text: "cat^x"},
		{ID: "q3", Text: "zebra"},
		{ID: "q4", Text: "cat"},
	}
	res, err := r.Run(context.Background(), queries, Options{ResultCount: 1, Tag: "lm", Workers: 3})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.RunID == "" {
		t.Error("run id not assigned")
	}

	var got []string
	for _, l := range res.Lines() {
		got = append(got, l.String())
	}
	if len(got) != 2 {
		t.Fatalf("lines = %v, want one line for q1 and q4", got)
	}
	if !strings.HasPrefix(got[0], "q1 Q0 D1 1 ") || !strings.HasSuffix(got[0], " lm") {
		t.Errorf("line 0 = %q", got[0])
	}
	if !strings.HasPrefix(got[1], "q4 Q0 D0 1 ") {
		t.Errorf("line 1 = %q", got[1])
	}

	if !errors.Is(res.Outcomes[1].Err, apperrors.ErrQuery) {
		t.Errorf("q2 err = %v, want ErrQuery", res.Outcomes[1].Err)
	}
	if res.Stats.Queries != 4 || res.Stats.QueryErrors != 1 || res.Stats.ZeroResultCount != 1 {
		t.Errorf("stats = %+v", res.Stats)
	}
	if got := testutil.ToFloat64(m.QueriesTotal.WithLabelValues("ok")); got != 2 {
		t.Errorf("ok queries = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.QueriesTotal.WithLabelValues("query_error")); got != 1 {
		t.Errorf("query_error = %v, want 1", got)
	}
}

func TestRunWithExpansion(t *testing.T) {
	idx, tok := newIndex(t)
	eng := executor.New(idx, ranker.DirichletLM{Mu: ranker.DefaultMu}, tok, nil)
	x, err := expansion.New(expansion.Config{
		Alpha: 1, Beta: 0.75, FbDocs: 1, FbTerms: 5,
		QueryWeighting: expansion.WeightingBM25, K1: ranker.DefaultK1, B: ranker.DefaultB,
	}, eng, tok, nil)
	if err != nil {
		t.Fatal(err)
	}
	r := New(eng, nil).WithExpander(x)

	res, err := r.Run(context.Background(), []parser.Query{{ID: "1", Text: "cat"}}, Options{ResultCount: 10, Expand: true})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	out := res.Outcomes[0]
	if !out.Expanded || !strings.Contains(out.Query.Text, "dog^") {
		t.Errorf("expanded text = %q", out.Query.Text)
	}
	// expansion pulls in dog, so D1 is now retrieved as well
	if len(out.Hits) != 2 || out.Hits[0].DocID != 0 {
		t.Errorf("hits = %+v", out.Hits)
	}
	if res.Lines()[0].Tag != "test" {
		t.Errorf("default tag = %q", res.Lines()[0].Tag)
	}
}

func TestRunExpandWithoutExpander(t *testing.T) {
	r := newRunner(t, nil)
	_, err := r.Run(context.Background(), nil, Options{ResultCount: 1, Expand: true})
	if !errors.Is(err, apperrors.ErrInvalidConfig) {
		t.Errorf("err = %v, want ErrInvalidConfig", err)
	}
}

type brokenLengths struct {
	*indexer.Engine
}

func (b brokenLengths) DocumentLength(id int) (int, error) {
	return 0, fmt.Errorf("doc %d: %w", id, apperrors.ErrIndexCorruption)
}

func TestRunAbortsOnCorruption(t *testing.T) {
	idx, tok := newIndex(t)
	r := New(executor.New(brokenLengths{idx}, ranker.DirichletLM{Mu: ranker.DefaultMu}, tok, nil), nil)
	queries := []parser.Query{{ID: "1", Text: "dog"}, {ID: "2", Text: "fox"}}
	_, err := r.Run(context.Background(), queries, Options{ResultCount: 10, Workers: 2})
	if !errors.Is(err, apperrors.ErrIndexCorruption) {
		t.Fatalf("err = %v, want ErrIndexCorruption", err)
	}
	if !apperrors.IsFatal(err) {
		t.Error("corruption must be fatal")
	}
}

type recordingSink struct {
	mu     sync.Mutex
	events []analytics.QueryEvent
}

func (s *recordingSink) Track(e analytics.QueryEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
}

type memStore struct {
	mu   sync.Mutex
	data map[string]string
}

func (m *memStore) Get(ctx context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	if !ok {
		return "", redis.Nil
	}
	return v, nil
}

func (m *memStore) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = string(value.([]byte))
	return nil
}

func (m *memStore) FlushByPattern(ctx context.Context, pattern string) (int64, error) {
	return 0, nil
}

func TestRunCachesAndPublishes(t *testing.T) {
	sink := &recordingSink{}
	qc := cache.New(&memStore{data: map[string]string{}}, time.Minute, "fp", nil)
	r := newRunner(t, nil).WithCache(qc).WithEvents(sink)
	queries := []parser.Query{{ID: "a", Text: "dog"}}

	first, err := r.Run(context.Background(), queries, Options{ResultCount: 10})
	if err != nil {
		t.Fatal(err)
	}
	second, err := r.Run(context.Background(), queries, Options{ResultCount: 10})
	if err != nil {
		t.Fatal(err)
	}
	if first.Outcomes[0].CacheHit || !second.Outcomes[0].CacheHit {
		t.Errorf("cache hits = %v, %v; want false, true", first.Outcomes[0].CacheHit, second.Outcomes[0].CacheHit)
	}
	a, b := first.Lines(), second.Lines()
	if len(a) != len(b) {
		t.Fatalf("cached run has %d lines, want %d", len(b), len(a))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Errorf("line %d: %v != %v", i, a[i], b[i])
		}
	}
	if second.Stats.CacheHits != 1 {
		t.Errorf("CacheHits = %d", second.Stats.CacheHits)
	}

	if len(sink.events) != 2 {
		t.Fatalf("events = %d, want 2", len(sink.events))
	}
	if sink.events[0].RunID != first.RunID || sink.events[1].RunID != second.RunID {
		t.Error("events not tagged with their run")
	}
	if sink.events[0].Terms != 1 || sink.events[0].Returned != 2 {
		t.Errorf("event = %+v", sink.events[0])
	}
}

func TestEvaluateClarity(t *testing.T) {
	r := newRunner(t, nil)
	out, err := r.Evaluate(context.Background(), parser.Query{ID: "1", Text: "fox"}, 0, false)
	if err != nil {
		t.Fatal(err)
	}
	// p(fox|q) = 1, p(fox|C) = (1+1)/6
	want := 1.0 * logRatio(1, 2.0/6)
	if diff := out.Clarity - want; diff > 1e-12 || diff < -1e-12 {
		t.Errorf("clarity = %v, want %v", out.Clarity, want)
	}
}

func logRatio(p, q float64) float64 {
	return math.Log(p / q)
}
