package executor

import (
	"context"
	"errors"
	"fmt"
	"math"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/Adithya-Monish-Kumar-K/prf-retrieval/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/prf-retrieval/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/prf-retrieval/internal/searcher/merger"
	"github.com/Adithya-Monish-Kumar-K/prf-retrieval/internal/searcher/parser"
	"github.com/Adithya-Monish-Kumar-K/prf-retrieval/internal/searcher/ranker"
	"github.com/Adithya-Monish-Kumar-K/prf-retrieval/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/prf-retrieval/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/prf-retrieval/pkg/metrics"
)

const tol = 1e-12

// buildIndex indexes docs in order, flushing after the documents listed in
// flushAfter so the collection spans several partitions.
func buildIndex(t *testing.T, docs []string, flushAfter ...int) *indexer.Engine {
	t.Helper()
	e, err := indexer.NewEngine(config.IndexConfig{DataDir: t.TempDir()}, tokenizer.Whitespace(), nil)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { e.Close() })
	flush := make(map[int]bool)
	for _, i := range flushAfter {
		flush[i] = true
	}
	for i, text := range docs {
		if _, err := e.IndexDocument(fmt.Sprintf("D%d", i), text); err != nil {
			t.Fatal(err)
		}
		if flush[i] {
			if err := e.Flush(); err != nil {
				t.Fatal(err)
			}
		}
	}
	return e
}

func newEngine(idx IndexService) *Engine {
	return New(idx, ranker.DirichletLM{Mu: 2500}, tokenizer.Whitespace(), nil)
}

func TestCatExample(t *testing.T) {
	// doc A: length 10 with cat x3; doc B: length 5 without cat
	idx := buildIndex(t, []string{
		"cat cat cat a b c d e f g",
		"z w w w w",
	}, 0)
	eng := newEngine(idx)

	hits, err := eng.Search(context.Background(), parser.Query{ID: "1", Text: "cat z"})
	if err != nil {
		t.Fatal(err)
	}
	if hits.Len() != 2 {
		t.Fatalf("hits = %d, want 2", hits.Len())
	}

	pCat := 4.0 / 16.0
	pZ := 2.0 / 16.0
	catA := math.Log((3 + 2500*pCat) / 2510)
	catB := math.Log((0 + 2500*pCat) / 2505)
	zA := math.Log((0 + 2500*pZ) / 2510)
	zB := math.Log((1 + 2500*pZ) / 2505)

	if catA <= catB {
		t.Errorf("cat score of A (%v) should exceed B (%v)", catA, catB)
	}
	a, _ := hits.Get(0)
	b, _ := hits.Get(1)
	if math.Abs(a.TermScores["cat"]-math.Log(628.0/2510)) > tol {
		t.Errorf("A cat = %v, want ln(628/2510)", a.TermScores["cat"])
	}
	if _, ok := a.TermScores["z"]; ok {
		t.Error("fallback scores must not be recorded as partial scores")
	}
	if math.Abs(a.Score-(catA+zA)) > tol {
		t.Errorf("A score = %v, want %v", a.Score, catA+zA)
	}
	if math.Abs(b.Score-(catB+zB)) > tol {
		t.Errorf("B score = %v, want %v", b.Score, catB+zB)
	}
}

func TestCatOnlyRanksA(t *testing.T) {
	idx := buildIndex(t, []string{"cat cat cat a b c d e f g", "z w w w w"})
	hits, err := newEngine(idx).Search(context.Background(), parser.Query{ID: "1", Text: "cat"})
	if err != nil {
		t.Fatal(err)
	}
	ranked := merger.Rank(hits)
	if len(ranked) != 1 || ranked[0].DocID != 0 {
		t.Fatalf("ranked = %+v, want only doc 0", ranked)
	}
	if math.Abs(ranked[0].Score-math.Log(628.0/2510)) > tol {
		t.Errorf("score = %v", ranked[0].Score)
	}
}

func TestAdditiveDecomposition(t *testing.T) {
	docs := []string{
		"apple banana apple",
		"banana cherry",
		"cherry cherry apple date",
		"date",
		"apple banana cherry date egg",
	}
	idx := buildIndex(t, docs, 1, 3)
	eng := newEngine(idx)
	terms := []string{"apple", "banana", "cherry", "egg"}

	hits, err := eng.Search(context.Background(), parser.Query{Text: "apple banana cherry egg"})
	if err != nil {
		t.Fatal(err)
	}
	for _, hit := range hits.Hits() {
		docLen, _ := idx.DocumentLength(hit.DocID)
		text, _ := idx.DocumentText(hit.DocID)
		counts := map[string]int{}
		for _, w := range tokenizer.Whitespace().Tokenize(text) {
			counts[w]++
		}
		want := 0.0
		for _, term := range terms {
			stats := eng.termStats(term)
			want += eng.Model().Score(counts[term], docLen, stats)
		}
		if math.Abs(hit.Score-want) > 1e-9 {
			t.Errorf("doc %d score = %v, want sum of term scores %v", hit.DocID, hit.Score, want)
		}
	}
	if hits.Len() != 4 {
		t.Errorf("candidates = %d, want 4 (doc 3 matches no term)", hits.Len())
	}
}

func TestPartitioningDoesNotChangeScores(t *testing.T) {
	docs := []string{"a b c", "b c d", "c d e", "a a e", "e f"}
	single := newEngine(buildIndex(t, docs))
	split := newEngine(buildIndex(t, docs, 0, 2, 3))

	q := parser.Query{Text: "a c e z"}
	h1, err := single.Search(context.Background(), q)
	if err != nil {
		t.Fatal(err)
	}
	h2, err := split.Search(context.Background(), q)
	if err != nil {
		t.Fatal(err)
	}
	r1, r2 := merger.Rank(h1), merger.Rank(h2)
	if len(r1) != len(r2) {
		t.Fatalf("result sizes differ: %d vs %d", len(r1), len(r2))
	}
	for i := range r1 {
		if r1[i].DocID != r2[i].DocID || math.Abs(r1[i].Score-r2[i].Score) > tol {
			t.Errorf("rank %d: %+v vs %+v", i, r1[i], r2[i])
		}
	}
}

func TestDuplicateAndWeightedTerms(t *testing.T) {
	idx := buildIndex(t, []string{"a b", "b b c"})
	eng := newEngine(idx)
	ctx := context.Background()

	once, _ := eng.Search(ctx, parser.Query{Text: "b"})
	twice, _ := eng.Search(ctx, parser.Query{Text: "b b"})
	weighted, err := eng.Search(ctx, parser.Query{Text: "b^2"})
	if err != nil {
		t.Fatal(err)
	}
	for _, id := range []int{0, 1} {
		o, _ := once.Get(id)
		tw, _ := twice.Get(id)
		w, _ := weighted.Get(id)
		if math.Abs(tw.Score-2*o.Score) > tol || math.Abs(w.Score-2*o.Score) > tol {
			t.Errorf("doc %d: once=%v twice=%v weighted=%v", id, o.Score, tw.Score, w.Score)
		}
	}
}

func TestEmptyQuery(t *testing.T) {
	hits, err := newEngine(buildIndex(t, []string{"a"})).Search(context.Background(), parser.Query{Text: "  "})
	if err != nil {
		t.Fatal(err)
	}
	if hits.Len() != 0 {
		t.Errorf("empty query returned %d hits", hits.Len())
	}
}

func TestUnseenTerm(t *testing.T) {
	hits, err := newEngine(buildIndex(t, []string{"a"})).Search(context.Background(), parser.Query{Text: "zzz"})
	if err != nil {
		t.Fatal(err)
	}
	if hits.Len() != 0 {
		t.Errorf("unseen term returned %d hits", hits.Len())
	}
}

func TestQueryError(t *testing.T) {
	_, err := newEngine(buildIndex(t, []string{"a"})).Search(context.Background(), parser.Query{ID: "7", Text: "a^"})
	if !errors.Is(err, apperrors.ErrQuery) {
		t.Errorf("error = %v, want ErrQuery", err)
	}
}

type corruptIndex struct {
	*indexer.Engine
}

func (corruptIndex) DocumentLength(id int) (int, error) {
	return 0, fmt.Errorf("document %d: %w", id, apperrors.ErrIndexCorruption)
}

func TestIndexCorruptionIsFatal(t *testing.T) {
	idx := corruptIndex{buildIndex(t, []string{"a b", "b"}, 0)}
	_, err := newEngine(idx).Search(context.Background(), parser.Query{Text: "b"})
	if !errors.Is(err, apperrors.ErrIndexCorruption) {
		t.Errorf("error = %v, want ErrIndexCorruption", err)
	}
}

func TestMetrics(t *testing.T) {
	m := metrics.NewWithRegistry(prometheus.NewRegistry())
	idx := buildIndex(t, []string{"a b", "b c"}, 0)
	eng := New(idx, ranker.DirichletLM{Mu: 2500}, tokenizer.Whitespace(), m)
	if _, err := eng.Search(context.Background(), parser.Query{Text: "a c"}); err != nil {
		t.Fatal(err)
	}
	if got := testutil.ToFloat64(m.FallbackCompletions); got != 2 {
		t.Errorf("fallback completions = %v, want 2", got)
	}
	if got := testutil.CollectAndCount(m.PartitionLatency); got != 1 {
		t.Errorf("partition latency series = %d, want 1", got)
	}
}

func BenchmarkSearch(b *testing.B) {
	e, err := indexer.NewEngine(config.IndexConfig{DataDir: b.TempDir()}, tokenizer.Whitespace(), nil)
	if err != nil {
		b.Fatal(err)
	}
	defer e.Close()
	words := []string{"alpha", "beta", "gamma", "delta", "epsilon", "zeta", "eta", "theta"}
	for i := 0; i < 2000; i++ {
		text := ""
		for j := 0; j < 20; j++ {
			text += words[(i*j+j)%len(words)] + " "
		}
		if _, err := e.IndexDocument(fmt.Sprintf("D%d", i), text); err != nil {
			b.Fatal(err)
		}
		if i%500 == 499 {
			if err := e.Flush(); err != nil {
				b.Fatal(err)
			}
		}
	}
	eng := newEngine(e)
	q := parser.Query{Text: "alpha gamma theta"}
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := eng.Search(context.Background(), q); err != nil {
			b.Fatal(err)
		}
	}
}
