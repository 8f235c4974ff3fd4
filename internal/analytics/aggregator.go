package analytics

import (
	"context"
	"log/slog"
	"math"
	"sort"
	"sync"

	"github.com/Adithya-Monish-Kumar-K/prf-retrieval/pkg/kafka"
)

// RunStats summarizes one run. Percentiles use nearest-rank on the sorted
// latencies. For a windowed aggregator the percentiles and the query ID lists
// cover only the most recent events; counters and averages cover all of them.
type RunStats struct {
	RunID             string   `json:"run_id"`
	Queries           int64    `json:"queries"`
	Expanded          int64    `json:"expanded"`
	CacheHits         int64    `json:"cache_hits"`
	ZeroResultCount   int64    `json:"zero_result_count"`
	QueryErrors       int64    `json:"query_errors"`
	AvgLatencyMs      float64  `json:"avg_latency_ms"`
	P50LatencyMs      float64  `json:"p50_latency_ms"`
	P95LatencyMs      float64  `json:"p95_latency_ms"`
	P99LatencyMs      float64  `json:"p99_latency_ms"`
	AvgClarity        float64  `json:"avg_clarity"`
	ZeroResultQueries []string `json:"zero_result_queries"`
	FailedQueries     []string `json:"failed_queries"`
}

type Aggregator struct {
	mu          sync.Mutex
	runID       string
	queries     int64
	expanded    int64
	cacheHits   int64
	queryErrors int64
	clarity     float64
	latencySum  float64
	zeroCount   int64
	latencies   []float64
	next        int
	window      int
	zeroResult  []string
	failed      []string
	logger      *slog.Logger
}

// NewAggregator returns an aggregator for runID. An empty runID accepts
// events of every run.
func NewAggregator(runID string) *Aggregator {
	return &Aggregator{
		runID:     runID,
		latencies: make([]float64, 0, 256),
		logger:    slog.Default().With("component", "analytics-aggregator"),
	}
}

// NewWindowedAggregator is NewAggregator with memory bounded by window: only
// the last window latencies and query IDs are kept. A long-running server
// uses it for its session statistics.
func NewWindowedAggregator(runID string, window int) *Aggregator {
	a := NewAggregator(runID)
	if window > 0 {
		a.window = window
	}
	return a
}

// Record adds one event. Events of other runs are ignored.
func (a *Aggregator) Record(event QueryEvent) {
	if a.runID != "" && event.RunID != a.runID {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	a.queries++
	if event.Expanded {
		a.expanded++
	}
	if event.CacheHit {
		a.cacheHits++
	}
	switch event.Outcome {
	case OutcomeZeroResult:
		a.zeroCount++
		a.zeroResult = keepLast(append(a.zeroResult, event.QueryID), a.window)
	case OutcomeQueryError, OutcomeError:
		a.queryErrors++
		a.failed = keepLast(append(a.failed, event.QueryID), a.window)
	}
	a.clarity += event.Clarity
	a.latencySum += event.LatencyMs
	if a.window > 0 && len(a.latencies) == a.window {
		a.latencies[a.next] = event.LatencyMs
		a.next = (a.next + 1) % a.window
		return
	}
	a.latencies = append(a.latencies, event.LatencyMs)
}

func keepLast(ids []string, n int) []string {
	if n > 0 && len(ids) > n {
		return ids[len(ids)-n:]
	}
	return ids
}

func (a *Aggregator) Stats() RunStats {
	a.mu.Lock()
	defer a.mu.Unlock()

	stats := RunStats{
		RunID:             a.runID,
		Queries:           a.queries,
		Expanded:          a.expanded,
		CacheHits:         a.cacheHits,
		ZeroResultCount:   a.zeroCount,
		QueryErrors:       a.queryErrors,
		ZeroResultQueries: sortedCopy(a.zeroResult),
		FailedQueries:     sortedCopy(a.failed),
	}
	if len(a.latencies) > 0 {
		sorted := make([]float64, len(a.latencies))
		copy(sorted, a.latencies)
		sort.Float64s(sorted)

		stats.P50LatencyMs = percentile(sorted, 50)
		stats.P95LatencyMs = percentile(sorted, 95)
		stats.P99LatencyMs = percentile(sorted, 99)
	}
	if a.queries > 0 {
		stats.AvgLatencyMs = a.latencySum / float64(a.queries)
		stats.AvgClarity = a.clarity / float64(a.queries)
	}
	return stats
}

// HandleEvent decodes run events from Kafka into agg.
func HandleEvent(agg *Aggregator) kafka.MessageHandler {
	return func(ctx context.Context, key []byte, value []byte) error {
		event, err := kafka.DecodeJSON[QueryEvent](value)
		if err != nil {
			// undecodable events are skipped, not retried
			agg.logger.Error("failed to decode run event", "key", string(key), "error", err)
			return nil
		}
		agg.Record(event)
		return nil
	}
}

// percentile returns the nearest-rank pct-th percentile: the smallest value
// with at least pct percent of the values at or below it.
func percentile(sorted []float64, pct int) float64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(math.Ceil(float64(pct)/100*float64(len(sorted)))) - 1
	idx = max(0, min(idx, len(sorted)-1))
	return sorted[idx]
}

func sortedCopy(ids []string) []string {
	out := make([]string, len(ids))
	copy(out, ids)
	sort.Strings(out)
	return out
}
