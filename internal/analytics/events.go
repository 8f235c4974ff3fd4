// Package analytics records one event per evaluated query. Events are
// aggregated into a run summary in process and, when Kafka is enabled,
// published to the run-events topic so that `harness events` can rebuild the
// same summary elsewhere.
package analytics

import "time"

// Outcome classifies how a query evaluation ended.
type Outcome string

const (
	OutcomeOK         Outcome = "ok"
	OutcomeZeroResult Outcome = "zero_result"
	OutcomeQueryError Outcome = "query_error"
	OutcomeError      Outcome = "error"
)

type QueryEvent struct {
	RunID     string    `json:"run_id"`
	QueryID   string    `json:"query_id"`
	Query     string    `json:"query"`
	Expanded  bool      `json:"expanded"`
	Terms     int       `json:"terms"`
	Returned  int       `json:"returned"`
	LatencyMs float64   `json:"latency_ms"`
	CacheHit  bool      `json:"cache_hit"`
	Clarity   float64   `json:"clarity"`
	Outcome   Outcome   `json:"outcome"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	RequestID string    `json:"request_id,omitempty"`
}
