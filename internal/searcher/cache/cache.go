// Package cache stores ranked query results in Redis. Keys combine the query
// text, the result limit and a fingerprint of the index and scoring
// configuration, so a changed collection or parameter never reuses stale
// rankings.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/Adithya-Monish-Kumar-K/prf-retrieval/internal/searcher/merger"
	"github.com/Adithya-Monish-Kumar-K/prf-retrieval/pkg/metrics"
	pkgredis "github.com/Adithya-Monish-Kumar-K/prf-retrieval/pkg/redis"
)

const keyPrefix = "retrieval:"

// Store is the subset of *pkgredis.Client the cache uses.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	FlushByPattern(ctx context.Context, pattern string) (int64, error)
}

// Result is one cached evaluation. Text is the query text that was finally
// scored, which differs from the input when the query was expanded.
type Result struct {
	Text string              `json:"text"`
	Hits []merger.ScoredHit `json:"hits"`
}

type QueryCache struct {
	store       Store
	ttl         time.Duration
	fingerprint string
	group       singleflight.Group
	metrics     *metrics.Metrics
	logger      *slog.Logger
	hits        atomic.Int64
	misses      atomic.Int64
}

// New returns a cache over store. m may be nil.
func New(store Store, ttl time.Duration, fingerprint string, m *metrics.Metrics) *QueryCache {
	return &QueryCache{
		store:       store,
		ttl:         ttl,
		fingerprint: fingerprint,
		metrics:     m,
		logger:      slog.Default().With("component", "query-cache"),
	}
}

// Fingerprint hashes everything a ranking depends on besides the query.
func Fingerprint(parts ...any) string {
	hash := sha256.Sum256([]byte(fmt.Sprint(parts...)))
	return fmt.Sprintf("%x", hash[:8])
}

func (c *QueryCache) Get(ctx context.Context, text string, limit int) (*Result, bool) {
	key := c.buildKey(text, limit)
	data, err := c.store.Get(ctx, key)
	if err != nil {
		if !pkgredis.IsNilError(err) {
			c.logger.Error("cache get failed", "key", key, "error", err)
		}
		c.miss()
		return nil, false
	}
	var result Result
	if err := json.Unmarshal([]byte(data), &result); err != nil {
		c.logger.Error("cache unmarshal failed", "key", key, "error", err)
		c.miss()
		return nil, false
	}
	c.hits.Add(1)
	if c.metrics != nil {
		c.metrics.CacheHitsTotal.Inc()
	}
	c.logger.Debug("cache hit", "key", key)
	return &result, true
}

// Set stores result without per-term partial scores.
func (c *QueryCache) Set(ctx context.Context, text string, limit int, result *Result) {
	key := c.buildKey(text, limit)
	slim := Result{Text: result.Text, Hits: make([]merger.ScoredHit, len(result.Hits))}
	for i, h := range result.Hits {
		slim.Hits[i] = merger.ScoredHit{DocID: h.DocID, Score: h.Score}
	}
	data, err := json.Marshal(slim)
	if err != nil {
		c.logger.Error("cache marshal failed", "key", key, "error", err)
		return
	}
	if err := c.store.Set(ctx, key, data, c.ttl); err != nil {
		c.logger.Error("cache set failed", "key", key, "error", err)
	}
}

// GetOrCompute returns the cached result or runs computeFn once per key, even
// when several workers ask for the same query concurrently. The bool reports
// a cache hit.
func (c *QueryCache) GetOrCompute(
	ctx context.Context,
	text string,
	limit int,
	computeFn func() (*Result, error),
) (*Result, bool, error) {
	if result, ok := c.Get(ctx, text, limit); ok {
		return result, true, nil
	}
	key := c.buildKey(text, limit)
	val, err, _ := c.group.Do(key, func() (interface{}, error) {
		result, err := computeFn()
		if err != nil {
			return nil, err
		}
		c.Set(ctx, text, limit, result)
		return result, nil
	})
	if err != nil {
		return nil, false, err
	}
	return val.(*Result), false, nil
}

// Invalidate drops every entry written under this cache's fingerprint.
func (c *QueryCache) Invalidate(ctx context.Context) error {
	pattern := keyPrefix + c.fingerprint + ":*"
	deleted, err := c.store.FlushByPattern(ctx, pattern)
	if err != nil {
		return fmt.Errorf("invalidating cache: %w", err)
	}
	c.logger.Info("cache invalidate", "keys_deleted", deleted)
	return nil
}

func (c *QueryCache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

func (c *QueryCache) miss() {
	c.misses.Add(1)
	if c.metrics != nil {
		c.metrics.CacheMissesTotal.Inc()
	}
}

func (c *QueryCache) buildKey(text string, limit int) string {
	raw := fmt.Sprintf("%s:limit=%d", strings.Join(strings.Fields(text), " "), limit)
	hash := sha256.Sum256([]byte(raw))
	return fmt.Sprintf("%s%s:%x", keyPrefix, c.fingerprint, hash[:16])
}

var _ Store = (*pkgredis.Client)(nil)
