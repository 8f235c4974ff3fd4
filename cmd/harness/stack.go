package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Adithya-Monish-Kumar-K/prf-retrieval/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/prf-retrieval/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/prf-retrieval/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/prf-retrieval/internal/runner"
	"github.com/Adithya-Monish-Kumar-K/prf-retrieval/internal/runstore"
	"github.com/Adithya-Monish-Kumar-K/prf-retrieval/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/prf-retrieval/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/prf-retrieval/internal/searcher/expansion"
	"github.com/Adithya-Monish-Kumar-K/prf-retrieval/internal/searcher/ranker"
	"github.com/Adithya-Monish-Kumar-K/prf-retrieval/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/prf-retrieval/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/prf-retrieval/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/prf-retrieval/pkg/postgres"
	pkgredis "github.com/Adithya-Monish-Kumar-K/prf-retrieval/pkg/redis"
	"github.com/Adithya-Monish-Kumar-K/prf-retrieval/pkg/resilience"
)

// stack owns the components a command opened, and closes them in reverse.
type stack struct {
	cfg       *config.Config
	metrics   *metrics.Metrics
	tok       *tokenizer.Tokenizer
	index     *indexer.Engine
	engine    *executor.Engine
	expander  *expansion.Rocchio
	redis     *pkgredis.Client
	cache     *cache.QueryCache
	pg        *postgres.Client
	store     *runstore.Store
	collector *analytics.Collector
	closers   []func() error
}

// collectors register with the default registry, which allows one set per
// process
var processMetrics = sync.OnceValue(metrics.New)

func newTokenizer(cfg config.TokenizerConfig) *tokenizer.Tokenizer {
	return tokenizer.New(tokenizer.Config{
		Mode:      cfg.Mode,
		Lowercase: cfg.Lowercase,
		Stem:      cfg.Stem,
		StopWords: cfg.StopWords,
		ExtraStop: cfg.ExtraStop,
		MinLength: cfg.MinLength,
	})
}

// openIndex opens the index named by cfg.Index.
func openIndex(cfg *config.Config) (*stack, error) {
	s := &stack{cfg: cfg, metrics: processMetrics(), tok: newTokenizer(cfg.Tokenizer)}
	idx, err := indexer.NewEngine(cfg.Index, s.tok, s.metrics)
	if err != nil {
		return nil, fmt.Errorf("opening index: %w", err)
	}
	s.index = idx
	s.closers = append(s.closers, idx.Close)

	stats := idx.Stats()
	slog.Info("index opened",
		"data_dir", cfg.Index.DataDir,
		"documents", stats.Documents,
		"partitions", stats.Partitions,
		"avg_doc_length", stats.AvgDocLength,
	)
	return s, nil
}

// openSearch builds the ranking engine and, when configured, the expander,
// the Redis cache and the Kafka event collector.
func (s *stack) openSearch(ctx context.Context) error {
	model, err := ranker.New(s.cfg.Scoring)
	if err != nil {
		return err
	}
	s.engine = executor.New(s.index, model, s.tok, s.metrics)

	if s.cfg.Feedback.FbDocs > 0 && s.cfg.Feedback.FbTerms > 0 {
		x, err := expansion.New(expansion.ConfigFrom(s.cfg.Feedback, s.cfg.Scoring), s.engine, s.tok, s.metrics)
		if err != nil {
			return err
		}
		s.expander = x
	}

	if s.cfg.Redis.Enabled {
		client, err := pkgredis.NewClient(s.cfg.Redis)
		if err != nil {
			slog.Warn("redis unavailable, result caching disabled", "error", err)
		} else {
			s.redis = client
			s.closers = append(s.closers, client.Close)
			s.cache = cache.New(client, s.cfg.Redis.CacheTTL, s.fingerprint(), s.metrics)
			slog.Info("result cache enabled", "addr", s.cfg.Redis.Addr, "ttl", s.cfg.Redis.CacheTTL)
		}
	}

	if s.cfg.Kafka.Enabled {
		producer := kafka.NewProducer(s.cfg.Kafka)
		s.collector = analytics.NewCollector(producer, 10000, 100, time.Second)
		s.collector.Start(ctx)
		// the collector flushes into the producer, so it closes first
		s.closers = append(s.closers, producer.Close, func() error {
			s.collector.Close()
			return nil
		})
		slog.Info("run events enabled", "topic", s.cfg.Kafka.RunEvents)
	}
	return nil
}

// openStore connects to PostgreSQL when it is enabled.
func (s *stack) openStore(ctx context.Context) error {
	if !s.cfg.Postgres.Enabled {
		return nil
	}
	var pg *postgres.Client
	err := resilience.Retry(ctx, "postgres connect", resilience.DefaultRetryConfig(), func() error {
		var err error
		pg, err = postgres.New(s.cfg.Postgres)
		return err
	})
	if err != nil {
		return err
	}
	s.pg = pg
	s.closers = append(s.closers, pg.Close)
	s.store = runstore.NewStore(pg)
	return s.store.EnsureSchema(ctx)
}

func (s *stack) runner() *runner.Runner {
	r := runner.New(s.engine, s.metrics)
	if s.expander != nil {
		r.WithExpander(s.expander)
	}
	if s.cache != nil {
		r.WithCache(s.cache)
	}
	if s.collector != nil {
		r.WithEvents(s.collector)
	}
	return r
}

// params records what a run's scores depend on.
func (s *stack) params() json.RawMessage {
	data, err := json.Marshal(map[string]any{
		"scoring":   s.cfg.Scoring,
		"feedback":  s.cfg.Feedback,
		"tokenizer": s.cfg.Tokenizer,
		"documents": s.index.DocumentCount(),
	})
	if err != nil {
		return nil
	}
	return data
}

func (s *stack) fingerprint() string {
	return cache.Fingerprint(
		s.cfg.Scoring,
		s.cfg.Feedback.Alpha, s.cfg.Feedback.Beta, s.cfg.Feedback.FbDocs, s.cfg.Feedback.FbTerms,
		s.cfg.Feedback.QueryWeighting, s.cfg.Feedback.FilterStopWords,
		s.cfg.Tokenizer,
		s.index.DocumentCount(), s.index.CollectionLength(),
	)
}

func (s *stack) Close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
