package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/prf-retrieval/internal/runner"
	"github.com/Adithya-Monish-Kumar-K/prf-retrieval/internal/searcher/handler"
	"github.com/Adithya-Monish-Kumar-K/prf-retrieval/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/prf-retrieval/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/prf-retrieval/pkg/middleware"
)

func newServeCmd(g *globals) *cobra.Command {
	var port int
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Answer ad-hoc searches over HTTP",
		Long: `Serve the index over HTTP:

  GET  /api/v1/search?q=<text>&expand=<bool>&limit=<n>
  GET  /api/v1/stats
  GET  /api/v1/cache/stats
  POST /api/v1/cache/invalidate
  GET  /health/live, /health/ready`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Flags().Changed("port") {
				g.cfg.Server.Port = port
			}
			return serve(g)
		},
	}
	cmd.Flags().IntVarP(&port, "port", "p", 0, "Listen port (default server.port)")
	return cmd
}

func serve(g *globals) error {
	cfg := g.cfg
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	s, err := openIndex(cfg)
	if err != nil {
		return err
	}
	defer s.Close()
	if err := s.openSearch(ctx); err != nil {
		return err
	}

	checker := health.NewChecker()
	checker.Register("index", func(ctx context.Context) health.ComponentHealth {
		stats := s.index.Stats()
		if stats.Documents == 0 {
			return health.ComponentHealth{Status: health.StatusDown, Message: "index is empty"}
		}
		return health.ComponentHealth{
			Status:  health.StatusUp,
			Message: fmt.Sprintf("%d documents in %d partitions", stats.Documents, stats.Partitions),
		}
	})
	if s.redis != nil {
		checker.Register("redis", health.PingCheck(s.redis.Ping, health.StatusDegraded))
	}

	var events runner.EventSink
	if s.collector != nil {
		events = s.collector
	}
	sessionID := uuid.NewString()
	h := handler.New(s.runner(), s.index, s.cache, events, sessionID, cfg.Server.DefaultLimit, cfg.Server.MaxResults)

	mux := http.NewServeMux()
	h.Register(mux)
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	var chain http.Handler = mux
	chain = middleware.Timeout(cfg.Server.WriteTimeout)(chain)
	chain = middleware.Metrics(s.metrics)(chain)
	chain = middleware.RequestID(chain)

	if cfg.Metrics.Enabled {
		shutdown := metrics.StartServer(cfg.Metrics.Port)
		defer shutdown(context.Background())
	}

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      chain,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
	}()

	slog.Info("search server listening",
		"addr", server.Addr,
		"session_id", sessionID,
		"expansion", s.expander != nil,
		"cache", s.cache != nil,
	)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("serving: %w", err)
	}
	slog.Info("search server stopped")
	return nil
}
