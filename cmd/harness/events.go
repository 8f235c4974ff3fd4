package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/prf-retrieval/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/prf-retrieval/pkg/kafka"
)

func newEventsCmd(g *globals) *cobra.Command {
	var (
		runID    string
		interval time.Duration
	)
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Summarize run events published to Kafka",
		Long: `Consume the run-events topic and aggregate it into run statistics
(latency percentiles, zero-result and failed queries). The summary is logged
every --interval and printed as JSON on exit.

Example:
  harness events --run-id 6f1c...`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			agg := analytics.NewAggregator(runID)
			consumer := kafka.NewConsumer(g.cfg.Kafka, analytics.HandleEvent(agg)).OnlyKey(runID)

			go func() {
				ticker := time.NewTicker(interval)
				defer ticker.Stop()
				for {
					select {
					case <-ticker.C:
						stats := agg.Stats()
						slog.Info("run events",
							"queries", stats.Queries,
							"zero_result", stats.ZeroResultCount,
							"query_errors", stats.QueryErrors,
							"p95_ms", stats.P95LatencyMs,
						)
					case <-ctx.Done():
						return
					}
				}
			}()

			if err := consumer.Start(ctx); err != nil {
				return err
			}
			cs := consumer.Stats()
			slog.Info("consumer finished", "handled", cs.Handled, "skipped", cs.Skipped, "failed", cs.Failed)
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(agg.Stats())
		},
	}
	cmd.Flags().StringVar(&runID, "run-id", "", "Only aggregate this run")
	cmd.Flags().DurationVar(&interval, "interval", 10*time.Second, "Summary log interval")
	return cmd
}
