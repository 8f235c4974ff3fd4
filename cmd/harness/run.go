package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/prf-retrieval/internal/runner"
	"github.com/Adithya-Monish-Kumar-K/prf-retrieval/internal/runstore"
	"github.com/Adithya-Monish-Kumar-K/prf-retrieval/internal/searcher/parser"
	"github.com/Adithya-Monish-Kumar-K/prf-retrieval/internal/trec"
	"github.com/Adithya-Monish-Kumar-K/prf-retrieval/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/prf-retrieval/pkg/resilience"
)

type runFlags struct {
	queries string
	out     string
	tag     string
	count   int
	workers int
	expand  bool
}

func newRunCmd(g *globals) *cobra.Command {
	f := &runFlags{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Evaluate a query file and write a TREC run",
		Long: `Evaluate every query of an XML query file:

  <parameters>
    <query><number>301</number><text>international organized crime</text></query>
  </parameters>

and write "queryId Q0 docno rank score tag" lines, best first.

Example:
  harness run --queries topics.xml --expand --tag rocchio > rocchio.run`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := g.cfg
			if cmd.Flags().Changed("tag") {
				cfg.Run.Tag = f.tag
			}
			if cmd.Flags().Changed("count") {
				cfg.Run.ResultCount = f.count
			}
			if cmd.Flags().Changed("workers") {
				cfg.Run.Workers = f.workers
			}
			if cmd.Flags().Changed("expand") {
				cfg.Feedback.Enabled = f.expand
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			return runQueries(cmd.Context(), g, f)
		},
	}
	cmd.Flags().StringVar(&f.queries, "queries", "", "XML query file")
	cmd.Flags().StringVarP(&f.out, "out", "o", "-", "Run file to write, - for stdout")
	cmd.Flags().StringVar(&f.tag, "tag", "", "Run tag (last column)")
	cmd.Flags().IntVar(&f.count, "count", 0, "Results per query")
	cmd.Flags().IntVar(&f.workers, "workers", 0, "Queries evaluated concurrently")
	cmd.Flags().BoolVar(&f.expand, "expand", false, "Expand queries with Rocchio feedback")
	_ = cmd.MarkFlagRequired("queries")
	return cmd
}

func runQueries(parent context.Context, g *globals, f *runFlags) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	queries, err := loadQueries(f.queries)
	if err != nil {
		return err
	}

	s, err := openIndex(g.cfg)
	if err != nil {
		return err
	}
	defer s.Close()
	if err := s.openSearch(ctx); err != nil {
		return err
	}
	if err := s.openStore(ctx); err != nil {
		return err
	}
	if g.cfg.Metrics.Enabled {
		shutdown := metrics.StartServer(g.cfg.Metrics.Port)
		defer shutdown(context.Background())
	}

	res, err := s.runner().Run(ctx, queries, runner.OptionsFrom(g.cfg.Run, g.cfg.Feedback))
	if err != nil {
		return err
	}

	var out io.Writer = os.Stdout
	if f.out != "-" {
		file, err := os.Create(f.out)
		if err != nil {
			return fmt.Errorf("creating run file: %w", err)
		}
		defer file.Close()
		out = file
	}
	w := trec.NewWriter(out)
	lines := res.Lines()
	if err := w.Write(lines); err != nil {
		return err
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("writing run file: %w", err)
	}

	if s.store != nil {
		run := runstore.Run{
			ID:         res.RunID,
			Tag:        res.Tag,
			Params:     s.params(),
			Summary:    res.Stats,
			StartedAt:  res.StartedAt,
			FinishedAt: res.FinishedAt,
		}
		err := resilience.Retry(ctx, "save run", resilience.DefaultRetryConfig(), func() error {
			return s.store.SaveRun(ctx, run, lines)
		})
		if err != nil {
			return fmt.Errorf("saving run: %w", err)
		}
	}
	slog.Info("run written", "run_id", res.RunID, "lines", len(lines), "out", f.out)
	return nil
}

func loadQueries(path string) ([]parser.Query, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening query file: %w", err)
	}
	defer file.Close()
	queries, skipped, err := parser.ReadQueries(file)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	for _, reason := range skipped {
		slog.Warn("query skipped", "file", path, "reason", reason)
	}
	slog.Info("queries loaded", "file", path, "queries", len(queries), "skipped", len(skipped))
	return queries, nil
}
