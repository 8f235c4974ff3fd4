package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/prf-retrieval/internal/runstore"
	"github.com/Adithya-Monish-Kumar-K/prf-retrieval/internal/trec"
	"github.com/Adithya-Monish-Kumar-K/prf-retrieval/pkg/postgres"
)

func newRunsCmd(g *globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Inspect runs stored in PostgreSQL",
	}
	cmd.AddCommand(newRunsListCmd(g), newRunsExportCmd(g))
	return cmd
}

func openRunStore(ctx context.Context, g *globals) (*runstore.Store, func() error, error) {
	pg, err := postgres.New(g.cfg.Postgres)
	if err != nil {
		return nil, nil, err
	}
	store := runstore.NewStore(pg)
	if err := store.EnsureSchema(ctx); err != nil {
		pg.Close()
		return nil, nil, err
	}
	return store, pg.Close, nil
}

func newRunsListCmd(g *globals) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List stored runs, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, closeFn, err := openRunStore(cmd.Context(), g)
			if err != nil {
				return err
			}
			defer closeFn()
			runs, err := store.ListRuns(cmd.Context(), limit)
			if err != nil {
				return err
			}
			return printRuns(cmd.OutOrStdout(), runs)
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Runs to list")
	return cmd
}

func printRuns(w io.Writer, runs []runstore.Run) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTAG\tSTARTED\tQUERIES\tZERO\tFAILED\tP95 MS")
	for _, r := range runs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%d\t%.2f\n",
			r.ID, r.Tag, r.StartedAt.Local().Format(time.DateTime),
			r.Summary.Queries, r.Summary.ZeroResultCount, r.Summary.QueryErrors, r.Summary.P95LatencyMs)
	}
	return tw.Flush()
}

func newRunsExportCmd(g *globals) *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "export <run-id>",
		Short: "Write a stored run in TREC format",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, closeFn, err := openRunStore(cmd.Context(), g)
			if err != nil {
				return err
			}
			defer closeFn()
			lines, err := store.Lines(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			var dst io.Writer = cmd.OutOrStdout()
			if out != "-" {
				f, err := os.Create(out)
				if err != nil {
					return fmt.Errorf("creating %s: %w", out, err)
				}
				defer f.Close()
				dst = f
			}
			w := trec.NewWriter(dst)
			if err := w.Write(lines); err != nil {
				return err
			}
			return w.Flush()
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "-", "Run file to write, - for stdout")
	return cmd
}
