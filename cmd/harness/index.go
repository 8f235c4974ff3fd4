package main

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/prf-retrieval/internal/indexer/corpus"
)

func newIndexCmd(g *globals) *cobra.Command {
	var docs string
	cmd := &cobra.Command{
		Use:   "index",
		Short: "Index a TREC text collection",
		Long: `Index every <DOC> of a TREC text file, or of every file in a directory.
Documents are appended to the index in index.dataDir.

Example:
  harness index --docs ./ap88 --config harness.yaml`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return indexCorpus(g, docs)
		},
	}
	cmd.Flags().StringVar(&docs, "docs", "", "TREC text file or directory")
	_ = cmd.MarkFlagRequired("docs")
	return cmd
}

func indexCorpus(g *globals, docs string) error {
	s, err := openIndex(g.cfg)
	if err != nil {
		return err
	}
	defer s.Close()

	files, err := corpus.Files(docs)
	if err != nil {
		return err
	}
	start := time.Now()
	indexed := 0
	for _, path := range files {
		f, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("opening %s: %w", path, err)
		}
		skipped, err := corpus.Read(f, func(d corpus.Document) error {
			if _, err := s.index.IndexDocument(d.DocNo, d.Text); err != nil {
				return fmt.Errorf("indexing %s: %w", d.DocNo, err)
			}
			indexed++
			return nil
		})
		f.Close()
		for _, reason := range skipped {
			slog.Warn("document skipped", "file", path, "reason", reason)
		}
		if err != nil {
			return fmt.Errorf("reading %s: %w", path, err)
		}
		slog.Info("file indexed", "file", path, "indexed_total", indexed)
	}
	if err := s.index.Flush(); err != nil {
		return err
	}

	stats := s.index.Stats()
	slog.Info("indexing complete",
		"files", len(files),
		"indexed", indexed,
		"documents", stats.Documents,
		"tokens", stats.Tokens,
		"partitions", stats.Partitions,
		"elapsed", time.Since(start).Round(time.Millisecond),
	)
	return nil
}
