package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/prf-retrieval/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/prf-retrieval/pkg/logger"
)

const rootLongDesc = `harness evaluates ad-hoc retrieval runs.

  harness index --docs <path>       Index a TREC text collection
  harness run --queries <file>      Write a TREC run for a query file
  harness serve                     Answer ad-hoc searches over HTTP
  harness events                    Summarize published run events
  harness runs list|export          Inspect runs stored in PostgreSQL`

// globals holds what every subcommand needs after PersistentPreRunE.
type globals struct {
	configPath string
	logLevel   string
	cfg        *config.Config
}

func newRootCmd() *cobra.Command {
	g := &globals{}
	cmd := &cobra.Command{
		Use:           "harness",
		Short:         "Ad-hoc retrieval evaluation harness",
		Long:          rootLongDesc,
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(g.configPath)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			if g.logLevel != "" {
				cfg.Logging.Level = g.logLevel
			}
			// stdout may carry the run file
			logger.SetupWriter(os.Stderr, cfg.Logging.Level, cfg.Logging.Format)
			g.cfg = cfg
			return nil
		},
	}

	cmd.PersistentFlags().StringVarP(&g.configPath, "config", "c", "", "Path to a YAML config file")
	cmd.PersistentFlags().StringVar(&g.logLevel, "log-level", "", "Override logging.level (debug, info, warn, error)")

	cmd.AddCommand(
		newIndexCmd(g),
		newRunCmd(g),
		newServeCmd(g),
		newEventsCmd(g),
		newRunsCmd(g),
	)
	return cmd
}
