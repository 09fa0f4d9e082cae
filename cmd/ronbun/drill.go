package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/okian/ronbun/internal/drill"
	"github.com/okian/ronbun/pkg/logger"
)

func newDrillCmd() *cobra.Command {
	cfg := drill.Config{}
	cmd := &cobra.Command{
		Use:   "drill",
		Short: "Load-test a running service and verify the scores it returns",
		Example: `  ronbun drill --url http://localhost:9080 --essays 5000 --workers 32
  ronbun drill --essays 200 --duplicates 50 --output essays.json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			stats, err := drill.Run(cmd.Context(), &cfg, logger.Named("drill"))
			if stats != nil {
				fmt.Fprintf(cmd.OutOrStdout(),
					"submitted=%d accepted=%d duplicates=%d rejected=%d failed=%d results=%d fallbacks=%d duration=%s\n",
					stats.Submitted, stats.Accepted, stats.Duplicates, stats.Rejected, stats.Failed,
					stats.ResultsRetrieved, stats.Fallbacks, stats.Duration.Round(time.Millisecond))
			}
			return err
		},
	}
	f := cmd.Flags()
	f.StringVar(&cfg.BaseURL, "url", "http://localhost:9080", "base URL of the service")
	f.IntVarP(&cfg.NumEssays, "essays", "n", drill.DefaultEssays, "number of essays to submit")
	f.IntVar(&cfg.Duplicates, "duplicates", 0, "number of essays to re-submit")
	f.IntVar(&cfg.TopN, "top", drill.DefaultTopN, "leaderboard entries to verify")
	f.IntVarP(&cfg.Workers, "workers", "w", 0, "concurrent requests; 0 is 2x CPU cores")
	f.DurationVar(&cfg.Timeout, "timeout", drill.DefaultTimeout, "HTTP request timeout")
	f.DurationVar(&cfg.PollTimeout, "poll-timeout", drill.DefaultPollTimeout, "how long to wait for all results")
	f.Uint64Var(&cfg.Seed, "seed", 0, "essay generator seed; 0 is random")
	f.StringVarP(&cfg.OutputFile, "output", "o", "", "write generated essays to this JSON file")
	return cmd
}
