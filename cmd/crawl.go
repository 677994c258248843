package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/gymdex/gymdex-cli/internal/session"
)

var (
	crawlLimit       int
	crawlConcurrency int
)

var crawlCmd = &cobra.Command{
	Use:   "crawl",
	Short: "Run a crawl session over the stored baseline",
	Long:  "Drives baseline candidates through the fallback search chain in adaptive batches, merges the crawled data against the baseline, and persists the session.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		sess, err := env.Runner.Run(ctx, session.Options{
			Limit:            crawlLimit,
			InnerConcurrency: crawlConcurrency,
		})
		if err != nil {
			return err
		}

		res := sess.Result
		cmd.Printf("session %s complete\n", sess.ID)
		cmd.Printf("  candidates:        %d\n", sess.Candidates)
		cmd.Printf("  crawled records:   %d (%d fallback)\n", res.CrawledRecords, res.FallbackRecords)
		cmd.Printf("  batches:           %d total, %d ok, %d failed (avg size %.1f)\n",
			res.TotalBatches, res.SuccessfulBatches, res.FailedBatches, res.AverageBatchSize)
		cmd.Printf("  merged records:    %d\n", res.MergedRecords)
		cmd.Printf("  conflicts:         %d\n", res.Conflicts)
		cmd.Printf("  quality score:     %.2f\n", res.QualityScore)
		cmd.Printf("  elapsed:           %s\n", res.Elapsed)

		snap := env.Monitor.SnapshotNow()
		zap.L().Info("crawl monitor snapshot",
			zap.Int64("batch_attempts", snap.BatchAttempts),
			zap.Int64("individual_retries", snap.IndividualRetries),
			zap.Int64("fallback_synthesized", snap.FallbackSynthesized),
		)
		return nil
	},
}

func init() {
	crawlCmd.Flags().IntVar(&crawlLimit, "limit", 0, "max baseline candidates to crawl (0 = all)")
	crawlCmd.Flags().IntVar(&crawlConcurrency, "concurrency", 0, "goroutines per batch (0 = chunk size)")
	rootCmd.AddCommand(crawlCmd)
}
