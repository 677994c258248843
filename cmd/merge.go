package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/gymdex/gymdex-cli/internal/merge"
)

var (
	mergeSessionID string
	mergeOutPath   string
)

var mergeCmd = &cobra.Command{
	Use:   "merge",
	Short: "Merge crawled records from a session against the baseline",
	Long:  "Re-runs reconciliation for a stored session: dedupes both datasets, matches crawled records to the baseline by weighted similarity, and persists the merged output.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		baseline, err := env.Store.ListBaseline(ctx, 0, 0)
		if err != nil {
			return eris.Wrap(err, "load baseline")
		}
		crawled, err := env.Store.ListCrawled(ctx, mergeSessionID)
		if err != nil {
			return eris.Wrap(err, "load crawled records")
		}
		if len(crawled) == 0 {
			return eris.Errorf("no crawled records for session %s", mergeSessionID)
		}

		merger := merge.New(cfg.Merge.ToMergeOptions())
		result, err := merger.Merge(ctx, baseline, crawled)
		if err != nil {
			return eris.Wrap(err, "merge")
		}

		if err := env.Store.SaveMergeResult(ctx, mergeSessionID, result); err != nil {
			return eris.Wrap(err, "save merge result")
		}

		stats := result.Statistics
		cmd.Printf("merged %d records (%d fallback, %d duplicates removed)\n",
			stats.TotalProcessed, stats.FallbackUsed, stats.DuplicatesRemoved)
		cmd.Printf("  conflicts:     %d\n", len(result.Conflicts))
		cmd.Printf("  quality score: %.2f\n", stats.QualityScore)
		cmd.Printf("  elapsed:       %s\n", stats.ProcessingTime)

		if mergeOutPath != "" {
			data, err := json.MarshalIndent(result, "", "  ")
			if err != nil {
				return eris.Wrap(err, "marshal merge result")
			}
			if err := os.WriteFile(mergeOutPath, data, 0644); err != nil {
				return eris.Wrap(err, "write merge output")
			}
			zap.L().Info("merge result written", zap.String("path", mergeOutPath))
		}
		return nil
	},
}

func init() {
	mergeCmd.Flags().StringVar(&mergeSessionID, "session", "", "session ID whose crawled records to merge (required)")
	mergeCmd.Flags().StringVar(&mergeOutPath, "out", "", "optional path for a JSON dump of the merge result")
	_ = mergeCmd.MarkFlagRequired("session")
	rootCmd.AddCommand(mergeCmd)
}
