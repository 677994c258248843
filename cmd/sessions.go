package main

import (
	"github.com/spf13/cobra"

	"github.com/gymdex/gymdex-cli/internal/model"
	"github.com/gymdex/gymdex-cli/internal/store"
)

var (
	sessionsStatus string
	sessionsLimit  int
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List crawl session history",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		sessions, err := env.Store.ListSessions(ctx, store.SessionFilter{
			Status: model.SessionStatus(sessionsStatus),
			Limit:  sessionsLimit,
		})
		if err != nil {
			return err
		}

		if len(sessions) == 0 {
			cmd.Println("no sessions")
			return nil
		}

		for _, s := range sessions {
			line := s.ID + "  " + string(s.Status) + "  " + s.StartedAt.Format("2006-01-02 15:04:05")
			cmd.Println(line)
			if s.Result != nil {
				cmd.Printf("    crawled %d  merged %d  conflicts %d  quality %.2f\n",
					s.Result.CrawledRecords, s.Result.MergedRecords,
					s.Result.Conflicts, s.Result.QualityScore)
				if s.Result.Error != "" {
					cmd.Printf("    error: %s\n", s.Result.Error)
				}
			}
		}
		return nil
	},
}

func init() {
	sessionsCmd.Flags().StringVar(&sessionsStatus, "status", "", "filter by status (running, complete, failed, canceled)")
	sessionsCmd.Flags().IntVar(&sessionsLimit, "limit", 20, "max sessions to list")
	rootCmd.AddCommand(sessionsCmd)
}
