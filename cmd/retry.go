package main

import (
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var retryLimit int

var retryCmd = &cobra.Command{
	Use:   "retry",
	Short: "Reprocess failed checks from the dead letter queue",
	Long:  "Lists queued failures and re-runs each entry that is due. Successful retries are removed from the queue; failed ones wait longer before the next attempt.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		env, err := initPipeline(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		entries, err := env.Store.ListDLQ(ctx, retryLimit)
		if err != nil {
			return eris.Wrap(err, "list retry queue")
		}

		now := time.Now()
		var attempted, succeeded int
		for _, entry := range entries {
			if !entry.Due(now) {
				continue
			}
			attempted++

			zap.L().Info("retrying failed check",
				zap.String("dlq_id", entry.ID),
				zap.String("claim", entry.Request.Claim),
				zap.Int("retry_count", entry.RetryCount),
			)

			if _, err := env.Pipeline.RetryDLQ(ctx, entry); err != nil {
				zap.L().Warn("retry failed",
					zap.String("dlq_id", entry.ID),
					zap.Error(err),
				)
				continue
			}
			succeeded++
		}

		zap.L().Info("retry pass complete",
			zap.Int("queued", len(entries)),
			zap.Int("due", attempted),
			zap.Int("succeeded", succeeded),
		)
		return nil
	},
}

func init() {
	retryCmd.Flags().IntVar(&retryLimit, "limit", 50, "max queue entries to consider")
	rootCmd.AddCommand(retryCmd)
}
